package apierr

import (
	"os"

	"github.com/labstack/echo/v4"
)

const tempFilesKey = "_cleanup_temp_files"

// TrackTempFile registers a file accepted from the client so it is
// released even when the request fails partway. Handlers call this
// immediately after persisting an upload to the temp dir, before any
// step that can error.
func TrackTempFile(c echo.Context, path string) {
	if path == "" {
		return
	}

	files, _ := c.Get(tempFilesKey).([]string)
	c.Set(tempFilesKey, append(files, path))
}

// ReleaseTempFiles deletes every tracked file. It runs on both the
// success and failure paths; deleting an already-removed file is fine.
func ReleaseTempFiles(c echo.Context) {
	files, _ := c.Get(tempFilesKey).([]string)
	for _, path := range files {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			c.Logger().Warnf("failed to delete temp file %s: %v", path, err)
		}
	}
	c.Set(tempFilesKey, []string(nil))
}
