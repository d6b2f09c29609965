package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/tech-arch1tect/clipstream/apierr"
	"github.com/tech-arch1tect/clipstream/config"
	"github.com/tech-arch1tect/clipstream/services/logging"
	"go.uber.org/zap"
)

// NewErrorHandler builds the echo HTTPErrorHandler that renders the
// taxonomy envelope. Temp files accepted from the failing request are
// released before the response is written, whatever the failure path
// was. Unclassified errors are logged in full but reported generically
// unless debug mode is on.
func NewErrorHandler(cfg *config.Config, logger *logging.Service) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		apierr.ReleaseTempFiles(c)

		classified := apierr.Classify(err)

		if httpErr, ok := err.(*echo.HTTPError); ok {
			classified = &apierr.Error{
				Status:  httpErr.Code,
				Code:    apierr.CodeInternal,
				Message: http.StatusText(httpErr.Code),
			}
			if msg, ok := httpErr.Message.(string); ok {
				classified.Message = msg
			}
			if httpErr.Code == http.StatusUnauthorized {
				classified.Code = apierr.CodeUnauthorized
			}
			if httpErr.Code == http.StatusNotFound {
				classified.Code = apierr.CodeNotFound
			}
		}

		if classified.Code == apierr.CodeInternal {
			if logger != nil {
				logger.Error("unexpected error",
					zap.String("path", c.Request().URL.Path),
					zap.String("method", c.Request().Method),
					zap.Error(err))
			}
			if cfg.App.Debug {
				classified.Message = err.Error()
			}
		}

		writeErr := c.JSON(classified.Status, Envelope{
			Success:    false,
			StatusCode: classified.Status,
			Message:    classified.Message,
			Data:       nil,
			Errors:     classified.Fields,
		})
		if writeErr != nil && logger != nil {
			logger.Error("failed to write error response", zap.Error(writeErr))
		}
	}
}

// TempFileCleanup releases tracked temp files once the handler chain
// finishes, so the success path does not leak accepted uploads either.
func TempFileCleanup() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			apierr.ReleaseTempFiles(c)
			return err
		}
	}
}
