package main

import "github.com/tech-arch1tect/clipstream/app"

func main() {
	app.New(nil).Run()
}
