package main

import "matchly_backend/internal/app"

func main() {
	app.Run()
}
