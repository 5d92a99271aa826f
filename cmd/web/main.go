package main

import "daohub_backend/internal/app"

func main() {
	app.Run()
}
