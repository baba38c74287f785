package main

import "urioracle/internal/app"

func main() {
	app.Run()
}
