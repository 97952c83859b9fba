package main

import (
	"github.com/joho/godotenv"

	"github.com/avoronkov/warden/internal/cli"
)

func main() {
	// Optional .env for local development; environment always wins.
	_ = godotenv.Load()
	cli.Execute()
}
