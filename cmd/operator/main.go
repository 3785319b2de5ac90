// Package main is the recall operations CLI.
package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/givelift/recall/internal/cli"
)

func main() {
	_ = godotenv.Load()
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
