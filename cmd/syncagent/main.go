// Package main provides the entry point for the syncagent binary.
package main

import (
	"offline_sync_agent/internal/cli"
)

func main() {
	cli.Execute()
}
