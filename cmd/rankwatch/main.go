// Command rankwatch captures e-commerce ranking pages into SQLite.
//
//	rankwatch run                    scheduler + admin HTTP API
//	rankwatch collect [source...]    one-shot capture, prints snapshots as JSON
//	rankwatch snapshots              list stored snapshots
//	rankwatch mcp                    MCP server on stdio
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	os.Exit(execute(ctx))
}
