// Package main provides the entry point for the engram MCP server.
//
// This server is designed to be spawned as a child process by a coding
// assistant and communicates via stdio using the Model Context Protocol.
// It wires the learning pipeline, runs an embedding backfill, starts the
// background worker, and exposes a small set of read-only introspection
// tools for debugging what has been learned. It does not ingest ToolUsage
// observations itself.
//
// Environment variables:
//   - DEBUG: set to "true" to enable debug logging
//   - VOYAGE_API_KEY: optional; when unset no embedder is configured and
//     embeddings are deferred
//   - STORAGE_TYPE / SQLITE_PATH: read by config.ConfigFromEnv (via
//     storage.ConfigFromEnv) and passed to storage.NewStorage
package main

import (
	"context"
	"log"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func main() {
	if os.Getenv("DEBUG") == "true" {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
		log.Println("Starting engram server in debug mode...")
	}

	components, err := InitializeServer()
	if err != nil {
		log.Fatalf("Failed to initialize server: %v", err)
	}
	defer func() {
		if err := components.Cleanup(); err != nil {
			log.Printf("Warning: cleanup failed: %v", err)
		}
	}()

	ctx := context.Background()

	runBackfill(ctx, components)

	components.Worker.Start(ctx)
	log.Println("Started worker")

	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    "engram-server",
		Version: "0.1.0",
	}, nil)
	log.Println("Created MCP server")

	components.Server.RegisterTools(mcpServer)
	log.Println("Registered tools: search_memories, get_pattern, get_synthesis, list_rules, list_skills, get_metrics")

	transport := &mcp.StdioTransport{}
	log.Println("Created stdio transport")

	log.Println("Starting MCP server...")
	if err := mcpServer.Run(ctx, transport); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
