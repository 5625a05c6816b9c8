// Package cli implements the syncline client commands.
package cli

import (
	"fmt"

	"github.com/opsdeck/syncline/internal/client/engine"
	"github.com/opsdeck/syncline/internal/client/repo"
	"github.com/opsdeck/syncline/internal/client/store"
	"github.com/opsdeck/syncline/internal/config"
)

// Cli wires the commands to the Local Store, repository, and sync engine.
type Cli struct {
	store  store.Store
	repo   *repo.Repository
	engine *engine.Engine
	cfg    *config.Config
}

func New(s store.Store, r *repo.Repository, e *engine.Engine, cfg *config.Config) *Cli {
	return &Cli{
		store:  s,
		repo:   r,
		engine: e,
		cfg:    cfg,
	}
}

func PrintUsage() {
	fmt.Println("Syncline Client")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  syncline [OPTIONS] COMMAND")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --version      Show version information")
	fmt.Println("  --server URL   Server URL (default: http://localhost:8080)")
	fmt.Println("  --db PATH      Path to local database (default: syncline-client.db)")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  watch                              Run continuous sync until interrupted")
	fmt.Println("  sync                               Run one push/pull cycle")
	fmt.Println("  status                             Show sync status")
	fmt.Println("  list <kind>                        List local entities of a kind")
	fmt.Println("  put <kind> <json>                  Create or update an entity")
	fmt.Println("  delete <kind> <id>                 Delete an entity")
	fmt.Println("  conflicts                          List pending conflicts")
	fmt.Println("  resolve <id> <resolution> [json]   Resolve a conflict")
	fmt.Println("  prune                              Apply local retention policy")
	fmt.Println()
	fmt.Println("Kinds: deployment, project, artifact, queue_item")
	fmt.Println("Resolutions: local-wins, remote-wins, merged (merged takes a JSON payload)")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println(`  syncline put project '{"name":"billing","repository":"git@example.com:ops/billing"}'`)
	fmt.Println("  syncline list project")
	fmt.Println("  syncline sync")
	fmt.Println("  syncline conflicts")
	fmt.Println("  syncline resolve 3 local-wins")
	fmt.Println("  syncline --server https://sync.example.com watch")
}
