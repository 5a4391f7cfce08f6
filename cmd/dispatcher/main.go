// Package main is the entrypoint for dispatcher-core.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/relaycore/dispatcher-core/internal/server"
	"github.com/relaycore/dispatcher-core/pkg/catalog"
)

const usage = `Usage: dispatcher [command]
       dispatcher serve              Start the dispatcher (NATS, liveness, HTTP, WebSocket).
       dispatcher catalog validate [file]  Load a catalog file, list its remote platforms, then exit.

Commands:
  serve                 (default) Start dispatcher-core.
  catalog validate [file] Dry-run the Protocol Registry loader against a catalog file
                          (or DISPATCHER_CATALOG_FILE env if omitted). Verb schemas are
                          not compiled; a file that cannot be read or parsed falls back
                          to the built-in default catalog.

Environment: COMMS_URL, CATALOG_FILE, HTTP_PORT, DISPATCHER_PLATFORMS,
DISPATCHER_LISTENER_INTERVAL_TIME, DISPATCHER_LISTENER_INTERVAL_COUNT,
DATABASE_URL (optional), LOG_LEVEL.
`

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 && args[0] != "" {
		cmd = args[0]
	}

	switch cmd {
	case "catalog":
		if len(args) < 2 || args[1] != "validate" {
			log.Fatalf("dispatcher catalog: require subcommand (validate)")
		}
		path := ""
		if len(args) > 2 {
			path = args[2]
		}
		if err := runCatalogValidate(path); err != nil {
			log.Fatalf("dispatcher catalog validate: %v", err)
		}
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	case "serve", "":
		break
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", cmd, usage)
		os.Exit(1)
	}

	if err := server.Run(); err != nil {
		log.Fatalf("dispatcher: %v", err)
	}
}

// runCatalogValidate loads a catalog file and reports success without
// starting the server — a dry-run utility analogous to the teacher's
// non-serve subcommands (registry migrate status, ensure-db).
func runCatalogValidate(path string) error {
	cat, err := catalog.Load(path)
	if err != nil {
		return err
	}
	remote := cat.RemotePlatforms()
	fmt.Printf("catalog OK: %d remote platform(s)\n", len(remote))
	for _, name := range remote {
		fmt.Printf("  - %s\n", name)
	}
	return nil
}
