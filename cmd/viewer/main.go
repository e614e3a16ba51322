// Read-only viewer over the transcript archive. Useful to inspect what a
// running server has persisted without stopping it.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"

	"discussion-lab/internal"
	"discussion-lab/repositories"
)

func main() {
	// 1. Load config
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		log.Fatalf("Config error: %v", err)
	}

	// 2. Open Badger in Read-Only mode
	// Note: BypassLockGuard allows opening if another process (the server) holds the lock
	opts := badger.DefaultOptions(config.BadgerFilepath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	// 3. Start the inspector only
	emptyStats := func() map[string]any {
		return map[string]any{
			"Status": "Viewer Mode (Read-Only)",
			"Time":   time.Now().Format(time.RFC822),
		}
	}

	fmt.Printf("Viewer started at http://localhost:%d/inspect\n", config.DebugPort)
	internal.StartDebugServer(db, config.DebugPort, "/inspect", TurnMapper, emptyStats)
	select {}
}

func TurnMapper(key string, val []byte) internal.InspectRow {
	row := internal.DefaultMapper(key, val)

	var turn repositories.DiskTurn
	if err := json.Unmarshal(val, &turn); err == nil && turn.Speaker != "" {
		speaker := turn.Speaker
		if turn.Name != "" {
			speaker = fmt.Sprintf("%s (%s)", turn.Name, turn.Speaker)
		}
		row.Detail = fmt.Sprintf("%s: %s", speaker, turn.Message)
		return row
	}

	var report repositories.DiskReport
	if err := json.Unmarshal(val, &report); err == nil && report.Report != "" {
		row.Detail = fmt.Sprintf("report for %q: %s", report.Topic, report.Report)
	}
	return row
}
