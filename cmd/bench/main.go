// Command bench measures audit trail query latency as the table grows.
// It bulk-loads synthetic events at increasing scales and times the
// queries the logs surface and status command actually run.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/devchilll/scope/internal/audit"
)

func main() {
	dir, _ := os.MkdirTemp("", "scope-bench-*")
	defer func() { _ = os.RemoveAll(dir) }()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	store, err := audit.NewStore(filepath.Join(dir, "bench.db"), logger)
	if err != nil {
		panic(err)
	}
	defer func() { _ = store.Close() }()

	eventTypes := []string{
		audit.EventUserQuery, audit.EventDecision, audit.EventToolCall,
		audit.EventAccountAccess, audit.EventAccessDenied, audit.EventEscalationCreated,
	}
	details := `{"ticket_id":"00000000-0000-0000-0000-000000000000","action":"escalate"}`

	scales := []int{1000, 10000, 50000, 100000, 500000}

	fmt.Println("=== AUDIT TRAIL SCALING BENCHMARK ===")
	fmt.Println()

	written := 0
	for _, target := range scales {
		toWrite := target - written
		if toWrite <= 0 {
			continue
		}

		start := time.Now()
		batchSize := 500
		for i := 0; i < toWrite; i += batchSize {
			end := i + batchSize
			if end > toWrite {
				end = toWrite
			}
			tx, _ := store.DB().Begin()
			for j := i; j < end; j++ {
				idx := written + j
				// 5K rows within 24h, rest older (steady state with retention)
				var ts string
				if idx < 5000 {
					ts = time.Now().Add(-time.Duration(idx) * time.Second).UTC().Format(time.RFC3339)
				} else {
					ts = time.Now().Add(-48*time.Hour - time.Duration(idx)*time.Second).UTC().Format(time.RFC3339)
				}
				_, _ = tx.Exec(
					`INSERT INTO audit_events (id, timestamp, event_type, user_id, action, success, details, error) VALUES (?,?,?,?,?,?,?,?)`,
					fmt.Sprintf("e-%07d", idx), ts,
					eventTypes[idx%len(eventTypes)],
					fmt.Sprintf("demo-user-%d", idx%8),
					"benchmark", idx%7 != 0, details, "",
				)
			}
			_ = tx.Commit()
		}
		written = target
		fillTime := time.Since(start)
		insertRate := float64(toWrite) / fillTime.Seconds()

		// Update query planner statistics after bulk insert
		_, _ = store.DB().Exec("ANALYZE")

		since24h := time.Now().Add(-24 * time.Hour).UTC().Format(time.RFC3339)

		type benchmark struct {
			name string
			fn   func()
		}
		benchmarks := []benchmark{
			{"Recent 50", func() { _, _ = store.Query(audit.QueryOpts{Limit: 50}) }},
			{"By type (24h)", func() {
				_, _ = store.Query(audit.QueryOpts{EventType: audit.EventDecision, Since: since24h, Limit: 50})
			}},
			{"By user", func() { _, _ = store.Query(audit.QueryOpts{UserID: "demo-user-3", Limit: 50}) }},
			{"Stats by type", func() { _, _ = store.StatsByType() }},
		}

		fi, _ := os.Stat(filepath.Join(dir, "bench.db"))
		wal, _ := os.Stat(filepath.Join(dir, "bench.db-wal"))
		dbMB := float64(fi.Size()) / (1024 * 1024)
		walMB := float64(0)
		if wal != nil {
			walMB = float64(wal.Size()) / (1024 * 1024)
		}

		fmt.Printf("--- %dk rows (5k in 24h) | %.0f MB | %.0f ins/sec ---\n",
			written/1000, dbMB+walMB, insertRate)

		iters := 20
		if written >= 500000 {
			iters = 5
		}
		for _, b := range benchmarks {
			start := time.Now()
			for range iters {
				b.fn()
			}
			elapsed := time.Since(start)
			avgMs := float64(elapsed.Microseconds()) / float64(iters) / 1000.0
			fmt.Printf("  %-22s %7.1f ms\n", b.name, avgMs)
		}
		fmt.Println()
	}
}
