// Package ledger persists per-request usage to SQLite so savings survive
// restarts. Writes happen on the telemetry hook path and must stay cheap;
// daily rollups run from the maintenance scheduler.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/clawinfra/clawrouter/internal/telemetry"
)

// Ledger is a SQLite-backed usage store.
type Ledger struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open creates or opens the ledger database at path and runs migrations.
func Open(path string, logger *slog.Logger) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}

	// Single writer; WAL keeps readers (stats queries) unblocked.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	l := &Ledger{db: db, logger: logger.With("component", "ledger"), now: time.Now}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Ledger) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS usage (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		request_id TEXT NOT NULL,
		ts TEXT NOT NULL,
		model TEXT NOT NULL,
		tier TEXT NOT NULL,
		prompt_tokens INTEGER NOT NULL,
		completion_tokens INTEGER NOT NULL,
		cost_usd REAL NOT NULL,
		savings_usd REAL NOT NULL,
		duration_ms INTEGER NOT NULL,
		status TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_usage_ts ON usage(ts);

	CREATE TABLE IF NOT EXISTS usage_daily (
		day TEXT PRIMARY KEY,
		requests INTEGER NOT NULL,
		prompt_tokens INTEGER NOT NULL,
		completion_tokens INTEGER NOT NULL,
		cost_usd REAL NOT NULL,
		savings_usd REAL NOT NULL
	);
	`
	if _, err := l.db.Exec(schema); err != nil {
		return fmt.Errorf("migrate ledger: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Record appends one usage row.
func (l *Ledger) Record(rec telemetry.UsageRecord) error {
	_, err := l.db.Exec(`
		INSERT INTO usage (request_id, ts, model, tier, prompt_tokens,
			completion_tokens, cost_usd, savings_usd, duration_ms, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID,
		l.now().UTC().Format(time.RFC3339),
		rec.Model,
		rec.Tier.String(),
		rec.PromptTokens,
		rec.CompletionTokens,
		rec.CostUSD,
		rec.SavingsUSD,
		rec.DurationMs,
		rec.Status,
	)
	if err != nil {
		return fmt.Errorf("insert usage: %w", err)
	}
	return nil
}

// Rollup aggregates completed usage rows into usage_daily and deletes raw
// rows older than the retention window. Pruning happens on whole-day
// boundaries only: a cutoff inside a day would leave that day's aggregate
// recomputed from partial rows on the next run.
func (l *Ledger) Rollup(ctx context.Context, retention time.Duration) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rollup: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO usage_daily (day, requests, prompt_tokens, completion_tokens, cost_usd, savings_usd)
		SELECT date(ts), COUNT(*), SUM(prompt_tokens), SUM(completion_tokens), SUM(cost_usd), SUM(savings_usd)
		FROM usage
		WHERE status = 'completed'
		GROUP BY date(ts)
		ON CONFLICT(day) DO UPDATE SET
			requests = excluded.requests,
			prompt_tokens = excluded.prompt_tokens,
			completion_tokens = excluded.completion_tokens,
			cost_usd = excluded.cost_usd,
			savings_usd = excluded.savings_usd`)
	if err != nil {
		return fmt.Errorf("rollup aggregate: %w", err)
	}

	cutoff := l.now().UTC().Add(-retention).Truncate(24 * time.Hour).Format(time.RFC3339)
	res, err := tx.ExecContext(ctx, `DELETE FROM usage WHERE ts < ?`, cutoff)
	if err != nil {
		return fmt.Errorf("rollup prune: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rollup: %w", err)
	}

	if pruned, _ := res.RowsAffected(); pruned > 0 {
		l.logger.Info("ledger rollup pruned rows", "rows", pruned)
	}
	return nil
}

// TotalSavings sums realised savings across all recorded usage. Days
// already rolled up are read from the daily table; raw rows count only
// when their day has no aggregate yet, so a rollup never double-counts.
func (l *Ledger) TotalSavings(ctx context.Context) (float64, error) {
	var total sql.NullFloat64
	err := l.db.QueryRowContext(ctx, `
		SELECT COALESCE((SELECT SUM(savings_usd) FROM usage_daily), 0)
		     + COALESCE((SELECT SUM(savings_usd) FROM usage
		                 WHERE status = 'completed'
		                   AND date(ts) NOT IN (SELECT day FROM usage_daily)), 0)`).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum savings: %w", err)
	}
	return total.Float64, nil
}

// Hooks adapts the ledger into a telemetry sink. Insert failures are logged
// and dropped; usage accounting never fails a request.
func (l *Ledger) Hooks() telemetry.Hooks {
	return telemetry.Hooks{
		OnComplete: func(rec telemetry.UsageRecord) {
			if err := l.Record(rec); err != nil {
				l.logger.Warn("usage insert failed", "request_id", rec.RequestID, "error", err)
			}
		},
	}
}
