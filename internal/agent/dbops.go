package agent

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"  // postgres driver
	_ "modernc.org/sqlite" // sqlite driver, pure Go
)

// DatabaseOpsAgent runs maintenance tools against a configured database.
// Without a DSN it degrades to synthetic reports so plans remain executable
// in demos and tests.
type DatabaseOpsAgent struct {
	driver string
	db     *sql.DB
}

// NewDatabaseOpsAgent opens the target database when dsn is non-empty.
// Supported drivers: "postgres", "sqlite".
func NewDatabaseOpsAgent(driver, dsn string) (*DatabaseOpsAgent, error) {
	a := &DatabaseOpsAgent{driver: driver}
	if dsn == "" {
		return a, nil
	}
	switch driver {
	case "postgres", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported database driver %q (supported: postgres, sqlite)", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	a.db = db
	return a, nil
}

func (a *DatabaseOpsAgent) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

func DatabaseOpsDescriptor() Descriptor {
	return Descriptor{
		Name:        "database-ops",
		Description: "Database health, optimization and schema maintenance",
		Tools: []ToolSpec{
			{
				Name:        "health_check",
				Description: "Verify connectivity and report basic health",
			},
			{
				Name:        "optimize",
				Description: "Refresh planner statistics and reclaim space",
			},
			{
				Name:        "migrate",
				Description: "Report or advance the schema version",
				Parameters: []Parameter{
					{Name: "schema_version", Description: "Target schema version", Required: false},
				},
			},
		},
	}
}

func (a *DatabaseOpsAgent) Invoke(ctx context.Context, tool string, args map[string]string) Result {
	switch tool {
	case "health_check":
		return a.healthCheck(ctx)
	case "optimize":
		return a.optimize(ctx)
	case "migrate":
		return a.migrate(ctx, args["schema_version"])
	default:
		return Errorf("database-ops agent has no tool %q", tool)
	}
}

func (a *DatabaseOpsAgent) healthCheck(ctx context.Context) Result {
	if a.db == nil {
		return TextResult("health: ok (no database configured, synthetic report); latency 0ms, connections 0/0")
	}
	start := time.Now()
	if err := a.db.PingContext(ctx); err != nil {
		return Errorf("health: ping failed: %v", err)
	}
	stats := a.db.Stats()
	return TextResult(fmt.Sprintf("health: ok; latency %dms, connections %d open / %d in use",
		time.Since(start).Milliseconds(), stats.OpenConnections, stats.InUse))
}

func (a *DatabaseOpsAgent) optimize(ctx context.Context) Result {
	if a.db == nil {
		return TextResult("optimize: skipped (no database configured)")
	}
	stmt := "ANALYZE"
	if a.driver == "sqlite" {
		stmt = "PRAGMA optimize"
	}
	if _, err := a.db.ExecContext(ctx, stmt); err != nil {
		return Errorf("optimize: %v", err)
	}
	return TextResult(fmt.Sprintf("optimize: statistics refreshed (%s)", stmt))
}

func (a *DatabaseOpsAgent) migrate(ctx context.Context, target string) Result {
	if a.db == nil {
		if target == "" {
			return TextResult("migrate: schema at version 0 (no database configured)")
		}
		return TextResult(fmt.Sprintf("migrate: would advance schema to %s (no database configured)", target))
	}
	if _, err := a.db.ExecContext(ctx,
		"CREATE TABLE IF NOT EXISTS schema_info (version TEXT NOT NULL, applied_at TIMESTAMP NOT NULL)"); err != nil {
		return Errorf("migrate: %v", err)
	}
	var current sql.NullString
	row := a.db.QueryRowContext(ctx, "SELECT version FROM schema_info ORDER BY applied_at DESC LIMIT 1")
	if err := row.Scan(&current); err != nil && err != sql.ErrNoRows {
		return Errorf("migrate: read version: %v", err)
	}
	if target == "" {
		version := current.String
		if version == "" {
			version = "0"
		}
		return TextResult(fmt.Sprintf("migrate: schema at version %s", version))
	}
	insert := "INSERT INTO schema_info (version, applied_at) VALUES ($1, CURRENT_TIMESTAMP)"
	if a.driver == "sqlite" {
		insert = "INSERT INTO schema_info (version, applied_at) VALUES (?, CURRENT_TIMESTAMP)"
	}
	if _, err := a.db.ExecContext(ctx, insert, target); err != nil {
		return Errorf("migrate: record version: %v", err)
	}
	return TextResult(fmt.Sprintf("migrate: schema advanced to %s", target))
}
