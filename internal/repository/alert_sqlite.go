package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	_ "modernc.org/sqlite" // Pure Go SQLite driver - no CGO required

	"universalis-alerts/internal/model"
)

const sqliteFindAlerts = "SELECT id, name, world_id, item_id, discord_webhook, `trigger`, trigger_version " +
	"FROM " + alertsTable + " " +
	"WHERE world_id = ? AND (item_id = ? OR item_id = ?) " +
	"AND trigger_version >= ? AND trigger_version <= ? " +
	"ORDER BY id"

// SQLiteAlertRepository implements AlertRepository using SQLite.
// It creates its own schema and is meant for local runs and tests.
type SQLiteAlertRepository struct {
	db *sql.DB
}

// NewSQLiteAlertRepository opens (or creates) an alert database at dbPath.
// ":memory:" gives a private in-memory database.
func NewSQLiteAlertRepository(dbPath string) (*SQLiteAlertRepository, error) {
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	// One connection keeps an in-memory database alive and serializes writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := createAlertTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	log.Printf("[SQLiteAlertRepository] Initialized with database: %s", dbPath)
	return &SQLiteAlertRepository{db: db}, nil
}

func createAlertTables(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS ` + alertsTable + ` (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		world_id INTEGER NOT NULL,
		item_id INTEGER NOT NULL,
		discord_webhook TEXT,
		` + "`trigger`" + ` TEXT NOT NULL,
		trigger_version INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_alerts_world_item ON ` + alertsTable + `(world_id, item_id);
	`
	_, err := db.Exec(query)
	return err
}

// InsertAlert stores an alert and returns its id. An empty webhook is stored as NULL.
func (r *SQLiteAlertRepository) InsertAlert(ctx context.Context, a model.UserAlert) (int64, error) {
	var webhook sql.NullString
	if a.DiscordWebhook != "" {
		webhook = sql.NullString{String: a.DiscordWebhook, Valid: true}
	}

	res, err := r.db.ExecContext(ctx,
		"INSERT INTO "+alertsTable+" (name, world_id, item_id, discord_webhook, `trigger`, trigger_version) VALUES (?, ?, ?, ?, ?, ?)",
		a.Name, a.WorldID, a.ItemID, webhook, a.Trigger, a.TriggerVersion,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert alert: %w", err)
	}
	return res.LastInsertId()
}

// FindAlerts returns the alerts selected by q.
func (r *SQLiteAlertRepository) FindAlerts(ctx context.Context, q AlertQuery) ([]model.UserAlert, error) {
	return queryAlerts(ctx, r.db, sqliteFindAlerts, q)
}

// Ping checks the database handle.
func (r *SQLiteAlertRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database.
func (r *SQLiteAlertRepository) Close() error {
	return r.db.Close()
}

var _ AlertRepository = (*SQLiteAlertRepository)(nil)
