package repository

import (
	"context"
	"database/sql"
	"fmt"

	"universalis-alerts/internal/model"
)

// alertsTable is the table (or collection) user alerts are read from.
const alertsTable = "users_alerts_next"

// AlertQuery selects the alerts that may fire for one market update:
// alerts of WorldID whose item is ItemID or the wildcard, with a trigger
// version inside [MinVersion, MaxVersion].
type AlertQuery struct {
	WorldID    int32
	ItemID     int32
	MinVersion int32
	MaxVersion int32
}

// scanAlerts reads rows selected in alertColumns order.
func scanAlerts(rows *sql.Rows) ([]model.UserAlert, error) {
	defer rows.Close()

	var alerts []model.UserAlert
	for rows.Next() {
		var a model.UserAlert
		var webhook sql.NullString
		if err := rows.Scan(&a.ID, &a.Name, &a.WorldID, &a.ItemID, &webhook, &a.Trigger, &a.TriggerVersion); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		a.DiscordWebhook = webhook.String
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read alerts: %w", err)
	}
	return alerts, nil
}

func queryAlerts(ctx context.Context, db *sql.DB, query string, q AlertQuery) ([]model.UserAlert, error) {
	rows, err := db.QueryContext(ctx, query, q.WorldID, q.ItemID, model.WildcardItemID, q.MinVersion, q.MaxVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	return scanAlerts(rows)
}
