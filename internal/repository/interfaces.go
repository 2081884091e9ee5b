package repository

import (
	"context"

	"universalis-alerts/internal/model"
)

// AlertRepository defines user alert data access methods.
type AlertRepository interface {
	// FindAlerts returns the alerts selected by q, ordered by id.
	FindAlerts(ctx context.Context, q AlertQuery) ([]model.UserAlert, error)

	// Ping checks that the backing store is reachable.
	Ping(ctx context.Context) error

	// Close closes the repository connection.
	Close() error
}
