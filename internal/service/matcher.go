package service

import (
	"context"
	"fmt"
	"time"

	"universalis-alerts/internal/model"
	"universalis-alerts/internal/repository"
	"universalis-alerts/internal/trigger"
)

// VersionWindow is the inclusive range of trigger schema versions the matcher
// will evaluate. Alerts stored with any other version are never returned.
type VersionWindow struct {
	Min int32
	Max int32
}

// Contains reports whether v lies inside the window.
func (w VersionWindow) Contains(v int32) bool {
	return w.Min <= v && v <= w.Max
}

// Validate checks that the window is not empty.
func (w VersionWindow) Validate() error {
	if w.Min > w.Max {
		return fmt.Errorf("trigger version window is empty: min %d > max %d", w.Min, w.Max)
	}
	return nil
}

// Candidate is one alert eligible for an event. Exactly one of Rule and Err
// is set: Err holds the parse failure of the alert's stored trigger.
type Candidate struct {
	Alert model.UserAlert
	Rule  *trigger.Rule
	Err   error
}

// AlertMatcher selects the alerts that apply to a world/item pair.
type AlertMatcher struct {
	repo    repository.AlertRepository
	window  VersionWindow
	timeout time.Duration
}

// NewAlertMatcher creates a matcher over repo. A positive timeout bounds each lookup.
func NewAlertMatcher(repo repository.AlertRepository, window VersionWindow, timeout time.Duration) *AlertMatcher {
	return &AlertMatcher{
		repo:    repo,
		window:  window,
		timeout: timeout,
	}
}

// Window returns the version window the matcher was built with.
func (m *AlertMatcher) Window() VersionWindow {
	return m.window
}

// FindCandidates returns the alerts of worldID whose item is itemID or the
// wildcard and whose trigger version is inside the window, with their
// triggers parsed. A trigger that fails to parse only affects its own
// candidate; the error return is reserved for lookup failures.
func (m *AlertMatcher) FindCandidates(ctx context.Context, worldID, itemID int32) ([]Candidate, error) {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	alerts, err := m.repo.FindAlerts(ctx, repository.AlertQuery{
		WorldID:    worldID,
		ItemID:     itemID,
		MinVersion: m.window.Min,
		MaxVersion: m.window.Max,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find alerts for world %d item %d: %w", worldID, itemID, err)
	}

	candidates := make([]Candidate, 0, len(alerts))
	for _, a := range alerts {
		if !a.MatchesItem(worldID, itemID) || !m.window.Contains(a.TriggerVersion) {
			continue
		}
		c := Candidate{Alert: a}
		rule, err := trigger.ParseString(a.Trigger)
		if err != nil {
			c.Err = fmt.Errorf("alert %d (%s): %w", a.ID, a.Name, err)
		} else {
			c.Rule = rule
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}
