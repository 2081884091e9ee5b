package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"universalis-alerts/internal/pipeline"
)

type fakeStore struct{ err error }

func (f fakeStore) Ping(ctx context.Context) error { return f.err }

type fakeStats struct{ s pipeline.Stats }

func (f fakeStats) Stats() pipeline.Stats { return f.s }

func decode(t *testing.T, rec *httptest.ResponseRecorder, data interface{}) {
	t.Helper()
	var body struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Success {
		t.Fatalf("success = false")
	}
	if err := json.Unmarshal(body.Data, data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}

func TestReady(t *testing.T) {
	tests := []struct {
		name       string
		store      Pinger
		wantStatus int
		wantReady  bool
	}{
		{"store ok", fakeStore{}, http.StatusOK, true},
		{"store down", fakeStore{err: errors.New("connection refused")}, http.StatusServiceUnavailable, false},
		{"no store", nil, http.StatusServiceUnavailable, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New("universalis-alerts", tt.store)
			rec := httptest.NewRecorder()
			h.Ready(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ready", nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var resp ReadyResponse
			decode(t, rec, &resp)
			if resp.Ready != tt.wantReady {
				t.Errorf("ready = %v, want %v", resp.Ready, tt.wantReady)
			}
		})
	}
}

func TestStatusReportsDegradedStore(t *testing.T) {
	h := New("universalis-alerts", fakeStore{err: errors.New("down")})
	rec := httptest.NewRecorder()
	h.Status(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	var resp StatusResponse
	decode(t, rec, &resp)
	if resp.Status != "degraded" || resp.Checks.Database != "error" || resp.Service != "universalis-alerts" {
		t.Errorf("status response = %+v", resp)
	}
}

func TestGetStatsIncludesPipelineCounters(t *testing.T) {
	h := NewStatsHandler(fakeStats{pipeline.Stats{Received: 12, Matches: 3}}, "sqlite")
	rec := httptest.NewRecorder()
	h.GetStats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))

	var resp struct {
		DBType   string         `json:"db_type"`
		Pipeline pipeline.Stats `json:"pipeline"`
	}
	decode(t, rec, &resp)
	if resp.DBType != "sqlite" || resp.Pipeline.Received != 12 || resp.Pipeline.Matches != 3 {
		t.Errorf("stats = %+v", resp)
	}
}
