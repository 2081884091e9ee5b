package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"universalis-alerts/internal/handler"
	"universalis-alerts/internal/middleware"
	"universalis-alerts/internal/pipeline"
)

type okStore struct{}

func (okStore) Ping(ctx context.Context) error { return nil }

type noStats struct{}

func (noStats) Stats() pipeline.Stats { return pipeline.Stats{} }

func TestRoutes(t *testing.T) {
	r := New(Config{
		Handler:        handler.New("universalis-alerts", okStore{}),
		StatsHandler:   handler.NewStatsHandler(noStats{}, "sqlite"),
		AuthMiddleware: middleware.NewAPIKeyMiddleware([]string{"secret"}),
	})

	tests := []struct {
		name   string
		method string
		path   string
		key    string
		want   int
	}{
		{"status is public", http.MethodGet, "/api/status", "", http.StatusOK},
		{"health is public", http.MethodGet, "/api/v1/health", "", http.StatusOK},
		{"ready is public", http.MethodGet, "/api/v1/ready", "", http.StatusOK},
		{"stats requires key", http.MethodGet, "/api/v1/stats", "", http.StatusUnauthorized},
		{"stats with key", http.MethodGet, "/api/v1/stats", "secret", http.StatusOK},
		{"unknown route", http.MethodGet, "/api/v1/inventory", "", http.StatusNotFound},
		{"wrong method", http.MethodPost, "/api/v1/health", "", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.key != "" {
				req.Header.Set("X-API-Key", tt.key)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("%s %s = %d, want %d", tt.method, tt.path, rec.Code, tt.want)
			}
		})
	}
}
