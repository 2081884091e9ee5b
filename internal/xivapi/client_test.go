package xivapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"universalis-alerts/internal/cache"
)

func newServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Query().Get("columns") != "ID,Name" {
			t.Errorf("columns = %q", r.URL.Query().Get("columns"))
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/Item/5057":
			_, _ = w.Write([]byte(`{"ID":5057,"Name":"Iron Ingot"}`))
		case "/World/73":
			_, _ = w.Write([]byte(`{"ID":73,"Name":"Adamantoise"}`))
		case "/Item/1":
			_, _ = w.Write([]byte(`{"ID":1,"Name":""}`))
		case "/Item/500":
			http.Error(w, "upstream", http.StatusBadGateway)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestClientNames(t *testing.T) {
	srv, _ := newServer(t)
	c := NewClient(Config{BaseURL: srv.URL + "/"}, nil)
	ctx := context.Background()

	item, err := c.ItemName(ctx, 5057)
	if err != nil || item != "Iron Ingot" {
		t.Fatalf("ItemName = %q, %v", item, err)
	}
	world, err := c.WorldName(ctx, 73)
	if err != nil || world != "Adamantoise" {
		t.Fatalf("WorldName = %q, %v", world, err)
	}
}

func TestClientErrors(t *testing.T) {
	srv, _ := newServer(t)
	c := NewClient(Config{BaseURL: srv.URL}, nil)

	tests := []struct {
		name         string
		id           int32
		wantNotFound bool
	}{
		{"missing", 42, true},
		{"empty name", 1, true},
		{"upstream failure", 500, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.ItemName(context.Background(), tt.id)
			if err == nil {
				t.Fatalf("expected error")
			}
			if errors.Is(err, ErrNotFound) != tt.wantNotFound {
				t.Errorf("errors.Is(ErrNotFound) = %v for %v", !tt.wantNotFound, err)
			}
		})
	}
}

func TestClientCachesNames(t *testing.T) {
	srv, hits := newServer(t)
	mem := cache.NewMemoryCache()
	defer mem.Close()
	c := NewClient(Config{BaseURL: srv.URL, CacheTTL: time.Hour}, mem)

	for i := 0; i < 3; i++ {
		if name, err := c.ItemName(context.Background(), 5057); err != nil || name != "Iron Ingot" {
			t.Fatalf("ItemName = %q, %v", name, err)
		}
	}
	if hits.Load() != 1 {
		t.Errorf("upstream hits = %d, want 1", hits.Load())
	}

	if _, err := c.ItemName(context.Background(), 42); err == nil {
		t.Fatalf("expected error for unknown item")
	}
	if _, err := mem.Get(context.Background(), "xivapi:item:42"); !errors.Is(err, cache.ErrCacheMiss) {
		t.Errorf("failed lookups must not be cached")
	}
}

func TestClientHonorsCancelledContext(t *testing.T) {
	srv, hits := newServer(t)
	c := NewClient(Config{BaseURL: srv.URL, RateLimit: 1}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.ItemName(ctx, 5057); err == nil {
		t.Fatalf("expected error for cancelled context")
	}
	if hits.Load() != 0 {
		t.Errorf("cancelled lookup reached upstream")
	}
}
