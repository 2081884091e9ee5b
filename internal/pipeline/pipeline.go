// Package pipeline wires decoded market events to alert evaluation and
// notification dispatch.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"universalis-alerts/internal/model"
	"universalis-alerts/internal/service"
	"universalis-alerts/internal/stream"
	"universalis-alerts/internal/trigger"
	"universalis-alerts/pkg/uid"
)

// CandidateFinder returns the alerts applicable to a world/item pair.
type CandidateFinder interface {
	FindCandidates(ctx context.Context, worldID, itemID int32) ([]service.Candidate, error)
}

// Notifier delivers a triggered alert.
type Notifier interface {
	Notify(ctx context.Context, alert *model.UserAlert, rule *trigger.Rule, ev *model.MarketUpdateEvent, result float32) error
}

// Stats is a snapshot of the pipeline counters.
type Stats struct {
	Received       int64 `json:"received"`
	DecodeErrors   int64 `json:"decode_errors"`
	LookupErrors   int64 `json:"lookup_errors"`
	Candidates     int64 `json:"candidates"`
	RuleErrors     int64 `json:"rule_errors"`
	Matches        int64 `json:"matches"`
	Dispatched     int64 `json:"dispatched"`
	DispatchErrors int64 `json:"dispatch_errors"`
	InFlight       int64 `json:"in_flight"`
}

// Pipeline processes stream messages concurrently. Messages are handled
// independently and in no particular order; a failure in one message or
// one candidate never affects another.
type Pipeline struct {
	finder   CandidateFinder
	notifier Notifier

	received       atomic.Int64
	decodeErrors   atomic.Int64
	lookupErrors   atomic.Int64
	candidates     atomic.Int64
	ruleErrors     atomic.Int64
	matches        atomic.Int64
	dispatched     atomic.Int64
	dispatchErrors atomic.Int64
	inFlight       atomic.Int64
}

// New creates a pipeline.
func New(finder CandidateFinder, notifier Notifier) *Pipeline {
	return &Pipeline{
		finder:   finder,
		notifier: notifier,
	}
}

// Run consumes messages until the channel is closed, then waits for the
// messages already started to finish. Cancelling ctx does not abort work in
// progress; the producer is expected to close the channel on shutdown.
func (p *Pipeline) Run(ctx context.Context, messages <-chan []byte) {
	workCtx := context.WithoutCancel(ctx)
	var wg sync.WaitGroup

	for data := range messages {
		wg.Add(1)
		p.inFlight.Add(1)
		go func(data []byte) {
			defer wg.Done()
			defer p.inFlight.Add(-1)
			_ = p.Process(workCtx, data)
		}(data)
	}

	wg.Wait()
	log.Printf("[Pipeline] Drained, %d messages received", p.received.Load())
}

// Process handles one raw stream message. The returned error reports a
// message-level failure (decode or lookup); candidate failures are logged
// and counted only.
func (p *Pipeline) Process(ctx context.Context, data []byte) error {
	p.received.Add(1)
	traceID := uid.Short(uid.New())

	ev, err := stream.DecodeEvent(data)
	if err != nil {
		p.decodeErrors.Add(1)
		log.Printf("[Pipeline] [%s] Skipping message: %v", traceID, err)
		return err
	}

	candidates, err := p.finder.FindCandidates(ctx, ev.WorldID, ev.ItemID)
	if err != nil {
		p.lookupErrors.Add(1)
		log.Printf("[Pipeline] [%s] Lookup failed: %v", traceID, err)
		return err
	}
	p.candidates.Add(int64(len(candidates)))

	var wg sync.WaitGroup
	for i := range candidates {
		wg.Add(1)
		go func(c *service.Candidate) {
			defer wg.Done()
			p.handle(ctx, traceID, c, &ev)
		}(&candidates[i])
	}
	wg.Wait()
	return nil
}

func (p *Pipeline) handle(ctx context.Context, traceID string, c *service.Candidate, ev *model.MarketUpdateEvent) {
	dispatching := false
	defer func() {
		if r := recover(); r != nil {
			if dispatching {
				p.dispatchErrors.Add(1)
			} else {
				p.ruleErrors.Add(1)
			}
			log.Printf("[Pipeline] [%s] PANIC in alert %d: %v\n%s", traceID, c.Alert.ID, r, debug.Stack())
		}
	}()

	if c.Err != nil {
		p.ruleErrors.Add(1)
		log.Printf("[Pipeline] [%s] Skipping alert with invalid trigger: %v", traceID, c.Err)
		return
	}

	result, ok := trigger.Evaluate(c.Rule, ev.Listings)
	if !ok {
		return
	}
	p.matches.Add(1)

	dispatching = true
	if err := p.notifier.Notify(ctx, &c.Alert, c.Rule, ev, result); err != nil {
		p.dispatchErrors.Add(1)
		log.Printf("[Pipeline] [%s] %v", traceID, fmt.Errorf("failed to notify alert %d (%s): %w", c.Alert.ID, c.Alert.Name, err))
		return
	}
	if c.Alert.HasEndpoint() {
		p.dispatched.Add(1)
	}
}

// Stats returns a snapshot of the counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Received:       p.received.Load(),
		DecodeErrors:   p.decodeErrors.Load(),
		LookupErrors:   p.lookupErrors.Load(),
		Candidates:     p.candidates.Load(),
		RuleErrors:     p.ruleErrors.Load(),
		Matches:        p.matches.Load(),
		Dispatched:     p.dispatched.Load(),
		DispatchErrors: p.dispatchErrors.Load(),
		InFlight:       p.inFlight.Load(),
	}
}
