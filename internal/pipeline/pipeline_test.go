package pipeline

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"go.mongodb.org/mongo-driver/bson"

	"universalis-alerts/internal/model"
	"universalis-alerts/internal/service"
	"universalis-alerts/internal/stream"
	"universalis-alerts/internal/trigger"
)

type fakeFinder struct {
	candidates []service.Candidate
	err        error
}

func (f *fakeFinder) FindCandidates(ctx context.Context, worldID, itemID int32) ([]service.Candidate, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]service.Candidate, 0, len(f.candidates))
	for _, c := range f.candidates {
		if c.Alert.MatchesItem(worldID, itemID) {
			out = append(out, c)
		}
	}
	return out, nil
}

type sent struct {
	alertID int64
	result  float32
}

type fakeNotifier struct {
	mu      sync.Mutex
	sent    []sent
	failFor map[int64]error
	panicOn int64
}

func (n *fakeNotifier) Notify(ctx context.Context, alert *model.UserAlert, rule *trigger.Rule, ev *model.MarketUpdateEvent, result float32) error {
	if alert.ID == n.panicOn {
		panic("notifier exploded")
	}
	if err := n.failFor[alert.ID]; err != nil {
		return err
	}
	if !alert.HasEndpoint() {
		return nil
	}
	n.mu.Lock()
	n.sent = append(n.sent, sent{alert.ID, result})
	n.mu.Unlock()
	return nil
}

func (n *fakeNotifier) sentIDs() []int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	ids := make([]int64, len(n.sent))
	for i, s := range n.sent {
		ids[i] = s.alertID
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func candidate(t *testing.T, id int64, hook string, text string) service.Candidate {
	t.Helper()
	a := model.UserAlert{ID: id, Name: "alert", WorldID: 73, ItemID: 5057, DiscordWebhook: hook, Trigger: text}
	rule, err := trigger.ParseString(text)
	if err != nil {
		return service.Candidate{Alert: a, Err: err}
	}
	return service.Candidate{Alert: a, Rule: rule}
}

func message(t *testing.T, prices ...int32) []byte {
	t.Helper()
	listings := bson.A{}
	for _, p := range prices {
		listings = append(listings, bson.D{{Key: "price_per_unit", Value: p}, {Key: "quantity", Value: int32(1)}, {Key: "hq", Value: false}})
	}
	data, err := bson.Marshal(bson.D{
		{Key: "world_id", Value: int32(73)},
		{Key: "item_id", Value: int32(5057)},
		{Key: "listings", Value: listings},
	})
	if err != nil {
		t.Fatalf("bson.Marshal: %v", err)
	}
	return data
}

const (
	cheap = `{"mode":"any","when":{"field":"price","op":"<","value":110}}`
	all   = `{"mode":"all","when":{"field":"price","op":"<","value":110}}`
	hook  = "https://discord.test/hook"
)

func TestProcessAnyAndAll(t *testing.T) {
	n := &fakeNotifier{}
	p := New(&fakeFinder{candidates: []service.Candidate{
		candidate(t, 1, hook, cheap),
		candidate(t, 2, hook, all),
	}}, n)

	if err := p.Process(context.Background(), message(t, 100, 90, 120)); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(n.sent) != 1 || n.sent[0].alertID != 1 || n.sent[0].result != 90 {
		t.Fatalf("sent = %+v, want only alert 1 with 90", n.sent)
	}
	s := p.Stats()
	if s.Received != 1 || s.Candidates != 2 || s.Matches != 1 || s.Dispatched != 1 {
		t.Errorf("stats = %+v", s)
	}
}

func TestProcessInertAlertIsNotDispatched(t *testing.T) {
	n := &fakeNotifier{}
	p := New(&fakeFinder{candidates: []service.Candidate{candidate(t, 1, "", cheap)}}, n)

	if err := p.Process(context.Background(), message(t, 10)); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(n.sent) != 0 {
		t.Errorf("inert alert dispatched: %+v", n.sent)
	}
	if s := p.Stats(); s.Matches != 1 || s.Dispatched != 0 {
		t.Errorf("stats = %+v", s)
	}
}

func TestProcessIsolatesCandidates(t *testing.T) {
	n := &fakeNotifier{
		failFor: map[int64]error{2: errors.New("webhook gone")},
		panicOn: 3,
	}
	p := New(&fakeFinder{candidates: []service.Candidate{
		candidate(t, 1, hook, cheap),
		candidate(t, 2, hook, cheap),
		candidate(t, 3, hook, cheap),
		candidate(t, 4, hook, `{"when":`),
		candidate(t, 5, hook, cheap),
	}}, n)

	if err := p.Process(context.Background(), message(t, 50)); err != nil {
		t.Fatalf("Process: %v", err)
	}
	got := n.sentIDs()
	if len(got) != 2 || got[0] != 1 || got[1] != 5 {
		t.Errorf("dispatched = %v, want [1 5]", got)
	}
	s := p.Stats()
	if s.RuleErrors != 1 || s.DispatchErrors != 2 || s.Dispatched != 2 {
		t.Errorf("stats = %+v", s)
	}
}

func TestProcessMessageErrors(t *testing.T) {
	lookupErr := errors.New("db down")

	p := New(&fakeFinder{err: lookupErr}, &fakeNotifier{})
	if err := p.Process(context.Background(), message(t, 1)); !errors.Is(err, lookupErr) {
		t.Errorf("Process err = %v, want %v", err, lookupErr)
	}

	if err := p.Process(context.Background(), []byte("garbage")); !errors.Is(err, stream.ErrMalformedMessage) {
		t.Errorf("Process err = %v, want ErrMalformedMessage", err)
	}

	if s := p.Stats(); s.Received != 2 || s.LookupErrors != 1 || s.DecodeErrors != 1 {
		t.Errorf("stats = %+v", s)
	}
}

func TestRunContinuesAfterMalformedMessage(t *testing.T) {
	n := &fakeNotifier{}
	p := New(&fakeFinder{candidates: []service.Candidate{candidate(t, 1, hook, cheap)}}, n)

	messages := make(chan []byte, 3)
	messages <- []byte{0x05, 0x00}
	messages <- message(t, 100, 90, 120)
	messages <- message(t, 500)
	close(messages)

	p.Run(context.Background(), messages)

	if len(n.sent) != 1 || n.sent[0].result != 90 {
		t.Fatalf("sent = %+v, want one notification with 90", n.sent)
	}
	s := p.Stats()
	if s.Received != 3 || s.DecodeErrors != 1 || s.InFlight != 0 {
		t.Errorf("stats = %+v", s)
	}
}

func TestRunFinishesInFlightAfterCancel(t *testing.T) {
	n := &fakeNotifier{}
	p := New(&fakeFinder{candidates: []service.Candidate{candidate(t, 1, hook, cheap)}}, n)

	ctx, cancel := context.WithCancel(context.Background())
	messages := make(chan []byte, 1)
	messages <- message(t, 10)
	cancel()
	close(messages)

	p.Run(ctx, messages)
	if len(n.sent) != 1 {
		t.Errorf("sent = %+v, want the queued message processed", n.sent)
	}
}

func TestPanicBeforeDispatchCountsAsRuleError(t *testing.T) {
	broken := service.Candidate{
		Alert: model.UserAlert{ID: 9, WorldID: 73, ItemID: 5057, DiscordWebhook: hook},
		Rule:  &trigger.Rule{Mode: trigger.ModeAny, When: trigger.And{Children: []trigger.Node{nil}}},
	}
	n := &fakeNotifier{}
	p := New(&fakeFinder{candidates: []service.Candidate{broken, candidate(t, 1, hook, cheap)}}, n)

	if err := p.Process(context.Background(), message(t, 50)); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if got := n.sentIDs(); len(got) != 1 || got[0] != 1 {
		t.Errorf("dispatched = %v, want [1]", got)
	}
	if s := p.Stats(); s.RuleErrors != 1 || s.DispatchErrors != 0 || s.Matches != 1 {
		t.Errorf("stats = %+v", s)
	}
}
