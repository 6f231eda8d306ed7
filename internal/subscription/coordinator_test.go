package subscription

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/clobsync/polymarket-data/internal/events"
)

// fakeSender records wire messages and can simulate a down connection.
type fakeSender struct {
	mu   sync.Mutex
	ok   bool
	sent []wireRequest
}

func newFakeSender() *fakeSender { return &fakeSender{ok: true} }

func (f *fakeSender) SendJSON(v any) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.ok {
		return false
	}
	if req, is := v.(wireRequest); is {
		f.sent = append(f.sent, req)
	}
	return true
}

func (f *fakeSender) setOK(ok bool) {
	f.mu.Lock()
	f.ok = ok
	f.mu.Unlock()
}

func (f *fakeSender) requests() []wireRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]wireRequest(nil), f.sent...)
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.BatchDelay = 5 * time.Millisecond
	cfg.SubscriptionTimeout = 50 * time.Millisecond
	cfg.InitialRetryDelay = 5 * time.Millisecond
	cfg.StaleCheckInterval = 10 * time.Millisecond
	cfg.StaleSubscriptionThreshold = 20 * time.Millisecond
	return cfg
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestSubscribeValidation(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxTokensPerSubscription = 2
	cfg.MaxSubscriptionsPerConnection = 1
	c := NewCoordinator(cfg, newFakeSender(), nil)
	defer c.Dispose()

	if _, err := c.Subscribe(nil, Options{}); !errors.Is(err, ErrNoTokens) {
		t.Errorf("empty tokens: err = %v, want ErrNoTokens", err)
	}

	var limitErr *LimitError
	if _, err := c.Subscribe([]string{"a", "b", "c"}, Options{}); !errors.As(err, &limitErr) {
		t.Errorf("token limit: err = %v, want LimitError", err)
	}

	if _, err := c.Subscribe([]string{"tok-1"}, Options{}); err != nil {
		t.Fatalf("first subscribe failed: %v", err)
	}
	if _, err := c.Subscribe([]string{"tok-1"}, Options{}); !errors.Is(err, ErrTokenConflict) {
		t.Errorf("token conflict: err = %v, want ErrTokenConflict", err)
	}
	if _, err := c.Subscribe([]string{"tok-2"}, Options{}); !errors.As(err, &limitErr) {
		t.Errorf("subscription limit: err = %v, want LimitError", err)
	}
}

func TestImmediateDispatchAndConfirmation(t *testing.T) {
	sender := newFakeSender()
	c := NewCoordinator(fastConfig(), sender, nil)
	defer c.Dispose()

	ticket, err := c.Subscribe([]string{"tok-1"}, Options{Channel: "market", Immediate: true})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	reqs := sender.requests()
	if len(reqs) != 1 {
		t.Fatalf("sent %d requests, want 1", len(reqs))
	}
	if reqs[0].Type != "subscribe" || reqs[0].Market != "tok-1" || reqs[0].Channel != "market" {
		t.Errorf("unexpected wire request: %+v", reqs[0])
	}

	c.HandleConfirmation(reqs[0].ID, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	sub, err := ticket.Await(ctx)
	if err != nil {
		t.Fatalf("Await failed: %v", err)
	}
	if sub.Status != StatusActive || !sub.Confirmed {
		t.Errorf("sub = %+v, want active and confirmed", sub)
	}
}

func TestConfirmationByTokenOverlap(t *testing.T) {
	sender := newFakeSender()
	c := NewCoordinator(fastConfig(), sender, nil)
	defer c.Dispose()

	ticket, err := c.Subscribe([]string{"tok-1", "tok-2"}, Options{Immediate: true})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	c.HandleConfirmation("", []string{"tok-2"})

	select {
	case <-ticket.Done():
	case <-time.After(time.Second):
		t.Fatal("ticket not settled by token-overlap confirmation")
	}
	if sub, err := ticket.Result(); err != nil || sub.Status != StatusActive {
		t.Errorf("Result = (%+v, %v), want active", sub, err)
	}
}

func TestBatchFlushPriorityOrder(t *testing.T) {
	sender := newFakeSender()
	c := NewCoordinator(fastConfig(), sender, nil)
	defer c.Dispose()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Distinct channels so the flush cannot coalesce them.
	if _, err := c.Subscribe([]string{"low"}, Options{Channel: "a", Priority: 1}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if _, err := c.Subscribe([]string{"high"}, Options{Channel: "b", Priority: 9}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	waitFor(t, time.Second, func() bool { return len(sender.requests()) == 2 })
	reqs := sender.requests()
	if reqs[0].Market != "high" || reqs[1].Market != "low" {
		t.Errorf("dispatch order = [%s %s], want high before low", reqs[0].Market, reqs[1].Market)
	}
}

func TestBatchCoalescesSameChannel(t *testing.T) {
	sender := newFakeSender()
	c := NewCoordinator(fastConfig(), sender, nil)
	defer c.Dispose()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if _, err := c.Subscribe([]string{"tok-1"}, Options{Channel: "market"}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if _, err := c.Subscribe([]string{"tok-2"}, Options{Channel: "market"}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	waitFor(t, time.Second, func() bool { return len(sender.requests()) >= 1 })
	reqs := sender.requests()
	if len(reqs) != 1 {
		t.Fatalf("sent %d requests, want 1 coalesced message", len(reqs))
	}
	if len(reqs[0].AssetIDs) != 2 || reqs[0].ID != "" {
		t.Errorf("coalesced request = %+v, want two assets and no id", reqs[0])
	}
}

func TestOptimisticConfirmationOnTimeout(t *testing.T) {
	sender := newFakeSender()
	c := NewCoordinator(fastConfig(), sender, nil)
	defer c.Dispose()

	diags, cancelDiags := c.Diagnostics().Subscribe()
	defer cancelDiags()
	confirms, cancelConfirms := c.Confirmations().Subscribe()
	defer cancelConfirms()

	ticket, err := c.Subscribe([]string{"tok-1"}, Options{Immediate: true})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	sub, err := ticket.Await(ctx)
	if err != nil {
		t.Fatalf("Await failed: %v", err)
	}
	if sub.Status != StatusActive || !sub.Confirmed {
		t.Errorf("sub = %+v, want active and confirmed", sub)
	}

	select {
	case ev := <-confirms:
		if !ev.Optimistic {
			t.Error("confirmation event not flagged optimistic")
		}
	case <-time.After(time.Second):
		t.Fatal("no confirmation event")
	}
	select {
	case d := <-diags:
		if d.Code != "confirm_timeout" || d.Severity != events.SeverityError {
			t.Errorf("diagnostic = %+v, want error confirm_timeout", d)
		}
	case <-time.After(time.Second):
		t.Fatal("no diagnostic for optimistic confirmation")
	}
}

func TestRetriesExhaustedRejectsTicket(t *testing.T) {
	sender := newFakeSender()
	sender.setOK(false)
	cfg := fastConfig()
	cfg.MaxRetries = 2
	c := NewCoordinator(cfg, sender, nil)
	defer c.Dispose()

	failures, cancelFailures := c.Failures().Subscribe()
	defer cancelFailures()

	ticket, err := c.Subscribe([]string{"tok-1"}, Options{Immediate: true})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = ticket.Await(ctx)

	var exhausted *RetriesExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("ticket err = %v, want RetriesExhaustedError", err)
	}
	if !errors.Is(err, ErrSendFailed) {
		t.Errorf("exhausted error should unwrap to the last cause, got %v", err)
	}

	select {
	case ev := <-failures:
		if ev.Retries != 2 {
			t.Errorf("failure event retries = %d, want 2", ev.Retries)
		}
	case <-time.After(time.Second):
		t.Fatal("no failure event")
	}

	// The token mapping is released so it can be claimed again.
	sender.setOK(true)
	if _, err := c.Subscribe([]string{"tok-1"}, Options{Immediate: true}); err != nil {
		t.Errorf("resubscribe after permanent failure: %v", err)
	}
}

func TestHandleErrorRetriesThenConfirms(t *testing.T) {
	sender := newFakeSender()
	c := NewCoordinator(fastConfig(), sender, nil)
	defer c.Dispose()

	ticket, err := c.Subscribe([]string{"tok-1"}, Options{Immediate: true})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	first := sender.requests()
	if len(first) != 1 {
		t.Fatalf("sent %d requests, want 1", len(first))
	}
	id := first[0].ID

	if err := c.HandleError(id, errors.New("server rejected")); err != nil {
		t.Fatalf("HandleError failed: %v", err)
	}

	// Retry timer re-dispatches the same subscription.
	waitFor(t, time.Second, func() bool { return len(sender.requests()) == 2 })
	c.HandleConfirmation(id, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	sub, err := ticket.Await(ctx)
	if err != nil {
		t.Fatalf("Await failed: %v", err)
	}
	if sub.RetryCount != 1 || sub.Status != StatusActive {
		t.Errorf("sub = %+v, want active after one retry", sub)
	}

	if err := c.HandleError("nope", errors.New("x")); !errors.Is(err, ErrNotFound) {
		t.Errorf("HandleError(unknown) = %v, want ErrNotFound", err)
	}
}

func TestUnsubscribeSendsAndRemoves(t *testing.T) {
	sender := newFakeSender()
	c := NewCoordinator(fastConfig(), sender, nil)
	defer c.Dispose()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	ticket, err := c.Subscribe([]string{"tok-1"}, Options{Channel: "market", Immediate: true})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	id := sender.requests()[0].ID
	c.HandleConfirmation(id, nil)
	<-ticket.Done()

	if err := c.Unsubscribe(id); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}
	if _, ok := c.Get(id); ok {
		t.Error("subscription still present after Unsubscribe")
	}
	if err := c.Unsubscribe(id); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Unsubscribe = %v, want ErrNotFound", err)
	}

	waitFor(t, time.Second, func() bool {
		for _, req := range sender.requests() {
			if req.Type == "unsubscribe" && req.Market == "tok-1" {
				return true
			}
		}
		return false
	})

	// The freed token is immediately claimable.
	if _, err := c.Subscribe([]string{"tok-1"}, Options{Immediate: true}); err != nil {
		t.Errorf("resubscribe freed token: %v", err)
	}
}

func TestUnsubscribeByTokenAndAll(t *testing.T) {
	sender := newFakeSender()
	c := NewCoordinator(fastConfig(), sender, nil)
	defer c.Dispose()

	if _, err := c.Subscribe([]string{"tok-1"}, Options{Immediate: true}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if _, err := c.Subscribe([]string{"tok-2"}, Options{Immediate: true}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	if err := c.UnsubscribeByToken("tok-1"); err != nil {
		t.Fatalf("UnsubscribeByToken failed: %v", err)
	}
	if err := c.UnsubscribeByToken("tok-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("repeat UnsubscribeByToken = %v, want ErrNotFound", err)
	}
	if err := c.UnsubscribeAll(); err != nil {
		t.Fatalf("UnsubscribeAll failed: %v", err)
	}
	if counts := c.Counts(); counts.Total != 0 {
		t.Errorf("Total = %d after UnsubscribeAll, want 0", counts.Total)
	}
}

func TestPauseResume(t *testing.T) {
	sender := newFakeSender()
	c := NewCoordinator(fastConfig(), sender, nil)
	defer c.Dispose()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if _, err := c.Subscribe([]string{"tok-1"}, Options{Immediate: true}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	id := sender.requests()[0].ID
	c.HandleConfirmation(id, nil)

	if err := c.Pause(id); err != nil {
		t.Fatalf("Pause failed: %v", err)
	}
	if sub, _ := c.Get(id); sub.Status != StatusPaused {
		t.Errorf("status = %s after Pause, want paused", sub.Status)
	}
	if got := c.SubscriptionsToRestore(); len(got) != 0 {
		t.Errorf("paused subscription offered for restore: %+v", got)
	}

	if err := c.Resume(id); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	waitFor(t, time.Second, func() bool { return len(sender.requests()) >= 2 })
	c.HandleConfirmation(id, nil)
	if sub, _ := c.Get(id); sub.Status != StatusActive {
		t.Errorf("status = %s after Resume and confirm, want active", sub.Status)
	}
}

func TestMarkDisconnectedAndRestore(t *testing.T) {
	sender := newFakeSender()
	c := NewCoordinator(fastConfig(), sender, nil)
	defer c.Dispose()

	if _, err := c.Subscribe([]string{"tok-1"}, Options{Immediate: true, Priority: 1}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	noAuto := false
	if _, err := c.Subscribe([]string{"tok-2"}, Options{Immediate: true, AutoResubscribe: &noAuto}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	for _, req := range sender.requests() {
		c.HandleConfirmation(req.ID, nil)
	}

	c.MarkDisconnected()

	for _, sub := range c.Filter(nil) {
		if sub.Status != StatusPending || sub.Confirmed {
			t.Errorf("sub %s = %s confirmed=%t after disconnect, want pending unconfirmed",
				sub.ID, sub.Status, sub.Confirmed)
		}
	}

	restore := c.SubscriptionsToRestore()
	if len(restore) != 1 || restore[0].Tokens[0] != "tok-1" {
		t.Fatalf("restore set = %+v, want only the auto-resubscribe entry", restore)
	}

	before := len(sender.requests())
	if err := c.Restore(restore[0].ID); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if len(sender.requests()) != before+1 {
		t.Error("Restore did not re-dispatch the subscription")
	}
	c.HandleConfirmation(restore[0].ID, nil)
	if sub, _ := c.Get(restore[0].ID); sub.Status != StatusActive {
		t.Errorf("status = %s after restore confirm, want active", sub.Status)
	}

	if err := c.Restore("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Restore(unknown) = %v, want ErrNotFound", err)
	}
}

func TestRestoreSendFailureEntersRetryPath(t *testing.T) {
	sender := newFakeSender()
	c := NewCoordinator(fastConfig(), sender, nil)
	defer c.Dispose()

	if _, err := c.Subscribe([]string{"tok-1"}, Options{Immediate: true}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	id := sender.requests()[0].ID
	c.HandleConfirmation(id, nil)
	c.MarkDisconnected()

	sender.setOK(false)
	if err := c.Restore(id); !errors.Is(err, ErrSendFailed) {
		t.Fatalf("Restore on dead sender = %v, want ErrSendFailed", err)
	}
	if sub, _ := c.Get(id); sub.RetryCount == 0 {
		t.Error("restore failure did not advance the retry count")
	}

	// Once the sender recovers the retry timer re-dispatches.
	sender.setOK(true)
	waitFor(t, time.Second, func() bool { return len(sender.requests()) >= 2 })
}

func TestStaleScanAndActivity(t *testing.T) {
	sender := newFakeSender()
	c := NewCoordinator(fastConfig(), sender, nil)
	defer c.Dispose()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	stales, cancelStales := c.Stales().Subscribe()
	defer cancelStales()

	if _, err := c.Subscribe([]string{"tok-1"}, Options{Immediate: true}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	id := sender.requests()[0].ID
	c.HandleConfirmation(id, nil)

	select {
	case ev := <-stales:
		if ev.SubID != id {
			t.Errorf("stale event for %s, want %s", ev.SubID, id)
		}
	case <-time.After(time.Second):
		t.Fatal("no stale event")
	}
	if c.Counts().Stale != 1 {
		t.Errorf("Stale count = %d, want 1", c.Counts().Stale)
	}

	c.MarkActivity("tok-1")
	if c.Counts().Stale != 0 {
		t.Error("MarkActivity did not clear the stale flag")
	}
	if sub, _ := c.Get(id); sub.UpdateCount != 1 {
		t.Errorf("UpdateCount = %d, want 1", sub.UpdateCount)
	}
}

func TestHealthBuckets(t *testing.T) {
	sender := newFakeSender()
	c := NewCoordinator(fastConfig(), sender, nil)
	defer c.Dispose()

	if h := c.Health(); h.Status != HealthHealthy || h.Score != 100 {
		t.Errorf("empty coordinator health = %+v, want healthy 100", h)
	}

	if _, err := c.Subscribe([]string{"tok-1"}, Options{Immediate: true}); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	id := sender.requests()[0].ID
	c.HandleConfirmation(id, nil)

	if h := c.Health(); h.Status != HealthHealthy {
		t.Errorf("all-active health = %+v, want healthy", h)
	}

	c.MarkDisconnected()
	if h := c.Health(); h.Status == HealthHealthy {
		t.Errorf("all-pending health = %+v, want degraded or worse", h)
	}
	if h := c.Health(); len(h.Recommendations) == 0 {
		t.Error("unconfirmed population should yield a recommendation")
	}
}

func TestDisposeIsTerminal(t *testing.T) {
	sender := newFakeSender()
	c := NewCoordinator(fastConfig(), sender, nil)

	ticket, err := c.Subscribe([]string{"tok-1"}, Options{})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	c.Dispose()
	c.Dispose() // idempotent

	if _, err := c.Subscribe([]string{"tok-2"}, Options{}); !errors.Is(err, ErrDisposed) {
		t.Errorf("Subscribe after Dispose = %v, want ErrDisposed", err)
	}
	select {
	case <-ticket.Done():
		t.Error("pending ticket settled by Dispose; it should stay unsettled")
	default:
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := ticket.Await(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Await on dropped ticket = %v, want deadline exceeded", err)
	}
}
