package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishDelivery(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: "worker.activated", Data: map[string]string{"version": "vaultlinks-v1"}})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: worker.activated") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"version":"vaultlinks-v1"`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestPublishCacheEvent_SummaryThrottle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// First event should trigger caches.updated.
	b.PublishCacheEvent(CacheStored, "vaultlinks-api-v1", "http://app/api/vault-links")
	// Second event immediately should NOT trigger another summary.
	b.PublishCacheEvent(CacheDeleted, "vaultlinks-v0", "")
	// Unknown kinds are dropped.
	b.PublishCacheEvent("bogus", "x", "y")

	time.Sleep(50 * time.Millisecond)
	summaryCount := 0
	cacheCount := 0
	var deleted string
loop:
	for {
		select {
		case msg := <-ch:
			s := string(msg)
			switch {
			case strings.Contains(s, "caches.updated"):
				summaryCount++
			case strings.Contains(s, "event: cache.deleted"):
				deleted = s
				cacheCount++
			default:
				cacheCount++
			}
		default:
			break loop
		}
	}

	if cacheCount != 2 {
		t.Errorf("cache events = %d, want 2", cacheCount)
	}
	if summaryCount != 1 {
		t.Errorf("summary events = %d, want 1 (throttled)", summaryCount)
	}
	if strings.Contains(deleted, `"key"`) {
		t.Errorf("whole-cache delete should carry no key: %q", deleted)
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	// Start handler in background.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/__worker/events", nil)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	// Give handler time to subscribe.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.Publish(Event{Type: "notification", Data: map[string]string{"body": "hi"}})
	time.Sleep(50 * time.Millisecond)

	// Cancel context to disconnect.
	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, "event: notification") {
		t.Errorf("handler output missing event: %q", body)
	}

	// Client should be cleaned up.
	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// Fill buffer (capacity 64) and then one more should not block.
	for i := 0; i < 70; i++ {
		b.Publish(Event{Type: "test", Data: map[string]string{"i": "x"}})
	}
	// If we reach here without deadlock, the test passes.
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	// Should be safe no-op after close.
	b.Publish(Event{Type: "notification", Data: map[string]string{"body": "hi"}})
	b.PublishCacheEvent(CacheStored, "c", "k")
}
