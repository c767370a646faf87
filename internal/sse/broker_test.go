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

	b.Publish(Event{Type: "export.started", Data: map[string]string{"input": "articles.json"}})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: export.started") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"input":"articles.json"`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func drain(ch chan []byte) (indexCount, other int) {
	time.Sleep(50 * time.Millisecond)
	for {
		select {
		case msg := <-ch:
			if strings.Contains(string(msg), "event: "+IndexUpdated) {
				indexCount++
			} else {
				other++
			}
		default:
			return indexCount, other
		}
	}
}

func TestPublishExportEvent_IndexThrottle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishExportEvent("group.written", map[string]any{"group": "A", "records": 3})
	b.PublishExportEvent("group.written", map[string]any{"group": "B", "records": 0})

	indexCount, other := drain(ch)
	if other != 2 {
		t.Errorf("group events = %d, want 2", other)
	}
	if indexCount != 1 {
		t.Errorf("index events = %d, want 1 (throttled)", indexCount)
	}
}

func TestPublishExportEvent_StartedDoesNotTouchIndex(t *testing.T) {
	b := NewBroker(10 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishExportEvent("export.started", nil)

	indexCount, other := drain(ch)
	if other != 1 || indexCount != 0 {
		t.Errorf("other = %d, index = %d", other, indexCount)
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.PublishExportEvent("export.completed", map[string]any{"status": "ok"})
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, "event: export.completed") {
		t.Errorf("handler output missing event: %q", body)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	b := NewBroker(time.Second)
	ch := b.Subscribe()
	b.Close()
	b.Close()
	if _, ok := <-ch; ok {
		t.Error("client channel should be closed after Close")
	}
	b.PublishExportEvent("group.written", nil)
	if b.ClientCount() != 0 {
		t.Error("closed broker should report 0 clients")
	}
}

func TestIndexUpdatedFollowsTriggeringEvent(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishExportEvent("export.completed", map[string]any{"run_id": 7})

	first, second := <-ch, <-ch
	if !strings.HasPrefix(string(first), "event: export.completed\ndata: {\"run_id\":7}") {
		t.Errorf("first = %q", first)
	}
	if string(second) != "event: "+IndexUpdated+"\ndata: {}\n\n" {
		t.Errorf("second = %q", second)
	}
}

func TestPublish_UnencodableDataIsDropped(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: "bad", Data: func() {}})
	b.Publish(Event{Type: "good", Data: 1})

	if msg := <-ch; !strings.Contains(string(msg), "event: good") {
		t.Errorf("msg = %q, want only the encodable event", msg)
	}
}

func TestSlowClientDoesNotBlockOthers(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()
	slow := b.Subscribe()
	fast := b.Subscribe()
	defer b.Unsubscribe(slow)
	defer b.Unsubscribe(fast)

	for i := 0; i < clientBuffer+10; i++ {
		b.Publish(Event{Type: "tick", Data: i})
		<-fast
	}
	if len(slow) != clientBuffer {
		t.Errorf("slow client buffered %d, want %d", len(slow), clientBuffer)
	}
}

func TestSubscribeAfterClose(t *testing.T) {
	b := NewBroker(time.Second)
	b.Close()
	if _, ok := <-b.Subscribe(); ok {
		t.Error("subscribing to a closed broker should yield a closed channel")
	}
	b.Publish(Event{Type: "late", Data: nil})
}
