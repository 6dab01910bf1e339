package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/canvashq/canvas/internal/model"
	"github.com/canvashq/canvas/internal/notice"
)

// mockSubscriber has a send channel but no real connection.
func mockSubscriber(hub *Hub) *Subscriber {
	return &Subscriber{
		hub:  hub,
		conn: nil,
		send: make(chan []byte, sendBufferSize),
	}
}

func TestAttachDetach(t *testing.T) {
	hub := NewHub(slog.Default())

	s1 := mockSubscriber(hub)
	s2 := mockSubscriber(hub)

	hub.Attach(s1)
	hub.Attach(s2)

	if got := hub.SubscriberCount(); got != 2 {
		t.Fatalf("expected 2 subscribers, got %d", got)
	}

	hub.Detach(s1)

	if got := hub.SubscriberCount(); got != 1 {
		t.Fatalf("expected 1 subscriber after detach, got %d", got)
	}

	hub.Detach(s2)

	if got := hub.SubscriberCount(); got != 0 {
		t.Fatalf("expected 0 subscribers, got %d", got)
	}
}

func TestDoubleDetach(t *testing.T) {
	hub := NewHub(slog.Default())
	s := mockSubscriber(hub)
	hub.Attach(s)
	hub.Detach(s)
	// Should not panic
	hub.Detach(s)

	if got := hub.SubscriberCount(); got != 0 {
		t.Fatalf("expected 0 subscribers, got %d", got)
	}
}

func TestBroadcast(t *testing.T) {
	hub := NewHub(slog.Default())

	s1 := mockSubscriber(hub)
	s2 := mockSubscriber(hub)
	hub.Attach(s1)
	hub.Attach(s2)

	msg := NewMessage("ledger_entry", "created", 42, map[string]any{"account_id": float64(1)})
	hub.Broadcast(msg)

	for _, s := range []*Subscriber{s1, s2} {
		select {
		case data := <-s.send:
			var got Message
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got.Type != "ledger_entry_created" {
				t.Errorf("expected type ledger_entry_created, got %s", got.Type)
			}
			if got.Entity != "ledger_entry" {
				t.Errorf("expected entity ledger_entry, got %s", got.Entity)
			}
			if got.ID != 42 {
				t.Errorf("expected id 42, got %d", got.ID)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatal("timeout waiting for message")
		}
	}

	hub.Detach(s1)
	hub.Detach(s2)
}

func TestBroadcastEmptyHub(t *testing.T) {
	hub := NewHub(slog.Default())
	// Should not panic
	hub.Broadcast(NewMessage("proposal", "finalized", 1, nil))
}

func TestBroadcastFullBuffer(t *testing.T) {
	hub := NewHub(slog.Default())

	s := mockSubscriber(hub)
	hub.Attach(s)

	// Fill the send buffer
	for i := 0; i < sendBufferSize; i++ {
		hub.Broadcast(NewMessage("test", "fill", int64(i), nil))
	}

	// This should drop the message, not panic or block
	hub.Broadcast(NewMessage("test", "dropped", 999, nil))

	// Drain to verify the buffer was full
	count := 0
	for {
		select {
		case <-s.send:
			count++
		default:
			goto done
		}
	}
done:
	if count != sendBufferSize {
		t.Errorf("expected %d messages, got %d", sendBufferSize, count)
	}

	hub.Detach(s)
}

func TestNewMessage(t *testing.T) {
	msg := NewMessage("proposal", "activated", 5, nil)
	if msg.Type != "proposal_activated" {
		t.Errorf("expected type proposal_activated, got %s", msg.Type)
	}
	if msg.Entity != "proposal" {
		t.Errorf("expected entity proposal, got %s", msg.Entity)
	}
	if msg.Action != "activated" {
		t.Errorf("expected action activated, got %s", msg.Action)
	}
	if msg.ID != 5 {
		t.Errorf("expected id 5, got %d", msg.ID)
	}
}

func TestHubPublisher(t *testing.T) {
	hub := NewHub(slog.Default())
	s := mockSubscriber(hub)
	hub.Attach(s)
	defer hub.Detach(s)

	pub := NewHubPublisher(hub)
	n := notice.New("Points airdrop", "5 points credited to 3 accounts", "launch celebration", 1, time.Now().UTC())
	pub.Publish(n)

	select {
	case data := <-s.send:
		var got Message
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.Type != "notice_published" {
			t.Errorf("expected type notice_published, got %s", got.Type)
		}
		if got.Extra["title"] != "Points airdrop" {
			t.Errorf("expected title in extra, got %v", got.Extra["title"])
		}
		if got.Extra["notice_id"] != n.ID {
			t.Errorf("expected notice_id %q, got %v", n.ID, got.Extra["notice_id"])
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for notice broadcast")
	}
}

func TestBroadcastLedgerEntry(t *testing.T) {
	hub := NewHub(slog.Default())
	s := mockSubscriber(hub)
	hub.Attach(s)
	defer hub.Detach(s)

	entry := &model.PointTransaction{
		ID:        7,
		AccountID: 3,
		Amount:    decimal.RequireFromString("2"),
		Type:      model.TxTaskReward,
	}
	BroadcastLedgerEntry(hub, entry)

	select {
	case data := <-s.send:
		var got Message
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.Type != "ledger_entry_created" {
			t.Errorf("expected type ledger_entry_created, got %s", got.Type)
		}
		if got.ID != entry.ID {
			t.Errorf("expected id %d, got %d", entry.ID, got.ID)
		}
		if got.Extra["account_id"] != float64(entry.AccountID) {
			t.Errorf("expected account_id %d, got %v", entry.AccountID, got.Extra["account_id"])
		}
		if got.Extra["type"] != string(model.TxTaskReward) {
			t.Errorf("expected type task_reward, got %v", got.Extra["type"])
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for ledger broadcast")
	}
}

func TestConcurrentAccess(t *testing.T) {
	hub := NewHub(slog.Default())
	var wg sync.WaitGroup

	// Attach, broadcast, and detach concurrently
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := mockSubscriber(hub)
			hub.Attach(s)
			hub.Broadcast(NewMessage("test", "concurrent", 0, nil))
			for {
				select {
				case <-s.send:
				default:
					hub.Detach(s)
					return
				}
			}
		}()
	}

	wg.Wait()

	if got := hub.SubscriberCount(); got != 0 {
		t.Errorf("expected 0 subscribers after concurrent test, got %d", got)
	}
}
