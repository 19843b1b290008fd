package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// mockClient creates a Client with a send channel but no real connection.
func mockClient(hub *Hub, userID, householdID int64) *Client {
	return &Client{
		hub:         hub,
		conn:        nil,
		send:        make(chan []byte, sendBufferSize),
		userID:      userID,
		householdID: householdID,
	}
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data := <-c.send:
		var got Message
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return got
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timeout waiting for message")
		return Message{}
	}
}

func assertSilent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.send:
		t.Fatalf("unexpected message: %s", data)
	default:
	}
}

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(slog.Default())

	c1 := mockClient(hub, 1, 10)
	c2 := mockClient(hub, 2, 10)

	hub.Register(c1)
	hub.Register(c2)
	if got := hub.ClientCount(); got != 2 {
		t.Fatalf("expected 2 clients, got %d", got)
	}

	hub.Unregister(c1)
	if got := hub.ClientCount(); got != 1 {
		t.Fatalf("expected 1 client after unregister, got %d", got)
	}

	hub.Unregister(c2)
	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestDoubleUnregister(t *testing.T) {
	hub := NewHub(slog.Default())
	c := mockClient(hub, 1, 10)
	hub.Register(c)
	hub.Unregister(c)
	// Should not panic
	hub.Unregister(c)

	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestBroadcastHouseholdScoped(t *testing.T) {
	hub := NewHub(slog.Default())

	sameHousehold := mockClient(hub, 1, 10)
	alsoSame := mockClient(hub, 2, 10)
	otherHousehold := mockClient(hub, 3, 20)
	hub.Register(sameHousehold)
	hub.Register(alsoSame)
	hub.Register(otherHousehold)

	hub.BroadcastHousehold(10, ItemEvent("created", 42))

	for _, c := range []*Client{sameHousehold, alsoSame} {
		got := receive(t, c)
		if got.Type != "item_created" {
			t.Errorf("type = %q, want item_created", got.Type)
		}
		if got.ID != 42 {
			t.Errorf("id = %d, want 42", got.ID)
		}
	}
	assertSilent(t, otherHousehold)
}

func TestBroadcastUserScoped(t *testing.T) {
	hub := NewHub(slog.Default())

	phone := mockClient(hub, 1, 10)
	laptop := mockClient(hub, 1, 20)
	stranger := mockClient(hub, 2, 10)
	hub.Register(phone)
	hub.Register(laptop)
	hub.Register(stranger)

	hub.BroadcastUser(1, NoticeEvent(7, "My Kitchen"))

	// Every connection the user holds gets it, regardless of household.
	for _, c := range []*Client{phone, laptop} {
		got := receive(t, c)
		if got.Type != "notice_created" {
			t.Errorf("type = %q, want notice_created", got.Type)
		}
		if got.Extra["household_name"] != "My Kitchen" {
			t.Errorf("household_name = %v, want My Kitchen", got.Extra["household_name"])
		}
	}
	assertSilent(t, stranger)
}

func TestBroadcastEmptyHub(t *testing.T) {
	hub := NewHub(slog.Default())
	// Should not panic
	hub.BroadcastHousehold(10, ShoppingEvent("cleared", 0))
	hub.BroadcastUser(1, EntitlementEvent(false))
}

func TestBroadcastFullBuffer(t *testing.T) {
	hub := NewHub(slog.Default())

	c := mockClient(hub, 1, 10)
	hub.Register(c)

	for i := 0; i < sendBufferSize; i++ {
		hub.BroadcastHousehold(10, ItemEvent("updated", int64(i)))
	}

	// This should drop the message, not panic or block.
	hub.BroadcastHousehold(10, ItemEvent("updated", 999))

	count := 0
	for {
		select {
		case <-c.send:
			count++
		default:
			if count != sendBufferSize {
				t.Errorf("expected %d messages, got %d", sendBufferSize, count)
			}
			hub.Unregister(c)
			return
		}
	}
}

func TestNewMessage(t *testing.T) {
	msg := NewMessage("member", "deactivated", 5, nil)
	if msg.Type != "member_deactivated" {
		t.Errorf("type = %q, want member_deactivated", msg.Type)
	}
	if msg.Entity != "member" || msg.Action != "deactivated" {
		t.Errorf("entity/action = %q/%q", msg.Entity, msg.Action)
	}
	if msg.ID != 5 {
		t.Errorf("id = %d, want 5", msg.ID)
	}
}

func TestConcurrentAccess(t *testing.T) {
	hub := NewHub(slog.Default())
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int64) {
			defer wg.Done()
			c := mockClient(hub, n, 10)
			hub.Register(c)
			hub.BroadcastHousehold(10, ItemEvent("created", n))
			for {
				select {
				case <-c.send:
				default:
					hub.Unregister(c)
					return
				}
			}
		}(int64(i))
	}

	wg.Wait()

	if got := hub.ClientCount(); got != 0 {
		t.Errorf("expected 0 clients after concurrent test, got %d", got)
	}
}
