package ws

import (
	"testing"

	"collabEngine/backend/internal/collab"
)

func newTestConn(buf int) *Conn {
	return &Conn{
		projects: make(map[string]struct{}),
		files:    make(map[collab.DocKey]struct{}),
		send:     make(chan OutboundMessage, buf),
	}
}

func drain(c *Conn) []OutboundMessage {
	var out []OutboundMessage
	for {
		select {
		case msg := <-c.send:
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestBroadcastFileSkipsSender(t *testing.T) {
	h := NewHub(nil)
	key := collab.DocKey{ProjectID: "p1", FileID: "f1"}
	sender := newTestConn(4)
	other := newTestConn(4)
	h.JoinFile(key, sender)
	h.JoinFile(key, other)

	h.BroadcastFile(key, sender, ServerMessage{Type: "user-joined-file"})

	if got := drain(sender); len(got) != 0 {
		t.Fatalf("sender received its own broadcast: %v", got)
	}
	if got := drain(other); len(got) != 1 {
		t.Fatalf("expected 1 message for the other member, got %d", len(got))
	}
}

func TestBroadcastProjectScopedToRoom(t *testing.T) {
	h := NewHub(nil)
	member := newTestConn(4)
	outsider := newTestConn(4)
	h.JoinProject("p1", member)
	h.JoinProject("p2", outsider)

	h.BroadcastProject("p1", nil, ServerMessage{Type: "user-joined"})

	if got := drain(member); len(got) != 1 {
		t.Fatalf("expected 1 message for the room member, got %d", len(got))
	}
	if got := drain(outsider); len(got) != 0 {
		t.Fatalf("other project's member received the broadcast: %v", got)
	}
}

func TestLeaveFileStopsDelivery(t *testing.T) {
	h := NewHub(nil)
	key := collab.DocKey{ProjectID: "p1", FileID: "f1"}
	c := newTestConn(4)
	h.JoinFile(key, c)
	h.LeaveFile(key, c)

	h.BroadcastFile(key, nil, ServerMessage{Type: "operation-applied"})

	if got := drain(c); len(got) != 0 {
		t.Fatalf("left member received the broadcast: %v", got)
	}
}

func TestEnqueueDropsWhenFull(t *testing.T) {
	c := newTestConn(1)
	c.enqueue(ServerMessage{Type: "a"})
	c.enqueue(ServerMessage{Type: "b"}) // buffer full, must drop

	got := drain(c)
	if len(got) != 1 {
		t.Fatalf("expected exactly 1 buffered message, got %d", len(got))
	}
	if got[0].MessageType() != "a" {
		t.Fatalf("expected the first message to survive, got %q", got[0].MessageType())
	}
}

func TestEnqueueAfterCloseIsNoop(t *testing.T) {
	c := newTestConn(1)
	c.closeSend()
	// must not panic on the closed channel
	c.enqueue(ServerMessage{Type: "late"})
}
