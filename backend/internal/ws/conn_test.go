package ws

import (
	"context"
	"testing"
)

// A handler blowing up on one message must not tear down the
// connection: the client gets an INTERNAL error event and later
// messages keep being served.
func TestDispatchRecoversHandlerPanic(t *testing.T) {
	c := newTestConn(4)

	boom := func(*Conn, context.Context, ClientMessage) {
		panic("boom")
	}
	c.dispatch(context.Background(), boom, ClientMessage{Cmd: CmdOperation})

	got := drain(c)
	if len(got) != 1 {
		t.Fatalf("expected 1 message after recovered panic, got %d", len(got))
	}
	em, ok := got[0].(ErrorMessage)
	if !ok || em.Code != "INTERNAL" {
		t.Fatalf("expected INTERNAL error event, got %#v", got[0])
	}

	// the connection still dispatches after the recover
	c.dispatch(context.Background(), func(c *Conn, _ context.Context, _ ClientMessage) {
		c.enqueue(ServerMessage{Type: "heartbeat-ack"})
	}, ClientMessage{Cmd: CmdHeartbeat})

	got = drain(c)
	if len(got) != 1 || got[0].MessageType() != "heartbeat-ack" {
		t.Fatalf("connection unusable after recovered panic: %v", got)
	}
}
