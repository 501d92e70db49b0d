package cache

import (
	"context"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
)

func testClient(t *testing.T) *redis.Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("skip: redis not available: %v", err)
	}
	t.Cleanup(func() {
		rdb.FlushDB(context.Background())
		rdb.Close()
	})
	return rdb
}

func TestFileRoomMembership(t *testing.T) {
	ctx := context.Background()
	p := NewRedisPresence(testClient(t))

	if err := p.AddFileMember(ctx, "p1", "f1", 1, "alice", time.Minute); err != nil {
		t.Fatalf("AddFileMember error: %v", err)
	}
	if err := p.AddFileMember(ctx, "p1", "f1", 2, "bob", time.Minute); err != nil {
		t.Fatalf("AddFileMember error: %v", err)
	}

	members, err := p.AliveFileMembers(ctx, "p1", "f1")
	if err != nil {
		t.Fatalf("AliveFileMembers error: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("members = %d, want 2", len(members))
	}

	if err := p.RemoveFileMember(ctx, "p1", "f1", 1); err != nil {
		t.Fatalf("RemoveFileMember error: %v", err)
	}
	members, err = p.AliveFileMembers(ctx, "p1", "f1")
	if err != nil {
		t.Fatalf("AliveFileMembers error: %v", err)
	}
	if len(members) != 1 || members[0].UserID != 2 || members[0].Username != "bob" {
		t.Fatalf("members after remove = %+v, want only bob", members)
	}
}

func TestExpiredMembersSweptOut(t *testing.T) {
	ctx := context.Background()
	p := NewRedisPresence(testClient(t))

	if err := p.AddProjectMember(ctx, "p1", 1, "alice", -time.Second); err != nil {
		t.Fatalf("AddProjectMember error: %v", err)
	}
	members, err := p.AliveProjectMembers(ctx, "p1")
	if err != nil {
		t.Fatalf("AliveProjectMembers error: %v", err)
	}
	if len(members) != 0 {
		t.Fatalf("expired member still alive: %+v", members)
	}
}

func TestCursorRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := NewRedisPresence(testClient(t))

	want := []byte(`{"line":3,"column":14}`)
	if err := p.SetCursor(ctx, "p1", "f1", 1, want, time.Minute); err != nil {
		t.Fatalf("SetCursor error: %v", err)
	}
	got, err := p.GetCursor(ctx, "p1", "f1", 1)
	if err != nil {
		t.Fatalf("GetCursor error: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("GetCursor = %s, want %s", got, want)
	}
}
