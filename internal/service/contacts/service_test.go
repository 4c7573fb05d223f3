package contacts

import (
	"context"
	"testing"

	"github.com/nichat/nichat-server/internal/store"
	"github.com/nichat/nichat-server/internal/store/sqlite"
)

func newTestService(t *testing.T) (*Service, store.Store) {
	t.Helper()
	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return New(st), st
}

func seedUsers(t *testing.T, st store.Store, names ...string) []int64 {
	t.Helper()
	ids := make([]int64, 0, len(names))
	for _, name := range names {
		u, err := st.CreateUser(context.Background(), name, "hash")
		if err != nil {
			t.Fatalf("create user %s: %v", name, err)
		}
		ids = append(ids, u.ID)
	}
	return ids
}

func TestFollowAndList(t *testing.T) {
	svc, st := newTestService(t)
	ids := seedUsers(t, st, "alice", "bob")
	ctx := context.Background()

	contact, err := svc.Follow(ctx, ids[0], ids[1])
	if err != nil {
		t.Fatalf("Follow: %v", err)
	}
	if contact.Status != store.ContactStatusFollowing {
		t.Fatalf("status = %s, want following", contact.Status)
	}

	// Following twice is a no-op, not an error.
	if _, err := svc.Follow(ctx, ids[0], ids[1]); err != nil {
		t.Fatalf("second Follow: %v", err)
	}

	list, err := svc.ListFollowing(ctx, ids[0])
	if err != nil {
		t.Fatalf("ListFollowing: %v", err)
	}
	if len(list) != 1 || list[0].TargetID != ids[1] {
		t.Fatalf("following = %+v, want one entry for bob", list)
	}
}

func TestFollowSelfRejected(t *testing.T) {
	svc, st := newTestService(t)
	ids := seedUsers(t, st, "alice")

	if _, err := svc.Follow(context.Background(), ids[0], ids[0]); err != ErrSelfReference {
		t.Fatalf("err = %v, want ErrSelfReference", err)
	}
}

func TestFollowUnknownUser(t *testing.T) {
	svc, st := newTestService(t)
	ids := seedUsers(t, st, "alice")

	if _, err := svc.Follow(context.Background(), ids[0], 9999); err != ErrUserNotFound {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}
}

func TestUnfollow(t *testing.T) {
	svc, st := newTestService(t)
	ids := seedUsers(t, st, "alice", "bob")
	ctx := context.Background()

	if err := svc.Unfollow(ctx, ids[0], ids[1]); err != ErrNotFollowing {
		t.Fatalf("unfollow before follow err = %v, want ErrNotFollowing", err)
	}

	if _, err := svc.Follow(ctx, ids[0], ids[1]); err != nil {
		t.Fatalf("Follow: %v", err)
	}
	if err := svc.Unfollow(ctx, ids[0], ids[1]); err != nil {
		t.Fatalf("Unfollow: %v", err)
	}

	list, err := svc.ListFollowing(ctx, ids[0])
	if err != nil {
		t.Fatalf("ListFollowing: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("following = %+v, want empty", list)
	}
}

func TestBlockRemovesFollowsBothWays(t *testing.T) {
	svc, st := newTestService(t)
	ids := seedUsers(t, st, "alice", "bob")
	ctx := context.Background()

	if _, err := svc.Follow(ctx, ids[0], ids[1]); err != nil {
		t.Fatalf("alice follows bob: %v", err)
	}
	if _, err := svc.Follow(ctx, ids[1], ids[0]); err != nil {
		t.Fatalf("bob follows alice: %v", err)
	}

	if err := svc.Block(ctx, ids[0], ids[1]); err != nil {
		t.Fatalf("Block: %v", err)
	}

	for _, id := range ids {
		list, err := svc.ListFollowing(ctx, id)
		if err != nil {
			t.Fatalf("ListFollowing(%d): %v", id, err)
		}
		if len(list) != 0 {
			t.Fatalf("user %d still follows %+v after block", id, list)
		}
	}

	blocked, err := svc.ListBlocked(ctx, ids[0])
	if err != nil {
		t.Fatalf("ListBlocked: %v", err)
	}
	if len(blocked) != 1 || blocked[0].TargetID != ids[1] {
		t.Fatalf("blocked = %+v, want one entry for bob", blocked)
	}

	// Neither side can follow while the block stands.
	if _, err := svc.Follow(ctx, ids[1], ids[0]); err != ErrBlocked {
		t.Fatalf("bob follow err = %v, want ErrBlocked", err)
	}
	if _, err := svc.Follow(ctx, ids[0], ids[1]); err != ErrBlocked {
		t.Fatalf("alice follow err = %v, want ErrBlocked", err)
	}
}

func TestUnblockRestoresFollowability(t *testing.T) {
	svc, st := newTestService(t)
	ids := seedUsers(t, st, "alice", "bob")
	ctx := context.Background()

	if err := svc.Unblock(ctx, ids[0], ids[1]); err != ErrNotBlocked {
		t.Fatalf("unblock without block err = %v, want ErrNotBlocked", err)
	}

	if err := svc.Block(ctx, ids[0], ids[1]); err != nil {
		t.Fatalf("Block: %v", err)
	}
	if err := svc.Unblock(ctx, ids[0], ids[1]); err != nil {
		t.Fatalf("Unblock: %v", err)
	}

	if _, err := svc.Follow(ctx, ids[1], ids[0]); err != nil {
		t.Fatalf("follow after unblock: %v", err)
	}
}

func TestUnblockDoesNotTouchTheirBlock(t *testing.T) {
	svc, st := newTestService(t)
	ids := seedUsers(t, st, "alice", "bob")
	ctx := context.Background()

	if err := svc.Block(ctx, ids[1], ids[0]); err != nil {
		t.Fatalf("bob blocks alice: %v", err)
	}

	// Alice cannot lift bob's block.
	if err := svc.Unblock(ctx, ids[0], ids[1]); err != ErrNotBlocked {
		t.Fatalf("err = %v, want ErrNotBlocked", err)
	}
	ok, err := svc.IsBlocked(ctx, ids[0], ids[1])
	if err != nil {
		t.Fatalf("IsBlocked: %v", err)
	}
	if !ok {
		t.Fatal("block disappeared")
	}
}
