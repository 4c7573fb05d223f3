package core

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/nichat/nichat-server/internal/store"
	"github.com/nichat/nichat-server/internal/store/sqlite"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", func(db *sql.DB) error {
		_, err := db.Exec(sqlite.Schema)
		return err
	})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func seedUser(t *testing.T, st store.Store, username string) *store.User {
	t.Helper()

	u, err := st.CreateUser(context.Background(), username, "hash")
	if err != nil {
		t.Fatalf("failed to create user %s: %v", username, err)
	}
	return u
}

func seedDirectChat(t *testing.T, st store.Store, a, b int64) *store.Chat {
	t.Helper()

	key := fmt.Sprintf("dm:%d:%d", a, b)
	chat, err := st.CreateDirectChat(context.Background(), key, a, b)
	if err != nil {
		t.Fatalf("failed to create direct chat: %v", err)
	}
	return chat
}

func clientFor(u *store.User) *Client {
	return NewClient(fmt.Sprintf("conn-%d", u.ID), u.ID, u.Username, u.AvatarURL)
}

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

func mustNoEvent(t *testing.T, ch <-chan *Event, kind EventKind, wait time.Duration) {
	t.Helper()

	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev != nil && ev.Kind == kind {
				t.Fatalf("unexpected event kind %v received: %+v", kind, ev)
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}
