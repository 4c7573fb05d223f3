package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nichat/nichat-server/internal/store"
)

func startHub(t *testing.T, st store.Store) *Hub {
	t.Helper()

	hub := NewHub(st, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func TestSendMessagePersistsAndFansOut(t *testing.T) {
	st := newTestStore(t)
	hub := startHub(t, st)
	ctx := context.Background()

	alice := seedUser(t, st, "alice")
	bob := seedUser(t, st, "bob")
	chat := seedDirectChat(t, st, alice.ID, bob.ID)

	ca := clientFor(alice)
	cb := clientFor(bob)
	hub.RegisterClient(ca)
	hub.RegisterClient(cb)

	ca.Commands <- &Command{Kind: CommandJoinChat, ChatID: chat.ID}
	cb.Commands <- &Command{Kind: CommandJoinChat, ChatID: chat.ID}

	ca.Commands <- &Command{Kind: CommandSendMessage, ChatID: chat.ID, Body: "hello"}

	// Bob sees the populated message in the chat room.
	msgEv := mustEvent(t, cb.Events, EventMessageNew)
	if msgEv.Message.Body != "hello" || msgEv.Message.SenderName != "alice" {
		t.Fatalf("unexpected message event: %+v", msgEv.Message)
	}
	if len(msgEv.Message.ReadBy) != 1 || msgEv.Message.ReadBy[0] != alice.ID {
		t.Fatalf("expected read-by {alice}, got %v", msgEv.Message.ReadBy)
	}

	// Bob also gets a notification in his personal room.
	noticeEv := mustEvent(t, cb.Events, EventNotification)
	if noticeEv.Notice.Type != "message" || noticeEv.Notice.ChatID != chat.ID {
		t.Fatalf("unexpected notification: %+v", noticeEv.Notice)
	}

	// Exactly one message persisted, last-message pointer set, Bob unread 1.
	msgs, err := st.ListMessages(ctx, chat.ID, 10, nil)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected exactly one message, got %d", len(msgs))
	}
	saved, err := st.GetChat(ctx, chat.ID)
	if err != nil {
		t.Fatalf("get chat: %v", err)
	}
	if saved.LastMessageID == nil || *saved.LastMessageID != msgs[0].ID {
		t.Errorf("expected last message %d, got %v", msgs[0].ID, saved.LastMessageID)
	}
	for _, tc := range []struct {
		userID int64
		want   int64
	}{{alice.ID, 0}, {bob.ID, 1}} {
		got, err := st.UnreadCount(ctx, chat.ID, tc.userID)
		if err != nil {
			t.Fatalf("unread count: %v", err)
		}
		if got != tc.want {
			t.Errorf("user %d: expected unread %d, got %d", tc.userID, tc.want, got)
		}
	}
}

func TestSendMessageRejectsNonParticipant(t *testing.T) {
	st := newTestStore(t)
	hub := startHub(t, st)
	ctx := context.Background()

	alice := seedUser(t, st, "alice")
	bob := seedUser(t, st, "bob")
	mallory := seedUser(t, st, "mallory")
	chat := seedDirectChat(t, st, alice.ID, bob.ID)

	cm := clientFor(mallory)
	cb := clientFor(bob)
	hub.RegisterClient(cm)
	hub.RegisterClient(cb)

	// Joining the room is allowed (no authorization on join), but sending
	// is rejected.
	cm.Commands <- &Command{Kind: CommandJoinChat, ChatID: chat.ID}
	cb.Commands <- &Command{Kind: CommandJoinChat, ChatID: chat.ID}
	cm.Commands <- &Command{Kind: CommandSendMessage, ChatID: chat.ID, Body: "intruder"}

	ev := mustEvent(t, cm.Events, EventError)
	if ev.Error.Code != ErrCodeNotParticipant {
		t.Fatalf("expected not_participant, got %+v", ev.Error)
	}

	// Only the sender hears about it.
	mustNoEvent(t, cb.Events, EventMessageNew, 150*time.Millisecond)

	msgs, err := st.ListMessages(ctx, chat.ID, 10, nil)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected no persisted messages, got %d", len(msgs))
	}
}

func TestSendMessageUnknownChat(t *testing.T) {
	st := newTestStore(t)
	hub := startHub(t, st)

	alice := seedUser(t, st, "alice")
	ca := clientFor(alice)
	hub.RegisterClient(ca)

	ca.Commands <- &Command{Kind: CommandSendMessage, ChatID: 9999, Body: "void"}

	ev := mustEvent(t, ca.Events, EventError)
	if ev.Error.Code != ErrCodeChatNotFound {
		t.Fatalf("expected chat_not_found, got %+v", ev.Error)
	}
}

func TestTypingBroadcastExcludesSender(t *testing.T) {
	st := newTestStore(t)
	hub := startHub(t, st)

	alice := seedUser(t, st, "alice")
	bob := seedUser(t, st, "bob")
	chat := seedDirectChat(t, st, alice.ID, bob.ID)

	ca := clientFor(alice)
	cb := clientFor(bob)
	hub.RegisterClient(ca)
	hub.RegisterClient(cb)
	ca.Commands <- &Command{Kind: CommandJoinChat, ChatID: chat.ID}
	cb.Commands <- &Command{Kind: CommandJoinChat, ChatID: chat.ID}

	ca.Commands <- &Command{Kind: CommandTyping, ChatID: chat.ID, Typing: true}

	ev := mustEvent(t, cb.Events, EventTyping)
	if ev.Typing.UserID != alice.ID || !ev.Typing.Active {
		t.Fatalf("unexpected typing event: %+v", ev.Typing)
	}
	mustNoEvent(t, ca.Events, EventTyping, 150*time.Millisecond)

	ca.Commands <- &Command{Kind: CommandTyping, ChatID: chat.ID, Typing: false}
	ev = mustEvent(t, cb.Events, EventTyping)
	if ev.Typing.Active {
		t.Fatalf("expected typing stop, got %+v", ev.Typing)
	}
}

func TestMarkChatReadResetsCounterAndGrowsReadSets(t *testing.T) {
	st := newTestStore(t)
	hub := startHub(t, st)
	ctx := context.Background()

	alice := seedUser(t, st, "alice")
	bob := seedUser(t, st, "bob")
	chat := seedDirectChat(t, st, alice.ID, bob.ID)

	ca := clientFor(alice)
	cb := clientFor(bob)
	hub.RegisterClient(ca)
	hub.RegisterClient(cb)
	ca.Commands <- &Command{Kind: CommandJoinChat, ChatID: chat.ID}
	cb.Commands <- &Command{Kind: CommandJoinChat, ChatID: chat.ID}

	for i := 0; i < 3; i++ {
		ca.Commands <- &Command{Kind: CommandSendMessage, ChatID: chat.ID, Body: "m"}
		mustEvent(t, cb.Events, EventMessageNew)
	}

	cb.Commands <- &Command{Kind: CommandMarkRead, ChatID: chat.ID}

	// Alice sees the receipt; Bob does not get his own echo.
	readEv := mustEvent(t, ca.Events, EventMessageRead)
	if readEv.Read.UserID != bob.ID || readEv.Read.MessageID != nil {
		t.Fatalf("unexpected read receipt: %+v", readEv.Read)
	}
	mustNoEvent(t, cb.Events, EventMessageRead, 150*time.Millisecond)

	count, err := st.UnreadCount(ctx, chat.ID, bob.ID)
	if err != nil {
		t.Fatalf("unread count: %v", err)
	}
	if count != 0 {
		t.Errorf("expected unread 0 after mark read, got %d", count)
	}

	msgs, err := st.ListMessages(ctx, chat.ID, 10, nil)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	for _, m := range msgs {
		found := false
		for _, r := range m.ReadBy {
			if r == bob.ID {
				found = true
			}
		}
		if !found {
			t.Errorf("message %d missing bob in read-by set %v", m.ID, m.ReadBy)
		}
	}
}

func TestConcurrentSendsBothPersist(t *testing.T) {
	st := newTestStore(t)
	hub := startHub(t, st)
	ctx := context.Background()

	alice := seedUser(t, st, "alice")
	bob := seedUser(t, st, "bob")
	chat := seedDirectChat(t, st, alice.ID, bob.ID)

	ca := clientFor(alice)
	cb := clientFor(bob)
	hub.RegisterClient(ca)
	hub.RegisterClient(cb)

	var wg sync.WaitGroup
	for _, c := range []*Client{ca, cb} {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			c.Commands <- &Command{Kind: CommandSendMessage, ChatID: chat.ID, Body: "race"}
		}(c)
	}
	wg.Wait()

	// Both arrive as notifications regardless of room membership.
	mustEvent(t, ca.Events, EventNotification)
	mustEvent(t, cb.Events, EventNotification)

	msgs, err := st.ListMessages(ctx, chat.ID, 10, nil)
	if err != nil {
		t.Fatalf("list messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected both messages persisted, got %d", len(msgs))
	}
	for _, userID := range []int64{alice.ID, bob.ID} {
		got, err := st.UnreadCount(ctx, chat.ID, userID)
		if err != nil {
			t.Fatalf("unread count: %v", err)
		}
		if got != 1 {
			t.Errorf("user %d: expected unread 1, got %d", userID, got)
		}
	}
}

func TestRegisterThenImmediateDisconnectEndsOffline(t *testing.T) {
	st := newTestStore(t)
	hub := NewHub(st, nil, nil)

	alice := seedUser(t, st, "alice")
	ca := clientFor(alice)

	// A connection that drops right after the handshake queues both
	// lifecycle events before the loop services either. They must drain
	// in order, never leaving a ghost registry entry behind.
	hub.RegisterClient(ca)
	hub.UnregisterClient(ca)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	select {
	case <-ca.done:
	case <-time.After(2 * time.Second):
		t.Fatal("client was never unregistered")
	}

	if hub.Registry().Online(alice.ID) {
		t.Fatal("user still online in registry after disconnect")
	}
	if hub.Registry().SendToUser(alice.ID, &Event{Kind: EventNotification}) {
		t.Fatal("personal-room delivery reached a dead connection")
	}
}

// gatedStore blocks message writes until the test releases them, exposing
// the window between accepting a send and finishing its persistence.
type gatedStore struct {
	store.Store
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) CreateMessage(ctx context.Context, msg *store.Message) error {
	g.entered <- struct{}{}
	<-g.release
	return g.Store.CreateMessage(ctx, msg)
}

func TestJoinDuringPersistStillReceivesBroadcast(t *testing.T) {
	st := newTestStore(t)
	gated := &gatedStore{Store: st, entered: make(chan struct{}), release: make(chan struct{})}

	hub := NewHub(gated, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	alice := seedUser(t, st, "alice")
	bob := seedUser(t, st, "bob")
	chat := seedDirectChat(t, st, alice.ID, bob.ID)

	ca := clientFor(alice)
	cb := clientFor(bob)
	hub.RegisterClient(ca)
	hub.RegisterClient(cb)
	ca.Commands <- &Command{Kind: CommandJoinChat, ChatID: chat.ID}

	ca.Commands <- &Command{Kind: CommandSendMessage, ChatID: chat.ID, Body: "early"}
	select {
	case <-gated.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("message write never started")
	}

	// The write is in flight; Bob joins the room before it completes. The
	// typing echo to Alice proves the loop has processed his join.
	cb.Commands <- &Command{Kind: CommandJoinChat, ChatID: chat.ID}
	cb.Commands <- &Command{Kind: CommandTyping, ChatID: chat.ID, Typing: true}
	mustEvent(t, ca.Events, EventTyping)
	close(gated.release)

	ev := mustEvent(t, cb.Events, EventMessageNew)
	if ev.Message.Body != "early" {
		t.Fatalf("unexpected message event: %+v", ev.Message)
	}
}

func TestPresenceBroadcastOnRegisterAndDisconnect(t *testing.T) {
	st := newTestStore(t)
	hub := startHub(t, st)
	ctx := context.Background()

	alice := seedUser(t, st, "alice")
	bob := seedUser(t, st, "bob")

	ca := clientFor(alice)
	hub.RegisterClient(ca)

	cb := clientFor(bob)
	hub.RegisterClient(cb)

	ev := mustEvent(t, ca.Events, EventUserStatus)
	if ev.Status.UserID != bob.ID || !ev.Status.IsOnline {
		t.Fatalf("unexpected status event: %+v", ev.Status)
	}

	hub.UnregisterClient(cb)
	ev = mustEvent(t, ca.Events, EventUserStatus)
	if ev.Status.UserID != bob.ID || ev.Status.IsOnline {
		t.Fatalf("expected offline status, got %+v", ev.Status)
	}
	if ev.Status.LastSeen == nil {
		t.Fatal("expected last seen on offline status")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		u, err := st.GetUserByID(ctx, bob.ID)
		if err != nil {
			t.Fatalf("get user: %v", err)
		}
		if !u.IsOnline && u.LastSeen != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("presence never persisted offline")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSecondConnectionDoesNotRebroadcastPresence(t *testing.T) {
	st := newTestStore(t)
	hub := startHub(t, st)

	alice := seedUser(t, st, "alice")
	bob := seedUser(t, st, "bob")

	ca := clientFor(alice)
	hub.RegisterClient(ca)

	cb1 := clientFor(bob)
	hub.RegisterClient(cb1)
	mustEvent(t, ca.Events, EventUserStatus)

	// Second device: no presence change.
	cb2 := NewClient("conn-bob-2", bob.ID, bob.Username, bob.AvatarURL)
	hub.RegisterClient(cb2)
	mustNoEvent(t, ca.Events, EventUserStatus, 150*time.Millisecond)

	// Dropping one of two connections keeps the user online.
	hub.UnregisterClient(cb1)
	mustNoEvent(t, ca.Events, EventUserStatus, 150*time.Millisecond)

	hub.UnregisterClient(cb2)
	ev := mustEvent(t, ca.Events, EventUserStatus)
	if ev.Status.IsOnline {
		t.Fatalf("expected offline status, got %+v", ev.Status)
	}
}
