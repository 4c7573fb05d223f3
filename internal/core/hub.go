package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/nichat/nichat-server/internal/callengine"
	"github.com/nichat/nichat-server/internal/store"
)

// Hub is the real-time relay: it owns chat-room membership, bridges
// client commands to persisted state changes, and fans events out to the
// other connected participants.
//
// The hub loop is the only goroutine that touches the room map. Commands
// that need database I/O (send, mark-read, call checks) run in their own
// goroutine so slow persistence never stalls membership changes; their
// room fan-out is handed back to the loop, so membership is read at emit
// time, after the write.
type Hub struct {
	store    store.Store
	engine   callengine.Engine // nil when no SFU is configured
	log      *zerolog.Logger
	registry *Registry

	rooms map[int64]*Room

	lifecycle chan lifecycleChange
	inbox     chan envelope
	effects   chan func()
}

// lifecycleChange is a connection opening or closing. Both travel on one
// channel so the loop sees a connection's register strictly before its
// unregister.
type lifecycleChange struct {
	client  *Client
	leaving bool
}

type envelope struct {
	client *Client
	cmd    *Command
}

// NewHub creates a new relay hub. engine may be nil.
func NewHub(st store.Store, engine callengine.Engine, logger *zerolog.Logger) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Hub{
		store:      st,
		engine:     engine,
		log:        logger,
		registry:   NewRegistry(),
		rooms:     make(map[int64]*Room),
		lifecycle: make(chan lifecycleChange, 16),
		inbox:     make(chan envelope, 64),
		effects:   make(chan func(), 64),
	}
}

// RegisterClient announces a new authenticated connection to the hub.
func (h *Hub) RegisterClient(c *Client) {
	h.lifecycle <- lifecycleChange{client: c}
}

// UnregisterClient removes a connection from the hub. Must be called from
// the same goroutine that registered the client, after RegisterClient.
func (h *Hub) UnregisterClient(c *Client) {
	h.lifecycle <- lifecycleChange{client: c, leaving: true}
}

// Registry exposes the connection registry for transports that deliver
// directly to personal rooms.
func (h *Hub) Registry() *Registry {
	return h.registry
}

// Run processes registrations and client commands until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case change := <-h.lifecycle:
			if change.leaving {
				h.handleUnregister(ctx, change.client)
			} else {
				h.handleRegister(ctx, change.client)
			}
		case env := <-h.inbox:
			h.dispatch(ctx, env.client, env.cmd)
		case fn := <-h.effects:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) handleRegister(ctx context.Context, c *Client) {
	first := h.registry.Add(c)
	go h.pump(ctx, c)

	if !first {
		return
	}
	go func() {
		if err := h.store.SetPresence(ctx, c.UserID, true, time.Time{}); err != nil {
			h.log.Warn().Err(err).Int64("user_id", c.UserID).Msg("set presence online")
		}
		h.registry.BroadcastExcept(&Event{
			Kind: EventUserStatus,
			Status: &UserStatus{
				UserID:   c.UserID,
				Username: c.Username,
				IsOnline: true,
			},
		}, c)
	}()
}

func (h *Hub) handleUnregister(ctx context.Context, c *Client) {
	for chatID := range c.Chats {
		if room, ok := h.rooms[chatID]; ok {
			room.RemoveClient(c)
			if room.Empty() {
				delete(h.rooms, chatID)
			}
		}
	}
	c.Chats = map[int64]struct{}{}

	last := h.registry.Remove(c)
	close(c.done)

	if !last {
		return
	}
	lastSeen := time.Now().UTC()
	go func() {
		if err := h.store.SetPresence(ctx, c.UserID, false, lastSeen); err != nil {
			h.log.Warn().Err(err).Int64("user_id", c.UserID).Msg("set presence offline")
		}
		h.registry.BroadcastExcept(&Event{
			Kind: EventUserStatus,
			Status: &UserStatus{
				UserID:   c.UserID,
				Username: c.Username,
				IsOnline: false,
				LastSeen: &lastSeen,
			},
		}, c)
	}()
}

// pump forwards the client's commands into the hub inbox so the hub loop
// can select over any number of connections.
func (h *Hub) pump(ctx context.Context, c *Client) {
	for {
		select {
		case cmd, ok := <-c.Commands:
			if !ok {
				return
			}
			select {
			case h.inbox <- envelope{client: c, cmd: cmd}:
			case <-ctx.Done():
				return
			case <-c.done:
				return
			}
		case <-c.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) dispatch(ctx context.Context, c *Client, cmd *Command) {
	switch cmd.Kind {
	case CommandJoinChat:
		h.joinChat(c, cmd.ChatID)
	case CommandLeaveChat:
		h.leaveChat(c, cmd.ChatID)
	case CommandTyping:
		h.typing(c, cmd)
	case CommandSendMessage:
		go h.sendMessage(ctx, c, cmd)
	case CommandMarkRead:
		go h.markRead(ctx, c, cmd)
	case CommandCallOffer:
		go h.callOffer(ctx, c, cmd)
	case CommandCallAccept:
		go h.callAccept(ctx, c, cmd)
	case CommandCallReject:
		h.relayCall(c, cmd, EventCallRejected)
	case CommandCallEnd:
		h.relayCall(c, cmd, EventCallEnded)
	case CommandCallCandidate:
		h.relayCall(c, cmd, EventCallCandidate)
	case CommandCallQuality:
		h.log.Debug().
			Str("call_id", cmd.CallID).
			Int64("from", c.UserID).
			RawJSON("metrics", cmd.Payload).
			Msg("call quality report")
		h.relayCall(c, cmd, EventCallQuality)
	default:
		c.send(&Event{Kind: EventError, Error: relayError(ErrCodeBadRequest, "unknown command")})
	}
}

// joinChat subscribes the connection to a chat room. Deliberately no check
// that the user is a participant of the chat: room membership only scopes
// fan-out, the send path enforces participation.
func (h *Hub) joinChat(c *Client, chatID int64) {
	room, ok := h.rooms[chatID]
	if !ok {
		room = NewRoom(chatID)
		h.rooms[chatID] = room
	}
	room.AddClient(c)
	c.Chats[chatID] = struct{}{}
}

func (h *Hub) leaveChat(c *Client, chatID int64) {
	room, ok := h.rooms[chatID]
	if !ok {
		return
	}
	room.RemoveClient(c)
	delete(c.Chats, chatID)
	if room.Empty() {
		delete(h.rooms, chatID)
	}
}

func (h *Hub) typing(c *Client, cmd *Command) {
	room, ok := h.rooms[cmd.ChatID]
	if !ok {
		return
	}
	room.BroadcastExcept(&Event{
		Kind:   EventTyping,
		ChatID: cmd.ChatID,
		UserID: c.UserID,
		Typing: &TypingInfo{
			ChatID:   cmd.ChatID,
			UserID:   c.UserID,
			Username: c.Username,
			Active:   cmd.Typing,
		},
	}, c)
}

// broadcastRoom hands a room fan-out back to the hub loop. Persistence
// goroutines use it so the recipient set is resolved after their write,
// picking up clients that joined the room in the meantime.
func (h *Hub) broadcastRoom(ctx context.Context, chatID int64, event *Event, except *Client) {
	select {
	case h.effects <- func() {
		room, ok := h.rooms[chatID]
		if !ok {
			return
		}
		if except == nil {
			room.Broadcast(event)
			return
		}
		room.BroadcastExcept(event, except)
	}:
	case <-ctx.Done():
	}
}

// sendMessage validates, persists and fans out one message. The message
// insert and the chat update are two sequential writes with no transaction
// across them; a crash in between leaves the chat's last-message/unread
// state behind the message log.
func (h *Hub) sendMessage(ctx context.Context, c *Client, cmd *Command) {
	chat, err := h.store.GetChat(ctx, cmd.ChatID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.send(&Event{Kind: EventError, Error: relayError(ErrCodeChatNotFound, "chat not found")})
			return
		}
		h.fail(c, err, "load chat")
		return
	}

	if !contains(chat.Participants, c.UserID) {
		c.send(&Event{Kind: EventError, Error: relayError(ErrCodeNotParticipant, "not a participant of this chat")})
		return
	}

	msg := &store.Message{
		ChatID:      cmd.ChatID,
		SenderID:    c.UserID,
		Body:        cmd.Body,
		ContentType: cmd.ContentType,
		ReplyToID:   cmd.ReplyToID,
	}
	if err := h.store.CreateMessage(ctx, msg); err != nil {
		h.fail(c, err, "persist message")
		return
	}

	if err := h.store.SetLastMessage(ctx, cmd.ChatID, msg.ID); err != nil {
		h.log.Error().Err(err).Int64("chat_id", cmd.ChatID).Msg("set last message")
	}
	if err := h.store.IncrementUnread(ctx, cmd.ChatID, c.UserID); err != nil {
		h.log.Error().Err(err).Int64("chat_id", cmd.ChatID).Msg("increment unread")
	}

	populated := populateMessage(msg, c)
	event := &Event{Kind: EventMessageNew, ChatID: cmd.ChatID, UserID: c.UserID, Message: &populated}
	h.broadcastRoom(ctx, cmd.ChatID, event, nil)

	notice := &Event{
		Kind:   EventNotification,
		ChatID: cmd.ChatID,
		Notice: &Notification{Type: "message", ChatID: cmd.ChatID, Message: &populated},
	}
	for _, participantID := range chat.Participants {
		if participantID == c.UserID {
			continue
		}
		h.registry.SendToUser(participantID, notice)
	}
}

// markRead applies read receipts and resets the reader's unread counter.
func (h *Hub) markRead(ctx context.Context, c *Client, cmd *Command) {
	var readIDs []int64
	if cmd.MessageID != nil {
		if _, err := h.store.MarkMessageRead(ctx, *cmd.MessageID, c.UserID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.send(&Event{Kind: EventError, Error: relayError(ErrCodeBadRequest, "message not found")})
				return
			}
			h.fail(c, err, "mark message read")
			return
		}
		readIDs = []int64{*cmd.MessageID}
	} else {
		ids, err := h.store.MarkChatRead(ctx, cmd.ChatID, c.UserID)
		if err != nil {
			h.fail(c, err, "mark chat read")
			return
		}
		readIDs = ids
	}

	if err := h.store.ResetUnread(ctx, cmd.ChatID, c.UserID); err != nil {
		h.log.Error().Err(err).Int64("chat_id", cmd.ChatID).Int64("user_id", c.UserID).Msg("reset unread")
	}

	event := &Event{
		Kind:   EventMessageRead,
		ChatID: cmd.ChatID,
		UserID: c.UserID,
		Read:   &ReadReceipt{ChatID: cmd.ChatID, UserID: c.UserID, MessageID: cmd.MessageID, MessageIDs: readIDs},
	}
	h.broadcastRoom(ctx, cmd.ChatID, event, c)
}

// callOffer relays a call offer to the callee's personal room. The relay
// keeps no call state; ringing, timeout and teardown live in the clients.
func (h *Hub) callOffer(ctx context.Context, c *Client, cmd *Command) {
	if cmd.PeerID == c.UserID {
		c.send(&Event{Kind: EventError, Error: relayError(ErrCodeCallError, "cannot call yourself")})
		return
	}

	blocked, err := h.store.IsBlocked(ctx, c.UserID, cmd.PeerID)
	if err != nil {
		h.fail(c, err, "check block state")
		return
	}
	if blocked {
		c.send(&Event{Kind: EventError, Error: relayError(ErrCodeBlocked, "cannot call this user")})
		return
	}

	h.registry.SendToUser(cmd.PeerID, &Event{
		Kind: EventCallIncoming,
		Call: &CallEvent{
			CallID:     cmd.CallID,
			CallKind:   cmd.CallKind,
			FromID:     c.UserID,
			FromName:   c.Username,
			FromAvatar: c.AvatarURL,
			Payload:    cmd.Payload,
			Timestamp:  time.Now().Unix(),
		},
	})
}

// callAccept relays acceptance to the caller. For group-chat calls with an
// SFU configured both sides additionally receive join credentials.
func (h *Hub) callAccept(ctx context.Context, c *Client, cmd *Command) {
	accepted := &CallEvent{
		CallID:    cmd.CallID,
		CallKind:  cmd.CallKind,
		FromID:    c.UserID,
		FromName:  c.Username,
		Payload:   cmd.Payload,
		Timestamp: time.Now().Unix(),
	}

	if cmd.ChatID != 0 && h.engine != nil {
		callerInfo, err := h.joinInfoFor(ctx, cmd.CallID, cmd.PeerID)
		if err != nil {
			h.fail(c, err, "generate caller join info")
			return
		}
		accepted.JoinInfo = callerInfo

		selfInfo, err := h.engine.GenerateJoinInfo(ctx, cmd.CallID, c.UserID, c.Username)
		if err != nil {
			h.fail(c, err, "generate join info")
			return
		}
		c.send(&Event{Kind: EventCallAccepted, Call: &CallEvent{
			CallID:    cmd.CallID,
			CallKind:  cmd.CallKind,
			FromID:    c.UserID,
			JoinInfo:  (*CallJoinInfo)(selfInfo),
			Timestamp: accepted.Timestamp,
		}})
	}

	h.registry.SendToUser(cmd.PeerID, &Event{Kind: EventCallAccepted, Call: accepted})
}

func (h *Hub) joinInfoFor(ctx context.Context, callID string, userID int64) (*CallJoinInfo, error) {
	user, err := h.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user %d: %w", userID, err)
	}
	info, err := h.engine.GenerateJoinInfo(ctx, callID, user.ID, user.Username)
	if err != nil {
		return nil, err
	}
	return (*CallJoinInfo)(info), nil
}

// relayCall forwards a call lifecycle event to the peer's personal room
// without touching storage.
func (h *Hub) relayCall(c *Client, cmd *Command, kind EventKind) {
	h.registry.SendToUser(cmd.PeerID, &Event{
		Kind: kind,
		Call: &CallEvent{
			CallID:    cmd.CallID,
			CallKind:  cmd.CallKind,
			FromID:    c.UserID,
			FromName:  c.Username,
			Reason:    cmd.Reason,
			Payload:   cmd.Payload,
			Timestamp: time.Now().Unix(),
		},
	})
}

// fail logs a persistence error and reports it to the sender only.
func (h *Hub) fail(c *Client, err error, op string) {
	h.log.Error().Err(err).Str("op", op).Int64("user_id", c.UserID).Msg("relay operation failed")
	c.send(&Event{Kind: EventError, Error: relayError(ErrCodePersistence, op+" failed")})
}

func contains(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
