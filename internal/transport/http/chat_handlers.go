package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/nichat/nichat-server/internal/service/contacts"
	"github.com/nichat/nichat-server/internal/store"
)

const (
	defaultMessageLimit = 50
	maxMessageLimit     = 100
)

// ChatHandlers provides HTTP handlers for chat and message endpoints.
type ChatHandlers struct {
	store    store.Store
	contacts *contacts.Service
	log      *zerolog.Logger
}

// NewChatHandlers creates a new chat handlers instance.
func NewChatHandlers(st store.Store, contactsService *contacts.Service, logger *zerolog.Logger) *ChatHandlers {
	return &ChatHandlers{
		store:    st,
		contacts: contactsService,
		log:      logger,
	}
}

// CreateChatRequest represents the create chat request body.
type CreateChatRequest struct {
	Kind         string  `json:"kind" binding:"required,oneof=direct group"`
	Name         string  `json:"name"`
	PeerID       int64   `json:"peer_id"`
	Participants []int64 `json:"participants"`
}

// ChatResponse represents a chat in API responses.
type ChatResponse struct {
	ID           int64            `json:"id"`
	Kind         string           `json:"kind"`
	Name         string           `json:"name,omitempty"`
	AdminID      *int64           `json:"admin_id,omitempty"`
	Participants []int64          `json:"participants"`
	UnreadCount  int64            `json:"unread_count"`
	LastMessage  *MessageResponse `json:"last_message,omitempty"`
	CreatedAt    int64            `json:"created_at"`
}

// MessageResponse represents a message in API responses.
type MessageResponse struct {
	ID          int64   `json:"id"`
	ChatID      int64   `json:"chat_id"`
	SenderID    int64   `json:"sender_id"`
	Body        string  `json:"body"`
	ContentType string  `json:"content_type"`
	ReplyToID   *int64  `json:"reply_to_id,omitempty"`
	ReadBy      []int64 `json:"read_by"`
	Deleted     bool    `json:"deleted,omitempty"`
	CreatedAt   int64   `json:"created_at"`
}

func messageResponse(m *store.Message) MessageResponse {
	return MessageResponse{
		ID:          m.ID,
		ChatID:      m.ChatID,
		SenderID:    m.SenderID,
		Body:        m.Body,
		ContentType: string(m.ContentType),
		ReplyToID:   m.ReplyToID,
		ReadBy:      m.ReadBy,
		Deleted:     m.Deleted,
		CreatedAt:   m.CreatedAt.Unix(),
	}
}

// DirectChatKey builds the canonical dedup key for a direct chat between
// two users, smaller ID first, so the same pair always maps to one chat.
func DirectChatKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("dm:%d:%d", a, b)
}

// CreateChat handles chat creation for both kinds. Creating a direct chat
// that already exists returns the existing one.
// POST /api/chats
func (h *ChatHandlers) CreateChat(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req CreateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create chat request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	ctx := c.Request.Context()
	switch req.Kind {
	case "direct":
		if req.PeerID == 0 || req.PeerID == uid {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "peer_id must name another user"})
			return
		}
		if _, err := h.store.GetUserByID(ctx, req.PeerID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
				return
			}
			h.fail(c, err, "load peer")
			return
		}

		blocked, err := h.contacts.IsBlocked(ctx, uid, req.PeerID)
		if err != nil {
			h.fail(c, err, "check block state")
			return
		}
		if blocked {
			c.JSON(http.StatusForbidden, ErrorResponse{Error: "cannot chat with this user"})
			return
		}

		chat, err := h.store.CreateDirectChat(ctx, DirectChatKey(uid, req.PeerID), uid, req.PeerID)
		if err != nil {
			h.fail(c, err, "create direct chat")
			return
		}
		c.JSON(http.StatusCreated, h.chatResponse(c, chat, uid))

	case "group":
		if req.Name == "" {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "group chat requires a name"})
			return
		}
		chat, err := h.store.CreateGroupChat(ctx, req.Name, uid, req.Participants)
		if err != nil {
			h.fail(c, err, "create group chat")
			return
		}
		h.log.Info().Int64("chat_id", chat.ID).Int64("admin_id", uid).Msg("group chat created")
		c.JSON(http.StatusCreated, h.chatResponse(c, chat, uid))
	}
}

// ListChats lists the caller's chats with unread counters and last-message
// previews.
// GET /api/chats
func (h *ChatHandlers) ListChats(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	chats, err := h.store.ListChats(c.Request.Context(), uid)
	if err != nil {
		h.fail(c, err, "list chats")
		return
	}

	response := make([]ChatResponse, 0, len(chats))
	for _, chat := range chats {
		response = append(response, h.chatResponse(c, chat, uid))
	}
	c.JSON(http.StatusOK, response)
}

// GetChat returns one chat the caller participates in.
// GET /api/chats/:id
func (h *ChatHandlers) GetChat(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	chatID, err := pathID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid chat id"})
		return
	}

	chat, ok := h.loadParticipantChat(c, chatID, uid)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.chatResponse(c, chat, uid))
}

// ListMessages returns a page of chat history, newest first.
// GET /api/chats/:id/messages?limit=50&before_id=123
func (h *ChatHandlers) ListMessages(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	chatID, err := pathID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid chat id"})
		return
	}
	if _, ok := h.loadParticipantChat(c, chatID, uid); !ok {
		return
	}

	limit := defaultMessageLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
			return
		}
		limit = parsed
	}
	if limit > maxMessageLimit {
		limit = maxMessageLimit
	}

	var beforeID *int64
	if raw := c.Query("before_id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid before_id"})
			return
		}
		beforeID = &parsed
	}

	messages, err := h.store.ListMessages(c.Request.Context(), chatID, limit, beforeID)
	if err != nil {
		h.fail(c, err, "list messages")
		return
	}

	response := make([]MessageResponse, 0, len(messages))
	for _, m := range messages {
		response = append(response, messageResponse(m))
	}
	c.JSON(http.StatusOK, response)
}

// AddParticipantRequest represents the add participant body.
type AddParticipantRequest struct {
	UserID int64 `json:"user_id" binding:"required"`
}

// AddParticipant adds a user to a group chat. Admin only.
// POST /api/chats/:id/participants
func (h *ChatHandlers) AddParticipant(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	chatID, err := pathID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid chat id"})
		return
	}

	var req AddParticipantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	chat, ok := h.loadParticipantChat(c, chatID, uid)
	if !ok {
		return
	}
	if chat.Kind != store.ChatKindGroup {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "not a group chat"})
		return
	}
	if chat.AdminID == nil || *chat.AdminID != uid {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "only the admin can add participants"})
		return
	}

	if err := h.store.AddParticipant(c.Request.Context(), chatID, req.UserID); err != nil {
		h.fail(c, err, "add participant")
		return
	}
	c.Status(http.StatusNoContent)
}

// RemoveParticipant removes a user from a group chat. The admin can remove
// anyone; a member can only remove themselves.
// DELETE /api/chats/:id/participants/:userID
func (h *ChatHandlers) RemoveParticipant(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	chatID, err := pathID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid chat id"})
		return
	}
	targetID, err := strconv.ParseInt(c.Param("userID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid user id"})
		return
	}

	chat, ok := h.loadParticipantChat(c, chatID, uid)
	if !ok {
		return
	}
	if chat.Kind != store.ChatKindGroup {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "not a group chat"})
		return
	}

	isAdmin := chat.AdminID != nil && *chat.AdminID == uid
	if targetID != uid && !isAdmin {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "only the admin can remove other participants"})
		return
	}

	if err := h.store.RemoveParticipant(c.Request.Context(), chatID, targetID); err != nil {
		h.fail(c, err, "remove participant")
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteMessage soft-deletes a message. Sender only.
// DELETE /api/messages/:id
func (h *ChatHandlers) DeleteMessage(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	messageID, err := pathID(c, "id")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid message id"})
		return
	}

	msg, err := h.store.GetMessage(c.Request.Context(), messageID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "message not found"})
			return
		}
		h.fail(c, err, "load message")
		return
	}
	if msg.SenderID != uid {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "only the sender can delete a message"})
		return
	}

	if err := h.store.SoftDeleteMessage(c.Request.Context(), messageID); err != nil {
		h.fail(c, err, "delete message")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ChatHandlers) chatResponse(c *gin.Context, chat *store.Chat, uid int64) ChatResponse {
	resp := ChatResponse{
		ID:           chat.ID,
		Kind:         string(chat.Kind),
		Name:         chat.Name,
		AdminID:      chat.AdminID,
		Participants: chat.Participants,
		CreatedAt:    chat.CreatedAt.Unix(),
	}

	unread, err := h.store.UnreadCount(c.Request.Context(), chat.ID, uid)
	if err != nil {
		h.log.Warn().Err(err).Int64("chat_id", chat.ID).Msg("load unread count")
	} else {
		resp.UnreadCount = unread
	}

	if chat.LastMessageID != nil {
		last, err := h.store.GetMessage(c.Request.Context(), *chat.LastMessageID)
		if err != nil {
			h.log.Warn().Err(err).Int64("chat_id", chat.ID).Msg("load last message")
		} else {
			lastResp := messageResponse(last)
			resp.LastMessage = &lastResp
		}
	}
	return resp
}

// loadParticipantChat loads a chat and enforces that uid participates in
// it, writing the error response itself when not.
func (h *ChatHandlers) loadParticipantChat(c *gin.Context, chatID, uid int64) (*store.Chat, bool) {
	chat, err := h.store.GetChat(c.Request.Context(), chatID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "chat not found"})
			return nil, false
		}
		h.fail(c, err, "load chat")
		return nil, false
	}

	for _, id := range chat.Participants {
		if id == uid {
			return chat, true
		}
	}
	c.JSON(http.StatusForbidden, ErrorResponse{Error: "not a participant of this chat"})
	return nil, false
}

func (h *ChatHandlers) fail(c *gin.Context, err error, op string) {
	h.log.Error().Err(err).Str("op", op).Msg("chat handler failed")
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
}

func pathID(c *gin.Context, name string) (int64, error) {
	return strconv.ParseInt(c.Param(name), 10, 64)
}
