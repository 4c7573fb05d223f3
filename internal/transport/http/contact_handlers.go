package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/nichat/nichat-server/internal/service/contacts"
	"github.com/nichat/nichat-server/internal/store"
)

// ContactHandlers provides HTTP handlers for contact management.
type ContactHandlers struct {
	contacts *contacts.Service
	store    store.Store
	log      *zerolog.Logger
}

// NewContactHandlers creates a new contact handlers instance.
func NewContactHandlers(contactsService *contacts.Service, st store.Store, logger *zerolog.Logger) *ContactHandlers {
	return &ContactHandlers{
		contacts: contactsService,
		store:    st,
		log:      logger,
	}
}

// ContactResponse represents a contact in API responses.
type ContactResponse struct {
	TargetID  int64  `json:"target_id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Status    string `json:"status"`
}

// List returns the caller's contacts, optionally filtered.
// GET /api/contacts?status=following|blocked
func (h *ContactHandlers) List(c *gin.Context) {
	uid, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var (
		list []*store.Contact
		err  error
	)
	switch c.Query("status") {
	case "", "following":
		list, err = h.contacts.ListFollowing(c.Request.Context(), uid)
	case "blocked":
		list, err = h.contacts.ListBlocked(c.Request.Context(), uid)
	default:
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid status filter"})
		return
	}
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", uid).Msg("failed to list contacts")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]ContactResponse, 0, len(list))
	for _, contact := range list {
		entry := ContactResponse{
			TargetID: contact.TargetID,
			Status:   string(contact.Status),
		}
		if target, err := h.store.GetUserByID(c.Request.Context(), contact.TargetID); err == nil {
			entry.Username = target.Username
			entry.AvatarURL = target.AvatarURL
		}
		response = append(response, entry)
	}
	c.JSON(http.StatusOK, response)
}

// Follow adds a user to the caller's contacts.
// POST /api/contacts/:id/follow
func (h *ContactHandlers) Follow(c *gin.Context) {
	uid, targetID, ok := h.parseTarget(c)
	if !ok {
		return
	}

	if _, err := h.contacts.Follow(c.Request.Context(), uid, targetID); err != nil {
		h.writeContactError(c, err, uid, targetID, "follow")
		return
	}
	c.Status(http.StatusNoContent)
}

// Unfollow removes a user from the caller's contacts.
// DELETE /api/contacts/:id/follow
func (h *ContactHandlers) Unfollow(c *gin.Context) {
	uid, targetID, ok := h.parseTarget(c)
	if !ok {
		return
	}

	if err := h.contacts.Unfollow(c.Request.Context(), uid, targetID); err != nil {
		h.writeContactError(c, err, uid, targetID, "unfollow")
		return
	}
	c.Status(http.StatusNoContent)
}

// Block blocks a user.
// POST /api/contacts/:id/block
func (h *ContactHandlers) Block(c *gin.Context) {
	uid, targetID, ok := h.parseTarget(c)
	if !ok {
		return
	}

	if err := h.contacts.Block(c.Request.Context(), uid, targetID); err != nil {
		h.writeContactError(c, err, uid, targetID, "block")
		return
	}
	c.Status(http.StatusNoContent)
}

// Unblock lifts the caller's block of a user.
// DELETE /api/contacts/:id/block
func (h *ContactHandlers) Unblock(c *gin.Context) {
	uid, targetID, ok := h.parseTarget(c)
	if !ok {
		return
	}

	if err := h.contacts.Unblock(c.Request.Context(), uid, targetID); err != nil {
		h.writeContactError(c, err, uid, targetID, "unblock")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ContactHandlers) parseTarget(c *gin.Context) (uid, targetID int64, ok bool) {
	uid, ok = currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return 0, 0, false
	}
	targetID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid user id"})
		return 0, 0, false
	}
	return uid, targetID, true
}

func (h *ContactHandlers) writeContactError(c *gin.Context, err error, uid, targetID int64, op string) {
	switch {
	case errors.Is(err, contacts.ErrSelfReference):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "cannot target yourself"})
	case errors.Is(err, contacts.ErrUserNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
	case errors.Is(err, contacts.ErrBlocked):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "blocked"})
	case errors.Is(err, contacts.ErrNotFollowing):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not following this user"})
	case errors.Is(err, contacts.ErrNotBlocked):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "user is not blocked"})
	default:
		h.log.Error().Err(err).Str("op", op).Int64("user_id", uid).Int64("target_id", targetID).Msg("contact operation failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}
