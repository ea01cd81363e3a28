package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/crewdesk/pulse-server/internal/proto"
	"github.com/crewdesk/pulse-server/internal/store"
)

// ChannelHandlers provides channel and history REST endpoints.
type ChannelHandlers struct {
	store store.Store
	log   *zerolog.Logger
}

// NewChannelHandlers creates channel handlers over the store.
func NewChannelHandlers(st store.Store, logger *zerolog.Logger) *ChannelHandlers {
	return &ChannelHandlers{store: st, log: logger}
}

// ChannelResponse is a channel record on the wire.
type ChannelResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	CreatedBy int64  `json:"created_by"`
}

// CreateChannelRequest is the channel creation body.
type CreateChannelRequest struct {
	Name string `json:"name" binding:"required,min=1,max=64"`
}

// Create makes a channel with the requester as first member.
// POST /api/channels
func (h *ChannelHandlers) Create(c *gin.Context) {
	var req CreateChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "name is required"})
		return
	}

	ch, err := h.store.CreateChannel(c.Request.Context(), name, requestUserID(c))
	if err != nil {
		h.log.Error().Err(err).Str("name", name).Msg("create channel failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	c.JSON(http.StatusCreated, ChannelResponse{ID: ch.ID, Name: ch.Name, CreatedBy: ch.CreatedBy})
}

// List returns the requester's channels.
// GET /api/channels
func (h *ChannelHandlers) List(c *gin.Context) {
	channels, err := h.store.ListChannelsForUser(c.Request.Context(), requestUserID(c))
	if err != nil {
		h.log.Error().Err(err).Msg("list channels failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	out := make([]ChannelResponse, 0, len(channels))
	for _, ch := range channels {
		out = append(out, ChannelResponse{ID: ch.ID, Name: ch.Name, CreatedBy: ch.CreatedBy})
	}
	c.JSON(http.StatusOK, out)
}

// AddMemberRequest is the member addition body.
type AddMemberRequest struct {
	UserID int64 `json:"user_id" binding:"required"`
}

// AddMember adds a user to a channel. The requester must be a member
// or hold an elevated role.
// POST /api/channels/:id/members
func (h *ChannelHandlers) AddMember(c *gin.Context) {
	channelID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	ctx := c.Request.Context()
	if _, err := h.store.GetChannelByID(ctx, channelID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "channel not found"})
			return
		}
		h.log.Error().Err(err).Int64("channel_id", channelID).Msg("load channel failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	if !requestRole(c).Elevated() {
		isMember, err := h.store.IsMember(ctx, channelID, requestUserID(c))
		if err != nil {
			h.log.Error().Err(err).Int64("channel_id", channelID).Msg("membership check failed")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
			return
		}
		if !isMember {
			c.JSON(http.StatusForbidden, ErrorResponse{Error: "not a channel member"})
			return
		}
	}

	if err := h.store.AddMember(ctx, channelID, req.UserID); err != nil {
		h.log.Error().Err(err).Int64("channel_id", channelID).Msg("add member failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	c.Status(http.StatusNoContent)
}

// RemoveMember removes a user from a channel. Users may remove
// themselves; removing anyone else requires an elevated role.
// DELETE /api/channels/:id/members/:userID
func (h *ChannelHandlers) RemoveMember(c *gin.Context) {
	channelID, ok := pathID(c, "id")
	if !ok {
		return
	}
	userID, ok := pathID(c, "userID")
	if !ok {
		return
	}

	if userID != requestUserID(c) && !requestRole(c).Elevated() {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "insufficient role"})
		return
	}

	if err := h.store.RemoveMember(c.Request.Context(), channelID, userID); err != nil {
		h.log.Error().Err(err).Int64("channel_id", channelID).Msg("remove member failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	c.Status(http.StatusNoContent)
}

// Messages returns channel history newest-first for members only.
// GET /api/channels/:id/messages?before=<id>&limit=<n>
func (h *ChannelHandlers) Messages(c *gin.Context) {
	channelID, ok := pathID(c, "id")
	if !ok {
		return
	}

	ctx := c.Request.Context()
	isMember, err := h.store.IsMember(ctx, channelID, requestUserID(c))
	if err != nil {
		h.log.Error().Err(err).Int64("channel_id", channelID).Msg("membership check failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	if !isMember {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "not a channel member"})
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	var beforeID *int64
	if before := c.Query("before"); before != "" {
		id, err := strconv.ParseInt(before, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid before parameter"})
			return
		}
		beforeID = &id
	}

	messages, err := h.store.ListMessages(ctx, channelID, limit, beforeID)
	if err != nil {
		h.log.Error().Err(err).Int64("channel_id", channelID).Msg("list messages failed")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	out := make([]proto.MessagePayload, 0, len(messages))
	for _, msg := range messages {
		out = append(out, messagePayload(msg, ""))
	}
	c.JSON(http.StatusOK, out)
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid " + name})
		return 0, false
	}
	return id, true
}
