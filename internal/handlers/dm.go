package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"dm-service/internal/blob"
	"dm-service/internal/delivery"
	"dm-service/internal/middleware"
	"dm-service/internal/models"
	"dm-service/internal/pagination"
	"dm-service/internal/repositories"
)

// maxUploadBytes bounds a single file upload.
const maxUploadBytes = 25 << 20

// DMHandler manages the direct-message request/response surface.
type DMHandler struct {
	engine        *delivery.Engine
	messages      repositories.MessageRepository
	conversations repositories.ConversationRepository
	blobs         blob.Store
}

// NewDMHandler builds a DMHandler.
func NewDMHandler(engine *delivery.Engine, messages repositories.MessageRepository, conversations repositories.ConversationRepository, blobs blob.Store) *DMHandler {
	return &DMHandler{
		engine:        engine,
		messages:      messages,
		conversations: conversations,
		blobs:         blobs,
	}
}

// ListConversations returns the caller's conversation summaries, newest
// activity first.
func (h *DMHandler) ListConversations(c *gin.Context) {
	participantID := c.GetString(middleware.ParticipantContextKey)

	cursor, ok := cursorFromQuery(c)
	if !ok {
		return
	}

	summaries, next, err := h.conversations.ListForParticipant(c.Request.Context(), participantID, cursor, limitFromQuery(c))
	if err != nil {
		respondError(c, err, "failed to load conversations")
		return
	}

	type lastMessageResponse struct {
		Content   string    `json:"content"`
		SenderID  string    `json:"sender_id"`
		Timestamp time.Time `json:"timestamp"`
		IsFromMe  bool      `json:"is_from_me"`
	}
	type conversationResponse struct {
		ConversationID string              `json:"conversation_id"`
		PeerID         string              `json:"peer_id"`
		LastMessage    lastMessageResponse `json:"last_message"`
		CreatedAt      time.Time           `json:"created_at"`
		UpdatedAt      time.Time           `json:"updated_at"`
	}

	responses := make([]conversationResponse, 0, len(summaries))
	for _, s := range summaries {
		last := s.Last()
		responses = append(responses, conversationResponse{
			ConversationID: s.ConversationID,
			PeerID:         s.PeerID,
			LastMessage: lastMessageResponse{
				Content:   last.Content,
				SenderID:  last.SenderID,
				Timestamp: last.Timestamp,
				IsFromMe:  last.SenderID == participantID,
			},
			CreatedAt: s.CreatedAt,
			UpdatedAt: s.UpdatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"conversations": responses,
		"pagination":    gin.H{"has_more": next != "", "cursor": next},
	})
}

// GetHistory returns the message history with one peer in ascending send
// order. An empty conversation is an empty page, not an error.
func (h *DMHandler) GetHistory(c *gin.Context) {
	participantID := c.GetString(middleware.ParticipantContextKey)
	peerID := c.Param("peer")
	if peerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing peer"})
		return
	}

	cursor, ok := cursorFromQuery(c)
	if !ok {
		return
	}

	conversationID := models.ConversationID(participantID, peerID)
	msgs, next, err := h.messages.GetMessagesByConversation(c.Request.Context(), conversationID, participantID, cursor, limitFromQuery(c))
	if err != nil {
		respondError(c, err, "failed to load messages")
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}

	c.JSON(http.StatusOK, gin.H{
		"messages":   msgs,
		"pagination": gin.H{"has_more": next != "", "cursor": next},
	})
}

// RecallMessage retracts a message's content for both participants.
func (h *DMHandler) RecallMessage(c *gin.Context) {
	participantID := c.GetString(middleware.ParticipantContextKey)

	var req struct {
		MessageID string `json:"message_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.engine.Recall(c.Request.Context(), participantID, req.MessageID)
	if err != nil {
		respondError(c, err, "failed to recall message")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": msg})
}

// DeleteMessage suppresses a message for the deleting sender only.
func (h *DMHandler) DeleteMessage(c *gin.Context) {
	participantID := c.GetString(middleware.ParticipantContextKey)

	var req struct {
		MessageID string `json:"message_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := h.engine.Delete(c.Request.Context(), participantID, req.MessageID); err != nil {
		respondError(c, err, "failed to delete message")
		return
	}

	c.Status(http.StatusNoContent)
}

// ForwardMessage sends a copy of an existing message to another participant.
func (h *DMHandler) ForwardMessage(c *gin.Context) {
	participantID := c.GetString(middleware.ParticipantContextKey)

	var req struct {
		MessageID  string `json:"message_id" binding:"required"`
		ReceiverID string `json:"receiver_id" binding:"required"`
		Content    string `json:"content"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.engine.Forward(c.Request.Context(), participantID, req.MessageID, req.ReceiverID, req.Content)
	if err != nil {
		respondError(c, err, "failed to forward message")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// UploadFile stores file bytes and returns the URL to use as file-kind
// message content.
func (h *DMHandler) UploadFile(c *gin.Context) {
	if h.blobs == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "file storage not configured"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file"})
		return
	}
	if fileHeader.Size > maxUploadBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file too large"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
		return
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	url, err := h.blobs.Store(c.Request.Context(), data, contentType)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to store file, try again"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"url": url})
}

func cursorFromQuery(c *gin.Context) (pagination.Cursor, bool) {
	cursor, err := pagination.Decode(c.Query("cursor"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cursor"})
		return pagination.Cursor{}, false
	}
	return cursor, true
}

func limitFromQuery(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}

// respondError maps the error taxonomy to HTTP statuses. Storage failures
// surface as a generic retry hint.
func respondError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, repositories.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, repositories.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "only the sender may do this"})
	case errors.Is(err, repositories.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
	case errors.Is(err, repositories.ErrStorageUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporary failure, try again"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
