package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"messenger-service/internal/repositories"
	"messenger-service/internal/ws"
)

// MessageHandler persists messages and read receipts, then hands the stored
// records to the relay. The broadcast never runs unless the durable write
// succeeded.
type MessageHandler struct {
	chats    repositories.ChatRepository
	messages repositories.MessageRepository
	hub      *ws.Hub
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(chats repositories.ChatRepository, messages repositories.MessageRepository, hub *ws.Hub) *MessageHandler {
	return &MessageHandler{chats: chats, messages: messages, hub: hub}
}

// SendMessage stores a message and relays it to the chat room.
func (h *MessageHandler) SendMessage(c *gin.Context) {
	var req struct {
		ChatID  int    `json:"chat_id" binding:"required"`
		Content string `json:"content" binding:"required,max=2000"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	member, err := h.chats.IsParticipant(c.Request.Context(), req.ChatID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat member"})
		return
	}

	msg, err := h.messages.CreateMessage(c.Request.Context(), req.ChatID, userID, req.Content)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store message"})
		return
	}

	if err := h.chats.SetLastMessage(c.Request.Context(), req.ChatID, msg.ID, msg.CreatedAt); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update chat"})
		return
	}

	h.hub.BroadcastMessage(req.ChatID, msg)
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// GetMessages returns one page of a chat's history, oldest first.
func (h *MessageHandler) GetMessages(c *gin.Context) {
	chatID, err := strconv.Atoi(c.Param("chat_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}

	userID := c.GetInt("userID")
	member, err := h.chats.IsParticipant(c.Request.Context(), chatID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat member"})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}

	msgs, err := h.messages.ListMessages(c.Request.Context(), chatID, page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	total, err := h.messages.CountMessages(c.Request.Context(), chatID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}

	totalPages := (total + limit - 1) / limit
	c.JSON(http.StatusOK, gin.H{
		"messages": msgs,
		"pagination": gin.H{
			"current_page":   page,
			"total_pages":    totalPages,
			"total_messages": total,
		},
	})
}

// MarkRead flips a message's read flag and relays the transition. Only a
// recipient may mark a message read.
func (h *MessageHandler) MarkRead(c *gin.Context) {
	messageID, err := strconv.Atoi(c.Param("message_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message id"})
		return
	}

	userID := c.GetInt("userID")
	msg, err := h.messages.GetMessage(c.Request.Context(), messageID)
	if err != nil {
		if errors.Is(err, repositories.ErrMessageNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load message"})
		return
	}

	member, err := h.chats.IsParticipant(c.Request.Context(), msg.ChatID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to verify membership"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat member"})
		return
	}

	updated, err := h.messages.MarkRead(c.Request.Context(), messageID, userID, timeNow())
	if err != nil {
		if errors.Is(err, repositories.ErrOwnMessageRead) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot mark your own message as read"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark message read"})
		return
	}

	h.hub.BroadcastMessageRead(updated.ChatID, updated.ID, *updated.ReadAt)
	c.JSON(http.StatusOK, gin.H{"message": updated})
}
