package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"messenger-service/internal/repositories"
)

// ChatHandler manages conversation endpoints.
type ChatHandler struct {
	chats repositories.ChatRepository
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(chats repositories.ChatRepository) *ChatHandler {
	return &ChatHandler{chats: chats}
}

// StartChat creates or returns the direct chat with another user.
func (h *ChatHandler) StartChat(c *gin.Context) {
	var req struct {
		ParticipantID int `json:"participant_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	chat, err := h.chats.CreateOrGetDirectChat(c.Request.Context(), userID, req.ParticipantID)
	if err != nil {
		if errors.Is(err, repositories.ErrSelfChat) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot chat with yourself"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create chat"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat": chat})
}

// CreateGroupChat creates a named group with the caller as admin.
func (h *ChatHandler) CreateGroupChat(c *gin.Context) {
	var req struct {
		Name           string `json:"name" binding:"required"`
		ParticipantIDs []int  `json:"participant_ids" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	userID := c.GetInt("userID")
	chat, err := h.chats.CreateGroupChat(c.Request.Context(), req.Name, userID, req.ParticipantIDs)
	if err != nil {
		if errors.Is(err, repositories.ErrNotEnoughMembers) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "group chat needs at least three participants"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create group"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"chat": chat})
}

// ListChats returns the caller's chats, most recently active first.
func (h *ChatHandler) ListChats(c *gin.Context) {
	userID := c.GetInt("userID")

	chats, err := h.chats.ListChatsForUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chats"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

// GetChat returns a single chat with participants populated.
func (h *ChatHandler) GetChat(c *gin.Context) {
	chatID, err := strconv.Atoi(c.Param("chat_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}

	chat, err := h.chats.GetChat(c.Request.Context(), chatID)
	if err != nil {
		if errors.Is(err, repositories.ErrChatNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chat"})
		return
	}

	userID := c.GetInt("userID")
	if !chat.HasParticipant(userID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a chat member"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat": chat})
}

// RenameGroup updates a group chat's name. Admin only.
func (h *ChatHandler) RenameGroup(c *gin.Context) {
	chatID, err := strconv.Atoi(c.Param("chat_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}

	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	chat, err := h.chats.GetChat(c.Request.Context(), chatID)
	if err != nil {
		if errors.Is(err, repositories.ErrChatNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chat"})
		return
	}

	userID := c.GetInt("userID")
	if !chat.IsGroup || chat.AdminID == nil || *chat.AdminID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the group admin can rename"})
		return
	}

	if err := h.chats.RenameGroup(c.Request.Context(), chatID, req.Name); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not rename group"})
		return
	}
	c.Status(http.StatusNoContent)
}
