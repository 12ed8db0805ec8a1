package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"messenger-service/internal/models"
	"messenger-service/internal/presence"
	"messenger-service/internal/repositories"
)

// UserHandler serves user listings and presence lookups.
type UserHandler struct {
	users repositories.UserRepository
	cache *presence.Cache
}

// NewUserHandler builds a UserHandler.
func NewUserHandler(users repositories.UserRepository, cache *presence.Cache) *UserHandler {
	return &UserHandler{users: users, cache: cache}
}

// ListUsers returns every other user, optionally filtered by ?search=.
func (h *UserHandler) ListUsers(c *gin.Context) {
	userID := c.GetInt("userID")

	users, err := h.users.ListUsers(c.Request.Context(), userID, c.Query("search"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load users"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

// GetPresence returns a user's online state, preferring the cache over the
// durable store.
func (h *UserHandler) GetPresence(c *gin.Context) {
	targetID, err := strconv.Atoi(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	if online, lastSeen, err := h.cache.Get(c.Request.Context(), targetID); err == nil {
		c.JSON(http.StatusOK, models.Presence{UserID: targetID, IsOnline: online, LastSeen: lastSeen})
		return
	}

	user, err := h.users.GetUser(c.Request.Context(), targetID)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
		return
	}
	c.JSON(http.StatusOK, models.Presence{UserID: user.ID, IsOnline: user.IsOnline, LastSeen: user.LastSeen})
}
