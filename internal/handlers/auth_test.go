package handlers

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messenger-service/internal/auth"
	"messenger-service/internal/mocks"
	"messenger-service/internal/models"
	"messenger-service/internal/repositories"
)

func newAuthRouter() (*gin.Engine, *mocks.UserRepositoryMock, *auth.TokenService) {
	gin.SetMode(gin.TestMode)
	users := new(mocks.UserRepositoryMock)
	tokens := auth.NewTokenService("test-access", "test-refresh", 15*time.Minute, 24*time.Hour)
	handler := NewAuthHandler(users, tokens)

	router := gin.New()
	router.POST("/auth/register", handler.Register)
	router.POST("/auth/login", handler.Login)
	router.POST("/auth/refresh", handler.Refresh)
	return router, users, tokens
}

type tokenResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	User         models.User `json:"user"`
}

func TestRegisterIssuesTokenPair(t *testing.T) {
	router, users, tokens := newAuthRouter()

	users.On("CreateUser", mock.Anything, "alice", "alice@example.com", mock.AnythingOfType("string")).
		Return(models.User{ID: 1, Username: "alice", Email: "alice@example.com"}, nil).Once()

	rec := doJSON(t, router, http.MethodPost, "/auth/register", gin.H{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "secret123",
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.User.ID)

	userID, err := tokens.VerifyAccess(resp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, 1, userID)

	userID, err = tokens.VerifyRefresh(resp.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, 1, userID)
	users.AssertExpectations(t)
}

func TestRegisterDuplicateConflicts(t *testing.T) {
	router, users, _ := newAuthRouter()

	users.On("CreateUser", mock.Anything, "alice", "alice@example.com", mock.AnythingOfType("string")).
		Return(nil, repositories.ErrUserDuplicate).Once()

	rec := doJSON(t, router, http.MethodPost, "/auth/register", gin.H{
		"username": "alice",
		"email":    "alice@example.com",
		"password": "secret123",
	})

	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestRegisterValidatesInput(t *testing.T) {
	router, _, _ := newAuthRouter()

	rec := doJSON(t, router, http.MethodPost, "/auth/register", gin.H{
		"username": "al",
		"email":    "not-an-email",
		"password": "123",
	})

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginChecksPassword(t *testing.T) {
	router, users, _ := newAuthRouter()

	hash, err := auth.HashPassword("correct horse")
	require.NoError(t, err)
	stored := models.User{ID: 2, Username: "bob", Email: "bob@example.com", PasswordHash: hash}
	users.On("GetUserByEmail", mock.Anything, "bob@example.com").Return(stored, nil).Twice()

	rec := doJSON(t, router, http.MethodPost, "/auth/login", gin.H{"email": "bob@example.com", "password": "correct horse"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "access_token")

	rec = doJSON(t, router, http.MethodPost, "/auth/login", gin.H{"email": "bob@example.com", "password": "wrong"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginUnknownEmail(t *testing.T) {
	router, users, _ := newAuthRouter()

	users.On("GetUserByEmail", mock.Anything, "ghost@example.com").Return(nil, repositories.ErrUserNotFound).Once()

	rec := doJSON(t, router, http.MethodPost, "/auth/login", gin.H{"email": "ghost@example.com", "password": "whatever"})

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRefreshExchangesToken(t *testing.T) {
	router, _, tokens := newAuthRouter()

	refresh, err := tokens.IssueRefreshToken(4)
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodPost, "/auth/refresh", gin.H{"refresh_token": refresh})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	userID, err := tokens.VerifyAccess(resp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, 4, userID)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	router, _, tokens := newAuthRouter()

	// Access tokens are signed with a different secret and must not refresh.
	access, err := tokens.IssueAccessToken(4)
	require.NoError(t, err)

	rec := doJSON(t, router, http.MethodPost, "/auth/refresh", gin.H{"refresh_token": access})

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
