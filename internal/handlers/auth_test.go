package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"social-chat-service/internal/auth"
	"social-chat-service/internal/mocks"
	"social-chat-service/internal/models"
	"social-chat-service/internal/repositories"
)

func loginRouter(users *mocks.UserRepositoryMock, tokens *auth.TokenService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewAuthHandler(users, tokens)
	r.POST("/login", h.Login)
	return r
}

func TestLoginIssuesToken(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	users.On("GetUserByEmail", mock.Anything, "alice@example.com").
		Return(models.User{ID: 3, Username: "Alice", Email: "alice@example.com"}, nil)
	tokens := auth.NewTokenService()
	r := loginRouter(users, tokens)

	body := bytes.NewBufferString(`{"email":"alice@example.com"}`)
	req := httptest.NewRequest(http.MethodPost, "/login", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Token string      `json:"token"`
		User  models.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, 3, resp.User.ID)

	userID, err := tokens.Validate(context.Background(), resp.Token)
	require.NoError(t, err)
	assert.Equal(t, 3, userID, "the issued token must resolve back to the user")
}

func TestLoginUnknownUser(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	users.On("GetUserByEmail", mock.Anything, "nobody@example.com").
		Return(models.User{}, repositories.ErrUserNotFound)
	r := loginRouter(users, auth.NewTokenService())

	body := bytes.NewBufferString(`{"email":"nobody@example.com"}`)
	req := httptest.NewRequest(http.MethodPost, "/login", body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginRequiresEmail(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	r := loginRouter(users, auth.NewTokenService())

	req := httptest.NewRequest(http.MethodPost, "/login", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	users.AssertNotCalled(t, "GetUserByEmail", mock.Anything, mock.Anything)
}
