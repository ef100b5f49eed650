package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"social-chat-service/internal/mocks"
	"social-chat-service/internal/models"
)

func groupRouter(groups *mocks.GroupRepositoryMock, userID int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", userID)
		c.Next()
	})
	h := NewGroupHandler(groups, nil)
	r.POST("/groups", h.CreateGroup)
	r.GET("/groups", h.ListGroups)
	return r
}

func postGroup(r *gin.Engine, payload string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/groups", bytes.NewBufferString(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateGroup(t *testing.T) {
	groups := new(mocks.GroupRepositoryMock)
	groups.On("CreateGroup", mock.Anything, 1, "weekend plans", []int{2, 3}).
		Return(models.Group{ID: 5, Name: "weekend plans", AdminID: 1, MemberIDs: []int{1, 2, 3}}, nil)
	r := groupRouter(groups, 1)

	w := postGroup(r, `{"name":"weekend plans","members":[2,3]}`)

	require.Equal(t, http.StatusCreated, w.Code)
	var group models.Group
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &group))
	assert.Equal(t, 5, group.ID)
	assert.Equal(t, 1, group.AdminID)
	assert.ElementsMatch(t, []int{1, 2, 3}, group.MemberIDs)
	groups.AssertExpectations(t)
}

func TestCreateGroupRequiresTwoOtherMembers(t *testing.T) {
	cases := []struct {
		name    string
		payload string
	}{
		{"one member", `{"name":"too small","members":[2]}`},
		{"no members", `{"name":"too small","members":[]}`},
		{"creator padding", `{"name":"too small","members":[1,1,2]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			groups := new(mocks.GroupRepositoryMock)
			r := groupRouter(groups, 1)

			w := postGroup(r, tc.payload)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			groups.AssertNotCalled(t, "CreateGroup", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestCreateGroupRejectsBlankName(t *testing.T) {
	groups := new(mocks.GroupRepositoryMock)
	r := groupRouter(groups, 1)

	w := postGroup(r, `{"name":"   ","members":[2,3]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateGroupStoreFailure(t *testing.T) {
	groups := new(mocks.GroupRepositoryMock)
	groups.On("CreateGroup", mock.Anything, 1, "plans", []int{2, 3}).
		Return(models.Group{}, errors.New("boom"))
	r := groupRouter(groups, 1)

	w := postGroup(r, `{"name":"plans","members":[2,3]}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestListGroups(t *testing.T) {
	groups := new(mocks.GroupRepositoryMock)
	groups.On("ListGroups", mock.Anything).Return([]models.Group{
		{ID: 1, Name: "book club", AdminID: 2, MemberIDs: []int{1, 2, 3}},
	}, nil)
	r := groupRouter(groups, 1)

	req := httptest.NewRequest(http.MethodGet, "/groups", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var out []models.Group
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "book club", out[0].Name)
}
