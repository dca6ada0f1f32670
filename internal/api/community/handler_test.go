//nolint:noctx // Test file uses http.NewRequest for simplicity
package community

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimd54/leafline/internal/api/middleware"
	"github.com/aimd54/leafline/internal/config"
	"github.com/aimd54/leafline/internal/models"
	"github.com/aimd54/leafline/internal/repository"
	"github.com/aimd54/leafline/internal/service/feed"
	"github.com/aimd54/leafline/internal/service/xp"
	"github.com/aimd54/leafline/internal/testutil"
	"github.com/aimd54/leafline/pkg/logger"
)

// setupRouter wires the handler to real services on an in-memory database.
func setupRouter(t *testing.T) (*gin.Engine, *models.User) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := &repository.DB{DB: testutil.OpenTestDB(t)}
	user := testutil.CreateUser(t, db.DB, "basil")

	xpSvc, err := xp.NewService(repository.NewXPRepository(db), nil, &config.XPConfig{DailyTotalCap: 100}, logger.NewNop())
	require.NoError(t, err)
	feedSvc := feed.NewService(repository.NewFeedRepository(db), xpSvc, logger.NewNop())
	handler := NewHandler(feedSvc, logger.NewNop())

	router := gin.New()
	router.Use(func(c *gin.Context) {
		middleware.SetCurrentUser(c, user)
		c.Next()
	})
	router.GET("/posts", handler.ListPosts)
	router.GET("/posts/:id", handler.GetPost)
	router.POST("/posts", handler.CreatePost)
	router.POST("/posts/:id/comments", handler.CreateComment)
	router.POST("/posts/:id/like", handler.ToggleLike)
	return router, user
}

func send(router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, _ := http.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreatePost_AwardsXPUntilCap(t *testing.T) {
	router, _ := setupRouter(t)

	for i := 1; i <= 5; i++ {
		w := send(router, http.MethodPost, "/posts", gin.H{"content": "my monstera grew a new leaf"})
		require.Equal(t, http.StatusCreated, w.Code)

		var body feed.PostResult
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.True(t, body.XP.Success, "post %d", i)
		assert.Equal(t, 3, body.XP.XPAwarded)
		assert.Equal(t, int64(3*i), body.XP.NewTotal)
	}

	// The sixth post is published without XP.
	w := send(router, http.MethodPost, "/posts", gin.H{"content": "one more"})
	require.Equal(t, http.StatusCreated, w.Code)

	var body feed.PostResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.XP.Success)
	assert.Equal(t, xp.ReasonDailyActionCapReached, body.XP.Reason)

	w = send(router, http.MethodGet, "/posts?limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":6`)
}

func TestCreatePost_Validation(t *testing.T) {
	router, _ := setupRouter(t)

	w := send(router, http.MethodPost, "/posts", gin.H{"content": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = send(router, http.MethodPost, "/posts", gin.H{"content": strings.Repeat("a", feed.MaxContentLength+1)})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCommentsAndLikes(t *testing.T) {
	router, _ := setupRouter(t)

	w := send(router, http.MethodPost, "/posts", gin.H{"content": "pothos cuttings for trade"})
	require.Equal(t, http.StatusCreated, w.Code)
	var created feed.PostResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	path := "/posts/" + strconv.FormatUint(uint64(created.Post.ID), 10)

	w = send(router, http.MethodPost, path+"/comments", gin.H{"content": "interested!"})
	require.Equal(t, http.StatusCreated, w.Code)
	var comment feed.CommentResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &comment))
	assert.True(t, comment.XP.Success)
	assert.Equal(t, 1, comment.XP.XPAwarded)

	w = send(router, http.MethodPost, path+"/like", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"liked":true`)
	assert.Contains(t, w.Body.String(), `"like_count":1`)

	w = send(router, http.MethodPost, path+"/like", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"liked":false`)

	w = send(router, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "interested!")
}

func TestNotFoundAndBadIDs(t *testing.T) {
	router, _ := setupRouter(t)

	assert.Equal(t, http.StatusNotFound, send(router, http.MethodGet, "/posts/999", nil).Code)
	assert.Equal(t, http.StatusNotFound, send(router, http.MethodPost, "/posts/999/like", nil).Code)
	assert.Equal(t, http.StatusNotFound, send(router, http.MethodPost, "/posts/999/comments", gin.H{"content": "hi"}).Code)
	assert.Equal(t, http.StatusBadRequest, send(router, http.MethodGet, "/posts/abc", nil).Code)
}
