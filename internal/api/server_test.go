package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tribes-lab/backend/internal/entity"
	"github.com/tribes-lab/backend/internal/repository"
	"github.com/tribes-lab/backend/internal/testutil"
)

func Test_Server_ServesRepositoryView(t *testing.T) {
	ctx := testutil.MockContext()
	repo := repository.NewPostRepository(testutil.NewInMemoryRedisClient())

	require.NoError(t, repo.Upsert(ctx, &entity.Post{
		ID:        7,
		Author:    "0xauthor",
		TribeID:   3,
		CreatedAt: time.Unix(1700000000, 0),
		Content:   "hello",
		Type:      entity.PostTypeText,
	}))

	srv := NewServer(ctx, repo)
	ts := httptest.NewServer(srv.httpSrv.Handler)
	defer ts.Close()

	caller := NewCaller(ts.URL)
	require.NotNil(t, caller)

	post, err := caller.GetPost(context.Background(), "7")
	require.NoError(t, err)
	require.NotNil(t, post)
	require.Equal(t, "7", post.ID)
	require.Equal(t, "0xauthor", post.Author)
	require.Equal(t, "hello", post.Content)

	missing, err := caller.GetPost(context.Background(), "99")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func Test_Server_RejectsBadRequests(t *testing.T) {
	ctx := testutil.MockContext()
	srv := NewServer(ctx, repository.NewPostRepository(nil))
	ts := httptest.NewServer(srv.httpSrv.Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/posts/not-a-number")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/api/posts/1", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func Test_Caller_DisabledWithoutEndpoint(t *testing.T) {
	require.Nil(t, NewCaller(""))
}
