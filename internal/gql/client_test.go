package gql

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veikko/twitch-harvester/internal/constants"
	"github.com/veikko/twitch-harvester/internal/logger"
)

type fakeAuth struct{}

func (fakeAuth) Login(ctx context.Context) error { return nil }
func (fakeAuth) AuthToken() string               { return "token" }
func (fakeAuth) UserID() string                  { return "123" }
func (fakeAuth) GetAuthHeaders() map[string]string {
	return map[string]string{"Authorization": "OAuth token", "Client-Id": constants.ClientIDBrowser}
}
func (fakeAuth) FetchIntegrityToken(ctx context.Context) (string, error) { return "", nil }

// testClient returns a Client pointed at srv with a short attempt pause and
// a pre-warmed version cache so no request leaves the test server.
func testClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	log, err := logger.Setup(logger.Config{Level: slog.LevelError, Colored: false})
	require.NoError(t, err)

	c := NewClient(fakeAuth{}, log)
	c.url = srv.URL
	c.attemptInterval = time.Millisecond
	c.versionCache.set(constants.ClientVersion)
	return c
}

func TestPostGQLRetriesRecoverableServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			json.NewEncoder(w).Encode(map[string]any{
				"errors": []map[string]any{{"message": "service timeout"}},
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"user": map[string]any{"id": "99"}},
		})
	}))
	defer srv.Close()

	c := testClient(t, srv)
	id, err := c.GetUserID(t.Context(), "caster")
	require.NoError(t, err)
	assert.Equal(t, "99", id)
	assert.Equal(t, int32(2), calls.Load(), "first attempt failed, second succeeded")
}

func TestPostGQLTransportFailuresExhaustAttempts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // every connection now refuses

	c := testClient(t, srv)
	_, err := c.PostGQL(t.Context(), constants.GQLGetIDFromLogin, map[string]any{"login": "caster"})

	var retryErr *RetryError
	require.ErrorAs(t, err, &retryErr)
	assert.Len(t, retryErr.Errors, constants.DefaultGQLAttempts)
}

func TestPostGQLNonRecoverableErrorAbortsImmediately(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		json.NewEncoder(w).Encode(map[string]any{
			"errors": []map[string]any{{"message": "PersistedQueryNotFound"}},
		})
	}))
	defer srv.Close()

	c := testClient(t, srv)
	_, err := c.PostGQL(t.Context(), constants.GQLGetIDFromLogin, nil)

	var serverErr *ServerError
	require.ErrorAs(t, err, &serverErr)
	var retryErr *RetryError
	assert.False(t, errors.As(err, &retryErr))
	assert.Equal(t, int32(1), calls.Load(), "no second attempt for a permanent error")
}

func TestPostGQLRetriesServerStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"ok": true}})
	}))
	defer srv.Close()

	c := testClient(t, srv)
	data, err := c.PostGQL(t.Context(), constants.GQLJoinRaid, nil)
	require.NoError(t, err)
	assert.NotNil(t, data)
	assert.Equal(t, int32(3), calls.Load())
}

func TestPostGQLMalformedBodyDoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	c := testClient(t, srv)
	_, err := c.PostGQL(t.Context(), constants.GQLGetIDFromLogin, nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestPostGQLBatchLengthMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{
			{"data": map[string]any{}},
		})
	}))
	defer srv.Close()

	c := testClient(t, srv)
	ops := []constants.GQLOperation{constants.GQLDropCampaignDetails, constants.GQLDropCampaignDetails}
	_, err := c.PostGQLBatch(t.Context(), ops, []map[string]any{{}, {}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 2")
}

func TestPostGQLBatchErroredElementYieldsNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{
			{"data": map[string]any{"first": true}},
			{"errors": []map[string]any{{"message": "PersistedQueryNotFound"}}},
		})
	}))
	defer srv.Close()

	c := testClient(t, srv)
	ops := []constants.GQLOperation{constants.GQLDropCampaignDetails, constants.GQLDropCampaignDetails}
	results, err := c.PostGQLBatch(t.Context(), ops, []map[string]any{{}, {}})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.NotNil(t, results[0])
	assert.Nil(t, results[1])
}

func TestGetStreamInfoDiscriminatesOffline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"user": map[string]any{
					"stream":            nil,
					"broadcastSettings": map[string]any{"title": "gone"},
				},
			},
		})
	}))
	defer srv.Close()

	c := testClient(t, srv)
	info, live, err := c.GetStreamInfo(t.Context(), "caster")
	require.NoError(t, err)
	assert.False(t, live)
	assert.Nil(t, info)
}

func TestGetStreamInfoCachesWithinTTL(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"user": map[string]any{
					"stream":            map[string]any{"id": "b1", "viewersCount": 7},
					"broadcastSettings": map[string]any{"title": "speedrun", "game": nil},
				},
			},
		})
	}))
	defer srv.Close()

	c := testClient(t, srv)
	first, live, err := c.GetStreamInfo(t.Context(), "caster")
	require.NoError(t, err)
	require.True(t, live)

	second, live, err := c.GetStreamInfo(t.Context(), "caster")
	require.NoError(t, err)
	assert.True(t, live)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), calls.Load(), "second lookup is served from the cache")

	// A different login misses the cache.
	_, _, err = c.GetStreamInfo(t.Context(), "other")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGetUserIDMissingUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"user": nil},
		})
	}))
	defer srv.Close()

	c := testClient(t, srv)
	_, err := c.GetUserID(t.Context(), "ghost")
	assert.ErrorIs(t, err, ErrStreamerDoesNotExist)
}
