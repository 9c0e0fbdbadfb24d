package loki

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureServer(t *testing.T, status int) (*httptest.Server, *[]PushRequest) {
	t.Helper()
	var got []PushRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/loki/api/v1/push", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body PushRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		got = append(got, body)
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func TestNewClient_RequiresURL(t *testing.T) {
	_, err := NewClient("  ", "", 0)
	assert.ErrorIs(t, err, ErrNoBaseURL)
}

func TestPushEventJSON_LabelsAndTimestamp(t *testing.T) {
	srv, got := captureServer(t, http.StatusNoContent)
	c, err := NewClient(srv.URL+"/", "", time.Second)
	require.NoError(t, err)

	raw := []byte(`{"id":"e1","type":"token_theft_detected","user_id":"u1","source":"auth_service","created_at":"2026-03-01T09:00:00Z"}`)
	require.NoError(t, c.PushEventJSON(context.Background(), raw))

	require.Len(t, *got, 1)
	stream := (*got)[0].Streams[0]
	assert.Equal(t, map[string]string{
		"job":        defaultJob,
		"event_type": "token_theft_detected",
		"source":     "auth_service",
	}, stream.Stream)
	want := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC).UnixNano()
	assert.Equal(t, []string{jsonInt(want), string(raw)}, stream.Values[0])
}

func TestPushEventJSON_UnparseableStillPushed(t *testing.T) {
	srv, got := captureServer(t, http.StatusNoContent)
	c, err := NewClient(srv.URL, "custom", time.Second)
	require.NoError(t, err)

	require.NoError(t, c.PushEventJSON(context.Background(), []byte("not json")))
	require.Len(t, *got, 1)
	assert.Equal(t, map[string]string{"job": "custom"}, (*got)[0].Streams[0].Stream)
	assert.Equal(t, "not json", (*got)[0].Streams[0].Values[0][1])
}

func TestPush_SanitizesLabels(t *testing.T) {
	srv, got := captureServer(t, http.StatusNoContent)
	c, err := NewClient(srv.URL, "", time.Second)
	require.NoError(t, err)

	require.NoError(t, c.Push(context.Background(), time.Now(), "line", map[string]string{"event_type": "a b/c", "empty": "  "}))
	labels := (*got)[0].Streams[0].Stream
	assert.Equal(t, "a_b_c", labels["event_type"])
	_, ok := labels["empty"]
	assert.False(t, ok)
}

func TestPush_Non2xx(t *testing.T) {
	srv, _ := captureServer(t, http.StatusBadRequest)
	c, err := NewClient(srv.URL, "", time.Second)
	require.NoError(t, err)
	assert.Error(t, c.Push(context.Background(), time.Now(), "line", nil))
}

func jsonInt(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
