package registry

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *Store, *fakeSender) {
	t.Helper()
	store := openTestStore(t)
	sender := &fakeSender{}
	d := newTestDispatcher(store, sender, nyMorning)
	return NewServer(store, d, "test-public-key", zerolog.Nop()), store, sender
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSubscribeEndpoint(t *testing.T) {
	srv, store, _ := newTestServer(t)
	h := srv.Routes()

	rec := doJSON(t, h, http.MethodPost, "/api/subscribe",
		`{"subscription":{"endpoint":"ep-1","keys":{"p256dh":"a","auth":"b"}},"timezone":"UTC","hhmm":"09:00"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())

	sub, err := store.GetByEndpoint("ep-1")
	require.NoError(t, err)
	assert.Equal(t, "UTC", sub.Timezone)
	assert.Equal(t, "09:00", sub.HHMM)
}

func TestSubscribeRejectsBadPayload(t *testing.T) {
	srv, _, _ := newTestServer(t)
	h := srv.Routes()

	cases := []struct {
		name string
		body string
	}{
		{"not json", `{{{`},
		{"no subscription", `{"timezone":"UTC","hhmm":"09:00"}`},
		{"no endpoint", `{"subscription":{},"timezone":"UTC","hhmm":"09:00"}`},
		{"no timezone", `{"subscription":{"endpoint":"ep-1"},"hhmm":"09:00"}`},
		{"no hhmm", `{"subscription":{"endpoint":"ep-1"},"timezone":"UTC"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, h, http.MethodPost, "/api/subscribe", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), "Invalid payload")
		})
	}
}

func TestUpdateSettingsEndpoint(t *testing.T) {
	srv, store, _ := newTestServer(t)
	h := srv.Routes()
	require.NoError(t, store.Upsert("ep-1", `{"endpoint":"ep-1"}`, "UTC", "09:00"))

	rec := doJSON(t, h, http.MethodPut, "/api/update-settings",
		`{"endpoint":"ep-1","timezone":"Europe/Berlin","hhmm":"08:15"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	sub, err := store.GetByEndpoint("ep-1")
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", sub.Timezone)
	assert.Equal(t, "08:15", sub.HHMM)

	// Unknown endpoint is not an error: the client will re-subscribe
	rec = doJSON(t, h, http.MethodPut, "/api/update-settings",
		`{"endpoint":"nope","timezone":"UTC","hhmm":"09:00"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUnsubscribeEndpoint(t *testing.T) {
	srv, store, _ := newTestServer(t)
	h := srv.Routes()
	require.NoError(t, store.Upsert("ep-1", `{"endpoint":"ep-1"}`, "UTC", "09:00"))

	rec := doJSON(t, h, http.MethodPost, "/api/unsubscribe", `{"endpoint":"ep-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	_, err := store.GetByEndpoint("ep-1")
	assert.ErrorIs(t, err, ErrSubscriptionNotFound)

	rec = doJSON(t, h, http.MethodDelete, "/api/unsubscribe", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Missing endpoint")
}

func TestCronEndpoint(t *testing.T) {
	srv, store, sender := newTestServer(t)
	h := srv.Routes()
	require.NoError(t, store.Upsert("ep-1", `{"endpoint":"ep-1"}`, "America/New_York", "09:00"))

	req := httptest.NewRequest(http.MethodGet, "/api/cron", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var result DispatchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.OK)
	assert.Equal(t, 1, result.Sent)
	assert.Len(t, sender.sent, 1)
}

func TestVAPIDKeyEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)
	h := srv.Routes()

	req := httptest.NewRequest(http.MethodGet, "/api/vapid-public-key", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"key":"test-public-key"}`, rec.Body.String())
}
