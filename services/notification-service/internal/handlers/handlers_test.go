package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/apptbook/libs/auth"
	"github.com/md-rashed-zaman/apptbook/services/notification-service/internal/notify"
	"github.com/md-rashed-zaman/apptbook/services/notification-service/internal/storage"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code string `json:"code"`
	} `json:"error"`
}

func setup(t *testing.T) (http.Handler, *notify.Service) {
	t.Helper()
	svc := notify.NewService(storage.NewMemory(), nil)
	payload := []byte(`{"appointment_id":"appt-1","customer_id":"cust-1","appointment_date":"2030-01-28T10:00:00Z"}`)
	for _, id := range []string{"e1", "e2"} {
		_, err := svc.HandleEvent(context.Background(), id, notify.EventCompleted, payload)
		require.NoError(t, err)
	}
	return New(svc, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))).Router(), svc
}

func call(t *testing.T, h http.Handler, user, method, path string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if user != "" {
		req.Header.Set(auth.HeaderUserID, user)
		req.Header.Set(auth.HeaderRole, auth.RoleCustomer)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func TestNotificationRoutes(t *testing.T) {
	h, _ := setup(t)

	code, env := call(t, h, "", http.MethodGet, "/api/v1/notifications")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Unauthenticated", env.Error.Code)

	code, env = call(t, h, "cust-1", http.MethodGet, "/api/v1/notifications?size=1")
	require.Equal(t, http.StatusOK, code)
	var page struct {
		Items []notify.Notification `json:"items"`
		Total int                   `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Items, 1)

	code, env = call(t, h, "cust-1", http.MethodGet, "/api/v1/notifications/unread-count")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"count":2}`, string(env.Data))

	code, _ = call(t, h, "cust-1", http.MethodPut, "/api/v1/notifications/"+page.Items[0].ID+"/read")
	require.Equal(t, http.StatusOK, code)
	_, env = call(t, h, "cust-1", http.MethodGet, "/api/v1/notifications/unread-count")
	assert.JSONEq(t, `{"count":1}`, string(env.Data))

	code, env = call(t, h, "other", http.MethodPut, "/api/v1/notifications/"+page.Items[0].ID+"/read")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "NotFound", env.Error.Code)

	code, env = call(t, h, "cust-1", http.MethodPut, "/api/v1/notifications/read-all")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"updated":1}`, string(env.Data))

	code, env = call(t, h, "cust-1", http.MethodGet, "/api/v1/notifications?page=-1")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "ValidationFailed", env.Error.Code)
}
