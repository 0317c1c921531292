package external

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/screener-back/pkg/config"
	"github.com/screener-back/pkg/logger"
)

func newTestTelegram(url string, timeout time.Duration) *TelegramClient {
	return NewTelegramClient(&config.AlertsConfig{
		TelegramToken:  "123:secret",
		TelegramAPIURL: url,
		SendTimeout:    timeout,
		ParseMode:      "HTML",
	}, logger.Discard())
}

func TestTelegramSend(t *testing.T) {
	var got telegramSendMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/bot123:secret/sendMessage", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer server.Close()

	client := newTestTelegram(server.URL, time.Second)

	require.NoError(t, client.Send(context.Background(), 42, "<b>hi</b>"))
	assert.Equal(t, int64(42), got.ChatID)
	assert.Equal(t, "<b>hi</b>", got.Text)
	assert.Equal(t, "HTML", got.ParseMode)
}

func TestTelegramSendErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    string
	}{
		{
			name: "api error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
			},
			want: "chat not found",
		},
		{
			name: "ok false with 200",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`))
			},
			want: "blocked",
		},
		{
			name: "gateway error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			want: "status=502",
		},
		{
			name: "non json body with 200",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`<html>maintenance</html>`))
			},
			want: "status=200, failed to decode response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			err := newTestTelegram(server.URL, time.Second).Send(context.Background(), 1, "x")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestTelegramSendTimeoutHidesToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	err := newTestTelegram(server.URL, 50*time.Millisecond).Send(context.Background(), 1, "x")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "secret")
}
