package notifier

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewTelegram(t *testing.T) {
	t.Run("Missing Config", func(t *testing.T) {
		_, err := NewTelegram("", "chat")
		assert.Error(t, err)
		_, err = NewTelegram("token", "  ")
		assert.Error(t, err)
	})

	t.Run("Success", func(t *testing.T) {
		tg, err := NewTelegram("token", "-100123")
		assert.NoError(t, err)
		assert.NotNil(t, tg.Client)
	})
}

func TestTelegramSendText(t *testing.T) {
	t.Run("Send Success", func(t *testing.T) {
		var got map[string]any
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/bottoken/sendMessage", r.URL.Path)
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		tg, err := NewTelegram("token", "-100123")
		assert.NoError(t, err)
		tg.apiBase = srv.URL

		assert.NoError(t, tg.SendText("决策摘要"))
		assert.Equal(t, "-100123", got["chat_id"])
		assert.Equal(t, "决策摘要", got["text"])
		assert.Equal(t, "Markdown", got["parse_mode"])
	})

	t.Run("Server Error Exhausts Retries", func(t *testing.T) {
		calls := 0
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		tg, err := NewTelegram("token", "-100123")
		assert.NoError(t, err)
		tg.apiBase = srv.URL
		tg.sleep = func(time.Duration) {}

		assert.Error(t, tg.SendText("x"))
		assert.Equal(t, 3, calls)
	})

	t.Run("Noop Always Succeeds", func(t *testing.T) {
		var n TextNotifier = Noop{}
		assert.NoError(t, n.SendText("anything"))
	})
}
