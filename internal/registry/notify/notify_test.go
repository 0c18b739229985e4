package notify_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orels1/api.v3.cogs.red/internal/registry/notify"
)

type receivedPayload struct {
	Username string `json:"username"`
	Embeds   []struct {
		Title       string `json:"title"`
		Color       int    `json:"color"`
		Description string `json:"description"`
		Footer      struct {
			Text string `json:"text"`
		} `json:"footer"`
	} `json:"embeds"`
}

func TestNotify(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		msg notify.Message

		wantColor int
	}{
		"Success level": {
			msg:       notify.Message{Title: "Repo connected", Content: "orels1/ORELS-Cogs/master", Level: notify.LevelSuccess},
			wantColor: 0x00f97d,
		},
		"Danger level": {
			msg:       notify.Message{Title: "Sync failed", Level: notify.LevelDanger},
			wantColor: 0xff0000,
		},
		"Info level": {
			msg:       notify.Message{Title: "Heads up", Level: notify.LevelInfo},
			wantColor: 0x0068ff,
		},
		"Unknown level falls back to info": {
			msg:       notify.Message{Title: "Heads up", Level: notify.Level("loud")},
			wantColor: 0x0068ff,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var got receivedPayload
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, http.MethodPost, r.Method)
				require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
				w.WriteHeader(http.StatusNoContent)
			}))
			defer server.Close()

			n := notify.New(server.URL, "cogs.red")
			require.NoError(t, n.Notify(t.Context(), tc.msg), "Notify should succeed")

			assert.Equal(t, "cogs.red", got.Username)
			require.Len(t, got.Embeds, 1)
			assert.Equal(t, tc.msg.Title, got.Embeds[0].Title)
			assert.Equal(t, tc.msg.Content, got.Embeds[0].Description)
			assert.Equal(t, tc.wantColor, got.Embeds[0].Color)
			assert.Equal(t, "cogs.red", got.Embeds[0].Footer.Text)
		})
	}
}

func TestNotifyRejected(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	n := notify.New(server.URL, "cogs.red")
	require.Error(t, n.Notify(t.Context(), notify.Message{Title: "x"}), "a rejected delivery must surface")
}

func TestNotifyDisabled(t *testing.T) {
	t.Parallel()

	n := notify.New("", "cogs.red")
	assert.NoError(t, n.Notify(t.Context(), notify.Message{Title: "x"}), "an empty URL disables delivery")
}
