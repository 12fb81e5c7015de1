package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/config"
)

func TestNotificationService_Disabled(t *testing.T) {
	ns, err := NewNotificationService(config.TelegramConfig{}, quietLogger())
	require.NoError(t, err)
	assert.False(t, ns.Enabled())

	err = ns.NotifyAlert(context.Background(), &AlertResult{CoinID: "bitcoin"})
	assert.ErrorIs(t, err, ErrNotifierDisabled)
}

func TestNotificationService_SendsMessage(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
		texts []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		mu.Lock()
		paths = append(paths, r.URL.Path)
		texts = append(texts, r.FormValue("text"))
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":42,"type":"private"},"text":"ok"}}`))
	}))
	defer srv.Close()

	ns, err := NewNotificationService(config.TelegramConfig{BotToken: "123:abc", ChatID: 42}, quietLogger(),
		bot.WithServerURL(srv.URL))
	require.NoError(t, err)
	require.True(t, ns.Enabled())

	rsi := 75.0
	err = ns.NotifyAlert(context.Background(), &AlertResult{
		CoinID:       "bitcoin",
		CurrentPrice: 105,
		TargetPrice:  100,
		Status:       AlertReached,
		Message:      "bitcoin has reached 105.00",
		RSI:          &rsi,
		RSISignal:    RSIOverbought,
	})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, paths, 1)
	assert.True(t, strings.HasSuffix(paths[0], "/sendMessage"))
	assert.Contains(t, texts[0], "BITCOIN price alert")
	assert.Contains(t, texts[0], "RSI: <code>75.0</code> (overbought)")
}

func TestFormatAlertMessage_EscapesHTML(t *testing.T) {
	msg := formatAlertMessage(&AlertResult{
		CoinID:   "a<b>",
		Status:   AlertBelow,
		Message:  "x & y",
		Warnings: []string{"<careful>"},
	})
	assert.Contains(t, msg, "A&lt;B&gt;")
	assert.Contains(t, msg, "x &amp; y")
	assert.Contains(t, msg, "&lt;careful&gt;")
	assert.True(t, strings.HasPrefix(msg, "⚠️"))
}
