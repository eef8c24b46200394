package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"stocktrack/internal/domain"
)

func sampleAlerts() domain.StockAlerts {
	return domain.StockAlerts{
		Threshold:  5,
		LowStock:   []domain.StockItem{{Key: "apple", Quantity: 3}},
		OutOfStock: []domain.StockItem{{Key: "box", Quantity: -2}},
	}
}

func TestWebhookNotifierPostsPayload(t *testing.T) {
	var got alertPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	err := NewWebhookNotifier(server.URL).NotifyStockAlerts(context.Background(), sampleAlerts())
	require.NoError(t, err)
	assert.Equal(t, "stock.alerts", got.Event)
	require.Len(t, got.LowStock, 1)
	assert.Equal(t, "apple", got.LowStock[0].Key)
	require.Len(t, got.OutOfStock, 1)
}

func TestWebhookNotifierReportsHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer server.Close()

	err := NewWebhookNotifier(server.URL).NotifyStockAlerts(context.Background(), sampleAlerts())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=502")
}

func TestLogNotifierWritesKeys(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	n := NewLogNotifier(zap.New(core))

	require.NoError(t, n.NotifyStockAlerts(context.Background(), sampleAlerts()))
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "stock needs attention", entry.Message)
	assert.Equal(t, int64(5), entry.ContextMap()["threshold"])
}
