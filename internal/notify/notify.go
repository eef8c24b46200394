package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"stocktrack/internal/domain"
)

// Notifier receives low and out-of-stock classifications. It only reads.
type Notifier interface {
	NotifyStockAlerts(ctx context.Context, alerts domain.StockAlerts) error
}

type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NotifyStockAlerts(_ context.Context, alerts domain.StockAlerts) error {
	n.logger.Warn("stock needs attention",
		zap.Int64("threshold", alerts.Threshold),
		zap.Strings("low_stock", keys(alerts.LowStock)),
		zap.Strings("out_of_stock", keys(alerts.OutOfStock)),
	)
	return nil
}

// WebhookNotifier posts the alert payload as JSON to a fixed URL.
type WebhookNotifier struct {
	httpClient *resty.Client
	url        string
}

func NewWebhookNotifier(url string) *WebhookNotifier {
	client := resty.New().
		SetHeader("Content-Type", "application/json").
		SetTimeout(15 * time.Second)

	return &WebhookNotifier{httpClient: client, url: strings.TrimSpace(url)}
}

type alertPayload struct {
	Event      string             `json:"event"`
	Threshold  int64              `json:"threshold"`
	LowStock   []domain.StockItem `json:"low_stock"`
	OutOfStock []domain.StockItem `json:"out_of_stock"`
	SentAt     time.Time          `json:"sent_at"`
}

func (n *WebhookNotifier) NotifyStockAlerts(ctx context.Context, alerts domain.StockAlerts) error {
	payload := alertPayload{
		Event:      "stock.alerts",
		Threshold:  alerts.Threshold,
		LowStock:   alerts.LowStock,
		OutOfStock: alerts.OutOfStock,
		SentAt:     time.Now().UTC(),
	}

	resp, err := n.httpClient.R().
		SetContext(ctx).
		SetBody(payload).
		Post(n.url)
	if err != nil {
		return fmt.Errorf("send stock alerts: %w", err)
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		return fmt.Errorf("stock alert webhook: status=%d body=%s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}
	return nil
}

func keys(items []domain.StockItem) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.Key)
	}
	return out
}
