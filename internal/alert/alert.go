package alert

import "stocktrack/internal/domain"

const (
	// NotificationThreshold drives the low-stock badge.
	NotificationThreshold int64 = 5
	// DashboardThreshold separates "well stocked" on the dashboard.
	DashboardThreshold int64 = 10
)

// Evaluate splits items into well-stocked (quantity > threshold), low-stock
// (0 < quantity <= threshold) and out-of-stock (quantity <= 0), keeping the
// input order inside each group. Callers always pass the threshold.
func Evaluate(items []domain.StockItem, threshold int64) domain.StockAlerts {
	alerts := domain.StockAlerts{
		Threshold:   threshold,
		WellStocked: make([]domain.StockItem, 0, len(items)),
		LowStock:    make([]domain.StockItem, 0),
		OutOfStock:  make([]domain.StockItem, 0),
	}

	for _, item := range items {
		switch item.Status(threshold) {
		case domain.StockStatusOutOfStock:
			alerts.OutOfStock = append(alerts.OutOfStock, item)
		case domain.StockStatusLowStock:
			alerts.LowStock = append(alerts.LowStock, item)
		default:
			alerts.WellStocked = append(alerts.WellStocked, item)
		}
	}
	return alerts
}
