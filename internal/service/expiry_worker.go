package service

import (
	"context"
	"time"

	"care-connect-be/internal/pkg/logger"
)

// ExpiryWorker runs ExpireStale on a fixed interval until its context ends.
type ExpiryWorker struct {
	service  IConnectionService
	interval time.Duration
	logger   logger.ILogger
}

func NewExpiryWorker(service IConnectionService, interval time.Duration, log logger.ILogger) *ExpiryWorker {
	return &ExpiryWorker{
		service:  service,
		interval: interval,
		logger:   log,
	}
}

func (w *ExpiryWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("ExpiryWorker", "Expiry sweep started", map[string]interface{}{"interval": w.interval.String()})
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("ExpiryWorker", "Expiry sweep stopped", nil)
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *ExpiryWorker) sweep(ctx context.Context) {
	n, err := w.service.ExpireStale(ctx)
	if err != nil {
		w.logger.Error("ExpiryWorker", "Expiry sweep failed", map[string]interface{}{
			"error":   err.Error(),
			"expired": n,
		})
	}
}
