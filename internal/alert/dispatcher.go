package alert

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"careguardian/internal/emotion"
)

// Notifier is the slice of the notification collaborator the dispatcher
// needs. Delivery confirmation is not part of the contract.
type Notifier interface {
	SendAlert(ctx context.Context, userID, userName string) error
}

// ShouldAlert reports whether a classified risk level warrants an
// emergency notification. Safe never alerts; levels outside the three
// canonical values never reach this predicate because the classifier
// fails closed on them.
func ShouldAlert(level emotion.Level) bool {
	return level == emotion.LevelDanger || level == emotion.LevelWarning
}

// Dispatcher fires emergency notifications. Dispatch is fire-and-forget:
// the sent flag is set optimistically once the call is made, a delivery
// failure is logged but never retried and never rolls back the
// classification result.
type Dispatcher struct {
	notifier Notifier
	logger   *zap.Logger

	mu   sync.Mutex
	sent bool
}

func NewDispatcher(notifier Notifier, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		notifier: notifier,
		logger:   logger,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, userID, userName string) {
	d.mu.Lock()
	d.sent = true
	d.mu.Unlock()

	if err := d.notifier.SendAlert(ctx, userID, userName); err != nil {
		d.logger.Error("emergency alert dispatch failed",
			zap.String("user_id", userID),
			zap.Error(err),
		)
	} else {
		d.logger.Info("emergency alert dispatched", zap.String("user_id", userID))
	}
}

// Sent reports whether an alert was dispatched for the current
// classification.
func (d *Dispatcher) Sent() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sent
}

// Reset clears the sent indicator. Called when a new classification
// starts and on logout.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = false
}
