package autorole

import (
	"context"
	"errors"

	"github.com/ishyv/tx-discord-bot-sub004/metrics"
	"github.com/sirupsen/logrus"
)

//BestEffort runs fn and absorbs whatever goes wrong: errors and panics are logged and
//counted, never returned. Used wherever a failure must not break the caller's main flow,
//such as gateway handlers, scheduler items and direct messages.
func BestEffort(ctx context.Context, op string, fn func(ctx context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.BestEffortFailures.WithLabelValues(op).Inc()
			logrus.WithField("op", op).Errorf("Best-effort operation panicked: %v", r)
		}
	}()
	err := fn(ctx)
	if err == nil {
		return
	}
	if errors.Is(err, ErrFeatureDisabled) {
		logrus.WithField("op", op).Debugf("Skipped because %v", err)
		return
	}
	metrics.BestEffortFailures.WithLabelValues(op).Inc()
	logrus.WithField("op", op).Warnf("Best-effort operation failed due to error %v", err)
}
