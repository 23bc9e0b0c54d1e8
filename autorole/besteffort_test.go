package autorole

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ishyv/tx-discord-bot-sub004/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestBestEffortAbsorbsFailures(t *testing.T) {
	tests := []struct {
		op        string
		fn        func(ctx context.Context) error
		wantCount float64
	}{
		{"test_ok", func(ctx context.Context) error { return nil }, 0},
		{"test_error", func(ctx context.Context) error { return errors.New("boom") }, 1},
		{"test_disabled", func(ctx context.Context) error { return fmt.Errorf("guild x: %w", ErrFeatureDisabled) }, 0},
		{"test_panic", func(ctx context.Context) error { panic("boom") }, 1},
	}
	for _, tt := range tests {
		before := testutil.ToFloat64(metrics.BestEffortFailures.WithLabelValues(tt.op))
		BestEffort(context.Background(), tt.op, tt.fn)
		got := testutil.ToFloat64(metrics.BestEffortFailures.WithLabelValues(tt.op)) - before
		if got != tt.wantCount {
			t.Errorf("%v: expected %v recorded failures, got %v", tt.op, tt.wantCount, got)
		}
	}
}
