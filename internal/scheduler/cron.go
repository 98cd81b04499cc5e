package scheduler

import (
	"fmt"
	"time"

	"github.com/adhocore/gronx"
)

// ValidateCron reports whether expr is a usable cron expression.
func ValidateCron(expr string) error {
	if !gronx.New().IsValid(expr) {
		return fmt.Errorf("invalid cron expression: %q", expr)
	}
	return nil
}

// NextCronTick returns the first tick of expr strictly after t.
func NextCronTick(expr string, t time.Time) (time.Time, error) {
	next, err := gronx.NextTickAfter(expr, t, false)
	if err != nil {
		return time.Time{}, fmt.Errorf("next tick: %w", err)
	}
	return next, nil
}
