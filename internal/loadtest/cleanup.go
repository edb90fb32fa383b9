package loadtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ResourceManager is anything that holds provisioned cloud resources for the
// duration of a run.
type ResourceManager interface {
	Cleanup(ctx context.Context) error
}

// CleanupAll releases every manager, in order, regardless of individual
// failures. It is meant to run exactly once per test via defer, so resources
// are released on every exit path. All cleanup errors are joined and
// returned so callers can surface them without masking the test outcome.
func CleanupAll(ctx context.Context, logger *slog.Logger, managers ...ResourceManager) error {
	if logger == nil {
		logger = slog.Default()
	}
	var errs []error
	for _, m := range managers {
		if m == nil {
			continue
		}
		if err := m.Cleanup(ctx); err != nil {
			logger.Error("resource cleanup failed", "manager", fmt.Sprintf("%T", m), "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
