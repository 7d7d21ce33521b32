package worker

import (
	"fmt"

	"github.com/iota-uz/sheet-importer/pkg/serrors"
)

var (
	ErrInvalidConfig = serrors.NewError("WORKER_INVALID_CONFIG", "invalid worker pool configuration", "")
	ErrPoolClosed    = serrors.NewError("WORKER_POOL_CLOSED", "worker pool is shut down", "")
	ErrTaskPanicked  = serrors.NewError("WORKER_TASK_PANICKED", "worker task panicked", "")
	ErrTaskAbandoned = serrors.NewError("WORKER_TASK_ABANDONED", "worker task abandoned before it started", "")
)

func invalidConfig(msg string, args ...any) error {
	return fmt.Errorf("%w: "+msg, append([]any{ErrInvalidConfig}, args...)...)
}
