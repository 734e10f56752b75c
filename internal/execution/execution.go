package execution

import (
	"context"

	"github.com/fleetops/backend/internal/models"
)

// Publisher hands a scheduled batch to the external execution/tracking
// system. The core only needs the finalized batch id back, never the
// system's internals.
type Publisher interface {
	PublishBatch(ctx context.Context, batch models.SchedulerBatch) (publishedBatchID string, err error)
}
