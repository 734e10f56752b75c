package execution

import (
	"context"
	"fmt"

	"github.com/fleetops/backend/internal/models"
	"github.com/fleetops/backend/internal/utils"
)

// MockPublisher accepts every batch and derives a stable published id from
// the batch id, so repeated local publishes are recognizable.
type MockPublisher struct{}

func (MockPublisher) PublishBatch(ctx context.Context, batch models.SchedulerBatch) (string, error) {
	return fmt.Sprintf("pub_%016x", utils.HashStringToUint64(batch.ID)), nil
}
