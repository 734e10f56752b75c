package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/fleetops/backend/internal/models"
)

func str(s string) *string { return &s }

type fakeBatchStore struct {
	batch    models.SchedulerBatch
	slots    *fakeSlotStore
	stops    []models.Stop
	missing  []string
	casErr   error
	casLoses bool
}

func (f *fakeBatchStore) GetBatch(ctx context.Context, batchID string) (models.SchedulerBatch, error) {
	return f.batch, nil
}

func (f *fakeBatchStore) UpdateBatchStatusCAS(ctx context.Context, batchID string, from, to models.BatchStatus, updatedBy string) (bool, error) {
	if f.casErr != nil {
		return false, f.casErr
	}
	if f.casLoses || f.batch.Status != from {
		return false, nil
	}
	f.batch.Status = to
	return true, nil
}

func (f *fakeBatchStore) CancelBatch(ctx context.Context, batchID string, from models.BatchStatus, updatedBy string) (bool, int64, error) {
	if f.casErr != nil {
		return false, 0, f.casErr
	}
	if f.casLoses || f.batch.Status != from {
		return false, 0, nil
	}
	f.batch.Status = models.BatchCancelled
	if f.slots == nil {
		return true, 0, nil
	}
	released, err := f.slots.ReleaseAssignments(ctx, batchID)
	return true, released, err
}

func (f *fakeBatchStore) SetPublishedBatchID(ctx context.Context, batchID, publishedBatchID string) error {
	f.batch.PublishedBatchID = &publishedBatchID
	return nil
}

func (f *fakeBatchStore) ListStopPackages(ctx context.Context, batch models.SchedulerBatch) ([]models.Stop, []string, error) {
	return f.stops, f.missing, nil
}

type fakePublisher struct {
	id   string
	err  error
	sent int
}

func (f *fakePublisher) PublishBatch(ctx context.Context, batch models.SchedulerBatch) (string, error) {
	f.sent++
	if f.err != nil {
		return "", f.err
	}
	return f.id, nil
}

func newLifecycle(batch models.SchedulerBatch) (*LifecycleService, *fakeBatchStore, *fakeSlotStore, *fakePublisher) {
	slotStore := newFakeSlotStore(twoTierConfig())
	store := &fakeBatchStore{batch: batch, slots: slotStore}
	pub := &fakePublisher{id: "pub_1"}
	svc := &LifecycleService{
		Store:     store,
		Slots:     &SlotService{Store: slotStore},
		Publisher: pub,
	}
	return svc, store, slotStore, pub
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to models.BatchStatus
		want     bool
	}{
		{models.BatchDraft, models.BatchReady, true},
		{models.BatchDraft, models.BatchCancelled, true},
		{models.BatchDraft, models.BatchScheduled, false},
		{models.BatchDraft, models.BatchPublished, false},
		{models.BatchReady, models.BatchScheduled, true},
		{models.BatchReady, models.BatchPublished, false},
		{models.BatchReady, models.BatchCancelled, true},
		{models.BatchScheduled, models.BatchPublished, true},
		{models.BatchScheduled, models.BatchCancelled, true},
		{models.BatchScheduled, models.BatchDraft, false},
		{models.BatchPublished, models.BatchCancelled, false},
		{models.BatchPublished, models.BatchDraft, false},
		{models.BatchCancelled, models.BatchDraft, false},
		{models.BatchReady, models.BatchReady, true},
		{models.BatchPublished, models.BatchPublished, true},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestTransitionSameStateIsIdempotent(t *testing.T) {
	svc, store, _, _ := newLifecycle(models.SchedulerBatch{ID: "b1", Status: models.BatchDraft})

	out, err := svc.Transition(context.Background(), "b1", models.BatchDraft, "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Status != models.BatchDraft || store.batch.Status != models.BatchDraft {
		t.Fatalf("no-op transition mutated the batch: %+v", out)
	}
}

func TestTransitionRejectsIllegalEdge(t *testing.T) {
	svc, _, _, _ := newLifecycle(models.SchedulerBatch{ID: "b1", Status: models.BatchDraft})

	_, err := svc.Transition(context.Background(), "b1", models.BatchPublished, "alice")
	var invalid InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	if invalid.From != models.BatchDraft || invalid.To != models.BatchPublished {
		t.Fatalf("unexpected edge in error: %+v", invalid)
	}
}

func TestTransitionPublishedIsTerminal(t *testing.T) {
	for _, target := range []models.BatchStatus{models.BatchDraft, models.BatchReady, models.BatchScheduled, models.BatchCancelled} {
		svc, _, _, _ := newLifecycle(models.SchedulerBatch{ID: "b1", Status: models.BatchPublished})
		_, err := svc.Transition(context.Background(), "b1", target, "alice")
		var invalid InvalidTransitionError
		if !errors.As(err, &invalid) {
			t.Fatalf("published -> %s: expected InvalidTransitionError, got %v", target, err)
		}
	}
}

func TestTransitionDraftToReady(t *testing.T) {
	svc, store, slotStore, _ := newLifecycle(models.SchedulerBatch{
		ID:        "b1",
		Status:    models.BatchDraft,
		VehicleID: str("veh-1"),
	})
	store.stops = []models.Stop{
		{FacilityID: "fac-1", Packages: []models.Package{pkg("p1", 20, 0.1)}},
	}

	out, err := svc.Transition(context.Background(), "b1", models.BatchReady, "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Status != models.BatchReady {
		t.Fatalf("expected ready, got %s", out.Status)
	}
	if len(slotStore.inserted) != 1 {
		t.Fatalf("expected slot assignment during guard, got %d rows", len(slotStore.inserted))
	}
}

func TestTransitionDraftToReadyWithoutVehicle(t *testing.T) {
	svc, _, _, _ := newLifecycle(models.SchedulerBatch{ID: "b1", Status: models.BatchDraft})
	if _, err := svc.Transition(context.Background(), "b1", models.BatchReady, "alice"); err == nil {
		t.Fatalf("expected guard failure without vehicle")
	}
}

func TestTransitionDraftToReadyPackagingNotFinal(t *testing.T) {
	svc, store, _, _ := newLifecycle(models.SchedulerBatch{
		ID:        "b1",
		Status:    models.BatchDraft,
		VehicleID: str("veh-1"),
	})
	store.missing = []string{"fac-2"}

	if _, err := svc.Transition(context.Background(), "b1", models.BatchReady, "alice"); err == nil {
		t.Fatalf("expected guard failure with unfinalized packaging")
	}
	if store.batch.Status != models.BatchDraft {
		t.Fatalf("failed guard must not change status, got %s", store.batch.Status)
	}
}

func TestTransitionDraftToReadyCapacityExceeded(t *testing.T) {
	svc, store, _, _ := newLifecycle(models.SchedulerBatch{
		ID:        "b1",
		Status:    models.BatchDraft,
		VehicleID: str("veh-1"),
	})
	store.stops = []models.Stop{
		{FacilityID: "fac-1", Packages: []models.Package{pkg("huge", 500, 0.1)}},
	}

	_, err := svc.Transition(context.Background(), "b1", models.BatchReady, "alice")
	var capErr CapacityExceededError
	if !errors.As(err, &capErr) {
		t.Fatalf("expected CapacityExceededError, got %v", err)
	}
	if store.batch.Status != models.BatchDraft {
		t.Fatalf("failed guard must not change status, got %s", store.batch.Status)
	}
}

func TestTransitionReadyToScheduledRequiresAssignment(t *testing.T) {
	svc, store, _, _ := newLifecycle(models.SchedulerBatch{
		ID:        "b1",
		Status:    models.BatchReady,
		VehicleID: str("veh-1"),
	})
	if _, err := svc.Transition(context.Background(), "b1", models.BatchScheduled, "alice"); err == nil {
		t.Fatalf("expected guard failure without driver")
	}

	store.batch.DriverID = str("drv-1")
	out, err := svc.Transition(context.Background(), "b1", models.BatchScheduled, "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Status != models.BatchScheduled {
		t.Fatalf("expected scheduled, got %s", out.Status)
	}
}

func TestTransitionScheduledToPublished(t *testing.T) {
	svc, store, _, pub := newLifecycle(models.SchedulerBatch{
		ID:        "b1",
		Status:    models.BatchScheduled,
		DriverID:  str("drv-1"),
		VehicleID: str("veh-1"),
	})
	pub.id = "pub_42"

	out, err := svc.Transition(context.Background(), "b1", models.BatchPublished, "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Status != models.BatchPublished {
		t.Fatalf("expected published, got %s", out.Status)
	}
	if out.PublishedBatchID == nil || *out.PublishedBatchID != "pub_42" {
		t.Fatalf("published_batch_id not set: %+v", out.PublishedBatchID)
	}
	if pub.sent != 1 {
		t.Fatalf("expected exactly one publish call, got %d", pub.sent)
	}
	if store.batch.Status != models.BatchPublished {
		t.Fatalf("store not updated: %s", store.batch.Status)
	}
}

func TestTransitionPublishFailureRevertsClaim(t *testing.T) {
	svc, store, _, pub := newLifecycle(models.SchedulerBatch{
		ID:        "b1",
		Status:    models.BatchScheduled,
		DriverID:  str("drv-1"),
		VehicleID: str("veh-1"),
	})
	pub.err = fmt.Errorf("execution system unavailable")

	if _, err := svc.Transition(context.Background(), "b1", models.BatchPublished, "alice"); err == nil {
		t.Fatalf("expected publish failure to propagate")
	}
	if store.batch.Status != models.BatchScheduled {
		t.Fatalf("claim not reverted, status %s", store.batch.Status)
	}
	if store.batch.PublishedBatchID != nil {
		t.Fatalf("published_batch_id must stay unset on failure")
	}
}

func TestTransitionCancelReleasesSlots(t *testing.T) {
	svc, store, slotStore, _ := newLifecycle(models.SchedulerBatch{
		ID:        "b1",
		Status:    models.BatchReady,
		VehicleID: str("veh-1"),
	})
	slotStore.active = []models.SlotAssignment{
		{ID: "a1", BatchID: "b1", VehicleID: "veh-1", TierName: "Lower", SlotNumber: 1, Status: models.SlotStatusOccupied},
		{ID: "a2", BatchID: "b1", VehicleID: "veh-1", TierName: "Lower", SlotNumber: 2, Status: models.SlotStatusOccupied},
	}

	out, err := svc.Transition(context.Background(), "b1", models.BatchCancelled, "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Status != models.BatchCancelled {
		t.Fatalf("expected cancelled, got %s", out.Status)
	}
	if len(slotStore.active) != 0 {
		t.Fatalf("slots not released: %+v", slotStore.active)
	}
	if store.batch.Status != models.BatchCancelled {
		t.Fatalf("store not updated: %s", store.batch.Status)
	}
}

func TestTransitionCancelLostRaceKeepsSlots(t *testing.T) {
	svc, store, slotStore, _ := newLifecycle(models.SchedulerBatch{
		ID:        "b1",
		Status:    models.BatchReady,
		VehicleID: str("veh-1"),
	})
	store.casLoses = true
	slotStore.active = []models.SlotAssignment{
		{ID: "a1", BatchID: "b1", VehicleID: "veh-1", TierName: "Lower", SlotNumber: 1, Status: models.SlotStatusOccupied},
	}

	if _, err := svc.Transition(context.Background(), "b1", models.BatchCancelled, "alice"); err == nil {
		t.Fatalf("expected concurrent-modification error")
	}
	// A lost status edge must not free the batch's slots.
	if len(slotStore.active) != 1 {
		t.Fatalf("slots released despite losing the cancel edge: %+v", slotStore.active)
	}
	if store.batch.Status != models.BatchReady {
		t.Fatalf("status changed despite lost edge: %s", store.batch.Status)
	}
}
