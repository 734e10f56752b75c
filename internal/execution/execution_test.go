package execution

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fleetops/backend/internal/models"
)

func TestMockPublisherStableID(t *testing.T) {
	batch := models.SchedulerBatch{ID: "batch-1"}

	first, err := MockPublisher{}.PublishBatch(context.Background(), batch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := MockPublisher{}.PublishBatch(context.Background(), batch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Fatalf("published id not stable: %s vs %s", first, second)
	}
	if !strings.HasPrefix(first, "pub_") {
		t.Fatalf("unexpected id format: %s", first)
	}

	other, _ := MockPublisher{}.PublishBatch(context.Background(), models.SchedulerBatch{ID: "batch-2"})
	if other == first {
		t.Fatalf("distinct batches got the same published id")
	}
}

func TestHTTPPublisher(t *testing.T) {
	var got publishRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/batches" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(publishResponse{PublishedBatchID: "pub_remote"})
	}))
	defer srv.Close()

	batch := models.SchedulerBatch{
		ID:          "batch-1",
		WarehouseID: "wh-1",
		FacilityIDs: []string{"fac-1"},
		PlannedDate: time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC),
	}
	id, err := HTTPPublisher{BaseURL: srv.URL}.PublishBatch(context.Background(), batch)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "pub_remote" {
		t.Fatalf("expected pub_remote, got %s", id)
	}
	if got.BatchID != "batch-1" || got.PlannedDate != "2026-09-15" {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestHTTPPublisherServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if _, err := (HTTPPublisher{BaseURL: srv.URL}).PublishBatch(context.Background(), models.SchedulerBatch{ID: "b"}); err == nil {
		t.Fatalf("expected error on 502")
	}
}

func TestHTTPPublisherEmptyID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(publishResponse{})
	}))
	defer srv.Close()

	if _, err := (HTTPPublisher{BaseURL: srv.URL}).PublishBatch(context.Background(), models.SchedulerBatch{ID: "b"}); err == nil {
		t.Fatalf("expected error on empty published_batch_id")
	}
}
