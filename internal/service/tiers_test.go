package service

import (
	"errors"
	"strings"
	"testing"

	"github.com/fleetops/backend/internal/models"
)

func TestValidateTierConfigAccepts(t *testing.T) {
	cases := []struct {
		name  string
		tiers []models.VehicleTier
	}{
		{"single tier", []models.VehicleTier{
			{TierName: "Main", TierOrder: 1, MaxWeightKg: f64(500), SlotCount: 1},
		}},
		{"three tiers at the slot ceiling", []models.VehicleTier{
			{TierName: "Lower", TierOrder: 1, MaxWeightKg: f64(300), SlotCount: 4},
			{TierName: "Middle", TierOrder: 2, MaxWeightKg: f64(200), SlotCount: 4},
			{TierName: "Upper", TierOrder: 3, MaxWeightKg: f64(100), SlotCount: 4},
		}},
		{"volume-only ceiling", []models.VehicleTier{
			{TierName: "Main", TierOrder: 1, MaxVolumeM3: f64(2.5), SlotCount: 6},
		}},
		{"unsorted input", []models.VehicleTier{
			{TierName: "Upper", TierOrder: 2, MaxWeightKg: f64(100), SlotCount: 2},
			{TierName: "Lower", TierOrder: 1, MaxWeightKg: f64(300), SlotCount: 2},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := ValidateTierConfig(tc.tiers); err != nil {
				t.Fatalf("expected valid config: %v", err)
			}
		})
	}
}

func TestValidateTierConfigRejects(t *testing.T) {
	cases := []struct {
		name   string
		tiers  []models.VehicleTier
		reason string
	}{
		{"empty", nil, "no tiers"},
		{"gap in order", []models.VehicleTier{
			{TierName: "Lower", TierOrder: 1, MaxWeightKg: f64(100), SlotCount: 2},
			{TierName: "Upper", TierOrder: 3, MaxWeightKg: f64(100), SlotCount: 2},
		}, "contiguous"},
		{"duplicate order", []models.VehicleTier{
			{TierName: "Lower", TierOrder: 1, MaxWeightKg: f64(100), SlotCount: 2},
			{TierName: "Upper", TierOrder: 1, MaxWeightKg: f64(100), SlotCount: 2},
		}, "contiguous"},
		{"duplicate name", []models.VehicleTier{
			{TierName: "Deck", TierOrder: 1, MaxWeightKg: f64(100), SlotCount: 2},
			{TierName: "Deck", TierOrder: 2, MaxWeightKg: f64(100), SlotCount: 2},
		}, "duplicate tier_name"},
		{"zero slots", []models.VehicleTier{
			{TierName: "Lower", TierOrder: 1, MaxWeightKg: f64(100), SlotCount: 0},
		}, "at least one slot"},
		{"thirteen slots", []models.VehicleTier{
			{TierName: "Lower", TierOrder: 1, MaxWeightKg: f64(100), SlotCount: 7},
			{TierName: "Upper", TierOrder: 2, MaxWeightKg: f64(100), SlotCount: 6},
		}, "exceeds platform ceiling"},
		{"no ceiling at all", []models.VehicleTier{
			{TierName: "Lower", TierOrder: 1, SlotCount: 2},
		}, "neither a weight nor a volume ceiling"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateTierConfig(tc.tiers)
			var invalid InvalidTierConfigError
			if !errors.As(err, &invalid) {
				t.Fatalf("expected InvalidTierConfigError, got %v", err)
			}
			if !strings.Contains(invalid.Reason, tc.reason) {
				t.Fatalf("reason %q does not mention %q", invalid.Reason, tc.reason)
			}
		})
	}
}

func TestComputeTotalSlots(t *testing.T) {
	tiers := []models.VehicleTier{
		{TierName: "Lower", TierOrder: 1, SlotCount: 4},
		{TierName: "Upper", TierOrder: 2, SlotCount: 4},
	}
	if got := ComputeTotalSlots(tiers); got != 8 {
		t.Fatalf("expected 8 slots, got %d", got)
	}
}

func TestDeriveTierLimitsRemainderToLastTier(t *testing.T) {
	tiers := []models.VehicleTier{
		{TierName: "Lower", TierOrder: 1, WeightPct: f64(30), VolumePct: f64(30), SlotCount: 4},
		{TierName: "Middle", TierOrder: 2, WeightPct: f64(30), VolumePct: f64(30), SlotCount: 4},
		{TierName: "Upper", TierOrder: 3, WeightPct: f64(40), VolumePct: f64(40), SlotCount: 4},
	}

	out, err := DeriveTierLimits(1000, 10, tiers)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The last percentage tier takes gross minus what the intermediates got,
	// so the sum never exceeds the gross figure.
	if *out[0].MaxWeightKg != 300 || *out[1].MaxWeightKg != 300 || *out[2].MaxWeightKg != 400 {
		t.Fatalf("unexpected weight split: %v %v %v", *out[0].MaxWeightKg, *out[1].MaxWeightKg, *out[2].MaxWeightKg)
	}
	sumM3 := *out[0].MaxVolumeM3 + *out[1].MaxVolumeM3 + *out[2].MaxVolumeM3
	if sumM3 > 10 {
		t.Fatalf("derived volume ceilings exceed gross: %v", sumM3)
	}
}

func TestFloorHelpers(t *testing.T) {
	if got := floorOne(333.37); got != 333.3 {
		t.Fatalf("floorOne(333.37) = %v", got)
	}
	if got := floorThree(0.12345); got != 0.123 {
		t.Fatalf("floorThree(0.12345) = %v", got)
	}
}

func TestDeriveTierLimitsPartialSplit(t *testing.T) {
	tiers := []models.VehicleTier{
		{TierName: "Lower", TierOrder: 1, WeightPct: f64(60), SlotCount: 4},
		{TierName: "Upper", TierOrder: 2, WeightPct: f64(40), SlotCount: 4},
	}

	out, err := DeriveTierLimits(500, 0, tiers)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *out[0].MaxWeightKg != 300 || *out[1].MaxWeightKg != 200 {
		t.Fatalf("unexpected split: %v %v", *out[0].MaxWeightKg, *out[1].MaxWeightKg)
	}
}

func TestDeriveTierLimitsRejectsOversubscription(t *testing.T) {
	tiers := []models.VehicleTier{
		{TierName: "Lower", TierOrder: 1, WeightPct: f64(70), SlotCount: 4},
		{TierName: "Upper", TierOrder: 2, WeightPct: f64(40), SlotCount: 4},
	}
	_, err := DeriveTierLimits(500, 0, tiers)
	var invalid InvalidTierConfigError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidTierConfigError, got %v", err)
	}
}

func TestDeriveTierLimitsRejectsNonPositivePct(t *testing.T) {
	tiers := []models.VehicleTier{
		{TierName: "Lower", TierOrder: 1, WeightPct: f64(0), SlotCount: 4},
	}
	if _, err := DeriveTierLimits(500, 0, tiers); err == nil {
		t.Fatalf("expected error for non-positive weight_pct")
	}
}
