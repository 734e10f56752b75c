package service

import (
	"fmt"
	"math"
	"sort"

	"github.com/fleetops/backend/internal/models"
)

// MaxTotalSlots is the platform ceiling on addressable slots per vehicle.
const MaxTotalSlots = 12

// ValidateTierConfig enforces the tier invariants: tier_order is a contiguous
// 1..N sequence, every tier has at least one slot and at least one of the two
// capacity ceilings, and the total slot count stays within [1, MaxTotalSlots].
func ValidateTierConfig(tiers []models.VehicleTier) error {
	if len(tiers) == 0 {
		return InvalidTierConfigError{Reason: "no tiers defined"}
	}

	ordered := make([]models.VehicleTier, len(tiers))
	copy(ordered, tiers)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].TierOrder < ordered[j].TierOrder })

	names := map[string]bool{}
	total := 0
	for i, t := range ordered {
		if t.TierOrder != i+1 {
			return InvalidTierConfigError{Reason: fmt.Sprintf("tier_order must be contiguous from 1, got %d at position %d", t.TierOrder, i+1)}
		}
		if t.TierName == "" {
			return InvalidTierConfigError{Reason: "tier_name must not be empty"}
		}
		if names[t.TierName] {
			return InvalidTierConfigError{Reason: fmt.Sprintf("duplicate tier_name %q", t.TierName)}
		}
		names[t.TierName] = true
		if t.SlotCount < 1 {
			return InvalidTierConfigError{Reason: fmt.Sprintf("tier %q must have at least one slot", t.TierName)}
		}
		hasWeight := t.MaxWeightKg != nil && *t.MaxWeightKg > 0
		hasVolume := t.MaxVolumeM3 != nil && *t.MaxVolumeM3 > 0
		if !hasWeight && !hasVolume {
			return InvalidTierConfigError{Reason: fmt.Sprintf("tier %q declares neither a weight nor a volume ceiling", t.TierName)}
		}
		total += t.SlotCount
	}
	if total > MaxTotalSlots {
		return InvalidTierConfigError{Reason: fmt.Sprintf("total slot count %d exceeds platform ceiling %d", total, MaxTotalSlots)}
	}
	return nil
}

// ComputeTotalSlots reduces the config to its addressable slot count.
func ComputeTotalSlots(tiers []models.VehicleTier) int {
	total := 0
	for _, t := range tiers {
		total += t.SlotCount
	}
	return total
}

// DeriveTierLimits fills in max_weight_kg/max_volume_m3 from percentage-based
// defaults and the vehicle's gross capacity. Intermediate tiers are floored to
// one decimal and the remainder goes to the last percentage tier, so the
// derived ceilings never jointly exceed the gross figure.
func DeriveTierLimits(grossWeightKg, grossVolumeM3 float64, tiers []models.VehicleTier) ([]models.VehicleTier, error) {
	out := make([]models.VehicleTier, len(tiers))
	copy(out, tiers)
	sort.Slice(out, func(i, j int) bool { return out[i].TierOrder < out[j].TierOrder })

	var weightPctSum, volumePctSum float64
	lastWeightIdx, lastVolumeIdx := -1, -1
	for i, t := range out {
		if t.WeightPct != nil {
			if *t.WeightPct <= 0 {
				return nil, InvalidTierConfigError{Reason: fmt.Sprintf("tier %q has non-positive weight_pct", t.TierName)}
			}
			weightPctSum += *t.WeightPct
			lastWeightIdx = i
		}
		if t.VolumePct != nil {
			if *t.VolumePct <= 0 {
				return nil, InvalidTierConfigError{Reason: fmt.Sprintf("tier %q has non-positive volume_pct", t.TierName)}
			}
			volumePctSum += *t.VolumePct
			lastVolumeIdx = i
		}
	}
	if weightPctSum > 100 {
		return nil, InvalidTierConfigError{Reason: fmt.Sprintf("weight_pct sums to %.1f, must be <= 100", weightPctSum)}
	}
	if volumePctSum > 100 {
		return nil, InvalidTierConfigError{Reason: fmt.Sprintf("volume_pct sums to %.1f, must be <= 100", volumePctSum)}
	}

	allocatedKg := 0.0
	for i := range out {
		if out[i].WeightPct == nil {
			continue
		}
		if i == lastWeightIdx {
			v := floorOne(grossWeightKg*weightPctSum/100 - allocatedKg)
			out[i].MaxWeightKg = &v
			continue
		}
		v := floorOne(grossWeightKg * *out[i].WeightPct / 100)
		allocatedKg += v
		out[i].MaxWeightKg = &v
	}

	allocatedM3 := 0.0
	for i := range out {
		if out[i].VolumePct == nil {
			continue
		}
		if i == lastVolumeIdx {
			v := floorThree(grossVolumeM3*volumePctSum/100 - allocatedM3)
			out[i].MaxVolumeM3 = &v
			continue
		}
		v := floorThree(grossVolumeM3 * *out[i].VolumePct / 100)
		allocatedM3 += v
		out[i].MaxVolumeM3 = &v
	}

	if err := ValidateTierConfig(out); err != nil {
		return nil, err
	}
	return out, nil
}

func floorOne(v float64) float64 {
	return math.Floor(v*10) / 10
}

func floorThree(v float64) float64 {
	return math.Floor(v*1000) / 1000
}
