package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fleetops/backend/internal/models"
)

// DefaultPackagingRules is the platform default ladder, used when a warehouse
// has not configured its own. The terminal crate rule is the catch-all.
func DefaultPackagingRules() []models.PackagingRule {
	return []models.PackagingRule{
		{PackagingType: "ENVELOPE", MaxWeightKg: 2, MaxVolumeM3: 0.01, SlotCost: 0.1},
		{PackagingType: "BOX_S", MaxWeightKg: 10, MaxVolumeM3: 0.05, SlotCost: 0.25},
		{PackagingType: "BOX_M", MaxWeightKg: 25, MaxVolumeM3: 0.15, SlotCost: 0.5},
		{PackagingType: "BOX_L", MaxWeightKg: 50, MaxVolumeM3: 0.35, SlotCost: 1},
		{PackagingType: "CRATE", SlotCost: 2, CatchAll: true},
	}
}

// ValidatePackagingRules checks the ladder invariants: thresholds strictly
// increasing in both dimensions, exactly one catch-all, and the catch-all last.
func ValidatePackagingRules(rules []models.PackagingRule) error {
	if len(rules) == 0 {
		return fmt.Errorf("packaging rules: empty rule set")
	}
	catchAlls := 0
	for i, r := range rules {
		if r.SlotCost <= 0 {
			return fmt.Errorf("packaging rules: rule %s has non-positive slot_cost", r.PackagingType)
		}
		if r.CatchAll {
			catchAlls++
			if i != len(rules)-1 {
				return fmt.Errorf("packaging rules: catch-all rule %s must be last", r.PackagingType)
			}
			continue
		}
		if r.MaxWeightKg <= 0 || r.MaxVolumeM3 <= 0 {
			return fmt.Errorf("packaging rules: rule %s has non-positive thresholds", r.PackagingType)
		}
		if i > 0 && !rules[i-1].CatchAll {
			prev := rules[i-1]
			if r.MaxWeightKg <= prev.MaxWeightKg || r.MaxVolumeM3 <= prev.MaxVolumeM3 {
				return fmt.Errorf("packaging rules: rule %s does not strictly increase over %s", r.PackagingType, prev.PackagingType)
			}
		}
	}
	if catchAlls != 1 {
		return fmt.Errorf("packaging rules: expected exactly one catch-all rule, got %d", catchAlls)
	}
	return nil
}

// DeterminePackagingType picks the smallest rule the load fits. The scan runs
// in ascending threshold order, so a load that fits several rules always lands
// on the cheapest one.
func DeterminePackagingType(rules []models.PackagingRule, weightKg, volumeM3 float64) (models.PackagingRule, error) {
	if weightKg <= 0 || volumeM3 <= 0 {
		return models.PackagingRule{}, InvalidDimensionsError{WeightKg: weightKg, VolumeM3: volumeM3}
	}
	for _, r := range rules {
		if r.CatchAll {
			return r, nil
		}
		if weightKg <= r.MaxWeightKg && volumeM3 <= r.MaxVolumeM3 {
			return r, nil
		}
	}
	return models.PackagingRule{}, fmt.Errorf("packaging rules: no rule matched and no catch-all present")
}

// BuildPackages groups requisition items into packages. Items are packed
// greedily in input order: an item joins the open package of its rule type as
// long as the combined load still fits the rule's ceiling, otherwise a new
// package is opened. One item never spans two packages. Catch-all items get a
// package each since the rule has no ceiling to pack against.
func BuildPackages(rules []models.PackagingRule, items []models.RequisitionItem) ([]models.Package, error) {
	var packages []models.Package
	open := map[string]int{}

	for _, item := range items {
		w, v := item.WeightKg(), item.VolumeM3()
		rule, err := DeterminePackagingType(rules, w, v)
		if err != nil {
			return nil, err
		}

		if !rule.CatchAll {
			if idx, ok := open[rule.PackagingType]; ok {
				p := &packages[idx]
				if p.WeightKg+w <= rule.MaxWeightKg && p.VolumeM3+v <= rule.MaxVolumeM3 {
					p.ItemIDs = append(p.ItemIDs, item.ID)
					p.WeightKg += w
					p.VolumeM3 += v
					continue
				}
			}
		}

		packages = append(packages, models.Package{
			ID:            uuid.NewString(),
			PackagingType: rule.PackagingType,
			ItemIDs:       []string{item.ID},
			WeightKg:      w,
			VolumeM3:      v,
			SlotCost:      rule.SlotCost,
		})
		if !rule.CatchAll {
			open[rule.PackagingType] = len(packages) - 1
		}
	}
	return packages, nil
}

// ComputeSlotDemand sums the fractional slot cost of the packages.
func ComputeSlotDemand(packages []models.Package) (total float64, rounded int) {
	for _, p := range packages {
		total += p.SlotCost
	}
	return total, int(math.Ceil(total))
}

type PackagingStore interface {
	GetRequisitionItems(ctx context.Context, requisitionID string) ([]models.RequisitionItem, error)
	ListPackagingRules(ctx context.Context) ([]models.PackagingRule, error)
	GetFinalPackaging(ctx context.Context, requisitionID string) (*models.RequisitionPackaging, error)
	// SaveFinalPackaging clears the previous final flag and inserts the new
	// version in one transaction.
	SaveFinalPackaging(ctx context.Context, p models.RequisitionPackaging) error
}

type PackagingService struct {
	Store  PackagingStore
	Logger zerolog.Logger
}

// ComputeRequisitionPackaging takes a point-in-time packaging snapshot of the
// requisition and makes it the final version. Prior versions stay behind as
// audit history.
func (s *PackagingService) ComputeRequisitionPackaging(ctx context.Context, requisitionID, actor string) (models.RequisitionPackaging, error) {
	items, err := s.Store.GetRequisitionItems(ctx, requisitionID)
	if err != nil {
		return models.RequisitionPackaging{}, err
	}
	if len(items) == 0 {
		return models.RequisitionPackaging{}, fmt.Errorf("requisition %s has no items", requisitionID)
	}

	rules, err := s.Store.ListPackagingRules(ctx)
	if err != nil {
		return models.RequisitionPackaging{}, err
	}
	if len(rules) == 0 {
		rules = DefaultPackagingRules()
	}
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].CatchAll != rules[j].CatchAll {
			return rules[j].CatchAll
		}
		return rules[i].MaxWeightKg < rules[j].MaxWeightKg
	})
	if err := ValidatePackagingRules(rules); err != nil {
		return models.RequisitionPackaging{}, err
	}

	packages, err := BuildPackages(rules, items)
	if err != nil {
		return models.RequisitionPackaging{}, err
	}
	total, rounded := ComputeSlotDemand(packages)

	version := 1
	if prev, err := s.Store.GetFinalPackaging(ctx, requisitionID); err != nil {
		return models.RequisitionPackaging{}, err
	} else if prev != nil {
		version = prev.Version + 1
	}

	snapshot := models.RequisitionPackaging{
		ID:                uuid.NewString(),
		RequisitionID:     requisitionID,
		Version:           version,
		Packages:          packages,
		TotalSlotDemand:   total,
		RoundedSlotDemand: rounded,
		IsFinal:           true,
		CreatedBy:         actor,
		CreatedAt:         time.Now().UTC(),
	}
	if err := s.Store.SaveFinalPackaging(ctx, snapshot); err != nil {
		return models.RequisitionPackaging{}, err
	}

	s.Logger.Info().
		Str("requisition_id", requisitionID).
		Int("version", version).
		Int("packages", len(packages)).
		Float64("slot_demand", total).
		Int("rounded_slot_demand", rounded).
		Msg("requisition packaging computed")
	return snapshot, nil
}
