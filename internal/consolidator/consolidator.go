// Package consolidator promotes memories across tiers and decays short_term
// memories per spec §4.5. It runs at session end: two promotion passes and
// one decay pass, in that order, returning a Report.
package consolidator

import (
	"fmt"
	"time"

	"engram/internal/storage"
	"engram/internal/types"
)

// Thresholds are the tunable promotion/decay parameters of spec §4.5.
type Thresholds struct {
	WorkingAccessCount   int
	WorkingMinStrength   float64
	ShortTermAccessCount int
	ShortTermMinStrength float64
	ShortTermMinAge      time.Duration
	DecayHalfLife        time.Duration
	DecayPruneFloor      float64
}

// DefaultThresholds matches spec §4.5's stated defaults exactly.
func DefaultThresholds() Thresholds {
	return Thresholds{
		WorkingAccessCount:   2,
		WorkingMinStrength:   0.5,
		ShortTermAccessCount: 5,
		ShortTermMinStrength: 0.7,
		ShortTermMinAge:      24 * time.Hour,
		DecayHalfLife:        12 * time.Hour,
		DecayPruneFloor:      0.01,
	}
}

// Report tallies a consolidation pass's outcome, in the teacher's
// post-run-reporting idiom (internal/memory/retrospective.go's
// AnalysisSummary, internal/memory/learning.go's periodic-run bookkeeping).
type Report struct {
	PromotedToShortTerm int
	PromotedToLongTerm  int
	PrunedWorking       int
	PrunedShortTerm     int
	Decayed             int
	Duration            time.Duration
}

// Consolidator runs tier promotion/demotion and decay over a Storage.
type Consolidator struct {
	store      storage.Storage
	thresholds Thresholds
}

// New creates a Consolidator.
func New(store storage.Storage, thresholds Thresholds) *Consolidator {
	return &Consolidator{store: store, thresholds: thresholds}
}

// ConsolidateSession runs the full session-end pipeline (spec §4.5): first
// working→short_term promotion (or deletion), then short_term→long_term
// promotion, then the short_term decay pass. The long_term bar is judged
// on the strength a memory holds before this pass's decay; memories
// promoted to long_term are not decayed.
func (c *Consolidator) ConsolidateSession(sessionID string) (*Report, error) {
	start := time.Now()
	report := &Report{}

	if err := c.promoteWorking(sessionID, report); err != nil {
		return report, fmt.Errorf("working promotion: %w", err)
	}
	if err := c.promoteShortTerm(report); err != nil {
		return report, fmt.Errorf("short_term promotion: %w", err)
	}
	if err := c.decayShortTerm(report); err != nil {
		return report, fmt.Errorf("short_term decay: %w", err)
	}

	report.Duration = time.Since(start)
	return report, nil
}

// promoteWorking applies the working → short_term rule: promote when
// access_count ≥ WorkingAccessCount OR strength ≥ WorkingMinStrength,
// otherwise delete.
func (c *Consolidator) promoteWorking(sessionID string, report *Report) error {
	memories, err := c.store.QueryMemories(storage.MemoryFilter{
		Tiers:     []types.Tier{types.TierWorking},
		SessionID: sessionID,
	})
	if err != nil {
		return err
	}

	for _, m := range memories {
		if m.AccessCount >= c.thresholds.WorkingAccessCount || m.Strength >= c.thresholds.WorkingMinStrength {
			m.Tier = types.TierShortTerm
			m.UpdatedAt = time.Now()
			if err := c.store.UpdateMemory(m); err != nil {
				return err
			}
			report.PromotedToShortTerm++
			continue
		}
		if err := c.store.DeleteMemory(m.ID); err != nil {
			return err
		}
		report.PrunedWorking++
	}
	return nil
}

// decayShortTerm applies the spec §4.5 decay formula to every short_term
// memory, pruning any that fall below DecayPruneFloor.
//
//	strength ← strength · decay_factor · (0.5 · 1/(1 + Δt/HALF_LIFE))
func (c *Consolidator) decayShortTerm(report *Report) error {
	memories, err := c.store.QueryMemories(storage.MemoryFilter{Tiers: []types.Tier{types.TierShortTerm}})
	if err != nil {
		return err
	}

	now := time.Now()
	halfLifeHours := c.thresholds.DecayHalfLife.Hours()

	for _, m := range memories {
		deltaHours := now.Sub(m.UpdatedAt).Hours()
		var factor float64
		if halfLifeHours > 0 {
			factor = 0.5 * (1.0 / (1.0 + deltaHours/halfLifeHours))
		}
		m.Strength = m.Strength * m.DecayFactor * factor

		if m.Strength < c.thresholds.DecayPruneFloor {
			if err := c.store.DeleteMemory(m.ID); err != nil {
				return err
			}
			report.PrunedShortTerm++
			report.Decayed++
			continue
		}

		m.UpdatedAt = now
		if err := c.store.UpdateMemory(m); err != nil {
			return err
		}
		report.Decayed++
	}
	return nil
}

// promoteShortTerm applies the short_term → long_term rule: promote when
// access_count ≥ ShortTermAccessCount AND strength ≥ ShortTermMinStrength
// AND age ≥ ShortTermMinAge. Long-term memories never decay or demote
// (spec §4.5), so this is a one-way door per memory.
func (c *Consolidator) promoteShortTerm(report *Report) error {
	memories, err := c.store.QueryMemories(storage.MemoryFilter{Tiers: []types.Tier{types.TierShortTerm}})
	if err != nil {
		return err
	}

	now := time.Now()
	for _, m := range memories {
		age := now.Sub(m.CreatedAt)
		if m.AccessCount >= c.thresholds.ShortTermAccessCount &&
			m.Strength >= c.thresholds.ShortTermMinStrength &&
			age >= c.thresholds.ShortTermMinAge {
			m.Tier = types.TierLongTerm
			m.UpdatedAt = now
			if err := c.store.UpdateMemory(m); err != nil {
				return err
			}
			report.PromotedToLongTerm++
		}
	}
	return nil
}
