package stages

import "engram/internal/types"

// advancePatterns advances every Pattern's stage using the same
// memory-count/confidence thresholds spec §4.6 applies to memories,
// enforcing monotonicity via types.StageAtLeast.
func (p *Pipeline) advancePatterns(report *Report) error {
	patterns, err := p.store.ListPatterns()
	if err != nil {
		return err
	}

	for _, pat := range patterns {
		target := p.targetStage(pat)
		if target == pat.Stage || !types.StageAtLeast(target, pat.Stage) {
			continue
		}
		pat.Stage = target
		if err := p.store.UpdatePattern(pat); err != nil {
			return err
		}
		report.PatternsAdvanced++
	}
	return nil
}

func (p *Pipeline) targetStage(pat *types.Pattern) types.Stage {
	n := len(pat.MemoryIDs)
	switch {
	case n >= p.config.PatternSyntacticMinMemories && pat.Confidence >= p.config.PatternSyntacticMinConfidence:
		return types.StageSyntactic
	case n >= p.config.PatternSemanticMinMemories && pat.Confidence >= p.config.PatternSemanticMinConfidence:
		return types.StageSemantic
	default:
		return types.StageConceptual
	}
}
