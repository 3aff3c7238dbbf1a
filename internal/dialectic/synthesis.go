package dialectic

import (
	"context"
	"errors"

	"engram/internal/enricher"
	"engram/internal/errs"
	"engram/internal/types"
)

// runSynthesis implements spec §4.7.1: derive a resolution type from the
// antitheses' contradiction-type multiset, generate synthesis content via
// the Enricher (falling back to the heuristic narrator), freeze a
// tool-data snapshot from the exemplar memories, promote every exemplar to
// long_term, and run the Output Decider over the result.
func (e *Engine) runSynthesis(ctx context.Context, pattern *types.Pattern, thesis *types.Thesis, antitheses []*types.Antithesis, exemplars []*types.Memory, triggering *types.Memory) (*types.Synthesis, error) {
	resolution := deriveResolution(antitheses)

	allExemplars := append(append([]*types.Memory{}, exemplars...), triggering)
	sortMemoriesByCreated(allExemplars)
	snapshot := buildToolDataSnapshot(allExemplars)

	content, err := e.narrate(ctx, thesis, antitheses, allExemplars, resolution.Type)
	if err != nil {
		return nil, err
	}
	resolution.Abstraction = abstractionFromResolution(resolution.Type, content)

	antithesisIDs := make([]string, len(antitheses))
	for i, a := range antitheses {
		antithesisIDs[i] = a.ID
	}

	synthesis := types.NewSynthesis(thesis.ID, antithesisIDs, content, resolution)
	for _, ex := range allExemplars {
		synthesis.ExemplarMemoryIDs = append(synthesis.ExemplarMemoryIDs, ex.ID)
	}
	synthesis.ToolDataSnapshot = snapshot

	features := ComputeFeatures(content, resolution.Type, snapshot)
	decision := decideOutput(ctx, e.enr, content, features, resolution.Type, pattern.Confidence, len(allExemplars))
	synthesis.Resolution.OutputDecision = &decision
	synthesis.SkillCandidate = decision.Output == types.OutputSkill || decision.Output == types.OutputRuleWithSkill

	if err := e.promoteExemplars(allExemplars); err != nil {
		return nil, err
	}

	return synthesis, nil
}

// deriveResolution implements spec §4.7.1's resolution-type table: all
// direct contradictions reject the thesis outright; all context_dependent
// contradictions make the thesis conditional on the differing context; any
// refinement or edge_case present (not necessarily exclusively) broadens
// the thesis into an abstraction; anything else integrates the mix.
func deriveResolution(antitheses []*types.Antithesis) types.Resolution {
	counts := make(map[types.ContradictionType]int)
	for _, a := range antitheses {
		counts[a.ContradictionType]++
	}

	allOf := func(kind types.ContradictionType) bool {
		return counts[kind] == len(antitheses) && len(antitheses) > 0
	}

	switch {
	case allOf(types.ContradictionDirect):
		return types.Resolution{Type: types.ResolutionRejection}
	case allOf(types.ContradictionContextDependent):
		return types.Resolution{Type: types.ResolutionConditional, Conditions: antithesisContents(antitheses)}
	case counts[types.ContradictionRefinement] > 0 || counts[types.ContradictionEdgeCase] > 0:
		return types.Resolution{Type: types.ResolutionAbstraction}
	default:
		return types.Resolution{Type: types.ResolutionIntegration}
	}
}

func antithesisContents(antitheses []*types.Antithesis) []string {
	out := make([]string, len(antitheses))
	for i, a := range antitheses {
		out[i] = a.Content
	}
	return out
}

func abstractionFromResolution(kind types.ResolutionType, content string) string {
	if kind != types.ResolutionAbstraction {
		return ""
	}
	return content
}

func (e *Engine) narrate(ctx context.Context, thesis *types.Thesis, antitheses []*types.Antithesis, exemplars []*types.Memory, resolution types.ResolutionType) (string, error) {
	input := enricher.SynthesisInput{
		Thesis:     thesis,
		Antitheses: antitheses,
		Exemplars:  exemplars,
		Resolution: resolution,
	}
	if e.enr != nil {
		if narrative, err := e.enr.NarrateSynthesis(ctx, input); err == nil {
			return narrative.Content, nil
		}
	}
	narrative, err := e.fallback.NarrateSynthesis(ctx, input)
	if err != nil {
		return "", err
	}
	return narrative.Content, nil
}

// buildToolDataSnapshot freezes one ToolDataEntry per exemplar memory that
// carries tool metadata, preserving creation order.
func buildToolDataSnapshot(exemplars []*types.Memory) []types.ToolDataEntry {
	snapshot := make([]types.ToolDataEntry, 0, len(exemplars))
	for _, m := range exemplars {
		if m.Metadata.ToolName == "" {
			continue
		}
		snapshot = append(snapshot, types.ToolDataEntry{
			Tool:             m.Metadata.ToolName,
			Action:           actionFromMemory(m),
			Parameters:       m.Metadata.ToolInput,
			ShortDescription: shortDescription(m),
		})
	}
	return snapshot
}

func actionFromMemory(m *types.Memory) string {
	for _, k := range m.Metadata.SemanticKeys {
		if k.Key == "operation" || k.Key == "command_name" {
			return k.Value
		}
	}
	return m.Metadata.ToolName
}

func shortDescription(m *types.Memory) string {
	if len(m.Content) <= 120 {
		return m.Content
	}
	return m.Content[:120]
}

// promoteExemplars advances every exemplar memory to the long_term tier,
// the durability spec §4.7.1 requires once a Synthesis is reached.
func (e *Engine) promoteExemplars(exemplars []*types.Memory) error {
	for _, m := range exemplars {
		if m.Tier == types.TierLongTerm || m.Tier == types.TierCollective {
			continue
		}
		m.Tier = types.TierLongTerm
		if err := e.store.UpdateMemory(m); err != nil {
			if errors.Is(err, errs.ErrNotFound) {
				continue
			}
			return err
		}
	}
	return nil
}
