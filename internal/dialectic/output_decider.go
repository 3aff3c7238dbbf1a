package dialectic

import (
	"context"
	"regexp"
	"strings"

	"engram/internal/enricher"
	"engram/internal/types"
)

// imperativeMarkers and proceduralMarkers are the fixed obligation/
// sequencing vocabularies spec §4.7.2 names.
var (
	imperativeMarkers = regexp.MustCompile(`(?i)\b(always|never|must|required|ensure|do not|don't|before [a-z]+ing|after [a-z]+ing)\b`)
	proceduralMarkers = regexp.MustCompile(`(?i)\b(step \d+|first[, ].*then|next|finally|workflow|\d+\.\s)`)
	conditionalMarkers = regexp.MustCompile(`(?i)\b(if |when .*then|depending on)\b`)
)

// ComputeFeatures derives the Output Decider's feature vector from
// synthesis content, its resolution type, and the tool-data snapshot
// (spec §4.7.2).
func ComputeFeatures(content string, resolution types.ResolutionType, snapshot []types.ToolDataEntry) types.FeatureVector {
	isImperative := imperativeMarkers.MatchString(content)
	isProcedural := proceduralMarkers.MatchString(content)
	hasConditions := resolution == types.ResolutionConditional || conditionalMarkers.MatchString(content)
	diversity := toolDiversity(snapshot)

	length := len([]rune(content))
	complexity := 0.0
	switch {
	case length > 500:
		complexity += 0.3
	case length > 200:
		complexity += 0.15
	}
	switch {
	case diversity > 3:
		complexity += 0.3
	case diversity > 1:
		complexity += 0.15
	}
	if hasConditions {
		complexity += 0.2
	}
	if isProcedural {
		complexity += 0.2
	}
	if complexity > 1 {
		complexity = 1
	}

	return types.FeatureVector{
		IsImperative:  isImperative,
		IsProcedural:  isProcedural,
		ToolDiversity: diversity,
		HasConditions: hasConditions,
		Complexity:    complexity,
	}
}

func toolDiversity(snapshot []types.ToolDataEntry) int {
	seen := make(map[string]bool)
	for _, e := range snapshot {
		if e.Tool != "" {
			seen[strings.ToLower(e.Tool)] = true
		}
	}
	return len(seen)
}

// decideHeuristic applies spec §4.7.2's decision table, first match wins.
func decideHeuristic(features types.FeatureVector, resolution types.ResolutionType, confidence float64, exemplarCount int) types.OutputDecision {
	switch {
	case resolution == types.ResolutionRejection:
		return types.OutputDecision{Output: types.OutputNone, Confidence: 1.0, Source: "heuristic"}
	case confidence < 0.5 || exemplarCount < 2:
		return types.OutputDecision{Output: types.OutputNone, Confidence: 0.9, Source: "heuristic"}
	case features.IsImperative && features.IsProcedural && features.ToolDiversity > 2:
		return types.OutputDecision{Output: types.OutputRuleWithSkill, Confidence: 0.85, Source: "heuristic"}
	case features.IsImperative && !features.IsProcedural:
		return types.OutputDecision{Output: types.OutputRule, Confidence: 0.9, Source: "heuristic"}
	case features.IsProcedural && features.ToolDiversity > 2 && features.Complexity > 0.5:
		return types.OutputDecision{Output: types.OutputSkill, Confidence: 0.8, Source: "heuristic"}
	case resolution == types.ResolutionConditional && features.HasConditions:
		return types.OutputDecision{Output: types.OutputRuleWithSkill, Confidence: 0.75, Source: "heuristic"}
	case features.Complexity > 0.6:
		return types.OutputDecision{Output: types.OutputSkill, Confidence: 0.7, Source: "heuristic"}
	default:
		return types.OutputDecision{Output: types.OutputRule, Confidence: 0.8, Source: "heuristic"}
	}
}

// decideOutput runs the heuristic decision table and, when its confidence
// is below 0.7, consults the Enricher's output-type analyzer, keeping the
// heuristic feature vector either way (spec §4.7.2). On Enricher failure
// the heuristic verdict stands.
func decideOutput(ctx context.Context, enr enricher.Enricher, content string, features types.FeatureVector, resolution types.ResolutionType, confidence float64, exemplarCount int) types.OutputDecision {
	decision := decideHeuristic(features, resolution, confidence, exemplarCount)
	if decision.Confidence >= 0.7 || enr == nil {
		return decision
	}

	verdict, err := enr.ClassifyOutput(ctx, features, content)
	if err != nil {
		return decision
	}
	return types.OutputDecision{Output: verdict.Output, Confidence: verdict.Confidence, Source: "enricher"}
}
