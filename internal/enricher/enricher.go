// Package enricher declares the LLM-collaborator contract the Dialectic
// Engine and artifact writers use for the judgment calls a pure heuristic
// can only approximate (spec §4.11): naming a Pattern, writing a Thesis's
// one-sentence insight, narrating a Synthesis, and breaking an
// Output-Decider tie. Every call shape is declared as a JSON Schema via
// jsonschema-go so a structured LLM response is validated before it's
// trusted, matching the teacher's fail-closed posture on external input.
package enricher

import (
	"context"
	"time"

	"engram/internal/types"
)

// PatternNaming is the result of naming a newly-formed Pattern.
type PatternNaming struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ThesisInsight is a one-sentence statement of a Pattern's current belief.
type ThesisInsight struct {
	Content string `json:"content"`
}

// SynthesisNarrative is the reconciliation text for a Synthesis.
type SynthesisNarrative struct {
	Content string `json:"content"`
}

// OutputVerdict is the Enricher's tie-break verdict for the Output
// Decider when the heuristic's confidence is too low to trust alone.
type OutputVerdict struct {
	Output     types.OutputType `json:"output"`
	Confidence float64          `json:"confidence"`
	Reason     string           `json:"reason"`
}

// RuleTitle is a short imperative title for a Rule artifact.
type RuleTitle struct {
	Title string `json:"title"`
}

// SkillNaming names a Skill artifact and states when to use it.
type SkillNaming struct {
	Name      string   `json:"name"`
	WhenToUse []string `json:"when_to_use"`
}

// ContentSummary is a compact summary used when the engine needs prose
// but no more specific shape applies (e.g. a Pattern's edge_cases list
// derivation for Skill Writer).
type ContentSummary struct {
	Summary  string   `json:"summary"`
	Bullets  []string `json:"bullets,omitempty"`
}

// ScriptGeneration is the Skill Writer's bundled executable helper,
// derived from a Synthesis's tool-data snapshot (spec §4.9, §4.11).
type ScriptGeneration struct {
	Script string `json:"script"`
}

// PatternMemberGroup is the Enricher's input for PatternNaming/ThesisInsight:
// the memories that seeded a new Pattern, plus any user prompts in the
// session's temporal window (spec §4.7 step 2(i)).
type PatternMemberGroup struct {
	Memories     []*types.Memory
	UserPrompts  []string
	WindowStart  time.Time
	WindowEnd    time.Time
}

// SynthesisInput bundles everything the Enricher needs to narrate a
// Synthesis (spec §4.7.1): the thesis, its antitheses, and up to 10
// exemplar memories.
type SynthesisInput struct {
	Thesis      *types.Thesis
	Antitheses  []*types.Antithesis
	Exemplars   []*types.Memory
	Resolution  types.ResolutionType
}

// Enricher is the LLM-collaborator contract. Every method may return
// errs.ErrEnricherUnavailable; callers must have a deterministic fallback
// and must never block the hot path waiting on it (spec §4.11, §5).
type Enricher interface {
	// NamePattern derives a Pattern's name/description (spec §4.7 step 2(i)).
	NamePattern(ctx context.Context, group PatternMemberGroup) (PatternNaming, error)
	// SummarizeThesis produces a Thesis's one-sentence insight.
	SummarizeThesis(ctx context.Context, group PatternMemberGroup) (ThesisInsight, error)
	// NarrateSynthesis writes a Synthesis's reconciliation content (spec §4.7.1).
	NarrateSynthesis(ctx context.Context, input SynthesisInput) (SynthesisNarrative, error)
	// ClassifyOutput breaks an Output Decider tie (spec §4.7.2).
	ClassifyOutput(ctx context.Context, features types.FeatureVector, content string) (OutputVerdict, error)
	// TitleRule derives a short imperative Rule title.
	TitleRule(ctx context.Context, synthesis *types.Synthesis) (RuleTitle, error)
	// NameSkill derives a Skill's name and when-to-use bullets.
	NameSkill(ctx context.Context, synthesis *types.Synthesis) (SkillNaming, error)
	// SummarizeEdgeCases extracts edge-case bullets for a Skill manifest.
	SummarizeEdgeCases(ctx context.Context, synthesis *types.Synthesis) (ContentSummary, error)
	// GenerateScript produces a Skill's bundled executable helper from the
	// synthesis's tool-data snapshot (spec §4.9, §4.11 "skill-script generation").
	GenerateScript(ctx context.Context, synthesis *types.Synthesis) (ScriptGeneration, error)
}
