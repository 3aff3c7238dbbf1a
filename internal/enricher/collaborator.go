package enricher

import (
	"context"
	"encoding/json"
	"fmt"

	"engram/internal/errs"
	"engram/internal/types"
)

// Collaborator is the minimal surface a structured-output LLM client must
// provide for CollaboratorEnricher to drive it: given a shape name (one of
// the Schemas() keys) and a rendered prompt, produce a JSON payload
// conforming to that shape's schema.
type Collaborator interface {
	Complete(ctx context.Context, shape, prompt string) (json []byte, err error)
}

// CollaboratorEnricher adapts a Collaborator into the Enricher interface,
// validating every response against the matching declared schema before
// decoding it. No concrete LLM wiring is included here — wiring a real
// model client is explicitly out of scope (spec Non-goals) — but the
// adapter shape is complete so a future Collaborator implementation only
// needs to satisfy the one-method interface above.
type CollaboratorEnricher struct {
	client Collaborator
}

// NewCollaborator builds a CollaboratorEnricher around a Collaborator
// client. A nil client makes every method return ErrEnricherUnavailable,
// which is the configuration when no LLM is wired (the default).
func NewCollaborator(client Collaborator) *CollaboratorEnricher {
	return &CollaboratorEnricher{client: client}
}

func (c *CollaboratorEnricher) unavailable() bool { return c == nil || c.client == nil }

// decode drives the collaborator for one shape, validates the raw JSON
// against that shape's declared schema, then unmarshals it into T.
func decode[T any](ctx context.Context, c *CollaboratorEnricher, shape, prompt string) (T, error) {
	var zero T
	raw, err := c.client.Complete(ctx, shape, prompt)
	if err != nil {
		return zero, fmt.Errorf("%s: %w", shape, errs.ErrEnricherUnavailable)
	}

	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return zero, fmt.Errorf("%s: %w: %v", shape, errs.ErrSchemaValidation, err)
	}
	if schema, ok := Schemas()[shape]; ok && schema != nil {
		if err := schema.Validate(instance); err != nil {
			return zero, fmt.Errorf("%s: %w: %v", shape, errs.ErrSchemaValidation, err)
		}
	}

	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, fmt.Errorf("%s: %w: %v", shape, errs.ErrSchemaValidation, err)
	}
	return out, nil
}

func (c *CollaboratorEnricher) NamePattern(ctx context.Context, group PatternMemberGroup) (PatternNaming, error) {
	if c.unavailable() {
		return PatternNaming{}, errs.ErrEnricherUnavailable
	}
	return decode[PatternNaming](ctx, c, "pattern_naming", renderPatternGroup(group))
}

func (c *CollaboratorEnricher) SummarizeThesis(ctx context.Context, group PatternMemberGroup) (ThesisInsight, error) {
	if c.unavailable() {
		return ThesisInsight{}, errs.ErrEnricherUnavailable
	}
	return decode[ThesisInsight](ctx, c, "thesis_insight", renderPatternGroup(group))
}

func (c *CollaboratorEnricher) NarrateSynthesis(ctx context.Context, input SynthesisInput) (SynthesisNarrative, error) {
	if c.unavailable() {
		return SynthesisNarrative{}, errs.ErrEnricherUnavailable
	}
	return decode[SynthesisNarrative](ctx, c, "synthesis_narrative", renderSynthesisInput(input))
}

func (c *CollaboratorEnricher) ClassifyOutput(ctx context.Context, features types.FeatureVector, content string) (OutputVerdict, error) {
	if c.unavailable() {
		return OutputVerdict{}, errs.ErrEnricherUnavailable
	}
	return decode[OutputVerdict](ctx, c, "output_verdict", content)
}

func (c *CollaboratorEnricher) TitleRule(ctx context.Context, synthesis *types.Synthesis) (RuleTitle, error) {
	if c.unavailable() || synthesis == nil {
		return RuleTitle{}, errs.ErrEnricherUnavailable
	}
	return decode[RuleTitle](ctx, c, "rule_title", synthesis.Content)
}

func (c *CollaboratorEnricher) NameSkill(ctx context.Context, synthesis *types.Synthesis) (SkillNaming, error) {
	if c.unavailable() || synthesis == nil {
		return SkillNaming{}, errs.ErrEnricherUnavailable
	}
	return decode[SkillNaming](ctx, c, "skill_naming", synthesis.Content)
}

func (c *CollaboratorEnricher) SummarizeEdgeCases(ctx context.Context, synthesis *types.Synthesis) (ContentSummary, error) {
	if c.unavailable() || synthesis == nil {
		return ContentSummary{}, errs.ErrEnricherUnavailable
	}
	return decode[ContentSummary](ctx, c, "content_summary", synthesis.Content)
}

func (c *CollaboratorEnricher) GenerateScript(ctx context.Context, synthesis *types.Synthesis) (ScriptGeneration, error) {
	if c.unavailable() || synthesis == nil {
		return ScriptGeneration{}, errs.ErrEnricherUnavailable
	}
	return decode[ScriptGeneration](ctx, c, "skill_script", renderToolDataSnapshot(synthesis))
}

func renderToolDataSnapshot(synthesis *types.Synthesis) string {
	var b []byte
	b = append(b, "synthesis: "...)
	b = append(b, synthesis.Content...)
	for _, e := range synthesis.ToolDataSnapshot {
		b = append(b, "\nstep: "...)
		b = append(b, e.Tool...)
		b = append(b, ' ')
		b = append(b, e.ShortDescription...)
		if e.Action != "" {
			b = append(b, " -- "...)
			b = append(b, e.Action...)
		}
	}
	return string(b)
}

func renderPatternGroup(group PatternMemberGroup) string {
	var b []byte
	b = append(b, "memories:"...)
	for _, m := range group.Memories {
		b = append(b, ' ')
		b = append(b, m.Content...)
	}
	if len(group.UserPrompts) > 0 {
		b = append(b, "\nprompts:"...)
		for _, p := range group.UserPrompts {
			b = append(b, ' ')
			b = append(b, p...)
		}
	}
	return string(b)
}

func renderSynthesisInput(input SynthesisInput) string {
	var b []byte
	if input.Thesis != nil {
		b = append(b, "thesis: "...)
		b = append(b, input.Thesis.Content...)
	}
	for _, a := range input.Antitheses {
		b = append(b, "\nantithesis: "...)
		b = append(b, a.Content...)
	}
	for _, m := range input.Exemplars {
		b = append(b, "\nexemplar: "...)
		b = append(b, m.Content...)
	}
	return string(b)
}
