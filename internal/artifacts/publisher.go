// Package artifacts adapts the Rule Writer and Skill Writer into the
// Dialectic Engine's ArtifactPublisher hook, implementing spec §4.7.2's
// execution mapping from an Output Decision to concrete artifact writes.
package artifacts

import (
	"context"
	"fmt"

	"engram/internal/rulewriter"
	"engram/internal/skillwriter"
	"engram/internal/types"
)

// Publisher routes a resolved Synthesis to the Rule Writer, the Skill
// Writer, both, or neither, per the OutputDecision attached by the
// Dialectic Engine. It satisfies dialectic.ArtifactPublisher.
type Publisher struct {
	rules  *rulewriter.Writer
	skills *skillwriter.Writer
}

// New builds a Publisher. Either writer may be nil to disable that
// artifact kind.
func New(rules *rulewriter.Writer, skills *skillwriter.Writer) *Publisher {
	return &Publisher{rules: rules, skills: skills}
}

// Publish implements spec §4.7.2's execution table: `rule` publishes a
// Rule only; `skill` publishes a Skill only (the synthesis is already
// marked skill_candidate by the Output Decider); `rule_with_skill`
// publishes both; `none` is a no-op.
func (p *Publisher) Publish(ctx context.Context, pattern *types.Pattern, synthesis *types.Synthesis) error {
	decision := synthesis.Resolution.OutputDecision
	if decision == nil || decision.Output == types.OutputNone {
		return nil
	}

	if decision.Output == types.OutputSkill || decision.Output == types.OutputRuleWithSkill {
		if p.skills != nil {
			if _, _, err := p.skills.Publish(ctx, pattern, synthesis); err != nil {
				return fmt.Errorf("artifacts: skill publish: %w", err)
			}
		}
	}

	if decision.Output == types.OutputRule || decision.Output == types.OutputRuleWithSkill {
		if p.rules != nil && p.rules.IsReady(pattern, synthesis) {
			if _, _, err := p.rules.Publish(ctx, pattern, synthesis); err != nil {
				return fmt.Errorf("artifacts: rule publish: %w", err)
			}
		}
	}

	return nil
}
