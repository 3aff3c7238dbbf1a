package enricher

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"engram/internal/errs"
	"engram/internal/types"
)

// HeuristicEnricher is the always-available, deterministic Enricher used
// when no LLM collaborator is configured. It never calls out to a model;
// every method is a pure function over its input, grounded in the
// teacher's createProblemSignature hyphenated-concatenation idiom
// (internal/memory/learning.go) as the last-resort naming fallback.
type HeuristicEnricher struct{}

// NewHeuristic constructs a HeuristicEnricher.
func NewHeuristic() *HeuristicEnricher {
	return &HeuristicEnricher{}
}

// NamePattern follows spec §4.7 step 2's naming priority chain: for (i) it
// takes the first non-empty user prompt as-is (slugified for the name),
// without extracting intent from it; then (ii) most-frequent
// command_name/domain/file_extension plus a dominant action verb; then
// (iii) hyphenated tool concatenation.
func (HeuristicEnricher) NamePattern(ctx context.Context, group PatternMemberGroup) (PatternNaming, error) {
	if name := firstNonEmptyPrompt(group.UserPrompts); name != "" {
		return PatternNaming{Name: slugify(name), Description: name}, nil
	}

	dominant := dominantSemanticValue(group.Memories)
	verb := dominantVerb(group.Memories)
	if dominant != "" {
		name := dominant
		if verb != "" {
			name = verb + "-" + dominant
		}
		return PatternNaming{
			Name:        name,
			Description: "Recurring workflow around " + dominant,
		}, nil
	}

	tools := hyphenatedTools(group.Memories)
	return PatternNaming{
		Name:        tools,
		Description: "Recurring use of " + tools,
	}, nil
}

// SummarizeThesis produces a compact heuristic insight sentence.
func (HeuristicEnricher) SummarizeThesis(ctx context.Context, group PatternMemberGroup) (ThesisInsight, error) {
	dominant := dominantSemanticValue(group.Memories)
	tools := hyphenatedTools(group.Memories)
	if dominant == "" {
		return ThesisInsight{Content: "Repeated use of " + tools + " observed across sessions."}, nil
	}
	return ThesisInsight{Content: "Consistently uses " + tools + " in connection with " + dominant + "."}, nil
}

// NarrateSynthesis emits a compact deterministic summary that preserves
// the resolution type (spec §4.7.1: "the engine still emits a compact
// deterministic summary" on Enricher unavailability).
func (HeuristicEnricher) NarrateSynthesis(ctx context.Context, input SynthesisInput) (SynthesisNarrative, error) {
	var b strings.Builder
	if input.Thesis != nil {
		b.WriteString(input.Thesis.Content)
	}
	b.WriteString(" Reconciled via ")
	b.WriteString(string(input.Resolution))
	b.WriteString(" across ")
	b.WriteString(pluralize(len(input.Antitheses), "contradiction"))
	b.WriteString(" and ")
	b.WriteString(pluralize(len(input.Exemplars), "exemplar"))
	b.WriteString(".")
	return SynthesisNarrative{Content: b.String()}, nil
}

// ClassifyOutput returns ErrEnricherUnavailable: the heuristic has no
// second opinion to offer beyond the Output Decider's own feature-vector
// table (spec §4.7.2: "On Enricher failure, keep the heuristic").
func (HeuristicEnricher) ClassifyOutput(ctx context.Context, features types.FeatureVector, content string) (OutputVerdict, error) {
	return OutputVerdict{}, errs.ErrEnricherUnavailable
}

// TitleRule derives a short imperative title from the synthesis content's
// first sentence.
func (HeuristicEnricher) TitleRule(ctx context.Context, synthesis *types.Synthesis) (RuleTitle, error) {
	if synthesis == nil {
		return RuleTitle{}, errs.ErrEnricherUnavailable
	}
	return RuleTitle{Title: firstSentence(synthesis.Content)}, nil
}

// skillVerbVocabulary and skillNounVocabulary are the fixed vocabularies
// step (ii) of the Skill naming order matches against (spec §4.9). A
// Heuristic has no user-goal signal to drive step (i), so it starts here;
// finding neither a verb nor a noun leaves Name empty, letting the caller
// fall through to step (iii) (slugifying the Pattern name).
var skillVerbVocabulary = []string{
	"run", "test", "build", "install", "deploy", "fix", "commit", "push",
	"migrate", "generate", "validate", "format", "lint", "debug", "create",
	"update", "delete", "check", "review", "refactor", "document", "revert",
}

var skillNounVocabulary = []string{
	"tests", "build", "config", "migration", "schema", "dependencies",
	"cache", "service", "database", "commit", "deploy", "lint", "docs",
	"branch", "release", "container", "pipeline", "index", "backup",
}

// NameSkill implements spec §4.9's step (ii): verb+noun extraction against
// fixed vocabularies, scanning the synthesis content first and then the
// tool-data snapshot's descriptions. Step (i) (user-goal extraction) needs
// a collaborator model and is left to CollaboratorEnricher; step (iii)
// (slugifying the Pattern name) is the Skill Writer's own fallback when
// Name comes back empty.
func (HeuristicEnricher) NameSkill(ctx context.Context, synthesis *types.Synthesis) (SkillNaming, error) {
	if synthesis == nil {
		return SkillNaming{}, errs.ErrEnricherUnavailable
	}

	verb, noun := extractVerbNoun(synthesis.Content)
	for _, e := range synthesis.ToolDataSnapshot {
		if verb != "" && noun != "" {
			break
		}
		v, n := extractVerbNoun(e.ShortDescription + " " + e.Action)
		if verb == "" {
			verb = v
		}
		if noun == "" {
			noun = n
		}
	}

	whenToUse := []string{firstSentence(synthesis.Content)}
	if verb == "" || noun == "" {
		return SkillNaming{WhenToUse: whenToUse}, nil
	}
	return SkillNaming{Name: verb + "-" + noun, WhenToUse: whenToUse}, nil
}

// extractVerbNoun tokenizes text and returns the first word matching
// skillVerbVocabulary and the first other word matching
// skillNounVocabulary.
func extractVerbNoun(text string) (verb, noun string) {
	for _, word := range tokenize(text) {
		if verb == "" && containsWord(skillVerbVocabulary, word) {
			verb = word
			continue
		}
		if noun == "" && containsWord(skillNounVocabulary, word) {
			noun = word
		}
	}
	return verb, noun
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
}

func containsWord(vocabulary []string, word string) bool {
	for _, v := range vocabulary {
		if v == word {
			return true
		}
	}
	return false
}

// GenerateScript is the heuristic fallback for a Skill's bundled helper:
// a minimal shell script that replays the tool-data snapshot's commands,
// one per exemplar step (spec §4.9).
func (HeuristicEnricher) GenerateScript(ctx context.Context, synthesis *types.Synthesis) (ScriptGeneration, error) {
	if synthesis == nil {
		return ScriptGeneration{}, errs.ErrEnricherUnavailable
	}
	var b strings.Builder
	b.WriteString("#!/usr/bin/env bash\nset -euo pipefail\n\n")
	wrote := false
	for _, entry := range synthesis.ToolDataSnapshot {
		if entry.Action == "" {
			continue
		}
		b.WriteString("# ")
		b.WriteString(entry.ShortDescription)
		b.WriteString("\n")
		b.WriteString(entry.Action)
		b.WriteString("\n\n")
		wrote = true
	}
	if !wrote {
		return ScriptGeneration{Script: "#!/usr/bin/env bash\nset -euo pipefail\n\n# no tool data captured; placeholder\necho \"no-op\"\n"}, nil
	}
	return ScriptGeneration{Script: b.String()}, nil
}

// SummarizeEdgeCases has no access to the antitheses (only the synthesis):
// it returns the content's first sentence as the summary and the tool-data
// snapshot's short descriptions as bullets.
func (HeuristicEnricher) SummarizeEdgeCases(ctx context.Context, synthesis *types.Synthesis) (ContentSummary, error) {
	if synthesis == nil {
		return ContentSummary{}, errs.ErrEnricherUnavailable
	}
	var bullets []string
	for _, e := range synthesis.ToolDataSnapshot {
		if e.ShortDescription != "" {
			bullets = append(bullets, e.ShortDescription)
		}
	}
	return ContentSummary{Summary: firstSentence(synthesis.Content), Bullets: bullets}, nil
}

func firstNonEmptyPrompt(prompts []string) string {
	for _, p := range prompts {
		if strings.TrimSpace(p) != "" {
			return strings.TrimSpace(p)
		}
	}
	return ""
}

// dominantSemanticValue returns the most common value among memories'
// command_name/domain/file_extension semantic keys, in that priority
// order, breaking frequency ties by first occurrence.
func dominantSemanticValue(memories []*types.Memory) string {
	for _, keyName := range []string{"command_name", "domain", "file_extension"} {
		if v := mostFrequentValue(memories, keyName); v != "" {
			return v
		}
	}
	return ""
}

func mostFrequentValue(memories []*types.Memory, keyName string) string {
	counts := make(map[string]int)
	var order []string
	for _, m := range memories {
		for _, k := range m.Metadata.SemanticKeys {
			if k.Key != keyName || k.Value == "" {
				continue
			}
			if counts[k.Value] == 0 {
				order = append(order, k.Value)
			}
			counts[k.Value]++
		}
	}
	best := ""
	bestCount := 0
	for _, v := range order {
		if counts[v] > bestCount {
			best = v
			bestCount = counts[v]
		}
	}
	return best
}

// dominantVerb infers a coarse action verb from the most common tool
// category among the group (edit -> "editing", bash -> "running", etc).
func dominantVerb(memories []*types.Memory) string {
	counts := make(map[string]int)
	var order []string
	for _, m := range memories {
		name := strings.ToLower(m.Metadata.ToolName)
		if name == "" {
			continue
		}
		if counts[name] == 0 {
			order = append(order, name)
		}
		counts[name]++
	}
	if len(order) == 0 {
		return ""
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	switch order[0] {
	case "edit", "write", "notebookedit":
		return "editing"
	case "read":
		return "reading"
	case "bash", "shell":
		return "running"
	case "grep", "search":
		return "searching"
	case "glob":
		return "locating"
	case "webfetch", "fetch":
		return "fetching"
	default:
		return ""
	}
}

// hyphenatedTools is the (iii) last-resort fallback: a hyphenated
// concatenation of the distinct tool names in the group, matching the
// teacher's createProblemSignature idiom.
func hyphenatedTools(memories []*types.Memory) string {
	seen := make(map[string]bool)
	var tools []string
	for _, m := range memories {
		name := strings.ToLower(m.Metadata.ToolName)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		tools = append(tools, name)
	}
	if len(tools) == 0 {
		return "observation"
	}
	return strings.Join(tools, "-")
}

func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == ' ' || r == '-' || r == '_':
			return '-'
		default:
			return -1
		}
	}, s)
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	s = strings.Trim(s, "-")
	if len(s) > 40 {
		s = s[:40]
	}
	if s == "" {
		return "pattern"
	}
	return s
}

func firstSentence(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, ".\n"); i > 0 {
		return s[:i]
	}
	if len(s) > 80 {
		return s[:80]
	}
	return s
}

func pluralize(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return strconv.Itoa(n) + " " + noun + "s"
}
