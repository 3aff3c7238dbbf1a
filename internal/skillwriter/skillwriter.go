// Package skillwriter serializes a skill-candidate Synthesis into a
// durable procedural-skill artifact (spec §4.9): a markdown manifest with
// YAML frontmatter plus body, and an executable helper script derived from
// the synthesis's tool-data snapshot. Before creating a new skill it looks
// for an existing one to evolve rather than duplicate.
package skillwriter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"engram/internal/enricher"
	"engram/internal/errs"
	"engram/internal/storage"
	"engram/internal/types"
)

// Complexity classifies a skill's Workflow section (spec §4.9).
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// artifactAuthor identifies engram as the generating system in a Skill
// manifest's metadata block (spec §6).
const artifactAuthor = "engram"

// Writer publishes Skill artifacts from skill-candidate Syntheses.
type Writer struct {
	store    storage.Storage
	enr      enricher.Enricher
	fallback *enricher.HeuristicEnricher
}

// New builds a Writer. enr may be nil; the heuristic fallback always
// covers naming and edge-case summarization.
func New(store storage.Storage, enr enricher.Enricher) *Writer {
	return &Writer{store: store, enr: enr, fallback: enricher.NewHeuristic()}
}

type frontmatter struct {
	Name        string             `yaml:"name"`
	Description string             `yaml:"description"`
	Metadata    frontmatterDetails `yaml:"metadata"`
}

// frontmatterDetails is the Skill manifest's metadata block (spec §6):
// "at minimum {author, version, generatedAt, sourcePatternId,
// sourceSynthesisId}".
type frontmatterDetails struct {
	Author            string `yaml:"author"`
	Version           string `yaml:"version"`
	GeneratedAt       string `yaml:"generatedAt"`
	SourcePatternID   string `yaml:"sourcePatternId"`
	SourceSynthesisID string `yaml:"sourceSynthesisId"`
}

// Publish writes or merges the Skill artifact for synthesis against
// pattern. Returns the stored Skill and whether anything changed.
func (w *Writer) Publish(ctx context.Context, pattern *types.Pattern, synthesis *types.Synthesis) (*types.Skill, bool, error) {
	if pattern == nil || synthesis == nil {
		return nil, false, fmt.Errorf("skillwriter: nil pattern or synthesis: %w", errs.ErrArtifactWrite)
	}

	naming := w.name(ctx, synthesis)
	canonical := canonicalName(naming.Name)
	if canonical == "" {
		canonical = canonicalName(slugify(pattern.Name))
	}

	overview := w.overview(ctx, synthesis)
	edgeCases := w.edgeCases(ctx, synthesis)
	steps := buildSteps(synthesis.ToolDataSnapshot)
	whenToUse := naming.WhenToUse
	if len(whenToUse) == 0 {
		whenToUse = []string{overview}
	}

	existing, err := w.findExistingByCanonicalName(canonical)
	if err == nil {
		return w.merge(existing, overview, whenToUse, edgeCases, synthesis)
	}

	complexity := classify(steps, edgeCases, whenToUse)
	script := w.script(ctx, synthesis)
	body := renderBody(overview, whenToUse, steps, edgeCases, complexity)

	now := time.Now()
	const version = "1.0"
	manifest := renderManifest(canonical, overview, body, frontmatterDetails{
		Author:            artifactAuthor,
		Version:           version,
		GeneratedAt:       now.UTC().Format(time.RFC3339),
		SourcePatternID:   pattern.ID,
		SourceSynthesisID: synthesis.ID,
	})

	skill := &types.Skill{
		ID:          pattern.ID + ":" + canonical,
		PatternID:   pattern.ID,
		SynthesisID: synthesis.ID,
		Name:        canonical,
		Description: overview,
		Content:     manifest,
		ScriptBody:  script,
		Version:     version,
		ContentHash: contentHash(manifest + script),
		Status:      types.ArtifactActive,
		WhenToUse:   whenToUse,
		EdgeCases:   edgeCases,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := w.store.StoreSkill(skill); err != nil {
		return nil, false, err
	}
	return skill, true, nil
}

// findExistingByCanonicalName looks for a prior Skill whose name matches
// canonical after stripping any trailing numeric suffix (spec §4.9).
func (w *Writer) findExistingByCanonicalName(canonical string) (*types.Skill, error) {
	skills, err := w.store.ListSkills()
	if err != nil {
		return nil, err
	}
	for _, s := range skills {
		if canonicalName(s.Name) == canonical {
			return s, nil
		}
	}
	return nil, errs.ErrNotFound
}

// merge reconciles a prior Skill with a new synthesis: newer overview,
// union of when-to-use, the new edge-case bullets appended to the existing
// ones, version bumped (minor+1, rolling to next major at minor >= 9). The
// Workflow section is rebuilt from the new synthesis's tool-data snapshot;
// the prior skill's steps are not carried over, and edge cases are not
// derived one per antithesis.
func (w *Writer) merge(existing *types.Skill, overview string, whenToUse, edgeCases []string, synthesis *types.Synthesis) (*types.Skill, bool, error) {
	existing.Description = overview
	existing.WhenToUse = unionStrings(existing.WhenToUse, whenToUse)
	existing.EdgeCases = append(existing.EdgeCases, edgeCases...)
	existing.Version = bumpVersion(existing.Version)
	existing.SynthesisID = synthesis.ID
	existing.UpdatedAt = time.Now()

	complexity := classify(buildSteps(synthesis.ToolDataSnapshot), existing.EdgeCases, existing.WhenToUse)
	body := renderBody(existing.Description, existing.WhenToUse, buildSteps(synthesis.ToolDataSnapshot), existing.EdgeCases, complexity)
	existing.Content = renderManifest(existing.Name, existing.Description, body, frontmatterDetails{
		Author:            artifactAuthor,
		Version:           existing.Version,
		GeneratedAt:       existing.UpdatedAt.UTC().Format(time.RFC3339),
		SourcePatternID:   existing.PatternID,
		SourceSynthesisID: existing.SynthesisID,
	})
	existing.ContentHash = contentHash(existing.Content + existing.ScriptBody)

	if err := w.store.StoreSkill(existing); err != nil {
		return nil, false, err
	}
	return existing, true, nil
}

func (w *Writer) name(ctx context.Context, synthesis *types.Synthesis) enricher.SkillNaming {
	if w.enr != nil {
		if n, err := w.enr.NameSkill(ctx, synthesis); err == nil && n.Name != "" {
			return n
		}
	}
	n, _ := w.fallback.NameSkill(ctx, synthesis)
	return n
}

func (w *Writer) overview(ctx context.Context, synthesis *types.Synthesis) string {
	if w.enr != nil {
		if summary, err := w.enr.SummarizeEdgeCases(ctx, synthesis); err == nil && summary.Summary != "" {
			return summary.Summary
		}
	}
	summary, _ := w.fallback.SummarizeEdgeCases(ctx, synthesis)
	return summary.Summary
}

func (w *Writer) edgeCases(ctx context.Context, synthesis *types.Synthesis) []string {
	if w.enr != nil {
		if summary, err := w.enr.SummarizeEdgeCases(ctx, synthesis); err == nil {
			return summary.Bullets
		}
	}
	summary, _ := w.fallback.SummarizeEdgeCases(ctx, synthesis)
	return summary.Bullets
}

// script generates the Skill's bundled executable helper via the Enricher,
// falling back to the heuristic's deterministic tool-data replay on
// unavailability (spec §4.9, §4.11).
func (w *Writer) script(ctx context.Context, synthesis *types.Synthesis) string {
	if w.enr != nil {
		if gen, err := w.enr.GenerateScript(ctx, synthesis); err == nil && gen.Script != "" {
			return gen.Script
		}
	}
	gen, _ := w.fallback.GenerateScript(ctx, synthesis)
	return gen.Script
}

type step struct {
	Action  string
	Details string
}

func buildSteps(snapshot []types.ToolDataEntry) []step {
	steps := make([]step, 0, len(snapshot))
	for _, entry := range snapshot {
		steps = append(steps, step{Action: entry.Action, Details: entry.ShortDescription})
	}
	if len(steps) > 6 {
		steps = steps[:6]
	}
	return steps
}

func classify(steps []step, edgeCases, whenToUse []string) Complexity {
	n := len(steps)
	switch {
	case n > 5 || len(edgeCases) > 0 || (len(whenToUse) > 2 && n > 3):
		return ComplexityComplex
	case n <= 2 && len(edgeCases) == 0 && len(whenToUse) <= 2:
		return ComplexitySimple
	default:
		return ComplexityModerate
	}
}

func renderManifest(name, description, body string, metadata frontmatterDetails) string {
	fm, _ := yaml.Marshal(frontmatter{Name: name, Description: description, Metadata: metadata})
	var b strings.Builder
	b.WriteString("---\n")
	b.Write(fm)
	b.WriteString("---\n\n")
	b.WriteString(body)
	return b.String()
}

func renderBody(overview string, whenToUse []string, steps []step, edgeCases []string, complexity Complexity) string {
	var b strings.Builder

	b.WriteString("## Overview\n\n")
	b.WriteString(overview)
	b.WriteString("\n\n")

	b.WriteString("## When to Use\n\n")
	for _, w := range whenToUse {
		b.WriteString("- ")
		b.WriteString(w)
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString("## Workflow\n\n")
	for i, s := range steps {
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(". ")
		b.WriteString(s.Action)
		if s.Details != "" {
			b.WriteString(" — ")
			b.WriteString(s.Details)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if complexity == ComplexityComplex && len(edgeCases) > 0 {
		b.WriteString("## Edge Cases\n\n")
		for _, e := range edgeCases {
			b.WriteString("- ")
			b.WriteString(e)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("## Resources\n\n")
	b.WriteString("See the bundled helper script for an executable version of this workflow.\n")

	return b.String()
}

// canonicalName strips a trailing numeric suffix ("-2", "-3", ...) so
// evolution can match "run-tests-2" against "run-tests".
func canonicalName(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.LastIndexByte(name, '-'); i >= 0 {
		suffix := name[i+1:]
		if suffix != "" {
			if _, err := strconv.Atoi(suffix); err == nil {
				return name[:i]
			}
		}
	}
	return name
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	out := make([]string, 0, len(a)+len(b))
	for _, v := range a {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	for _, v := range b {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// bumpVersion increments the minor component of a "major.minor" version
// string, rolling to the next major when minor would reach 10.
func bumpVersion(v string) string {
	major, minor := splitVersion(v)
	minor++
	if minor >= 10 {
		major++
		minor = 0
	}
	return strconv.Itoa(major) + "." + strconv.Itoa(minor)
}

func splitVersion(v string) (major, minor int) {
	parts := strings.SplitN(v, ".", 2)
	major, _ = strconv.Atoi(parts[0])
	if len(parts) > 1 {
		minor, _ = strconv.Atoi(parts[1])
	}
	return major, minor
}

func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	lastHyphen := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		case r == ' ' || r == '-' || r == '_':
			if !lastHyphen && b.Len() > 0 {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	out := strings.TrimRight(b.String(), "-")
	if out == "" {
		return "skill"
	}
	return out
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
