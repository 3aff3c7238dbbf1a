// Package rulewriter serializes a Synthesis into a durable imperative-rule
// artifact (spec §4.8): markdown with optional glob-path frontmatter, a
// title, a summary, when-to-apply guidance, and a trailing machine-readable
// metadata comment. Publishing is idempotent on content hash and versioned
// on change.
package rulewriter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"engram/internal/enricher"
	"engram/internal/errs"
	"engram/internal/storage"
	"engram/internal/types"
)

// Config holds the Rule Writer's readiness thresholds (spec §4.8).
type Config struct {
	MinConfidence         float64
	MinSupportingMemories int
	AutoPublish           bool
}

// DefaultConfig mirrors the thresholds spec.md names for readiness.
func DefaultConfig() Config {
	return Config{
		MinConfidence:         0.7,
		MinSupportingMemories: 2,
		AutoPublish:           true,
	}
}

// Writer publishes Rule artifacts from Syntheses.
type Writer struct {
	store    storage.Storage
	enr      enricher.Enricher
	fallback *enricher.HeuristicEnricher
	config   Config
}

// New builds a Writer. enr may be nil; the heuristic fallback always
// covers title derivation.
func New(store storage.Storage, enr enricher.Enricher, config Config) *Writer {
	return &Writer{store: store, enr: enr, fallback: enricher.NewHeuristic(), config: config}
}

// frontmatter is the YAML block rendered at the top of a Rule artifact.
type frontmatter struct {
	Paths []string `yaml:"paths,omitempty"`
}

// IsReady implements spec §4.8's readiness predicate: the owning pattern's
// confidence clears MinConfidence, the synthesis has enough supporting
// exemplars, and the resolution isn't an outright rejection.
func (w *Writer) IsReady(pattern *types.Pattern, synthesis *types.Synthesis) bool {
	if pattern == nil || synthesis == nil {
		return false
	}
	if pattern.Confidence < w.config.MinConfidence {
		return false
	}
	if len(synthesis.ExemplarMemoryIDs) < w.config.MinSupportingMemories {
		return false
	}
	return synthesis.Resolution.Type != types.ResolutionRejection
}

// Publish renders the Rule artifact for synthesis and stores it, merging
// with any prior Rule at the same slug. It returns the stored Rule and
// whether the store was actually written (false on a content-identical
// no-op).
func (w *Writer) Publish(ctx context.Context, pattern *types.Pattern, synthesis *types.Synthesis) (*types.Rule, bool, error) {
	if !w.IsReady(pattern, synthesis) {
		return nil, false, fmt.Errorf("rulewriter: synthesis %s not publish-ready: %w", synthesis.ID, errs.ErrArtifactWrite)
	}

	exemplars, err := w.loadExemplars(synthesis.ExemplarMemoryIDs)
	if err != nil {
		return nil, false, err
	}

	title := w.title(ctx, synthesis)
	slug := slugify(title)
	// The stable body is hashed for idempotence; the metadata trailer
	// (version, updated_at) is appended after hashing since those fields
	// change on every publish and would otherwise defeat the hash check.
	stableBody := w.renderBody(title, pattern, synthesis, exemplars)
	hash := contentHash(stableBody)

	existing, err := w.store.GetRuleBySlug(slug)
	if err == nil {
		if existing.ContentHash == hash {
			return existing, false, nil
		}
		existing.ContentHash = hash
		existing.Version++
		existing.Confidence = pattern.Confidence
		existing.SynthesisID = synthesis.ID
		existing.UpdatedAt = time.Now()
		existing.Status = types.ArtifactActive
		existing.Paths = derivePaths(exemplars)
		existing.Content = stableBody + metadataComment(pattern, synthesis, existing.Version, existing.UpdatedAt)
		if err := w.store.StoreRule(existing); err != nil {
			return nil, false, err
		}
		return existing, true, nil
	}

	now := time.Now()
	rule := &types.Rule{
		ID:          pattern.ID + ":" + slug,
		PatternID:   pattern.ID,
		SynthesisID: synthesis.ID,
		Title:       title,
		Slug:        slug,
		Paths:       derivePaths(exemplars),
		Version:     1,
		ContentHash: hash,
		Status:      types.ArtifactActive,
		Confidence:  pattern.Confidence,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	rule.Content = stableBody + metadataComment(pattern, synthesis, rule.Version, rule.UpdatedAt)
	if err := w.store.StoreRule(rule); err != nil {
		return nil, false, err
	}
	return rule, true, nil
}

// Invalidate marks a Rule invalidated and prepends a deprecation notice,
// per spec §4.8 ("Rules may be invalidated ... or deleted").
func (w *Writer) Invalidate(rule *types.Rule, reason string) error {
	if rule.Status == types.ArtifactInvalidated {
		return nil
	}
	notice := fmt.Sprintf("> **Deprecated.** %s\n\n", reason)
	rule.Content = notice + rule.Content
	rule.Status = types.ArtifactInvalidated
	rule.UpdatedAt = time.Now()
	return w.store.StoreRule(rule)
}

func (w *Writer) title(ctx context.Context, synthesis *types.Synthesis) string {
	if w.enr != nil {
		if t, err := w.enr.TitleRule(ctx, synthesis); err == nil && t.Title != "" {
			return t.Title
		}
	}
	t, _ := w.fallback.TitleRule(ctx, synthesis)
	return t.Title
}

func (w *Writer) loadExemplars(ids []string) ([]*types.Memory, error) {
	out := make([]*types.Memory, 0, len(ids))
	for _, id := range ids {
		m, err := w.store.GetMemory(id, types.ReadUntracked)
		if err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (w *Writer) renderBody(title string, pattern *types.Pattern, synthesis *types.Synthesis, exemplars []*types.Memory) string {
	var b strings.Builder

	if paths := derivePaths(exemplars); len(paths) > 0 {
		fm, err := yaml.Marshal(frontmatter{Paths: paths})
		if err == nil {
			b.WriteString("---\n")
			b.Write(fm)
			b.WriteString("---\n\n")
		}
	}

	b.WriteString("# ")
	b.WriteString(title)
	b.WriteString("\n\n")

	b.WriteString(synthesis.Content)
	b.WriteString("\n\n")

	if when := whenToApply(synthesis.Resolution); when != "" {
		b.WriteString("## When to Apply\n\n")
		b.WriteString(when)
		b.WriteString("\n\n")
	}

	if tools := relatedTools(exemplars); len(tools) > 0 {
		b.WriteString("## Related Tools\n\n")
		for _, t := range tools {
			b.WriteString("- ")
			b.WriteString(t)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("Observed across ")
	b.WriteString(strconv.Itoa(len(synthesis.ExemplarMemoryIDs)))
	b.WriteString(" session-level exemplars.\n")

	return b.String()
}

func whenToApply(resolution types.Resolution) string {
	if len(resolution.Conditions) > 0 {
		var b strings.Builder
		for _, c := range resolution.Conditions {
			b.WriteString("- ")
			b.WriteString(c)
			b.WriteString("\n")
		}
		return strings.TrimRight(b.String(), "\n")
	}
	return resolution.Abstraction
}

func relatedTools(exemplars []*types.Memory) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range exemplars {
		if m.Metadata.ToolName == "" || seen[m.Metadata.ToolName] {
			continue
		}
		seen[m.Metadata.ToolName] = true
		out = append(out, m.Metadata.ToolName)
	}
	sort.Strings(out)
	return out
}

// derivePaths builds glob-path frontmatter from exemplar file_path
// semantic keys: a directory-prefix glob and an extension glob.
func derivePaths(exemplars []*types.Memory) []string {
	dirs := make(map[string]bool)
	exts := make(map[string]bool)
	for _, m := range exemplars {
		for _, k := range m.Metadata.SemanticKeys {
			switch k.Key {
			case "directory":
				if k.Value != "" {
					dirs[k.Value] = true
				}
			case "file_extension":
				if k.Value != "" {
					exts[k.Value] = true
				}
			}
		}
	}

	var out []string
	for d := range dirs {
		out = append(out, strings.TrimSuffix(d, "/")+"/**")
	}
	for e := range exts {
		out = append(out, "**/*."+strings.TrimPrefix(e, "."))
	}
	sort.Strings(out)
	return out
}

func metadataComment(pattern *types.Pattern, synthesis *types.Synthesis, version int, updatedAt time.Time) string {
	var b strings.Builder
	b.WriteString("\n<!-- engram:pattern:")
	b.WriteString(pattern.ID)
	if synthesis != nil {
		b.WriteString(":synthesis:" + synthesis.ID)
	}
	b.WriteString(":v" + strconv.Itoa(version))
	b.WriteString(":" + updatedAt.UTC().Format("2006-01-02"))
	b.WriteString(":confidence:" + strconv.FormatFloat(pattern.Confidence, 'f', 2, 64))
	b.WriteString(" -->\n")
	return b.String()
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
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
		return "rule"
	}
	return out
}
