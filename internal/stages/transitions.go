package stages

import (
	"context"

	"engram/internal/encoder"
	"engram/internal/storage"
	"engram/internal/types"
)

// relationshipKeys are the semantic-key names the conceptual→semantic
// transition materializes (spec §4.6: "tool operates_on file, tool within
// directory, tool produces result:{success|error}"). semantic→syntactic
// counts how many of these a memory carries as its "relationships" tally.
const (
	keyOperatesOn    = "operates_on"
	keyWithinDir     = "within_directory"
	keyProducesResult = "produces_result"
)

// conceptualToSemantic transitions eligible conceptual memories: strength
// ≥ ThetaS1, access_count ≥ AccessS1, len(associations) ≥ AssocS1. On
// transition it tops up associations from the Retriever, adds a category
// tag, and materializes entity/relationship semantic keys.
func (p *Pipeline) conceptualToSemantic(ctx context.Context, report *Report) error {
	candidates, err := p.store.QueryMemories(storage.MemoryFilter{Stage: types.StageConceptual})
	if err != nil {
		return err
	}

	for _, m := range candidates {
		if !p.eligibleForSemantic(m) {
			continue
		}
		p.enrichForSemantic(ctx, m)
		m.Metadata.Stage = types.StageSemantic
		if err := p.store.UpdateMemory(m); err != nil {
			return err
		}
		report.PromotedToSemantic++
	}
	return nil
}

func (p *Pipeline) eligibleForSemantic(m *types.Memory) bool {
	return m.Strength >= p.config.ThetaS1 &&
		m.AccessCount >= p.config.AccessS1 &&
		len(m.Metadata.Associations) >= p.config.AssocS1
}

// enrichForSemantic performs the conceptual→semantic transition's
// side-effects: Retriever-sourced association top-up, a category tag, and
// the three relationship semantic keys. Idempotent — reapplying it never
// duplicates a tag, association or key.
func (p *Pipeline) enrichForSemantic(ctx context.Context, m *types.Memory) {
	p.topUpAssociations(ctx, m)
	addCategoryTag(m)
	p.addRelationshipKeys(m)
}

func (p *Pipeline) topUpAssociations(ctx context.Context, m *types.Memory) {
	if p.retriever == nil || m.Content == "" {
		return
	}
	results, err := p.retriever.Search(ctx, m.Content, storage.MemoryFilter{SessionID: m.Metadata.SessionID}, p.config.RelatedTopK)
	if err != nil {
		return
	}
	existing := make(map[string]bool, len(m.Metadata.Associations))
	for _, id := range m.Metadata.Associations {
		existing[id] = true
	}
	for _, sm := range results {
		if sm.Memory.ID == m.ID || existing[sm.Memory.ID] {
			continue
		}
		m.Metadata.Associations = append(m.Metadata.Associations, sm.Memory.ID)
		existing[sm.Memory.ID] = true
	}
}

func addCategoryTag(m *types.Memory) {
	tag := encoder.Category(m.Metadata.ToolName)
	for _, t := range m.Metadata.Tags {
		if t == tag {
			return
		}
	}
	m.Metadata.Tags = append(m.Metadata.Tags, tag)
}

// addRelationshipKeys re-runs the memory's tool_input through the same
// Encoder extractor registry that produced its original semantic keys,
// rather than re-implementing file_path/directory extraction here, and
// derives the three entity/relationship keys spec §4.6 names from the
// result.
func (p *Pipeline) addRelationshipKeys(m *types.Memory) {
	filePath, directory := registrySignals(p.registry, m)
	hasError := hasErrorTag(m)

	if filePath != "" {
		upsertKey(m, keyOperatesOn, filePath, 0.8)
	}
	if directory != "" {
		upsertKey(m, keyWithinDir, directory, 0.6)
	}
	result := "success"
	if hasError {
		result = "error"
	}
	upsertKey(m, keyProducesResult, result, 0.9)
}

func registrySignals(registry *encoder.Registry, m *types.Memory) (filePath, directory string) {
	if registry == nil {
		return "", ""
	}
	for _, k := range registry.Extract(m.Metadata.ToolName, m.Metadata.ToolInput) {
		switch k.Key {
		case "file_path":
			filePath = k.Value
		case "directory":
			directory = k.Value
		}
	}
	return filePath, directory
}

func hasErrorTag(m *types.Memory) bool {
	for _, t := range m.Metadata.Tags {
		if t == "error" {
			return true
		}
	}
	return false
}

// upsertKey adds (key, value) to a memory's semantic keys unless an
// identical pair is already present, keeping the transition idempotent.
func upsertKey(m *types.Memory, key, value string, weight float64) {
	for _, k := range m.Metadata.SemanticKeys {
		if k.Key == key && k.Value == value {
			return
		}
	}
	m.Metadata.SemanticKeys = append(m.Metadata.SemanticKeys, types.SemanticKey{Key: key, Value: value, Weight: weight})
}

// semanticToSyntactic transitions eligible semantic memories: strength ≥
// ThetaS2, access_count ≥ AccessS2, relationships ≥ RelationshipsS2,
// concept_count ≥ ConceptCountS2. On transition it builds a Procedure from
// the memory and its retriever-selected related memories, and records
// {procedure_type, step_count, procedure_name} as new semantic keys.
func (p *Pipeline) semanticToSyntactic(ctx context.Context, report *Report) error {
	candidates, err := p.store.QueryMemories(storage.MemoryFilter{Stage: types.StageSemantic})
	if err != nil {
		return err
	}

	for _, m := range candidates {
		if !p.eligibleForSyntactic(m) {
			continue
		}
		proc, err := p.buildProcedure(ctx, m)
		if err != nil {
			continue // best-effort; a Procedure build failure shouldn't stall other memories
		}
		upsertKey(m, "procedure_type", string(proc.Type), 0.9)
		upsertKey(m, "step_count", itoa(len(proc.Steps)), 0.9)
		upsertKey(m, "procedure_name", proc.Name, 0.8)

		m.Metadata.Stage = types.StageSyntactic
		if err := p.store.UpdateMemory(m); err != nil {
			return err
		}
		report.PromotedToSyntactic++
	}
	return nil
}

func (p *Pipeline) eligibleForSyntactic(m *types.Memory) bool {
	return m.Strength >= p.config.ThetaS2 &&
		m.AccessCount >= p.config.AccessS2 &&
		relationshipCount(m) >= p.config.RelationshipsS2 &&
		conceptCount(m) >= p.config.ConceptCountS2
}

// relationshipCount counts the entity/relationship keys added by the
// conceptual→semantic transition.
func relationshipCount(m *types.Memory) int {
	n := 0
	for _, k := range m.Metadata.SemanticKeys {
		switch k.Key {
		case keyOperatesOn, keyWithinDir, keyProducesResult:
			n++
		}
	}
	return n
}

// conceptCount counts the distinct semantic-key names on a memory,
// standing in for the number of distinct concepts the observation touches.
func conceptCount(m *types.Memory) int {
	seen := make(map[string]bool)
	for _, k := range m.Metadata.SemanticKeys {
		seen[k.Key] = true
	}
	return len(seen)
}

// enrichConceptualBatch tops up associations (not category tags) for a
// capped batch of memories still at the conceptual stage, so later
// ProcessAll calls have more to work with even though these memories
// haven't crossed the semantic threshold yet.
func (p *Pipeline) enrichConceptualBatch(ctx context.Context, report *Report) error {
	candidates, err := p.store.QueryMemories(storage.MemoryFilter{
		Stage: types.StageConceptual,
		Limit: p.config.EnrichBatchLimit,
	})
	if err != nil {
		return err
	}

	for _, m := range candidates {
		before := len(m.Metadata.Associations)
		p.topUpAssociations(ctx, m)
		if len(m.Metadata.Associations) == before {
			continue
		}
		if err := p.store.UpdateMemory(m); err != nil {
			return err
		}
		report.Enriched++
	}
	return nil
}
