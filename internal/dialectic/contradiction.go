package dialectic

import (
	"strings"

	"engram/internal/embeddings"
	"engram/internal/encoder"
	"engram/internal/types"
)

// EdgeCaseSimilarityFloor and EdgeCaseSimilarityCeil bound the cosine
// similarity window spec §4.7 uses for the edge_case detector.
const (
	EdgeCaseSimilarityFloor = 0.5
	EdgeCaseSimilarityCeil  = 0.8
)

// detectContradiction tests, in priority order, whether newMem
// contradicts exemplar, returning the first matching type. A zero
// ContradictionType means no contradiction was found against this
// exemplar.
func detectContradiction(newMem, exemplar *types.Memory) (types.ContradictionType, bool) {
	if isDirect(newMem, exemplar) {
		return types.ContradictionDirect, true
	}
	if isRefinement(newMem, exemplar) {
		return types.ContradictionRefinement, true
	}
	if isEdgeCase(newMem, exemplar) {
		return types.ContradictionEdgeCase, true
	}
	if isContextDependent(newMem, exemplar) {
		return types.ContradictionContextDependent, true
	}
	return "", false
}

func sameTool(a, b *types.Memory) bool {
	return a.Metadata.ToolName != "" && strings.EqualFold(a.Metadata.ToolName, b.Metadata.ToolName)
}

func hasTag(m *types.Memory, tag string) bool {
	for _, t := range m.Metadata.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// isDirect: same tool, opposite success/error outcome.
func isDirect(a, b *types.Memory) bool {
	if !sameTool(a, b) {
		return false
	}
	return hasTag(a, "error") != hasTag(b, "error")
}

// isRefinement: identical key overlaps but differing value, and at least
// one key present on the new memory that the exemplar lacks.
func isRefinement(a, b *types.Memory) bool {
	bVals := make(map[string]string, len(b.Metadata.SemanticKeys))
	bKeys := make(map[string]bool, len(b.Metadata.SemanticKeys))
	for _, k := range b.Metadata.SemanticKeys {
		bVals[k.Key] = k.Value
		bKeys[k.Key] = true
	}

	sharedKeyDifferentValue := false
	newKeyAdded := false
	for _, k := range a.Metadata.SemanticKeys {
		if bv, ok := bVals[k.Key]; ok {
			if bv != k.Value {
				sharedKeyDifferentValue = true
			}
		} else if !bKeys[k.Key] {
			newKeyAdded = true
		}
	}
	return sharedKeyDifferentValue && newKeyAdded
}

// isEdgeCase: embedding cosine similarity in [0.5, 0.8) with differing
// tool_output.
func isEdgeCase(a, b *types.Memory) bool {
	if !a.HasEmbedding() || !b.HasEmbedding() {
		return false
	}
	sim := embeddings.CosineSimilarity(a.Embedding, b.Embedding)
	if sim < EdgeCaseSimilarityFloor || sim >= EdgeCaseSimilarityCeil {
		return false
	}
	return a.Metadata.ToolOutput != b.Metadata.ToolOutput
}

// isContextDependent: same tool, same semantic category, different
// directory value, in a different session.
func isContextDependent(a, b *types.Memory) bool {
	if !sameTool(a, b) {
		return false
	}
	if a.Metadata.SessionID == b.Metadata.SessionID {
		return false
	}
	if encoder.Category(a.Metadata.ToolName) != encoder.Category(b.Metadata.ToolName) {
		return false
	}
	aDir, aOK := semanticValue(a, "directory")
	bDir, bOK := semanticValue(b, "directory")
	if !aOK || !bOK {
		return false
	}
	return aDir != bDir
}

func semanticValue(m *types.Memory, key string) (string, bool) {
	for _, k := range m.Metadata.SemanticKeys {
		if k.Key == key {
			return k.Value, true
		}
	}
	return "", false
}
