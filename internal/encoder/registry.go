package encoder

import (
	"strings"
	"sync"

	"engram/internal/types"
)

// Extractor derives tool-specific semantic keys from a tool's input map.
// It never sees the full ToolUsage — only tool_input — so extractors stay
// pure and trivially unit-testable.
type Extractor func(input map[string]any) []types.SemanticKey

// Registry maps a lowercased tool name to the Extractor responsible for it.
// Unregistered tools fall back to the generic extractor, which contributes
// no extra keys beyond the {tool: name} entry the Encoder always adds.
type Registry struct {
	mu         sync.RWMutex
	extractors map[string]Extractor
}

// NewRegistry builds a Registry pre-populated with the §6 built-in
// extractors (Shell, file read/write/edit, Glob, textual search, web
// fetch).
func NewRegistry() *Registry {
	r := &Registry{extractors: make(map[string]Extractor)}

	shell := extractShell
	file := extractFile
	glob := extractGlob
	search := extractTextualSearch
	web := extractWebFetch

	r.Register("bash", shell)
	r.Register("shell", shell)

	r.Register("read", file)
	r.Register("write", file)
	r.Register("edit", file)
	r.Register("notebookedit", file)

	r.Register("glob", glob)

	r.Register("grep", search)
	r.Register("search", search)

	r.Register("webfetch", web)
	r.Register("fetch", web)

	return r
}

// Register binds an Extractor to a tool name (case-insensitive).
func (r *Registry) Register(toolName string, ex Extractor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extractors[normalizeToolName(toolName)] = ex
}

// Extract runs the tool's registered Extractor, or the generic fallback
// extractor when none is registered.
func (r *Registry) Extract(toolName string, input map[string]any) []types.SemanticKey {
	r.mu.RLock()
	ex, ok := r.extractors[normalizeToolName(toolName)]
	r.mu.RUnlock()
	if !ok {
		return extractGeneric(input)
	}
	return ex(input)
}

func normalizeToolName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
