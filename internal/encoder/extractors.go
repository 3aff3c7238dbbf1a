package encoder

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"engram/internal/types"
)

// key builds a SemanticKey with the given weight, skipping empty values so
// callers can write extractors without per-field presence checks.
func key(name, value string, weight float64) (types.SemanticKey, bool) {
	if value == "" {
		return types.SemanticKey{}, false
	}
	return types.SemanticKey{Key: name, Value: value, Weight: weight}, true
}

func appendKey(keys []types.SemanticKey, name, value string, weight float64) []types.SemanticKey {
	if k, ok := key(name, value, weight); ok {
		return append(keys, k)
	}
	return keys
}

// strField reads a string-typed field out of a tool_input map, tolerating
// absence or a non-string value.
func strField(input map[string]any, names ...string) string {
	for _, name := range names {
		if v, ok := input[name]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

// extractShell extracts {command, command_name} from a shell invocation.
func extractShell(input map[string]any) []types.SemanticKey {
	command := strField(input, "command", "cmd")
	if command == "" {
		return nil
	}
	var keys []types.SemanticKey
	keys = appendKey(keys, "command", command, 1.0)
	keys = appendKey(keys, "command_name", firstToken(command), 0.9)
	return keys
}

// firstToken returns the first whitespace-separated token of a shell
// command, with any leading path stripped (e.g. "/usr/bin/git" -> "git").
func firstToken(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	return filepath.Base(fields[0])
}

// extractFile extracts {file_path, file_extension, directory} from a file
// read/write/edit invocation.
func extractFile(input map[string]any) []types.SemanticKey {
	path := strField(input, "file_path", "path", "notebook_path")
	if path == "" {
		return nil
	}
	var keys []types.SemanticKey
	keys = appendKey(keys, "file_path", path, 1.0)
	keys = appendKey(keys, "file_extension", strings.TrimPrefix(filepath.Ext(path), "."), 0.8)
	keys = appendKey(keys, "directory", filepath.Dir(path), 0.7)
	return keys
}

// extractGlob extracts {pattern, directory?} from a glob-style search.
func extractGlob(input map[string]any) []types.SemanticKey {
	pattern := strField(input, "pattern", "glob")
	if pattern == "" {
		return nil
	}
	var keys []types.SemanticKey
	keys = appendKey(keys, "pattern", pattern, 1.0)
	keys = appendKey(keys, "directory", strField(input, "path", "directory"), 0.6)
	return keys
}

// extractTextualSearch extracts {search_pattern, directory?} from a
// content-search tool.
func extractTextualSearch(input map[string]any) []types.SemanticKey {
	pattern := strField(input, "pattern", "query")
	if pattern == "" {
		return nil
	}
	var keys []types.SemanticKey
	keys = appendKey(keys, "search_pattern", pattern, 1.0)
	keys = appendKey(keys, "directory", strField(input, "path", "directory"), 0.6)
	return keys
}

// extractWebFetch extracts {url, domain} from a web-fetch invocation.
func extractWebFetch(input map[string]any) []types.SemanticKey {
	raw := strField(input, "url")
	if raw == "" {
		return nil
	}
	var keys []types.SemanticKey
	keys = appendKey(keys, "url", raw, 1.0)
	if parsed, err := url.Parse(raw); err == nil {
		keys = appendKey(keys, "domain", parsed.Hostname(), 0.9)
	}
	return keys
}

// extractGeneric is the fallback for tools with no registered Extractor.
// It contributes no keys beyond the {tool: name} entry the Encoder always
// adds.
func extractGeneric(_ map[string]any) []types.SemanticKey {
	return nil
}

// Category exports category's tool taxonomy for reuse outside this
// package — the Stage Pipeline's conceptual→semantic transition derives
// additional category tags from the same taxonomy (spec §4.6) rather than
// duplicating it.
func Category(toolName string) string {
	return category(toolName)
}

// category buckets a tool name into a coarse taxonomy label, used as a
// memory tag so Consolidator/Stage-Pipeline queries can filter by kind of
// activity without re-deriving it from tool_name each time.
func category(toolName string) string {
	switch normalizeToolName(toolName) {
	case "bash", "shell":
		return "shell"
	case "read", "write", "edit", "notebookedit":
		return "file"
	case "glob":
		return "glob"
	case "grep", "search":
		return "search"
	case "webfetch", "fetch":
		return "web"
	default:
		return "other"
	}
}

// describeTool renders a short human label for a tool, used in content
// summaries (e.g. "Bash" -> "shell command", falling back to the raw name).
func describeTool(toolName string) string {
	switch normalizeToolName(toolName) {
	case "bash", "shell":
		return "shell command"
	case "read":
		return "file read"
	case "write":
		return "file write"
	case "edit", "notebookedit":
		return "file edit"
	case "glob":
		return "glob search"
	case "grep", "search":
		return "textual search"
	case "webfetch", "fetch":
		return "web fetch"
	default:
		return fmt.Sprintf("%s call", toolName)
	}
}
