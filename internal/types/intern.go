package types

import "sync"

// StringInterner deduplicates repeated string values to cut memory
// footprint for high-cardinality-but-low-variety fields like tool names
// and semantic-key names, which recur across thousands of memories.
type StringInterner struct {
	mu      sync.RWMutex
	strings map[string]string
}

var (
	toolNameInterner = NewStringInterner()
	semanticKeyInterner = NewStringInterner()
	tagInterner         = NewStringInterner()
)

// NewStringInterner creates a new string interner.
func NewStringInterner() *StringInterner {
	return &StringInterner{
		strings: make(map[string]string, 100),
	}
}

// Intern returns the canonical instance of the string.
func (si *StringInterner) Intern(s string) string {
	if s == "" {
		return ""
	}

	si.mu.RLock()
	if canonical, exists := si.strings[s]; exists {
		si.mu.RUnlock()
		return canonical
	}
	si.mu.RUnlock()

	si.mu.Lock()
	defer si.mu.Unlock()

	if canonical, exists := si.strings[s]; exists {
		return canonical
	}
	si.strings[s] = s
	return s
}

// InternToolName interns a tool name string.
func InternToolName(name string) string {
	return toolNameInterner.Intern(name)
}

// InternSemanticKeyName interns a semantic-key name (e.g. "command_name").
func InternSemanticKeyName(key string) string {
	return semanticKeyInterner.Intern(key)
}

// InternTag interns a tag string.
func InternTag(tag string) string {
	return tagInterner.Intern(tag)
}

// Size returns the number of interned strings.
func (si *StringInterner) Size() int {
	si.mu.RLock()
	defer si.mu.RUnlock()
	return len(si.strings)
}
