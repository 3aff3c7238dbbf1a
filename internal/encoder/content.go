package encoder

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	maxInputChars  = 500
	maxOutputChars = 200
)

// truncate clips s to at most n runes, appending an ellipsis marker when it
// had to cut.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

// renderInput flattens a tool_input map to a compact single-line form
// suitable for truncation and human reading.
func renderInput(input map[string]any) string {
	if len(input) == 0 {
		return ""
	}
	b, err := json.Marshal(input)
	if err != nil {
		return fmt.Sprintf("%v", input)
	}
	return string(b)
}

// buildContent renders the human-readable multi-line summary spec §4.3
// requires: tool description, truncated input, and (if present) truncated
// output or error.
func buildContent(toolName string, input map[string]any, output, toolErr string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s\n", describeTool(toolName))
	if rendered := renderInput(input); rendered != "" {
		fmt.Fprintf(&b, "input: %s\n", truncate(rendered, maxInputChars))
	}
	if toolErr != "" {
		fmt.Fprintf(&b, "error: %s\n", truncate(toolErr, maxOutputChars))
	} else if output != "" {
		fmt.Fprintf(&b, "output: %s\n", truncate(output, maxOutputChars))
	}

	return strings.TrimRight(b.String(), "\n")
}
