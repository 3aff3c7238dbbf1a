package stages

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"engram/internal/encoder"
	"engram/internal/storage"
	"engram/internal/types"
)

// procedureType classifies the tool-call shape of a Procedure (spec §4.6).
type procedureType string

const (
	procedureSingleTool     procedureType = "single-tool"
	procedureFileOperation  procedureType = "file-operation"
	procedureShellWorkflow  procedureType = "shell-workflow"
	procedureSearchWorkflow procedureType = "search-workflow"
	procedureMixed          procedureType = "mixed"
)

// procedureStep is one (tool, action, parameters, expected_outcome) entry.
type procedureStep struct {
	Tool            string
	Action          string
	Parameters      map[string]any
	ExpectedOutcome string
}

// procedure is the transient construction spec §4.6 describes for the
// semantic→syntactic transition — it is never persisted on its own; only
// its derived {procedure_type, step_count, procedure_name} semantic keys
// survive on the memory.
type procedure struct {
	Name  string
	Type  procedureType
	Steps []procedureStep
}

// buildProcedure assembles a Procedure from m plus its retriever-selected
// related memories, ordered by created_at.
func (p *Pipeline) buildProcedure(ctx context.Context, m *types.Memory) (*procedure, error) {
	members := []*types.Memory{m}

	if p.retriever != nil && m.Content != "" {
		results, err := p.retriever.Search(ctx, m.Content, storage.MemoryFilter{SessionID: m.Metadata.SessionID}, p.config.RelatedTopK)
		if err == nil {
			seen := map[string]bool{m.ID: true}
			for _, sm := range results {
				if seen[sm.Memory.ID] {
					continue
				}
				seen[sm.Memory.ID] = true
				members = append(members, sm.Memory)
			}
		}
	}

	sort.Slice(members, func(i, j int) bool {
		return members[i].CreatedAt.Before(members[j].CreatedAt)
	})

	steps := make([]procedureStep, 0, len(members))
	for _, mem := range members {
		steps = append(steps, procedureStep{
			Tool:            mem.Metadata.ToolName,
			Action:          actionDescription(mem),
			Parameters:      mem.Metadata.ToolInput,
			ExpectedOutcome: expectedOutcome(mem),
		})
	}

	return &procedure{
		Name:  procedureName(steps),
		Type:  classifyProcedure(steps),
		Steps: steps,
	}, nil
}

func actionDescription(m *types.Memory) string {
	if m.Metadata.ToolName == "" {
		return "observation"
	}
	return m.Metadata.ToolName
}

func expectedOutcome(m *types.Memory) string {
	for _, k := range m.Metadata.SemanticKeys {
		if k.Key == keyProducesResult {
			return k.Value
		}
	}
	for _, t := range m.Metadata.Tags {
		if t == "error" {
			return "error"
		}
	}
	return "success"
}

// classifyProcedure buckets a step sequence by the categories of the
// tools involved (spec §4.6: single-tool, file-operation, shell-workflow,
// search-workflow, mixed).
func classifyProcedure(steps []procedureStep) procedureType {
	if len(steps) <= 1 {
		return procedureSingleTool
	}

	distinctTools := make(map[string]bool)
	categories := make(map[string]bool)
	for _, s := range steps {
		if s.Tool != "" {
			distinctTools[s.Tool] = true
		}
		categories[encoder.Category(s.Tool)] = true
	}
	if len(distinctTools) <= 1 {
		return procedureSingleTool
	}
	if len(categories) == 1 {
		switch {
		case categories["file"]:
			return procedureFileOperation
		case categories["shell"]:
			return procedureShellWorkflow
		case categories["search"] || categories["glob"]:
			return procedureSearchWorkflow
		}
	}
	if len(categories) <= 2 && (categories["search"] || categories["glob"]) {
		return procedureSearchWorkflow
	}
	return procedureMixed
}

// procedureName derives a short slug-like name from the step sequence's
// tool names, e.g. "edit-bash" or "bash" for a single-tool procedure.
func procedureName(steps []procedureStep) string {
	seen := make(map[string]bool)
	var parts []string
	for _, s := range steps {
		name := strings.ToLower(s.Tool)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		parts = append(parts, name)
		if len(parts) == 3 {
			break
		}
	}
	if len(parts) == 0 {
		return "procedure"
	}
	return strings.Join(parts, "-")
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
