// Package types defines the core data structures for the engram learning
// engine.
//
// This package contains the entity definitions shared across every
// component of the pipeline: memories, the semantic facts extracted from
// them, patterns clustered from memories, and the thesis/antithesis/
// synthesis nodes of the dialectic cycle that reconciles them. Durable
// artifacts (rules, skills) and session bookkeeping round out the model.
package types

import "time"

// Tier represents the durability class of a memory.
type Tier string

const (
	TierWorking    Tier = "working"
	TierShortTerm  Tier = "short_term"
	TierLongTerm   Tier = "long_term"
	TierCollective Tier = "collective"
)

// Source identifies where an observation originated.
type Source string

const (
	SourceToolUse   Source = "tool_use"
	SourcePrompt    Source = "prompt"
	SourceObserve   Source = "observation"
	SourceSynthesis Source = "synthesis"
)

// Stage represents the maturation level of a memory or pattern.
type Stage string

const (
	StageConceptual Stage = "conceptual"
	StageSemantic   Stage = "semantic"
	StageSyntactic  Stage = "syntactic"
)

// stageOrder gives the monotonic rank of a stage; used to reject regressions.
var stageOrder = map[Stage]int{
	StageConceptual: 0,
	StageSemantic:   1,
	StageSyntactic:  2,
}

// StageAtLeast reports whether stage a is the same as or more advanced than b.
func StageAtLeast(a, b Stage) bool {
	return stageOrder[a] >= stageOrder[b]
}

// DialecticPhase is the phase of a Pattern's current cycle.
type DialecticPhase string

const (
	PhaseThesis    DialecticPhase = "thesis"
	PhaseAntithesis DialecticPhase = "antithesis"
	PhaseSynthesis DialecticPhase = "synthesis"
)

// ThesisStatus is the lifecycle state of a Thesis.
type ThesisStatus string

const (
	ThesisActive      ThesisStatus = "active"
	ThesisChallenged  ThesisStatus = "challenged"
	ThesisSynthesized ThesisStatus = "synthesized"
)

// ContradictionType classifies how an Antithesis contradicts its Thesis.
type ContradictionType string

const (
	ContradictionDirect           ContradictionType = "direct"
	ContradictionRefinement       ContradictionType = "refinement"
	ContradictionEdgeCase         ContradictionType = "edge_case"
	ContradictionContextDependent ContradictionType = "context_dependent"
)

// ResolutionType classifies how a Synthesis reconciles its antitheses.
type ResolutionType string

const (
	ResolutionIntegration  ResolutionType = "integration"
	ResolutionRejection    ResolutionType = "rejection"
	ResolutionConditional  ResolutionType = "conditional"
	ResolutionAbstraction  ResolutionType = "abstraction"
)

// OutputType is the artifact-routing decision for a Synthesis.
type OutputType string

const (
	OutputNone           OutputType = "none"
	OutputRule           OutputType = "rule"
	OutputSkill          OutputType = "skill"
	OutputRuleWithSkill  OutputType = "rule_with_skill"
)

// CycleStatus is the lifecycle state of a DialecticCycle.
type CycleStatus string

const (
	CycleActive   CycleStatus = "active"
	CycleResolved CycleStatus = "resolved"
)

// ReadMode selects whether a Store read updates access bookkeeping.
type ReadMode int

const (
	ReadUntracked ReadMode = iota
	ReadTracked
)

// SemanticKey is a typed (key, value) fact extracted from a tool
// observation, with a confidence weight in [0,1].
type SemanticKey struct {
	Key    string  `json:"key"`
	Value  string  `json:"value"`
	Weight float64 `json:"weight"`
}

// MemoryMetadata carries the non-content fields of a Memory.
type MemoryMetadata struct {
	SessionID     string        `json:"session_id"`
	Source        Source        `json:"source"`
	ToolName      string        `json:"tool_name,omitempty"`
	ToolInput     map[string]any `json:"tool_input,omitempty"`
	ToolOutput    string        `json:"tool_output,omitempty"`
	Tags          []string      `json:"tags,omitempty"`
	Associations  []string      `json:"associations,omitempty"`
	Stage         Stage         `json:"stage"`
	Confidence    float64       `json:"confidence"`
	SemanticKeys  []SemanticKey `json:"semantic_keys,omitempty"`
}

// Memory is a single observation recorded by the Encoder.
type Memory struct {
	ID           string         `json:"id"`
	Tier         Tier           `json:"tier"`
	Content      string         `json:"content"`
	Embedding    []float32      `json:"embedding,omitempty"`
	Metadata     MemoryMetadata `json:"metadata"`
	Strength     float64        `json:"strength"`
	DecayFactor  float64        `json:"decay_factor"`
	AccessCount  int            `json:"access_count"`
	LastAccessed time.Time      `json:"last_accessed"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// HasEmbedding reports whether the memory has a computed embedding vector.
func (m *Memory) HasEmbedding() bool {
	return len(m.Embedding) > 0
}

// Pattern is a cluster of similar memories with a centroid embedding.
type Pattern struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Description    string         `json:"description"`
	Stage          Stage          `json:"stage"`
	DialecticPhase DialecticPhase `json:"dialectic_phase"`
	Embedding      []float32      `json:"embedding,omitempty"`
	Confidence     float64        `json:"confidence"`
	UsageCount     int            `json:"usage_count"`
	SuccessRate    float64        `json:"success_rate"`
	MemoryIDs      []string       `json:"memory_ids"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Thesis is the current belief held for a Pattern.
type Thesis struct {
	ID                 string       `json:"id"`
	PatternID          string       `json:"pattern_id"`
	Content             string       `json:"content"`
	Status              ThesisStatus `json:"status"`
	ExemplarMemoryIDs   []string     `json:"exemplar_memory_ids"`
	CreatedAt           time.Time    `json:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at"`
}

// Antithesis is a recorded contradiction to a Thesis.
type Antithesis struct {
	ID                string            `json:"id"`
	ThesisID          string            `json:"thesis_id"`
	Content           string            `json:"content"`
	ContradictionType ContradictionType `json:"contradiction_type"`
	ExemplarMemoryIDs []string          `json:"exemplar_memory_ids"`
	CreatedAt         time.Time         `json:"created_at"`
}

// Resolution is the reconciliation payload of a Synthesis.
type Resolution struct {
	Type           ResolutionType `json:"type"`
	Conditions     []string       `json:"conditions,omitempty"`
	Abstraction    string         `json:"abstraction,omitempty"`
	OutputDecision *OutputDecision `json:"output_decision,omitempty"`
}

// OutputDecision is the Output Decider's verdict, attached to a Resolution.
type OutputDecision struct {
	Output     OutputType `json:"output"`
	Confidence float64    `json:"confidence"`
	Source     string     `json:"source"` // "heuristic" or "enricher"
}

// FeatureVector is the Output Decider's derived feature set (spec §4.7.2),
// shared between the dialectic engine (which computes it) and the
// Enricher (whose ClassifyOutput may be consulted as a tie-break).
type FeatureVector struct {
	IsImperative  bool
	IsProcedural  bool
	ToolDiversity int
	HasConditions bool
	Complexity    float64
}

// ToolDataEntry is one frozen (tool, action, parameters, description)
// tuple captured in a Synthesis's tool-data snapshot.
type ToolDataEntry struct {
	Tool             string         `json:"tool"`
	Action           string         `json:"action"`
	Parameters       map[string]any `json:"parameters,omitempty"`
	ShortDescription string         `json:"short_description"`
}

// Synthesis is a reconciliation of a Thesis with its Antitheses.
type Synthesis struct {
	ID                string          `json:"id"`
	ThesisID          string          `json:"thesis_id"`
	AntithesisIDs     []string        `json:"antithesis_ids"`
	Content           string          `json:"content"`
	Resolution        Resolution      `json:"resolution"`
	SkillCandidate    bool            `json:"skill_candidate"`
	ExemplarMemoryIDs []string        `json:"exemplar_memory_ids"`
	ToolDataSnapshot  []ToolDataEntry `json:"tool_data_snapshot"`
	CreatedAt         time.Time       `json:"created_at"`
}

// DialecticCycle tracks the thesis→antitheses→synthesis lifecycle for one Pattern.
type DialecticCycle struct {
	ID            string      `json:"id"`
	PatternID     string      `json:"pattern_id"`
	ThesisID      string      `json:"thesis_id"`
	AntithesisIDs []string    `json:"antithesis_ids"`
	SynthesisID   string      `json:"synthesis_id,omitempty"`
	Status        CycleStatus `json:"status"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// ArtifactStatus is the lifecycle state of a durable artifact.
type ArtifactStatus string

const (
	ArtifactActive      ArtifactStatus = "active"
	ArtifactInvalidated ArtifactStatus = "invalidated"
)

// Rule is an imperative artifact produced by the Rule Writer.
type Rule struct {
	ID           string         `json:"id"`
	PatternID    string         `json:"pattern_id"`
	SynthesisID  string         `json:"synthesis_id,omitempty"`
	Title        string         `json:"title"`
	Slug         string         `json:"slug"`
	Content      string         `json:"content"` // rendered artifact body
	Paths        []string       `json:"paths,omitempty"`
	Version      int            `json:"version"`
	ContentHash  string         `json:"content_hash"`
	Status       ArtifactStatus `json:"status"`
	Confidence   float64        `json:"confidence"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Skill is a procedural artifact produced by the Skill Writer.
type Skill struct {
	ID           string         `json:"id"`
	PatternID    string         `json:"pattern_id"`
	SynthesisID  string         `json:"synthesis_id,omitempty"`
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	Content      string         `json:"content"` // rendered manifest body
	ScriptBody   string         `json:"script_body"`
	Version      string         `json:"version"` // "major.minor"
	ContentHash  string         `json:"content_hash"`
	Status       ArtifactStatus `json:"status"`
	WhenToUse    []string       `json:"when_to_use"`
	EdgeCases    []string       `json:"edge_cases,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Session tracks one host-assistant working session.
type Session struct {
	ID           string     `json:"id"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	MemoryCount  int        `json:"memory_count"`
	Consolidated bool       `json:"consolidated"`
}

// ToolUsage is the Encoder's input: one observed tool invocation.
type ToolUsage struct {
	SessionID string         `json:"session_id"`
	ToolName  string         `json:"tool_name"`
	ToolInput map[string]any `json:"tool_input"`
	ToolOutput string        `json:"tool_output,omitempty"`
	ToolError  string        `json:"tool_error,omitempty"`
}
