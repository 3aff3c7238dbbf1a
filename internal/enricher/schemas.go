package enricher

import (
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
)

// schemaFor reflects a JSON Schema from a Go struct type once and caches
// it, for the structured-output shapes an LLM-backed Enricher must
// conform to. A CollaboratorEnricher implementation validates its model's
// response against these before returning it to the caller; a schema
// mismatch is an errs.ErrSchemaValidation, never a silently-accepted
// malformed result.
var (
	schemaOnce sync.Once

	patternNamingSchema      *jsonschema.Schema
	thesisInsightSchema      *jsonschema.Schema
	synthesisNarrativeSchema *jsonschema.Schema
	outputVerdictSchema      *jsonschema.Schema
	ruleTitleSchema          *jsonschema.Schema
	skillNamingSchema        *jsonschema.Schema
	contentSummarySchema     *jsonschema.Schema
	scriptGenerationSchema   *jsonschema.Schema
)

func initSchemas() {
	patternNamingSchema, _ = jsonschema.For[PatternNaming](nil)
	thesisInsightSchema, _ = jsonschema.For[ThesisInsight](nil)
	synthesisNarrativeSchema, _ = jsonschema.For[SynthesisNarrative](nil)
	outputVerdictSchema, _ = jsonschema.For[OutputVerdict](nil)
	ruleTitleSchema, _ = jsonschema.For[RuleTitle](nil)
	skillNamingSchema, _ = jsonschema.For[SkillNaming](nil)
	contentSummarySchema, _ = jsonschema.For[ContentSummary](nil)
	scriptGenerationSchema, _ = jsonschema.For[ScriptGeneration](nil)
}

// Schemas returns the declared JSON Schemas, keyed by the shape name used
// in prompts/tool-call declarations to a collaborator model.
func Schemas() map[string]*jsonschema.Schema {
	schemaOnce.Do(initSchemas)
	return map[string]*jsonschema.Schema{
		"pattern_naming":      patternNamingSchema,
		"thesis_insight":      thesisInsightSchema,
		"synthesis_narrative": synthesisNarrativeSchema,
		"output_verdict":      outputVerdictSchema,
		"rule_title":          ruleTitleSchema,
		"skill_naming":        skillNamingSchema,
		"content_summary":     contentSummarySchema,
		"skill_script":        scriptGenerationSchema,
	}
}
