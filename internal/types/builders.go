package types

import (
	"time"

	"github.com/google/uuid"
)

// NewMemory constructs a working-tier Memory with sensible defaults.
func NewMemory(sessionID string, source Source) *Memory {
	now := time.Now()
	return &Memory{
		ID:   uuid.NewString(),
		Tier: TierWorking,
		Metadata: MemoryMetadata{
			SessionID: sessionID,
			Source:    source,
			Stage:     StageConceptual,
		},
		Strength:    0.5,
		DecayFactor: 1.0,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// NewPattern constructs a conceptual-stage, thesis-phase Pattern.
func NewPattern(name, description string) *Pattern {
	now := time.Now()
	return &Pattern{
		ID:             uuid.NewString(),
		Name:           name,
		Description:    description,
		Stage:          StageConceptual,
		DialecticPhase: PhaseThesis,
		Confidence:     0.5,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// NewThesis constructs an active Thesis for the given pattern.
func NewThesis(patternID, content string) *Thesis {
	now := time.Now()
	return &Thesis{
		ID:        uuid.NewString(),
		PatternID: patternID,
		Content:   content,
		Status:    ThesisActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewAntithesis constructs an Antithesis record against the given thesis.
func NewAntithesis(thesisID, content string, kind ContradictionType) *Antithesis {
	return &Antithesis{
		ID:                uuid.NewString(),
		ThesisID:          thesisID,
		Content:           content,
		ContradictionType: kind,
		CreatedAt:         time.Now(),
	}
}

// NewSynthesis constructs a Synthesis reconciling a thesis with its antitheses.
func NewSynthesis(thesisID string, antithesisIDs []string, content string, resolution Resolution) *Synthesis {
	return &Synthesis{
		ID:            uuid.NewString(),
		ThesisID:      thesisID,
		AntithesisIDs: antithesisIDs,
		Content:       content,
		Resolution:    resolution,
		CreatedAt:     time.Now(),
	}
}

// NewDialecticCycle opens a new active cycle for a pattern/thesis pair.
func NewDialecticCycle(patternID, thesisID string) *DialecticCycle {
	now := time.Now()
	return &DialecticCycle{
		ID:        uuid.NewString(),
		PatternID: patternID,
		ThesisID:  thesisID,
		Status:    CycleActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewSession starts a new session record.
func NewSession() *Session {
	return &Session{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
	}
}
