// Package config composes every component's own Config into one facade,
// following internal/storage/config.go's ConfigFromEnv precedent: defaults
// first, environment variables overlaid on top.
package config

import (
	"os"
	"strconv"
	"time"

	"engram/internal/consolidator"
	"engram/internal/dialectic"
	"engram/internal/embeddings"
	"engram/internal/retriever"
	"engram/internal/rulewriter"
	"engram/internal/stages"
	"engram/internal/storage"
	"engram/internal/worker"
)

// StoreConfig is the storage backend's own configuration (spec §6).
type StoreConfig = storage.Config

// EmbeddingConfig is the embedder's own configuration (spec §6).
type EmbeddingConfig = embeddings.Config

// DialecticConfig holds the Dialectic Engine's thresholds (spec §4.7).
type DialecticConfig = dialectic.Config

// ConsolidationConfig holds the tier-promotion and decay thresholds
// (spec §4.5).
type ConsolidationConfig = consolidator.Thresholds

// WorkerConfig holds the background worker's queue and cadence tuning
// (spec §5).
type WorkerConfig = worker.Config

// ArtifactConfig holds the Rule/Skill publishing thresholds. Skill Writer
// carries no tunables of its own (spec §4.9 names none), so this wraps only
// the Rule Writer's Config.
type ArtifactConfig struct {
	Rules rulewriter.Config
}

// Config is the composed configuration surface for every engram component
// (spec §6), one section struct per subsystem.
type Config struct {
	Store         StoreConfig
	Embedding     EmbeddingConfig
	Dialectic     DialecticConfig
	Consolidation ConsolidationConfig
	Artifact      ArtifactConfig
	Worker        WorkerConfig
	Retriever     retriever.Config
	Stages        stages.Config
}

// DefaultConfig composes each component's own DefaultConfig. Components
// without a DefaultConfig of their own (Embedder's pointer-returning variant
// excepted) fall back to the zero-overhead defaults they already ship.
func DefaultConfig() Config {
	return Config{
		Store:         storage.DefaultConfig(),
		Embedding:     *embeddings.DefaultConfig(),
		Dialectic:     dialectic.DefaultConfig(),
		Consolidation: consolidator.DefaultThresholds(),
		Artifact:      ArtifactConfig{Rules: rulewriter.DefaultConfig()},
		Worker:        worker.DefaultConfig(),
		Retriever:     retriever.DefaultConfig(),
		Stages:        stages.DefaultConfig(),
	}
}

// ConfigFromEnv overlays environment variables onto DefaultConfig, the same
// env > defaults precedence internal/storage/config.go established. There is
// no file layer in this corpus to sit between them; spec §6 names no
// configuration file format, so ConfigFromEnv only ever overlays env vars
// onto defaults (an Open Question decision recorded in DESIGN.md).
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	cfg.Store = storage.ConfigFromEnv()
	cfg.Embedding = *embeddings.ConfigFromEnv()

	if v := os.Getenv("DIALECTIC_AUTO_PUBLISH"); v != "" {
		cfg.Dialectic.AutoPublish = v == "true"
	}
	if v := os.Getenv("DIALECTIC_MIN_PATTERN_MEMBERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Dialectic.MinPatternMembers = n
		}
	}
	if v := os.Getenv("DIALECTIC_RULE_MIN_CONFIDENCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Dialectic.RuleMinConfidence = f
		}
	}

	if v := os.Getenv("WORKER_QUEUE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Worker.QueueSize = n
		}
	}
	if v := os.Getenv("WORKER_STAGE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Worker.StageInterval = d
		}
	}

	if v := os.Getenv("RETRIEVER_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Retriever.TopK = n
		}
	}

	if v := os.Getenv("ARTIFACT_MIN_CONFIDENCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Artifact.Rules.MinConfidence = f
		}
	}
	if v := os.Getenv("ARTIFACT_AUTO_PUBLISH"); v != "" {
		cfg.Artifact.Rules.AutoPublish = v == "true"
	}

	if v := os.Getenv("CONSOLIDATION_DECAY_HALF_LIFE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Consolidation.DecayHalfLife = d
		}
	}

	return cfg
}
