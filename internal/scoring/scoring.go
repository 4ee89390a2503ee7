// Package scoring holds the pluggable validation scorers the progression
// engine consults before advancing a user.
//
// A Scorer turns one interaction (plus the user's previous scores at the
// same stage) into a Verdict: a score in [0,1] and a short rationale the
// boundary can show back to the user. The engine only orchestrates scorers;
// it never interprets how a score was produced.
package scoring

import (
	"sync"
	"time"

	"github.com/tbourn/dianabot-core/internal/domain"
)

// Input is the part of an interaction a scorer may look at.
type Input struct {
	Interaction string
	Text        string
	Latency     time.Duration
}

// Verdict is a scorer's result. Score is clamped to [0,1] by the engine.
type Verdict struct {
	Score     float64
	Rationale string
}

// Scorer evaluates one interaction against the rules of a stage.
// Implementations must be safe for concurrent use.
type Scorer interface {
	Score(in Input, history []float64) Verdict
}

// ScorerFunc adapts a plain function to Scorer.
type ScorerFunc func(in Input, history []float64) Verdict

func (f ScorerFunc) Score(in Input, history []float64) Verdict { return f(in, history) }

// Clamp bounds s to [0,1]. NaN becomes 0.
func Clamp(s float64) float64 {
	switch {
	case s != s:
		return 0
	case s < 0:
		return 0
	case s > 1:
		return 1
	}
	return s
}

// Registry maps stages to scorers, falling back to a default scorer for
// stages without their own entry.
type Registry struct {
	mu       sync.RWMutex
	byStage  map[domain.Stage]Scorer
	fallback Scorer
}

// NewRegistry returns a registry whose fallback is def. A nil def falls back
// to a Lexical scorer with default options.
func NewRegistry(def Scorer) *Registry {
	if def == nil {
		def = NewLexical()
	}
	return &Registry{byStage: make(map[domain.Stage]Scorer), fallback: def}
}

// Register sets the scorer for stage, replacing any previous one.
func (r *Registry) Register(stage domain.Stage, s Scorer) {
	if s == nil {
		return
	}
	r.mu.Lock()
	r.byStage[stage] = s
	r.mu.Unlock()
}

// For returns the scorer for stage.
func (r *Registry) For(stage domain.Stage) Scorer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.byStage[stage]; ok {
		return s
	}
	return r.fallback
}

// DefaultRegistry wires a Lexical scorer per stage with keywords matching the
// tone expected from a user at that point of the story. Later stages expect
// more reflective, longer replies.
func DefaultRegistry() *Registry {
	r := NewRegistry(NewLexical())
	r.Register(domain.StageIntro, NewLexical(
		WithKeywords("hola", "hello", "hi", "curious", "who", "diana", "interesting"),
		WithMinWords(2),
	))
	r.Register(domain.StageEngaged, NewLexical(
		WithKeywords("story", "more", "secret", "why", "tell", "feel", "mystery"),
		WithMinWords(4),
	))
	r.Register(domain.StageTrusted, NewLexical(
		WithKeywords("trust", "honest", "promise", "understand", "listen", "share"),
		WithMinWords(6),
	))
	r.Register(domain.StagePrivileged, NewLexical(
		WithKeywords("desire", "vulnerable", "real", "close", "deeper", "truth"),
		WithMinWords(8),
	))
	return r
}
