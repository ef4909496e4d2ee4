// Package scoring turns a transcript plus business context into the weighted
// quality score. The evaluator behind it may be a probabilistic model; the
// scorer pins it behind a deterministic contract (fixed decoding plus a
// result cache) so identical input always yields identical scores.
package scoring

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"sync"

	"github.com/mlindqvist/feedback-platform/session-engine/internal/models"
)

// Evaluation carries the raw sub-scores an evaluator produces. The scorer
// owns clamping and the composite.
type Evaluation struct {
	Authenticity float64
	Concreteness float64
	Depth        float64
	Sentiment    float64
	Categories   []string
}

type Evaluator interface {
	Evaluate(ctx context.Context, transcript, language string, bc *models.BusinessContext) (*Evaluation, error)
}

// Weights for the quality composite. They must sum to 1.
type Weights struct {
	Authenticity float64
	Concreteness float64
	Depth        float64
}

// DefaultWeights is the platform composite: 40% authenticity,
// 30% concreteness, 30% depth.
var DefaultWeights = Weights{Authenticity: 0.40, Concreteness: 0.30, Depth: 0.30}

type Scorer struct {
	eval    Evaluator
	weights Weights
}

func NewScorer(eval Evaluator, w Weights) *Scorer {
	return &Scorer{eval: eval, weights: w}
}

// Score evaluates a transcript and composes the quality score. Sub-scores
// are clamped to [0,100]; the total is rounded to one decimal.
func (s *Scorer) Score(ctx context.Context, transcript, language string, bc *models.BusinessContext) (*models.QualityScore, error) {
	ev, err := s.eval.Evaluate(ctx, transcript, language, bc)
	if err != nil {
		return nil, err
	}

	a := clamp(ev.Authenticity, 0, 100)
	c := clamp(ev.Concreteness, 0, 100)
	d := clamp(ev.Depth, 0, 100)
	total := s.weights.Authenticity*a + s.weights.Concreteness*c + s.weights.Depth*d
	total = clamp(math.Round(total*10)/10, 0, 100)

	return &models.QualityScore{
		Authenticity: a,
		Concreteness: c,
		Depth:        d,
		Total:        total,
		Sentiment:    clamp(ev.Sentiment, -1, 1),
		Categories:   ev.Categories,
	}, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// CachedEvaluator memoizes evaluations by (transcript, language, business)
// hash. It makes a model-backed evaluator repeatable within a process and
// spares repeated model calls on retried transitions.
type CachedEvaluator struct {
	inner Evaluator

	mu    sync.Mutex
	cache map[string]*Evaluation
}

func NewCachedEvaluator(inner Evaluator) *CachedEvaluator {
	return &CachedEvaluator{inner: inner, cache: make(map[string]*Evaluation)}
}

func (c *CachedEvaluator) Evaluate(ctx context.Context, transcript, language string, bc *models.BusinessContext) (*Evaluation, error) {
	key := cacheKey(transcript, language, bc.BusinessID)

	c.mu.Lock()
	if ev, ok := c.cache[key]; ok {
		c.mu.Unlock()
		return ev, nil
	}
	c.mu.Unlock()

	ev, err := c.inner.Evaluate(ctx, transcript, language, bc)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[key] = ev
	c.mu.Unlock()
	return ev, nil
}

func cacheKey(transcript, language, businessID string) string {
	h := sha256.New()
	h.Write([]byte(transcript))
	h.Write([]byte{0})
	h.Write([]byte(language))
	h.Write([]byte{0})
	h.Write([]byte(businessID))
	return hex.EncodeToString(h.Sum(nil))
}
