package scoring

import (
	"context"
	"strings"
	"unicode"

	"github.com/mlindqvist/feedback-platform/session-engine/internal/models"
)

// LexicalEvaluator scores transcripts with deterministic lexical heuristics.
// It is the default evaluator and the offline fallback when no model-backed
// evaluator is configured.
type LexicalEvaluator struct{}

func NewLexicalEvaluator() *LexicalEvaluator { return &LexicalEvaluator{} }

// templatedPhrases are generic review boilerplate in the supported languages;
// their presence lowers authenticity.
var templatedPhrases = []string{
	"highly recommend", "five stars", "best ever", "great service",
	"amazing experience", "would recommend",
	"mycket bra", "kan rekommenderas", "bästa någonsin", "jättebra service",
}

var positiveWords = []string{
	"good", "great", "fresh", "friendly", "helpful", "clean", "fast", "tasty",
	"excellent", "nice", "love", "liked",
	"bra", "trevlig", "fräsch", "god", "snabb", "ren", "hjälpsam", "utmärkt",
}

var negativeWords = []string{
	"bad", "slow", "dirty", "rude", "cold", "stale", "expensive", "wrong",
	"broken", "disappointing", "hate",
	"dålig", "långsam", "smutsig", "otrevlig", "kall", "dyr", "fel", "trasig",
}

// quantityWords complement digit detection for spoken numbers.
var quantityWords = []string{
	"one", "two", "three", "four", "five", "ten", "dozen", "half",
	"en", "ett", "två", "tre", "fyra", "fem", "tio", "halv",
}

func (e *LexicalEvaluator) Evaluate(ctx context.Context, transcript, language string, bc *models.BusinessContext) (*Evaluation, error) {
	lower := strings.ToLower(transcript)
	tokens := tokenize(lower)
	if len(tokens) == 0 {
		return &Evaluation{}, nil
	}
	tokenSet := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		tokenSet[t] = true
	}

	return &Evaluation{
		Authenticity: e.authenticity(lower, tokenSet, bc),
		Concreteness: e.concreteness(lower, tokens, tokenSet, bc),
		Depth:        e.depth(transcript, tokens, tokenSet),
		Sentiment:    e.sentiment(tokenSet),
		Categories:   e.categories(lower, tokenSet, bc),
	}, nil
}

// authenticity measures alignment with the business vocabulary and penalizes
// templated phrasing. Baseline 50 for plain, unaligned speech.
func (e *LexicalEvaluator) authenticity(lower string, tokenSet map[string]bool, bc *models.BusinessContext) float64 {
	score := 50.0

	aligned := 0
	for _, w := range bc.Vocabulary {
		if tokenSet[strings.ToLower(w)] {
			aligned++
		}
	}
	for _, t := range bc.ExpectedTopics {
		if containsPhrase(lower, tokenSet, t) {
			aligned++
		}
	}
	score += float64(aligned) * 8

	for _, p := range templatedPhrases {
		if strings.Contains(lower, p) {
			score -= 15
		}
	}
	return score
}

// concreteness rewards checkable specifics: numbers, known items, named
// locations.
func (e *LexicalEvaluator) concreteness(lower string, tokens []string, tokenSet map[string]bool, bc *models.BusinessContext) float64 {
	specifics := 0
	for _, t := range tokens {
		if strings.IndexFunc(t, unicode.IsDigit) >= 0 {
			specifics++
		}
	}
	for _, w := range quantityWords {
		if tokenSet[w] {
			specifics++
		}
	}
	for _, item := range bc.KnownItems {
		if containsPhrase(lower, tokenSet, item) {
			specifics += 2
		}
	}
	for _, loc := range bc.LocationNames {
		if containsPhrase(lower, tokenSet, loc) {
			specifics++
		}
	}

	score := 20 + float64(specifics)*12
	// Very short statements cannot be concrete no matter what they name.
	if len(tokens) < 8 {
		score *= 0.5
	}
	return score
}

// depth rewards breadth: several distinct substantive observations and a
// varied vocabulary rather than repetition.
func (e *LexicalEvaluator) depth(transcript string, tokens []string, tokenSet map[string]bool) float64 {
	observations := 0
	for _, sent := range splitSentences(transcript) {
		if len(tokenize(strings.ToLower(sent))) >= 4 {
			observations++
		}
	}

	variety := float64(len(tokenSet)) / float64(len(tokens))
	score := float64(observations)*18 + variety*40
	if len(tokens) >= 40 {
		score += 10
	}
	return score
}

func (e *LexicalEvaluator) sentiment(tokenSet map[string]bool) float64 {
	pos, neg := 0, 0
	for _, w := range positiveWords {
		if tokenSet[w] {
			pos++
		}
	}
	for _, w := range negativeWords {
		if tokenSet[w] {
			neg++
		}
	}
	if pos+neg == 0 {
		return 0
	}
	return float64(pos-neg) / float64(pos+neg)
}

// categories returns the context topics the transcript touches, preserving
// the context's order.
func (e *LexicalEvaluator) categories(lower string, tokenSet map[string]bool, bc *models.BusinessContext) []string {
	var out []string
	for _, t := range bc.ExpectedTopics {
		if containsPhrase(lower, tokenSet, t) {
			out = append(out, t)
		}
	}
	return out
}

// containsPhrase matches a single word against the token set, or a
// multi-word phrase against the raw lowered text.
func containsPhrase(lower string, tokenSet map[string]bool, phrase string) bool {
	p := strings.ToLower(strings.TrimSpace(phrase))
	if p == "" {
		return false
	}
	if !strings.Contains(p, " ") {
		return tokenSet[p]
	}
	return strings.Contains(lower, p)
}

func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func splitSentences(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
}
