package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openaigo "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/mlindqvist/feedback-platform/session-engine/internal/models"
)

const defaultEvalModel = "gpt-4o-mini"

// OpenAIEvaluator scores transcripts with a chat model. Decoding is pinned
// (temperature 0, fixed seed) and callers are expected to wrap it in a
// CachedEvaluator, which together form the deterministic contract the
// pipeline requires.
type OpenAIEvaluator struct {
	client openaigo.Client
	model  string
}

func NewOpenAIEvaluator(apiKey, model string) *OpenAIEvaluator {
	if model == "" {
		model = defaultEvalModel
	}
	return &OpenAIEvaluator{
		client: openaigo.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

type evalResponse struct {
	Authenticity float64  `json:"authenticity"`
	Concreteness float64  `json:"concreteness"`
	Depth        float64  `json:"depth"`
	Sentiment    float64  `json:"sentiment"`
	Categories   []string `json:"categories"`
}

const evalSystemPrompt = `You evaluate spoken customer feedback about a purchase.
Score the transcript on three axes, each 0-100:
- authenticity: consistency with the business context, absence of generic or templated phrasing
- concreteness: specific checkable observations (named items, quantities, locations) versus vague statements
- depth: breadth and insight density of distinct observations
Also report sentiment in [-1,1] and the context topics the feedback touches.
Return ONLY a JSON object:
{"authenticity": 0, "concreteness": 0, "depth": 0, "sentiment": 0, "categories": ["..."]}`

func (e *OpenAIEvaluator) Evaluate(ctx context.Context, transcript, language string, bc *models.BusinessContext) (*Evaluation, error) {
	user := fmt.Sprintf(
		"Business type: %s\nExpected topics: %s\nKnown items: %s\nTranscript language: %s\n\nTranscript:\n%s",
		bc.BusinessType,
		strings.Join(bc.ExpectedTopics, ", "),
		strings.Join(bc.KnownItems, ", "),
		language,
		transcript,
	)

	resp, err := e.client.Chat.Completions.New(ctx, openaigo.ChatCompletionNewParams{
		Model: openaigo.ChatModel(e.model),
		Messages: []openaigo.ChatCompletionMessageParamUnion{
			openaigo.SystemMessage(evalSystemPrompt),
			openaigo.UserMessage(user),
		},
		Temperature: openaigo.Float(0),
		Seed:        openaigo.Int(42),
	})
	if err != nil {
		return nil, fmt.Errorf("evaluate transcript: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("evaluate transcript: empty choices")
	}

	raw := extractJSON(resp.Choices[0].Message.Content)
	var parsed evalResponse
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("evaluate transcript: invalid json: %w", err)
	}

	return &Evaluation{
		Authenticity: parsed.Authenticity,
		Concreteness: parsed.Concreteness,
		Depth:        parsed.Depth,
		Sentiment:    parsed.Sentiment,
		Categories:   parsed.Categories,
	}, nil
}

// extractJSON strips code fences and surrounding prose from a model reply.
func extractJSON(s string) string {
	raw := strings.TrimSpace(s)
	if strings.HasPrefix(raw, "```") {
		rest := strings.TrimSpace(strings.TrimPrefix(raw, "```"))
		if i := strings.Index(rest, "\n"); i >= 0 {
			rest = rest[i+1:]
		}
		if j := strings.LastIndex(rest, "```"); j >= 0 {
			rest = rest[:j]
		}
		raw = strings.TrimSpace(rest)
	}
	if !strings.HasPrefix(raw, "{") {
		if i := strings.Index(raw, "{"); i >= 0 {
			if j := strings.LastIndex(raw, "}"); j > i {
				raw = raw[i : j+1]
			}
		}
	}
	return raw
}
