// internal/correlation/classifier.go
package correlation

import (
	"encoding/json"
	"strings"

	"github.com/user/threatsight/internal/types"
)

// Category defines one semantic bucket the classifier can assign. Keywords
// are matched against a lowercased serialization of the whole message;
// payload keys are matched against top-level payload attributes.
type Category struct {
	Type        types.MessageType
	Keywords    []string
	PayloadKeys []string
}

// DefaultCategories is the fixed pattern table, in declaration order.
// Earlier categories win score ties.
func DefaultCategories() []Category {
	return []Category{
		{
			Type:        types.TypeTaskDelegation,
			Keywords:    []string{"delegate", "assign", "task", "handoff"},
			PayloadKeys: []string{"task", "assignee", "deadline"},
		},
		{
			Type:        types.TypeDataQuery,
			Keywords:    []string{"query", "fetch", "lookup", "retrieve"},
			PayloadKeys: []string{"query", "entity", "filters"},
		},
		{
			Type:        types.TypeResultReturn,
			Keywords:    []string{"result", "response", "found", "completed"},
			PayloadKeys: []string{"result", "records", "score"},
		},
		{
			Type:        types.TypeValidationRequest,
			Keywords:    []string{"validate", "verify", "confirm", "check"},
			PayloadKeys: []string{"claim", "evidence", "threshold"},
		},
		{
			Type:        types.TypeConsensusVote,
			Keywords:    []string{"vote", "consensus", "agree", "quorum"},
			PayloadKeys: []string{"vote", "round", "confidence"},
		},
		{
			Type:        types.TypeToolInvocation,
			Keywords:    []string{"tool", "invoke", "execute", "call"},
			PayloadKeys: []string{"tool", "args", "timeout"},
		},
		{
			Type:        types.TypeErrorReport,
			Keywords:    []string{"error", "failed", "failure", "exception"},
			PayloadKeys: []string{"error", "stack", "retriable"},
		},
	}
}

// Analysis is the advisory classification result for one message.
type Analysis struct {
	Type              types.MessageType `json:"type"`
	Score             int               `json:"score"`
	Confidence        float64           `json:"confidence"`
	PayloadComplexity int               `json:"payload_complexity"`
	HasNestedObjects  bool              `json:"has_nested_objects"`
}

// Classifier scores messages against a fixed category table. The weights and
// the confidence divisor are tunable; zero values fall back to the defaults
// (keyword +1, payload key +2, divisor 5).
type Classifier struct {
	categories    []Category
	keywordWeight int
	payloadWeight int
	divisor       int
}

// ClassifierOptions tunes the scoring constants.
type ClassifierOptions struct {
	KeywordWeight     int
	PayloadKeyWeight  int
	ConfidenceDivisor int
}

// NewClassifier builds a classifier over the given categories.
func NewClassifier(categories []Category, opts ClassifierOptions) *Classifier {
	c := &Classifier{
		categories:    categories,
		keywordWeight: opts.KeywordWeight,
		payloadWeight: opts.PayloadKeyWeight,
		divisor:       opts.ConfidenceDivisor,
	}
	if c.keywordWeight <= 0 {
		c.keywordWeight = 1
	}
	if c.payloadWeight <= 0 {
		c.payloadWeight = 2
	}
	if c.divisor <= 0 {
		c.divisor = 5
	}
	return c
}

// Analyze scores the message against every category and returns the winner.
// Ties go to the first-declared category. A message that matches nothing is
// assigned the generic type with confidence 0.
func (c *Classifier) Analyze(msg *types.Message) Analysis {
	text := fullText(msg)

	best := Analysis{Type: types.TypeGeneric}
	for _, cat := range c.categories {
		score := 0
		for _, kw := range cat.Keywords {
			if strings.Contains(text, kw) {
				score += c.keywordWeight
			}
		}
		for _, key := range cat.PayloadKeys {
			if _, ok := msg.Payload[key]; ok {
				score += c.payloadWeight
			}
		}
		if score > best.Score {
			best.Score = score
			best.Type = cat.Type
		}
	}

	best.Confidence = float64(best.Score) / float64(c.divisor)
	if best.Confidence > 1 {
		best.Confidence = 1
	}
	best.PayloadComplexity = payloadComplexity(msg.Payload)
	best.HasNestedObjects = hasNestedObjects(msg.Payload)
	return best
}

// fullText lowercases a JSON serialization of the message so keyword matching
// sees field values and payload contents alike.
func fullText(msg *types.Message) string {
	data, err := json.Marshal(msg)
	if err != nil {
		return ""
	}
	return strings.ToLower(string(data))
}

// payloadComplexity measures payload structure: arrays contribute their
// length, nested maps contribute 1 plus their own complexity, scalars
// contribute 1.
func payloadComplexity(payload map[string]any) int {
	total := 0
	for _, v := range payload {
		total += valueComplexity(v)
	}
	return total
}

func valueComplexity(v any) int {
	switch val := v.(type) {
	case []any:
		return len(val)
	case map[string]any:
		return 1 + payloadComplexity(val)
	default:
		return 1
	}
}

// hasNestedObjects reports whether any top-level payload value is itself an
// object (arrays do not count).
func hasNestedObjects(payload map[string]any) bool {
	for _, v := range payload {
		if _, ok := v.(map[string]any); ok {
			return true
		}
	}
	return false
}
