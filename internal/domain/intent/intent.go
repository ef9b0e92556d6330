// Package intent defines the result of routing a free-text request and the
// mapping from detected intents to workflow kinds.
package intent

import (
	"math"
	"strconv"
	"strings"

	"github.com/Strob0t/OpsForge/internal/domain/agenttask"
	"github.com/Strob0t/OpsForge/internal/domain/analysis"
)

// Unknown is the intent reported when the model output cannot be decoded.
const Unknown = "unknown"

// FallbackConfidence is the confidence attached to an Unknown fallback.
const FallbackConfidence = 0.1

// DefaultThreshold is the confidence below which the caller must ask for clarification.
const DefaultThreshold = 0.3

// Result is the router's reply.
type Result struct {
	Intent             string         `json:"intent"`
	Entities           map[string]any `json:"entities"`
	Confidence         float64        `json:"confidence"`
	SuggestedActions   []string       `json:"suggested_actions"`
	NeedsClarification bool           `json:"needs_clarification"`
}

// Fallback returns the result used for malformed model output.
func Fallback() Result {
	return Result{
		Intent:           Unknown,
		Entities:         map[string]any{},
		Confidence:       FallbackConfidence,
		SuggestedActions: []string{},
	}
}

// Parse decodes model output and applies the clarification threshold.
// It never fails: undecodable or intent-less output yields Fallback.
func Parse(text string, threshold float64) Result {
	out := analysis.Parse[Result](text)
	r, ok := out.Value()
	if !ok || strings.TrimSpace(r.Intent) == "" || math.IsNaN(r.Confidence) {
		r = Fallback()
	}
	r.Intent = strings.ToLower(strings.TrimSpace(r.Intent))
	r.Confidence = math.Max(0, math.Min(1, r.Confidence))
	if r.Entities == nil {
		r.Entities = map[string]any{}
	}
	if r.SuggestedActions == nil {
		r.SuggestedActions = []string{}
	}
	r.NeedsClarification = r.Confidence < threshold
	return r
}

// kinds maps intent labels, including common synonyms, to workflow kinds.
var kinds = map[string]agenttask.Kind{
	"deploy":      agenttask.KindDeploy,
	"deployment":  agenttask.KindDeploy,
	"rollback":    agenttask.KindRollback,
	"revert":      agenttask.KindRollback,
	"review":      agenttask.KindCodeReview,
	"code_review": agenttask.KindCodeReview,
	"test":        agenttask.KindTestWriter,
	"tests":       agenttask.KindTestWriter,
	"test_writer": agenttask.KindTestWriter,
	"monitor":     agenttask.KindMonitor,
	"status":      agenttask.KindMonitor,
	"security":    agenttask.KindSecurity,
	"cost":        agenttask.KindCost,
	"incident":    agenttask.KindIncident,
}

// KindFor maps an intent to the workflow that serves it.
func KindFor(intentName string) (agenttask.Kind, bool) {
	k, ok := kinds[strings.ToLower(intentName)]
	return k, ok
}

// StringEntity returns entity key as a string, or "".
func (r Result) StringEntity(key string) string {
	switch v := r.Entities[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// IntEntity returns entity key as an int, accepting numbers and numeric strings.
func (r Result) IntEntity(key string) (int, bool) {
	switch v := r.Entities[key].(type) {
	case float64:
		return int(v), v == math.Trunc(v)
	case string:
		n, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(v), "#"))
		return n, err == nil
	default:
		return 0, false
	}
}
