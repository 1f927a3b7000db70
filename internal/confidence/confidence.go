// Package confidence combines model-reported and heuristic confidence per
// field, following the teacher's weighted-factor-with-breakdown shape
// generalized to the per-field-type heuristic rules this domain needs.
package confidence

import (
	"fmt"
	"math"
	"net/mail"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// FieldType drives which heuristic rule set applies.
type FieldType string

const (
	TypeDate          FieldType = "date"
	TypeNumber        FieldType = "number"
	TypeEmail         FieldType = "email"
	TypeAccountNumber FieldType = "account_number"
	TypeCurrency      FieldType = "currency"
	TypeGeneric       FieldType = "generic"
)

// Weights controls the blend of type-validity, field-name validity, and
// contextual consistency that makes up the heuristic score, and the blend
// of heuristic vs model confidence that makes up the combined score.
type Weights struct {
	TypeValidity  float64
	NameValidity  float64
	Context       float64
	Heuristic     float64
	Model         float64
	Threshold     float64
}

// DefaultWeights mirrors spec.md §4.7 exactly.
var DefaultWeights = Weights{
	TypeValidity: 0.4,
	NameValidity: 0.3,
	Context:      0.3,
	Heuristic:    0.6,
	Model:        0.4,
	Threshold:    0.70,
}

// Result is the scored outcome for one field.
type Result struct {
	Combined     float64
	Heuristic    float64
	Model        float64
	HasModel     bool
	NeedsReview  bool
	Reasons      []string
}

// Score combines model-reported and heuristic confidence for one field.
// modelConfidence < 0 means "not reported" — the combined score is then the
// heuristic alone.
func Score(fieldType FieldType, value string, modelConfidence float64, nameValid bool, contextConsistent bool, w Weights) Result {
	w = normalizeWeights(w)

	typeScore := typeValidityScore(fieldType, value)
	nameScore := 0.0
	if nameValid {
		nameScore = 1.0
	}
	contextScore := 0.0
	if contextConsistent {
		contextScore = 1.0
	}

	heuristic := w.TypeValidity*typeScore + w.NameValidity*nameScore + w.Context*contextScore

	result := Result{Heuristic: heuristic}
	reasons := []string{fmt.Sprintf("type-validity=%.2f name-validity=%.2f context=%.2f", typeScore, nameScore, contextScore)}

	if modelConfidence >= 0 {
		result.Model = modelConfidence
		result.HasModel = true
		result.Combined = w.Heuristic*heuristic + w.Model*modelConfidence
	} else {
		result.Combined = heuristic
	}

	result.NeedsReview = result.Combined < w.Threshold
	if result.NeedsReview {
		reasons = append(reasons, fmt.Sprintf("combined %.2f below threshold %.2f", result.Combined, w.Threshold))
	}
	result.Reasons = reasons
	return result
}

func normalizeWeights(w Weights) Weights {
	if sum := w.TypeValidity + w.NameValidity + w.Context; sum > 0 && sum != 1 {
		w.TypeValidity /= sum
		w.NameValidity /= sum
		w.Context /= sum
	}
	if sum := w.Heuristic + w.Model; sum > 0 && sum != 1 {
		w.Heuristic /= sum
		w.Model /= sum
	}
	if w.Threshold == 0 {
		w.Threshold = 0.70
	}
	return w
}

var (
	dateShapePattern    = regexp.MustCompile(`\d{1,4}[-/.]\d{1,2}[-/.]\d{1,4}`)
	isoDatePattern      = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	numberShapePattern  = regexp.MustCompile(`^-?[\d,\s]*\.?\d+$`)
	emailLoosePattern   = regexp.MustCompile(`@.*\.`)
	accountNumberPattern = regexp.MustCompile(`^[A-Za-z0-9]+$`)
)

func typeValidityScore(t FieldType, value string) float64 {
	v := strings.TrimSpace(value)
	switch t {
	case TypeDate:
		if isoDatePattern.MatchString(v) {
			return 1.0
		}
		for _, layout := range []string{"02-Jan-2006", "02/01/2006", "01/02/2006", "2006/01/02", "02.01.2006"} {
			if _, err := time.Parse(layout, v); err == nil {
				return 0.7
			}
		}
		if dateShapePattern.MatchString(v) {
			return 0.4
		}
		return 0.2
	case TypeNumber:
		if _, err := strconv.ParseFloat(v, 64); err == nil {
			return 1.0
		}
		stripped := strings.ReplaceAll(strings.ReplaceAll(v, ",", ""), " ", "")
		if _, err := strconv.ParseFloat(stripped, 64); err == nil {
			return 0.9
		}
		if numberShapePattern.MatchString(v) {
			return 0.6
		}
		return 0.2
	case TypeEmail:
		if _, err := mail.ParseAddress(v); err == nil {
			return 1.0
		}
		if emailLoosePattern.MatchString(v) {
			return 0.5
		}
		return 0.1
	case TypeAccountNumber:
		if accountNumberPattern.MatchString(v) {
			if len(v) >= 8 && len(v) <= 20 {
				return 0.9
			}
			return 0.6
		}
		return 0.4
	case TypeCurrency:
		upper := strings.ToUpper(v)
		if len(upper) == 3 && isKnownCurrency(upper) {
			return 1.0
		}
		if len(upper) == 3 && isAlpha(upper) {
			return 0.7
		}
		return 0.3
	default:
		return 0.5
	}
}

// Overall computes the document-level confidence as a weighted mean over
// field results; equal weights unless a path-keyed weight map is supplied.
func Overall(results map[string]Result, pathWeights map[string]float64) float64 {
	if len(results) == 0 {
		return 0
	}
	var sum, weightSum float64
	for path, r := range results {
		w := 1.0
		if pathWeights != nil {
			if custom, ok := pathWeights[path]; ok {
				w = custom
			}
		}
		sum += r.Combined * w
		weightSum += w
	}
	if weightSum == 0 {
		return 0
	}
	return math.Round((sum/weightSum)*10000) / 10000
}

func isKnownCurrency(code string) bool {
	switch code {
	case "USD", "EUR", "GBP", "JPY", "THB", "INR", "AUD", "CAD", "CHF", "CNY", "SGD", "HKD", "NZD", "SEK", "NOK":
		return true
	}
	return false
}

func isAlpha(s string) bool {
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
