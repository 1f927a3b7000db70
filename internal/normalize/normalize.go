// Package normalize applies canonical date/amount/currency transforms and
// PII masking to the extraction tree, walking it generically by field-name
// pattern rather than a fixed schema (banks vary their column layouts).
package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Options configures a normalization pass.
type Options struct {
	PIIMaskChar     string
	PIIShowLast     int
	DateHint        string // optional caller-supplied layout tried before the probe list
	DefaultCurrency string // fallback for amount fields with no detected currency of their own
}

// DefaultOptions mirrors the spec's defaults.
var DefaultOptions = Options{PIIMaskChar: "X", PIIShowLast: 4}

var (
	dateKeyPattern   = regexp.MustCompile(`(?i)date`)
	amountKeyPattern = regexp.MustCompile(`(?i)amount|price|total|balance|debit|credit`)
	piiKeyPattern    = regexp.MustCompile(`(?i)account|ssn|social|tax|id|passport|credit|card|routing|iban|swift`)

	// dateProbeLayouts is tried in order; the first layout that parses the
	// value wins. This is the documented DD/MM vs MM/DD tie-break: no
	// locale or period-bounds disambiguation is attempted (see DESIGN.md).
	dateProbeLayouts = []string{
		"2006-01-02",
		"02-Jan-2006",
		"02/01/2006",
		"01/02/2006",
		"2006/01/02",
		"02.01.2006",
	}

	knownCurrencyCodes = map[string]bool{
		"USD": true, "EUR": true, "GBP": true, "JPY": true, "THB": true,
		"INR": true, "AUD": true, "CAD": true, "CHF": true, "CNY": true,
		"SGD": true, "HKD": true, "NZD": true, "SEK": true, "NOK": true,
	}

	currencySymbols = map[string]string{
		"$": "USD", "€": "EUR", "£": "GBP", "¥": "JPY", "฿": "THB", "₹": "INR",
	}

	numericSubstring = regexp.MustCompile(`-?[0-9][0-9,.\s]*[0-9]|-?[0-9]`)
	threeLetterCode  = regexp.MustCompile(`(?i)\b([A-Z]{3})\b`)
)

// NormalizeDate tries the caller's hint layout, then the fixed probe list,
// then gives up. Returns ("", false) when nothing parses — callers persist
// null in that case, per the spec's null-or-ISO-8601 invariant.
func NormalizeDate(raw string, hint string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}

	layouts := dateProbeLayouts
	if hint != "" {
		layouts = append([]string{hint}, layouts...)
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}

// IsDateLike reports whether s looks like a date without fully parsing it.
func IsDateLike(s string) bool {
	return regexp.MustCompile(`\d{1,4}[-/.]\d{1,2}[-/.]\d{1,4}`).MatchString(s)
}

// NormalizedAmount is the result of parsing a free-form amount string.
type NormalizedAmount struct {
	Value    float64
	Currency string
	Original string
}

// NormalizeAmount strips one recognized currency symbol (prefix or suffix),
// one trailing 3-letter currency code, thousands separators, and
// whitespace, then parses the remainder as a decimal. If that fails it
// falls back to the first numeric substring found.
func NormalizeAmount(raw string) (NormalizedAmount, bool) {
	original := raw
	s := strings.TrimSpace(raw)
	currency := ""

	for sym, code := range currencySymbols {
		if strings.HasPrefix(s, sym) {
			s = strings.TrimSpace(strings.TrimPrefix(s, sym))
			currency = code
			break
		}
		if strings.HasSuffix(s, sym) {
			s = strings.TrimSpace(strings.TrimSuffix(s, sym))
			currency = code
			break
		}
	}

	if currency == "" {
		if m := threeLetterCode.FindStringSubmatch(s); m != nil {
			code := strings.ToUpper(m[1])
			if knownCurrencyCodes[code] {
				currency = code
				s = strings.TrimSpace(strings.ReplaceAll(s, m[0], ""))
			}
		}
	}

	cleaned := strings.ReplaceAll(s, ",", "")
	cleaned = strings.ReplaceAll(cleaned, " ", "")

	if value, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return NormalizedAmount{Value: value, Currency: currency, Original: original}, true
	}

	if match := numericSubstring.FindString(s); match != "" {
		fallback := strings.ReplaceAll(strings.ReplaceAll(match, ",", ""), " ", "")
		if value, err := strconv.ParseFloat(fallback, 64); err == nil {
			return NormalizedAmount{Value: value, Currency: currency, Original: original}, true
		}
	}

	return NormalizedAmount{}, false
}

// IsNumericShaped reports whether s resembles a number (digits, separators,
// optional sign/decimal) without requiring it to parse cleanly.
func IsNumericShaped(s string) bool {
	return regexp.MustCompile(`^-?[\d,\s]*\.?\d+$`).MatchString(strings.TrimSpace(s))
}

// DetectCurrency searches the extraction tree recursively for a "currency"
// leaf; falling back to a symbol/code scan over the flattened text when
// none is found.
func DetectCurrency(tree interface{}, flattenedText string) string {
	if code := findCurrencyLeaf(tree); code != "" {
		return code
	}
	for sym, code := range currencySymbols {
		if strings.Contains(flattenedText, sym) {
			return code
		}
	}
	if m := threeLetterCode.FindAllString(flattenedText, -1); m != nil {
		for _, candidate := range m {
			if knownCurrencyCodes[strings.ToUpper(candidate)] {
				return strings.ToUpper(candidate)
			}
		}
	}
	return "USD"
}

func findCurrencyLeaf(node interface{}) string {
	switch v := node.(type) {
	case map[string]interface{}:
		if cur, ok := v["currency"].(string); ok && cur != "" {
			return strings.ToUpper(cur)
		}
		for key, child := range v {
			if strings.EqualFold(key, "currency") {
				if s := currencyStringValue(child); s != "" {
					return strings.ToUpper(s)
				}
			}
			if found := findCurrencyLeaf(child); found != "" {
				return found
			}
		}
	case []interface{}:
		for _, item := range v {
			if found := findCurrencyLeaf(item); found != "" {
				return found
			}
		}
	}
	return ""
}

// currencyStringValue extracts a usable string from either a raw string
// leaf or a field-object ({"value": "..."}) named "currency".
func currencyStringValue(node interface{}) string {
	switch v := node.(type) {
	case string:
		return v
	case map[string]interface{}:
		if s, ok := v["value"].(string); ok {
			return s
		}
	}
	return ""
}

// MaskValue masks s to mask-char except its last showLast characters,
// preserving length exactly.
func MaskValue(s string, maskChar string, showLast int) string {
	if maskChar == "" {
		maskChar = "X"
	}
	cleaned := s
	n := len(cleaned)
	if showLast < 0 {
		showLast = 0
	}
	if showLast >= n {
		return cleaned
	}
	masked := strings.Repeat(maskChar, n-showLast) + cleaned[n-showLast:]
	return masked
}

// IsFieldObject reports whether node is a field-object leaf: a mapping
// containing the key "value".
func IsFieldObject(node map[string]interface{}) bool {
	_, ok := node["value"]
	return ok
}

// WalkTree recursively applies date/amount normalization and PII masking to
// every field object in the tree, keyed on field-name patterns. Re-running
// on an already-normalized tree is idempotent: normalized dates/amounts and
// already-masked strings match their own patterns and pass through
// unchanged.
func WalkTree(node interface{}, keyName string, opts Options) interface{} {
	switch v := node.(type) {
	case map[string]interface{}:
		if IsFieldObject(v) {
			return normalizeFieldObject(v, keyName, opts)
		}
		out := make(map[string]interface{}, len(v))
		for key, child := range v {
			out[key] = WalkTree(child, key, opts)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = WalkTree(item, keyName, opts)
		}
		return out
	default:
		return node
	}
}

func normalizeFieldObject(field map[string]interface{}, keyName string, opts Options) map[string]interface{} {
	out := make(map[string]interface{}, len(field))
	for k, v := range field {
		out[k] = v
	}

	raw, _ := out["value"].(string)

	switch {
	case dateKeyPattern.MatchString(keyName):
		if raw == "" {
			out["value"] = nil
		} else if iso, ok := NormalizeDate(raw, opts.DateHint); ok {
			out["value"] = iso
		} else {
			out["value"] = nil
		}
	case amountKeyPattern.MatchString(keyName):
		var rawStr string
		switch rv := out["value"].(type) {
		case string:
			rawStr = rv
		case float64:
			out["value"] = rv
			rawStr = ""
		}
		if rawStr != "" {
			if amt, ok := NormalizeAmount(rawStr); ok {
				out["value"] = amt.Value
				if amt.Currency != "" {
					out["currency"] = amt.Currency
				} else if opts.DefaultCurrency != "" {
					out["currency"] = opts.DefaultCurrency
				}
			}
		}
	}

	if piiKeyPattern.MatchString(keyName) {
		if s, ok := out["value"].(string); ok && s != "" {
			out["value"] = MaskValue(s, opts.PIIMaskChar, opts.PIIShowLast)
		}
	}

	return out
}

// ValidateConfidence checks that a confidence value lies in [0,1].
func ValidateConfidence(c float64) error {
	if c < 0 || c > 1 {
		return fmt.Errorf("normalize: confidence %v out of [0,1]", c)
	}
	return nil
}
