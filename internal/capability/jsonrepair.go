package capability

import "regexp"

var jsonStringLiteral = regexp.MustCompile(`"([^"]*(?:\\.[^"]*)*)"`)

// repairJSONEscaping escapes literal control characters (raw newlines,
// tabs, carriage returns) inside JSON string values. LLMs frequently emit
// these unescaped, which a strict json.Unmarshal rejects outright.
func repairJSONEscaping(raw string) string {
	return jsonStringLiteral.ReplaceAllStringFunc(raw, func(match string) string {
		inner := match[1 : len(match)-1]
		fixed := make([]byte, 0, len(inner))
		for i := 0; i < len(inner); i++ {
			switch inner[i] {
			case '\n':
				fixed = append(fixed, '\\', 'n')
			case '\r':
				fixed = append(fixed, '\\', 'r')
			case '\t':
				fixed = append(fixed, '\\', 't')
			default:
				fixed = append(fixed, inner[i])
			}
		}
		return `"` + string(fixed) + `"`
	})
}
