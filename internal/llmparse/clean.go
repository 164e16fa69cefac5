package llmparse

import "strings"

// cleanModelResponse strips Markdown fences and surrounding prose from a
// model response, keeping only the outermost JSON value. Models regularly
// ignore "no code fences" instructions, so this runs on every response.
func cleanModelResponse(raw string) string {
	s := strings.TrimSpace(raw)

	// Handle ```json ... ``` or ``` ... ``` wrappers.
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	// Keep only the outermost JSON object or array, dropping any
	// explanatory prose around it.
	objStart := strings.Index(s, "{")
	arrStart := strings.Index(s, "[")

	start, closer := objStart, "}"
	if objStart == -1 || (arrStart != -1 && arrStart < objStart) {
		start, closer = arrStart, "]"
	}
	if start == -1 {
		return s
	}
	if end := strings.LastIndex(s, closer); end > start {
		s = strings.TrimSpace(s[start : end+1])
	}
	return s
}
