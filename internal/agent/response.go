// Package agent calls the remote processing agents for the standardization
// and invoice stages, parses their free-text responses, and decides when to
// fall back to the local simulators.
package agent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ParsedResponse is what we recover from an agent's output text. Agents
// write their results to the ticket store themselves; the response text is
// a confirmation we mine for routing data.
type ParsedResponse struct {
	Success           bool
	Summary           string
	NextAction        string
	StandardizedCodes map[string]any
	Flags             []string
	RawOutput         string
	Err               string
}

var (
	codeBlockRe  = regexp.MustCompile("```(?:json)?\\s*(\\{[\\s\\S]*?\\})\\s*```")
	bareObjectRe = regexp.MustCompile(`\{[\s\S]*\}`)
)

// successPhrases mark a textual confirmation when the agent reports its work
// without structured output.
var successPhrases = []string{
	"successfully updated",
	"ai_processed",
	"processing complete",
	"results have been written",
	"update_ticket",
	"updated the ticket",
	"updated ticket",
	"wrote results",
	"written back",
	"update completed",
	"actions taken",
	"standardized",
	"next action",
	"processing results",
}

// payloadSchema loosely validates an extracted JSON payload: it must be an
// object, and the routing fields must have the right types when present.
var payloadSchema = mustCompileSchema(map[string]any{
	"type": "object",
	"properties": map[string]any{
		"summary":           map[string]any{"type": "string"},
		"nextAction":        map[string]any{"type": "string"},
		"flags":             map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"standardizedCodes": map[string]any{"type": "object"},
		"aiProcessing":      map[string]any{"type": "object"},
	},
})

func mustCompileSchema(schemaMap map[string]any) *jsonschema.Schema {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		panic(err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(b)); err != nil {
		panic(err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		panic(err)
	}
	return schema
}

// ParseResponse mines an agent's output text for structured results: first
// a fenced or bare JSON object, then textual success phrases with labelled
// Summary/Next Action lines.
func ParseResponse(outputText string) ParsedResponse {
	result := ParsedResponse{RawOutput: outputText}
	if outputText == "" {
		result.Err = "agent returned empty response"
		return result
	}

	if block := extractJSONBlock(outputText); block != "" {
		if parsed, ok := decodePayload(block); ok {
			applyPayload(&result, parsed)
		}
	}

	if !result.Success {
		lower := strings.ToLower(outputText)
		for _, phrase := range successPhrases {
			if strings.Contains(lower, phrase) {
				result.Success = true
				result.Summary = extractSummary(outputText)
				if result.NextAction == "" {
					result.NextAction = extractField(outputText, "next action")
				}
				if result.NextAction == "" {
					result.NextAction = extractField(outputText, "nextAction")
				}
				break
			}
		}
	}
	return result
}

// extractJSONBlock pulls the first JSON object out of free text, preferring
// fenced code blocks over a bare balanced-brace span.
func extractJSONBlock(text string) string {
	if m := codeBlockRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if candidate := bareObjectRe.FindString(text); candidate != "" {
		if strings.Count(candidate, "{") == strings.Count(candidate, "}") {
			return candidate
		}
	}
	return ""
}

func decodePayload(block string) (map[string]any, bool) {
	var v any
	if err := json.Unmarshal([]byte(block), &v); err != nil {
		return nil, false
	}
	if err := payloadSchema.Validate(v); err != nil {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

func applyPayload(result *ParsedResponse, parsed map[string]any) {
	// The agent may return the full update payload or a flat confirmation.
	if ap, ok := parsed["aiProcessing"].(map[string]any); ok {
		result.Summary, _ = ap["summary"].(string)
		result.NextAction, _ = ap["nextAction"].(string)
		result.StandardizedCodes, _ = ap["standardizedCodes"].(map[string]any)
		result.Flags = stringSlice(ap["flags"])
		result.Success = true
		return
	}
	if _, ok := parsed["summary"]; ok {
		result.Summary, _ = parsed["summary"].(string)
		if na, ok := parsed["nextAction"].(string); ok {
			result.NextAction = na
		} else if na, ok := parsed["next_action"].(string); ok {
			result.NextAction = na
		}
		if sc, ok := parsed["standardizedCodes"].(map[string]any); ok {
			result.StandardizedCodes = sc
		} else if sc, ok := parsed["standardized_codes"].(map[string]any); ok {
			result.StandardizedCodes = sc
		}
		result.Flags = stringSlice(parsed["flags"])
		result.Success = true
	}
}

func stringSlice(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// extractSummary finds a labelled Summary line, a summary on the following
// line, or the first substantive paragraph.
func extractSummary(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if strings.Contains(strings.ToLower(line), "summary") && strings.Contains(line, ":") {
			parts := strings.SplitN(line, ":", 2)
			if len(parts) == 2 && strings.TrimSpace(parts[1]) != "" {
				return strings.TrimSpace(parts[1])
			}
			if i+1 < len(lines) && strings.TrimSpace(lines[i+1]) != "" {
				return strings.TrimSpace(lines[i+1])
			}
		}
	}
	for _, line := range lines {
		stripped := strings.TrimSpace(line)
		if len(stripped) > 50 && !strings.HasPrefix(stripped, "#") &&
			!strings.HasPrefix(stripped, "-") && !strings.HasPrefix(stripped, "*") &&
			!strings.HasPrefix(stripped, "```") {
			return stripped
		}
	}
	if len(text) > 300 {
		return strings.TrimSpace(text[:300])
	}
	return strings.TrimSpace(text)
}

// extractField scrapes "Field: value" style lines from unstructured text.
func extractField(text, fieldName string) string {
	re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(fieldName) + `\s*[:=]\s*["']?([^` + "\n" + `"',]+)`)
	if m := re.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// String implements fmt.Stringer for log output.
func (r ParsedResponse) String() string {
	return fmt.Sprintf("success=%t nextAction=%q flags=%d", r.Success, r.NextAction, len(r.Flags))
}
