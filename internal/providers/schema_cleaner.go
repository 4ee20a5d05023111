package providers

import "strings"

// Gemini function declarations reject these JSON Schema keywords.
var geminiUnsupportedKeys = map[string]bool{
	"$ref":                 true,
	"$defs":                true,
	"$schema":              true,
	"additionalProperties": true,
	"examples":             true,
	"default":              true,
}

// CleanToolSchemas returns a copy of tools with provider-incompatible JSON Schema
// keywords removed. Providers that accept full JSON Schema get the input back.
func CleanToolSchemas(providerName string, tools []ToolDefinition) []ToolDefinition {
	drop := unsupportedKeys(providerName)
	if drop == nil || len(tools) == 0 {
		return tools
	}

	cleaned := make([]ToolDefinition, len(tools))
	for i, t := range tools {
		cleaned[i] = ToolDefinition{
			Type: t.Type,
			Function: ToolFunctionSchema{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  cleanSchema(t.Function.Parameters, drop),
			},
		}
	}
	return cleaned
}

func unsupportedKeys(providerName string) map[string]bool {
	if providerName == "gemini" || strings.HasPrefix(providerName, "gemini-") {
		return geminiUnsupportedKeys
	}
	return nil
}

func cleanSchema(schema map[string]any, drop map[string]bool) map[string]any {
	if schema == nil {
		return nil
	}
	out := make(map[string]any, len(schema))
	for k, v := range schema {
		if drop[k] {
			continue
		}
		out[k] = cleanValue(v, drop)
	}
	return out
}

// cleanValue recurses into nested schemas and schema arrays (anyOf, items, ...).
func cleanValue(v any, drop map[string]bool) any {
	switch val := v.(type) {
	case map[string]any:
		return cleanSchema(val, drop)
	case []any:
		items := make([]any, len(val))
		for i, item := range val {
			items[i] = cleanValue(item, drop)
		}
		return items
	default:
		return v
	}
}
