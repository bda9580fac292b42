package processor

// JSON schema builders. Optional scalars accept null because models emit
// null for fields they cannot find; unknown properties are rejected.

func stringProp(description string) map[string]any {
	return map[string]any{
		"type":        []any{"string", "null"},
		"description": description,
	}
}

func numberProp(description string) map[string]any {
	return map[string]any{
		"type":        []any{"number", "null"},
		"description": description,
	}
}

func arrayProp(description string, items map[string]any) map[string]any {
	return map[string]any{
		"type":        []any{"array", "null"},
		"description": description,
		"items":       items,
	}
}

func objectSchema(title string, properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
	if title != "" {
		s["title"] = title
	}
	if len(required) > 0 {
		req := make([]any, len(required))
		for i, r := range required {
			req[i] = r
		}
		s["required"] = req
	}
	return s
}
