package safety

func nonEmptyStringList(minItems int) map[string]any {
	return map[string]any{
		"type":     "array",
		"minItems": minItems,
		"items":    map[string]any{"type": "string", "minLength": 1},
	}
}

func qualifierGroupList() map[string]any {
	return map[string]any{
		"type": "array",
		"items": map[string]any{
			"type":                 "object",
			"additionalProperties": false,
			"required":             []string{"patterns"},
			"properties": map[string]any{
				"name":     map[string]any{"type": "string"},
				"patterns": nonEmptyStringList(1),
			},
		},
	}
}

// ruleLogicSchema is the shape gate for logic objects.
func ruleLogicSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"patterns"},
		"properties": map[string]any{
			"patterns": nonEmptyStringList(1),
			"qualifiers": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"properties": map[string]any{
					"requires_any_of": qualifierGroupList(),
					"requires_all_of": qualifierGroupList(),
				},
			},
			"exclusions":                 nonEmptyStringList(0),
			"exclusion_mode":             map[string]any{"type": "string", "enum": []string{"always", "only_if_unqualified"}},
			"a_level_requires_any_of":    nonEmptyStringList(0),
			"requires_verified_evidence": map[string]any{"type": "boolean"},
			"intake_evidence_fields":     nonEmptyStringList(0),
		},
	}
}

func ruleDefaultsSchema() map[string]any {
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"level_default", "action_default"},
		"properties": map[string]any{
			"level_default":  map[string]any{"type": "string", "enum": []string{"A", "B", "C"}},
			"action_default": map[string]any{"type": "string", "enum": []string{"none", "warn", "require_confirm", "hard_stop"}},
		},
	}
}
