package tools

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Tool names exposed to the reasoner.
const (
	ToolWebSearch            = "web_search"
	ToolLatestFinder         = "latest_finder"
	ToolKnowledgeQuery       = "knowledge_query"
	ToolEvaluatePlausibility = "evaluate_plausibility"
)

// argSchemas hold the strict JSON argument schema per tool; the same schema
// is handed to the model as the function-calling parameter definition.
var argSchemas = map[string]string{
	ToolWebSearch: `{
		"type": "object",
		"properties": {
			"query":           {"type": "string", "minLength": 2, "description": "Search query"},
			"num":             {"type": "integer", "minimum": 1, "maximum": 10, "description": "Number of results (default 3)"},
			"include_content": {"type": "boolean", "description": "Fetch and extract page content (default true)"},
			"days":            {"type": "integer", "minimum": 1, "maximum": 365, "description": "Restrict to the last N days"},
			"depth":           {"type": "string", "enum": ["basic", "advanced"], "description": "Search depth (default advanced)"}
		},
		"required": ["query"],
		"additionalProperties": false
	}`,
	ToolLatestFinder: `{
		"type": "object",
		"properties": {
			"query": {"type": "string", "minLength": 2, "description": "Topic whose most recent development to find"}
		},
		"required": ["query"],
		"additionalProperties": false
	}`,
	ToolKnowledgeQuery: `{
		"type": "object",
		"properties": {
			"entity":        {"type": "string", "minLength": 1, "description": "Entity name to look up"},
			"variable_name": {"type": "string", "description": "Specific fact name to retrieve"},
			"question":      {"type": "string", "description": "Free-form question used to filter facts"}
		},
		"required": ["entity"],
		"additionalProperties": false
	}`,
	ToolEvaluatePlausibility: `{
		"type": "object",
		"properties": {
			"claims":  {"type": "array", "items": {"type": "string"}, "minItems": 1, "description": "Claims to evaluate"},
			"context": {"type": "string", "description": "Additional context for evaluation"}
		},
		"required": ["claims"],
		"additionalProperties": false
	}`,
}

var compiledSchemas = map[string]*jsonschema.Schema{}

func init() {
	for name, raw := range argSchemas {
		compiledSchemas[name] = jsonschema.MustCompileString(name+".schema.json", raw)
	}
}

// validateArgs checks raw argument JSON against the tool's schema. A failure
// returns the structured error payload the model sees and must repair.
func validateArgs(name, argsJSON string) (map[string]any, string) {
	schema, ok := compiledSchemas[name]
	if !ok {
		return nil, errorPayload(fmt.Sprintf("unknown tool %q", name))
	}

	var decoded any
	if err := json.Unmarshal([]byte(argsJSON), &decoded); err != nil {
		return nil, schemaErrorPayload(name, fmt.Sprintf("arguments are not valid JSON: %v", err))
	}
	if err := schema.Validate(decoded); err != nil {
		return nil, schemaErrorPayload(name, err.Error())
	}

	args, ok := decoded.(map[string]any)
	if !ok {
		return nil, schemaErrorPayload(name, "arguments must be a JSON object")
	}
	return args, ""
}

func schemaErrorPayload(tool, detail string) string {
	payload, _ := json.Marshal(map[string]string{
		"error":  "SCHEMA_VALIDATION_ERROR",
		"tool":   tool,
		"detail": detail,
	})
	return string(payload)
}

func errorPayload(msg string) string {
	payload, _ := json.Marshal(map[string]string{"error": msg})
	return string(payload)
}

// SchemaParameters decodes a tool's argument schema into the map form the
// model client expects.
func SchemaParameters(name string) map[string]any {
	var params map[string]any
	_ = json.Unmarshal([]byte(argSchemas[name]), &params)
	return params
}
