package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shaharia-lab/omnifocus-gtd/observability"
	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel/attribute"
)

// ToolHandler runs one tool invocation.
type ToolHandler func(ctx context.Context, params CallToolParams) (CallToolResult, error)

// Tool represents a callable tool. Only name, description and schema are
// advertised to clients.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
	Handler     ToolHandler     `json:"-"`
}

// Property describes one tool parameter.
type Property struct {
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Default     interface{} `json:"default,omitempty"`
}

// Schema is the object schema advertised for a tool's arguments.
type Schema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// ObjectSchema returns an object schema over props with the given required keys.
func ObjectSchema(props map[string]Property, required ...string) Schema {
	if props == nil {
		props = map[string]Property{}
	}
	return Schema{Type: "object", Properties: props, Required: required}
}

// MustJSON encodes the schema. It panics only if a default value cannot be
// encoded, which is a programming error in a static catalog.
func (s Schema) MustJSON() json.RawMessage {
	if s.Properties == nil {
		s.Properties = map[string]Property{}
	}
	b, err := json.Marshal(s)
	if err != nil {
		panic(fmt.Sprintf("encode tool schema: %v", err))
	}
	return b
}

// ToolManager is the static, ordered tool catalog. Tools are listed in
// registration order.
type ToolManager struct {
	logger observability.Logger
	order  []string
	tools  map[string]Tool
	// compiled schemas, used only for argument diagnostics
	schemas map[string]*gojsonschema.Schema
}

// NewToolManager creates a ToolManager holding tools in the given order.
func NewToolManager(logger observability.Logger, tools ...Tool) (*ToolManager, error) {
	if logger == nil {
		logger = observability.NewNullLogger()
	}

	tm := &ToolManager{
		logger:  logger,
		tools:   make(map[string]Tool),
		schemas: make(map[string]*gojsonschema.Schema),
	}

	for _, tool := range tools {
		if _, exists := tm.tools[tool.Name]; exists {
			return nil, fmt.Errorf("duplicate tool: %s", tool.Name)
		}

		schema, err := validateTool(tool)
		if err != nil {
			return nil, fmt.Errorf("invalid tool %q: %w", tool.Name, err)
		}

		tm.order = append(tm.order, tool.Name)
		tm.tools[tool.Name] = tool
		tm.schemas[tool.Name] = schema
	}

	return tm, nil
}

func validateTool(tool Tool) (*gojsonschema.Schema, error) {
	if tool.Name == "" {
		return nil, fmt.Errorf("tool name cannot be empty")
	}

	if tool.Description == "" {
		return nil, fmt.Errorf("tool description cannot be empty")
	}

	if tool.Handler == nil {
		return nil, fmt.Errorf("tool handler cannot be nil")
	}

	if len(tool.InputSchema) == 0 {
		return nil, fmt.Errorf("tool input schema cannot be empty")
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(tool.InputSchema))
	if err != nil {
		return nil, fmt.Errorf("invalid input schema: %w", err)
	}
	return schema, nil
}

// ListTools returns the full catalog in registration order.
func (tm *ToolManager) ListTools(ctx context.Context) ListToolsResult {
	_, span := observability.StartSpan(ctx, "ToolManager.ListTools")
	defer span.End()

	tools := make([]Tool, 0, len(tm.order))
	for _, name := range tm.order {
		tools = append(tools, tm.tools[name])
	}

	span.SetAttributes(attribute.Int("num_tools", len(tools)))
	return ListToolsResult{Tools: tools}
}

// GetTool retrieves a tool by its name.
func (tm *ToolManager) GetTool(name string) (Tool, error) {
	tool, exists := tm.tools[name]
	if !exists {
		return Tool{}, Errorf(KindUnknownTool, "Unknown tool: %s", name)
	}
	return tool, nil
}

// CallTool runs the named tool once. Handler failures become
// KindExecutionFailed errors; there are no retries.
func (tm *ToolManager) CallTool(ctx context.Context, params CallToolParams) (result CallToolResult, err error) {
	ctx, span := observability.StartSpan(ctx, "ToolManager.CallTool")
	defer func() { observability.EndSpan(span, err) }()

	span.SetAttributes(attribute.String("tool", params.Name))

	tool, err := tm.GetTool(params.Name)
	if err != nil {
		tm.logger.WithFields(map[string]interface{}{
			"tool": params.Name,
		}).Error("Tool not found")
		return CallToolResult{}, err
	}

	params.Arguments = normalizeArguments(params.Arguments)
	tm.checkArguments(params)

	result, err = tool.Handler(ctx, params)
	if err != nil {
		tm.logger.WithFields(map[string]interface{}{
			"tool": params.Name,
		}).WithErr(err).Error("Tool handler failed with an error")

		var mcpErr *Error
		if errors.As(err, &mcpErr) {
			return CallToolResult{}, mcpErr
		}
		return CallToolResult{}, NewError(KindExecutionFailed, ErrExecutionFailed.Message, err)
	}

	span.SetAttributes(attribute.Int("contents_length", len(result.Content)))
	tm.logger.WithFields(map[string]interface{}{
		"tool": params.Name,
	}).Debug("Tool handler executed successfully")

	return result, nil
}

// checkArguments validates arguments against the advertised schema and only
// logs what it finds. Missing required fields are left for the tool to
// surface.
func (tm *ToolManager) checkArguments(params CallToolParams) {
	schema, ok := tm.schemas[params.Name]
	if !ok || schema == nil {
		return
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(params.Arguments))
	if err != nil {
		tm.logger.WithFields(map[string]interface{}{
			"tool": params.Name,
		}).WithErr(err).Warn("Arguments could not be checked against schema")
		return
	}

	if result.Valid() {
		return
	}

	var errorMessages []string
	for _, desc := range result.Errors() {
		errorMessages = append(errorMessages, desc.String())
	}
	tm.logger.WithFields(map[string]interface{}{
		"tool":   params.Name,
		"errors": strings.Join(errorMessages, "; "),
	}).Warn("Arguments do not match tool schema")
}

// normalizeArguments turns a missing or null arguments value into {}.
func normalizeArguments(args json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(args)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return json.RawMessage("{}")
	}
	return trimmed
}
