// Package tools defines the agent-facing tool surface: a typed schema per
// tool, a registry that validates arguments, and the fifteen tools fronting
// the core services. Every tool call carries the caller's UserContext and is
// validated before any user data is touched.
package tools

import (
	"context"
	"time"

	"mailagent_server/core/domain"
)

// Tool is one callable agent operation.
type Tool interface {
	Name() string
	Description() string
	Category() ToolCategory
	Parameters() []ParameterSpec
	Execute(ctx context.Context, uc *domain.UserContext, args map[string]any) (*ToolResult, error)
}

// ToolCategory groups tools for listing.
type ToolCategory string

const (
	CategoryAuth     ToolCategory = "auth"
	CategorySearch   ToolCategory = "search"
	CategoryAnalysis ToolCategory = "analysis"
	CategoryMail     ToolCategory = "mail"
	CategoryCleanup  ToolCategory = "cleanup"
)

// ParameterSpec defines one tool parameter.
type ParameterSpec struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"` // string, number, boolean, array
	Description string   `json:"description"`
	Required    bool     `json:"required"`
	Enum        []string `json:"enum,omitempty"`
	Default     any      `json:"default,omitempty"`
}

// ToolResult is the tool's native error envelope: domain failures land in
// Error with Success=false instead of a Go error, so a bulk caller can keep
// going.
type ToolResult struct {
	Success  bool            `json:"success"`
	Data     any             `json:"data,omitempty"`
	Message  string          `json:"message,omitempty"`
	Error    string          `json:"error,omitempty"`
	Proposal *ActionProposal `json:"proposal,omitempty"`
}

// ActionProposal describes a mutation that needs explicit confirmation
// before it runs (cleanup policies with require_confirmation set).
type ActionProposal struct {
	ID          string         `json:"id"`
	Action      string         `json:"action"`
	Description string         `json:"description"`
	Data        map[string]any `json:"data"`
	ExpiresAt   time.Time      `json:"expires_at"`
}

// ToolDefinition is the schema shape served by the tool listing endpoint.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Category    ToolCategory    `json:"category"`
	Parameters  []ParameterSpec `json:"parameters"`
}

// Definition renders a tool's schema.
func Definition(t Tool) ToolDefinition {
	return ToolDefinition{
		Name:        t.Name(),
		Description: t.Description(),
		Category:    t.Category(),
		Parameters:  t.Parameters(),
	}
}

func errResult(err error) *ToolResult {
	return &ToolResult{Success: false, Error: err.Error()}
}

// =============================================================================
// Argument Helpers
// =============================================================================
//
// Tool args arrive as map[string]any decoded from JSON, so numbers are
// float64 over the wire and native ints when called in-process.

func getStringArg(args map[string]any, key, defaultVal string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return defaultVal
}

func getIntArg(args map[string]any, key string, defaultVal int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return defaultVal
}

func getBoolArg(args map[string]any, key string, defaultVal bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return defaultVal
}

func getStringArrayArg(args map[string]any, key string) []string {
	switch v := args[key].(type) {
	case []string:
		return v
	case []any:
		result := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				result = append(result, s)
			}
		}
		return result
	}
	return nil
}

// intArgPtr reports presence: nil when the key is absent or not numeric.
func intArgPtr(args map[string]any, key string) *int {
	switch v := args[key].(type) {
	case float64:
		n := int(v)
		return &n
	case int:
		n := v
		return &n
	case int64:
		n := int(v)
		return &n
	}
	return nil
}

func int64ArgPtr(args map[string]any, key string) *int64 {
	switch v := args[key].(type) {
	case float64:
		n := int64(v)
		return &n
	case int:
		n := int64(v)
		return &n
	case int64:
		n := v
		return &n
	}
	return nil
}

func floatArgPtr(args map[string]any, key string) *float64 {
	switch v := args[key].(type) {
	case float64:
		n := v
		return &n
	case int:
		n := float64(v)
		return &n
	}
	return nil
}

func boolArgPtr(args map[string]any, key string) *bool {
	if v, ok := args[key].(bool); ok {
		b := v
		return &b
	}
	return nil
}
