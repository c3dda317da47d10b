package openai

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ChatRequest is the body of a chat completions request.
type ChatRequest struct {
	Model            string         `json:"model"`
	Messages         []Message      `json:"messages"`
	Tools            []Tool         `json:"tools,omitempty"`
	ToolChoice       any            `json:"tool_choice,omitempty"` // string or ToolChoiceFunction
	Temperature      *float64       `json:"temperature,omitempty"`
	TopP             *float64       `json:"top_p,omitempty"`
	MaxTokens        *int           `json:"max_tokens,omitempty"`
	N                *int           `json:"n,omitempty"`
	Stop             []string       `json:"stop,omitempty"`
	Seed             *int           `json:"seed,omitempty"`
	PresencePenalty  *float64       `json:"presence_penalty,omitempty"`
	FrequencyPenalty *float64       `json:"frequency_penalty,omitempty"`
	User             string         `json:"user,omitempty"`
	ResponseFormat   map[string]any `json:"response_format,omitempty"`
	Stream           bool           `json:"stream,omitempty"`
	StreamOptions    *StreamOptions `json:"stream_options,omitempty"`
}

// StreamOptions configures a streaming request.
type StreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// Message is one entry of the conversation sent to the model.
type Message struct {
	Role       string     `json:"role"`
	Content    *string    `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// Tool describes a function the model may call.
type Tool struct {
	Type     string             `json:"type"`
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition is the callable side of a Tool. Parameters is a JSON
// schema object.
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ToolChoiceFunction forces the model to call the named function.
type ToolChoiceFunction struct {
	Type     string `json:"type"`
	Function struct {
		Name string `json:"name"`
	} `json:"function"`
}

// Tool choice modes.
const (
	ToolChoiceAuto     = "auto"
	ToolChoiceNone     = "none"
	ToolChoiceRequired = "required"
)

// NewChatRequest returns a request for model with the given messages.
func NewChatRequest(model string, messages ...Message) *ChatRequest {
	return &ChatRequest{Model: model, Messages: messages}
}

// SystemMessage returns a system message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: &content}
}

// UserMessage returns a user message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: &content}
}

// AssistantMessage returns an assistant message carrying prior output.
func AssistantMessage(content string, calls ...ToolCall) Message {
	m := Message{Role: RoleAssistant, ToolCalls: calls}
	if content != "" || len(calls) == 0 {
		m.Content = &content
	}
	return m
}

// ToolMessage returns the result of the tool call identified by callID.
func ToolMessage(callID, content string) Message {
	return Message{Role: RoleTool, ToolCallID: callID, Content: &content}
}

// FunctionTool returns a function tool. required lists the names of
// properties the model must supply.
func FunctionTool(name, description string, properties map[string]any, required ...string) Tool {
	params := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		params["required"] = required
	}
	return Tool{
		Type: "function",
		Function: FunctionDefinition{
			Name:        name,
			Description: description,
			Parameters:  params,
		},
	}
}

// ToolChoiceFor returns a tool choice forcing a call to the named function.
func ToolChoiceFor(name string) ToolChoiceFunction {
	c := ToolChoiceFunction{Type: "function"}
	c.Function.Name = name
	return c
}

// WithStreaming returns a copy of r with streaming enabled and, when
// includeUsage is set, a final usage chunk requested.
func (r ChatRequest) WithStreaming(includeUsage bool) *ChatRequest {
	r.Stream = true
	r.StreamOptions = nil
	if includeUsage {
		r.StreamOptions = &StreamOptions{IncludeUsage: true}
	}
	return &r
}
