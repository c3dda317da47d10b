package openai

import (
	"encoding/json"
	"fmt"
)

// ObjectChatCompletion is the object tag of a non-streaming completion.
const ObjectChatCompletion = "chat.completion"

// ChatCompletion is a complete chat completion response, either returned by
// a non-streaming request or folded from a stream by an Accumulator.
type ChatCompletion struct {
	ID                string   `json:"id"`
	Object            string   `json:"object"`
	Created           int64    `json:"created"`
	Model             string   `json:"model"`
	SystemFingerprint string   `json:"system_fingerprint,omitempty"`
	Choices           []Choice `json:"choices"`
	Usage             *Usage   `json:"usage,omitempty"`
}

// Choice is one generated alternative.
type Choice struct {
	Index        int             `json:"index"`
	Message      ResponseMessage `json:"message"`
	FinishReason FinishReason    `json:"finish_reason"`
}

// ResponseMessage is the assistant message of a Choice.
type ResponseMessage struct {
	Role      string     `json:"role"`
	Content   *string    `json:"content"`
	Refusal   *string    `json:"refusal,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is a complete tool invocation requested by the model.
type ToolCall struct {
	ID       string   `json:"id"`
	Type     string   `json:"type"`
	Function Function `json:"function"`
}

// Function names the function to call. Arguments is the JSON document the
// model generated, as a string.
type Function struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ParsedArguments decodes Arguments into a generic JSON object.
func (f Function) ParsedArguments() (map[string]any, error) {
	args := map[string]any{}
	if f.Arguments == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(f.Arguments), &args); err != nil {
		return nil, fmt.Errorf("parsing arguments of %q: %w", f.Name, err)
	}
	return args, nil
}

// Text returns the content of the first choice, or "" when there is none.
func (c *ChatCompletion) Text() string {
	if len(c.Choices) == 0 || c.Choices[0].Message.Content == nil {
		return ""
	}
	return *c.Choices[0].Message.Content
}
