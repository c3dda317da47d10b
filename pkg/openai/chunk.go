// Package openai holds the wire types of the OpenAI chat completions API and
// the pieces that turn a decoded event stream into them.
package openai

// ObjectChatCompletionChunk is the object tag carried by every streaming chunk.
const ObjectChatCompletionChunk = "chat.completion.chunk"

// FinishReason is why the model stopped producing tokens for a choice.
type FinishReason string

const (
	FinishReasonStop          FinishReason = "stop"
	FinishReasonLength        FinishReason = "length"
	FinishReasonContentFilter FinishReason = "content_filter"
	FinishReasonToolCalls     FinishReason = "tool_calls"
)

// ChatCompletionChunk is one decoded frame of a streaming chat completion.
type ChatCompletionChunk struct {
	ID                string        `json:"id"`
	Object            string        `json:"object"`
	Created           int64         `json:"created"`
	Model             string        `json:"model"`
	SystemFingerprint string        `json:"system_fingerprint,omitempty"`
	Choices           []ChunkChoice `json:"choices"`

	// Usage is only set on the final chunk, and only when the request asked
	// for it with stream_options.include_usage. That chunk has no choices.
	Usage *Usage `json:"usage,omitempty"`
}

// ChunkChoice is the incremental state of one choice.
type ChunkChoice struct {
	Index        int           `json:"index"`
	Delta        ChunkDelta    `json:"delta"`
	FinishReason *FinishReason `json:"finish_reason"`
}

// ChunkDelta carries the fragment of a message produced since the previous
// chunk. Content is a pointer so an empty fragment can be told apart from an
// absent one.
type ChunkDelta struct {
	Role      string          `json:"role,omitempty"`
	Content   *string         `json:"content,omitempty"`
	Refusal   *string         `json:"refusal,omitempty"`
	ToolCalls []ChunkToolCall `json:"tool_calls,omitempty"`
}

// ChunkToolCall is a fragment of a tool call. Fragments for the same call
// share an Index; ID, Type and Function.Name arrive on the first one.
type ChunkToolCall struct {
	Index    int           `json:"index"`
	ID       string        `json:"id,omitempty"`
	Type     string        `json:"type,omitempty"`
	Function ChunkFunction `json:"function"`
}

// ChunkFunction is a fragment of a function call. Arguments is a piece of a
// JSON document.
type ChunkFunction struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// Usage is the token accounting of a completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Text concatenates the content fragments of every choice in the chunk.
func (c *ChatCompletionChunk) Text() string {
	var text string
	for _, choice := range c.Choices {
		if choice.Delta.Content != nil {
			text += *choice.Delta.Content
		}
	}
	return text
}
