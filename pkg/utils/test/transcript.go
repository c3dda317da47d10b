package testutils

import (
	"time"

	"github.com/papercomputeco/chunkstream/pkg/openai"
	"github.com/papercomputeco/chunkstream/pkg/transcript"
)

// NewTranscript returns a completed streaming transcript whose first choice
// says content, started at the given offset from a fixed instant.
func NewTranscript(content string, offset time.Duration) *transcript.Transcript {
	t := transcript.New("/v1/chat/completions", "test-model", true)
	t.StartedAt = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC).Add(offset)

	text := content
	t.Complete(&openai.ChatCompletion{
		ID:     "chatcmpl-test",
		Object: openai.ObjectChatCompletion,
		Model:  "test-model",
		Choices: []openai.Choice{{
			Message:      openai.ResponseMessage{Role: openai.RoleAssistant, Content: &text},
			FinishReason: openai.FinishReasonStop,
		}},
		Usage: &openai.Usage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3},
	})
	t.CompletedAt = t.StartedAt.Add(time.Second)
	t.ChunkCount = 3
	return t
}
