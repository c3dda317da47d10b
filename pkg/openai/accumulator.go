package openai

import (
	"slices"
	"strings"
)

// Accumulator folds the chunks of one stream into the ChatCompletion a
// non-streaming request would have returned.
//
// Content fragments are concatenated per choice index. Tool call fragments
// are merged by their own index within the choice. The last finish reason
// seen for a choice wins, as does the last usage block.
type Accumulator struct {
	id                string
	model             string
	created           int64
	systemFingerprint string
	usage             *Usage

	choices map[int]*choiceState
	chunks  int
}

type choiceState struct {
	role       string
	content    strings.Builder
	hasContent bool
	refusal    strings.Builder
	hasRefusal bool
	finish     FinishReason

	calls     []ToolCall
	callIndex map[int]int
}

// NewAccumulator returns an empty Accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{choices: map[int]*choiceState{}}
}

// Add folds one chunk into the accumulated completion.
func (a *Accumulator) Add(chunk ChatCompletionChunk) {
	a.chunks++

	if a.id == "" {
		a.id = chunk.ID
	}
	if a.model == "" {
		a.model = chunk.Model
	}
	if a.created == 0 {
		a.created = chunk.Created
	}
	if chunk.SystemFingerprint != "" {
		a.systemFingerprint = chunk.SystemFingerprint
	}
	if chunk.Usage != nil {
		u := *chunk.Usage
		a.usage = &u
	}

	for _, c := range chunk.Choices {
		st, ok := a.choices[c.Index]
		if !ok {
			st = &choiceState{callIndex: map[int]int{}}
			a.choices[c.Index] = st
		}
		st.add(c)
	}
}

func (st *choiceState) add(c ChunkChoice) {
	if c.Delta.Role != "" {
		st.role = c.Delta.Role
	}
	if c.Delta.Content != nil {
		st.content.WriteString(*c.Delta.Content)
		st.hasContent = true
	}
	if c.Delta.Refusal != nil {
		st.refusal.WriteString(*c.Delta.Refusal)
		st.hasRefusal = true
	}
	if c.FinishReason != nil {
		st.finish = *c.FinishReason
	}

	for _, tc := range c.Delta.ToolCalls {
		pos, ok := st.callIndex[tc.Index]
		if !ok {
			pos = len(st.calls)
			st.callIndex[tc.Index] = pos
			st.calls = append(st.calls, ToolCall{Type: "function"})
		}

		call := &st.calls[pos]
		if tc.ID != "" {
			call.ID = tc.ID
		}
		if tc.Type != "" {
			call.Type = tc.Type
		}
		call.Function.Name += tc.Function.Name
		call.Function.Arguments += tc.Function.Arguments
	}
}

// Chunks returns the number of chunks folded so far.
func (a *Accumulator) Chunks() int {
	return a.chunks
}

// Content returns the content accumulated so far for the choice at index.
func (a *Accumulator) Content(index int) string {
	st, ok := a.choices[index]
	if !ok {
		return ""
	}
	return st.content.String()
}

// Completion returns a snapshot of the accumulated completion. Choices are
// ordered by index.
func (a *Accumulator) Completion() *ChatCompletion {
	out := &ChatCompletion{
		ID:                a.id,
		Object:            ObjectChatCompletion,
		Created:           a.created,
		Model:             a.model,
		SystemFingerprint: a.systemFingerprint,
		Choices:           make([]Choice, 0, len(a.choices)),
	}
	if a.usage != nil {
		u := *a.usage
		out.Usage = &u
	}

	indices := make([]int, 0, len(a.choices))
	for i := range a.choices {
		indices = append(indices, i)
	}
	slices.Sort(indices)

	for _, i := range indices {
		st := a.choices[i]
		msg := ResponseMessage{Role: st.role}
		if msg.Role == "" {
			msg.Role = RoleAssistant
		}
		if st.hasContent {
			content := st.content.String()
			msg.Content = &content
		}
		if st.hasRefusal {
			refusal := st.refusal.String()
			msg.Refusal = &refusal
		}
		if len(st.calls) > 0 {
			msg.ToolCalls = slices.Clone(st.calls)
		}

		out.Choices = append(out.Choices, Choice{
			Index:        i,
			Message:      msg,
			FinishReason: st.finish,
		})
	}

	return out
}
