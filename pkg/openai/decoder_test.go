package openai_test

import (
	"context"
	"errors"
	"io"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chunkstream/pkg/openai"
	"github.com/papercomputeco/chunkstream/pkg/sse"
)

var _ = Describe("ChunkDecoder", func() {
	var dec *openai.ChunkDecoder

	BeforeEach(func() {
		var err error
		dec, err = openai.NewChunkDecoder()
		Expect(err).NotTo(HaveOccurred())
	})

	It("decodes a content chunk", func() {
		chunk, err := dec.Decode([]byte(`{"id":"chatcmpl-1","object":"chat.completion.chunk","created":1700000000,"model":"gpt-4o","choices":[{"index":0,"delta":{"role":"assistant","content":"Hi"},"finish_reason":null}]}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(chunk.ID).To(Equal("chatcmpl-1"))
		Expect(chunk.Object).To(Equal(openai.ObjectChatCompletionChunk))
		Expect(chunk.Created).To(Equal(int64(1700000000)))
		Expect(chunk.Choices).To(HaveLen(1))
		Expect(chunk.Choices[0].Delta.Role).To(Equal("assistant"))
		Expect(*chunk.Choices[0].Delta.Content).To(Equal("Hi"))
		Expect(chunk.Choices[0].FinishReason).To(BeNil())
		Expect(chunk.Text()).To(Equal("Hi"))
	})

	It("decodes a finish reason and a usage chunk", func() {
		chunk, err := dec.Decode([]byte(`{"id":"c","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(*chunk.Choices[0].FinishReason).To(Equal(openai.FinishReasonStop))

		chunk, err = dec.Decode([]byte(`{"id":"c","choices":[],"usage":{"prompt_tokens":3,"completion_tokens":5,"total_tokens":8}}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(chunk.Usage).To(Equal(&openai.Usage{PromptTokens: 3, CompletionTokens: 5, TotalTokens: 8}))
	})

	It("decodes tool call fragments", func() {
		chunk, err := dec.Decode([]byte(`{"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"lookup","arguments":"{\"q\""}}]}}]}`))
		Expect(err).NotTo(HaveOccurred())
		tc := chunk.Choices[0].Delta.ToolCalls[0]
		Expect(tc.ID).To(Equal("call_1"))
		Expect(tc.Function.Name).To(Equal("lookup"))
		Expect(tc.Function.Arguments).To(Equal(`{"q"`))
	})

	It("accepts unknown fields", func() {
		_, err := dec.Decode([]byte(`{"id":"c","service_tier":"default","choices":[{"index":0,"delta":{"content":"x"},"logprobs":null}]}`))
		Expect(err).NotTo(HaveOccurred())
	})

	It("returns ErrDone for the sentinel without parsing", func() {
		_, err := dec.Decode([]byte("[DONE]"))
		Expect(err).To(MatchError(sse.ErrDone))
	})

	DescribeTable("rejects malformed payloads",
		func(payload string) {
			_, err := dec.Decode([]byte(payload))
			Expect(err).To(HaveOccurred())
			Expect(errors.Is(err, sse.ErrDone)).To(BeFalse())
		},
		Entry("invalid json", `{bad json}`),
		Entry("empty payload", ``),
		Entry("not an object", `[1,2]`),
		Entry("wrong field type", `{"id":42}`),
		Entry("fractional index", `{"choices":[{"index":0.5,"delta":{}}]}`),
		Entry("string content as number", `{"choices":[{"index":0,"delta":{"content":7}}]}`),
		Entry("trailing data", `{"id":"a"} {"id":"b"}`),
		Entry("sentinel with extra text", `[DONE] `),
	)

	It("drives an sse.Decoder over a chunked stream", func() {
		stream := "data: {\"id\":\"1\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"Hel\"}}]}\n\n" +
			"data: {\"id\":\"1\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"lo\"}}]}\n\n" +
			"data: [DONE]\n\n"

		d := sse.NewDecoder[openai.ChatCompletionChunk](sse.Chunks([]byte(stream[:40]), []byte(stream[40:])), dec)
		var text string
		for {
			chunk, err := d.Next(context.Background())
			if errors.Is(err, io.EOF) {
				break
			}
			Expect(err).NotTo(HaveOccurred())
			text += chunk.Text()
		}
		Expect(text).To(Equal("Hello"))
	})

	It("keeps compiled schemas independent between decoders", func() {
		other, err := openai.NewChunkDecoder()
		Expect(err).NotTo(HaveOccurred())
		Expect(other).NotTo(BeIdenticalTo(dec))

		_, err = other.Decode([]byte(`{"id":"x"}`))
		Expect(err).NotTo(HaveOccurred())
	})
})
