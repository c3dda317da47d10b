package proxy

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chunkstream/pkg/logger"
	"github.com/papercomputeco/chunkstream/pkg/openai"
	"github.com/papercomputeco/chunkstream/pkg/storage/inmemory"
	"github.com/papercomputeco/chunkstream/pkg/transcript"
	"github.com/papercomputeco/chunkstream/proxy/header"
)

var helloEvents = []string{
	"data: {\"id\":\"chatcmpl-1\",\"object\":\"chat.completion.chunk\",\"model\":\"gpt-4o\",\"choices\":[{\"index\":0,\"delta\":{\"role\":\"assistant\",\"content\":\"Hello\"}}]}\n\n",
	"data: {\"id\":\"chatcmpl-1\",\"object\":\"chat.completion.chunk\",\"model\":\"gpt-4o\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\" world\"}}]}\n\n",
	"data: {\"id\":\"chatcmpl-1\",\"object\":\"chat.completion.chunk\",\"model\":\"gpt-4o\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"!\"},\"finish_reason\":\"stop\"}]}\n\n",
	"data: [DONE]\n\n",
}

// newTestProxy creates a Proxy pointed at the given upstream URL, using an
// in-memory storage driver.
func newTestProxy(upstreamURL string, mutate ...func(*Config)) (*Proxy, *inmemory.Driver) {
	driver := inmemory.NewDriver()

	config := Config{
		ListenAddr:  ":0",
		UpstreamURL: upstreamURL,
	}
	for _, m := range mutate {
		m(&config)
	}

	p, err := New(config, driver, logger.Nop())
	Expect(err).NotTo(HaveOccurred())
	return p, driver
}

// sseUpstream serves events one flush at a time.
func sseUpstream(events ...string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer GinkgoRecover()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		flusher, ok := w.(http.Flusher)
		Expect(ok).To(BeTrue())

		for _, event := range events {
			fmt.Fprint(w, event)
			flusher.Flush()
		}
	}))
}

func chatRequestBody(stream bool) string {
	req := openai.NewChatRequest("gpt-4o", openai.UserMessage("Say hello"))
	req.Stream = stream
	body, err := json.Marshal(req)
	Expect(err).NotTo(HaveOccurred())
	return string(body)
}

func postChat(p *Proxy, body string, headers ...string) (*http.Response, string) {
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := p.server.Test(req, -1)
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	return resp, string(respBody)
}

// storedTranscripts drains the worker pool and returns everything stored.
func storedTranscripts(p *Proxy, driver *inmemory.Driver) []*transcript.Transcript {
	Expect(p.Close()).To(Succeed())

	ts, err := driver.List(GinkgoT().Context(), 0)
	Expect(err).NotTo(HaveOccurred())
	return ts
}

var _ = Describe("SSE Streaming Proxy", func() {
	var (
		p        *Proxy
		driver   *inmemory.Driver
		upstream *httptest.Server
	)

	AfterEach(func() {
		if upstream != nil {
			upstream.Close()
			upstream = nil
		}
	})

	Context("when upstream returns a chat completion stream", func() {
		BeforeEach(func() {
			upstream = sseUpstream(helloEvents...)
			p, driver = newTestProxy(upstream.URL)
		})

		It("forwards the stream byte for byte", func() {
			resp, body := postChat(p, chatRequestBody(true))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(HavePrefix("text/event-stream"))
			Expect(body).To(Equal(strings.Join(helloEvents, "")))
			Expect(p.Close()).To(Succeed())
		})

		It("returns the transcript ID header", func() {
			resp, _ := postChat(p, chatRequestBody(true))
			id := resp.Header.Get(header.TranscriptIDHeader)
			Expect(id).NotTo(BeEmpty())

			ts := storedTranscripts(p, driver)
			Expect(ts).To(HaveLen(1))
			Expect(ts[0].ID.String()).To(Equal(id))
		})

		It("accumulates the stream into a transcript", func() {
			postChat(p, chatRequestBody(true))

			ts := storedTranscripts(p, driver)
			Expect(ts).To(HaveLen(1))

			t := ts[0]
			Expect(t.Streaming).To(BeTrue())
			Expect(t.Path).To(Equal("/v1/chat/completions"))
			Expect(t.Model).To(Equal("gpt-4o"))
			Expect(t.Content).To(Equal("Hello world!"))
			Expect(t.FinishReason).To(Equal(openai.FinishReasonStop))
			Expect(t.ChunkCount).To(Equal(3))
			Expect(t.SkippedFrames).To(BeZero())
			Expect(t.BytesReceived).To(BeNumerically("==", len(strings.Join(helloEvents, ""))))
			Expect(t.Failed()).To(BeFalse())
			Expect(string(t.Request)).To(ContainSubstring(`"Say hello"`))
		})

		It("does not record when the client opts out", func() {
			resp, body := postChat(p, chatRequestBody(true), header.RecordHeader, "false")
			Expect(resp.Header.Get(header.TranscriptIDHeader)).To(BeEmpty())
			Expect(body).To(Equal(strings.Join(helloEvents, "")))

			Expect(storedTranscripts(p, driver)).To(BeEmpty())
		})
	})

	Context("when the stream carries comments and malformed frames", func() {
		var events []string

		BeforeEach(func() {
			events = []string{
				": keep-alive\n\n",
				helloEvents[0],
				"data: {not json}\n\n",
				helloEvents[1],
				helloEvents[2],
				helloEvents[3],
			}
			upstream = sseUpstream(events...)
			p, driver = newTestProxy(upstream.URL)
		})

		It("forwards everything verbatim and skips the bad frame", func() {
			_, body := postChat(p, chatRequestBody(true))
			Expect(body).To(Equal(strings.Join(events, "")))

			ts := storedTranscripts(p, driver)
			Expect(ts).To(HaveLen(1))
			Expect(ts[0].Content).To(Equal("Hello world!"))
			Expect(ts[0].ChunkCount).To(Equal(3))
			Expect(ts[0].SkippedFrames).To(Equal(1))
			Expect(ts[0].Failed()).To(BeFalse())
		})
	})

	Context("when the upstream sends bytes after the termination frame", func() {
		var events []string

		BeforeEach(func() {
			events = append(append([]string{}, helloEvents...), "data: {\"late\":true}\n\n")
			upstream = sseUpstream(events...)
			p, driver = newTestProxy(upstream.URL)
		})

		It("still forwards them to the client", func() {
			_, body := postChat(p, chatRequestBody(true))
			Expect(body).To(Equal(strings.Join(events, "")))

			ts := storedTranscripts(p, driver)
			Expect(ts).To(HaveLen(1))
			Expect(ts[0].Content).To(Equal("Hello world!"))
		})
	})

	Context("when the stream ends inside a frame", func() {
		var events []string

		BeforeEach(func() {
			events = []string{helloEvents[0], "data: {\"id\":\"chatcmpl-1\""}
			upstream = sseUpstream(events...)
		})

		It("records the partial stream as complete by default", func() {
			p, driver = newTestProxy(upstream.URL)

			_, body := postChat(p, chatRequestBody(true))
			Expect(body).To(Equal(strings.Join(events, "")))

			ts := storedTranscripts(p, driver)
			Expect(ts).To(HaveLen(1))
			Expect(ts[0].Content).To(Equal("Hello"))
			Expect(ts[0].Failed()).To(BeFalse())
		})

		It("records a failure with strict trailing enabled", func() {
			p, driver = newTestProxy(upstream.URL, func(c *Config) { c.StrictTrailing = true })

			_, body := postChat(p, chatRequestBody(true))
			Expect(body).To(Equal(strings.Join(events, "")))

			ts := storedTranscripts(p, driver)
			Expect(ts).To(HaveLen(1))
			Expect(ts[0].Content).To(Equal("Hello"))
			Expect(ts[0].Error).To(ContainSubstring("unterminated"))
		})
	})

	Context("when a frame outgrows the buffer limit", func() {
		var events []string

		BeforeEach(func() {
			events = []string{
				helloEvents[0],
				"data: " + strings.Repeat("x", 256),
				strings.Repeat("y", 256),
			}
			upstream = sseUpstream(events...)
			p, driver = newTestProxy(upstream.URL, func(c *Config) { c.MaxBufferSize = 64 })
		})

		It("keeps forwarding and records the failure", func() {
			_, body := postChat(p, chatRequestBody(true))
			Expect(body).To(Equal(strings.Join(events, "")))

			ts := storedTranscripts(p, driver)
			Expect(ts).To(HaveLen(1))
			Expect(ts[0].Content).To(Equal("Hello"))
			Expect(ts[0].Failed()).To(BeTrue())
		})
	})

	Context("when the upstream rejects a streaming request", func() {
		BeforeEach(func() {
			upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				fmt.Fprint(w, `{"error":{"message":"slow down","type":"rate_limit_exceeded"}}`)
			}))
			p, driver = newTestProxy(upstream.URL)
		})

		It("passes the error through and records it", func() {
			resp, body := postChat(p, chatRequestBody(true))
			Expect(resp.StatusCode).To(Equal(http.StatusTooManyRequests))
			Expect(body).To(ContainSubstring("slow down"))

			ts := storedTranscripts(p, driver)
			Expect(ts).To(HaveLen(1))
			Expect(ts[0].Error).To(ContainSubstring("slow down"))
		})
	})
})

var _ = Describe("Non-streaming Proxy", func() {
	var (
		p        *Proxy
		driver   *inmemory.Driver
		upstream *httptest.Server
		lastPath string
	)

	BeforeEach(func() {
		upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lastPath = r.URL.RequestURI()
			w.Header().Set("Content-Type", "application/json")

			if r.URL.Path == "/v1/models" {
				fmt.Fprint(w, `{"object":"list","data":[{"id":"gpt-4o","object":"model"}]}`)
				return
			}

			fmt.Fprint(w, `{
				"id":"chatcmpl-2","object":"chat.completion","model":"gpt-4o",
				"choices":[{"index":0,"message":{"role":"assistant","content":"Hi there"},"finish_reason":"stop"}],
				"usage":{"prompt_tokens":5,"completion_tokens":2,"total_tokens":7}
			}`)
		}))
		p, driver = newTestProxy(upstream.URL)
	})

	AfterEach(func() {
		upstream.Close()
	})

	It("records the completion", func() {
		resp, body := postChat(p, chatRequestBody(false))
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(body).To(ContainSubstring("Hi there"))
		Expect(resp.Header.Get(header.TranscriptIDHeader)).NotTo(BeEmpty())

		ts := storedTranscripts(p, driver)
		Expect(ts).To(HaveLen(1))
		Expect(ts[0].Streaming).To(BeFalse())
		Expect(ts[0].Content).To(Equal("Hi there"))
		Expect(ts[0].Usage).To(Equal(&openai.Usage{PromptTokens: 5, CompletionTokens: 2, TotalTokens: 7}))
	})

	It("forwards other endpoints without recording", func() {
		req := httptest.NewRequest(http.MethodGet, "/v1/models?limit=1", nil)
		resp, err := p.server.Test(req, -1)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(lastPath).To(Equal("/v1/models?limit=1"))
		Expect(resp.Header.Get(header.TranscriptIDHeader)).To(BeEmpty())

		Expect(storedTranscripts(p, driver)).To(BeEmpty())
	})

	It("requires an upstream URL", func() {
		_, err := New(Config{}, driver, logger.Nop())
		Expect(err).To(HaveOccurred())
		Expect(p.Close()).To(Succeed())
	})
})
