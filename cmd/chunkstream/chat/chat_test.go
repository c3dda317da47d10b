package chatcmder_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	chatcmder "github.com/papercomputeco/chunkstream/cmd/chunkstream/chat"
	"github.com/papercomputeco/chunkstream/pkg/dotdir"
	"github.com/papercomputeco/chunkstream/pkg/openai"
)

func chunkEvent(content string) string {
	return fmt.Sprintf(`data: {"id":"c1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"content":%q},"finish_reason":null}]}`+"\n\n", content)
}

const usageEvent = `data: {"id":"c1","object":"chat.completion.chunk","created":1,"model":"m","choices":[],"usage":{"prompt_tokens":5,"completion_tokens":2,"total_tokens":7}}` + "\n\n"

var _ = Describe("chat command", func() {
	var (
		server    *httptest.Server
		configDir string
		mu        sync.Mutex
		requests  []openai.ChatRequest
	)

	BeforeEach(func() {
		configDir = GinkgoT().TempDir()
		requests = nil
		GinkgoT().Setenv("OPENAI_API_KEY", "sk-test")

		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			Expect(r.URL.Path).To(Equal("/v1/chat/completions"))
			Expect(r.Header.Get("Authorization")).To(Equal("Bearer sk-test"))

			body, err := io.ReadAll(r.Body)
			Expect(err).NotTo(HaveOccurred())
			var req openai.ChatRequest
			Expect(json.Unmarshal(body, &req)).To(Succeed())

			mu.Lock()
			requests = append(requests, req)
			mu.Unlock()

			w.Header().Set("Content-Type", "text/event-stream")
			_, _ = io.WriteString(w, chunkEvent("Hello"))
			_, _ = io.WriteString(w, chunkEvent(" there"))
			if req.StreamOptions != nil && req.StreamOptions.IncludeUsage {
				_, _ = io.WriteString(w, usageEvent)
			}
			_, _ = io.WriteString(w, "data: [DONE]\n\n")
		}))
		DeferCleanup(server.Close)
	})

	run := func(stdin string, args ...string) (string, string, error) {
		cmd := chatcmder.NewChatCmd()
		cmd.PersistentFlags().String("config-dir", configDir, "")
		cmd.PersistentFlags().Bool("debug", false, "")

		out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
		cmd.SetOut(out)
		cmd.SetErr(errOut)
		cmd.SetIn(strings.NewReader(stdin))
		cmd.SetArgs(append([]string{"--base-url", server.URL + "/v1", "--model", "test-model"}, args...))

		err := cmd.Execute()
		return out.String(), errOut.String(), err
	}

	It("streams a one-shot prompt", func() {
		out, _, err := run("", "say", "hi")
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("Hello there"))

		Expect(requests).To(HaveLen(1))
		Expect(requests[0].Model).To(Equal("test-model"))
		Expect(requests[0].Stream).To(BeTrue())
		Expect(requests[0].Messages).To(HaveLen(1))
		Expect(*requests[0].Messages[0].Content).To(Equal("say hi"))
	})

	It("sends the system message first", func() {
		_, _, err := run("", "--system", "be brief", "hi")
		Expect(err).NotTo(HaveOccurred())

		Expect(requests[0].Messages).To(HaveLen(2))
		Expect(requests[0].Messages[0].Role).To(Equal(openai.RoleSystem))
	})

	It("prints token usage when asked", func() {
		_, errOut, err := run("", "--usage", "hi")
		Expect(err).NotTo(HaveOccurred())
		Expect(errOut).To(ContainSubstring("5 prompt, 2 completion, 7 total"))
	})

	It("saves the conversation and resumes it", func() {
		_, _, err := run("", "first")
		Expect(err).NotTo(HaveOccurred())

		session, err := dotdir.NewManager().LoadSession(configDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(session).NotTo(BeNil())
		Expect(session.Messages).To(HaveLen(2))
		Expect(*session.Messages[1].Content).To(Equal("Hello there"))

		_, _, err = run("", "--resume", "second")
		Expect(err).NotTo(HaveOccurred())
		Expect(requests[1].Messages).To(HaveLen(3))
		Expect(*requests[1].Messages[2].Content).To(Equal("second"))
	})

	It("runs an interactive session until /exit", func() {
		out, _, err := run("one\n\ntwo\n/exit\nignored\n")
		Expect(err).NotTo(HaveOccurred())
		Expect(strings.Count(out, "Hello there")).To(Equal(2))

		Expect(requests).To(HaveLen(2))
		Expect(requests[1].Messages).To(HaveLen(3))
	})

	It("forgets the conversation on /reset", func() {
		_, _, err := run("one\n/reset\ntwo\n")
		Expect(err).NotTo(HaveOccurred())

		Expect(requests).To(HaveLen(2))
		Expect(requests[1].Messages).To(HaveLen(1))
	})

	It("requires an API key", func() {
		GinkgoT().Setenv("OPENAI_API_KEY", "")
		_, _, err := run("", "hi")
		Expect(err).To(MatchError(ContainSubstring("OPENAI_API_KEY")))
	})
})
