package mcp_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chunkstream/api/mcp"
	"github.com/papercomputeco/chunkstream/pkg/logger"
	"github.com/papercomputeco/chunkstream/pkg/openai"
	"github.com/papercomputeco/chunkstream/pkg/storage/inmemory"
	testutils "github.com/papercomputeco/chunkstream/pkg/utils/test"
)

const capture = "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"model\":\"gpt-4o\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"Hi\"}}]}\n\n" +
	"data: {oops}\n\n" +
	"data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"model\":\"gpt-4o\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\" there\"}}]}\n\n" +
	"data: [DONE]\n\n"

var _ = Describe("MCP Server", func() {
	var (
		server *mcp.Server
		driver *inmemory.Driver
	)

	BeforeEach(func() {
		driver = inmemory.NewDriver()

		var err error
		server, err = mcp.NewServer(mcp.Config{
			Driver: driver,
			Logger: logger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("NewServer", func() {
		It("returns an error when storage driver is nil", func() {
			_, err := mcp.NewServer(mcp.Config{Logger: logger.Nop()})
			Expect(err).To(MatchError(ContainSubstring("storage driver is required")))
		})

		It("returns an error when logger is nil", func() {
			_, err := mcp.NewServer(mcp.Config{Driver: driver})
			Expect(err).To(MatchError(ContainSubstring("logger is required")))
		})

		It("creates an empty server in noop mode", func() {
			noop, err := mcp.NewServer(mcp.Config{Noop: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(noop.Handler()).NotTo(BeNil())
		})

		It("returns an HTTP handler", func() {
			Expect(server.Handler()).NotTo(BeNil())
		})
	})

	Describe("tools", func() {
		var (
			ctx     context.Context
			session *sdkmcp.ClientSession
			httpSrv *httptest.Server
		)

		BeforeEach(func() {
			ctx = context.Background()
			httpSrv = httptest.NewServer(server.Handler())

			client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)

			var err error
			session, err = client.Connect(ctx, &sdkmcp.StreamableClientTransport{Endpoint: httpSrv.URL}, nil)
			Expect(err).NotTo(HaveOccurred())
		})

		AfterEach(func() {
			session.Close()
			httpSrv.Close()
		})

		callText := func(name string, args map[string]any) (*sdkmcp.CallToolResult, string) {
			res, err := session.CallTool(ctx, &sdkmcp.CallToolParams{Name: name, Arguments: args})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Content).NotTo(BeEmpty())

			text, ok := res.Content[0].(*sdkmcp.TextContent)
			Expect(ok).To(BeTrue())
			return res, text.Text
		}

		It("lists the tools", func() {
			res, err := session.ListTools(ctx, nil)
			Expect(err).NotTo(HaveOccurred())

			names := make([]string, 0, len(res.Tools))
			for _, t := range res.Tools {
				names = append(names, t.Name)
			}
			Expect(names).To(ConsistOf("decode_stream", "get_transcript", "list_transcripts"))
		})

		It("decodes a stream and reports where it stopped", func() {
			res, text := callText("decode_stream", map[string]any{"stream": capture})
			Expect(res.IsError).To(BeFalse())

			var out openai.StreamResult
			Expect(json.Unmarshal([]byte(text), &out)).To(Succeed())
			Expect(out.Chunks).To(HaveLen(1))
			Expect(out.Error).To(ContainSubstring("malformed"))
		})

		It("skips malformed frames on request", func() {
			_, text := callText("decode_stream", map[string]any{"stream": capture, "skip_malformed": true})

			var out openai.StreamResult
			Expect(json.Unmarshal([]byte(text), &out)).To(Succeed())
			Expect(out.Error).To(BeEmpty())
			Expect(out.Completion.Text()).To(Equal("Hi there"))
			Expect(out.Stats.Skipped).To(Equal(1))
		})

		It("fetches a stored transcript", func() {
			t := testutils.NewTranscript("stored answer", 0)
			Expect(driver.Put(ctx, t)).To(Succeed())

			res, text := callText("get_transcript", map[string]any{"id": t.ID.String()})
			Expect(res.IsError).To(BeFalse())
			Expect(text).To(ContainSubstring("stored answer"))
		})

		It("reports unknown and invalid transcript IDs as tool errors", func() {
			res, text := callText("get_transcript", map[string]any{"id": "6f1c1a4e-3c9b-4a53-9a43-3b4cb3f5d2a1"})
			Expect(res.IsError).To(BeTrue())
			Expect(text).To(ContainSubstring("not found"))

			res, text = callText("get_transcript", map[string]any{"id": "nope"})
			Expect(res.IsError).To(BeTrue())
			Expect(text).To(ContainSubstring("Invalid transcript ID"))
		})

		It("lists recent transcripts", func() {
			Expect(driver.Put(ctx, testutils.NewTranscript("older", 0))).To(Succeed())
			Expect(driver.Put(ctx, testutils.NewTranscript("newer", time.Minute))).To(Succeed())

			_, text := callText("list_transcripts", map[string]any{"limit": 1})

			var out mcp.ListTranscriptsOutput
			Expect(json.Unmarshal([]byte(text), &out)).To(Succeed())
			Expect(out.Count).To(Equal(1))
			Expect(out.Transcripts[0].Content).To(Equal("newer"))
		})
	})
})
