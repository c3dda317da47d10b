// Package chatcmder provides the chat command for streaming chat completions
// from the terminal.
package chatcmder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/chunkstream/pkg/client"
	"github.com/papercomputeco/chunkstream/pkg/cliui"
	"github.com/papercomputeco/chunkstream/pkg/config"
	"github.com/papercomputeco/chunkstream/pkg/dotdir"
	"github.com/papercomputeco/chunkstream/pkg/logger"
	"github.com/papercomputeco/chunkstream/pkg/openai"
	"github.com/papercomputeco/chunkstream/pkg/sse"
)

var (
	userPrompt      = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true).Render("you> ")
	assistantPrompt = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Render("assistant> ")
)

type chatCommander struct {
	system   string
	usage    bool
	markdown bool
	resume   bool
	debug    bool

	configDir string
	cfg       *config.Config
	client    *client.Client
	sessions  *dotdir.Manager
	messages  []openai.Message

	in     io.Reader
	out    io.Writer
	errOut io.Writer
	logger *slog.Logger
}

var chatFlags = []string{
	config.FlagBaseURL,
	config.FlagModel,
	config.FlagTimeout,
	config.FlagSkipMalformed,
	config.FlagMaxBuffer,
}

const chatLongDesc string = `Stream chat completions from an OpenAI compatible API.

By default requests go to the chunkstream proxy, which records every exchange.
Point --base-url at any other chat completions API root to bypass it. The API
key is read from OPENAI_API_KEY.

With a prompt argument a single completion is streamed and the command exits.
Without one an interactive session starts: type a message and press Enter,
/reset to forget the conversation, and /exit or Ctrl+D to quit.

The conversation is saved to the .chunkstream/ directory after every turn.
Use --resume to continue it.

Examples:
  chunkstream chat "Write a haiku about streams"
  chunkstream chat --model gpt-4o --system "Answer tersely"
  chunkstream chat --resume
  chunkstream chat --base-url http://localhost:11434/v1 --model llama3.2`

const chatShortDesc string = "Stream chat completions from the terminal"

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat [prompt]",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, config.Flags, chatFlags)
			cmder.cfg = config.FromViper(v)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			cmder.in = cmd.InOrStdin()
			cmder.out = cmd.OutOrStdout()
			cmder.errOut = cmd.ErrOrStderr()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return cmder.run(ctx, strings.Join(args, " "))
		},
	}

	cmd.Flags().StringVar(&cmder.system, "system", "", "System message for a new conversation")
	cmd.Flags().BoolVar(&cmder.usage, "usage", false, "Print token usage after each response")
	cmd.Flags().BoolVar(&cmder.markdown, "markdown", false, "Render responses as markdown when stdout is a terminal")
	cmd.Flags().BoolVarP(&cmder.resume, "resume", "r", false, "Continue the saved conversation")
	config.AddFlags(cmd, config.Flags, chatFlags...)

	return cmd
}

func (c *chatCommander) run(ctx context.Context, prompt string) error {
	c.logger = logger.New(
		logger.WithPretty(true),
		logger.WithDebug(c.debug),
		logger.WithWriter(c.errOut),
	)
	c.sessions = dotdir.NewManager()

	decoderOpts := []sse.Option{}
	if c.cfg.Decoder.SkipMalformed {
		decoderOpts = append(decoderOpts, sse.WithMalformedPolicy(sse.SkipMalformed))
	}
	if c.cfg.Decoder.MaxBuffer > 0 {
		decoderOpts = append(decoderOpts, sse.WithMaxBufferSize(c.cfg.Decoder.MaxBuffer))
	}

	var err error
	c.client, err = client.New(
		client.WithBaseURL(c.cfg.Client.BaseURL),
		client.WithTimeout(c.cfg.ClientTimeout()),
		client.WithLogger(c.logger),
		client.WithDecoderOptions(decoderOpts...),
	)
	if err != nil {
		if errors.Is(err, client.ErrAPIKeyNotSet) {
			return fmt.Errorf("%w: export %s", err, client.APIKeyEnv)
		}
		return fmt.Errorf("creating client: %w", err)
	}

	if err := c.loadHistory(); err != nil {
		return err
	}

	if prompt != "" {
		return c.turn(ctx, prompt)
	}
	return c.interactive(ctx)
}

// loadHistory seeds the conversation from the saved session or the system
// message.
func (c *chatCommander) loadHistory() error {
	if c.resume {
		session, err := c.sessions.LoadSession(c.configDir)
		if err != nil {
			return fmt.Errorf("loading session: %w", err)
		}
		if session != nil {
			c.messages = session.Messages
			fmt.Fprintf(c.errOut, "  %s Resuming conversation %s\n",
				cliui.SuccessMark,
				cliui.DimStyle.Render(fmt.Sprintf("(%d messages)", len(c.messages))),
			)
			return nil
		}
	}

	c.messages = nil
	if c.system != "" {
		c.messages = append(c.messages, openai.SystemMessage(c.system))
	}
	return nil
}

func (c *chatCommander) interactive(ctx context.Context) error {
	fmt.Fprintf(c.errOut, "\n  %s %s\n", cliui.KeyStyle.Render("Model:"), cliui.NameStyle.Render(c.cfg.Client.Model))
	fmt.Fprintf(c.errOut, "  %s %s\n\n", cliui.KeyStyle.Render("API:"), cliui.DimStyle.Render(c.client.BaseURL()))
	fmt.Fprintf(c.errOut, "  %s\n\n", cliui.DimStyle.Render("Type your message and press Enter. /reset to start over, /exit or Ctrl+D to quit."))

	scanner := bufio.NewScanner(c.in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for {
		fmt.Fprint(c.out, userPrompt)
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		switch input {
		case "":
			continue
		case "/exit":
			return nil
		case "/reset":
			c.resume = false
			if err := c.sessions.ClearSession(c.configDir); err != nil {
				return err
			}
			_ = c.loadHistory()
			fmt.Fprintf(c.errOut, "  %s New conversation\n\n", cliui.SuccessMark)
			continue
		}

		if err := c.turn(ctx, input); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(c.errOut, "  %s %v\n\n", cliui.FailMark, err)
			continue
		}
		fmt.Fprintln(c.out)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	fmt.Fprintln(c.out)
	return nil
}

// turn sends prompt with the conversation so far, prints the streamed
// response and appends both to the saved session. A failed turn leaves the
// conversation unchanged.
func (c *chatCommander) turn(ctx context.Context, prompt string) error {
	messages := append(c.messages, openai.UserMessage(prompt))
	req := openai.NewChatRequest(c.cfg.Client.Model, messages...)

	c.logger.Debug("sending chat request",
		"base_url", c.client.BaseURL(),
		"model", c.cfg.Client.Model,
		"message_count", len(messages),
	)

	var (
		completion *openai.ChatCompletion
		err        error
	)
	if c.renderMarkdown() {
		err = cliui.Step(c.errOut, "Thinking", func() error {
			completion, err = c.stream(ctx, req, io.Discard)
			return err
		})
		if err == nil {
			rendered, _ := cliui.RenderMarkdown(completion.Text())
			fmt.Fprint(c.out, rendered)
		}
	} else {
		fmt.Fprint(c.out, assistantPrompt)
		completion, err = c.stream(ctx, req, c.out)
		fmt.Fprintln(c.out)
	}
	if err != nil {
		return err
	}

	if c.usage && completion.Usage != nil {
		fmt.Fprintf(c.errOut, "  %s\n", cliui.DimStyle.Render(fmt.Sprintf(
			"tokens: %d prompt, %d completion, %d total",
			completion.Usage.PromptTokens,
			completion.Usage.CompletionTokens,
			completion.Usage.TotalTokens,
		)))
	}

	c.messages = append(messages, openai.AssistantMessage(completion.Text()))
	return c.sessions.SaveSession(&dotdir.SessionState{
		Model:    c.cfg.Client.Model,
		Messages: c.messages,
	}, c.configDir)
}

// stream writes content fragments to w as they arrive and returns the
// folded completion.
func (c *chatCommander) stream(ctx context.Context, req *openai.ChatRequest, w io.Writer) (*openai.ChatCompletion, error) {
	stream, err := c.client.CreateChatCompletionStream(ctx, req, c.usage)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	acc := openai.NewAccumulator()
	for chunk, err := range stream.All(ctx) {
		if err != nil {
			return nil, err
		}
		acc.Add(chunk)
		if _, err := io.WriteString(w, chunk.Text()); err != nil {
			return nil, err
		}
	}

	stats := stream.Decoder().Stats()
	c.logger.Debug("chat stream finished",
		"frames", stats.Frames,
		"skipped", stats.Skipped,
		"bytes_received", stats.BytesReceived,
	)

	return acc.Completion(), nil
}

func (c *chatCommander) renderMarkdown() bool {
	if !c.markdown {
		return false
	}
	f, ok := c.out.(*os.File)
	return ok && cliui.IsTerminal(f)
}
