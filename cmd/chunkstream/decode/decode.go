// Package decodecmder provides the decode command for replaying captured
// chat completion streams through the decoder.
package decodecmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/chunkstream/pkg/config"
	"github.com/papercomputeco/chunkstream/pkg/logger"
	"github.com/papercomputeco/chunkstream/pkg/openai"
	"github.com/papercomputeco/chunkstream/pkg/sse"
)

const stdinName = "-"

type decodeCommander struct {
	output     string
	filter     string
	follow     bool
	accumulate bool
	debug      bool

	cfg    *config.Config
	out    io.Writer
	in     io.Reader
	logger *slog.Logger
}

var decodeFlags = []string{
	config.FlagSkipMalformed,
	config.FlagStrictTrailing,
	config.FlagMaxBuffer,
}

const decodeLongDesc string = `Decode captured chat completion streams.

Each input is a raw text/event-stream capture. Inputs may be file paths or
doublestar globs; with no input, or "-", the capture is read from stdin.

By default the content of every chunk is printed as it is decoded. Use
--output json or --output yaml to print whole chunks, and --accumulate to
print only the folded completion and decoder statistics of each capture.

--filter keeps only chunks for which the expression is true. The expression
sees the chunk's JSON fields, for example:
  choices[0].finish_reason == "stop"
  len(choices) == 0 && usage != nil

Examples:
  curl -sN ... | chunkstream decode
  chunkstream decode --output json 'captures/**/*.sse'
  chunkstream decode --accumulate --skip-malformed capture.sse
  chunkstream decode --follow capture.sse`

const decodeShortDesc string = "Decode captured chat completion streams"

func NewDecodeCmd() *cobra.Command {
	cmder := &decodeCommander{}

	cmd := &cobra.Command{
		Use:   "decode [capture|glob ...]",
		Short: decodeShortDesc,
		Long:  decodeLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, config.Flags, decodeFlags)
			cmder.cfg = config.FromViper(v)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			cmder.out = cmd.OutOrStdout()
			cmder.in = cmd.InOrStdin()
			cmder.logger = logger.New(
				logger.WithPretty(true),
				logger.WithDebug(cmder.debug),
				logger.WithWriter(cmd.ErrOrStderr()),
			)

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return cmder.run(ctx, args)
		},
	}

	cmd.Flags().StringVarP(&cmder.output, "output", "o", outputText, "Output format (text, json, yaml)")
	cmd.Flags().StringVarP(&cmder.filter, "filter", "f", "", "Only print chunks matching this expression")
	cmd.Flags().BoolVar(&cmder.follow, "follow", false, "Keep reading a capture that is still being written")
	cmd.Flags().BoolVar(&cmder.accumulate, "accumulate", false, "Print the folded completion instead of individual chunks")
	config.AddFlags(cmd, config.Flags, decodeFlags...)

	_ = cmd.RegisterFlagCompletionFunc("output", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return validOutputs(), cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func (c *decodeCommander) run(ctx context.Context, args []string) error {
	inputs, err := resolveInputs(args)
	if err != nil {
		return err
	}
	if c.follow && (len(inputs) != 1 || inputs[0] == stdinName) {
		return errors.New("--follow requires exactly one capture file")
	}

	filter, err := newChunkFilter(c.filter)
	if err != nil {
		return err
	}

	chunks, err := openai.NewChunkDecoder()
	if err != nil {
		return fmt.Errorf("creating chunk decoder: %w", err)
	}

	emit, err := newEmitter(c.output, c.out)
	if err != nil {
		return err
	}

	failed := 0
	for _, input := range inputs {
		if err := c.decodeInput(ctx, input, chunks, filter, emit); err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			failed++
			c.logger.Error("decoding capture failed", "capture", input, "error", err)
		}
	}

	if err := emit.Close(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d captures failed to decode", failed, len(inputs))
	}
	return nil
}

func (c *decodeCommander) decodeInput(ctx context.Context, input string, chunks *openai.ChunkDecoder, filter *chunkFilter, emit emitter) error {
	src, closeSrc, err := c.openSource(input)
	if err != nil {
		return err
	}
	defer closeSrc()

	d := sse.NewDecoder[openai.ChatCompletionChunk](src, chunks, c.decoderOptions()...)
	acc := openai.NewAccumulator()

	var decodeErr error
	for chunk, err := range d.All(ctx) {
		if err != nil {
			decodeErr = err
			break
		}
		acc.Add(chunk)

		if c.accumulate {
			continue
		}
		ok, err := filter.Match(chunk)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := emit.Chunk(chunk); err != nil {
			return err
		}
	}

	// Interrupting --follow ends the capture cleanly.
	if c.follow && errors.Is(decodeErr, context.Canceled) {
		decodeErr = nil
	}

	stats := d.Stats()
	c.logger.Debug("capture decoded",
		"capture", input,
		"frames", stats.Frames,
		"skipped", stats.Skipped,
		"bytes_received", stats.BytesReceived,
	)

	if c.accumulate {
		s := summary{
			Source:     input,
			Completion: acc.Completion(),
			Stats:      stats,
		}
		if decodeErr != nil {
			s.Error = decodeErr.Error()
		}
		if err := emit.Summary(s); err != nil {
			return err
		}
	}

	return decodeErr
}

func (c *decodeCommander) decoderOptions() []sse.Option {
	opts := []sse.Option{sse.WithLogger(c.logger)}
	if c.cfg.Decoder.SkipMalformed {
		opts = append(opts, sse.WithMalformedPolicy(sse.SkipMalformed))
	}
	if c.cfg.Decoder.StrictTrailing {
		opts = append(opts, sse.WithTrailingPolicy(sse.TrailingError))
	}
	if c.cfg.Decoder.MaxBuffer > 0 {
		opts = append(opts, sse.WithMaxBufferSize(c.cfg.Decoder.MaxBuffer))
	}
	return opts
}

func (c *decodeCommander) openSource(input string) (sse.Source, func(), error) {
	if input == stdinName {
		return sse.NewReaderSource(c.in, 0), func() {}, nil
	}

	if c.follow {
		src, err := newFollowSource(input)
		if err != nil {
			return nil, nil, err
		}
		return src, func() { _ = src.Close() }, nil
	}

	f, err := os.Open(input)
	if err != nil {
		return nil, nil, fmt.Errorf("opening capture: %w", err)
	}
	return sse.NewReaderSource(f, 0), func() { _ = f.Close() }, nil
}

// resolveInputs expands glob arguments into a sorted, de-duplicated list of
// captures. Plain paths are kept even when they do not exist so the open
// error names them.
func resolveInputs(args []string) ([]string, error) {
	if len(args) == 0 {
		return []string{stdinName}, nil
	}

	var inputs []string
	for _, arg := range args {
		if arg == stdinName {
			inputs = append(inputs, stdinName)
			continue
		}

		if !doublestar.ValidatePathPattern(arg) {
			return nil, fmt.Errorf("invalid capture pattern: %q", arg)
		}

		hits, err := doublestar.FilepathGlob(arg, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("expanding %q: %w", arg, err)
		}
		if len(hits) == 0 {
			if isGlob(arg) {
				return nil, fmt.Errorf("no captures match %q", arg)
			}
			hits = []string{arg}
		}

		slices.Sort(hits)
		inputs = append(inputs, hits...)
	}

	return slices.Compact(inputs), nil
}

func isGlob(pattern string) bool {
	return pattern != doublestar.EscapeMeta(pattern)
}
