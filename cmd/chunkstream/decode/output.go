package decodecmder

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/papercomputeco/chunkstream/pkg/openai"
	"github.com/papercomputeco/chunkstream/pkg/sse"
)

const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

func validOutputs() []string {
	return []string{outputText, outputJSON, outputYAML}
}

// summary is what --accumulate prints for one capture.
type summary struct {
	Source     string                 `json:"source"`
	Completion *openai.ChatCompletion `json:"completion"`
	Stats      sse.Stats              `json:"stats"`
	Error      string                 `json:"error,omitempty"`
}

// emitter renders decoded chunks and capture summaries in one output format.
type emitter interface {
	Chunk(chunk openai.ChatCompletionChunk) error
	Summary(s summary) error
	Close() error
}

func newEmitter(format string, w io.Writer) (emitter, error) {
	switch format {
	case outputText, "":
		return &textEmitter{w: w}, nil
	case outputJSON:
		return &jsonEmitter{enc: json.NewEncoder(w)}, nil
	case outputYAML:
		return &yamlEmitter{enc: yaml.NewEncoder(w)}, nil
	default:
		return nil, fmt.Errorf("unknown output format: %q (available: text, json, yaml)", format)
	}
}

// textEmitter prints the content fragments as they arrive.
type textEmitter struct {
	w       io.Writer
	pending bool
}

func (e *textEmitter) Chunk(chunk openai.ChatCompletionChunk) error {
	text := chunk.Text()
	if text == "" {
		return nil
	}
	e.pending = true
	_, err := io.WriteString(e.w, text)
	return err
}

func (e *textEmitter) Summary(s summary) error {
	if err := e.Close(); err != nil {
		return err
	}

	if s.Completion != nil {
		if _, err := fmt.Fprintln(e.w, s.Completion.Text()); err != nil {
			return err
		}
	}
	return nil
}

func (e *textEmitter) Close() error {
	if !e.pending {
		return nil
	}
	e.pending = false
	_, err := fmt.Fprintln(e.w)
	return err
}

// jsonEmitter writes one JSON document per line.
type jsonEmitter struct {
	enc *json.Encoder
}

func (e *jsonEmitter) Chunk(chunk openai.ChatCompletionChunk) error {
	return e.enc.Encode(chunk)
}

func (e *jsonEmitter) Summary(s summary) error {
	return e.enc.Encode(s)
}

func (e *jsonEmitter) Close() error {
	return nil
}

// yamlEmitter writes a YAML document per value, keyed by the JSON field
// names.
type yamlEmitter struct {
	enc *yaml.Encoder
}

func (e *yamlEmitter) Chunk(chunk openai.ChatCompletionChunk) error {
	return e.encode(chunk)
}

func (e *yamlEmitter) Summary(s summary) error {
	return e.encode(s)
}

func (e *yamlEmitter) encode(v any) error {
	m, err := toMap(v)
	if err != nil {
		return err
	}
	return e.enc.Encode(m)
}

func (e *yamlEmitter) Close() error {
	return e.enc.Close()
}
