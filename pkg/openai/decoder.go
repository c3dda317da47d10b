package openai

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/papercomputeco/chunkstream/pkg/sse"
)

// chunkSchema accepts any chunk whose known fields carry the right JSON
// types. Every field is optional and unknown fields are allowed, so new API
// fields never break decoding.
const chunkSchema = `{
  "type": "object",
  "properties": {
    "id": {"type": "string"},
    "object": {"type": "string"},
    "created": {"type": "integer"},
    "model": {"type": "string"},
    "system_fingerprint": {"type": ["string", "null"]},
    "choices": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "index": {"type": "integer"},
          "finish_reason": {"type": ["string", "null"]},
          "delta": {
            "type": "object",
            "properties": {
              "role": {"type": ["string", "null"]},
              "content": {"type": ["string", "null"]},
              "refusal": {"type": ["string", "null"]},
              "tool_calls": {
                "type": ["array", "null"],
                "items": {
                  "type": "object",
                  "properties": {
                    "index": {"type": "integer"},
                    "id": {"type": ["string", "null"]},
                    "type": {"type": ["string", "null"]},
                    "function": {
                      "type": "object",
                      "properties": {
                        "name": {"type": ["string", "null"]},
                        "arguments": {"type": ["string", "null"]}
                      }
                    }
                  }
                }
              }
            }
          }
        }
      }
    },
    "usage": {
      "type": ["object", "null"],
      "properties": {
        "prompt_tokens": {"type": "integer"},
        "completion_tokens": {"type": "integer"},
        "total_tokens": {"type": "integer"}
      }
    }
  }
}`

const chunkSchemaURL = "chat_completion_chunk.json"

// ChunkDecoder decodes frame payloads into ChatCompletionChunk values. It
// implements sse.PayloadDecoder.
//
// The termination sentinel is reported as sse.ErrDone before any JSON
// parsing happens. Other payloads are parsed, checked against the chunk
// schema and then unmarshalled.
type ChunkDecoder struct {
	schema *jsonschema.Schema
}

var _ sse.PayloadDecoder[ChatCompletionChunk] = (*ChunkDecoder)(nil)

// NewChunkDecoder compiles the chunk schema and returns a decoder using it.
func NewChunkDecoder() (*ChunkDecoder, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(chunkSchemaURL, strings.NewReader(chunkSchema)); err != nil {
		return nil, fmt.Errorf("adding chunk schema: %w", err)
	}

	schema, err := c.Compile(chunkSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compiling chunk schema: %w", err)
	}

	return &ChunkDecoder{schema: schema}, nil
}

// Decode implements sse.PayloadDecoder.
func (d *ChunkDecoder) Decode(payload []byte) (ChatCompletionChunk, error) {
	var chunk ChatCompletionChunk
	if sse.IsDone(payload) {
		return chunk, sse.ErrDone
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return chunk, fmt.Errorf("parsing chunk: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return chunk, errors.New("parsing chunk: unexpected data after JSON value")
	}

	if err := d.schema.Validate(doc); err != nil {
		return chunk, fmt.Errorf("validating chunk: %w", err)
	}

	if err := json.Unmarshal(payload, &chunk); err != nil {
		return chunk, fmt.Errorf("decoding chunk: %w", err)
	}

	return chunk, nil
}
