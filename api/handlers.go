package api

import (
	"bytes"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/papercomputeco/chunkstream/pkg/openai"
	"github.com/papercomputeco/chunkstream/pkg/sse"
	"github.com/papercomputeco/chunkstream/pkg/storage"
	"github.com/papercomputeco/chunkstream/pkg/transcript"
)

// ErrorResponse is the body of every error the API returns.
type ErrorResponse struct {
	Error string `json:"error"`
}

// TranscriptList is the response of the transcript listing.
type TranscriptList struct {
	Count       int                      `json:"count"`
	Transcripts []*transcript.Transcript `json:"transcripts"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleListTranscripts returns the most recent transcripts.
func (s *Server) handleListTranscripts(c *fiber.Ctx) error {
	limit := storage.DefaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "limit must be a positive integer"})
		}
		limit = n
	}

	ts, err := s.driver.List(c.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list transcripts", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to list transcripts"})
	}

	return c.JSON(TranscriptList{
		Count:       len(ts),
		Transcripts: ts,
	})
}

// handleGetTranscript returns a single transcript by its ID.
func (s *Server) handleGetTranscript(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid transcript id"})
	}

	t, err := s.driver.Get(c.Context(), id)
	if err != nil {
		var notFound storage.NotFoundError
		if errors.As(err, &notFound) {
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "transcript not found"})
		}
		s.logger.Error("failed to get transcript", "id", id, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to get transcript"})
	}

	return c.JSON(t)
}

// handleDecode decodes a captured event stream sent as the request body.
//
// Query parameters skip_malformed and strict_trailing select the decoder
// policies. A stream that decodes only partially is answered with 422 and
// the partial result.
func (s *Server) handleDecode(c *fiber.Ctx) error {
	opts := []sse.Option{sse.WithLogger(s.logger)}
	if c.QueryBool("skip_malformed") {
		opts = append(opts, sse.WithMalformedPolicy(sse.SkipMalformed))
	}
	if c.QueryBool("strict_trailing") {
		opts = append(opts, sse.WithTrailingPolicy(sse.TrailingError))
	}
	if s.config.MaxBufferSize > 0 {
		opts = append(opts, sse.WithMaxBufferSize(s.config.MaxBufferSize))
	}

	// The request body is only valid for the lifetime of the handler and is
	// fully consumed before returning.
	src := sse.NewReaderSource(bytes.NewReader(c.Body()), 0)
	res, err := openai.DecodeStream(c.Context(), src, s.chunks, opts...)
	if err != nil {
		s.logger.Debug("decode request stopped early",
			"error", err,
			"chunks", len(res.Chunks),
		)
		return c.Status(fiber.StatusUnprocessableEntity).JSON(res)
	}

	return c.JSON(res)
}
