package kafka_test

import (
	"context"
	"encoding/json"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/chunkstream/pkg/eventstream"
	"github.com/papercomputeco/chunkstream/pkg/eventstream/kafka"
	testutils "github.com/papercomputeco/chunkstream/pkg/utils/test"
)

type recordingWriter struct {
	msgs   []kafkago.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

var _ = Describe("Publisher", func() {
	Describe("NewPublisher", func() {
		It("requires brokers", func() {
			_, err := kafka.NewPublisher(kafka.Config{Topic: "t"})
			Expect(err).To(HaveOccurred())
		})

		It("requires a topic", func() {
			_, err := kafka.NewPublisher(kafka.Config{Brokers: []string{"localhost:9092"}})
			Expect(err).To(HaveOccurred())
		})

		It("builds a writer without connecting", func() {
			p, err := kafka.NewPublisher(kafka.Config{Brokers: []string{"localhost:9092"}, Topic: "chunkstream.events"})
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Close()).To(Succeed())
		})
	})

	Describe("PublishStream", func() {
		var (
			w *recordingWriter
			p *kafka.Publisher
		)

		BeforeEach(func() {
			w = &recordingWriter{}
			p = kafka.NewPublisherWithWriter(w)
		})

		It("writes one JSON message keyed by transcript ID", func() {
			t := testutils.NewTranscript("hi", 0)
			event := eventstream.NewStreamEvent(eventstream.EventSource{Component: "proxy"}, t)
			Expect(p.PublishStream(context.Background(), event)).To(Succeed())

			Expect(w.msgs).To(HaveLen(1))
			msg := w.msgs[0]
			Expect(string(msg.Key)).To(Equal(t.ID.String()))
			Expect(msg.Headers).To(ContainElement(kafkago.Header{Key: "event_type", Value: []byte(eventstream.EventTypeStreamCompleted)}))

			var decoded eventstream.StreamEvent
			Expect(json.Unmarshal(msg.Value, &decoded)).To(Succeed())
			Expect(decoded.EventID).To(Equal(event.EventID))
			Expect(decoded.Transcript.Content).To(Equal("hi"))
		})

		It("rejects nil events", func() {
			Expect(p.PublishStream(context.Background(), nil)).To(MatchError(eventstream.ErrNilStreamEvent))
			Expect(w.msgs).To(BeEmpty())
		})

		It("wraps writer failures", func() {
			w.err = errors.New("broker unavailable")
			err := p.PublishStream(context.Background(), eventstream.NewStreamEvent(eventstream.EventSource{}, testutils.NewTranscript("x", 0)))
			Expect(err).To(MatchError(ContainSubstring("broker unavailable")))
		})

		It("closes the writer", func() {
			Expect(p.Close()).To(Succeed())
			Expect(w.closed).To(BeTrue())
		})
	})
})
