package testutils

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chunkstream/pkg/storage"
)

// DescribeDriver registers the behavior every storage.Driver must have.
// newDriver is called before each test and the driver is closed after it.
func DescribeDriver(newDriver func() storage.Driver) {
	var (
		driver storage.Driver
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = newDriver()
	})

	AfterEach(func() {
		if driver != nil {
			Expect(driver.Close()).To(Succeed())
		}
	})

	Describe("Put and Get", func() {
		It("stores and retrieves a transcript", func() {
			t := NewTranscript("hello", 0)
			Expect(driver.Put(ctx, t)).To(Succeed())

			got, err := driver.Get(ctx, t.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(t.ID))
			Expect(got.Content).To(Equal("hello"))
			Expect(got.StartedAt.Equal(t.StartedAt)).To(BeTrue())
			Expect(got.Usage.TotalTokens).To(Equal(3))
			Expect(got.Completion.Text()).To(Equal("hello"))
		})

		It("replaces a transcript stored twice", func() {
			t := NewTranscript("first", 0)
			Expect(driver.Put(ctx, t)).To(Succeed())

			t.Content = "second"
			t.Error = "stream cut"
			Expect(driver.Put(ctx, t)).To(Succeed())

			got, err := driver.Get(ctx, t.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Content).To(Equal("second"))
			Expect(got.Failed()).To(BeTrue())

			all, err := driver.List(ctx, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(HaveLen(1))
		})

		It("returns NotFoundError for unknown IDs", func() {
			_, err := driver.Get(ctx, uuid.New())

			var notFound storage.NotFoundError
			Expect(errors.As(err, &notFound)).To(BeTrue())
		})

		It("rejects nil transcripts", func() {
			Expect(driver.Put(ctx, nil)).NotTo(Succeed())
		})
	})

	Describe("List", func() {
		It("returns the most recent transcripts first", func() {
			for i, content := range []string{"a", "b", "c"} {
				Expect(driver.Put(ctx, NewTranscript(content, time.Duration(i)*time.Minute))).To(Succeed())
			}

			all, err := driver.List(ctx, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(HaveLen(3))
			Expect(all[0].Content).To(Equal("c"))
			Expect(all[2].Content).To(Equal("a"))
		})

		It("honors the limit", func() {
			for i := range 5 {
				Expect(driver.Put(ctx, NewTranscript("x", time.Duration(i)*time.Second))).To(Succeed())
			}

			some, err := driver.List(ctx, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(some).To(HaveLen(2))
		})

		It("returns nothing for an empty store", func() {
			all, err := driver.List(ctx, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(BeEmpty())
		})
	})

	Describe("DeleteBefore", func() {
		It("removes transcripts older than the cutoff", func() {
			old := NewTranscript("old", 0)
			recent := NewTranscript("recent", time.Hour)
			Expect(driver.Put(ctx, old)).To(Succeed())
			Expect(driver.Put(ctx, recent)).To(Succeed())

			n, err := driver.DeleteBefore(ctx, recent.StartedAt)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(int64(1)))

			all, err := driver.List(ctx, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(HaveLen(1))
			Expect(all[0].Content).To(Equal("recent"))
		})

		It("removes nothing when every transcript is newer", func() {
			Expect(driver.Put(ctx, NewTranscript("recent", time.Hour))).To(Succeed())

			n, err := driver.DeleteBefore(ctx, time.Unix(0, 0))
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeZero())
		})
	})
}
