package inmemory_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chunkstream/pkg/storage"
	"github.com/papercomputeco/chunkstream/pkg/storage/inmemory"
	testutils "github.com/papercomputeco/chunkstream/pkg/utils/test"
)

var _ = Describe("Driver", func() {
	testutils.DescribeDriver(func() storage.Driver {
		return inmemory.NewDriver()
	})

	It("isolates stored transcripts from later caller mutation", func() {
		ctx := context.Background()
		d := inmemory.NewDriver()
		t := testutils.NewTranscript("original", 0)
		Expect(d.Put(ctx, t)).To(Succeed())

		t.Content = "mutated"
		got, err := d.Get(ctx, t.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Content).To(Equal("original"))
	})
})
