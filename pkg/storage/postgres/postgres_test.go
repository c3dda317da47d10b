package postgres_test

import (
	"context"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chunkstream/pkg/storage"
	"github.com/papercomputeco/chunkstream/pkg/storage/postgres"
	testutils "github.com/papercomputeco/chunkstream/pkg/utils/test"
)

// connStr returns the PostgreSQL connection string from environment or skips the test.
func connStr() string {
	dsn := os.Getenv("CHUNKSTREAM_TEST_POSTGRES_DSN")
	if dsn == "" {
		Skip("CHUNKSTREAM_TEST_POSTGRES_DSN not set, skipping PostgreSQL tests")
	}
	return dsn
}

var _ = Describe("Driver", func() {
	testutils.DescribeDriver(func() storage.Driver {
		ctx := context.Background()
		d, err := postgres.NewDriver(ctx, connStr())
		Expect(err).NotTo(HaveOccurred())

		// Clean all transcripts before each test for isolation.
		_, err = d.DB.ExecContext(ctx, "DELETE FROM transcripts")
		Expect(err).NotTo(HaveOccurred())
		return d
	})

	It("binds parameters with numbered placeholders", func() {
		Expect(postgres.Dialect.Placeholder(3)).To(Equal("$3"))
	})
})
