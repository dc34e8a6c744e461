package extractcmder_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	extractcmder "github.com/papercomputeco/tracks/cmd/tracks/extract"
)

var _ = Describe("Range", func() {
	now := time.Date(2024, 3, 5, 15, 4, 5, 0, time.UTC)

	It("defaults to today", func() {
		from, to, err := extractcmder.Range("", "", now)
		Expect(err).NotTo(HaveOccurred())
		Expect(from).To(Equal(time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)))
		Expect(to).To(Equal(time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC)))
	})

	It("defaults --to to the --from day", func() {
		from, to, err := extractcmder.Range("2024-03-01", "", now)
		Expect(err).NotTo(HaveOccurred())
		Expect(to.Sub(from)).To(Equal(24 * time.Hour))
	})

	It("keeps exact instants", func() {
		from, to, err := extractcmder.Range("2024-03-01T09:00:00Z", "2024-03-01T17:00:00Z", now)
		Expect(err).NotTo(HaveOccurred())
		Expect(to.Sub(from)).To(Equal(8 * time.Hour))
	})

	It("rejects inverted and malformed ranges", func() {
		_, _, err := extractcmder.Range("2024-03-02", "2024-02-28", now)
		Expect(err).To(MatchError(ContainSubstring("before")))

		_, _, err = extractcmder.Range("tuesday", "", now)
		Expect(err).To(MatchError(ContainSubstring("--from")))
	})
})
