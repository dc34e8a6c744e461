package ingest_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/tracks/pkg/events"
	"github.com/papercomputeco/tracks/pkg/ingest"
	"github.com/papercomputeco/tracks/pkg/storage"
	"github.com/papercomputeco/tracks/pkg/storage/inmemory"
)

const (
	goodLine  = `{"id":"a","timestamp":"2024-03-01T10:00:00Z","duration_ms":1000,"data_type":"x11_v2","data":{"hostname":"box","window":{"title":"vim","exe":"/usr/bin/vim"},"idle_ms":0}}`
	otherLine = `{"id":"b","timestamp":"2024-03-02T10:00:00Z","duration_ms":500,"data_type":"macos_v1","data":{"hostname":"mac","window":{"title":"Safari","exe":"/Applications/Safari.app"},"idle_ms":0}}`
)

func writeJSONL(dir, filename string, lines ...string) string {
	path := filepath.Join(dir, filename)
	err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644)
	Expect(err).NotTo(HaveOccurred())
	return path
}

var _ = Describe("Parse", func() {
	It("returns good events and line errors for bad ones", func() {
		in := strings.Join([]string{
			goodLine,
			"",
			"not json",
			`{"timestamp":"2024-03-01T10:00:00Z","data_type":"beos","data":{}}`,
			otherLine,
		}, "\n")

		evs, bad, err := ingest.Parse("input", strings.NewReader(in))
		Expect(err).NotTo(HaveOccurred())
		Expect(evs).To(HaveLen(2))
		Expect(evs[0].ID).To(Equal("a"))
		Expect(evs[0].Duration).To(Equal(time.Second))
		Expect(evs[1].DataType).To(Equal(events.DataTypeMacOS))

		Expect(bad).To(HaveLen(2))
		Expect(bad[0].Line).To(Equal(3))
		Expect(bad[1].Line).To(Equal(4))
		var unknown events.UnknownDataTypeError
		Expect(errors.As(bad[1], &unknown)).To(BeTrue())
		Expect(bad[1].Error()).To(HavePrefix("input:4:"))
	})

	It("assigns ids to records without one", func() {
		line := `{"timestamp":"2024-03-01T10:00:00Z","duration_ms":1,"data_type":"x11_v2","data":{"hostname":"box","window":{"title":"t","exe":"e"},"idle_ms":0}}`
		evs, bad, err := ingest.Parse("input", strings.NewReader(line))
		Expect(err).NotTo(HaveOccurred())
		Expect(bad).To(BeEmpty())
		Expect(evs[0].ID).NotTo(BeEmpty())
	})
})

var _ = Describe("Expand", func() {
	It("finds JSONL files in nested directories and keeps plain files", func() {
		tmpDir := GinkgoT().TempDir()
		subDir := filepath.Join(tmpDir, "laptop", "2024")
		Expect(os.MkdirAll(subDir, 0o755)).To(Succeed())

		writeJSONL(tmpDir, "a.jsonl", goodLine)
		writeJSONL(subDir, "b.jsonl", otherLine)
		writeJSONL(tmpDir, "readme.txt", "not a jsonl")
		single := writeJSONL(GinkgoT().TempDir(), "events.json", goodLine)

		files, err := ingest.Expand([]string{tmpDir, single})
		Expect(err).NotTo(HaveOccurred())
		Expect(files).To(HaveLen(3))
		Expect(files[2]).To(Equal(single))
	})

	It("fails for missing paths", func() {
		_, err := ingest.Expand([]string{filepath.Join(GinkgoT().TempDir(), "nope")})
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Ingester", func() {
	var (
		ctx    context.Context
		driver *inmemory.Driver
		now    time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = inmemory.NewDriver()
		now = time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	})

	It("inserts events in batches and counts duplicates", func() {
		dir := GinkgoT().TempDir()
		writeJSONL(dir, "one.jsonl", goodLine, otherLine, "garbage")
		writeJSONL(dir, "two.jsonl", goodLine)

		in := ingest.NewIngester(driver, ingest.Options{BatchSize: 1, Now: func() time.Time { return now }})
		result, err := in.Run(ctx, []string{dir})
		Expect(err).NotTo(HaveOccurred())

		Expect(result.Files).To(Equal(2))
		Expect(result.Records).To(Equal(4))
		Expect(result.Inserted).To(Equal(2))
		Expect(result.Duplicate).To(Equal(1))
		Expect(result.Rejected).To(HaveLen(1))
		Expect(result.Summary()).To(ContainSubstring("2 inserted, 1 already present, 1 rejected"))

		evs, err := driver.ListEvents(ctx, storage.EventQuery{
			From: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			To:   time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(evs).To(HaveLen(2))

		cur, err := driver.GetCurrency(ctx, []string{"2024-03-01", "2024-03-02"})
		Expect(err).NotTo(HaveOccurred())
		Expect(cur["2024-03-01"].RawChanged).To(Equal(now))
	})

	It("writes nothing on a dry run", func() {
		path := writeJSONL(GinkgoT().TempDir(), "one.jsonl", goodLine)

		in := ingest.NewIngester(driver, ingest.Options{DryRun: true})
		result, err := in.Run(ctx, []string{path})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Records).To(Equal(1))
		Expect(result.Inserted).To(BeZero())

		_, err = driver.GetEvent(ctx, "a")
		Expect(err).To(BeAssignableToTypeOf(storage.NotFoundError{}))
	})
})
