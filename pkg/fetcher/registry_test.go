package fetcher_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/tracks/pkg/fetcher"
	"github.com/papercomputeco/tracks/pkg/logger"
	"github.com/papercomputeco/tracks/pkg/tags"
)

type fakeSimple struct {
	id      string
	reqs    []fetcher.Requirement
	outputs []string
}

func (f *fakeSimple) ID() string                          { return f.id }
func (f *fakeSimple) Requirements() []fetcher.Requirement { return f.reqs }
func (f *fakeSimple) Outputs() []string                   { return f.outputs }
func (f *fakeSimple) Derive(*tags.Match, *tags.Tags) ([]tags.TagValue, error) {
	return nil, nil
}

type fakeExternal struct {
	fakeSimple
}

func (f *fakeExternal) CacheKey(m *tags.Match) (string, error) { return m.Captures["k"], nil }
func (f *fakeExternal) Fetch(context.Context, string) ([]byte, error) {
	return nil, errors.New("offline")
}
func (f *fakeExternal) Process([]byte) ([]tags.TagValue, error) { return nil, nil }

var _ = Describe("Registry", func() {
	simple := &fakeSimple{
		id:      "simple-one",
		reqs:    []fetcher.Requirement{{Tag: "a", Regex: `^(?P<v>x.*)$`}},
		outputs: []string{"b"},
	}
	external := &fakeExternal{fakeSimple{
		id:      "external-one",
		reqs:    []fetcher.Requirement{{Tag: "a", Regex: `^(?P<k>.+)$`}},
		outputs: []string{"c", "d"},
	}}

	It("registers fetchers by kind", func() {
		r, err := fetcher.NewRegistry(logger.Nop(), simple, external)
		Expect(err).NotTo(HaveOccurred())

		s, err := r.Simple("simple-one")
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Fetcher.ID()).To(Equal("simple-one"))

		e, err := r.External("external-one")
		Expect(err).NotTo(HaveOccurred())
		Expect(e.Fetcher.ID()).To(Equal("external-one"))

		Expect(r.IDs()).To(Equal([]string{"external-one", "simple-one"}))
	})

	It("does not look up external fetchers as simple ones", func() {
		r, err := fetcher.NewRegistry(logger.Nop(), external)
		Expect(err).NotTo(HaveOccurred())

		_, err = r.Simple("external-one")
		var unknown fetcher.UnknownFetcherError
		Expect(errors.As(err, &unknown)).To(BeTrue())
		Expect(unknown.Kind).To(Equal(fetcher.KindSimple))
	})

	It("rejects duplicate ids", func() {
		_, err := fetcher.NewRegistry(logger.Nop(), simple, simple)
		Expect(err).To(MatchError(ContainSubstring("duplicate fetcher id")))
	})

	It("drops fetchers with unanchored requirements", func() {
		loose := &fakeSimple{id: "loose", reqs: []fetcher.Requirement{{Tag: "a", Regex: `x`}}}
		r, err := fetcher.NewRegistry(logger.Nop(), loose, simple)
		Expect(err).NotTo(HaveOccurred())
		Expect(r.IDs()).To(Equal([]string{"simple-one"}))
	})

	Describe("Entry", func() {
		var entry *fetcher.Entry[fetcher.External]

		BeforeEach(func() {
			r, err := fetcher.NewRegistry(logger.Nop(), external)
			Expect(err).NotTo(HaveOccurred())
			entry, err = r.External("external-one")
			Expect(err).NotTo(HaveOccurred())
		})

		It("matches requirements against tags", func() {
			t := tags.New()
			t.Add("a", "hello")

			m, ok := entry.Match(t)
			Expect(ok).To(BeTrue())
			Expect(m.Captures).To(HaveKeyWithValue("k", "hello"))

			_, ok = entry.Match(tags.New())
			Expect(ok).To(BeFalse())
		})

		It("accepts declared outputs", func() {
			Expect(entry.CheckOutputs([]tags.TagValue{{Tag: "c", Value: "1"}, {Tag: "d", Value: "2"}})).To(Succeed())
		})

		It("rejects undeclared outputs", func() {
			err := entry.CheckOutputs([]tags.TagValue{{Tag: "c", Value: "1"}, {Tag: "z", Value: "2"}})
			var violation fetcher.OutputViolationError
			Expect(errors.As(err, &violation)).To(BeTrue())
			Expect(violation.Tag).To(Equal("z"))
		})
	})
})
