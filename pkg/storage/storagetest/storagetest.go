// Package storagetest holds a Ginkgo conformance suite shared by every
// storage.Driver implementation.
package storagetest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/tracks/pkg/events"
	"github.com/papercomputeco/tracks/pkg/rules"
	"github.com/papercomputeco/tracks/pkg/storage"
)

// Base is an arbitrary millisecond-aligned instant used by the suite.
var Base = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

// NewEvent builds an x11 event at Base+offset with the given window title.
func NewEvent(id string, offset time.Duration, title string) *events.Event {
	data, _ := json.Marshal(events.X11{Window: events.Window{Title: title, Exe: "/usr/bin/" + id}})
	return &events.Event{
		ID:        id,
		Timestamp: Base.Add(offset),
		Duration:  5 * time.Second,
		DataType:  events.DataTypeX11,
		Data:      data,
	}
}

// DescribeDriver registers the conformance specs. newDriver is called before
// each spec and the driver is closed after it.
func DescribeDriver(name string, newDriver func(ctx context.Context) storage.Driver) bool {
	return Describe(name+" conformance", func() {
		var (
			ctx    context.Context
			driver storage.Driver
		)

		BeforeEach(func() {
			ctx = context.Background()
			driver = newDriver(ctx)
		})

		AfterEach(func() {
			if driver != nil {
				Expect(driver.Close()).To(Succeed())
				driver = nil
			}
		})

		ids := func(evs []*events.Event) []string {
			out := make([]string, len(evs))
			for i, e := range evs {
				out[i] = e.ID
			}
			return out
		}

		Describe("events", func() {
			BeforeEach(func() {
				n, err := driver.InsertEvents(ctx, []*events.Event{
					NewEvent("c", 2*time.Minute, "third"),
					NewEvent("a", 0, "first"),
					NewEvent("b", time.Minute, "second"),
					NewEvent("b2", time.Minute, "second again"),
					NewEvent("d", 24*time.Hour, "next day"),
				}, Base)
				Expect(err).NotTo(HaveOccurred())
				Expect(n).To(Equal(5))
			})

			It("ignores ids that already exist", func() {
				n, err := driver.InsertEvents(ctx, []*events.Event{NewEvent("a", 0, "dup")}, Base)
				Expect(err).NotTo(HaveOccurred())
				Expect(n).To(Equal(0))

				e, err := driver.GetEvent(ctx, "a")
				Expect(err).NotTo(HaveOccurred())
				Expect(e.Data).To(MatchJSON(NewEvent("a", 0, "first").Data))
			})

			It("lists a half-open window in (timestamp, id) order", func() {
				evs, err := driver.ListEvents(ctx, storage.EventQuery{From: Base, To: Base.Add(2 * time.Minute)})
				Expect(err).NotTo(HaveOccurred())
				Expect(ids(evs)).To(Equal([]string{"a", "b", "b2"}))
				Expect(evs[0].Timestamp).To(BeTemporally("==", Base))
				Expect(evs[0].Duration).To(Equal(5 * time.Second))
				Expect(evs[0].DataType).To(Equal(events.DataTypeX11))
			})

			It("pages with a cursor", func() {
				q := storage.EventQuery{From: Base, To: Base.Add(time.Hour), Limit: 2}
				first, err := driver.ListEvents(ctx, q)
				Expect(err).NotTo(HaveOccurred())
				Expect(ids(first)).To(Equal([]string{"a", "b"}))

				q.After = &storage.Cursor{Timestamp: first[1].Timestamp, ID: first[1].ID}
				second, err := driver.ListEvents(ctx, q)
				Expect(err).NotTo(HaveOccurred())
				Expect(ids(second)).To(Equal([]string{"b2", "c"}))
			})

			It("lists descending", func() {
				evs, err := driver.ListEvents(ctx, storage.EventQuery{From: Base, To: Base.Add(48 * time.Hour), Desc: true, Limit: 3})
				Expect(err).NotTo(HaveOccurred())
				Expect(ids(evs)).To(Equal([]string{"d", "c", "b2"}))

				last := evs[len(evs)-1]
				evs, err = driver.ListEvents(ctx, storage.EventQuery{
					From: Base, To: Base.Add(48 * time.Hour), Desc: true,
					After: &storage.Cursor{Timestamp: last.Timestamp, ID: last.ID},
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(ids(evs)).To(Equal([]string{"b", "a"}))
			})

			It("streams in chunks", func() {
				var chunks [][]string
				err := storage.StreamEvents(ctx, driver, Base, Base.Add(48*time.Hour), 2, func(evs []*events.Event) error {
					chunks = append(chunks, ids(evs))
					return nil
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(chunks).To(Equal([][]string{{"a", "b"}, {"b2", "c"}, {"d"}}))
			})

			It("stops streaming on callback errors", func() {
				boom := errors.New("boom")
				calls := 0
				err := storage.StreamEvents(ctx, driver, Base, Base.Add(48*time.Hour), 2, func([]*events.Event) error {
					calls++
					return boom
				})
				Expect(err).To(MatchError(boom))
				Expect(calls).To(Equal(1))
			})

			It("returns NotFoundError for unknown events", func() {
				_, err := driver.GetEvent(ctx, "missing")
				var nf storage.NotFoundError
				Expect(errors.As(err, &nf)).To(BeTrue())
				Expect(nf.Kind).To(Equal(storage.KindEvent))
			})

			It("marks the days of inserted events as changed", func() {
				cur, err := driver.GetCurrency(ctx, []string{"2024-03-01", "2024-03-02", "2024-03-03"})
				Expect(err).NotTo(HaveOccurred())
				Expect(cur).To(HaveLen(2))
				Expect(cur["2024-03-01"].RawChanged).To(BeTemporally("==", Base))
				Expect(cur["2024-03-01"].Extracted.IsZero()).To(BeTrue())
				Expect(cur["2024-03-01"].Fresh()).To(BeFalse())
			})
		})

		Describe("fetch cache", func() {
			It("round trips and replaces values", func() {
				_, err := driver.GetFetchCache(ctx, "f:k")
				var nf storage.NotFoundError
				Expect(errors.As(err, &nf)).To(BeTrue())

				Expect(driver.PutFetchCache(ctx, "f:k", Base, []byte(`{"a":1}`))).To(Succeed())
				Expect(driver.PutFetchCache(ctx, "f:k", Base.Add(time.Hour), []byte(`{"a":2}`))).To(Succeed())

				v, err := driver.GetFetchCache(ctx, "f:k")
				Expect(err).NotTo(HaveOccurred())
				Expect(v).To(MatchJSON(`{"a":2}`))
			})
		})

		Describe("rule groups", func() {
			It("upserts and lists by id", func() {
				group := func(id, name string) rules.TagRuleGroup {
					return rules.NewGroup(id, rules.GroupData{
						Name:     name,
						Editable: true,
						Enabled:  true,
						Rules: []rules.RuleEntry{{
							Enabled: true,
							Rule:    rules.HasTag{Tag: "a", NewTags: []rules.NewTag{{Tag: "b", Value: "$value"}}},
						}},
					})
				}

				Expect(driver.UpsertRuleGroup(ctx, group("z", "Z"))).To(Succeed())
				Expect(driver.UpsertRuleGroup(ctx, group("m", "M"))).To(Succeed())
				Expect(driver.UpsertRuleGroup(ctx, group("z", "Z2"))).To(Succeed())

				groups, err := driver.ListRuleGroups(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(groups).To(HaveLen(2))
				Expect(groups[0].GlobalID).To(Equal("m"))

				data, err := groups[1].Current()
				Expect(err).NotTo(HaveOccurred())
				Expect(data.Name).To(Equal("Z2"))
				Expect(data.Rules).To(HaveLen(1))
				Expect(data.Rules[0].Rule).To(Equal(rules.HasTag{Tag: "a", NewTags: []rules.NewTag{{Tag: "b", Value: "$value"}}}))
			})
		})

		Describe("extraction cache", func() {
			dayStart := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
			dayEnd := dayStart.Add(24 * time.Hour)

			current := func(day string) *storage.Currency {
				cur, err := driver.GetCurrency(ctx, []string{day})
				Expect(err).NotTo(HaveOccurred())
				if c, ok := cur[day]; ok {
					return &c
				}
				return nil
			}

			replace := func(day string, from, to time.Time, rows []storage.ExtractedRow, at time.Time) {
				marked, err := driver.ReplaceDay(ctx, day, from, to, rows, at, current(day))
				Expect(err).NotTo(HaveOccurred())
				Expect(marked).To(BeTrue())
			}

			row := func(eventID string, offset time.Duration, tag, value string) storage.ExtractedRow {
				return storage.ExtractedRow{
					Timestamp: Base.Add(offset),
					EventID:   eventID,
					Tag:       tag,
					Value:     value,
					Duration:  time.Second,
				}
			}

			It("replaces a day's rows and records the extraction", func() {
				replace("2024-03-01", dayStart, dayEnd, []storage.ExtractedRow{
					row("a", 0, "t", "old"),
				}, Base)

				rows := make([]storage.ExtractedRow, 0, 600)
				for i := range 600 {
					rows = append(rows, row(fmt.Sprintf("e%03d", i), time.Duration(i)*time.Second, "t", "v"))
				}
				replace("2024-03-01", dayStart, dayEnd, rows, Base.Add(time.Hour))

				got, err := driver.ListExtracted(ctx, dayStart, dayEnd)
				Expect(err).NotTo(HaveOccurred())
				Expect(got).To(HaveLen(600))
				Expect(got[0].EventID).To(Equal("e000"))
				Expect(got[599].EventID).To(Equal("e599"))
				Expect(got[0].ID).To(BeNumerically("<", got[1].ID))
				Expect(got[0].Duration).To(Equal(time.Second))

				cur, err := driver.GetCurrency(ctx, []string{"2024-03-01"})
				Expect(err).NotTo(HaveOccurred())
				Expect(cur["2024-03-01"].Extracted).To(BeTemporally("==", Base.Add(time.Hour)))
				Expect(cur["2024-03-01"].Fresh()).To(BeTrue())
			})

			It("keeps rows of an event in insertion order", func() {
				replace("2024-03-01", dayStart, dayEnd, []storage.ExtractedRow{
					row("a", 0, "z", "1"),
					row("a", 0, "a", "2"),
					row("b", time.Second, "m", "3"),
				}, Base)

				got, err := driver.ListExtractedForEvent(ctx, "a")
				Expect(err).NotTo(HaveOccurred())
				Expect(got).To(HaveLen(2))
				Expect(got[0].Tag).To(Equal("z"))
				Expect(got[1].Tag).To(Equal("a"))
			})

			It("does not touch rows outside the window", func() {
				next := dayEnd.Add(time.Hour)
				replace("2024-03-02", dayEnd, dayEnd.Add(24*time.Hour), []storage.ExtractedRow{
					{Timestamp: next, EventID: "n", Tag: "t", Value: "v"},
				}, Base)
				replace("2024-03-01", dayStart, dayEnd, nil, Base)

				got, err := driver.ListExtracted(ctx, dayStart, dayEnd.Add(24*time.Hour))
				Expect(err).NotTo(HaveOccurred())
				Expect(got).To(HaveLen(1))
				Expect(got[0].EventID).To(Equal("n"))
			})

			It("goes stale when raw events change after extraction", func() {
				replace("2024-03-01", dayStart, dayEnd, nil, Base)
				_, err := driver.InsertEvents(ctx, []*events.Event{NewEvent("late", time.Hour, "late")}, Base.Add(time.Minute))
				Expect(err).NotTo(HaveOccurred())

				cur, err := driver.GetCurrency(ctx, []string{"2024-03-01"})
				Expect(err).NotTo(HaveOccurred())
				Expect(cur["2024-03-01"].Fresh()).To(BeFalse())
			})

			It("leaves a day stale when raw events arrive during derivation", func() {
				seen := current("2024-03-01")
				_, err := driver.InsertEvents(ctx, []*events.Event{NewEvent("late", time.Hour, "late")}, Base)
				Expect(err).NotTo(HaveOccurred())

				marked, err := driver.ReplaceDay(ctx, "2024-03-01", dayStart, dayEnd, []storage.ExtractedRow{
					row("a", 0, "t", "v"),
				}, Base.Add(time.Hour), seen)
				Expect(err).NotTo(HaveOccurred())
				Expect(marked).To(BeFalse())

				got, err := driver.ListExtracted(ctx, dayStart, dayEnd)
				Expect(err).NotTo(HaveOccurred())
				Expect(got).To(HaveLen(1))
				Expect(current("2024-03-01").Fresh()).To(BeFalse())
			})

			It("goes stale when an insert stamped before the extraction commits after it", func() {
				replace("2024-03-01", dayStart, dayEnd, nil, Base.Add(time.Hour))
				_, err := driver.InsertEvents(ctx, []*events.Event{NewEvent("slow", time.Hour, "slow")}, Base)
				Expect(err).NotTo(HaveOccurred())

				c := current("2024-03-01")
				Expect(c.RawChanged).To(BeTemporally(">=", c.Extracted))
				Expect(c.Fresh()).To(BeFalse())
			})

			It("moves the raw change timestamp forward on every insert", func() {
				_, err := driver.InsertEvents(ctx, []*events.Event{NewEvent("one", time.Hour, "one")}, Base)
				Expect(err).NotTo(HaveOccurred())
				first := current("2024-03-01").RawChanged

				_, err = driver.InsertEvents(ctx, []*events.Event{NewEvent("two", 2*time.Hour, "two")}, Base)
				Expect(err).NotTo(HaveOccurred())
				Expect(current("2024-03-01").RawChanged).To(BeTemporally(">", first))
			})

			It("invalidates every recorded day", func() {
				replace("2024-03-01", dayStart, dayEnd, nil, Base)
				replace("2024-03-02", dayEnd, dayEnd.Add(24*time.Hour), nil, Base)
				Expect(driver.InvalidateAll(ctx, Base.Add(time.Minute))).To(Succeed())

				cur, err := driver.GetCurrency(ctx, []string{"2024-03-01", "2024-03-02"})
				Expect(err).NotTo(HaveOccurred())
				Expect(cur).To(HaveLen(2))
				for _, c := range cur {
					Expect(c.Fresh()).To(BeFalse())
				}
			})
		})
	})
}
