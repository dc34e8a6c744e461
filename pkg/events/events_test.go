package events_test

import (
	"encoding/json"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/tracks/pkg/events"
)

var _ = Describe("Payloads", func() {
	It("extracts intrinsic tags from x11 samples", func() {
		p, err := events.Decode(events.DataTypeX11, []byte(`{
			"hostname": "box",
			"window": {"title": "Inbox - Mozilla Firefox", "exe": "/usr/lib/firefox/firefox"},
			"wm_class": ["Navigator", "firefox"],
			"idle_ms": 500
		}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(p).To(BeAssignableToTypeOf(events.X11{}))

		t := p.IntrinsicTags()
		Expect(t.GetAllValuesOf(events.TagDeviceOSType)).To(Equal([]string{"Linux"}))
		Expect(t.GetAllValuesOf(events.TagWindowTitle)).To(Equal([]string{"Inbox - Mozilla Firefox"}))
		Expect(t.GetAllValuesOf(events.TagExecutablePath)).To(Equal([]string{"/usr/lib/firefox/firefox"}))
		Expect(t.GetAllValuesOf(events.TagWindowClass)).To(Equal([]string{"Navigator", "firefox"}))
		Expect(t.GetAllValuesOf(events.TagUserIdle)).To(Equal([]string{"false"}))
		Expect(t.Has(events.TagProcessCwd)).To(BeFalse())
	})

	It("extracts the bundle id on macOS", func() {
		p, err := events.Decode(events.DataTypeMacOS, []byte(`{"window":{"title":"x","exe":"/Applications/Slack.app"},"bundle_id":"com.tinyspeck.slackmacgap","idle_ms":300000}`))
		Expect(err).NotTo(HaveOccurred())

		t := p.IntrinsicTags()
		Expect(t.HasValue(events.TagBundleID, "com.tinyspeck.slackmacgap")).To(BeTrue())
		Expect(t.HasValue(events.TagUserIdle, "true")).To(BeTrue())
	})

	It("rejects unknown data types", func() {
		_, err := events.Decode("amiga_v1", []byte(`{}`))
		var unknown events.UnknownDataTypeError
		Expect(errors.As(err, &unknown)).To(BeTrue())
		Expect(unknown.DataType).To(Equal("amiga_v1"))
	})

	It("rejects malformed payloads", func() {
		_, err := events.Decode(events.DataTypeWindows, []byte(`{"window": 3}`))
		Expect(err).To(MatchError(ContainSubstring("decoding windows_v1 payload")))
	})
})

var _ = Describe("Record", func() {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	It("converts to an event and assigns an id", func() {
		r := events.Record{
			Timestamp:  ts,
			DurationMS: 1500,
			DataType:   events.DataTypeWindows,
			Data:       json.RawMessage(`{"window":{"title":"a","exe":"C:\\a.exe"}}`),
		}
		e, err := r.ToEvent()
		Expect(err).NotTo(HaveOccurred())
		Expect(e.ID).NotTo(BeEmpty())
		Expect(e.Duration).To(Equal(1500 * time.Millisecond))
		Expect(e.End()).To(Equal(ts.Add(1500 * time.Millisecond)))

		t, err := e.IntrinsicTags()
		Expect(err).NotTo(HaveOccurred())
		Expect(t.HasValue(events.TagExecutablePath, `C:\a.exe`)).To(BeTrue())
	})

	It("keeps a provided id", func() {
		r := events.Record{ID: "ev-1", Timestamp: ts, DataType: events.DataTypeX11, Data: json.RawMessage(`{}`)}
		e, err := r.ToEvent()
		Expect(err).NotTo(HaveOccurred())
		Expect(e.ID).To(Equal("ev-1"))
	})

	It("requires a timestamp", func() {
		_, err := events.Record{DataType: events.DataTypeX11, Data: json.RawMessage(`{}`)}.ToEvent()
		Expect(err).To(MatchError(ContainSubstring("no timestamp")))
	})
})
