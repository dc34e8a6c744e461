package cliui_test

import (
	"bytes"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/tracks/pkg/cliui"
)

var _ = Describe("Step", func() {
	It("returns the function error and prints the message", func() {
		var buf bytes.Buffer
		boom := errors.New("boom")

		err := cliui.Step(&buf, "Extracting days", func() error { return boom })
		Expect(err).To(MatchError(boom))
		Expect(buf.String()).To(ContainSubstring("Extracting days"))
	})

	It("succeeds when the function succeeds", func() {
		var buf bytes.Buffer
		Expect(cliui.Step(&buf, "Ingesting", func() error { return nil })).To(Succeed())
		Expect(buf.String()).To(HaveSuffix("\n"))
	})
})

var _ = Describe("FormatDuration", func() {
	It("uses milliseconds below a second", func() {
		Expect(cliui.FormatDuration(12 * time.Millisecond)).To(Equal("12ms"))
	})

	It("uses seconds with one decimal above", func() {
		Expect(cliui.FormatDuration(3200 * time.Millisecond)).To(Equal("3.2s"))
	})
})

var _ = Describe("Mark", func() {
	It("differs for success and failure", func() {
		Expect(cliui.Mark(nil)).NotTo(Equal(cliui.Mark(errors.New("x"))))
	})
})
