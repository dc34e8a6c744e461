package utils

import (
	"unicode/utf8"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Truncate", func() {
	It("keeps values within the limit", func() {
		Expect(Truncate("firefox", 10)).To(Equal("firefox"))
		Expect(Truncate("12345", 5)).To(Equal("12345"))
	})

	It("cuts long window titles with an ellipsis", func() {
		Expect(Truncate("main.go - tracks - Visual Studio Code", 7)).To(Equal("main.go..."))
	})

	It("counts runes rather than bytes", func() {
		Expect(Truncate("日本語のタイトル", 3)).To(Equal("日本語..."))
		Expect(Truncate("café", 4)).To(Equal("café"))
	})

	It("never splits a multi-byte character", func() {
		out := Truncate("ab🎵cd", 3)
		Expect(out).To(Equal("ab🎵..."))
		Expect(utf8.ValidString(out)).To(BeTrue())
	})
})
