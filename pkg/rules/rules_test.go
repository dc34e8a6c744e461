package rules_test

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/tracks/pkg/rules"
	"github.com/papercomputeco/tracks/pkg/tags"
)

var _ = Describe("Rule codec", func() {
	It("writes the type discriminator first", func() {
		data, err := rules.MarshalRule(rules.HasTag{
			Tag:     "foo",
			NewTags: []rules.NewTag{{Tag: "bar", Value: "$value!"}},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(HavePrefix(`{"type":"HasTag",`))
		Expect(string(data)).To(MatchJSON(`{"type":"HasTag","tag":"foo","new_tags":[{"tag":"bar","value":"$value!"}]}`))
	})

	It("decodes every variant", func() {
		cases := []struct {
			input string
			want  rules.Rule
		}{
			{`{"type":"HasTag","tag":"a","new_tags":[]}`, rules.HasTag{Tag: "a", NewTags: []rules.NewTag{}}},
			{`{"type":"ExactTagValue","tag":"a","value":"b"}`, rules.ExactTagValue{Tag: "a", Value: "b"}},
			{`{"type":"TagValuePrefix","tag":"a","prefix":"/home/"}`, rules.TagValuePrefix{Tag: "a", Prefix: "/home/"}},
			{`{"type":"TagRegex","regexes":[{"tag":"a","regex":"^x$"}]}`, rules.TagRegex{Regexes: []rules.TagRegexEntry{{Tag: "a", Regex: "^x$"}}}},
			{`{"type":"InternalFetcher","fetcher_id":"url-domain-matcher"}`, rules.InternalFetcher{FetcherID: "url-domain-matcher"}},
			{`{"type":"ExternalFetcher","fetcher_id":"youtube-meta-json"}`, rules.ExternalFetcher{FetcherID: "youtube-meta-json"}},
		}
		for _, tc := range cases {
			got, err := rules.UnmarshalRule([]byte(tc.input))
			Expect(err).NotTo(HaveOccurred(), tc.input)
			Expect(got).To(Equal(tc.want), tc.input)
		}
	})

	It("rejects unknown variants", func() {
		_, err := rules.UnmarshalRule([]byte(`{"type":"Bogus"}`))
		Expect(err).To(MatchError(rules.ErrUnknownRuleType))
	})
})

var _ = Describe("TagRuleGroup", func() {
	It("round trips versioned group data", func() {
		group := rules.NewGroup("g1", rules.GroupData{
			Name:     "Mine",
			Editable: true,
			Enabled:  true,
			Rules: []rules.RuleEntry{
				{Enabled: true, Rule: rules.ExternalFetcher{FetcherID: "youtube-meta-json"}},
				{Enabled: false, Rule: rules.HasTag{Tag: "x", NewTags: []rules.NewTag{{Tag: "y", Value: "$value"}}}},
			},
		})

		data, err := json.Marshal(group)
		Expect(err).NotTo(HaveOccurred())

		var raw map[string]any
		Expect(json.Unmarshal(data, &raw)).To(Succeed())
		Expect(raw["data"]).To(HaveKeyWithValue("version", "V1"))

		var decoded rules.TagRuleGroup
		Expect(json.Unmarshal(data, &decoded)).To(Succeed())
		Expect(decoded).To(Equal(group))
	})

	It("rejects unknown versions", func() {
		var g rules.TagRuleGroup
		err := json.Unmarshal([]byte(`{"global_id":"x","data":{"version":"V9","data":{}}}`), &g)
		Expect(err).To(MatchError(rules.ErrUnsupportedVersion))
	})

	It("requires a global id when parsing group lists", func() {
		_, err := rules.ParseGroups([]byte(`[{"data":{"version":"V1","data":{"name":"x"}}}]`))
		Expect(err).To(MatchError(ContainSubstring("global_id")))
	})
})

var _ = Describe("Defaults", func() {
	It("parses the compiled-in document", func() {
		groups, err := rules.LoadDefaults()
		Expect(err).NotTo(HaveOccurred())
		Expect(groups).NotTo(BeEmpty())
		Expect(rules.ContainsID(groups, "default-domains")).To(BeTrue())

		for _, g := range groups {
			data, err := g.Current()
			Expect(err).NotTo(HaveOccurred())
			Expect(data.Editable).To(BeFalse(), g.GlobalID)
			for _, entry := range data.Rules {
				if re, ok := entry.Rule.(rules.TagRegex); ok {
					for _, e := range re.Regexes {
						Expect(tags.IsAnchored(e.Regex)).To(BeTrue(), e.Regex)
					}
				}
			}
		}
	})
})

var _ = Describe("Templates", func() {
	It("substitutes bound placeholders", func() {
		tv := rules.NewTag{Tag: "bar", Value: "$value!"}.Expand(map[string]string{"value": "x"})
		Expect(tv).To(Equal(tags.TagValue{Tag: "bar", Value: "x!"}))
	})

	It("supports braces and expands unknown names to empty", func() {
		out := rules.ExpandTemplate("${a}b-$missing-$a", map[string]string{"a": "1"})
		Expect(out).To(Equal("1b--1"))
	})

	It("expands placeholders in tag names", func() {
		tv := rules.NewTag{Tag: "lang-$l", Value: "yes"}.Expand(map[string]string{"l": "go"})
		Expect(tv.Tag).To(Equal("lang-go"))
	})
})
