package engine_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/tracks/pkg/engine"
	"github.com/papercomputeco/tracks/pkg/fetchcache"
	"github.com/papercomputeco/tracks/pkg/fetcher"
	"github.com/papercomputeco/tracks/pkg/fetcher/urldomain"
	"github.com/papercomputeco/tracks/pkg/fetcher/youtube"
	"github.com/papercomputeco/tracks/pkg/logger"
	"github.com/papercomputeco/tracks/pkg/rules"
	"github.com/papercomputeco/tracks/pkg/storage/inmemory"
	"github.com/papercomputeco/tracks/pkg/tags"
)

func group(id string, rs ...rules.Rule) rules.TagRuleGroup {
	entries := make([]rules.RuleEntry, len(rs))
	for i, r := range rs {
		entries[i] = rules.RuleEntry{Enabled: true, Rule: r}
	}
	return rules.NewGroup(id, rules.GroupData{Name: id, Enabled: true, Editable: true, Rules: entries})
}

func newTag(tag, value string) []rules.NewTag {
	return []rules.NewTag{{Tag: tag, Value: value}}
}

var _ = Describe("Engine", func() {
	var (
		ctx      context.Context
		now      time.Time
		driver   *inmemory.Driver
		cache    fetchcache.Cache
		fetchers []fetcher.Fetcher
		groups   []rules.TagRuleGroup
	)

	BeforeEach(func() {
		ctx = context.Background()
		now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		driver = inmemory.NewDriver()
		cache = fetchcache.NewStore(driver)
		fetchers = nil
		groups = nil
	})

	build := func(opts ...func(*engine.Config)) *engine.Engine {
		registry, err := fetcher.NewRegistry(logger.Nop(), fetchers...)
		Expect(err).NotTo(HaveOccurred())
		cfg := engine.Config{
			Defaults: groups,
			Registry: registry,
			Cache:    cache,
			Logger:   logger.Nop(),
			Now:      func() time.Time { return now },
		}
		for _, opt := range opts {
			opt(&cfg)
		}
		return engine.New(cfg)
	}

	derive := func(e *engine.Engine, in map[string][]string) *tags.Tags {
		out, err := e.GetTags(ctx, tags.FromMap(in))
		Expect(err).NotTo(HaveOccurred())
		return out
	}

	Describe("rule variants", func() {
		It("binds $value for HasTag", func() {
			groups = []rules.TagRuleGroup{group("g", rules.HasTag{Tag: "foo", NewTags: newTag("bar", "$value!")})}
			out := derive(build(), map[string][]string{"foo": {"x"}})
			Expect(out.GetAllValuesOf("bar")).To(Equal([]string{"x!"}))
		})

		It("binds $value for ExactTagValue only on an exact match", func() {
			groups = []rules.TagRuleGroup{group("g", rules.ExactTagValue{Tag: "app", Value: "code", NewTags: newTag("kind", "ide-$value")})}
			e := build()
			Expect(derive(e, map[string][]string{"app": {"vim", "code"}}).GetAllValuesOf("kind")).To(Equal([]string{"ide-code"}))
			Expect(derive(e, map[string][]string{"app": {"codex"}}).Has("kind")).To(BeFalse())
		})

		It("binds $prefix and $suffix for TagValuePrefix", func() {
			groups = []rules.TagRuleGroup{group("g", rules.TagValuePrefix{
				Tag:    "path",
				Prefix: "/home/",
				NewTags: []rules.NewTag{
					{Tag: "rel", Value: "$suffix"},
					{Tag: "root", Value: "${prefix}"},
				},
			})}
			out := derive(build(), map[string][]string{"path": {"/etc/x", "/home/alice/doc.txt"}})
			Expect(out.GetAllValuesOf("rel")).To(Equal([]string{"alice/doc.txt"}))
			Expect(out.GetAllValuesOf("root")).To(Equal([]string{"/home/"}))
		})

		It("requires every TagRegex entry to match", func() {
			groups = []rules.TagRuleGroup{group("g", rules.TagRegex{
				Regexes: []rules.TagRegexEntry{
					{Tag: "a", Regex: `^(?P<x>\d+)$`},
					{Tag: "b", Regex: `^(?P<y>[a-z]+)$`},
				},
				NewTags: newTag("ab", "$x-$y"),
			})}
			e := build()

			Expect(derive(e, map[string][]string{"a": {"12"}, "b": {"XY"}}).Has("ab")).To(BeFalse())
			Expect(derive(e, map[string][]string{"a": {"12"}}).Has("ab")).To(BeFalse())
			Expect(derive(e, map[string][]string{"a": {"12"}, "b": {"XY", "cd"}}).GetAllValuesOf("ab")).To(Equal([]string{"12-cd"}))
		})

		It("expands unknown placeholders to the empty string", func() {
			groups = []rules.TagRuleGroup{group("g", rules.HasTag{Tag: "foo", NewTags: newTag("bar", "<$nope>")})}
			Expect(derive(build(), map[string][]string{"foo": {"x"}}).GetAllValuesOf("bar")).To(Equal([]string{"<>"}))
		})

		It("chains rules across passes regardless of order", func() {
			groups = []rules.TagRuleGroup{
				group("late", rules.HasTag{Tag: "b", NewTags: newTag("c", "$value")}),
				group("early", rules.HasTag{Tag: "a", NewTags: newTag("b", "$value")}),
			}
			Expect(derive(build(), map[string][]string{"a": {"v"}}).GetAllValuesOf("c")).To(Equal([]string{"v"}))
		})
	})

	Describe("rule set compilation", func() {
		It("drops unanchored TagRegex rules and keeps the rest", func() {
			groups = []rules.TagRuleGroup{group("g",
				rules.TagRegex{Regexes: []rules.TagRegexEntry{{Tag: "a", Regex: `x`}}, NewTags: newTag("loose", "1")},
				rules.HasTag{Tag: "a", NewTags: newTag("strict", "1")},
			)}
			e := build()

			rs, err := e.Compile(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(rs.Len()).To(Equal(1))

			out := derive(e, map[string][]string{"a": {"x"}})
			Expect(out.Has("loose")).To(BeFalse())
			Expect(out.Has("strict")).To(BeTrue())
		})

		It("drops rules referencing unknown fetchers", func() {
			groups = []rules.TagRuleGroup{group("g",
				rules.ExternalFetcher{FetcherID: "nope"},
				rules.InternalFetcher{FetcherID: "nope"},
				rules.HasTag{Tag: "a", NewTags: newTag("b", "1")},
			)}
			out := derive(build(), map[string][]string{"a": {"x"}})
			Expect(out.HasValue("b", "1")).To(BeTrue())
		})

		It("skips disabled groups and rules", func() {
			off := group("off", rules.HasTag{Tag: "a", NewTags: newTag("from-off", "1")})
			data, err := off.Current()
			Expect(err).NotTo(HaveOccurred())
			data.Enabled = false

			partial := group("partial",
				rules.HasTag{Tag: "a", NewTags: newTag("disabled", "1")},
				rules.HasTag{Tag: "a", NewTags: newTag("enabled", "1")},
			)
			pdata, err := partial.Current()
			Expect(err).NotTo(HaveOccurred())
			pdata.Rules[0].Enabled = false

			groups = []rules.TagRuleGroup{
				rules.NewGroup("off", *data),
				rules.NewGroup("partial", *pdata),
			}
			out := derive(build(), map[string][]string{"a": {"x"}})
			Expect(out.Has("from-off")).To(BeFalse())
			Expect(out.Has("disabled")).To(BeFalse())
			Expect(out.Has("enabled")).To(BeTrue())
		})

		It("evaluates persisted groups before defaults and reloads them", func() {
			groups = []rules.TagRuleGroup{group("default", rules.HasTag{Tag: "a", NewTags: newTag("who", "default")})}
			e := build(func(c *engine.Config) { c.Groups = driver })

			Expect(derive(e, map[string][]string{"a": {"x"}}).GetAllValuesOf("who")).To(Equal([]string{"default"}))

			Expect(driver.UpsertRuleGroup(ctx, group("user", rules.HasTag{Tag: "a", NewTags: newTag("who", "user")}))).To(Succeed())
			Expect(derive(e, map[string][]string{"a": {"x"}}).GetAllValuesOf("who")).To(Equal([]string{"user", "default"}))
		})
	})

	Describe("fixed point", func() {
		It("is idempotent on its own output", func() {
			defaults, err := rules.LoadDefaults()
			Expect(err).NotTo(HaveOccurred())
			groups = defaults
			fetchers = []fetcher.Fetcher{urldomain.New()}
			e := build()

			first := derive(e, map[string][]string{
				"software-window-title":    {"Slack | general - https://github.com/x/y"},
				"software-executable-path": {"/usr/bin/code"},
			})
			second, err := e.GetTags(ctx, first)
			Expect(err).NotTo(HaveOccurred())
			Expect(second.TotalValueCount()).To(Equal(first.TotalValueCount()))
			Expect(second.Map()).To(Equal(first.Map()))
		})

		It("stops after MaxPasses when rules never settle", func() {
			fetchers = []fetcher.Fetcher{&counter{}}
			groups = []rules.TagRuleGroup{group("g", rules.InternalFetcher{FetcherID: "counter"})}

			out := derive(build(), map[string][]string{"seed": {"s"}})
			Expect(out.GetAllValuesOf("n")).To(HaveLen(engine.MaxPasses))
		})
	})

	Describe("external fetchers", func() {
		var fake *fakeExternal

		BeforeEach(func() {
			fake = &fakeExternal{
				id:      "fake",
				outputs: []string{"title"},
				produce: func(key string) []tags.TagValue {
					return []tags.TagValue{{Tag: "title", Value: "T:" + key}}
				},
			}
			fetchers = []fetcher.Fetcher{fake}
			groups = []rules.TagRuleGroup{group("g", rules.ExternalFetcher{FetcherID: "fake"})}
		})

		It("fetches once and serves later evaluations from the cache", func() {
			e := build()
			in := map[string][]string{"item": {"k1"}}

			Expect(derive(e, in).GetAllValuesOf("title")).To(Equal([]string{"T:k1"}))
			Expect(derive(e, in).GetAllValuesOf("title")).To(Equal([]string{"T:k1"}))
			Expect(fake.calls).To(Equal(1))

			entry, err := cache.Get(ctx, "fake:k1")
			Expect(err).NotTo(HaveOccurred())
			Expect(entry.Kind).To(Equal(fetchcache.KindSuccess))
		})

		It("rejects output outside the declared set", func() {
			fake.produce = func(key string) []tags.TagValue {
				return []tags.TagValue{{Tag: "title", Value: key}, {Tag: "evil", Value: "1"}}
			}
			out := derive(build(), map[string][]string{"item": {"k1"}})
			Expect(out.Has("evil")).To(BeFalse())
			Expect(out.Has("title")).To(BeFalse())
		})

		It("retries temporary failures only after retry-not-before", func() {
			fake.err = &fetcher.TemporaryError{RetryAfter: time.Hour, Reason: "503"}
			e := build()
			in := map[string][]string{"item": {"k1"}}

			Expect(derive(e, in).Has("title")).To(BeFalse())
			Expect(fake.calls).To(Equal(1))

			now = now.Add(30 * time.Minute)
			derive(e, in)
			Expect(fake.calls).To(Equal(1))

			fake.err = nil
			now = now.Add(31 * time.Minute)
			Expect(derive(e, in).GetAllValuesOf("title")).To(Equal([]string{"T:k1"}))
			Expect(fake.calls).To(Equal(2))
		})

		It("never retries permanent failures", func() {
			fake.err = &fetcher.PermanentError{Reason: "404"}
			e := build()
			in := map[string][]string{"item": {"k1"}}

			derive(e, in)
			fake.err = nil
			now = now.Add(24 * 365 * time.Hour)
			Expect(derive(e, in).Has("title")).To(BeFalse())
			Expect(fake.calls).To(Equal(1))
		})

		It("does not cache unclassified failures", func() {
			fake.err = errors.New("connection reset")
			e := build()
			in := map[string][]string{"item": {"k1"}}

			Expect(derive(e, in).Has("title")).To(BeFalse())
			fake.err = nil
			Expect(derive(e, in).GetAllValuesOf("title")).To(Equal([]string{"T:k1"}))
		})

		It("does not fetch in cache-only mode", func() {
			e := build(func(c *engine.Config) { c.CacheOnly = true })
			Expect(derive(e, map[string][]string{"item": {"k1"}}).Has("title")).To(BeFalse())
			Expect(fake.calls).To(Equal(0))

			Expect(cache.Put(ctx, "fake:k2", fetchcache.Success(now, []byte(`"k2"`)))).To(Succeed())
			Expect(derive(e, map[string][]string{"item": {"k2"}}).GetAllValuesOf("title")).To(Equal([]string{"T:k2"}))
		})

		It("refetches over an unreadable cache entry without blocking other rules", func() {
			Expect(driver.PutFetchCache(ctx, "fake:k1", now, []byte(`{"kind":"v2_success"}`))).To(Succeed())
			groups = []rules.TagRuleGroup{group("g",
				rules.HasTag{Tag: "app", NewTags: newTag("unrelated", "$value")},
				rules.ExternalFetcher{FetcherID: "fake"},
			)}

			out := derive(build(), map[string][]string{"app": {"firefox"}, "item": {"k1"}})
			Expect(out.GetAllValuesOf("unrelated")).To(Equal([]string{"firefox"}))
			Expect(out.GetAllValuesOf("title")).To(Equal([]string{"T:k1"}))
			Expect(fake.calls).To(Equal(1))

			entry, err := cache.Get(ctx, "fake:k1")
			Expect(err).NotTo(HaveOccurred())
			Expect(entry.Kind).To(Equal(fetchcache.KindSuccess))
		})

		It("propagates fetch cache storage errors", func() {
			cache = brokenCache{}
			_, err := build().GetTags(ctx, tags.FromMap(map[string][]string{"item": {"k1"}}))
			Expect(err).To(MatchError(ContainSubstring("disk on fire")))
		})
	})

	Describe("reasons", func() {
		It("attributes intrinsic and derived values", func() {
			groups = []rules.TagRuleGroup{group("g", rules.HasTag{Tag: "a", NewTags: newTag("b", "$value")})}
			_, reasons, err := build().GetTagsWithReasons(ctx, tags.FromMap(map[string][]string{"a": {"x"}}))
			Expect(err).NotTo(HaveOccurred())

			Expect(reasons["a:x"].Kind).To(Equal(engine.ReasonIntrinsic))
			Expect(reasons["b:x"].Kind).To(Equal(engine.ReasonRule))
			Expect(reasons["b:x"].Group).To(Equal("g"))
			Expect(reasons["b:x"].Rule).To(ContainSubstring("HasTag(a)"))
			Expect(reasons["b:x"].Matched).To(Equal([]tags.TagValue{{Tag: "a", Value: "x"}}))
		})

		It("keeps the last producer of a value", func() {
			groups = []rules.TagRuleGroup{
				group("first", rules.HasTag{Tag: "a", NewTags: newTag("b", "1")}),
				group("second", rules.ExactTagValue{Tag: "a", Value: "x", NewTags: newTag("b", "1")}),
			}
			_, reasons, err := build().GetTagsWithReasons(ctx, tags.FromMap(map[string][]string{"a": {"x"}}))
			Expect(err).NotTo(HaveOccurred())
			Expect(reasons["b:1"].Group).To(Equal("second"))
		})

		It("never reattributes intrinsic values", func() {
			groups = []rules.TagRuleGroup{group("g", rules.HasTag{Tag: "a", NewTags: newTag("a", "$value")})}
			_, reasons, err := build().GetTagsWithReasons(ctx, tags.FromMap(map[string][]string{"a": {"x"}}))
			Expect(err).NotTo(HaveOccurred())
			Expect(reasons["a:x"].Kind).To(Equal(engine.ReasonIntrinsic))
		})
	})

	Describe("end to end", func() {
		var server *httptest.Server

		BeforeEach(func() {
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"title":"Fetched Title","author_name":"Someone","author_url":"https://www.youtube.com/@someone"}`))
			}))
			fetchers = []fetcher.Fetcher{
				urldomain.New(),
				youtube.New(youtube.Config{BaseURL: server.URL, HTTPClient: server.Client()}),
			}
			defaults, err := rules.LoadDefaults()
			Expect(err).NotTo(HaveOccurred())
			groups = defaults
		})

		AfterEach(func() {
			server.Close()
		})

		It("derives domain and video metadata from a short link", func() {
			out := derive(build(), map[string][]string{"browse-url": {"https://youtu.be/abc12345678"}})

			Expect(out.HasValue("browse-main-domain", "youtu.be")).To(BeTrue())
			Expect(out.HasValue("video-title", "Fetched Title")).To(BeTrue())
			Expect(out.HasValue("media-type", "video")).To(BeTrue())
			Expect(out.HasValue("category-top", "Entertainment")).To(BeTrue())
		})
	})
})
