package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/tracks/pkg/engine"
	"github.com/papercomputeco/tracks/pkg/events"
	"github.com/papercomputeco/tracks/pkg/extract"
	"github.com/papercomputeco/tracks/pkg/fetchcache"
	"github.com/papercomputeco/tracks/pkg/fetcher"
	"github.com/papercomputeco/tracks/pkg/fetcher/urldomain"
	"github.com/papercomputeco/tracks/pkg/logger"
	"github.com/papercomputeco/tracks/pkg/query"
	"github.com/papercomputeco/tracks/pkg/rules"
	"github.com/papercomputeco/tracks/pkg/storage/inmemory"
	"github.com/papercomputeco/tracks/pkg/storage/storagetest"
)

func doRequest(server *Server, method, path string, body any) (*http.Response, []byte) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, path, reader)
	Expect(err).NotTo(HaveOccurred())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := server.app.Test(req)
	Expect(err).NotTo(HaveOccurred())
	respBody, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	return resp, respBody
}

var _ = Describe("Server", func() {
	var (
		server *Server
		driver *inmemory.Driver
	)

	BeforeEach(func() {
		ctx := context.Background()
		driver = inmemory.NewDriver()

		defaults, err := rules.LoadDefaults()
		Expect(err).NotTo(HaveOccurred())
		registry, err := fetcher.NewRegistry(logger.Nop(), urldomain.New())
		Expect(err).NotTo(HaveOccurred())

		eng := engine.New(engine.Config{
			Groups:   driver,
			Defaults: defaults,
			Registry: registry,
			Cache:    fetchcache.NewStore(driver),
		})
		svc := query.New(query.Config{
			Store:     driver,
			Engine:    eng,
			Extractor: extract.New(extract.Config{Store: driver, Engine: eng}),
			Defaults:  defaults,
		})
		server = NewServer(Config{ListenAddr: ":0"}, svc, logger.Nop())

		_, err = driver.InsertEvents(ctx, []*events.Event{
			storagetest.NewEvent("gh", 0, "https://github.com/papercomputeco - Firefox"),
			storagetest.NewEvent("term", time.Minute, "zsh"),
			storagetest.NewEvent("next-day", 24*time.Hour, "vim"),
		}, time.Now())
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("GET /ping", func() {
		It("returns pong", func() {
			resp, body := doRequest(server, http.MethodGet, "/ping", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			Expect(string(body)).To(Equal(`"pong"`))
		})
	})

	Describe("GET /v1/extracted", func() {
		It("returns events of a day range", func() {
			resp, body := doRequest(server, http.MethodGet, "/v1/extracted?from=2024-03-01&to=2024-03-01", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var result ExtractedResponse
			Expect(json.Unmarshal(body, &result)).To(Succeed())
			Expect(result.Events).To(HaveLen(2))
			Expect(result.Events[0].ID).To(Equal("gh"))
			Expect(result.Events[0].DurationMS).To(Equal(int64(5000)))
			Expect(result.Events[0].Tags.HasValue("browse-main-domain", "github.com")).To(BeTrue())
		})

		It("accepts RFC 3339 bounds and a tag filter", func() {
			resp, body := doRequest(server, http.MethodGet,
				"/v1/extracted?from=2024-03-01T00:00:00Z&to=2024-03-03T00:00:00Z&tag=browse-main-domain,category", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var result ExtractedResponse
			Expect(json.Unmarshal(body, &result)).To(Succeed())
			Expect(result.Events).To(HaveLen(1))
			Expect(result.Events[0].Tags.Names()).To(ConsistOf("browse-main-domain", "category"))
		})

		It("rejects missing and malformed bounds", func() {
			resp, _ := doRequest(server, http.MethodGet, "/v1/extracted?from=2024-03-01", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))

			resp, body := doRequest(server, http.MethodGet, "/v1/extracted?from=yesterday&to=2024-03-01", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))

			var errResp ErrorResponse
			Expect(json.Unmarshal(body, &errResp)).To(Succeed())
			Expect(errResp.Error).To(ContainSubstring("invalid from"))

			resp, _ = doRequest(server, http.MethodGet, "/v1/extracted?from=2024-03-02&to=2024-03-01T00:00:00Z", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})
	})

	Describe("GET /v1/extracted range limit", func() {
		It("rejects spans longer than the limit without extracting", func() {
			resp, body := doRequest(server, http.MethodGet, "/v1/extracted?from=1970-01-01&to=2100-01-01", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))

			var errResp ErrorResponse
			Expect(json.Unmarshal(body, &errResp)).To(Succeed())
			Expect(errResp.Error).To(Equal("range exceeds 366 days"))

			cur, err := driver.GetCurrency(context.Background(), []string{"2024-03-01"})
			Expect(err).NotTo(HaveOccurred())
			Expect(cur["2024-03-01"].Extracted.IsZero()).To(BeTrue())
		})

		It("accepts a full leap year", func() {
			resp, _ := doRequest(server, http.MethodGet, "/v1/extracted?from=2024-01-01&to=2024-12-31", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
		})

		It("honours a configured limit", func() {
			server.config.MaxRangeDays = 1
			resp, _ := doRequest(server, http.MethodGet, "/v1/extracted?from=2024-03-01&to=2024-03-03", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})
	})

	Describe("GET /v1/events/:id/tags", func() {
		It("returns derived tags", func() {
			resp, body := doRequest(server, http.MethodGet, "/v1/events/gh/tags", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var result TagsResponse
			Expect(json.Unmarshal(body, &result)).To(Succeed())
			Expect(result.ID).To(Equal("gh"))
			Expect(result.Tags.HasValue("browse-domain", "github.com")).To(BeTrue())
			Expect(result.Reasons).To(BeEmpty())
		})

		It("includes reasons when asked", func() {
			resp, body := doRequest(server, http.MethodGet, "/v1/events/gh/tags?reasons=true", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var result TagsResponse
			Expect(json.Unmarshal(body, &result)).To(Succeed())
			Expect(result.Reasons).To(HaveKey("browse-domain:github.com"))
			Expect(result.Reasons["browse-domain:github.com"].Kind).To(Equal(engine.ReasonRule))
		})

		It("returns 404 for unknown events", func() {
			resp, body := doRequest(server, http.MethodGet, "/v1/events/missing/tags", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusNotFound))

			var errResp ErrorResponse
			Expect(json.Unmarshal(body, &errResp)).To(Succeed())
			Expect(errResp.Error).NotTo(BeEmpty())
		})
	})

	Describe("GET /v1/events/:id/extracted", func() {
		It("returns the materialized tags", func() {
			resp, body := doRequest(server, http.MethodGet, "/v1/events/term/extracted", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var result ExtractedEvent
			Expect(json.Unmarshal(body, &result)).To(Succeed())
			Expect(result.Tags.HasValue("software-window-title", "zsh")).To(BeTrue())
		})

		It("returns 404 for unknown events", func() {
			resp, _ := doRequest(server, http.MethodGet, "/v1/events/missing/extracted", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusNotFound))
		})
	})

	Describe("rule groups", func() {
		mine := func() rules.VersionedData {
			return rules.NewGroup("mine", rules.GroupData{
				Name:     "mine",
				Editable: true,
				Enabled:  true,
				Rules: []rules.RuleEntry{{Enabled: true, Rule: rules.HasTag{
					Tag:     "browse-domain",
					NewTags: []rules.NewTag{{Tag: "visited", Value: "$value"}},
				}}},
			}).Data
		}

		It("stores a group and applies it", func() {
			resp, _ := doRequest(server, http.MethodPut, "/v1/rule-groups/mine", mine())
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			resp, body := doRequest(server, http.MethodGet, "/v1/rule-groups", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			var groups []rules.TagRuleGroup
			Expect(json.Unmarshal(body, &groups)).To(Succeed())
			Expect(groups[0].GlobalID).To(Equal("mine"))

			resp, body = doRequest(server, http.MethodGet, "/v1/events/gh/extracted", nil)
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))
			var result ExtractedEvent
			Expect(json.Unmarshal(body, &result)).To(Succeed())
			Expect(result.Tags.HasValue("visited", "github.com")).To(BeTrue())
		})

		It("refuses to overwrite defaults", func() {
			resp, _ := doRequest(server, http.MethodPut, "/v1/rule-groups/default-domains", mine())
			Expect(resp.StatusCode).To(Equal(fiber.StatusForbidden))
		})

		It("rejects unknown versions", func() {
			resp, _ := doRequest(server, http.MethodPut, "/v1/rule-groups/mine", map[string]any{"version": "V9", "data": map[string]any{}})
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})
	})

	Describe("POST /v1/derive", func() {
		It("derives tags from a supplied tag set", func() {
			resp, body := doRequest(server, http.MethodPost, "/v1/derive", map[string]any{
				"tags": map[string][]string{"browse-url": {"https://youtu.be/abc12345678"}},
			})
			Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

			var result TagsResponse
			Expect(json.Unmarshal(body, &result)).To(Succeed())
			Expect(result.Tags.HasValue("browse-main-domain", "youtu.be")).To(BeTrue())
			Expect(result.Tags.HasValue("category", "Entertainment/Video")).To(BeTrue())
			Expect(result.Reasons).To(HaveKey("browse-url:https://youtu.be/abc12345678"))
		})

		It("rejects malformed bodies", func() {
			req, err := http.NewRequest(http.MethodPost, "/v1/derive", bytes.NewReader([]byte("{")))
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Content-Type", "application/json")
			resp, err := server.app.Test(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
		})
	})
})
