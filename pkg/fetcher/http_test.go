package fetcher_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/tracks/pkg/fetcher"
)

var _ = Describe("GetJSON", func() {
	var (
		server *httptest.Server
		status int
		header http.Header
	)

	BeforeEach(func() {
		status = http.StatusOK
		header = http.Header{}
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for k, v := range header {
				w.Header()[k] = v
			}
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"ok":true}`))
		}))
	})

	AfterEach(func() {
		server.Close()
	})

	It("returns the body of a successful response", func() {
		body, err := fetcher.GetJSON(context.Background(), server.Client(), server.URL)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(body)).To(Equal(`{"ok":true}`))
	})

	It("classifies rate limiting as temporary and honours Retry-After", func() {
		status = http.StatusTooManyRequests
		header.Set("Retry-After", "120")

		_, err := fetcher.GetJSON(context.Background(), server.Client(), server.URL)
		var temp *fetcher.TemporaryError
		Expect(errors.As(err, &temp)).To(BeTrue())
		Expect(temp.RetryAfter).To(Equal(2 * time.Minute))
	})

	It("classifies server errors as temporary with the default delay", func() {
		status = http.StatusBadGateway

		_, err := fetcher.GetJSON(context.Background(), server.Client(), server.URL)
		var temp *fetcher.TemporaryError
		Expect(errors.As(err, &temp)).To(BeTrue())
		Expect(temp.RetryAfter).To(Equal(fetcher.DefaultRetryAfter))
	})

	It("classifies client errors as permanent", func() {
		status = http.StatusNotFound

		_, err := fetcher.GetJSON(context.Background(), server.Client(), server.URL)
		var perm *fetcher.PermanentError
		Expect(errors.As(err, &perm)).To(BeTrue())
		Expect(perm.Reason).To(ContainSubstring("404"))
	})

	It("leaves transport errors unclassified", func() {
		url := server.URL
		server.Close()

		_, err := fetcher.GetJSON(context.Background(), http.DefaultClient, url)
		Expect(err).To(HaveOccurred())
		var temp *fetcher.TemporaryError
		var perm *fetcher.PermanentError
		Expect(errors.As(err, &temp)).To(BeFalse())
		Expect(errors.As(err, &perm)).To(BeFalse())
	})
})
