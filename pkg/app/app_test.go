package app_test

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/tracks/pkg/app"
	"github.com/papercomputeco/tracks/pkg/config"
	"github.com/papercomputeco/tracks/pkg/dotdir"
	"github.com/papercomputeco/tracks/pkg/eventstream/async"
	"github.com/papercomputeco/tracks/pkg/fetcher"
	"github.com/papercomputeco/tracks/pkg/fetcher/urldomain"
	"github.com/papercomputeco/tracks/pkg/storage/inmemory"
	"github.com/papercomputeco/tracks/pkg/tags"
)

var _ = Describe("New", func() {
	var (
		ctx context.Context
		cfg *config.Config
	)

	BeforeEach(func() {
		ctx = context.Background()
		cfg = config.NewDefaultConfig()
		cfg.Storage.Driver = config.DriverInMemory
		cfg.Fetchers.NetworkEnabled = false
	})

	It("wires an in-memory instance that derives tags", func() {
		a, err := app.New(ctx, cfg, app.Options{Fetchers: []fetcher.Fetcher{urldomain.New()}})
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(a.Close)

		Expect(a.Driver).To(BeAssignableToTypeOf(&inmemory.Driver{}))
		Expect(a.Registry.IDs()).To(ConsistOf("url-domain-matcher"))

		intrinsic := tags.New()
		intrinsic.Add("browse-url", "https://github.com/papercomputeco/tracks")
		derived, _, err := a.Service.DeriveTags(ctx, intrinsic)
		Expect(err).NotTo(HaveOccurred())
		Expect(derived.GetAllValuesOf("browse-main-domain")).To(ContainElement("github.com"))
	})

	It("builds the background worker from the extract section", func() {
		a, err := app.New(ctx, cfg, app.Options{Fetchers: []fetcher.Fetcher{}})
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(a.Close)

		w := a.NewWorker()
		Expect(w).NotTo(BeNil())
		Expect(w.Runs()).To(BeZero())
	})

	It("opens SQLite under the config dir by default", func() {
		dir := GinkgoT().TempDir()
		cfg.Storage.Driver = config.DriverSQLite

		a, err := app.New(ctx, cfg, app.Options{ConfigDir: dir, Fetchers: []fetcher.Fetcher{}})
		Expect(err).NotTo(HaveOccurred())
		Expect(a.Close()).To(Succeed())

		_, err = os.Stat(filepath.Join(dir, dotdir.DatabaseFile))
		Expect(err).NotTo(HaveOccurred())
	})

	It("rejects unknown providers", func() {
		cfg.Storage.Driver = "mongo"
		_, err := app.New(ctx, cfg, app.Options{})
		Expect(err).To(MatchError(ContainSubstring("unknown storage driver")))

		cfg.Storage.Driver = config.DriverInMemory
		cfg.FetchCache.Provider = "memcached"
		_, err = app.New(ctx, cfg, app.Options{})
		Expect(err).To(MatchError(ContainSubstring("unknown fetch cache provider")))
	})

	It("requires brokers for the kafka event stream", func() {
		cfg.EventStream.Provider = config.EventStreamKafka
		_, err := app.New(ctx, cfg, app.Options{Fetchers: []fetcher.Fetcher{}})
		Expect(err).To(MatchError(ContainSubstring("creating kafka publisher")))
	})

	It("publishes kafka day events through the async pool", func() {
		cfg.EventStream.Provider = config.EventStreamKafka
		cfg.EventStream.KafkaBrokers = "localhost:9092"
		a, err := app.New(ctx, cfg, app.Options{Fetchers: []fetcher.Fetcher{}})
		Expect(err).NotTo(HaveOccurred())
		Expect(a.Publisher).To(BeAssignableToTypeOf(&async.Pool{}))
		Expect(a.Close()).To(Succeed())
	})

	It("rejects malformed durations from any config source", func() {
		cfg.Fetchers.Timeout = "ten seconds"
		_, err := app.New(ctx, cfg, app.Options{})
		Expect(err).To(MatchError(ContainSubstring(`invalid fetchers.timeout "ten seconds"`)))

		cfg.Fetchers.Timeout = "10s"
		cfg.Extract.BackgroundInterval = "5"
		_, err = app.New(ctx, cfg, app.Options{})
		Expect(err).To(MatchError(ContainSubstring(`invalid extract.background_interval "5"`)))
	})

	It("requires a DSN for postgres", func() {
		cfg.Storage.Driver = config.DriverPostgres
		_, err := app.New(ctx, cfg, app.Options{})
		Expect(err).To(MatchError(ContainSubstring("postgres_dsn")))
	})
})
