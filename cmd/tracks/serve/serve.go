// Package servecmder provides the serve command that runs the query API
// together with background extraction.
package servecmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/papercomputeco/tracks/api"
	"github.com/papercomputeco/tracks/cmd/tracks/cmdutil"
	"github.com/papercomputeco/tracks/pkg/config"
	"github.com/papercomputeco/tracks/pkg/rulewatch"
)

type ServeCommander struct {
	noWorker  bool
	logJSON   bool
	logFile   string
	noLogFile bool

	listen             string
	rulesFile          string
	storageDriver      string
	postgres           string
	fetchCache         string
	redisAddress       string
	redisPrefix        string
	eventStream        string
	kafkaBrokers       string
	kafkaTopic         string
	youTubeBaseURL     string
	wikidataEndpoint   string
	fetchTimeout       string
	backgroundInterval string
	backgroundDays     uint
	chunkSize          uint
}

const serveLongDesc string = `Run the tracks query API.

Alongside the API a background worker keeps the most recent days
extracted, and a rule file, when configured, is imported and re-imported
whenever it changes.

Logs go to stderr and, as JSON, to tracks.log in the tracks directory
unless --no-log-file is given.

Examples:
  tracks serve
  tracks serve --listen :9000 --background-days 7
  tracks serve --log-json --no-log-file
  tracks serve --rules-file ~/.tracks/rules.json --eventstream kafka --kafka-brokers localhost:9092`

const serveShortDesc string = "Run the tracks query API"

var serveFlags = []string{
	config.FlagAPIListen,
	config.FlagRulesWatchFile,
	config.FlagStorageDriver,
	config.FlagPostgres,
	config.FlagFetchCache,
	config.FlagRedisAddress,
	config.FlagRedisPrefix,
	config.FlagEventStream,
	config.FlagKafkaBrokers,
	config.FlagKafkaTopic,
	config.FlagYouTubeBaseURL,
	config.FlagWikidataEndpoint,
	config.FlagFetchTimeout,
	config.FlagBackgroundIntrvl,
	config.FlagBackgroundDays,
	config.FlagChunkSize,
}

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	cmd.Flags().BoolVar(&cmder.noWorker, "no-worker", false, "Disable background extraction")
	cmd.Flags().BoolVar(&cmder.logJSON, "log-json", false, "Write console logs as JSON")
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "JSON log file (default: tracks.log in the tracks directory)")
	cmd.Flags().BoolVar(&cmder.noLogFile, "no-log-file", false, "Do not write a log file")
	config.AddStringFlag(cmd, config.Flags, config.FlagAPIListen, &cmder.listen)
	config.AddStringFlag(cmd, config.Flags, config.FlagRulesWatchFile, &cmder.rulesFile)
	config.AddStringFlag(cmd, config.Flags, config.FlagStorageDriver, &cmder.storageDriver)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgres, &cmder.postgres)
	config.AddStringFlag(cmd, config.Flags, config.FlagFetchCache, &cmder.fetchCache)
	config.AddStringFlag(cmd, config.Flags, config.FlagRedisAddress, &cmder.redisAddress)
	config.AddStringFlag(cmd, config.Flags, config.FlagRedisPrefix, &cmder.redisPrefix)
	config.AddStringFlag(cmd, config.Flags, config.FlagEventStream, &cmder.eventStream)
	config.AddStringFlag(cmd, config.Flags, config.FlagKafkaBrokers, &cmder.kafkaBrokers)
	config.AddStringFlag(cmd, config.Flags, config.FlagKafkaTopic, &cmder.kafkaTopic)
	config.AddStringFlag(cmd, config.Flags, config.FlagYouTubeBaseURL, &cmder.youTubeBaseURL)
	config.AddStringFlag(cmd, config.Flags, config.FlagWikidataEndpoint, &cmder.wikidataEndpoint)
	config.AddStringFlag(cmd, config.Flags, config.FlagFetchTimeout, &cmder.fetchTimeout)
	config.AddStringFlag(cmd, config.Flags, config.FlagBackgroundIntrvl, &cmder.backgroundInterval)
	config.AddUintFlag(cmd, config.Flags, config.FlagBackgroundDays, &cmder.backgroundDays)
	config.AddUintFlag(cmd, config.Flags, config.FlagChunkSize, &cmder.chunkSize)

	return cmd
}

func (c *ServeCommander) run(cmd *cobra.Command) error {
	var logFile io.Writer
	if !c.noLogFile {
		f, err := cmdutil.OpenLogFile(cmd, c.logFile)
		if err != nil {
			return err
		}
		defer f.Close()
		logFile = f
	}
	log := cmdutil.ServiceLogger(cmd, c.logJSON, logFile)

	cfg, err := cmdutil.LoadConfig(cmd, serveFlags...)
	if err != nil {
		return err
	}

	a, err := cmdutil.NewApp(cmd, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	server := api.NewServer(api.Config{ListenAddr: cfg.API.Listen}, a.Service, log)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.Run(); err != nil {
			return fmt.Errorf("API server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		return server.Shutdown()
	})

	if !c.noWorker {
		worker := a.NewWorker()
		g.Go(func() error {
			return worker.Run(ctx)
		})
	}

	if cfg.Rules.WatchFile != "" {
		w, err := rulewatch.NewWatcher(cfg.Rules.WatchFile, a.Service, rulewatch.DefaultDebounce, log)
		if err != nil {
			stop()
			_ = g.Wait()
			return err
		}
		g.Go(func() error {
			return w.Run(ctx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
