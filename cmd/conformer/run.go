package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/snapp-incubator/conformer/internal/config"
	"github.com/snapp-incubator/conformer/internal/logging"
	"github.com/snapp-incubator/conformer/internal/metrics"
	"github.com/snapp-incubator/conformer/internal/runner"
	"github.com/snapp-incubator/conformer/internal/storage"
	"github.com/snapp-incubator/conformer/internal/tester"
	"github.com/snapp-incubator/conformer/internal/transport"
)

func newRunCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the cases of a config file against both upstreams",
		Long: `Run loads the config file, sends every case to the reference and candidate
upstreams and stores a report for each failure.

Exit status is 0 when every case matched, 1 when at least one case diverged
or failed, and 2 when the run itself could not complete.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCases(cmd, configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path of the YAML config file")
	return cmd
}

func runCases(cmd *cobra.Command, configPath string) error {
	c, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logging.InitializeLogger(c.LogLevel); err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	logging.L.Info("Logger initialized", zap.String("log_level", c.LogLevel))

	strg, err := newStorage(c, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	if c.Metrics.Enabled {
		go metrics.InitializeHTTP(c.Metrics.Bind)
	}

	candidate := newClient("candidate", c.Upstreams.Candidate)
	reference := newClient("reference", c.Upstreams.Reference)

	opts := runner.Options{
		Workers:   c.Worker.Count,
		QueueSize: c.Worker.QueueSize,
		FailFast:  c.FailFast,
		Routes:    c.Routes,
		Storage:   strg,
	}
	if c.RateLimit.RequestsPerSecond > 0 {
		opts.Limiter = rate.NewLimiter(rate.Limit(c.RateLimit.RequestsPerSecond), c.RateLimit.Burst)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.L.Info("Starting run",
		zap.Int("cases", len(c.Cases)),
		zap.String("reference_upstream", reference.BaseURL()),
		zap.String("candidate_upstream", candidate.BaseURL()),
	)

	summary, err := runner.New(tester.New(candidate, reference), opts).Run(ctx, c.Cases)
	if summary != nil {
		printSummary(cmd, summary)
	}
	if err != nil {
		return err
	}
	if !summary.OK() {
		return exitCodeError(exitDivergence)
	}
	return nil
}

func newClient(name string, u config.Upstream) *transport.Client {
	opts := []transport.Option{transport.WithHeaders(u.Headers)}
	if u.Timeout > 0 {
		opts = append(opts, transport.WithTimeout(u.Timeout))
	}
	return transport.New(name, u.Address, opts...)
}

func newStorage(c *config.Config, out io.Writer) (storage.Storage, error) {
	switch c.StorageType {
	case "stdout":
		logging.L.Info("Using stdout storage backend")
		return &storage.StdoutStorage{W: out}, nil
	case "elasticsearch":
		es, err := elasticsearch.NewClient(elasticsearch.Config{
			Addresses:              c.Elasticsearch.Addresses,
			Username:               c.Elasticsearch.Username,
			Password:               c.Elasticsearch.Password,
			CloudID:                c.Elasticsearch.CloudID,
			APIKey:                 c.Elasticsearch.APIKey,
			ServiceToken:           c.Elasticsearch.ServiceToken,
			CertificateFingerprint: c.Elasticsearch.CertificateFingerprint,
		})
		if err != nil {
			return nil, fmt.Errorf("error in connecting to Elasticsearch: %w", err)
		}

		esInfo, err := es.Info()
		if err != nil {
			return nil, fmt.Errorf("error in getting info from Elasticsearch: %w", err)
		}
		defer func() { _ = esInfo.Body.Close() }()
		if esInfo.IsError() {
			return nil, fmt.Errorf("error in getting info from Elasticsearch: %s", esInfo.Status())
		}

		logging.L.Info("Connected to Elasticsearch", zap.String("info", esInfo.String()))
		return &storage.ElasticStorage{ES: es, Index: c.Elasticsearch.Index}, nil
	}
	return nil, fmt.Errorf("unknown storage type %q", c.StorageType)
}

func printSummary(cmd *cobra.Command, s *runner.Summary) {
	out := cmd.ErrOrStderr()
	for _, o := range s.Failures() {
		fmt.Fprintf(out, "FAIL %s: %v\n", o.Case, o.Err)
	}
	fmt.Fprintf(out, "%d cases: %d passed, %d failed, %d skipped\n", s.Total, s.Passed, s.Failed, s.Skipped)

	logging.L.Info("Run finished",
		zap.Int("total", s.Total),
		zap.Int("passed", s.Passed),
		zap.Int("failed", s.Failed),
		zap.Int("skipped", s.Skipped),
	)
}
