package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/snapp-incubator/conformer/internal/catalog"
	"github.com/snapp-incubator/conformer/internal/config"
	"github.com/snapp-incubator/conformer/internal/failure"
	"github.com/snapp-incubator/conformer/internal/jsonvalue"
	"github.com/snapp-incubator/conformer/internal/logging"
	"github.com/snapp-incubator/conformer/internal/tester"
	"github.com/snapp-incubator/conformer/internal/transport"
)

type compareOptions struct {
	reference string
	candidate string
	body      string
	args      []string
	skipPaths []string
	timeout   time.Duration
	logLevel  string
}

func newCompareCmd() *cobra.Command {
	var opts compareOptions

	cmd := &cobra.Command{
		Use:   "compare METHOD ENDPOINT",
		Short: "Compare a single request against both upstreams",
		Long: `Compare sends one request to the reference and candidate upstreams and
prints the first shape difference of the replies.

ENDPOINT is a catalog name (see "conformer endpoints") or a literal path
starting with "/". Each {} placeholder takes one --arg in order. For GET and
DELETE the --body object is sent as query parameters.

Exit status is 0 when the shapes match, 1 when they differ, and 2 when either
request could not be sent or answered with a body that is not JSON.`,
		Example: `  conformer compare --reference http://localhost:8080 --candidate http://localhost:8081 \
    GET adminQuizId --arg 5 --body '{"token":"abc"}'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return compareOnce(cmd, args, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.reference, "reference", "", "base URL of the reference upstream")
	f.StringVar(&opts.candidate, "candidate", "", "base URL of the candidate upstream")
	f.StringVar(&opts.body, "body", "", "JSON request body")
	f.StringArrayVar(&opts.args, "arg", nil, "value of the next {} placeholder")
	f.StringArrayVar(&opts.skipPaths, "skip-path", nil, "JSON path ignored in both replies")
	f.DurationVar(&opts.timeout, "timeout", 10*time.Second, "per-request timeout")
	f.StringVar(&opts.logLevel, "log-level", "warn", "log level")
	_ = cmd.MarkFlagRequired("reference")
	_ = cmd.MarkFlagRequired("candidate")
	return cmd
}

func compareOnce(cmd *cobra.Command, args []string, opts compareOptions) error {
	if err := logging.InitializeLogger(opts.logLevel); err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}

	method := strings.ToUpper(args[0])
	if !config.IsSupportedMethod(method) {
		return fmt.Errorf("unsupported method %q", args[0])
	}

	tpl, err := catalog.Resolve(args[1])
	if err != nil {
		return err
	}
	placeholders := make([]any, len(opts.args))
	for i, a := range opts.args {
		placeholders[i] = a
	}
	endpoint, err := tpl.Expand(placeholders...)
	if err != nil {
		return err
	}

	var body jsonvalue.Value
	if opts.body != "" {
		if body, err = jsonvalue.Parse([]byte(opts.body)); err != nil {
			return fmt.Errorf("--body: %w", err)
		}
	}

	candidate := transport.New("candidate", opts.candidate, transport.WithTimeout(opts.timeout))
	reference := transport.New("reference", opts.reference, transport.WithTimeout(opts.timeout))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	res, err := tester.New(candidate, reference).Run(ctx, tester.Request{
		Endpoint:  endpoint,
		Method:    method,
		Body:      body,
		SkipPaths: opts.skipPaths,
	})
	out := cmd.OutOrStdout()
	if err != nil {
		logging.L.Debug("Comparison failed", zap.String("endpoint", endpoint), zap.Error(err))
		fmt.Fprintln(out, err)
		if failure.KindOf(err) == failure.KindShapeMismatch {
			return exitCodeError(exitDivergence)
		}
		return exitCodeError(exitError)
	}

	fmt.Fprintf(out, "same shape: %s %s (candidate %d, reference %d)\n",
		method, endpoint, res.Candidate.StatusCode, res.Reference.StatusCode)
	if res.Candidate.StatusCode != res.Reference.StatusCode {
		logging.L.Warn("Status codes differ", zap.Int("candidate", res.Candidate.StatusCode), zap.Int("reference", res.Reference.StatusCode))
	}
	return nil
}
