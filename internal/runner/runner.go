// Package runner executes configured cases against both upstreams with a
// bounded worker pool and records the outcome of every case.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/snapp-incubator/conformer/internal/catalog"
	"github.com/snapp-incubator/conformer/internal/config"
	"github.com/snapp-incubator/conformer/internal/failure"
	"github.com/snapp-incubator/conformer/internal/jsonvalue"
	"github.com/snapp-incubator/conformer/internal/logging"
	"github.com/snapp-incubator/conformer/internal/metrics"
	"github.com/snapp-incubator/conformer/internal/storage"
	"github.com/snapp-incubator/conformer/internal/tester"
)

// Options tune a Runner. Zero values fall back to one worker, an unbuffered
// queue, no throttling, the package default route config and no storage.
type Options struct {
	Workers   uint
	QueueSize uint
	FailFast  bool
	Limiter   *rate.Limiter
	Routes    *config.ComputedRouteConfigs
	Storage   storage.Storage
}

// Runner drives a Tester over a list of cases.
type Runner struct {
	tester *tester.Tester
	opts   Options
}

// New returns a Runner for t.
func New(t *tester.Tester, opts Options) *Runner {
	if opts.Workers == 0 {
		opts.Workers = 1
	}
	if opts.Routes == nil {
		opts.Routes = (&config.Config{}).PrecomputeRouteConfigs()
	}
	return &Runner{tester: t, opts: opts}
}

// Run dispatches every case and waits for all of them. The returned error is
// non-nil when a case cannot be built, the limiter refuses to admit a case, or
// ctx ends before all cases ran; comparison failures are reported through the
// Summary.
func (r *Runner) Run(ctx context.Context, cases []config.Case) (*Summary, error) {
	jobs := make([]*caseJob, 0, len(cases))
	for i, c := range cases {
		j, err := prepare(i, c)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	outcomes := make([]Outcome, len(jobs))
	var failed atomic.Bool

	queue := make(chan *caseJob, r.opts.QueueSize)
	var wg sync.WaitGroup
	for i := uint(0); i < r.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range queue {
				o := r.do(runCtx, job)
				if o.Err != nil && runCtx.Err() != nil && errors.Is(o.Err, context.Canceled) {
					o = job.skipped(cancelReason(ctx))
				}
				if o.Failed() && r.opts.FailFast && !failed.Swap(true) {
					logging.L.Warn("Stopping after the first failure", zap.String("case", job.name))
					cancel()
				}
				outcomes[job.index] = o
			}
		}()
	}

	var limitErr error
	dispatched := 0
feed:
	for _, job := range jobs {
		if r.opts.Routes.IsSkipped(job.route) {
			metrics.RouteSkipCounter.WithLabelValues(job.templateRoute, job.method, "config").Inc()
			outcomes[job.index] = job.skipped("config")
			dispatched++
			continue
		}

		if r.opts.Limiter != nil {
			if err := r.opts.Limiter.Wait(runCtx); err != nil {
				if runCtx.Err() == nil {
					limitErr = err
				}
				break feed
			}
		}

		select {
		case queue <- job:
			dispatched++
		case <-runCtx.Done():
			break feed
		}
	}
	close(queue)
	wg.Wait()

	for _, job := range jobs[dispatched:] {
		reason := cancelReason(ctx)
		if limitErr != nil {
			reason = "rate_limit"
		}
		metrics.RouteSkipCounter.WithLabelValues(job.templateRoute, job.method, reason).Inc()
		outcomes[job.index] = job.skipped(reason)
	}

	summary := summarize(outcomes)
	if limitErr != nil {
		return summary, fmt.Errorf("rate limiter: %w", limitErr)
	}
	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("run interrupted: %w", err)
	}
	return summary, nil
}

// cancelReason tells a fail-fast stop from the caller giving up.
func cancelReason(parent context.Context) string {
	if parent.Err() != nil {
		return "cancelled"
	}
	return "fail_fast"
}

// do runs one case and records its outcome in logs, metrics and storage.
func (r *Runner) do(ctx context.Context, j *caseJob) Outcome {
	routeConfig := r.opts.Routes.Lookup(j.route)

	start := time.Now()
	res, err := r.tester.Run(ctx, tester.Request{
		Endpoint:  j.endpoint,
		Method:    j.method,
		Body:      j.body,
		SkipPaths: routeConfig.SkipJSONPaths,
	})
	o := Outcome{
		Index:    j.index,
		Case:     j.name,
		Method:   j.method,
		Endpoint: j.endpoint,
		Kind:     failure.KindOf(err),
		Err:      err,
		Duration: time.Since(start),
	}

	fields := j.loggingFields(o.Duration)
	if err == nil {
		logging.L.Info("Same response shape", fields...)
		metrics.ComparisonResults.WithLabelValues(j.templateRoute, j.method, "identical_shape").Inc()
		return o
	}

	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		// Not a verdict on the upstreams; the caller decides how to count it.
		return o
	}

	label := o.Kind.Label()
	metrics.ComparisonResults.WithLabelValues(j.templateRoute, j.method, label).Inc()
	if o.Kind == failure.KindShapeMismatch {
		logging.L.Warn("Different response shape", append(fields, zap.Error(err))...)
	} else {
		logging.L.Error("Comparison failed", append(fields, zap.Error(err))...)
	}

	if r.opts.Storage != nil {
		report := j.report(err, res, routeConfig)
		if serr := r.opts.Storage.Store(ctx, report); serr != nil {
			logging.L.Error("Error in storing the report", append(fields, zap.Error(serr))...)
		}
	}
	return o
}

type caseJob struct {
	index         int
	name          string
	method        string
	endpoint      string
	body          jsonvalue.Value
	route         string
	templateRoute string
}

func prepare(index int, c config.Case) (*caseJob, error) {
	tpl, err := catalog.Resolve(c.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("case %q: %w", c.Name, err)
	}

	endpoint, err := tpl.Expand(c.Args...)
	if err != nil {
		return nil, fmt.Errorf("case %q: %w", c.Name, err)
	}

	var body jsonvalue.Value
	if c.Body != nil {
		if body, err = jsonvalue.FromAny(c.Body); err != nil {
			return nil, fmt.Errorf("case %q: body: %w", c.Name, err)
		}
	}

	name := c.Name
	if name == "" {
		name = config.FormatRoute(c.Method, string(tpl))
	}

	return &caseJob{
		index:         index,
		name:          name,
		method:        c.Method,
		endpoint:      endpoint,
		body:          body,
		route:         config.FormatRoute(c.Method, endpoint),
		templateRoute: config.FormatRoute(c.Method, string(tpl)),
	}, nil
}

func (j *caseJob) loggingFields(d time.Duration) []zap.Field {
	return []zap.Field{
		zap.String("case", j.name),
		zap.String("method", j.method),
		zap.String("endpoint", j.endpoint),
		zap.String("route", j.templateRoute),
		zap.Duration("duration", d),
	}
}

func (j *caseJob) skipped(reason string) Outcome {
	return Outcome{
		Index:      j.index,
		Case:       j.name,
		Method:     j.method,
		Endpoint:   j.endpoint,
		Skipped:    true,
		SkipReason: reason,
	}
}

func (j *caseJob) report(err error, res *tester.Result, rc config.ComputedRouteConfig) storage.Report {
	report := storage.Report{
		Case:           j.name,
		Method:         j.method,
		Endpoint:       j.endpoint,
		Route:          j.templateRoute,
		ComparisonType: failure.KindOf(err).Label(),
		Error:          err.Error(),
		Timestamp:      time.Now().UTC(),
	}

	if m, ok := failure.AsMismatch(err); ok {
		report.Path = m.Path.Pointer()
		report.ClientValue = []byte(jsonvalue.Encode(m.Client))
		report.ReferenceValue = []byte(jsonvalue.Encode(m.Reference))
	}

	if rc.StoreReqBody && j.body != nil {
		reqBody := jsonvalue.Encode(j.body)
		report.RequestBody = &reqBody
	}

	if res != nil {
		report.CandidateStatusCode = res.Candidate.StatusCode
		report.ReferenceStatusCode = res.Reference.StatusCode
		if rc.StoreRespBodies {
			candidateBody := string(res.Candidate.Raw)
			referenceBody := string(res.Reference.Raw)
			report.CandidateResponsePayload = &candidateBody
			report.ReferenceResponsePayload = &referenceBody
		}
	}

	return report
}
