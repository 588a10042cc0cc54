package wordcount

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// ResourceFetcher retrieves one raw record.
type ResourceFetcher interface {
	Fetch(ctx context.Context, kind ResourceKind, key string) (RawPayload, error)
}

// RetryPolicy configures caller-side retries of transient fetch failures.
//
// MaxAttempts <= 1 disables retry.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
}

const retryMaxInterval = 5 * time.Second

func (r RetryPolicy) backOff() *backoff.ExponentialBackOff {
	policy := backoff.NewExponentialBackOff()
	if r.InitialInterval > 0 {
		policy.InitialInterval = r.InitialInterval
	}
	policy.MaxInterval = retryMaxInterval
	policy.MaxElapsedTime = 0

	return policy
}

// MaxBackoff returns the longest total sleep the policy can spend between attempts.
func (r RetryPolicy) MaxBackoff() time.Duration {
	policy := r.backOff()
	interval := float64(policy.InitialInterval)

	var total time.Duration
	for range max(r.MaxAttempts-1, 0) {
		total += time.Duration(interval * (1 + policy.RandomizationFactor))
		interval = min(interval*policy.Multiplier, float64(policy.MaxInterval))
	}

	return total
}

// AggregationReport is one rendered multi-line report.
type AggregationReport struct {
	Lines []string
	// Summary is empty when the report has no summary line.
	Summary string
	// Regions holds the ranked stats behind Lines.
	Regions []RegionStat
}

// Text joins the report lines with newlines.
func (r AggregationReport) Text() string {
	return strings.Join(r.Lines, "\n")
}

// OutcomeKind classifies the result of one user lookup.
type OutcomeKind int

const (
	// OutcomeFound means the writer record was resolved.
	OutcomeFound OutcomeKind = iota + 1
	// OutcomeUnknownIdentity means the service does not know the identifier.
	OutcomeUnknownIdentity
	// OutcomeUnavailable means the service could not be reached or understood.
	OutcomeUnavailable
)

// UserOutcome is the classified result of one user lookup.
type UserOutcome struct {
	Kind OutcomeKind
	// Query is the identifier as the caller typed it, trimmed.
	Query string
	// Identifier is the normalized key sent to the service.
	Identifier string
	Stat       UserStat
	// Err holds the underlying failure for non-found outcomes.
	Err error
}

// Text renders the user-facing reply for this outcome.
func (o UserOutcome) Text() string {
	switch o.Kind {
	case OutcomeFound:
		return RenderUser(o.Stat)
	case OutcomeUnknownIdentity:
		return RenderUnknownIdentity(o.Query)
	default:
		return UnavailableMessage
	}
}

// PipelineOption mutates pipeline configuration.
type PipelineOption func(*Pipeline)

// WithPipelineLogger sets the logger used for skipped records.
func WithPipelineLogger(logger *slog.Logger) PipelineOption {
	return func(pipeline *Pipeline) {
		if logger != nil {
			pipeline.logger = logger
		}
	}
}

// WithRetryPolicy enables caller-side retry of transient failures.
func WithRetryPolicy(policy RetryPolicy) PipelineOption {
	return func(pipeline *Pipeline) {
		pipeline.retry = policy
	}
}

// WithBatchTimeout sets the shared deadline for one region batch.
func WithBatchTimeout(timeout time.Duration) PipelineOption {
	return func(pipeline *Pipeline) {
		if timeout > 0 {
			pipeline.batchTimeout = timeout
		}
	}
}

// WithClock overrides the clock used to pick today's history entry.
func WithClock(clock func() time.Time) PipelineOption {
	return func(pipeline *Pipeline) {
		if clock != nil {
			pipeline.clock = clock
		}
	}
}

// Pipeline fetches, parses, ranks, and renders word-count records.
//
// A Pipeline holds no per-call state and is safe for concurrent use.
type Pipeline struct {
	fetcher      ResourceFetcher
	logger       *slog.Logger
	retry        RetryPolicy
	batchTimeout time.Duration
	clock        func() time.Time
}

// NewPipeline creates an aggregation pipeline over fetcher.
func NewPipeline(fetcher ResourceFetcher, options ...PipelineOption) *Pipeline {
	pipeline := &Pipeline{
		fetcher: fetcher,
		logger:  slog.Default(),
		clock:   time.Now,
	}
	for _, option := range options {
		option(pipeline)
	}

	return pipeline
}

// AggregateRegions renders the word-count report ranked by average descending.
//
// A transient failure on any region fails the whole call. Regions whose
// payload is malformed or incomplete are skipped.
func (p *Pipeline) AggregateRegions(ctx context.Context, keys []string) (AggregationReport, error) {
	stats, err := p.collectRegions(ctx, keys)
	if err != nil {
		return AggregationReport{}, err
	}

	slices.SortStableFunc(stats, func(a, b RegionStat) int {
		return cmp.Compare(b.Average, a.Average)
	})

	lines := make([]string, 0, len(stats))
	for _, stat := range stats {
		lines = append(lines, RenderRegion(stat))
	}

	return AggregationReport{Lines: lines, Regions: stats}, nil
}

// AggregateDonations renders the donation report ranked by donations
// descending, with a running total summary when the total is non-zero.
func (p *Pipeline) AggregateDonations(ctx context.Context, keys []string) (AggregationReport, error) {
	stats, err := p.collectRegions(ctx, keys)
	if err != nil {
		return AggregationReport{}, err
	}

	slices.SortStableFunc(stats, func(a, b RegionStat) int {
		return b.Donations.Cmp(a.Donations)
	})

	total := decimal.Zero
	lines := make([]string, 0, len(stats))
	for _, stat := range stats {
		total = total.Add(stat.Donations)
		lines = append(lines, RenderDonation(stat))
	}

	report := AggregationReport{Lines: lines, Regions: stats}
	if !total.IsZero() {
		report.Summary = RenderDonationSummary(total)
	}

	return report, nil
}

// AggregateUser resolves one writer and classifies the outcome.
//
// The returned error is non-nil only when identifier is empty.
func (p *Pipeline) AggregateUser(ctx context.Context, identifier string) (UserOutcome, error) {
	normalized := NormalizeIdentifier(identifier)
	if normalized == "" {
		return UserOutcome{}, ErrEmptyIdentifier
	}

	outcome := UserOutcome{Query: strings.TrimSpace(identifier), Identifier: normalized}
	payload, err := p.fetch(ctx, ResourceUser, normalized)
	if err == nil {
		outcome.Stat, err = ParseUser(payload, p.clock().Day())
	}

	switch {
	case err == nil:
		outcome.Kind = OutcomeFound
	case IsFieldMissing(err):
		outcome.Kind = OutcomeUnknownIdentity
		outcome.Err = err
		p.logger.InfoContext(ctx, "wordcount unknown identity", "identifier", normalized, "error", err)
	default:
		outcome.Kind = OutcomeUnavailable
		outcome.Err = err
		p.logger.WarnContext(ctx, "wordcount user lookup unavailable", "identifier", normalized, "error", err)
	}

	return outcome, nil
}

// NormalizeIdentifier lower-cases identifier and joins its words with "-".
func NormalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.Join(strings.Fields(identifier), "-"))
}

// collectRegions fetches and parses keys concurrently and returns successes
// in input order.
func (p *Pipeline) collectRegions(ctx context.Context, keys []string) ([]RegionStat, error) {
	if p.batchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.batchTimeout)
		defer cancel()
	}

	slots := make([]*RegionStat, len(keys))
	group, groupCtx := errgroup.WithContext(ctx)
	for index, key := range keys {
		group.Go(func() error {
			payload, err := p.fetch(groupCtx, ResourceRegion, key)
			if err == nil {
				var stat RegionStat
				stat, err = ParseRegion(payload)
				if err == nil {
					slots[index] = &stat
					return nil
				}
			}
			if IsTransient(err) || (!IsMalformed(err) && !IsFieldMissing(err)) {
				return err
			}

			p.logger.WarnContext(groupCtx, "wordcount skipped region", "region", key, "error", err)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, fmt.Errorf("aggregate regions: %w", err)
	}

	stats := make([]RegionStat, 0, len(keys))
	for _, slot := range slots {
		if slot != nil {
			stats = append(stats, *slot)
		}
	}

	return stats, nil
}

// fetch performs one logical fetch, retrying transient failures when the
// policy allows.
func (p *Pipeline) fetch(ctx context.Context, kind ResourceKind, key string) (RawPayload, error) {
	if p.fetcher == nil {
		return RawPayload{}, fmt.Errorf("fetch %s %q: fetcher not configured", kind, key)
	}

	return p.fetchWithRetry(ctx, kind, key)
}

func (p *Pipeline) fetchWithRetry(ctx context.Context, kind ResourceKind, key string) (RawPayload, error) {
	if p.retry.MaxAttempts <= 1 {
		return p.fetcher.Fetch(ctx, kind, key)
	}

	bounded := backoff.WithContext(
		backoff.WithMaxRetries(p.retry.backOff(), uint64(p.retry.MaxAttempts-1)),
		ctx,
	)

	attempt := 0
	return backoff.RetryWithData(func() (RawPayload, error) {
		attempt++
		payload, err := p.fetcher.Fetch(ctx, kind, key)
		if err == nil {
			return payload, nil
		}
		if !IsTransient(err) {
			return RawPayload{}, backoff.Permanent(err)
		}
		p.logger.DebugContext(ctx, "wordcount transient fetch failure",
			"kind", kind,
			"key", key,
			"attempt", attempt,
			"error", err,
		)

		return RawPayload{}, err
	}, bounded)
}
