package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/timeout"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"alert-bulletin-service/internal/logging"
	"alert-bulletin-service/internal/models"
	"alert-bulletin-service/internal/observability"
	"alert-bulletin-service/internal/providers"
)

// AdapterSource looks up the adapter of a channel.
type AdapterSource interface {
	Get(channel models.Channel) (providers.Adapter, bool)
}

// RecordStore appends dissemination records.
type RecordStore interface {
	CreateDisseminationRecord(ctx context.Context, rec models.DisseminationRecord) error
}

// GroupResolver resolves named recipient groups.
type GroupResolver interface {
	GetChannelGroup(ctx context.Context, channel models.Channel, name string) (models.ChannelGroup, error)
}

// Config tunes per-channel timeouts and circuit breakers.
type Config struct {
	ChannelTimeout  time.Duration
	BreakerFailures int
	BreakerWindow   int
	BreakerDelay    time.Duration
	InitiatedBy     string
}

// Target pairs a channel with its resolved recipients.
type Target struct {
	Channel models.Channel
	Target  models.Target
}

// Coordinator fans a bulletin out to channel adapters and records every attempt.
type Coordinator struct {
	adapters AdapterSource
	records  RecordStore
	groups   GroupResolver
	clock    clockwork.Clock
	logger   *logging.Logger
	metrics  *observability.Metrics
	cfg      Config

	timeout  timeout.Timeout[models.ChannelResult]
	breakers map[models.Channel]circuitbreaker.CircuitBreaker[models.ChannelResult]

	mu        sync.RWMutex
	observers []func(models.DisseminationSummary)
}

func NewCoordinator(adapters AdapterSource, records RecordStore, groups GroupResolver, cfg Config,
	clock clockwork.Clock, logger *logging.Logger, metrics *observability.Metrics) *Coordinator {
	if cfg.ChannelTimeout <= 0 {
		cfg.ChannelTimeout = 20 * time.Second
	}
	if cfg.BreakerWindow <= 0 {
		cfg.BreakerWindow = 10
	}
	if cfg.BreakerFailures <= 0 || cfg.BreakerFailures > cfg.BreakerWindow {
		cfg.BreakerFailures = cfg.BreakerWindow
	}
	if cfg.BreakerDelay <= 0 {
		cfg.BreakerDelay = time.Minute
	}
	if cfg.InitiatedBy == "" {
		cfg.InitiatedBy = "scheduler"
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	c := &Coordinator{
		adapters: adapters,
		records:  records,
		groups:   groups,
		clock:    clock,
		logger:   logger,
		metrics:  metrics,
		cfg:      cfg,
		timeout:  timeout.New[models.ChannelResult](cfg.ChannelTimeout),
		breakers: make(map[models.Channel]circuitbreaker.CircuitBreaker[models.ChannelResult], len(models.Channels)),
	}
	for _, ch := range models.Channels {
		c.breakers[ch] = c.newBreaker(ch)
	}
	return c
}

func (c *Coordinator) newBreaker(channel models.Channel) circuitbreaker.CircuitBreaker[models.ChannelResult] {
	return circuitbreaker.NewBuilder[models.ChannelResult]().
		HandleIf(func(res models.ChannelResult, err error) bool {
			return err != nil || (res.Status == models.StatusFailed && strings.Contains(res.Detail, models.ErrTransientTransport.Error()))
		}).
		WithFailureThresholdRatio(uint(c.cfg.BreakerFailures), uint(c.cfg.BreakerWindow)).
		WithDelay(c.cfg.BreakerDelay).
		WithSuccessThreshold(1).
		OnStateChanged(func(event circuitbreaker.StateChangedEvent) {
			c.logger.WithFields(logging.Fields{
				"channel":    channel,
				"from_state": fmt.Sprint(event.OldState),
				"to_state":   fmt.Sprint(event.NewState),
			}).Warn("Channel circuit breaker state change")
		}).
		Build()
}

// OnSummary registers fn to receive every completed dispatch summary.
func (c *Coordinator) OnSummary(fn func(models.DisseminationSummary)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

// DispatchGroups resolves each named group and dispatches to the result. A
// group that cannot be resolved is recorded as a failed attempt.
func (c *Coordinator) DispatchGroups(ctx context.Context, b models.Bulletin, reqs []models.ChannelRequest, initiatedBy string) models.DisseminationSummary {
	targets := make([]Target, 0, len(reqs))
	var unresolved []models.DisseminationRecord
	for _, req := range reqs {
		group, err := c.groups.GetChannelGroup(ctx, req.Channel, req.Group)
		if err != nil {
			detail := fmt.Sprintf("%s: recipient group %q: %v", models.ErrConfiguration, req.Group, err)
			if errors.Is(err, models.ErrNotFound) {
				detail = fmt.Sprintf("%s: recipient group %q does not exist", models.ErrConfiguration, req.Group)
			}
			unresolved = append(unresolved, c.persist(ctx, b, req.Channel, models.ChannelResult{
				Status: models.StatusFailed,
				Detail: detail,
			}, initiatedBy))
			continue
		}
		targets = append(targets, Target{
			Channel: req.Channel,
			Target:  models.Target{Group: group.Name, Recipients: group.Recipients},
		})
	}

	summary := c.dispatch(ctx, b, targets, initiatedBy)
	if len(unresolved) > 0 {
		summary.Records = append(unresolved, summary.Records...)
		summary.OverallStatus = Aggregate(statuses(summary.Records))
	}
	c.notify(summary)
	return summary
}

// Dispatch sends b to every target concurrently and returns once every
// launched attempt has been recorded. Cancelling ctx stops new launches only:
// in-flight vendor calls run until they finish or time out.
func (c *Coordinator) Dispatch(ctx context.Context, b models.Bulletin, targets []Target, initiatedBy string) models.DisseminationSummary {
	summary := c.dispatch(ctx, b, targets, initiatedBy)
	c.notify(summary)
	return summary
}

func (c *Coordinator) dispatch(ctx context.Context, b models.Bulletin, targets []Target, initiatedBy string) models.DisseminationSummary {
	if initiatedBy == "" {
		initiatedBy = c.cfg.InitiatedBy
	}

	records := make([]models.DisseminationRecord, len(targets))
	var wg sync.WaitGroup
	for i, t := range targets {
		if ctx.Err() != nil {
			records[i] = c.persist(ctx, b, t.Channel, models.ChannelResult{
				Status: models.StatusFailed,
				Detail: "cancelled before dispatch",
			}, initiatedBy)
			continue
		}

		adapter, ok := c.adapters.Get(t.Channel)
		if !ok {
			records[i] = c.persist(ctx, b, t.Channel, models.ChannelResult{
				Status: models.StatusFailed,
				Detail: fmt.Sprintf("%s: no adapter for channel %q", models.ErrConfiguration, t.Channel),
			}, initiatedBy)
			continue
		}

		wg.Add(1)
		go func(i int, t Target) {
			defer wg.Done()
			start := c.clock.Now()
			res := c.attempt(ctx, adapter, b, t.Target)
			c.metrics.ChannelSendDuration.WithLabelValues(string(t.Channel)).Observe(c.clock.Since(start).Seconds())
			records[i] = c.persist(ctx, b, t.Channel, res, initiatedBy)
		}(i, t)
	}
	wg.Wait()

	summary := models.DisseminationSummary{
		BulletinID:    b.ID,
		OverallStatus: Aggregate(statuses(records)),
		Records:       records,
	}
	c.logger.WithFields(logging.Fields{
		"bulletin_id": b.ID,
		"channels":    len(records),
		"status":      summary.OverallStatus,
	}).Info("Bulletin dispatched")
	return summary
}

// attempt runs one adapter send under the channel timeout and breaker. The
// call is detached from ctx cancellation so a started send is never cut short
// by a run abort.
func (c *Coordinator) attempt(ctx context.Context, adapter providers.Adapter, b models.Bulletin, target models.Target) models.ChannelResult {
	channel := adapter.Channel()
	policies := []failsafe.Policy[models.ChannelResult]{c.timeout}
	if cb, ok := c.breakers[channel]; ok {
		policies = []failsafe.Policy[models.ChannelResult]{cb, c.timeout}
	}

	res, err := failsafe.With[models.ChannelResult](policies...).
		WithContext(context.WithoutCancel(ctx)).
		GetWithExecution(func(exec failsafe.Execution[models.ChannelResult]) (models.ChannelResult, error) {
			return adapter.Send(exec.Context(), b, target), nil
		})

	switch {
	case err == nil:
		return res
	case errors.Is(err, timeout.ErrExceeded):
		return models.ChannelResult{
			Status: models.StatusFailed,
			Detail: fmt.Sprintf("%s: %s send timed out after %s", models.ErrTransientTransport, channel, c.cfg.ChannelTimeout),
		}
	case errors.Is(err, circuitbreaker.ErrOpen):
		return models.ChannelResult{
			Status: models.StatusFailed,
			Detail: fmt.Sprintf("%s: %s circuit breaker is open", models.ErrTransientTransport, channel),
		}
	default:
		return models.ChannelResult{
			Status: models.StatusFailed,
			Detail: fmt.Sprintf("%s: %v", models.ErrTransientTransport, err),
		}
	}
}

// persist writes the record of one attempt. A write failure is logged; the
// record is still returned so the summary stays truthful.
func (c *Coordinator) persist(ctx context.Context, b models.Bulletin, channel models.Channel, res models.ChannelResult, initiatedBy string) models.DisseminationRecord {
	rec := models.DisseminationRecord{
		ID:          uuid.New(),
		BulletinID:  b.ID,
		Channel:     channel,
		Status:      res.Status,
		Details:     res.Detail,
		SentAt:      c.clock.Now().UTC(),
		InitiatedBy: initiatedBy,
	}
	c.metrics.ChannelSends.WithLabelValues(string(channel), string(res.Status)).Inc()

	if err := c.records.CreateDisseminationRecord(context.WithoutCancel(ctx), rec); err != nil {
		c.logger.WithFields(logging.Fields{
			"bulletin_id": b.ID,
			"channel":     channel,
			"status":      res.Status,
		}).WithError(err).Error("Failed to persist dissemination record")
	}
	return rec
}

func (c *Coordinator) notify(summary models.DisseminationSummary) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, fn := range c.observers {
		fn(summary)
	}
}

func statuses(records []models.DisseminationRecord) []models.DeliveryStatus {
	out := make([]models.DeliveryStatus, len(records))
	for i, r := range records {
		out[i] = r.Status
	}
	return out
}

// Aggregate folds per-channel outcomes into the overall dispatch status.
// Success needs every channel to succeed; any delivered channel makes a mixed
// outcome PartialSuccess; no channels or no deliveries at all is Failed.
func Aggregate(statuses []models.DeliveryStatus) models.DeliveryStatus {
	if len(statuses) == 0 {
		return models.StatusFailed
	}
	var success, partial int
	for _, s := range statuses {
		switch s {
		case models.StatusSuccess:
			success++
		case models.StatusPartialSuccess:
			partial++
		}
	}
	switch {
	case success == len(statuses):
		return models.StatusSuccess
	case success+partial > 0:
		return models.StatusPartialSuccess
	default:
		return models.StatusFailed
	}
}
