package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/time/rate"

	"alert-bulletin-service/internal/logging"
	"alert-bulletin-service/internal/models"
)

// Adapter renders a bulletin into one channel's payload and submits it.
// Vendor failures are reported in the result, never as a Go error.
type Adapter interface {
	Channel() models.Channel
	Send(ctx context.Context, b models.Bulletin, target models.Target) models.ChannelResult
}

// Linker turns an attachment storage key into a URL recipients can open.
type Linker interface {
	PresignGet(ctx context.Context, key string) (string, error)
}

type base struct {
	channel models.Channel
	limiter *rate.Limiter
	linker  Linker
	logger  *logging.Logger
}

func (a *base) Channel() models.Channel { return a.channel }

// precheck returns a terminal result when the adapter cannot send at all.
func (a *base) precheck(configured bool, target models.Target) (models.ChannelResult, bool) {
	if !configured {
		return models.ChannelResult{
			Status: models.StatusFailed,
			Detail: fmt.Sprintf("%s: %s credentials are not configured", models.ErrConfiguration, a.channel),
		}, true
	}
	if len(recipients(target)) == 0 {
		return models.ChannelResult{Status: models.StatusFailed, Detail: "no recipients"}, true
	}
	return models.ChannelResult{}, false
}

// wait applies the vendor rate limit before one call.
func (a *base) wait(ctx context.Context) error {
	if a.limiter == nil {
		return nil
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: rate limit wait: %v", models.ErrTransientTransport, err)
	}
	return nil
}

// imageURLs presigns attachment links in order, skipping any that fail.
func (a *base) imageURLs(ctx context.Context, b models.Bulletin) []string {
	if a.linker == nil {
		return nil
	}
	var urls []string
	for _, att := range b.Attachments {
		u, err := a.linker.PresignGet(ctx, att.StorageKey)
		if err != nil {
			a.logger.WithFields(logging.Fields{
				"channel": a.channel,
				"key":     att.StorageKey,
			}).WithError(err).Warn("Skipping attachment link")
			continue
		}
		urls = append(urls, u)
	}
	return urls
}

func recipients(target models.Target) []string {
	var out []string
	seen := make(map[string]struct{}, len(target.Recipients))
	for _, r := range target.Recipients {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

type outcome struct {
	recipient string
	err       error
}

// tally folds per-recipient outcomes into one result.
func tally(outcomes []outcome) models.ChannelResult {
	var failures []string
	for _, o := range outcomes {
		if o.err != nil {
			failures = append(failures, fmt.Sprintf("%s: %s", o.recipient, classify(o.err)))
		}
	}
	delivered := len(outcomes) - len(failures)

	switch {
	case len(failures) == 0:
		return models.ChannelResult{
			Status: models.StatusSuccess,
			Detail: fmt.Sprintf("delivered %d/%d", delivered, len(outcomes)),
		}
	case delivered == 0:
		return models.ChannelResult{
			Status: models.StatusFailed,
			Detail: fmt.Sprintf("delivered 0/%d; %s", len(outcomes), strings.Join(failures, "; ")),
		}
	default:
		return models.ChannelResult{
			Status: models.StatusPartialSuccess,
			Detail: fmt.Sprintf("delivered %d/%d; %s", delivered, len(outcomes), strings.Join(failures, "; ")),
		}
	}
}

// classify prefixes err with its error class. Unclassified vendor errors are
// treated as transport failures.
func classify(err error) string {
	for _, class := range []error{models.ErrConfiguration, models.ErrValidation, models.ErrTransientTransport} {
		if errors.Is(err, class) {
			return err.Error()
		}
	}
	return fmt.Sprintf("%s: %v", models.ErrTransientTransport, err)
}

func invalidRecipient(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{models.ErrValidation}, args...)...)
}
