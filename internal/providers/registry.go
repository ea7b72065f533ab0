package providers

import (
	"github.com/segmentio/kafka-go"
	"golang.org/x/time/rate"

	"alert-bulletin-service/internal/config"
	"alert-bulletin-service/internal/logging"
	"alert-bulletin-service/internal/models"
	"alert-bulletin-service/pkg/email"
	"alert-bulletin-service/pkg/sms"
	"alert-bulletin-service/pkg/telegram"
)

const emailRatePerSecond = 5

// Registry holds one adapter per channel.
type Registry struct {
	adapters map[models.Channel]Adapter
	closers  []func() error
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[models.Channel]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Channel()] = a
	}
	return r
}

// Get returns the adapter of a channel.
func (r *Registry) Get(channel models.Channel) (Adapter, bool) {
	a, ok := r.adapters[channel]
	return a, ok
}

// Close releases vendor connections.
func (r *Registry) Close() error {
	var first error
	for _, c := range r.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func limiter(perSecond int) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(float64(perSecond)), perSecond)
}

// NewFromConfig registers all four channels. A channel whose credentials are
// missing is still registered and fails every send with a configuration error.
func NewFromConfig(cfg config.Config, linker Linker, logger *logging.Logger) *Registry {
	var mailer Mailer
	if cfg.Email.SMTPServer != "" && cfg.Email.From != "" {
		mailer = email.NewSender(email.Config{
			Host:     cfg.Email.SMTPServer,
			Port:     cfg.Email.SMTPPort,
			User:     cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
			FromName: cfg.Email.FromName,
		})
	} else {
		logger.Warn("SMTP is not configured; Email dispatches will fail")
	}

	var poster Poster
	if cfg.Telegram.BotToken != "" {
		client, err := telegram.New(cfg.Telegram.BotToken)
		if err != nil {
			logger.WithError(err).Error("Telegram client unavailable; SocialPost dispatches will fail")
		} else {
			poster = client
		}
	} else {
		logger.Warn("Telegram bot token is not configured; SocialPost dispatches will fail")
	}

	var texter Texter
	if cfg.Twilio.AccountSID != "" && cfg.Twilio.AuthToken != "" && cfg.Twilio.FromNumber != "" {
		texter = sms.New(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.FromNumber, cfg.Twilio.WhatsApp)
	} else {
		logger.Warn("Twilio is not configured; ChatBroadcast dispatches will fail")
	}

	var publisher Publisher
	var closers []func() error
	if cfg.Push.Enabled && len(cfg.Kafka.Brokers) > 0 {
		writer := &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Kafka.Brokers...),
			Topic:                  cfg.Kafka.PushTopic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		}
		publisher = writer
		closers = append(closers, writer.Close)
	} else {
		logger.Warn("Push gateway is not configured; Push dispatches will fail")
	}

	r := NewRegistry(
		NewEmailAdapter(mailer, linker, limiter(emailRatePerSecond), logger),
		NewSocialAdapter(poster, linker, limiter(cfg.Telegram.RateLimit), logger),
		NewChatAdapter(texter, linker, limiter(cfg.Twilio.RateLimit), logger),
		NewPushAdapter(publisher, linker, limiter(0), logger),
	)
	r.closers = closers
	return r
}
