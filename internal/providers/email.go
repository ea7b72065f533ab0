package providers

import (
	"bytes"
	"context"
	"html/template"
	"strings"

	"golang.org/x/time/rate"

	"alert-bulletin-service/internal/logging"
	"alert-bulletin-service/internal/models"
	"alert-bulletin-service/pkg/email"
)

// Mailer sends one HTML message to one address.
type Mailer interface {
	SendMail(ctx context.Context, to, subject, htmlBody string) error
}

// EmailAdapter mails the bulletin to every address of the target.
type EmailAdapter struct {
	base
	mailer Mailer
}

// NewEmailAdapter creates the Email adapter. A nil mailer means SMTP is not
// configured and every send fails with a configuration error.
func NewEmailAdapter(mailer Mailer, linker Linker, limiter *rate.Limiter, logger *logging.Logger) *EmailAdapter {
	return &EmailAdapter{
		base:   base{channel: models.ChannelEmail, limiter: limiter, linker: linker, logger: logger},
		mailer: mailer,
	}
}

var emailTemplate = template.Must(template.New("bulletin").Parse(`<html><body>
<h2>{{.Title}}</h2>
<p>{{range .Advisory}}{{.}}<br>{{end}}</p>
{{if .Risks}}<h3>Risks</h3><ul>{{range .Risks}}<li>{{.}}</li>{{end}}</ul>{{end}}
{{if .SafetyTips}}<h3>Safety tips</h3><ul>{{range .SafetyTips}}<li>{{.}}</li>{{end}}</ul>{{end}}
{{range .Images}}<p><img src="{{.URL}}" alt="{{.Caption}}"><br><small>{{.Caption}}</small></p>{{end}}
<p>{{.Hashtags}}</p>
</body></html>`))

type emailImage struct {
	URL     string
	Caption string
}

type emailView struct {
	Title      string
	Advisory   []string
	Risks      []string
	SafetyTips []string
	Images     []emailImage
	Hashtags   string
}

func listItems(section string) []string {
	var items []string
	for _, line := range strings.Split(section, "\n") {
		if line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "- ")); line != "" {
			items = append(items, line)
		}
	}
	return items
}

func (a *EmailAdapter) render(ctx context.Context, b models.Bulletin) (string, error) {
	view := emailView{
		Title:      b.Title,
		Advisory:   strings.Split(b.AdvisoryText, "\n"),
		Risks:      listItems(b.RisksText),
		SafetyTips: listItems(b.SafetyTipsText),
		Hashtags:   strings.Join(b.Hashtags, " "),
	}
	if a.linker != nil {
		for _, att := range b.Attachments {
			u, err := a.linker.PresignGet(ctx, att.StorageKey)
			if err != nil {
				a.logger.WithField("key", att.StorageKey).WithError(err).Warn("Skipping attachment link")
				continue
			}
			view.Images = append(view.Images, emailImage{URL: u, Caption: att.Caption})
		}
	}

	var buf bytes.Buffer
	if err := emailTemplate.Execute(&buf, view); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (a *EmailAdapter) Send(ctx context.Context, b models.Bulletin, target models.Target) models.ChannelResult {
	if res, done := a.precheck(a.mailer != nil, target); done {
		return res
	}

	body, err := a.render(ctx, b)
	if err != nil {
		return models.ChannelResult{Status: models.StatusFailed, Detail: "render email: " + err.Error()}
	}

	var outcomes []outcome
	for _, to := range recipients(target) {
		o := outcome{recipient: to}
		switch {
		case !email.ValidAddress(to):
			o.err = invalidRecipient("invalid email address")
		default:
			if o.err = a.wait(ctx); o.err == nil {
				o.err = a.mailer.SendMail(ctx, to, b.Title, body)
			}
		}
		if o.err != nil {
			a.logger.WithFields(logging.Fields{"channel": a.channel, "recipient": to}).WithError(o.err).Warn("Email delivery failed")
		}
		outcomes = append(outcomes, o)
	}
	return tally(outcomes)
}
