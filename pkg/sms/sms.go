package sms

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

type messageAPI interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// Client sends SMS or WhatsApp messages through Twilio.
type Client struct {
	api      messageAPI
	from     string
	whatsApp bool
}

func New(accountSID, authToken, fromNumber string, whatsApp bool) *Client {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &Client{api: client.Api, from: fromNumber, whatsApp: whatsApp}
}

// ValidNumber reports whether n looks like an E.164 number.
func ValidNumber(n string) bool {
	if !strings.HasPrefix(n, "+") || len(n) < 8 || len(n) > 16 {
		return false
	}
	for _, r := range n[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Send delivers body to one number and returns the Twilio message SID.
func (c *Client) Send(toNumber, body string, mediaURLs []string) (string, error) {
	if !ValidNumber(toNumber) {
		return "", fmt.Errorf("invalid phone number: %s", toNumber)
	}

	to, from := toNumber, c.from
	if c.whatsApp {
		to, from = "whatsapp:"+to, "whatsapp:"+from
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(from)
	params.SetBody(body)
	if len(mediaURLs) > 0 {
		params.SetMediaUrl(mediaURLs)
	}

	msg, err := c.api.CreateMessage(params)
	if err != nil {
		return "", fmt.Errorf("failed to send message to %s: %w", toNumber, err)
	}
	if msg != nil && msg.Sid != nil {
		return *msg.Sid, nil
	}
	return "", nil
}

// Retryable reports whether err came from a Twilio throttling or server error.
func Retryable(err error) bool {
	var restErr *twilioclient.TwilioRestError
	if errors.As(err, &restErr) {
		return restErr.Status == http.StatusTooManyRequests || restErr.Status >= http.StatusInternalServerError
	}
	return false
}

// RestStatus returns the HTTP status of a Twilio API error.
func RestStatus(err error) (int, bool) {
	var restErr *twilioclient.TwilioRestError
	if errors.As(err, &restErr) {
		return restErr.Status, true
	}
	return 0, false
}
