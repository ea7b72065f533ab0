package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	twilioclient "github.com/twilio/twilio-go/client"

	"alert-bulletin-service/internal/logging"
	"alert-bulletin-service/internal/models"
)

func testBulletin() models.Bulletin {
	return models.Bulletin{
		ID:             uuid.MustParse("6f1c2a7e-9b7d-4d55-8a0e-3c1b8f7d2e11"),
		SourceRef:      "PH01_2025-07-07_Dengue",
		Family:         models.FamilyDisease,
		AlertType:      models.AlertTypeDengue,
		Level:          models.LevelModerate,
		Title:          "Moderate Dengue Alert: Calamba (PH01), Week of Jul 07 to Jul 13, 2025",
		AdvisoryText:   "1 dengue case(s) forecast in Calamba.\n\nForecast: 1 cases for Jul 07 to Jul 13, 2025.",
		RisksText:      "- High fever\n- Rash",
		SafetyTipsText: "- Cover water containers",
		Hashtags:       []string{"#Dengue", "#ModerateAlert"},
		Attachments: []models.Attachment{
			{StorageKey: "bulletin_charts/map.png", Caption: "Forecast map"},
			{StorageKey: "bulletin_charts/table.png", Caption: "Forecast by region"},
		},
	}
}

type fakeLinker struct{ fail string }

func (f fakeLinker) PresignGet(_ context.Context, key string) (string, error) {
	if key == f.fail {
		return "", errors.New("presign failed")
	}
	return "https://cdn.example/" + key, nil
}

type fakeMailer struct {
	mu     sync.Mutex
	sent   []string
	bodies []string
	fail   map[string]error
}

func (f *fakeMailer) SendMail(_ context.Context, to, _ string, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[to]; err != nil {
		return err
	}
	f.sent = append(f.sent, to)
	f.bodies = append(f.bodies, body)
	return nil
}

func TestEmailAdapter_AllDelivered(t *testing.T) {
	mailer := &fakeMailer{}
	a := NewEmailAdapter(mailer, fakeLinker{}, nil, logging.NewNop())

	res := a.Send(context.Background(), testBulletin(), models.Target{Recipients: []string{"a@example.org", "b@example.org", "a@example.org"}})
	assert.Equal(t, models.StatusSuccess, res.Status)
	assert.Equal(t, "delivered 2/2", res.Detail)
	assert.Equal(t, []string{"a@example.org", "b@example.org"}, mailer.sent)
	assert.Contains(t, mailer.bodies[0], `<img src="https://cdn.example/bulletin_charts/map.png"`)
	assert.Contains(t, mailer.bodies[0], "<li>High fever</li>")
}

func TestEmailAdapter_PartialAndInvalid(t *testing.T) {
	mailer := &fakeMailer{fail: map[string]error{"b@example.org": errors.New("421 service not available")}}
	a := NewEmailAdapter(mailer, nil, nil, logging.NewNop())

	res := a.Send(context.Background(), testBulletin(), models.Target{Recipients: []string{"a@example.org", "b@example.org", "nope"}})
	assert.Equal(t, models.StatusPartialSuccess, res.Status)
	assert.Contains(t, res.Detail, "delivered 1/3")
	assert.Contains(t, res.Detail, "b@example.org: TransientTransportError: 421 service not available")
	assert.Contains(t, res.Detail, "nope: ValidationError: invalid email address")
}

func TestAdapters_MissingCredentials(t *testing.T) {
	target := models.Target{Recipients: []string{"x"}}
	adapters := []Adapter{
		NewEmailAdapter(nil, nil, nil, logging.NewNop()),
		NewSocialAdapter(nil, nil, nil, logging.NewNop()),
		NewChatAdapter(nil, nil, nil, logging.NewNop()),
		NewPushAdapter(nil, nil, nil, logging.NewNop()),
	}
	for _, a := range adapters {
		res := a.Send(context.Background(), testBulletin(), target)
		assert.Equal(t, models.StatusFailed, res.Status, a.Channel())
		assert.True(t, strings.HasPrefix(res.Detail, "ConfigurationError: "), res.Detail)
	}
}

func TestAdapters_NoRecipients(t *testing.T) {
	mailer := &fakeMailer{}
	a := NewEmailAdapter(mailer, nil, nil, logging.NewNop())

	res := a.Send(context.Background(), testBulletin(), models.Target{Recipients: []string{" ", ""}})
	assert.Equal(t, models.ChannelResult{Status: models.StatusFailed, Detail: "no recipients"}, res)
	assert.Empty(t, mailer.sent)
}

type fakePoster struct {
	texts    []string
	photos   []string
	captions []string
	err      error
}

func (f *fakePoster) SendMessage(_ context.Context, _ string, text string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.texts = append(f.texts, text)
	return 1, nil
}

func (f *fakePoster) SendPhoto(_ context.Context, _ string, url, caption string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.photos = append(f.photos, url)
	f.captions = append(f.captions, caption)
	return 2, nil
}

func TestSocialAdapter_PhotoThenText(t *testing.T) {
	poster := &fakePoster{}
	a := NewSocialAdapter(poster, fakeLinker{fail: "bulletin_charts/map.png"}, nil, logging.NewNop())

	b := testBulletin()
	b.AdvisoryText = strings.Repeat("x", 5000)
	res := a.Send(context.Background(), b, models.Target{Recipients: []string{"@health_alerts"}})

	assert.Equal(t, models.StatusSuccess, res.Status)
	assert.Equal(t, []string{"https://cdn.example/bulletin_charts/table.png"}, poster.photos)
	require.Len(t, poster.texts, 1)
	assert.Equal(t, socialTextLimit, utf8.RuneCountInString(poster.texts[0]))
	assert.True(t, strings.HasSuffix(poster.texts[0], "..."))
	assert.LessOrEqual(t, utf8.RuneCountInString(poster.captions[0]), socialCaptionLimit)
}

func TestSocialAdapter_InvalidPageAndVendorError(t *testing.T) {
	a := NewSocialAdapter(&fakePoster{err: errors.New("Bad Gateway")}, nil, nil, logging.NewNop())

	res := a.Send(context.Background(), testBulletin(), models.Target{Recipients: []string{"health", "@health_alerts"}})
	assert.Equal(t, models.StatusFailed, res.Status)
	assert.Contains(t, res.Detail, "health: ValidationError")
	assert.Contains(t, res.Detail, "@health_alerts: TransientTransportError: Bad Gateway")
}

type fakeTexter struct {
	bodies []string
	media  [][]string
	errs   map[string]error
}

func (f *fakeTexter) Send(to string, body string, media []string) (string, error) {
	if err, ok := f.errs[to]; ok {
		return "", fmt.Errorf("failed to send message to %s: %w", to, err)
	}
	f.bodies = append(f.bodies, body)
	f.media = append(f.media, media)
	return "SM1", nil
}

func TestChatAdapter_SingleLineAndLimit(t *testing.T) {
	texter := &fakeTexter{}
	a := NewChatAdapter(texter, fakeLinker{}, nil, logging.NewNop())

	b := testBulletin()
	b.AdvisoryText = strings.Repeat("line\n", 500)
	res := a.Send(context.Background(), b, models.Target{Recipients: []string{"+639171234567", "0917"}})

	assert.Equal(t, models.StatusPartialSuccess, res.Status)
	require.Len(t, texter.bodies, 1)
	assert.NotContains(t, texter.bodies[0], "\n")
	assert.LessOrEqual(t, utf8.RuneCountInString(texter.bodies[0]), chatBodyLimit)
	assert.Equal(t, []string{"https://cdn.example/bulletin_charts/map.png"}, texter.media[0])
}

func TestChatAdapter_ClassifiesTwilioErrors(t *testing.T) {
	texter := &fakeTexter{errs: map[string]error{
		"+639171234567": &twilioclient.TwilioRestError{Status: 400, Code: 21211, Message: "Invalid 'To' Phone Number"},
		"+639171234568": &twilioclient.TwilioRestError{Status: 401, Code: 20003, Message: "Authenticate"},
		"+639171234569": &twilioclient.TwilioRestError{Status: 503, Message: "Service Unavailable"},
		"+639171234570": errors.New("dial tcp: i/o timeout"),
	}}
	a := NewChatAdapter(texter, nil, nil, logging.NewNop())

	res := a.Send(context.Background(), testBulletin(), models.Target{Recipients: []string{
		"+639171234567", "+639171234568", "+639171234569", "+639171234570",
	}})

	assert.Equal(t, models.StatusFailed, res.Status)
	assert.Contains(t, res.Detail, "+639171234567: ValidationError")
	assert.Contains(t, res.Detail, "+639171234568: ConfigurationError")
	assert.Contains(t, res.Detail, "+639171234569: TransientTransportError")
	assert.Contains(t, res.Detail, "+639171234570: TransientTransportError")
}

func TestChatAdapter_RejectedNumberIsNotTransient(t *testing.T) {
	texter := &fakeTexter{errs: map[string]error{
		"+639171234567": &twilioclient.TwilioRestError{Status: 400, Code: 21211},
	}}
	a := NewChatAdapter(texter, nil, nil, logging.NewNop())

	res := a.Send(context.Background(), testBulletin(), models.Target{Recipients: []string{"+639171234567"}})
	assert.Equal(t, models.StatusFailed, res.Status)
	assert.NotContains(t, res.Detail, "TransientTransportError")
}

type fakePublisher struct {
	msgs []kafka.Message
	err  error
}

func (f *fakePublisher) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return f.err
}

func TestPushAdapter_RendersShortSingleLine(t *testing.T) {
	pub := &fakePublisher{}
	a := NewPushAdapter(pub, nil, nil, logging.NewNop())

	res := a.Send(context.Background(), testBulletin(), models.Target{Recipients: []string{"dengue-alerts", "device-token-1"}})
	assert.Equal(t, models.StatusSuccess, res.Status)
	require.Len(t, pub.msgs, 2)
	assert.Equal(t, []byte("dengue-alerts"), pub.msgs[0].Key)

	var n PushNotification
	require.NoError(t, json.Unmarshal(pub.msgs[0].Value, &n))
	assert.LessOrEqual(t, utf8.RuneCountInString(n.Title), pushTitleLimit)
	assert.LessOrEqual(t, utf8.RuneCountInString(n.Body), pushBodyLimit)
	assert.NotContains(t, n.Title+n.Body, "\n")
	assert.Equal(t, "6f1c2a7e-9b7d-4d55-8a0e-3c1b8f7d2e11", n.BulletinID)
	assert.Empty(t, n.ImageURL)
}

func TestPushAdapter_PerMessageErrors(t *testing.T) {
	pub := &fakePublisher{err: kafka.WriteErrors{nil, errors.New("leader not available")}}
	a := NewPushAdapter(pub, nil, nil, logging.NewNop())

	res := a.Send(context.Background(), testBulletin(), models.Target{Recipients: []string{"t1", "t2"}})
	assert.Equal(t, models.StatusPartialSuccess, res.Status)
	assert.Contains(t, res.Detail, "t2: TransientTransportError: leader not available")

	pub.err = errors.New("dial tcp: connection refused")
	res = a.Send(context.Background(), testBulletin(), models.Target{Recipients: []string{"t1"}})
	assert.Equal(t, models.StatusFailed, res.Status)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd...", truncate("abcd efghij", 8))
	assert.Equal(t, "ab", truncate("abcdef", 2))
	assert.Equal(t, 10, utf8.RuneCountInString(truncate(strings.Repeat("é", 20), 10)))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(NewPushAdapter(nil, nil, nil, logging.NewNop()))
	a, ok := r.Get(models.ChannelPush)
	require.True(t, ok)
	assert.Equal(t, models.ChannelPush, a.Channel())
	_, ok = r.Get(models.ChannelEmail)
	assert.False(t, ok)
	assert.NoError(t, r.Close())
}
