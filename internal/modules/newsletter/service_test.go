package newsletter

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/emberfall-zone/core/internal/models"
	redispkg "github.com/emberfall-zone/core/internal/pkg/redis"
	"github.com/emberfall-zone/core/internal/pkg/response"
	"github.com/emberfall-zone/core/internal/testutil"
)

type sentMail struct {
	To  string
	URL string
}

type fakeMailer struct {
	confirmations []sentMail
	welcomes      []sentMail
	failConfirm   error
	failWelcome   error

	// beforeStore runs between the email send and the pending insert,
	// standing in for a concurrent request landing in that gap.
	beforeStore func(to string)
}

func (m *fakeMailer) SendConfirmation(to, confirmURL string) (string, error) {
	if m.failConfirm != nil {
		return "", m.failConfirm
	}
	m.confirmations = append(m.confirmations, sentMail{To: to, URL: confirmURL})
	if m.beforeStore != nil {
		m.beforeStore(to)
	}
	return "msg-confirm-1", nil
}

func (m *fakeMailer) SendWelcome(to, unsubscribeURL string) (string, error) {
	if m.failWelcome != nil {
		return "", m.failWelcome
	}
	m.welcomes = append(m.welcomes, sentMail{To: to, URL: unsubscribeURL})
	return "msg-welcome-1", nil
}

func (m *fakeMailer) lastConfirmToken(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, m.confirmations)
	url := m.confirmations[len(m.confirmations)-1].URL
	idx := strings.Index(url, "token=")
	require.GreaterOrEqual(t, idx, 0)
	return url[idx+len("token="):]
}

type serviceFixture struct {
	db     *gorm.DB
	mailer *fakeMailer
	svc    *Service
	now    time.Time
}

func newFixture(t *testing.T, cache *redispkg.Client) *serviceFixture {
	t.Helper()
	// gorm stamps CreatedAt from the wall clock, so the swappable clock
	// starts at real time and only moves forward.
	f := &serviceFixture{
		db:     testutil.SetupTestDB(t),
		mailer: &fakeMailer{},
		now:    time.Now(),
	}
	f.svc = NewService(f.db, f.mailer, nil, cache, zap.NewNop(), Options{
		PendingTTL:     24 * time.Hour,
		BlockedDomains: []string{"tempmail.org"},
		CountCacheTTL:  5 * time.Minute,
		ConfirmURL: func(token string) string {
			return "https://emberfall.zone/confirm?token=" + token
		},
		UnsubscribeURL: func(token string) string {
			return "https://emberfall.zone/unsubscribe?token=" + token
		},
		Now: func() time.Time { return f.now },
	})
	return f
}

func TestSubscribeCreatesPendingAndSendsEmail(t *testing.T) {
	f := newFixture(t, nil)

	result, ferr := f.svc.Subscribe(&SubscribeDTO{
		Email:  "  Fan@Example.COM ",
		Source: "landing",
		Tags:   []string{"beta"},
	})
	require.Nil(t, ferr)
	assert.Equal(t, "fan@example.com", result.Email)
	assert.Equal(t, models.SubscriberStatusPending, result.Status)
	assert.Equal(t, "msg-confirm-1", result.MessageID)

	require.Len(t, f.mailer.confirmations, 1)
	assert.Equal(t, "fan@example.com", f.mailer.confirmations[0].To)

	var pending models.PendingSubscriptionModel
	require.NoError(t, f.db.Where("email = ?", "fan@example.com").First(&pending).Error)
	assert.Regexp(t, "^[0-9a-f]{32}$", pending.Token)
	assert.Equal(t, "landing", pending.Source)
	assert.Equal(t, models.StringArray{"beta"}, pending.Tags)
}

func TestSubscribeRejectsInvalidAndBlockedEmail(t *testing.T) {
	f := newFixture(t, nil)

	_, ferr := f.svc.Subscribe(&SubscribeDTO{Email: "not-an-email"})
	require.NotNil(t, ferr)
	assert.Equal(t, http.StatusBadRequest, ferr.Status)
	assert.Equal(t, response.CodeValidationEmail, ferr.Code)

	_, ferr = f.svc.Subscribe(&SubscribeDTO{Email: "user@tempmail.org"})
	require.NotNil(t, ferr)
	assert.Equal(t, response.CodeValidationEmail, ferr.Code)
	assert.Empty(t, f.mailer.confirmations)
}

func TestSubscribeWhilePendingConflicts(t *testing.T) {
	f := newFixture(t, nil)

	_, ferr := f.svc.Subscribe(&SubscribeDTO{Email: "fan@example.com"})
	require.Nil(t, ferr)

	_, ferr = f.svc.Subscribe(&SubscribeDTO{Email: "fan@example.com"})
	require.NotNil(t, ferr)
	assert.Equal(t, http.StatusConflict, ferr.Status)
	assert.Equal(t, response.CodeAlreadyPending, ferr.Code)
	// no second email went out
	assert.Len(t, f.mailer.confirmations, 1)
}

func TestSubscribeAfterPendingExpiryStartsOver(t *testing.T) {
	f := newFixture(t, nil)

	_, ferr := f.svc.Subscribe(&SubscribeDTO{Email: "fan@example.com"})
	require.Nil(t, ferr)
	firstToken := f.mailer.lastConfirmToken(t)

	f.now = f.now.Add(25 * time.Hour)
	_, ferr = f.svc.Subscribe(&SubscribeDTO{Email: "fan@example.com"})
	require.Nil(t, ferr)
	assert.Len(t, f.mailer.confirmations, 2)
	assert.NotEqual(t, firstToken, f.mailer.lastConfirmToken(t))

	var count int64
	f.db.Model(&models.PendingSubscriptionModel{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestSubscribeAlreadyActiveConflicts(t *testing.T) {
	f := newFixture(t, nil)
	subscribeAndConfirm(t, f, "fan@example.com")

	_, ferr := f.svc.Subscribe(&SubscribeDTO{Email: "fan@example.com"})
	require.NotNil(t, ferr)
	assert.Equal(t, http.StatusConflict, ferr.Status)
	assert.Equal(t, response.CodeAlreadySubscribed, ferr.Code)
}

func TestSubscribeEmailFailureLeavesNoState(t *testing.T) {
	f := newFixture(t, nil)
	f.mailer.failConfirm = errors.New("smtp down")

	_, ferr := f.svc.Subscribe(&SubscribeDTO{Email: "fan@example.com"})
	require.NotNil(t, ferr)
	assert.Equal(t, http.StatusServiceUnavailable, ferr.Status)
	assert.Equal(t, response.CodeEmailDeliveryFailed, ferr.Code)
	assert.False(t, ferr.EmailSent)

	var count int64
	f.db.Model(&models.PendingSubscriptionModel{}).Count(&count)
	assert.Zero(t, count)
}

func TestSubscribeRaceAfterSendReportsReconciliation(t *testing.T) {
	f := newFixture(t, nil)
	f.mailer.beforeStore = func(to string) {
		// a concurrent request stored its own pending row first
		require.NoError(t, f.db.Create(&models.PendingSubscriptionModel{
			Email: to,
			Token: "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		}).Error)
	}

	_, ferr := f.svc.Subscribe(&SubscribeDTO{Email: "fan@example.com"})
	require.NotNil(t, ferr)
	assert.Equal(t, http.StatusConflict, ferr.Status)
	assert.Equal(t, response.CodeRaceConditionDetected, ferr.Code)
	assert.True(t, ferr.EmailSent)
	assert.Equal(t, "msg-confirm-1", ferr.MessageID)
}

func subscribeAndConfirm(t *testing.T, f *serviceFixture, email string) *ConfirmResult {
	t.Helper()
	_, ferr := f.svc.Subscribe(&SubscribeDTO{Email: email})
	require.Nil(t, ferr)
	result, ferr := f.svc.Confirm(f.mailer.lastConfirmToken(t))
	require.Nil(t, ferr)
	return result
}

func TestConfirmActivatesSubscriber(t *testing.T) {
	f := newFixture(t, nil)

	result := subscribeAndConfirm(t, f, "fan@example.com")
	assert.Equal(t, models.SubscriberStatusActive, result.Status)
	assert.Equal(t, "fan@example.com", result.Email)

	var sub models.SubscriberModel
	require.NoError(t, f.db.Where("email = ?", "fan@example.com").First(&sub).Error)
	assert.True(t, sub.Verified)
	assert.Regexp(t, "^[0-9a-f]{32}$", sub.UnsubscribeToken)
	require.NotNil(t, sub.SubscribedAt)

	// pending row is gone, welcome email went out
	var count int64
	f.db.Model(&models.PendingSubscriptionModel{}).Count(&count)
	assert.Zero(t, count)
	require.Len(t, f.mailer.welcomes, 1)
	assert.Contains(t, f.mailer.welcomes[0].URL, sub.UnsubscribeToken)
}

func TestConfirmReplayReadsNotFound(t *testing.T) {
	f := newFixture(t, nil)

	_, ferr := f.svc.Subscribe(&SubscribeDTO{Email: "fan@example.com"})
	require.Nil(t, ferr)
	token := f.mailer.lastConfirmToken(t)

	_, ferr = f.svc.Confirm(token)
	require.Nil(t, ferr)

	_, ferr = f.svc.Confirm(token)
	require.NotNil(t, ferr)
	assert.Equal(t, http.StatusNotFound, ferr.Status)
	assert.Equal(t, response.CodeTokenNotFound, ferr.Code)
}

func TestConfirmExpiredTokenNotFoundAndRemoved(t *testing.T) {
	f := newFixture(t, nil)

	_, ferr := f.svc.Subscribe(&SubscribeDTO{Email: "fan@example.com"})
	require.Nil(t, ferr)
	token := f.mailer.lastConfirmToken(t)

	f.now = f.now.Add(24*time.Hour + time.Minute)
	_, ferr = f.svc.Confirm(token)
	require.NotNil(t, ferr)
	assert.Equal(t, response.CodeTokenNotFound, ferr.Code)

	var count int64
	f.db.Unscoped().Model(&models.PendingSubscriptionModel{}).Count(&count)
	assert.Zero(t, count)
}

func TestConfirmRejectsMalformedToken(t *testing.T) {
	f := newFixture(t, nil)

	for _, token := range []string{"", "short", "ZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZZ",
		strings.Repeat("a", 33)} {
		_, ferr := f.svc.Confirm(token)
		require.NotNil(t, ferr)
		assert.Equal(t, http.StatusBadRequest, ferr.Status)
		assert.Equal(t, response.CodeTokenInvalidFormat, ferr.Code)
	}
}

func TestConfirmReactivatesUnsubscribed(t *testing.T) {
	f := newFixture(t, nil)
	subscribeAndConfirm(t, f, "fan@example.com")

	var sub models.SubscriberModel
	require.NoError(t, f.db.Where("email = ?", "fan@example.com").First(&sub).Error)
	_, ferr := f.svc.Unsubscribe(&UnsubscribeDTO{Token: sub.UnsubscribeToken}, RequestMeta{})
	require.Nil(t, ferr)

	subscribeAndConfirm(t, f, "fan@example.com")
	require.NoError(t, f.db.Where("email = ?", "fan@example.com").First(&sub).Error)
	assert.Equal(t, models.SubscriberStatusActive, sub.Status)

	var total int64
	f.db.Model(&models.SubscriberModel{}).Count(&total)
	assert.Equal(t, int64(1), total)
}

func TestUnsubscribeByTokenIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	subscribeAndConfirm(t, f, "fan@example.com")

	var sub models.SubscriberModel
	require.NoError(t, f.db.Where("email = ?", "fan@example.com").First(&sub).Error)

	for i := 0; i < 2; i++ {
		result, ferr := f.svc.Unsubscribe(&UnsubscribeDTO{
			Token:  sub.UnsubscribeToken,
			Reason: models.UnsubReasonTooFrequent,
		}, RequestMeta{IP: "198.51.100.2", UserAgent: "test-agent"})
		require.Nil(t, ferr)
		assert.Equal(t, models.SubscriberStatusUnsubscribed, result.Status)
		assert.True(t, result.Known())
	}

	// audit log written exactly once
	var logs []models.UnsubscribeLogModel
	require.NoError(t, f.db.Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, models.UnsubReasonTooFrequent, logs[0].Reason)
	assert.Equal(t, "198.51.100.2", logs[0].IP)
	assert.Equal(t, "test-agent", logs[0].UserAgent)
}

func TestUnsubscribeByEmailRequiresConfirm(t *testing.T) {
	f := newFixture(t, nil)
	subscribeAndConfirm(t, f, "fan@example.com")

	_, ferr := f.svc.Unsubscribe(&UnsubscribeDTO{Email: "fan@example.com"}, RequestMeta{})
	require.NotNil(t, ferr)
	assert.Equal(t, response.CodeValidationBody, ferr.Code)

	result, ferr := f.svc.Unsubscribe(&UnsubscribeDTO{
		Email: "Fan@Example.com", Confirm: true,
	}, RequestMeta{})
	require.Nil(t, ferr)
	assert.Equal(t, models.SubscriberStatusUnsubscribed, result.Status)
}

func TestUnsubscribeUnknownIdentityStillSucceeds(t *testing.T) {
	f := newFixture(t, nil)

	result, ferr := f.svc.Unsubscribe(&UnsubscribeDTO{
		Token: strings.Repeat("a", 32),
	}, RequestMeta{})
	require.Nil(t, ferr)
	assert.Equal(t, models.SubscriberStatusUnsubscribed, result.Status)
	assert.False(t, result.Known())

	result, ferr = f.svc.Unsubscribe(&UnsubscribeDTO{
		Email: "ghost@example.com", Confirm: true,
	}, RequestMeta{})
	require.Nil(t, ferr)
	assert.False(t, result.Known())
}

func TestUnsubscribeRejectsUnknownReason(t *testing.T) {
	f := newFixture(t, nil)
	subscribeAndConfirm(t, f, "fan@example.com")

	var sub models.SubscriberModel
	require.NoError(t, f.db.Where("email = ?", "fan@example.com").First(&sub).Error)

	_, ferr := f.svc.Unsubscribe(&UnsubscribeDTO{
		Token: sub.UnsubscribeToken, Reason: "bored",
	}, RequestMeta{})
	require.NotNil(t, ferr)
	assert.Equal(t, response.CodeValidationBody, ferr.Code)
}

func TestCountUsesCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redispkg.Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	f := newFixture(t, cache)
	ctx := context.Background()

	subscribeAndConfirm(t, f, "one@example.com")
	count, err := f.svc.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// served from cache even though the table changed underneath
	require.NoError(t, f.db.Create(&models.SubscriberModel{
		Email: "two@example.com", Status: models.SubscriberStatusActive,
		UnsubscribeToken: strings.Repeat("b", 32),
	}).Error)
	count, err = f.svc.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	mr.FastForward(6 * time.Minute)
	count, err = f.svc.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestStatsAggregates(t *testing.T) {
	f := newFixture(t, nil)

	_, ferr := f.svc.Subscribe(&SubscribeDTO{Email: "one@example.com", Tags: []string{"guides", "news"}})
	require.Nil(t, ferr)
	_, ferr = f.svc.Confirm(f.mailer.lastConfirmToken(t))
	require.Nil(t, ferr)
	subscribeAndConfirm(t, f, "two@example.com")
	_, ferr = f.svc.Subscribe(&SubscribeDTO{Email: "three@example.com"})
	require.Nil(t, ferr)

	var sub models.SubscriberModel
	require.NoError(t, f.db.Where("email = ?", "two@example.com").First(&sub).Error)
	_, ferr = f.svc.Unsubscribe(&UnsubscribeDTO{
		Token: sub.UnsubscribeToken, Reason: models.UnsubReasonNotRelevant,
	}, RequestMeta{})
	require.Nil(t, ferr)

	stats, err := f.svc.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.Active)
	assert.Equal(t, int64(1), stats.Pending)
	assert.Equal(t, int64(1), stats.Unsubscribed)
	assert.Equal(t, int64(1), stats.BySource["web"])
	assert.Equal(t, int64(1), stats.ByTag["guides"])
	assert.Equal(t, int64(1), stats.ByTag["news"])
	assert.Equal(t, int64(1), stats.Signups7d)
	assert.Equal(t, int64(1), stats.Signups30d)
	assert.Equal(t, int64(1), stats.ByReason[models.UnsubReasonNotRelevant])
}

func TestCleanupExpiredRemovesOnlyStaleRows(t *testing.T) {
	f := newFixture(t, nil)

	_, ferr := f.svc.Subscribe(&SubscribeDTO{Email: "old@example.com"})
	require.Nil(t, ferr)
	_, ferr = f.svc.Subscribe(&SubscribeDTO{Email: "fresh@example.com"})
	require.Nil(t, ferr)

	require.NoError(t, f.db.Model(&models.PendingSubscriptionModel{}).
		Where("email = ?", "old@example.com").
		Update("created_at", time.Now().Add(-25*time.Hour)).Error)

	removed, err := f.svc.CleanupExpired()
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	var remaining []models.PendingSubscriptionModel
	require.NoError(t, f.db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, "fresh@example.com", remaining[0].Email)
}
