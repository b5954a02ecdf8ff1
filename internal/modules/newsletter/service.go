package newsletter

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	gomysql "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/emberfall-zone/core/internal/models"
	"github.com/emberfall-zone/core/internal/pkg/bark"
	"github.com/emberfall-zone/core/internal/pkg/countdown"
	"github.com/emberfall-zone/core/internal/pkg/emailaddr"
	"github.com/emberfall-zone/core/internal/pkg/mail"
	"github.com/emberfall-zone/core/internal/pkg/redis"
	"github.com/emberfall-zone/core/internal/pkg/response"
)

const (
	countCacheKey = "ef:newsletter:count"
	statsCacheKey = "ef:newsletter:stats"

	defaultPendingTTL = 24 * time.Hour
)

var tokenPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

// Mailer sends the two transactional emails of the double opt-in flow and
// returns a provider message id.
type Mailer interface {
	SendConfirmation(to, confirmURL string) (string, error)
	SendWelcome(to, unsubscribeURL string) (string, error)
}

// releaseMailer adapts the shared mail sender, pinning the release countdown
// the templates render.
type releaseMailer struct {
	sender  *mail.Sender
	release countdown.Release
}

// NewReleaseMailer wraps sender so every email counts toward release.
func NewReleaseMailer(sender *mail.Sender, release countdown.Release) Mailer {
	return &releaseMailer{sender: sender, release: release}
}

func (m *releaseMailer) SendConfirmation(to, confirmURL string) (string, error) {
	return m.sender.SendConfirmation(to, confirmURL, m.release)
}

func (m *releaseMailer) SendWelcome(to, unsubscribeURL string) (string, error) {
	return m.sender.SendWelcome(to, unsubscribeURL, m.release)
}

// Options tunes the subscription workflow.
type Options struct {
	PendingTTL     time.Duration
	BlockedDomains []string
	CountCacheTTL  time.Duration
	ConfirmURL     func(token string) string
	UnsubscribeURL func(token string) string

	// Now is swappable for tests.
	Now func() time.Time
}

type Service struct {
	db     *gorm.DB
	mailer Mailer
	bark   *bark.Service
	cache  *redis.Client
	log    *zap.Logger
	opts   Options
}

func NewService(db *gorm.DB, mailer Mailer, barkSvc *bark.Service, cache *redis.Client, log *zap.Logger, opts Options) *Service {
	if opts.PendingTTL <= 0 {
		opts.PendingTTL = defaultPendingTTL
	}
	if opts.CountCacheTTL <= 0 {
		opts.CountCacheTTL = 5 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ConfirmURL == nil {
		opts.ConfirmURL = func(token string) string { return "?token=" + token }
	}
	if opts.UnsubscribeURL == nil {
		opts.UnsubscribeURL = func(token string) string { return "?token=" + token }
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{db: db, mailer: mailer, bark: barkSvc, cache: cache, log: log, opts: opts}
}

func newToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// ValidTokenFormat reports whether raw looks like a token this service issued.
func ValidTokenFormat(raw string) bool {
	return tokenPattern.MatchString(raw)
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *gomysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
		return true
	}
	// sqlite in tests
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Subscribe starts the double opt-in flow. The confirmation email goes out
// before anything is written: a failed send leaves no state behind, while a
// failed insert after a successful send is reported with emailSent so the
// operator can reconcile.
func (s *Service) Subscribe(dto *SubscribeDTO) (*SubscribeResult, *FlowError) {
	check := emailaddr.Validate(dto.Email, s.opts.BlockedDomains)
	if !check.Valid {
		return nil, flowErr(http.StatusBadRequest, response.CodeValidationEmail, check.Message)
	}
	email := check.Sanitized
	now := s.opts.Now()

	var active models.SubscriberModel
	err := s.db.Where("email = ? AND status = ?", email, models.SubscriberStatusActive).
		First(&active).Error
	if err == nil {
		return nil, flowErr(http.StatusConflict, response.CodeAlreadySubscribed,
			"This email address is already subscribed")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, flowErr(http.StatusInternalServerError, response.CodeDatabaseUnavailable,
			"Database temporarily unavailable")
	}

	var pending models.PendingSubscriptionModel
	err = s.db.Where("email = ?", email).First(&pending).Error
	if err == nil {
		if now.Sub(pending.CreatedAt) < s.opts.PendingTTL {
			return nil, flowErr(http.StatusConflict, response.CodeAlreadyPending,
				"A confirmation email has already been sent to this address")
		}
		// expired leftover, clear it and start over
		if delErr := s.db.Unscoped().Delete(&pending).Error; delErr != nil {
			return nil, flowErr(http.StatusInternalServerError, response.CodeDatabaseUnavailable,
				"Database temporarily unavailable")
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, flowErr(http.StatusInternalServerError, response.CodeDatabaseUnavailable,
			"Database temporarily unavailable")
	}

	token, err := newToken()
	if err != nil {
		return nil, flowErr(http.StatusInternalServerError, response.CodeServerInternal,
			"Internal server error")
	}

	messageID, err := s.mailer.SendConfirmation(email, s.opts.ConfirmURL(token))
	if err != nil {
		s.log.Warn("confirmation email failed",
			zap.String("email", email), zap.Error(err))
		return nil, flowErr(http.StatusServiceUnavailable, response.CodeEmailDeliveryFailed,
			"Unable to send confirmation email. Please try again later.")
	}

	row := models.PendingSubscriptionModel{
		Email:    email,
		Token:    token,
		Source:   normalizeSource(dto.Source),
		Tags:     models.StringArray(dto.Tags),
		Metadata: dto.Metadata,
	}
	if err := s.db.Create(&row).Error; err != nil {
		ferr := &FlowError{EmailSent: true, MessageID: messageID}
		if isDuplicateKey(err) {
			ferr.Status = http.StatusConflict
			ferr.Code = response.CodeRaceConditionDetected
			ferr.Message = "A concurrent subscription for this address was detected"
			s.bark.ReconcilePush(email, messageID, "duplicate pending row after send")
		} else {
			ferr.Status = http.StatusInternalServerError
			ferr.Code = response.CodeDatabaseStorageFailed
			ferr.Message = "Subscription could not be stored"
			s.bark.ReconcilePush(email, messageID, "pending insert failed after send")
		}
		s.log.Error("pending insert failed after email send",
			zap.String("email", email), zap.String("messageId", messageID), zap.Error(err))
		return nil, ferr
	}

	return &SubscribeResult{Email: email, Status: models.SubscriberStatusPending, MessageID: messageID}, nil
}

// Confirm turns a pending subscription into an active subscriber. Expired
// tokens read as not found; the stale row is removed on the way out.
func (s *Service) Confirm(token string) (*ConfirmResult, *FlowError) {
	if !ValidTokenFormat(token) {
		return nil, flowErr(http.StatusBadRequest, response.CodeTokenInvalidFormat,
			"Invalid confirmation token format")
	}

	var pending models.PendingSubscriptionModel
	err := s.db.Where("token = ?", token).First(&pending).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, flowErr(http.StatusNotFound, response.CodeTokenNotFound,
			"Confirmation token not found or expired")
	}
	if err != nil {
		return nil, flowErr(http.StatusInternalServerError, response.CodeDatabaseUnavailable,
			"Database temporarily unavailable")
	}

	now := s.opts.Now()
	if now.Sub(pending.CreatedAt) >= s.opts.PendingTTL {
		_ = s.db.Unscoped().Delete(&pending).Error
		return nil, flowErr(http.StatusNotFound, response.CodeTokenNotFound,
			"Confirmation token not found or expired")
	}

	unsubToken, err := newToken()
	if err != nil {
		return nil, flowErr(http.StatusInternalServerError, response.CodeServerInternal,
			"Internal server error")
	}

	subscribedAt := now
	var subscriber models.SubscriberModel
	err = s.db.Where("email = ?", pending.Email).First(&subscriber).Error
	switch {
	case err == nil:
		updates := map[string]interface{}{
			"status":            models.SubscriberStatusActive,
			"verified":          true,
			"subscribed_at":     subscribedAt,
			"unsubscribe_token": unsubToken,
			"source":            pending.Source,
			"tags":              models.StringArray(pending.Tags),
		}
		if err := s.db.Model(&subscriber).Updates(updates).Error; err != nil {
			return nil, flowErr(http.StatusInternalServerError, response.CodeDatabaseStorageFailed,
				"Subscription could not be stored")
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		subscriber = models.SubscriberModel{
			Email:            pending.Email,
			Status:           models.SubscriberStatusActive,
			Source:           pending.Source,
			Tags:             pending.Tags,
			Metadata:         pending.Metadata,
			SubscribedAt:     &subscribedAt,
			UnsubscribeToken: unsubToken,
			Verified:         true,
		}
		if err := s.db.Create(&subscriber).Error; err != nil {
			return nil, flowErr(http.StatusInternalServerError, response.CodeDatabaseStorageFailed,
				"Subscription could not be stored")
		}
	default:
		return nil, flowErr(http.StatusInternalServerError, response.CodeDatabaseUnavailable,
			"Database temporarily unavailable")
	}

	if err := s.db.Unscoped().Delete(&pending).Error; err != nil {
		s.log.Warn("pending row cleanup failed", zap.String("email", pending.Email), zap.Error(err))
	}

	s.invalidateCaches()

	// welcome email is best effort, confirmation already succeeded
	if _, err := s.mailer.SendWelcome(pending.Email, s.opts.UnsubscribeURL(unsubToken)); err != nil {
		s.log.Warn("welcome email failed", zap.String("email", pending.Email), zap.Error(err))
	}

	return &ConfirmResult{
		Email:        pending.Email,
		Status:       models.SubscriberStatusActive,
		SubscribedAt: subscribedAt.UTC().Format(time.RFC3339),
	}, nil
}

// Unsubscribe deactivates a subscriber by unsubscribe token or by explicit
// email confirmation. It is idempotent: repeating the request returns the same
// success response, and an unknown identity is reported as success too so the
// endpoint cannot be used to probe which addresses are subscribed.
func (s *Service) Unsubscribe(dto *UnsubscribeDTO, meta RequestMeta) (*UnsubscribeResult, *FlowError) {
	var subscriber models.SubscriberModel
	var err error

	switch {
	case dto.Token != "":
		if !ValidTokenFormat(dto.Token) {
			return nil, flowErr(http.StatusBadRequest, response.CodeTokenInvalidFormat,
				"Invalid unsubscribe token format")
		}
		err = s.db.Where("unsubscribe_token = ?", dto.Token).First(&subscriber).Error
	case dto.Email != "":
		if !dto.Confirm {
			return nil, flowErr(http.StatusBadRequest, response.CodeValidationBody,
				"Unsubscribing by email requires confirm: true")
		}
		check := emailaddr.Validate(dto.Email, nil)
		if !check.Valid {
			return nil, flowErr(http.StatusBadRequest, response.CodeValidationEmail, check.Message)
		}
		err = s.db.Where("email = ?", check.Sanitized).First(&subscriber).Error
	default:
		return nil, flowErr(http.StatusBadRequest, response.CodeValidationBody,
			"Either token or email is required")
	}

	if dto.Reason != "" && !models.ValidUnsubscribeReason(dto.Reason) {
		return nil, flowErr(http.StatusBadRequest, response.CodeValidationBody,
			"Invalid unsubscribe reason")
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &UnsubscribeResult{Status: models.SubscriberStatusUnsubscribed}, nil
	}
	if err != nil {
		return nil, flowErr(http.StatusInternalServerError, response.CodeDatabaseUnavailable,
			"Database temporarily unavailable")
	}

	if subscriber.Status != models.SubscriberStatusUnsubscribed {
		if err := s.db.Model(&subscriber).Update("status", models.SubscriberStatusUnsubscribed).Error; err != nil {
			return nil, flowErr(http.StatusInternalServerError, response.CodeDatabaseStorageFailed,
				"Unsubscribe could not be stored")
		}
		s.invalidateCaches()

		reason := dto.Reason
		if reason == "" {
			reason = models.UnsubReasonOther
		}
		logRow := models.UnsubscribeLogModel{
			SubscriberID: subscriber.ID,
			Email:        subscriber.Email,
			Reason:       reason,
			Feedback:     truncate(dto.Feedback, 2000),
			UserAgent:    truncate(meta.UserAgent, 512),
			IP:           truncate(meta.IP, 64),
			Source:       subscriber.Source,
			Tags:         subscriber.Tags,
		}
		if err := s.db.Create(&logRow).Error; err != nil {
			s.log.Warn("unsubscribe log write failed",
				zap.String("email", subscriber.Email), zap.Error(err))
		}
	}

	return &UnsubscribeResult{
		Email:  subscriber.Email,
		Status: models.SubscriberStatusUnsubscribed,
		known:  true,
	}, nil
}

// Known reports whether the unsubscribe request matched a real subscriber.
func (r *UnsubscribeResult) Known() bool { return r.known }

// Count returns the number of active subscribers, served from redis for a few
// minutes at a time.
func (s *Service) Count(ctx context.Context) (int64, error) {
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, countCacheKey); err == nil && raw != "" {
			if n, convErr := strconv.ParseInt(raw, 10, 64); convErr == nil {
				return n, nil
			}
		}
	}

	var count int64
	err := s.db.Model(&models.SubscriberModel{}).
		Where("status = ?", models.SubscriberStatusActive).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count active subscribers: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, countCacheKey, strconv.FormatInt(count, 10), s.opts.CountCacheTTL); err != nil {
			s.log.Warn("count cache write failed", zap.Error(err))
		}
	}
	return count, nil
}

// Stats aggregates subscriber totals for the operator dashboard, cached in
// redis alongside the public count.
func (s *Service) Stats(ctx context.Context) (*StatsResult, error) {
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, statsCacheKey); err == nil && raw != "" {
			var cached StatsResult
			if jsonErr := json.Unmarshal([]byte(raw), &cached); jsonErr == nil {
				return &cached, nil
			}
		}
	}

	stats := StatsResult{
		BySource:    map[string]int64{},
		ByTag:       map[string]int64{},
		ByReason:    map[string]int64{},
		GeneratedAt: s.opts.Now().UTC(),
	}

	if err := s.db.Model(&models.SubscriberModel{}).Count(&stats.Total).Error; err != nil {
		return nil, fmt.Errorf("count subscribers: %w", err)
	}
	if err := s.db.Model(&models.SubscriberModel{}).
		Where("status = ?", models.SubscriberStatusActive).Count(&stats.Active).Error; err != nil {
		return nil, fmt.Errorf("count active: %w", err)
	}
	if err := s.db.Model(&models.SubscriberModel{}).
		Where("status = ?", models.SubscriberStatusUnsubscribed).Count(&stats.Unsubscribed).Error; err != nil {
		return nil, fmt.Errorf("count unsubscribed: %w", err)
	}

	cutoff := s.opts.Now().Add(-s.opts.PendingTTL)
	if err := s.db.Model(&models.PendingSubscriptionModel{}).
		Where("created_at >= ?", cutoff).Count(&stats.Pending).Error; err != nil {
		return nil, fmt.Errorf("count pending: %w", err)
	}

	now := s.opts.Now()
	if err := s.db.Model(&models.SubscriberModel{}).
		Where("status = ? AND subscribed_at >= ?", models.SubscriberStatusActive, now.Add(-7*24*time.Hour)).
		Count(&stats.Signups7d).Error; err != nil {
		return nil, fmt.Errorf("count recent signups: %w", err)
	}
	if err := s.db.Model(&models.SubscriberModel{}).
		Where("status = ? AND subscribed_at >= ?", models.SubscriberStatusActive, now.Add(-30*24*time.Hour)).
		Count(&stats.Signups30d).Error; err != nil {
		return nil, fmt.Errorf("count recent signups: %w", err)
	}

	type kv struct {
		Key   string
		Count int64
	}
	var bySource []kv
	if err := s.db.Model(&models.SubscriberModel{}).
		Select("source AS `key`, COUNT(*) AS count").
		Where("status = ?", models.SubscriberStatusActive).
		Group("source").Scan(&bySource).Error; err != nil {
		return nil, fmt.Errorf("group by source: %w", err)
	}
	for _, row := range bySource {
		stats.BySource[row.Key] = row.Count
	}

	// Tags live in a JSON column, so the breakdown is computed in memory.
	var tagRows []models.StringArray
	if err := s.db.Model(&models.SubscriberModel{}).
		Where("status = ?", models.SubscriberStatusActive).
		Pluck("tags", &tagRows).Error; err != nil {
		return nil, fmt.Errorf("collect tags: %w", err)
	}
	for _, tags := range tagRows {
		for _, tag := range tags {
			stats.ByTag[tag]++
		}
	}

	var byReason []kv
	if err := s.db.Model(&models.UnsubscribeLogModel{}).
		Select("reason AS `key`, COUNT(*) AS count").
		Group("reason").Scan(&byReason).Error; err != nil {
		return nil, fmt.Errorf("group by reason: %w", err)
	}
	for _, row := range byReason {
		stats.ByReason[row.Key] = row.Count
	}

	if s.cache != nil {
		if raw, err := json.Marshal(&stats); err == nil {
			if err := s.cache.Set(ctx, statsCacheKey, raw, s.opts.CountCacheTTL); err != nil {
				s.log.Warn("stats cache write failed", zap.Error(err))
			}
		}
	}
	return &stats, nil
}

// CleanupExpired hard-deletes pending rows past the TTL. Expiry is also
// enforced lazily at lookup, this keeps the table from accumulating.
func (s *Service) CleanupExpired() (int64, error) {
	cutoff := s.opts.Now().Add(-s.opts.PendingTTL)
	res := s.db.Unscoped().
		Where("created_at < ?", cutoff).
		Delete(&models.PendingSubscriptionModel{})
	if res.Error != nil {
		return 0, fmt.Errorf("cleanup pending subscriptions: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *Service) invalidateCaches() {
	if s.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.cache.Del(ctx, countCacheKey, statsCacheKey); err != nil {
		s.log.Warn("cache invalidation failed", zap.Error(err))
	}
}

func normalizeSource(source string) string {
	if source == "" {
		return "web"
	}
	if len(source) > 64 {
		return source[:64]
	}
	return source
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
