// Package bark sends iOS push notifications to the site operator via the
// Bark API: rate-limit abuse alerts and email/storage reconciliation alerts.
package bark

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Config holds the operator's Bark settings.
type Config struct {
	Key       string
	ServerURL string
	SiteTitle string
}

// Service sends push notifications. A nil *Service is safe to call; pushes
// become no-ops, so callers don't need to guard every site.
type Service struct {
	cfg        Config
	httpClient *http.Client

	mu         sync.Mutex
	lastPushAt map[string]time.Time
	throttleD  time.Duration
}

func New(cfg Config) *Service {
	return &Service{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		lastPushAt: make(map[string]time.Time),
		throttleD:  10 * time.Minute,
	}
}

type pushPayload struct {
	DeviceKey string `json:"device_key"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	Category  string `json:"category,omitempty"`
	Group     string `json:"group,omitempty"`
}

// Push sends a Bark notification immediately (no throttle).
func (s *Service) Push(title, body string) error {
	if s == nil || s.cfg.Key == "" {
		return nil
	}
	serverURL := s.cfg.ServerURL
	if serverURL == "" {
		serverURL = "https://day.app"
	}

	payload := pushPayload{
		DeviceKey: s.cfg.Key,
		Title:     fmt.Sprintf("[%s] %s", s.cfg.SiteTitle, title),
		Body:      body,
		Category:  s.cfg.SiteTitle,
		Group:     s.cfg.SiteTitle,
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	resp, err := s.httpClient.Post(serverURL+"/push", "application/json", bytes.NewReader(b))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

// ThrottlePush notifies about a rate-limit trip, at most once per ip+path
// per throttle interval so a flood doesn't flood the operator too.
func (s *Service) ThrottlePush(ip, path string) {
	if s == nil || s.cfg.Key == "" {
		return
	}

	throttleKey := ip + "|" + path

	s.mu.Lock()
	last, ok := s.lastPushAt[throttleKey]
	if ok && time.Since(last) < s.throttleD {
		s.mu.Unlock()
		return
	}
	s.lastPushAt[throttleKey] = time.Now()
	s.mu.Unlock()

	_ = s.Push("Possible abuse", fmt.Sprintf("IP: %s Path: %s", ip, path))
}

// ReconcilePush notifies that a confirmation email went out but the matching
// database write failed, so the operator can reconcile manually.
func (s *Service) ReconcilePush(email, messageID, reason string) {
	if s == nil || s.cfg.Key == "" {
		return
	}
	_ = s.Push("Subscription needs reconciliation",
		fmt.Sprintf("Email sent but not stored. To: %s MessageID: %s Reason: %s", email, messageID, reason))
}
