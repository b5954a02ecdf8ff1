package mail

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/emberfall-zone/core/internal/pkg/countdown"
)

const confirmTpl = `<!DOCTYPE html>
<html>
<body style="font-family:ui-sans-serif,system-ui,sans-serif;background:#0b0b12;padding:20px">
<div style="max-width:600px;margin:0 auto;background:#15151f;border-radius:8px;padding:24px;color:#e5e5ef">
  <h2 style="color:#f97316">Confirm your subscription</h2>
  <p>Thanks for signing up to the {{.SiteName}} newsletter! Click the button below to confirm your email address:</p>
  <p style="margin-top:24px">
    <a href="{{.ConfirmURL}}" style="background:#f97316;color:#fff;padding:10px 18px;text-decoration:none;border-radius:4px">Confirm email</a>
  </p>
  {{if .Released}}
  <p style="color:#9ca3af">{{.GameTitle}} is out now — confirm to get patch notes and community news.</p>
  {{else}}
  <p style="color:#9ca3af">{{.GameTitle}} launches in <strong style="color:#f97316">{{.DaysRemaining}}</strong> day{{if ne .DaysRemaining 1}}s{{end}}. Confirm so you don't miss it.</p>
  {{end}}
  <p style="color:#6b7280;font-size:12px">This link expires in 24 hours. If you didn't request this, just ignore this email.</p>
  <hr style="border:none;border-top:1px solid #2a2a3a;margin:20px 0" />
  <p style="color:#6b7280;font-size:11px">&copy;{{year}} {{.SiteName}} — a fan site, not affiliated with the publisher.</p>
</div>
</body>
</html>`

const welcomeTpl = `<!DOCTYPE html>
<html>
<body style="font-family:ui-sans-serif,system-ui,sans-serif;background:#0b0b12;padding:20px">
<div style="max-width:600px;margin:0 auto;background:#15151f;border-radius:8px;padding:24px;color:#e5e5ef">
  <h2 style="color:#f97316">You're in!</h2>
  <p>Your subscription to the {{.SiteName}} newsletter is confirmed.</p>
  {{if .Released}}
  <p>{{.GameTitle}} is out — expect patch notes, guides and community picks.</p>
  {{else}}
  <p><strong style="color:#f97316">{{.DaysRemaining}}</strong> day{{if ne .DaysRemaining 1}}s{{end}} until {{.GameTitle}} launches. We'll keep you posted.</p>
  {{end}}
  <hr style="border:none;border-top:1px solid #2a2a3a;margin:20px 0" />
  <p style="color:#6b7280;font-size:11px">
    Don't want these? <a href="{{.UnsubscribeURL}}" style="color:#9ca3af">Unsubscribe</a><br />
    &copy;{{year}} {{.SiteName}} — a fan site, not affiliated with the publisher.
  </p>
</div>
</body>
</html>`

// templateData feeds both transactional templates.
type templateData struct {
	SiteName       string
	GameTitle      string
	DaysRemaining  int
	Released       bool
	ConfirmURL     string
	UnsubscribeURL string
}

func renderTemplate(tpl string, data interface{}) (string, error) {
	t, err := template.New("").Funcs(template.FuncMap{
		"year": func() int {
			return time.Now().Year()
		},
	}).Parse(tpl)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (s *Sender) siteName() string {
	if s.cfg.SiteName != "" {
		return s.cfg.SiteName
	}
	return "Emberfall Zone"
}

func (s *Sender) data(release countdown.Release) templateData {
	now := time.Now()
	return templateData{
		SiteName:      s.siteName(),
		GameTitle:     release.Title,
		DaysRemaining: release.DaysRemaining(now),
		Released:      release.Released(now),
	}
}

// SendConfirmation sends the double opt-in confirmation email carrying the
// tokenized confirm link. Returns the provider message id.
func (s *Sender) SendConfirmation(to, confirmURL string, release countdown.Release) (string, error) {
	data := s.data(release)
	data.ConfirmURL = confirmURL

	html, err := renderTemplate(confirmTpl, data)
	if err != nil {
		return "", err
	}
	return s.Send(Message{
		To:      []string{to},
		Subject: fmt.Sprintf("[%s] Please confirm your subscription", data.SiteName),
		HTML:    html,
		Text:    fmt.Sprintf("Confirm your %s newsletter subscription: %s (link expires in 24 hours)", data.SiteName, confirmURL),
	})
}

// SendWelcome sends the post-confirmation welcome email with the subscriber's
// unsubscribe link.
func (s *Sender) SendWelcome(to, unsubscribeURL string, release countdown.Release) (string, error) {
	data := s.data(release)
	data.UnsubscribeURL = unsubscribeURL

	html, err := renderTemplate(welcomeTpl, data)
	if err != nil {
		return "", err
	}
	return s.Send(Message{
		To:      []string{to},
		Subject: fmt.Sprintf("[%s] Welcome aboard", data.SiteName),
		HTML:    html,
		Text:    fmt.Sprintf("Your %s newsletter subscription is confirmed. Unsubscribe: %s", data.SiteName, unsubscribeURL),
	})
}
