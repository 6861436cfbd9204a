package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/auto-dns/docker-fleet-updater/internal/domain"
	"github.com/auto-dns/docker-fleet-updater/internal/settings"
	"github.com/rs/zerolog"
)

const defaultSendTimeout = 10 * time.Second

type settingsReader interface {
	Notification() settings.Notification
}

// Message is the JSON document posted to webhook URLs.
type Message struct {
	Title  string `json:"title,omitempty"`
	Body   string `json:"body"`
	Format string `json:"format"`
}

// Notifier renders run results and delivers them to the configured URLs. http and https
// URLs receive a JSON POST; log:// writes the message to the application log.
type Notifier struct {
	settings settingsReader
	client   *http.Client
	hostname string
	logger   zerolog.Logger
}

func New(s settingsReader, logger zerolog.Logger) *Notifier {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown-host"
	}
	return &Notifier{
		settings: s,
		client:   &http.Client{Timeout: defaultSendTimeout},
		hostname: hostname,
		logger:   logger,
	}
}

// Notify renders the results with the current settings and sends them. Nothing is sent
// when no URL is configured or the rendered body is blank.
func (n *Notifier) Notify(ctx context.Context, results []*domain.HostResult) error {
	return n.NotifyWith(ctx, n.settings.Notification(), results)
}

// NotifyWith is Notify with explicit settings.
func (n *Notifier) NotifyWith(ctx context.Context, cfg settings.Notification, results []*domain.HostResult) error {
	urls := cleanURLs(cfg.URLs)
	if len(urls) == 0 {
		return nil
	}
	bodyTemplate := cfg.BodyTemplate
	if strings.TrimSpace(bodyTemplate) == "" {
		bodyTemplate = DefaultBodyTemplate
	}

	var title string
	if cfg.Title != "" {
		var err error
		if title, err = Render(cfg.Title, results, n.hostname); err != nil {
			return err
		}
		title = strings.TrimSpace(title)
	}
	body, err := Render(bodyTemplate, results, n.hostname)
	if err != nil {
		return err
	}
	body = strings.TrimSpace(body)
	if body == "" {
		n.logger.Warn().Msg("No notification body after template render, exiting")
		return nil
	}
	return n.Send(ctx, urls, Message{Title: title, Body: body, Format: "markdown"})
}

// Send delivers msg to every URL and returns the joined delivery errors.
func (n *Notifier) Send(ctx context.Context, urls []string, msg Message) error {
	n.logger.Info().Msg("Sending notification")
	n.logger.Debug().Str("title", msg.Title).Msg(msg.Body)

	var errs []error
	for _, raw := range urls {
		if err := n.sendOne(ctx, raw, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (n *Notifier) sendOne(ctx context.Context, raw string, msg Message) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse notification url: %w", err)
	}
	switch u.Scheme {
	case "log":
		n.logger.Info().Str("title", msg.Title).Msg(msg.Body)
		return nil
	case "http", "https":
		return n.post(ctx, u, msg)
	default:
		return fmt.Errorf("unsupported notification url scheme %q", u.Scheme)
	}
}

func (n *Notifier) post(ctx context.Context, u *url.URL, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post notification to %s: %w", u.Redacted(), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("post notification to %s: unexpected status %d", u.Redacted(), resp.StatusCode)
	}
	return nil
}

func cleanURLs(urls []string) []string {
	var out []string
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}
