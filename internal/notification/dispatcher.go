package notification

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/smtp"
	"os/exec"
	"strings"
	"sync"
	"time"

	"grimm.is/droplist/internal/brand"
	"grimm.is/droplist/internal/config"
	"grimm.is/droplist/internal/logging"
	"grimm.is/droplist/internal/metrics"
)

// Level constants
const (
	LevelInfo     = "info"
	LevelWarning  = "warning"
	LevelCritical = "critical"
)

// Channel names used in logs and metrics.
const (
	ChannelSMTP     = "smtp"
	ChannelSendmail = "sendmail"
	ChannelWebhook  = "webhook"
)

// Notification represents a notification event
type Notification struct {
	Event     Event          `json:"event"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Level     string         `json:"level"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// Dispatcher delivers notifications to the configured channels. Delivery
// failures are logged and never returned to the caller.
type Dispatcher struct {
	config  *config.NotifyConfig
	logger  *logging.Logger
	metrics *metrics.Registry
	client  *http.Client

	// Injectable transports for testing
	emailSender    func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	sendmailRunner func(path string, msg []byte, args ...string) error
}

// NewDispatcher creates a new notification dispatcher. A nil or disabled
// config yields a dispatcher that drops everything.
func NewDispatcher(cfg *config.NotifyConfig, logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Default().WithComponent("notification")
	}
	return &Dispatcher{
		config:         cfg,
		logger:         logger,
		client:         &http.Client{Timeout: 10 * time.Second},
		emailSender:    smtp.SendMail,
		sendmailRunner: runSendmail,
	}
}

// SetMetrics records delivery results in r.
func (d *Dispatcher) SetMetrics(r *metrics.Registry) {
	d.metrics = r
}

// Enabled reports whether any notification will be attempted.
func (d *Dispatcher) Enabled() bool {
	return d.config != nil && d.config.Enabled
}

// Send dispatches a notification to every configured channel and waits for
// all deliveries to finish.
func (d *Dispatcher) Send(n Notification) {
	if !d.Enabled() {
		return
	}
	cfg := d.config

	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}
	if n.Level == "" {
		n.Level = LevelInfo
	}

	var channels []string
	if cfg.AdminEmail != "" {
		if cfg.SMTPHost != "" {
			channels = append(channels, ChannelSMTP)
		} else {
			channels = append(channels, ChannelSendmail)
		}
	}
	if cfg.WebhookURL != "" {
		channels = append(channels, ChannelWebhook)
	}

	var wg sync.WaitGroup
	for _, ch := range channels {
		wg.Add(1)
		go func(channel string) {
			defer wg.Done()
			err := d.sendToChannel(channel, n)
			d.record(channel, err)
			if err != nil {
				d.logger.Error("failed to send notification",
					"channel", channel,
					"event", string(n.Event),
					"error", err)
			}
		}(ch)
	}
	wg.Wait()
}

func (d *Dispatcher) record(channel string, err error) {
	if d.metrics == nil {
		return
	}
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultFailure
	}
	d.metrics.Notifications.WithLabelValues(channel, result).Inc()
}

func (d *Dispatcher) sendToChannel(channel string, n Notification) error {
	switch channel {
	case ChannelSMTP:
		return d.sendSMTP(n)
	case ChannelSendmail:
		return d.sendSendmail(n)
	case ChannelWebhook:
		return d.sendWebhook(n)
	default:
		return fmt.Errorf("unknown channel type: %s", channel)
	}
}

// Channel Implementations

// buildMessage renders an RFC 5322 message for n.
func (d *Dispatcher) buildMessage(n Notification) []byte {
	var sb strings.Builder
	fmt.Fprintf(&sb, "From: %s\r\n", d.config.SenderEmail)
	fmt.Fprintf(&sb, "To: %s\r\n", d.config.AdminEmail)
	fmt.Fprintf(&sb, "Subject: [%s] %s\r\n", brand.Name, n.Title)
	fmt.Fprintf(&sb, "Date: %s\r\n", n.Timestamp.Format(time.RFC1123Z))
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(strings.ReplaceAll(n.Message, "\n", "\r\n"))
	sb.WriteString("\r\n")
	return []byte(sb.String())
}

func (d *Dispatcher) sendSMTP(n Notification) error {
	cfg := d.config
	addr := fmt.Sprintf("%s:%d", cfg.SMTPHost, cfg.SMTPPort)

	var auth smtp.Auth
	if cfg.SMTPUser != "" {
		auth = smtp.PlainAuth("", cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPHost)
	}

	return d.emailSender(addr, auth, cfg.SenderEmail, []string{cfg.AdminEmail}, d.buildMessage(n))
}

func (d *Dispatcher) sendSendmail(n Notification) error {
	cfg := d.config
	return d.sendmailRunner(cfg.SendmailPath, d.buildMessage(n), "-i", "-f", cfg.SenderEmail, "--", cfg.AdminEmail)
}

func runSendmail(path string, msg []byte, args ...string) error {
	cmd := exec.Command(path, args...)
	cmd.Stdin = bytes.NewReader(msg)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("sendmail failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (d *Dispatcher) sendWebhook(n Notification) error {
	payload := map[string]any{
		"text":      fmt.Sprintf("*%s*\n%s", n.Title, n.Message),
		"event":     n.Event,
		"title":     n.Title,
		"level":     n.Level,
		"timestamp": n.Timestamp.Unix(),
	}
	if len(n.Data) > 0 {
		payload["data"] = n.Data
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, d.config.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", brand.UserAgent(brand.Version))

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook failed with status: %d", resp.StatusCode)
	}
	return nil
}
