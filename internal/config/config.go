package config

import (
	"time"

	"grimm.is/droplist/internal/brand"
)

// Firewall backends.
const (
	BackendNetlink = "netlink"
	BackendNft     = "nft"
)

// Rule actions applied to every listed network.
const (
	ActionDrop   = "drop"
	ActionReject = "reject"
	ActionAccept = "accept"
)

// Config is the daemon configuration.
type Config struct {
	// Feed
	FeedURL       string `hcl:"feed_url" json:"feed_url"`
	CommentPrefix string `hcl:"comment_prefix,optional" json:"comment_prefix,omitempty"`
	RateLimit     int    `hcl:"rate_limit,optional" json:"rate_limit,omitempty"`       // seconds between fetches
	FetchTimeout  int    `hcl:"fetch_timeout,optional" json:"fetch_timeout,omitempty"` // seconds, 0 disables
	FetchRetries  int    `hcl:"fetch_retries,optional" json:"fetch_retries,omitempty"` // extra attempts on transient failure
	CacheDir      string `hcl:"cache_dir,optional" json:"cache_dir,omitempty"`

	// UpdateSchedule triggers the update command periodically: an interval
	// ("6h") or a cron expression ("0 */6 * * *"). Empty disables it.
	UpdateSchedule string `hcl:"update_schedule,optional" json:"update_schedule,omitempty"`

	// Control channel
	SocketPath string `hcl:"socket_path,optional" json:"socket_path,omitempty"`

	// Packet filter
	Backend   string `hcl:"backend,optional" json:"backend,omitempty"` // netlink or nft
	NftPath   string `hcl:"nft_path,optional" json:"nft_path,omitempty"`
	Family    string `hcl:"family,optional" json:"family,omitempty"` // inet, ip, ip6
	Table     string `hcl:"table,optional" json:"table,omitempty"`
	BaseChain string `hcl:"base_chain,optional" json:"base_chain,omitempty"`
	Chain     string `hcl:"chain,optional" json:"chain,omitempty"`
	Action    string `hcl:"action,optional" json:"action,omitempty"`
	Counter   bool   `hcl:"counter,optional" json:"counter,omitempty"`

	// Observability
	LogLevel      string `hcl:"log_level,optional" json:"log_level,omitempty"`
	LogJSON       bool   `hcl:"log_json,optional" json:"log_json,omitempty"`
	SyslogServer  string `hcl:"syslog_server,optional" json:"syslog_server,omitempty"`
	MetricsListen string `hcl:"metrics_listen,optional" json:"metrics_listen,omitempty"`

	Notify *NotifyConfig `hcl:"notify,block" json:"notify,omitempty"`
}

// NotifyConfig configures operator notifications.
// Email goes through SMTP when smtp_host is set, otherwise through the local
// sendmail binary. A webhook can be used alongside or instead of email.
type NotifyConfig struct {
	Enabled      bool   `hcl:"enabled,optional" json:"enabled"`
	AdminEmail   string `hcl:"admin_email,optional" json:"admin_email,omitempty"`
	SenderEmail  string `hcl:"sender_email,optional" json:"sender_email,omitempty"`
	SendmailPath string `hcl:"sendmail_path,optional" json:"sendmail_path,omitempty"`

	SMTPHost     string `hcl:"smtp_host,optional" json:"smtp_host,omitempty"`
	SMTPPort     int    `hcl:"smtp_port,optional" json:"smtp_port,omitempty"`
	SMTPUser     string `hcl:"smtp_user,optional" json:"smtp_user,omitempty"`
	SMTPPassword string `hcl:"smtp_password,optional" json:"-"`

	WebhookURL string `hcl:"webhook_url,optional" json:"webhook_url,omitempty"`
}

// Default values.
const (
	DefaultCommentPrefix = ";"
	DefaultRateLimit     = 3600
	DefaultFetchTimeout  = 60
	DefaultFetchRetries  = 2
	DefaultNftPath       = "/usr/sbin/nft"
	DefaultSendmailPath  = "/usr/sbin/sendmail"
	DefaultFamily        = "inet"
	DefaultTable         = "filter"
	DefaultBaseChain     = "input"
	DefaultChain         = "droplist"
	DefaultSMTPPort      = 25
)

// Default returns a Config populated with every default.
func Default() *Config {
	cfg := seeded()
	cfg.ApplyDefaults()
	return cfg
}

// seeded returns a Config holding the defaults of settings where 0 is a
// meaningful value. Decoding over it keeps them when the attribute is absent.
func seeded() *Config {
	return &Config{
		RateLimit:    DefaultRateLimit,
		FetchTimeout: DefaultFetchTimeout,
		FetchRetries: DefaultFetchRetries,
	}
}

// ApplyDefaults fills zero-valued settings. RateLimit, FetchTimeout and
// FetchRetries are left alone so an explicit 0 disables them.
func (c *Config) ApplyDefaults() {
	if c.CommentPrefix == "" {
		c.CommentPrefix = DefaultCommentPrefix
	}
	if c.CacheDir == "" {
		c.CacheDir = brand.GetStateDir()
	}
	if c.SocketPath == "" {
		c.SocketPath = brand.GetSocketPath()
	}
	if c.Backend == "" {
		c.Backend = BackendNetlink
	}
	if c.NftPath == "" {
		c.NftPath = DefaultNftPath
	}
	if c.Family == "" {
		c.Family = DefaultFamily
	}
	if c.Table == "" {
		c.Table = DefaultTable
	}
	if c.BaseChain == "" {
		c.BaseChain = DefaultBaseChain
	}
	if c.Chain == "" {
		c.Chain = DefaultChain
	}
	if c.Action == "" {
		c.Action = ActionDrop
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Notify != nil {
		if c.Notify.SendmailPath == "" {
			c.Notify.SendmailPath = DefaultSendmailPath
		}
		if c.Notify.SMTPPort == 0 {
			c.Notify.SMTPPort = DefaultSMTPPort
		}
		if c.Notify.SenderEmail == "" {
			c.Notify.SenderEmail = brand.LowerName + "@localhost"
		}
	}
}

// RateLimitInterval returns the minimum time between feed fetches.
func (c *Config) RateLimitInterval() time.Duration {
	return time.Duration(c.RateLimit) * time.Second
}

// FetchTimeoutDuration returns the HTTP timeout for feed downloads, 0 for none.
func (c *Config) FetchTimeoutDuration() time.Duration {
	return time.Duration(c.FetchTimeout) * time.Second
}
