package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"grimm.is/droplist/internal/errors"
	"grimm.is/droplist/internal/scheduler"
)

var validNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.FeedURL == "" {
		add("feed_url is required")
	} else if u, err := url.Parse(c.FeedURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		add("feed_url %q must be an http(s) URL", c.FeedURL)
	}

	if utf8.RuneCountInString(c.CommentPrefix) != 1 {
		add("comment_prefix must be exactly one character, got %q", c.CommentPrefix)
	}
	if c.RateLimit < 0 {
		add("rate_limit must not be negative")
	}
	if c.FetchTimeout < 0 {
		add("fetch_timeout must not be negative")
	}
	if c.FetchRetries < 0 {
		add("fetch_retries must not be negative")
	}
	if c.UpdateSchedule != "" {
		if _, err := scheduler.Parse(c.UpdateSchedule); err != nil {
			add("update_schedule: %v", err)
		}
	}

	switch c.Backend {
	case BackendNetlink, BackendNft:
	default:
		add("unknown backend %q (want %s or %s)", c.Backend, BackendNetlink, BackendNft)
	}

	switch c.Family {
	case "inet", "ip", "ip6":
	default:
		add("unknown family %q (want inet, ip or ip6)", c.Family)
	}

	switch c.Action {
	case ActionDrop, ActionReject, ActionAccept:
	default:
		add("unknown action %q (want drop, reject or accept)", c.Action)
	}

	for field, name := range map[string]string{"table": c.Table, "base_chain": c.BaseChain, "chain": c.Chain} {
		if !validNameRegex.MatchString(name) {
			add("%s %q contains invalid characters", field, name)
		}
	}
	if c.Chain == c.BaseChain {
		add("chain and base_chain must differ")
	}

	if n := c.Notify; n != nil && n.Enabled {
		if n.AdminEmail == "" && n.WebhookURL == "" {
			add("notify requires admin_email or webhook_url")
		}
		if n.SMTPPort < 0 || n.SMTPPort > 65535 {
			add("smtp_port %d out of range", n.SMTPPort)
		}
	}

	if len(problems) > 0 {
		return errors.Errorf(errors.KindConfig, "invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
