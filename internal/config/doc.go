// Package config handles HCL configuration parsing, defaults and validation.
//
// # Overview
//
// droplist reads a single HCL (or JSON) file at startup. Every setting has a
// default, so a minimal file only needs the feed URL:
//
//	feed_url = "https://www.spamhaus.org/drop/drop.txt"
//
// Environment variables are reachable through the env object, which keeps
// secrets out of the file:
//
//	notify {
//	  enabled       = true
//	  admin_email   = "noc@example.net"
//	  smtp_host     = "mail.example.net"
//	  smtp_password = env.DROPLIST_SMTP_PASSWORD
//	}
//
// # Key Types
//
//   - [Config]: top-level settings (feed, cache, firewall, logging, metrics)
//   - [NotifyConfig]: operator notification channels
package config
