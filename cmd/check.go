package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"grimm.is/droplist/internal/config"
	"grimm.is/droplist/internal/firewall"
	"grimm.is/droplist/internal/services/threatintel"
)

// RunCheck validates the configuration file syntax and semantics.
func RunCheck(configFile string, verbose bool) error {
	if len(configFile) == 0 {
		return fmt.Errorf("usage: droplist check [-v] <config-file>")
	}

	cfg, err := config.LoadFile(configFile)
	if err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}

	Printer.Printf("Configuration valid!\n")
	Printer.Printf("Feed: %s\n", cfg.FeedURL)
	Printer.Printf("Chain: %s %s %s (hooked from %s)\n", cfg.Family, cfg.Table, cfg.Chain, cfg.BaseChain)

	if verbose {
		Printer.Println()
		printSummary(cfg)

		Printer.Println("\n[DRY RUN] Rules from cache:")
		printCachedRules(cfg)
	}

	return nil
}

func printSummary(cfg *config.Config) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)

	Printer.Fprintln(w, "SETTING\tVALUE")
	Printer.Fprintf(w, "comment_prefix\t%s\n", cfg.CommentPrefix)
	Printer.Fprintf(w, "rate_limit\t%s\n", cfg.RateLimitInterval())
	fetchTimeout := "disabled"
	if cfg.FetchTimeout > 0 {
		fetchTimeout = cfg.FetchTimeoutDuration().String()
	}
	Printer.Fprintf(w, "fetch_timeout\t%s\n", fetchTimeout)
	Printer.Fprintf(w, "cache_dir\t%s\n", cfg.CacheDir)
	Printer.Fprintf(w, "socket_path\t%s\n", cfg.SocketPath)
	Printer.Fprintf(w, "backend\t%s\n", cfg.Backend)
	if cfg.Backend == config.BackendNft {
		Printer.Fprintf(w, "nft_path\t%s\n", cfg.NftPath)
	}
	Printer.Fprintf(w, "action\t%s\n", cfg.Action)
	Printer.Fprintf(w, "counter\t%t\n", cfg.Counter)
	Printer.Fprintf(w, "log_level\t%s\n", cfg.LogLevel)
	if cfg.MetricsListen != "" {
		Printer.Fprintf(w, "metrics_listen\t%s\n", cfg.MetricsListen)
	}
	Printer.Fprintln(w)
	w.Flush()

	if cfg.Notify == nil || !cfg.Notify.Enabled {
		Printer.Fprintln(w, "NOTIFY\tdisabled")
		w.Flush()
		return
	}

	Printer.Fprintln(w, "NOTIFY\tTARGET")
	if cfg.Notify.AdminEmail != "" {
		via := cfg.Notify.SendmailPath
		if cfg.Notify.SMTPHost != "" {
			via = fmt.Sprintf("smtp %s:%d", cfg.Notify.SMTPHost, cfg.Notify.SMTPPort)
		}
		Printer.Fprintf(w, "email\t%s (via %s)\n", cfg.Notify.AdminEmail, via)
	}
	if cfg.Notify.WebhookURL != "" {
		Printer.Fprintf(w, "webhook\t%s\n", cfg.Notify.WebhookURL)
	}
	w.Flush()
}

// printCachedRules renders the nft script the daemon would load for the
// entries currently in the cache.
func printCachedRules(cfg *config.Config) {
	cache := threatintel.NewCache(cfg.CacheDir)
	entries, err := cache.Entries()
	if err != nil {
		Printer.Printf("No usable cache in %s: %v\n", cfg.CacheDir, err)
		return
	}
	if last := cache.LastFetch(); last != nil {
		Printer.Printf("Last fetch: %s\n", last.Format(time.RFC3339))
	}

	action, err := firewall.ParseAction(cfg.Action)
	if err != nil {
		Printer.Printf("Error: %v\n", err)
		return
	}

	rules := make([]firewall.Rule, 0, len(entries))
	for _, e := range entries {
		src, err := firewall.ParseSource(e)
		if err != nil {
			Printer.Printf("Skipping %q: %v\n", e, err)
			continue
		}
		rules = append(rules, firewall.Rule{Source: src, Action: action, Counter: cfg.Counter})
	}

	spec := firewall.ChainSpec{Family: cfg.Family, Table: cfg.Table, BaseChain: cfg.BaseChain, Chain: cfg.Chain}
	Printer.Print(firewall.BuildRuleScript(spec, rules))
	Printer.Printf("%d rules\n", len(rules))
}
