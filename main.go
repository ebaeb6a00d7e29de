package main

import (
	"flag"
	"os"

	"grimm.is/droplist/cmd"
	"grimm.is/droplist/internal/brand"
	"grimm.is/droplist/internal/i18n"
)

var printer = i18n.NewCLIPrinter()

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runFlags := flag.NewFlagSet("run", flag.ExitOnError)
		configFile := runFlags.String("config", brand.GetConfigPath(), "Configuration file")
		runFlags.StringVar(configFile, "c", brand.GetConfigPath(), "Configuration file (short)")
		runFlags.Parse(os.Args[2:])

		if err := cmd.RunDaemon(*configFile); err != nil {
			printer.Fprintf(os.Stderr, "Run failed: %v\n", err)
			os.Exit(1)
		}

	case "send":
		sendFlags := flag.NewFlagSet("send", flag.ExitOnError)
		socketPath := sendFlags.String("socket", brand.GetSocketPath(), "Control socket path")
		sendFlags.StringVar(socketPath, "s", brand.GetSocketPath(), "Control socket path (short)")
		sendFlags.Parse(os.Args[2:])

		if sendFlags.NArg() != 1 {
			printer.Println("Usage: " + brand.LowerName + " send [-s socket] <reload-cache|force-update|update|stop|status>")
			os.Exit(1)
		}
		if err := cmd.RunSend(*socketPath, sendFlags.Arg(0)); err != nil {
			printer.Fprintf(os.Stderr, "Send failed: %v\n", err)
			os.Exit(1)
		}

	case "check":
		checkFlags := flag.NewFlagSet("check", flag.ExitOnError)
		verbose := checkFlags.Bool("verbose", false, "Verbose output")
		checkFlags.BoolVar(verbose, "v", false, "Verbose output (short)")
		checkFlags.Parse(os.Args[2:])

		configFile := brand.GetConfigPath()
		if len(checkFlags.Args()) > 0 {
			configFile = checkFlags.Arg(0)
		}

		if err := cmd.RunCheck(configFile, *verbose); err != nil {
			printer.Fprintf(os.Stderr, "Check failed: %v\n", err)
			os.Exit(1)
		}

	case "version":
		printer.Printf("%s version %s\n", brand.Name, brand.Version)

	case "help", "-h", "--help":
		printUsage()

	default:
		printer.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	printer.Printf(`%s - %s

Usage:
  %s <command> [options]

Commands:
  run      Run the daemon in the foreground
           -c, --config   Configuration file (default %s)
  send     Send a command to the running daemon
           -s, --socket   Control socket (default %s)
           Commands: reload-cache, force-update, update, stop, status
  check    Validate a configuration file
           -v, --verbose  Show settings and the rules the cache would produce
  version  Show version information
`, brand.Name, brand.Description, brand.LowerName, brand.GetConfigPath(), brand.GetSocketPath())
}
