// Package cmd implements the droplist subcommands.
package cmd

import "grimm.is/droplist/internal/i18n"

// Printer formats user-facing output for the current locale.
var Printer = i18n.NewCLIPrinter()
