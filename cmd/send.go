package cmd

import (
	"fmt"
	"strings"

	"grimm.is/droplist/internal/ctlplane"
)

// RunSend delivers one command to a running daemon.
func RunSend(socketPath, command string) error {
	cmd, ok := ctlplane.ParseCommand(command)
	if !ok {
		names := make([]string, len(ctlplane.Commands))
		for i, c := range ctlplane.Commands {
			names[i] = c.String()
		}
		return fmt.Errorf("unknown command %q (expected one of: %s)", command, strings.Join(names, ", "))
	}

	if err := ctlplane.Send(socketPath, cmd); err != nil {
		return err
	}
	Printer.Printf("Sent %s\n", cmd)
	return nil
}
