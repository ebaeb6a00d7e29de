package ctlplane

import (
	"fmt"
	"net"
	"time"
)

// Send delivers one command to the daemon listening at path.
func Send(path string, cmd Command) error {
	conn, err := net.DialTimeout("unix", path, 5*time.Second)
	if err != nil {
		return fmt.Errorf("failed to connect to control socket at %s: %w", path, err)
	}
	defer conn.Close()

	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if _, err := conn.Write([]byte(string(cmd) + "\n")); err != nil {
		return fmt.Errorf("failed to send %s: %w", cmd, err)
	}
	return nil
}
