package ctlplane

import "strings"

// Command is a control channel command.
type Command string

const (
	CmdReloadCache Command = "reload-cache"
	CmdForceUpdate Command = "force-update"
	CmdUpdate      Command = "update"
	CmdStop        Command = "stop"
	CmdStatus      Command = "status"
)

// Commands lists every recognized command.
var Commands = []Command{CmdReloadCache, CmdForceUpdate, CmdUpdate, CmdStop, CmdStatus}

// ParseCommand recognizes a command case-insensitively, ignoring surrounding
// whitespace.
func ParseCommand(s string) (Command, bool) {
	c := Command(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Commands {
		if c == known {
			return c, true
		}
	}
	return "", false
}

func (c Command) String() string {
	return string(c)
}

// Request carries a command to the daemon loop. The loop calls Done once the
// command has been handled.
type Request struct {
	Command Command
	done    chan struct{}
}

// NewRequest creates a request nobody waits on.
func NewRequest(cmd Command) Request {
	return Request{Command: cmd}
}

func newTrackedRequest(cmd Command) Request {
	return Request{Command: cmd, done: make(chan struct{}, 1)}
}

// Done marks the request handled. Extra calls are no-ops.
func (r Request) Done() {
	if r.done == nil {
		return
	}
	select {
	case r.done <- struct{}{}:
	default:
	}
}
