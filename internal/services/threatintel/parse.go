package threatintel

import (
	"bufio"
	"io"
	"net/netip"
	"strings"

	"grimm.is/droplist/internal/errors"
)

// maxLineLength bounds a single feed line; real feeds stay far below it.
const maxLineLength = 64 * 1024

// Rejected is a feed token that is neither an address nor a prefix.
type Rejected struct {
	Line  int
	Token string
}

// ParseEntries derives the processed entry list from raw feed content.
//
// Lines whose first character is the comment prefix are dropped, as are blank
// lines. Every other line contributes its first whitespace-delimited field, in
// source order, so the same input always yields the same list.
//
// Fields that are not an IP address or CIDR prefix are left out of the list
// and reported as rejected. A KindParse error means the content could not be
// read line by line at all; the returned list is then empty.
func ParseEntries(r io.Reader, commentPrefix string) ([]string, []Rejected, error) {
	entries := []string{}
	var rejected []Rejected

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxLineLength)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if commentPrefix != "" && strings.HasPrefix(line, commentPrefix) {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		token := fields[0]
		if !ValidNetwork(token) {
			rejected = append(rejected, Rejected{Line: lineNo, Token: token})
			continue
		}
		entries = append(entries, token)
	}
	if err := scanner.Err(); err != nil {
		return []string{}, rejected, errors.Attr(
			errors.Wrapf(err, errors.KindParse, "failed to scan feed after line %d", lineNo),
			"line", lineNo+1)
	}

	return entries, rejected, nil
}

// ValidNetwork reports whether token is an IPv4/IPv6 address or prefix.
func ValidNetwork(token string) bool {
	if strings.Contains(token, "/") {
		_, err := netip.ParsePrefix(token)
		return err == nil
	}
	_, err := netip.ParseAddr(token)
	return err == nil
}
