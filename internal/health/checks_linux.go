//go:build linux

package health

import (
	"context"
	"fmt"
	"time"

	"github.com/google/nftables"
)

// CheckNftables verifies the kernel packet filter answers over netlink.
func CheckNftables(ctx context.Context) Check {
	start := time.Now()
	check := Check{LastChecked: start}

	conn, err := nftables.New()
	if err != nil {
		check.Status = StatusUnhealthy
		check.Message = fmt.Sprintf("failed to open nftables connection: %v", err)
	} else {
		tables, err := conn.ListTables()
		if err != nil {
			check.Status = StatusUnhealthy
			check.Message = fmt.Sprintf("failed to list tables: %v", err)
		} else {
			check.Status = StatusHealthy
			check.Message = fmt.Sprintf("nftables operational (%d tables)", len(tables))
		}
	}

	check.Duration = time.Since(start)
	return check
}
