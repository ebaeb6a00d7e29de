//go:build !linux

package health

import (
	"context"
	"time"
)

// CheckNftables reports nftables as unavailable on non-Linux systems.
func CheckNftables(ctx context.Context) Check {
	return Check{
		Status:      StatusUnhealthy,
		Message:     "nftables requires linux",
		LastChecked: time.Now(),
	}
}
