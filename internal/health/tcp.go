package health

import (
	"context"
	"fmt"
	"time"

	"github.com/f9-o/sensorhub/pkg/netutil"
)

// CheckTCP dials addr and returns nil if the connection succeeds.
func CheckTCP(ctx context.Context, addr netutil.NodeAddress, timeout time.Duration) error {
	if addr.Port == 0 {
		return fmt.Errorf("tcp check: port is required")
	}
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	_, err := netutil.ProbeTCP(ctx, addr, timeout)
	return err
}
