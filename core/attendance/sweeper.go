package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/trezcool/chuo/core"
)

// Sweep deactivates expired QR codes every interval until ctx is done.
// Expiry is always checked when marking, so a missed sweep only delays the housekeeping.
func Sweep(ctx context.Context, svc Service, interval time.Duration, logger core.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := svc.DeactivateExpired(ctx, core.NowFunc())
			if err != nil {
				logger.Error(fmt.Sprintf("attendance.Sweep: %v", err), err)
				continue
			}
			if n > 0 {
				logger.Debug(fmt.Sprintf("attendance.Sweep: %d QR codes deactivated", n))
			}
		}
	}
}
