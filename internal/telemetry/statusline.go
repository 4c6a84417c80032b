package telemetry

import (
	"context"
	"fmt"
	"time"
)

// RunStatusLine runs the quiet-mode telemetry loop: the same periodic
// sampling the dashboard does, printed as a single self-overwriting
// line through print rather than rendered as a TUI. Matches spec.md §4.6's "in
// no-TUI mode the same samples are printed as a single self-overwriting
// status line."
func RunStatusLine(ctx context.Context, sampler Sampler, interval time.Duration, runID string, print func(string)) {
	started := time.Now()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			print("\n")
			return
		case <-ticker.C:
			s, err := sampler.Sample()
			if err != nil {
				print(fmt.Sprintf("\rtcpwatch [%s] sample error: %v", runID, err))
				continue
			}
			uptime := time.Since(started).Round(time.Second)
			print(fmt.Sprintf(
				"\rtcpwatch [%s] up %s | ingress %s egress %s | send %s recv %s | flows %d | capture %s",
				runID, uptime,
				FormatRate(s.IngressRate, "pkt"), FormatRate(s.EgressRate, "pkt"),
				FormatRate(s.SendRate, "call"), FormatRate(s.RecvRate, "call"),
				len(s.Flows), FormatBytes(s.CaptureSize),
			))
		}
	}
}
