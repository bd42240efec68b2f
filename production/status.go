package production

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"

	"github.com/warp/oee-tracker/shift"
)

// DefaultOfflineThreshold is how long the line may stay silent before it
// is reported offline.
const DefaultOfflineThreshold = 10 * time.Minute

type LineState string

const (
	LineOnline  LineState = "online"
	LineOffline LineState = "offline"
)

// LineStatus describes whether counter reports are still arriving.
type LineStatus struct {
	State        LineState
	ShiftActive  bool
	Window       shift.Window
	LastActivity *time.Time
	SinceLast    time.Duration
	Threshold    time.Duration
	CheckedAt    time.Time
}

// SinceLastText is "N minutes ago", or empty with no activity.
func (s LineStatus) SinceLastText() string {
	if s.LastActivity == nil {
		return ""
	}
	return fmt.Sprintf("%d minutes ago", int(s.SinceLast.Minutes()))
}

// StatusOf is online when last is within threshold of now and not in the
// future.
func StatusOf(now time.Time, last *time.Time, threshold time.Duration) LineState {
	if last == nil {
		return LineOffline
	}
	since := now.Sub(*last)
	if since < 0 || since > threshold {
		return LineOffline
	}
	return LineOnline
}

// LineStatus checks the most recent counter report against threshold.
func (r *Reports) LineStatus(ctx context.Context, resolver *shift.Resolver, threshold time.Duration) (LineStatus, error) {
	now := resolver.Now()
	w := resolver.Resolve(now)

	// Overnight reports carry the previous shift date, so look back a day.
	from := shift.DateOf(now).AddDays(-1)
	rows, err := r.repo.HourlyDeltas(ctx, Filter{From: from})
	if err != nil {
		return LineStatus{}, fmt.Errorf("reports.LineStatus: %w", err)
	}

	st := LineStatus{
		ShiftActive: w.Active(),
		Window:      w,
		Threshold:   threshold,
		CheckedAt:   now,
	}
	if len(rows) > 0 {
		latest := lo.MaxBy(rows, func(a, b HourlyDelta) bool {
			return a.LastReportedAt.After(b.LastReportedAt)
		}).LastReportedAt.In(shift.PlantZone)
		st.LastActivity = &latest
		st.SinceLast = now.Sub(latest)
	}
	st.State = StatusOf(now, st.LastActivity, threshold)
	return st, nil
}
