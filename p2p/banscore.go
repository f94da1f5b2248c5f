package p2p

import "time"

// Ban-score policy constants, ported from the graduated scheme the teacher
// uses for its own peer sessions.
const (
	BanThreshold      = 100
	ThrottleThreshold = 50
	ThrottleDelay     = 500 * time.Millisecond
	banDecayPerMinute = 1
)

// BanScore accumulates penalties for malformed or hostile peer behavior,
// decaying over time so a single burst of bad luck doesn't sit forever.
type BanScore struct {
	score       int
	lastUpdated time.Time
}

// Score returns the current decayed score.
func (b *BanScore) Score(now time.Time) int {
	b.decayTo(now)
	return b.score
}

// Add applies delta, after decaying for elapsed time, and returns the result.
func (b *BanScore) Add(now time.Time, delta int) int {
	b.decayTo(now)
	b.score += delta
	if b.score < 0 {
		b.score = 0
	}
	return b.score
}

// ShouldBan reports whether the session has crossed the ban threshold.
func (b *BanScore) ShouldBan(now time.Time) bool {
	return b.Score(now) >= BanThreshold
}

// ShouldThrottle reports whether the session should be slowed down.
func (b *BanScore) ShouldThrottle(now time.Time) bool {
	return b.Score(now) >= ThrottleThreshold
}

func (b *BanScore) decayTo(now time.Time) {
	if b.lastUpdated.IsZero() {
		b.lastUpdated = now
		return
	}
	if now.Before(b.lastUpdated) {
		b.lastUpdated = now
		return
	}
	minutes := int(now.Sub(b.lastUpdated) / time.Minute)
	if minutes <= 0 {
		return
	}
	b.score -= minutes * banDecayPerMinute
	if b.score < 0 {
		b.score = 0
	}
	b.lastUpdated = now
}
