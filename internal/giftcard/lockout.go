// Package giftcard issues single-use wallet codes and redeems them with a
// per-user lockout against guessing.
package giftcard

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Lockout policy for failed redemptions.
const (
	MaxFailures     = 5
	FailureWindow   = 15 * time.Minute
	LockoutDuration = 30 * time.Minute
)

// ShouldLock reports whether failures (timestamps of failed attempts, the
// current one included) reach the limit inside the trailing window.
func ShouldLock(failures []time.Time, now time.Time) bool {
	n := 0
	for _, at := range failures {
		if !at.Before(now.Add(-FailureWindow)) && !at.After(now) {
			n++
		}
	}
	return n >= MaxFailures
}

// RemainingSeconds is the whole number of seconds until until, never negative.
func RemainingSeconds(until, now time.Time) int {
	if !until.After(now) {
		return 0
	}
	return int(math.Ceil(until.Sub(now).Seconds()))
}

// NewCode returns a code like OPAY-3F9A-C21B-77D0.
func NewCode() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "OPAY-" + raw[0:4] + "-" + raw[4:8] + "-" + raw[8:12]
}

// NormalizeCode trims and upper-cases user input.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
