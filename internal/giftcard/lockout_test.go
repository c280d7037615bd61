package giftcard

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShouldLock(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	ago := func(d time.Duration) time.Time { return now.Add(-d) }

	tests := []struct {
		name     string
		failures []time.Time
		want     bool
	}{
		{"none", nil, false},
		{"four recent", []time.Time{ago(1 * time.Minute), ago(2 * time.Minute), ago(3 * time.Minute), now}, false},
		{"five recent", []time.Time{ago(1 * time.Minute), ago(2 * time.Minute), ago(3 * time.Minute), ago(14 * time.Minute), now}, true},
		{"window edge counts", []time.Time{ago(FailureWindow), ago(time.Minute), ago(2 * time.Minute), ago(3 * time.Minute), now}, true},
		{"old failures expire", []time.Time{ago(16 * time.Minute), ago(20 * time.Minute), ago(time.Minute), ago(2 * time.Minute), now}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldLock(tt.failures, now))
		})
	}
}

func TestRemainingSeconds(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, 1800, RemainingSeconds(now.Add(LockoutDuration), now))
	assert.Equal(t, 1, RemainingSeconds(now.Add(200*time.Millisecond), now))
	assert.Equal(t, 0, RemainingSeconds(now.Add(-time.Second), now))
}

func TestCodes(t *testing.T) {
	code := NewCode()
	assert.Regexp(t, regexp.MustCompile(`^OPAY-[0-9A-F]{4}-[0-9A-F]{4}-[0-9A-F]{4}$`), code)
	assert.NotEqual(t, code, NewCode())
	assert.Equal(t, "OPAY-AB12-CD34-EF56", NormalizeCode("  opay-ab12-cd34-ef56 "))
}
