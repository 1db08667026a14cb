// Package models holds the admission decision types and counter key scheme for
// the per-access rate-limit gate.
package models

import (
	"fmt"
	"time"

	id "github.com/hafizsameer11/superCrm/pkg/domain"
)

// Breaker policy: five consecutive failures open the circuit for five minutes.
const (
	BreakerThreshold = 5
	BreakerCooldown  = 5 * time.Minute
)

// Counter TTLs are twice the window so a key survives until the next window is
// fully over, then expires on its own.
const (
	MinuteWindowTTL = 2 * time.Minute
	HourWindowTTL   = 2 * time.Hour
)

// DenyReason says why a call was refused.
type DenyReason string

const (
	DenyRateLimited DenyReason = "rate_limited"
	DenyCircuitOpen DenyReason = "circuit_open"
)

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed bool
	// Probe is set when the breaker moved to half_open and this call is the
	// single probe let through.
	Probe      bool
	Reason     DenyReason
	RetryAfter time.Duration
	// Remaining is the minute-window headroom after this admission.
	Remaining int
}

// MinuteKey returns the counter key for the minute window containing now.
func MinuteKey(accessID id.AccessID, now time.Time) string {
	return fmt.Sprintf("rate_limit:%s:minute:%s", accessID, now.UTC().Format("2006-01-02-15-04"))
}

// HourKey returns the counter key for the hour window containing now.
func HourKey(accessID id.AccessID, now time.Time) string {
	return fmt.Sprintf("rate_limit:%s:hour:%s", accessID, now.UTC().Format("2006-01-02-15"))
}

// NextMinute returns the start of the next minute window.
func NextMinute(now time.Time) time.Time {
	return now.UTC().Truncate(time.Minute).Add(time.Minute)
}

// NextHour returns the start of the next hour window.
func NextHour(now time.Time) time.Time {
	return now.UTC().Truncate(time.Hour).Add(time.Hour)
}
