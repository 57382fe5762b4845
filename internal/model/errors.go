package model

import (
	"fmt"
	"strings"
	"time"
)

// Error kind labels, stable across reports and metrics
const (
	KindNetworkUnreachable = "network_unreachable"
	KindRateLimited        = "rate_limited"
	KindAntiBot            = "anti_bot_detected"
	KindCaptcha            = "captcha_detected"
	KindNoRepeatingPattern = "no_repeating_pattern"
	KindSchemaInvalid      = "schema_invalid"
	KindToleranceExceeded  = "tolerance_exceeded"
	KindRepairParseFailure = "repair_parse_failure"
	KindRobotsDisallowed   = "robots_disallowed"
	KindInvalidResponse    = "invalid_response"
)

// Kinded is implemented by every taxonomy error
type Kinded interface {
	error
	Kind() string
}

// NetworkError means a target could not be reached
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network unreachable: %s: %v", e.URL, e.Err)
}
func (e *NetworkError) Unwrap() error { return e.Err }
func (e *NetworkError) Kind() string  { return KindNetworkUnreachable }

// RateLimitedError means a server answered 429 and the single retry was exhausted or refused
type RateLimitedError struct {
	URL        string
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: %s (retry-after %s)", e.URL, e.RetryAfter)
}
func (e *RateLimitedError) Kind() string { return KindRateLimited }

// AntiBotError means bot protection blocked the session
type AntiBotError struct {
	URL     string
	Signals []string
	Captcha bool
}

func (e *AntiBotError) Error() string {
	return fmt.Sprintf("anti-bot protection on %s: %s", e.URL, strings.Join(e.Signals, ", "))
}

func (e *AntiBotError) Kind() string {
	if e.Captcha {
		return KindCaptcha
	}
	return KindAntiBot
}

// NoRepeatingPatternError means no element group reached the minimum size
type NoRepeatingPatternError struct {
	URL     string
	Largest int
}

func (e *NoRepeatingPatternError) Error() string {
	return fmt.Sprintf("no repeating item pattern on %s (largest group %d, need 3)", e.URL, e.Largest)
}
func (e *NoRepeatingPatternError) Kind() string { return KindNoRepeatingPattern }

// SchemaError carries every structural violation found in an output file
type SchemaError struct {
	Path       string
	Violations []SchemaViolation
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: %d schema violation(s)", e.Path, len(e.Violations))
}
func (e *SchemaError) Kind() string { return KindSchemaInvalid }

// ToleranceError means a QA check exceeded its tolerance
type ToleranceError struct {
	Check  string
	Detail string
}

func (e *ToleranceError) Error() string {
	return fmt.Sprintf("%s: tolerance exceeded: %s", e.Check, e.Detail)
}
func (e *ToleranceError) Kind() string { return KindToleranceExceeded }

// RepairParseError means a transformed program no longer parses
type RepairParseError struct {
	Transform TransformKind
	Err       error
}

func (e *RepairParseError) Error() string {
	return fmt.Sprintf("repair %s produced unparseable source: %v", e.Transform, e.Err)
}
func (e *RepairParseError) Unwrap() error { return e.Err }
func (e *RepairParseError) Kind() string  { return KindRepairParseFailure }
