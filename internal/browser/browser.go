// Package browser is the headless-browser capability used by the
// investigator, the pagination detector and generated browser programs.
package browser

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrUnavailable means no browser could be started (missing binary, sandbox)
var ErrUnavailable = errors.New("browser unavailable")

// Driver is one browser tab
type Driver interface {
	Navigate(ctx context.Context, url string) error
	// WaitIdle blocks until no network request has been in flight for quiet
	WaitIdle(ctx context.Context, quiet time.Duration) error
	HTML(ctx context.Context) (string, error)
	URL(ctx context.Context) (string, error)
	Count(ctx context.Context, selector string) (int, error)
	Visible(ctx context.Context, selector string) (bool, error)
	// Enabled reports whether the element is visible and not disabled
	Enabled(ctx context.Context, selector string) (bool, error)
	Click(ctx context.Context, selector string) error
	ScrollToBottom(ctx context.Context) error
	// Responses returns the responses captured since the last ResetResponses
	Responses() []Response
	ResetResponses()
	Close() error
}

// Response is a captured network response
type Response struct {
	URL      string `json:"url"`
	Status   int    `json:"status"`
	MimeType string `json:"mime_type"`
	Body     []byte `json:"-"`
}

// IsJSON reports whether the response declared a JSON mime type
func (r Response) IsJSON() bool {
	mt := strings.ToLower(r.MimeType)
	return strings.Contains(mt, "json")
}

// Factory opens new drivers on demand
type Factory func(ctx context.Context) (Driver, error)
