// Package fetch retrieves provider pages over plain HTTP or a headless
// browser session. Every attempt resolves to a tagged Outcome so callers
// classify pending-versus-invalid from the tag, never from nil checks
package fetch

import "context"

// Status tags the result of one fetch attempt
type Status int

const (
	// StatusFound means the page was retrieved
	StatusFound Status = iota
	// StatusNotFound means the provider definitively has no such page
	StatusNotFound
	// StatusTransient means the attempt failed in a retryable way
	StatusTransient
)

// Page is one successfully fetched provider page
type Page struct {
	// URL is the final location after redirects
	URL string
	// Body is the raw markup
	Body string
}

// Outcome is the tagged result of one fetch
type Outcome struct {
	Status Status
	Page   *Page
	Reason string
}

// Found wraps a retrieved page
func Found(p *Page) Outcome { return Outcome{Status: StatusFound, Page: p} }

// NotFound marks a definitive miss
func NotFound(reason string) Outcome { return Outcome{Status: StatusNotFound, Reason: reason} }

// Transient marks a retryable failure
func Transient(reason string) Outcome { return Outcome{Status: StatusTransient, Reason: reason} }

// Fetcher retrieves provider pages. Implementations are not safe for
// concurrent use; the orchestrator gives each worker its own instance
type Fetcher interface {
	Fetch(ctx context.Context, url string) Outcome
	Close()
}
