package scraper

import (
	"errors"
	"fmt"
)

// Kind classifies why a page could not be fetched.
type Kind string

const (
	KindTimeout          Kind = "timeout"
	KindNetwork          Kind = "network"
	KindBadStatus        Kind = "bad_status"
	KindNotHTML          Kind = "not_html"
	KindTooManyRedirects Kind = "too_many_redirects"
	KindBlocked          Kind = "blocked"
	KindInvalidURL       Kind = "invalid_url"
	KindCanceled         Kind = "canceled"
)

// ErrFetch is matched by every *FetchError.
var ErrFetch = errors.New("fetch failed")

// FetchError reports a failed page fetch. StatusCode and Vendor are set when
// a response was received.
type FetchError struct {
	Kind       Kind
	URL        string
	StatusCode int
	Vendor     string // bot protection vendor, for KindBlocked
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == ErrFetch }

// KindOf returns the Kind of the first *FetchError in err's chain, or "".
func KindOf(err error) Kind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}
