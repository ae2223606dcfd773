package fetcher

import "fmt"

// TransientError marks a network or HTTP-layer failure that is worth
// retrying: connection errors, timeouts, non-2xx responses.
type TransientError struct {
	Listing string
	Page    int
	Err     error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("fetch %s page %d: %v", e.Listing, e.Page, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError is raised once the retry policy is exhausted. It carries the
// last underlying cause. The owning crawler aborts; sibling crawlers are
// unaffected.
type PermanentError struct {
	Listing  string
	Page     int
	Attempts int
	Err      error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("fetch %s page %d failed after %d attempts: %v", e.Listing, e.Page, e.Attempts, e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// MalformedResponseError marks a 2xx response whose body could not be decoded
// into the expected envelope. Callers treat it as an empty page, but it stays
// distinguishable from a legitimate end of listing.
type MalformedResponseError struct {
	Listing string
	Page    int
	Err     error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response for %s page %d: %v", e.Listing, e.Page, e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }
