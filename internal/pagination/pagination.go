// Package pagination implements the pagination driver (C8): repeatedly
// invokes a page fetcher until the server stops returning a continuation
// token, the caller's cap is reached, or the operation's deadline elapses
// (spec.md §4.5).
package pagination

import (
	"context"
	"time"

	"github.com/Pelmog/zigi-amazon-mcp/internal/envelope"
)

// DefaultCap is the caller-cap default when none is supplied.
const DefaultCap = 100

// Page is one fetched page: a slice of decoded records, the token for the
// next page (empty when there is none), and the request id that produced
// it.
type Page struct {
	Records   []interface{}
	NextToken string
	RequestID string
}

// Fetch retrieves one page given the previous page's token (empty string on
// the first call).
type Fetch func(ctx context.Context, token string) (Page, error)

// Driver iterates pages up to a caller-supplied cap.
type Driver struct {
	Timeout time.Duration
}

// New builds a Driver with the given per-operation timeout.
func New(timeout time.Duration) *Driver {
	return &Driver{Timeout: timeout}
}

// Result is the concatenation of all fetched pages plus the last-seen
// request id (spec.md §4.5).
type Result struct {
	Records   []interface{}
	RequestID string
}

// Run fetches pages via fetch until the server returns no token, the
// accumulated record count reaches cap, or the driver's timeout elapses.
// cap <= 0 uses DefaultCap.
func (d *Driver) Run(ctx context.Context, cap int, fetch Fetch) (*Result, error) {
	if cap <= 0 {
		cap = DefaultCap
	}

	deadline := d.Timeout
	if deadline <= 0 {
		deadline = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	var records []interface{}
	token := ""
	lastRequestID := ""

	for {
		select {
		case <-ctx.Done():
			return nil, envelope.New(envelope.Timeout, "pagination deadline exceeded")
		default:
		}

		page, err := fetch(ctx, token)
		if err != nil {
			return nil, err
		}
		lastRequestID = page.RequestID

		remaining := cap - len(records)
		if remaining <= 0 {
			break
		}
		if len(page.Records) > remaining {
			records = append(records, page.Records[:remaining]...)
		} else {
			records = append(records, page.Records...)
		}

		if page.NextToken == "" || len(records) >= cap {
			break
		}
		token = page.NextToken
	}

	return &Result{Records: records, RequestID: lastRequestID}, nil
}
