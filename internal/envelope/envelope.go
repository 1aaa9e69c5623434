// Package envelope defines the uniform success/error response shape every
// operation adapter returns (spec.md §3 ResponseEnvelope) and the canonical
// error taxonomy (spec.md §7).
package envelope

import "time"

// ErrorKind is the canonical error taxonomy from spec.md §7.
type ErrorKind string

const (
	AuthFailed         ErrorKind = "AuthFailed"
	InvalidInput       ErrorKind = "InvalidInput"
	RateLimitExceeded  ErrorKind = "RateLimitExceeded"
	UpstreamError      ErrorKind = "UpstreamError"
	NetworkError       ErrorKind = "NetworkError"
	Timeout            ErrorKind = "Timeout"
	FilterFailed       ErrorKind = "FilterFailed"
	Internal           ErrorKind = "Internal"
)

// Metadata carries the minimum fields spec.md §3 requires on every envelope,
// plus optional fields individual components attach (reduction stats,
// warnings).
type Metadata struct {
	Timestamp     time.Time `json:"timestamp"`
	MarketplaceID string    `json:"marketplaceId"`
	RequestID     string    `json:"requestId"`

	// Warning surfaces best-effort substitutions (spec.md §9 Open Question,
	// e.g. the FBM inventory path) without silently returning partial data.
	Warning string `json:"warning,omitempty"`

	// Pagination bookkeeping (C8).
	NextToken string `json:"nextToken,omitempty"`
	PageCount int    `json:"pageCount,omitempty"`

	// Filter post-processing stats (C10/spec.md §4.7).
	OriginalSizeBytes int      `json:"originalSizeBytes,omitempty"`
	FinalSizeBytes    int      `json:"finalSizeBytes,omitempty"`
	ReductionPercent  float64  `json:"reductionPercent,omitempty"`
	FiltersApplied    []string `json:"filtersApplied,omitempty"`
}

// Envelope is the discriminated Ok{data,metadata} / Err{...} union from
// spec.md §3. Exactly one of Data (on success) or Err (on failure) is set;
// Ok reports which branch is populated.
type Envelope struct {
	Ok       bool        `json:"ok"`
	Data     interface{} `json:"data,omitempty"`
	Metadata Metadata    `json:"metadata"`
	Error    *ErrDetail  `json:"error,omitempty"`
}

// ErrDetail is the Err branch payload.
type ErrDetail struct {
	Kind       ErrorKind   `json:"errorKind"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	RetryAfter float64     `json:"retryAfter,omitempty"`
	StatusCode int         `json:"statusCode,omitempty"`
}

// Success builds an Ok envelope.
func Success(data interface{}, meta Metadata) Envelope {
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now().UTC()
	}
	return Envelope{Ok: true, Data: data, Metadata: meta}
}

// Failure builds an Err envelope from a CoreError (or wraps a generic error
// as Internal if the caller didn't classify it).
func Failure(err error, meta Metadata) Envelope {
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now().UTC()
	}
	ce, ok := AsCoreError(err)
	if !ok {
		ce = &CoreError{Kind: Internal, Message: err.Error()}
	}
	return Envelope{
		Ok:       false,
		Metadata: meta,
		Error: &ErrDetail{
			Kind:       ce.Kind,
			Message:    ce.Message,
			Details:    ce.Details,
			RetryAfter: ce.RetryAfter.Seconds(),
			StatusCode: ce.StatusCode,
		},
	}
}

// CoreError is the internal Go error type every component returns instead of
// ad-hoc errors, so the classification layer (spec.md §7) never has to guess
// at intent. It implements the error interface and wraps an optional cause.
type CoreError struct {
	Kind       ErrorKind
	Message    string
	Details    interface{}
	RetryAfter time.Duration
	StatusCode int
	Cause      error
}

func (e *CoreError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *CoreError) Unwrap() error { return e.Cause }

// AsCoreError extracts a *CoreError from err, following the unwrap chain.
func AsCoreError(err error) (*CoreError, bool) {
	for err != nil {
		if ce, ok := err.(*CoreError); ok {
			return ce, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}

// New constructs a CoreError of the given kind.
func New(kind ErrorKind, message string) *CoreError {
	return &CoreError{Kind: kind, Message: message}
}

// Wrap constructs a CoreError of the given kind wrapping cause.
func Wrap(kind ErrorKind, message string, cause error) *CoreError {
	return &CoreError{Kind: kind, Message: message, Cause: cause}
}

// IsRetryable reports whether kind is retry-eligible per spec.md §7's
// propagation policy for the given observed status code (0 if not an HTTP
// response, e.g. a network fault).
func IsRetryable(kind ErrorKind, statusCode int) bool {
	switch kind {
	case RateLimitExceeded, NetworkError:
		return true
	case UpstreamError:
		switch statusCode {
		case 500, 502, 503, 504:
			return true
		}
		return false
	default:
		return false
	}
}
