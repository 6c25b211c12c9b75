package client

import (
	"errors"

	"github.com/Sternrassler/catalog-crawler/pkg/product"
)

// OutcomeKind is the terminal result class of one identifier.
type OutcomeKind string

const (
	// OutcomeSuccess means a record was fetched and normalized.
	OutcomeSuccess OutcomeKind = "success"

	// OutcomeNotFound means the API answered 404.
	OutcomeNotFound OutcomeKind = "not_found"

	// OutcomeClientRejected means the API answered with a 4xx other than 404.
	OutcomeClientRejected OutcomeKind = "client_rejected"

	// OutcomeFailed means retries were exhausted or the fetch was cancelled.
	OutcomeFailed OutcomeKind = "failed"
)

// Outcome is the result of fetching one identifier. Only OutcomeSuccess carries a Record.
type Outcome struct {
	ID         string
	Kind       OutcomeKind
	Record     product.Record
	StatusCode int
	Attempts   int
	FromCache  bool
	Err        error
}

// Reason returns a one-line description of a non-success outcome.
func (o Outcome) Reason() string {
	if o.Err != nil {
		return o.Err.Error()
	}
	return string(o.Kind)
}

// Cancelled reports whether the fetch stopped because its context ended.
func (o Outcome) Cancelled() bool {
	return errors.Is(o.Err, ErrContextCancelled)
}
