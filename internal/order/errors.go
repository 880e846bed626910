package order

import "errors"

var (
	// ErrDuplicateID rejects a second Create with an id already in use.
	ErrDuplicateID = errors.New("order: duplicate id")

	// ErrInvalidAmount rejects a Create with amount <= 0.
	ErrInvalidAmount = errors.New("order: amount must be positive")

	// ErrClaimDenied covers both an unknown order id and a secret mismatch.
	// The two cases share one error shape so the API does not reveal which
	// ids exist; the distinct reason is logged server-side only.
	ErrClaimDenied = errors.New("order: claim denied")

	// ErrAlreadyClaimed rejects claims on a Settled or Failed order.
	ErrAlreadyClaimed = errors.New("order: already claimed")

	// ErrClaimInProgress rejects a claim while another is mid-flight.
	ErrClaimInProgress = errors.New("order: claim in progress")

	// ErrTicketConsumed rejects a settle call with a ticket that already
	// drove a settlement attempt.
	ErrTicketConsumed = errors.New("order: ticket consumed")
)
