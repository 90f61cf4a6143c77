package tpu

import "errors"

var (
	// ErrNoRecentSlots means the estimator has never recorded a slot.
	ErrNoRecentSlots = errors.New("no recent slots recorded")

	// ErrMissingSigners means an unsigned transaction was submitted without
	// the accounts needed to sign it.
	ErrMissingSigners = errors.New("unsigned transaction submitted without signers")

	// ErrUnexpectedSigners means signers were passed alongside a transaction
	// that is already signed.
	ErrUnexpectedSigners = errors.New("signers passed for an already signed transaction")

	// ErrUnsupportedTransaction means Send was handed a type it cannot
	// serialize.
	ErrUnsupportedTransaction = errors.New("unsupported transaction type")

	// ErrTxTooLarge means the serialized transaction exceeds what one
	// datagram can carry.
	ErrTxTooLarge = errors.New("serialized transaction exceeds max datagram size")

	// ErrNoLeadersFound means no upcoming leader published an ingest address.
	ErrNoLeadersFound = errors.New("no leaders found for the upcoming window")

	// ErrAllSendsFailed means every datagram in the fanout failed to send.
	ErrAllSendsFailed = errors.New("all fanout sends failed")

	// ErrInvalidCommitment means the configured commitment level is not one
	// the cluster accepts.
	ErrInvalidCommitment = errors.New("invalid commitment level")

	// ErrEmptySchedule means the cluster returned no leaders for the
	// requested window.
	ErrEmptySchedule = errors.New("cluster returned an empty leader schedule")
)
