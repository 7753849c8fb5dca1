package service

import "errors"

// Service errors. Fragment-level failures surface as the fragment package's
// *ValidationError and *NotFoundError; match them with errors.Is against
// fragment.ErrValidation and fragment.ErrNotFound.
var (
	// ErrUnauthenticated indicates an empty owner.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrUnsupportedType indicates an unparsable or unsupported content type.
	ErrUnsupportedType = errors.New("unsupported content type")

	// ErrUnsupportedConversion indicates the requested target is not one of
	// the fragment's formats.
	ErrUnsupportedConversion = errors.New("unsupported conversion")

	// ErrConversionUnavailable indicates a legal conversion was requested but
	// no Converter is configured.
	ErrConversionUnavailable = errors.New("conversion unavailable")

	// ErrTypeMismatch indicates an update whose base type differs from the
	// fragment's; a fragment's type never changes.
	ErrTypeMismatch = errors.New("content type does not match fragment type")

	// ErrMissingBody indicates a nil request body.
	ErrMissingBody = errors.New("missing body")

	// ErrRateLimited indicates the owner exceeded the configured request rate.
	ErrRateLimited = errors.New("rate limit exceeded")
)
