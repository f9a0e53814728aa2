package http

import "errors"

// Gateway configuration errors
var (
	ErrMissingPrice       = errors.New("fortune gateway: price is required")
	ErrMissingNetwork     = errors.New("fortune gateway: network is required")
	ErrMissingPayTo       = errors.New("fortune gateway: payTo is required")
	ErrInvalidPayTo       = errors.New("fortune gateway: payTo is not a valid address")
	ErrMissingFacilitator = errors.New("fortune gateway: facilitator is required")
)
