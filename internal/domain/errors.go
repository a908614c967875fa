package domain

import "errors"

var (
	ErrMissingInput      = errors.New("missing prompt or image")
	ErrUpstreamFailure   = errors.New("upstream failure")
	ErrInvalidTransition = errors.New("invalid lifecycle transition")
)
