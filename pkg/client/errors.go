package client

import "errors"

var (
	ErrMissingIDParameter   = errors.New("missing required id parameter")
	ErrMissingRoomParameter = errors.New("missing required room parameter")
	ErrConnectionClosed     = errors.New("realtime connection is closed")
)
