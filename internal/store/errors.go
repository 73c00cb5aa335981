package store

import "errors"

var (
	ErrServiceNotFound   = errors.New("service not found")
	ErrServiceInactive   = errors.New("service inactive")
	ErrStationNotFound   = errors.New("station not found")
	ErrTicketNotFound    = errors.New("ticket not found")
	ErrInvalidTransition = errors.New("invalid ticket transition")
	ErrStandardBlocked   = errors.New("standard tickets blocked while preferential tickets wait")
	ErrQueueEmpty        = errors.New("no ticket available")
	ErrStoreBusy         = errors.New("ticket store busy")
)
