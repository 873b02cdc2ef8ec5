package domain

import "errors"

var (
	ErrConnection = errors.New("connection error")
	ErrQuery      = errors.New("query error")
	ErrDumpWrite  = errors.New("dump write error")
	ErrPackaging  = errors.New("packaging error")
	ErrDelivery   = errors.New("delivery error")
	ErrCleanup    = errors.New("cleanup error")
)
