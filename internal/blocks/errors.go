package blocks

import "errors"

var (
	ErrNotFound             = errors.New("block not found")
	ErrAlreadyBlocked       = errors.New("slot already blocked")
	ErrSlotBooked           = errors.New("slot has an active appointment")
	ErrOutsideBusinessHours = errors.New("time is outside business hours")
)
