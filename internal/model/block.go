package model

import "time"

// Block is a barber-initiated reservation of a single slot.
type Block struct {
	ID        string
	StartTime time.Time
	Reason    string
	CreatedAt time.Time
}
