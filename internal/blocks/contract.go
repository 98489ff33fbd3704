package blocks

import (
	"context"
	"time"

	"github.com/barbearia-galileu/booking-server/internal/model"
)

// Store is the persistence surface the block service needs. The Postgres
// repository and the in-memory test store both satisfy it.
type Store interface {
	CreateBlock(ctx context.Context, block model.Block) error
	DeleteBlock(ctx context.Context, slot time.Time) error
	BlocksInRange(ctx context.Context, from, to time.Time) ([]model.Block, error)
	BlocksFrom(ctx context.Context, from time.Time) ([]model.Block, error)
	ActiveAppointmentsInRange(ctx context.Context, from, to time.Time) ([]model.Appointment, error)
}
