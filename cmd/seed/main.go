// Seed fills a development database with plausible bookings and blocks so
// the agenda and availability views have something to show.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/barbearia-galileu/booking-server/internal/blocks"
	"github.com/barbearia-galileu/booking-server/internal/booking"
	"github.com/barbearia-galileu/booking-server/internal/catalog"
	"github.com/barbearia-galileu/booking-server/internal/config"
	"github.com/barbearia-galileu/booking-server/internal/db"
	"github.com/barbearia-galileu/booking-server/internal/notify"
	"github.com/barbearia-galileu/booking-server/internal/runtime"
	"github.com/barbearia-galileu/booking-server/internal/schedule"
	"github.com/barbearia-galileu/booking-server/internal/storage/postgres"
)

func main() {
	config.LoadDotenv()
	logger := runtime.NewLogger("seed")

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}

	ctx, stop := runtime.SignalContext()
	defer stop()

	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		panic(err)
	}
	defer pool.Close()

	loc, err := time.LoadLocation(config.String("BUSINESS_TIMEZONE", "America/Sao_Paulo"))
	if err != nil {
		panic(err)
	}
	cal := schedule.New(schedule.Config{
		Location:        loc,
		OpenHour:        config.Int("BUSINESS_OPEN_HOUR", 8),
		CloseHour:       config.Int("BUSINESS_CLOSE_HOUR", 20),
		IntervalMinutes: config.Int("SLOT_INTERVAL_MINUTES", 30),
	})

	repo := postgres.NewRepository(pool)
	bookingSvc := booking.NewService(repo, cal, notify.NewNoopSender(), logger)
	blockSvc := blocks.NewService(repo, cal)

	days := config.Int("SEED_DAYS", 7)
	perDay := config.Int("SEED_APPOINTMENTS_PER_DAY", 6)
	faker := gofakeit.New(0)

	created := 0
	haircuts := catalog.List()
	for day := 0; day < days; day++ {
		grid := cal.DailySlots(time.Now().AddDate(0, 0, day+1))
		for i := 0; i < perDay; i++ {
			slot := grid[rand.Intn(len(grid))]
			haircut := haircuts[rand.Intn(len(haircuts))]
			_, err := bookingSvc.Create(ctx, booking.Draft{
				CustomerName:  faker.Name(),
				CustomerPhone: fmt.Sprintf("11%09d", rand.Intn(1_000_000_000)),
				HaircutID:     haircut.ID,
				StartTime:     slot,
			})
			switch {
			case err == nil:
				created++
			case errors.Is(err, booking.ErrSlotUnavailable), errors.Is(err, booking.ErrSlotBlocked):
				// Random slots collide; skip and move on.
			default:
				logger.Error("seed booking failed", "err", err)
			}
		}
	}

	lunch, err := blockSvc.BulkCreate(ctx,
		time.Now().AddDate(0, 0, 1).In(loc).Format("2006-01-02"),
		[]string{"12:00", "12:30"},
		"almoço",
	)
	if err != nil {
		logger.Error("seed blocks failed", "err", err)
	}

	seededBlocks := 0
	if err == nil {
		seededBlocks = len(lunch.Created)
	}
	logger.Info("seed finished", slog.Int("appointments", created), slog.Int("blocks", seededBlocks))
}
