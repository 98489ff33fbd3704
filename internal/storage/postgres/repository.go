// Package postgres is the production store. One Repository satisfies the
// booking, blocks, and payments store contracts; mutations run in a single
// transaction together with their outbox events.
package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/barbearia-galileu/booking-server/internal/booking"
	"github.com/barbearia-galileu/booking-server/internal/db"
	"github.com/barbearia-galileu/booking-server/internal/model"
	"github.com/barbearia-galileu/booking-server/internal/otelx"
	"github.com/barbearia-galileu/booking-server/internal/outbox"
	"github.com/barbearia-galileu/booking-server/internal/storage"
)

type Repository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool, outbox: outbox.NewRepository(pool)}
}

const appointmentColumns = `
	id::text, customer_name, customer_phone, haircut_id, COALESCE(notes, ''),
	start_time, duration_minutes, status,
	cancelled_at, COALESCE(cancelled_by_role, ''), COALESCE(cancel_reason, ''),
	COALESCE(rescheduled_from_id::text, ''), COALESCE(rescheduled_to_id::text, ''),
	COALESCE(payment_method, ''), COALESCE(payment_status, ''), COALESCE(mp_payment_id, ''),
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAppointment(row rowScanner) (model.Appointment, error) {
	var appt model.Appointment
	err := row.Scan(
		&appt.ID,
		&appt.CustomerName,
		&appt.CustomerPhone,
		&appt.HaircutID,
		&appt.Notes,
		&appt.StartTime,
		&appt.DurationMinutes,
		&appt.Status,
		&appt.CancelledAt,
		&appt.CancelledByRole,
		&appt.CancelReason,
		&appt.RescheduledFromID,
		&appt.RescheduledToID,
		&appt.PaymentMethod,
		&appt.PaymentStatus,
		&appt.MPPaymentID,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	)
	if err != nil {
		if storage.IsNotFound(err) {
			return model.Appointment{}, storage.ErrNotFound
		}
		return model.Appointment{}, err
	}
	return appt, nil
}

func (r *Repository) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *Repository) AppointmentByProviderPaymentID(ctx context.Context, mpPaymentID string) (model.Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE mp_payment_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, mpPaymentID)
	return scanAppointment(row)
}

func (r *Repository) ActiveAppointmentsInRange(ctx context.Context, from, to time.Time) ([]model.Appointment, error) {
	return r.queryAppointments(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status <> 'CANCELLED'
			AND start_time >= $1
			AND start_time < $2
		ORDER BY start_time ASC
	`, from, to)
}

func (r *Repository) AppointmentsInRange(ctx context.Context, from, to time.Time) ([]model.Appointment, error) {
	return r.queryAppointments(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE start_time >= $1
			AND start_time < $2
		ORDER BY start_time ASC
	`, from, to)
}

func (r *Repository) AppointmentsFrom(ctx context.Context, from time.Time) ([]model.Appointment, error) {
	return r.queryAppointments(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE start_time >= $1
		ORDER BY start_time ASC
	`, from)
}

func (r *Repository) AppointmentsByPhone(ctx context.Context, phone string, limit int) ([]model.Appointment, error) {
	return r.queryAppointments(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE customer_phone = $1
		ORDER BY start_time DESC
		LIMIT $2
	`, phone, limit)
}

func (r *Repository) queryAppointments(ctx context.Context, sql string, args ...any) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

func (r *Repository) CreateAppointment(ctx context.Context, appt model.Appointment, slots []time.Time, evt *outbox.Event) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := r.insertAppointment(ctx, tx, appt, slots); err != nil {
		return err
	}
	if err := r.insertEvent(ctx, tx, evt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repository) CancelAppointment(ctx context.Context, id string, patch booking.CancelPatch, evt *outbox.Event) (model.Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer tx.Rollback(ctx)

	appt, err := r.cancelInTx(ctx, tx, id, patch)
	if err != nil {
		return model.Appointment{}, err
	}
	if err := r.insertEvent(ctx, tx, evt); err != nil {
		return model.Appointment{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

func (r *Repository) RescheduleAppointment(ctx context.Context, oldID string, replacement model.Appointment, slots []time.Time, patch booking.CancelPatch, evts []outbox.Event) (model.Appointment, model.Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, model.Appointment{}, err
	}
	defer tx.Rollback(ctx)

	// The forward link is written only after the replacement row exists;
	// setting it during the cancel would trip the rescheduled_to_id FK.
	cancelPatch := patch
	cancelPatch.RescheduledToID = ""
	cancelled, err := r.cancelInTx(ctx, tx, oldID, cancelPatch)
	if err != nil {
		return model.Appointment{}, model.Appointment{}, err
	}
	if err := r.insertAppointment(ctx, tx, replacement, slots); err != nil {
		return model.Appointment{}, model.Appointment{}, err
	}
	_, err = tx.Exec(ctx, `
		UPDATE appointments SET rescheduled_to_id = $2 WHERE id = $1
	`, oldID, replacement.ID)
	if err != nil {
		return model.Appointment{}, model.Appointment{}, err
	}
	for i := range evts {
		if err := r.insertEvent(ctx, tx, &evts[i]); err != nil {
			return model.Appointment{}, model.Appointment{}, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Appointment{}, model.Appointment{}, err
	}
	cancelled.RescheduledToID = replacement.ID
	return replacement, cancelled, nil
}

func (r *Repository) insertAppointment(ctx context.Context, tx pgx.Tx, appt model.Appointment, slots []time.Time) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO appointments
			(id, customer_name, customer_phone, haircut_id, notes,
			 start_time, duration_minutes, status,
			 rescheduled_from_id, payment_method, payment_status, mp_payment_id,
			 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, '')::uuid, $10, NULLIF($11, ''), NULLIF($12, ''), $13, $14)
	`, appt.ID, appt.CustomerName, appt.CustomerPhone, appt.HaircutID, appt.Notes,
		appt.StartTime, appt.DurationMinutes, appt.Status,
		appt.RescheduledFromID, appt.PaymentMethod, appt.PaymentStatus, appt.MPPaymentID,
		appt.CreatedAt, appt.UpdatedAt)
	if err != nil {
		return err
	}
	for _, slot := range slots {
		_, err := tx.Exec(ctx, `
			INSERT INTO appointment_slots (appointment_id, slot_time)
			VALUES ($1, $2)
		`, appt.ID, slot)
		if err != nil {
			if storage.IsUniqueViolation(err, "appointment_slots_slot_time_key") {
				return storage.ErrSlotTaken
			}
			return err
		}
	}
	return nil
}

func (r *Repository) cancelInTx(ctx context.Context, tx pgx.Tx, id string, patch booking.CancelPatch) (model.Appointment, error) {
	row := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'CANCELLED',
			cancelled_at = $2,
			cancelled_by_role = $3,
			cancel_reason = NULLIF($4, ''),
			rescheduled_to_id = NULLIF($5, '')::uuid,
			updated_at = $2
		WHERE id = $1 AND status <> 'CANCELLED'
		RETURNING `+appointmentColumns+`
	`, id, patch.CancelledAt, patch.Role, patch.Reason, patch.RescheduledToID)
	appt, err := scanAppointment(row)
	if err != nil {
		return model.Appointment{}, err
	}
	_, err = tx.Exec(ctx, `
		DELETE FROM appointment_slots WHERE appointment_id = $1
	`, id)
	if err != nil {
		return model.Appointment{}, err
	}
	return appt, nil
}

func (r *Repository) insertEvent(ctx context.Context, tx pgx.Tx, evt *outbox.Event) error {
	if evt == nil {
		return nil
	}
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	return r.outbox.Insert(ctx, tx, *evt, traceparent, tracestate)
}
