package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/barbearia-galileu/booking-server/internal/model"
	"github.com/barbearia-galileu/booking-server/internal/outbox"
	"github.com/barbearia-galileu/booking-server/internal/payments"
	"github.com/barbearia-galileu/booking-server/internal/storage"
)

func (r *Repository) UpdatePayment(ctx context.Context, id string, patch payments.PaymentPatch, evt *outbox.Event) (model.Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.Appointment{}, err
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE appointments
		SET payment_status = $2,
			mp_payment_id = COALESCE(NULLIF($3, ''), mp_payment_id),
			status = CASE WHEN $4 AND status = 'SCHEDULED' THEN 'CONFIRMED' ELSE status END,
			updated_at = $5
		WHERE id = $1
		RETURNING `+appointmentColumns+`
	`, id, patch.Status, patch.MPPaymentID, patch.Confirm, patch.UpdatedAt)
	appt, err := scanAppointment(row)
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

func (r *Repository) DeleteAppointment(ctx context.Context, id string, evt *outbox.Event) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		DELETE FROM appointment_slots WHERE appointment_id = $1
	`, id)
	if err != nil {
		return err
	}
	// A superseded appointment still points at this row through the
	// reschedule links; detach them so the FK doesn't block the delete.
	_, err = tx.Exec(ctx, `
		UPDATE appointments
		SET rescheduled_to_id = NULL
		WHERE rescheduled_to_id = $1
	`, id)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `
		UPDATE appointments
		SET rescheduled_from_id = NULL
		WHERE rescheduled_from_id = $1
	`, id)
	if err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `
		DELETE FROM appointments WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	if err := r.insertEvent(ctx, tx, evt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *Repository) InsertWebhookEvent(ctx context.Context, evt model.WebhookEvent) error {
	query, err := json.Marshal(evt.Query)
	if err != nil {
		return err
	}
	headers, err := json.Marshal(evt.Headers)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO webhook_events
			(id, provider, request_id, method, path, query, headers, body,
			 event_type, event_action, mp_payment_id, processing_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 'IGNORED', $12)
		ON CONFLICT DO NOTHING
	`, evt.ID, evt.Provider, evt.RequestID, evt.Method, evt.Path, query, headers, evt.Body,
		evt.EventType, evt.EventAction, evt.MPPaymentID, evt.CreatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrDuplicateEvent
	}
	return nil
}

func (r *Repository) FinishWebhookEvent(ctx context.Context, id string, status model.ProcessingStatus, errMessage string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE webhook_events
		SET processing_status = $2,
			error_message = NULLIF($3, ''),
			processed_at = $4
		WHERE id = $1
	`, id, status, errMessage, at)
	return err
}
