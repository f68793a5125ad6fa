// Package notify is the outbound messaging edge: in-app notifications plus
// best-effort SMS. Delivery failures are logged and never propagate into the
// operation that triggered them.
package notify

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

type Recipient struct {
	UserID int64
	Name   string
	Phone  string
}

// Notifier is the call point services use after a successful booking,
// approval, or reminder run.
type Notifier interface {
	Notify(ctx context.Context, rcpt Recipient, message string)
}

// SMSSender sends one text message. The production gateway lives behind this
// interface; dev and tests use the log-only sender.
type SMSSender interface {
	Send(ctx context.Context, phone, message string) error
}

type Dispatcher struct {
	pool   *pgxpool.Pool
	sender SMSSender
	log    zerolog.Logger
}

func NewDispatcher(pool *pgxpool.Pool, sender SMSSender, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		pool:   pool,
		sender: sender,
		log:    log.With().Str("component", "notify").Logger(),
	}
}

// Notify records an in-app notification and, when the recipient has a phone
// number, sends an SMS and logs the send. Every step is best-effort.
func (d *Dispatcher) Notify(ctx context.Context, rcpt Recipient, message string) {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO notifications (user_id, message, is_read, created_at)
		VALUES ($1, $2, FALSE, now())
	`, rcpt.UserID, message)
	if err != nil {
		d.log.Warn().Int64("user_id", rcpt.UserID).Err(err).Msg("failed to insert notification")
	}

	if rcpt.Phone == "" {
		return
	}

	status := "sent"
	if err := d.sender.Send(ctx, rcpt.Phone, message); err != nil {
		status = "failed"
		d.log.Warn().Int64("user_id", rcpt.UserID).Err(err).Msg("sms send failed")
	}

	_, err = d.pool.Exec(ctx, `
		INSERT INTO sms_logs (recipient, message, status, created_at)
		VALUES ($1, $2, $3, now())
	`, rcpt.Phone, message, status)
	if err != nil {
		d.log.Warn().Int64("user_id", rcpt.UserID).Err(err).Msg("failed to insert sms log")
	}
}

// NotifyAppointment behaves like Notify but ties the SMS log row to an
// appointment so the deletion cascade can find it.
func (d *Dispatcher) NotifyAppointment(ctx context.Context, rcpt Recipient, appointmentID int64, message string) {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO notifications (user_id, message, is_read, created_at)
		VALUES ($1, $2, FALSE, now())
	`, rcpt.UserID, message)
	if err != nil {
		d.log.Warn().Int64("user_id", rcpt.UserID).Err(err).Msg("failed to insert notification")
	}

	if rcpt.Phone == "" {
		return
	}

	status := "sent"
	if err := d.sender.Send(ctx, rcpt.Phone, message); err != nil {
		status = "failed"
		d.log.Warn().Int64("appointment_id", appointmentID).Err(err).Msg("sms send failed")
	}

	_, err = d.pool.Exec(ctx, `
		INSERT INTO sms_logs (appointment_id, recipient, message, status, created_at)
		VALUES ($1, $2, $3, $4, now())
	`, appointmentID, rcpt.Phone, message, status)
	if err != nil {
		d.log.Warn().Int64("appointment_id", appointmentID).Err(err).Msg("failed to insert sms log")
	}
}

// LogSender is the dev SMS gateway: it only logs the message.
type LogSender struct {
	Log zerolog.Logger
}

func (s LogSender) Send(_ context.Context, phone, message string) error {
	s.Log.Info().Str("phone", phone).Str("message", message).Msg("sms (log only)")
	return nil
}
