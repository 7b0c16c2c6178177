package notification

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	gomail "gopkg.in/gomail.v2"

	"github.com/ankit50/mediMeet/internal/config"
	"github.com/ankit50/mediMeet/internal/model"
)

const emailTimeFormat = "Monday, January 2 at 3:04 PM"

// Service sends appointment lifecycle emails to both participants. It is
// driven by the outbox worker, never by request handlers, so a slow SMTP
// server cannot hold a booking transaction open.
type Service struct {
	dialer *gomail.Dialer
	from   string
	logger zerolog.Logger
}

func NewService(cfg config.SMTPConfig, logger zerolog.Logger) *Service {
	return &Service{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
		logger: logger.With().Str("component", "notification").Logger(),
	}
}

func (s *Service) NotifyBooked(payload *model.AppointmentEventPayload) error {
	subject := "Your appointment is confirmed"
	body := fmt.Sprintf(
		"Your video appointment is confirmed for %s.\n\nYou can join the call up to 30 minutes before the start time.",
		payload.StartTime.Format(emailTimeFormat),
	)
	return s.sendToParticipants(payload, subject, body)
}

func (s *Service) NotifyCancelled(payload *model.AppointmentEventPayload) error {
	subject := "Your appointment was cancelled"
	body := fmt.Sprintf(
		"The appointment scheduled for %s has been cancelled. Any credits charged for it have been refunded.",
		payload.StartTime.Format(emailTimeFormat),
	)
	return s.sendToParticipants(payload, subject, body)
}

func (s *Service) NotifyCompleted(payload *model.AppointmentEventPayload) error {
	subject := "Your appointment is complete"
	body := fmt.Sprintf(
		"The appointment on %s has been marked complete. Thank you for using MediMeet.",
		payload.StartTime.Format(emailTimeFormat),
	)
	return s.sendToParticipants(payload, subject, body)
}

func (s *Service) sendToParticipants(payload *model.AppointmentEventPayload, subject, body string) error {
	for _, to := range []string{payload.PatientEmail, payload.DoctorEmail} {
		if to == "" {
			continue
		}
		if err := s.send(to, subject, body); err != nil {
			return fmt.Errorf("failed to email %s: %w", to, err)
		}
	}
	return nil
}

func (s *Service) send(to, subject, body string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetHeader("Date", time.Now().Format(time.RFC1123Z))
	m.SetBody("text/plain", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return err
	}
	s.logger.Debug().Str("to", to).Str("subject", subject).Msg("email sent")
	return nil
}
