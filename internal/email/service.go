package email

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/clinic-queue/internal/config"
	"github.com/jwalitptl/clinic-queue/internal/model"
)

type Service interface {
	SendAppointmentConfirmation(ctx context.Context, apt *model.Appointment, clinicName string) error
	SendAppointmentCancellation(ctx context.Context, apt *model.Appointment, clinicName string) error
	SendCustom(ctx context.Context, to string, subject string, content string) error
}

type dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

type smtpService struct {
	from   string
	dialer dialer
	logger zerolog.Logger
}

// NewService returns a no-op mailer when no SMTP host is configured.
func NewService(cfg config.SMTPConfig, logger zerolog.Logger) Service {
	logger = logger.With().Str("component", "email").Logger()
	if cfg.Host == "" {
		logger.Info().Msg("smtp host not set, email disabled")
		return &noopService{logger: logger}
	}
	return &smtpService{
		from:   cfg.From,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password),
		logger: logger,
	}
}

func (s *smtpService) SendAppointmentConfirmation(ctx context.Context, apt *model.Appointment, clinicName string) error {
	body := fmt.Sprintf(
		"<p>%s،</p><p>تم استلام طلب حجزك في %s يوم %s الساعة %s (%s).</p><p>رقم الحجز: %s</p>",
		apt.PatientName, clinicName, apt.Date, apt.Time, shiftLabel(apt.Shift), apt.ID,
	)
	return s.SendCustom(ctx, apt.Email, "تأكيد حجز موعد", body)
}

func (s *smtpService) SendAppointmentCancellation(ctx context.Context, apt *model.Appointment, clinicName string) error {
	body := fmt.Sprintf(
		"<p>%s،</p><p>تم إلغاء موعدك في %s يوم %s الساعة %s.</p>",
		apt.PatientName, clinicName, apt.Date, apt.Time,
	)
	return s.SendCustom(ctx, apt.Email, "إلغاء موعد", body)
}

func (s *smtpService) SendCustom(ctx context.Context, to string, subject string, content string) error {
	if to == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", content)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	s.logger.Debug().Str("subject", subject).Msg("email sent")
	return nil
}

func shiftLabel(s model.Shift) string {
	if s == model.ShiftEvening {
		return "الفترة المسائية"
	}
	return "الفترة الصباحية"
}

type noopService struct {
	logger zerolog.Logger
}

func (n *noopService) SendAppointmentConfirmation(ctx context.Context, apt *model.Appointment, clinicName string) error {
	return nil
}

func (n *noopService) SendAppointmentCancellation(ctx context.Context, apt *model.Appointment, clinicName string) error {
	return nil
}

func (n *noopService) SendCustom(ctx context.Context, to string, subject string, content string) error {
	n.logger.Debug().Str("subject", subject).Msg("email skipped")
	return nil
}
