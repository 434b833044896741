package email

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/vaccination-api/internal/config"
)

// OverdueEntry is one line of the overdue digest.
type OverdueEntry struct {
	DocumentNumber string
	FullName       string
	Vaccine        string
	Detail         string
	NextDue        *time.Time
}

type Service interface {
	SendOverdueDigest(ctx context.Context, entries []OverdueEntry) error
}

type sender interface {
	DialAndSend(m ...*gomail.Message) error
}

type SMTPService struct {
	dialer     sender
	from       string
	recipients []string
}

func NewSMTPService(cfg config.NotificationConfig) *SMTPService {
	return &SMTPService{
		dialer:     gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.Username, cfg.Password),
		from:       cfg.From,
		recipients: cfg.Recipients,
	}
}

// SendOverdueDigest mails the overdue list to every configured recipient.
// An empty list sends nothing.
func (s *SMTPService) SendOverdueDigest(ctx context.Context, entries []OverdueEntry) error {
	if len(entries) == 0 || len(s.recipients) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.dialer.DialAndSend(s.digest(entries)); err != nil {
		return fmt.Errorf("failed to send overdue digest: %w", err)
	}
	return nil
}

func (s *SMTPService) digest(entries []OverdueEntry) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", s.recipients...)
	m.SetHeader("Subject", fmt.Sprintf("Vaccination digest: %d overdue schedules", len(entries)))
	m.SetBody("text/plain", renderDigest(entries))
	return m
}

func renderDigest(entries []OverdueEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d vaccination schedules are overdue.\n\n", len(entries))
	for _, e := range entries {
		due := "now"
		if e.NextDue != nil {
			due = e.NextDue.Format("2006-01-02")
		}
		fmt.Fprintf(&b, "%s\t%s\t%s\t%s (due %s)\n", e.DocumentNumber, e.FullName, e.Vaccine, e.Detail, due)
	}
	return b.String()
}
