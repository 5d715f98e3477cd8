package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"launchsync/internal/syncer"

	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("launchsync/internal/notify")

type SmtpConfig struct {
	Server       string `json:"server"`
	Port         int    `json:"port"`
	EmailAddress string `json:"email_address"`
	Password     string `json:"password"`
}

// Summary describes a single fetch, prepare and execute flow.
type Summary struct {
	RunID      string
	Source     string
	StartedAt  time.Time
	FinishedAt time.Time
	Extracted  int
	Planned    int
	Result     syncer.Result
	// Errors holds the failure of every step that failed.
	Errors []error
}

func (s Summary) Failed() bool {
	return len(s.Errors) > 0 || s.Result.Failed > 0
}

func (s Summary) Subject() string {
	state := "succeeded"
	if s.Failed() {
		state = "needs attention"
	}
	return fmt.Sprintf(
		"[launchsync] %s sync %s: %d written, %d failed",
		s.Source, state, s.Result.Written, s.Result.Failed,
	)
}

func (s Summary) Text() string {
	var out strings.Builder
	fmt.Fprintf(&out, "Run %s for %s\n", s.RunID, s.Source)
	fmt.Fprintf(&out, "Started:  %s\n", s.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&out, "Finished: %s (%s)\n\n", s.FinishedAt.Format(time.RFC3339), s.FinishedAt.Sub(s.StartedAt).Round(time.Second))

	fmt.Fprintf(&out, "Extracted: %d\n", s.Extracted)
	fmt.Fprintf(&out, "Planned:   %d\n", s.Planned)
	fmt.Fprintf(&out, "Executor:  %s (%d/%d)\n", s.Result.State, s.Result.NextIndex, s.Result.Total)
	fmt.Fprintf(&out, "Written:   %d\n", s.Result.Written)
	fmt.Fprintf(&out, "Skipped:   %d\n", s.Result.Skipped)
	fmt.Fprintf(&out, "Failed:    %d\n", s.Result.Failed)

	if len(s.Result.FailedMissions) > 0 {
		out.WriteString("\nFailed missions:\n")
		for _, mission := range s.Result.FailedMissions {
			fmt.Fprintf(&out, "- %s\n", mission)
		}
	}
	if len(s.Errors) > 0 {
		out.WriteString("\nErrors:\n")
		for _, err := range s.Errors {
			fmt.Fprintf(&out, "- %s\n", err)
		}
	}
	return out.String()
}

// Mailer sends run summaries over SMTP.
type Mailer struct {
	config SmtpConfig
	to     []string
}

func NewMailer(config SmtpConfig, to []string) Mailer {
	return Mailer{config: config, to: to}
}

func (m Mailer) Enabled() bool {
	return m.config.Server != "" && len(m.to) > 0
}

func (m Mailer) Message(summary Summary) *email.Email {
	mail := email.NewEmail()
	mail.From = fmt.Sprintf("launchsync <%s>", m.config.EmailAddress)
	mail.To = m.to
	mail.Subject = summary.Subject()
	mail.Text = []byte(summary.Text())
	return mail
}

// Send mails the summary, it is a no-op when no server or recipient is
// configured.
func (m Mailer) Send(ctx context.Context, summary Summary) error {
	if !m.Enabled() {
		return nil
	}

	_, span := tracer.Start(ctx, "Send")
	defer span.End()

	mail := m.Message(summary)
	addr := fmt.Sprintf("%s:%d", m.config.Server, m.config.Port)
	err := mail.Send(addr, smtp.PlainAuth("", m.config.EmailAddress, m.config.Password, m.config.Server))
	if err != nil && strings.Contains(err.Error(), "server doesn't support AUTH") {
		err = mail.Send(addr, nil)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to send email")
		return err
	}
	return nil
}
