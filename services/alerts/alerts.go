// Package alerts emails a digest of the sources that failed during a
// scrape run.
package alerts

import (
	"context"
	"fmt"
	"lapets-backend/lib/timezone"
	"lapets-backend/services/orchestrator"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("lapets/services/alerts")

type SmtpConfig struct {
	Server       string `json:"server"`
	Port         int    `json:"port"`
	EmailAddress string `json:"email_address"`
	Password     string `json:"password"`
}

type Options struct {
	Smtp       SmtpConfig `json:"smtp"`
	Recipients []string   `json:"recipients"`
}

func (o Options) Enabled() bool {
	return o.Smtp.Server != "" && len(o.Recipients) > 0
}

type Mailer struct {
	options Options
}

func NewMailer(options Options) Mailer {
	return Mailer{options: options}
}

// Digest renders the plain text body describing every failed source.
func Digest(summary orchestrator.Summary) string {
	var out strings.Builder
	failed := summary.Failed()
	fmt.Fprintf(
		&out,
		"%d of %d sources failed during the scrape at %s.\n",
		len(failed), summary.TotalSources,
		timezone.Now().Format("2006-01-02 15:04 MST"),
	)
	for _, r := range failed {
		out.WriteString("\n")
		fmt.Fprintf(&out, "%s (%s)\n", r.Name, r.SourceKey)
		if r.Err != nil {
			fmt.Fprintf(&out, "  scrape: %s\n", r.Err.Error())
		}
		if r.ReconcileErr != nil {
			fmt.Fprintf(&out, "  store: %s\n", r.ReconcileErr.Error())
		}
		fmt.Fprintf(&out, "  found %d, failed to save %d\n", r.Found, r.Stats.Failed)
	}
	return out.String()
}

func (m Mailer) Notify(ctx context.Context, summary orchestrator.Summary) error {
	ctx, span := tracer.Start(ctx, "Notify")
	defer span.End()

	failed := summary.Failed()
	if len(failed) == 0 || !m.options.Enabled() {
		return nil
	}

	mail := email.NewEmail()
	mail.From = fmt.Sprintf("LA Pets <%s>", m.options.Smtp.EmailAddress)
	mail.To = m.options.Recipients
	mail.Subject = fmt.Sprintf("Scrape failures: %d of %d sources", len(failed), summary.TotalSources)
	mail.Text = []byte(Digest(summary))

	addr := fmt.Sprintf("%s:%d", m.options.Smtp.Server, m.options.Smtp.Port)
	err := mail.Send(
		addr,
		smtp.PlainAuth("", m.options.Smtp.EmailAddress, m.options.Smtp.Password, m.options.Smtp.Server),
	)
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
