package sink

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/example/imagegate/internal/render"
	"github.com/example/imagegate/internal/report"
)

// DefaultSubject is used when no subject is configured. {target} and {findings} are expanded.
const DefaultSubject = "Vulnerability scan for {target}: {findings} finding(s)"

const smtpTimeout = 30 * time.Second

// EmailSettings are supplied through configuration; credentials are never compiled in.
type EmailSettings struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
	Subject  string
}

// SendFunc delivers a composed message.
type SendFunc func(ctx context.Context, msg *mail.Msg) error

// EmailSink mails a plain-text summary, optionally with a rendered report attached.
type EmailSink struct {
	Settings EmailSettings
	Renderer render.Renderer

	send SendFunc
	now  func() time.Time
}

func NewEmail(settings EmailSettings, renderer render.Renderer) *EmailSink {
	return &EmailSink{Settings: settings, Renderer: renderer}
}

func (s *EmailSink) Name() string { return "email" }

func (s *EmailSink) Deliver(ctx context.Context, d Delivery) error {
	if d.Summary.Total == 0 {
		return skipped("no findings")
	}

	text := FormatEmailBody(d)
	var attachment string
	if s.Renderer != nil {
		path, err := s.Renderer.Render(ctx, d.Report)
		if err != nil {
			text += fmt.Sprintf("\nThe rendered report could not be attached: %v\n", err)
		} else {
			attachment = path
			defer os.Remove(path)
		}
	}

	msg, err := s.compose(d, text, attachment)
	if err != nil {
		return &DeliveryError{Sink: s.Name(), Err: err}
	}

	send := s.send
	if send == nil {
		send = s.dialAndSend
	}
	if err := send(ctx, msg); err != nil {
		return &DeliveryError{Sink: s.Name(), Err: err}
	}
	return nil
}

func (s *EmailSink) port() int {
	if s.Settings.Port == 0 {
		return 587
	}
	return s.Settings.Port
}

func (s *EmailSink) subject(target string, findings int) string {
	subject := s.Settings.Subject
	if subject == "" {
		subject = DefaultSubject
	}
	return strings.NewReplacer("{target}", target, "{findings}", strconv.Itoa(findings)).Replace(subject)
}

func (s *EmailSink) compose(d Delivery, text, attachment string) (*mail.Msg, error) {
	now := time.Now
	if s.now != nil {
		now = s.now
	}

	msg := mail.NewMsg()
	if err := msg.From(s.Settings.From); err != nil {
		return nil, fmt.Errorf("sender %q: %w", s.Settings.From, err)
	}
	if err := msg.To(s.Settings.To...); err != nil {
		return nil, fmt.Errorf("recipients: %w", err)
	}
	msg.Subject(s.subject(d.Target, d.Summary.Total))
	msg.SetDateWithValue(now())
	msg.SetBodyString(mail.TypeTextPlain, text)
	if attachment != "" {
		msg.AttachFile(attachment)
	}
	return msg, nil
}

// newClient uses implicit TLS on port 465 and opportunistic STARTTLS otherwise.
func (s *EmailSink) newClient() (*mail.Client, error) {
	opts := []mail.Option{mail.WithTimeout(smtpTimeout)}
	if s.port() == 465 {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}
	opts = append(opts, mail.WithPort(s.port()))
	if s.Settings.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.Settings.Username),
			mail.WithPassword(s.Settings.Password),
		)
	}
	return mail.NewClient(s.Settings.Host, opts...)
}

func (s *EmailSink) dialAndSend(ctx context.Context, msg *mail.Msg) error {
	client, err := s.newClient()
	if err != nil {
		return err
	}
	return client.DialAndSendWithContext(ctx, msg)
}

// FormatEmailBody renders the plain-text part of the notification.
func FormatEmailBody(d Delivery) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Vulnerability scan results for %s\n", d.Target)
	if d.Report != nil {
		fmt.Fprintf(&b, "Artifact: %s (%s)\n", d.Report.ArtifactName(), d.Report.ArtifactType())
		fmt.Fprintf(&b, "Generated: %s\n", d.Report.GeneratedAt().Format(time.RFC3339))
	}
	b.WriteString("\nFindings by severity:\n")
	for i := len(report.Severities) - 1; i >= 0; i-- {
		sev := report.Severities[i]
		fmt.Fprintf(&b, "  %-8s %d\n", sev, d.Summary.Count(sev))
	}
	fmt.Fprintf(&b, "  %-8s %d\n", "TOTAL", d.Summary.Total)

	if len(d.Summary.Alerts) > 0 {
		fmt.Fprintf(&b, "\nFindings at or above %s:\n", d.Summary.Threshold)
		for _, f := range d.Summary.Alerts {
			fmt.Fprintf(&b, "- %s [%s] %s", f.ID, f.Target, f.Summary())
			if f.FixedVersion != "" {
				fmt.Fprintf(&b, " (fixed in %s)", f.FixedVersion)
			}
			b.WriteByte('\n')
		}
	}
	return b.String()
}
