package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html/template"
	"io"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/Dias221467/taskreminder/internal/config"
	"github.com/Dias221467/taskreminder/internal/models"
	"github.com/emersion/go-message/mail"
)

// Sender delivers reminder emails over SMTP. Every send is bounded by the
// caller's context.
type Sender struct {
	cfg      config.SMTPConfig
	appURL   string
	location *time.Location
}

func NewSender(cfg config.SMTPConfig, appURL string, loc *time.Location) *Sender {
	if loc == nil {
		loc = time.UTC
	}
	return &Sender{cfg: cfg, appURL: appURL, location: loc}
}

var reminderHTML = template.Must(template.New("reminder").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
  <h1 style="color: #2563eb;">🔔 Task Reminder</h1>
  <h2 style="color: #1e40af;">{{.Title}}</h2>
  {{if .Description}}<p style="color: #64748b;">{{.Description}}</p>{{end}}
  <p><b>Priority:</b> {{.Priority}}</p>
  <p><b>Deadline:</b> <span style="color: #dc2626;">{{.Deadline}}</span></p>
  <p><b>Status:</b> {{.Status}}</p>
  <p>Don't let this task slip away! Complete it now to stay on track.</p>
  <p><a href="{{.AppURL}}">Open the app</a></p>
  <p style="color: #9ca3af; font-size: 12px;">This is an automated reminder. You can change notification preferences in the app.</p>
</div>
`))

type reminderView struct {
	Title       string
	Description string
	Priority    models.Priority
	Deadline    string
	Status      models.TaskStatus
	AppURL      string
}

func (s *Sender) view(task *models.Task) reminderView {
	deadline := "No deadline set"
	if task.Deadline != nil {
		deadline = task.Deadline.In(s.location).Format("Mon, 02 Jan 2006 15:04 MST")
	}
	return reminderView{
		Title:       task.Title,
		Description: task.Description,
		Priority:    task.Priority,
		Deadline:    deadline,
		Status:      task.Status,
		AppURL:      s.appURL,
	}
}

// ComposeReminder renders the reminder for task as a multipart/alternative message.
func (s *Sender) ComposeReminder(to string, task *models.Task, now time.Time) ([]byte, error) {
	v := s.view(task)

	var h mail.Header
	h.SetDate(now)
	h.SetAddressList("From", []*mail.Address{{Address: s.cfg.Sender}})
	h.SetAddressList("To", []*mail.Address{{Address: to}})
	h.SetSubject(models.KindReminder.Subject(task.Title))
	if err := h.GenerateMessageID(); err != nil {
		return nil, fmt.Errorf("generating message id: %w", err)
	}

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("creating mail writer: %w", err)
	}
	tw, err := mw.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("creating inline writer: %w", err)
	}

	var text strings.Builder
	fmt.Fprintf(&text, "Task Reminder: %s\n\n", v.Title)
	if v.Description != "" {
		fmt.Fprintf(&text, "%s\n\n", v.Description)
	}
	fmt.Fprintf(&text, "Priority: %s\nDeadline: %s\nStatus: %s\n\n%s\n", v.Priority, v.Deadline, v.Status, v.AppURL)
	if err := writePart(tw, "text/plain", func(w io.Writer) error {
		_, err := io.WriteString(w, text.String())
		return err
	}); err != nil {
		return nil, err
	}
	if err := writePart(tw, "text/html", func(w io.Writer) error {
		return reminderHTML.Execute(w, v)
	}); err != nil {
		return nil, err
	}

	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writePart(tw *mail.InlineWriter, contentType string, body func(io.Writer) error) error {
	var ph mail.InlineHeader
	ph.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	w, err := tw.CreatePart(ph)
	if err != nil {
		return fmt.Errorf("creating %s part: %w", contentType, err)
	}
	if err := body(w); err != nil {
		w.Close()
		return fmt.Errorf("writing %s part: %w", contentType, err)
	}
	return w.Close()
}

// SendReminder composes and sends the reminder for task to address.
func (s *Sender) SendReminder(ctx context.Context, address string, task *models.Task) error {
	msg, err := s.ComposeReminder(address, task, time.Now())
	if err != nil {
		return err
	}
	return s.send(ctx, address, msg)
}

func (s *Sender) send(ctx context.Context, to string, msg []byte) error {
	if s.cfg.Host == "" {
		return fmt.Errorf("smtp host not configured")
	}
	addr := net.JoinHostPort(s.cfg.Host, s.cfg.Port)

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial to %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	// net/smtp is not context-aware; closing the conn unblocks it on cancel.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("creating SMTP client: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: s.cfg.Host}); err != nil {
			return fmt.Errorf("SMTP STARTTLS: %w", err)
		}
	}
	if s.cfg.Username != "" {
		if ok, _ := client.Extension("AUTH"); ok {
			auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
			if err := client.Auth(auth); err != nil {
				return fmt.Errorf("SMTP auth: %w", err)
			}
		}
	}

	if err := client.Mail(s.cfg.Sender); err != nil {
		return fmt.Errorf("SMTP MAIL FROM: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("SMTP RCPT TO: %w", err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("SMTP DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("writing email body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("closing email body: %w", err)
	}
	return client.Quit()
}
