package services

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"mime/quotedprintable"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"

	"upgrade_checkout_echo/internal/models"
)

// Mailer sends HTML email
type Mailer interface {
	SendHTML(ctx context.Context, to []string, subject, html string) error
}

const defaultSMTPTimeout = 30 * time.Second

type sendMailFunc func(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error

type EmailService struct {
	host     string
	port     string
	user     string
	password string
	from     string
	timeout  time.Duration
	sendMail sendMailFunc
}

func NewEmailService(host, port, user, password, from string) *EmailService {
	if from == "" {
		from = user
	}
	s := &EmailService{
		host:     host,
		port:     port,
		user:     user,
		password: password,
		from:     from,
		timeout:  defaultSMTPTimeout,
	}
	s.sendMail = s.deliver
	return s
}

// WithTimeout bounds a whole SMTP exchange, from dial to QUIT
func (s *EmailService) WithTimeout(d time.Duration) *EmailService {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// Configured reports whether SMTP credentials are complete
func (s *EmailService) Configured() bool {
	return s.host != "" && s.port != "" && s.user != "" && s.password != ""
}

// SendHTML sends one HTML message to all recipients. Transport failures come back
// as *models.DeliveryError.
func (s *EmailService) SendHTML(ctx context.Context, to []string, subject, html string) error {
	if len(to) == 0 {
		return &models.DeliveryError{Err: fmt.Errorf("no recipients")}
	}
	if !s.Configured() {
		return &models.DeliveryError{Recipients: to, Err: fmt.Errorf("SMTP credentials not fully configured")}
	}
	if err := ctx.Err(); err != nil {
		return &models.DeliveryError{Recipients: to, Err: err}
	}

	message, err := buildMessage(s.from, to, subject, html, s.messageID(), time.Now())
	if err != nil {
		return &models.DeliveryError{Recipients: to, Err: err}
	}

	auth := smtp.PlainAuth("", s.user, s.password, s.host)
	addr := fmt.Sprintf("%s:%s", s.host, s.port)

	if err := s.sendMail(ctx, addr, auth, s.from, to, message); err != nil {
		return &models.DeliveryError{Recipients: to, Err: fmt.Errorf("failed to send email: %w", err)}
	}
	return nil
}

// deliver is smtp.SendMail with a deadline. The connection is cut when ctx ends or
// the timeout passes, whichever comes first.
func (s *EmailService) deliver(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return err
	}
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	defer stop()

	c, err := smtp.NewClient(conn, s.host)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: s.host}); err != nil {
			return err
		}
	}
	if a != nil {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(a); err != nil {
				return err
			}
		}
	}
	if err := c.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func (s *EmailService) messageID() string {
	domain := s.host
	if at := strings.LastIndex(s.from, "@"); at >= 0 {
		domain = s.from[at+1:]
	}
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}

// buildMessage assembles a quoted-printable HTML MIME message
func buildMessage(from string, to []string, subject, html, messageID string, date time.Time) ([]byte, error) {
	var buf bytes.Buffer
	headers := []string{
		"From: " + from,
		"To: " + strings.Join(to, ", "),
		"Subject: " + mime.QEncoding.Encode("utf-8", subject),
		"Date: " + date.Format(time.RFC1123Z),
		"Message-ID: " + messageID,
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=UTF-8",
		"Content-Transfer-Encoding: quoted-printable",
	}
	for _, h := range headers {
		buf.WriteString(h + "\r\n")
	}
	buf.WriteString("\r\n")

	qp := quotedprintable.NewWriter(&buf)
	if _, err := qp.Write([]byte(html)); err != nil {
		return nil, err
	}
	if err := qp.Close(); err != nil {
		return nil, err
	}
	buf.WriteString("\r\n")
	return buf.Bytes(), nil
}

var _ Mailer = (*EmailService)(nil)
