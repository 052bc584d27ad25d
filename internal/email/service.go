// Package email provides email sending capabilities via SMTP.
package email

import (
	"bytes"
	"errors"
	"fmt"
	"net/smtp"
	"strings"
)

// ErrNotConfigured is returned by every send when SMTP settings are missing.
var ErrNotConfigured = errors.New("email not configured")

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
	// AppURL prefixes links in notification emails.
	AppURL string
}

// Service provides email sending
type Service struct {
	config Config
	server string
	auth   smtp.Auth
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewService(config Config) *Service {
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
		send:   smtp.SendMail,
	}
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

func (s *Service) fromHeader() string {
	if s.config.FromName != "" {
		return fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}
	return s.config.From
}

// SendHTMLEmail sends a multipart message with a plain-text fallback.
func (s *Service) SendHTMLEmail(to []string, subject, textBody, htmlBody string) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}
	if len(to) == 0 {
		return fmt.Errorf("send %q: no recipients", subject)
	}

	boundary := "boundary-mybeatfi"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", s.fromHeader())
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", textBody)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", htmlBody)
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)

	if err := s.send(s.server, s.auth, s.config.From, to, msg.Bytes()); err != nil {
		return fmt.Errorf("send %q: %w", subject, err)
	}
	return nil
}

// SendVerificationEmail sends an email verification email
func (s *Service) SendVerificationEmail(to, userName, token string) error {
	link := s.link("/verify-email?token=" + token)
	html, err := render("verification", Message{
		AppName:       appName,
		RecipientName: userName,
		ActionURL:     link,
	})
	if err != nil {
		return fmt.Errorf("render verification template: %w", err)
	}
	text := fmt.Sprintf("Welcome to %s, %s. Verify your email address: %s", appName, userName, link)
	return s.SendHTMLEmail([]string{to}, "Verify your "+appName+" account", text, html)
}

// SendPasswordResetEmail sends a password reset email
func (s *Service) SendPasswordResetEmail(to, userName, token string) error {
	link := s.link("/reset-password?token=" + token)
	html, err := render("password_reset", Message{
		AppName:       appName,
		RecipientName: userName,
		ActionURL:     link,
	})
	if err != nil {
		return fmt.Errorf("render password reset template: %w", err)
	}
	text := fmt.Sprintf("Reset your %s password within 1 hour: %s", appName, link)
	return s.SendHTMLEmail([]string{to}, "Reset your "+appName+" password", text, html)
}

// SendNotice sends one of the negotiation notifications.
func (s *Service) SendNotice(kind Notice, to string, msg Message) error {
	def, ok := notices[kind]
	if !ok {
		return fmt.Errorf("unknown notice %q", kind)
	}
	msg.AppName = appName
	if msg.ActionURL == "" && msg.ProposalID != "" {
		msg.ActionURL = s.link("/proposals/" + msg.ProposalID)
	}
	html, err := render(string(kind), msg)
	if err != nil {
		return fmt.Errorf("render %s template: %w", kind, err)
	}
	subject := fmt.Sprintf(def.subject, msg.TrackTitle)
	text := fmt.Sprintf("%s\n\n%s", subject, msg.ActionURL)
	return s.SendHTMLEmail([]string{to}, subject, text, html)
}

func (s *Service) link(path string) string {
	return strings.TrimRight(s.config.AppURL, "/") + path
}
