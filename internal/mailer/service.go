// Package mailer sends account emails (verification, password reset) via SMTP.
// Not to be confused with the emails collection on a day, which is user data.
package mailer

import (
	"bytes"
	"fmt"
	"net/smtp"
	"strings"
	"text/template"
)

type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

type Service struct {
	config Config
	server string
	auth   smtp.Auth
}

func NewService(config Config) *Service {
	auth := smtp.PlainAuth("", config.Username, config.Password, config.Host)
	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
	}
}

// IsConfigured reports whether outbound mail is enabled. Handlers fall back to
// a dev-bypass token in the response when it is not.
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

func (s *Service) send(to []string, subject, body string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("mailer not configured")
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}

	msg := []byte(fmt.Sprintf(
		"To: %s\r\n"+
			"From: %s\r\n"+
			"Subject: %s\r\n"+
			"Content-Type: text/plain; charset=UTF-8\r\n"+
			"\r\n"+
			"%s",
		strings.Join(to, ", "), from, subject, body,
	))

	return smtp.SendMail(s.server, s.auth, s.config.From, to, msg)
}

type verificationData struct {
	UserName        string
	VerificationURL string
}

type passwordResetData struct {
	UserName string
	ResetURL string
}

// SendVerificationEmail sends the account verification email.
func (s *Service) SendVerificationEmail(to, userName, verificationURL string) error {
	body, err := renderTemplate(verificationTemplate, verificationData{
		UserName:        userName,
		VerificationURL: verificationURL,
	})
	if err != nil {
		return fmt.Errorf("render verification template: %w", err)
	}
	return s.send([]string{to}, "Verify your Life OS account", body)
}

// SendPasswordResetEmail sends the password reset email.
func (s *Service) SendPasswordResetEmail(to, userName, resetURL string) error {
	body, err := renderTemplate(passwordResetTemplate, passwordResetData{
		UserName: userName,
		ResetURL: resetURL,
	})
	if err != nil {
		return fmt.Errorf("render password reset template: %w", err)
	}
	return s.send([]string{to}, "Reset your Life OS password", body)
}

func renderTemplate(tmpl string, data any) (string, error) {
	t := template.Must(template.New("mail").Parse(tmpl))
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const verificationTemplate = `Hi {{.UserName}},

Thanks for signing up for Life OS. Verify your email address to activate
your account:

{{.VerificationURL}}

This link expires in 24 hours. If you didn't create an account, you can
safely ignore this email.
`

const passwordResetTemplate = `Hi {{.UserName}},

We received a request to reset your Life OS password. Use this link to
choose a new one:

{{.ResetURL}}

This link expires in 1 hour. If you didn't request a reset, your password
remains unchanged.
`
