// Package email provides email sending functionality
package email

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"
)

// Config holds email configuration
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	FromName string
	UseTLS   bool

	// FrontendURL prefixes the console links placed in emails.
	FrontendURL string
}

// sendFunc matches smtp.SendMail.
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Service handles email sending
type Service struct {
	config    *Config
	templates map[string]*template.Template
	log       *zap.Logger
	send      sendFunc
	queue     *Queue
}

// NewService creates a new email service
func NewService(config *Config, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{
		config:    config,
		templates: make(map[string]*template.Template),
		log:       log.Named("email"),
		send:      smtp.SendMail,
	}
	s.loadTemplates()
	return s
}

// Enabled reports whether an SMTP host is configured.
func (s *Service) Enabled() bool {
	return s.config.Host != ""
}

// Email represents an email message
type Email struct {
	To       []string
	CC       []string
	BCC      []string
	Subject  string
	Body     string
	HTMLBody string
}

func (s *Service) buildMessage(email *Email) []byte {
	var msg bytes.Buffer

	// Headers
	msg.WriteString(fmt.Sprintf("From: %s <%s>\r\n", s.config.FromName, s.config.From))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(email.To, ", ")))
	if len(email.CC) > 0 {
		msg.WriteString(fmt.Sprintf("Cc: %s\r\n", strings.Join(email.CC, ", ")))
	}
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", email.Subject))
	msg.WriteString("MIME-Version: 1.0\r\n")

	if email.HTMLBody != "" {
		msg.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
		msg.WriteString("\r\n")
		msg.WriteString(email.HTMLBody)
	} else {
		msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
		msg.WriteString("\r\n")
		msg.WriteString(email.Body)
	}
	return msg.Bytes()
}

// Send sends an email. Without a configured host it logs and returns nil.
func (s *Service) Send(email *Email) error {
	if !s.Enabled() {
		s.log.Debug("email not configured, skipping send", zap.String("subject", email.Subject))
		return nil
	}

	msg := s.buildMessage(email)

	recipients := append(append([]string{}, email.To...), email.CC...)
	recipients = append(recipients, email.BCC...)

	auth := smtp.PlainAuth("", s.config.User, s.config.Password, s.config.Host)
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	if s.config.UseTLS {
		return s.sendTLS(addr, auth, recipients, msg)
	}
	return s.send(addr, auth, s.config.From, recipients, msg)
}

func (s *Service) sendTLS(addr string, auth smtp.Auth, recipients []string, msg []byte) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: s.config.Host})
	if err != nil {
		return fmt.Errorf("TLS dial error: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, s.config.Host)
	if err != nil {
		return fmt.Errorf("SMTP client error: %w", err)
	}
	defer client.Close()

	if err = client.Auth(auth); err != nil {
		return fmt.Errorf("auth error: %w", err)
	}
	if err = client.Mail(s.config.From); err != nil {
		return fmt.Errorf("mail error: %w", err)
	}
	for _, rcpt := range recipients {
		if err = client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("rcpt error: %w", err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("data error: %w", err)
	}
	if _, err = w.Write(msg); err != nil {
		return fmt.Errorf("write error: %w", err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("close error: %w", err)
	}
	return client.Quit()
}

// Render executes a named template.
func (s *Service) Render(templateName string, data interface{}) (string, error) {
	tmpl, ok := s.templates[templateName]
	if !ok {
		return "", fmt.Errorf("template not found: %s", templateName)
	}
	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return "", fmt.Errorf("template execution error: %w", err)
	}
	return body.String(), nil
}

// SendWithTemplate sends an email using a template
func (s *Service) SendWithTemplate(to []string, subject, templateName string, data interface{}) error {
	body, err := s.Render(templateName, data)
	if err != nil {
		return err
	}
	return s.Send(&Email{
		To:       to,
		Subject:  subject,
		HTMLBody: body,
	})
}

// dispatch enqueues when a queue is running, otherwise sends inline.
func (s *Service) dispatch(to []string, subject, templateName string, data interface{}) error {
	if s.queue != nil {
		if _, err := s.Render(templateName, data); err != nil {
			return err
		}
		s.queue.Enqueue(to, subject, templateName, data)
		return nil
	}
	return s.SendWithTemplate(to, subject, templateName, data)
}

// ============================================
// Async Email Queue
// ============================================

// Queue sends emails from background workers with retries.
type Queue struct {
	service    *Service
	queue      chan *queuedEmail
	done       chan struct{}
	maxRetries uint64
	initial    time.Duration
}

type queuedEmail struct {
	to           []string
	subject      string
	templateName string
	data         interface{}
}

// StartQueue starts workers and routes the Send* helpers through them.
func (s *Service) StartQueue(workers int) *Queue {
	s.queue = NewQueue(s, workers)
	return s.queue
}

// NewQueue starts workers that drain the queue.
func NewQueue(service *Service, workers int) *Queue {
	q := &Queue{
		service:    service,
		queue:      make(chan *queuedEmail, 1000),
		done:       make(chan struct{}),
		maxRetries: 3,
		initial:    2 * time.Second,
	}
	for i := 0; i < workers; i++ {
		go q.worker()
	}
	return q
}

func (q *Queue) worker() {
	for {
		select {
		case email := <-q.queue:
			q.deliver(email)
		case <-q.done:
			return
		}
	}
}

func (q *Queue) deliver(email *queuedEmail) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = q.initial
	policy := backoff.WithMaxRetries(b, q.maxRetries)

	err := backoff.RetryNotify(func() error {
		return q.service.SendWithTemplate(email.to, email.subject, email.templateName, email.data)
	}, policy, func(err error, wait time.Duration) {
		q.service.log.Warn("email send failed, retrying",
			zap.String("template", email.templateName),
			zap.Duration("wait", wait),
			zap.Error(err))
	})
	if err != nil {
		q.service.log.Error("email dropped",
			zap.String("template", email.templateName),
			zap.Strings("to", email.to),
			zap.Error(err))
	}
}

// Enqueue adds an email to the queue. A full queue drops the email.
func (q *Queue) Enqueue(to []string, subject, templateName string, data interface{}) {
	select {
	case q.queue <- &queuedEmail{to: to, subject: subject, templateName: templateName, data: data}:
	default:
		q.service.log.Error("email queue full, dropping", zap.String("template", templateName))
	}
}

// Stop stops the queue workers
func (q *Queue) Stop() {
	close(q.done)
}
