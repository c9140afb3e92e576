package email

import (
	"fmt"
	"net/smtp"
	"time"
)

// Service handles email sending via SMTP
type Service struct {
	host string
	port string
	from string
}

// NewService creates a new email service
func NewService(host, port, from string) *Service {
	return &Service{
		host: host,
		port: port,
		from: from,
	}
}

// SendSyncFailureAlert notifies an operator that a queued operation could
// not be replayed and needs attention.
func (s *Service) SendSyncFailureAlert(to, businessID, detail string, at time.Time) error {
	shortID := businessID
	if len(businessID) > 8 {
		shortID = businessID[:8]
	}
	subject := fmt.Sprintf("[POS Sync] Sync failure for business %s", shortID)
	body := BuildSyncFailureBody(businessID, detail, at)
	return s.send(to, subject, body)
}

func (s *Service) send(to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		s.from, to, subject, body)
	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	return smtp.SendMail(addr, nil, s.from, []string{to}, []byte(msg))
}
