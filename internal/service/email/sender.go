package email

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ofs/internal/domain"
)

// SentMessage — запись об отправленном письме.
type SentMessage struct {
	Address string
	Subject string
	Body    string
}

// LogSender пишет исходящие письма в лог и хранит их в памяти.
// Реальная доставка выполняется внешним сервисом вне этого модуля.
type LogSender struct {
	logger *log.Entry

	mu   sync.Mutex
	sent []SentMessage
}

// NewLogSender создает логирующий email-отправитель.
func NewLogSender() *LogSender {
	return &LogSender{
		logger: log.WithField("component", "email-sender"),
	}
}

// Send регистрирует письмо. Пустой адрес — ошибка вызывающего.
func (s *LogSender) Send(ctx context.Context, address, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if address == "" {
		return fmt.Errorf("send email: address is empty")
	}

	s.mu.Lock()
	s.sent = append(s.sent, SentMessage{Address: address, Subject: subject, Body: body})
	s.mu.Unlock()

	s.logger.WithFields(log.Fields{
		"address": address,
		"subject": subject,
	}).Info("email sent")
	return nil
}

// Sent возвращает копию списка отправленных писем.
func (s *LogSender) Sent() []SentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SentMessage, len(s.sent))
	copy(out, s.sent)
	return out
}

var _ domain.EmailSender = (*LogSender)(nil)
