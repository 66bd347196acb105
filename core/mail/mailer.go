package mail

import (
	"fmt"
	"net/smtp"
	"strings"

	"Videoflix/config"
	"Videoflix/logger"
	"Videoflix/model"
)

// Mailer delivers account emails. Delivery mechanics are deliberately thin;
// templates and branding live in the frontend links.
type Mailer interface {
	Send(msg model.EmailMessage) error
}

// NewMailer 根据配置选择实现：没配SMTP就只打日志（开发环境）
func NewMailer(cfg *config.Config) Mailer {
	if cfg.SMTPHost == "" {
		return &logMailer{}
	}
	return &smtpMailer{cfg: cfg}
}

// smtpMailer sends plain-text mails over SMTP with optional auth.
type smtpMailer struct {
	cfg *config.Config
}

func (m *smtpMailer) Send(msg model.EmailMessage) error {
	body := renderBody(msg)

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.cfg.MailFrom)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Kind.Subject())
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(body)

	addr := m.cfg.SMTPHost + ":" + m.cfg.SMTPPort
	var a smtp.Auth
	if m.cfg.SMTPUser != "" {
		a = smtp.PlainAuth("", m.cfg.SMTPUser, m.cfg.SMTPPass, m.cfg.SMTPHost)
	}

	if err := smtp.SendMail(addr, a, m.cfg.MailFrom, []string{msg.To}, []byte(b.String())); err != nil {
		return fmt.Errorf("failed to send mail to %s: %w", msg.To, err)
	}

	logger.Info("邮件已发送",
		logger.String("to", msg.To),
		logger.String("subject", msg.Kind.Subject()))
	return nil
}

func renderBody(msg model.EmailMessage) string {
	switch msg.Kind {
	case model.EmailActivation:
		return "Welcome to Videoflix!\r\n\r\nPlease confirm your email address:\r\n" + msg.Link + "\r\n"
	case model.EmailPasswordReset:
		return "A password reset was requested for your Videoflix account.\r\n\r\n" +
			"If this was you, set a new password here:\r\n" + msg.Link + "\r\n\r\n" +
			"If not, you can ignore this mail.\r\n"
	default:
		return msg.Link
	}
}

// logMailer 开发用，把本应发出的邮件写进日志
type logMailer struct{}

func (*logMailer) Send(msg model.EmailMessage) error {
	logger.Info("邮件未发送（未配置SMTP），仅记录",
		logger.String("to", msg.To),
		logger.String("subject", msg.Kind.Subject()),
		logger.String("link", msg.Link))
	return nil
}
