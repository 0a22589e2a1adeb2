// Package mailer 邮件发送
//
// 目前只有找回密码一种邮件。发送后端：
//   - console：写入日志（开发环境默认）
//   - sendgrid：SendGrid v3 API
//
// 配置 Redis 时，API Server 通过 QueuedMailer 把邮件投递到发件箱，
// 由 Worker 异步消费并交给实际后端发送。
package mailer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"memoria/internal/config"
)

// ErrNoRecipient 邮件没有收件人
var ErrNoRecipient = errors.New("mail has no recipient")

// Message 一封邮件
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Validate 检查收件人和正文
func (m *Message) Validate() error {
	if strings.TrimSpace(m.To) == "" {
		return ErrNoRecipient
	}
	if m.Text == "" && m.HTML == "" {
		return fmt.Errorf("mail to %s has no content", m.To)
	}
	return nil
}

// Mailer 邮件发送接口
type Mailer interface {
	Send(ctx context.Context, msg *Message) error
}

// New 按配置创建发送后端
func New(cfg config.MailConfig) (Mailer, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "console":
		return NewConsole(cfg.FromName, cfg.FromEmail), nil
	case "sendgrid":
		if cfg.SendGridAPIKey == "" {
			return nil, errors.New("SENDGRID_API_KEY is required for the sendgrid mail provider")
		}
		return NewSendGrid(cfg.SendGridAPIKey, cfg.FromName, cfg.FromEmail), nil
	default:
		return nil, fmt.Errorf("unknown mail provider %q", cfg.Provider)
	}
}

// PasswordResetMessage 找回密码邮件
func PasswordResetMessage(to, resetURL string) *Message {
	return &Message{
		To:      to,
		Subject: "Reset your password",
		Text: "We received a request to reset your Memoria password.\r\n\r\n" +
			"Open the link below within one hour to choose a new password:\r\n" + resetURL + "\r\n\r\n" +
			"If you did not request this, you can ignore this email.",
		HTML: `<p>We received a request to reset your Memoria password.</p>` +
			`<p><a href="` + resetURL + `">Choose a new password</a> (valid for one hour)</p>` +
			`<p>If you did not request this, you can ignore this email.</p>`,
	}
}
