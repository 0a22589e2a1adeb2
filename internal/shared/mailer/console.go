package mailer

import (
	"context"
	"fmt"
	"log"
	"net/mail"
	"strings"
	"sync"
	"time"
)

// Console 把邮件写入日志
type Console struct {
	from       mail.Address
	subjPrefix string

	mu   sync.Mutex
	sent []Message
}

var _ Mailer = (*Console)(nil)

// NewConsole 创建日志发送后端
func NewConsole(appName, fromEmail string) *Console {
	return &Console{
		from:       mail.Address{Name: appName, Address: fromEmail},
		subjPrefix: "[" + appName + "] ",
	}
}

// Send 输出邮件头和纯文本正文
func (c *Console) Send(ctx context.Context, msg *Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	body := new(strings.Builder)
	_, _ = fmt.Fprintf(body, "From: %s\r\n", c.from.String())
	_, _ = fmt.Fprintf(body, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	_, _ = fmt.Fprintf(body, "Subject: %s\r\n", c.subjPrefix+msg.Subject)
	_, _ = fmt.Fprintf(body, "To: %s\r\n\r\n", msg.To)
	_, _ = fmt.Fprintf(body, "%s\r\n", msg.Text)
	log.Printf("[Mailer/Console] %s", body.String())

	c.mu.Lock()
	c.sent = append(c.sent, *msg)
	c.mu.Unlock()
	return nil
}

// Sent 已发送的邮件（按发送顺序）
func (c *Console) Sent() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.sent))
	copy(out, c.sent)
	return out
}
