// Package email implements a notifier.Notifier that delivers over SMTP.
package email

import (
	"context"
	"fmt"
	"net/smtp"
	"slices"
	"strconv"
	"strings"

	"github.com/Strob0t/OpsForge/internal/port/notifier"
)

const providerName = "email"

// SMTPConfig holds the configuration for SMTP connections.
type SMTPConfig struct {
	Host     string
	Port     int
	From     string
	Password string
	To       []string
}

// Notifier sends plain-text email notifications.
type Notifier struct {
	cfg      SMTPConfig
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewNotifier creates an email notifier.
func NewNotifier(cfg SMTPConfig) *Notifier {
	return &Notifier{cfg: cfg, sendMail: smtp.SendMail}
}

func (n *Notifier) Name() string { return providerName }

func (n *Notifier) Capabilities() notifier.Capabilities { return notifier.Capabilities{} }

// Send delivers the notification. net/smtp has no context support, so ctx is
// only checked before dialing.
func (n *Notifier) Send(ctx context.Context, nt notifier.Notification) error {
	if n.cfg.Host == "" || n.cfg.From == "" || len(n.cfg.To) == 0 {
		return notifier.ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if n.cfg.Password != "" {
		auth = smtp.PlainAuth("", n.cfg.From, n.cfg.Password, n.cfg.Host)
	}

	addr := n.cfg.Host + ":" + strconv.Itoa(n.cfg.Port)
	if err := n.sendMail(addr, auth, n.cfg.From, n.cfg.To, n.compose(nt)); err != nil {
		return fmt.Errorf("email send: %w", err)
	}
	return nil
}

func (n *Notifier) compose(nt notifier.Notification) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", n.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(n.cfg.To, ", "))
	fmt.Fprintf(&b, "Subject: [OpsForge] [%s] %s\r\n", strings.ToUpper(levelOrInfo(nt.Level)), sanitizeHeader(nt.Title))
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(nt.Message)
	b.WriteString("\r\n")

	if len(nt.Fields) > 0 {
		keys := make([]string, 0, len(nt.Fields))
		for k := range nt.Fields {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		b.WriteString("\r\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "%s: %s\r\n", k, nt.Fields[k])
		}
	}
	if nt.Source != "" {
		fmt.Fprintf(&b, "\r\nSource: %s\r\n", nt.Source)
	}
	return []byte(b.String())
}

func levelOrInfo(level string) string {
	if level == "" {
		return notifier.LevelInfo
	}
	return level
}

// sanitizeHeader strips CR/LF so a title cannot inject extra headers.
func sanitizeHeader(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}
