// Package smtp delivers email through a tenant-owned SMTP relay. Tenants on
// the strict override channel route every message through their own server;
// there is no fallback to the managed provider from here.
package smtp

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"

	"expirywatch/internal/types"
)

// sendFunc matches the signature of smtp.SendMail. Injectable for tests.
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// RelayClient sends rendered messages through a tenant's SMTP server using
// PLAIN auth over the port configured on the tenant record.
type RelayClient struct {
	send   sendFunc
	logger *slog.Logger
}

// NewRelayClient creates a RelayClient backed by net/smtp.
func NewRelayClient(logger *slog.Logger) *RelayClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &RelayClient{
		send:   smtp.SendMail,
		logger: logger,
	}
}

// newRelayClientWithSend injects the send function for testing.
func newRelayClientWithSend(send sendFunc, logger *slog.Logger) *RelayClient {
	c := NewRelayClient(logger)
	c.send = send
	return c
}

// Send builds a MIME message from the input and hands it to the tenant's
// server. The returned ID is the generated Message-ID header value. The
// context deadline is honored only up to the point of dialing; net/smtp does
// not accept a context, so cancellation after dial is best-effort.
func (c *RelayClient) Send(ctx context.Context, cfg types.TenantSMTPConfig, password string, input types.SendInput) (string, error) {
	if !cfg.Complete() {
		return "", types.NewAppError(
			types.ErrCodeValidationMissingField,
			"tenant smtp config is incomplete",
			nil,
		)
	}
	if err := ctx.Err(); err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamSMTPRelay, "relay send canceled", err)
	}

	from := cfg.FromAddress
	if from == "" {
		from = input.From.Address
	}

	to := make([]string, 0, len(input.To))
	for _, addr := range input.To {
		to = append(to, addr.Address)
	}
	if len(to) == 0 {
		return "", types.NewAppError(
			types.ErrCodeValidationMissingField,
			"relay send requires at least one recipient",
			nil,
		)
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), cfg.Host)
	msg := buildMessage(cfg, from, input, messageID)

	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))
	auth := smtp.PlainAuth("", cfg.Username, password, cfg.Host)

	if err := c.send(addr, auth, from, to, msg); err != nil {
		return "", types.NewAppError(
			types.ErrCodeUpstreamSMTPRelay,
			fmt.Sprintf("tenant relay %s rejected message", cfg.Host),
			err,
		)
	}

	return messageID, nil
}

// buildMessage assembles a multipart/alternative MIME message with plaintext
// and HTML bodies. SendGrid and the relay path must produce equivalent
// content for the same RenderedEmail.
func buildMessage(cfg types.TenantSMTPConfig, from string, input types.SendInput, messageID string) []byte {
	var b strings.Builder

	fromHeader := from
	fromName := cfg.FromName
	if fromName == "" {
		fromName = input.From.Name
	}
	if fromName != "" {
		fromHeader = (&mail.Address{Name: fromName, Address: from}).String()
	}

	toHeaders := make([]string, 0, len(input.To))
	for _, a := range input.To {
		if a.Name != "" {
			toHeaders = append(toHeaders, (&mail.Address{Name: a.Name, Address: a.Address}).String())
		} else {
			toHeaders = append(toHeaders, a.Address)
		}
	}

	boundary := "=_expirywatch_" + uuid.NewString()

	fmt.Fprintf(&b, "From: %s\r\n", fromHeader)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(toHeaders, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", input.Subject))
	fmt.Fprintf(&b, "Message-ID: %s\r\n", messageID)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	if input.ReferenceID != "" {
		fmt.Fprintf(&b, "X-Reference-ID: %s\r\n", input.ReferenceID)
	}
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n", boundary)
	b.WriteString("\r\n")

	if input.Text != "" {
		fmt.Fprintf(&b, "--%s\r\n", boundary)
		b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
		b.WriteString("Content-Transfer-Encoding: 8bit\r\n\r\n")
		b.WriteString(input.Text)
		b.WriteString("\r\n")
	}
	if input.HTML != "" {
		fmt.Fprintf(&b, "--%s\r\n", boundary)
		b.WriteString("Content-Type: text/html; charset=utf-8\r\n")
		b.WriteString("Content-Transfer-Encoding: 8bit\r\n\r\n")
		b.WriteString(input.HTML)
		b.WriteString("\r\n")
	}
	fmt.Fprintf(&b, "--%s--\r\n", boundary)

	return []byte(b.String())
}
