package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/sirupsen/logrus"

	"github.com/brandon/mcp-mailbridge/internal/config"
	apperrors "github.com/brandon/mcp-mailbridge/internal/errors"
)

// SMTPClient submits messages through a tenant's relay, one connection per Send
type SMTPClient struct {
	tenant  string
	config  *config.ServerConfig
	timeout time.Duration
	logger  *logrus.Logger
}

// NewSMTPClient creates a new SMTP client
func NewSMTPClient(tenant string, cfg *config.ServerConfig, timeout time.Duration, logger *logrus.Logger) *SMTPClient {
	if timeout <= 0 {
		timeout = defaultIMAPTimeout
	}
	return &SMTPClient{
		tenant:  tenant,
		config:  cfg,
		timeout: timeout,
		logger:  logger,
	}
}

// Send submits raw to the given envelope recipients
func (c *SMTPClient) Send(ctx context.Context, from string, to []string, raw []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := c.config.Addr()
	tlsConfig := &tls.Config{
		ServerName: c.config.Host,
		MinVersion: tls.VersionTLS12,
	}

	// Implicit TLS (465) or STARTTLS (587)
	var client *smtp.Client
	var err error
	if c.config.Secure {
		client, err = smtp.DialTLS(addr, tlsConfig)
	} else {
		client, err = smtp.DialStartTLS(addr, tlsConfig)
	}
	if err != nil {
		return &apperrors.ConnectivityError{Service: "SMTP", Addr: addr, Err: err}
	}
	defer client.Close()

	client.CommandTimeout = c.timeout
	client.SubmissionTimeout = c.timeout

	// Auth
	if c.config.Password != "" {
		auth := sasl.NewPlainClient("", c.config.Username, c.config.Password)
		if err := client.Auth(auth); err != nil {
			c.logger.WithError(err).WithField("tenant", c.tenant).Warn("SMTP authentication rejected")
			if isNetworkError(err) {
				return &apperrors.ConnectivityError{Service: "SMTP", Addr: addr, Err: err}
			}
			return &apperrors.AuthError{Service: "SMTP", User: c.config.Username, Err: err}
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := client.SendMail(from, to, bytes.NewReader(raw)); err != nil {
		if isAuthReply(err) {
			return &apperrors.AuthError{Service: "SMTP", User: c.config.Username, Err: err}
		}
		return connectivity("SMTP", addr, fmt.Errorf("failed to send message: %w", err))
	}

	if err := client.Quit(); err != nil {
		c.logger.WithError(err).WithField("tenant", c.tenant).Debug("SMTP QUIT failed after delivery")
	}

	c.logger.WithFields(logrus.Fields{
		"tenant":     c.tenant,
		"recipients": len(to),
	}).Debug("Message submitted")

	return nil
}

// isAuthReply reports whether the server rejected the session for authentication reasons
func isAuthReply(err error) bool {
	var smtpErr *smtp.SMTPError
	if !errors.As(err, &smtpErr) {
		return false
	}
	switch smtpErr.Code {
	case 530, 534, 535:
		return true
	}
	return false
}
