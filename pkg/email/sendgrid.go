package email

import (
	"context"
	"errors"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type sendgridClient struct {
	send   func(ctx context.Context, msg *mail.SGMailV3) (status int, body string, err error)
	config Config
}

// NewSendGridClient creates a SendGrid-backed email sender.
func NewSendGridClient(cfg Config) (EmailSender, error) {
	if cfg.SendGridAPIKey == "" {
		return nil, fmt.Errorf("%w: SendGridAPIKey is required", ErrInvalidConfig)
	}
	if err := validateSender(cfg); err != nil {
		return nil, err
	}

	client := sendgrid.NewSendClient(cfg.SendGridAPIKey)
	return &sendgridClient{
		send: func(ctx context.Context, msg *mail.SGMailV3) (int, string, error) {
			resp, err := client.SendWithContext(ctx, msg)
			if err != nil {
				return 0, "", err
			}
			return resp.StatusCode, resp.Body, nil
		},
		config: cfg,
	}, nil
}

func (c *sendgridClient) SendEmail(ctx context.Context, params SendEmailParams) error {
	if err := params.Validate(); err != nil {
		return err
	}

	status, body, err := c.send(ctx, buildSendGridMessage(c.config, params))
	if err != nil {
		return errors.Join(ErrFailedToSendEmail, err)
	}
	if status < 200 || status > 299 {
		return errors.Join(
			ErrFailedToSendEmail,
			fmt.Errorf("sendgrid error: %d - %s", status, body),
		)
	}
	return nil
}

func buildSendGridMessage(cfg Config, params SendEmailParams) *mail.SGMailV3 {
	from := mail.NewEmail(cfg.SenderName, cfg.SenderEmail)
	to := mail.NewEmail("", params.SendTo)
	msg := mail.NewSingleEmail(from, params.Subject, to, "", params.BodyHTML)
	msg.SetReplyTo(mail.NewEmail("", cfg.SupportEmail))
	if params.Tag != "" {
		msg.AddCategories(params.Tag)
	}
	return msg
}
