package email

import (
	"context"
	"errors"
	"testing"

	"github.com/mrz1836/postmark"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testConfig = Config{
	SenderEmail:  "noreply@printforge.test",
	SenderName:   "PrintForge",
	SupportEmail: "support@printforge.test",
}

var testParams = SendEmailParams{
	SendTo:   "maker@example.com",
	Subject:  "Welcome to Pro!",
	BodyHTML: "<h1>Welcome</h1>",
	Tag:      "lifecycle",
}

func TestPostmarkClient_SendEmail(t *testing.T) {
	t.Parallel()

	var got postmark.Email
	c := &postmarkClient{config: testConfig, send: func(_ context.Context, e postmark.Email) (postmark.EmailResponse, error) {
		got = e
		return postmark.EmailResponse{}, nil
	}}
	require.NoError(t, c.SendEmail(context.Background(), testParams))
	assert.Equal(t, "noreply@printforge.test", got.From)
	assert.Equal(t, "support@printforge.test", got.ReplyTo)
	assert.Equal(t, "maker@example.com", got.To)
	assert.Equal(t, "lifecycle", got.Tag)
	assert.True(t, got.TrackOpens)

	c.send = func(context.Context, postmark.Email) (postmark.EmailResponse, error) {
		return postmark.EmailResponse{ErrorCode: 300, Message: "Invalid email request"}, nil
	}
	err := c.SendEmail(context.Background(), testParams)
	require.ErrorIs(t, err, ErrFailedToSendEmail)
	assert.Contains(t, err.Error(), "300")

	c.send = func(context.Context, postmark.Email) (postmark.EmailResponse, error) {
		return postmark.EmailResponse{}, errors.New("timeout")
	}
	require.ErrorIs(t, c.SendEmail(context.Background(), testParams), ErrFailedToSendEmail)
}

func TestSendGridClient_SendEmail(t *testing.T) {
	t.Parallel()

	var got *mail.SGMailV3
	c := &sendgridClient{config: testConfig, send: func(_ context.Context, m *mail.SGMailV3) (int, string, error) {
		got = m
		return 202, "", nil
	}}
	require.NoError(t, c.SendEmail(context.Background(), testParams))
	require.NotNil(t, got)
	assert.Equal(t, "noreply@printforge.test", got.From.Address)
	assert.Equal(t, "PrintForge", got.From.Name)
	assert.Equal(t, "support@printforge.test", got.ReplyTo.Address)
	assert.Equal(t, "Welcome to Pro!", got.Subject)
	assert.Equal(t, []string{"lifecycle"}, got.Categories)
	require.Len(t, got.Personalizations, 1)
	assert.Equal(t, "maker@example.com", got.Personalizations[0].To[0].Address)

	c.send = func(context.Context, *mail.SGMailV3) (int, string, error) {
		return 401, `{"errors":[{"message":"unauthorized"}]}`, nil
	}
	err := c.SendEmail(context.Background(), testParams)
	require.ErrorIs(t, err, ErrFailedToSendEmail)
	assert.Contains(t, err.Error(), "401")
}
