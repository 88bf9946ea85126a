// Package email sends transactional mail through a provider-agnostic EmailSender.
//
// Implementations:
//   - Postmark for production delivery with open and link tracking
//   - SendGrid as an alternative production provider
//   - DevSender for local development; it writes every message to disk
//
// All senders validate parameters before sending and wrap provider failures
// in ErrFailedToSendEmail.
//
// Notifier adapts an EmailSender to the fire-and-forget contract used by the
// billing lifecycle emails: delivery failures are logged and reported as
// false, never returned as errors.
//
//	sender, err := email.NewPostmarkClient(cfg)
//	if err != nil {
//		return err
//	}
//	notifier := email.NewNotifier(sender, email.WithLogger(log))
//	ok := notifier.Send(ctx, "maker@example.com", "Your trial started", html)
package email
