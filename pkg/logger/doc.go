// Package logger builds the *slog.Logger instances used across printforge.
//
// A logger is configured with functional options and can pull request-scoped
// values (request id, user id) out of the context on every record:
//
//	log := logger.New(
//		logger.WithEnvironment(cfg.Env, "printforge"),
//		logger.WithContextValue("request_id", requestid.Key{}),
//	)
//	log.InfoContext(ctx, "trial started", logger.UserID(uid))
//
// The attribute helpers in attr.go return an empty slog.Attr for zero values,
// which slog drops, so call sites never need to guard optional fields.
package logger
