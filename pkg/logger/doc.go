// Package logger builds *slog.Logger instances from functional options and
// provides attribute helpers so that keys such as "user_id" or "permission"
// are spelled the same everywhere.
//
// New picks a text or JSON handler, applies static attributes, and wraps the
// handler with LogHandlerDecorator, which runs registered ContextExtractor
// callbacks on every record so that values stored in context (the acting
// user, the environment) appear without being passed explicitly.
//
// # Usage
//
//	log := logger.New(
//	    logger.WithEnvironment(environment.Production, "rbacctl"),
//	    logger.WithContextExtractors(rbac.LoggerExtractor()),
//	)
//	logger.SetAsDefault(log)
//
//	log.InfoContext(ctx, "role assigned",
//	    logger.UserID("user-42"),
//	    logger.Role("Moderator"),
//	)
//
// Level and format usually come from configuration; ParseLevel and
// ParseFormat convert their string forms.
package logger
