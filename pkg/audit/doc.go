// Package audit records who changed what, for administrative actions that
// must be traceable after the fact, such as granting a role to a user.
//
// A Logger builds an Event for each call, filling the ID and timestamp and
// reading the acting user from context through an optional extractor, then
// hands it to a Storage. MemoryStorage ships with the package; the
// PostgreSQL implementation lives with the rbac store.
//
//	log := audit.NewLogger(storage, audit.WithActorExtractor(func(ctx context.Context) (string, bool) {
//	    return rbac.UserFromContext(ctx)
//	}))
//
//	err := log.Log(ctx, "rbac.role_assigned",
//	    audit.WithResource("role", "Moderator"),
//	    audit.WithSubject("user-42"),
//	)
//
// Failed actions are recorded with LogError, which stores the error text and
// marks the result as ResultError.
//
// Events are read back with Storage.Query and a Criteria, newest first.
package audit
