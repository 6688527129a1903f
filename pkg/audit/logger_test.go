package audit_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phillgates2/panel-sub002/pkg/audit"
)

type actorKey struct{}

func actorFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(actorKey{}).(string)
	return v, ok
}

func TestNewLogger_PanicsWithNilStorage(t *testing.T) {
	assert.Panics(t, func() { audit.NewLogger(nil) })
}

func TestLogger_Log(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	storage := audit.NewMemoryStorage()
	log := audit.NewLogger(storage,
		audit.WithActorExtractor(actorFromContext),
		audit.WithClock(func() time.Time { return now }),
	)

	ctx := context.WithValue(context.Background(), actorKey{}, "admin-1")
	err := log.Log(ctx, "rbac.role_assigned",
		audit.WithResource("role", "Moderator"),
		audit.WithSubject("user-42"),
		audit.WithMetadata("expires_at", "never"),
	)
	require.NoError(t, err)

	events, err := storage.Query(context.Background(), audit.Criteria{})
	require.NoError(t, err)
	require.Len(t, events, 1)

	e := events[0]
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, "admin-1", e.ActorID)
	assert.Equal(t, "rbac.role_assigned", e.Action)
	assert.Equal(t, "role", e.Resource)
	assert.Equal(t, "Moderator", e.ResourceID)
	assert.Equal(t, "user-42", e.Subject)
	assert.Equal(t, audit.ResultSuccess, e.Result)
	assert.Equal(t, "never", e.Metadata["expires_at"])
	assert.Equal(t, now, e.CreatedAt)
}

func TestLogger_LogError(t *testing.T) {
	t.Parallel()

	storage := audit.NewMemoryStorage()
	log := audit.NewLogger(storage)

	err := log.LogError(context.Background(), "rbac.role_deleted", errors.New("role in use"),
		audit.WithActor("admin-2"),
	)
	require.NoError(t, err)

	events, err := storage.Query(context.Background(), audit.Criteria{Result: audit.ResultError})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "role in use", events[0].Error)
	assert.Equal(t, "admin-2", events[0].ActorID)
}

func TestLogger_RejectsEmptyAction(t *testing.T) {
	t.Parallel()

	storage := audit.NewMemoryStorage()
	log := audit.NewLogger(storage)

	err := log.Log(context.Background(), "")
	assert.True(t, errors.Is(err, audit.ErrEventValidation))

	events, err := storage.Query(context.Background(), audit.Criteria{})
	require.NoError(t, err)
	assert.Empty(t, events)
}
