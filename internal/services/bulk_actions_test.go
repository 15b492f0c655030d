package services

import (
	"context"
	"testing"

	"github.com/nursdev/lms-notifications/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBulkApplyRead(t *testing.T) {
	svc, store, _ := newTestService()
	seedClass(store)
	ctx := context.Background()

	var ids []string
	for _, title := range []string{"a", "b", "c"} {
		n, _, err := svc.CreateNotification(ctx, CreateNotificationInput{
			Title: title, Message: "m", SenderID: "i1", Target: "user:s1",
		})
		require.NoError(t, err)
		ids = append(ids, n.ID)
	}
	g, _, err := svc.CreateNotification(ctx, CreateNotificationInput{
		Title: "global", Message: "m", SenderID: "i1", Target: "all",
	})
	require.NoError(t, err)

	// three rows apply, the global and the unknown id are skipped
	ids = append(ids, g.ID, "nope")
	applied, skipped, err := svc.BulkApply(ctx, ids, "s1", BulkRead)
	require.NoError(t, err)
	assert.Equal(t, 3, applied)
	assert.Equal(t, 2, skipped)
	assert.Equal(t, len(ids), applied+skipped)

	for _, id := range ids[:3] {
		d, err := store.GetDelivery(ctx, id, "s1")
		require.NoError(t, err)
		assert.True(t, d.IsRead)
	}
}

func TestBulkApplyDeleteAndRestore(t *testing.T) {
	svc, store, _ := newTestService()
	seedClass(store)
	ctx := context.Background()

	a, _, err := svc.CreateNotification(ctx, CreateNotificationInput{
		Title: "a", Message: "m", SenderID: "i1", Target: "user:s1",
	})
	require.NoError(t, err)
	g, _, err := svc.CreateNotification(ctx, CreateNotificationInput{
		Title: "g", Message: "m", SenderID: "i1", Target: "all",
	})
	require.NoError(t, err)

	// bulk delete covers globals via dismissal
	applied, skipped, err := svc.BulkApply(ctx, []string{a.ID, g.ID}, "s1", BulkDelete)
	require.NoError(t, err)
	assert.Equal(t, 2, applied)
	assert.Zero(t, skipped)

	feed, err := svc.ListForUser(ctx, "s1", models.RoleStudent, models.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, feed)

	// restore both
	applied, skipped, err = svc.BulkApply(ctx, []string{a.ID, g.ID}, "s1", BulkRestore)
	require.NoError(t, err)
	assert.Equal(t, 2, applied)
	assert.Zero(t, skipped)

	// restoring again skips the global (no dismissal left to remove)
	applied, skipped, err = svc.BulkApply(ctx, []string{a.ID, g.ID}, "s1", BulkRestore)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)
	assert.Equal(t, 1, skipped)
}

func TestBulkApplyArchiveSkipsGlobals(t *testing.T) {
	svc, store, _ := newTestService()
	seedClass(store)
	ctx := context.Background()

	a, _, err := svc.CreateNotification(ctx, CreateNotificationInput{
		Title: "a", Message: "m", SenderID: "i1", Target: "user:s1",
	})
	require.NoError(t, err)
	g, _, err := svc.CreateNotification(ctx, CreateNotificationInput{
		Title: "g", Message: "m", SenderID: "i1", Target: "all",
	})
	require.NoError(t, err)

	applied, skipped, err := svc.BulkApply(ctx, []string{a.ID, g.ID}, "s1", BulkArchive)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)
	assert.Equal(t, 1, skipped)
}

func TestBulkApplyUnknownAction(t *testing.T) {
	svc, store, _ := newTestService()
	seedClass(store)

	_, _, err := svc.BulkApply(context.Background(), []string{"x"}, "s1", BulkAction("explode"))
	assert.ErrorIs(t, err, ErrUnsupportedOperation)
}
