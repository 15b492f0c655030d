package services

import (
	"context"
	"testing"
	"time"

	"github.com/nursdev/lms-notifications/internal/models"
	"github.com/nursdev/lms-notifications/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureBroadcaster struct {
	created []capturedCreate
}

type capturedCreate struct {
	notification *models.Notification
	recipients   []string
}

func (b *captureBroadcaster) NotificationCreated(n *models.Notification, recipients []string) {
	b.created = append(b.created, capturedCreate{notification: n, recipients: recipients})
}

func newTestService() (*NotificationService, *repository.MemoryStore, *captureBroadcaster) {
	store := repository.NewMemoryStore()
	bc := &captureBroadcaster{}
	svc := NewNotificationService(store, store, NewTargetResolver(store), bc)
	return svc, store, bc
}

func seedClass(store *repository.MemoryStore) {
	store.AddUser(models.User{ID: "s1", Username: "ayana", Role: models.RoleStudent, Active: true})
	store.AddUser(models.User{ID: "s2", Username: "daniyar", Role: models.RoleStudent, Active: true})
	store.AddUser(models.User{ID: "s3", Username: "madina", Role: models.RoleStudent, Active: true})
	store.AddUser(models.User{ID: "i1", Username: "prof", Role: models.RoleInstructor, Active: true})
}

func TestCreateNotificationFanOut(t *testing.T) {
	svc, store, bc := newTestService()
	seedClass(store)
	ctx := context.Background()

	n, delivered, err := svc.CreateNotification(ctx, CreateNotificationInput{
		Title:    "Assignment posted",
		Message:  "HW3 is up",
		SenderID: "i1",
		Target:   "role:student",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, delivered)
	assert.False(t, n.IsGlobal)
	assert.Equal(t, models.StatusActive, n.Status)
	assert.Equal(t, models.TypeInfo, n.Type)
	assert.Equal(t, models.PriorityMedium, n.Priority)

	// one delivery row per resolved recipient
	deliveries, err := store.ListDeliveriesForNotification(ctx, n.ID)
	require.NoError(t, err)
	assert.Len(t, deliveries, 3)

	// realtime emit carries the same recipient set
	require.Len(t, bc.created, 1)
	assert.ElementsMatch(t, []string{"s1", "s2", "s3"}, bc.created[0].recipients)

	// the instructor got no row
	_, err = store.GetDelivery(ctx, n.ID, "i1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestCreateNotificationListDropsInvalidIDs(t *testing.T) {
	svc, store, _ := newTestService()
	seedClass(store)
	ctx := context.Background()

	n, delivered, err := svc.CreateNotification(ctx, CreateNotificationInput{
		Title:    "Office hours moved",
		Message:  "Now at 3pm",
		SenderID: "i1",
		Target:   "list:s1,ghost,s2",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, delivered)

	deliveries, err := store.ListDeliveriesForNotification(ctx, n.ID)
	require.NoError(t, err)
	assert.Len(t, deliveries, 2)
}

func TestCreateNotificationListDeduplicatesIDs(t *testing.T) {
	svc, store, _ := newTestService()
	seedClass(store)
	ctx := context.Background()

	n, delivered, err := svc.CreateNotification(ctx, CreateNotificationInput{
		Title:    "Quiz reminder",
		Message:  "Quiz 2 is tomorrow",
		SenderID: "i1",
		Target:   "list:s1,s1,s2,s1",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, delivered)

	deliveries, err := store.ListDeliveriesForNotification(ctx, n.ID)
	require.NoError(t, err)
	assert.Len(t, deliveries, 2)
}

func TestCreateNotificationValidation(t *testing.T) {
	svc, store, _ := newTestService()
	seedClass(store)
	ctx := context.Background()

	_, _, err := svc.CreateNotification(ctx, CreateNotificationInput{
		Title: "  ", Message: "m", Target: "all",
	})
	assert.ErrorIs(t, err, ErrInvalidNotification)

	_, _, err = svc.CreateNotification(ctx, CreateNotificationInput{
		Title: "t", Message: "m", Target: "everyone",
	})
	assert.ErrorIs(t, err, ErrInvalidTarget)

	_, _, err = svc.CreateNotification(ctx, CreateNotificationInput{
		Title: "t", Message: "m", Target: "all", Type: "shout",
	})
	assert.ErrorIs(t, err, ErrInvalidNotification)

	_, _, err = svc.CreateNotification(ctx, CreateNotificationInput{
		Title: "t", Message: "m", Target: "list:ghost",
	})
	assert.ErrorIs(t, err, ErrInvalidTarget)
}

func TestGlobalNotificationDismissal(t *testing.T) {
	svc, store, _ := newTestService()
	seedClass(store)
	ctx := context.Background()

	n, delivered, err := svc.CreateNotification(ctx, CreateNotificationInput{
		Title:    "Maintenance window",
		Message:  "Saturday 02:00",
		SenderID: "i1",
		Target:   "all",
	})
	require.NoError(t, err)
	assert.True(t, n.IsGlobal)
	assert.Zero(t, delivered, "global notifications create no delivery rows")

	// visible to everyone
	for _, userID := range []string{"s1", "s2", "i1"} {
		feed, err := svc.ListForUser(ctx, userID, models.RoleStudent, models.ListFilter{})
		require.NoError(t, err)
		require.Len(t, feed, 1)
		assert.Equal(t, n.ID, feed[0].ID)
	}

	// s1 dismisses; only s1's feed changes
	require.NoError(t, svc.DeleteForUser(ctx, n.ID, "s1"))

	feed, err := svc.ListForUser(ctx, "s1", models.RoleStudent, models.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, feed)

	feed, err = svc.ListForUser(ctx, "s2", models.RoleStudent, models.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, feed, 1)

	// dismissed global shows up again with include_deleted
	feed, err = svc.ListForUser(ctx, "s1", models.RoleStudent, models.ListFilter{IncludeDeleted: true})
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.True(t, feed[0].IsDeleted)

	// restore removes the dismissal entirely
	require.NoError(t, svc.Restore(ctx, n.ID, "s1"))
	feed, err = svc.ListForUser(ctx, "s1", models.RoleStudent, models.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, feed, 1)
}

func TestGlobalRoleTargeting(t *testing.T) {
	svc, store, _ := newTestService()
	seedClass(store)
	ctx := context.Background()

	_, _, err := svc.CreateNotification(ctx, CreateNotificationInput{
		Title:    "Grading deadline",
		Message:  "Submit grades by Friday",
		SenderID: "i1",
		Target:   "role:*",
	})
	require.NoError(t, err)

	// role:* reaches every role
	feed, err := svc.ListForUser(ctx, "s1", models.RoleStudent, models.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, feed, 1)

	feed, err = svc.ListForUser(ctx, "i1", models.RoleInstructor, models.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, feed, 1)
}

func TestMarkReadSemantics(t *testing.T) {
	svc, store, _ := newTestService()
	seedClass(store)
	ctx := context.Background()

	n, _, err := svc.CreateNotification(ctx, CreateNotificationInput{
		Title: "Quiz tomorrow", Message: "Chapter 4", SenderID: "i1", Target: "user:s1",
	})
	require.NoError(t, err)

	require.NoError(t, svc.MarkRead(ctx, n.ID, "s1"))
	d, err := store.GetDelivery(ctx, n.ID, "s1")
	require.NoError(t, err)
	assert.True(t, d.IsRead)
	require.NotNil(t, d.ReadAt)

	// marking again is idempotent
	require.NoError(t, svc.MarkRead(ctx, n.ID, "s1"))

	// a user who never received the notification gets NotFound
	assert.ErrorIs(t, svc.MarkRead(ctx, n.ID, "s2"), ErrNotFound)

	// unknown notification id
	assert.ErrorIs(t, svc.MarkRead(ctx, "nope", "s1"), ErrNotFound)

	// global notifications carry no read state: no-op success
	g, _, err := svc.CreateNotification(ctx, CreateNotificationInput{
		Title: "Holiday", Message: "Campus closed", SenderID: "i1", Target: "all",
	})
	require.NoError(t, err)
	assert.NoError(t, svc.MarkRead(ctx, g.ID, "s1"))
}

func TestDeleteWinsOverLaterWrites(t *testing.T) {
	svc, store, _ := newTestService()
	seedClass(store)
	ctx := context.Background()

	n, _, err := svc.CreateNotification(ctx, CreateNotificationInput{
		Title: "Reminder", Message: "r", SenderID: "i1", Target: "user:s1",
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteForUser(ctx, n.ID, "s1"))

	// a read arriving after the delete is dropped without error
	require.NoError(t, svc.MarkRead(ctx, n.ID, "s1"))
	d, err := store.GetDelivery(ctx, n.ID, "s1")
	require.NoError(t, err)
	assert.True(t, d.IsDeleted)
	assert.False(t, d.IsRead, "read must not land on a deleted delivery")

	// same for archive
	require.NoError(t, svc.Archive(ctx, n.ID, "s1"))
	d, err = store.GetDelivery(ctx, n.ID, "s1")
	require.NoError(t, err)
	assert.False(t, d.IsArchived)
}

func TestArchiveSemantics(t *testing.T) {
	svc, store, _ := newTestService()
	seedClass(store)
	ctx := context.Background()

	n, _, err := svc.CreateNotification(ctx, CreateNotificationInput{
		Title: "Syllabus updated", Message: "See week 6", SenderID: "i1", Target: "user:s1",
	})
	require.NoError(t, err)

	require.NoError(t, svc.MarkRead(ctx, n.ID, "s1"))
	require.NoError(t, svc.Archive(ctx, n.ID, "s1"))
	require.NoError(t, svc.Archive(ctx, n.ID, "s1"), "archive is idempotent")

	// archived items leave the default feed
	feed, err := svc.ListForUser(ctx, "s1", models.RoleStudent, models.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, feed)

	feed, err = svc.ListForUser(ctx, "s1", models.RoleStudent, models.ListFilter{IncludeArchived: true})
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.True(t, feed[0].IsArchived)
	assert.True(t, feed[0].IsRead, "unarchive state is independent of read state")

	// unarchive restores visibility and keeps the read flag
	require.NoError(t, svc.Unarchive(ctx, n.ID, "s1"))
	feed, err = svc.ListForUser(ctx, "s1", models.RoleStudent, models.ListFilter{})
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.True(t, feed[0].IsRead)

	// globals cannot be archived
	g, _, err := svc.CreateNotification(ctx, CreateNotificationInput{
		Title: "Notice", Message: "n", SenderID: "i1", Target: "all",
	})
	require.NoError(t, err)
	assert.ErrorIs(t, svc.Archive(ctx, g.ID, "s1"), ErrUnsupportedOperation)
}

func TestRestorePreservesPriorFlags(t *testing.T) {
	svc, store, _ := newTestService()
	seedClass(store)
	ctx := context.Background()

	n, _, err := svc.CreateNotification(ctx, CreateNotificationInput{
		Title: "Grade posted", Message: "HW2", SenderID: "i1", Target: "user:s1",
	})
	require.NoError(t, err)

	require.NoError(t, svc.MarkRead(ctx, n.ID, "s1"))
	require.NoError(t, svc.DeleteForUser(ctx, n.ID, "s1"))
	require.NoError(t, svc.Restore(ctx, n.ID, "s1"))

	d, err := store.GetDelivery(ctx, n.ID, "s1")
	require.NoError(t, err)
	assert.False(t, d.IsDeleted)
	assert.Nil(t, d.DeletedAt)
	assert.True(t, d.IsRead, "restore returns the delivery with its pre-delete flags")
}

func TestListForUserMergesAndFilters(t *testing.T) {
	svc, store, _ := newTestService()
	seedClass(store)
	ctx := context.Background()

	_, _, err := svc.CreateNotification(ctx, CreateNotificationInput{
		Title: "Personal", Message: "m", Type: models.TypeWarning, SenderID: "i1", Target: "user:s1",
	})
	require.NoError(t, err)
	_, _, err = svc.CreateNotification(ctx, CreateNotificationInput{
		Title: "Global", Message: "m", Type: models.TypeInfo, SenderID: "i1", Target: "all",
	})
	require.NoError(t, err)

	feed, err := svc.ListForUser(ctx, "s1", models.RoleStudent, models.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, feed, 2, "personal and global feeds merge")

	warnings, err := svc.ListForUser(ctx, "s1", models.RoleStudent, models.ListFilter{Type: models.TypeWarning})
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Equal(t, "Personal", warnings[0].Title)

	// filters apply to globals the same way
	info, err := svc.ListForUser(ctx, "s1", models.RoleStudent, models.ListFilter{Type: models.TypeInfo})
	require.NoError(t, err)
	require.Len(t, info, 1)
	assert.Equal(t, "Global", info[0].Title)
}

func TestScheduledNotificationLifecycle(t *testing.T) {
	svc, store, bc := newTestService()
	seedClass(store)
	ctx := context.Background()

	future := time.Now().Add(time.Hour)
	n, delivered, err := svc.CreateNotification(ctx, CreateNotificationInput{
		Title: "Exam reminder", Message: "Midterm Monday", SenderID: "i1",
		Target: "role:student", ScheduledFor: &future,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusScheduled, n.Status)
	assert.Zero(t, delivered)
	assert.Empty(t, bc.created, "no realtime event before activation")

	// not visible while pending
	feed, err := svc.ListForUser(ctx, "s1", models.RoleStudent, models.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, feed)

	scheduled, err := svc.ListScheduled(ctx)
	require.NoError(t, err)
	require.Len(t, scheduled, 1)

	// a student enrolling before activation is included in the snapshot
	store.AddUser(models.User{ID: "s4", Role: models.RoleStudent, Active: true})

	activated, err := svc.ActivateDue(ctx, future.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, activated)

	deliveries, err := store.ListDeliveriesForNotification(ctx, n.ID)
	require.NoError(t, err)
	assert.Len(t, deliveries, 4, "recipients resolve at activation time")
	require.Len(t, bc.created, 1)

	// second pass finds nothing due
	activated, err = svc.ActivateDue(ctx, future.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, activated)
}

func TestCancelScheduled(t *testing.T) {
	svc, store, _ := newTestService()
	seedClass(store)
	ctx := context.Background()

	future := time.Now().Add(time.Hour)
	n, _, err := svc.CreateNotification(ctx, CreateNotificationInput{
		Title: "Draft", Message: "m", SenderID: "i1", Target: "role:student", ScheduledFor: &future,
	})
	require.NoError(t, err)

	require.NoError(t, svc.CancelScheduled(ctx, n.ID))

	// cancelled notifications never activate
	activated, err := svc.ActivateDue(ctx, future.Add(time.Minute))
	require.NoError(t, err)
	assert.Zero(t, activated)

	// cancelling an active notification is refused
	active, _, err := svc.CreateNotification(ctx, CreateNotificationInput{
		Title: "Live", Message: "m", SenderID: "i1", Target: "user:s1",
	})
	require.NoError(t, err)
	assert.ErrorIs(t, svc.CancelScheduled(ctx, active.ID), ErrUnsupportedOperation)

	assert.ErrorIs(t, svc.CancelScheduled(ctx, "nope"), ErrNotFound)
}

func TestStats(t *testing.T) {
	svc, store, _ := newTestService()
	seedClass(store)
	ctx := context.Background()

	a, _, err := svc.CreateNotification(ctx, CreateNotificationInput{
		Title: "A", Message: "m", SenderID: "i1", Target: "user:s1",
	})
	require.NoError(t, err)
	b, _, err := svc.CreateNotification(ctx, CreateNotificationInput{
		Title: "B", Message: "m", SenderID: "i1", Target: "user:s1",
	})
	require.NoError(t, err)
	_, _, err = svc.CreateNotification(ctx, CreateNotificationInput{
		Title: "C", Message: "m", SenderID: "i1", Target: "all",
	})
	require.NoError(t, err)

	require.NoError(t, svc.MarkRead(ctx, a.ID, "s1"))
	require.NoError(t, svc.DeleteForUser(ctx, b.ID, "s1"))

	stats, err := svc.Stats(ctx, "s1", models.RoleStudent)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Unread, "deleted-but-unread row and the global both count")
	assert.Equal(t, 1, stats.Read)
	assert.Equal(t, 1, stats.Deleted)
	assert.Equal(t, 2, stats.Active)

	unread, err := svc.UnreadCount(ctx, "s1", models.RoleStudent)
	require.NoError(t, err)
	assert.Equal(t, stats.Unread, unread)
}

func TestMarkAllRead(t *testing.T) {
	svc, store, _ := newTestService()
	seedClass(store)
	ctx := context.Background()

	for _, title := range []string{"one", "two", "three"} {
		_, _, err := svc.CreateNotification(ctx, CreateNotificationInput{
			Title: title, Message: "m", SenderID: "i1", Target: "user:s1",
		})
		require.NoError(t, err)
	}

	count, err := svc.MarkAllRead(ctx, "s1")
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)

	count, err = svc.MarkAllRead(ctx, "s1")
	require.NoError(t, err)
	assert.Zero(t, count, "already-read rows are not touched again")
}

func TestAdminListAndRecipients(t *testing.T) {
	svc, store, _ := newTestService()
	seedClass(store)
	ctx := context.Background()

	n, _, err := svc.CreateNotification(ctx, CreateNotificationInput{
		Title: "Audit", Message: "m", SenderID: "i1", Target: "role:student",
	})
	require.NoError(t, err)
	require.NoError(t, svc.MarkRead(ctx, n.ID, "s1"))
	require.NoError(t, svc.DeleteForUser(ctx, n.ID, "s2"))

	list, err := svc.AdminList(ctx, models.AdminFilter{SenderID: "i1"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 3, list[0].RecipientStats.Total)
	assert.Equal(t, 1, list[0].RecipientStats.Read)
	assert.Equal(t, 1, list[0].RecipientStats.Deleted)

	recipients, err := svc.Recipients(ctx, n.ID)
	require.NoError(t, err)
	require.Len(t, recipients, 3)
	byUser := make(map[string]models.Recipient)
	for _, r := range recipients {
		byUser[r.UserID] = r
	}
	assert.Equal(t, "ayana", byUser["s1"].Username)
	assert.True(t, byUser["s1"].IsRead)
	assert.True(t, byUser["s2"].IsDeleted)

	_, err = svc.Recipients(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAdminUpdateAndDelete(t *testing.T) {
	svc, store, _ := newTestService()
	seedClass(store)
	ctx := context.Background()

	n, _, err := svc.CreateNotification(ctx, CreateNotificationInput{
		Title: "Before", Message: "m", SenderID: "i1", Target: "user:s1",
	})
	require.NoError(t, err)

	title := "After"
	prio := models.PriorityHigh
	require.NoError(t, svc.AdminUpdate(ctx, n.ID, AdminUpdateInput{Title: &title, Priority: &prio}))

	got, err := store.GetNotification(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, "After", got.Title)
	assert.Equal(t, models.PriorityHigh, got.Priority)

	bad := models.Priority("extreme")
	assert.ErrorIs(t, svc.AdminUpdate(ctx, n.ID, AdminUpdateInput{Priority: &bad}), ErrInvalidNotification)
	assert.ErrorIs(t, svc.AdminUpdate(ctx, n.ID, AdminUpdateInput{}), ErrInvalidNotification)
	assert.ErrorIs(t, svc.AdminUpdate(ctx, "nope", AdminUpdateInput{Title: &title}), ErrNotFound)

	// hard delete cascades delivery rows
	require.NoError(t, svc.AdminDelete(ctx, n.ID))
	_, err = store.GetDelivery(ctx, n.ID, "s1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.ErrorIs(t, svc.AdminDelete(ctx, n.ID), ErrNotFound)
}
