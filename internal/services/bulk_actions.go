package services

import (
	"context"
	"errors"
	"fmt"
)

// BulkAction is a state transition applied to many notifications at once.
type BulkAction string

const (
	BulkRead      BulkAction = "read"
	BulkArchive   BulkAction = "archive"
	BulkUnarchive BulkAction = "unarchive"
	BulkDelete    BulkAction = "delete"
	BulkRestore   BulkAction = "restore"
)

func (a BulkAction) Valid() bool {
	switch a {
	case BulkRead, BulkArchive, BulkUnarchive, BulkDelete, BulkRestore:
		return true
	}
	return false
}

// BulkApply runs the action against every (notification, user) pair the user
// owns a row for. Ids without a matching row, and global ids for actions
// globals do not support, are skipped rather than errors. Each id goes through the
// same single-item transition code, so the delete-wins ordering rule holds
// under bulk/single interleaving. Returns (applied, skipped);
// applied+skipped always equals len(notificationIDs).
func (s *NotificationService) BulkApply(ctx context.Context, notificationIDs []string, userID string, action BulkAction) (int, int, error) {
	if !action.Valid() {
		return 0, 0, fmt.Errorf("%w: unknown bulk action %q", ErrUnsupportedOperation, action)
	}

	applied, skipped := 0, 0
	for _, id := range notificationIDs {
		err := s.applySingle(ctx, id, userID, action)
		switch {
		case err == nil:
			applied++
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrUnsupportedOperation):
			skipped++
		default:
			return applied, skipped, err
		}
	}
	return applied, skipped, nil
}

func (s *NotificationService) applySingle(ctx context.Context, notificationID, userID string, action BulkAction) error {
	switch action {
	case BulkRead:
		// A global id has no row to mark; MarkRead would report no-op
		// success, but in bulk terms there is nothing to apply.
		n, err := s.getNotification(ctx, notificationID)
		if err != nil {
			return err
		}
		if n.IsGlobal {
			return ErrUnsupportedOperation
		}
		return s.MarkRead(ctx, notificationID, userID)
	case BulkArchive:
		return s.Archive(ctx, notificationID, userID)
	case BulkUnarchive:
		return s.Unarchive(ctx, notificationID, userID)
	case BulkDelete:
		return s.DeleteForUser(ctx, notificationID, userID)
	case BulkRestore:
		return s.restoreForBulk(ctx, notificationID, userID)
	}
	return fmt.Errorf("%w: unknown bulk action %q", ErrUnsupportedOperation, action)
}

// restoreForBulk mirrors Restore but reports a global id without a dismissal
// as skipped rather than silently succeeding, so the applied count only
// covers rows that actually changed.
func (s *NotificationService) restoreForBulk(ctx context.Context, notificationID, userID string) error {
	n, err := s.getNotification(ctx, notificationID)
	if err != nil {
		return err
	}
	if n.IsGlobal {
		removed, err := s.repo.RemoveDismissal(ctx, notificationID, userID)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if !removed {
			return ErrNotFound
		}
		return nil
	}
	return s.Restore(ctx, notificationID, userID)
}
