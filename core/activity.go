package core

import (
	"context"
	"fmt"
	"time"
)

// activity actions
const (
	ActivityDraftSaved       = "profile.draft_saved"
	ActivityProfileSubmitted = "profile.submitted"
	ActivityProfileRetracted = "profile.retracted"
	ActivityFieldCreated     = "field.created"
	ActivityFieldUpdated     = "field.updated"
	ActivityFieldsReordered  = "field.reordered"
	ActivityDeadlineChanged  = "setting.deadline_changed"
	ActivityRosterImported   = "user.roster_imported"
)

type Activity struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Action    string    `json:"action" db:"action"`
	Details   string    `json:"details" db:"details"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ActivityRecorder appends entries to the activity log.
type ActivityRecorder interface {
	RecordActivity(ctx context.Context, act Activity) error
}

// RecordActivity records act on a best-effort basis: failures are logged and discarded.
func RecordActivity(ctx context.Context, rec ActivityRecorder, logger Logger, userID, action, details string) {
	if rec == nil {
		return
	}
	act := Activity{
		UserID:    userID,
		Action:    action,
		Details:   details,
		CreatedAt: time.Now().UTC(),
	}
	if err := rec.RecordActivity(ctx, act); err != nil && logger != nil {
		logger.Warn(fmt.Sprintf("recording activity %q: %v", action, err), err)
	}
}
