package models

import "time"

type ApplicationStatus string

const (
	ApplicationPending  ApplicationStatus = "pending"
	ApplicationApproved ApplicationStatus = "approved"
	ApplicationRejected ApplicationStatus = "rejected"
)

// Application is a submitted staff application.
type Application struct {
	ID          int64
	UserID      string
	UserTag     string
	Username    string
	Answers     map[string]string
	Status      ApplicationStatus
	SubmittedAt time.Time
	ReviewedAt  *time.Time
	ReviewedBy  *string
	Notes       *string
}

// ApplicationEvent is one row of a user's application history.
type ApplicationEvent struct {
	ID        int64     `db:"id"`
	UserID    string    `db:"user_id"`
	Action    string    `db:"action"`
	Timestamp time.Time `db:"timestamp"`
	Details   *string   `db:"details"`
}
