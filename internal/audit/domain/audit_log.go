package domain

import "time"

// Auth event actions recorded by the identity service.
const (
	ActionAccountCreated = "account_created"
	ActionLogin          = "login"
	ActionLoginNewDevice = "login_new_device"
	ActionLogout         = "logout"
)

// AuditLog represents an audit event. UserID is empty for anonymous events.
type AuditLog struct {
	ID        string
	UserID    string
	Action    string
	Resource  string
	IP        string
	Metadata  string
	CreatedAt time.Time
}
