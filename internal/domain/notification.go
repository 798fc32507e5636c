package domain

import (
	"context"
	"time"
)

type RecipientKind string

const (
	RecipientEmployee RecipientKind = "employee"
	// RecipientAdmin addresses a tenant's admin channel; the recipient id is the tenant id.
	RecipientAdmin RecipientKind = "admin"
)

const (
	NotifyLateArrival        = "late_arrival"
	NotifyCheckInReminder    = "check_in_reminder"
	NotifyCheckoutReminder   = "checkout_reminder"
	NotifyAutoCheckout       = "auto_checkout"
	NotifyCorrectionRequest  = "correction_request"
	NotifyCorrectionApproved = "correction_approved"
	NotifyCorrectionRejected = "correction_rejected"
)

type Notification struct {
	RecipientID   string         `json:"recipient_id"`
	RecipientKind RecipientKind  `json:"recipient_kind"`
	Type          string         `json:"type"`
	Title         string         `json:"title"`
	Message       string         `json:"message"`
	Data          map[string]any `json:"data,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Notifier delivers a notification. Callers log failures and carry on.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
