package model

import "time"

// Notification is an activity entry in the user's feed.
type Notification struct {
	// ID is the unique identifier for this notification.
	ID string `json:"_id"`

	// Message is the human-readable notification text.
	Message string `json:"message"`

	// Read indicates whether the user has seen this notification.
	Read bool `json:"isRead"`

	// BoardID links the notification to a board, when relevant.
	BoardID string `json:"boardId,omitempty"`

	// CreatedAt is when this notification was generated.
	CreatedAt time.Time `json:"createdAt"`
}

// NotificationPage is one page of the paginated notification feed.
type NotificationPage struct {
	Notifications []Notification `json:"notifications"`
	TotalPages    int            `json:"totalPages"`
	CurrentPage   int            `json:"currentPage"`
}
