package domain

import "errors"

var (
	ErrNotificationNotFound  = errors.New("notification not found")
	ErrDuplicateNotification = errors.New("duplicate notification")
	ErrRateLimited           = errors.New("notification rate limit exceeded")
	ErrInvalidNotification   = errors.New("invalid notification")
	ErrStreamClosed          = errors.New("stream closed")
)
