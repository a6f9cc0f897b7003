package domain

import "time"

// Session tracks per-caller usage of the free quota. Sessions are created on
// first contact and expire after a period of inactivity.
type Session struct {
	ID              string    `json:"id"`
	ImagesProcessed int       `json:"images_processed"`
	CreatedAt       time.Time `json:"created_at"`
	LastActivityAt  time.Time `json:"last_activity_at"`
}

// ExpiredAt reports whether the session's inactivity window has elapsed at t.
func (s *Session) ExpiredAt(t time.Time, window time.Duration) bool {
	return t.Sub(s.LastActivityAt) > window
}
