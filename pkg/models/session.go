package models

import "time"

// Session is the durable record of one conversation: its ordered message
// history, accumulated usage, and timestamps. Session ids are opaque
// strings chosen by the caller.
type Session struct {
	ID        string     `json:"id"`
	Messages  []Message  `json:"messages"`
	Usage     UsageInfo  `json:"usage"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// SessionSummary is the lightweight listing shape returned by
// SessionBackend.ListSessions.
type SessionSummary struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}
