package domain

import "time"

// BatchStatus represents the aggregate state of a batch.
type BatchStatus string

const (
	BatchStatusPending    BatchStatus = "pending"
	BatchStatusProcessing BatchStatus = "processing"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusFailed     BatchStatus = "failed"
)

// Terminal reports whether no further transition can occur from s.
func (s BatchStatus) Terminal() bool {
	return s == BatchStatusCompleted || s == BatchStatusFailed
}

// ItemStatus represents the state of a single item within a batch.
type ItemStatus string

const (
	ItemStatusPending    ItemStatus = "pending"
	ItemStatusProcessing ItemStatus = "processing"
	ItemStatusCompleted  ItemStatus = "completed"
	ItemStatusFailed     ItemStatus = "failed"
)

// ProgressCounts is the per-status item breakdown of a batch. It is always
// recomputed from the item list, never maintained as a running total.
type ProgressCounts struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// Item is one unit of work within a batch. Error and Result are mutually
// exclusive and only populated once the item reaches a terminal status.
type Item struct {
	ID          string     `json:"id"`
	DisplayName string     `json:"display_name"`
	Status      ItemStatus `json:"status"`
	Error       string     `json:"error,omitempty"`
	Result      *Metadata  `json:"result,omitempty"`
}

// Batch is a set of items submitted together, tracked as one unit.
type Batch struct {
	ID                     string         `json:"id"`
	OwnerSessionID         string         `json:"owner_session_id"`
	Status                 BatchStatus    `json:"status"`
	Items                  []*Item        `json:"items"`
	Progress               ProgressCounts `json:"progress"`
	EstimatedTimeRemaining time.Duration  `json:"estimated_time_remaining"`
	AvgItemDuration        time.Duration  `json:"avg_item_duration"`
	CreatedAt              time.Time      `json:"created_at"`
	UpdatedAt              time.Time      `json:"updated_at"`
	CompletedAt            *time.Time     `json:"completed_at,omitempty"`
}

// ItemByID returns the item with the given id, or nil.
func (b *Batch) ItemByID(id string) *Item {
	for _, it := range b.Items {
		if it.ID == id {
			return it
		}
	}
	return nil
}

// ItemByName returns the item with the given display name, or nil.
func (b *Batch) ItemByName(name string) *Item {
	for _, it := range b.Items {
		if it.DisplayName == name {
			return it
		}
	}
	return nil
}
