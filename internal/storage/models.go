package storage

import "time"

// HistoryEntry is one completed enhancement. Entries are never edited.
type HistoryEntry struct {
	ID             string    `json:"id"`
	OriginalPrompt string    `json:"original_prompt,omitempty"`
	EnhancedPrompt string    `json:"enhanced_prompt"`
	Target         string    `json:"target"`
	Timestamp      time.Time `json:"timestamp"`
}

// NewHistoryEntry is a HistoryEntry before the store assigns ID and Timestamp.
type NewHistoryEntry struct {
	OriginalPrompt string `json:"original_prompt,omitempty"`
	EnhancedPrompt string `json:"enhanced_prompt"`
	Target         string `json:"target"`
}

type Collection struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Color       string    `json:"color,omitempty"`
	IsDefault   bool      `json:"is_default"`
	SortOrder   int       `json:"sort_order"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type NewCollection struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Color       string `json:"color,omitempty"`
}

// CollectionPatch holds the fields to change; nil fields are left alone.
type CollectionPatch struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Color       *string `json:"color,omitempty"`
	SortOrder   *int    `json:"sort_order,omitempty"`
}

// DeletePolicy decides what happens to saved prompts in a deleted collection.
type DeletePolicy int

const (
	// DeleteReject refuses to delete a collection that still has members.
	DeleteReject DeletePolicy = iota
	// DeleteCascade deletes the members together with the collection.
	DeleteCascade
)

type SavedPrompt struct {
	ID             string    `json:"id"`
	OriginalPrompt string    `json:"original_prompt"`
	EnhancedPrompt string    `json:"enhanced_prompt"`
	Target         string    `json:"target"`
	CollectionID   string    `json:"collection_id"`
	Notes          string    `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type NewSavedPrompt struct {
	OriginalPrompt string `json:"original_prompt"`
	EnhancedPrompt string `json:"enhanced_prompt"`
	Target         string `json:"target"`
	CollectionID   string `json:"collection_id"`
	Notes          string `json:"notes,omitempty"`
}

type SavedPromptPatch struct {
	EnhancedPrompt *string `json:"enhanced_prompt,omitempty"`
	CollectionID   *string `json:"collection_id,omitempty"`
	Notes          *string `json:"notes,omitempty"`
}

// SavedPromptFilter narrows List. Empty fields match everything.
type SavedPromptFilter struct {
	CollectionID string
	Target       string
}
