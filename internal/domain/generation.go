package domain

import "time"

// GenerationType enumerates the two kinds of attempts a session records.
type GenerationType string

const (
	GenerationTypeEmptyRoom GenerationType = "empty_room"
	GenerationTypeStaging   GenerationType = "staging"
)

// GenerationStatus enumerates generation record states.
type GenerationStatus string

const (
	GenerationStatusPending    GenerationStatus = "pending"
	GenerationStatusProcessing GenerationStatus = "processing"
	GenerationStatusCompleted  GenerationStatus = "completed"
	GenerationStatusFailed     GenerationStatus = "failed"
)

// Generation is one attempt within a session. Number is a per
// (session, type) retry counter: strictly increasing, gapless, never
// reused, even for failed attempts.
type Generation struct {
	ID              string           `json:"id"`
	SessionID       string           `json:"session_id"`
	Type            GenerationType   `json:"type"`
	Number          int              `json:"generation_number"`
	InputImageURL   string           `json:"input_image_url"`
	OutputImageURLs []string         `json:"output_image_urls"`
	Style           string           `json:"style,omitempty"`
	RoomType        string           `json:"room_type,omitempty"`
	CreditsCost     int              `json:"credits_cost"`
	Status          GenerationStatus `json:"status"`
	ErrorMessage    string           `json:"error_message,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	CompletedAt     *time.Time       `json:"completed_at,omitempty"`
}
