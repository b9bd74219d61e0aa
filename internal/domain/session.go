package domain

import "time"

// RoomState enumerates how the original photo enters the workflow.
type RoomState string

const (
	RoomStateAlreadyEmpty  RoomState = "already_empty"
	RoomStateGenerateEmpty RoomState = "generate_empty"
)

// Session groups the generation attempts of one end-to-end staging
// workflow against a single original photo.
type Session struct {
	ID                   string    `json:"id"`
	UserID               string    `json:"user_id"`
	OriginalImageURL     string    `json:"original_image_url"`
	RoomState            RoomState `json:"room_state"`
	SelectedEmptyRoomURL string    `json:"selected_empty_room_url,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}
