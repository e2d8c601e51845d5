package files

import "time"

// File is stored metadata about an uploaded object. The bytes live in
// object storage; only the descriptor is tracked here.
type File struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	MimeType   string    `json:"mimeType"`
	SizeBytes  int64     `json:"sizeBytes"`
	StorageKey string    `json:"-"`
	OwnerID    string    `json:"ownerId"`
	TeamID     string    `json:"teamId,omitempty"`
	TaskID     string    `json:"taskId,omitempty"`
	IsPublic   bool      `json:"isPublic"`
	IsDeleted  bool      `json:"-"`
	CreatedAt  time.Time `json:"createdAt"`
}
