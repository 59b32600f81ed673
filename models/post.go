package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Post is a blog entry with its ordered attachments.
type Post struct {
	ID          string       `gorm:"primaryKey;size:24" json:"id"`
	Title       string       `gorm:"type:text;not null" json:"title"`
	Author      string       `gorm:"type:text;not null" json:"author"`
	Content     string       `gorm:"type:text;not null" json:"content"`
	Attachments []Attachment `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE;" json:"attachments"`
	CreatedAt   time.Time    `gorm:"index" json:"createdAt"`
}

// Attachment is a stored file referenced by a post.
type Attachment struct {
	ID           uint   `gorm:"primaryKey" json:"-"`
	PostID       string `gorm:"size:24;index;not null" json:"-"`
	Position     int    `gorm:"not null" json:"-"`
	StoredName   string `gorm:"size:255;uniqueIndex;not null" json:"filename"`
	OriginalName string `gorm:"type:text;not null" json:"originalName"`
	MimeType     string `gorm:"type:text;not null" json:"mimeType"`
	Size         int64  `gorm:"not null" json:"size"`
	URL          string `gorm:"size:512;not null" json:"url"`
}

// TableName keeps attachment rows namespaced under posts.
func (Attachment) TableName() string {
	return "post_attachments"
}

// NewPostID returns a fresh identifier. All backends use ObjectID hex strings
// so ids stay valid when switching between them.
func NewPostID() string {
	return primitive.NewObjectID().Hex()
}

// IsValidPostID reports whether id is well-formed.
func IsValidPostID(id string) bool {
	return primitive.IsValidObjectID(id)
}

// PostStats aggregates counters for the stats endpoint.
type PostStats struct {
	Posts           int64 `json:"posts"`
	Attachments     int64 `json:"attachments"`
	AttachmentBytes int64 `json:"attachmentBytes"`
}
