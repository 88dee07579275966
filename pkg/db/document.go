// Database models for stored documents
package db

import "time"

// Document is one persisted editor document. Content holds the serialized
// document tree.
type Document struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	Title     string    `json:"title" gorm:"size:200;default:'Untitled'"`
	Content   string    `json:"content" gorm:"type:text;not null"`
	Version   int64     `json:"version" gorm:"not null;default:0"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Document) TableName() string {
	return "documents"
}

// DocumentSummary is the list view of a document, without content.
type DocumentSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}
