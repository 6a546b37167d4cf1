package models

import "time"

// Status tracks a document's progress through the extraction pipeline.
// Transitions only move forward; re-invoking a completed step short-circuits.
type Status string

const (
	StatusCreated          Status = "created"
	StatusUploaded         Status = "uploaded"
	StatusSplitted         Status = "splitted"
	StatusImageExtracted   Status = "imageExtracted"
	StatusContentExtracted Status = "contentExtracted"
	StatusFieldExtracted   Status = "fieldExtracted"
)

var statusOrder = map[Status]int{
	StatusCreated:          0,
	StatusUploaded:         1,
	StatusSplitted:         2,
	StatusImageExtracted:   3,
	StatusContentExtracted: 4,
	StatusFieldExtracted:   5,
}

// AtLeast reports whether s has reached or passed other in pipeline order.
func (s Status) AtLeast(other Status) bool {
	return statusOrder[s] >= statusOrder[other]
}

// Document is the master record for one uploaded PDF. Hash deduplicates
// uploads per user: the same bytes map to the same document.
type Document struct {
	ID             string    `firestore:"-" json:"id"`
	UserID         string    `firestore:"userId" json:"userId"`
	Type           string    `firestore:"type" json:"type"`
	Status         Status    `firestore:"status" json:"status"`
	Source         string    `firestore:"source" json:"source"`
	Hash           string    `firestore:"hash" json:"hash"`
	ImageExtracted []string  `firestore:"imageExtracted,omitempty" json:"imageExtracted,omitempty"`
	PageCount      int       `firestore:"pageCount,omitempty" json:"pageCount,omitempty"`
	Active         bool      `firestore:"active" json:"active"`
	CreatedAt      time.Time `firestore:"createdAt,omitempty" json:"createdAt"`
}

// PageExtraction holds the textual content recovered from one page, either
// from the OCR path or from the extraction model's image description.
type PageExtraction struct {
	ID         string `firestore:"-" json:"id"`
	DocumentID string `firestore:"documentId" json:"documentId"`
	PageNumber int    `firestore:"pageNumber" json:"pageNumber"`
	Content    string `firestore:"content" json:"content"`
	OriginLang string `firestore:"originLang,omitempty" json:"originLang,omitempty"`
	Attempts   int    `firestore:"attempts,omitempty" json:"attempts,omitempty"`
}

// MinPageContentLength is the threshold below which a page's stored content
// is considered unusable and eligible for the repair pass.
const MinPageContentLength = 10

// MaxPageRepairAttempts bounds the repair pass per page. A page still under
// the content threshold after this many extractions is accepted as-is, so a
// blank or purely graphical page cannot pin the document below
// contentExtracted forever.
const MaxPageRepairAttempts = 3
