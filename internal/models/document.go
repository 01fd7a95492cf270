package models

import "time"

// PdfPageSpec pairs one candidate page image with the text recognized from it.
type PdfPageSpec struct {
	ImagePath string `json:"imagePath"`
	Text      string `json:"text"`
}

// PdfDocumentJob is one logical output document. Pages keep the directory's image order.
type PdfDocumentJob struct {
	DocumentName string        `json:"documentName"`
	Pages        []PdfPageSpec `json:"pages"`
}

// Conversion statuses stored on the Firestore record of a document.
const (
	StatusRecognizing = "RECOGNIZING"
	StatusCompositing = "COMPOSITING"
	StatusWritten     = "WRITTEN"
	StatusDiscarded   = "DISCARDED"
	StatusPublished   = "PUBLISHED"
	StatusDuplicate   = "DUPLICATE"
	StatusFailed      = "FAILED"
)

// Conversion represents the record for one searchable PDF in Firestore.
// It tracks the overall status and metadata of the produced file.
type Conversion struct {
	DocumentName        string    `firestore:"documentName,omitempty"`
	SourceDirectory     string    `firestore:"sourceDirectory,omitempty"`
	OutputPath          string    `firestore:"outputPath,omitempty"`
	OutputGCSUri        string    `firestore:"outputGcsUri,omitempty"`
	FileHash            string    `firestore:"fileHash,omitempty"`
	SourceHash          string    `firestore:"sourceHash,omitempty"`
	Status              string    `firestore:"status,omitempty"`
	ErrorDetails        string    `firestore:"errorDetails,omitempty"`
	ImageCount          int       `firestore:"imageCount,omitempty"`
	PageCount           int       `firestore:"pageCount,omitempty"`
	SkippedPages        int       `firestore:"skippedPages,omitempty"`
	DuplicateOf         string    `firestore:"duplicateOf,omitempty"`
	WorkflowExecutionID string    `firestore:"workflowExecutionId,omitempty"` // For traceability
	CreatedAt           time.Time `firestore:"createdAt,omitempty"`
}
