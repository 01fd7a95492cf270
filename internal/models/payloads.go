package models

// These structs define the JSON payloads exchanged with the converter function
// and the workflow it notifies.

// ConvertRequest is the input for the container-converter function.
type ConvertRequest struct {
	ContainerPath string `json:"containerPath"`
	OutputPath    string `json:"outputPath,omitempty"`
	ExecutionID   string `json:"executionId,omitempty"`
}

// DocumentOutcome reports what happened to one document of a conversion.
type DocumentOutcome struct {
	DocumentName string `json:"documentName"`
	Status       string `json:"status"`
	OutputPath   string `json:"outputPath,omitempty"`
	OutputGCSUri string `json:"outputGcsUri,omitempty"`
	FileHash     string `json:"fileHash,omitempty"`
	SourceHash   string `json:"sourceHash,omitempty"`
	PageCount    int    `json:"pageCount"`
	SkippedPages int    `json:"skippedPages"`
}

// Conversion response statuses.
const (
	ResponseCompleted      = "COMPLETED"
	ResponseNothingWritten = "NOTHING_WRITTEN"
)

// ConvertResponse is the output of the container-converter function.
type ConvertResponse struct {
	Status    string            `json:"status"`
	Written   int               `json:"written"`
	Documents []DocumentOutcome `json:"documents"`
}

// PublishedNotification is the argument passed to the downstream workflow.
type PublishedNotification struct {
	DocumentName string `json:"documentName"`
	GCSUri       string `json:"gcsUri"`
	PageCount    int    `json:"pageCount"`
}

// GCSEvent is the payload of a GCS object finalize event.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}
