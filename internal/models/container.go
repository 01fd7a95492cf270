package models

// ContainerEntry describes one subdirectory of a container: a future PDF document.
// ImageFileNames is the canonical page order and must never be re-sorted.
type ContainerEntry struct {
	DirectoryName  string   `json:"directoryName"`
	DirectoryPath  string   `json:"directoryPath"`
	ImageFileNames []string `json:"imageFileNames"`
}

// RecognitionJob is one unit of OCR work: a single image.
// JobID only correlates log lines; ordering relies on SequenceIndex.
type RecognitionJob struct {
	JobID         string
	ImagePath     string
	DirectoryName string
	SequenceIndex int
}

// RecognitionResult holds the recognized text of every image of one directory.
// RecognizedTexts[i] always belongs to ImageFilePaths[i].
type RecognitionResult struct {
	DirectoryName   string   `json:"directoryName"`
	ImageFilePaths  []string `json:"imageFilePaths"`
	RecognizedTexts []string `json:"recognizedTexts"`
}
