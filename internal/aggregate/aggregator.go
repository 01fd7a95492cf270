// Package aggregate reshapes per-directory recognition results into the
// per-document page lists the compositor consumes.
package aggregate

import (
	"fmt"
	"log/slog"

	"github.com/Lllllllleong/searchablepdf/internal/models"
)

// ToPdfDocumentJobs pairs every image path with the text recognized from it,
// one document per directory. The directory name becomes the document name.
func ToPdfDocumentJobs(results []models.RecognitionResult) ([]models.PdfDocumentJob, error) {
	if len(results) == 0 || len(results[0].ImageFilePaths) == 0 {
		slog.Error("No recognition results to create documents from.", "results", len(results))
		return nil, fmt.Errorf("%w: no recognition results", models.ErrNoDataToProcess)
	}

	jobs := make([]models.PdfDocumentJob, 0, len(results))
	for _, res := range results {
		if len(res.RecognizedTexts) != len(res.ImageFilePaths) {
			return nil, fmt.Errorf("%w: %s has %d images but %d texts",
				models.ErrInvalidArguments, res.DirectoryName, len(res.ImageFilePaths), len(res.RecognizedTexts))
		}
		pages := make([]models.PdfPageSpec, len(res.ImageFilePaths))
		for i, path := range res.ImageFilePaths {
			pages[i] = models.PdfPageSpec{ImagePath: path, Text: res.RecognizedTexts[i]}
		}
		jobs = append(jobs, models.PdfDocumentJob{DocumentName: res.DirectoryName, Pages: pages})
	}
	return jobs, nil
}
