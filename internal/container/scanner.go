// Package container discovers the per-document image directories of a container.
package container

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Lllllllleong/searchablepdf/internal/config"
	"github.com/Lllllllleong/searchablepdf/internal/models"
)

// GetContainerData lists the subdirectories of root whose name contains the
// directory marker, and for each one the image files whose name contains the
// image marker and whose extension matches the configured format. The scan is
// not recursive. Directories without a matching image are left out. Entry
// order is the directory listing order.
func GetContainerData(root string, opts config.Options) ([]models.ContainerEntry, error) {
	if root == "" || !filepath.IsAbs(root) {
		slog.Error("Invalid container path.", "path", root)
		return nil, fmt.Errorf("%w: container path %q must be absolute", models.ErrInvalidArguments, root)
	}
	if opts.ImageFormat != config.PNG && opts.ImageFormat != config.JPEG {
		return nil, fmt.Errorf("%w: image format %d", models.ErrInvalidArguments, opts.ImageFormat)
	}
	dirMarker := opts.DirectoryNameMarker
	if dirMarker == "" {
		dirMarker = config.Default().DirectoryNameMarker
	}
	imgMarker := opts.ImageFileNameMarker
	if imgMarker == "" {
		imgMarker = config.Default().ImageFileNameMarker
	}
	extensions := opts.ImageFormat.Extensions()

	dirEntries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read container %s: %w", root, err)
	}

	var entries []models.ContainerEntry
	for _, dirEntry := range dirEntries {
		if !dirEntry.IsDir() || !strings.Contains(dirEntry.Name(), dirMarker) {
			continue
		}
		dirPath := filepath.Join(root, dirEntry.Name())
		files, err := os.ReadDir(dirPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read directory %s: %w", dirPath, err)
		}

		var names []string
		for _, f := range files {
			if !f.Type().IsRegular() || !strings.Contains(f.Name(), imgMarker) {
				continue
			}
			if slices.Contains(extensions, filepath.Ext(f.Name())) {
				names = append(names, f.Name())
			}
		}
		if len(names) == 0 {
			continue
		}

		slog.Info("Found image files.", "directoryPath", dirPath, "imageCount", len(names), "images", names)
		entries = append(entries, models.ContainerEntry{
			DirectoryName:  dirEntry.Name(),
			DirectoryPath:  dirPath,
			ImageFileNames: names,
		})
	}
	return entries, nil
}
