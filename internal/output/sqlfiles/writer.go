// Package sqlfiles writes encoded chunks as .sql files for inspection.
package sqlfiles

import (
	"fmt"
	"os"
	"path/filepath"

	"ocelbridge/internal/logger"
	"ocelbridge/internal/sqlchunk"
	"ocelbridge/pkg/models"
)

// Write encodes every dataset and writes one file per chunk into dir,
// named {dataset}_{n}.sql. It returns the written paths.
func Write(dir string, datasets []*models.Dataset) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create sql directory: %w", err)
	}
	var paths []string
	for _, ds := range datasets {
		for _, ch := range sqlchunk.Encode(ds) {
			path := filepath.Join(dir, fmt.Sprintf("%s_%03d.sql", ch.Dataset, ch.Index+1))
			if err := os.WriteFile(path, []byte(ch.SQL+"\n"), 0644); err != nil {
				return paths, fmt.Errorf("failed to write %s: %w", path, err)
			}
			paths = append(paths, path)
		}
	}
	logger.Infof("Wrote %d SQL chunks to %s", len(paths), dir)
	return paths, nil
}
