package pipeline

import "ocelbridge/pkg/models"

// ProgressWriter persists batches of progress messages.
type ProgressWriter interface {
	WriteProgress(batch []*models.Progress) error
	Close() error
}
