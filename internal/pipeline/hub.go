package pipeline

import (
	"context"
	"sync"
	"time"

	"ocelbridge/internal/logger"
	"ocelbridge/pkg/models"
)

// Hub fans progress messages out to the log and, in batches, to an optional
// writer. It implements provision.ProgressSink.
type Hub struct {
	writer        ProgressWriter
	batchSize     int
	flushInterval time.Duration

	in   chan *models.Progress
	done chan struct{}

	mu      sync.Mutex
	started bool
	closed  bool
	counts  map[models.Severity]int
}

// NewHub creates a hub. writer may be nil for log-only output.
func NewHub(writer ProgressWriter, batchSize int, flushInterval time.Duration) *Hub {
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = time.Second
	}
	return &Hub{
		writer:        writer,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		in:            make(chan *models.Progress, batchSize*4),
		done:          make(chan struct{}),
		counts:        make(map[models.Severity]int),
	}
}

// Start runs the write loop until Close. Messages emitted before Start are
// buffered.
func (h *Hub) Start(ctx context.Context) {
	h.mu.Lock()
	h.started = true
	h.mu.Unlock()
	go func() {
		defer close(h.done)
		h.writeLoop(ctx)
	}()
}

// Emit logs p and queues it for the writer.
func (h *Hub) Emit(p models.Progress) {
	logger.Logf(levelFor(p.Severity), "%s", describe(p))

	h.mu.Lock()
	defer h.mu.Unlock()
	h.counts[p.Severity]++
	if h.closed || h.writer == nil {
		return
	}
	h.in <- &p
}

// Counts returns how many messages of each severity were emitted.
func (h *Hub) Counts() map[models.Severity]int {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[models.Severity]int, len(h.counts))
	for k, v := range h.counts {
		out[k] = v
	}
	return out
}

// Close flushes pending messages and closes the writer.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	close(h.in)
	started := h.started
	h.mu.Unlock()

	if h.writer == nil {
		return nil
	}
	if started {
		<-h.done
	}
	return h.writer.Close()
}

func (h *Hub) writeLoop(ctx context.Context) {
	ticker := time.NewTicker(h.flushInterval)
	defer ticker.Stop()

	var batch []*models.Progress
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := h.writer.WriteProgress(batch); err != nil {
			logger.Errorf("Failed to write %d progress messages: %v", len(batch), err)
		}
		batch = nil
	}

	for {
		select {
		case <-ctx.Done():
			for p := range h.in {
				batch = append(batch, p)
			}
			flush()
			return
		case <-ticker.C:
			flush()
		case p, ok := <-h.in:
			if !ok {
				flush()
				return
			}
			batch = append(batch, p)
			if len(batch) >= h.batchSize {
				flush()
			}
		}
	}
}

func levelFor(sev models.Severity) logger.Level {
	switch sev {
	case models.SeverityWarning:
		return logger.Warn
	case models.SeverityError:
		return logger.Error
	default:
		return logger.Info
	}
}

func describe(p models.Progress) string {
	if p.Unit == "" {
		return p.Message
	}
	return "[" + p.Unit + "] " + p.Message
}
