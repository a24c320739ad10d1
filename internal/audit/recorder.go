package audit

import (
	"context"
	"time"

	"erp-nlquery/internal/common/logger"
)

const recordTimeout = 5 * time.Second

// Recorder fans an entry out to every sink. It is safe to use a nil *Recorder.
type Recorder struct {
	sinks  []Sink
	logger logger.Logger
}

func NewRecorder(log logger.Logger, sinks ...Sink) *Recorder {
	kept := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return &Recorder{sinks: kept, logger: logger.Component(log, "audit")}
}

// Record writes e to all sinks and swallows their errors. It detaches from
// the request context so a cancelled request is still audited.
func (r *Recorder) Record(ctx context.Context, e *Entry) {
	if r == nil || e == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	for _, s := range r.sinks {
		if err := s.Insert(ctx, e); err != nil {
			r.logger.Error("failed to create audit log", map[string]interface{}{
				"error":  err,
				"userId": e.UserID,
				"id":     e.ID,
			})
		}
	}
}
