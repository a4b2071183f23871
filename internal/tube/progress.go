package tube

import "go.uber.org/zap"

// Observer receives best-effort training progress. It is write-only from the
// engine's perspective and never required for correctness: Step advances a
// monotonic trial counter (early stopping reports the skipped trials in one
// increment), Status carries a human-readable phase description.
type Observer interface {
	Step(n int)
	Status(msg string)
}

// NopObserver discards all progress.
type NopObserver struct{}

func (NopObserver) Step(int)      {}
func (NopObserver) Status(string) {}

// LogObserver reports progress through a zap logger.
type LogObserver struct {
	logger *zap.Logger
	count  int
}

// NewLogObserver creates an observer logging steps at debug level and status
// changes at info level.
func NewLogObserver(logger *zap.Logger) *LogObserver {
	return &LogObserver{logger: logger}
}

// Step advances the trial counter.
func (o *LogObserver) Step(n int) {
	o.count += n
	o.logger.Debug("Training progress", zap.Int("trials", o.count))
}

// Status logs the current training phase.
func (o *LogObserver) Status(msg string) {
	o.logger.Info("Training status", zap.String("status", msg))
}

// Count returns the number of trial steps reported so far.
func (o *LogObserver) Count() int { return o.count }
