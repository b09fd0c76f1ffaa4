package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// GenerationTracker owns the contexts of background forecast generations so
// they can be bounded by a timeout, cancelled individually and drained on
// shutdown.
type GenerationTracker struct {
	logger  *logrus.Logger
	timeout time.Duration

	mu     sync.RWMutex
	active map[uuid.UUID]*generation
	wg     sync.WaitGroup
}

type generation struct {
	cancel    context.CancelFunc
	startTime time.Time
}

// GenerationContext is handed to the goroutine running one generation.
type GenerationContext struct {
	Ctx        context.Context
	ForecastID uuid.UUID
	StartTime  time.Time
	Timeout    time.Duration
}

// NewGenerationTracker creates a tracker whose generations time out after
// timeout. A non-positive timeout falls back to ten minutes.
func NewGenerationTracker(timeout time.Duration, logger *logrus.Logger) *GenerationTracker {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &GenerationTracker{
		logger:  logger,
		timeout: timeout,
		active:  make(map[uuid.UUID]*generation),
	}
}

// Go runs fn in a new goroutine under a context detached from parent's
// cancellation but carrying its values, bounded by the tracker timeout.
func (gt *GenerationTracker) Go(parent context.Context, forecastID uuid.UUID, fn func(gc *GenerationContext)) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), gt.timeout)
	gc := &GenerationContext{
		Ctx:        ctx,
		ForecastID: forecastID,
		StartTime:  time.Now(),
		Timeout:    gt.timeout,
	}

	gt.mu.Lock()
	gt.active[forecastID] = &generation{cancel: cancel, startTime: gc.StartTime}
	gt.wg.Add(1)
	gt.mu.Unlock()

	go func() {
		defer gt.complete(forecastID)
		fn(gc)
	}()
}

func (gt *GenerationTracker) complete(forecastID uuid.UUID) {
	gt.mu.Lock()
	if g, ok := gt.active[forecastID]; ok {
		g.cancel()
		delete(gt.active, forecastID)
		gt.logger.WithFields(logrus.Fields{
			"forecast_id": forecastID,
			"duration":    time.Since(g.startTime),
		}).Debug("Generation finished")
	}
	gt.mu.Unlock()
	gt.wg.Done()
}

// Cancel stops one generation. It reports whether the generation was active.
func (gt *GenerationTracker) Cancel(forecastID uuid.UUID) bool {
	gt.mu.RLock()
	g, ok := gt.active[forecastID]
	gt.mu.RUnlock()
	if ok {
		g.cancel()
		gt.logger.WithField("forecast_id", forecastID).Info("Generation cancelled")
	}
	return ok
}

// CancelAll stops every active generation.
func (gt *GenerationTracker) CancelAll() {
	gt.mu.RLock()
	defer gt.mu.RUnlock()
	for id, g := range gt.active {
		g.cancel()
		gt.logger.WithField("forecast_id", id).Info("Generation cancelled during shutdown")
	}
}

// ActiveCount returns the number of running generations.
func (gt *GenerationTracker) ActiveCount() int {
	gt.mu.RLock()
	defer gt.mu.RUnlock()
	return len(gt.active)
}

// IsActive reports whether a generation is still running.
func (gt *GenerationTracker) IsActive(forecastID uuid.UUID) bool {
	gt.mu.RLock()
	defer gt.mu.RUnlock()
	_, ok := gt.active[forecastID]
	return ok
}

// Shutdown waits for running generations until ctx is done, then cancels the
// rest and waits for them to unwind.
func (gt *GenerationTracker) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		gt.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		gt.logger.WithField("active_generations", gt.ActiveCount()).Warn("Shutdown deadline reached, cancelling generations")
		gt.CancelAll()
		<-done
		return ctx.Err()
	}
}
