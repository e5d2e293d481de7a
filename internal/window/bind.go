package window

import (
	"context"

	"go.uber.org/zap"
)

// Stopper is stopped when the window it is bound to closes.
type Stopper interface {
	Stop(ctx context.Context) error
}

// Bind stops s once win closes, so no worker outlives its window.
// The returned function removes the binding.
func Bind(win Window, s Stopper, log *zap.Logger) func() {
	log = log.With(zap.String("window", win.ID()))

	return win.OnClosed(func() {
		log.Debug("window closed, stopping supervisor")

		if err := s.Stop(context.Background()); err != nil {
			log.Error("failed to stop supervisor", zap.Error(err))
		}
	})
}
