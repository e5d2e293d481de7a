//go:build nohotreload

package watcher

import "go.uber.org/zap"

// New is unavailable in builds without hot reload.
func New(Config, func(), *zap.Logger) (Watcher, error) {
	return nil, ErrHotReloadUnavailable
}
