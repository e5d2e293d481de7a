package watcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIgnored(t *testing.T) {
	root := "/src/worker"

	tests := []struct {
		path     string
		patterns []string
		expected bool
	}{
		{path: "/src/worker", expected: false},
		{path: "/src/worker/main.go", expected: false},
		{path: "/src/worker/internal/agent.go", expected: false},
		{path: "/src/worker/.env", expected: true},
		{path: "/src/worker/.git/HEAD", expected: true},
		{path: "/src/worker/pkg/.cache/x", expected: true},
		{path: "/src/worker/out.log", patterns: []string{"*.log"}, expected: true},
		{path: "/src/worker/out.txt", patterns: []string{"*.log"}, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.expected, ignored(root, tt.path, tt.patterns))
		})
	}
}
