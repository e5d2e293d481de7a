package util

import (
	"github.com/shirou/gopsutil/process"
)

// IsProcessAlive reports whether a process with the given pid exists.
// Zombies count as alive until they are reaped.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}

	exists, err := process.PidExists(int32(pid))
	if err != nil {
		return false
	}

	return exists
}
