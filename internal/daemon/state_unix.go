//go:build !windows

package daemon

import (
	"fmt"
	"syscall"
)

// IsRunning loads the state file and reports whether its process is alive.
func (f *StateFile) IsRunning() (*State, bool) {
	st, err := f.Load()
	if err != nil {
		return nil, false
	}
	// Signal 0 tests if the process exists without sending a signal.
	err = syscall.Kill(st.PID, 0)
	return st, err == nil
}

// Signal sends sig to the recorded process.
func (f *StateFile) Signal(sig syscall.Signal) error {
	st, err := f.Load()
	if err != nil {
		return fmt.Errorf("read state file: %w", err)
	}
	return syscall.Kill(st.PID, sig)
}
