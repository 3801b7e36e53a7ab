//go:build windows

package daemon

import (
	"fmt"
	"os"
	"syscall"
)

// IsRunning loads the state file and reports whether its process is alive.
func (f *StateFile) IsRunning() (*State, bool) {
	st, err := f.Load()
	if err != nil {
		return nil, false
	}
	proc, err := os.FindProcess(st.PID)
	if err != nil {
		return st, false
	}
	// FindProcess always succeeds on Windows; check with a zero signal.
	err = proc.Signal(syscall.Signal(0))
	return st, err == nil
}

// Signal sends sig to the recorded process. Only os.Kill is reliable on Windows.
func (f *StateFile) Signal(sig syscall.Signal) error {
	st, err := f.Load()
	if err != nil {
		return fmt.Errorf("read state file: %w", err)
	}
	proc, err := os.FindProcess(st.PID)
	if err != nil {
		return fmt.Errorf("find process %d: %w", st.PID, err)
	}
	return proc.Signal(sig)
}
