package daemon

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateFile_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "serve.yaml")
	f := NewStateFile(path)

	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, f.Save(State{PID: 12345, Addr: ":8420", StartedAt: started}))

	st, err := f.Load()
	require.NoError(t, err)
	assert.Equal(t, 12345, st.PID)
	assert.Equal(t, ":8420", st.Addr)
	assert.True(t, started.Equal(st.StartedAt))
}

func TestStateFile_Write_CurrentProcess(t *testing.T) {
	f := NewStateFile(filepath.Join(t.TempDir(), "serve.yaml"))

	require.NoError(t, f.Write("127.0.0.1:9000"))

	st, err := f.Load()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), st.PID)
	assert.Equal(t, "127.0.0.1:9000", st.Addr)
	assert.False(t, st.StartedAt.IsZero())
}

func TestStateFile_Load_MissingFile(t *testing.T) {
	f := NewStateFile(filepath.Join(t.TempDir(), "nonexistent.yaml"))

	_, err := f.Load()
	assert.True(t, os.IsNotExist(err))
}

func TestStateFile_Load_InvalidContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	f := NewStateFile(path)

	require.NoError(t, os.WriteFile(path, []byte("pid: [not, a, number]\n"), 0o644))
	_, err := f.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid state file content")

	require.NoError(t, os.WriteFile(path, []byte("addr: \":1\"\n"), 0o644))
	_, err = f.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing pid")
}

func TestStateFile_Remove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "serve.yaml")
	f := NewStateFile(path)
	require.NoError(t, f.Write(":1"))

	require.NoError(t, f.Remove())
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	assert.Error(t, f.Remove())
}

func TestStateFile_IsRunning(t *testing.T) {
	t.Run("current process", func(t *testing.T) {
		f := NewStateFile(filepath.Join(t.TempDir(), "serve.yaml"))
		require.NoError(t, f.Write(":8420"))

		st, running := f.IsRunning()
		assert.True(t, running)
		require.NotNil(t, st)
		assert.Equal(t, os.Getpid(), st.PID)
	})

	t.Run("dead process", func(t *testing.T) {
		f := NewStateFile(filepath.Join(t.TempDir(), "serve.yaml"))
		// A very high PID that almost certainly does not exist.
		require.NoError(t, f.Save(State{PID: 999999, Addr: ":8420"}))

		st, running := f.IsRunning()
		assert.False(t, running)
		require.NotNil(t, st)
		assert.Equal(t, 999999, st.PID)
	})

	t.Run("no file", func(t *testing.T) {
		f := NewStateFile(filepath.Join(t.TempDir(), "serve.yaml"))

		st, running := f.IsRunning()
		assert.Nil(t, st)
		assert.False(t, running)
	})
}

func TestStateFile_Signal(t *testing.T) {
	f := NewStateFile(filepath.Join(t.TempDir(), "serve.yaml"))
	require.NoError(t, f.Write(":8420"))

	// Signal 0 only checks that the process exists.
	assert.NoError(t, f.Signal(syscall.Signal(0)))

	missing := NewStateFile(filepath.Join(t.TempDir(), "none.yaml"))
	err := missing.Signal(syscall.Signal(0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read state file")
}
