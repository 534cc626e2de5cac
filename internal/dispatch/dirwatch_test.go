package dispatch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func newWatcher(t *testing.T) (*DirWatcher, *fakeExecutor, string) {
	t.Helper()
	root := t.TempDir()
	exec := &fakeExecutor{}
	reports := filepath.Join(root, "reports")
	w := &DirWatcher{
		Root:       root,
		Dispatcher: &Dispatcher{Exec: exec, Store: &FileStore{Dir: reports}, Log: zaptest.NewLogger(t)},
		Log:        zaptest.NewLogger(t),
		Settle:     20 * time.Millisecond,
	}
	return w, exec, reports
}

func writeJob(t *testing.T, dir, name string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
}

func TestDirWatcher_Drain(t *testing.T) {
	w, exec, reports := newWatcher(t)
	todo := filepath.Join(w.Root, TodoDir)
	writeJob(t, todo, "b.json", jobJSON("job-b", ""))
	writeJob(t, todo, "a.json", jobJSON("job-a", ""))
	writeJob(t, todo, "bad.json", []byte(`{"acts": 3}`))
	writeJob(t, todo, "notes.txt", []byte("ignored"))

	handled, err := w.Drain(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, handled)
	assert.Equal(t, []string{"job-a", "job-b"}, exec.ids(), "jobs run in file name order")
	assert.FileExists(t, filepath.Join(w.Root, DoneDir, "a.json"))
	assert.FileExists(t, filepath.Join(w.Root, DoneDir, "b.json"))
	assert.FileExists(t, filepath.Join(w.Root, RejectedDir, "bad.json"))
	assert.FileExists(t, filepath.Join(todo, "notes.txt"))
	assert.NoFileExists(t, filepath.Join(todo, "a.json"))
	assert.FileExists(t, filepath.Join(reports, "job-a.json"))
}

func TestDirWatcher_Drain_Canceled(t *testing.T) {
	w, exec, _ := newWatcher(t)
	writeJob(t, filepath.Join(w.Root, TodoDir), "a.json", jobJSON("job-a", ""))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	handled, err := w.Drain(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, handled)
	assert.Empty(t, exec.ids())
}

func TestDirWatcher_Run(t *testing.T) {
	defer goleak.VerifyNone(t)

	w, exec, reports := newWatcher(t)
	todo := filepath.Join(w.Root, TodoDir)
	writeJob(t, todo, "first.json", jobJSON("job-first", ""))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return len(exec.ids()) == 1 }, 5*time.Second, 10*time.Millisecond,
		"waiting jobs run at startup")

	writeJob(t, todo, "second.json", jobJSON("job-second", ""))
	require.Eventually(t, func() bool { return len(exec.ids()) == 2 }, 5*time.Second, 10*time.Millisecond,
		"new jobs run when they appear")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}

	assert.Equal(t, []string{"job-first", "job-second"}, exec.ids())
	assert.FileExists(t, filepath.Join(w.Root, DoneDir, "second.json"))
	assert.FileExists(t, filepath.Join(reports, "job-second.json"))
}

func TestIsJobFile(t *testing.T) {
	assert.True(t, isJobFile("job.json"))
	assert.False(t, isJobFile(".job.json"))
	assert.False(t, isJobFile("job.json.tmp"))
	assert.False(t, isJobFile("job.yaml"))
}
