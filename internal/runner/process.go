package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Defaults for process runners.
const (
	// DefaultSubcommand is the hidden command that serves one Request.
	DefaultSubcommand = "tool-exec"
	// killGrace bounds the wait for output pipes after a kill.
	killGrace = 2 * time.Second
	// maxStderr caps the child diagnostics kept for logging.
	maxStderr = 64 << 10
)

// ProcessConfig configures a ProcessRunner.
type ProcessConfig struct {
	// Executable is the program to run; empty means the current executable.
	Executable string
	// Args are passed to the program; empty means DefaultSubcommand.
	Args []string
	// Env is appended to the parent's environment.
	Env []string
	// Root is the parent directory for per-run temp directories; empty
	// means the system temp directory.
	Root string
	Log  *zap.Logger
}

// ProcessRunner runs each tool invocation in a child process that speaks
// JSON over stdin and stdout.
type ProcessRunner struct {
	cfg  ProcessConfig
	log  *zap.Logger
	mu   sync.Mutex
	root string
	// active counts runs that hold a directory under root.
	active int
}

// NewProcessRunner creates a runner. The temp root is created lazily.
func NewProcessRunner(cfg ProcessConfig) (*ProcessRunner, error) {
	if cfg.Executable == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, &Error{Message: "failed to locate executable", Cause: err}
		}
		cfg.Executable = exe
	}
	if len(cfg.Args) == 0 {
		cfg.Args = []string{DefaultSubcommand}
	}
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &ProcessRunner{cfg: cfg, log: log}, nil
}

// acquire creates a private run directory under the temp root, creating the
// root on first use. The run holds the root until release.
func (r *ProcessRunner) acquire() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.root == "" {
		root, err := os.MkdirTemp(r.cfg.Root, "auditor-runner-")
		if err != nil {
			return "", &Error{Message: "failed to create temp root", Cause: err}
		}
		r.root = root
	}
	dir, err := os.MkdirTemp(r.root, "run-"+uuid.NewString()[:8]+"-")
	if err != nil {
		return "", &Error{Message: "failed to create run directory", Cause: err}
	}
	r.active++
	return dir, nil
}

// release removes a run directory made by acquire.
func (r *ProcessRunner) release(dir string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active--
	return os.RemoveAll(dir)
}

// Run spawns a sub-execution and races it against the request's time limit.
func (r *ProcessRunner) Run(ctx context.Context, req Request) Outcome {
	start := time.Now()
	log := r.log.With(zap.String("tool", req.tool()), zap.String("job", req.JobID))
	crash := func(message string, err error) Outcome {
		log.Warn(message, zap.Error(err))
		if err != nil {
			message += ": " + err.Error()
		}
		return Outcome{Status: StatusCrash, Message: message, Elapsed: time.Since(start)}
	}

	dir, err := r.acquire()
	if err != nil {
		return crash("no run directory", err)
	}
	defer func() {
		if err := r.release(dir); err != nil {
			log.Warn("failed to remove run directory", zap.String("dir", dir), zap.Error(err))
		}
	}()
	req.TempDir = dir

	payload, err := json.Marshal(req)
	if err != nil {
		return crash("failed to encode request", err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.Command(r.cfg.Executable, r.cfg.Args...)
	cmd.Env = append(os.Environ(), r.cfg.Env...)
	cmd.Dir = dir
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = &stdout
	cmd.Stderr = &limitedWriter{buf: &stderr, max: maxStderr}
	cmd.WaitDelay = killGrace
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		return crash("failed to start sub-execution", err)
	}
	log.Debug("sub-execution started", zap.Int("pid", cmd.Process.Pid), zap.Duration("limit", req.TimeLimit))

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	var timeout <-chan time.Time
	if req.TimeLimit > 0 {
		timer := time.NewTimer(req.TimeLimit)
		defer timer.Stop()
		timeout = timer.C
	}

	kill := func() {
		if err := killProcessGroup(cmd); err != nil {
			log.Debug("kill failed", zap.Error(err))
		}
		<-done
	}

	select {
	case waitErr := <-done:
		elapsed := time.Since(start)
		if diag := strings.TrimSpace(stderr.String()); diag != "" {
			log.Debug("sub-execution stderr", zap.String("stderr", diag))
		}
		var resp Response
		if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &resp); err != nil {
			if waitErr != nil {
				return crash("sub-execution exited abnormally", waitErr)
			}
			return crash("sub-execution response unreadable", err)
		}
		if waitErr != nil {
			log.Warn("sub-execution exited with an error after responding", zap.Error(waitErr))
		}
		return fromResponse(resp, elapsed)
	case <-timeout:
		kill()
		log.Warn("sub-execution exceeded its time limit", zap.Duration("limit", req.TimeLimit))
		return Outcome{Status: StatusTimeout, Message: "tool timed out", Elapsed: time.Since(start)}
	case <-ctx.Done():
		kill()
		return Outcome{Status: StatusTimeout, Message: ctx.Err().Error(), Elapsed: time.Since(start)}
	}
}

// Cleanup removes the temp root and everything under it. While other runs
// still hold directories under the root it is left for a later Cleanup.
func (r *ProcessRunner) Cleanup() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.root == "" {
		return nil
	}
	if r.active > 0 {
		r.log.Debug("temp root still in use", zap.String("root", r.root), zap.Int("runs", r.active))
		return nil
	}
	err := os.RemoveAll(r.root)
	r.root = ""
	if err != nil {
		return &Error{Message: "failed to remove temp root", Cause: err}
	}
	return nil
}

// limitedWriter keeps at most max bytes and discards the rest.
type limitedWriter struct {
	buf *bytes.Buffer
	max int
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	if room := w.max - w.buf.Len(); room > 0 {
		if len(p) > room {
			w.buf.Write(p[:room])
		} else {
			w.buf.Write(p)
		}
	}
	return len(p), nil
}
