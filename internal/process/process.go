package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"slices"
	"sync"
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

var (
	ErrAlreadyStarted = errors.New("process already started")
	ErrNotExited      = errors.New("process did not exit after kill")
)

// killGrace bounds the wait for the reaper after SIGKILL.
const killGrace = 2 * time.Second

// pipeDrain bounds how long Wait keeps copying output after exit.
const pipeDrain = time.Second

// Process is a single run of the helper executable. Exactly one goroutine
// calls cmd.Wait; everyone else waits on the done channel it closes.
type Process struct {
	spec Spec

	mu        sync.Mutex
	cmd       *exec.Cmd
	status    Status
	outCloser io.WriteCloser
	errCloser io.WriteCloser
	waitDone  chan struct{}
}

func New(spec Spec) *Process { return &Process{spec: spec, status: Status{Name: spec.Name}} }

func (r *Process) Spec() Spec { return r.spec }

// Start spawns the process with stdout/stderr inherited from the parent.
// When the spec configures a log dir the streams are also copied there.
func (r *Process) Start() error {
	if err := r.spec.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cmd != nil {
		return ErrAlreadyStarted
	}

	cmd := r.spec.BuildCommand()
	outW, errW := r.spec.Log.ProcessWriters(r.spec.Name)
	cmd.Stdout = tee(os.Stdout, outW)
	cmd.Stderr = tee(os.Stderr, errW)
	if outW != nil || errW != nil {
		cmd.WaitDelay = pipeDrain
	}
	if err := cmd.Start(); err != nil {
		closeQuietly(outW)
		closeQuietly(errW)
		return err
	}

	r.cmd = cmd
	r.outCloser, r.errCloser = outW, errW
	r.waitDone = make(chan struct{})
	r.status = Status{
		Name:       r.spec.Name,
		Running:    true,
		PID:        cmd.Process.Pid,
		StartedAt:  time.Now(),
		DetectedBy: "exec:pid",
	}
	go r.reap(cmd, r.waitDone)
	return nil
}

func (r *Process) reap(cmd *exec.Cmd, done chan struct{}) {
	err := cmd.Wait()
	r.mu.Lock()
	r.status.Running = false
	r.status.StoppedAt = time.Now()
	r.status.ExitErr = err
	r.status.DetectedBy = ""
	if cmd.ProcessState != nil {
		r.status.ExitCode = cmd.ProcessState.ExitCode()
	}
	closeQuietly(r.outCloser)
	closeQuietly(r.errCloser)
	r.outCloser, r.errCloser = nil, nil
	r.mu.Unlock()
	close(done)
}

// Done is closed once the process has exited and been reaped. A process
// that was never started reports done immediately.
func (r *Process) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.waitDone == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return r.waitDone
}

func (r *Process) Exited() bool {
	select {
	case <-r.Done():
		return true
	default:
		return false
	}
}

// Wait blocks until the process is reaped and returns its exit error.
func (r *Process) Wait(ctx context.Context) error {
	select {
	case <-r.Done():
		return r.Snapshot().ExitErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Process) PID() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status.PID
}

// Snapshot returns a copy of the current status.
func (r *Process) Snapshot() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// EnforceStartDuration returns an error if the process exits within d.
func (r *Process) EnforceStartDuration(d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-r.Done():
		return errBeforeStart(d, r.Snapshot().ExitErr)
	case <-t.C:
		return nil
	}
}

func errBeforeStart(d time.Duration, exitErr error) error {
	if exitErr == nil {
		return fmt.Errorf("process exited before start duration %s", d)
	}
	return fmt.Errorf("process exited before start duration %s: %w", d, exitErr)
}

// Terminate sends the graceful termination request without waiting.
func (r *Process) Terminate() error {
	if r.Exited() {
		return nil
	}
	return terminate(r.PID())
}

// Kill forcibly ends the process without waiting.
func (r *Process) Kill() error {
	if r.Exited() {
		return nil
	}
	return kill(r.PID())
}

// Stop terminates the process and waits up to wait before escalating to a
// kill. An exit caused by the signal is not an error; only failing to get
// rid of the process is.
func (r *Process) Stop(wait time.Duration) error {
	done := r.Done()
	select {
	case <-done:
		return nil
	default:
	}

	if err := r.Terminate(); err != nil {
		// fall through to kill, the process may still be reachable that way
		_ = r.Kill()
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-done:
		return nil
	case <-t.C:
	}

	if err := r.Kill(); err != nil {
		return fmt.Errorf("kill pid %d: %w", r.PID(), err)
	}
	k := time.NewTimer(killGrace)
	defer k.Stop()
	select {
	case <-done:
		return nil
	case <-k.C:
		return fmt.Errorf("pid %d: %w", r.PID(), ErrNotExited)
	}
}

// DetectAlive probes liveness through the OS process table. A zombie that
// has not been reaped yet counts as dead.
func (r *Process) DetectAlive() (bool, string) {
	if r.Exited() {
		return false, ""
	}
	p, err := gopsproc.NewProcess(int32(r.PID())) // #nosec G115 -- pid fits in int32
	if err != nil {
		return false, ""
	}
	if st, err := p.Status(); err == nil && slices.Contains(st, gopsproc.Zombie) {
		return false, ""
	}
	running, err := p.IsRunning()
	if err != nil || !running {
		return false, ""
	}
	return true, "exec:pid"
}

// Usage samples CPU and memory of the running process.
func (r *Process) Usage() (Usage, error) {
	if r.Exited() {
		return Usage{}, fmt.Errorf("process %q is not running", r.spec.Name)
	}
	p, err := gopsproc.NewProcess(int32(r.PID())) // #nosec G115 -- pid fits in int32
	if err != nil {
		return Usage{}, err
	}
	var u Usage
	if cpu, err := p.CPUPercent(); err == nil {
		u.CPUPercent = cpu
	}
	if mem, err := p.MemoryInfo(); err == nil && mem != nil {
		u.MemoryRSS = mem.RSS
	}
	if n, err := p.NumThreads(); err == nil {
		u.NumThreads = n
	}
	return u, nil
}

func tee(inherited *os.File, copyTo io.Writer) io.Writer {
	if copyTo == nil {
		return inherited
	}
	return io.MultiWriter(inherited, copyTo)
}

func closeQuietly(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}
