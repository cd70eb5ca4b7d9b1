package process

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	ps "github.com/shirou/gopsutil/v4/process"
	"golang.org/x/sync/errgroup"
)

// ErrNotStarted is returned when signalling a process that was never started.
var ErrNotStarted = errors.New("process not started")

const maxLineSize = 1 << 20

// Stream identifies which output stream a Line came from.
type Stream int

const (
	Stdout Stream = iota
	Stderr
)

func (s Stream) String() string {
	if s == Stderr {
		return "stderr"
	}
	return "stdout"
}

// Line is one line of child output. Lines of the same stream arrive in
// emission order.
type Line struct {
	Stream Stream
	Text   string
}

// Process is a long-lived child whose output is delivered line by line.
type Process struct {
	spec     Spec
	mu       sync.Mutex
	cmd      *exec.Cmd
	status   Status
	lines    chan Line
	waitDone chan struct{}
}

func New(spec Spec) *Process {
	return &Process{spec: spec, waitDone: make(chan struct{})}
}

// Start launches the command. Output must be drained from Lines until it is
// closed, otherwise the child blocks on a full pipe.
func (p *Process) Start() error {
	if err := p.spec.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd != nil {
		return fmt.Errorf("process %s already started", p.spec.Name)
	}
	cmd := p.spec.BuildCommand()
	if p.spec.WorkDir != "" {
		cmd.Dir = p.spec.WorkDir
	}
	if p.spec.Env != nil {
		cmd.Env = p.spec.Env
	}
	configureSysProcAttr(cmd)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}
	outLog, errLog, err := p.spec.Log.Writers(p.spec.Name)
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		closeIf(outLog)
		closeIf(errLog)
		return fmt.Errorf("start %s: %w", p.spec.Name, err)
	}
	p.cmd = cmd
	p.lines = make(chan Line, 64)
	p.status = Status{Name: p.spec.Name, Running: true, PID: cmd.Process.Pid, StartedAt: time.Now()}
	go p.monitor(stdout, stderr, outLog, errLog)
	return nil
}

// monitor pumps both pipes, then reaps the child. cmd.Wait must only run
// after the pipes are fully read.
func (p *Process) monitor(stdout, stderr io.Reader, outLog, errLog io.WriteCloser) {
	var g errgroup.Group
	g.Go(func() error { return p.pump(stdout, Stdout, outLog) })
	g.Go(func() error { return p.pump(stderr, Stderr, errLog) })
	_ = g.Wait()
	close(p.lines)

	err := p.cmd.Wait()
	closeIf(outLog)
	closeIf(errLog)
	p.mu.Lock()
	p.status.Running = false
	p.status.StoppedAt = time.Now()
	p.status.ExitErr = err
	p.mu.Unlock()
	close(p.waitDone)
}

func (p *Process) pump(r io.Reader, stream Stream, tee io.Writer) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	for sc.Scan() {
		text := sc.Text()
		if tee != nil {
			_, _ = io.WriteString(tee, text+"\n")
		}
		p.lines <- Line{Stream: stream, Text: text}
	}
	if err := sc.Err(); err != nil {
		// keep draining so the child never blocks on a full pipe
		_, _ = io.Copy(io.Discard, r)
		return err
	}
	return nil
}

// Lines returns the output channel; it is closed once both streams hit EOF.
func (p *Process) Lines() <-chan Line {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lines
}

// Done is closed after the child has exited and been reaped.
func (p *Process) Done() <-chan struct{} { return p.waitDone }

func (p *Process) Name() string { return p.spec.Name }

// Snapshot returns a copy of the current status.
func (p *Process) Snapshot() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Exited reports whether the child has been reaped.
func (p *Process) Exited() bool {
	select {
	case <-p.waitDone:
		return true
	default:
		return false
	}
}

// Alive reports whether the child is still running.
func (p *Process) Alive() bool {
	st := p.Snapshot()
	if st.PID == 0 || p.Exited() {
		return false
	}
	ok, err := ps.PidExists(int32(st.PID))
	return err == nil && ok
}

// Signal delivers sig to the child's process group. Signalling an exited
// process is a no-op.
func (p *Process) Signal(sig os.Signal) error {
	st := p.Snapshot()
	if st.PID == 0 {
		return ErrNotStarted
	}
	if !p.Alive() {
		return nil
	}
	if err := signalGroup(st.PID, sig); err != nil && p.Alive() {
		return fmt.Errorf("signal %s: %w", p.spec.Name, err)
	}
	return nil
}

// Stop signals the child and waits up to wait for it to exit before killing
// the whole group.
func (p *Process) Stop(sig os.Signal, wait time.Duration) error {
	if err := p.Signal(sig); err != nil {
		return err
	}
	select {
	case <-p.waitDone:
		return nil
	case <-time.After(wait):
	}
	if st := p.Snapshot(); st.PID != 0 {
		_ = killGroup(st.PID)
	}
	select {
	case <-p.waitDone:
	case <-time.After(200 * time.Millisecond):
		// best-effort
	}
	return nil
}

func closeIf(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}
