package execsvc

import (
	"context"
	"io"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kandev/scripthost/internal/logger"
	"github.com/kandev/scripthost/internal/registry"
)

// internalErrorReturnCode is published as the return code when the child
// could never be started or reaped normally (spawn failure, or cmd.Wait
// failing with something other than an exit status). A read error on one
// of the pipes ends that stream's reader like EOF and does not change the
// return code. It is chosen well outside the range any POSIX signal number
// could produce via the negated-signal convention.
const internalErrorReturnCode = -1000

// Snapshot is an immutable view of a RunningScript at one instant, used for
// listing executions and rendering the transport-facing JSON shape.
type Snapshot struct {
	ID             string
	ScriptBasename string
	DisplayName    string
	Args           []string
	StartTime      time.Time
	EndTime        *time.Time
	Progress       ProgressPair
	Status         string
	ReturnCode     *int
}

// RunningScript is the aggregate per-execution object: it owns the child
// process, the raw output buffer, the three broadcast slots, the two
// completion slots, and the scratch directories to release at cleanup.
type RunningScript struct {
	ID          string
	Script      registry.Script
	Args        []string
	StartTime   time.Time
	ScratchDirs []string

	log *logger.Logger

	outputMu sync.Mutex
	output   []byte
	cursor   *Slot[int]

	progress *Slot[ProgressPair]
	status   *Slot[string]

	returnCode *Once[int]
	endTime    *Once[time.Time]

	cmd          *exec.Cmd
	killOnce     sync.Once
	readChunkLen int
}

// NewRunningScript constructs, starts, and immediately returns a
// RunningScript. Spawn failure is not a constructor error: it is reflected
// as an internal-error return code the execution record carries from
// birth, per the unrecoverable-internal-error contract.
func NewRunningScript(id string, script registry.Script, args []string, scratchDirs []string, readChunkLen int, log *logger.Logger) *RunningScript {
	if readChunkLen <= 0 {
		readChunkLen = 4096
	}

	rs := &RunningScript{
		ID:           id,
		Script:       script,
		Args:         args,
		StartTime:    time.Now(),
		ScratchDirs:  scratchDirs,
		log:          log,
		cursor:       NewSlot(0, func(a, b int) bool { return a == b }),
		progress:     NewSlot(ProgressPair{}, progressEqual),
		status:       NewSlot("", func(a, b string) bool { return a == b }),
		returnCode:   NewOnce[int](),
		endTime:      NewOnce[time.Time](),
		readChunkLen: readChunkLen,
	}

	cmd := exec.Command(script.ExecutablePath, args...)
	setProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err == nil {
		var stderr io.ReadCloser
		stderr, err = cmd.StderrPipe()
		if err == nil {
			err = cmd.Start()
			if err == nil {
				rs.cmd = cmd
				rs.runReaders(stdout, stderr)
				return rs
			}
		}
	}

	log.Error("failed to start script",
		zap.String("script", script.Basename), zap.Error(err))
	rs.cmd = cmd
	rs.finalize(internalErrorReturnCode)
	return rs
}

func (rs *RunningScript) runReaders(stdout, stderr io.Reader) {
	var eg errgroup.Group
	eg.Go(func() error { rs.readStream(stdout); return nil })
	eg.Go(func() error { rs.readStream(stderr); return nil })

	go func() {
		eg.Wait() // reader errors are swallowed in readStream; only used for joining
		waitErr := rs.cmd.Wait()
		rs.finalize(exitCodeFromError(waitErr))
	}()
}

func (rs *RunningScript) readStream(r io.Reader) {
	splitter := &lineSplitter{}
	buf := make([]byte, rs.readChunkLen)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			splitter.feed(buf[:n], rs.handleLine)
		}
		if err != nil {
			break
		}
	}
	if leftover := splitter.flush(); leftover != nil {
		rs.appendOutput(leftover)
	}
}

func (rs *RunningScript) handleLine(line []byte) {
	if isTelemetry, key, value := classifyLine(line); isTelemetry {
		switch key {
		case "status":
			rs.status.Publish(value)
		case "progress":
			if pp, ok := parseProgress(value); ok {
				rs.progress.Publish(pp)
			}
		}
		return
	}
	rs.appendOutput(line)
}

func (rs *RunningScript) appendOutput(b []byte) {
	rs.outputMu.Lock()
	rs.output = append(rs.output, b...)
	newLen := len(rs.output)
	rs.outputMu.Unlock()
	rs.cursor.Publish(newLen)
}

func (rs *RunningScript) finalize(returnCode int) {
	now := time.Now()
	rs.returnCode.Set(returnCode)
	rs.endTime.Set(now)
	rs.cursor.SignalExit()
	rs.progress.SignalExit()
	rs.status.SignalExit()
}

// GetOutputAll returns the entire output buffer without blocking.
func (rs *RunningScript) GetOutputAll() string {
	rs.outputMu.Lock()
	defer rs.outputMu.Unlock()
	return string(rs.output)
}

// GetOutput returns output[from:] once it is available: immediately if
// from is already within the buffered range, otherwise blocking until more
// bytes arrive or the child exits (yielding "" if from has caught up by
// exit time).
func (rs *RunningScript) GetOutput(ctx context.Context, from int) (string, error) {
	for {
		rs.outputMu.Lock()
		length := len(rs.output)
		if from < length {
			data := string(rs.output[from:])
			rs.outputMu.Unlock()
			return data, nil
		}
		rs.outputMu.Unlock()

		if _, done := rs.returnCode.TryGet(); done {
			return "", nil
		}

		if _, err := rs.cursor.AwaitChange(ctx, length); err != nil {
			return "", err
		}
	}
}

// GetProgress returns the current progress, or blocks for the next value
// different from witness (or exit) when witness is non-nil.
func (rs *RunningScript) GetProgress(ctx context.Context, witness *ProgressPair) (ProgressPair, error) {
	if witness == nil {
		return rs.progress.Current(), nil
	}
	return rs.progress.AwaitChange(ctx, *witness)
}

// GetStatus returns the current status, or blocks for the next value
// different from witness (or exit) when witness is non-nil.
func (rs *RunningScript) GetStatus(ctx context.Context, witness *string) (string, error) {
	if witness == nil {
		return rs.status.Current(), nil
	}
	return rs.status.AwaitChange(ctx, *witness)
}

// GetReturnCode blocks until the child has been reaped and returns its
// return code.
func (rs *RunningScript) GetReturnCode(ctx context.Context) (int, error) {
	return rs.returnCode.Await(ctx)
}

// GetEndTime blocks until the child has exited and returns the timestamp
// that was recorded.
func (rs *RunningScript) GetEndTime(ctx context.Context) (time.Time, error) {
	return rs.endTime.Await(ctx)
}

// Kill sends the platform's termination signal to the child's process
// group, exactly once, then blocks until the child has been reaped.
// Calling it after the child has already exited is a no-op that still
// waits for (and returns) the already-recorded return code.
func (rs *RunningScript) Kill(ctx context.Context) (int, error) {
	rs.killOnce.Do(func() {
		if rs.cmd == nil {
			return
		}
		if _, exited := rs.returnCode.TryGet(); exited {
			return
		}
		if err := terminateProcessGroup(rs.cmd); err != nil {
			rs.log.Warn("failed to signal process group",
				zap.String("id", rs.ID), zap.Error(err))
		}
	})
	return rs.returnCode.Await(ctx)
}

// Snapshot captures the execution's current externally-visible state.
func (rs *RunningScript) Snapshot() Snapshot {
	rc, rcSet := rs.returnCode.TryGet()
	et, etSet := rs.endTime.TryGet()

	var rcPtr *int
	if rcSet {
		rcPtr = &rc
	}
	var etPtr *time.Time
	if etSet {
		etPtr = &et
	}

	return Snapshot{
		ID:             rs.ID,
		ScriptBasename: rs.Script.Basename,
		DisplayName:    rs.Script.DisplayName,
		Args:           rs.Args,
		StartTime:      rs.StartTime,
		EndTime:        etPtr,
		Progress:       rs.progress.Current(),
		Status:         rs.status.Current(),
		ReturnCode:     rcPtr,
	}
}
