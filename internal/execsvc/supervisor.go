package execsvc

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kandev/scripthost/internal/apperrors"
	"github.com/kandev/scripthost/internal/logger"
	"github.com/kandev/scripthost/internal/registry"
)

// Supervisor is the process-wide, insertion-ordered mapping from execution
// id to RunningScript. It owns creation (id allocation, spawn, deferred
// cleanup scheduling), explicit deletion, and shutdown.
type Supervisor struct {
	mu            sync.Mutex
	order         []string
	executions    map[string]*RunningScript
	cancelCleanup map[string]context.CancelFunc

	cleanupDelay time.Duration
	readChunkLen int
	log          *logger.Logger

	cleanupWG sync.WaitGroup
}

// NewSupervisor builds an empty Supervisor. cleanupDelay is how long a
// finished execution's record and scratch directories are retained before
// automatic removal; readChunkLen bounds pipe reads handed to the line
// demultiplexer.
func NewSupervisor(cleanupDelay time.Duration, readChunkLen int, log *logger.Logger) *Supervisor {
	return &Supervisor{
		executions:    make(map[string]*RunningScript),
		cancelCleanup: make(map[string]context.CancelFunc),
		cleanupDelay:  cleanupDelay,
		readChunkLen:  readChunkLen,
		log:           log,
	}
}

// Create allocates an id, starts the script as a child process, records it,
// and schedules the deferred cleanup task.
func (s *Supervisor) Create(script registry.Script, args []string, scratchDirs []string) string {
	id := uuid.NewString()
	rs := NewRunningScript(id, script, args, scratchDirs, s.readChunkLen, s.log)

	cleanupCtx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.order = append(s.order, id)
	s.executions[id] = rs
	s.cancelCleanup[id] = cancel
	s.mu.Unlock()

	s.cleanupWG.Add(1)
	go s.runDeferredCleanup(cleanupCtx, id, rs)

	return id
}

func (s *Supervisor) runDeferredCleanup(ctx context.Context, id string, rs *RunningScript) {
	defer s.cleanupWG.Done()
	defer removeScratchDirs(rs.ScratchDirs, s.log)

	if _, err := rs.GetReturnCode(ctx); err != nil {
		// Cancelled before the child ever exited (shutdown racing an
		// in-flight execution). Scratch dirs are still released above.
		return
	}

	select {
	case <-time.After(s.cleanupDelay):
	case <-ctx.Done():
		return
	}

	s.mu.Lock()
	delete(s.executions, id)
	delete(s.cancelCleanup, id)
	s.removeFromOrderLocked(id)
	s.mu.Unlock()
}

func (s *Supervisor) removeFromOrderLocked(id string) {
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

// List returns execution snapshots in start-time (insertion) order.
func (s *Supervisor) List() []Snapshot {
	s.mu.Lock()
	ids := make([]string, len(s.order))
	copy(ids, s.order)
	execs := make(map[string]*RunningScript, len(ids))
	for _, id := range ids {
		execs[id] = s.executions[id]
	}
	s.mu.Unlock()

	snapshots := make([]Snapshot, 0, len(ids))
	for _, id := range ids {
		if rs := execs[id]; rs != nil {
			snapshots = append(snapshots, rs.Snapshot())
		}
	}
	return snapshots
}

// Get returns the RunningScript for id, or nil if no such live execution
// exists.
func (s *Supervisor) Get(id string) *RunningScript {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.executions[id]
}

// Delete kills (idempotently) the execution's child, removes it from the
// mapping immediately, deletes its scratch directories, and cancels its
// deferred cleanup task.
func (s *Supervisor) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	rs, ok := s.executions[id]
	if !ok {
		s.mu.Unlock()
		return apperrors.NotFound("execution", id)
	}
	cancel := s.cancelCleanup[id]
	delete(s.executions, id)
	delete(s.cancelCleanup, id)
	s.removeFromOrderLocked(id)
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if _, err := rs.Kill(ctx); err != nil {
		s.log.Warn("kill did not observe return code before context was done",
			zap.String("id", id), zap.Error(err))
	}
	removeScratchDirs(rs.ScratchDirs, s.log)
	return nil
}

// Shutdown kills every live child, cancels every deferred cleanup task, and
// waits for their scratch directories to be released before returning.
func (s *Supervisor) Shutdown(ctx context.Context) {
	s.mu.Lock()
	ids := make([]string, len(s.order))
	copy(ids, s.order)
	execs := make(map[string]*RunningScript, len(ids))
	cancels := make([]context.CancelFunc, 0, len(s.cancelCleanup))
	for _, id := range ids {
		execs[id] = s.executions[id]
	}
	for _, cancel := range s.cancelCleanup {
		cancels = append(cancels, cancel)
	}
	s.order = nil
	s.executions = make(map[string]*RunningScript)
	s.cancelCleanup = make(map[string]context.CancelFunc)
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		rs := execs[id]
		if rs == nil {
			continue
		}
		wg.Add(1)
		go func(rs *RunningScript) {
			defer wg.Done()
			if _, err := rs.Kill(ctx); err != nil {
				s.log.Warn("shutdown kill did not observe return code", zap.Error(err))
			}
		}(rs)
	}
	wg.Wait()

	s.cleanupWG.Wait()
}

func removeScratchDirs(dirs []string, log *logger.Logger) {
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			log.Warn("failed to remove scratch directory", zap.String("dir", dir), zap.Error(err))
		}
	}
}
