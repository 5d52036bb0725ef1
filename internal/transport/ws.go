package transport

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kandev/scripthost/internal/execsvc"
)

// wsRequest is one client message on /running/ws. A message with no Type
// is a cancellation of the in-flight command sharing its ID.
type wsRequest struct {
	ID    string          `json:"id"`
	Type  string          `json:"type,omitempty"`
	RSID  string          `json:"rs_id,omitempty"`
	After *int            `json:"after,omitempty"`
	Since json.RawMessage `json:"since,omitempty"`
}

// wsResponse is one server message on /running/ws.
type wsResponse struct {
	ID    string      `json:"id"`
	Value interface{} `json:"value,omitempty"`
	Error string      `json:"error,omitempty"`
}

// wsConn tracks the in-flight commands for one WebSocket connection so a
// bare {id} cancellation message can locate and cancel the right one and
// suppress its reply.
type wsConn struct {
	mu         sync.Mutex
	cancels    map[string]context.CancelFunc
	suppressed map[string]bool
}

func newWSConn() *wsConn {
	return &wsConn{
		cancels:    make(map[string]context.CancelFunc),
		suppressed: make(map[string]bool),
	}
}

func (w *wsConn) register(id string, cancel context.CancelFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.suppressed, id)
	w.cancels[id] = cancel
}

// cancel cancels and suppresses the reply for an in-flight command. It is
// a no-op if no command with that id is in flight.
func (w *wsConn) cancel(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if cancel, ok := w.cancels[id]; ok {
		cancel()
		delete(w.cancels, id)
	}
	w.suppressed[id] = true
}

// finish reports whether the reply for id should still be sent, and clears
// its bookkeeping either way.
func (w *wsConn) finish(id string) (shouldSend bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	skip := w.suppressed[id]
	delete(w.suppressed, id)
	delete(w.cancels, id)
	return !skip
}

func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx := c.Request.Context()
	tracker := newWSConn()

	send := make(chan wsResponse, 16)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for resp := range send {
			if err := conn.WriteJSON(resp); err != nil {
				return
			}
		}
	}()

	var wg sync.WaitGroup
	defer func() {
		close(send)
		<-writerDone
		wg.Wait()
	}()

	for {
		var req wsRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}

		if req.Type == "" {
			tracker.cancel(req.ID)
			continue
		}

		cmdCtx, cancel := context.WithCancel(ctx)
		tracker.register(req.ID, cancel)

		wg.Add(1)
		go func(req wsRequest, cmdCtx context.Context, cancel context.CancelFunc) {
			defer wg.Done()
			resp := s.handleWSCommand(cmdCtx, req)
			cancel()
			if !tracker.finish(req.ID) {
				return
			}
			select {
			case send <- resp:
			case <-writerDone:
			}
		}(req, cmdCtx, cancel)
	}
}

func (s *Server) handleWSCommand(ctx context.Context, req wsRequest) wsResponse {
	rs := s.sup.Get(req.RSID)
	if rs == nil {
		return wsResponse{ID: req.ID, Error: "unknown rs_id"}
	}

	switch req.Type {
	case "get_output":
		after := 0
		if req.After != nil {
			after = *req.After
		}
		out, err := rs.GetOutput(ctx, after)
		if err != nil {
			return wsResponse{ID: req.ID, Error: err.Error()}
		}
		return wsResponse{ID: req.ID, Value: out}

	case "get_progress":
		witness, err := decodeProgressSince(req.Since)
		if err != nil {
			return wsResponse{ID: req.ID, Error: err.Error()}
		}
		p, err := rs.GetProgress(ctx, witness)
		if err != nil {
			return wsResponse{ID: req.ID, Error: err.Error()}
		}
		return wsResponse{ID: req.ID, Value: [2]float64{p.Numerator, p.Denominator}}

	case "get_status":
		witness, err := decodeStatusSince(req.Since)
		if err != nil {
			return wsResponse{ID: req.ID, Error: err.Error()}
		}
		status, err := rs.GetStatus(ctx, witness)
		if err != nil {
			return wsResponse{ID: req.ID, Error: err.Error()}
		}
		return wsResponse{ID: req.ID, Value: status}

	case "get_return_code":
		rc, err := rs.GetReturnCode(ctx)
		if err != nil {
			return wsResponse{ID: req.ID, Error: err.Error()}
		}
		return wsResponse{ID: req.ID, Value: rc}

	case "get_end_time":
		et, err := rs.GetEndTime(ctx)
		if err != nil {
			return wsResponse{ID: req.ID, Error: err.Error()}
		}
		return wsResponse{ID: req.ID, Value: et.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")}

	default:
		return wsResponse{ID: req.ID, Error: "unknown command type"}
	}
}

func decodeProgressSince(raw json.RawMessage) (*execsvc.ProgressPair, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	witness, err := parseProgressWitness(raw)
	if err != nil {
		return nil, err
	}
	return &witness, nil
}

func decodeStatusSince(raw json.RawMessage) (*string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var since string
	if err := json.Unmarshal(raw, &since); err != nil {
		return nil, err
	}
	return &since, nil
}
