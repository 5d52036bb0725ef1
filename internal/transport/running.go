package transport

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kandev/scripthost/internal/apperrors"
	"github.com/kandev/scripthost/internal/execsvc"
)

func (s *Server) getRunningOr404(c *gin.Context) *execsvc.RunningScript {
	id := c.Param("id")
	rs := s.sup.Get(id)
	if rs == nil {
		writeError(c, apperrors.NotFound("execution", id))
		return nil
	}
	return rs
}

// isClientGone reports whether a blocking wait ended because the client
// went away rather than the awaited state actually changing.
func isClientGone(c *gin.Context, err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(c.Request.Context().Err(), context.Canceled)
}

func (s *Server) handleListRunning(c *gin.Context) {
	snapshots := s.sup.List()
	dtos := make([]RunningSnapshotDTO, len(snapshots))
	for i, snap := range snapshots {
		dtos[i] = toSnapshotDTO(snap)
	}
	c.JSON(http.StatusOK, dtos)
}

func (s *Server) handleGetRunning(c *gin.Context) {
	rs := s.getRunningOr404(c)
	if rs == nil {
		return
	}
	c.JSON(http.StatusOK, toSnapshotDTO(rs.Snapshot()))
}

func (s *Server) handleDeleteRunning(c *gin.Context) {
	id := c.Param("id")
	if err := s.sup.Delete(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleGetOutput(c *gin.Context) {
	rs := s.getRunningOr404(c)
	if rs == nil {
		return
	}

	fromStr, present := c.GetQuery("from")
	if !present {
		c.String(http.StatusOK, rs.GetOutputAll())
		return
	}

	from, err := strconv.Atoi(fromStr)
	if err != nil {
		writeError(c, apperrors.BadRequest("from must be an integer byte offset"))
		return
	}

	out, err := rs.GetOutput(c.Request.Context(), from)
	if err != nil {
		if isClientGone(c, err) {
			return
		}
		writeError(c, apperrors.Internal("failed to read output", err))
		return
	}
	c.String(http.StatusOK, out)
}

func (s *Server) handleGetProgress(c *gin.Context) {
	rs := s.getRunningOr404(c)
	if rs == nil {
		return
	}

	sinceStr, present := c.GetQuery("since")
	if !present {
		p, _ := rs.GetProgress(c.Request.Context(), nil)
		c.JSON(http.StatusOK, [2]float64{p.Numerator, p.Denominator})
		return
	}

	witness, err := parseProgressWitness([]byte(sinceStr))
	if err != nil {
		writeError(c, err)
		return
	}

	p, err := rs.GetProgress(c.Request.Context(), &witness)
	if err != nil {
		if isClientGone(c, err) {
			return
		}
		writeError(c, apperrors.Internal("failed to read progress", err))
		return
	}
	c.JSON(http.StatusOK, [2]float64{p.Numerator, p.Denominator})
}

func (s *Server) handleGetStatus(c *gin.Context) {
	rs := s.getRunningOr404(c)
	if rs == nil {
		return
	}

	since, present := c.GetQuery("since")
	if !present {
		status, _ := rs.GetStatus(c.Request.Context(), nil)
		c.String(http.StatusOK, status)
		return
	}

	status, err := rs.GetStatus(c.Request.Context(), &since)
	if err != nil {
		if isClientGone(c, err) {
			return
		}
		writeError(c, apperrors.Internal("failed to read status", err))
		return
	}
	c.String(http.StatusOK, status)
}

func (s *Server) handleGetReturnCode(c *gin.Context) {
	rs := s.getRunningOr404(c)
	if rs == nil {
		return
	}

	rc, err := rs.GetReturnCode(c.Request.Context())
	if err != nil {
		if isClientGone(c, err) {
			return
		}
		writeError(c, apperrors.Internal("failed to read return code", err))
		return
	}
	c.String(http.StatusOK, strconv.Itoa(rc))
}

func (s *Server) handleGetEndTime(c *gin.Context) {
	rs := s.getRunningOr404(c)
	if rs == nil {
		return
	}

	et, err := rs.GetEndTime(c.Request.Context())
	if err != nil {
		if isClientGone(c, err) {
			return
		}
		writeError(c, apperrors.Internal("failed to read end time", err))
		return
	}
	c.String(http.StatusOK, et.UTC().Format(time.RFC3339Nano))
}

func (s *Server) handleKill(c *gin.Context) {
	rs := s.getRunningOr404(c)
	if rs == nil {
		return
	}

	if _, err := rs.Kill(c.Request.Context()); err != nil {
		if isClientGone(c, err) {
			return
		}
		writeError(c, apperrors.Internal("failed to kill execution", err))
		return
	}
	c.Status(http.StatusNoContent)
}
