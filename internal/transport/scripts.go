package transport

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kandev/scripthost/internal/apperrors"
	"github.com/kandev/scripthost/internal/registry"
)

func (s *Server) handleListScripts(c *gin.Context) {
	scripts, err := registry.Enumerate(s.scriptDir)
	if err != nil {
		writeError(c, apperrors.Internal("failed to enumerate scripts", err))
		return
	}

	dtos := make([]ScriptDTO, len(scripts))
	for i, script := range scripts {
		dtos[i] = toScriptDTO(script)
	}
	c.JSON(http.StatusOK, dtos)
}

func (s *Server) handleStartScript(c *gin.Context) {
	basename := c.Param("basename")

	script, ok, err := registry.Lookup(s.scriptDir, basename)
	if err != nil {
		writeError(c, apperrors.Internal("failed to look up script", err))
		return
	}
	if !ok {
		writeError(c, apperrors.NotFound("script", basename))
		return
	}

	args, scratchDirs, err := collectArguments(c, basename)
	if err != nil {
		removeScratchDirs(scratchDirs)
		writeError(c, err)
		return
	}

	id := s.sup.Create(script, args, scratchDirs)
	c.String(http.StatusOK, id)
}
