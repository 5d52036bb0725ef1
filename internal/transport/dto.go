package transport

import (
	"encoding/json"
	"time"

	"github.com/kandev/scripthost/internal/apperrors"
	"github.com/kandev/scripthost/internal/execsvc"
	"github.com/kandev/scripthost/internal/registry"
)

// ArgumentDTO is the wire shape of registry.Argument.
type ArgumentDTO struct {
	Type        string  `json:"type"`
	Description *string `json:"description"`
}

// ScriptDTO is the wire shape of one GET /scripts/ entry.
type ScriptDTO struct {
	Script      string        `json:"script"`
	Name        string        `json:"name"`
	Description *string       `json:"description"`
	Args        []ArgumentDTO `json:"args"`
}

func toScriptDTO(s registry.Script) ScriptDTO {
	args := make([]ArgumentDTO, len(s.Args))
	for i, a := range s.Args {
		args[i] = ArgumentDTO{Type: a.Type, Description: a.Description}
	}
	return ScriptDTO{
		Script:      s.Basename,
		Name:        s.DisplayName,
		Description: s.Description,
		Args:        args,
	}
}

// RunningSnapshotDTO is the wire shape of one execution snapshot.
type RunningSnapshotDTO struct {
	ID         string     `json:"id"`
	Script     string     `json:"script"`
	Name       string     `json:"name"`
	Args       []string   `json:"args"`
	StartTime  string     `json:"start_time"`
	EndTime    *string    `json:"end_time"`
	Progress   [2]float64 `json:"progress"`
	Status     string     `json:"status"`
	ReturnCode *int       `json:"return_code"`
}

func toSnapshotDTO(snap execsvc.Snapshot) RunningSnapshotDTO {
	var endTime *string
	if snap.EndTime != nil {
		formatted := snap.EndTime.UTC().Format(time.RFC3339Nano)
		endTime = &formatted
	}
	return RunningSnapshotDTO{
		ID:         snap.ID,
		Script:     snap.ScriptBasename,
		Name:       snap.DisplayName,
		Args:       snap.Args,
		StartTime:  snap.StartTime.UTC().Format(time.RFC3339Nano),
		EndTime:    endTime,
		Progress:   [2]float64{snap.Progress.Numerator, snap.Progress.Denominator},
		Status:     snap.Status,
		ReturnCode: snap.ReturnCode,
	}
}

// parseProgressWitness decodes a `since` payload into a ProgressPair
// witness, requiring exactly two numbers. encoding/json would silently
// zero-pad a short array or truncate a long one if unmarshalled straight
// into a [2]float64, so the length is checked explicitly against an
// intermediate slice first.
func parseProgressWitness(raw []byte) (execsvc.ProgressPair, error) {
	var values []float64
	if err := json.Unmarshal(raw, &values); err != nil {
		return execsvc.ProgressPair{}, apperrors.BadRequest("since must be a 2-element JSON array of numbers")
	}
	if len(values) != 2 {
		return execsvc.ProgressPair{}, apperrors.BadRequest("since must be a 2-element JSON array of numbers")
	}
	return execsvc.ProgressPair{Numerator: values[0], Denominator: values[1]}, nil
}
