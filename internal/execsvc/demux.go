package execsvc

import (
	"math"
	"strconv"
	"strings"
)

// ProgressPair is the numerator/denominator pair a script reports via
// "## progress: ..." telemetry lines.
type ProgressPair struct {
	Numerator   float64
	Denominator float64
}

func progressEqual(a, b ProgressPair) bool {
	return a.Numerator == b.Numerator && a.Denominator == b.Denominator
}

// lineSplitter accumulates bytes from one stream and emits complete,
// newline-terminated lines as they become available, holding the trailing
// partial line as residue between calls.
type lineSplitter struct {
	residue []byte
}

// feed appends chunk to the residue and invokes handle once per complete
// line found, including the trailing "\n".
func (ls *lineSplitter) feed(chunk []byte, handle func(line []byte)) {
	buf := make([]byte, 0, len(ls.residue)+len(chunk))
	buf = append(buf, ls.residue...)
	buf = append(buf, chunk...)

	start := 0
	for i := 0; i < len(buf); i++ {
		if buf[i] == '\n' {
			line := make([]byte, i-start+1)
			copy(line, buf[start:i+1])
			handle(line)
			start = i + 1
		}
	}
	ls.residue = append([]byte(nil), buf[start:]...)
}

// flush returns and clears any trailing bytes that never formed a complete
// line. Callers append these to the output buffer as-is, never classifying
// them as telemetry.
func (ls *lineSplitter) flush() []byte {
	if len(ls.residue) == 0 {
		return nil
	}
	leftover := ls.residue
	ls.residue = nil
	return leftover
}

// classifyLine inspects one newline-terminated (or final, partial) line and
// reports whether it is a telemetry declaration, and if so its trimmed key
// and value.
func classifyLine(line []byte) (isTelemetry bool, key, value string) {
	text := strings.TrimRight(string(line), "\n")
	trimmed := strings.TrimLeft(text, " \t")
	if !strings.HasPrefix(trimmed, "##") {
		return false, "", ""
	}
	rest := trimmed[2:]
	idx := strings.IndexByte(rest, ':')
	if idx < 0 {
		return false, "", ""
	}
	key = strings.TrimSpace(rest[:idx])
	value = strings.TrimSpace(rest[idx+1:])
	return true, key, value
}

// parseProgress parses a "## progress" value into a ProgressPair, following
// either the "numerator/denominator" or bare-fraction form. It reports
// false on any parse failure, including non-finite numbers.
func parseProgress(value string) (ProgressPair, bool) {
	if num, den, ok := strings.Cut(value, "/"); ok {
		n, errN := strconv.ParseFloat(strings.TrimSpace(num), 64)
		d, errD := strconv.ParseFloat(strings.TrimSpace(den), 64)
		if errN != nil || errD != nil || !isFinite(n) || !isFinite(d) {
			return ProgressPair{}, false
		}
		return ProgressPair{Numerator: n, Denominator: d}, true
	}

	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || !isFinite(f) {
		return ProgressPair{}, false
	}
	return ProgressPair{Numerator: f, Denominator: 1}, true
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
