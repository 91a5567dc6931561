package encoder

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"mediaqueue/internal/domain"
	"mediaqueue/internal/metrics"
)

// stderrTailBytes bounds how much trailing encoder output is kept for
// error reporting.
const stderrTailBytes = 4096

// Runner executes one encoder invocation. onProgress, when non-nil,
// receives percentages in [0,100] extracted from the encoder's status
// stream; inputs without a parseable duration produce no live progress.
type Runner interface {
	Run(ctx context.Context, args []string, onProgress func(pct float64)) error
}

// Driver runs the configured encoder binary as a subprocess and extracts
// progress from its textual stderr: the first "Duration: HH:MM:SS.ff" fixes
// the total, each "time=HH:MM:SS.ff" thereafter yields a percentage.
type Driver struct {
	binary string
	logger *slog.Logger
}

func NewDriver(binary string, logger *slog.Logger) *Driver {
	bin := strings.TrimSpace(binary)
	if bin == "" {
		bin = "ffmpeg"
	}
	return &Driver{binary: bin, logger: logger}
}

func (d *Driver) Run(ctx context.Context, args []string, onProgress func(pct float64)) error {
	cmd := exec.CommandContext(ctx, d.binary, args...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrEncoderUnavailable, err)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrEncoderUnavailable, err)
	}

	tail := &tailBuffer{limit: stderrTailBytes}
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scanner.Split(scanStatusLines)

	var totalSeconds float64
	for scanner.Scan() {
		line := scanner.Text()
		tail.writeLine(line)

		if totalSeconds == 0 {
			if total, ok := parseDurationLine(line); ok {
				totalSeconds = total
				continue
			}
		}
		if onProgress == nil || totalSeconds <= 0 {
			continue
		}
		if current, ok := parseTimeValue(line); ok {
			pct := current / totalSeconds * 100
			if pct > 100 {
				pct = 100
			}
			onProgress(pct)
		}
	}

	waitErr := cmd.Wait()
	metrics.EncodeDuration.Observe(time.Since(start).Seconds())

	if waitErr != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			return &domain.EncoderError{Code: exitErr.ExitCode(), StderrTail: tail.String()}
		}
		return fmt.Errorf("%w: %v", domain.ErrEncoderUnavailable, waitErr)
	}
	return nil
}

// scanStatusLines splits on \n or \r; the encoder rewrites its status line
// with carriage returns, so a plain line scanner would miss every update
// until the process exits.
func scanStatusLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// tailBuffer keeps the last limit bytes of line-oriented output.
type tailBuffer struct {
	limit int
	buf   bytes.Buffer
}

func (t *tailBuffer) writeLine(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	t.buf.WriteString(line)
	t.buf.WriteByte('\n')
	if t.buf.Len() > t.limit {
		data := t.buf.Bytes()
		trimmed := data[len(data)-t.limit:]
		var next bytes.Buffer
		next.Write(trimmed)
		t.buf = next
	}
}

func (t *tailBuffer) String() string {
	return strings.TrimSpace(t.buf.String())
}
