package trace

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// VerifyResult is the outcome of verifying a trace file.
type VerifyResult struct {
	EventCount int
	Valid      bool
	BrokenAt   int // -1 if no break
	Runs       int
	Commands   int
	Errors     int
	Error      string
}

// VerifyFile checks the structure of a trace file.
func VerifyFile(path string) (*VerifyResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	defer f.Close()
	return Verify(f)
}

// Verify checks that every line is an event and that each run's start and
// complete events are balanced with matching depths.
func Verify(r io.Reader) (*VerifyResult, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024) // 1MB max line

	result := &VerifyResult{BrokenAt: -1}
	open := make(map[string]int) // run id -> open script runs
	count := 0

	broken := func(format string, args ...any) (*VerifyResult, error) {
		result.EventCount = count
		result.BrokenAt = count
		result.Error = fmt.Sprintf("event %d: ", count) + fmt.Sprintf(format, args...)
		return result, nil
	}

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		count++

		var evt Event
		if err := json.Unmarshal(line, &evt); err != nil {
			return broken("invalid JSON: %v", err)
		}

		switch evt.Type {
		case EventRunStart:
			if evt.Depth != open[evt.RunID] {
				return broken("run_start at depth %d, expected %d", evt.Depth, open[evt.RunID])
			}
			if evt.Depth == 0 {
				result.Runs++
			}
			open[evt.RunID]++
		case EventRunComplete:
			if open[evt.RunID] == 0 {
				return broken("run_complete without run_start")
			}
			open[evt.RunID]--
			if evt.Depth != open[evt.RunID] {
				return broken("run_complete at depth %d, expected %d", evt.Depth, open[evt.RunID])
			}
		case EventCommandStart:
			result.Commands++
		case EventErrorCaptured:
			result.Errors++
		case EventCommandComplete, EventErrorCleared, EventExit:
		default:
			return broken("unknown event type %q", evt.Type)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}

	result.EventCount = count
	for id, n := range open {
		if n > 0 {
			result.Error = fmt.Sprintf("run %s: %d script runs not completed", id, n)
			return result, nil
		}
	}
	result.Valid = true
	return result, nil
}
