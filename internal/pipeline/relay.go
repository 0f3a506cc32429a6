package pipeline

import "fmt"

// Progress is the per-row progress relay. It is invoked synchronously on the
// pipeline's goroutine once per row, before the row's network calls, with
// current strictly increasing from 1 to total.
type Progress func(current, total int, message string)

// Sink receives the pipeline's human-readable log lines, one call per line
// (no trailing newline). Front-ends print it, capture it into a job log, or
// both.
type Sink func(line string)

func (p Progress) report(current, total int, message string) {
	if p != nil {
		p(current, total, message)
	}
}

func (s Sink) logf(format string, args ...interface{}) {
	if s != nil {
		s(fmt.Sprintf(format, args...))
	}
}
