package hostcall

import (
	"fmt"
	"sync"
)

// EffectLog records externally visible side effects in emission order.
// Effects inside one task are totally ordered; the parity harness diffs
// this log line by line between engines.
type EffectLog struct {
	mu      sync.Mutex
	entries []string
}

func NewEffectLog() *EffectLog {
	return &EffectLog{}
}

func (l *EffectLog) Record(kind string, format string, a ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, kind+" "+fmt.Sprintf(format, a...))
}

func (l *EffectLog) Entries() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *EffectLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
