package heap

import (
	"log/slog"
	"math"
	"sync"

	"sable/internal/value"
)

// CellKind tags an arena cell.
type CellKind uint8

const (
	CellFree   CellKind = iota
	CellInt             // boxed int64 in Bits
	CellFloat           // float64 bits in Bits
	CellStr             // Str
	CellBytes           // Str holds raw bytes
	CellList            // Refs
	CellMap             // Keys + Refs, parallel
	CellStruct          // Str = name, Keys + Refs
	CellEnum            // Str = name, Str2 = variant, Refs[0] = payload (len 0 for bare)
	CellSome            // Refs[0]
	CellResult          // Bits = 1 for Ok, Refs[0] = payload
	CellOpaque          // Bits = handle id of a Box or Task in the side table
)

// Cell is one arena-allocated record: a type tag, payload, and outgoing
// references to other cells (as Words, never pointers).
type Cell struct {
	Kind CellKind
	mark bool
	Bits uint64
	Str  string
	Str2 string
	Keys []string
	Refs []Word
}

// Frame is a run of scanned slots registered as GC roots. Compiled
// functions keep every live reference materialized here before any
// point where a collection can run.
type Frame struct {
	Slots []Word
}

// Arena owns all heap cells plus the root set. It is the only state
// shared between threads running different tasks; the mutex gives the
// collector its stop-the-world invariant.
//
// gcMu serializes collection against compound mutations: a mutator
// holds the read side while it builds structures not yet reachable
// from a root, and Collect takes the write side. Cells never move, so
// threads holding words to rooted cells need no coordination.
type Arena struct {
	mu       sync.Mutex
	gcMu     sync.RWMutex
	cells    []Cell
	freeList []Ref
	pins     map[Word]int
	frames   map[*Frame]struct{}

	opaque     map[uint64]value.Value
	nextOpaque uint64

	allocated uint64
	reclaimed uint64
	lastGC    uint64
}

func NewArena() *Arena {
	return &Arena{
		pins:   map[Word]int{},
		frames: map[*Frame]struct{}{},
		opaque: map[uint64]value.Value{},
	}
}

// Alloc places a cell in the arena and returns its handle.
func (a *Arena) Alloc(c Cell) Word {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.allocLocked(c)
}

func (a *Arena) allocLocked(c Cell) Word {
	a.allocated++
	if n := len(a.freeList); n > 0 {
		ref := a.freeList[n-1]
		a.freeList = a.freeList[:n-1]
		a.cells[ref] = c
		return MakeRef(ref)
	}
	a.cells = append(a.cells, c)
	return MakeRef(Ref(len(a.cells) - 1))
}

// ReadField loads the i-th outgoing reference of a cell.
func (a *Arena) ReadField(w Word, i int) Word {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cells[w.Ref()].Refs[i]
}

// WriteField stores into the i-th outgoing reference of a cell.
func (a *Arena) WriteField(w Word, i int, v Word) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cells[w.Ref()].Refs[i] = v
}

// Pin adds a word to the root set; Unpin removes one pin count. Pinned
// words survive every collection until unpinned.
func (a *Arena) Pin(w Word) {
	if !w.IsRef() {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pins[w]++
}

func (a *Arena) Unpin(w Word) {
	if !w.IsRef() {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pins[w] <= 1 {
		delete(a.pins, w)
	} else {
		a.pins[w]--
	}
}

// RegisterFrame adds a frame's slots to the root set for the duration
// of a compiled call.
func (a *Arena) RegisterFrame(f *Frame) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.frames[f] = struct{}{}
}

func (a *Arena) UnregisterFrame(f *Frame) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.frames, f)
}

// BeginMutate marks the start of a compound mutation whose
// intermediate cells are not yet reachable from a root; EndMutate
// closes it. Collection waits for open mutations to finish.
func (a *Arena) BeginMutate() { a.gcMu.RLock() }

func (a *Arena) EndMutate() { a.gcMu.RUnlock() }

// gcStride is how many allocations may accumulate before the next
// MaybeCollect call runs a collection.
const gcStride = 4096

// MaybeCollect runs a collection once enough allocation has happened
// since the last one. Callers must not hold an open mutation.
func (a *Arena) MaybeCollect() {
	a.mu.Lock()
	due := a.allocated-a.lastGC >= gcStride
	a.mu.Unlock()
	if due {
		a.Collect()
	}
}

// Collect runs a full stop-the-world mark-and-sweep over the current
// root set. Safe to call whenever every live reference is pinned or in
// a registered frame; nothing may be live only in an unscanned
// register. Returns the number of cells reclaimed.
func (a *Arena) Collect() int {
	a.gcMu.Lock()
	defer a.gcMu.Unlock()
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := range a.cells {
		a.cells[i].mark = false
	}

	for w := range a.pins {
		a.markLocked(w)
	}
	for f := range a.frames {
		for _, w := range f.Slots {
			a.markLocked(w)
		}
	}

	reclaimed := 0
	for i := range a.cells {
		c := &a.cells[i]
		if c.Kind == CellFree || c.mark {
			continue
		}
		if c.Kind == CellOpaque {
			delete(a.opaque, c.Bits)
		}
		*c = Cell{Kind: CellFree}
		a.freeList = append(a.freeList, Ref(i))
		reclaimed++
	}
	a.reclaimed += uint64(reclaimed)
	a.lastGC = a.allocated

	slog.Debug("heap collection",
		slog.Int("reclaimed", reclaimed),
		slog.Int("cells", len(a.cells)),
		slog.Int("pins", len(a.pins)))
	return reclaimed
}

func (a *Arena) markLocked(w Word) {
	if !w.IsRef() {
		return
	}
	c := &a.cells[w.Ref()]
	if c.mark || c.Kind == CellFree {
		return
	}
	c.mark = true
	for _, child := range c.Refs {
		a.markLocked(child)
	}
}

// Live counts non-free cells; Allocated and Reclaimed are cumulative.
// The GC soundness tests assert over these instead of inspecting raw
// memory.
func (a *Arena) Live() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	live := 0
	for i := range a.cells {
		if a.cells[i].Kind != CellFree {
			live++
		}
	}
	return live
}

func (a *Arena) Allocated() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.allocated
}

func (a *Arena) Reclaimed() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.reclaimed
}

// BoxInt allocates a boxed int for values outside the immediate range.
func (a *Arena) BoxInt(v int64) Word {
	return a.Alloc(Cell{Kind: CellInt, Bits: uint64(v)})
}

// BoxFloat allocates a float cell.
func (a *Arena) BoxFloat(v float64) Word {
	return a.Alloc(Cell{Kind: CellFloat, Bits: math.Float64bits(v)})
}

// IntOf decodes an immediate or boxed int.
func (a *Arena) IntOf(w Word) (int64, bool) {
	if w.IsInt() {
		return w.Int(), true
	}
	if w.IsRef() {
		a.mu.Lock()
		defer a.mu.Unlock()
		c := &a.cells[w.Ref()]
		if c.Kind == CellInt {
			return int64(c.Bits), true
		}
	}
	return 0, false
}

// MakeIntWord encodes an int64, boxing when it does not fit the
// immediate range. Both engines share this, so wrap semantics cannot
// diverge.
func (a *Arena) MakeIntWord(v int64) Word {
	if FitsInt(v) {
		return MakeInt(v)
	}
	return a.BoxInt(v)
}

func (a *Arena) putOpaque(v value.Value) Word {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextOpaque++
	id := a.nextOpaque
	a.opaque[id] = v
	return a.allocLocked(Cell{Kind: CellOpaque, Bits: id})
}
