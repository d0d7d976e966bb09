package value

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

const (
	NULL_KIND   = "NULL"
	BOOL_KIND   = "BOOL"
	INT_KIND    = "INT"
	FLOAT_KIND  = "FLOAT"
	STR_KIND    = "STR"
	BYTES_KIND  = "BYTES"
	LIST_KIND   = "LIST"
	MAP_KIND    = "MAP"
	STRUCT_KIND = "STRUCT"
	ENUM_KIND   = "ENUM"
	OPTION_KIND = "OPTION"
	RESULT_KIND = "RESULT"
	BOX_KIND    = "BOX"
	TASK_KIND   = "TASK"
	ERR_KIND    = "ERROR"
)

var (
	NULL  = &Null{}
	TRUE  = &Bool{Value: true}
	FALSE = &Bool{Value: false}
	NONE  = &Option{Value: nil}
)

type Kind string

// Value is the one representation shared by the interpreter, the heap
// runtime and everything crossing the host-call boundary. A value built
// by either engine must be expressible here.
type Value interface {
	Kind() Kind
	Inspect() string
}

type Null struct{}

func (n *Null) Kind() Kind      { return NULL_KIND }
func (n *Null) Inspect() string { return "null" }

type Bool struct {
	Value bool
}

func (b *Bool) Kind() Kind      { return BOOL_KIND }
func (b *Bool) Inspect() string { return strconv.FormatBool(b.Value) }

type Int struct {
	Value int64
}

func (i *Int) Kind() Kind      { return INT_KIND }
func (i *Int) Inspect() string { return strconv.FormatInt(i.Value, 10) }

type Float struct {
	Value float64
}

func (f *Float) Kind() Kind { return FLOAT_KIND }
func (f *Float) Inspect() string {
	return strconv.FormatFloat(f.Value, 'g', -1, 64)
}

type Str struct {
	Value string
}

func (s *Str) Kind() Kind      { return STR_KIND }
func (s *Str) Inspect() string { return s.Value }

type Bytes struct {
	Value []byte
}

func (b *Bytes) Kind() Kind { return BYTES_KIND }
func (b *Bytes) Inspect() string {
	return `0x"` + hex.EncodeToString(b.Value) + `"`
}

type List struct {
	Elements []Value
}

func (l *List) Kind() Kind { return LIST_KIND }
func (l *List) Inspect() string {
	var out bytes.Buffer

	elements := []string{}
	for _, e := range l.Elements {
		elements = append(elements, e.Inspect())
	}

	out.WriteString("[")
	out.WriteString(strings.Join(elements, ", "))
	out.WriteString("]")

	return out.String()
}

// Map is string-keyed. Keys keeps insertion order so rendering and
// side-effect comparison stay deterministic across engines.
type Map struct {
	Keys  []string
	Pairs map[string]Value
}

func NewMap() *Map {
	return &Map{Pairs: map[string]Value{}}
}

func (m *Map) Put(key string, v Value) *Map {
	if m.Pairs == nil {
		m.Pairs = map[string]Value{}
	}
	if _, ok := m.Pairs[key]; !ok {
		m.Keys = append(m.Keys, key)
	}
	m.Pairs[key] = v
	return m
}

func (m *Map) Get(key string) (Value, bool) {
	v, ok := m.Pairs[key]
	return v, ok
}

func (m *Map) Kind() Kind { return MAP_KIND }
func (m *Map) Inspect() string {
	var out bytes.Buffer

	pairs := []string{}
	for _, k := range m.Keys {
		pairs = append(pairs, fmt.Sprintf("%s: %s", k, m.Pairs[k].Inspect()))
	}

	out.WriteString("{")
	out.WriteString(strings.Join(pairs, ", "))
	out.WriteString("}")

	return out.String()
}

type Struct struct {
	Name       string
	FieldNames []string
	Fields     map[string]Value
}

func NewStruct(name string) *Struct {
	return &Struct{Name: name, Fields: map[string]Value{}}
}

func (s *Struct) Set(field string, v Value) *Struct {
	if s.Fields == nil {
		s.Fields = map[string]Value{}
	}
	if _, ok := s.Fields[field]; !ok {
		s.FieldNames = append(s.FieldNames, field)
	}
	s.Fields[field] = v
	return s
}

func (s *Struct) Get(field string) (Value, bool) {
	v, ok := s.Fields[field]
	return v, ok
}

func (s *Struct) Kind() Kind { return STRUCT_KIND }
func (s *Struct) Inspect() string {
	var out bytes.Buffer
	if s.Name != "" {
		out.WriteString(s.Name)
		out.WriteString(" ")
	}
	out.WriteString("{")
	parts := []string{}
	for _, name := range s.FieldNames {
		parts = append(parts, name+": "+s.Fields[name].Inspect())
	}
	out.WriteString(strings.Join(parts, ", "))
	out.WriteString("}")
	return out.String()
}

type Enum struct {
	Name    string
	Variant string
	Payload Value
}

func (e *Enum) Kind() Kind { return ENUM_KIND }
func (e *Enum) Inspect() string {
	var out bytes.Buffer
	if e.Name != "" {
		out.WriteString(e.Name)
		out.WriteString(".")
	}
	out.WriteString(e.Variant)
	if e.Payload != nil {
		out.WriteString("(")
		out.WriteString(e.Payload.Inspect())
		out.WriteString(")")
	}
	return out.String()
}

// Option is a nullable wrapper, not an enum variant. A nil Value means
// None.
type Option struct {
	Value Value
}

func Some(v Value) *Option { return &Option{Value: v} }

func (o *Option) IsNone() bool { return o.Value == nil }

func (o *Option) Kind() Kind { return OPTION_KIND }
func (o *Option) Inspect() string {
	if o.Value == nil {
		return "None"
	}
	return "Some(" + o.Value.Inspect() + ")"
}

type Result struct {
	IsOk  bool
	Value Value
}

func Ok(v Value) *Result    { return &Result{IsOk: true, Value: v} }
func ErrOf(v Value) *Result { return &Result{IsOk: false, Value: v} }

func (r *Result) Kind() Kind { return RESULT_KIND }
func (r *Result) Inspect() string {
	tag := "Err"
	if r.IsOk {
		tag = "Ok"
	}
	payload := "null"
	if r.Value != nil {
		payload = r.Value.Inspect()
	}
	return tag + "(" + payload + ")"
}

// Box is the only user-visible shared-mutable value. Writes are
// serialized by the internal lock; tasks are statically forbidden
// upstream from capturing a Box, so no cross-task memory model is
// needed beyond this.
type Box struct {
	mu    sync.Mutex
	value Value
}

func NewBox(v Value) *Box { return &Box{value: v} }

func (b *Box) Load() Value {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.value
}

func (b *Box) Store(v Value) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.value = v
}

func (b *Box) Kind() Kind { return BOX_KIND }
func (b *Box) Inspect() string {
	return "box(" + b.Load().Inspect() + ")"
}

// Err is a runtime value error: an ordinary typed failure carried
// through normal control flow. ErrKind is the stable classification the
// parity harness compares; it must never depend on which engine
// produced the error.
type Err struct {
	ErrKind string
	Message string
}

func (e *Err) Kind() Kind { return ERR_KIND }
func (e *Err) Inspect() string {
	return "error " + e.ErrKind + ": " + e.Message
}

func (e *Err) Error() string { return e.ErrKind + ": " + e.Message }

func NewErr(kind string, format string, a ...interface{}) *Err {
	return &Err{ErrKind: kind, Message: fmt.Sprintf(format, a...)}
}

// Stable error kinds shared by both engines.
const (
	ErrDivByZero   = "div_by_zero"
	ErrTypeError   = "type_error"
	ErrUndefined   = "undefined"
	ErrBadArgument = "bad_argument"
	ErrDecode      = "decode_error"
	ErrValidation  = "validation_error"
	ErrHostFailure = "host_failure"
	ErrUnsupported = "unsupported"
)

func BoolOf(b bool) *Bool {
	if b {
		return TRUE
	}
	return FALSE
}

func IsTruthy(v Value) bool {
	switch v := v.(type) {
	case *Null:
		return false
	case *Bool:
		return v.Value
	default:
		return true
	}
}

func IsErr(v Value) bool {
	if v == nil {
		return false
	}
	return v.Kind() == ERR_KIND
}
