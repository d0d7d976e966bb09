package value

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// JSON codec for values. This is the single decode/validate-grade
// implementation: the interpreter calls it directly and compiled code
// reaches it through the host-call boundary, so both engines observe
// byte-identical decode behavior.
//
// Plain JSON maps onto plain values (object -> MAP, array -> LIST,
// string/bool/null -> STR/BOOL/NULL, number -> INT when integral and
// exactly representable, FLOAT otherwise). Tagged objects of the form
// {"type": T, "data": ...} carry the non-plain kinds:
//
//	{"type":"Ok","data":...} / {"type":"Err","data":...}  -> RESULT
//	{"type":"Some","data":...} / {"type":"None"}          -> OPTION
//	{"type":"Bytes","data":"<hex>"}                       -> BYTES
//	{"type":"Struct","name":N,"data":{...}}               -> STRUCT
//	{"type":"Enum","name":N,"variant":V,"data":...}       -> ENUM
//	{"type":"Map","data":[[K,V],...]}                     -> MAP
//
// The last form is an escape hatch: a plain map whose own "type" key
// holds one of the tag strings above would otherwise decode as the
// tagged kind, so the encoder renders such maps as an ordered entries
// array instead. decode(encode(v)) == v holds either way.
//
// A Result payload that is a JSON object decodes as an anonymous
// struct, matching the upstream frontend's typed Result<T,E> shapes.

// Decode parses JSON text into a value. Object key order is preserved,
// which keeps decode deterministic across runs and engines.
func Decode(text string) (Value, *Err) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	v, err := decodeNext(dec)
	if err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, NewErr(ErrDecode, "trailing content after JSON value")
	}
	return v, nil
}

func decodeNext(dec *json.Decoder) (Value, *Err) {
	tok, err := dec.Token()
	if err == io.EOF {
		return nil, NewErr(ErrDecode, "unexpected end of JSON input")
	}
	if err != nil {
		return nil, NewErr(ErrDecode, "invalid JSON: %v", err)
	}
	return decodeToken(dec, tok)
}

func decodeToken(dec *json.Decoder, tok json.Token) (Value, *Err) {
	switch tok := tok.(type) {
	case nil:
		return NULL, nil
	case bool:
		return BoolOf(tok), nil
	case string:
		return &Str{Value: tok}, nil
	case json.Number:
		return decodeNumber(tok)
	case json.Delim:
		switch tok {
		case '[':
			list := &List{}
			for dec.More() {
				elem, verr := decodeNext(dec)
				if verr != nil {
					return nil, verr
				}
				list.Elements = append(list.Elements, elem)
			}
			if _, err := dec.Token(); err != nil {
				return nil, NewErr(ErrDecode, "invalid JSON: %v", err)
			}
			return list, nil
		case '{':
			return decodeObject(dec)
		}
	}
	return nil, NewErr(ErrDecode, "unexpected JSON token %v", tok)
}

func decodeNumber(n json.Number) (Value, *Err) {
	s := n.String()
	if !strings.ContainsAny(s, ".eE") {
		i, err := strconv.ParseInt(s, 10, 64)
		if err == nil {
			return &Int{Value: i}, nil
		}
	}
	f, err := n.Float64()
	if err != nil {
		return nil, NewErr(ErrDecode, "invalid number %q", s)
	}
	return &Float{Value: f}, nil
}

func decodeObject(dec *json.Decoder) (Value, *Err) {
	keys := []string{}
	vals := map[string]Value{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, NewErr(ErrDecode, "invalid JSON: %v", err)
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, NewErr(ErrDecode, "object key is not a string")
		}
		child, verr := decodeNext(dec)
		if verr != nil {
			return nil, verr
		}
		keys = append(keys, key)
		vals[key] = child
	}
	if _, err := dec.Token(); err != nil {
		return nil, NewErr(ErrDecode, "invalid JSON: %v", err)
	}

	if tagged, verr, ok := decodeTagged(keys, vals); ok {
		return tagged, verr
	}

	m := NewMap()
	for _, k := range keys {
		m.Put(k, vals[k])
	}
	return m, nil
}

func decodeTagged(keys []string, vals map[string]Value) (Value, *Err, bool) {
	tagVal, ok := vals["type"]
	if !ok {
		return nil, nil, false
	}
	tag, ok := tagVal.(*Str)
	if !ok {
		return nil, nil, false
	}
	data := vals["data"]
	switch tag.Value {
	case "Ok":
		return Ok(resultPayload(data)), nil, true
	case "Err":
		return ErrOf(resultPayload(data)), nil, true
	case "Some":
		return Some(data), nil, true
	case "None":
		return NONE, nil, true
	case "Bytes":
		s, ok := data.(*Str)
		if !ok {
			return nil, NewErr(ErrDecode, "Bytes data must be a hex string"), true
		}
		raw, err := hex.DecodeString(s.Value)
		if err != nil {
			return nil, NewErr(ErrDecode, "invalid hex in Bytes: %v", err), true
		}
		return &Bytes{Value: raw}, nil, true
	case "Struct":
		name := ""
		if n, ok := vals["name"].(*Str); ok {
			name = n.Value
		}
		m, isMap := data.(*Map)
		if !isMap {
			return nil, NewErr(ErrDecode, "Struct data must be an object"), true
		}
		s := NewStruct(name)
		for _, k := range m.Keys {
			s.Set(k, m.Pairs[k])
		}
		return s, nil, true
	case "Enum":
		name := ""
		if n, ok := vals["name"].(*Str); ok {
			name = n.Value
		}
		variant, ok := vals["variant"].(*Str)
		if !ok {
			return nil, NewErr(ErrDecode, "Enum requires a variant"), true
		}
		return &Enum{Name: name, Variant: variant.Value, Payload: data}, nil, true
	case "Map":
		entries, ok := data.(*List)
		if !ok {
			return nil, NewErr(ErrDecode, "Map data must be an entries array"), true
		}
		m := NewMap()
		for _, elem := range entries.Elements {
			pair, ok := elem.(*List)
			if !ok || len(pair.Elements) != 2 {
				return nil, NewErr(ErrDecode, "Map entry must be a [key, value] pair"), true
			}
			k, ok := pair.Elements[0].(*Str)
			if !ok {
				return nil, NewErr(ErrDecode, "Map entry key must be a string"), true
			}
			m.Put(k.Value, pair.Elements[1])
		}
		return m, nil, true
	}
	return nil, nil, false
}

// wireTags are the "type" strings the decoder treats as tagged forms.
var wireTags = map[string]bool{
	"Ok": true, "Err": true, "Some": true, "None": true,
	"Bytes": true, "Struct": true, "Enum": true, "Map": true,
}

// resultPayload converts an object payload of Ok/Err to an anonymous
// struct, matching the upstream frontend's typed Result<T,E> shapes.
// Object-valued fields inside it stay plain maps.
func resultPayload(data Value) Value {
	m, ok := data.(*Map)
	if !ok {
		return data
	}
	s := NewStruct("")
	for _, k := range m.Keys {
		s.Set(k, m.Pairs[k])
	}
	return s
}

// Encode renders a value as JSON text, the inverse of Decode for every
// value constructible from the language grammar.
func Encode(v Value) (string, *Err) {
	var out bytes.Buffer
	if err := encodeTo(&out, v, false); err != nil {
		return "", err
	}
	return out.String(), nil
}

func encodeTo(out *bytes.Buffer, v Value, inResult bool) *Err {
	switch v := v.(type) {
	case *Null:
		out.WriteString("null")
	case *Bool:
		out.WriteString(strconv.FormatBool(v.Value))
	case *Int:
		out.WriteString(strconv.FormatInt(v.Value, 10))
	case *Float:
		if math.IsInf(v.Value, 0) || math.IsNaN(v.Value) {
			return NewErr(ErrTypeError, "non-finite float cannot be encoded as JSON")
		}
		s := strconv.FormatFloat(v.Value, 'g', -1, 64)
		out.WriteString(s)
		if !strings.ContainsAny(s, ".eE") {
			out.WriteString(".0")
		}
	case *Str:
		raw, err := json.Marshal(v.Value)
		if err != nil {
			return NewErr(ErrDecode, "cannot encode string: %v", err)
		}
		out.Write(raw)
	case *Bytes:
		fmt.Fprintf(out, `{"type":"Bytes","data":%q}`, hex.EncodeToString(v.Value))
	case *List:
		out.WriteString("[")
		for i, elem := range v.Elements {
			if i > 0 {
				out.WriteString(",")
			}
			if err := encodeTo(out, elem, false); err != nil {
				return err
			}
		}
		out.WriteString("]")
	case *Map:
		return encodeObject(out, v.Keys, v.Pairs)
	case *Struct:
		// Inside a Result payload a struct encodes as a plain object so
		// the wire form matches the upstream Result<T,E> convention.
		if inResult {
			return encodeObject(out, v.FieldNames, v.Fields)
		}
		fmt.Fprintf(out, `{"type":"Struct","name":%q,"data":`, v.Name)
		if err := encodeObject(out, v.FieldNames, v.Fields); err != nil {
			return err
		}
		out.WriteString("}")
	case *Enum:
		fmt.Fprintf(out, `{"type":"Enum","name":%q,"variant":%q,"data":`, v.Name, v.Variant)
		payload := v.Payload
		if payload == nil {
			payload = NULL
		}
		if err := encodeTo(out, payload, false); err != nil {
			return err
		}
		out.WriteString("}")
	case *Option:
		if v.Value == nil {
			out.WriteString(`{"type":"None"}`)
		} else {
			out.WriteString(`{"type":"Some","data":`)
			if err := encodeTo(out, v.Value, false); err != nil {
				return err
			}
			out.WriteString("}")
		}
	case *Result:
		if v.IsOk {
			out.WriteString(`{"type":"Ok","data":`)
		} else {
			out.WriteString(`{"type":"Err","data":`)
		}
		payload := v.Value
		if payload == nil {
			payload = NULL
		}
		if err := encodeTo(out, payload, true); err != nil {
			return err
		}
		out.WriteString("}")
	default:
		return NewErr(ErrTypeError, "%s cannot be encoded as JSON", v.Kind())
	}
	return nil
}

// encodeObject writes an ordered key/value body. When a plain rendering
// would be mistaken for a tagged form on decode, it escapes to the
// entries array under a "Map" tag instead.
func encodeObject(out *bytes.Buffer, keys []string, vals map[string]Value) *Err {
	if s, ok := vals["type"].(*Str); ok && wireTags[s.Value] {
		out.WriteString(`{"type":"Map","data":[`)
		for i, k := range keys {
			if i > 0 {
				out.WriteString(",")
			}
			raw, _ := json.Marshal(k)
			out.WriteString("[")
			out.Write(raw)
			out.WriteString(",")
			if err := encodeTo(out, vals[k], false); err != nil {
				return err
			}
			out.WriteString("]")
		}
		out.WriteString("]}")
		return nil
	}
	out.WriteString("{")
	for i, k := range keys {
		if i > 0 {
			out.WriteString(",")
		}
		raw, _ := json.Marshal(k)
		out.Write(raw)
		out.WriteString(":")
		if err := encodeTo(out, vals[k], false); err != nil {
			return err
		}
	}
	out.WriteString("}")
	return nil
}
