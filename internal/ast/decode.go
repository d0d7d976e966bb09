package ast

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// DecodeProgram parses the frontend's canonical-program JSON. Each node
// is an object with a "node" discriminator. The decoder fails fast on
// anything it does not recognize; there is no partial program.
func DecodeProgram(data []byte) (*Program, error) {
	var raw struct {
		Name  string            `json:"name"`
		Funcs []json.RawMessage `json:"funcs"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("canonical program is not valid JSON: %w", err)
	}
	prog := &Program{Name: raw.Name}
	for i, fr := range raw.Funcs {
		fn, err := decodeFunc(fr)
		if err != nil {
			return nil, fmt.Errorf("func %d: %w", i, err)
		}
		prog.Funcs = append(prog.Funcs, fn)
	}
	return prog, nil
}

type rawNode struct {
	Node    string            `json:"node"`
	Name    string            `json:"name"`
	Variant string            `json:"variant"`
	Op      string            `json:"op"`
	Bind    string            `json:"bind"`
	Func    string            `json:"func"`
	Bool    bool              `json:"bool"`
	Int     int64             `json:"int"`
	Float   float64           `json:"float"`
	Str     string            `json:"str"`
	Bytes   string            `json:"bytes"`
	IsOk    bool              `json:"ok"`
	Keys    []string          `json:"keys"`
	Fields  []string          `json:"fields"`
	Value   json.RawMessage   `json:"value"`
	Left    json.RawMessage   `json:"left"`
	Right   json.RawMessage   `json:"right"`
	Cond    json.RawMessage   `json:"cond"`
	Target  json.RawMessage   `json:"target"`
	Index   json.RawMessage   `json:"index"`
	Box     json.RawMessage   `json:"box"`
	Subject json.RawMessage   `json:"subject"`
	Payload json.RawMessage   `json:"payload"`
	Args    []json.RawMessage `json:"args"`
	Values  []json.RawMessage `json:"values"`
	Then    []json.RawMessage `json:"then"`
	Else    []json.RawMessage `json:"else"`
	Body    []json.RawMessage `json:"body"`
	Default []json.RawMessage `json:"default"`
	Arms    []json.RawMessage `json:"arms"`
}

func decodeFunc(data json.RawMessage) (*FuncDecl, error) {
	var raw struct {
		Name   string            `json:"name"`
		Params []string          `json:"params"`
		Body   []json.RawMessage `json:"body"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if raw.Name == "" {
		return nil, fmt.Errorf("function has no name")
	}
	body, err := decodeStmts(raw.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", raw.Name, err)
	}
	return &FuncDecl{Name: raw.Name, Params: raw.Params, Body: body}, nil
}

func decodeStmts(raws []json.RawMessage) ([]Stmt, error) {
	stmts := make([]Stmt, 0, len(raws))
	for i, r := range raws {
		s, err := decodeStmt(r)
		if err != nil {
			return nil, fmt.Errorf("stmt %d: %w", i, err)
		}
		stmts = append(stmts, s)
	}
	return stmts, nil
}

func decodeStmt(data json.RawMessage) (Stmt, error) {
	var raw rawNode
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	switch raw.Node {
	case "let":
		v, err := decodeExpr(raw.Value)
		if err != nil {
			return nil, err
		}
		return &LetStmt{Name: raw.Name, Value: v}, nil
	case "assign":
		v, err := decodeExpr(raw.Value)
		if err != nil {
			return nil, err
		}
		return &AssignStmt{Name: raw.Name, Value: v}, nil
	case "expr":
		v, err := decodeExpr(raw.Value)
		if err != nil {
			return nil, err
		}
		return &ExprStmt{Value: v}, nil
	case "return":
		// A bare return carries no value and returns null.
		if len(raw.Value) == 0 || string(raw.Value) == "null" {
			return &ReturnStmt{}, nil
		}
		v, err := decodeExpr(raw.Value)
		if err != nil {
			return nil, err
		}
		return &ReturnStmt{Value: v}, nil
	case "if":
		cond, err := decodeExpr(raw.Cond)
		if err != nil {
			return nil, err
		}
		then, err := decodeStmts(raw.Then)
		if err != nil {
			return nil, err
		}
		els, err := decodeStmts(raw.Else)
		if err != nil {
			return nil, err
		}
		return &IfStmt{Cond: cond, Then: then, Else: els}, nil
	case "while":
		cond, err := decodeExpr(raw.Cond)
		if err != nil {
			return nil, err
		}
		body, err := decodeStmts(raw.Body)
		if err != nil {
			return nil, err
		}
		return &WhileStmt{Cond: cond, Body: body}, nil
	case "match":
		subject, err := decodeExpr(raw.Subject)
		if err != nil {
			return nil, err
		}
		arms := []MatchArm{}
		for _, ar := range raw.Arms {
			var armRaw rawNode
			if err := json.Unmarshal(ar, &armRaw); err != nil {
				return nil, err
			}
			body, err := decodeStmts(armRaw.Body)
			if err != nil {
				return nil, err
			}
			arms = append(arms, MatchArm{
				Variant: armRaw.Variant,
				Bind:    armRaw.Bind,
				Body:    body,
			})
		}
		def, err := decodeStmts(raw.Default)
		if err != nil {
			return nil, err
		}
		return &MatchStmt{Subject: subject, Arms: arms, Default: def}, nil
	}
	return nil, fmt.Errorf("unknown statement node %q", raw.Node)
}

func decodeExpr(data json.RawMessage) (Expr, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("missing expression")
	}
	var raw rawNode
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	switch raw.Node {
	case "null":
		return &NullLit{}, nil
	case "bool":
		return &BoolLit{Value: raw.Bool}, nil
	case "int":
		return &IntLit{Value: raw.Int}, nil
	case "float":
		return &FloatLit{Value: raw.Float}, nil
	case "str":
		return &StrLit{Value: raw.Str}, nil
	case "bytes":
		b, err := base64.StdEncoding.DecodeString(raw.Bytes)
		if err != nil {
			return nil, fmt.Errorf("invalid bytes literal: %w", err)
		}
		return &BytesLit{Value: b}, nil
	case "var":
		return &VarRef{Name: raw.Name}, nil
	case "binary":
		left, err := decodeExpr(raw.Left)
		if err != nil {
			return nil, err
		}
		right, err := decodeExpr(raw.Right)
		if err != nil {
			return nil, err
		}
		return &BinaryExpr{Op: raw.Op, Left: left, Right: right}, nil
	case "unary":
		operand, err := decodeExpr(raw.Value)
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Op: raw.Op, Operand: operand}, nil
	case "widen":
		operand, err := decodeExpr(raw.Value)
		if err != nil {
			return nil, err
		}
		return &WidenExpr{Operand: operand}, nil
	case "list":
		elems, err := decodeExprs(raw.Values)
		if err != nil {
			return nil, err
		}
		return &ListExpr{Elements: elems}, nil
	case "map":
		vals, err := decodeExprs(raw.Values)
		if err != nil {
			return nil, err
		}
		if len(raw.Keys) != len(vals) {
			return nil, fmt.Errorf("map literal has %d keys but %d values", len(raw.Keys), len(vals))
		}
		return &MapExpr{Keys: raw.Keys, Values: vals}, nil
	case "struct":
		vals, err := decodeExprs(raw.Values)
		if err != nil {
			return nil, err
		}
		if len(raw.Fields) != len(vals) {
			return nil, fmt.Errorf("struct literal has %d fields but %d values", len(raw.Fields), len(vals))
		}
		return &StructExpr{Name: raw.Name, Fields: raw.Fields, Values: vals}, nil
	case "enum":
		var payload Expr
		if len(raw.Payload) > 0 {
			var err error
			payload, err = decodeExpr(raw.Payload)
			if err != nil {
				return nil, err
			}
		}
		return &EnumExpr{Name: raw.Name, Variant: raw.Variant, Payload: payload}, nil
	case "some":
		v, err := decodeExpr(raw.Value)
		if err != nil {
			return nil, err
		}
		return &SomeExpr{Value: v}, nil
	case "none":
		return &NoneExpr{}, nil
	case "result":
		v, err := decodeExpr(raw.Value)
		if err != nil {
			return nil, err
		}
		return &ResultExpr{IsOk: raw.IsOk, Value: v}, nil
	case "field":
		target, err := decodeExpr(raw.Target)
		if err != nil {
			return nil, err
		}
		return &FieldExpr{Target: target, Name: raw.Name}, nil
	case "index":
		target, err := decodeExpr(raw.Target)
		if err != nil {
			return nil, err
		}
		index, err := decodeExpr(raw.Index)
		if err != nil {
			return nil, err
		}
		return &IndexExpr{Target: target, Index: index}, nil
	case "call":
		args, err := decodeExprs(raw.Args)
		if err != nil {
			return nil, err
		}
		return &CallExpr{Func: raw.Func, Args: args}, nil
	case "hostcall":
		args, err := decodeExprs(raw.Args)
		if err != nil {
			return nil, err
		}
		return &HostCallExpr{Name: raw.Name, Args: args}, nil
	case "spawn":
		args, err := decodeExprs(raw.Args)
		if err != nil {
			return nil, err
		}
		return &SpawnExpr{Func: raw.Func, Args: args}, nil
	case "await":
		task, err := decodeExpr(raw.Value)
		if err != nil {
			return nil, err
		}
		return &AwaitExpr{Task: task}, nil
	case "boxnew":
		v, err := decodeExpr(raw.Value)
		if err != nil {
			return nil, err
		}
		return &BoxNewExpr{Value: v}, nil
	case "boxget":
		b, err := decodeExpr(raw.Box)
		if err != nil {
			return nil, err
		}
		return &BoxGetExpr{Box: b}, nil
	case "boxset":
		b, err := decodeExpr(raw.Box)
		if err != nil {
			return nil, err
		}
		v, err := decodeExpr(raw.Value)
		if err != nil {
			return nil, err
		}
		return &BoxSetExpr{Box: b, Value: v}, nil
	}
	return nil, fmt.Errorf("unknown expression node %q", raw.Node)
}

func decodeExprs(raws []json.RawMessage) ([]Expr, error) {
	exprs := make([]Expr, 0, len(raws))
	for i, r := range raws {
		e, err := decodeExpr(r)
		if err != nil {
			return nil, fmt.Errorf("arg %d: %w", i, err)
		}
		exprs = append(exprs, e)
	}
	return exprs, nil
}
