package ast

// The canonical program form. It arrives fully desugared and
// type-checked from the upstream frontend; this core consumes it
// read-only. Every implicit coercion is already an explicit Widen node
// and all surface sugar is gone, so neither engine ever sees syntax.

type Program struct {
	Name  string
	Funcs []*FuncDecl
}

func (p *Program) Func(name string) *FuncDecl {
	for _, f := range p.Funcs {
		if f.Name == name {
			return f
		}
	}
	return nil
}

type FuncDecl struct {
	Name   string
	Params []string
	Body   []Stmt
}

type Stmt interface {
	stmtNode()
}

type Expr interface {
	exprNode()
}

// Statements.

type LetStmt struct {
	Name  string
	Value Expr
}

type AssignStmt struct {
	Name  string
	Value Expr
}

type ExprStmt struct {
	Value Expr
}

type ReturnStmt struct {
	Value Expr
}

type IfStmt struct {
	Cond Expr
	Then []Stmt
	Else []Stmt
}

type WhileStmt struct {
	Cond Expr
	Body []Stmt
}

// MatchStmt dispatches on the variant of an enum, Result or Option
// value. Arms bind the payload; a nil-armed default runs when no
// variant matches.
type MatchStmt struct {
	Subject Expr
	Arms    []MatchArm
	Default []Stmt
}

type MatchArm struct {
	Variant string
	Bind    string
	Body    []Stmt
}

func (*LetStmt) stmtNode()    {}
func (*AssignStmt) stmtNode() {}
func (*ExprStmt) stmtNode()   {}
func (*ReturnStmt) stmtNode() {}
func (*IfStmt) stmtNode()     {}
func (*WhileStmt) stmtNode()  {}
func (*MatchStmt) stmtNode()  {}

// Expressions.

type NullLit struct{}

type BoolLit struct {
	Value bool
}

type IntLit struct {
	Value int64
}

type FloatLit struct {
	Value float64
}

type StrLit struct {
	Value string
}

type BytesLit struct {
	Value []byte
}

type VarRef struct {
	Name string
}

type BinaryExpr struct {
	Op    string
	Left  Expr
	Right Expr
}

type UnaryExpr struct {
	Op      string
	Operand Expr
}

// WidenExpr is the explicit int-to-float coercion inserted upstream.
type WidenExpr struct {
	Operand Expr
}

type ListExpr struct {
	Elements []Expr
}

type MapExpr struct {
	Keys   []string
	Values []Expr
}

type StructExpr struct {
	Name   string
	Fields []string
	Values []Expr
}

type EnumExpr struct {
	Name    string
	Variant string
	Payload Expr
}

type SomeExpr struct {
	Value Expr
}

type NoneExpr struct{}

type ResultExpr struct {
	IsOk  bool
	Value Expr
}

type FieldExpr struct {
	Target Expr
	Name   string
}

type IndexExpr struct {
	Target Expr
	Index  Expr
}

type CallExpr struct {
	Func string
	Args []Expr
}

// HostCallExpr invokes a named call across the host boundary: decode,
// validation, db, http, logging, environment access.
type HostCallExpr struct {
	Name string
	Args []Expr
}

type SpawnExpr struct {
	Func string
	Args []Expr
}

type AwaitExpr struct {
	Task Expr
}

type BoxNewExpr struct {
	Value Expr
}

type BoxGetExpr struct {
	Box Expr
}

type BoxSetExpr struct {
	Box   Expr
	Value Expr
}

func (*NullLit) exprNode()      {}
func (*BoolLit) exprNode()      {}
func (*IntLit) exprNode()       {}
func (*FloatLit) exprNode()     {}
func (*StrLit) exprNode()       {}
func (*BytesLit) exprNode()     {}
func (*VarRef) exprNode()       {}
func (*BinaryExpr) exprNode()   {}
func (*UnaryExpr) exprNode()    {}
func (*WidenExpr) exprNode()    {}
func (*ListExpr) exprNode()     {}
func (*MapExpr) exprNode()      {}
func (*StructExpr) exprNode()   {}
func (*EnumExpr) exprNode()     {}
func (*SomeExpr) exprNode()     {}
func (*NoneExpr) exprNode()     {}
func (*ResultExpr) exprNode()   {}
func (*FieldExpr) exprNode()    {}
func (*IndexExpr) exprNode()    {}
func (*CallExpr) exprNode()     {}
func (*HostCallExpr) exprNode() {}
func (*SpawnExpr) exprNode()    {}
func (*AwaitExpr) exprNode()    {}
func (*BoxNewExpr) exprNode()   {}
func (*BoxSetExpr) exprNode()   {}
func (*BoxGetExpr) exprNode()   {}
