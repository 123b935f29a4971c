package strrefine

import (
	"encoding/binary"
	"fmt"
	"strings"
	"unsafe"

	"github.com/cespare/xxhash/v2"
)

const (
	TY_SYM        = 1
	TY_INT_CONST  = 2
	TY_CHAR_CONST = 3
	TY_BOOL_CONST = 4
	TY_STRING_LIT = 5
	TY_ITE        = 6

	TY_EQ      = 7
	TY_LE      = 8
	TY_LT      = 9
	TY_NOT     = 10
	TY_AND     = 11
	TY_OR      = 12
	TY_IMPLIES = 13

	TY_ADD = 14
	TY_SUB = 15

	TY_LENGTH    = 16
	TY_INDEX     = 17
	TY_ARRAY_OF  = 18
	TY_WITH      = 19
	TY_REFSTRING = 20
	TY_FUNAPP    = 21
	TY_FORALL    = 22
)

type SortKind uint8

const (
	SortBool SortKind = iota + 1
	SortInt
	SortChar
	SortPointer
	SortString
	SortRefString
	SortArray
)

// Sort is the type of an expression. Arrays only hold scalar elements, which
// keeps Sort comparable with ==.
type Sort struct {
	Kind SortKind
	Elem SortKind
}

var (
	BoolSort      = Sort{Kind: SortBool}
	IntSort       = Sort{Kind: SortInt}
	CharSort      = Sort{Kind: SortChar}
	PointerSort   = Sort{Kind: SortPointer}
	StringSort    = Sort{Kind: SortString}
	RefStringSort = Sort{Kind: SortRefString}
)

func ArraySort(elem Sort) Sort {
	invariant(elem.Kind != SortArray && elem.Kind != 0, "ArraySort: invalid element sort %s", elem)
	return Sort{Kind: SortArray, Elem: elem.Kind}
}

func (s Sort) ElemSort() Sort {
	return Sort{Kind: s.Elem}
}

func (s Sort) IsScalar() bool {
	return s.Kind == SortBool || s.Kind == SortInt || s.Kind == SortChar || s.Kind == SortPointer
}

func (s Sort) String() string {
	switch s.Kind {
	case SortBool:
		return "bool"
	case SortInt:
		return "int"
	case SortChar:
		return "char"
	case SortPointer:
		return "char*"
	case SortString:
		return "string"
	case SortRefString:
		return "refstring"
	case SortArray:
		return fmt.Sprintf("array[%s]", s.ElemSort())
	default:
		return fmt.Sprintf("Sort<%d>", s.Kind)
	}
}

/*
 *   Public Interface
 */

type ExprPtr struct {
	e internalExpr
}

func (p *ExprPtr) Kind() int {
	return p.e.kind()
}

func (p *ExprPtr) Sort() Sort {
	return p.e.sort()
}

func (p *ExprPtr) String() string {
	return p.e.String()
}

func (p *ExprPtr) Id() uintptr {
	return p.e.rawPtr()
}

func (p *ExprPtr) IsLeaf() bool {
	return p.e.isLeaf()
}

func (p *ExprPtr) Children() []*ExprPtr {
	return p.e.subexprs()
}

// Name returns the identifier of a symbol or the function name of an
// application, and "" for anything else.
func (p *ExprPtr) Name() string {
	switch e := p.e.(type) {
	case *internalSym:
		return e.name
	case *internalFunApp:
		return e.name
	}
	return ""
}

func (p *ExprPtr) IsConst() bool {
	switch p.Kind() {
	case TY_INT_CONST, TY_CHAR_CONST, TY_BOOL_CONST, TY_STRING_LIT:
		return true
	}
	return false
}

func (p *ExprPtr) GetInt() (int64, error) {
	c, ok := p.e.(*internalIntVal)
	if !ok {
		return 0, fmt.Errorf("not a constant")
	}
	return c.value, nil
}

func (p *ExprPtr) GetBool() (bool, error) {
	c, ok := p.e.(*internalBoolVal)
	if !ok {
		return false, fmt.Errorf("not a constant")
	}
	return c.value, nil
}

func (p *ExprPtr) GetString() (string, error) {
	c, ok := p.e.(*internalStringLit)
	if !ok {
		return "", fmt.Errorf("not a string literal")
	}
	return string(c.value), nil
}

func (p *ExprPtr) IsTrue() bool {
	v, err := p.GetBool()
	return err == nil && v
}

func (p *ExprPtr) IsFalse() bool {
	v, err := p.GetBool()
	return err == nil && !v
}

/*
 *   Private Interface
 */

type internalExpr interface {
	String() string

	kind() int
	sort() Sort
	hash() uint64
	isLeaf() bool
	rawPtr() uintptr
	subexprs() []*ExprPtr
	shallowEq(internalExpr) bool
}

func hashChildren(h *xxhash.Digest, children []*ExprPtr) {
	raw := make([]byte, 8)
	for i := 0; i < len(children); i++ {
		binary.BigEndian.PutUint64(raw, uint64(children[i].e.rawPtr()))
		h.Write(raw)
	}
}

func sameChildren(a, b []*ExprPtr) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		if a[i].e.rawPtr() != b[i].e.rawPtr() {
			return false
		}
	}
	return true
}

/*
 *  TY_SYM
 */

type internalSym struct {
	name string
	srt  Sort
}

func mkinternalSym(name string, s Sort) *internalSym {
	return &internalSym{name: name, srt: s}
}

func (e *internalSym) String() string {
	return e.name
}

func (e *internalSym) kind() int {
	return TY_SYM
}

func (e *internalSym) sort() Sort {
	return e.srt
}

func (e *internalSym) hash() uint64 {
	h := xxhash.New()
	h.Write([]byte{TY_SYM, byte(e.srt.Kind), byte(e.srt.Elem)})
	h.Write([]byte(e.name))
	return h.Sum64()
}

func (e *internalSym) isLeaf() bool {
	return true
}

func (e *internalSym) rawPtr() uintptr {
	return uintptr(unsafe.Pointer(e))
}

func (e *internalSym) subexprs() []*ExprPtr {
	return nil
}

func (e *internalSym) shallowEq(other internalExpr) bool {
	o, ok := other.(*internalSym)
	return ok && o.name == e.name && o.srt == e.srt
}

/*
 *  TY_INT_CONST, TY_CHAR_CONST
 */

type internalIntVal struct {
	value int64
	srt   Sort
}

func mkinternalIntVal(value int64, s Sort) *internalIntVal {
	return &internalIntVal{value: value, srt: s}
}

func (e *internalIntVal) String() string {
	if e.srt == CharSort {
		return fmt.Sprintf("%q", rune(e.value))
	}
	return fmt.Sprintf("%d", e.value)
}

func (e *internalIntVal) kind() int {
	if e.srt == CharSort {
		return TY_CHAR_CONST
	}
	return TY_INT_CONST
}

func (e *internalIntVal) sort() Sort {
	return e.srt
}

func (e *internalIntVal) hash() uint64 {
	raw := make([]byte, 9)
	raw[0] = byte(e.kind())
	binary.BigEndian.PutUint64(raw[1:], uint64(e.value))
	return xxhash.Sum64(raw)
}

func (e *internalIntVal) isLeaf() bool {
	return true
}

func (e *internalIntVal) rawPtr() uintptr {
	return uintptr(unsafe.Pointer(e))
}

func (e *internalIntVal) subexprs() []*ExprPtr {
	return nil
}

func (e *internalIntVal) shallowEq(other internalExpr) bool {
	o, ok := other.(*internalIntVal)
	return ok && o.value == e.value && o.srt == e.srt
}

/*
 *  TY_BOOL_CONST
 */

type internalBoolVal struct {
	value bool
}

func mkinternalBoolVal(value bool) *internalBoolVal {
	return &internalBoolVal{value: value}
}

func (e *internalBoolVal) String() string {
	if e.value {
		return "true"
	}
	return "false"
}

func (e *internalBoolVal) kind() int {
	return TY_BOOL_CONST
}

func (e *internalBoolVal) sort() Sort {
	return BoolSort
}

func (e *internalBoolVal) hash() uint64 {
	if e.value {
		return 1
	}
	return 0
}

func (e *internalBoolVal) isLeaf() bool {
	return true
}

func (e *internalBoolVal) rawPtr() uintptr {
	return uintptr(unsafe.Pointer(e))
}

func (e *internalBoolVal) subexprs() []*ExprPtr {
	return nil
}

func (e *internalBoolVal) shallowEq(other internalExpr) bool {
	o, ok := other.(*internalBoolVal)
	return ok && o.value == e.value
}

/*
 *  TY_STRING_LIT
 */

type internalStringLit struct {
	value []rune
}

func mkinternalStringLit(value string) *internalStringLit {
	return &internalStringLit{value: []rune(value)}
}

func (e *internalStringLit) String() string {
	return fmt.Sprintf("%q", string(e.value))
}

func (e *internalStringLit) kind() int {
	return TY_STRING_LIT
}

func (e *internalStringLit) sort() Sort {
	return StringSort
}

func (e *internalStringLit) hash() uint64 {
	h := xxhash.New()
	h.Write([]byte{TY_STRING_LIT})
	h.Write([]byte(string(e.value)))
	return h.Sum64()
}

func (e *internalStringLit) isLeaf() bool {
	return true
}

func (e *internalStringLit) rawPtr() uintptr {
	return uintptr(unsafe.Pointer(e))
}

func (e *internalStringLit) subexprs() []*ExprPtr {
	return nil
}

func (e *internalStringLit) shallowEq(other internalExpr) bool {
	o, ok := other.(*internalStringLit)
	return ok && string(o.value) == string(e.value)
}

/*
 *  TY_ITE, TY_EQ, TY_LE, TY_LT, TY_NOT, TY_AND, TY_OR, TY_IMPLIES, TY_ADD,
 *  TY_SUB, TY_LENGTH, TY_INDEX, TY_ARRAY_OF, TY_WITH, TY_REFSTRING, TY_FORALL
 */

type internalOp struct {
	knd      uint8
	symbol   string
	srt      Sort
	children []*ExprPtr
}

func mkinternalOp(kind int, symbol string, s Sort, children ...*ExprPtr) *internalOp {
	return &internalOp{knd: uint8(kind), symbol: symbol, srt: s, children: children}
}

// wrapChild parenthesizes c unless it reads as a single term.
func wrapChild(c *ExprPtr) string {
	if c.e.isLeaf() || c.Kind() == TY_LENGTH || c.Kind() == TY_INDEX {
		return c.String()
	}
	return fmt.Sprintf("(%s)", c.String())
}

func (e *internalOp) String() string {
	c := e.children
	switch int(e.knd) {
	case TY_ITE:
		return fmt.Sprintf("%s ? %s : %s", wrapChild(c[0]), wrapChild(c[1]), wrapChild(c[2]))
	case TY_NOT:
		return fmt.Sprintf("!%s", wrapChild(c[0]))
	case TY_LENGTH:
		return fmt.Sprintf("len(%s)", c[0])
	case TY_INDEX:
		return fmt.Sprintf("%s[%s]", wrapChild(c[0]), c[1])
	case TY_ARRAY_OF:
		return fmt.Sprintf("array_of(%s)", c[0])
	case TY_WITH:
		return fmt.Sprintf("%s with [%s:=%s]", wrapChild(c[0]), c[1], c[2])
	case TY_REFSTRING:
		return fmt.Sprintf("{%s, %s}", c[0], c[1])
	case TY_FORALL:
		return fmt.Sprintf("forall %s in [%s, %s). %s", c[0], c[1], c[2], wrapChild(c[3]))
	}

	b := strings.Builder{}
	b.WriteString(wrapChild(c[0]))
	for i := 1; i < len(c); i++ {
		b.WriteString(fmt.Sprintf(" %s %s", e.symbol, wrapChild(c[i])))
	}
	return b.String()
}

func (e *internalOp) kind() int {
	return int(e.knd)
}

func (e *internalOp) sort() Sort {
	return e.srt
}

func (e *internalOp) hash() uint64 {
	h := xxhash.New()
	h.Write([]byte{e.knd, byte(e.srt.Kind), byte(e.srt.Elem)})
	h.Write([]byte(e.symbol))
	hashChildren(h, e.children)
	return h.Sum64()
}

func (e *internalOp) isLeaf() bool {
	return false
}

func (e *internalOp) rawPtr() uintptr {
	return uintptr(unsafe.Pointer(e))
}

func (e *internalOp) subexprs() []*ExprPtr {
	return e.children
}

func (e *internalOp) shallowEq(other internalExpr) bool {
	o, ok := other.(*internalOp)
	if !ok || o.knd != e.knd || o.srt != e.srt {
		return false
	}
	return sameChildren(e.children, o.children)
}

/*
 *  TY_FUNAPP
 */

type internalFunApp struct {
	name string
	srt  Sort
	args []*ExprPtr
}

func mkinternalFunApp(name string, s Sort, args []*ExprPtr) *internalFunApp {
	return &internalFunApp{name: name, srt: s, args: args}
}

func (e *internalFunApp) String() string {
	args := make([]string, 0, len(e.args))
	for _, a := range e.args {
		args = append(args, a.String())
	}
	return fmt.Sprintf("%s(%s)", e.name, strings.Join(args, ", "))
}

func (e *internalFunApp) kind() int {
	return TY_FUNAPP
}

func (e *internalFunApp) sort() Sort {
	return e.srt
}

func (e *internalFunApp) hash() uint64 {
	h := xxhash.New()
	h.Write([]byte{TY_FUNAPP, byte(e.srt.Kind), byte(e.srt.Elem)})
	h.Write([]byte(e.name))
	hashChildren(h, e.args)
	return h.Sum64()
}

func (e *internalFunApp) isLeaf() bool {
	return false
}

func (e *internalFunApp) rawPtr() uintptr {
	return uintptr(unsafe.Pointer(e))
}

func (e *internalFunApp) subexprs() []*ExprPtr {
	return e.args
}

func (e *internalFunApp) shallowEq(other internalExpr) bool {
	o, ok := other.(*internalFunApp)
	if !ok || o.name != e.name || o.srt != e.srt {
		return false
	}
	return sameChildren(e.args, o.args)
}
