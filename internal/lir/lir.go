// internal/lir/lir.go
package lir

type Opcode int

const (
	OpPrintf Opcode = iota
	OpPrintv
	OpPrintc
	OpReadv
	OpReadc
	OpMov
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpNot
	OpOr
	OpAnd
	OpEq
	OpDiff
	OpLess
	OpLessEq
	OpGreater
	OpGreaterEq
	OpLoad
	OpStore
	OpJmp
	OpJmpFalse
	OpJmpTrue
	OpPush
	OpPop
	OpCall
	OpRet
	OpFunc
)

// OperandCount returns how many operands each opcode carries.
func OperandCount(op Opcode) int {
	switch op {
	case OpPrintf, OpPrintv, OpPrintc, OpReadv, OpReadc, OpJmp, OpPush, OpPop, OpCall:
		return 1
	case OpMov, OpNot, OpJmpFalse, OpJmpTrue:
		return 2
	case OpAdd, OpSub, OpMul, OpDiv, OpMod, OpOr, OpAnd, OpEq, OpDiff,
		OpLess, OpLessEq, OpGreater, OpGreaterEq, OpLoad, OpStore:
		return 3
	case OpRet, OpFunc:
		return 0
	}
	panic("lir: unknown opcode")
}

// RegisterRole records what the compiler believes a register holds. The VM
// treats all cells uniformly as 64-bit integers; the role only drives the
// compiler's l-value/r-value tracking.
type RegisterRole int

const (
	HoldsNumber RegisterRole = iota
	HoldsAddress
)

// Register indices are dense and monotonically allocated during
// compilation. Registers and the heap share the VM's cell array.
type Register struct {
	Index int
	Role  RegisterRole
}

type LabelID int

type OperandKind int

const (
	KindNothing OperandKind = iota // absent operand; reads as zero
	KindRegister
	KindLabel
	KindImmediate
)

// Operand is the tagged union of instruction arguments. Temp marks a
// register operand that holds an expression result rather than a variable's
// home; the distinction matters only to the compiler.
type Operand struct {
	Kind OperandKind
	Reg  Register
	Lab  LabelID
	Num  int64
	Temp bool
}

func Nothing() Operand {
	return Operand{Kind: KindNothing}
}

func Reg(index int, role RegisterRole) Operand {
	return Operand{Kind: KindRegister, Reg: Register{Index: index, Role: role}}
}

func Tmp(index int, role RegisterRole) Operand {
	return Operand{Kind: KindRegister, Reg: Register{Index: index, Role: role}, Temp: true}
}

func Lbl(id LabelID) Operand {
	return Operand{Kind: KindLabel, Lab: id}
}

func Imm(num int64) Operand {
	return Operand{Kind: KindImmediate, Num: num}
}

func (o Operand) IsRegister() bool {
	return o.Kind == KindRegister
}

func (o Operand) HasAddr() bool {
	return o.Kind == KindRegister && o.Reg.Role == HoldsAddress
}

type Instruction struct {
	Op       Opcode
	Operands [3]Operand
	Comment  string
}

// Chunk is an instruction buffer plus a map from label ids to instruction
// indices. A label may map to len(Instructions), meaning "the end".
type Chunk struct {
	Instructions []Instruction
	LabelIndexes map[LabelID]int

	// Result is the operand the whole chunk evaluates to, for the REPL's
	// result echo.
	Result Operand
}

func NewChunk() *Chunk {
	return &Chunk{LabelIndexes: map[LabelID]int{}}
}

// Emit appends an instruction; missing operands read as Nothing.
func (c *Chunk) Emit(op Opcode, operands ...Operand) *Chunk {
	var inst Instruction
	inst.Op = op
	copy(inst.Operands[:], operands)
	c.Instructions = append(c.Instructions, inst)
	return c
}

// WithComment annotates the last emitted instruction.
func (c *Chunk) WithComment(comment string) *Chunk {
	c.Instructions[len(c.Instructions)-1].Comment = comment
	return c
}

// AddLabel binds a label to the current end of the chunk.
func (c *Chunk) AddLabel(label Operand) {
	c.LabelIndexes[label.Lab] = len(c.Instructions)
}

// Concat returns the chunk x ++ y: instructions are the literal
// concatenation and y's label indices shift by len(x).
func (c *Chunk) Concat(other *Chunk) *Chunk {
	res := NewChunk()
	res.Instructions = append(res.Instructions, c.Instructions...)
	res.Instructions = append(res.Instructions, other.Instructions...)
	for id, idx := range c.LabelIndexes {
		res.LabelIndexes[id] = idx
	}
	for id, idx := range other.LabelIndexes {
		res.LabelIndexes[id] = idx + len(c.Instructions)
	}
	res.Result = other.Result
	return res
}
