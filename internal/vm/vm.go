// internal/vm/vm.go
package vm

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	pkgerrors "github.com/pkg/errors"

	"tova/internal/lir"
)

// CellCount is the size of the machine's memory. Registers occupy the low
// indices, the heap arena grows down from the top, and cell 0 holds the
// current heap top.
const CellCount = 2048

// VM executes a chunk deterministically: given the same chunk and the same
// input, the output and the final cell state are byte-identical. It trusts
// the compiler; it fails at run time only on I/O errors, out-of-range cell
// addresses, division by zero and malformed chunks (unknown labels, an empty
// stack).
type VM struct {
	cells [CellCount]int64
	stack []int64

	// return addresses live on their own stack: FUNC moves the pc CALL
	// saved into the innermost slot, RET consumes it
	returnStack []int

	input  *bufio.Reader
	output io.Writer
}

func NewVM(input io.Reader, output io.Writer) *VM {
	return &VM{
		input:  bufio.NewReader(input),
		output: output,
	}
}

// Cells returns a copy of the machine memory, for inspection after Run.
func (vm *VM) Cells() [CellCount]int64 {
	return vm.cells
}

// Value reads the current contents an operand denotes; used by the REPL to
// echo a chunk's result.
func (vm *VM) Value(op lir.Operand) int64 {
	v, _ := vm.fetch(op)
	return v
}

// fetch returns the integer an operand reads as: a register's cell, an
// immediate's number, zero for Nothing.
func (vm *VM) fetch(op lir.Operand) (int64, error) {
	switch op.Kind {
	case lir.KindRegister:
		return vm.cells[op.Reg.Index], nil
	case lir.KindImmediate:
		return op.Num, nil
	case lir.KindNothing:
		return 0, nil
	}
	return 0, fmt.Errorf("vm: can't fetch %v operand", op.Kind)
}

// deref returns the mutable cell an operand names; valid only on registers.
func (vm *VM) deref(op lir.Operand) (*int64, error) {
	if op.Kind != lir.KindRegister {
		return nil, fmt.Errorf("vm: operand is not a register")
	}
	return &vm.cells[op.Reg.Index], nil
}

func (vm *VM) cellAt(addr int64) (*int64, error) {
	if addr < 0 || addr >= CellCount {
		return nil, fmt.Errorf("vm: cell address %d out of range", addr)
	}
	return &vm.cells[addr], nil
}

func (vm *VM) pop() (int64, error) {
	if len(vm.stack) == 0 {
		return 0, fmt.Errorf("vm: pop from empty stack")
	}
	v := vm.stack[len(vm.stack)-1]
	vm.stack = vm.stack[:len(vm.stack)-1]
	return v, nil
}

func boolToCell(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// Run executes the chunk from its first instruction until the program
// counter falls off the end.
func (vm *VM) Run(chunk *lir.Chunk) error {
	jump := func(op lir.Operand) (int, error) {
		idx, ok := chunk.LabelIndexes[op.Lab]
		if !ok {
			return 0, fmt.Errorf("vm: jump to unknown label L%03d", op.Lab)
		}
		return idx, nil
	}

	pc := 0
	for pc < len(chunk.Instructions) {
		inst := chunk.Instructions[pc]
		ops := inst.Operands

		switch inst.Op {
		case lir.OpPrintf:
			base, err := vm.fetch(ops[0])
			if err != nil {
				return err
			}
			for i := int64(0); ; i++ {
				cell, err := vm.cellAt(base + i)
				if err != nil {
					return err
				}
				if *cell == 0 {
					break
				}
				fmt.Fprintf(vm.output, "%c", byte(*cell))
			}

		case lir.OpPrintv:
			v, err := vm.fetch(ops[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(vm.output, "%d", v)

		case lir.OpPrintc:
			v, err := vm.fetch(ops[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(vm.output, "%c", byte(v))

		case lir.OpReadv:
			line, err := vm.input.ReadString('\n')
			if err != nil && (err != io.EOF || line == "") {
				return pkgerrors.Wrap(err, "vm: couldn't read input")
			}
			num, err := strconv.ParseInt(strings.TrimSpace(line), 10, 64)
			if err != nil {
				return pkgerrors.Wrap(err, "vm: input is not an integer")
			}
			cell, err := vm.deref(ops[0])
			if err != nil {
				return err
			}
			*cell = num

		case lir.OpReadc:
			cell, err := vm.deref(ops[0])
			if err != nil {
				return err
			}
			b, err := vm.input.ReadByte()
			if err == io.EOF {
				*cell = -1
			} else if err != nil {
				return pkgerrors.Wrap(err, "vm: couldn't read input")
			} else {
				*cell = int64(b)
			}

		case lir.OpMov:
			cell, err := vm.deref(ops[0])
			if err != nil {
				return err
			}
			v, err := vm.fetch(ops[1])
			if err != nil {
				return err
			}
			*cell = v

		case lir.OpAdd, lir.OpSub, lir.OpMul, lir.OpDiv, lir.OpMod,
			lir.OpOr, lir.OpAnd, lir.OpEq, lir.OpDiff,
			lir.OpLess, lir.OpLessEq, lir.OpGreater, lir.OpGreaterEq:
			cell, err := vm.deref(ops[0])
			if err != nil {
				return err
			}
			a, err := vm.fetch(ops[1])
			if err != nil {
				return err
			}
			b, err := vm.fetch(ops[2])
			if err != nil {
				return err
			}
			v, err := binaryOp(inst.Op, a, b)
			if err != nil {
				return err
			}
			*cell = v

		case lir.OpNot:
			cell, err := vm.deref(ops[0])
			if err != nil {
				return err
			}
			v, err := vm.fetch(ops[1])
			if err != nil {
				return err
			}
			*cell = boolToCell(v == 0)

		case lir.OpLoad:
			cell, err := vm.deref(ops[0])
			if err != nil {
				return err
			}
			off, err := vm.fetch(ops[1])
			if err != nil {
				return err
			}
			base, err := vm.fetch(ops[2])
			if err != nil {
				return err
			}
			src, err := vm.cellAt(base + off)
			if err != nil {
				return err
			}
			*cell = *src

		case lir.OpStore:
			v, err := vm.fetch(ops[0])
			if err != nil {
				return err
			}
			off, err := vm.fetch(ops[1])
			if err != nil {
				return err
			}
			base, err := vm.fetch(ops[2])
			if err != nil {
				return err
			}
			dst, err := vm.cellAt(base + off)
			if err != nil {
				return err
			}
			*dst = v

		case lir.OpJmp:
			idx, err := jump(ops[0])
			if err != nil {
				return err
			}
			pc = idx
			continue

		case lir.OpJmpFalse:
			v, err := vm.fetch(ops[0])
			if err != nil {
				return err
			}
			if v == 0 {
				idx, err := jump(ops[1])
				if err != nil {
					return err
				}
				pc = idx
				continue
			}

		case lir.OpJmpTrue:
			v, err := vm.fetch(ops[0])
			if err != nil {
				return err
			}
			if v != 0 {
				idx, err := jump(ops[1])
				if err != nil {
					return err
				}
				pc = idx
				continue
			}

		case lir.OpPush:
			v, err := vm.fetch(ops[0])
			if err != nil {
				return err
			}
			vm.stack = append(vm.stack, v)

		case lir.OpPop:
			cell, err := vm.deref(ops[0])
			if err != nil {
				return err
			}
			v, err := vm.pop()
			if err != nil {
				return err
			}
			*cell = v

		case lir.OpCall:
			// the saved pc goes through the stack; FUNC at the callee entry
			// moves it onto the return-address stack
			vm.stack = append(vm.stack, int64(pc))
			idx, err := jump(ops[0])
			if err != nil {
				return err
			}
			pc = idx
			continue

		case lir.OpRet:
			if len(vm.returnStack) == 0 {
				return fmt.Errorf("vm: ret with no saved return address")
			}
			pc = vm.returnStack[len(vm.returnStack)-1]
			vm.returnStack = vm.returnStack[:len(vm.returnStack)-1]

		case lir.OpFunc:
			v, err := vm.pop()
			if err != nil {
				return err
			}
			vm.returnStack = append(vm.returnStack, int(v))
		}

		pc++
	}

	return nil
}

func binaryOp(op lir.Opcode, a, b int64) (int64, error) {
	switch op {
	case lir.OpAdd:
		return a + b, nil
	case lir.OpSub:
		return a - b, nil
	case lir.OpMul:
		return a * b, nil
	case lir.OpDiv:
		if b == 0 {
			return 0, fmt.Errorf("vm: division by zero")
		}
		return a / b, nil
	case lir.OpMod:
		if b == 0 {
			return 0, fmt.Errorf("vm: division by zero")
		}
		return a % b, nil
	case lir.OpOr:
		return boolToCell(a != 0 || b != 0), nil
	case lir.OpAnd:
		return boolToCell(a != 0 && b != 0), nil
	case lir.OpEq:
		return boolToCell(a == b), nil
	case lir.OpDiff:
		return boolToCell(a != b), nil
	case lir.OpLess:
		return boolToCell(a < b), nil
	case lir.OpLessEq:
		return boolToCell(a <= b), nil
	case lir.OpGreater:
		return boolToCell(a > b), nil
	case lir.OpGreaterEq:
		return boolToCell(a >= b), nil
	}
	return 0, fmt.Errorf("vm: not a binary opcode")
}
