package codegen

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/chnoblouch/banjo/internal/mcode"
)

// DebugEmitter renders a machine module as target-annotated text, used
// for logging between passes and in liveness dumps. It is not assembler
// input.
type DebugEmitter struct {
	mod    *mcode.Module
	target Target
}

func NewDebugEmitter(mod *mcode.Module, t Target) *DebugEmitter {
	return &DebugEmitter{mod: mod, target: t}
}

func (e *DebugEmitter) Generate() string {
	var sb strings.Builder

	for _, symbol := range e.mod.ExternalSymbols() {
		fmt.Fprintf(&sb, "extern %s\n", symbol)
	}
	for _, symbol := range e.mod.GlobalSymbols() {
		fmt.Fprintf(&sb, "global %s\n", symbol)
	}
	if len(e.mod.ExternalSymbols())+len(e.mod.GlobalSymbols()) > 0 {
		sb.WriteString("\n")
	}

	for _, fn := range e.mod.Functions() {
		e.emitFunc(&sb, fn)
	}

	return sb.String()
}

func (e *DebugEmitter) emitFunc(sb *strings.Builder, fn *mcode.Function) {
	fmt.Fprintf(sb, "func %s:\n", fn.Name())

	frame := fn.StackFrame()
	for i, slot := range frame.StackSlots() {
		offset := "?"
		if slot.IsDefined() {
			offset = strconv.Itoa(slot.Offset())
		}
		fmt.Fprintf(sb, "  ; slot %d: kind=%d size=%d align=%d offset=%s\n",
			i, slot.Kind(), slot.Size(), slot.Alignment(), offset)
	}
	if frame.Size() != 0 {
		fmt.Fprintf(sb, "  ; frame size=%d total=%d\n", frame.Size(), frame.TotalSize())
	}

	for _, param := range fn.Parameters() {
		fmt.Fprintf(sb, "  ; param %s in %s\n", param.Type, e.regName(param.Storage, 8))
	}

	for block := fn.FirstBlock(); block != nil; block = block.Next() {
		e.emitBlock(sb, block)
	}

	sb.WriteString("\n")
}

func (e *DebugEmitter) emitBlock(sb *strings.Builder, block *mcode.BasicBlock) {
	if block.Label() != "" {
		fmt.Fprintf(sb, "%s:", block.Label())
		if len(block.Params()) > 0 {
			parts := make([]string, len(block.Params()))
			for i, param := range block.Params() {
				parts[i] = "%" + strconv.Itoa(param)
			}
			fmt.Fprintf(sb, " (%s)", strings.Join(parts, ", "))
		}
		sb.WriteString("\n")
	}

	for instr := block.FirstInstr(); instr != nil; instr = instr.Next() {
		sb.WriteString("    " + e.InstrToString(block, instr) + "\n")
	}
}

// InstrToString renders one instruction; the liveness dump reuses it.
func (e *DebugEmitter) InstrToString(block *mcode.BasicBlock, instr *mcode.Instruction) string {
	var name string
	switch instr.Opcode() {
	case mcode.PseudoEHPushReg:
		name = ".eh_pushreg"
	case mcode.PseudoEHAllocStack:
		name = ".eh_allocstack"
	default:
		name = e.target.OpcodeName(instr.Opcode())
	}

	parts := make([]string, instr.NumOperands())
	for i := 0; i < instr.NumOperands(); i++ {
		parts[i] = e.OperandToString(instr.Operand(i))
	}

	line := name
	if len(parts) > 0 {
		line += " " + strings.Join(parts, ", ")
	}

	var flags []string
	if instr.HasFlag(mcode.InstrFlagArgStore) {
		flags = append(flags, "arg_store")
	}
	if instr.HasFlag(mcode.InstrFlagAlloca) {
		flags = append(flags, "alloca")
	}
	if instr.HasFlag(mcode.InstrFlagCallArg) {
		flags = append(flags, "call_arg")
	}
	if instr.HasFlag(mcode.InstrFlagCall) {
		flags = append(flags, "call")
	}
	if instr.HasFlag(mcode.InstrFlagFloat) {
		flags = append(flags, "float")
	}
	if len(flags) > 0 {
		line += " !" + strings.Join(flags, " !")
	}

	return line
}

func (e *DebugEmitter) OperandToString(operand *mcode.Operand) string {
	switch {
	case operand.IsIntImmediate():
		return operand.IntImmediate().String()
	case operand.IsFPImmediate():
		return strconv.FormatFloat(operand.FPImmediate(), 'g', -1, 64)
	case operand.IsRegister():
		return e.regName(operand.Register(), operand.Size())
	case operand.IsSymbol():
		return operand.Symbol().Name
	case operand.IsLabel():
		return operand.Label()
	case operand.IsSymbolDeref():
		return "[" + operand.DerefSymbol().Name + "]"
	case operand.IsAddr():
		addr := operand.Addr()
		str := "[" + e.regName(addr.Base(), 8)
		switch {
		case addr.HasRegOffset():
			str += " + " + strconv.Itoa(addr.Scale()) + " * " + e.regName(addr.RegOffset(), 8)
		case addr.HasIntOffset():
			str += " + " + strconv.Itoa(addr.IntOffset())
		}
		return str + "]"
	case operand.IsAArch64Addr():
		addr := operand.AArch64Addr()
		str := "[" + e.regName(addr.Base(), 8)
		switch addr.Kind() {
		case mcode.AArch64AddrBaseOffsetImm:
			str += ", #" + strconv.Itoa(addr.IntOffset())
		case mcode.AArch64AddrBaseOffsetImmWrite:
			return str + ", #" + strconv.Itoa(addr.IntOffset()) + "]!"
		case mcode.AArch64AddrBaseOffsetReg:
			str += ", " + e.regName(addr.RegOffset(), 8)
		}
		return str + "]"
	case operand.IsStackSlotOffset():
		offset := operand.StackSlotOffset()
		return fmt.Sprintf("slot%d+%d", offset.Slot, offset.Addend)
	case operand.IsAArch64LeftShift():
		return "lsl #" + strconv.Itoa(int(operand.AArch64LeftShift()))
	case operand.IsAArch64Condition():
		return operand.AArch64Condition().String()
	}
	return "???"
}

// PhysicalRegName exposes the target's register naming for dumps.
func (e *DebugEmitter) PhysicalRegName(reg mcode.PhysicalReg, size int) string {
	return e.target.PhysicalRegName(reg, size)
}

func (e *DebugEmitter) regName(reg mcode.Register, size int) string {
	switch {
	case reg.IsVirtualReg():
		return "%" + strconv.Itoa(reg.VirtualReg())
	case reg.IsPhysicalReg():
		return e.target.PhysicalRegName(reg.PhysicalReg(), size)
	default:
		return "slot" + strconv.Itoa(reg.StackSlot())
	}
}
