package emit

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/chnoblouch/banjo/internal/mcode"
	"github.com/chnoblouch/banjo/internal/ssa"
	"github.com/chnoblouch/banjo/internal/target"
	"github.com/chnoblouch/banjo/internal/target/aarch64"
)

// AArch64AsmEmitter renders an AArch64 machine module as GAS-style
// assembly, with Darwin symbol prefixing and page-relocation syntax
// when targeting Mach-O.
type AArch64AsmEmitter struct {
	mod   *mcode.Module
	descr target.Description

	symbolPrefix string
}

func NewAArch64AsmEmitter(mod *mcode.Module, descr target.Description) *AArch64AsmEmitter {
	return &AArch64AsmEmitter{mod: mod, descr: descr}
}

// Generate implements Emitter.
func (e *AArch64AsmEmitter) Generate(w io.Writer) error {
	buf := bufio.NewWriter(w)

	if e.descr.IsDarwin() {
		e.symbolPrefix = "_"
	}

	for _, externalSymbol := range e.mod.ExternalSymbols() {
		fmt.Fprintf(buf, ".extern %s%s\n", e.symbolPrefix, externalSymbol)
	}
	fmt.Fprint(buf, "\n")

	for _, globalSymbol := range e.mod.GlobalSymbols() {
		fmt.Fprintf(buf, ".global %s%s\n", e.symbolPrefix, globalSymbol)
	}
	fmt.Fprint(buf, "\n")

	fmt.Fprint(buf, ".text\n")
	for _, fn := range e.mod.Functions() {
		e.emitFunc(buf, fn)
	}

	fmt.Fprint(buf, ".data\n")
	for i := range e.mod.Globals() {
		e.emitGlobal(buf, &e.mod.Globals()[i])
	}

	if table := e.mod.AddrTable(); table != nil {
		fmt.Fprint(buf, "addr_table:\n")
		for _, entry := range table.Entries {
			fmt.Fprintf(buf, "  .xword %s%s\n", e.symbolPrefix, entry)
		}
	}

	return buf.Flush()
}

func (e *AArch64AsmEmitter) emitGlobal(w io.Writer, global *mcode.Global) {
	fmt.Fprintf(w, "%s%s: ", e.symbolPrefix, global.Name)

	switch value := global.Value; value.Kind {
	case ssa.GlobalInteger:
		fmt.Fprintf(w, "%s %s", dataDirective(global.Size), value.IntValue)
	case ssa.GlobalFloatingPoint:
		directive := ".double"
		if global.Size == 4 {
			directive = ".float"
		}
		fmt.Fprintf(w, "%s %s", directive, strconv.FormatFloat(value.FPValue, 'g', -1, 64))
	case ssa.GlobalBytes:
		var sb strings.Builder
		for _, b := range value.Bytes {
			fmt.Fprintf(&sb, "\\x%x", b)
		}
		fmt.Fprintf(w, ".ascii \"%s\"", sb.String())
	case ssa.GlobalString:
		fmt.Fprintf(w, ".string \"%s\"", gasString(value.Str))
	case ssa.GlobalSymbolRef:
		fmt.Fprintf(w, "%s %s%s", dataDirective(global.Size), e.symbolPrefix, value.SymbolName)
	case ssa.GlobalNone:
		fmt.Fprintf(w, ".zero %d", global.Size)
	default:
		panic("BUG: unknown global value")
	}

	fmt.Fprint(w, "\n")
}

func gasString(str string) string {
	var sb strings.Builder
	for i := 0; i < len(str); i++ {
		switch c := str[i]; c {
		case 0:
			sb.WriteString("\\0")
		case '\n':
			sb.WriteString("\\n")
		case '\r':
			sb.WriteString("\\r")
		case '"':
			sb.WriteString("\\\"")
		case '\\':
			sb.WriteString("\\\\")
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

func (e *AArch64AsmEmitter) emitFunc(w io.Writer, fn *mcode.Function) {
	fmt.Fprintf(w, "%s%s:\n", e.symbolPrefix, fn.Name())

	for block := fn.FirstBlock(); block != nil; block = block.Next() {
		e.emitBasicBlock(w, fn, block)
	}

	fmt.Fprint(w, "\n")
}

func (e *AArch64AsmEmitter) emitBasicBlock(w io.Writer, fn *mcode.Function, block *mcode.BasicBlock) {
	if block.Label() != "" {
		fmt.Fprintf(w, "%s:\n", block.Label())
	}

	for instr := block.FirstInstr(); instr != nil; instr = instr.Next() {
		if instr.Opcode() < 0 {
			continue
		}

		line := "  " + aarch64.OpcodeName(instr.Opcode())
		for i := 0; i < instr.NumOperands(); i++ {
			if i == 0 {
				line += " "
			} else {
				line += ", "
			}
			line += e.operandToString(fn, instr.Operand(i))
		}

		fmt.Fprintf(w, "%s\n", line)
	}

	fmt.Fprint(w, "\n")
}

func (e *AArch64AsmEmitter) operandToString(fn *mcode.Function, operand *mcode.Operand) string {
	switch {
	case operand.IsIntImmediate():
		return "#" + operand.IntImmediate().String()
	case operand.IsFPImmediate():
		return "#" + strconv.FormatFloat(operand.FPImmediate(), 'g', -1, 64)
	case operand.IsPhysicalReg():
		return e.regName(operand.PhysicalReg(), operand.Size())
	case operand.IsVirtualReg():
		return "%" + strconv.Itoa(operand.VirtualReg())
	case operand.IsStackSlot():
		offset := fn.StackFrame().StackSlot(operand.StackSlot()).Offset()
		return "[sp, #" + strconv.Itoa(offset) + "]"
	case operand.IsSymbol():
		return e.symbol(operand.Symbol())
	case operand.IsLabel():
		return operand.Label()
	case operand.IsAArch64Addr():
		return e.addr(operand.AArch64Addr())
	case operand.IsStackSlotOffset():
		slotOffset := operand.StackSlotOffset()
		total := fn.StackFrame().StackSlot(slotOffset.Slot).Offset() + slotOffset.Addend
		return "#" + strconv.Itoa(total)
	case operand.IsAArch64LeftShift():
		return "lsl #" + strconv.Itoa(int(operand.AArch64LeftShift()))
	case operand.IsAArch64Condition():
		return operand.AArch64Condition().String()
	}
	panic("BUG: unknown operand")
}

func (e *AArch64AsmEmitter) regName(reg mcode.PhysicalReg, size int) string {
	return aarch64.PhysicalRegName(reg, size)
}

func (e *AArch64AsmEmitter) symbol(symbol mcode.Symbol) string {
	fullName := e.symbolPrefix + symbol.Name

	switch symbol.Directive {
	case mcode.DirectivePage:
		if symbol.Reloc == mcode.RelocGOT {
			return fullName + "@GOTPAGE"
		}
		return fullName + "@PAGE"
	case mcode.DirectivePageOff:
		if symbol.Reloc == mcode.RelocGOT {
			return fullName + "@GOTPAGEOFF"
		}
		return fullName + "@PAGEOFF"
	}

	if symbol.Reloc == mcode.RelocLO12 {
		return ":lo12:" + fullName
	}
	return fullName
}

func (e *AArch64AsmEmitter) addr(addr *mcode.AArch64Address) string {
	base := e.baseRegName(addr.Base())

	switch addr.Kind() {
	case mcode.AArch64AddrBase:
		return "[" + base + "]"
	case mcode.AArch64AddrBaseOffsetImm:
		return "[" + base + ", #" + strconv.Itoa(addr.IntOffset()) + "]"
	case mcode.AArch64AddrBaseOffsetImmWrite:
		return "[" + base + ", #" + strconv.Itoa(addr.IntOffset()) + "]!"
	case mcode.AArch64AddrBaseOffsetReg:
		return "[" + base + ", " + e.baseRegName(addr.RegOffset()) + "]"
	}
	panic("BUG: unknown address kind")
}

func (e *AArch64AsmEmitter) baseRegName(reg mcode.Register) string {
	if reg.IsVirtualReg() {
		return "%" + strconv.Itoa(reg.VirtualReg())
	}
	return e.regName(reg.PhysicalReg(), 8)
}

func dataDirective(size int) string {
	switch size {
	case 1:
		return ".byte"
	case 2:
		return ".hword"
	case 4:
		return ".word"
	case 8:
		return ".xword"
	}
	panic("BUG: unsupported data directive size")
}
