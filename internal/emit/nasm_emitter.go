package emit

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/chnoblouch/banjo/internal/mcode"
	"github.com/chnoblouch/banjo/internal/ssa"
	"github.com/chnoblouch/banjo/internal/target"
	"github.com/chnoblouch/banjo/internal/target/x8664"
)

// NASMEmitter renders an x86-64 machine module as NASM assembly.
type NASMEmitter struct {
	mod   *mcode.Module
	descr target.Description

	symbolPrefixes map[string]string
}

func NewNASMEmitter(mod *mcode.Module, descr target.Description) *NASMEmitter {
	return &NASMEmitter{
		mod:            mod,
		descr:          descr,
		symbolPrefixes: make(map[string]string),
	}
}

// Generate implements Emitter.
func (e *NASMEmitter) Generate(w io.Writer) error {
	buf := bufio.NewWriter(w)

	fmt.Fprint(buf, "default rel\n\n")

	darwin := e.descr.IsDarwin()

	for _, externalSymbol := range e.mod.ExternalSymbols() {
		if darwin {
			e.symbolPrefixes[externalSymbol] = "_"
		}
		fmt.Fprintf(buf, "extern %s%s\n", e.symbolPrefixes[externalSymbol], externalSymbol)
	}
	fmt.Fprint(buf, "\n")

	for _, globalSymbol := range e.mod.GlobalSymbols() {
		prefix := ""
		if darwin {
			prefix = "_"
		}
		fmt.Fprintf(buf, "global %s%s\n", prefix, globalSymbol)
	}
	fmt.Fprint(buf, "\n")

	if darwin {
		for _, fn := range e.mod.Functions() {
			e.symbolPrefixes[fn.Name()] = "_"
		}
	}

	fmt.Fprint(buf, "section .text\n")
	for _, fn := range e.mod.Functions() {
		e.emitFunc(buf, fn)
	}

	fmt.Fprint(buf, "\nsection .data\n")
	for i := range e.mod.Globals() {
		e.emitGlobal(buf, &e.mod.Globals()[i])
	}

	if table := e.mod.AddrTable(); table != nil {
		fmt.Fprint(buf, "addr_table:\n")
		for _, entry := range table.Entries {
			fmt.Fprintf(buf, "    dq %s%s\n", e.symbolPrefixes[entry], entry)
		}
	}

	if len(e.mod.DLLExports()) > 0 {
		fmt.Fprint(buf, "\nsection .drectve info\n")
		exports := lo.Map(e.mod.DLLExports(), func(name string, _ int) string {
			return "/EXPORT:" + name + " "
		})
		fmt.Fprintf(buf, "db '%s'\n", strings.Join(exports, ""))
	}

	return buf.Flush()
}

func (e *NASMEmitter) emitGlobal(w io.Writer, global *mcode.Global) {
	fmt.Fprintf(w, "%s ", global.Name)

	switch value := global.Value; value.Kind {
	case ssa.GlobalInteger:
		fmt.Fprintf(w, "%s %s", sizeDeclaration(global.Size), value.IntValue)
	case ssa.GlobalFloatingPoint:
		str := strconv.FormatFloat(value.FPValue, 'g', -1, 64)
		if !strings.ContainsAny(str, ".eE") {
			str += ".0"
		}

		switch global.Size {
		case 4:
			fmt.Fprintf(w, "dd __float32__(%s)", str)
		case 8:
			fmt.Fprintf(w, "dq __float64__(%s)", str)
		default:
			panic("BUG: unsupported float size")
		}
	case ssa.GlobalBytes:
		parts := lo.Map(value.Bytes, func(b byte, _ int) string {
			return strconv.Itoa(int(b))
		})
		fmt.Fprintf(w, "db %s", strings.Join(parts, ", "))
	case ssa.GlobalString:
		fmt.Fprintf(w, "db %s", nasmString(value.Str))
	case ssa.GlobalSymbolRef:
		fmt.Fprintf(w, "%s %s", sizeDeclaration(global.Size), value.SymbolName)
	case ssa.GlobalNone:
		fmt.Fprintf(w, "times %d db 0", global.Size)
	default:
		panic("BUG: unknown global value")
	}

	fmt.Fprint(w, "\n")
}

func nasmString(str string) string {
	var sb strings.Builder
	sb.WriteByte('\'')

	for i := 0; i < len(str); i++ {
		switch c := str[i]; c {
		case 0:
			sb.WriteString("', 0x00, '")
		case '\n':
			sb.WriteString("', 0x0A, '")
		case '\r':
			sb.WriteString("', 0x0D, '")
		default:
			sb.WriteByte(c)
		}
	}

	sb.WriteByte('\'')

	result := sb.String()
	// Strings ending in an escape leave an empty trailing chunk behind.
	result = strings.ReplaceAll(result, ", ''", "")
	return result
}

func (e *NASMEmitter) emitFunc(w io.Writer, fn *mcode.Function) {
	fmt.Fprintf(w, "%s%s:\n", e.symbolPrefixes[fn.Name()], fn.Name())

	for block := fn.FirstBlock(); block != nil; block = block.Next() {
		e.emitBasicBlock(w, block)
	}

	fmt.Fprint(w, "\n")
}

func (e *NASMEmitter) emitBasicBlock(w io.Writer, block *mcode.BasicBlock) {
	if block.Label() != "" {
		fmt.Fprintf(w, "%s:\n", block.Label())
	}

	for instr := block.FirstInstr(); instr != nil; instr = instr.Next() {
		if instr.Opcode() < 0 {
			continue
		}

		fmt.Fprintf(w, "    %s\n", e.instrToString(block, instr))
	}
}

func (e *NASMEmitter) instrToString(block *mcode.BasicBlock, instr *mcode.Instruction) string {
	line := x8664.OpcodeName(instr.Opcode())

	hasRegOperand := false
	for i := 0; i < instr.NumOperands(); i++ {
		if instr.Operand(i).IsPhysicalReg() {
			hasRegOperand = true
			break
		}
	}

	if !hasRegOperand && instr.HasDest() && instr.Dest().Size() != 0 {
		line += " " + sizeSpecifier(instr.Dest().Size())
	}

	requiresSize := instr.Opcode() == x8664.MOVSX || instr.Opcode() == x8664.MOVZX ||
		instr.Opcode() == x8664.SHL || instr.Opcode() == x8664.SHR ||
		instr.Opcode() == x8664.CVTSI2SS || instr.Opcode() == x8664.CVTSI2SD

	for i := 0; i < instr.NumOperands(); i++ {
		if i == 0 {
			line += " "
		} else {
			line += ", "
		}

		operand := instr.Operand(i)

		if requiresSize && !operand.IsRegister() {
			line += sizeSpecifier(operand.Size()) + " "
		}

		line += e.operandToString(block, operand)
	}

	return line
}

func (e *NASMEmitter) operandToString(block *mcode.BasicBlock, operand *mcode.Operand) string {
	switch {
	case operand.IsIntImmediate():
		return operand.IntImmediate().String()
	case operand.IsFPImmediate():
		return strconv.FormatFloat(operand.FPImmediate(), 'g', -1, 64)
	case operand.IsRegister():
		return e.regName(block, operand.Register(), operand.Size())
	case operand.IsSymbol():
		return e.symbol(operand.Symbol())
	case operand.IsLabel():
		return operand.Label()
	case operand.IsSymbolDeref():
		return "[" + e.symbol(operand.DerefSymbol()) + "]"
	case operand.IsAddr():
		addr := operand.Addr()

		var base string
		if addr.Base().IsStackSlot() {
			base = e.stackSlotAddr(block.Func(), addr.Base().StackSlot())
		} else {
			base = e.regName(block, addr.Base(), 8)
		}

		if addr.HasOffset() {
			var offset string
			if addr.HasRegOffset() {
				if addr.RegOffset().IsStackSlot() {
					offset = e.stackSlotAddr(block.Func(), addr.RegOffset().StackSlot())
				} else {
					offset = e.regName(block, addr.RegOffset(), 8)
				}
			} else {
				offset = strconv.Itoa(addr.IntOffset())
			}

			scaledOffset := offset
			if addr.Scale() != 1 {
				scaledOffset = strconv.Itoa(addr.Scale()) + " * " + offset
			}
			return "[" + base + " + " + scaledOffset + "]"
		}
		return "[" + base + "]"
	}
	return "???"
}

func (e *NASMEmitter) regName(block *mcode.BasicBlock, reg mcode.Register, size int) string {
	switch {
	case reg.IsVirtualReg():
		return "%" + strconv.Itoa(reg.VirtualReg())
	case reg.IsPhysicalReg():
		return x8664.PhysicalRegName(reg.PhysicalReg(), size)
	default:
		return "[" + e.stackSlotAddr(block.Func(), reg.StackSlot()) + "]"
	}
}

func (e *NASMEmitter) stackSlotAddr(fn *mcode.Function, slot mcode.StackSlotID) string {
	offset := fn.StackFrame().StackSlot(slot).Offset()
	if offset >= 0 {
		return "rsp + " + strconv.Itoa(offset)
	}
	return "rsp - " + strconv.Itoa(-offset)
}

func (e *NASMEmitter) symbol(symbol mcode.Symbol) string {
	str := e.symbolPrefixes[symbol.Name] + symbol.Name

	switch symbol.Reloc {
	case mcode.RelocGOT:
		str += " wrt ..got"
	case mcode.RelocPLT:
		str += " wrt ..plt"
	}

	return str
}

func sizeSpecifier(size int) string {
	switch size {
	case 1:
		return "byte"
	case 2:
		return "word"
	case 4:
		return "dword"
	case 8:
		return "qword"
	case 16:
		return "oword"
	}
	return "???"
}

func sizeDeclaration(size int) string {
	switch size {
	case 1:
		return "db"
	case 2:
		return "dw"
	case 4:
		return "dd"
	case 8:
		return "dq"
	}
	panic("BUG: unsupported data declaration size")
}
