package ssa

import (
	"fmt"
	"io"
	"strings"
)

// Writer prints a module as SSA text. The output parses back via Parser
// with the same semantic content, except that the linkage flags
// Function.Global and Global.External and the module's AddrTable are not
// written, so they come back unset.
type Writer struct {
	w io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteString renders mod into a string.
func WriteString(mod *Module) string {
	var sb strings.Builder
	NewWriter(&sb).Write(mod)
	return sb.String()
}

func (w *Writer) Write(mod *Module) {
	for _, struct_ := range mod.Structures {
		fmt.Fprintf(w.w, "struct @%s {\n", struct_.Name)
		for _, member := range struct_.Members {
			fmt.Fprintf(w.w, "    %s @%s\n", member.Type, member.Name)
		}
		fmt.Fprint(w.w, "}\n\n")
	}

	if len(mod.ExternalFunctions) > 0 {
		for _, decl := range mod.ExternalFunctions {
			w.writeFuncDecl(decl)
			fmt.Fprint(w.w, "\n")
		}
		fmt.Fprint(w.w, "\n")
	}

	if len(mod.ExternalGlobals) > 0 {
		for _, decl := range mod.ExternalGlobals {
			fmt.Fprintf(w.w, "decl global %s @%s\n", decl.Type, decl.Name)
		}
		fmt.Fprint(w.w, "\n")
	}

	if len(mod.Globals) > 0 {
		for _, global := range mod.Globals {
			fmt.Fprintf(w.w, "def global %s @%s = %s\n", global.Type, global.Name, globalValueToStr(global.InitialValue))
		}
		fmt.Fprint(w.w, "\n")
	}

	if len(mod.DLLExports) > 0 {
		for _, dllExport := range mod.DLLExports {
			fmt.Fprintf(w.w, "def dllexport @%s\n", dllExport)
		}
		fmt.Fprint(w.w, "\n")
	}

	for _, function := range mod.Functions {
		w.writeFuncDef(function)
		fmt.Fprint(w.w, "\n")
	}
}

func (w *Writer) writeFuncDecl(decl *FunctionDecl) {
	fmt.Fprintf(w.w, "decl func %s %s @%s(%s)", decl.CallingConv, decl.ReturnType, decl.Name, typeListToStr(decl.Params))
}

func (w *Writer) writeFuncDef(f *Function) {
	fmt.Fprintf(w.w, "def func %s %s @%s(%s)\n", f.CallingConv, f.ReturnType, f.Name, typeListToStr(f.Params))

	for blk := f.FirstBlock(); blk != nil; blk = blk.Next() {
		w.writeBasicBlock(blk)
	}
}

func (w *Writer) writeBasicBlock(bb *BasicBlock) {
	if bb.HasLabel() {
		fmt.Fprint(w.w, bb.Label())

		if len(bb.ParamRegs()) > 0 {
			fmt.Fprint(w.w, "(")
			for i, reg := range bb.ParamRegs() {
				if i != 0 {
					fmt.Fprint(w.w, ", ")
				}
				fmt.Fprintf(w.w, "%s %%%d", bb.ParamTypes()[i], reg)
			}
			fmt.Fprint(w.w, ")")
		}

		fmt.Fprint(w.w, ":\n")
	}

	for instr := bb.FirstInstr(); instr != nil; instr = instr.Next() {
		fmt.Fprint(w.w, "    ")

		if instr.HasDest() {
			fmt.Fprintf(w.w, "%%%d = ", instr.Dest())
		}

		fmt.Fprint(w.w, instr.Opcode().String())

		for i, operand := range instr.Operands() {
			if i == 0 {
				fmt.Fprint(w.w, " ")
			} else {
				fmt.Fprint(w.w, ", ")
			}

			if !operand.Type().IsPrimitive(VOID) {
				fmt.Fprint(w.w, operand.Type().String())
				if !operand.IsType() {
					fmt.Fprint(w.w, " ")
				}
			}

			fmt.Fprint(w.w, operand.String())
		}

		if instr.HasFlag(FlagArgStore) {
			fmt.Fprint(w.w, " !arg_store")
		}
		if instr.HasFlag(FlagSaveArg) {
			fmt.Fprint(w.w, " !save_arg")
		}
		if instr.HasFlag(FlagVariadic) {
			fmt.Fprint(w.w, " !variadic")
		}

		fmt.Fprint(w.w, "\n")
	}
}

func typeListToStr(types []Type) string {
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}

func globalValueToStr(value GlobalValue) string {
	switch value.Kind {
	case GlobalNone:
		return "undefined"
	case GlobalInteger:
		return value.IntValue.String()
	case GlobalFloatingPoint:
		return formatFP(value.FPValue)
	case GlobalBytes:
		parts := make([]string, len(value.Bytes))
		for i, b := range value.Bytes {
			parts[i] = fmt.Sprintf("%d", b)
		}
		return "bytes(" + strings.Join(parts, ", ") + ")"
	case GlobalString:
		return quoteString(value.Str)
	case GlobalSymbolRef:
		return "@" + value.SymbolName
	}
	return "???"
}

func quoteString(str string) string {
	var sb strings.Builder
	sb.WriteByte('"')
	for i := 0; i < len(str); i++ {
		switch c := str[i]; c {
		case 0:
			sb.WriteString("\\0")
		case '\n':
			sb.WriteString("\\n")
		case '"':
			sb.WriteString("\\\"")
		case '\\':
			sb.WriteString("\\\\")
		default:
			sb.WriteByte(c)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}
