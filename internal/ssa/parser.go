package ssa

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Parser reads the SSA text format produced by Writer. It is the inverse
// of Writer up to whitespace; the driver uses it to load modules and the
// tests use it for round-trip checks.
type Parser struct {
	mod   *Module
	lines []string
	pos   int

	funcNames         map[string]bool
	externFuncNames   map[string]bool
	globalNames       map[string]bool
	externGlobalNames map[string]bool
}

// Parse builds a module from SSA text.
func Parse(src string) (*Module, error) {
	p := &Parser{
		mod:               &Module{},
		lines:             strings.Split(src, "\n"),
		funcNames:         make(map[string]bool),
		externFuncNames:   make(map[string]bool),
		globalNames:       make(map[string]bool),
		externGlobalNames: make(map[string]bool),
	}

	if err := p.scanSymbols(); err != nil {
		return nil, err
	}
	if err := p.parse(); err != nil {
		return nil, err
	}
	return p.mod, nil
}

// scanSymbols pre-collects structure and symbol names so that operand
// kinds can be resolved while parsing bodies, regardless of declaration
// order.
func (p *Parser) scanSymbols() error {
	for _, line := range p.lines {
		line = strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(line, "struct @"):
			name := strings.TrimSuffix(strings.TrimPrefix(line, "struct @"), " {")
			p.mod.AddStructure(&Structure{Name: name})
		case strings.HasPrefix(line, "decl func "):
			name, err := symbolNameOf(line)
			if err != nil {
				return err
			}
			p.externFuncNames[name] = true
		case strings.HasPrefix(line, "def func "):
			name, err := symbolNameOf(line)
			if err != nil {
				return err
			}
			p.funcNames[name] = true
		case strings.HasPrefix(line, "decl global "):
			name, err := symbolNameOf(line)
			if err != nil {
				return err
			}
			p.externGlobalNames[name] = true
		case strings.HasPrefix(line, "def global "):
			name, err := symbolNameOf(line)
			if err != nil {
				return err
			}
			p.globalNames[name] = true
		}
	}
	return nil
}

func symbolNameOf(line string) (string, error) {
	at := strings.Index(line, "@")
	if at < 0 {
		return "", errors.Errorf("missing symbol name in %q", line)
	}
	rest := line[at+1:]
	if end := strings.IndexAny(rest, "( ="); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest), nil
}

func (p *Parser) parse() error {
	for p.pos < len(p.lines) {
		line := strings.TrimSpace(p.lines[p.pos])

		switch {
		case line == "":
			p.pos++
		case strings.HasPrefix(line, "struct @"):
			if err := p.parseStruct(line); err != nil {
				return err
			}
		case strings.HasPrefix(line, "decl func "):
			if err := p.parseFuncDecl(line); err != nil {
				return err
			}
			p.pos++
		case strings.HasPrefix(line, "decl global "):
			if err := p.parseGlobalDecl(line); err != nil {
				return err
			}
			p.pos++
		case strings.HasPrefix(line, "def global "):
			if err := p.parseGlobalDef(line); err != nil {
				return err
			}
			p.pos++
		case strings.HasPrefix(line, "def dllexport @"):
			p.mod.DLLExports = append(p.mod.DLLExports, strings.TrimPrefix(line, "def dllexport @"))
			p.pos++
		case strings.HasPrefix(line, "def func "):
			if err := p.parseFuncDef(); err != nil {
				return err
			}
		default:
			return errors.Errorf("unexpected line %d: %q", p.pos+1, line)
		}
	}
	return nil
}

func (p *Parser) parseStruct(header string) error {
	name := strings.TrimSuffix(strings.TrimPrefix(header, "struct @"), " {")
	struct_ := p.mod.FindStructure(name)
	p.pos++

	for p.pos < len(p.lines) {
		line := strings.TrimSpace(p.lines[p.pos])
		p.pos++

		if line == "}" {
			return nil
		}

		fields := strings.Fields(line)
		if len(fields) != 2 || !strings.HasPrefix(fields[1], "@") {
			return errors.Errorf("malformed struct member %q", line)
		}

		memberType, err := p.parseType(fields[0])
		if err != nil {
			return err
		}

		struct_.Members = append(struct_.Members, StructureMember{
			Name: strings.TrimPrefix(fields[1], "@"),
			Type: memberType,
		})
	}

	return errors.Errorf("unterminated struct @%s", name)
}

// parseFuncHeader splits `cc rettype @name(params)` after the keyword.
func (p *Parser) parseFuncHeader(rest string) (CallingConv, Type, string, []Type, error) {
	fields := strings.SplitN(rest, " ", 3)
	if len(fields) != 3 {
		return 0, Type{}, "", nil, errors.Errorf("malformed function header %q", rest)
	}

	callingConv, err := parseCallingConv(fields[0])
	if err != nil {
		return 0, Type{}, "", nil, err
	}

	returnType, err := p.parseType(fields[1])
	if err != nil {
		return 0, Type{}, "", nil, err
	}

	sig := fields[2]
	open := strings.Index(sig, "(")
	if open < 0 || !strings.HasSuffix(sig, ")") || !strings.HasPrefix(sig, "@") {
		return 0, Type{}, "", nil, errors.Errorf("malformed function signature %q", sig)
	}

	name := sig[1:open]
	var params []Type
	if paramsStr := sig[open+1 : len(sig)-1]; paramsStr != "" {
		for _, part := range strings.Split(paramsStr, ",") {
			paramType, err := p.parseType(strings.TrimSpace(part))
			if err != nil {
				return 0, Type{}, "", nil, err
			}
			params = append(params, paramType)
		}
	}

	return callingConv, returnType, name, params, nil
}

func (p *Parser) parseFuncDecl(line string) error {
	callingConv, returnType, name, params, err := p.parseFuncHeader(strings.TrimPrefix(line, "decl func "))
	if err != nil {
		return err
	}

	p.mod.AddExternalFunction(&FunctionDecl{
		Name:        name,
		Params:      params,
		ReturnType:  returnType,
		CallingConv: callingConv,
	})
	return nil
}

func (p *Parser) parseGlobalDecl(line string) error {
	fields := strings.Fields(strings.TrimPrefix(line, "decl global "))
	if len(fields) != 2 || !strings.HasPrefix(fields[1], "@") {
		return errors.Errorf("malformed global declaration %q", line)
	}

	typ, err := p.parseType(fields[0])
	if err != nil {
		return err
	}

	p.mod.AddExternalGlobal(&GlobalDecl{Name: strings.TrimPrefix(fields[1], "@"), Type: typ})
	return nil
}

func (p *Parser) parseGlobalDef(line string) error {
	rest := strings.TrimPrefix(line, "def global ")
	eq := strings.Index(rest, " = ")
	if eq < 0 {
		return errors.Errorf("malformed global definition %q", line)
	}

	fields := strings.Fields(rest[:eq])
	if len(fields) != 2 || !strings.HasPrefix(fields[1], "@") {
		return errors.Errorf("malformed global definition %q", line)
	}

	typ, err := p.parseType(fields[0])
	if err != nil {
		return err
	}

	value, err := p.parseGlobalValue(strings.TrimSpace(rest[eq+3:]), typ)
	if err != nil {
		return err
	}

	p.mod.AddGlobal(&Global{
		Name:         strings.TrimPrefix(fields[1], "@"),
		Type:         typ,
		InitialValue: value,
	})
	return nil
}

func (p *Parser) parseGlobalValue(str string, typ Type) (GlobalValue, error) {
	switch {
	case str == "undefined":
		return GlobalValueNone(), nil
	case strings.HasPrefix(str, "\""):
		unquoted, err := unquoteString(str)
		if err != nil {
			return GlobalValue{}, err
		}
		return GlobalValueString(unquoted), nil
	case strings.HasPrefix(str, "bytes(") && strings.HasSuffix(str, ")"):
		var bytes []byte
		inner := str[len("bytes(") : len(str)-1]
		if inner != "" {
			for _, part := range strings.Split(inner, ",") {
				b, err := strconv.ParseUint(strings.TrimSpace(part), 10, 8)
				if err != nil {
					return GlobalValue{}, errors.Wrapf(err, "malformed byte list %q", str)
				}
				bytes = append(bytes, byte(b))
			}
		}
		return GlobalValueBytes(bytes), nil
	case strings.HasPrefix(str, "@"):
		return GlobalValueSymbolRef(strings.TrimPrefix(str, "@")), nil
	case typ.IsFloatingPoint():
		value, err := strconv.ParseFloat(str, 64)
		if err != nil {
			return GlobalValue{}, errors.Wrapf(err, "malformed float initializer %q", str)
		}
		return GlobalValueFP(value), nil
	default:
		value, err := parseLargeInt(str)
		if err != nil {
			return GlobalValue{}, err
		}
		return GlobalValueInt(value), nil
	}
}

func (p *Parser) parseFuncDef() error {
	callingConv, returnType, name, params, err := p.parseFuncHeader(strings.TrimPrefix(strings.TrimSpace(p.lines[p.pos]), "def func "))
	if err != nil {
		return err
	}
	p.pos++

	f := NewFunction(name, params, returnType, callingConv)
	p.mod.AddFunction(f)

	// Collect the function's body lines first so that all block labels
	// exist before branch targets are resolved.
	start := p.pos
	for p.pos < len(p.lines) {
		line := strings.TrimSpace(p.lines[p.pos])
		if line == "" || strings.HasPrefix(line, "def ") || strings.HasPrefix(line, "decl ") || strings.HasPrefix(line, "struct ") {
			break
		}
		p.pos++
	}
	body := p.lines[start:p.pos]

	entry := f.CreateBlock("")
	maxReg := VirtualRegister(-1)

	// First pass: create the labelled blocks with their parameters.
	for _, raw := range body {
		line := strings.TrimSpace(raw)
		if !strings.HasSuffix(line, ":") {
			continue
		}

		label := strings.TrimSuffix(line, ":")
		var paramRegs []VirtualRegister
		var paramTypes []Type

		if open := strings.Index(label, "("); open >= 0 {
			paramsStr := strings.TrimSuffix(label[open+1:], ")")
			label = label[:open]

			for _, part := range strings.Split(paramsStr, ",") {
				fields := strings.Fields(strings.TrimSpace(part))
				if len(fields) != 2 || !strings.HasPrefix(fields[1], "%") {
					return errors.Errorf("malformed block parameter %q", part)
				}

				paramType, err := p.parseType(fields[0])
				if err != nil {
					return err
				}
				reg, err := parseRegister(fields[1])
				if err != nil {
					return err
				}

				paramRegs = append(paramRegs, reg)
				paramTypes = append(paramTypes, paramType)
				if reg > maxReg {
					maxReg = reg
				}
			}
		}

		blk := f.CreateBlock(label)
		blk.paramRegs = paramRegs
		blk.paramTypes = paramTypes
	}

	// Second pass: parse the instructions into their blocks.
	current := entry
	for _, raw := range body {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if strings.HasSuffix(line, ":") {
			label := strings.TrimSuffix(line, ":")
			if open := strings.Index(label, "("); open >= 0 {
				label = label[:open]
			}
			current = f.FindBlock(label)
			continue
		}

		instr, destReg, err := p.parseInstr(f, line)
		if err != nil {
			return err
		}
		current.Append(instr)
		if destReg > maxReg {
			maxReg = destReg
		}
	}

	f.nextVReg = maxReg + 1
	return nil
}

func (p *Parser) parseInstr(f *Function, line string) (*Instruction, VirtualRegister, error) {
	dest := NoRegister

	if strings.HasPrefix(line, "%") {
		eq := strings.Index(line, " = ")
		if eq < 0 {
			return nil, NoRegister, errors.Errorf("malformed instruction %q", line)
		}

		reg, err := parseRegister(line[:eq])
		if err != nil {
			return nil, NoRegister, err
		}
		dest = reg
		line = line[eq+3:]
	}

	var flags InstrFlag
	for {
		switch {
		case strings.HasSuffix(line, " !arg_store"):
			flags |= FlagArgStore
			line = strings.TrimSuffix(line, " !arg_store")
		case strings.HasSuffix(line, " !save_arg"):
			flags |= FlagSaveArg
			line = strings.TrimSuffix(line, " !save_arg")
		case strings.HasSuffix(line, " !variadic"):
			flags |= FlagVariadic
			line = strings.TrimSuffix(line, " !variadic")
		default:
			goto flagsDone
		}
	}
flagsDone:

	opcodeStr := line
	operandsStr := ""
	if space := strings.Index(line, " "); space >= 0 {
		opcodeStr = line[:space]
		operandsStr = strings.TrimSpace(line[space+1:])
	}

	opcode, err := parseOpcode(opcodeStr)
	if err != nil {
		return nil, NoRegister, err
	}

	var operands []Operand
	for _, token := range splitOperands(operandsStr) {
		operand, err := p.parseOperand(f, token)
		if err != nil {
			return nil, NoRegister, err
		}
		operands = append(operands, operand)
	}

	instr := &Instruction{opcode: opcode, dest: dest, operands: operands, flags: flags}
	return instr, dest, nil
}

// splitOperands splits on top-level ", ", leaving branch-target argument
// lists and quoted strings intact.
func splitOperands(str string) []string {
	if str == "" {
		return nil
	}

	var tokens []string
	depth := 0
	inString := false
	start := 0

	for i := 0; i < len(str); i++ {
		switch str[i] {
		case '"':
			inString = !inString
		case '(':
			if !inString {
				depth++
			}
		case ')':
			if !inString {
				depth--
			}
		case ',':
			if depth == 0 && !inString {
				tokens = append(tokens, strings.TrimSpace(str[start:i]))
				start = i + 1
			}
		}
	}

	tokens = append(tokens, strings.TrimSpace(str[start:]))
	return tokens
}

func (p *Parser) parseOperand(f *Function, token string) (Operand, error) {
	// A leading "@" without a type prefix is a branch target, a struct
	// type marker, or a void-typed symbol, in that resolution order.
	if strings.HasPrefix(token, "@") {
		name := token[1:]
		var argsStr string
		if open := strings.Index(name, "("); open >= 0 {
			argsStr = strings.TrimSuffix(name[open+1:], ")")
			name = name[:open]
		}

		if blk := f.FindBlock(name); blk != nil {
			return p.parseBranchTarget(f, blk, argsStr)
		}
		if struct_ := p.mod.FindStructure(name); struct_ != nil {
			return FromType(StructType(struct_)), nil
		}
		return p.symbolOperand(name, VOID.Type()), nil
	}

	fields := strings.SplitN(token, " ", 2)
	typ, err := p.parseType(fields[0])

	if err == nil && len(fields) == 1 {
		return FromType(typ), nil
	}

	if err != nil {
		// Bare token without a type: a comparison code.
		cmp, cmpErr := parseComparison(token)
		if cmpErr != nil {
			return Operand{}, errors.Errorf("cannot parse operand %q", token)
		}
		return FromComparison(cmp), nil
	}

	return p.parseTypedValue(strings.TrimSpace(fields[1]), typ)
}

func (p *Parser) parseTypedValue(str string, typ Type) (Operand, error) {
	switch {
	case strings.HasPrefix(str, "%"):
		reg, err := parseRegister(str)
		if err != nil {
			return Operand{}, err
		}
		return FromRegister(reg, typ), nil
	case strings.HasPrefix(str, "@"):
		return p.symbolOperand(strings.TrimPrefix(str, "@"), typ), nil
	case typ.IsFloatingPoint():
		value, err := strconv.ParseFloat(str, 64)
		if err != nil {
			return Operand{}, errors.Wrapf(err, "malformed float immediate %q", str)
		}
		return FromFPImmediate(value, typ), nil
	default:
		value, err := parseLargeInt(str)
		if err != nil {
			return Operand{}, err
		}
		return FromIntImmediate(value, typ), nil
	}
}

func (p *Parser) symbolOperand(name string, typ Type) Operand {
	switch {
	case p.funcNames[name]:
		return FromFunc(name, typ)
	case p.externFuncNames[name]:
		return FromExternFunc(name, typ)
	case p.externGlobalNames[name]:
		return FromExternGlobal(name, typ)
	default:
		return FromGlobal(name, typ)
	}
}

func (p *Parser) parseBranchTarget(f *Function, blk *BasicBlock, argsStr string) (Operand, error) {
	target := BranchTarget{Block: blk}

	if argsStr != "" {
		args := splitOperands(argsStr)
		if len(args) != len(blk.ParamTypes()) {
			return Operand{}, errors.Errorf("branch to @%s carries %d arguments, block has %d parameters",
				blk.Label(), len(args), len(blk.ParamTypes()))
		}

		for i, arg := range args {
			// Branch arguments print without types; they take the
			// target parameter's type.
			value, err := p.parseTypedValue(arg, blk.ParamTypes()[i])
			if err != nil {
				return Operand{}, err
			}
			target.Args = append(target.Args, value)
		}
	}

	return FromBranchTarget(target), nil
}

func (p *Parser) parseType(str string) (Type, error) {
	switch str {
	case "void":
		return VOID.Type(), nil
	case "i8":
		return I8.Type(), nil
	case "i16":
		return I16.Type(), nil
	case "i32":
		return I32.Type(), nil
	case "i64":
		return I64.Type(), nil
	case "f32":
		return F32.Type(), nil
	case "f64":
		return F64.Type(), nil
	case "addr":
		return ADDR.Type(), nil
	}

	if strings.HasPrefix(str, "@") {
		if struct_ := p.mod.FindStructure(str[1:]); struct_ != nil {
			return StructType(struct_), nil
		}
	}

	return Type{}, errors.Errorf("unknown type %q", str)
}

func parseRegister(str string) (VirtualRegister, error) {
	if !strings.HasPrefix(str, "%") {
		return NoRegister, errors.Errorf("malformed register %q", str)
	}
	value, err := strconv.ParseInt(str[1:], 10, 32)
	if err != nil {
		return NoRegister, errors.Wrapf(err, "malformed register %q", str)
	}
	return VirtualRegister(value), nil
}

func parseLargeInt(str string) (LargeInt, error) {
	negative := strings.HasPrefix(str, "-")
	magnitude, err := strconv.ParseUint(strings.TrimPrefix(str, "-"), 10, 64)
	if err != nil {
		return LargeInt{}, errors.Wrapf(err, "malformed integer %q", str)
	}
	return LargeInt{Negative: negative && magnitude != 0, Magnitude: magnitude}, nil
}

func parseCallingConv(str string) (CallingConv, error) {
	switch str {
	case "sysv_abi":
		return CallingConvX8664SysV, nil
	case "ms_abi":
		return CallingConvX8664MSABI, nil
	case "aapcs":
		return CallingConvAArch64AAPCS, nil
	case "???":
		return CallingConvNone, nil
	}
	return 0, errors.Errorf("unknown calling convention %q", str)
}

func parseComparison(str string) (Comparison, error) {
	for cmp := EQ; cmp <= FLE; cmp++ {
		if cmp.String() == str {
			return cmp, nil
		}
	}
	return 0, errors.Errorf("unknown comparison %q", str)
}

func parseOpcode(str string) (Opcode, error) {
	for op := OpcodeAlloca; op <= OpcodeCopy; op++ {
		if op.String() == str {
			return op, nil
		}
	}
	return OpcodeInvalid, errors.Errorf("unknown opcode %q", str)
}

func unquoteString(str string) (string, error) {
	if len(str) < 2 || !strings.HasPrefix(str, "\"") || !strings.HasSuffix(str, "\"") {
		return "", errors.Errorf("malformed string %q", str)
	}

	var sb strings.Builder
	body := str[1 : len(str)-1]
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c != '\\' {
			sb.WriteByte(c)
			continue
		}

		i++
		if i >= len(body) {
			return "", errors.Errorf("dangling escape in %q", str)
		}
		switch body[i] {
		case '0':
			sb.WriteByte(0)
		case 'n':
			sb.WriteByte('\n')
		case '"':
			sb.WriteByte('"')
		case '\\':
			sb.WriteByte('\\')
		default:
			return "", errors.Errorf("unknown escape \\%c in %q", body[i], str)
		}
	}
	return sb.String(), nil
}
