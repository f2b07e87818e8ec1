package mir

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Parse reads the textual MIR format Printer writes (SPEC_FULL.md's input
// format: the frontend that would normally produce this is out of
// scope, so the driver's input file is this package's own printed form).
// It is a small hand-rolled line scanner, not a generated parser, in
// keeping with the rest of the backend's preference for explicit,
// traceable code over parser-generator machinery.
func Parse(r io.Reader) (*MirPackage, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	p := &parser{sc: sc}
	return p.parsePackage()
}

type parser struct {
	sc   *bufio.Scanner
	line string
	ok   bool
}

func (p *parser) next() bool {
	for p.sc.Scan() {
		l := strings.TrimSpace(p.sc.Text())
		if l == "" {
			continue
		}
		p.line = l
		p.ok = true
		return true
	}
	p.ok = false
	return false
}

func (p *parser) parsePackage() (*MirPackage, error) {
	pkg := NewMirPackage()
	for p.next() {
		switch {
		case strings.HasPrefix(p.line, "global "):
			name, size, err := parseGlobalLine(p.line)
			if err != nil {
				return nil, err
			}
			pkg.Globals[name] = GlobalDef{Size: size}
		case strings.HasPrefix(p.line, "func "):
			fn, err := p.parseFunction()
			if err != nil {
				return nil, err
			}
			pkg.Functions[fn.Name] = fn
		default:
			return nil, fmt.Errorf("mir parse: unexpected line %q", p.line)
		}
	}
	return pkg, nil
}

func parseGlobalLine(line string) (string, int, error) {
	// global name[size]
	rest := strings.TrimPrefix(line, "global ")
	open := strings.IndexByte(rest, '[')
	close := strings.IndexByte(rest, ']')
	if open < 0 || close < open {
		return "", 0, fmt.Errorf("mir parse: bad global line %q", line)
	}
	name := rest[:open]
	size, err := strconv.Atoi(rest[open+1 : close])
	if err != nil {
		return "", 0, fmt.Errorf("mir parse: bad global size in %q: %w", line, err)
	}
	return name, size, nil
}

func (p *parser) parseFunction() (*MirFunction, error) {
	name, attrs, err := parseFuncHeader(p.line)
	if err != nil {
		return nil, err
	}
	fn := NewMirFunction(name, FuncType{
		IsExtern:   attrs["extern"] == "true",
		Variadic:   attrs["variadic"] == "true",
		ReturnType: atoiOr(attrs["ret"], 0),
	})
	fn.Entry = BlockId(atoiOr(attrs["entry"], 0))

	for p.next() {
		if p.line == "}" {
			fn.Type.ParamTypes = paramTypesOf(fn)
			return fn, nil
		}
		switch {
		case strings.HasPrefix(p.line, "params:"):
			fn.Params = parseIdList(strings.TrimPrefix(p.line, "params:"))
		case strings.HasPrefix(p.line, "var "):
			id, desc := parseVarLine(p.line)
			fn.Vars[id] = desc
		case strings.HasPrefix(p.line, "block "):
			blk, err := p.parseBlock(fn)
			if err != nil {
				return nil, err
			}
			fn.Blocks[blk.Id] = blk
		default:
			return nil, fmt.Errorf("mir parse: unexpected line %q in function %s", p.line, name)
		}
	}
	return nil, fmt.Errorf("mir parse: unterminated function %s", name)
}

func paramTypesOf(fn *MirFunction) []int {
	out := make([]int, len(fn.Params))
	for i, id := range fn.Params {
		out[i] = fn.Vars[id].Size
	}
	return out
}

// parseFuncHeader parses "func name entry=N extern=bool variadic=bool ret=N {".
func parseFuncHeader(line string) (string, map[string]string, error) {
	line = strings.TrimSuffix(strings.TrimSpace(line), "{")
	line = strings.TrimSpace(line)
	fields := strings.Fields(line)
	if len(fields) < 2 || fields[0] != "func" {
		return "", nil, fmt.Errorf("mir parse: bad function header %q", line)
	}
	name := fields[1]
	attrs := make(map[string]string)
	for _, f := range fields[2:] {
		kv := strings.SplitN(f, "=", 2)
		if len(kv) == 2 {
			attrs[kv[0]] = kv[1]
		}
	}
	return name, attrs, nil
}

func parseVarLine(line string) (VarId, VarDesc) {
	// var xN size=S [mem]
	fields := strings.Fields(line)
	id := parseVarId(fields[1])
	desc := VarDesc{}
	for _, f := range fields[2:] {
		if f == "mem" {
			desc.IsMemoryVar = true
			continue
		}
		if strings.HasPrefix(f, "size=") {
			desc.Size = atoiOr(strings.TrimPrefix(f, "size="), 4)
		}
	}
	return id, desc
}

func (p *parser) parseBlock(fn *MirFunction) (*BasicBlk, error) {
	// block N:
	fields := strings.Fields(strings.TrimSuffix(p.line, ":"))
	id := BlockId(atoiOr(fields[1], 0))
	blk := NewBasicBlk(id)

	for p.next() {
		if p.line == "}" {
			return nil, fmt.Errorf("mir parse: block %d missing terminator", id)
		}
		if isTerminatorLine(p.line) {
			term, err := parseJump(p.line)
			if err != nil {
				return nil, err
			}
			blk.Term = term
			return blk, nil
		}
		inst, err := parseInst(p.line)
		if err != nil {
			return nil, err
		}
		blk.Insts = append(blk.Insts, inst)
	}
	return nil, fmt.Errorf("mir parse: unterminated block %d", id)
}

func isTerminatorLine(line string) bool {
	for _, prefix := range []string{"br ", "brcond ", "return", "unreachable", "undefined"} {
		if line == strings.TrimSpace(prefix) || strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}

func parseVarId(tok string) VarId {
	tok = strings.TrimPrefix(tok, "x")
	n, _ := strconv.Atoi(tok)
	return VarId(n)
}

func parseIdList(s string) []VarId {
	var out []VarId
	for _, tok := range strings.Fields(s) {
		out = append(out, parseVarId(strings.TrimSuffix(tok, ",")))
	}
	return out
}

func parseValue(tok string) Value {
	tok = strings.TrimSuffix(tok, ",")
	if strings.HasPrefix(tok, "x") {
		return Var{Id: parseVarId(tok)}
	}
	n, _ := strconv.ParseInt(tok, 10, 32)
	return Imm{N: int32(n)}
}

func atoiOr(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

var binOpNames = map[string]BinOp{
	"add": Add, "sub": Sub, "mul": Mul, "div": Div, "rem": Rem,
	"and": And, "or": Or, "gt": Gt, "lt": Lt, "gte": Gte, "lte": Lte,
	"eq": Eq, "neq": Neq,
}

// parseInst parses one non-terminator instruction line, mirroring
// FormatInst's exact textual shapes.
func parseInst(line string) (Instruction, error) {
	if strings.HasPrefix(line, "store [") {
		return parseStore(line)
	}
	if strings.HasPrefix(line, "call ") {
		fnId, args := parseCallTail(strings.TrimPrefix(line, "call "))
		return Call{Void: true, FnId: fnId, Params: args}, nil
	}

	eq := strings.Index(line, " = ")
	if eq < 0 {
		return nil, fmt.Errorf("mir parse: unrecognized instruction %q", line)
	}

	dest := parseVarId(line[:eq])
	rhs := strings.TrimSpace(line[eq+3:])
	fields := strings.Fields(rhs)

	switch {
	case strings.HasPrefix(rhs, "call "):
		fnId, args := parseCallTail(strings.TrimPrefix(rhs, "call "))
		return Call{DestId: dest, FnId: fnId, Params: args}, nil
	case strings.HasPrefix(rhs, "load ["):
		src := parseVarId(strings.TrimSuffix(strings.TrimPrefix(rhs, "load ["), "]"))
		return Load{DestId: dest, Src: src}, nil
	case strings.HasPrefix(rhs, "ref @"):
		return Ref{DestId: dest, Global: strings.TrimPrefix(rhs, "ref @"), IsGlob: true}, nil
	case strings.HasPrefix(rhs, "ref "):
		return Ref{DestId: dest, Local: parseVarId(strings.TrimPrefix(rhs, "ref "))}, nil
	case strings.HasPrefix(rhs, "ptroffset "):
		args := strings.Split(strings.TrimPrefix(rhs, "ptroffset "), ", ")
		return PtrOffset{DestId: dest, Ptr: parseVarId(args[0]), Offset: parseValue(args[1])}, nil
	case strings.HasPrefix(rhs, "phi("):
		inner := strings.TrimSuffix(strings.TrimPrefix(rhs, "phi("), ")")
		var vars []VarId
		if inner != "" {
			for _, tok := range strings.Split(inner, ", ") {
				vars = append(vars, parseVarId(tok))
			}
		}
		return Phi{DestId: dest, Vars: vars}, nil
	case len(fields) == 1:
		return Assign{DestId: dest, Value: parseValue(fields[0])}, nil
	case len(fields) == 3:
		kind, ok := binOpNames[fields[0]]
		if !ok {
			return nil, fmt.Errorf("mir parse: unknown op %q", fields[0])
		}
		return Op{DestId: dest, Kind: kind, Lhs: parseValue(fields[1]), Rhs: parseValue(fields[2])}, nil
	default:
		return nil, fmt.Errorf("mir parse: unrecognized instruction %q", line)
	}
}

func parseCallTail(s string) (string, []Value) {
	open := strings.IndexByte(s, '(')
	close := strings.LastIndexByte(s, ')')
	if open < 0 || close < open {
		return strings.TrimSuffix(s, "()"), nil
	}
	fnId := s[:open]
	inner := s[open+1 : close]
	if inner == "" {
		return fnId, nil
	}
	var args []Value
	for _, tok := range strings.Split(inner, ", ") {
		args = append(args, parseValue(tok))
	}
	return fnId, args
}

func parseStore(line string) (Instruction, error) {
	// store [xN] = value
	open := strings.IndexByte(line, '[')
	close := strings.IndexByte(line, ']')
	if open < 0 || close < open {
		return nil, fmt.Errorf("mir parse: bad store %q", line)
	}
	dest := parseVarId(line[open+1 : close])
	eq := strings.Index(line, "= ")
	if eq < 0 {
		return nil, fmt.Errorf("mir parse: bad store %q", line)
	}
	return Store{DestId: dest, Val: parseValue(strings.TrimSpace(line[eq+2:]))}, nil
}

func parseJump(line string) (Jump, error) {
	switch {
	case line == "unreachable":
		return Unreachable{}, nil
	case line == "undefined":
		return Undefined{}, nil
	case line == "return":
		return Return{}, nil
	case strings.HasPrefix(line, "return "):
		return Return{HasValue: true, Value: parseValue(strings.TrimPrefix(line, "return "))}, nil
	case strings.HasPrefix(line, "br "):
		n := atoiOr(strings.TrimPrefix(line, "br "), 0)
		return Br{Target: BlockId(n)}, nil
	case strings.HasPrefix(line, "brcond "):
		fields := strings.Split(strings.TrimPrefix(line, "brcond "), ", ")
		if len(fields) != 3 {
			return nil, fmt.Errorf("mir parse: bad brcond %q", line)
		}
		return BrCond{
			Cond:        parseVarId(fields[0]),
			TrueTarget:  BlockId(atoiOr(fields[1], 0)),
			FalseTarget: BlockId(atoiOr(fields[2], 0)),
		}, nil
	default:
		return nil, fmt.Errorf("mir parse: unrecognized terminator %q", line)
	}
}
