package compiler

// bytecode assembles for targets 3.3 through 3.5: one opcode byte,
// followed by two little-endian argument bytes when the opcode takes
// an argument. Jumps are patched with the resolved label offsets.
type bytecode struct{}

func (bytecode) keepsNegativeLineDeltas() bool { return false }

func (bytecode) assemble(cs *CodeSpace) ([]byte, []lineEntry, error) {
	type cell struct {
		op     Opcode
		lo, hi int
		hasArg bool
	}
	type jumpRef struct {
		index int
		label string
		at    int
	}

	var coll []cell
	var jabs, jrel []jumpRef
	var lnt []lineEntry

	offset := 0
	labels := map[string]int{}

	sink := genSink{
		emit: func(op Opcode, arg int, label string) {
			switch {
			case label != "" && op.hasJabs():
				jabs = append(jabs, jumpRef{index: len(coll), label: label})
				coll = append(coll, cell{op: op, hasArg: true})
				offset += 3

			case label != "" && op.hasJrel():
				jrel = append(jrel, jumpRef{index: len(coll), label: label, at: offset})
				coll = append(coll, cell{op: op, hasArg: true})
				offset += 3

			case op.hasArg():
				coll = append(coll, cell{op: op, lo: arg & 0xff, hi: (arg >> 8) & 0xff, hasArg: true})
				offset += 3

			default:
				coll = append(coll, cell{op: op})
				offset++
			}
		},
		declareLabel: func(name string) {
			labels[name] = offset
		},
		declarePos: func(line, col int) {
			lnt = append(lnt, lineEntry{offset: offset, line: line, col: col})
		},
	}

	if err := generate(cs, false, sink); err != nil {
		return nil, nil, err
	}

	for _, ref := range jabs {
		target, ok := labels[ref.label]
		if !ok {
			return nil, nil, syntaxErrorf("undefined label %q", ref.label)
		}
		coll[ref.index].lo = target & 0xff
		coll[ref.index].hi = (target >> 8) & 0xff
	}

	for _, ref := range jrel {
		target, ok := labels[ref.label]
		if !ok {
			return nil, nil, syntaxErrorf("undefined label %q", ref.label)
		}
		target -= ref.at + 3
		coll[ref.index].lo = target & 0xff
		coll[ref.index].hi = (target >> 8) & 0xff
	}

	var code []byte
	for _, c := range coll {
		code = append(code, byte(c.op))
		if c.hasArg {
			code = append(code, byte(c.lo), byte(c.hi))
		}
	}
	return code, lnt, nil
}
