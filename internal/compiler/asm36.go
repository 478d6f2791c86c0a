package compiler

// wordcode assembles for targets 3.6 and later: fixed two-byte
// instructions. Every jump is pre-padded with an EXTENDED_ARG
// placeholder whose argument takes the high 8 bits of the target once
// labels are resolved.
type wordcode struct{}

func (wordcode) keepsNegativeLineDeltas() bool { return true }

func (wordcode) assemble(cs *CodeSpace) ([]byte, []lineEntry, error) {
	type cell struct {
		op  Opcode
		arg int
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
				coll = append(coll, cell{OP_EXTENDED_ARG, 0}, cell{op, 0})
				offset += 4

			case label != "" && op.hasJrel():
				jrel = append(jrel, jumpRef{index: len(coll), label: label, at: offset})
				coll = append(coll, cell{OP_EXTENDED_ARG, 0}, cell{op, 0})
				offset += 4

			default:
				coll = append(coll, cell{op, arg})
				offset += 2
			}
		},
		declareLabel: func(name string) {
			labels[name] = offset
		},
		declarePos: func(line, col int) {
			lnt = append(lnt, lineEntry{offset: offset, line: line, col: col})
		},
	}

	if err := generate(cs, true, sink); err != nil {
		return nil, nil, err
	}

	for _, ref := range jabs {
		target, ok := labels[ref.label]
		if !ok {
			return nil, nil, syntaxErrorf("undefined label %q", ref.label)
		}
		coll[ref.index].arg = (target >> 8) & 0xff
		coll[ref.index+1].arg = target & 0xff
	}

	for _, ref := range jrel {
		target, ok := labels[ref.label]
		if !ok {
			return nil, nil, syntaxErrorf("undefined label %q", ref.label)
		}
		target -= ref.at + 4
		coll[ref.index].arg = (target >> 8) & 0xff
		coll[ref.index+1].arg = target & 0xff
	}

	code := make([]byte, 0, len(coll)*2)
	for _, c := range coll {
		code = append(code, byte(c.op), byte(c.arg))
	}
	return code, lnt, nil
}
