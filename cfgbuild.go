package avm1

import (
	"fmt"
	"sort"

	"github.com/open-flash/avm1/cfg"
	"github.com/open-flash/avm1/raw"
)

// ParseCfg walks input as a program and reconstructs its control-flow graph.
// It never fails: decode errors become cfg.Error terminators and branch
// targets that resolve nowhere become the empty label.
func ParseCfg(input []byte) cfg.Cfg {
	idg := &idGen{}
	p := &program{bytes: input}
	cx := newParseContext(idg, 0, len(input))
	return parseIntoCfg(p, cx)
}

// idGen hands out layer ids. One generator spans a whole ParseCfg call,
// including function bodies parsed in fresh contexts, so labels are globally
// distinguishable.
type idGen struct {
	next uint64
}

func (g *idGen) id() uint64 {
	v := g.next
	g.next++
	return v
}

// reachability records how an offset was first reached. Any later arrival,
// linear or not, promotes it to reachJump: the offset is then a join point
// and must start its own block.
type reachability uint8

const (
	// reachLinear marks an offset reached only by falling through from the
	// action immediately before it.
	reachLinear reachability = iota
	// reachJump marks a block entry: the layer's entry offset, a branch
	// target, or an offset with two or more incoming edges.
	reachJump
)

// layer is one lexical scope during CFG construction: the top-level program,
// a function body, or a with/try/catch/finally body. It owns the labels of
// the offsets inside its byte range.
type layer struct {
	id         uint64
	start, end int
	actions    map[int]reachability
	worklist   []int
}

func (l *layer) contains(i int) bool {
	return l.start <= i && i < l.end
}

func (l *layer) label(i int) cfg.Label {
	return cfg.Label(fmt.Sprintf("l%d_%d", l.id, i))
}

// mark records an arrival at i. A first arrival takes reachability r and
// queues i for discovery; any repeat arrival promotes i to reachJump.
func (l *layer) mark(i int, r reachability) {
	if _, ok := l.actions[i]; ok {
		l.actions[i] = reachJump
		return
	}
	l.actions[i] = r
	l.worklist = append(l.worklist, i)
}

// jumpOffsets returns the block entry offsets of this layer in ascending
// order.
func (l *layer) jumpOffsets() []int {
	offsets := make([]int, 0, len(l.actions))
	for i, r := range l.actions {
		if r == reachJump {
			offsets = append(offsets, i)
		}
	}
	sort.Ints(offsets)
	return offsets
}

// parseContext is the layer stack of one CFG parse. Function bodies get a
// fresh context sharing only the id generator.
type parseContext struct {
	idg    *idGen
	layers []*layer
}

func newParseContext(idg *idGen, start, end int) *parseContext {
	cx := &parseContext{idg: idg}
	cx.pushLayer(start, end)
	return cx
}

func (cx *parseContext) pushLayer(start, end int) {
	l := &layer{id: cx.idg.id(), start: start, end: end, actions: map[int]reachability{}}
	l.mark(start, reachJump)
	cx.layers = append(cx.layers, l)
}

func (cx *parseContext) popLayer() {
	cx.layers = cx.layers[:len(cx.layers)-1]
}

func (cx *parseContext) top() *layer {
	return cx.layers[len(cx.layers)-1]
}

// linear records a fall-through arrival at i in the current layer.
func (cx *parseContext) linear(i int) {
	cx.top().mark(i, reachLinear)
}

// jump records a branch arrival at i and returns the label of the layer that
// claims it: the innermost layer whose range contains i, or any non-topmost
// layer whose range starts exactly at i. The second clause lets a branch out
// of a try body land on the enclosing scope's offset right after the try
// rather than fabricating a label inside it. Claiming also queues i for
// discovery in that layer. The empty label means i exits the CFG.
func (cx *parseContext) jump(i int) cfg.Label {
	for n := len(cx.layers) - 1; n >= 0; n-- {
		l := cx.layers[n]
		topmost := n == len(cx.layers)-1
		if l.contains(i) || (!topmost && i == l.start) {
			l.mark(i, reachJump)
			return l.label(i)
		}
	}
	return ""
}

// popOffset takes the next undecoded offset from the current layer.
func (cx *parseContext) popOffset() (int, bool) {
	l := cx.top()
	n := len(l.worklist)
	if n == 0 {
		return 0, false
	}
	i := l.worklist[n-1]
	l.worklist = l.worklist[:n-1]
	return i, true
}

// targetLabel resolves a block-assembly continuation: the innermost layer
// whose range contains i, without queueing anything.
func (cx *parseContext) targetLabel(i int) cfg.Label {
	for n := len(cx.layers) - 1; n >= 0; n-- {
		if cx.layers[n].contains(i) {
			return cx.layers[n].label(i)
		}
	}
	return ""
}

// program wraps the input bytes with the two reads the builder performs.
type program struct {
	bytes []byte
}

// at decodes one action at offset and returns the offset just past it.
// Offsets at or beyond the end of input read as End; failed decodes read as
// Error without advancing.
func (p *program) at(offset int) (int, raw.Action) {
	if offset >= len(p.bytes) {
		return offset, raw.End{}
	}
	input := p.bytes[offset:]
	act, rest, err := ParseAction(input)
	if err != nil {
		return offset, raw.Error{}
	}
	return offset + len(input) - len(rest), act
}

// skipActions advances from offset across count whole actions by reading
// headers only. If the stream ends mid-skip the walk stops at the end of the
// input.
func (p *program) skipActions(offset, count int) int {
	rest := p.bytes[offset:]
	for n := 0; n < count; n++ {
		hdr, afterHeader, err := ParseActionHeader(rest)
		if err != nil || len(afterHeader) < hdr.Length {
			return len(p.bytes)
		}
		rest = afterHeader[hdr.Length:]
	}
	return len(p.bytes) - len(rest)
}

// addOffset applies a signed branch offset to base. ok is false when the
// result escapes the address space (the branch then resolves to no target).
func addOffset(base int, offset int16) (int, bool) {
	t := base + int(offset)
	if t < 0 {
		return 0, false
	}
	return t, true
}

// parsedEntry is the discovery result for one offset: either a block action
// with its fall-through successor, or a block-terminating flow.
type parsedEntry struct {
	action cfg.Action
	next   int
	flow   cfg.Flow
}

// parseIntoCfg runs discovery and block assembly for the current top layer
// and returns its CFG. Nested scopes recurse with their own layer pushed;
// function bodies recurse with a fresh context.
func parseIntoCfg(p *program, cx *parseContext) cfg.Cfg {
	parsed := map[int]parsedEntry{}

	for {
		cur, ok := cx.popOffset()
		if !ok {
			break
		}
		if !cx.top().contains(cur) {
			// Control left this layer: emit the continuation into whichever
			// enclosing layer claims the offset.
			parsed[cur] = parsedEntry{flow: cfg.Simple{Next: cx.jump(cur)}}
			continue
		}

		end, act := p.at(cur)

		var entry parsedEntry
		switch a := act.(type) {
		case raw.End:
			entry = parsedEntry{flow: cfg.Simple{}}
		case raw.Error:
			entry = parsedEntry{flow: cfg.Error{Message: a.Message}}
		case raw.Return:
			entry = parsedEntry{flow: cfg.Return{}}
		case raw.Throw:
			entry = parsedEntry{flow: cfg.Throw{}}
		case raw.Jump:
			var next cfg.Label
			if target, ok := addOffset(end, a.Offset); ok {
				next = cx.jump(target)
			}
			entry = parsedEntry{flow: cfg.Simple{Next: next}}
		case raw.If:
			var trueTarget cfg.Label
			if target, ok := addOffset(end, a.Offset); ok {
				trueTarget = cx.jump(target)
			}
			falseTarget := cx.jump(end)
			entry = parsedEntry{flow: cfg.If{TrueTarget: trueTarget, FalseTarget: falseTarget}}
		case raw.With:
			bodyEnd := end + int(a.Size)
			cx.pushLayer(end, bodyEnd)
			body := parseIntoCfg(p, cx)
			cx.popLayer()
			cx.linear(bodyEnd)
			entry = parsedEntry{flow: cfg.With{Body: body}}
		case raw.Try:
			entry = parsedEntry{flow: parseTryFlow(p, cx, end, a)}
		case raw.DefineFunction:
			bodyEnd := end + int(a.BodySize)
			body := parseIntoCfg(p, newParseContext(cx.idg, end, bodyEnd))
			cx.linear(bodyEnd)
			entry = parsedEntry{
				action: cfg.DefineFunction{Name: a.Name, Parameters: a.Parameters, Body: body},
				next:   bodyEnd,
			}
		case raw.DefineFunction2:
			bodyEnd := end + int(a.BodySize)
			body := parseIntoCfg(p, newParseContext(cx.idg, end, bodyEnd))
			cx.linear(bodyEnd)
			entry = parsedEntry{
				action: cfg.DefineFunction2{
					Name:              a.Name,
					RegisterCount:     a.RegisterCount,
					PreloadThis:       a.PreloadThis,
					SuppressThis:      a.SuppressThis,
					PreloadArguments:  a.PreloadArguments,
					SuppressArguments: a.SuppressArguments,
					PreloadSuper:      a.PreloadSuper,
					SuppressSuper:     a.SuppressSuper,
					PreloadRoot:       a.PreloadRoot,
					PreloadParent:     a.PreloadParent,
					PreloadGlobal:     a.PreloadGlobal,
					Parameters:        a.Parameters,
					Body:              body,
				},
				next: bodyEnd,
			}
		case raw.WaitForFrame:
			loading := p.skipActions(end, int(a.Skip))
			entry = parsedEntry{flow: cfg.WaitForFrame{
				Frame:         a.Frame,
				LoadingTarget: cx.jump(loading),
				ReadyTarget:   cx.jump(end),
			}}
		case raw.WaitForFrame2:
			loading := p.skipActions(end, int(a.Skip))
			entry = parsedEntry{flow: cfg.WaitForFrame2{
				LoadingTarget: cx.jump(loading),
				ReadyTarget:   cx.jump(end),
			}}
		default:
			cx.linear(end)
			entry = parsedEntry{action: act, next: end}
		}
		parsed[cur] = entry
	}

	top := cx.top()
	var blocks []cfg.Block
	for _, start := range top.jumpOffsets() {
		block := cfg.Block{Label: top.label(start)}
		cur := start
		for {
			entry, ok := parsed[cur]
			if !ok {
				panic(fmt.Sprintf("BUG: offset %d reachable but never parsed", cur))
			}
			delete(parsed, cur)
			if entry.flow != nil {
				block.Flow = entry.flow
				break
			}
			block.Actions = append(block.Actions, entry.action)
			cur = entry.next
			if top.actions[cur] == reachJump {
				// A join point starts its own block; leave it for the outer
				// loop and terminate this one with a continuation.
				block.Flow = cfg.Simple{Next: cx.targetLabel(cur)}
				break
			}
		}
		blocks = append(blocks, block)
	}
	return cfg.Cfg{Blocks: blocks}
}

// parseTryFlow resolves the three bodies of a Try. The finally layer, when
// present, is pushed first and stays on the stack while the try and catch
// bodies parse, so branches from inside them onto the finally offset resolve
// to the finally layer's label.
func parseTryFlow(p *program, cx *parseContext, end int, a raw.Try) cfg.Flow {
	tryStart := end
	catchStart := tryStart + int(a.TrySize)
	finallyStart := catchStart
	if a.Catch != nil {
		finallyStart += int(a.Catch.Size)
	}

	var finally *cfg.Cfg
	if a.Finally != nil {
		cx.pushLayer(finallyStart, finallyStart+int(*a.Finally))
		body := parseIntoCfg(p, cx)
		finally = &body
	}

	cx.pushLayer(tryStart, catchStart)
	tryCfg := parseIntoCfg(p, cx)
	cx.popLayer()

	var catch *cfg.Catch
	if a.Catch != nil {
		cx.pushLayer(catchStart, catchStart+int(a.Catch.Size))
		body := parseIntoCfg(p, cx)
		cx.popLayer()
		catch = &cfg.Catch{Target: a.Catch.Target, Body: body}
	}

	if a.Finally != nil {
		cx.popLayer()
	}

	return cfg.Try{Try: tryCfg, Catch: catch, Finally: finally}
}
