// Package cfg defines the control-flow graph produced from a byte slice: a
// tree of labeled basic blocks. The graph may contain cycles, but they are
// expressed through labels resolved by identifier, never through pointers,
// so ownership stays strictly tree-shaped.
package cfg

import "github.com/open-flash/avm1/raw"

// Label identifies a block within a lexical nest of CFGs. It has the shape
// "l{layer}_{offset}" where layer is unique across one whole parse and
// offset is the byte offset of the block's first action. The empty label
// means "no target": control exits the CFG.
type Label string

// Action is an element of a block's linear prefix: any raw action that does
// not alter control flow, or one of this package's function-definition
// variants whose body has been resolved to a nested Cfg. The builder never
// places raw.If, raw.Jump, raw.Return, raw.Throw, raw.With, raw.Try,
// raw.WaitForFrame, raw.WaitForFrame2, raw.End or raw.Error in a block;
// those become the block's Flow.
type Action = raw.Action

// Cfg is the control-flow graph of one lexical scope. Blocks is never empty
// and its first element is the entry block.
type Cfg struct {
	Blocks []Block `json:"blocks"`
}

// Block is a basic block: a linear prefix of actions and a terminating flow.
type Block struct {
	Label   Label
	Actions []Action
	Flow    Flow
}

// Flow terminates a block.
type Flow interface {
	// FlowName returns the variant name, e.g. "Simple" or "Try". It is the
	// JSON discriminator.
	FlowName() string
}

// Simple continues unconditionally. An empty Next falls out of the CFG.
type Simple struct {
	Next Label `json:"next"`
}

// If branches to TrueTarget when the popped value is truthy, to FalseTarget
// otherwise.
type If struct {
	TrueTarget  Label `json:"trueTarget"`
	FalseTarget Label `json:"falseTarget"`
}

// Return returns from the enclosing function.
type Return struct{}

// Throw raises the value on top of the stack.
type Throw struct{}

// Error marks a block whose terminating action failed to decode.
type Error struct {
	Message *string `json:"error"`
}

// With runs a nested scope; falling off the body's end resumes at the offset
// right after the body in the enclosing scope.
type With struct {
	Body Cfg `json:"body"`
}

// Catch is the catch clause of a Try flow.
type Catch struct {
	Target raw.CatchTarget `json:"target"`
	Body   Cfg             `json:"body"`
}

// Try runs the try body with the optional catch and finally scopes attached.
type Try struct {
	Try     Cfg    `json:"try"`
	Catch   *Catch `json:"catch"`
	Finally *Cfg   `json:"finally"`
}

// WaitForFrame branches to LoadingTarget while Frame is not yet loaded and
// to ReadyTarget once it is.
type WaitForFrame struct {
	Frame         uint16 `json:"frame"`
	LoadingTarget Label  `json:"loadingTarget"`
	ReadyTarget   Label  `json:"readyTarget"`
}

// WaitForFrame2 is WaitForFrame with the frame taken from the stack.
type WaitForFrame2 struct {
	LoadingTarget Label `json:"loadingTarget"`
	ReadyTarget   Label `json:"readyTarget"`
}

func (Simple) FlowName() string        { return "Simple" }
func (If) FlowName() string            { return "If" }
func (Return) FlowName() string        { return "Return" }
func (Throw) FlowName() string         { return "Throw" }
func (Error) FlowName() string         { return "Error" }
func (With) FlowName() string          { return "With" }
func (Try) FlowName() string           { return "Try" }
func (WaitForFrame) FlowName() string  { return "WaitForFrame" }
func (WaitForFrame2) FlowName() string { return "WaitForFrame2" }

// DefineFunction is the resolved form of raw.DefineFunction: the body size
// has been replaced by the body's own control-flow graph.
type DefineFunction struct {
	Name       string   `json:"name"`
	Parameters []string `json:"parameters"`
	Body       Cfg      `json:"body"`
}

// ActionName implements raw.Action.
func (DefineFunction) ActionName() string { return "DefineFunction" }

// DefineFunction2 is the resolved form of raw.DefineFunction2.
type DefineFunction2 struct {
	Name              string              `json:"name"`
	RegisterCount     uint8               `json:"registerCount"`
	PreloadThis       bool                `json:"preloadThis"`
	SuppressThis      bool                `json:"suppressThis"`
	PreloadArguments  bool                `json:"preloadArguments"`
	SuppressArguments bool                `json:"suppressArguments"`
	PreloadSuper      bool                `json:"preloadSuper"`
	SuppressSuper     bool                `json:"suppressSuper"`
	PreloadRoot       bool                `json:"preloadRoot"`
	PreloadParent     bool                `json:"preloadParent"`
	PreloadGlobal     bool                `json:"preloadGlobal"`
	Parameters        []raw.RegisterParam `json:"parameters"`
	Body              Cfg                 `json:"body"`
}

// ActionName implements raw.Action.
func (DefineFunction2) ActionName() string { return "DefineFunction2" }
