package avm1

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/open-flash/avm1/raw"
)

func TestParseActionHeader(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected ActionHeader
		consumed int
	}{
		{name: "end", input: []byte{0x00, 0x00, 0x00, 0x00}, expected: ActionHeader{Code: 0x00}, consumed: 1},
		{name: "short code", input: []byte{0x01, 0x00, 0x00, 0x00}, expected: ActionHeader{Code: 0x01}, consumed: 1},
		{name: "short code high", input: []byte{0x10, 0x00, 0x00, 0x00}, expected: ActionHeader{Code: 0x10}, consumed: 1},
		{name: "long code zero length", input: []byte{0x80, 0x00, 0x00, 0x00}, expected: ActionHeader{Code: 0x80}, consumed: 3},
		{name: "long code length one", input: []byte{0x80, 0x01, 0x00, 0x00}, expected: ActionHeader{Code: 0x80, Length: 1}, consumed: 3},
		{name: "long code length 256", input: []byte{0x80, 0x00, 0x01, 0x00}, expected: ActionHeader{Code: 0x80, Length: 256}, consumed: 3},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			hdr, rest, err := ParseActionHeader(tc.input)
			require.NoError(t, err)
			require.Equal(t, tc.expected, hdr)
			require.Equal(t, len(tc.input)-tc.consumed, len(rest))
		})
	}

	t.Run("empty input", func(t *testing.T) {
		_, _, err := ParseActionHeader(nil)
		require.Equal(t, &IncompleteError{Needed: 1}, err)
	})
	t.Run("truncated length", func(t *testing.T) {
		_, _, err := ParseActionHeader([]byte{0x80, 0x01})
		require.Equal(t, &IncompleteError{Needed: 3}, err)
	})
}

func TestParseAction(t *testing.T) {
	tests := []struct {
		name      string
		input     []byte
		expected  raw.Action
		remaining int
	}{
		{
			name:      "unknown short opcode",
			input:     []byte{0x01, 0x00, 0x00, 0x00},
			expected:  raw.Raw{Code: 0x01},
			remaining: 3,
		},
		{
			name:     "unknown long opcode preserves body",
			input:    []byte{0x80, 0x01, 0x00, 0x03},
			expected: raw.Raw{Code: 0x80, Data: []byte{0x03}},
		},
		{
			name:     "end",
			input:    []byte{0x00},
			expected: raw.End{},
		},
		{
			name:     "nullary with extended header",
			input:    []byte{0x9e, 0x00, 0x00},
			expected: raw.Call{},
		},
		{
			name:     "goto frame",
			input:    []byte{0x81, 0x02, 0x00, 0x34, 0x12},
			expected: raw.GotoFrame{Frame: 0x1234},
		},
		{
			name:     "goto frame discards trailing bytes",
			input:    []byte{0x81, 0x03, 0x00, 0x34, 0x12, 0xff},
			expected: raw.GotoFrame{Frame: 0x1234},
		},
		{
			name:     "goto frame body too short",
			input:    []byte{0x81, 0x01, 0x00, 0x34},
			expected: raw.Error{},
		},
		{
			name:     "get url",
			input:    append([]byte{0x83, 0x08, 0x00}, "http\x00_b\x00"...),
			expected: raw.GetUrl{Url: "http", Target: "_b"},
		},
		{
			name:     "get url invalid utf-8",
			input:    []byte{0x83, 0x04, 0x00, 0xff, 0x00, 0x62, 0x00},
			expected: raw.Error{},
		},
		{
			name:     "store register",
			input:    []byte{0x87, 0x01, 0x00, 0x07},
			expected: raw.StoreRegister{Register: 7},
		},
		{
			name:     "constant pool",
			input:    append([]byte{0x88, 0x06, 0x00, 0x02, 0x00}, "a\x00b\x00"...),
			expected: raw.ConstantPool{Pool: []string{"a", "b"}},
		},
		{
			name:     "strict mode on",
			input:    []byte{0x89, 0x01, 0x00, 0x01},
			expected: raw.StrictMode{IsStrict: true},
		},
		{
			name:     "wait for frame",
			input:    []byte{0x8a, 0x03, 0x00, 0x10, 0x00, 0x05},
			expected: raw.WaitForFrame{Frame: 16, Skip: 5},
		},
		{
			name:     "set target",
			input:    append([]byte{0x8b, 0x05, 0x00}, "clip\x00"...),
			expected: raw.SetTarget{TargetName: "clip"},
		},
		{
			name:     "goto label",
			input:    append([]byte{0x8c, 0x06, 0x00}, "intro\x00"...),
			expected: raw.GotoLabel{Label: "intro"},
		},
		{
			name:     "wait for frame 2",
			input:    []byte{0x8d, 0x01, 0x00, 0x02},
			expected: raw.WaitForFrame2{Skip: 2},
		},
		{
			name: "define function",
			input: append(append([]byte{0x9b, 0x08, 0x00}, "f\x00"...),
				0x01, 0x00, 'x', 0x00, 0x02, 0x00),
			expected: raw.DefineFunction{Name: "f", Parameters: []string{"x"}, BodySize: 2},
		},
		{
			name: "define function 2",
			input: append(append([]byte{0x8e, 0x0c, 0x00}, "g\x00"...),
				0x01, 0x00, // one parameter
				0x04,       // four registers
				0x05, 0x01, // preload this, preload arguments, preload global
				0x01, 'x', 0x00,
				0x03, 0x00),
			expected: raw.DefineFunction2{
				Name:             "g",
				RegisterCount:    4,
				PreloadThis:      true,
				PreloadArguments: true,
				PreloadGlobal:    true,
				Parameters:       []raw.RegisterParam{{Register: 1, Name: "x"}},
				BodySize:         3,
			},
		},
		{
			name: "try with catch in register and finally",
			input: []byte{0x8f, 0x08, 0x00,
				0x07,       // has catch, has finally, catch in register
				0x04, 0x00, // try size
				0x02, 0x00, // catch size
				0x03, 0x00, // finally size
				0x02, // catch register
			},
			expected: raw.Try{
				TrySize: 4,
				Catch:   &raw.CatchBlock{Target: raw.CatchTarget{InRegister: true, Register: 2}, Size: 2},
				Finally: uint16Ptr(3),
			},
		},
		{
			name: "try without catch still consumes target",
			input: append([]byte{0x8f, 0x09, 0x00,
				0x00,       // no catch, no finally
				0x04, 0x00, // try size
				0x02, 0x00, // catch size, discarded
				0x03, 0x00, // finally size, discarded
			}, "e\x00"...),
			expected: raw.Try{TrySize: 4},
		},
		{
			name: "try with variable catch target",
			input: append([]byte{0x8f, 0x0b, 0x00,
				0x01,
				0x01, 0x00,
				0x02, 0x00,
				0x00, 0x00,
			}, "err\x00"...),
			expected: raw.Try{
				TrySize: 1,
				Catch:   &raw.CatchBlock{Target: raw.CatchTarget{Variable: "err"}, Size: 2},
			},
		},
		{
			name:     "with",
			input:    []byte{0x94, 0x02, 0x00, 0x10, 0x00},
			expected: raw.With{Size: 16},
		},
		{
			name:     "jump",
			input:    []byte{0x99, 0x02, 0x00, 0xfd, 0xff},
			expected: raw.Jump{Offset: -3},
		},
		{
			name:     "if",
			input:    []byte{0x9d, 0x02, 0x00, 0x05, 0x00},
			expected: raw.If{Offset: 5},
		},
		{
			name:     "get url 2 get method",
			input:    []byte{0x9a, 0x01, 0x00, 0x43},
			expected: raw.GetUrl2{Method: raw.GetUrl2MethodGet, LoadTarget: true, LoadVariables: true},
		},
		{
			name:     "get url 2 invalid method",
			input:    []byte{0x9a, 0x01, 0x00, 0xc0},
			expected: raw.Error{},
		},
		{
			name:     "goto frame 2 with scene bias",
			input:    []byte{0x9f, 0x03, 0x00, 0x03, 0x20, 0x00},
			expected: raw.GotoFrame2{Play: true, SceneBias: 32},
		},
		{
			name:     "goto frame 2 without scene bias",
			input:    []byte{0x9f, 0x01, 0x00, 0x01},
			expected: raw.GotoFrame2{Play: true},
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			act, rest, err := ParseAction(tc.input)
			require.NoError(t, err)
			require.Equal(t, tc.expected, act)
			require.Equal(t, tc.remaining, len(rest))
		})
	}
}

func TestParseAction_Incomplete(t *testing.T) {
	tests := []struct {
		name   string
		input  []byte
		needed int
	}{
		{name: "empty", input: nil, needed: 1},
		{name: "length cut short", input: []byte{0x80, 0x02}, needed: 3},
		{name: "body cut short", input: []byte{0x80, 0x02, 0x00, 0x03}, needed: 5},
	}
	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			_, rest, err := ParseAction(tc.input)
			require.Equal(t, &IncompleteError{Needed: tc.needed}, err)
			require.Equal(t, len(tc.input), len(rest))
		})
	}
}

func TestParsePush(t *testing.T) {
	tests := []struct {
		name     string
		body     []byte
		expected raw.Action
	}{
		{
			name:     "register sint32 constant",
			body:     []byte{0x04, 0x00, 0x07, 0x01, 0x00, 0x00, 0x00, 0x08, 0x02},
			expected: raw.Push{Values: []raw.PushValue{raw.PushRegister(0), raw.PushSint32(1), raw.PushConstant(2)}},
		},
		{
			name:     "empty string",
			body:     []byte{0x00, 0x00},
			expected: raw.Push{Values: []raw.PushValue{raw.PushString("")}},
		},
		{
			name:     "one byte string",
			body:     []byte{0x00, 0x01, 0x00},
			expected: raw.Push{Values: []raw.PushValue{raw.PushString("\x01")}},
		},
		{
			name:     "null undefined boolean",
			body:     []byte{0x02, 0x03, 0x05, 0x01},
			expected: raw.Push{Values: []raw.PushValue{raw.PushNull{}, raw.PushUndefined{}, raw.PushBoolean(true)}},
		},
		{
			name:     "float32",
			body:     []byte{0x01, 0x00, 0x00, 0x80, 0x3f},
			expected: raw.Push{Values: []raw.PushValue{raw.PushFloat32(1)}},
		},
		{
			name:     "swapped float64",
			body:     []byte{0x06, 0x00, 0x00, 0xf0, 0x3f, 0x00, 0x00, 0x00, 0x00},
			expected: raw.Push{Values: []raw.PushValue{raw.PushFloat64(1)}},
		},
		{
			name:     "wide constant",
			body:     []byte{0x09, 0x34, 0x12},
			expected: raw.Push{Values: []raw.PushValue{raw.PushConstant(0x1234)}},
		},
		{
			name:     "unknown tag",
			body:     []byte{0x0a},
			expected: raw.Error{},
		},
		{
			name:     "truncated value",
			body:     []byte{0x07, 0x01, 0x00},
			expected: raw.Error{},
		},
		{
			name:     "empty body",
			body:     nil,
			expected: raw.Error{},
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			input := append([]byte{0x96, byte(len(tc.body)), byte(len(tc.body) >> 8)}, tc.body...)
			act, rest, err := ParseAction(input)
			require.NoError(t, err)
			require.Equal(t, tc.expected, act)
			require.Empty(t, rest)
			if push, ok := act.(raw.Push); ok {
				require.NotEmpty(t, push.Values)
			}
		})
	}
}

// TestParseAction_ConsumedLength checks the round-trip-via-length property:
// one action consumes exactly its header plus the advertised body.
func TestParseAction_ConsumedLength(t *testing.T) {
	inputs := [][]byte{
		{0x07},
		{0x07, 0xff, 0xff},
		{0x81, 0x02, 0x00, 0x01, 0x00},
		{0x96, 0x02, 0x00, 0x00, 0x00, 0xaa, 0xbb},
		{0x80, 0x03, 0x00, 0x01, 0x02, 0x03, 0x04},
		{0x9a, 0x01, 0x00, 0xc0, 0x55}, // body decode fails, stream still advances
	}
	for _, input := range inputs {
		hdr, _, err := ParseActionHeader(input)
		require.NoError(t, err)
		headerLen := 1
		if hdr.Code >= 0x80 {
			headerLen = 3
		}
		_, rest, err := ParseAction(input)
		require.NoError(t, err)
		require.Equal(t, headerLen+hdr.Length, len(input)-len(rest))
	}
}

// TestParseAction_OpcodeClosure checks that every code outside the dispatch
// table decodes to raw.Raw carrying the body verbatim.
func TestParseAction_OpcodeClosure(t *testing.T) {
	known := map[raw.Code]bool{}
	for _, c := range []raw.Code{
		raw.CodeEnd, raw.CodeNextFrame, raw.CodePrevFrame, raw.CodePlay, raw.CodeStop,
		raw.CodeToggleQuality, raw.CodeStopSounds, raw.CodeAdd, raw.CodeSubtract,
		raw.CodeMultiply, raw.CodeDivide, raw.CodeEquals, raw.CodeLess, raw.CodeAnd,
		raw.CodeOr, raw.CodeNot, raw.CodeStringEquals, raw.CodeStringLength,
		raw.CodeStringExtract, raw.CodePop, raw.CodeToInteger, raw.CodeGetVariable,
		raw.CodeSetVariable, raw.CodeSetTarget2, raw.CodeStringAdd, raw.CodeGetProperty,
		raw.CodeSetProperty, raw.CodeCloneSprite, raw.CodeRemoveSprite, raw.CodeTrace,
		raw.CodeStartDrag, raw.CodeEndDrag, raw.CodeStringLess, raw.CodeThrow,
		raw.CodeCastOp, raw.CodeImplementsOp, raw.CodeFsCommand2, raw.CodeRandomNumber,
		raw.CodeMbStringLength, raw.CodeCharToAscii, raw.CodeAsciiToChar, raw.CodeGetTime,
		raw.CodeMbStringExtract, raw.CodeMbCharToAscii, raw.CodeMbAsciiToChar,
		raw.CodeDelete, raw.CodeDelete2, raw.CodeDefineLocal, raw.CodeCallFunction,
		raw.CodeReturn, raw.CodeModulo, raw.CodeNewObject, raw.CodeDefineLocal2,
		raw.CodeInitArray, raw.CodeInitObject, raw.CodeTypeOf, raw.CodeTargetPath,
		raw.CodeEnumerate, raw.CodeAdd2, raw.CodeLess2, raw.CodeEquals2, raw.CodeToNumber,
		raw.CodeToString, raw.CodePushDuplicate, raw.CodeStackSwap, raw.CodeGetMember,
		raw.CodeSetMember, raw.CodeIncrement, raw.CodeDecrement, raw.CodeCallMethod,
		raw.CodeNewMethod, raw.CodeInstanceOf, raw.CodeEnumerate2, raw.CodeBitAnd,
		raw.CodeBitOr, raw.CodeBitXor, raw.CodeBitLShift, raw.CodeBitRShift,
		raw.CodeBitURShift, raw.CodeStrictEquals, raw.CodeGreater, raw.CodeStringGreater,
		raw.CodeExtends, raw.CodeGotoFrame, raw.CodeGetUrl, raw.CodeStoreRegister,
		raw.CodeConstantPool, raw.CodeStrictMode, raw.CodeWaitForFrame, raw.CodeSetTarget,
		raw.CodeGotoLabel, raw.CodeWaitForFrame2, raw.CodeDefineFunction2, raw.CodeTry,
		raw.CodeWith, raw.CodePush, raw.CodeJump, raw.CodeGetUrl2, raw.CodeDefineFunction,
		raw.CodeIf, raw.CodeCall, raw.CodeGotoFrame2,
	} {
		known[c] = true
	}

	for code := 0; code < 256; code++ {
		if known[raw.Code(code)] {
			continue
		}
		var input []byte
		var expected raw.Raw
		if code < 0x80 {
			input = []byte{byte(code)}
			expected = raw.Raw{Code: uint8(code)}
		} else {
			input = []byte{byte(code), 0x02, 0x00, 0xaa, 0xbb}
			expected = raw.Raw{Code: uint8(code), Data: []byte{0xaa, 0xbb}}
		}
		act, rest, err := ParseAction(input)
		require.NoError(t, err, code)
		require.Equal(t, expected, act, code)
		require.Empty(t, rest, code)
	}
}

func TestParseAllActions(t *testing.T) {
	t.Run("stream", func(t *testing.T) {
		input := []byte{0x07, 0x81, 0x02, 0x00, 0x01, 0x00, 0x00}
		actions, err := ParseAllActions(input)
		require.NoError(t, err)
		require.Equal(t, []raw.Action{raw.Stop{}, raw.GotoFrame{Frame: 1}, raw.End{}}, actions)
	})
	t.Run("truncated tail", func(t *testing.T) {
		input := []byte{0x07, 0x81, 0x02, 0x00}
		actions, err := ParseAllActions(input)
		require.Equal(t, &IncompleteError{Needed: 5}, err)
		require.Equal(t, []raw.Action{raw.Stop{}}, actions)
	})
}

func uint16Ptr(v uint16) *uint16 {
	return &v
}
