// Package avm1 decodes the bytecode of the AVM1 stack machine. ParseAction
// yields the raw, one-to-one decoded form of a single instruction; ParseCfg
// walks a whole byte slice as a program and reconstructs its control-flow
// graph.
package avm1

import (
	"encoding/binary"
	"fmt"

	"github.com/open-flash/avm1/internal/bin"
	"github.com/open-flash/avm1/raw"
)

// ActionHeader is the decoded header of one action: the opcode byte and the
// size in bytes of the body that follows it. Codes below 0x80 carry no body.
type ActionHeader struct {
	Code   raw.Code
	Length int
}

// IncompleteError reports input truncated mid-action. Needed is the total
// byte count the action requires (header plus advertised body); callers may
// retry once at least that much input is available.
type IncompleteError struct {
	Needed int
}

// Error implements error.
func (e *IncompleteError) Error() string {
	return fmt.Sprintf("incomplete action: need %d bytes", e.Needed)
}

// ParseActionHeader decodes one action header: the opcode byte and, for
// codes at or above 0x80, a 16-bit little-endian body length. It returns the
// input after the header.
func ParseActionHeader(input []byte) (ActionHeader, []byte, error) {
	if len(input) < 1 {
		return ActionHeader{}, input, &IncompleteError{Needed: 1}
	}
	code := input[0]
	if code < 0x80 {
		return ActionHeader{Code: code}, input[1:], nil
	}
	if len(input) < 3 {
		return ActionHeader{}, input, &IncompleteError{Needed: 3}
	}
	length := int(binary.LittleEndian.Uint16(input[1:3]))
	return ActionHeader{Code: code, Length: length}, input[3:], nil
}

// ParseAction decodes one action: a header followed by exactly
// ActionHeader.Length body bytes. The advertised length is authoritative: a
// body parser that consumes less leaves the rest to be discarded, and one
// that would consume more fails, turning the action into raw.Error. Either
// way the returned remainder starts right after the advertised body, so
// decoding resynchronizes. Unknown opcodes decode to raw.Raw. Truncated
// input returns a *IncompleteError.
func ParseAction(input []byte) (raw.Action, []byte, error) {
	hdr, rest, err := ParseActionHeader(input)
	if err != nil {
		return nil, input, err
	}
	if len(rest) < hdr.Length {
		headerLen := len(input) - len(rest)
		return nil, input, &IncompleteError{Needed: headerLen + hdr.Length}
	}
	body := rest[:hdr.Length]
	return parseActionBody(hdr.Code, body), rest[hdr.Length:], nil
}

// ParseAllActions decodes input as a linear action stream until it is
// exhausted. On truncation it returns the actions decoded so far along with
// the *IncompleteError.
func ParseAllActions(input []byte) ([]raw.Action, error) {
	var actions []raw.Action
	for len(input) > 0 {
		act, rest, err := ParseAction(input)
		if err != nil {
			return actions, err
		}
		actions = append(actions, act)
		input = rest
	}
	return actions, nil
}

// orError converts a body-parser failure into the raw.Error sentinel.
func orError(a raw.Action, err error) raw.Action {
	if err != nil {
		return raw.Error{}
	}
	return a
}

func parseActionBody(code raw.Code, body []byte) raw.Action {
	switch code {
	case raw.CodeEnd:
		return raw.End{}
	case raw.CodeNextFrame:
		return raw.NextFrame{}
	case raw.CodePrevFrame:
		return raw.PrevFrame{}
	case raw.CodePlay:
		return raw.Play{}
	case raw.CodeStop:
		return raw.Stop{}
	case raw.CodeToggleQuality:
		return raw.ToggleQuality{}
	case raw.CodeStopSounds:
		return raw.StopSounds{}
	case raw.CodeAdd:
		return raw.Add{}
	case raw.CodeSubtract:
		return raw.Subtract{}
	case raw.CodeMultiply:
		return raw.Multiply{}
	case raw.CodeDivide:
		return raw.Divide{}
	case raw.CodeEquals:
		return raw.Equals{}
	case raw.CodeLess:
		return raw.Less{}
	case raw.CodeAnd:
		return raw.And{}
	case raw.CodeOr:
		return raw.Or{}
	case raw.CodeNot:
		return raw.Not{}
	case raw.CodeStringEquals:
		return raw.StringEquals{}
	case raw.CodeStringLength:
		return raw.StringLength{}
	case raw.CodeStringExtract:
		return raw.StringExtract{}
	case raw.CodePop:
		return raw.Pop{}
	case raw.CodeToInteger:
		return raw.ToInteger{}
	case raw.CodeGetVariable:
		return raw.GetVariable{}
	case raw.CodeSetVariable:
		return raw.SetVariable{}
	case raw.CodeSetTarget2:
		return raw.SetTarget2{}
	case raw.CodeStringAdd:
		return raw.StringAdd{}
	case raw.CodeGetProperty:
		return raw.GetProperty{}
	case raw.CodeSetProperty:
		return raw.SetProperty{}
	case raw.CodeCloneSprite:
		return raw.CloneSprite{}
	case raw.CodeRemoveSprite:
		return raw.RemoveSprite{}
	case raw.CodeTrace:
		return raw.Trace{}
	case raw.CodeStartDrag:
		return raw.StartDrag{}
	case raw.CodeEndDrag:
		return raw.EndDrag{}
	case raw.CodeStringLess:
		return raw.StringLess{}
	case raw.CodeThrow:
		return raw.Throw{}
	case raw.CodeCastOp:
		return raw.CastOp{}
	case raw.CodeImplementsOp:
		return raw.ImplementsOp{}
	case raw.CodeFsCommand2:
		return raw.FsCommand2{}
	case raw.CodeRandomNumber:
		return raw.RandomNumber{}
	case raw.CodeMbStringLength:
		return raw.MbStringLength{}
	case raw.CodeCharToAscii:
		return raw.CharToAscii{}
	case raw.CodeAsciiToChar:
		return raw.AsciiToChar{}
	case raw.CodeGetTime:
		return raw.GetTime{}
	case raw.CodeMbStringExtract:
		return raw.MbStringExtract{}
	case raw.CodeMbCharToAscii:
		return raw.MbCharToAscii{}
	case raw.CodeMbAsciiToChar:
		return raw.MbAsciiToChar{}
	case raw.CodeDelete:
		return raw.Delete{}
	case raw.CodeDelete2:
		return raw.Delete2{}
	case raw.CodeDefineLocal:
		return raw.DefineLocal{}
	case raw.CodeCallFunction:
		return raw.CallFunction{}
	case raw.CodeReturn:
		return raw.Return{}
	case raw.CodeModulo:
		return raw.Modulo{}
	case raw.CodeNewObject:
		return raw.NewObject{}
	case raw.CodeDefineLocal2:
		return raw.DefineLocal2{}
	case raw.CodeInitArray:
		return raw.InitArray{}
	case raw.CodeInitObject:
		return raw.InitObject{}
	case raw.CodeTypeOf:
		return raw.TypeOf{}
	case raw.CodeTargetPath:
		return raw.TargetPath{}
	case raw.CodeEnumerate:
		return raw.Enumerate{}
	case raw.CodeAdd2:
		return raw.Add2{}
	case raw.CodeLess2:
		return raw.Less2{}
	case raw.CodeEquals2:
		return raw.Equals2{}
	case raw.CodeToNumber:
		return raw.ToNumber{}
	case raw.CodeToString:
		return raw.ToString{}
	case raw.CodePushDuplicate:
		return raw.PushDuplicate{}
	case raw.CodeStackSwap:
		return raw.StackSwap{}
	case raw.CodeGetMember:
		return raw.GetMember{}
	case raw.CodeSetMember:
		return raw.SetMember{}
	case raw.CodeIncrement:
		return raw.Increment{}
	case raw.CodeDecrement:
		return raw.Decrement{}
	case raw.CodeCallMethod:
		return raw.CallMethod{}
	case raw.CodeNewMethod:
		return raw.NewMethod{}
	case raw.CodeInstanceOf:
		return raw.InstanceOf{}
	case raw.CodeEnumerate2:
		return raw.Enumerate2{}
	case raw.CodeBitAnd:
		return raw.BitAnd{}
	case raw.CodeBitOr:
		return raw.BitOr{}
	case raw.CodeBitXor:
		return raw.BitXor{}
	case raw.CodeBitLShift:
		return raw.BitLShift{}
	case raw.CodeBitRShift:
		return raw.BitRShift{}
	case raw.CodeBitURShift:
		return raw.BitURShift{}
	case raw.CodeStrictEquals:
		return raw.StrictEquals{}
	case raw.CodeGreater:
		return raw.Greater{}
	case raw.CodeStringGreater:
		return raw.StringGreater{}
	case raw.CodeExtends:
		return raw.Extends{}
	case raw.CodeCall:
		return raw.Call{}
	case raw.CodeGotoFrame:
		return orError(parseGotoFrame(bin.NewReader(body)))
	case raw.CodeGetUrl:
		return orError(parseGetUrl(bin.NewReader(body)))
	case raw.CodeStoreRegister:
		return orError(parseStoreRegister(bin.NewReader(body)))
	case raw.CodeConstantPool:
		return orError(parseConstantPool(bin.NewReader(body)))
	case raw.CodeStrictMode:
		return orError(parseStrictMode(bin.NewReader(body)))
	case raw.CodeWaitForFrame:
		return orError(parseWaitForFrame(bin.NewReader(body)))
	case raw.CodeSetTarget:
		return orError(parseSetTarget(bin.NewReader(body)))
	case raw.CodeGotoLabel:
		return orError(parseGotoLabel(bin.NewReader(body)))
	case raw.CodeWaitForFrame2:
		return orError(parseWaitForFrame2(bin.NewReader(body)))
	case raw.CodeDefineFunction2:
		return orError(parseDefineFunction2(bin.NewReader(body)))
	case raw.CodeTry:
		return orError(parseTry(bin.NewReader(body)))
	case raw.CodeWith:
		return orError(parseWith(bin.NewReader(body)))
	case raw.CodePush:
		return orError(parsePush(bin.NewReader(body)))
	case raw.CodeJump:
		return orError(parseJump(bin.NewReader(body)))
	case raw.CodeGetUrl2:
		return orError(parseGetUrl2(bin.NewReader(body)))
	case raw.CodeDefineFunction:
		return orError(parseDefineFunction(bin.NewReader(body)))
	case raw.CodeIf:
		return orError(parseIf(bin.NewReader(body)))
	case raw.CodeGotoFrame2:
		return orError(parseGotoFrame2(bin.NewReader(body)))
	default:
		var data []byte
		if len(body) > 0 {
			data = append(data, body...)
		}
		return raw.Raw{Code: code, Data: data}
	}
}

func parseGotoFrame(r *bin.Reader) (raw.Action, error) {
	frame, err := r.Uint16()
	if err != nil {
		return nil, err
	}
	return raw.GotoFrame{Frame: frame}, nil
}

func parseGetUrl(r *bin.Reader) (raw.Action, error) {
	url, err := r.CString()
	if err != nil {
		return nil, err
	}
	target, err := r.CString()
	if err != nil {
		return nil, err
	}
	return raw.GetUrl{Url: url, Target: target}, nil
}

func parseStoreRegister(r *bin.Reader) (raw.Action, error) {
	register, err := r.Uint8()
	if err != nil {
		return nil, err
	}
	return raw.StoreRegister{Register: register}, nil
}

func parseConstantPool(r *bin.Reader) (raw.Action, error) {
	count, err := r.Uint16()
	if err != nil {
		return nil, err
	}
	pool := make([]string, 0, count)
	for i := 0; i < int(count); i++ {
		s, err := r.CString()
		if err != nil {
			return nil, err
		}
		pool = append(pool, s)
	}
	return raw.ConstantPool{Pool: pool}, nil
}

func parseStrictMode(r *bin.Reader) (raw.Action, error) {
	v, err := r.Uint8()
	if err != nil {
		return nil, err
	}
	return raw.StrictMode{IsStrict: v != 0}, nil
}

func parseWaitForFrame(r *bin.Reader) (raw.Action, error) {
	frame, err := r.Uint16()
	if err != nil {
		return nil, err
	}
	skip, err := r.Uint8()
	if err != nil {
		return nil, err
	}
	return raw.WaitForFrame{Frame: frame, Skip: skip}, nil
}

func parseSetTarget(r *bin.Reader) (raw.Action, error) {
	name, err := r.CString()
	if err != nil {
		return nil, err
	}
	return raw.SetTarget{TargetName: name}, nil
}

func parseGotoLabel(r *bin.Reader) (raw.Action, error) {
	label, err := r.CString()
	if err != nil {
		return nil, err
	}
	return raw.GotoLabel{Label: label}, nil
}

func parseWaitForFrame2(r *bin.Reader) (raw.Action, error) {
	skip, err := r.Uint8()
	if err != nil {
		return nil, err
	}
	return raw.WaitForFrame2{Skip: skip}, nil
}

func parseDefineFunction2(r *bin.Reader) (raw.Action, error) {
	name, err := r.CString()
	if err != nil {
		return nil, err
	}
	paramCount, err := r.Uint16()
	if err != nil {
		return nil, err
	}
	registerCount, err := r.Uint8()
	if err != nil {
		return nil, err
	}
	flags, err := r.Uint16()
	if err != nil {
		return nil, err
	}
	params := make([]raw.RegisterParam, 0, paramCount)
	for i := 0; i < int(paramCount); i++ {
		register, err := r.Uint8()
		if err != nil {
			return nil, err
		}
		pname, err := r.CString()
		if err != nil {
			return nil, err
		}
		params = append(params, raw.RegisterParam{Register: register, Name: pname})
	}
	bodySize, err := r.Uint16()
	if err != nil {
		return nil, err
	}
	return raw.DefineFunction2{
		Name:              name,
		RegisterCount:     registerCount,
		PreloadThis:       flags&(1<<0) != 0,
		SuppressThis:      flags&(1<<1) != 0,
		PreloadArguments:  flags&(1<<2) != 0,
		SuppressArguments: flags&(1<<3) != 0,
		PreloadSuper:      flags&(1<<4) != 0,
		SuppressSuper:     flags&(1<<5) != 0,
		PreloadRoot:       flags&(1<<6) != 0,
		PreloadParent:     flags&(1<<7) != 0,
		PreloadGlobal:     flags&(1<<8) != 0,
		Parameters:        params,
		BodySize:          bodySize,
	}, nil
}

func parseTry(r *bin.Reader) (raw.Action, error) {
	flags, err := r.Uint8()
	if err != nil {
		return nil, err
	}
	hasCatch := flags&(1<<0) != 0
	hasFinally := flags&(1<<1) != 0
	catchInRegister := flags&(1<<2) != 0

	trySize, err := r.Uint16()
	if err != nil {
		return nil, err
	}
	catchSize, err := r.Uint16()
	if err != nil {
		return nil, err
	}
	finallySize, err := r.Uint16()
	if err != nil {
		return nil, err
	}

	// The target field is present on the wire whether or not the catch flag
	// is set.
	var target raw.CatchTarget
	if catchInRegister {
		register, err := r.Uint8()
		if err != nil {
			return nil, err
		}
		target = raw.CatchTarget{InRegister: true, Register: register}
	} else {
		variable, err := r.CString()
		if err != nil {
			return nil, err
		}
		target = raw.CatchTarget{Variable: variable}
	}

	action := raw.Try{TrySize: trySize}
	if hasCatch {
		action.Catch = &raw.CatchBlock{Target: target, Size: catchSize}
	}
	if hasFinally {
		action.Finally = &finallySize
	}
	return action, nil
}

func parseWith(r *bin.Reader) (raw.Action, error) {
	size, err := r.Uint16()
	if err != nil {
		return nil, err
	}
	return raw.With{Size: size}, nil
}

func parsePush(r *bin.Reader) (raw.Action, error) {
	if r.Empty() {
		return nil, fmt.Errorf("empty push body")
	}
	var values []raw.PushValue
	for !r.Empty() {
		v, err := parsePushValue(r)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return raw.Push{Values: values}, nil
}

func parsePushValue(r *bin.Reader) (raw.PushValue, error) {
	tag, err := r.Uint8()
	if err != nil {
		return nil, err
	}
	switch tag {
	case 0:
		s, err := r.CString()
		if err != nil {
			return nil, err
		}
		return raw.PushString(s), nil
	case 1:
		f, err := r.Float32()
		if err != nil {
			return nil, err
		}
		return raw.PushFloat32(f), nil
	case 2:
		return raw.PushNull{}, nil
	case 3:
		return raw.PushUndefined{}, nil
	case 4:
		v, err := r.Uint8()
		if err != nil {
			return nil, err
		}
		return raw.PushRegister(v), nil
	case 5:
		v, err := r.Uint8()
		if err != nil {
			return nil, err
		}
		return raw.PushBoolean(v != 0), nil
	case 6:
		f, err := r.Float64Swapped()
		if err != nil {
			return nil, err
		}
		return raw.PushFloat64(f), nil
	case 7:
		v, err := r.Int32()
		if err != nil {
			return nil, err
		}
		return raw.PushSint32(v), nil
	case 8:
		v, err := r.Uint8()
		if err != nil {
			return nil, err
		}
		return raw.PushConstant(v), nil
	case 9:
		v, err := r.Uint16()
		if err != nil {
			return nil, err
		}
		return raw.PushConstant(v), nil
	default:
		return nil, fmt.Errorf("unknown push value type %#02x", tag)
	}
}

func parseJump(r *bin.Reader) (raw.Action, error) {
	offset, err := r.Int16()
	if err != nil {
		return nil, err
	}
	return raw.Jump{Offset: offset}, nil
}

func parseGetUrl2(r *bin.Reader) (raw.Action, error) {
	flags, err := r.Uint8()
	if err != nil {
		return nil, err
	}
	method := raw.GetUrl2Method(flags >> 6)
	if method > raw.GetUrl2MethodPost {
		return nil, fmt.Errorf("invalid GetUrl2 method %d", method)
	}
	return raw.GetUrl2{
		Method:        method,
		LoadTarget:    flags&(1<<1) != 0,
		LoadVariables: flags&(1<<0) != 0,
	}, nil
}

func parseDefineFunction(r *bin.Reader) (raw.Action, error) {
	name, err := r.CString()
	if err != nil {
		return nil, err
	}
	paramCount, err := r.Uint16()
	if err != nil {
		return nil, err
	}
	params := make([]string, 0, paramCount)
	for i := 0; i < int(paramCount); i++ {
		p, err := r.CString()
		if err != nil {
			return nil, err
		}
		params = append(params, p)
	}
	bodySize, err := r.Uint16()
	if err != nil {
		return nil, err
	}
	return raw.DefineFunction{Name: name, Parameters: params, BodySize: bodySize}, nil
}

func parseIf(r *bin.Reader) (raw.Action, error) {
	offset, err := r.Int16()
	if err != nil {
		return nil, err
	}
	return raw.If{Offset: offset}, nil
}

func parseGotoFrame2(r *bin.Reader) (raw.Action, error) {
	flags, err := r.Uint8()
	if err != nil {
		return nil, err
	}
	action := raw.GotoFrame2{Play: flags&(1<<0) != 0}
	if flags&(1<<1) != 0 {
		action.SceneBias, err = r.Uint16()
		if err != nil {
			return nil, err
		}
	}
	return action, nil
}
