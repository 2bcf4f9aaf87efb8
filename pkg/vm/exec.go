package vm

import (
	"strconv"
	"strings"

	"github.com/kristofer/torquevm/internal/ident"
	"github.com/kristofer/torquevm/pkg/bytecode"
	"github.com/kristofer/torquevm/pkg/namespace"
)

// Exec runs cb starting at offset under opts and returns the
// produced value: the string workspace's current slice at the point
// of return. It recurses directly for nested script calls; there is
// no separate "call stack" data structure beyond the Go call stack
// and Scope's frame stack.
func (e *Engine) Exec(cb *bytecode.CodeBlock, offset uint32, opts Options) string {
	cb.IncRefCount()
	defer cb.DecRefCount()

	savedCB, savedNS, savedPkg := e.CurCodeBlock, e.CurNamespace, e.CurPackage
	savedObj, savedField, savedFieldArr := e.CurObject, e.CurField, e.CurFieldArray
	savedCtor, savedCtorName := e.Constructing, e.constructingName
	savedCurVar := e.curVar
	defer func() {
		e.CurCodeBlock, e.CurNamespace, e.CurPackage = savedCB, savedNS, savedPkg
		e.CurObject, e.CurField, e.CurFieldArray = savedObj, savedField, savedFieldArr
		e.Constructing, e.constructingName = savedCtor, savedCtorName
		e.curVar = savedCurVar
	}()
	e.CurCodeBlock = cb
	e.CurNamespace = opts.Namespace
	e.CurPackage = opts.Package

	code := cb.Code
	var floats []float64
	var strs *[]byte
	var ip int
	var funcName string
	pushedOwning := false

	if opts.Args != nil {
		formalCount := int(code[offset+4])
		funcName = e.Idents.MustLookup(ident.Handle(code[offset]))
		actual := opts.Args[1:]
		if len(actual) > formalCount {
			actual = actual[:formalCount]
		}
		if e.Trace {
			e.Diag.Printf(diagChannelGeneral(), cb.FileLine(int(offset)),
				"Entering %s::%s(%s)", opts.Namespace, funcName, strings.Join(opts.Args[1:], ", "))
		}
		e.Scope.PushOwning()
		pushedOwning = true
		frame := e.Scope.Top()
		for i := 0; i < formalCount; i++ {
			paramName := e.Idents.MustLookup(ident.Handle(code[int(offset)+6+i]))
			val := ""
			if i < len(actual) {
				val = actual[i]
			}
			frame.LookupCreate(paramName).SetString(val)
		}
		ip = int(offset) + 6 + formalCount
		floats = cb.FunctionFloats
		strs = &cb.FunctionStrings
	} else {
		floats = cb.GlobalFloats
		strs = &cb.GlobalStrings
		if opts.SetFrame < 0 {
			e.Scope.PushOwning()
			pushedOwning = true
		} else {
			e.Scope.PushReference(opts.SetFrame)
		}
		ip = int(offset)
	}

	if pushedOwning {
		e.Debugger.PushFrame(cb, funcName, ip)
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				rerr, ok := r.(*RuntimeError)
				if !ok {
					panic(r)
				}
				rerr.Stack = append(rerr.Stack, StackFrame{
					FuncName: funcName, Namespace: opts.Namespace, Source: e.curSource,
				})
				e.Diag.Errorf(diagChannelGeneral(), e.curSource, "%s", rerr.Error())
			}
		}()

		loop:
			for ip < len(code) {
				opcodeIP := ip
				e.curSource = cb.FileLine(opcodeIP)
				op := bytecode.Opcode(code[ip])
				ip++

				switch op {

			case bytecode.OpFuncDecl:
				nameH, nsH, pkgH := code[ip], code[ip+1], code[ip+2]
				hasBody, formalCount, skip := code[ip+3], code[ip+4], code[ip+5]
				header := ip
				if !opts.NoCalls {
					nsName := ""
					if nsH != 0 {
						nsName = e.Idents.MustLookup(ident.Handle(nsH))
					}
					pkgName := ""
					if pkgH != 0 {
						pkgName = e.Idents.MustLookup(ident.Handle(pkgH))
					}
					selector := e.Idents.MustLookup(ident.Handle(nameH))
					var entryOffset uint32
					if hasBody != 0 {
						entryOffset = uint32(header)
					}
					saved := e.Namespaces.UnlinkPackages()
					e.Namespaces.Find(nsName).AddFunction(selector, cb, entryOffset, pkgName)
					e.Namespaces.RelinkPackages(saved)
				}
				_ = formalCount
				ip = int(skip)

			case bytecode.OpCreateObject:
				parentH, isDB, failJump := code[ip], code[ip+1], code[ip+2]
				ip += 3
				argv := e.Strings.PopCallFrame()
				if opts.NoCalls {
					continue loop
				}
				parentName := ""
				if parentH != 0 {
					parentName = e.Idents.MustLookup(ident.Handle(parentH))
				}
				if !e.createObject(argv, parentName, isDB != 0) {
					ip = int(failJump)
				}

			case bytecode.OpAddObject:
				placeAtRoot := code[ip] != 0
				ip++
				if opts.NoCalls {
					continue loop
				}
				e.addObject(placeAtRoot)

			case bytecode.OpEndObject:
				placeAtRoot := code[ip] != 0
				ip++
				if opts.NoCalls {
					continue loop
				}
				e.endObject(placeAtRoot)

			case bytecode.OpJmp:
				ip = int(code[ip])

			case bytecode.OpJmpIfFNot:
				target := code[ip]
				ip++
				if e.Floats.Pop() == 0 {
					ip = int(target)
				}

			case bytecode.OpJmpIfNot:
				target := code[ip]
				ip++
				if e.Ints.Pop() == 0 {
					ip = int(target)
				}

			case bytecode.OpJmpIfF:
				target := code[ip]
				ip++
				if e.Floats.Pop() != 0 {
					ip = int(target)
				}

			case bytecode.OpJmpIf:
				target := code[ip]
				ip++
				if e.Ints.Pop() != 0 {
					ip = int(target)
				}

			case bytecode.OpJmpIfNotNP:
				target := code[ip]
				ip++
				if e.Ints.Top() == 0 {
					ip = int(target)
				} else {
					e.Ints.Pop()
				}

			case bytecode.OpJmpIfNP:
				target := code[ip]
				ip++
				if e.Ints.Top() != 0 {
					ip = int(target)
				} else {
					e.Ints.Pop()
				}

			case bytecode.OpReturn:
				break loop

			case bytecode.OpCmpEq, bytecode.OpCmpGr, bytecode.OpCmpGe,
				bytecode.OpCmpLt, bytecode.OpCmpLe, bytecode.OpCmpNe:
				b := e.Floats.Pop()
				a := e.Floats.Pop()
				var res bool
				switch op {
				case bytecode.OpCmpEq:
					res = a == b
				case bytecode.OpCmpGr:
					res = a > b
				case bytecode.OpCmpGe:
					res = a >= b
				case bytecode.OpCmpLt:
					res = a < b
				case bytecode.OpCmpLe:
					res = a <= b
				case bytecode.OpCmpNe:
					res = a != b
				}
				e.Ints.Push(boolToUint(res))

			case bytecode.OpXor:
				b, a := e.Ints.Pop(), e.Ints.Pop()
				e.Ints.Push(a ^ b)
			case bytecode.OpMod:
				b, a := e.Ints.Pop(), e.Ints.Pop()
				if b == 0 {
					e.Ints.Push(0)
				} else {
					e.Ints.Push(a % b)
				}
			case bytecode.OpBitAnd:
				b, a := e.Ints.Pop(), e.Ints.Pop()
				e.Ints.Push(a & b)
			case bytecode.OpBitOr:
				b, a := e.Ints.Pop(), e.Ints.Pop()
				e.Ints.Push(a | b)
			case bytecode.OpNot:
				a := e.Ints.Pop()
				e.Ints.Push(boolToUint(a == 0))
			case bytecode.OpNotF:
				f := e.Floats.Pop()
				e.Ints.Push(boolToUint(f == 0))
			case bytecode.OpOnesComplement:
				a := e.Ints.Pop()
				e.Ints.Push(^a)
			case bytecode.OpShr:
				b, a := e.Ints.Pop(), e.Ints.Pop()
				e.Ints.Push(a >> b)
			case bytecode.OpShl:
				b, a := e.Ints.Pop(), e.Ints.Pop()
				e.Ints.Push(a << b)
			case bytecode.OpAnd:
				b, a := e.Ints.Pop(), e.Ints.Pop()
				e.Ints.Push(boolToUint(a != 0 && b != 0))
			case bytecode.OpOr:
				b, a := e.Ints.Pop(), e.Ints.Pop()
				e.Ints.Push(boolToUint(a != 0 || b != 0))

			case bytecode.OpAdd:
				b, a := e.Floats.Pop(), e.Floats.Pop()
				e.Floats.Push(a + b)
			case bytecode.OpSub:
				b, a := e.Floats.Pop(), e.Floats.Pop()
				e.Floats.Push(a - b)
			case bytecode.OpMul:
				b, a := e.Floats.Pop(), e.Floats.Pop()
				e.Floats.Push(a * b)
			case bytecode.OpDiv:
				b, a := e.Floats.Pop(), e.Floats.Pop()
				e.Floats.Push(a / b)
			case bytecode.OpNeg:
				e.Floats.Push(-e.Floats.Pop())

			case bytecode.OpSetCurVar:
				name := e.Idents.MustLookup(ident.Handle(code[ip]))
				ip++
				e.lookupVar(name, false)
			case bytecode.OpSetCurVarCreate:
				name := e.Idents.MustLookup(ident.Handle(code[ip]))
				ip++
				e.lookupVar(name, true)
			case bytecode.OpSetCurVarArray:
				e.lookupVar(e.Strings.String(), false)
			case bytecode.OpSetCurVarArrayCreate:
				e.lookupVar(e.Strings.String(), true)

			case bytecode.OpLoadVarUint:
				if e.curVar == nil {
					e.Ints.Push(0)
				} else {
					e.Ints.Push(e.curVar.Int())
				}
			case bytecode.OpLoadVarFlt:
				if e.curVar == nil {
					e.Floats.Push(0)
				} else {
					e.Floats.Push(e.curVar.Float())
				}
			case bytecode.OpLoadVarStr:
				if e.curVar == nil {
					e.Strings.SetString("")
				} else {
					e.Strings.SetString(e.curVar.String())
				}
			case bytecode.OpSaveVarUint:
				v := e.Ints.Pop()
				if e.curVar != nil {
					e.curVar.SetInt(v)
				}
			case bytecode.OpSaveVarFlt:
				v := e.Floats.Pop()
				if e.curVar != nil {
					e.curVar.SetFloat(v)
				}
			case bytecode.OpSaveVarStr:
				if e.curVar != nil {
					e.curVar.SetString(e.Strings.String())
				}

			case bytecode.OpSetCurObject:
				e.CurObject = e.resolveObjectPath(e.Strings.String())
			case bytecode.OpSetCurObjectNew:
				e.CurObject = e.Constructing
			case bytecode.OpSetCurField:
				e.CurField = e.Idents.MustLookup(ident.Handle(code[ip]))
				e.CurFieldArray = ""
				ip++
			case bytecode.OpSetCurFieldArray:
				e.CurField = e.Idents.MustLookup(ident.Handle(code[ip]))
				ip++
				e.CurFieldArray = e.Strings.String()

			case bytecode.OpLoadFieldUint:
				s := e.fieldString()
				n, _ := strconv.ParseUint(s, 10, 32)
				e.Ints.Push(uint32(n))
			case bytecode.OpLoadFieldFlt:
				s := e.fieldString()
				f, _ := strconv.ParseFloat(s, 64)
				e.Floats.Push(f)
			case bytecode.OpLoadFieldStr:
				e.Strings.SetString(e.fieldString())
			case bytecode.OpSaveFieldUint:
				v := e.Ints.Pop()
				e.saveField(strconv.FormatUint(uint64(v), 10))
			case bytecode.OpSaveFieldFlt:
				v := e.Floats.Pop()
				e.saveField(formatFloat(v))
			case bytecode.OpSaveFieldStr:
				e.saveField(e.Strings.String())

			case bytecode.OpStrToUint:
				n, _ := strconv.ParseUint(e.Strings.String(), 10, 32)
				e.Ints.Push(uint32(n))
				e.Strings.mLen = 0
			case bytecode.OpStrToFlt:
				f, _ := strconv.ParseFloat(e.Strings.String(), 64)
				e.Floats.Push(f)
				e.Strings.mLen = 0
			case bytecode.OpStrToNone:
				e.Strings.mLen = 0
			case bytecode.OpFltToUint:
				e.Ints.Push(uint32(int64(e.Floats.Pop())))
			case bytecode.OpFltToStr:
				e.Strings.SetString(formatFloat(e.Floats.Pop()))
			case bytecode.OpFltToNone:
				e.Floats.Pop()
			case bytecode.OpUintToFlt:
				e.Floats.Push(float64(e.Ints.Pop()))
			case bytecode.OpUintToStr:
				e.Strings.SetString(strconv.FormatUint(uint64(e.Ints.Pop()), 10))
			case bytecode.OpUintToNone:
				e.Ints.Pop()

			case bytecode.OpLoadImmedUint:
				e.Ints.Push(code[ip])
				ip++
			case bytecode.OpLoadImmedFlt:
				e.Floats.Push(floats[code[ip]])
				ip++
			case bytecode.OpLoadImmedStr:
				e.Strings.SetString(bytecode.StringAt(*strs, code[ip]))
				ip++
			case bytecode.OpLoadImmedIdent:
				e.Strings.SetString(e.Idents.MustLookup(ident.Handle(code[ip])))
				ip++

			case bytecode.OpTagToStr:
				operandIP := ip
				offset := code[operandIP]
				ip++
				text := bytecode.StringAt(*strs, offset)
				id := e.Idents.Intern(text)
				idStr := strconv.FormatUint(uint64(id), 10)
				oldEnd := int(offset)
				for oldEnd < len(*strs) && (*strs)[oldEnd] != 0 {
					oldEnd++
				}
				oldWidth := oldEnd - int(offset)
				var newOffset uint32
				if len(idStr) <= oldWidth {
					copy((*strs)[offset:], idStr)
					for i := int(offset) + len(idStr); i < oldEnd; i++ {
						(*strs)[i] = 0
					}
					newOffset = offset
				} else {
					newOffset = uint32(len(*strs))
					*strs = append(*strs, append([]byte(idStr), 0)...)
				}
				code[opcodeIP] = uint32(bytecode.OpLoadImmedStr)
				code[operandIP] = newOffset
				e.Strings.SetString(idStr)

			case bytecode.OpCallFuncResolve:
				nameH, nsH := code[ip], code[ip+1]
				ip += 3
				argv := e.Strings.PopCallFrame()
				if opts.NoCalls {
					continue loop
				}
				selector := e.Idents.MustLookup(ident.Handle(nameH))
				nsName := ""
				if nsH != 0 {
					nsName = e.Idents.MustLookup(ident.Handle(nsH))
				}
				entry := e.resolvePlain(nsName, selector)
				if entry == nil {
					e.Diag.Warnf(diagChannelScript(), e.curSource, "unknown function %s", selector)
					e.Strings.SetString("")
					continue loop
				}
				idx := cb.AddResolvedCall(entry)
				code[opcodeIP] = uint32(bytecode.OpCallFunc)
				code[ip-3] = idx
				code[ip-2] = 0
				e.performCall(entry, argv, code, &ip)

			case bytecode.OpCallFunc:
				slotA, _, callType := code[ip], code[ip+1], code[ip+2]
				ip += 3
				argv := e.Strings.PopCallFrame()
				if opts.NoCalls {
					continue loop
				}
				switch callType {
				case bytecode.CallPlain:
					v := cb.ResolvedCall(slotA)
					entry, ok := v.(*namespace.Entry)
					if !ok {
						e.Strings.SetString("")
						continue loop
					}
					e.performCall(entry, argv, code, &ip)
				case bytecode.CallMethod:
					selector := e.Idents.MustLookup(ident.Handle(slotA))
					entry, obj := e.resolveMethod(argv, selector)
					if entry == nil {
						e.Diag.Warnf(diagChannelScript(), e.curSource, "unknown method %s", selector)
						e.Strings.SetString("")
						continue loop
					}
					savedThis := e.This
					e.This = obj
					// argv[0] is the receiver (resolveMethod reads it to
					// find obj). A script callee's own prelude strips
					// slot 0 itself (the same placeholder-selector
					// convention a plain call's argv[0] follows), so it
					// must see the receiver still in place; only a host
					// callee — which never goes through that prelude —
					// needs it stripped here.
					calleeArgs := argv
					if entry.Kind != namespace.KindScript && len(argv) > 0 {
						calleeArgs = argv[1:]
					}
					e.performCall(entry, calleeArgs, code, &ip)
					e.This = savedThis
				case bytecode.CallParent:
					selector := e.Idents.MustLookup(ident.Handle(slotA))
					entry := e.resolveParent(selector)
					if entry == nil {
						e.Diag.Warnf(diagChannelScript(), e.curSource, "no parent implementation of %s", selector)
						e.Strings.SetString("")
						continue loop
					}
					e.performCall(entry, argv, code, &ip)
				}

			case bytecode.OpAdvanceStr:
				e.Strings.Advance()
			case bytecode.OpAdvanceStrAppendChar:
				e.Strings.AdvanceAppendChar(byte(code[ip]))
				ip++
			case bytecode.OpAdvanceStrComma:
				e.Strings.AdvanceComma(byte(code[ip]))
				ip++
			case bytecode.OpAdvanceStrNul:
				ip++
				e.Strings.AdvanceNul()
			case bytecode.OpRewindStr:
				e.Strings.Rewind()
			case bytecode.OpTerminateRewindStr:
				e.Strings.TerminateRewind()
			case bytecode.OpCompareStr:
				e.Strings.Compare(&e.Ints)
			case bytecode.OpPush:
				e.Strings.Push(byte(code[ip]))
				ip++
			case bytecode.OpPushFrame:
				e.Strings.PushFrame()

			case bytecode.OpBreak:
				if line, ok := e.Debugger.FindBreakLine(opcodeIP); ok {
					e.Debugger.ExecutionStopped(cb, line)
				}

				default:
					panic(newRuntimeError("invalid opcode %d at instruction %d", op, opcodeIP))
				}
			}
	}()

	if pushedOwning {
		e.Debugger.PopFrame()
	}
	e.Scope.Pop()

	if e.Trace && opts.Args != nil {
		e.Diag.Printf(diagChannelGeneral(), e.curSource, "Leaving %s::%s return %q",
			opts.Namespace, funcName, e.Strings.String())
	}

	return e.Strings.String()
}

func boolToUint(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func (e *Engine) lookupVar(name string, create bool) {
	if strings.HasPrefix(name, "$") {
		if create {
			e.curVar = e.Scope.LookupCreateGlobal(name)
			return
		}
		v, ok := e.Scope.LookupGlobal(name)
		if !ok {
			e.curVar = nil
			if e.WarnOnUndefinedVar {
				e.Diag.Warnf(diagChannelScript(), e.curSource, "undefined variable %s", name)
			}
			return
		}
		e.curVar = v
		return
	}
	frame := e.Scope.Top()
	if frame == nil {
		e.curVar = nil
		return
	}
	if create {
		e.curVar = frame.LookupCreate(name)
		return
	}
	v, ok := frame.Lookup(name)
	if !ok {
		e.curVar = nil
		if e.WarnOnUndefinedVar {
			e.Diag.Warnf(diagChannelScript(), e.curSource, "undefined variable %s", name)
		}
		return
	}
	e.curVar = v
}

func (e *Engine) fieldString() string {
	if e.CurObject == nil {
		return ""
	}
	return e.CurObject.GetDataField(e.CurField, e.CurFieldArray)
}

func (e *Engine) saveField(value string) {
	if e.CurObject == nil {
		return
	}
	e.CurObject.SetDataField(e.CurField, e.CurFieldArray, value)
}

// performCall invokes entry and lands its result in the string
// workspace, applying the peephole coercion skip for host calls whose
// numeric result is immediately consumed by a following str-to-number
// opcode — including the mixed int/float cases, where the host result
// and the requested coercion disagree on numeric kind but the value
// still converts directly without a string round trip.
func (e *Engine) performCall(entry *namespace.Entry, argv []string, code []uint32, ip *int) {
	if entry.Kind == namespace.KindScript {
		result := e.invokeScript(entry, argv)
		e.Strings.SetString(result)
		return
	}
	hr, ok := e.invokeHost(entry, argv)
	if !ok {
		e.Strings.SetString("")
		return
	}
	if *ip < len(code) {
		next := bytecode.Opcode(code[*ip])
		switch {
		case hr.kind == namespace.KindHostInt && next == bytecode.OpStrToUint:
			e.Ints.Push(uint32(hr.i))
			*ip++
			return
		case hr.kind == namespace.KindHostBool && next == bytecode.OpStrToUint:
			e.Ints.Push(uint32(hr.i))
			*ip++
			return
		case hr.kind == namespace.KindHostFloat && next == bytecode.OpStrToFlt:
			e.Floats.Push(hr.f)
			*ip++
			return
		case hr.kind == namespace.KindHostInt && next == bytecode.OpStrToFlt:
			e.Floats.Push(float64(hr.i))
			*ip++
			return
		case hr.kind == namespace.KindHostFloat && next == bytecode.OpStrToUint:
			e.Ints.Push(uint32(int64(hr.f)))
			*ip++
			return
		case next == bytecode.OpStrToNone:
			*ip++
			return
		}
	}
	e.Strings.SetString(stringifyHostResult(hr))
}

func stringifyHostResult(hr hostResult) string {
	switch hr.kind {
	case namespace.KindHostString:
		return hr.str
	case namespace.KindHostInt, namespace.KindHostBool:
		return strconv.FormatInt(hr.i, 10)
	case namespace.KindHostFloat:
		return formatFloat(hr.f)
	default:
		return ""
	}
}
