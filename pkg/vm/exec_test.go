package vm

import (
	"io"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/torquevm/internal/diagnostics"
	"github.com/kristofer/torquevm/internal/ident"
	"github.com/kristofer/torquevm/pkg/bytecode"
	"github.com/kristofer/torquevm/pkg/namespace"
	"github.com/kristofer/torquevm/pkg/simobject"
)

// newTestEngine wires a fresh Engine with its own identifier table,
// namespace service and object registry, logging to a discarded
// logrus logger so test output stays quiet.
func newTestEngine() (*Engine, *ident.Table, *namespace.Service, *simobject.Registry) {
	idents := ident.New()
	nsService := namespace.NewService()
	objects := simobject.NewRegistry(nsService)
	base := log.New()
	base.SetOutput(io.Discard)
	diag := diagnostics.New(base)
	return NewEngine(idents, nsService, objects, diag), idents, nsService, objects
}

func TestExecFloatArithmeticAndFormat(t *testing.T) {
	e, _, _, _ := newTestEngine()
	cb := bytecode.New("t", "", []uint32{
		uint32(bytecode.OpLoadImmedFlt), 0,
		uint32(bytecode.OpLoadImmedFlt), 1,
		uint32(bytecode.OpMul),
		uint32(bytecode.OpLoadImmedFlt), 2,
		uint32(bytecode.OpAdd),
		uint32(bytecode.OpFltToStr),
		uint32(bytecode.OpReturn),
	})
	cb.GlobalFloats = []float64{2, 3, 4}

	result := e.Exec(cb, 0, Options{SetFrame: -1})
	require.Equal(t, "10", result)
}

func TestExecComparisonAndBitwise(t *testing.T) {
	e, _, _, _ := newTestEngine()
	cb := bytecode.New("t", "", []uint32{
		uint32(bytecode.OpLoadImmedFlt), 0,
		uint32(bytecode.OpLoadImmedFlt), 1,
		uint32(bytecode.OpCmpGr), // 5 > 3 -> 1
		uint32(bytecode.OpLoadImmedUint), 6,
		uint32(bytecode.OpBitAnd), // 1 & 6 -> 0
		uint32(bytecode.OpUintToStr),
		uint32(bytecode.OpReturn),
	})
	cb.GlobalFloats = []float64{5, 3}

	result := e.Exec(cb, 0, Options{SetFrame: -1})
	require.Equal(t, "0", result)
}

func TestExecVariableCreateSaveLoad(t *testing.T) {
	e, idents, _, _ := newTestEngine()
	hX := idents.Intern("$counter")
	cb := bytecode.New("t", "", []uint32{
		uint32(bytecode.OpSetCurVarCreate), uint32(hX),
		uint32(bytecode.OpLoadImmedUint), 41,
		uint32(bytecode.OpSaveVarUint),
		uint32(bytecode.OpSetCurVar), uint32(hX),
		uint32(bytecode.OpLoadVarStr),
		uint32(bytecode.OpReturn),
	})

	result := e.Exec(cb, 0, Options{SetFrame: -1})
	require.Equal(t, "41", result)

	v, ok := e.Scope.LookupGlobal("$counter")
	require.True(t, ok)
	require.Equal(t, uint32(41), v.Int())
}

func TestExecFieldReadWriteThroughCurObject(t *testing.T) {
	e, idents, _, objects := newTestEngine()
	obj := objects.CreateObject("Item")
	obj.DefineStaticField("count", 1)
	e.CurObject = obj

	hField := idents.Intern("count")
	cb := bytecode.New("t", "", []uint32{
		uint32(bytecode.OpSetCurField), uint32(hField),
		uint32(bytecode.OpLoadImmedUint), 3,
		uint32(bytecode.OpSaveFieldUint),
		uint32(bytecode.OpSetCurField), uint32(hField),
		uint32(bytecode.OpLoadFieldStr),
		uint32(bytecode.OpReturn),
	})

	result := e.Exec(cb, 0, Options{SetFrame: -1})
	require.Equal(t, "3", result)
}

// TestExecFunctionCallResolveSelfPatchesAndIsIdempotent hand-assembles
// a FUNC_DECL whose body echoes its single formal argument, then a
// call site that resolves it via CALLFUNC_RESOLVE. The second run
// exercises the self-patched OP_CALLFUNC path directly.
func TestExecFunctionCallResolveSelfPatchesAndIsIdempotent(t *testing.T) {
	e, idents, _, _ := newTestEngine()
	hFoo := idents.Intern("foo")
	hX := idents.Intern("x")

	code := []uint32{
		/*0*/ uint32(bytecode.OpFuncDecl),
		/*1*/ uint32(hFoo), // name
		/*2*/ 0,            // namespace
		/*3*/ 0,            // package
		/*4*/ 1,            // hasBody
		/*5*/ 1,            // formalCount
		/*6*/ 12,           // skip
		/*7*/ uint32(hX),   // formal[0]
		/*8*/ uint32(bytecode.OpSetCurVar), uint32(hX),
		/*10*/ uint32(bytecode.OpLoadVarStr),
		/*11*/ uint32(bytecode.OpReturn),
		/*12*/ uint32(bytecode.OpPushFrame),
		/*13*/ uint32(bytecode.OpLoadImmedStr), 0, // "_" placeholder receiver slot
		/*15*/ uint32(bytecode.OpAdvanceStrNul), 0,
		/*17*/ uint32(bytecode.OpLoadImmedStr), 2, // "world"
		/*19*/ uint32(bytecode.OpCallFuncResolve),
		/*20*/ uint32(hFoo), 0, 0,
		/*23*/ uint32(bytecode.OpReturn),
	}
	cb := bytecode.New("t", "", code)
	cb.GlobalStrings = []byte("_\x00world\x00")

	result := e.Exec(cb, 0, Options{SetFrame: -1})
	require.Equal(t, "world", result)
	require.Equal(t, uint32(bytecode.OpCallFunc), cb.Code[19], "call-resolve self-patches to a plain call")
	require.Equal(t, uint32(0), cb.Code[20], "resolved-call index lands in the first operand slot")

	// Second execution takes the already-patched OP_CALLFUNC path and
	// must produce the same result.
	result2 := e.Exec(cb, 0, Options{SetFrame: -1})
	require.Equal(t, "world", result2)
}

func TestExecTagToStrSelfPatchesInPlaceWhenIDFits(t *testing.T) {
	e, _, _, _ := newTestEngine()
	cb := bytecode.New("t", "", []uint32{
		uint32(bytecode.OpTagToStr), 0,
		uint32(bytecode.OpReturn),
	})
	cb.GlobalStrings = []byte("tagname\x00")

	result := e.Exec(cb, 0, Options{SetFrame: -1})
	require.Equal(t, "1", result, "first interned identifier is handle 1")
	require.Equal(t, uint32(bytecode.OpLoadImmedStr), cb.Code[0])
	require.Equal(t, uint32(0), cb.Code[1], "id string fit inside the old slot, so the offset is unchanged")

	result2 := e.Exec(cb, 0, Options{SetFrame: -1})
	require.Equal(t, "1", result2, "re-running the now-patched LOADIMMED_STR gives the same value")
}

func TestExecTagToStrAppendsWhenIDDoesNotFit(t *testing.T) {
	e, idents, _, _ := newTestEngine()
	for i := 0; i < 20; i++ {
		idents.Intern(string(rune('a' + i)))
	}
	cb := bytecode.New("t", "", []uint32{
		uint32(bytecode.OpTagToStr), 0,
		uint32(bytecode.OpReturn),
	})
	cb.GlobalStrings = []byte("z\x00") // a single-byte slot, too narrow for a two-digit id

	result := e.Exec(cb, 0, Options{SetFrame: -1})
	require.Equal(t, "21", result)
	require.Equal(t, uint32(2), cb.Code[1], "id didn't fit; operand now points past the original table")
}

func TestExecHostCallPeepholeSkipsStringRoundTrip(t *testing.T) {
	e, _, nsService, _ := newTestEngine()
	nsService.AddHostFunction("", "triple", &namespace.Entry{
		Kind: namespace.KindHostInt, MinArgs: 0, MaxArgs: 0,
		IntFn: func(this interface{}, argv []string) int64 { return 14 },
	})
	entry := nsService.Find("").Lookup("triple")
	require.NotNil(t, entry)

	cb := bytecode.New("t", "", nil)
	resolvedIdx := cb.AddResolvedCall(entry)
	cb.Code = []uint32{
		uint32(bytecode.OpPushFrame),
		uint32(bytecode.OpCallFunc), resolvedIdx, 0, bytecode.CallPlain,
		uint32(bytecode.OpStrToUint),
		uint32(bytecode.OpReturn),
	}

	e.Exec(cb, 0, Options{SetFrame: -1})
	require.Equal(t, uint32(14), e.Ints.Pop())
}

// TestExecHostCallPeepholeSkipsStringRoundTripOnMixedKind exercises the
// two peephole cases where the host result's numeric kind and the
// requested coercion disagree (int result coerced to float, float
// result coerced to uint) but still convert directly without ever
// round-tripping through the string workspace.
func TestExecHostCallPeepholeSkipsStringRoundTripOnMixedKind(t *testing.T) {
	e, _, nsService, _ := newTestEngine()
	nsService.AddHostFunction("", "intVal", &namespace.Entry{
		Kind: namespace.KindHostInt, MinArgs: 0, MaxArgs: 0,
		IntFn: func(this interface{}, argv []string) int64 { return 7 },
	})
	nsService.AddHostFunction("", "floatVal", &namespace.Entry{
		Kind: namespace.KindHostFloat, MinArgs: 0, MaxArgs: 0,
		FloatFn: func(this interface{}, argv []string) float64 { return 9 },
	})
	intEntry := nsService.Find("").Lookup("intVal")
	floatEntry := nsService.Find("").Lookup("floatVal")
	require.NotNil(t, intEntry)
	require.NotNil(t, floatEntry)

	cb := bytecode.New("t", "", nil)
	intIdx := cb.AddResolvedCall(intEntry)
	floatIdx := cb.AddResolvedCall(floatEntry)
	cb.Code = []uint32{
		uint32(bytecode.OpPushFrame),
		uint32(bytecode.OpCallFunc), intIdx, 0, bytecode.CallPlain,
		uint32(bytecode.OpStrToFlt),
		uint32(bytecode.OpPushFrame),
		uint32(bytecode.OpCallFunc), floatIdx, 0, bytecode.CallPlain,
		uint32(bytecode.OpStrToUint),
		uint32(bytecode.OpReturn),
	}

	e.Exec(cb, 0, Options{SetFrame: -1})
	require.Equal(t, uint32(9), e.Ints.Pop(), "float host result coerced to uint")
	require.InDelta(t, 7.0, e.Floats.Pop(), 0, "int host result coerced to float")
}

func TestExecCallMethodDispatchesOnReceiver(t *testing.T) {
	e, idents, nsService, objects := newTestEngine()
	ns := nsService.Find("Player")
	nsService.AddHostFunction("Player", "greet", &namespace.Entry{
		Kind: namespace.KindHostString, MinArgs: 0, MaxArgs: -1,
		StringFn: func(this interface{}, argv []string) string {
			obj := this.(*simobject.Object)
			return "hello-" + obj.Name
		},
	})
	obj := objects.CreateObject("Player")
	obj.Namespace = ns
	require.NoError(t, objects.Register(obj, "bob"))

	hGreet := idents.Intern("greet")
	cb := bytecode.New("t", "", []uint32{
		uint32(bytecode.OpPushFrame),
		uint32(bytecode.OpLoadImmedStr), 0,
		uint32(bytecode.OpCallFunc), uint32(hGreet), 0, bytecode.CallMethod,
		uint32(bytecode.OpReturn),
	})
	cb.GlobalStrings = []byte("bob\x00")

	result := e.Exec(cb, 0, Options{SetFrame: -1})
	require.Equal(t, "hello-bob", result)
}

func TestExecCallParentWalksNamespaceChain(t *testing.T) {
	e, idents, nsService, _ := newTestEngine()
	base := nsService.Find("Base")
	child := nsService.Find("Child")
	child.Parent = base
	nsService.AddHostFunction("Base", "speak", &namespace.Entry{
		Kind: namespace.KindHostString, MinArgs: 0, MaxArgs: 0,
		StringFn: func(this interface{}, argv []string) string { return "parent-hi" },
	})

	hSpeak := idents.Intern("speak")
	cb := bytecode.New("t", "", []uint32{
		uint32(bytecode.OpPushFrame),
		uint32(bytecode.OpCallFunc), uint32(hSpeak), 0, bytecode.CallParent,
		uint32(bytecode.OpReturn),
	})

	result := e.Exec(cb, 0, Options{SetFrame: -1, Namespace: "Child"})
	require.Equal(t, "parent-hi", result)
}

func TestExecNoCallsSkipsSideEffectsButStaysBalanced(t *testing.T) {
	e, _, _, objects := newTestEngine()
	before := len(objects.Root.Children)

	cb := bytecode.New("t", "", []uint32{
		uint32(bytecode.OpPushFrame),
		uint32(bytecode.OpLoadImmedStr), 0,
		uint32(bytecode.OpCreateObject), 0, 0, 99,
		uint32(bytecode.OpReturn),
	})
	cb.GlobalStrings = []byte("_\x00")

	result := e.Exec(cb, 0, Options{SetFrame: -1, NoCalls: true})
	require.Equal(t, "", result)
	require.Equal(t, before, len(objects.Root.Children), "NoCalls must not register any object")
}

func TestExecInvalidOpcodeIsRecoveredNotFatal(t *testing.T) {
	e, _, _, _ := newTestEngine()
	cb := bytecode.New("t", "", []uint32{
		uint32(bytecode.OpInvalid) + 100,
	})

	require.NotPanics(t, func() {
		result := e.Exec(cb, 0, Options{SetFrame: -1})
		require.Equal(t, "", result)
	})
}
