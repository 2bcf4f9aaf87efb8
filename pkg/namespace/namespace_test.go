package namespace

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddFunctionAndLookupBase(t *testing.T) {
	svc := NewService()
	ns := svc.Find("A")
	ns.AddFunction("greet", nil, 10, "")

	e := ns.Lookup("greet")
	require.NotNil(t, e)
	require.Equal(t, KindScript, e.Kind)
	require.EqualValues(t, 10, e.Offset)
}

func TestPackageOverlayShadowsBaseOnlyWhenLinked(t *testing.T) {
	svc := NewService()
	ns := svc.Find("A")
	ns.AddFunction("greet", nil, 1, "")
	ns.AddFunction("greet", nil, 2, "Patch")

	require.EqualValues(t, 1, ns.Lookup("greet").Offset, "unlinked package must not shadow base")

	svc.ActivatePackage("Patch")
	require.EqualValues(t, 2, ns.Lookup("greet").Offset, "linked package must shadow base")

	svc.DeactivatePackage("Patch")
	require.EqualValues(t, 1, ns.Lookup("greet").Offset)
}

func TestUnlinkRelinkBracketRestoresView(t *testing.T) {
	svc := NewService()
	ns := svc.Find("A")
	ns.AddFunction("greet", nil, 1, "")
	ns.AddFunction("greet", nil, 2, "Patch")
	svc.ActivatePackage("Patch")

	saved := svc.UnlinkPackages()
	require.EqualValues(t, 1, ns.Lookup("greet").Offset, "unlinked view sees only base")
	svc.RelinkPackages(saved)
	require.EqualValues(t, 2, ns.Lookup("greet").Offset, "relink restores prior view")
}

func TestLookupMissReturnsNil(t *testing.T) {
	svc := NewService()
	ns := svc.Find("A")
	require.Nil(t, ns.Lookup("nope"))
}

func TestParentChain(t *testing.T) {
	svc := NewService()
	base := svc.Find("Base")
	base.AddFunction("greet", nil, 5, "")
	child := svc.Find("Child")
	child.Parent = base

	require.Nil(t, child.Lookup("greet"))
	require.NotNil(t, child.Parent.Lookup("greet"))
}

func TestAddHostFunction(t *testing.T) {
	svc := NewService()
	called := false
	svc.AddHostFunction("", "echo", &Entry{
		Kind: KindHostString, MinArgs: 1, MaxArgs: 1,
		StringFn: func(this interface{}, argv []string) string {
			called = true
			return argv[0]
		},
	})
	e := svc.Find("").Lookup("echo")
	require.NotNil(t, e)
	require.Equal(t, "x", e.StringFn(nil, []string{"x"}))
	require.True(t, called)
}
