package amd64

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/twitchyliquid64/golang-asm/obj/x86"

	"github.com/tetratelabs/regalloc"
)

func TestUniverse(t *testing.T) {
	u := Universe()
	require.NoError(t, u.CheckSanity())

	gpr := u.AllocableByClass[regalloc.RegClassI64]
	require.NotNil(t, gpr)
	require.Equal(t, 13, gpr.Last-gpr.First+1)
	require.Equal(t, "R11", u.Regs[gpr.SuggestedScratch].Name)

	xmm := u.AllocableByClass[regalloc.RegClassV128]
	require.NotNil(t, xmm)
	require.Equal(t, 16, xmm.Last-xmm.First+1)
	require.Equal(t, "X15", u.Regs[xmm.SuggestedScratch].Name)

	// The stack and frame pointers are known but never allocatable.
	require.Equal(t, u.Allocable+2, len(u.Regs))
	require.Equal(t, "SP", u.Regs[u.Allocable].Name)
	require.Equal(t, "BP", u.Regs[u.Allocable+1].Name)
}

func TestGPRLookup(t *testing.T) {
	u := Universe()
	rax := GPR(u, x86.REG_AX)
	require.Equal(t, "AX", u.RegName(rax))
	require.Equal(t, regalloc.RegClassI64, rax.Class())

	x0 := XMM(u, x86.REG_X0)
	require.Equal(t, regalloc.RegClassV128, x0.Class())
}
