package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvn-dco/stripvm/host"
	"github.com/dvn-dco/stripvm/vm"
)

func TestAssembleFileEndToEnd(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "prog.s")
	require.NoError(t, os.WriteFile(src, []byte("addi s0, zero, 1\nhalt\n"), 0o644))

	image, err := assembleFile(src)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAF, 0xAF, 0x00, 0x00}, image[:4])
}

func TestAssembleFileSurfacesParseErrors(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "bad.s")
	require.NoError(t, os.WriteFile(src, []byte("frobnicate s0\n"), 0o644))

	_, err := assembleFile(src)
	assert.Error(t, err)
}

func TestLoadConfigFallsBackToDefaultsWithoutAPath(t *testing.T) {
	cfg, err := loadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Spins)
}

func TestLoadConfigHonorsExplicitPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stripvm.toml")
	require.NoError(t, os.WriteFile(path, []byte("spins = 3\n"), 0o644))

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Spins)
}

func TestCompileCommandWritesImageFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "prog.s")
	out := filepath.Join(dir, "prog.bin")
	require.NoError(t, os.WriteFile(src, []byte("halt\n"), 0o644))

	root := newRootCmd()
	root.SetArgs([]string{"compile", src, out})
	require.NoError(t, root.Execute())

	contents, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAF, 0xAF, 0x00, 0x00}, contents[:4])
}

func TestEndToEndLoadImmediateArithmeticScenario(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "prog.s")
	require.NoError(t, os.WriteFile(src, []byte(
		"li s0, 1\nadd s1, s0, s0\naddi s2, s1, 1\nhalt\n",
	), 0o644))

	image, err := assembleFile(src)
	require.NoError(t, err)

	v := vm.New(host.NewRAM(64))
	require.NoError(t, v.Load(image))
	require.NoError(t, v.Spin())

	assert.Equal(t, int32(1), v.Reg(2)) // s0
	assert.Equal(t, int32(2), v.Reg(3)) // s1
	assert.Equal(t, int32(3), v.Reg(4)) // s2
}

func TestEndToEndLoadImmediateFromConstant(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "prog.s")
	require.NoError(t, os.WriteFile(src, []byte(
		".equ FOO, 42\nli s0, FOO\nhalt\n",
	), 0o644))

	image, err := assembleFile(src)
	require.NoError(t, err)

	v := vm.New(host.NewRAM(64))
	require.NoError(t, v.Load(image))
	require.NoError(t, v.Spin())

	assert.Equal(t, int32(42), v.Reg(2)) // s0
}

func TestTraceCommandRunsToCompletion(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "prog.s")
	require.NoError(t, os.WriteFile(src, []byte("addi s0, zero, 1\nhalt\n"), 0o644))

	root := newRootCmd()
	root.SetArgs([]string{"trace", src, "--spins", "1"})
	assert.NoError(t, root.Execute())
}
