package procinfo

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInspector struct {
	name    string
	nameErr error
	cwd     string
	cwdOK   bool
}

func (f fakeInspector) Name(context.Context, int) (string, error) { return f.name, f.nameErr }
func (f fakeInspector) Cwd(context.Context, int) (string, bool)   { return f.cwd, f.cwdOK }

func TestLookup(t *testing.T) {
	ctx := context.Background()

	info, ok := Lookup(ctx, fakeInspector{name: "vim", cwd: "/src", cwdOK: true}, 42)
	require.True(t, ok)
	assert.Equal(t, Info{Name: "vim", Cwd: "/src"}, info)

	info, ok = Lookup(ctx, fakeInspector{name: "zsh"}, 42)
	require.True(t, ok)
	assert.Equal(t, HomeDir, info.Cwd, "missing cwd falls back to ~")

	_, ok = Lookup(ctx, fakeInspector{nameErr: errors.New("gone")}, 42)
	assert.False(t, ok)

	_, ok = Lookup(ctx, fakeInspector{name: "x"}, 0)
	assert.False(t, ok)

	_, ok = Lookup(ctx, nil, 42)
	assert.False(t, ok)
}

func TestSystemInspectsSelf(t *testing.T) {
	if runtime.GOOS != "linux" && runtime.GOOS != "darwin" {
		t.Skip("process table lookups only verified on linux and darwin")
	}
	sys := NewSystem()
	ctx := context.Background()

	name, err := sys.Name(ctx, os.Getpid())
	require.NoError(t, err)
	assert.NotEmpty(t, name)

	wd, err := os.Getwd()
	require.NoError(t, err)
	wd, err = filepath.EvalSymlinks(wd)
	require.NoError(t, err)

	cwd, ok := sys.Cwd(ctx, os.Getpid())
	require.True(t, ok)
	cwd, err = filepath.EvalSymlinks(cwd)
	require.NoError(t, err)
	assert.Equal(t, wd, cwd)
}
