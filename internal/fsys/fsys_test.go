package fsys

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFaultFs_PassesThroughWithoutFaults(t *testing.T) {
	fs := NewFaultFs(afero.NewMemMapFs())

	require.NoError(t, afero.WriteFile(fs, "/f.txt", []byte("content"), 0644))

	data, err := afero.ReadFile(fs, "/f.txt")
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))
}

func TestFaultFs_InjectsErrors(t *testing.T) {
	fs := NewFaultFs(afero.NewMemMapFs())
	require.NoError(t, afero.WriteFile(fs, "/f.txt", []byte("content"), 0644))

	boom := errors.New("injected fault")
	fs.SetFault(func(op, name string) error {
		if op == "open" && strings.HasSuffix(name, "f.txt") {
			return boom
		}
		return nil
	})

	_, err := fs.Open("/f.txt")
	assert.ErrorIs(t, err, boom)

	// Other operations still pass
	_, err = fs.Stat("/f.txt")
	assert.NoError(t, err)

	// Clearing the fault restores normal behavior
	fs.SetFault(nil)
	_, err = fs.Open("/f.txt")
	assert.NoError(t, err)
}

func TestFaultFs_CoversMutatingOps(t *testing.T) {
	fs := NewFaultFs(afero.NewMemMapFs())
	require.NoError(t, afero.WriteFile(fs, "/f.txt", []byte("content"), 0644))

	boom := errors.New("injected fault")
	fs.SetFault(func(op, name string) error { return boom })

	_, err := fs.Create("/new.txt")
	assert.ErrorIs(t, err, boom, "create should fault")

	_, err = fs.OpenFile("/f.txt", os.O_RDONLY, 0)
	assert.ErrorIs(t, err, boom, "openfile should fault")

	assert.ErrorIs(t, fs.Remove("/f.txt"), boom, "remove should fault")
	assert.ErrorIs(t, fs.Rename("/f.txt", "/g.txt"), boom, "rename should fault")

	_, err = fs.Stat("/f.txt")
	assert.ErrorIs(t, err, boom, "stat should fault")
}
