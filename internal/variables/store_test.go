package variables

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestMemoryStore(t *testing.T) {
	s := NewStore(zaptest.NewLogger(t))

	_, ok := s.Get("fast_net_firmware")
	assert.False(t, ok)

	s.SetMachineVar("fast_net_firmware", "2.11")
	s.SetMachineVar("fast_exp_model", "FP-EXP-0071")
	s.SetMachineVar("fast_net_firmware", "2.12")

	v, ok := s.Get("fast_net_firmware")
	require.True(t, ok)
	assert.Equal(t, "2.12", v)

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, "fast_exp_model", list[0].Name)
	assert.Equal(t, "fast_net_firmware", list[1].Name)
	assert.False(t, list[1].UpdatedAt.IsZero())

	assert.NoError(t, s.Close())
}

func TestStoreListeners(t *testing.T) {
	s := NewStore(zaptest.NewLogger(t))

	var mu sync.Mutex
	var seen []string
	s.OnChange(func(name, value string) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, name+"="+value)
	})

	s.SetMachineVar("fast_exp_firmware", "0.8")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"fast_exp_firmware=0.8"}, seen)
}

func TestPersistentStoreReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "variables.db")

	s, err := OpenStore(path, zaptest.NewLogger(t))
	require.NoError(t, err)
	s.SetMachineVar("fast_net_firmware", "2.11")
	s.SetMachineVar("fast_net_model", "FP-CPU-2000")
	s.SetMachineVar("fast_net_firmware", "2.12")
	require.NoError(t, s.Close())

	reopened, err := OpenStore(path, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer reopened.Close()

	v, ok := reopened.Get("fast_net_firmware")
	require.True(t, ok)
	assert.Equal(t, "2.12", v)
	assert.Len(t, reopened.List(), 2)
}

func TestCloseTwice(t *testing.T) {
	s, err := OpenStore(filepath.Join(t.TempDir(), "variables.db"), zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}
