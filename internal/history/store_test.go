package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forged/internal/sink"
	"forged/pkg/types"
)

func snapAt(i int) types.SystemSnapshot {
	return types.SystemSnapshot{
		CPUUtilizationPct: float64(i),
		RAMTotalMB:        16000,
		Devices:           []types.DeviceSnapshot{{DeviceID: 0, Name: "gpu", Available: true, MemoryUsedMB: uint64(i)}},
		CapturedAt:        time.Unix(1700000000+int64(i), 0).UTC(),
	}
}

func TestStore_RecordAndRecent(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, ":memory:", 5)
	require.NoError(t, err)
	defer s.Close()

	for i := 0; i < 8; i++ {
		require.NoError(t, s.Record(ctx, snapAt(i)))
	}
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	got, err := s.Recent(ctx, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 5.0, got[0].CPUUtilizationPct)
	assert.Equal(t, 7.0, got[2].CPUUtilizationPct)
	assert.True(t, snapAt(7).CapturedAt.Equal(got[2].CapturedAt))
	assert.Equal(t, snapAt(7).Devices, got[2].Devices)

	all, err := s.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestStore_Empty(t *testing.T) {
	s, err := Open(context.Background(), ":memory:", 0)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_FileSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(ctx, path, 10)
	require.NoError(t, err)
	require.NoError(t, s.Record(ctx, snapAt(1)))
	require.NoError(t, s.Close())

	s, err = Open(ctx, path, 10)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1.0, got[0].CPUUtilizationPct)
}

func TestStore_Subscriber(t *testing.T) {
	s, err := Open(context.Background(), ":memory:", 10)
	require.NoError(t, err)
	mem := sink.NewMemory()
	record := s.Subscriber(mem)
	record(snapAt(1))
	n, _ := s.Count(context.Background())
	assert.Equal(t, 1, n)

	require.NoError(t, s.Close())
	record(snapAt(2))
	assert.Equal(t, 1, mem.Count(sink.LevelWarn))
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open(context.Background(), "", 1)
	assert.Error(t, err)
}
