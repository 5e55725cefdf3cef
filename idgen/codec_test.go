package idgen

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEpoch(t *testing.T) {
	assert.Equal(t, time.Date(2025, 3, 8, 0, 0, 0, 0, time.UTC), Epoch)
	assert.Equal(t, int64(1741392000000), Epoch.UnixMilli())
}

func TestLayoutShifts(t *testing.T) {
	l := DefaultConfig().Layout()
	assert.Equal(t, uint8(20), l.TimestampShift())
	assert.Equal(t, uint8(12), l.WorkerShift())
	assert.Equal(t, uint64(0xfff), l.SequenceMask())
	assert.Equal(t, uint64(0xff), l.WorkerMask())
}

func TestEncodeDecode(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		ts       int64
		workerID uint64
		seq      uint64
	}{
		{name: "zero", cfg: DefaultConfig(), ts: 0, workerID: 0, seq: 0},
		{name: "worker 69", cfg: DefaultConfig(), ts: 1000, workerID: 69, seq: 7},
		{name: "all fields max", cfg: DefaultConfig(), ts: int64(TimestampMask), workerID: 255, seq: 4095},
		{name: "narrow layout", cfg: Config{WorkerIDBits: 1, SequenceBits: 1}, ts: 123456789, workerID: 1, seq: 1},
		{name: "widest layout", cfg: Config{WorkerIDBits: 10, SequenceBits: 12}, ts: 42, workerID: 1023, seq: 4095},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := Encode(tt.ts, tt.workerID, tt.seq, tt.cfg)
			assert.Zero(t, id>>63, "sign bit stays clear")

			c := Decode(id, tt.cfg)
			assert.Equal(t, id, c.ID)
			assert.Equal(t, tt.ts, c.TimestampMs)
			assert.Equal(t, tt.workerID, c.WorkerID)
			assert.Equal(t, tt.seq, c.Sequence)
		})
	}
}

func TestEncodeOrdersByTimestampFirst(t *testing.T) {
	l := DefaultConfig().Layout()
	assert.Greater(t, l.Encode(2, 0, 0), l.Encode(1, 255, 4095))
	assert.Greater(t, l.Encode(1, 0, 1), l.Encode(1, 0, 0))
}

func TestEncodePanicsOnOverflow(t *testing.T) {
	l := DefaultConfig().Layout()
	assert.Panics(t, func() { l.Encode(-1, 0, 0) })
	assert.Panics(t, func() { l.Encode(int64(TimestampMask)+1, 0, 0) })
	assert.Panics(t, func() { l.Encode(0, 256, 0) })
	assert.Panics(t, func() { l.Encode(0, 0, 4096) })
}

func TestComponentsTime(t *testing.T) {
	c := Components{TimestampMs: 86_400_000}
	require.Equal(t, time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC), c.Time())
}
