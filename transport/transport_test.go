package transport

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeModem struct {
	dtr, rts []bool
}

func (m *fakeModem) SetDTR(level bool) error {
	m.dtr = append(m.dtr, level)
	return nil
}

func (m *fakeModem) SetRTS(level bool) error {
	m.rts = append(m.rts, level)
	return nil
}

type fakeBreak struct {
	states []bool
	closed bool
}

func (b *fakeBreak) SetBreak(on bool) error {
	b.states = append(b.states, on)
	return nil
}

func (b *fakeBreak) Close() error {
	b.closed = true
	return nil
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		mode int
		want Wiring
	}{
		{1, Wiring{}},
		{2, Wiring{TwoWire: true}},
		{3, Wiring{ResetOnRTS: true}},
		{4, Wiring{ResetOnRTS: true, TwoWire: true}},
	}
	for _, tt := range tests {
		w, err := ParseMode(tt.mode)
		require.NoError(t, err)
		assert.Equal(t, tt.want, w, "mode %d", tt.mode)
	}

	_, err := ParseMode(0)
	assert.Error(t, err)
	_, err = ParseMode(5)
	assert.Error(t, err)
}

func TestParseG10Mode(t *testing.T) {
	w, err := ParseG10Mode(1)
	require.NoError(t, err)
	assert.Equal(t, Wiring{ToolOnBreak: true}, w)
	assert.True(t, w.Echoes())

	w, err = ParseG10Mode(2)
	require.NoError(t, err)
	assert.Equal(t, Wiring{ResetOnRTS: true, ToolOnBreak: true}, w)

	_, err = ParseG10Mode(3)
	assert.Error(t, err)
}

func TestSetLineDTRReset(t *testing.T) {
	m := &fakeModem{}
	w := Wiring{}

	require.NoError(t, setLine(m, nil, w, LineReset, false))
	require.NoError(t, setLine(m, nil, w, LineClock, true))

	// low pin level asserts the active-low output
	assert.Equal(t, []bool{true}, m.dtr)
	assert.Equal(t, []bool{false}, m.rts)
}

func TestSetLineRTSReset(t *testing.T) {
	m := &fakeModem{}
	w := Wiring{ResetOnRTS: true}

	require.NoError(t, setLine(m, nil, w, LineReset, true))
	require.NoError(t, setLine(m, nil, w, LineClock, false))

	assert.Equal(t, []bool{false}, m.rts)
	assert.Equal(t, []bool{true}, m.dtr)
}

func TestSetLineToolOnBreak(t *testing.T) {
	m := &fakeModem{}
	brk := &fakeBreak{}
	w := Wiring{ToolOnBreak: true}

	require.NoError(t, setLine(m, brk, w, LineReset, false))
	require.NoError(t, setLine(m, brk, w, LineClock, false))
	require.NoError(t, setLine(m, brk, w, LineReset, true))
	require.NoError(t, setLine(m, brk, w, LineClock, true))

	// TOOL0 low is a break on TxD, RESET stays on DTR
	assert.Equal(t, []bool{true, false}, brk.states)
	assert.Equal(t, []bool{true, false}, m.dtr)
	assert.Empty(t, m.rts)
}

func TestSetLineToolOnBreakRTSReset(t *testing.T) {
	m := &fakeModem{}
	brk := &fakeBreak{}
	w, err := ParseG10Mode(2)
	require.NoError(t, err)

	require.NoError(t, setLine(m, brk, w, LineReset, false))
	require.NoError(t, setLine(m, brk, w, LineClock, false))

	assert.Equal(t, []bool{true}, m.rts)
	assert.Equal(t, []bool{true}, brk.states)
	assert.Empty(t, m.dtr)
}

func TestSetLineWithoutBreakControl(t *testing.T) {
	err := setLine(&fakeModem{}, nil, Wiring{ToolOnBreak: true}, LineClock, false)
	assert.True(t, errors.Is(err, ErrBreakUnsupported))
}

func TestOpenBreakLineOnlyWhenWired(t *testing.T) {
	brk, err := openBreakLine("/dev/does-not-exist", Wiring{})
	require.NoError(t, err)
	assert.Nil(t, brk)
}

func TestCloseBreakLineReleasesTxD(t *testing.T) {
	brk := &fakeBreak{}
	require.NoError(t, closeBreakLine(brk))
	assert.Equal(t, []bool{false}, brk.states)
	assert.True(t, brk.closed)

	assert.NoError(t, closeBreakLine(nil))
}

type chunkWriter struct {
	buf   bytes.Buffer
	chunk int
	fail  bool
}

func (w *chunkWriter) Write(p []byte) (int, error) {
	if w.fail {
		return 0, nil
	}
	if len(p) > w.chunk {
		p = p[:w.chunk]
	}
	return w.buf.Write(p)
}

func TestWriteFullRetriesShortWrites(t *testing.T) {
	w := &chunkWriter{chunk: 3}
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8}

	n, err := writeFull(w, data)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	assert.Equal(t, data, w.buf.Bytes())
}

func TestWriteFullStalledWriter(t *testing.T) {
	w := &chunkWriter{fail: true}
	_, err := writeFull(w, []byte{1})
	assert.Error(t, err)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open("/dev/null", Config{Driver: "parallel"})
	assert.True(t, errors.Is(err, ErrUnknownDriver))
}
