package rl78bsl

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/janch32/rl78flash/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// identify reads the signature and clears the simulator log.
func identify(t *testing.T, d *simDevice, opts ...Option) *Instance {
	b := newTestInstance(d, opts...)
	_, err := b.CmdSiliconSignature()
	require.NoError(t, err)
	d.clearLog()
	return b
}

func TestProgramSkipsBlankAndErasesDirty(t *testing.T) {
	d := newSimDevice(t, "R5F100LE", 0x800, 0)
	d.code[0x600] = 0x00
	b := identify(t, d)

	img := b.Device().NewImage()
	for i := 0x400; i < 0x800; i++ {
		img.Code.Data[i] = byte(i)
	}

	require.NoError(t, b.Program(context.Background(), img))

	assert.Equal(t, []simCmd{
		{Op: CmdBlockBlankCheck, Start: 0x400, End: 0x7FF},
		{Op: CmdBlockErase, Start: 0x400},
		{Op: CmdProgramming, Start: 0x400, End: 0x7FF},
	}, d.cmds)
	assert.Equal(t, []simFrame{
		{Len: 256}, {Len: 256}, {Len: 256}, {Len: 256, Last: true},
	}, d.frames)
	assert.Equal(t, []time.Duration{3 * time.Millisecond}, d.sleeps)
	assert.Equal(t, img.Code.Data, d.code)
}

func TestProgramBlankBlockNeedsNoErase(t *testing.T) {
	d := newSimDevice(t, "R5F100LE", 0x800, 0)
	b := identify(t, d)

	img := b.Device().NewImage()
	img.Code.Data[0] = 0x12

	require.NoError(t, b.Program(context.Background(), img))
	assert.Equal(t, []simCmd{
		{Op: CmdBlockBlankCheck, Start: 0, End: 0x3FF},
		{Op: CmdProgramming, Start: 0, End: 0x3FF},
	}, d.cmds)
}

func TestProgramAllErasedImageIsNoop(t *testing.T) {
	d := newSimDevice(t, "R5F100LE", 0x2000, 0x400)
	d.code[0x10] = 0x00
	b := identify(t, d)

	var progress []Progress
	b.cfg.progress = func(p Progress) { progress = append(progress, p) }

	require.NoError(t, b.Program(context.Background(), b.Device().NewImage()))

	assert.Empty(t, d.cmds)
	assert.Empty(t, d.frames)
	require.Len(t, progress, 9)
	for _, p := range progress {
		assert.True(t, p.Skipped)
		assert.Equal(t, OpProgram, p.Op)
		assert.Equal(t, 9, p.Blocks)
	}
	assert.Equal(t, uint32(DataFlashAddress), progress[8].Address)
}

func TestProgramIgnoresPartialTrailingBlock(t *testing.T) {
	d := newSimDevice(t, "R5F100LE", 0x1000, 0)
	b := identify(t, d)

	img := memory.NewImage(CodeFlashAddress, 3*1024+100, DataFlashAddress, 0)
	for i := range img.Code.Data {
		img.Code.Data[i] = 0x00
	}

	require.NoError(t, b.Program(context.Background(), img))

	var programmed []uint32
	for _, c := range d.cmds {
		if c.Op == CmdProgramming {
			programmed = append(programmed, c.Start)
		}
	}
	assert.Equal(t, []uint32{0x000, 0x400, 0x800}, programmed)
	assert.Equal(t, bytes.Repeat([]byte{0xFF}, 0x400), d.code[0xC00:0x1000])
}

func TestProgramProgramsDataFlash(t *testing.T) {
	d := newSimDevice(t, "R5F100LE", 0x400, 0x400)
	b := identify(t, d)

	img := b.Device().NewImage()
	img.Data.Data[3] = 0x42

	require.NoError(t, b.Program(context.Background(), img))
	assert.Equal(t, []simCmd{
		{Op: CmdBlockBlankCheck, Start: DataFlashAddress, End: DataFlashAddress + 0x3FF},
		{Op: CmdProgramming, Start: DataFlashAddress, End: DataFlashAddress + 0x3FF},
	}, d.cmds)
	assert.Equal(t, byte(0x42), d.data[3])
}

func TestProgramFailureStopsAtBlock(t *testing.T) {
	d := newSimDevice(t, "R5F100LE", 0xC00, 0)
	d.failWriteAt = 0x500
	b := identify(t, d)

	img := b.Device().NewImage()
	for i := range img.Code.Data {
		img.Code.Data[i] = 0x55
	}

	err := b.Program(context.Background(), img)

	var progErr *ProgramError
	require.True(t, errors.As(err, &progErr))
	assert.Equal(t, uint32(0x400), progErr.Address)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, StatusWriteError, statusErr.Status)

	// block 0x800 never touched
	for _, c := range d.cmds {
		assert.Less(t, c.Start, uint32(0x800))
	}
}

func TestProgramCancelled(t *testing.T) {
	d := newSimDevice(t, "R5F100LE", 0x800, 0)
	b := identify(t, d)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	img := b.Device().NewImage()
	img.Code.Data[0] = 0
	err := b.Program(ctx, img)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, d.cmds)
}

func TestBlockOperationsNeedIdentity(t *testing.T) {
	d := newSimDevice(t, "R5F100LE", 0x800, 0)
	b := newTestInstance(d)

	assert.True(t, errors.Is(b.Erase(context.Background()), ErrNoDevice))
	assert.True(t, errors.Is(b.Program(context.Background(), memory.NewImage(0, 0x400, DataFlashAddress, 0)), ErrNoDevice))
}

func TestErase(t *testing.T) {
	d := newSimDevice(t, "R5F100LE", 0x1000, 0x400)
	d.code[0x000] = 0x00
	d.code[0x9FF] = 0x00
	b := identify(t, d)

	var progress []Progress
	b.cfg.progress = func(p Progress) { progress = append(progress, p) }

	require.NoError(t, b.Erase(context.Background()))

	assert.Equal(t, []simCmd{
		{Op: CmdBlockBlankCheck, Start: 0x000, End: 0x3FF},
		{Op: CmdBlockErase, Start: 0x000},
		{Op: CmdBlockBlankCheck, Start: 0x400, End: 0x7FF},
		{Op: CmdBlockBlankCheck, Start: 0x800, End: 0xBFF},
		{Op: CmdBlockErase, Start: 0x800},
		{Op: CmdBlockBlankCheck, Start: 0xC00, End: 0xFFF},
		{Op: CmdBlockBlankCheck, Start: DataFlashAddress, End: DataFlashAddress + 0x3FF},
	}, d.cmds)
	assert.Equal(t, bytes.Repeat([]byte{0xFF}, 0x1000), d.code)

	var skipped []bool
	for _, p := range progress {
		skipped = append(skipped, p.Skipped)
	}
	assert.Equal(t, []bool{false, true, false, true, true}, skipped)
	assert.Equal(t, 5, progress[4].Block)
}

func TestEraseBlankCheckFailure(t *testing.T) {
	d := newSimDevice(t, "R5F100LE", 0x800, 0)
	b := identify(t, d)
	d.blankStatus = StatusParameterError

	err := b.Erase(context.Background())

	var blockErr *BlockError
	require.True(t, errors.As(err, &blockErr))
	assert.Equal(t, uint32(0), blockErr.Address)
	assert.Len(t, d.cmds, 1)
}

func TestVerify(t *testing.T) {
	d := newSimDevice(t, "R5F100LE", 0x800, 0)
	b := identify(t, d)

	img := b.Device().NewImage()
	for i := 0; i < 0x400; i++ {
		img.Code.Data[i] = byte(i * 7)
	}
	copy(d.code, img.Code.Data)

	require.NoError(t, b.Verify(context.Background(), img))
	assert.Equal(t, []simCmd{
		{Op: CmdVerify, Start: 0x000, End: 0x3FF},
		{Op: CmdBlockBlankCheck, Start: 0x400, End: 0x7FF},
	}, d.cmds)
}

func TestVerifyMismatch(t *testing.T) {
	d := newSimDevice(t, "R5F100LE", 0x800, 0)
	b := identify(t, d)

	img := b.Device().NewImage()
	for i := 0; i < 0x800; i++ {
		img.Code.Data[i] = 0x77
	}
	copy(d.code, img.Code.Data)
	d.code[0x6FF] = 0x00

	err := b.Verify(context.Background(), img)

	var mismatch *MismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, uint32(0x400), mismatch.Address)
}

func TestVerifyErasedBlockMustBeBlank(t *testing.T) {
	d := newSimDevice(t, "R5F100LE", 0x800, 0)
	d.code[0x7FF] = 0x00
	b := identify(t, d)

	err := b.Verify(context.Background(), b.Device().NewImage())

	var mismatch *MismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, uint32(0x400), mismatch.Address)
	assert.Nil(t, mismatch.Err)
}

func TestVerifyTimeoutIsNotMismatch(t *testing.T) {
	d := newSimDevice(t, "R5F100LE", 0x800, 0)
	b := identify(t, d, WithResponseTimeout(20*time.Millisecond))
	d.silent[CmdVerify] = true

	img := b.Device().NewImage()
	img.Code.Data[0] = 0

	err := b.Verify(context.Background(), img)

	var mismatch *MismatchError
	assert.False(t, errors.As(err, &mismatch))
	assert.True(t, errors.Is(err, ErrTimeout))
}

func TestVerifyRejectedFrameIsMismatch(t *testing.T) {
	d := newSimDevice(t, "R5F100LE", 0x800, 0)
	b := identify(t, d)
	d.frameStatus = StatusVerifyError

	img := b.Device().NewImage()
	img.Code.Data[0x10] = 0x00

	err := b.Verify(context.Background(), img)

	var mismatch *MismatchError
	require.True(t, errors.As(err, &mismatch), "got %v", err)
	assert.Equal(t, uint32(0), mismatch.Address)
}

func TestVerifyRejectedCommandIsNotMismatch(t *testing.T) {
	d := newSimDevice(t, "R5F100LE", 0x800, 0)
	b := identify(t, d)
	d.status[CmdVerify] = StatusParameterError

	img := b.Device().NewImage()
	img.Code.Data[0x10] = 0x00

	err := b.Verify(context.Background(), img)

	var mismatch *MismatchError
	assert.False(t, errors.As(err, &mismatch))

	var blockErr *BlockError
	require.True(t, errors.As(err, &blockErr), "got %v", err)
	assert.Equal(t, "verify", blockErr.Op)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, StatusParameterError, statusErr.Status)
}
