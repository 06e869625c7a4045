package rl78bsl

import (
	"context"
	"errors"
	"fmt"

	"github.com/janch32/rl78flash/memory"
)

// NewImage - Allocates erased code and data flash buffers sized for the
// device
func (d *DeviceInfo) NewImage() *memory.Image {
	return memory.NewImage(CodeFlashAddress, d.CodeSize, DataFlashAddress, d.DataSize)
}

// span - flash area processed block by block. data is nil for erase.
type span struct {
	address   uint32
	size      uint32
	blockSize uint32
	data      []byte
}

// blocks returns the number of whole blocks. A partial trailing block is
// never processed.
func (s span) blocks() int {
	if s.blockSize == 0 {
		return 0
	}
	return int(s.size &^ (s.blockSize - 1) / s.blockSize)
}

func (s span) block(i int) memory.Region {
	offset := uint32(i) * s.blockSize
	if s.data == nil {
		return memory.Region{Address: s.address + offset}
	}
	return memory.Region{Address: s.address, Data: s.data}.Block(offset, s.blockSize)
}

// blockFunc processes one block and reports whether it was left untouched.
type blockFunc func(block memory.Region, size uint32) (skipped bool, err error)

func (b *Instance) spans(img *memory.Image) ([]span, error) {
	if b.device == nil {
		return nil, ErrNoDevice
	}

	code := span{address: CodeFlashAddress, size: b.device.CodeSize, blockSize: b.device.CodeBlockSize}
	data := span{address: DataFlashAddress, size: b.device.DataSize, blockSize: b.device.DataBlockSize}

	if img != nil {
		code.address, code.size, code.data = img.Code.Address, img.Code.Size(), img.Code.Data
		data.address, data.size, data.data = img.Data.Address, img.Data.Size(), img.Data.Data
	}

	return []span{code, data}, nil
}

// forEachBlock runs fn on every whole block of the spans in ascending order
// and stops at the first error. Cancellation is checked between blocks.
func (b *Instance) forEachBlock(ctx context.Context, op string, spans []span, fn blockFunc) error {
	total := 0
	for _, s := range spans {
		total += s.blocks()
	}

	done := 0
	for _, s := range spans {
		if s.size == 0 {
			continue
		}
		if n := s.blocks(); uint32(n)*s.blockSize != s.size {
			b.log.Warn("region is not a whole number of blocks, tail ignored",
				"address", fmt.Sprintf("0x%06X", s.address),
				"size", s.size,
				"block_size", s.blockSize,
			)
		}

		for i := 0; i < s.blocks(); i++ {
			if err := ctx.Err(); err != nil {
				return err
			}

			block := s.block(i)
			skipped, err := fn(block, s.blockSize)
			if err != nil {
				return err
			}

			done++
			if skipped {
				b.log.Debug(op+" block skipped", "address", fmt.Sprintf("0x%06X", block.Address))
			}
			b.Report(Progress{
				Op:      op,
				Address: block.Address,
				Block:   done,
				Blocks:  total,
				Skipped: skipped,
			})
		}
	}

	return nil
}

// Erase - Erases every non-blank block of code and data flash
func (b *Instance) Erase(ctx context.Context) error {
	spans, err := b.spans(nil)
	if err != nil {
		return err
	}

	b.log.Info("erase flash")
	return b.forEachBlock(ctx, OpErase, spans, b.eraseBlock)
}

func (b *Instance) eraseBlock(block memory.Region, size uint32) (bool, error) {
	end := block.Address + size - 1

	notBlank, err := b.CmdBlockBlankCheck(block.Address, end)
	if err != nil {
		return false, &BlockError{Op: "blank check", Address: block.Address, Err: err}
	}
	if !notBlank {
		return true, nil
	}

	if err := b.CmdBlockErase(block.Address); err != nil {
		return false, &BlockError{Op: "erase", Address: block.Address, Err: err}
	}
	return false, nil
}

// Program - Writes the image. Blocks holding only erased bytes are skipped,
// other blocks are erased first when needed.
func (b *Instance) Program(ctx context.Context, img *memory.Image) error {
	spans, err := b.spans(img)
	if err != nil {
		return err
	}

	b.log.Info("program flash")
	return b.forEachBlock(ctx, OpProgram, spans, func(block memory.Region, size uint32) (bool, error) {
		if block.IsBlank() {
			return true, nil
		}

		if err := b.programBlock(block); err != nil {
			return false, &ProgramError{Address: block.Address, Err: err}
		}
		return false, nil
	})
}

func (b *Instance) programBlock(block memory.Region) error {
	end := block.Address + block.Size() - 1

	notBlank, err := b.CmdBlockBlankCheck(block.Address, end)
	if err != nil {
		return err
	}

	if notBlank {
		if err := b.CmdBlockErase(block.Address); err != nil {
			return err
		}
	}

	return b.CmdProgramming(block.Address, end, block.Data)
}

// Verify - Compares the flash with the image. Blocks holding only erased
// bytes must be blank on the device.
func (b *Instance) Verify(ctx context.Context, img *memory.Image) error {
	spans, err := b.spans(img)
	if err != nil {
		return err
	}

	b.log.Info("verify flash")
	return b.forEachBlock(ctx, OpVerify, spans, func(block memory.Region, size uint32) (bool, error) {
		return false, b.verifyBlock(block)
	})
}

func (b *Instance) verifyBlock(block memory.Region) error {
	end := block.Address + block.Size() - 1

	if block.IsBlank() {
		notBlank, err := b.CmdBlockBlankCheck(block.Address, end)
		if err != nil {
			return &BlockError{Op: "blank check", Address: block.Address, Err: err}
		}
		if notBlank {
			return &MismatchError{Address: block.Address}
		}
		return nil
	}

	// only a rejected data frame means different content
	err := b.CmdVerify(block.Address, end, block.Data)
	var frameErr *FrameError
	if errors.As(err, &frameErr) {
		return &MismatchError{Address: block.Address, Err: err}
	}
	if err != nil {
		return &BlockError{Op: "verify", Address: block.Address, Err: err}
	}
	return nil
}

// Report - Passes progress to the configured callback
func (b *Instance) Report(p Progress) {
	if b.cfg.progress != nil {
		b.cfg.progress(p)
	}
}
