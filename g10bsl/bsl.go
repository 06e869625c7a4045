package g10bsl

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/janch32/rl78flash/memory"
	"github.com/janch32/rl78flash/rl78bsl"
	"github.com/janch32/rl78flash/transport"
)

// G10BSL - Bootloader of RL78/G10 parts. It programs the whole flash in one
// erase-write command and checks it with a CRC.
type G10BSL struct {
	link *rl78bsl.Instance
	log  *slog.Logger
	size uint32
}

// New - Wraps an rl78bsl link for a part with size bytes of flash
func New(link *rl78bsl.Instance, size uint32) (*G10BSL, error) {
	if !ValidSize(size) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}

	return &G10BSL{
		link: link,
		log:  link.Logger(),
		size: size,
	}, nil
}

// Size returns the declared flash size.
func (b *G10BSL) Size() uint32 {
	return b.size
}

// NewImage - Allocates an erased image of the declared flash size
func (b *G10BSL) NewImage() *memory.Image {
	return memory.NewImage(0, b.size, rl78bsl.DataFlashAddress, 0)
}

// Handshake - Resets the part into the bootloader and sets the
// programming mode
func (b *G10BSL) Handshake(ctx context.Context) error {
	b.log.Info("entering G10 bootloader")

	err := b.link.HoldReset(ctx)
	if err == nil {
		err = b.link.Flush()
	}
	if err == nil {
		b.link.Sleep(constStepDelay)
		err = b.link.SetLine(transport.LineReset, true)
	}
	if err == nil {
		b.link.Sleep(constStepDelay)
		err = b.link.SetLine(transport.LineClock, true)
	}
	if err == nil {
		b.link.Sleep(constStepDelay)
		err = b.link.Flush()
	}
	if err != nil {
		return fmt.Errorf("%w: %w", rl78bsl.ErrInitializationFailed, err)
	}

	b.log.Debug("send mode set byte")
	if err := b.expectACK(constModeSet); err != nil {
		return fmt.Errorf("%w: %w", rl78bsl.ErrInitializationFailed, err)
	}
	return nil
}

// expectACK sends a single command byte and requires an ACK reply.
func (b *G10BSL) expectACK(cmd byte) error {
	if err := b.link.Send([]byte{cmd}); err != nil {
		return err
	}

	res, err := b.link.Read(1)
	if err != nil {
		return err
	}
	if res[0] != constACK {
		return &rl78bsl.StatusError{Command: cmd, Status: rl78bsl.Status(res[0])}
	}
	return nil
}

// negotiate sends cmd and compares the flash size the device reports with
// the image size. A mismatch is refused with NACK, otherwise the command is
// confirmed with ACK.
func (b *G10BSL) negotiate(cmd byte, size int) error {
	if err := b.link.Send([]byte{cmd}); err != nil {
		return err
	}

	res, err := b.link.Read(2)
	if err != nil {
		return err
	}
	if res[0] != constACK {
		return &rl78bsl.StatusError{Command: cmd, Status: rl78bsl.Status(res[0])}
	}

	reported := SizeFromCode(res[1])
	if reported != uint32(size) {
		if err := b.link.Send([]byte{constNACK}); err != nil {
			return err
		}
		return &SizeMismatchError{Code: res[1], Reported: reported, Expected: uint32(size)}
	}

	return b.link.Send([]byte{constACK})
}

// EraseWrite - Erases the whole flash and writes rom, which must have
// exactly the flash size of the part
func (b *G10BSL) EraseWrite(ctx context.Context, rom []byte) error {
	if !ValidSize(uint32(len(rom))) {
		return fmt.Errorf("%w: %d", ErrInvalidSize, len(rom))
	}

	b.log.Debug("send erase-write command")
	if err := b.negotiate(constEraseWrite, len(rom)); err != nil {
		return fmt.Errorf("erase-write: %w", err)
	}

	b.log.Debug("wait for erase")
	res, err := b.link.ReadWithin(1, constEraseTimeout)
	if err != nil {
		return fmt.Errorf("erase: %w", err)
	}
	if res[0] != constACK {
		return fmt.Errorf("erase: %w", &rl78bsl.StatusError{Command: constEraseWrite, Status: rl78bsl.Status(res[0])})
	}

	b.log.Debug("write data")
	blocks := len(rom) / constProgressChunk
	for addr := 0; addr < len(rom); addr += constWordSize {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := b.writeWord(rom[addr : addr+constWordSize]); err != nil {
			return &rl78bsl.ProgramError{Address: uint32(addr), Err: err}
		}

		if next := addr + constWordSize; next%constProgressChunk == 0 {
			b.link.Report(rl78bsl.Progress{
				Op:      rl78bsl.OpProgram,
				Address: uint32(next - constProgressChunk),
				Block:   next / constProgressChunk,
				Blocks:  blocks,
			})
		}
	}

	b.log.Debug("read verification status")
	res, err = b.link.Read(1)
	if err != nil {
		return fmt.Errorf("verification status: %w", err)
	}
	if res[0] != constACK {
		return fmt.Errorf("verification status: %w", &rl78bsl.StatusError{Command: constEraseWrite, Status: rl78bsl.Status(res[0])})
	}
	return nil
}

func (b *G10BSL) writeWord(word []byte) error {
	if err := b.link.Send(word); err != nil {
		return err
	}

	res, err := b.link.Read(1)
	if err != nil {
		return err
	}
	if res[0] != constACK {
		return &rl78bsl.StatusError{Command: constEraseWrite, Status: rl78bsl.Status(res[0])}
	}
	return nil
}

// CRCCheck - Compares the CRC of the whole flash with the CRC of rom
func (b *G10BSL) CRCCheck(ctx context.Context, rom []byte) error {
	if !ValidSize(uint32(len(rom))) {
		return fmt.Errorf("%w: %d", ErrInvalidSize, len(rom))
	}

	b.log.Debug("send CRC check command")
	if err := b.negotiate(constCRCCheck, len(rom)); err != nil {
		return fmt.Errorf("CRC check: %w", err)
	}

	res, err := b.link.ReadWithin(3, constCRCTimeout)
	if err != nil {
		return fmt.Errorf("CRC check: %w", err)
	}
	if res[0] != constACK {
		return fmt.Errorf("CRC check: %w", &rl78bsl.StatusError{Command: constCRCCheck, Status: rl78bsl.Status(res[0])})
	}

	remote := uint16(res[1]) | uint16(res[2])<<8
	local := CRC16(rom)
	if remote != local {
		return &ChecksumMismatchError{Remote: remote, Local: local}
	}

	b.log.Info("CRC match", "crc", fmt.Sprintf("%04Xh", local))
	return nil
}

// Erase - Fills the whole flash with the erased value
func (b *G10BSL) Erase(ctx context.Context) error {
	b.log.Info("erase flash")
	return b.EraseWrite(ctx, bytes.Repeat([]byte{memory.ErasedByte}, int(b.size)))
}

// Program - Writes the code region of img
func (b *G10BSL) Program(ctx context.Context, img *memory.Image) error {
	b.log.Info("program flash")
	return b.EraseWrite(ctx, img.Code.Data)
}

// Verify - Checks the code region of img by CRC
func (b *G10BSL) Verify(ctx context.Context, img *memory.Image) error {
	b.log.Info("verify flash")
	return b.CRCCheck(ctx, img.Code.Data)
}
