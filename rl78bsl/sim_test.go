package rl78bsl

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/janch32/rl78flash/transport"
)

type simCmd struct {
	Op    byte
	Start uint32
	End   uint32
}

type simFrame struct {
	Len  int
	Last bool
}

type simTransfer struct {
	op   byte
	addr uint32
}

// simDevice emulates the RL78 bootloader behind a single-wire adapter.
type simDevice struct {
	t *testing.T

	echo bool
	mute bool
	in   []byte
	out  bytes.Buffer

	synced    bool
	baudCode  byte
	voltage   byte
	blockSize uint32
	signature []byte

	code []byte
	data []byte

	xfer *simTransfer

	// hooks
	status      map[byte]Status
	silent      map[byte]bool
	blankStatus Status
	failWriteAt int64
	// frameStatus rejects every data frame with a single status byte
	frameStatus Status

	events []string
	cmds   []simCmd
	frames []simFrame
	sleeps []time.Duration
}

func newSimDevice(t *testing.T, name string, codeSize, dataSize uint32) *simDevice {
	d := &simDevice{
		t:           t,
		echo:        true,
		blockSize:   1024,
		code:        bytes.Repeat([]byte{0xFF}, int(codeSize)),
		data:        bytes.Repeat([]byte{0xFF}, int(dataSize)),
		status:      map[byte]Status{},
		silent:      map[byte]bool{},
		failWriteAt: -1,
	}

	dataEnd := uint32(0)
	if dataSize > 0 {
		dataEnd = DataFlashAddress + dataSize - 1
	}
	d.signature = simSignature(name, codeSize-1, dataEnd)
	return d
}

func simSignature(name string, codeEnd, dataEnd uint32) []byte {
	sig := make([]byte, constSignatureLength)
	copy(sig[0:3], []byte{0x10, 0x00, 0x06})
	copy(sig[3:13], fmt.Sprintf("%-10s", name))
	putAddr(sig[13:16], codeEnd)
	putAddr(sig[16:19], dataEnd)
	copy(sig[19:22], []byte{0x03, 0x01, 0x00})
	return sig
}

func (d *simDevice) clearLog() {
	d.events = nil
	d.cmds = nil
	d.frames = nil
	d.sleeps = nil
}

func (d *simDevice) sleep(dur time.Duration) {
	d.sleeps = append(d.sleeps, dur)
	d.events = append(d.events, "sleep "+dur.String())
}

func (d *simDevice) mem(addr uint32) *byte {
	if addr < uint32(len(d.code)) {
		return &d.code[addr]
	}
	if addr >= DataFlashAddress && addr-DataFlashAddress < uint32(len(d.data)) {
		return &d.data[addr-DataFlashAddress]
	}
	d.t.Errorf("access outside of flash at 0x%06X", addr)
	return new(byte)
}

func (d *simDevice) read(start, end uint32) []byte {
	var res []byte
	for a := start; a <= end; a++ {
		res = append(res, *d.mem(a))
	}
	return res
}

// transport.Port

func (d *simDevice) Read(p []byte) (int, error) {
	if d.out.Len() == 0 {
		return 0, nil
	}
	return d.out.Read(p)
}

func (d *simDevice) Write(p []byte) (int, error) {
	if d.echo {
		d.out.Write(p)
	}
	if d.mute {
		return len(p), nil
	}

	d.in = append(d.in, p...)
	for d.process() {
	}
	return len(p), nil
}

func (d *simDevice) SetBaudRate(baud int) error {
	d.events = append(d.events, fmt.Sprintf("baud %d", baud))
	return nil
}

func (d *simDevice) SetParity(enabled bool, odd bool) error {
	return nil
}

func (d *simDevice) SetLine(line transport.Line, level bool) error {
	d.events = append(d.events, fmt.Sprintf("%v=%v", line, level))
	return nil
}

func (d *simDevice) Flush() error {
	d.events = append(d.events, "flush")
	d.out.Reset()
	return nil
}

func (d *simDevice) Close() error {
	return nil
}

// protocol

func (d *simDevice) respond(payload ...byte) {
	frame, err := EncodeData(payload, true)
	if err != nil {
		d.t.Fatalf("encode response: %v", err)
	}
	d.out.Write(frame)
}

func (d *simDevice) process() bool {
	if len(d.in) == 0 {
		return false
	}

	switch d.in[0] {
	case SyncByte:
		d.synced = true
		d.events = append(d.events, "sync")
		d.in = d.in[1:]
		return true

	case constSOH, constSTX:
		if len(d.in) < 2 {
			return false
		}
		length := int(d.in[1])
		if d.in[0] == constSTX && length == 0 {
			length = 256
		}
		total := length + 4
		if len(d.in) < total {
			return false
		}

		frame := d.in[:total]
		d.in = d.in[total:]

		if sumOf(frame[1:total-1]) != 0 {
			d.respond(byte(StatusChecksumError))
			return true
		}

		if frame[0] == constSOH {
			d.command(frame[2], frame[3:total-2])
		} else {
			d.dataFrame(frame[2:total-2], frame[total-1] == constETX)
		}
		return true
	}

	d.t.Errorf("unexpected byte 0x%02X", d.in[0])
	d.in = nil
	return false
}

func (d *simDevice) command(op byte, payload []byte) {
	cmd := simCmd{Op: op}
	if len(payload) >= 3 {
		cmd.Start = getAddr(payload[0:3])
	}
	if len(payload) >= 6 {
		cmd.End = getAddr(payload[3:6])
	}
	d.cmds = append(d.cmds, cmd)

	if d.silent[op] {
		return
	}
	if st, ok := d.status[op]; ok {
		d.respond(byte(st))
		return
	}

	switch op {
	case CmdReset:
		d.respond(byte(StatusACK))

	case CmdBaudRateSet:
		d.baudCode = payload[0]
		d.voltage = payload[1]
		d.respond(byte(StatusACK), 32, 0)

	case CmdSiliconSignature:
		d.respond(byte(StatusACK))
		d.respond(d.signature...)

	case CmdBlockErase:
		for a := cmd.Start; a < cmd.Start+d.blockSize; a++ {
			*d.mem(a) = 0xFF
		}
		d.respond(byte(StatusACK))

	case CmdBlockBlankCheck:
		if d.blankStatus != 0 {
			d.respond(byte(d.blankStatus))
			return
		}
		for _, b := range d.read(cmd.Start, cmd.End) {
			if b != 0xFF {
				d.respond(byte(StatusBlankError))
				return
			}
		}
		d.respond(byte(StatusACK))

	case CmdChecksum:
		sum := ImageChecksum(d.read(cmd.Start, cmd.End))
		d.respond(byte(StatusACK))
		d.respond(byte(sum), byte(sum>>8))

	case CmdProgramming, CmdVerify:
		d.xfer = &simTransfer{op: op, addr: cmd.Start}
		d.respond(byte(StatusACK))

	default:
		d.respond(byte(StatusCommandNumberError))
	}
}

func (d *simDevice) dataFrame(payload []byte, last bool) {
	d.frames = append(d.frames, simFrame{Len: len(payload), Last: last})

	if d.xfer == nil {
		d.t.Errorf("data frame without transfer")
		return
	}

	if d.frameStatus != 0 {
		d.respond(byte(d.frameStatus))
		d.xfer = nil
		return
	}

	result := StatusACK
	for i, b := range payload {
		addr := d.xfer.addr + uint32(i)
		switch d.xfer.op {
		case CmdProgramming:
			if int64(addr) == d.failWriteAt {
				result = StatusWriteError
			}
			*d.mem(addr) &= b
		case CmdVerify:
			if *d.mem(addr) != b {
				result = StatusVerifyError
			}
		}
	}
	d.xfer.addr += uint32(len(payload))

	d.respond(byte(StatusACK), byte(result))

	if last || result != StatusACK {
		if d.xfer.op == CmdProgramming && result == StatusACK {
			d.respond(byte(StatusACK))
		}
		d.xfer = nil
	}
}

// newTestInstance opens a session on d without real delays.
func newTestInstance(d *simDevice, opts ...Option) *Instance {
	base := []Option{
		WithSleep(d.sleep),
		WithResponseTimeout(200 * time.Millisecond),
	}
	return New(d, append(base, opts...)...)
}
