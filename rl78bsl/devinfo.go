package rl78bsl

import (
	"fmt"
	"strings"
)

// ProtocolVersion - Bootloader protocol generation. It selects the flash
// block sizes.
type ProtocolVersion byte

const (
	// ProtocolAuto picks the version from the device name.
	ProtocolAuto ProtocolVersion = 0
	ProtocolA    ProtocolVersion = 'A'
	ProtocolC    ProtocolVersion = 'C'
	ProtocolD    ProtocolVersion = 'D'
)

func (p ProtocolVersion) String() string {
	if p == ProtocolAuto {
		return "auto"
	}
	return string(rune(p))
}

// ParseProtocol - Converts a command line protocol name (auto, A, C or D)
func ParseProtocol(name string) (ProtocolVersion, error) {
	switch strings.ToUpper(name) {
	case "", "AUTO":
		return ProtocolAuto, nil
	case "A":
		return ProtocolA, nil
	case "C":
		return ProtocolC, nil
	case "D":
		return ProtocolD, nil
	}
	return ProtocolAuto, fmt.Errorf("unknown protocol version %q", name)
}

type blockSizes struct {
	code uint32
	data uint32
}

var protocolBlocks = map[ProtocolVersion]blockSizes{
	ProtocolA: {code: 1024, data: 1024},
	ProtocolC: {code: 2048, data: 256},
	ProtocolD: {code: 2048, data: 256},
}

// device name prefixes, first match wins
var deviceFamilies = []struct {
	prefix   string
	protocol ProtocolVersion
}{
	{"R5F", ProtocolA},   // RL78/x1x
	{"R7F10", ProtocolC}, // RL78/G2x
	{"R7F12", ProtocolD}, // RL78/F2x
}

// LookupProtocol - Protocol version of a device by its name
func LookupProtocol(name string) (ProtocolVersion, bool) {
	for _, f := range deviceFamilies {
		if strings.HasPrefix(name, f.prefix) {
			return f.protocol, true
		}
	}
	return ProtocolA, false
}

// DeviceInfo - Identity of the connected device, read once per session
type DeviceInfo struct {
	DeviceCode [3]byte
	Name       string
	CodeSize   uint32
	DataSize   uint32
	Firmware   [3]byte

	Protocol      ProtocolVersion
	CodeBlockSize uint32
	DataBlockSize uint32

	// CodeEnd and DataEnd are the raw last addresses of the signature.
	CodeEnd uint32
	DataEnd uint32
}

// FirmwareVersion formats the bootloader firmware version as x.yz.
func (d *DeviceInfo) FirmwareVersion() string {
	return fmt.Sprintf("%X.%X%X", d.Firmware[0], d.Firmware[1], d.Firmware[2])
}

func (d *DeviceInfo) String() string {
	return fmt.Sprintf("%s (code %d kB, data %d kB, protocol %v)",
		d.Name, d.CodeSize/1024, d.DataSize/1024, d.Protocol)
}

// parseSignature decodes the 22 byte signature:
// device code[3], name[10], code end[3], data end[3], firmware[3].
func parseSignature(sig []byte, protocol ProtocolVersion) *DeviceInfo {
	info := &DeviceInfo{
		Name:    strings.TrimRight(string(sig[3:13]), " \x00"),
		CodeEnd: getAddr(sig[13:16]),
		DataEnd: getAddr(sig[16:19]),
	}
	copy(info.DeviceCode[:], sig[0:3])
	copy(info.Firmware[:], sig[19:22])

	if protocol == ProtocolAuto {
		protocol, _ = LookupProtocol(info.Name)
	}
	sizes := protocolBlocks[protocol]
	info.Protocol = protocol
	info.CodeBlockSize = sizes.code
	info.DataBlockSize = sizes.data

	info.CodeSize = info.CodeEnd + 1
	info.DataSize = dataFlashSize(info.DataEnd, sizes.data)

	return info
}

// dataFlashSize derives the data flash size from its last address. Parts
// without data flash report an end below the data flash base, any size that
// is not a whole number of blocks is treated the same way.
func dataFlashSize(end uint32, blockSize uint32) uint32 {
	if end < DataFlashAddress {
		return 0
	}

	size := end - DataFlashAddress + 1
	if blockSize == 0 || size%blockSize != 0 {
		return 0
	}
	return size
}
