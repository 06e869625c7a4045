package memory

// Region - Contiguous flash area and the bytes to write into it or compare
// it with.
type Region struct {
	Address uint32
	Data    []byte
}

// NewRegion allocates a region of size bytes pre-filled with ErasedByte.
func NewRegion(address uint32, size uint32) Region {
	data := make([]byte, size)
	for i := range data {
		data[i] = ErasedByte
	}
	return Region{Address: address, Data: data}
}

func (r Region) Size() uint32 {
	return uint32(len(r.Data))
}

// Contains reports whether addr lies inside the region.
func (r Region) Contains(addr uint32) bool {
	return addr >= r.Address && addr-r.Address < r.Size()
}

// Block returns the size bytes at offset as a region sharing r's buffer.
func (r Region) Block(offset uint32, size uint32) Region {
	return Region{
		Address: r.Address + offset,
		Data:    r.Data[offset : offset+size],
	}
}

// IsBlank reports whether every byte equals ErasedByte.
func (r Region) IsBlank() bool {
	for _, b := range r.Data {
		if b != ErasedByte {
			return false
		}
	}
	return true
}

// Image - The two flash areas of a device, code flash and data flash.
// A region with zero size is absent.
type Image struct {
	Code Region
	Data Region
}

// NewImage allocates erased code and data regions.
func NewImage(codeAddr, codeSize, dataAddr, dataSize uint32) *Image {
	return &Image{
		Code: NewRegion(codeAddr, codeSize),
		Data: NewRegion(dataAddr, dataSize),
	}
}

// Load fills the image from decoded memory content.
func (img *Image) Load(m *Memory) error {
	return m.Fill(&img.Code, &img.Data)
}
