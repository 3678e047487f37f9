package mutator

import "encoding/binary"

// interesting values, little and big endian variants are produced on write
var (
	interesting8  = []int8{-128, -1, 0, 1, 16, 32, 64, 100, 127}
	interesting16 = []int16{-32768, -129, 128, 255, 256, 512, 1000, 1024, 4096, 32767}
	interesting32 = []int32{-2147483648, -100663046, -32769, 32768, 65535, 65536, 100663045, 2147483647}
)

const arithMax = 35

// havoc is a general purpose byte buffer mutator. Each round applies one
// randomly chosen strategy to input.
type havoc struct {
	rng     *Rng
	maxSize int
	input   []byte
}

type strategy func(h *havoc)

var strategies = []strategy{
	(*havoc).flipBit,
	(*havoc).incByte,
	(*havoc).decByte,
	(*havoc).negByte,
	(*havoc).randByte,
	(*havoc).setInteresting,
	(*havoc).arith,
	(*havoc).swapBytes,
	(*havoc).copyBlock,
	(*havoc).expand,
	(*havoc).shrink,
	(*havoc).insertRandom,
}

func (h *havoc) mutate(rounds int) {
	for i := 0; i < rounds; i++ {
		strategies[h.rng.Intn(len(strategies))](h)
	}
}

func (h *havoc) pos() (int, bool) {
	if len(h.input) == 0 {
		return 0, false
	}
	return h.rng.Intn(len(h.input)), true
}

func (h *havoc) flipBit() {
	if p, ok := h.pos(); ok {
		h.input[p] ^= 1 << h.rng.Rand(0, 7)
	}
}

func (h *havoc) incByte() {
	if p, ok := h.pos(); ok {
		h.input[p]++
	}
}

func (h *havoc) decByte() {
	if p, ok := h.pos(); ok {
		h.input[p]--
	}
}

func (h *havoc) negByte() {
	if p, ok := h.pos(); ok {
		h.input[p] = -h.input[p]
	}
}

func (h *havoc) randByte() {
	if p, ok := h.pos(); ok {
		h.input[p] = byte(h.rng.Next())
	}
}

// setInteresting overwrites 1, 2 or 4 bytes with a boundary value.
func (h *havoc) setInteresting() {
	width := 1 << h.rng.Rand(0, 2)
	if len(h.input) < width {
		width = 1
	}
	p, ok := h.pos()
	if !ok {
		return
	}
	if p+width > len(h.input) {
		p = len(h.input) - width
	}
	big := h.rng.Rand(0, 1) == 0
	dst := h.input[p : p+width]
	switch width {
	case 1:
		dst[0] = byte(interesting8[h.rng.Intn(len(interesting8))])
	case 2:
		v := uint16(interesting16[h.rng.Intn(len(interesting16))])
		if big {
			binary.BigEndian.PutUint16(dst, v)
		} else {
			binary.LittleEndian.PutUint16(dst, v)
		}
	case 4:
		v := uint32(interesting32[h.rng.Intn(len(interesting32))])
		if big {
			binary.BigEndian.PutUint32(dst, v)
		} else {
			binary.LittleEndian.PutUint32(dst, v)
		}
	}
}

// arith adds or subtracts a small delta to a 1, 2, 4 or 8 byte window.
func (h *havoc) arith() {
	width := 1 << h.rng.Rand(0, 3)
	for width > len(h.input) && width > 1 {
		width >>= 1
	}
	p, ok := h.pos()
	if !ok {
		return
	}
	if p+width > len(h.input) {
		p = len(h.input) - width
	}
	delta := h.rng.Rand(1, arithMax)
	sub := h.rng.Rand(0, 1) == 0
	big := h.rng.Rand(0, 1) == 0

	var buf [8]byte
	copy(buf[8-width:], h.input[p:p+width])
	var v uint64
	if big {
		v = binary.BigEndian.Uint64(buf[:])
	} else {
		for i := width - 1; i >= 0; i-- {
			v = v<<8 | uint64(h.input[p+i])
		}
	}
	if sub {
		v -= delta
	} else {
		v += delta
	}
	for i := 0; i < width; i++ {
		b := byte(v >> (8 * i))
		if big {
			h.input[p+width-1-i] = b
		} else {
			h.input[p+i] = b
		}
	}
}

func (h *havoc) swapBytes() {
	a, ok := h.pos()
	if !ok {
		return
	}
	b, _ := h.pos()
	h.input[a], h.input[b] = h.input[b], h.input[a]
}

// copyBlock copies a random block of the input over another position.
func (h *havoc) copyBlock() {
	if len(h.input) < 2 {
		return
	}
	src, _ := h.pos()
	dst, _ := h.pos()
	n := int(h.rng.Rand(1, uint64(len(h.input)-max(src, dst))))
	copy(h.input[dst:dst+n], h.input[src:src+n])
}

// expand inserts a run of zero bytes, bounded by maxSize.
func (h *havoc) expand() {
	room := h.maxSize - len(h.input)
	if room <= 0 {
		return
	}
	n := int(h.rng.RandExp(1, uint64(min(room, 16))))
	at := 0
	if len(h.input) > 0 {
		at = int(h.rng.Rand(0, uint64(len(h.input))))
	}
	grown := make([]byte, 0, len(h.input)+n)
	grown = append(grown, h.input[:at]...)
	grown = append(grown, make([]byte, n)...)
	h.input = append(grown, h.input[at:]...)
}

func (h *havoc) shrink() {
	if len(h.input) == 0 {
		return
	}
	at, _ := h.pos()
	n := int(h.rng.RandExp(1, uint64(len(h.input)-at)))
	h.input = append(h.input[:at], h.input[at+n:]...)
}

func (h *havoc) insertRandom() {
	h.expand()
	if p, ok := h.pos(); ok {
		h.input[p] = byte(h.rng.Next())
	}
}
