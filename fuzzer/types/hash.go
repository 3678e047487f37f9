package types

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multicodec"
	mh "github.com/multiformats/go-multihash"
	"github.com/multiformats/go-varint"
)

// HashPrefix is the CID prefix used for value and crash fingerprints.
var HashPrefix = cid.Prefix{
	Version:  1,
	Codec:    uint64(multicodec.Raw),
	MhType:   mh.SHA2_256,
	MhLength: -1,
}

// Encode appends the structural encoding of v to buf. The encoding is
// deterministic and injective: two values encode to the same bytes iff they
// are Equal.
func Encode(buf *bytes.Buffer, v Value) {
	if v == nil {
		buf.WriteByte(0)
		return
	}
	buf.WriteByte(byte(v.Kind()))

	var scratch [8]byte
	switch v := v.(type) {
	case U8:
		buf.WriteByte(byte(v))
	case U16:
		binary.BigEndian.PutUint16(scratch[:2], uint16(v))
		buf.Write(scratch[:2])
	case U32:
		binary.BigEndian.PutUint32(scratch[:4], uint32(v))
		buf.Write(scratch[:4])
	case U64:
		binary.BigEndian.PutUint64(scratch[:], uint64(v))
		buf.Write(scratch[:])
	case U128:
		b := v.Bytes()
		buf.Write(b[:])
	case Bool:
		if v {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case Address:
		buf.Write(v[:])
	case *Vector:
		Encode(buf, v.Elem)
		EncodeAll(buf, v.Elems)
	case *Struct:
		EncodeAll(buf, v.Fields)
	case *Reference:
		if v.Mutable {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
		Encode(buf, v.Inner)
	case *Function:
		writeString(buf, v.Name)
		EncodeAll(buf, v.Params)
		if v.Returns == nil {
			buf.WriteByte(0)
		} else {
			buf.WriteByte(1)
			EncodeAll(buf, v.Returns)
		}
	default:
		panic(fmt.Sprintf("cannot encode value of type %T", v))
	}
}

// EncodeAll writes a length-prefixed sequence.
func EncodeAll(buf *bytes.Buffer, vs []Value) {
	buf.Write(varint.ToUvarint(uint64(len(vs))))
	for _, v := range vs {
		Encode(buf, v)
	}
}

func writeString(buf *bytes.Buffer, s string) {
	buf.Write(varint.ToUvarint(uint64(len(s))))
	buf.WriteString(s)
}

// Hash returns a content identifier of the structural encoding of v.
func Hash(v Value) cid.Cid {
	var buf bytes.Buffer
	Encode(&buf, v)
	return sum(buf.Bytes())
}

// HashAll fingerprints a sequence of values.
func HashAll(vs []Value) cid.Cid {
	var buf bytes.Buffer
	EncodeAll(&buf, vs)
	return sum(buf.Bytes())
}

func sum(b []byte) cid.Cid {
	c, err := HashPrefix.Sum(b)
	if err != nil {
		// sha2-256 over an in-memory buffer does not fail
		panic(err)
	}
	return c
}
