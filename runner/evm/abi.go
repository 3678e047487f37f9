package evm

import (
	"math/big"
	"reflect"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/xerrors"

	"github.com/Kindhearted57/sui-fuzzer/fuzzer/types"
)

// valueOf maps an ABI type to the Value template that stands for it.
func valueOf(t abi.Type) (types.Value, error) {
	switch t.T {
	case abi.UintTy:
		switch {
		case t.Size <= 8:
			return types.U8(0), nil
		case t.Size <= 16:
			return types.U16(0), nil
		case t.Size <= 32:
			return types.U32(0), nil
		case t.Size <= 64:
			return types.U64(0), nil
		case t.Size <= 128, t.Size == 256:
			return types.U128{}, nil
		}
	case abi.BoolTy:
		return types.Bool(false), nil
	case abi.AddressTy:
		return types.Address{}, nil
	case abi.BytesTy:
		return types.NewByteVector(nil), nil
	case abi.SliceTy:
		if t.Elem.T == abi.UintTy && t.Elem.Size == 8 {
			return types.NewByteVector(nil), nil
		}
	case abi.TupleTy:
		s := &types.Struct{}
		for i, elem := range t.TupleElems {
			v, err := valueOf(*elem)
			if err != nil {
				return nil, xerrors.Errorf("component %s: %w", t.TupleRawNames[i], err)
			}
			s.Fields = append(s.Fields, v)
		}
		return s, nil
	}
	return nil, xerrors.Errorf("unsupported abi type %s", t.String())
}

func argumentValues(args abi.Arguments) ([]types.Value, error) {
	out := make([]types.Value, 0, len(args))
	for i, arg := range args {
		v, err := valueOf(arg.Type)
		if err != nil {
			return nil, xerrors.Errorf("argument %d (%s): %w", i, arg.Name, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// goValue converts v into the Go value abi.Pack expects for t. v must have
// the kind valueOf gives for t; integers are then truncated to the declared
// size.
func goValue(v types.Value, t abi.Type) (reflect.Value, error) {
	mismatch := func() (reflect.Value, error) {
		return reflect.Value{}, xerrors.Errorf("cannot pack %s value as %s", v.Kind(), t.String())
	}

	switch t.T {
	case abi.UintTy:
		if want, err := valueOf(t); err != nil || want.Kind() != v.Kind() {
			return mismatch()
		}
		n, ok := bigOf(v)
		if !ok {
			return mismatch()
		}
		mask := new(big.Int).Lsh(big.NewInt(1), uint(t.Size))
		n.Mod(n, mask)

		rt := t.GetType()
		if rt.Kind() == reflect.Ptr {
			return reflect.ValueOf(n), nil
		}
		out := reflect.New(rt).Elem()
		out.SetUint(n.Uint64())
		return out, nil
	case abi.BoolTy:
		b, ok := v.(types.Bool)
		if !ok {
			return mismatch()
		}
		return reflect.ValueOf(bool(b)), nil
	case abi.AddressTy:
		a, ok := v.(types.Address)
		if !ok {
			return mismatch()
		}
		return reflect.ValueOf(common.BytesToAddress(a[:])), nil
	case abi.BytesTy, abi.SliceTy:
		vec, ok := v.(*types.Vector)
		if !ok {
			return mismatch()
		}
		b, ok := vec.ByteSlice()
		if !ok {
			return mismatch()
		}
		return reflect.ValueOf(b), nil
	case abi.TupleTy:
		s, ok := v.(*types.Struct)
		if !ok || len(s.Fields) != len(t.TupleElems) {
			return mismatch()
		}
		out := reflect.New(t.TupleType).Elem()
		for i, elem := range t.TupleElems {
			f, err := goValue(s.Fields[i], *elem)
			if err != nil {
				return reflect.Value{}, xerrors.Errorf("component %s: %w", t.TupleRawNames[i], err)
			}
			out.Field(i).Set(f)
		}
		return out, nil
	}
	return mismatch()
}

func bigOf(v types.Value) (*big.Int, bool) {
	switch v := v.(type) {
	case types.U8:
		return new(big.Int).SetUint64(uint64(v)), true
	case types.U16:
		return new(big.Int).SetUint64(uint64(v)), true
	case types.U32:
		return new(big.Int).SetUint64(uint64(v)), true
	case types.U64:
		return new(big.Int).SetUint64(uint64(v)), true
	case types.U128:
		return v.Big(), true
	}
	return nil, false
}

// pack encodes a call to method with inputs.
func pack(contract *abi.ABI, method string, inputs []types.Value) ([]byte, error) {
	m, ok := contract.Methods[method]
	if !ok {
		return nil, xerrors.Errorf("no method %s", method)
	}
	if len(inputs) != len(m.Inputs) {
		return nil, xerrors.Errorf("%s: expected %d arguments, got %d", method, len(m.Inputs), len(inputs))
	}
	args := make([]interface{}, len(inputs))
	for i, in := range inputs {
		rv, err := goValue(in, m.Inputs[i].Type)
		if err != nil {
			return nil, xerrors.Errorf("%s: argument %d: %w", method, i, err)
		}
		args[i] = rv.Interface()
	}
	return contract.Pack(method, args...)
}
