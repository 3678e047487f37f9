package actorvm

import (
	"fmt"
	"reflect"

	"github.com/filecoin-project/go-state-types/exitcode"
	"golang.org/x/xerrors"

	"github.com/Kindhearted57/sui-fuzzer/fuzzer/types"
	"github.com/Kindhearted57/sui-fuzzer/runner"
)

// Invokee is implemented by actors. Exports maps method names to functions
// of the form
//
//	func(rt Runtime, args...) [result] [error]
//
// Arguments may be unsigned integers up to 64 bits, types.U128, bool,
// []byte, types.Address, structs of those and pointers to any of them.
type Invokee interface {
	Exports() map[string]interface{}
}

type method struct {
	name   string
	fn     reflect.Value
	params []reflect.Type
	// errOut is the index of the error result, or -1
	errOut int
}

type nativeCode map[string]*method

var uintKinds = map[reflect.Kind]types.Kind{
	reflect.Uint8:  types.KindU8,
	reflect.Uint16: types.KindU16,
	reflect.Uint32: types.KindU32,
	reflect.Uint64: types.KindU64,
}

var (
	tRuntime = reflect.TypeOf((*Runtime)(nil)).Elem()
	tError   = reflect.TypeOf((*error)(nil)).Elem()
	tU128    = reflect.TypeOf(types.U128{})
	tAddress = reflect.TypeOf(types.Address{})
	tBytes   = reflect.TypeOf([]byte(nil))
)

func transform(instance Invokee) (nativeCode, error) {
	itype := reflect.TypeOf(instance)
	code := make(nativeCode)
	for name, m := range instance.Exports() {
		newErr := func(format string, args ...interface{}) error {
			str := fmt.Sprintf(format, args...)
			return xerrors.Errorf("transform(%s) export(%s): %s", itype, name, str)
		}

		if m == nil {
			continue
		}

		meth := reflect.ValueOf(m)
		t := meth.Type()
		if t.Kind() != reflect.Func {
			return nil, newErr("is not a function")
		}
		if t.NumIn() < 1 || t.In(0) != tRuntime {
			return nil, newErr("first argument should be actorvm.Runtime")
		}
		if t.IsVariadic() {
			return nil, newErr("variadic methods are not supported")
		}

		params := make([]reflect.Type, 0, t.NumIn()-1)
		for i := 1; i < t.NumIn(); i++ {
			if _, err := template(t.In(i)); err != nil {
				return nil, newErr("argument %d: %s", i, err)
			}
			params = append(params, t.In(i))
		}

		errOut := -1
		switch t.NumOut() {
		case 0:
		case 1:
			if t.Out(0) == tError {
				errOut = 0
			}
		case 2:
			if t.Out(1) != tError {
				return nil, newErr("second output should be error")
			}
			errOut = 1
		default:
			return nil, newErr("too many outputs")
		}

		code[name] = &method{name: name, fn: meth, params: params, errOut: errOut}
	}
	return code, nil
}

// invoke converts inputs to the method's parameter types and calls it.
// Results other than the error are discarded.
func (m *method) invoke(rt *runtime, inputs []types.Value) ActorError {
	if len(inputs) != len(m.params) {
		return Newf(exitcode.SysErrorIllegalArgument, "%s: expected %d arguments, got %d", m.name, len(m.params), len(inputs))
	}
	args := make([]reflect.Value, 0, len(inputs)+1)
	args = append(args, reflect.ValueOf(Runtime(rt)))
	for i, in := range inputs {
		arg, err := fromValue(in, m.params[i])
		if err != nil {
			return Absorb(err, exitcode.ErrSerialization, fmt.Sprintf("%s: decoding argument %d", m.name, i))
		}
		args = append(args, arg)
	}

	return rt.shimCall(func() error {
		out := m.fn.Call(args)
		if m.errOut < 0 {
			return nil
		}
		if err, _ := out[m.errOut].Interface().(error); err != nil {
			return err
		}
		return nil
	})
}

func (m *method) signature() (runner.Signature, error) {
	sig := runner.Signature{Name: m.name}
	for _, p := range m.params {
		v, err := template(p)
		if err != nil {
			return runner.Signature{}, err
		}
		sig.Params = append(sig.Params, v)
	}
	t := m.fn.Type()
	for i := 0; i < t.NumOut(); i++ {
		if i == m.errOut {
			continue
		}
		if v, err := template(t.Out(i)); err == nil {
			sig.Returns = append(sig.Returns, v)
		}
	}
	return sig, nil
}

// template derives the zero Value describing a Go parameter type.
func template(t reflect.Type) (types.Value, error) {
	switch t {
	case tU128:
		return types.U128{}, nil
	case tAddress:
		return types.Address{}, nil
	case tBytes:
		return types.NewByteVector(nil), nil
	}

	switch t.Kind() {
	case reflect.Uint8:
		return types.U8(0), nil
	case reflect.Uint16:
		return types.U16(0), nil
	case reflect.Uint32:
		return types.U32(0), nil
	case reflect.Uint64:
		return types.U64(0), nil
	case reflect.Bool:
		return types.Bool(false), nil
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return types.NewByteVector(nil), nil
		}
	case reflect.Ptr:
		inner, err := template(t.Elem())
		if err != nil {
			return nil, err
		}
		return &types.Reference{Mutable: true, Inner: inner}, nil
	case reflect.Struct:
		s := &types.Struct{}
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				return nil, xerrors.Errorf("struct %s has unexported field %s", t, f.Name)
			}
			v, err := template(f.Type)
			if err != nil {
				return nil, xerrors.Errorf("field %s: %w", f.Name, err)
			}
			s.Fields = append(s.Fields, v)
		}
		return s, nil
	}
	return nil, xerrors.Errorf("unsupported parameter type %s", t)
}

// fromValue builds a Go value of type t from v.
func fromValue(v types.Value, t reflect.Type) (reflect.Value, error) {
	mismatch := func() (reflect.Value, error) {
		return reflect.Value{}, xerrors.Errorf("cannot use %s value as %s", v.Kind(), t)
	}

	switch t {
	case tU128:
		u, ok := v.(types.U128)
		if !ok {
			return mismatch()
		}
		return reflect.ValueOf(u), nil
	case tAddress:
		a, ok := v.(types.Address)
		if !ok {
			return mismatch()
		}
		return reflect.ValueOf(a), nil
	}

	out := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		var n uint64
		switch v := v.(type) {
		case types.U8:
			n = uint64(v)
		case types.U16:
			n = uint64(v)
		case types.U32:
			n = uint64(v)
		case types.U64:
			n = uint64(v)
		}
		if v.Kind() != uintKinds[t.Kind()] {
			return mismatch()
		}
		out.SetUint(n)
	case reflect.Bool:
		b, ok := v.(types.Bool)
		if !ok {
			return mismatch()
		}
		out.SetBool(bool(b))
	case reflect.Slice:
		vec, ok := v.(*types.Vector)
		if !ok || t.Elem().Kind() != reflect.Uint8 {
			return mismatch()
		}
		b, ok := vec.ByteSlice()
		if !ok {
			return mismatch()
		}
		out.SetBytes(b)
	case reflect.Ptr:
		ref, ok := v.(*types.Reference)
		if !ok {
			return mismatch()
		}
		inner, err := fromValue(ref.Inner, t.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		p := reflect.New(t.Elem())
		p.Elem().Set(inner)
		out.Set(p)
	case reflect.Struct:
		s, ok := v.(*types.Struct)
		if !ok || len(s.Fields) != t.NumField() {
			return mismatch()
		}
		for i, fv := range s.Fields {
			f, err := fromValue(fv, t.Field(i).Type)
			if err != nil {
				return reflect.Value{}, xerrors.Errorf("field %s: %w", t.Field(i).Name, err)
			}
			out.Field(i).Set(f)
		}
	default:
		return mismatch()
	}
	return out, nil
}
