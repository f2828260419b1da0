// Package codec converts between structured values (the maps, slices and
// scalars produced by encoding/json and yaml.v3) and typed Go values.
//
// Codecs are derived once per type and memoized in a Registry. A type
// controls its own representation by implementing ValueEncoder and
// ValueDecoder, or encoding.TextMarshaler and encoding.TextUnmarshaler;
// everything else is handled structurally. Struct fields are named by the
// `codec` tag and are omitted from the encoded form while they equal their
// default.
package codec

import (
	"encoding"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"
)

// ValueEncoder is implemented by types with a custom encoded form.
type ValueEncoder interface {
	EncodeValue() (any, error)
}

// ValueDecoder is implemented (on the pointer) by types with a custom
// encoded form.
type ValueDecoder interface {
	DecodeValue(in any) error
}

// Defaulter supplies per-field defaults for a struct type. CodecDefaults
// must return a value of the implementing struct type. Defaults are shared
// between decoded values and must not be mutated.
type Defaulter interface {
	CodecDefaults() any
}

// AfterDecoder is called on a struct after all of its fields are decoded.
type AfterDecoder interface {
	AfterDecode() error
}

// Mode selects whether a type's own codec is honoured.
type Mode int

const (
	// Custom honours ValueEncoder/ValueDecoder, text marshalers and
	// registered functions.
	Custom Mode = iota
	// Structural ignores the overrides of the outermost type. Nested
	// values still use their own codecs.
	Structural
)

// DecodeError reports a structured value that does not fit its type.
type DecodeError struct {
	Type reflect.Type
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("codec: cannot decode %s: %v", e.Type, e.Err)
	}
	return fmt.Sprintf("codec: cannot decode %s at %s: %v", e.Type, e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// UnsupportedTypeError is returned when no codec can be derived for a type.
type UnsupportedTypeError struct {
	Type reflect.Type
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("codec: unsupported type %s", e.Type)
}

// ErrMissingField is wrapped by DecodeError for absent required fields.
var ErrMissingField = errors.New("missing required field")

type (
	encodeFunc func(v reflect.Value) (any, error)
	decodeFunc func(in any, out reflect.Value) error
)

type typeCodec struct {
	enc encodeFunc
	dec decodeFunc
}

func (c *typeCodec) encode(v reflect.Value) (any, error)     { return c.enc(v) }
func (c *typeCodec) decode(in any, out reflect.Value) error { return c.dec(in, out) }

type cacheKey struct {
	t    reflect.Type
	mode Mode
}

// Registry memoizes derived codecs. The zero value is not usable; use
// NewRegistry.
type Registry struct {
	mu     sync.Mutex
	codecs map[cacheKey]*typeCodec
	custom map[reflect.Type]*typeCodec
}

func NewRegistry() *Registry {
	return &Registry{
		codecs: make(map[cacheKey]*typeCodec),
		custom: make(map[reflect.Type]*typeCodec),
	}
}

// Default is the registry used by the package-level functions.
var Default = NewRegistry()

// Register installs explicit codec functions for T, taking precedence over
// every other mechanism in Custom mode.
func Register[T any](r *Registry, enc func(T) (any, error), dec func(any) (T, error)) {
	t := reflect.TypeFor[T]()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.custom[t] = &typeCodec{
		enc: func(v reflect.Value) (any, error) { return enc(v.Interface().(T)) },
		dec: func(in any, out reflect.Value) error {
			v, err := dec(in)
			if err != nil {
				return &DecodeError{Type: t, Err: err}
			}
			out.Set(reflect.ValueOf(&v).Elem())
			return nil
		},
	}
	for k := range r.codecs {
		if k.t == t {
			delete(r.codecs, k)
		}
	}
}

func (r *Registry) lookup(t reflect.Type, mode Mode) (*typeCodec, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.build(t, mode)
}

// build must be called with r.mu held. The codec is cached before it is
// derived so recursive types resolve to the same (then completed) entry.
func (r *Registry) build(t reflect.Type, mode Mode) (*typeCodec, error) {
	k := cacheKey{t, mode}
	if c, ok := r.codecs[k]; ok {
		return c, nil
	}
	c := &typeCodec{}
	r.codecs[k] = c
	enc, dec, err := r.derive(t, mode)
	if err != nil {
		delete(r.codecs, k)
		return nil, err
	}
	c.enc, c.dec = enc, dec
	return c, nil
}

var (
	timeType         = reflect.TypeFor[time.Time]()
	valueEncoderType = reflect.TypeFor[ValueEncoder]()
	valueDecoderType = reflect.TypeFor[ValueDecoder]()
	textMarshalType  = reflect.TypeFor[encoding.TextMarshaler]()
	textUnmarshType  = reflect.TypeFor[encoding.TextUnmarshaler]()
	defaulterType    = reflect.TypeFor[Defaulter]()
	afterDecoderType = reflect.TypeFor[AfterDecoder]()
)

func implements(t, iface reflect.Type) bool {
	return t.Implements(iface) || reflect.PointerTo(t).Implements(iface)
}

func (r *Registry) derive(t reflect.Type, mode Mode) (encodeFunc, decodeFunc, error) {
	if mode == Custom {
		if c, ok := r.custom[t]; ok {
			return c.enc, c.dec, nil
		}
	}
	if t == timeType {
		return encodeTime, decodeTime, nil
	}
	if mode == Custom && t.Kind() != reflect.Pointer {
		if implements(t, valueEncoderType) && reflect.PointerTo(t).Implements(valueDecoderType) {
			return valueCodec(t)
		}
		if implements(t, textMarshalType) && reflect.PointerTo(t).Implements(textUnmarshType) {
			return textCodec(t)
		}
	}

	switch t.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return scalarCodec(t)
	case reflect.Pointer:
		return r.optionalCodec(t)
	case reflect.Slice, reflect.Array:
		return r.sequenceCodec(t)
	case reflect.Map:
		if isSet(t) {
			return r.setCodec(t)
		}
		return r.mapCodec(t)
	case reflect.Struct:
		return r.recordCodec(t)
	}
	return nil, nil, &UnsupportedTypeError{Type: t}
}

// Prepare derives the codecs for t in both modes so that unsupported types
// are reported at startup rather than on first use.
func (r *Registry) Prepare(t reflect.Type) error {
	if _, err := r.lookup(t, Custom); err != nil {
		return err
	}
	_, err := r.lookup(t, Structural)
	return err
}

// MustPrepare prepares T in the Default registry and panics on failure.
// Domain packages call it from init.
func MustPrepare[T any]() {
	if err := Default.Prepare(reflect.TypeFor[T]()); err != nil {
		panic(err)
	}
}

// Encode converts v to its structured form.
func (r *Registry) Encode(v any) (any, error) { return r.encodeMode(v, Custom) }

// EncodeStructural encodes v ignoring the overrides of its own type.
func (r *Registry) EncodeStructural(v any) (any, error) { return r.encodeMode(v, Structural) }

func (r *Registry) encodeMode(v any, mode Mode) (any, error) {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return nil, nil
	}
	c, err := r.lookup(rv.Type(), mode)
	if err != nil {
		return nil, err
	}
	return c.encode(rv)
}

// Decode fills the value pointed to by out from in.
func (r *Registry) Decode(in any, out any) error { return r.decodeMode(in, out, Custom) }

// DecodeStructural decodes into out ignoring the overrides of its own type.
func (r *Registry) DecodeStructural(in any, out any) error {
	return r.decodeMode(in, out, Structural)
}

func (r *Registry) decodeMode(in any, out any, mode Mode) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("codec: decode target must be a non-nil pointer, got %T", out)
	}
	c, err := r.lookup(rv.Type().Elem(), mode)
	if err != nil {
		return err
	}
	return c.decode(in, rv.Elem())
}

func Encode(v any) (any, error)           { return Default.Encode(v) }
func EncodeStructural(v any) (any, error) { return Default.EncodeStructural(v) }
func Decode(in any, out any) error        { return Default.Decode(in, out) }
func DecodeStructural(in any, out any) error {
	return Default.DecodeStructural(in, out)
}

// DecodeAs decodes in as a T using the Default registry.
func DecodeAs[T any](in any) (T, error) {
	var v T
	err := Default.Decode(in, &v)
	return v, err
}

func valueCodec(t reflect.Type) (encodeFunc, decodeFunc, error) {
	enc := func(v reflect.Value) (any, error) {
		return addressable(v).Interface().(ValueEncoder).EncodeValue()
	}
	dec := func(in any, out reflect.Value) error {
		p := reflect.New(t)
		if err := p.Interface().(ValueDecoder).DecodeValue(in); err != nil {
			return asDecodeError(t, err)
		}
		out.Set(p.Elem())
		return nil
	}
	return enc, dec, nil
}

func textCodec(t reflect.Type) (encodeFunc, decodeFunc, error) {
	enc := func(v reflect.Value) (any, error) {
		b, err := addressable(v).Interface().(encoding.TextMarshaler).MarshalText()
		if err != nil {
			return nil, err
		}
		return string(b), nil
	}
	dec := func(in any, out reflect.Value) error {
		s, err := toString(in)
		if err != nil {
			return &DecodeError{Type: t, Err: err}
		}
		p := reflect.New(t)
		if err := p.Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(s)); err != nil {
			return &DecodeError{Type: t, Err: err}
		}
		out.Set(p.Elem())
		return nil
	}
	return enc, dec, nil
}

// addressable returns a pointer to v (or a copy of it) when only the pointer
// type carries the method.
func addressable(v reflect.Value) reflect.Value {
	if v.CanAddr() {
		return v.Addr()
	}
	p := reflect.New(v.Type())
	p.Elem().Set(v)
	return p
}

func asDecodeError(t reflect.Type, err error) error {
	var de *DecodeError
	if errors.As(err, &de) {
		return err
	}
	return &DecodeError{Type: t, Err: err}
}

// withPath prefixes the path of a nested DecodeError.
func withPath(t reflect.Type, seg string, err error) error {
	var de *DecodeError
	if errors.As(err, &de) {
		if de.Path == "" {
			de.Path = seg
		} else if strings.HasPrefix(de.Path, "[") {
			de.Path = seg + de.Path
		} else {
			de.Path = seg + "." + de.Path
		}
		return de
	}
	return &DecodeError{Type: t, Path: seg, Err: err}
}
