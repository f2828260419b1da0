package codec

import (
	"cmp"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"time"
	"unicode"

	"github.com/jinzhu/now"
	"github.com/spf13/cast"
)

func toString(in any) (string, error) {
	if in == nil {
		return "", fmt.Errorf("expected string, got null")
	}
	switch in.(type) {
	case map[string]any, []any:
		return "", fmt.Errorf("expected string, got %T", in)
	}
	return cast.ToStringE(in)
}

func scalarCodec(t reflect.Type) (encodeFunc, decodeFunc, error) {
	var enc encodeFunc
	var dec func(in any, out reflect.Value) error

	switch t.Kind() {
	case reflect.Bool:
		enc = func(v reflect.Value) (any, error) { return v.Bool(), nil }
		dec = func(in any, out reflect.Value) error {
			b, err := cast.ToBoolE(in)
			if err != nil {
				return err
			}
			out.SetBool(b)
			return nil
		}
	case reflect.String:
		enc = func(v reflect.Value) (any, error) { return v.String(), nil }
		dec = func(in any, out reflect.Value) error {
			s, err := toString(in)
			if err != nil {
				return err
			}
			out.SetString(s)
			return nil
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		enc = func(v reflect.Value) (any, error) { return v.Int(), nil }
		dec = func(in any, out reflect.Value) error {
			n, err := cast.ToInt64E(in)
			if err != nil {
				return err
			}
			if out.OverflowInt(n) {
				return fmt.Errorf("%d overflows %s", n, t)
			}
			out.SetInt(n)
			return nil
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		enc = func(v reflect.Value) (any, error) { return v.Uint(), nil }
		dec = func(in any, out reflect.Value) error {
			n, err := cast.ToUint64E(in)
			if err != nil {
				return err
			}
			if out.OverflowUint(n) {
				return fmt.Errorf("%d overflows %s", n, t)
			}
			out.SetUint(n)
			return nil
		}
	case reflect.Float32, reflect.Float64:
		enc = func(v reflect.Value) (any, error) { return v.Float(), nil }
		dec = func(in any, out reflect.Value) error {
			f, err := cast.ToFloat64E(in)
			if err != nil {
				return err
			}
			out.SetFloat(f)
			return nil
		}
	}

	wrapped := func(in any, out reflect.Value) error {
		if err := dec(in, out); err != nil {
			return &DecodeError{Type: t, Err: err}
		}
		return nil
	}
	return enc, wrapped, nil
}

func encodeTime(v reflect.Value) (any, error) {
	return v.Interface().(time.Time).Format(time.RFC3339Nano), nil
}

// decodeTime accepts RFC 3339 first and falls back to the looser layouts
// understood by jinzhu/now ("2022-10-01 12:00", "2022-10-01").
func decodeTime(in any, out reflect.Value) error {
	switch x := in.(type) {
	case time.Time:
		out.Set(reflect.ValueOf(x))
		return nil
	case string:
		if t, err := time.Parse(time.RFC3339Nano, x); err == nil {
			out.Set(reflect.ValueOf(t))
			return nil
		}
		t, err := now.Parse(x)
		if err != nil {
			return &DecodeError{Type: timeType, Err: err}
		}
		out.Set(reflect.ValueOf(t))
		return nil
	}
	return &DecodeError{Type: timeType, Err: fmt.Errorf("expected timestamp, got %T", in)}
}

func (r *Registry) optionalCodec(t reflect.Type) (encodeFunc, decodeFunc, error) {
	elem, err := r.build(t.Elem(), Custom)
	if err != nil {
		return nil, nil, err
	}
	enc := func(v reflect.Value) (any, error) {
		if v.IsNil() {
			return nil, nil
		}
		return elem.encode(v.Elem())
	}
	dec := func(in any, out reflect.Value) error {
		if in == nil {
			out.SetZero()
			return nil
		}
		p := reflect.New(t.Elem())
		if err := elem.decode(in, p.Elem()); err != nil {
			return err
		}
		out.Set(p)
		return nil
	}
	return enc, dec, nil
}

// sequenceOf flattens any slice-like input into []any.
func sequenceOf(in any) ([]any, bool) {
	if xs, ok := in.([]any); ok {
		return xs, true
	}
	rv := reflect.ValueOf(in)
	if !rv.IsValid() || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, false
	}
	xs := make([]any, rv.Len())
	for i := range xs {
		xs[i] = rv.Index(i).Interface()
	}
	return xs, true
}

func (r *Registry) sequenceCodec(t reflect.Type) (encodeFunc, decodeFunc, error) {
	elem, err := r.build(t.Elem(), Custom)
	if err != nil {
		return nil, nil, err
	}
	enc := func(v reflect.Value) (any, error) {
		if v.Kind() == reflect.Slice && v.IsNil() {
			return []any{}, nil
		}
		out := make([]any, v.Len())
		for i := range out {
			e, err := elem.encode(v.Index(i))
			if err != nil {
				return nil, err
			}
			out[i] = e
		}
		return out, nil
	}
	dec := func(in any, out reflect.Value) error {
		xs, ok := sequenceOf(in)
		if !ok {
			return &DecodeError{Type: t, Err: fmt.Errorf("expected list, got %T", in)}
		}
		var dst reflect.Value
		if t.Kind() == reflect.Array {
			if len(xs) != t.Len() {
				return &DecodeError{Type: t, Err: fmt.Errorf("expected %d elements, got %d", t.Len(), len(xs))}
			}
			dst = reflect.New(t).Elem()
		} else {
			dst = reflect.MakeSlice(t, len(xs), len(xs))
		}
		for i, x := range xs {
			if err := elem.decode(x, dst.Index(i)); err != nil {
				return withPath(t, fmt.Sprintf("[%d]", i), err)
			}
		}
		out.Set(dst)
		return nil
	}
	return enc, dec, nil
}

func isSet(t reflect.Type) bool {
	e := t.Elem()
	return e.Kind() == reflect.Struct && e.NumField() == 0
}

// setCodec encodes map[K]struct{} as a list ordered by the elements'
// encoded text so the output is stable.
func (r *Registry) setCodec(t reflect.Type) (encodeFunc, decodeFunc, error) {
	key, err := r.build(t.Key(), Custom)
	if err != nil {
		return nil, nil, err
	}
	unit := reflect.New(t.Elem()).Elem()
	enc := func(v reflect.Value) (any, error) {
		out := make([]any, 0, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			e, err := key.encode(iter.Key())
			if err != nil {
				return nil, err
			}
			out = append(out, e)
		}
		slices.SortFunc(out, func(a, b any) int {
			return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b))
		})
		return out, nil
	}
	dec := func(in any, out reflect.Value) error {
		xs, ok := sequenceOf(in)
		if !ok {
			return &DecodeError{Type: t, Err: fmt.Errorf("expected list, got %T", in)}
		}
		m := reflect.MakeMapWithSize(t, len(xs))
		for i, x := range xs {
			k := reflect.New(t.Key()).Elem()
			if err := key.decode(x, k); err != nil {
				return withPath(t, fmt.Sprintf("[%d]", i), err)
			}
			m.SetMapIndex(k, unit)
		}
		out.Set(m)
		return nil
	}
	return enc, dec, nil
}

// mapCodec handles maps whose keys are strings or text marshalers.
func (r *Registry) mapCodec(t reflect.Type) (encodeFunc, decodeFunc, error) {
	kt := t.Key()
	textKey := implements(kt, textMarshalType) && reflect.PointerTo(kt).Implements(textUnmarshType)
	if kt.Kind() != reflect.String && !textKey {
		return nil, nil, &UnsupportedTypeError{Type: t}
	}
	var keyCodec *typeCodec
	if textKey {
		c, err := r.build(kt, Custom)
		if err != nil {
			return nil, nil, err
		}
		keyCodec = c
	}
	elem, err := r.build(t.Elem(), Custom)
	if err != nil {
		return nil, nil, err
	}

	encKey := func(k reflect.Value) (string, error) {
		if keyCodec == nil {
			return k.String(), nil
		}
		e, err := keyCodec.encode(k)
		if err != nil {
			return "", err
		}
		return cast.ToStringE(e)
	}
	decKey := func(s string) (reflect.Value, error) {
		k := reflect.New(kt).Elem()
		if keyCodec == nil {
			k.SetString(s)
			return k, nil
		}
		return k, keyCodec.decode(s, k)
	}

	enc := func(v reflect.Value) (any, error) {
		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			k, err := encKey(iter.Key())
			if err != nil {
				return nil, err
			}
			e, err := elem.encode(iter.Value())
			if err != nil {
				return nil, err
			}
			out[k] = e
		}
		return out, nil
	}
	dec := func(in any, out reflect.Value) error {
		entries, ok := mappingOf(in)
		if !ok {
			return &DecodeError{Type: t, Err: fmt.Errorf("expected mapping, got %T", in)}
		}
		m := reflect.MakeMapWithSize(t, len(entries))
		for ks, x := range entries {
			k, err := decKey(ks)
			if err != nil {
				return withPath(t, ks, err)
			}
			e := reflect.New(t.Elem()).Elem()
			if err := elem.decode(x, e); err != nil {
				return withPath(t, ks, err)
			}
			m.SetMapIndex(k, e)
		}
		out.Set(m)
		return nil
	}
	return enc, dec, nil
}

// mappingOf normalizes any map input to string keys.
func mappingOf(in any) (map[string]any, bool) {
	if m, ok := in.(map[string]any); ok {
		return m, true
	}
	rv := reflect.ValueOf(in)
	if !rv.IsValid() || rv.Kind() != reflect.Map {
		return nil, false
	}
	m := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		k, err := cast.ToStringE(iter.Key().Interface())
		if err != nil {
			return nil, false
		}
		m[k] = iter.Value().Interface()
	}
	return m, true
}

type field struct {
	index    int
	name     string
	required bool
	codec    *typeCodec
	def      reflect.Value
}

// snakeCase turns "TargetDirs" into "target_dirs" and "ID" into "id".
func snakeCase(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (r *Registry) recordCodec(t reflect.Type) (encodeFunc, decodeFunc, error) {
	defaults := reflect.New(t).Elem()
	if implements(t, defaulterType) {
		d := addressable(defaults).Interface().(Defaulter).CodecDefaults()
		dv := reflect.ValueOf(d)
		if dv.Type() != t {
			return nil, nil, fmt.Errorf("codec: %s.CodecDefaults returned %s", t, dv.Type())
		}
		defaults = dv
	}

	var fields []field
	for i := range t.NumField() {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		tag := sf.Tag.Get("codec")
		if tag == "-" {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")
		if name == "" {
			name = snakeCase(sf.Name)
		}
		c, err := r.build(sf.Type, Custom)
		if err != nil {
			return nil, nil, err
		}
		fields = append(fields, field{
			index:    i,
			name:     name,
			required: opts == "required",
			codec:    c,
			def:      defaults.Field(i),
		})
	}
	after := reflect.PointerTo(t).Implements(afterDecoderType)

	enc := func(v reflect.Value) (any, error) {
		out := make(map[string]any, len(fields))
		for _, f := range fields {
			fv := v.Field(f.index)
			if !f.required && reflect.DeepEqual(fv.Interface(), f.def.Interface()) {
				continue
			}
			e, err := f.codec.encode(fv)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", t, f.name, err)
			}
			out[f.name] = e
		}
		return out, nil
	}
	dec := func(in any, out reflect.Value) error {
		entries, ok := mappingOf(in)
		if !ok {
			return &DecodeError{Type: t, Err: fmt.Errorf("expected mapping, got %T", in)}
		}
		dst := reflect.New(t).Elem()
		for _, f := range fields {
			raw, present := entries[f.name]
			switch {
			case present && raw != nil:
				if err := f.codec.decode(raw, dst.Field(f.index)); err != nil {
					return withPath(t, f.name, err)
				}
			case f.required:
				return &DecodeError{Type: t, Path: f.name, Err: ErrMissingField}
			default:
				dst.Field(f.index).Set(f.def)
			}
		}
		if after {
			if err := dst.Addr().Interface().(AfterDecoder).AfterDecode(); err != nil {
				return asDecodeError(t, err)
			}
		}
		out.Set(dst)
		return nil
	}
	return enc, dec, nil
}
