package store

import (
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"google.golang.org/genproto/googleapis/type/latlng"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// FieldKind is the shape of a schema field.
type FieldKind int

const (
	KindScalar FieldKind = iota + 1
	KindDate
	KindGeoPoint
	KindEntity
	KindArray
	KindMap
	// KindRaw fields receive the unpacked store value as is.
	KindRaw
)

func (k FieldKind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindDate:
		return "date"
	case KindGeoPoint:
		return "geopoint"
	case KindEntity:
		return "entity"
	case KindArray:
		return "array"
	case KindMap:
		return "map"
	case KindRaw:
		return "raw"
	}
	return fmt.Sprintf("FieldKind(%d)", int(k))
}

// Field describes one document field of a schema.
type Field struct {
	// Name is the document field name.
	Name string

	Kind FieldKind

	// Nullable is set for pointer fields, which decode null as nil.
	Nullable bool

	// OmitEmpty drops zero values from FromDomain output.
	OmitEmpty bool

	// Elem describes array and map elements.
	Elem *Field

	entity *shape
	index  int
	typ    reflect.Type
}

// Fields returns the fields of a nested entity field.
func (f Field) Fields() []Field {
	if f.entity == nil {
		return nil
	}
	return f.entity.public()
}

type shape struct {
	typ     reflect.Type
	idIndex int
	fields  []*Field
}

func (s *shape) public() []Field {
	out := make([]Field, len(s.fields))
	for i, f := range s.fields {
		out[i] = *f
	}
	return out
}

// Schema maps the struct type T to raw documents and back. It is built once
// from a template value whose fields provide the defaults for fields missing
// from a document.
type Schema[T any] struct {
	template T
	shape    *shape
}

var (
	timeType     = reflect.TypeOf(time.Time{})
	geoPointType = reflect.TypeOf(GeoPoint{})
	latLngType   = reflect.TypeOf(latlng.LatLng{})
)

// NewSchema describes T from its `doc` struct tags.
//
// The tag holds the document field name followed by options:
// "omitempty", and "shape=scalar|date|geopoint|raw" which is required for
// interface-typed fields. A field tagged "-" is ignored; untagged exported
// fields use their Go name with a lower-case first letter. The field named
// "id" receives the document id and is not written back.
func NewSchema[T any](template T) (*Schema[T], error) {
	t := reflect.TypeOf(template)
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %v is not a struct type", ErrSchema, t)
	}
	sh, err := buildShape(t, map[reflect.Type]bool{})
	if err != nil {
		return nil, err
	}
	return &Schema[T]{template: template, shape: sh}, nil
}

// MustSchema is like NewSchema but panics on error. Use it for package-level
// schema variables.
func MustSchema[T any](template T) *Schema[T] {
	s, err := NewSchema(template)
	if err != nil {
		panic(err)
	}
	return s
}

// Template returns a copy of the template value.
func (s *Schema[T]) Template() T {
	out := s.template
	deepCopy(reflect.ValueOf(&out).Elem())
	return out
}

// Fields returns the top-level field descriptors.
func (s *Schema[T]) Fields() []Field {
	return s.shape.public()
}

func buildShape(t reflect.Type, visiting map[reflect.Type]bool) (*shape, error) {
	if visiting[t] {
		return nil, fmt.Errorf("%w: %v refers to itself", ErrSchema, t)
	}
	visiting[t] = true
	defer delete(visiting, t)

	sh := &shape{typ: t, idIndex: -1}
	seen := map[string]bool{}
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		name, opts := parseTag(sf)
		if name == "-" {
			continue
		}
		if seen[name] {
			return nil, fmt.Errorf("%w: %v has two fields named %q", ErrSchema, t, name)
		}
		seen[name] = true

		if name == "id" {
			if sf.Type.Kind() != reflect.String {
				return nil, fmt.Errorf("%w: %v.%s must be a string to hold the document id", ErrSchema, t, sf.Name)
			}
			sh.idIndex = i
			continue
		}

		f, err := buildField(sf.Type, opts["shape"], visiting)
		if err != nil {
			return nil, fmt.Errorf("%v.%s: %w", t, sf.Name, err)
		}
		f.Name = name
		f.index = i
		_, f.OmitEmpty = opts["omitempty"]
		sh.fields = append(sh.fields, f)
	}
	return sh, nil
}

func parseTag(sf reflect.StructField) (string, map[string]string) {
	opts := map[string]string{}
	tag, ok := sf.Tag.Lookup("doc")
	if !ok {
		r, size := utf8.DecodeRuneInString(sf.Name)
		return string(unicode.ToLower(r)) + sf.Name[size:], opts
	}
	parts := strings.Split(tag, ",")
	name := parts[0]
	if name == "" {
		r, size := utf8.DecodeRuneInString(sf.Name)
		name = string(unicode.ToLower(r)) + sf.Name[size:]
	}
	for _, p := range parts[1:] {
		k, v, _ := strings.Cut(p, "=")
		opts[k] = v
	}
	return name, opts
}

func buildField(t reflect.Type, hint string, visiting map[reflect.Type]bool) (*Field, error) {
	f := &Field{typ: t}
	if t.Kind() == reflect.Pointer {
		f.Nullable = true
		t = t.Elem()
	}

	switch {
	case t == timeType:
		f.Kind = KindDate
		return f, nil
	case t == geoPointType, t == latLngType:
		f.Kind = KindGeoPoint
		return f, nil
	}

	switch t.Kind() {
	case reflect.Interface:
		switch hint {
		case "scalar":
			f.Kind = KindScalar
		case "date":
			f.Kind = KindDate
		case "geopoint":
			f.Kind = KindGeoPoint
		case "raw":
			f.Kind = KindRaw
		case "":
			return nil, fmt.Errorf("%w: interface field needs a shape hint", ErrSchema)
		default:
			return nil, fmt.Errorf("%w: unknown shape %q", ErrSchema, hint)
		}
		f.Nullable = true
	case reflect.Struct:
		sh, err := buildShape(t, visiting)
		if err != nil {
			return nil, err
		}
		f.Kind = KindEntity
		f.entity = sh
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			f.Kind = KindScalar
			return f, nil
		}
		elem, err := buildElem(t.Elem(), visiting)
		if err != nil {
			return nil, err
		}
		f.Kind = KindArray
		f.Elem = elem
		f.Nullable = true
	case reflect.Map:
		if t.Key().Kind() != reflect.String {
			return nil, fmt.Errorf("%w: map keys must be strings", ErrSchema)
		}
		elem, err := buildElem(t.Elem(), visiting)
		if err != nil {
			return nil, err
		}
		f.Kind = KindMap
		f.Elem = elem
		f.Nullable = true
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		f.Kind = KindScalar
	default:
		return nil, fmt.Errorf("%w: unsupported type %v", ErrSchema, t)
	}
	return f, nil
}

// buildElem describes slice and map elements. Interface elements are raw.
func buildElem(t reflect.Type, visiting map[reflect.Type]bool) (*Field, error) {
	if t.Kind() == reflect.Interface {
		return &Field{Kind: KindRaw, Nullable: true, typ: t}, nil
	}
	return buildField(t, "", visiting)
}

// ToDomain builds a T from a raw document. The document's "id" entry fills
// the id field, undeclared entries are ignored and missing entries keep the
// template value.
func (s *Schema[T]) ToDomain(raw map[string]any) (T, error) {
	out := s.Template()
	if err := decodeShape(s.shape, UnpackMap(raw), reflect.ValueOf(&out).Elem()); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// FromDomain converts v into a raw document, without its id.
func (s *Schema[T]) FromDomain(v T) map[string]any {
	return encodeShape(s.shape, reflect.ValueOf(v), false)
}

func decodeShape(sh *shape, data map[string]any, dst reflect.Value) error {
	if sh.idIndex >= 0 {
		if id, ok := data["id"].(string); ok {
			idField := dst.Field(sh.idIndex)
			idField.Set(reflect.ValueOf(id).Convert(idField.Type()))
		}
	}
	for _, f := range sh.fields {
		raw, ok := data[f.Name]
		if !ok {
			continue
		}
		if err := decodeInto(f, raw, dst.Field(f.index)); err != nil {
			return fmt.Errorf("field %q: %w", f.Name, err)
		}
	}
	return nil
}

func decodeInto(f *Field, raw any, dst reflect.Value) error {
	if raw == nil {
		if f.Nullable {
			dst.Set(reflect.Zero(dst.Type()))
		}
		return nil
	}

	if dst.Kind() == reflect.Pointer {
		elem := reflect.New(dst.Type().Elem())
		if !dst.IsNil() {
			elem.Elem().Set(dst.Elem())
		}
		inner := *f
		inner.Nullable = false
		if err := decodeInto(&inner, raw, elem.Elem()); err != nil {
			return err
		}
		dst.Set(elem)
		return nil
	}

	switch f.Kind {
	case KindScalar:
		if dst.Kind() == reflect.Interface {
			dst.Set(reflect.ValueOf(raw))
			return nil
		}
		v, err := convertScalar(raw, dst.Type())
		if err != nil {
			return err
		}
		dst.Set(v)
	case KindDate:
		t, err := toTime(raw)
		if err != nil {
			return err
		}
		dst.Set(reflect.ValueOf(t))
	case KindGeoPoint:
		p, err := toGeoPoint(raw)
		if err != nil {
			return err
		}
		if dst.Type() == latLngType {
			dst.Set(reflect.ValueOf(latlng.LatLng{Latitude: p.Latitude, Longitude: p.Longitude}))
			return nil
		}
		dst.Set(reflect.ValueOf(p))
	case KindEntity:
		m, ok := raw.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: want a map, got %T", ErrDecode, raw)
		}
		return decodeShape(f.entity, m, dst)
	case KindArray:
		values, ok := raw.([]any)
		if !ok {
			return fmt.Errorf("%w: want an array, got %T", ErrDecode, raw)
		}
		// The template's first element is the default for every element.
		var proto reflect.Value
		if dst.Len() > 0 {
			proto = dst.Index(0)
		}
		out := reflect.MakeSlice(dst.Type(), len(values), len(values))
		for i, v := range values {
			if proto.IsValid() {
				out.Index(i).Set(proto)
				deepCopy(out.Index(i))
			}
			if err := decodeInto(f.Elem, v, out.Index(i)); err != nil {
				return fmt.Errorf("index %d: %w", i, err)
			}
		}
		dst.Set(out)
	case KindMap:
		values, ok := raw.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: want a map, got %T", ErrDecode, raw)
		}
		out := reflect.MakeMapWithSize(dst.Type(), len(values))
		for k, v := range values {
			elem := reflect.New(dst.Type().Elem()).Elem()
			if err := decodeInto(f.Elem, v, elem); err != nil {
				return fmt.Errorf("key %q: %w", k, err)
			}
			out.SetMapIndex(reflect.ValueOf(k).Convert(dst.Type().Key()), elem)
		}
		dst.Set(out)
	case KindRaw:
		rv := reflect.ValueOf(raw)
		if !rv.Type().AssignableTo(dst.Type()) {
			return fmt.Errorf("%w: cannot assign %T to %v", ErrDecode, raw, dst.Type())
		}
		dst.Set(rv)
	}
	return nil
}

func convertScalar(raw any, t reflect.Type) (reflect.Value, error) {
	out := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.String:
		s, ok := raw.(string)
		if !ok {
			return out, fmt.Errorf("%w: want a string, got %T", ErrDecode, raw)
		}
		out.SetString(s)
	case reflect.Bool:
		b, ok := raw.(bool)
		if !ok {
			return out, fmt.Errorf("%w: want a bool, got %T", ErrDecode, raw)
		}
		out.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, ok := toInt64(raw)
		if !ok || out.OverflowInt(n) {
			return out, fmt.Errorf("%w: want an integer, got %T(%v)", ErrDecode, raw, raw)
		}
		out.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, ok := toInt64(raw)
		if !ok || n < 0 || out.OverflowUint(uint64(n)) {
			return out, fmt.Errorf("%w: want an unsigned integer, got %T(%v)", ErrDecode, raw, raw)
		}
		out.SetUint(uint64(n))
	case reflect.Float32, reflect.Float64:
		n, ok := toFloat64(raw)
		if !ok {
			return out, fmt.Errorf("%w: want a number, got %T", ErrDecode, raw)
		}
		out.SetFloat(n)
	case reflect.Slice:
		b, ok := raw.([]byte)
		if !ok {
			return out, fmt.Errorf("%w: want bytes, got %T", ErrDecode, raw)
		}
		out.SetBytes(append([]byte(nil), b...))
	default:
		return out, fmt.Errorf("%w: unsupported scalar type %v", ErrDecode, t)
	}
	return out, nil
}

// toTime accepts timestamps, epoch milliseconds and RFC 3339 strings.
func toTime(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return v, nil
	case *timestamppb.Timestamp:
		return v.AsTime(), nil
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		return t, nil
	}
	if ms, ok := toInt64(raw); ok {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: want a date, got %T", ErrDecode, raw)
}

func toGeoPoint(raw any) (GeoPoint, error) {
	switch v := raw.(type) {
	case GeoPoint:
		return v, nil
	case *latlng.LatLng:
		return GeoPoint{Latitude: v.GetLatitude(), Longitude: v.GetLongitude()}, nil
	case map[string]any:
		if lat, lng, ok := coordinatePair(v); ok {
			return GeoPoint{Latitude: lat, Longitude: lng}, nil
		}
	}
	return GeoPoint{}, fmt.Errorf("%w: want a geo point, got %T", ErrDecode, raw)
}

func encodeShape(sh *shape, v reflect.Value, withID bool) map[string]any {
	out := make(map[string]any, len(sh.fields)+1)
	if withID && sh.idIndex >= 0 {
		out["id"] = v.Field(sh.idIndex).String()
	}
	for _, f := range sh.fields {
		fv := v.Field(f.index)
		if f.OmitEmpty && fv.IsZero() {
			out[f.Name] = Unset
			continue
		}
		out[f.Name] = encodeValue(f, fv)
	}
	return out
}

func encodeValue(f *Field, v reflect.Value) any {
	if v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil
		}
		if v.Kind() == reflect.Pointer {
			v = v.Elem()
		}
	}

	switch f.Kind {
	case KindGeoPoint:
		var p GeoPoint
		switch x := v.Interface().(type) {
		case GeoPoint:
			p = x
		case latlng.LatLng:
			p = GeoPoint{Latitude: x.GetLatitude(), Longitude: x.GetLongitude()}
		case *latlng.LatLng:
			p = GeoPoint{Latitude: x.GetLatitude(), Longitude: x.GetLongitude()}
		default:
			return x
		}
		return map[string]any{"latitude": p.Latitude, "longitude": p.Longitude}
	case KindEntity:
		return encodeShape(f.entity, v, true)
	case KindArray:
		if v.IsNil() {
			return nil
		}
		out := make([]any, v.Len())
		for i := range out {
			out[i] = encodeValue(f.Elem, v.Index(i))
		}
		return out
	case KindMap:
		if v.IsNil() {
			return nil
		}
		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = encodeValue(f.Elem, iter.Value())
		}
		return out
	}
	return v.Interface()
}

// deepCopy replaces slices, maps and pointers reachable from v with copies so
// decoded values never share storage with a schema template.
func deepCopy(v reflect.Value) {
	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() || !v.CanSet() {
			return
		}
		elem := reflect.New(v.Type().Elem())
		elem.Elem().Set(v.Elem())
		deepCopy(elem.Elem())
		v.Set(elem)
	case reflect.Struct:
		if v.Type() == timeType {
			return
		}
		for i := 0; i < v.NumField(); i++ {
			if v.Field(i).CanSet() {
				deepCopy(v.Field(i))
			}
		}
	case reflect.Slice:
		if v.IsNil() || !v.CanSet() {
			return
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		reflect.Copy(out, v)
		for i := 0; i < out.Len(); i++ {
			deepCopy(out.Index(i))
		}
		v.Set(out)
	case reflect.Map:
		if v.IsNil() || !v.CanSet() {
			return
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			elem := reflect.New(v.Type().Elem()).Elem()
			elem.Set(iter.Value())
			deepCopy(elem)
			out.SetMapIndex(iter.Key(), elem)
		}
		v.Set(out)
	}
}
