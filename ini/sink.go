package ini

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// A Sink that stores the keys of one section into struct fields,
// parsing non-string fields with fmt.Sscan.
type StructSink struct {
	// Only items in this section are stored; nil means the part
	// before the first header.
	Sec *Section

	// Pointers to the fields, by key.
	Fields map[string]interface{}
}

func (s *StructSink) AddField(key string, ptr interface{}) {
	if s.Fields == nil {
		s.Fields = make(map[string]interface{})
	}
	s.Fields[key] = ptr
}

var errNotStructPtr = errors.New("argument must be pointer to struct")

// Add every field of the struct i points to.  The key is the `ini`
// tag, or else the field name with '_' turned into '-'.  Tag `ini:"-"`
// skips a field.
func (s *StructSink) AddStruct(i interface{}) {
	v := reflect.ValueOf(i)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		panic(errNotStructPtr)
	}
	v = v.Elem()
	t := v.Type()
	for i, n := 0, t.NumField(); i < n; i++ {
		f := t.Field(i)
		key := f.Tag.Get("ini")
		if key == "-" || f.PkgPath != "" {
			continue
		} else if key == "" {
			key = strings.ReplaceAll(f.Name, "_", "-")
		}
		s.AddField(key, v.Field(i).Addr().Interface())
	}
}

// The section in INI syntax, keys sorted.
func (s *StructSink) String() string {
	out := strings.Builder{}
	if s.Sec != nil {
		fmt.Fprintf(&out, "%s\n", s.Sec)
	}
	keys := make([]string, 0, len(s.Fields))
	for k := range s.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := reflect.ValueOf(s.Fields[k]).Elem().Interface()
		fmt.Fprintf(&out, "\t%s = %s\n", k, Escape(fmt.Sprint(v)))
	}
	return out.String()
}

func (s *StructSink) Item(it Item) error {
	if !s.Sec.Eq(it.Section) {
		return nil
	}
	ptr, ok := s.Fields[it.Key]
	if !ok {
		return BadKey(fmt.Sprintf("unknown key %s", it.QKey()))
	}
	v := reflect.ValueOf(ptr).Elem()
	switch {
	case it.Value == nil:
		v.Set(reflect.Zero(v.Type()))
	case v.Kind() == reflect.String:
		v.SetString(*it.Value)
	default:
		if _, err := fmt.Sscan(*it.Value, ptr); err != nil {
			return BadValue(fmt.Sprintf("%s: invalid value %q",
				it.QKey(), *it.Value))
		}
	}
	return nil
}

// Several sinks fed from one file.
type Sinks []Sink

func (s Sinks) Item(it Item) error {
	for i := range s {
		if err := s[i].Item(it); err != nil {
			return err
		}
	}
	return nil
}

func (s Sinks) StartSection(sec *Section) error {
	for i := range s {
		if ss, ok := s[i].(interface{ StartSection(*Section) error }); ok {
			if err := ss.StartSection(sec); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s Sinks) Done() {
	for i := range s {
		if done, ok := s[i].(interface{ Done() }); ok {
			done.Done()
		}
	}
}
