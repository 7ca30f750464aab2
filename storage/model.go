package storage

import (
	"reflect"
	"strings"
	"sync"

	pluralize "github.com/gertd/go-pluralize"
	"github.com/iancoleman/strcase"
)

var (
	pluralizer = pluralize.NewClient()
	modelNames = map[reflect.Type]string{}
	namesMu    sync.Mutex
)

// Model defines the interface for records which want to be persisted to a
// storage engine.
type Model interface {
	// PK returns the primary key that the record is stored under.
	PK() string
}

// Namer allows Models to override how the table-name is determined, for
// engines which require it.
type Namer interface {
	Name() string
}

// Name returns a pluralized, snake_cased version of the model's name, either
// derived from the struct or from the Namer interface.
func Name(m any) string {
	if n, ok := m.(Namer); ok {
		return n.Name()
	}
	t := reflect.TypeOf(m)
	if t.Kind() == reflect.Ptr || t.Kind() == reflect.Slice {
		t = t.Elem()
	}

	namesMu.Lock()
	defer namesMu.Unlock()
	if n, ok := modelNames[t]; ok {
		return n
	}
	n := pluralizer.Plural(strcase.ToSnake(t.Name()))
	modelNames[t] = n
	return n
}

// JSONFieldName returns the key a struct field serializes to, honoring any
// `json` tag on the field. Engines that filter on serialized values use this
// to build queries.
func JSONFieldName(f reflect.StructField) string {
	tag := f.Tag.Get("json")
	if tag == "" || tag == "-" {
		return f.Name
	}
	if i := strings.Index(tag, ","); i >= 0 {
		tag = tag[:i]
	}
	if tag == "" {
		return f.Name
	}
	return tag
}
