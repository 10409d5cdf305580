package xychain

import (
	_ "embed"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed schema.yaml
var defaultSchemaYAML []byte

// Schema declares the custom RPC calls and data types a node exposes on top
// of the default Substrate surface.
type Schema struct {
	RPC   map[string]map[string]MethodDef `yaml:"rpc"`
	Types map[string]*TypeDef             `yaml:"types"`
}

// MethodDef is one custom RPC method.
type MethodDef struct {
	Description string     `yaml:"description"`
	Params      []ParamDef `yaml:"params"`
	Type        string     `yaml:"type"`
}

// ParamDef is a named method parameter.
type ParamDef struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// TypeDef is an alias (`LockId: u64`), an enum (`_enum: [...]`) or a struct
// whose fields keep their declaration order.
type TypeDef struct {
	Alias  string
	Enum   []string
	Fields []FieldDef
}

// FieldDef is one struct field.
type FieldDef struct {
	Name string
	Type string
}

// IsStruct reports whether the type declares fields.
func (t *TypeDef) IsStruct() bool { return len(t.Fields) > 0 }

func (t *TypeDef) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		t.Alias = node.Value
		return nil
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			key, val := node.Content[i], node.Content[i+1]
			if key.Value == "_enum" {
				if err := val.Decode(&t.Enum); err != nil {
					return fmt.Errorf("line %d: _enum: %w", key.Line, err)
				}
				continue
			}
			if val.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: field %q must name a type", key.Line, key.Value)
			}
			t.Fields = append(t.Fields, FieldDef{Name: key.Value, Type: val.Value})
		}
		if len(t.Enum) > 0 && len(t.Fields) > 0 {
			return fmt.Errorf("line %d: type mixes _enum and fields", node.Line)
		}
		return nil
	default:
		return fmt.Errorf("line %d: unsupported type definition", node.Line)
	}
}

// DefaultSchema returns the XY chain schema embedded in the binary.
func DefaultSchema() (*Schema, error) {
	return ParseSchema(defaultSchemaYAML)
}

// ParseSchema parses and validates a YAML schema.
func ParseSchema(data []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

var primitiveTypes = map[string]bool{
	"bool": true, "u8": true, "u16": true, "u32": true, "u64": true, "u128": true,
	"i8": true, "i16": true, "i32": true, "i64": true, "i128": true,
	"String": true, "Text": true, "Bytes": true, "AccountId": true, "Hash": true,
	"Balance": true,
}

// Validate checks that every type referenced by a method or a field resolves.
func (s *Schema) Validate() error {
	var errs []error
	for ns, methods := range s.RPC {
		for name, m := range methods {
			for _, p := range m.Params {
				if err := s.resolve(p.Type, nil); err != nil {
					errs = append(errs, fmt.Errorf("%s.%s param %s: %w", ns, name, p.Name, err))
				}
			}
			if err := s.resolve(m.Type, nil); err != nil {
				errs = append(errs, fmt.Errorf("%s.%s result: %w", ns, name, err))
			}
		}
	}
	for name, t := range s.Types {
		if t.Alias != "" {
			if err := s.resolve(t.Alias, map[string]bool{name: true}); err != nil {
				errs = append(errs, fmt.Errorf("type %s: %w", name, err))
			}
		}
		for _, f := range t.Fields {
			if err := s.resolve(f.Type, nil); err != nil {
				errs = append(errs, fmt.Errorf("type %s.%s: %w", name, f.Name, err))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrSchemaMismatch, errors.Join(errs...))
	}
	return nil
}

func (s *Schema) resolve(typ string, aliasChain map[string]bool) error {
	typ = strings.TrimSpace(typ)
	if typ == "" {
		return errors.New("empty type")
	}
	if inner, ok := genericArg(typ, "Vec"); ok {
		return s.resolve(inner, aliasChain)
	}
	if inner, ok := genericArg(typ, "Option"); ok {
		return s.resolve(inner, aliasChain)
	}
	if primitiveTypes[typ] {
		return nil
	}
	def, ok := s.Types[typ]
	if !ok {
		return fmt.Errorf("unknown type %q", typ)
	}
	if def.Alias == "" {
		return nil
	}
	if aliasChain[typ] {
		return fmt.Errorf("alias cycle through %q", typ)
	}
	next := map[string]bool{typ: true}
	for k := range aliasChain {
		next[k] = true
	}
	return s.resolve(def.Alias, next)
}

func genericArg(typ, wrapper string) (string, bool) {
	if strings.HasPrefix(typ, wrapper+"<") && strings.HasSuffix(typ, ">") {
		return typ[len(wrapper)+1 : len(typ)-1], true
	}
	return "", false
}

// Method looks up a declared method.
func (s *Schema) Method(namespace, name string) (MethodDef, bool) {
	m, ok := s.RPC[namespace][name]
	return m, ok
}

// MethodNames returns the wire names (namespace_method) of every declared
// method, sorted.
func (s *Schema) MethodNames() []string {
	var names []string
	for ns, methods := range s.RPC {
		for name := range methods {
			names = append(names, ns+"_"+name)
		}
	}
	sort.Strings(names)
	return names
}

// goBindings ties schema struct and enum types to the Go types responses
// are decoded into.
var goBindings = map[string]reflect.Type{
	"RpcAccountData": reflect.TypeOf(RPCAccountData{}),
	"RpcLockedFund":  reflect.TypeOf(RPCLockedFund{}),
	"LockReason":     reflect.TypeOf(LockReason(0)),
	"PendingNftPods": reflect.TypeOf(PendingNftPods{}),
	"RpcNftData":     reflect.TypeOf(RPCNftData{}),
	"NftData":        reflect.TypeOf(NftData{}),
}

// Registry is a validated schema bound to Go decoding types.
type Registry struct {
	schema   *Schema
	bindings map[string]reflect.Type
}

// Register binds every struct and enum type of s to its Go type and checks
// that JSON field names and enum variants line up.
func Register(s *Schema) (*Registry, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}

	var errs []error
	for name, def := range s.Types {
		if def.Alias != "" {
			continue
		}
		goType, ok := goBindings[name]
		if !ok {
			errs = append(errs, fmt.Errorf("type %s has no Go binding", name))
			continue
		}
		switch {
		case def.IsStruct():
			errs = append(errs, checkStructBinding(name, def, goType)...)
		case len(def.Enum) > 0:
			if name == "LockReason" && !equalStrings(def.Enum, lockReasonNames) {
				errs = append(errs, fmt.Errorf("enum %s variants %v, Go knows %v", name, def.Enum, lockReasonNames))
			}
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrSchemaMismatch, errors.Join(errs...))
	}
	return &Registry{schema: s, bindings: goBindings}, nil
}

// Schema returns the registered schema.
func (r *Registry) Schema() *Schema { return r.schema }

// GoType returns the Go type bound to a schema type name.
func (r *Registry) GoType(name string) (reflect.Type, bool) {
	t, ok := r.bindings[name]
	return t, ok
}

func checkStructBinding(name string, def *TypeDef, goType reflect.Type) []error {
	if goType.Kind() != reflect.Struct {
		return []error{fmt.Errorf("type %s is bound to non-struct %s", name, goType)}
	}
	goFields := make(map[string]bool, goType.NumField())
	for i := 0; i < goType.NumField(); i++ {
		tag, _, _ := strings.Cut(goType.Field(i).Tag.Get("json"), ",")
		if tag != "" && tag != "-" {
			goFields[tag] = true
		}
	}

	var errs []error
	for _, f := range def.Fields {
		if !goFields[f.Name] {
			errs = append(errs, fmt.Errorf("type %s field %s missing from %s", name, f.Name, goType))
		}
		delete(goFields, f.Name)
	}
	for extra := range goFields {
		errs = append(errs, fmt.Errorf("type %s: %s has undeclared field %s", name, goType, extra))
	}
	return errs
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
