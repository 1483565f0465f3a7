package compiler

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/flatten/internal/ir"
	"github.com/roach88/flatten/internal/model"
)

// LoadModel reads and compiles a CUE model file.
func LoadModel(path string) (*model.Model, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	return CompileModelSource(path, src)
}

// CompileModelSource compiles CUE source text into a model. filename is
// used for error positions only.
func CompileModelSource(filename string, src []byte) (*model.Model, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	return CompileModel(v)
}

// entityDef is one entry of the entity struct, in declaration order.
type entityDef struct {
	name string
	base string
	v    cue.Value
}

// CompileModel parses a CUE value into a model.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The value holds an entity struct keyed by entity type name:
//
//	entity: Blog: {
//		table: "blogs"
//		properties: {Id: "int", Name: "string?"}
//		key: ["Id"]
//		navigations: Posts: {target: "Post", foreign_key: ["BlogId"], collection: "set"}
//	}
//	entity: FeaturedPost: {base: "Post", properties: Badge: "string?"}
//
// Derived types (base set) share their root's table and key and may not
// declare either.
func CompileModel(v cue.Value) (*model.Model, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	entityVal := v.LookupPath(cue.ParsePath("entity"))
	if !entityVal.Exists() {
		return nil, &CompileError{
			Field:   "entity",
			Message: "at least one entity is required",
			Pos:     v.Pos(),
		}
	}
	iter, err := entityVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var defs []entityDef
	for iter.Next() {
		name, err := model.NormalizeName(iter.Label())
		if err != nil {
			return nil, &CompileError{Field: "entity", Message: err.Error(), Pos: iter.Value().Pos()}
		}
		def := entityDef{name: name, v: iter.Value()}
		if baseVal := def.v.LookupPath(cue.ParsePath("base")); baseVal.Exists() {
			if def.base, err = baseVal.String(); err != nil {
				return nil, formatCUEError(err)
			}
		}
		defs = append(defs, def)
	}
	if len(defs) == 0 {
		return nil, &CompileError{Field: "entity", Message: "at least one entity is required", Pos: entityVal.Pos()}
	}

	types, err := createEntityTypes(defs)
	if err != nil {
		return nil, err
	}

	for _, def := range defs {
		if err := parseProperties(types[def.name], def); err != nil {
			return nil, err
		}
	}
	for _, def := range defs {
		if err := parseKey(types[def.name], def); err != nil {
			return nil, err
		}
	}
	for _, def := range defs {
		if err := parseNavigations(types, def); err != nil {
			return nil, err
		}
	}

	all := make([]*model.EntityType, 0, len(defs))
	for _, def := range defs {
		all = append(all, types[def.name])
	}
	return model.New(all...), nil
}

// createEntityTypes creates every entity type, bases before derived types.
// An unknown base or an inheritance cycle is an error.
func createEntityTypes(defs []entityDef) (map[string]*model.EntityType, error) {
	byName := make(map[string]entityDef, len(defs))
	for _, def := range defs {
		byName[def.name] = def
	}

	graph := make(dependencyGraph)
	for _, def := range defs {
		graph[def.name] = []string{}
		if def.base == "" {
			continue
		}
		if _, ok := byName[def.base]; !ok {
			return nil, &CompileError{
				Field:   fmt.Sprintf("entity.%s.base", def.name),
				Message: fmt.Sprintf("unknown base type %q", def.base),
				Pos:     def.v.LookupPath(cue.ParsePath("base")).Pos(),
			}
		}
		graph[def.name] = []string{def.base}
	}
	if cycles := findCycles(graph); len(cycles) > 0 {
		first := byName[cycles[0].Path[0]]
		return nil, &CompileError{
			Field:   fmt.Sprintf("entity.%s.base", first.name),
			Message: "inheritance cycle: " + cycles[0].String(),
			Pos:     first.v.Pos(),
		}
	}

	types := make(map[string]*model.EntityType, len(defs))
	var create func(def entityDef) (*model.EntityType, error)
	create = func(def entityDef) (*model.EntityType, error) {
		if t, ok := types[def.name]; ok {
			return t, nil
		}
		var base *model.EntityType
		if def.base != "" {
			var err error
			if base, err = create(byName[def.base]); err != nil {
				return nil, err
			}
		}
		table, err := optionalString(def.v, "table")
		if err != nil {
			return nil, err
		}
		if base != nil && table != "" {
			return nil, &CompileError{
				Field:   fmt.Sprintf("entity.%s.table", def.name),
				Message: fmt.Sprintf("derived type shares the table of %s", base.Root().Name),
				Pos:     def.v.LookupPath(cue.ParsePath("table")).Pos(),
			}
		}
		t := model.NewEntityType(def.name, table, base)
		types[def.name] = t
		return t, nil
	}
	for _, def := range defs {
		if _, err := create(def); err != nil {
			return nil, err
		}
	}
	return types, nil
}

// parseProperties declares the scalar properties of one entity type in
// declaration order.
func parseProperties(t *model.EntityType, def entityDef) error {
	propsVal := def.v.LookupPath(cue.ParsePath("properties"))
	if !propsVal.Exists() {
		if def.base == "" {
			return &CompileError{
				Field:   fmt.Sprintf("entity.%s.properties", def.name),
				Message: "properties are required",
				Pos:     def.v.Pos(),
			}
		}
		return nil
	}
	iter, err := propsVal.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	for iter.Next() {
		field := fmt.Sprintf("entity.%s.properties.%s", def.name, iter.Label())
		name, err := model.NormalizeName(iter.Label())
		if err != nil {
			return &CompileError{Field: field, Message: err.Error(), Pos: iter.Value().Pos()}
		}
		if t.Property(name) != nil {
			return &CompileError{Field: field, Message: "duplicate property", Pos: iter.Value().Pos()}
		}
		st, err := extractScalarType(iter.Value(), field)
		if err != nil {
			return err
		}
		t.AddProperty(name, st)
	}
	return nil
}

// extractScalarType converts a property declaration to a scalar type.
// A string value is parsed ("int", "string?"); a CUE type (int, string,
// bool) declares a non-nullable property. Floats are forbidden.
func extractScalarType(v cue.Value, field string) (model.ScalarType, error) {
	if s, err := v.String(); err == nil {
		st, err := model.ParseScalarType(s)
		if err != nil {
			return model.ScalarType{}, &CompileError{Field: field, Message: err.Error(), Pos: v.Pos()}
		}
		return st, nil
	}
	switch v.IncompleteKind() {
	case cue.IntKind:
		return model.ScalarType{Kind: model.KindInt}, nil
	case cue.StringKind:
		return model.ScalarType{Kind: model.KindString}, nil
	case cue.BoolKind:
		return model.ScalarType{Kind: model.KindBool}, nil
	case cue.FloatKind, cue.NumberKind:
		return model.ScalarType{}, &CompileError{
			Field:   field,
			Message: "float types are forbidden - use int instead",
			Pos:     v.Pos(),
		}
	default:
		return model.ScalarType{}, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("unsupported type kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

func parseKey(t *model.EntityType, def entityDef) error {
	field := fmt.Sprintf("entity.%s.key", def.name)
	keyVal := def.v.LookupPath(cue.ParsePath("key"))
	if def.base != "" {
		if keyVal.Exists() {
			return &CompileError{Field: field, Message: fmt.Sprintf("derived types inherit the key of %s", t.Root().Name), Pos: keyVal.Pos()}
		}
		return nil
	}
	if !keyVal.Exists() {
		return &CompileError{Field: field, Message: "key is required", Pos: def.v.Pos()}
	}
	names, err := stringList(keyVal)
	if err != nil {
		return err
	}
	if err := t.SetPrimaryKey(names...); err != nil {
		return &CompileError{Field: field, Message: err.Error(), Pos: keyVal.Pos()}
	}
	return nil
}

func parseNavigations(types map[string]*model.EntityType, def entityDef) error {
	navsVal := def.v.LookupPath(cue.ParsePath("navigations"))
	if !navsVal.Exists() {
		return nil
	}
	iter, err := navsVal.Fields()
	if err != nil {
		return formatCUEError(err)
	}
	t := types[def.name]
	for iter.Next() {
		name := iter.Label()
		navVal := iter.Value()
		field := fmt.Sprintf("entity.%s.navigations.%s", def.name, name)

		if t.Property(name) != nil || t.Navigation(name) != nil {
			return &CompileError{Field: field, Message: "name is already declared", Pos: navVal.Pos()}
		}

		targetName, err := optionalString(navVal, "target")
		if err != nil {
			return err
		}
		target, ok := types[targetName]
		if !ok {
			return &CompileError{Field: field + ".target", Message: fmt.Sprintf("unknown entity type %q", targetName), Pos: navVal.Pos()}
		}

		fkVal := navVal.LookupPath(cue.ParsePath("foreign_key"))
		if !fkVal.Exists() {
			return &CompileError{Field: field + ".foreign_key", Message: "foreign_key is required", Pos: navVal.Pos()}
		}
		fk, err := stringList(fkVal)
		if err != nil {
			return err
		}

		var principal []string
		if pkVal := navVal.LookupPath(cue.ParsePath("principal_key")); pkVal.Exists() {
			if principal, err = stringList(pkVal); err != nil {
				return err
			}
		}

		kind := ir.KindList
		collection, err := optionalString(navVal, "collection")
		if err != nil {
			return err
		}
		switch ir.CollectionKind(collection) {
		case "", ir.KindList:
		case ir.KindSet:
			kind = ir.KindSet
		default:
			return &CompileError{Field: field + ".collection", Message: fmt.Sprintf("collection must be %q or %q", ir.KindList, ir.KindSet), Pos: navVal.Pos()}
		}

		if _, err := t.AddNavigation(name, target, fk, principal, kind); err != nil {
			return &CompileError{Field: field, Message: err.Error(), Pos: navVal.Pos()}
		}
	}
	return nil
}

// optionalString returns the string at path, or "" when absent.
func optionalString(v cue.Value, path string) (string, error) {
	f := v.LookupPath(cue.ParsePath(path))
	if !f.Exists() {
		return "", nil
	}
	s, err := f.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

func stringList(v cue.Value) ([]string, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, s)
	}
	return out, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
