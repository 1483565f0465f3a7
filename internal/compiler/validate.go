package compiler

import (
	"fmt"
	"slices"

	"github.com/roach88/flatten/internal/ir"
	"github.com/roach88/flatten/internal/model"
)

// Validation error codes (E100-E199)
const (
	// Model errors (E101-E109)
	ErrDuplicateTable      = "E101" // two root types map to one table
	ErrDuplicateColumn     = "E102" // a column is declared twice in one table
	ErrReservedColumn      = "E103" // property collides with the discriminator column
	ErrDerivedForeignKey   = "E104" // non-nullable foreign key on a derived type
	ErrNullableKey         = "E105" // primary key property is nullable
	ErrInvalidTableName    = "E106" // table name is not an identifier

	// Query errors (E110-E119)
	ErrUnknownEntity      = "E110" // from names no entity type
	ErrUnknownField       = "E111" // field names no property of the source
	ErrUnknownNavigation  = "E112" // navigation names no navigation of the source
	ErrInvalidOperator    = "E113" // unsupported filter operator
	ErrDuplicateName      = "E114" // duplicate select name
	ErrInvalidSelectItem  = "E115" // select item must set exactly one of field/navigation
	ErrMisplacedClause    = "E116" // collection clauses on a field item
	ErrValueTypeMismatch  = "E117" // filter value does not match the property type
	ErrUnknownDerivedType = "E118" // of_type names no type derived from the target
)

// ValidationError represents a model or query validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate validates a compiled model against mapping rules.
// Returns all errors found (does not fail-fast).
func Validate(m *model.Model) []ValidationError {
	var errs []ValidationError
	tables := make(map[string]string)

	for _, t := range m.EntityTypes() {
		if t.BaseType == nil {
			// E101: one table per hierarchy
			if owner, dup := tables[t.Table]; dup {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("entity.%s.table", t.Name),
					Message: fmt.Sprintf("table %q is already mapped by %s", t.Table, owner),
					Code:    ErrDuplicateTable,
				})
			}
			tables[t.Table] = t.Name

			// E106: table names are identifiers
			if _, err := model.NormalizeName(t.Table); err != nil {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("entity.%s.table", t.Name),
					Message: err.Error(),
					Code:    ErrInvalidTableName,
				})
			}

			// E102: columns are unique across the hierarchy
			seen := make(map[string]string)
			for _, p := range t.TableProperties() {
				if owner, dup := seen[p.Name]; dup {
					errs = append(errs, ValidationError{
						Field:   fmt.Sprintf("entity.%s.properties.%s", p.DeclaringEntityType.Name, p.Name),
						Message: fmt.Sprintf("column %q of table %q is already declared by %s", p.Name, t.Table, owner),
						Code:    ErrDuplicateColumn,
					})
				}
				seen[p.Name] = p.DeclaringEntityType.Name
			}

			// E105: keys are never null
			if t.PrimaryKey != nil {
				for _, p := range t.PrimaryKey.Properties {
					if p.Type.Nullable {
						errs = append(errs, ValidationError{
							Field:   fmt.Sprintf("entity.%s.key", t.Name),
							Message: fmt.Sprintf("key property %q must not be nullable", p.Name),
							Code:    ErrNullableKey,
						})
					}
				}
			}
		}

		// E103: the discriminator column is reserved
		for _, p := range t.Properties {
			if p.Name == model.DiscriminatorColumn {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("entity.%s.properties.%s", t.Name, p.Name),
					Message: "name is reserved for the discriminator column",
					Code:    ErrReservedColumn,
				})
			}
		}

		// E104: rows of sibling types hold NULL in a derived type's columns
		for _, nav := range t.Navigations {
			for _, p := range nav.ForeignKey.Properties {
				if p.DeclaringEntityType.BaseType != nil && !p.Type.Nullable {
					errs = append(errs, ValidationError{
						Field:   fmt.Sprintf("entity.%s.navigations.%s", t.Name, nav.Name),
						Message: fmt.Sprintf("foreign key %s.%s is declared on a derived type and must be nullable", p.DeclaringEntityType.Name, p.Name),
						Code:    ErrDerivedForeignKey,
					})
				}
			}
		}
	}

	return errs
}

// ValidateQuery validates a query spec against a model.
// Returns all errors found (does not fail-fast).
func ValidateQuery(m *model.Model, spec *QuerySpec) []ValidationError {
	root := m.EntityType(spec.From)
	if root == nil {
		return []ValidationError{{
			Field:   "from",
			Message: fmt.Sprintf("unknown entity type %q", spec.From),
			Code:    ErrUnknownEntity,
		}}
	}
	var errs []ValidationError
	validateScope(root, spec.Where, spec.OrderBy, spec.Select, "", &errs)
	return errs
}

func validateScope(t *model.EntityType, where []Filter, orderBy []OrderSpec, sel []SelectItem, path string, errs *[]ValidationError) {
	add := func(field, code, format string, args ...any) {
		*errs = append(*errs, ValidationError{Field: path + field, Message: fmt.Sprintf(format, args...), Code: code})
	}

	for i, f := range where {
		field := fmt.Sprintf("where[%d]", i)
		p := t.Property(f.Field)
		if p == nil {
			add(field+".field", ErrUnknownField, "%s has no property %q", t.Name, f.Field)
			continue
		}
		if !slices.Contains(filterOps, f.Op) {
			add(field+".op", ErrInvalidOperator, "unsupported operator %q", f.Op)
			continue
		}
		if f.Op == OpIsNull || f.Op == OpNotNull {
			continue
		}
		v, err := ir.FromGo(f.Value)
		if err != nil {
			add(field+".value", ErrValueTypeMismatch, "%v", err)
			continue
		}
		if !valueMatches(v, p.Type) {
			add(field+".value", ErrValueTypeMismatch, "%s does not match %s.%s (%s)", ir.Format(v), t.Name, p.Name, p.Type)
		}
	}

	for i, o := range orderBy {
		if t.Property(o.Field) == nil {
			add(fmt.Sprintf("order_by[%d].field", i), ErrUnknownField, "%s has no property %q", t.Name, o.Field)
		}
	}

	names := make(map[string]bool)
	for i, item := range sel {
		field := fmt.Sprintf("select[%d]", i)
		name := item.ResultName()
		if names[name] {
			add(field+".name", ErrDuplicateName, "duplicate select name %q", name)
		}
		names[name] = true

		switch {
		case (item.Field == "") == (item.Navigation == ""):
			add(field, ErrInvalidSelectItem, "exactly one of field or navigation must be set")
		case item.Field != "":
			if t.Property(item.Field) == nil {
				add(field+".field", ErrUnknownField, "%s has no property %q", t.Name, item.Field)
			}
			if len(item.Where) > 0 || len(item.OrderBy) > 0 || len(item.Select) > 0 || item.OfType != "" || item.Tracking != nil {
				add(field, ErrMisplacedClause, "where, order_by, select, of_type and tracking apply to navigations only")
			}
		default:
			nav := t.Navigation(item.Navigation)
			if nav == nil {
				add(field+".navigation", ErrUnknownNavigation, "%s has no navigation %q", t.Name, item.Navigation)
				continue
			}
			target := nav.Target()
			if item.OfType != "" {
				derived := findDerived(target, item.OfType)
				if derived == nil {
					add(field+".of_type", ErrUnknownDerivedType, "%q is not %s or a type derived from it", item.OfType, target.Name)
					continue
				}
				target = derived
			}
			validateScope(target, item.Where, item.OrderBy, item.Select, path+field+".", errs)
		}
	}
}

// findDerived returns the type named name in t's hierarchy under t.
func findDerived(t *model.EntityType, name string) *model.EntityType {
	for _, d := range t.Hierarchy() {
		if d.Name == name {
			return d
		}
	}
	return nil
}

func valueMatches(v ir.Value, t model.ScalarType) bool {
	switch v.(type) {
	case ir.Null:
		return t.Nullable
	case ir.Int:
		return t.Kind == model.KindInt
	case ir.String:
		return t.Kind == model.KindString
	case ir.Bool:
		return t.Kind == model.KindBool
	default:
		return false
	}
}
