// Package schema folds a control-command sequence into a canonical,
// order-independent model of a database: tables, functions, ingestion
// mappings and per-entity policies.
package schema

import (
	"github.com/berthertogen/delta-kusto/command"
	"github.com/berthertogen/delta-kusto/errors"
)

// TableSchema is the folded state of one table.
type TableSchema struct {
	Columns   []command.TableColumn
	Folder    command.QuotedText
	DocString command.QuotedText
}

// Equal is structural equality.
func (t TableSchema) Equal(o TableSchema) bool {
	if t.Folder != o.Folder || t.DocString != o.DocString || len(t.Columns) != len(o.Columns) {
		return false
	}
	for i := range t.Columns {
		if t.Columns[i] != o.Columns[i] {
			return false
		}
	}
	return true
}

// MappingKey identifies an ingestion mapping: mappings with the same name but
// different kinds are distinct entities.
type MappingKey struct {
	Table   command.EntityName
	Mapping string
	Kind    command.MappingKind
}

// PolicyKey identifies a policy attachment.
type PolicyKey struct {
	EntityType command.EntityType
	Entity     command.EntityName
	Kind       command.PolicyKind
}

// Database is the canonical state reached by folding a command sequence.
// A missing policy key means the policy is absent. Functions, mappings and
// policies keep the alter/create command as their canonical payload carrier,
// so structural comparison is command equality.
type Database struct {
	Tables    map[command.EntityName]TableSchema
	Functions map[command.EntityName]*command.CreateFunction
	Mappings  map[MappingKey]*command.CreateMapping
	Policies  map[PolicyKey]command.PolicyCommand
}

// New returns an empty model.
func New() *Database {
	return &Database{
		Tables:    map[command.EntityName]TableSchema{},
		Functions: map[command.EntityName]*command.CreateFunction{},
		Mappings:  map[MappingKey]*command.CreateMapping{},
		Policies:  map[PolicyKey]command.PolicyCommand{},
	}
}

// FromCommands folds a command sequence into a model, last command winning
// within a key.
func FromCommands(cmds []command.Command) (*Database, error) {
	return New().Apply(cmds)
}

// Apply folds commands on top of the model and returns the result as a new
// model; the receiver is not mutated.
func (d *Database) Apply(cmds []command.Command) (*Database, error) {
	out := d.clone()
	for _, cmd := range cmds {
		if err := out.fold(cmd); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (d *Database) clone() *Database {
	out := New()
	for k, v := range d.Tables {
		out.Tables[k] = v
	}
	for k, v := range d.Functions {
		out.Functions[k] = v
	}
	for k, v := range d.Mappings {
		out.Mappings[k] = v
	}
	for k, v := range d.Policies {
		out.Policies[k] = v
	}
	return out
}

func (d *Database) fold(cmd command.Command) error {
	switch c := cmd.(type) {
	case *command.CreateTable:
		d.foldCreateTable(c)

	case *command.CreateTables:
		for _, singular := range c.Singulars() {
			d.foldCreateTable(singular)
		}

	case *command.DropTable:
		delete(d.Tables, c.Table)
		for key := range d.Mappings {
			if key.Table == c.Table {
				delete(d.Mappings, key)
			}
		}
		for key := range d.Policies {
			if key.EntityType == command.TableEntity && key.Entity == c.Table {
				delete(d.Policies, key)
			}
		}

	case *command.CreateFunction:
		d.Functions[c.Function] = c

	case *command.DropFunction:
		delete(d.Functions, c.Function)

	case *command.CreateMapping:
		if _, ok := d.Tables[c.Table]; !ok {
			return errors.New(errors.Fold, errors.MissingEntity,
				"ingestion mapping %q references unknown table %q", c.Mapping.Text(), c.Table.Name())
		}
		d.Mappings[MappingKey{Table: c.Table, Mapping: c.Mapping.Text(), Kind: c.Kind}] = c

	case *command.DropMapping:
		delete(d.Mappings, MappingKey{Table: c.Table, Mapping: c.Mapping.Text(), Kind: c.Kind})

	case *command.DeletePolicy:
		key := PolicyKey{EntityType: c.EntityType, Entity: c.Entity, Kind: c.Kind}
		if c.EntityType == command.DatabaseEntity {
			key.Entity = command.EntityName{}
		}
		delete(d.Policies, key)

	case command.PolicyCommand:
		entity := c.PolicyEntity()
		if c.PolicyEntityType() == command.TableEntity {
			if _, ok := d.Tables[entity]; !ok {
				return errors.New(errors.Fold, errors.MissingEntity,
					"%s policy references unknown table %q", c.PolicyKind(), entity.Name())
			}
		} else {
			// The database's own name is not part of its identity: the same
			// policy parsed from two differently named databases folds to the
			// same key. The stored command keeps its parsed name for
			// emission.
			entity = command.EntityName{}
		}
		d.Policies[PolicyKey{
			EntityType: c.PolicyEntityType(),
			Entity:     entity,
			Kind:       c.PolicyKind(),
		}] = c

	default:
		return errors.New(errors.Fold, errors.UnsupportedCommand,
			"cannot fold command %s", cmd.FriendlyName())
	}
	return nil
}

// foldCreateTable applies create or create-merge semantics. Create replaces
// the table wholesale. Create-merge is additive on columns but last-wins on
// folder/docstring, so a merge emitted with empty properties clears them;
// this is what lets a folder removal round-trip through the delta.
func (d *Database) foldCreateTable(c *command.CreateTable) {
	existing, ok := d.Tables[c.Table]
	if !ok || !c.Merge {
		d.Tables[c.Table] = TableSchema{
			Columns:   append([]command.TableColumn(nil), c.Columns...),
			Folder:    c.Folder,
			DocString: c.DocString,
		}
		return
	}

	merged := TableSchema{
		Columns:   append([]command.TableColumn(nil), existing.Columns...),
		Folder:    c.Folder,
		DocString: c.DocString,
	}
	known := map[command.EntityName]bool{}
	for _, col := range merged.Columns {
		known[col.Name] = true
	}
	for _, col := range c.Columns {
		if !known[col.Name] {
			merged.Columns = append(merged.Columns, col)
		}
	}
	d.Tables[c.Table] = merged
}

// Equal compares two models structurally.
func (d *Database) Equal(o *Database) bool {
	if len(d.Tables) != len(o.Tables) || len(d.Functions) != len(o.Functions) ||
		len(d.Mappings) != len(o.Mappings) || len(d.Policies) != len(o.Policies) {
		return false
	}
	for k, v := range d.Tables {
		ov, ok := o.Tables[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	for k, v := range d.Functions {
		ov, ok := o.Functions[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	for k, v := range d.Mappings {
		ov, ok := o.Mappings[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	for k, v := range d.Policies {
		ov, ok := o.Policies[k]
		if !ok || !command.PolicyPayloadEqual(v, ov) {
			return false
		}
	}
	return true
}
