// Package delta computes the ordered command sequence that drives a current
// database model to a target model.
package delta

import (
	"github.com/berthertogen/delta-kusto/command"
	"github.com/berthertogen/delta-kusto/schema"
	"github.com/samber/lo"
)

// Compute aligns the two models pairwise by entity key and emits the
// drop/create/alter commands, dependency ordered: function drops, mapping
// drops, table drops, table creates, policy deltas, mapping creates and
// function creates. Both models are read-only; the result is nil when the
// models already agree.
func Compute(current, target *schema.Database) []command.Command {
	// recreated tables exist on both sides but cannot be reconciled
	// additively; they are dropped and created again, which also voids their
	// mappings and policies on the current side.
	recreated := map[command.EntityName]bool{}
	for name, cur := range current.Tables {
		tgt, ok := target.Tables[name]
		if ok && !cur.Equal(tgt) && !mergeCompatible(cur, tgt) {
			recreated[name] = true
		}
	}

	var cmds []command.Command
	cmds = append(cmds, dropFunctions(current, target)...)
	cmds = append(cmds, dropMappings(current, target)...)
	cmds = append(cmds, dropTables(current, target, recreated)...)
	cmds = append(cmds, createTables(current, target, recreated)...)
	cmds = append(cmds, policyDeltas(current, target, recreated)...)
	cmds = append(cmds, createMappings(current, target, recreated)...)
	cmds = append(cmds, createFunctions(current, target)...)
	return cmds
}

// mergeCompatible reports whether target can be reached from current with an
// additive create-merge: every current column is present in target with the
// same type.
func mergeCompatible(current, target schema.TableSchema) bool {
	types := map[command.EntityName]string{}
	for _, col := range target.Columns {
		types[col.Name] = col.Type
	}
	for _, col := range current.Columns {
		t, ok := types[col.Name]
		if !ok || t != col.Type {
			return false
		}
	}
	return true
}

func dropFunctions(current, target *schema.Database) []command.Command {
	var out []command.Command
	for name := range current.Functions {
		if _, ok := target.Functions[name]; !ok {
			out = append(out, &command.DropFunction{Function: name})
		}
	}
	command.Sort(out)
	return out
}

func dropMappings(current, target *schema.Database) []command.Command {
	var out []command.Command
	for key, mapping := range current.Mappings {
		if _, ok := target.Mappings[key]; !ok {
			out = append(out, &command.DropMapping{
				Table:   mapping.Table,
				Kind:    mapping.Kind,
				Mapping: mapping.Mapping,
			})
		}
	}
	command.Sort(out)
	return out
}

func dropTables(current, target *schema.Database, recreated map[command.EntityName]bool) []command.Command {
	var out []command.Command
	for name := range current.Tables {
		if _, ok := target.Tables[name]; !ok || recreated[name] {
			out = append(out, &command.DropTable{Table: name})
		}
	}
	command.Sort(out)
	return out
}

func createTables(current, target *schema.Database, recreated map[command.EntityName]bool) []command.Command {
	var singulars []*command.CreateTable
	for name, tgt := range target.Tables {
		cur, exists := current.Tables[name]
		switch {
		case !exists || recreated[name]:
			singulars = append(singulars, &command.CreateTable{
				Table:     name,
				Columns:   tgt.Columns,
				Folder:    tgt.Folder,
				DocString: tgt.DocString,
			})
		case !cur.Equal(tgt):
			// Additive change: create-merge carries the full target column
			// set plus the target folder/docstring.
			singulars = append(singulars, &command.CreateTable{
				Merge:     true,
				Table:     name,
				Columns:   tgt.Columns,
				Folder:    tgt.Folder,
				DocString: tgt.DocString,
			})
		}
	}
	return command.BatchCreateTables(singulars)
}

func policyDeltas(current, target *schema.Database, recreated map[command.EntityName]bool) []command.Command {
	keys := lo.Uniq(append(lo.Keys(current.Policies), lo.Keys(target.Policies)...))

	var out []command.Command
	for _, key := range keys {
		tableScoped := key.EntityType == command.TableEntity
		if tableScoped {
			if _, kept := target.Tables[key.Entity]; !kept {
				// The table drop takes its policies with it.
				continue
			}
		}
		cur, inCurrent := current.Policies[key]
		tgt, inTarget := target.Policies[key]
		forced := tableScoped && recreated[key.Entity]

		switch {
		case inTarget && (!inCurrent || forced || !command.PolicyPayloadEqual(cur, tgt)):
			out = append(out, tgt)
		case inCurrent && !inTarget && !forced:
			// Database-scope keys carry no name; take it back from the
			// current command so the emitted delete is qualified.
			entity := key.Entity
			if entity.IsZero() {
				entity = cur.PolicyEntity()
			}
			out = append(out, &command.DeletePolicy{
				Kind:       key.Kind,
				EntityType: key.EntityType,
				Entity:     entity,
			})
		}
	}
	command.Sort(out)
	return out
}

func createMappings(current, target *schema.Database, recreated map[command.EntityName]bool) []command.Command {
	var out []command.Command
	for key, tgt := range target.Mappings {
		cur, ok := current.Mappings[key]
		if ok && !recreated[key.Table] && cur.Equal(tgt) {
			continue
		}
		out = append(out, tgt)
	}
	command.Sort(out)
	return out
}

func createFunctions(current, target *schema.Database) []command.Command {
	var out []command.Command
	for name, tgt := range target.Functions {
		cur, ok := current.Functions[name]
		if ok && cur.Equal(tgt) {
			continue
		}
		out = append(out, tgt)
	}
	command.Sort(out)
	return out
}
