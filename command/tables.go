package command

import (
	"sort"
	"strings"

	"github.com/samber/lo"
)

// CreateTable creates or extends a table. With Merge set it emits
// .create-merge, the additive form used when the delta only adds columns or
// retouches folder/docstring on an existing table.
type CreateTable struct {
	Merge     bool
	Table     EntityName
	Columns   []TableColumn
	Folder    QuotedText
	DocString QuotedText
}

// FriendlyName implements Command.
func (c *CreateTable) FriendlyName() string {
	if c.Merge {
		return ".create-merge table"
	}
	return ".create table"
}

// SortIndex implements Command.
func (c *CreateTable) SortIndex() string {
	return c.Table.Name()
}

// ScriptPath implements Command.
func (c *CreateTable) ScriptPath() string {
	return scriptPath("tables", "create", c.Folder.Text(), c.Table)
}

// Script implements Command.
func (c *CreateTable) Script(_ *ScriptingContext) string {
	var b strings.Builder
	b.WriteString(c.FriendlyName())
	b.WriteString(" ")
	b.WriteString(c.Table.Script())
	b.WriteString(" (")
	b.WriteString(columnsScript(c.Columns))
	b.WriteString(")")
	b.WriteString(tablePropertiesScript(c.Folder, c.DocString))
	return b.String()
}

// Equal implements Command.
func (c *CreateTable) Equal(other Command) bool {
	o, ok := other.(*CreateTable)
	if !ok {
		return false
	}
	return c.Merge == o.Merge &&
		c.Table == o.Table &&
		columnsEqual(c.Columns, o.Columns) &&
		c.Folder == o.Folder &&
		c.DocString == o.DocString
}

// TableSchemaEntry is one table of a plural create-tables command.
type TableSchemaEntry struct {
	Table   EntityName
	Columns []TableColumn
}

// CreateTables is the plural form of CreateTable: several tables sharing one
// folder and docstring, emitted as a single statement.
type CreateTables struct {
	Merge     bool
	Tables    []TableSchemaEntry
	Folder    QuotedText
	DocString QuotedText
}

// FriendlyName implements Command.
func (c *CreateTables) FriendlyName() string {
	if c.Merge {
		return ".create-merge tables"
	}
	return ".create tables"
}

// SortIndex implements Command.
func (c *CreateTables) SortIndex() string {
	if len(c.Tables) == 0 {
		return ""
	}
	return c.Tables[0].Table.Name()
}

// ScriptPath implements Command.
func (c *CreateTables) ScriptPath() string {
	return scriptPath("tables", "create", c.Folder.Text(), EntityName{})
}

// Script implements Command.
func (c *CreateTables) Script(_ *ScriptingContext) string {
	var b strings.Builder
	b.WriteString(c.FriendlyName())
	b.WriteString(" ")
	entries := make([]string, 0, len(c.Tables))
	for _, t := range c.Tables {
		entries = append(entries, t.Table.Script()+" ("+columnsScript(t.Columns)+")")
	}
	b.WriteString(strings.Join(entries, ", "))
	b.WriteString(tablePropertiesScript(c.Folder, c.DocString))
	return b.String()
}

// Equal implements Command.
func (c *CreateTables) Equal(other Command) bool {
	o, ok := other.(*CreateTables)
	if !ok {
		return false
	}
	if c.Merge != o.Merge || c.Folder != o.Folder || c.DocString != o.DocString ||
		len(c.Tables) != len(o.Tables) {
		return false
	}
	for i := range c.Tables {
		if c.Tables[i].Table != o.Tables[i].Table ||
			!columnsEqual(c.Tables[i].Columns, o.Tables[i].Columns) {
			return false
		}
	}
	return true
}

// Singulars expands the plural back into its singular commands.
func (c *CreateTables) Singulars() []*CreateTable {
	out := make([]*CreateTable, 0, len(c.Tables))
	for _, t := range c.Tables {
		out = append(out, &CreateTable{
			Merge:     c.Merge,
			Table:     t.Table,
			Columns:   t.Columns,
			Folder:    c.Folder,
			DocString: c.DocString,
		})
	}
	return out
}

// DropTable drops a table.
type DropTable struct {
	Table EntityName
}

// FriendlyName implements Command.
func (c *DropTable) FriendlyName() string {
	return ".drop table"
}

// SortIndex implements Command.
func (c *DropTable) SortIndex() string {
	return c.Table.Name()
}

// ScriptPath implements Command.
func (c *DropTable) ScriptPath() string {
	return scriptPath("tables", "drop", "", c.Table)
}

// Script implements Command.
func (c *DropTable) Script(_ *ScriptingContext) string {
	return ".drop table " + c.Table.Script()
}

// Equal implements Command.
func (c *DropTable) Equal(other Command) bool {
	o, ok := other.(*DropTable)
	return ok && c.Table == o.Table
}

// BatchCreateTables groups singular create-table commands that share the
// same form, folder and docstring into plural commands. Groups of one stay
// singular; order inside a batch follows SortIndex; batch order follows the
// first table of each batch.
func BatchCreateTables(singulars []*CreateTable) []Command {
	type groupKey struct {
		merge             bool
		folder, docString string
	}
	groups := lo.GroupBy(singulars, func(c *CreateTable) groupKey {
		return groupKey{merge: c.Merge, folder: c.Folder.Text(), docString: c.DocString.Text()}
	})

	out := make([]Command, 0, len(groups))
	for _, group := range groups {
		sort.Slice(group, func(i, j int) bool { return group[i].SortIndex() < group[j].SortIndex() })
		if len(group) == 1 {
			out = append(out, group[0])
			continue
		}
		plural := &CreateTables{
			Merge:     group[0].Merge,
			Folder:    group[0].Folder,
			DocString: group[0].DocString,
		}
		for _, c := range group {
			plural.Tables = append(plural.Tables, TableSchemaEntry{Table: c.Table, Columns: c.Columns})
		}
		out = append(out, plural)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortIndex() < out[j].SortIndex() })
	return out
}

func columnsScript(cols []TableColumn) string {
	parts := make([]string, 0, len(cols))
	for _, c := range cols {
		parts = append(parts, c.Script())
	}
	return strings.Join(parts, ", ")
}

func columnsEqual(a, b []TableColumn) bool {
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

func tablePropertiesScript(folder, docString QuotedText) string {
	props := make([]string, 0, 2)
	if !folder.IsZero() {
		props = append(props, "folder="+folder.Script())
	}
	if !docString.IsZero() {
		props = append(props, "docstring="+docString.Script())
	}
	if len(props) == 0 {
		return ""
	}
	return " with (" + strings.Join(props, ", ") + ")"
}
