// Package command holds the control-command AST for delta-kusto: one variant
// per supported Kusto control command, the parser that produces them from
// script text, and the emitter that serializes them back.
package command

import (
	"fmt"
	"path"
	"time"

	"github.com/berthertogen/delta-kusto/kql"
)

// EntityType says whether a policy or command is attached to a table or to
// the database itself.
type EntityType int

const (
	TableEntity EntityType = iota
	DatabaseEntity
)

// String implements fmt.Stringer.
func (e EntityType) String() string {
	if e == DatabaseEntity {
		return "database"
	}
	return "table"
}

// EntityName is a database, table, function, column or mapping identifier.
// Equality is case-sensitive on the raw name, so EntityName is usable as a
// map key.
type EntityName struct {
	name string
}

// NewEntityName wraps a raw identifier.
func NewEntityName(name string) EntityName {
	return EntityName{name: name}
}

// Name returns the raw identifier.
func (n EntityName) Name() string {
	return n.name
}

// Script returns the identifier in its script form, quoted when it contains
// characters outside [A-Za-z0-9_].
func (n EntityName) Script() string {
	return kql.NormalizeName(n.name)
}

// IsZero reports whether the name is empty.
func (n EntityName) IsZero() bool {
	return n.name == ""
}

// String implements fmt.Stringer.
func (n EntityName) String() string {
	return n.name
}

// QuotedText is a string with two representations: the literal text and its
// DSL-quoted form. Equality compares literal text.
type QuotedText struct {
	text string
}

// NewQuotedText wraps literal text.
func NewQuotedText(text string) QuotedText {
	return QuotedText{text: text}
}

// Text returns the literal text.
func (q QuotedText) Text() string {
	return q.text
}

// Script returns the DSL-quoted form.
func (q QuotedText) Script() string {
	return kql.QuoteString(q.text, false)
}

// IsZero reports whether the text is empty.
func (q QuotedText) IsZero() bool {
	return q.text == ""
}

// TableColumn is one column of a table schema. Type is the Kusto primitive
// keyword (int, string, datetime, ...).
type TableColumn struct {
	Name EntityName
	Type string
}

// Script renders the column as it appears in a create-table column list.
func (c TableColumn) Script() string {
	return fmt.Sprintf("%s:%s", c.Name.Script(), c.Type)
}

// HotWindow is one hot_window range of a caching policy.
type HotWindow struct {
	From time.Time
	To   time.Time
}

// Script renders the window as a datetime range literal.
func (w HotWindow) Script() string {
	return fmt.Sprintf("%s .. %s", kql.FormatDatetime(w.From), kql.FormatDatetime(w.To))
}

// ScriptingContext controls entity qualification during emission. When
// CurrentDatabaseName is set, database-scoped commands write that name
// instead of the one they were parsed with, so a delta computed against one
// database can be replayed against another.
type ScriptingContext struct {
	CurrentDatabaseName EntityName
}

// Command is a single Kusto control command. Each variant carries its typed
// payload and knows how to order itself, where it belongs in a multi-file
// output, how to compare itself structurally and how to write itself back as
// DSL text.
type Command interface {
	// FriendlyName is the human-readable command name, e.g. ".create table".
	FriendlyName() string
	// SortIndex is the lexicographic key used to order emitted commands of
	// the same kind.
	SortIndex() string
	// ScriptPath is the suggested file path when writing the delta to a
	// multi-file output.
	ScriptPath() string
	// Script emits the command as valid DSL. ctx may be nil.
	Script(ctx *ScriptingContext) string
	// Equal is structural equality over the payload.
	Equal(other Command) bool
}

// databaseIdentifier resolves the database name a database-scoped command
// should emit: the scripting context wins over the parsed name.
func databaseIdentifier(parsed EntityName, ctx *ScriptingContext) string {
	if ctx != nil && !ctx.CurrentDatabaseName.IsZero() {
		return ctx.CurrentDatabaseName.Script()
	}
	return parsed.Script()
}

// scriptPath derives the multi-file output path for a command. All variants
// go through here so the layout stays consistent: per-table artifacts end in
// the table name, database-wide artifacts do not.
func scriptPath(category, verb string, folder string, name EntityName) string {
	parts := []string{category, verb}
	if folder != "" {
		parts = append(parts, folder)
	}
	if !name.IsZero() {
		parts = append(parts, name.Name())
	}
	return path.Join(parts...)
}
