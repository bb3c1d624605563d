package command

import "strings"

// MappingKind is the ingestion mapping format.
type MappingKind string

const (
	JSONMapping       MappingKind = "json"
	CSVMapping        MappingKind = "csv"
	AvroMapping       MappingKind = "avro"
	ParquetMapping    MappingKind = "parquet"
	OrcMapping        MappingKind = "orc"
	W3CLogFileMapping MappingKind = "w3clogfile"
)

var mappingKinds = map[string]MappingKind{
	"json":       JSONMapping,
	"csv":        CSVMapping,
	"avro":       AvroMapping,
	"parquet":    ParquetMapping,
	"orc":        OrcMapping,
	"w3clogfile": W3CLogFileMapping,
}

// CreateMapping creates an ingestion mapping on a table. AsJSON is the
// mapping description, a JSON array in text form; two mappings whose JSON
// differs only in whitespace or field order compare equal.
type CreateMapping struct {
	Table                  EntityName
	Kind                   MappingKind
	Mapping                QuotedText
	AsJSON                 QuotedText
	RemoveOldestIfRequired bool
}

// FriendlyName implements Command.
func (c *CreateMapping) FriendlyName() string {
	return ".create table ingestion mapping"
}

// SortIndex implements Command.
func (c *CreateMapping) SortIndex() string {
	return c.Table.Name() + "/" + c.Mapping.Text() + "/" + string(c.Kind)
}

// ScriptPath implements Command.
func (c *CreateMapping) ScriptPath() string {
	return scriptPath("tables", "ingestion-mappings/create", "", c.Table)
}

// Script implements Command.
func (c *CreateMapping) Script(_ *ScriptingContext) string {
	var b strings.Builder
	b.WriteString(".create table ")
	b.WriteString(c.Table.Script())
	b.WriteString(" ingestion ")
	b.WriteString(string(c.Kind))
	b.WriteString(" mapping ")
	b.WriteString(c.Mapping.Script())
	b.WriteString(" ")
	b.WriteString(c.AsJSON.Script())
	if c.RemoveOldestIfRequired {
		b.WriteString(" with (removeOldestIfRequired=true)")
	}
	return b.String()
}

// Equal implements Command.
func (c *CreateMapping) Equal(other Command) bool {
	o, ok := other.(*CreateMapping)
	if !ok {
		return false
	}
	return c.Table == o.Table &&
		c.Kind == o.Kind &&
		c.Mapping == o.Mapping &&
		mappingJSONEqual(c.AsJSON.Text(), o.AsJSON.Text()) &&
		c.RemoveOldestIfRequired == o.RemoveOldestIfRequired
}

// mappingJSONEqual compares two mapping descriptions semantically, falling
// back to text comparison when either side is not valid JSON.
func mappingJSONEqual(a, b string) bool {
	da, errA := ParsePolicyDocument(a)
	db, errB := ParsePolicyDocument(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return da.Equal(db)
}

// DropMapping drops an ingestion mapping.
type DropMapping struct {
	Table   EntityName
	Kind    MappingKind
	Mapping QuotedText
}

// FriendlyName implements Command.
func (c *DropMapping) FriendlyName() string {
	return ".drop table ingestion mapping"
}

// SortIndex implements Command.
func (c *DropMapping) SortIndex() string {
	return c.Table.Name() + "/" + c.Mapping.Text() + "/" + string(c.Kind)
}

// ScriptPath implements Command.
func (c *DropMapping) ScriptPath() string {
	return scriptPath("tables", "ingestion-mappings/drop", "", c.Table)
}

// Script implements Command.
func (c *DropMapping) Script(_ *ScriptingContext) string {
	var b strings.Builder
	b.WriteString(".drop table ")
	b.WriteString(c.Table.Script())
	b.WriteString(" ingestion ")
	b.WriteString(string(c.Kind))
	b.WriteString(" mapping ")
	b.WriteString(c.Mapping.Script())
	return b.String()
}

// Equal implements Command.
func (c *DropMapping) Equal(other Command) bool {
	o, ok := other.(*DropMapping)
	return ok && c.Table == o.Table && c.Kind == o.Kind && c.Mapping == o.Mapping
}
