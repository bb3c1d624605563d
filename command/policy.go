package command

import (
	"strings"
	"time"

	"github.com/berthertogen/delta-kusto/kql"
	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// PolicyKind names one member of the per-entity policy family.
type PolicyKind int

const (
	CachingPolicyKind PolicyKind = iota
	RetentionPolicyKind
	MergePolicyKind
	ShardingPolicyKind
	ShardGroupsPolicyKind
	PartitioningPolicyKind
	UpdatePolicyKind
	RowLevelSecurityPolicyKind
	IngestionBatchingPolicyKind
	IngestionTimePolicyKind
	StreamingIngestionPolicyKind
	AutoDeletePolicyKind
	HardRetentionViolationsPolicyKind
	ManagedIdentityPolicyKind
	EncodingPolicyKind
	RestrictedViewAccessPolicyKind
)

// policyTraits is the static description of a policy kind: the DSL keyword,
// the path segment used in multi-file layouts, and which entity types it may
// attach to.
type policyTraits struct {
	keyword    string
	pathName   string
	onTable    bool
	onDatabase bool
}

var policyTraitsByKind = map[PolicyKind]policyTraits{
	CachingPolicyKind:                 {keyword: "caching", pathName: "caching", onTable: true, onDatabase: true},
	RetentionPolicyKind:               {keyword: "retention", pathName: "retention", onTable: true, onDatabase: true},
	MergePolicyKind:                   {keyword: "merge", pathName: "merge", onTable: true, onDatabase: true},
	ShardingPolicyKind:                {keyword: "sharding", pathName: "sharding", onTable: true, onDatabase: true},
	ShardGroupsPolicyKind:             {keyword: "shard_groups", pathName: "shard-groups", onDatabase: true},
	PartitioningPolicyKind:            {keyword: "partitioning", pathName: "partitioning", onTable: true},
	UpdatePolicyKind:                  {keyword: "update", pathName: "update", onTable: true},
	RowLevelSecurityPolicyKind:        {keyword: "row_level_security", pathName: "row-level-security", onTable: true},
	IngestionBatchingPolicyKind:       {keyword: "ingestionbatching", pathName: "ingestion-batching", onTable: true, onDatabase: true},
	IngestionTimePolicyKind:           {keyword: "ingestiontime", pathName: "ingestion-time", onTable: true},
	StreamingIngestionPolicyKind:      {keyword: "streamingingestion", pathName: "streaming-ingestion", onTable: true, onDatabase: true},
	AutoDeletePolicyKind:              {keyword: "auto_delete", pathName: "auto-delete", onTable: true},
	HardRetentionViolationsPolicyKind: {keyword: "hardretentionviolations", pathName: "hard-retention-violations", onDatabase: true},
	ManagedIdentityPolicyKind:         {keyword: "managed_identity", pathName: "managed-identity", onTable: true, onDatabase: true},
	EncodingPolicyKind:                {keyword: "encoding", pathName: "encoding", onTable: true, onDatabase: true},
	RestrictedViewAccessPolicyKind:    {keyword: "restricted_view_access", pathName: "restricted-view-access", onTable: true},
}

var policyKindByKeyword = func() map[string]PolicyKind {
	m := make(map[string]PolicyKind, len(policyTraitsByKind))
	for kind, traits := range policyTraitsByKind {
		m[traits.keyword] = kind
	}
	return m
}()

// Keyword returns the DSL keyword of the policy kind.
func (k PolicyKind) Keyword() string {
	return policyTraitsByKind[k].keyword
}

// String implements fmt.Stringer.
func (k PolicyKind) String() string {
	return k.Keyword()
}

// AttachesTo reports whether the policy kind may be set on the entity type.
func (k PolicyKind) AttachesTo(e EntityType) bool {
	t := policyTraitsByKind[k]
	if e == DatabaseEntity {
		return t.onDatabase
	}
	return t.onTable
}

// policyScriptPath is the single canonical path function for the whole policy
// family.
func policyScriptPath(kind PolicyKind, entityType EntityType, verb string, name EntityName) string {
	segment := "policies/" + policyTraitsByKind[kind].pathName + "/" + verb
	if entityType == DatabaseEntity {
		return scriptPath("databases", segment, "", EntityName{})
	}
	return scriptPath("tables", segment, "", name)
}

// PolicyCommand is implemented by every command of the policy family; the
// triple (kind, entity type, entity name) is the model key the fold and the
// delta engine work with.
type PolicyCommand interface {
	Command
	PolicyKind() PolicyKind
	PolicyEntityType() EntityType
	PolicyEntity() EntityName
}

// PolicyDocument is a JSON-shaped policy payload carried as a deserialized
// tree. Two documents compare by semantic JSON equality: field order is
// irrelevant, numbers compare by value (1 == 1.0), arrays are ordered.
type PolicyDocument struct {
	value interface{}
}

// ParsePolicyDocument deserializes JSON text into a document. Numbers are
// kept in their source spelling so equality can be decided exactly.
func ParsePolicyDocument(text string) (*PolicyDocument, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return &PolicyDocument{value: v}, nil
}

// NewPolicyDocument builds a document from any JSON-marshalable value by
// round-tripping it through serialization, which canonicalizes it to the
// same tree shape ParsePolicyDocument produces.
func NewPolicyDocument(v interface{}) (*PolicyDocument, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return ParsePolicyDocument(string(raw))
}

// Value returns the deserialized tree.
func (d *PolicyDocument) Value() interface{} {
	return d.value
}

// Script serializes the document canonically: two-space indent, object keys
// sorted.
func (d *PolicyDocument) Script() string {
	raw, err := json.MarshalIndent(d.value, "", "  ")
	if err != nil {
		return ""
	}
	return string(raw)
}

// Equal is semantic JSON equality.
func (d *PolicyDocument) Equal(other *PolicyDocument) bool {
	if d == nil || other == nil {
		return d == other
	}
	return jsonEqual(d.value, other.value)
}

func jsonEqual(a, b interface{}) bool {
	if da, ok := toDecimal(a); ok {
		db, ok := toDecimal(b)
		return ok && da.Equal(db)
	}

	switch av := a.(type) {
	case map[string]interface{}:
		bv, ok := b.(map[string]interface{})
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			bVal, ok := bv[k]
			if !ok || !jsonEqual(v, bVal) {
				return false
			}
		}
		return true
	case []interface{}:
		bv, ok := b.([]interface{})
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !jsonEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case nil:
		return b == nil
	}
	return false
}

func toDecimal(v interface{}) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	case float64:
		return decimal.NewFromFloat(n), true
	case int64:
		return decimal.NewFromInt(n), true
	}
	return decimal.Decimal{}, false
}

// AlterPolicy sets a JSON-payload policy on a table or the database. It
// covers every kind whose DSL payload is a JSON document; the kinds with
// bespoke syntax have their own variants below.
type AlterPolicy struct {
	Kind       PolicyKind
	EntityType EntityType
	Entity     EntityName
	Policy     *PolicyDocument
}

// FriendlyName implements Command.
func (c *AlterPolicy) FriendlyName() string {
	return ".alter " + c.EntityType.String() + " policy " + c.Kind.Keyword()
}

// SortIndex implements Command.
func (c *AlterPolicy) SortIndex() string {
	return c.Entity.Name()
}

// ScriptPath implements Command.
func (c *AlterPolicy) ScriptPath() string {
	return policyScriptPath(c.Kind, c.EntityType, "create", c.Entity)
}

// Script implements Command.
func (c *AlterPolicy) Script(ctx *ScriptingContext) string {
	var b strings.Builder
	b.WriteString(".alter ")
	writeEntityClause(&b, c.EntityType, c.Entity, ctx)
	b.WriteString(" policy ")
	b.WriteString(c.Kind.Keyword())
	b.WriteString("\n```\n")
	b.WriteString(c.Policy.Script())
	b.WriteString("\n```")
	return b.String()
}

// Equal implements Command.
func (c *AlterPolicy) Equal(other Command) bool {
	o, ok := other.(*AlterPolicy)
	if !ok {
		return false
	}
	return c.Kind == o.Kind &&
		c.EntityType == o.EntityType &&
		c.Entity == o.Entity &&
		c.Policy.Equal(o.Policy)
}

// PolicyKind implements PolicyCommand.
func (c *AlterPolicy) PolicyKind() PolicyKind { return c.Kind }

// PolicyEntityType implements PolicyCommand.
func (c *AlterPolicy) PolicyEntityType() EntityType { return c.EntityType }

// PolicyEntity implements PolicyCommand.
func (c *AlterPolicy) PolicyEntity() EntityName { return c.Entity }

// DeletePolicy removes a policy of any kind from a table or the database.
type DeletePolicy struct {
	Kind       PolicyKind
	EntityType EntityType
	Entity     EntityName
}

// FriendlyName implements Command.
func (c *DeletePolicy) FriendlyName() string {
	return ".delete " + c.EntityType.String() + " policy " + c.Kind.Keyword()
}

// SortIndex implements Command.
func (c *DeletePolicy) SortIndex() string {
	return c.Entity.Name()
}

// ScriptPath implements Command.
func (c *DeletePolicy) ScriptPath() string {
	return policyScriptPath(c.Kind, c.EntityType, "delete", c.Entity)
}

// Script implements Command.
func (c *DeletePolicy) Script(ctx *ScriptingContext) string {
	var b strings.Builder
	b.WriteString(".delete ")
	writeEntityClause(&b, c.EntityType, c.Entity, ctx)
	b.WriteString(" policy ")
	b.WriteString(c.Kind.Keyword())
	return b.String()
}

// Equal implements Command.
func (c *DeletePolicy) Equal(other Command) bool {
	o, ok := other.(*DeletePolicy)
	return ok && c.Kind == o.Kind && c.EntityType == o.EntityType && c.Entity == o.Entity
}

// PolicyKind implements PolicyCommand.
func (c *DeletePolicy) PolicyKind() PolicyKind { return c.Kind }

// PolicyEntityType implements PolicyCommand.
func (c *DeletePolicy) PolicyEntityType() EntityType { return c.EntityType }

// PolicyEntity implements PolicyCommand.
func (c *DeletePolicy) PolicyEntity() EntityName { return c.Entity }

// AlterCachingPolicy sets the caching policy: a hot-data span plus optional
// explicit hot windows. The DSL payload is not JSON, so the variant carries
// typed fields.
type AlterCachingPolicy struct {
	EntityType EntityType
	Entity     EntityName
	HotData    time.Duration
	HotWindows []HotWindow
}

// FriendlyName implements Command.
func (c *AlterCachingPolicy) FriendlyName() string {
	return ".alter " + c.EntityType.String() + " policy caching"
}

// SortIndex implements Command.
func (c *AlterCachingPolicy) SortIndex() string {
	return c.Entity.Name()
}

// ScriptPath implements Command.
func (c *AlterCachingPolicy) ScriptPath() string {
	return policyScriptPath(CachingPolicyKind, c.EntityType, "create", c.Entity)
}

// Script implements Command.
func (c *AlterCachingPolicy) Script(ctx *ScriptingContext) string {
	var b strings.Builder
	b.WriteString(".alter ")
	writeEntityClause(&b, c.EntityType, c.Entity, ctx)
	b.WriteString(" policy caching hot = ")
	b.WriteString(kql.FormatTimespan(c.HotData))
	for _, w := range c.HotWindows {
		b.WriteString(", hot_window = ")
		b.WriteString(w.Script())
	}
	return b.String()
}

// Equal implements Command.
func (c *AlterCachingPolicy) Equal(other Command) bool {
	o, ok := other.(*AlterCachingPolicy)
	if !ok {
		return false
	}
	if c.EntityType != o.EntityType || c.Entity != o.Entity || c.HotData != o.HotData ||
		len(c.HotWindows) != len(o.HotWindows) {
		return false
	}
	for i := range c.HotWindows {
		if !c.HotWindows[i].From.Equal(o.HotWindows[i].From) ||
			!c.HotWindows[i].To.Equal(o.HotWindows[i].To) {
			return false
		}
	}
	return true
}

// PolicyKind implements PolicyCommand.
func (c *AlterCachingPolicy) PolicyKind() PolicyKind { return CachingPolicyKind }

// PolicyEntityType implements PolicyCommand.
func (c *AlterCachingPolicy) PolicyEntityType() EntityType { return c.EntityType }

// PolicyEntity implements PolicyCommand.
func (c *AlterCachingPolicy) PolicyEntity() EntityName { return c.Entity }

// AlterRowLevelSecurityPolicy enables or disables row level security on a
// table with its filtering query. Table scope only.
type AlterRowLevelSecurityPolicy struct {
	Entity EntityName
	Enable bool
	Query  QuotedText
}

// FriendlyName implements Command.
func (c *AlterRowLevelSecurityPolicy) FriendlyName() string {
	return ".alter table policy row_level_security"
}

// SortIndex implements Command.
func (c *AlterRowLevelSecurityPolicy) SortIndex() string {
	return c.Entity.Name()
}

// ScriptPath implements Command.
func (c *AlterRowLevelSecurityPolicy) ScriptPath() string {
	return policyScriptPath(RowLevelSecurityPolicyKind, TableEntity, "create", c.Entity)
}

// Script implements Command.
func (c *AlterRowLevelSecurityPolicy) Script(_ *ScriptingContext) string {
	state := "disable"
	if c.Enable {
		state = "enable"
	}
	return ".alter table " + c.Entity.Script() + " policy row_level_security " + state + " " + c.Query.Script()
}

// Equal implements Command.
func (c *AlterRowLevelSecurityPolicy) Equal(other Command) bool {
	o, ok := other.(*AlterRowLevelSecurityPolicy)
	return ok && c.Entity == o.Entity && c.Enable == o.Enable && c.Query == o.Query
}

// PolicyKind implements PolicyCommand.
func (c *AlterRowLevelSecurityPolicy) PolicyKind() PolicyKind { return RowLevelSecurityPolicyKind }

// PolicyEntityType implements PolicyCommand.
func (c *AlterRowLevelSecurityPolicy) PolicyEntityType() EntityType { return TableEntity }

// PolicyEntity implements PolicyCommand.
func (c *AlterRowLevelSecurityPolicy) PolicyEntity() EntityName { return c.Entity }

// AlterIngestionTimePolicy turns the ingestion-time column on or off for a
// table.
type AlterIngestionTimePolicy struct {
	Entity EntityName
	Enable bool
}

// FriendlyName implements Command.
func (c *AlterIngestionTimePolicy) FriendlyName() string {
	return ".alter table policy ingestiontime"
}

// SortIndex implements Command.
func (c *AlterIngestionTimePolicy) SortIndex() string {
	return c.Entity.Name()
}

// ScriptPath implements Command.
func (c *AlterIngestionTimePolicy) ScriptPath() string {
	return policyScriptPath(IngestionTimePolicyKind, TableEntity, "create", c.Entity)
}

// Script implements Command.
func (c *AlterIngestionTimePolicy) Script(_ *ScriptingContext) string {
	state := "false"
	if c.Enable {
		state = "true"
	}
	return ".alter table " + c.Entity.Script() + " policy ingestiontime " + state
}

// Equal implements Command.
func (c *AlterIngestionTimePolicy) Equal(other Command) bool {
	o, ok := other.(*AlterIngestionTimePolicy)
	return ok && c.Entity == o.Entity && c.Enable == o.Enable
}

// PolicyKind implements PolicyCommand.
func (c *AlterIngestionTimePolicy) PolicyKind() PolicyKind { return IngestionTimePolicyKind }

// PolicyEntityType implements PolicyCommand.
func (c *AlterIngestionTimePolicy) PolicyEntityType() EntityType { return TableEntity }

// PolicyEntity implements PolicyCommand.
func (c *AlterIngestionTimePolicy) PolicyEntity() EntityName { return c.Entity }

// AlterRestrictedViewAccessPolicy turns restricted view access on or off for
// a table.
type AlterRestrictedViewAccessPolicy struct {
	Entity EntityName
	Enable bool
}

// FriendlyName implements Command.
func (c *AlterRestrictedViewAccessPolicy) FriendlyName() string {
	return ".alter table policy restricted_view_access"
}

// SortIndex implements Command.
func (c *AlterRestrictedViewAccessPolicy) SortIndex() string {
	return c.Entity.Name()
}

// ScriptPath implements Command.
func (c *AlterRestrictedViewAccessPolicy) ScriptPath() string {
	return policyScriptPath(RestrictedViewAccessPolicyKind, TableEntity, "create", c.Entity)
}

// Script implements Command.
func (c *AlterRestrictedViewAccessPolicy) Script(_ *ScriptingContext) string {
	state := "false"
	if c.Enable {
		state = "true"
	}
	return ".alter table " + c.Entity.Script() + " policy restricted_view_access " + state
}

// Equal implements Command.
func (c *AlterRestrictedViewAccessPolicy) Equal(other Command) bool {
	o, ok := other.(*AlterRestrictedViewAccessPolicy)
	return ok && c.Entity == o.Entity && c.Enable == o.Enable
}

// PolicyKind implements PolicyCommand.
func (c *AlterRestrictedViewAccessPolicy) PolicyKind() PolicyKind {
	return RestrictedViewAccessPolicyKind
}

// PolicyEntityType implements PolicyCommand.
func (c *AlterRestrictedViewAccessPolicy) PolicyEntityType() EntityType { return TableEntity }

// PolicyEntity implements PolicyCommand.
func (c *AlterRestrictedViewAccessPolicy) PolicyEntity() EntityName { return c.Entity }

// PolicyPayloadEqual compares two policy commands ignoring the entity name.
// Database-scoped policies parsed from differently named databases carry the
// parsed name for emission, but the name is not part of the policy's
// identity.
func PolicyPayloadEqual(a, b PolicyCommand) bool {
	return withoutEntity(a).Equal(withoutEntity(b))
}

func withoutEntity(c PolicyCommand) Command {
	switch v := c.(type) {
	case *AlterPolicy:
		copied := *v
		copied.Entity = EntityName{}
		return &copied
	case *DeletePolicy:
		copied := *v
		copied.Entity = EntityName{}
		return &copied
	case *AlterCachingPolicy:
		copied := *v
		copied.Entity = EntityName{}
		return &copied
	case *AlterRowLevelSecurityPolicy:
		copied := *v
		copied.Entity = EntityName{}
		return &copied
	case *AlterIngestionTimePolicy:
		copied := *v
		copied.Entity = EntityName{}
		return &copied
	case *AlterRestrictedViewAccessPolicy:
		copied := *v
		copied.Entity = EntityName{}
		return &copied
	}
	return c
}

func writeEntityClause(b *strings.Builder, entityType EntityType, entity EntityName, ctx *ScriptingContext) {
	if entityType == DatabaseEntity {
		b.WriteString("database ")
		b.WriteString(databaseIdentifier(entity, ctx))
		return
	}
	b.WriteString("table ")
	b.WriteString(entity.Script())
}
