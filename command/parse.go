package command

import (
	"sort"
	"strings"
	"time"

	"github.com/berthertogen/delta-kusto/errors"
	"github.com/berthertogen/delta-kusto/kql"
)

// Command kind priorities. The number is only a stable tiebreaker for
// emission order across unrelated command kinds; policy commands spread over
// a range so that two different policies on the same entity order
// deterministically.
const (
	priorityDropFunction   = 100
	priorityDropMapping    = 200
	priorityDropTable      = 300
	priorityCreateTable    = 400
	priorityCreateTables   = 410
	priorityDeletePolicy   = 500
	priorityAlterPolicy    = 600
	priorityCreateMapping  = 700
	priorityCreateFunction = 800
)

// Priority returns the declared priority of a command's kind.
func Priority(c Command) int {
	switch v := c.(type) {
	case *DropFunction:
		return priorityDropFunction
	case *DropMapping:
		return priorityDropMapping
	case *DropTable:
		return priorityDropTable
	case *CreateTable:
		return priorityCreateTable
	case *CreateTables:
		return priorityCreateTables
	case *DeletePolicy:
		return priorityDeletePolicy + int(v.Kind)
	case *AlterPolicy:
		return priorityAlterPolicy + int(v.Kind)
	case *AlterCachingPolicy:
		return priorityAlterPolicy + int(CachingPolicyKind)
	case *AlterRowLevelSecurityPolicy:
		return priorityAlterPolicy + int(RowLevelSecurityPolicyKind)
	case *AlterIngestionTimePolicy:
		return priorityAlterPolicy + int(IngestionTimePolicyKind)
	case *AlterRestrictedViewAccessPolicy:
		return priorityAlterPolicy + int(RestrictedViewAccessPolicyKind)
	case *CreateMapping:
		return priorityCreateMapping
	case *CreateFunction:
		return priorityCreateFunction
	}
	return 0
}

// Sort orders commands by SortIndex (ordinal), ties broken by the command
// kind's priority.
func Sort(cmds []Command) {
	sort.SliceStable(cmds, func(i, j int) bool {
		if cmds[i].SortIndex() != cmds[j].SortIndex() {
			return cmds[i].SortIndex() < cmds[j].SortIndex()
		}
		return Priority(cmds[i]) < Priority(cmds[j])
	})
}

// registration binds a (verb, object) statement head to its factory. This is
// the whole command registry: an explicit, hand-maintained table instead of
// attribute scanning.
type registration struct {
	verb     string
	object   string
	priority int
	parse    func(p *parser) (Command, error)
}

var registry = []registration{
	{"create", "table", priorityCreateTable, func(p *parser) (Command, error) { return p.parseCreateTableOrMapping(false) }},
	{"create-merge", "table", priorityCreateTable, func(p *parser) (Command, error) { return p.parseCreateTableOrMapping(true) }},
	{"create", "tables", priorityCreateTables, func(p *parser) (Command, error) { return p.parseCreateTables(false) }},
	{"create-merge", "tables", priorityCreateTables, func(p *parser) (Command, error) { return p.parseCreateTables(true) }},
	{"drop", "table", priorityDropTable, (*parser).parseDropTableOrMapping},
	{"create", "function", priorityCreateFunction, (*parser).parseCreateFunction},
	{"create-or-alter", "function", priorityCreateFunction, (*parser).parseCreateFunction},
	{"drop", "function", priorityDropFunction, (*parser).parseDropFunction},
	{"alter", "table", priorityAlterPolicy, func(p *parser) (Command, error) { return p.parseAlterPolicy(TableEntity) }},
	{"alter", "database", priorityAlterPolicy, func(p *parser) (Command, error) { return p.parseAlterPolicy(DatabaseEntity) }},
	{"delete", "table", priorityDeletePolicy, func(p *parser) (Command, error) { return p.parseDeletePolicy(TableEntity) }},
	{"delete", "database", priorityDeletePolicy, func(p *parser) (Command, error) { return p.parseDeletePolicy(DatabaseEntity) }},
}

func lookupRegistration(verb, object string) (registration, bool) {
	for _, r := range registry {
		if r.verb == verb && strings.EqualFold(r.object, object) {
			return r, true
		}
	}
	return registration{}, false
}

type parser struct {
	lex *lexer
	buf *token
}

// ParseScript parses a control script into its command sequence. It fails
// fast on the first malformed or unsupported command, naming the offending
// text.
func ParseScript(script string) ([]Command, error) {
	p := &parser{lex: newLexer(script)}
	var cmds []Command
	for {
		tok, err := p.next()
		if err != nil {
			return nil, errors.New(errors.Parse, errors.MalformedScript, "%s", err)
		}
		if tok.kind == tokenEOF {
			return cmds, nil
		}
		if tok.kind != tokenVerb {
			return nil, errors.New(errors.Parse, errors.MalformedScript,
				"expected a control command, found %s near: %s", tok.kind, p.lex.restOfLine(tok.pos))
		}
		head := p.lex.restOfLine(tok.pos)
		obj, err := p.next()
		if err != nil {
			return nil, errors.New(errors.Parse, errors.MalformedScript, "%s", err)
		}
		reg, ok := registration{}, false
		if obj.kind == tokenIdent {
			reg, ok = lookupRegistration(tok.text, obj.text)
		}
		if !ok {
			return nil, errors.New(errors.Parse, errors.UnsupportedCommand,
				"unsupported command: %s", head)
		}
		cmd, err := reg.parse(p)
		if err != nil {
			if _, isDomain := err.(*errors.Error); isDomain {
				return nil, err
			}
			return nil, errors.New(errors.Parse, errors.MalformedScript,
				"%s (in command: %s)", err, head)
		}
		cmds = append(cmds, cmd)
	}
}

func (p *parser) next() (token, error) {
	if p.buf != nil {
		tok := *p.buf
		p.buf = nil
		return tok, nil
	}
	return p.lex.next()
}

func (p *parser) peek() (token, error) {
	if p.buf == nil {
		tok, err := p.lex.next()
		if err != nil {
			return token{}, err
		}
		p.buf = &tok
	}
	return *p.buf, nil
}

func (p *parser) peekIdent(word string) bool {
	tok, err := p.peek()
	return err == nil && tok.kind == tokenIdent && strings.EqualFold(tok.text, word)
}

func (p *parser) peekPunct(s string) bool {
	tok, err := p.peek()
	return err == nil && tok.kind == tokenPunct && tok.text == s
}

func (p *parser) expectPunct(s string) error {
	tok, err := p.next()
	if err != nil {
		return err
	}
	if tok.kind != tokenPunct || tok.text != s {
		return errors.New(errors.Parse, errors.MalformedScript,
			"expected %q, found %q near: %s", s, tok.text, p.lex.restOfLine(tok.pos))
	}
	return nil
}

func (p *parser) expectIdent(word string) (token, error) {
	tok, err := p.next()
	if err != nil {
		return token{}, err
	}
	if tok.kind != tokenIdent || (word != "" && !strings.EqualFold(tok.text, word)) {
		want := "an identifier"
		if word != "" {
			want = "'" + word + "'"
		}
		return token{}, errors.New(errors.Parse, errors.MalformedScript,
			"expected %s, found %q near: %s", want, tok.text, p.lex.restOfLine(tok.pos))
	}
	return tok, nil
}

func (p *parser) parseEntityName() (EntityName, error) {
	tok, err := p.next()
	if err != nil {
		return EntityName{}, err
	}
	switch tok.kind {
	case tokenIdent, tokenQuotedIdent, tokenString:
		return NewEntityName(tok.text), nil
	}
	return EntityName{}, errors.New(errors.Parse, errors.MalformedScript,
		"expected an entity name, found %s near: %s", tok.kind, p.lex.restOfLine(tok.pos))
}

// captureBalanced hands the raw stream to the lexer; the token buffer must be
// empty or raw capture would skip buffered text.
func (p *parser) captureBalanced(open, close byte) (string, error) {
	if p.buf != nil {
		return "", errors.New(errors.Parse, errors.MalformedScript,
			"internal: raw capture with a buffered token")
	}
	return p.lex.captureBalanced(open, close)
}

// withProperty is one name=value entry of a with (...) clause.
type withProperty struct {
	key   string
	value string
}

// parseWith parses an optional `with (name=value, ...)` clause. Keys are kept
// verbatim for error messages; lookups are case-insensitive.
func (p *parser) parseWith() ([]withProperty, error) {
	if !p.peekIdent("with") {
		return nil, nil
	}
	if _, err := p.next(); err != nil {
		return nil, err
	}
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	var props []withProperty
	for {
		key, err := p.expectIdent("")
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct("="); err != nil {
			return nil, err
		}
		val, err := p.next()
		if err != nil {
			return nil, err
		}
		switch val.kind {
		case tokenString, tokenIdent, tokenNumber:
			props = append(props, withProperty{key: key.text, value: val.text})
		default:
			return nil, errors.New(errors.Parse, errors.MalformedScript,
				"bad value for property %q near: %s", key.text, p.lex.restOfLine(val.pos))
		}
		if p.peekPunct(",") {
			if _, err := p.next(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	return props, nil
}

func propertyBool(value string) bool {
	return strings.EqualFold(value, "true")
}

// parseColumns parses a parenthesized `name:type, ...` column list, with the
// opening parenthesis already consumed by the caller's expectPunct.
func (p *parser) parseColumns() ([]TableColumn, error) {
	var cols []TableColumn
	for {
		name, err := p.parseEntityName()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(":"); err != nil {
			return nil, err
		}
		typ, err := p.expectIdent("")
		if err != nil {
			return nil, err
		}
		cols = append(cols, TableColumn{Name: name, Type: typ.text})
		if p.peekPunct(",") {
			if _, err := p.next(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	return cols, nil
}

func (p *parser) parseCreateTableOrMapping(merge bool) (Command, error) {
	name, err := p.parseEntityName()
	if err != nil {
		return nil, err
	}
	if p.peekIdent("ingestion") {
		if merge {
			return nil, errors.New(errors.Parse, errors.UnsupportedCommand,
				"unsupported command: .create-merge table %s ingestion ...", name.Name())
		}
		return p.parseCreateMapping(name)
	}
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	cols, err := p.parseColumns()
	if err != nil {
		return nil, err
	}
	cmd := &CreateTable{Merge: merge, Table: name, Columns: cols}
	props, err := p.parseWith()
	if err != nil {
		return nil, err
	}
	if err := applyTableProperties(props, &cmd.Folder, &cmd.DocString); err != nil {
		return nil, err
	}
	return cmd, nil
}

func (p *parser) parseCreateTables(merge bool) (Command, error) {
	cmd := &CreateTables{Merge: merge}
	for {
		name, err := p.parseEntityName()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct("("); err != nil {
			return nil, err
		}
		cols, err := p.parseColumns()
		if err != nil {
			return nil, err
		}
		cmd.Tables = append(cmd.Tables, TableSchemaEntry{Table: name, Columns: cols})
		if p.peekPunct(",") {
			if _, err := p.next(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	props, err := p.parseWith()
	if err != nil {
		return nil, err
	}
	if err := applyTableProperties(props, &cmd.Folder, &cmd.DocString); err != nil {
		return nil, err
	}
	return cmd, nil
}

// applyTableProperties fills folder/docstring from a with clause. Keys are
// matched case-insensitively; anything else is rejected.
func applyTableProperties(props []withProperty, folder, docString *QuotedText) error {
	for _, prop := range props {
		switch strings.ToLower(prop.key) {
		case "folder":
			*folder = NewQuotedText(prop.value)
		case "docstring":
			*docString = NewQuotedText(prop.value)
		default:
			return errors.New(errors.Parse, errors.MalformedScript,
				"unrecognized property %q on create table", prop.key)
		}
	}
	return nil
}

func (p *parser) parseDropTableOrMapping() (Command, error) {
	name, err := p.parseEntityName()
	if err != nil {
		return nil, err
	}
	if !p.peekIdent("ingestion") {
		return &DropTable{Table: name}, nil
	}
	if _, err := p.next(); err != nil {
		return nil, err
	}
	kind, err := p.parseMappingKind()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectIdent("mapping"); err != nil {
		return nil, err
	}
	mapping, err := p.parseMappingName()
	if err != nil {
		return nil, err
	}
	return &DropMapping{Table: name, Kind: kind, Mapping: mapping}, nil
}

func (p *parser) parseMappingKind() (MappingKind, error) {
	tok, err := p.expectIdent("")
	if err != nil {
		return "", err
	}
	kind, ok := mappingKinds[strings.ToLower(tok.text)]
	if !ok {
		return "", errors.New(errors.Parse, errors.MalformedScript,
			"unknown ingestion mapping kind %q", tok.text)
	}
	return kind, nil
}

func (p *parser) parseMappingName() (QuotedText, error) {
	tok, err := p.next()
	if err != nil {
		return QuotedText{}, err
	}
	switch tok.kind {
	case tokenString, tokenIdent, tokenQuotedIdent:
		return NewQuotedText(tok.text), nil
	}
	return QuotedText{}, errors.New(errors.Parse, errors.MalformedScript,
		"expected a mapping name, found %s near: %s", tok.kind, p.lex.restOfLine(tok.pos))
}

func (p *parser) parseCreateMapping(table EntityName) (Command, error) {
	if _, err := p.expectIdent("ingestion"); err != nil {
		return nil, err
	}
	kind, err := p.parseMappingKind()
	if err != nil {
		return nil, err
	}
	if _, err := p.expectIdent("mapping"); err != nil {
		return nil, err
	}
	mapping, err := p.parseMappingName()
	if err != nil {
		return nil, err
	}
	asJSON, err := p.collectStringPayload()
	if err != nil {
		return nil, err
	}
	cmd := &CreateMapping{Table: table, Kind: kind, Mapping: mapping, AsJSON: NewQuotedText(asJSON)}
	props, err := p.parseWith()
	if err != nil {
		return nil, err
	}
	for _, prop := range props {
		if !strings.EqualFold(prop.key, "removeOldestIfRequired") {
			return nil, errors.New(errors.Parse, errors.MalformedScript,
				"unrecognized property %q on create mapping", prop.key)
		}
		cmd.RemoveOldestIfRequired = propertyBool(prop.value)
	}
	return cmd, nil
}

// collectStringPayload reads one ``` block, or one string literal with any
// directly following string literals stitched onto it. Long mapping JSON
// arrives from the service split over several literals.
func (p *parser) collectStringPayload() (string, error) {
	tok, err := p.next()
	if err != nil {
		return "", err
	}
	if tok.kind == tokenRawString {
		return strings.TrimSpace(tok.text), nil
	}
	if tok.kind != tokenString {
		return "", errors.New(errors.Parse, errors.MalformedScript,
			"expected a string payload, found %s near: %s", tok.kind, p.lex.restOfLine(tok.pos))
	}
	var b strings.Builder
	b.WriteString(tok.text)
	for {
		nxt, err := p.peek()
		if err != nil || nxt.kind != tokenString {
			break
		}
		if _, err := p.next(); err != nil {
			return "", err
		}
		b.WriteString(nxt.text)
	}
	return b.String(), nil
}

func (p *parser) parseCreateFunction() (Command, error) {
	cmd := &CreateFunction{}
	props, err := p.parseWith()
	if err != nil {
		return nil, err
	}
	for _, prop := range props {
		switch strings.ToLower(prop.key) {
		case "folder":
			cmd.Folder = NewQuotedText(prop.value)
		case "docstring":
			cmd.DocString = NewQuotedText(prop.value)
		case "skipvalidation":
			cmd.SkipValidation = propertyBool(prop.value)
		default:
			return nil, errors.New(errors.Parse, errors.MalformedScript,
				"unrecognized property %q on create function", prop.key)
		}
	}
	name, err := p.parseEntityName()
	if err != nil {
		return nil, err
	}
	cmd.Function = name
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	params, err := p.captureBalanced('(', ')')
	if err != nil {
		return nil, err
	}
	cmd.Parameters = strings.TrimSpace(params)
	if err := p.expectPunct("{"); err != nil {
		return nil, err
	}
	body, err := p.captureBalanced('{', '}')
	if err != nil {
		return nil, err
	}
	cmd.Body = strings.TrimSpace(body)
	return cmd, nil
}

func (p *parser) parseDropFunction() (Command, error) {
	name, err := p.parseEntityName()
	if err != nil {
		return nil, err
	}
	return &DropFunction{Function: name}, nil
}

func (p *parser) parsePolicyHead(entityType EntityType) (EntityName, PolicyKind, error) {
	name, err := p.parseEntityName()
	if err != nil {
		return EntityName{}, 0, err
	}
	if !p.peekIdent("policy") {
		tok, _ := p.peek()
		return EntityName{}, 0, errors.New(errors.Parse, errors.UnsupportedCommand,
			"unsupported command near: %s", p.lex.restOfLine(tok.pos))
	}
	if _, err := p.next(); err != nil {
		return EntityName{}, 0, err
	}
	keyword, err := p.expectIdent("")
	if err != nil {
		return EntityName{}, 0, err
	}
	kind, ok := policyKindByKeyword[strings.ToLower(keyword.text)]
	if !ok {
		return EntityName{}, 0, errors.New(errors.Parse, errors.UnsupportedCommand,
			"unsupported policy kind %q", keyword.text)
	}
	if !kind.AttachesTo(entityType) {
		return EntityName{}, 0, errors.New(errors.Parse, errors.MalformedScript,
			"policy %s cannot be set on a %s", kind.Keyword(), entityType)
	}
	return name, kind, nil
}

func (p *parser) parseAlterPolicy(entityType EntityType) (Command, error) {
	name, kind, err := p.parsePolicyHead(entityType)
	if err != nil {
		return nil, err
	}

	switch kind {
	case CachingPolicyKind:
		return p.parseCachingPolicy(entityType, name)

	case RowLevelSecurityPolicyKind:
		enable, err := p.parseEnableDisable()
		if err != nil {
			return nil, err
		}
		query, err := p.collectStringPayload()
		if err != nil {
			return nil, err
		}
		return &AlterRowLevelSecurityPolicy{Entity: name, Enable: enable, Query: NewQuotedText(query)}, nil

	case IngestionTimePolicyKind:
		enable, err := p.parseBoolWord()
		if err != nil {
			return nil, err
		}
		return &AlterIngestionTimePolicy{Entity: name, Enable: enable}, nil

	case RestrictedViewAccessPolicyKind:
		enable, err := p.parseBoolWord()
		if err != nil {
			return nil, err
		}
		return &AlterRestrictedViewAccessPolicy{Entity: name, Enable: enable}, nil

	case StreamingIngestionPolicyKind:
		if p.peekIdent("enable") || p.peekIdent("disable") {
			enable, err := p.parseEnableDisable()
			if err != nil {
				return nil, err
			}
			doc, err := NewPolicyDocument(map[string]interface{}{"IsEnabled": enable})
			if err != nil {
				return nil, errors.Wrap(errors.Parse, errors.BadPolicy, err, "could not build the streamingingestion payload")
			}
			return &AlterPolicy{Kind: kind, EntityType: entityType, Entity: name, Policy: doc}, nil
		}
	}

	payload, err := p.collectStringPayload()
	if err != nil {
		return nil, err
	}
	doc, err := ParsePolicyDocument(payload)
	if err != nil {
		return nil, errors.New(errors.Parse, errors.BadPolicy,
			"bad %s policy payload on %s: %s", kind.Keyword(), name.Name(), err)
	}
	return &AlterPolicy{Kind: kind, EntityType: entityType, Entity: name, Policy: doc}, nil
}

func (p *parser) parseDeletePolicy(entityType EntityType) (Command, error) {
	name, kind, err := p.parsePolicyHead(entityType)
	if err != nil {
		return nil, err
	}
	return &DeletePolicy{Kind: kind, EntityType: entityType, Entity: name}, nil
}

func (p *parser) parseEnableDisable() (bool, error) {
	tok, err := p.expectIdent("")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(tok.text) {
	case "enable":
		return true, nil
	case "disable":
		return false, nil
	}
	return false, errors.New(errors.Parse, errors.MalformedScript,
		"expected 'enable' or 'disable', found %q", tok.text)
}

func (p *parser) parseBoolWord() (bool, error) {
	tok, err := p.expectIdent("")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(tok.text) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, errors.New(errors.Parse, errors.MalformedScript,
		"expected 'true' or 'false', found %q", tok.text)
}

func (p *parser) parseCachingPolicy(entityType EntityType, name EntityName) (Command, error) {
	if _, err := p.expectIdent("hot"); err != nil {
		return nil, err
	}
	if err := p.expectPunct("="); err != nil {
		return nil, err
	}
	hot, err := p.parseTimespanValue()
	if err != nil {
		return nil, err
	}
	cmd := &AlterCachingPolicy{EntityType: entityType, Entity: name, HotData: hot}
	for p.peekPunct(",") {
		if _, err := p.next(); err != nil {
			return nil, err
		}
		if _, err := p.expectIdent("hot_window"); err != nil {
			return nil, err
		}
		if err := p.expectPunct("="); err != nil {
			return nil, err
		}
		from, err := p.parseDatetimeValue()
		if err != nil {
			return nil, err
		}
		tok, err := p.next()
		if err != nil {
			return nil, err
		}
		if tok.kind != tokenDotDot {
			return nil, errors.New(errors.Parse, errors.MalformedScript,
				"expected '..' in hot_window near: %s", p.lex.restOfLine(tok.pos))
		}
		to, err := p.parseDatetimeValue()
		if err != nil {
			return nil, err
		}
		cmd.HotWindows = append(cmd.HotWindows, HotWindow{From: from, To: to})
	}
	return cmd, nil
}

func (p *parser) parseTimespanValue() (time.Duration, error) {
	tok, err := p.next()
	if err != nil {
		return 0, err
	}
	switch {
	case tok.kind == tokenNumber:
		d, err := kql.ParseTimespan(tok.text)
		if err != nil {
			return 0, errors.New(errors.Parse, errors.MalformedScript, "%s", err)
		}
		return d, nil
	case tok.kind == tokenIdent && (strings.EqualFold(tok.text, "time") || strings.EqualFold(tok.text, "timespan")):
		if err := p.expectPunct("("); err != nil {
			return 0, err
		}
		inner, err := p.lex.captureUntil(')')
		if err != nil {
			return 0, err
		}
		d, err := kql.ParseTimespan(inner)
		if err != nil {
			return 0, errors.New(errors.Parse, errors.MalformedScript, "%s", err)
		}
		return d, nil
	}
	return 0, errors.New(errors.Parse, errors.MalformedScript,
		"expected a timespan literal, found %q near: %s", tok.text, p.lex.restOfLine(tok.pos))
}

func (p *parser) parseDatetimeValue() (time.Time, error) {
	if _, err := p.expectIdent("datetime"); err != nil {
		return time.Time{}, err
	}
	if err := p.expectPunct("("); err != nil {
		return time.Time{}, err
	}
	inner, err := p.lex.captureUntil(')')
	if err != nil {
		return time.Time{}, err
	}
	t, err := kql.ParseDatetime(inner)
	if err != nil {
		return time.Time{}, errors.New(errors.Parse, errors.MalformedScript, "%s", err)
	}
	return t, nil
}
