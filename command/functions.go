package command

import "strings"

// CreateFunction creates or replaces a stored function. Parameters and Body
// carry the raw declaration text between the parentheses and the braces,
// trimmed; equality compares that text verbatim.
type CreateFunction struct {
	Function       EntityName
	Parameters     string
	Body           string
	Folder         QuotedText
	DocString      QuotedText
	SkipValidation bool
}

// FriendlyName implements Command.
func (c *CreateFunction) FriendlyName() string {
	return ".create-or-alter function"
}

// SortIndex implements Command.
func (c *CreateFunction) SortIndex() string {
	return c.Function.Name()
}

// ScriptPath implements Command.
func (c *CreateFunction) ScriptPath() string {
	return scriptPath("functions", "create", c.Folder.Text(), c.Function)
}

// Script implements Command.
func (c *CreateFunction) Script(_ *ScriptingContext) string {
	var b strings.Builder
	b.WriteString(c.FriendlyName())
	props := make([]string, 0, 3)
	if !c.Folder.IsZero() {
		props = append(props, "folder="+c.Folder.Script())
	}
	if !c.DocString.IsZero() {
		props = append(props, "docstring="+c.DocString.Script())
	}
	if c.SkipValidation {
		props = append(props, `skipvalidation="true"`)
	}
	if len(props) > 0 {
		b.WriteString(" with (")
		b.WriteString(strings.Join(props, ", "))
		b.WriteString(")")
	}
	b.WriteString(" ")
	b.WriteString(c.Function.Script())
	b.WriteString(" (")
	b.WriteString(c.Parameters)
	b.WriteString(") {\n")
	b.WriteString(c.Body)
	b.WriteString("\n}")
	return b.String()
}

// Equal implements Command.
func (c *CreateFunction) Equal(other Command) bool {
	o, ok := other.(*CreateFunction)
	if !ok {
		return false
	}
	return c.Function == o.Function &&
		c.Parameters == o.Parameters &&
		c.Body == o.Body &&
		c.Folder == o.Folder &&
		c.DocString == o.DocString &&
		c.SkipValidation == o.SkipValidation
}

// DropFunction drops a stored function.
type DropFunction struct {
	Function EntityName
}

// FriendlyName implements Command.
func (c *DropFunction) FriendlyName() string {
	return ".drop function"
}

// SortIndex implements Command.
func (c *DropFunction) SortIndex() string {
	return c.Function.Name()
}

// ScriptPath implements Command.
func (c *DropFunction) ScriptPath() string {
	return scriptPath("functions", "drop", "", c.Function)
}

// Script implements Command.
func (c *DropFunction) Script(_ *ScriptingContext) string {
	return ".drop function " + c.Function.Script()
}

// Equal implements Command.
func (c *DropFunction) Equal(other Command) bool {
	o, ok := other.(*DropFunction)
	return ok && c.Function == o.Function
}
