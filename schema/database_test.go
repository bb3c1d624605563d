package schema

import (
	"testing"

	"github.com/berthertogen/delta-kusto/command"
	"github.com/berthertogen/delta-kusto/errors"
	"github.com/kylelemons/godebug/pretty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustModel(t *testing.T, script string) *Database {
	t.Helper()
	cmds, err := command.ParseScript(script)
	require.NoError(t, err)
	model, err := FromCommands(cmds)
	require.NoError(t, err)
	return model
}

func TestFoldCreateTable(t *testing.T) {
	t.Parallel()

	model := mustModel(t, `.create table T (a:int, b:string) with (folder="f")`)
	require.Len(t, model.Tables, 1)
	table := model.Tables[command.NewEntityName("T")]
	assert.Len(t, table.Columns, 2)
	assert.Equal(t, "f", table.Folder.Text())
}

func TestFoldLastWins(t *testing.T) {
	t.Parallel()

	model := mustModel(t, `
.create table T (a:int)

.create table T (a:int, b:string)
`)
	table := model.Tables[command.NewEntityName("T")]
	assert.Len(t, table.Columns, 2)
}

func TestFoldCreateMergeIsAdditive(t *testing.T) {
	t.Parallel()

	model := mustModel(t, `
.create table T (a:int) with (folder="original")

.create-merge table T (b:string) with (folder="moved")
`)
	table := model.Tables[command.NewEntityName("T")]
	require.Len(t, table.Columns, 2)
	assert.Equal(t, "a", table.Columns[0].Name.Name())
	assert.Equal(t, "b", table.Columns[1].Name.Name())
	assert.Equal(t, "moved", table.Folder.Text())
}

func TestFoldCreateMergeClearsOmittedProperties(t *testing.T) {
	t.Parallel()

	model := mustModel(t, `
.create table T (a:int) with (folder="original")

.create-merge table T (a:int)
`)
	table := model.Tables[command.NewEntityName("T")]
	assert.True(t, table.Folder.IsZero())
}

func TestFoldDropTableCascades(t *testing.T) {
	t.Parallel()

	model := mustModel(t, `
.create table T (a:int)

.create table T ingestion json mapping "M" '[{"column":"a","path":"$.a"}]'

.alter table T policy caching hot = 7d

.drop table T
`)
	assert.Empty(t, model.Tables)
	assert.Empty(t, model.Mappings)
	assert.Empty(t, model.Policies)
}

func TestFoldDropThenRecreate(t *testing.T) {
	t.Parallel()

	model := mustModel(t, `
.create table T (a:int)

.drop table T

.create table T (b:string)
`)
	table, ok := model.Tables[command.NewEntityName("T")]
	require.True(t, ok)
	require.Len(t, table.Columns, 1)
	assert.Equal(t, "b", table.Columns[0].Name.Name())
}

func TestFoldMappingRequiresTable(t *testing.T) {
	t.Parallel()

	cmds, err := command.ParseScript(`.create table T ingestion json mapping "M" '[]'`)
	require.NoError(t, err)
	_, err = FromCommands(cmds)
	require.Error(t, err)
	assert.Equal(t, errors.MissingEntity, errors.CodeOf(err))
}

func TestFoldTablePolicyRequiresTable(t *testing.T) {
	t.Parallel()

	cmds, err := command.ParseScript(`.alter table T policy caching hot = 7d`)
	require.NoError(t, err)
	_, err = FromCommands(cmds)
	require.Error(t, err)
	assert.Equal(t, errors.MissingEntity, errors.CodeOf(err))
}

func TestFoldDeletePolicy(t *testing.T) {
	t.Parallel()

	model := mustModel(t, `
.create table T (a:int)

.alter table T policy caching hot = 7d

.delete table T policy caching
`)
	assert.Empty(t, model.Policies)
}

func TestFoldDatabasePoliciesIgnoreDatabaseName(t *testing.T) {
	t.Parallel()

	a := mustModel(t, `.alter database DbA policy retention '{"SoftDeletePeriod":"10.00:00:00"}'`)
	b := mustModel(t, `.alter database DbB policy retention '{"SoftDeletePeriod": "10.00:00:00"}'`)
	assert.True(t, a.Equal(b))
}

func TestFoldPluralCreateTables(t *testing.T) {
	t.Parallel()

	model := mustModel(t, `.create tables A (x:long), B (y:real) with (folder="shared")`)
	require.Len(t, model.Tables, 2)
	assert.Equal(t, "shared", model.Tables[command.NewEntityName("A")].Folder.Text())
	assert.Equal(t, "shared", model.Tables[command.NewEntityName("B")].Folder.Text())
}

func TestFoldIdempotence(t *testing.T) {
	t.Parallel()

	script := `
.create table T (a:int, b:string) with (folder="f", docstring="doc")

.create table U (c:datetime)

.create table T ingestion json mapping "M" '[{"column":"a","path":"$.a"}]' with (removeOldestIfRequired=true)

.alter table T policy caching hot = 7d

.alter database Db policy retention '{"SoftDeletePeriod":"36500.00:00:00"}'

.create-or-alter function with (folder="fn") F (n:long) {
T | take n
}
`
	model := mustModel(t, script)

	// Emit every model entry back to a script and refold: the models must
	// agree.
	var cmds []command.Command
	for name, table := range model.Tables {
		cmds = append(cmds, &command.CreateTable{
			Table: name, Columns: table.Columns, Folder: table.Folder, DocString: table.DocString,
		})
	}
	for _, fn := range model.Functions {
		cmds = append(cmds, fn)
	}
	for _, m := range model.Mappings {
		cmds = append(cmds, m)
	}
	for _, p := range model.Policies {
		cmds = append(cmds, p)
	}
	command.Sort(cmds)

	refolded := mustModel(t, command.Text(cmds, nil))
	if !model.Equal(refolded) {
		t.Errorf("refolded model diverged: -want/+got:\n%s", pretty.Compare(model, refolded))
	}
}

func TestApplyIsPure(t *testing.T) {
	t.Parallel()

	base := mustModel(t, `.create table T (a:int)`)
	cmds, err := command.ParseScript(`.drop table T`)
	require.NoError(t, err)

	applied, err := base.Apply(cmds)
	require.NoError(t, err)
	assert.Empty(t, applied.Tables)
	assert.Len(t, base.Tables, 1, "Apply must not mutate the receiver")
}
