package delta

import (
	"testing"
	"time"

	"github.com/berthertogen/delta-kusto/command"
	"github.com/berthertogen/delta-kusto/schema"
	"github.com/kylelemons/godebug/pretty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustModel(t *testing.T, script string) *schema.Database {
	t.Helper()
	cmds, err := command.ParseScript(script)
	require.NoError(t, err)
	model, err := schema.FromCommands(cmds)
	require.NoError(t, err)
	return model
}

func TestCachingNoneToOne(t *testing.T) {
	t.Parallel()

	current := mustModel(t, `.create table T (a:int)`)
	target := mustModel(t, `
.create table T (a:int)

.alter table T policy caching hot = 12h
`)
	cmds := Compute(current, target)
	require.Len(t, cmds, 1)
	caching, ok := cmds[0].(*command.AlterCachingPolicy)
	require.True(t, ok, "got %s", cmds[0].Script(nil))
	assert.Equal(t, 12*time.Hour, caching.HotData)
	assert.Equal(t, command.TableEntity, caching.EntityType)
	assert.Equal(t, "T", caching.Entity.Name())
}

func TestCachingOneToNone(t *testing.T) {
	t.Parallel()

	current := mustModel(t, `
.create table T (a:int)

.alter table T policy caching hot = 12h
`)
	target := mustModel(t, `.create table T (a:int)`)

	cmds := Compute(current, target)
	require.Len(t, cmds, 1)
	del, ok := cmds[0].(*command.DeletePolicy)
	require.True(t, ok, "got %s", cmds[0].Script(nil))
	assert.Equal(t, command.CachingPolicyKind, del.Kind)
	assert.Equal(t, "T", del.Entity.Name())
}

func TestCachingUnchanged(t *testing.T) {
	t.Parallel()

	script := `
.create table A (a:int)

.alter table A policy caching hot = 45ms
`
	cmds := Compute(mustModel(t, script), mustModel(t, script))
	assert.Empty(t, cmds)
}

func TestTableDeltaByColumnAdd(t *testing.T) {
	t.Parallel()

	current := mustModel(t, `.create table T (a:int)`)
	target := mustModel(t, `.create table T (a:int, b:string)`)

	cmds := Compute(current, target)
	require.Len(t, cmds, 1)
	assert.Equal(t, ".create-merge table T (a:int, b:string)", cmds[0].Script(nil))
}

func TestMappingCascadeDrop(t *testing.T) {
	t.Parallel()

	current := mustModel(t, `
.create table T (a:int)

.create table T ingestion json mapping "M" '[{"column":"a","path":"$.a"}]'
`)
	target := schema.New()

	cmds := Compute(current, target)
	require.Len(t, cmds, 2)
	assert.IsType(t, &command.DropMapping{}, cmds[0])
	assert.IsType(t, &command.DropTable{}, cmds[1])
}

func TestPolicyOnNewTable(t *testing.T) {
	t.Parallel()

	current := schema.New()
	target := mustModel(t, `
.create table T (a:int)

.alter table T policy retention '{"SoftDeletePeriod":"10.00:00:00"}'
`)

	cmds := Compute(current, target)
	require.Len(t, cmds, 2)
	assert.IsType(t, &command.CreateTable{}, cmds[0])
	assert.IsType(t, &command.AlterPolicy{}, cmds[1])
}

func TestColumnTypeChangeRecreates(t *testing.T) {
	t.Parallel()

	current := mustModel(t, `.create table T (a:int)`)
	target := mustModel(t, `.create table T (a:string)`)

	cmds := Compute(current, target)
	require.Len(t, cmds, 2)
	assert.Equal(t, ".drop table T", cmds[0].Script(nil))
	assert.Equal(t, ".create table T (a:string)", cmds[1].Script(nil))
}

func TestColumnRemovalRecreates(t *testing.T) {
	t.Parallel()

	current := mustModel(t, `.create table T (a:int, b:string)`)
	target := mustModel(t, `.create table T (a:int)`)

	cmds := Compute(current, target)
	require.Len(t, cmds, 2)
	assert.IsType(t, &command.DropTable{}, cmds[0])
	create := cmds[1].(*command.CreateTable)
	assert.False(t, create.Merge)
}

func TestRecreateReappliesPoliciesAndMappings(t *testing.T) {
	t.Parallel()

	current := mustModel(t, `
.create table T (a:int)

.create table T ingestion json mapping "M" '[{"column":"a","path":"$.a"}]'

.alter table T policy caching hot = 7d
`)
	// Same mapping and policy, but the column type change forces a
	// drop+create; both must be re-emitted even though they are "equal".
	target := mustModel(t, `
.create table T (a:string)

.create table T ingestion json mapping "M" '[{"column":"a","path":"$.a"}]'

.alter table T policy caching hot = 7d
`)

	cmds := Compute(current, target)
	var kinds []string
	for _, c := range cmds {
		kinds = append(kinds, c.FriendlyName())
	}
	assert.Equal(t, []string{
		".drop table",
		".create table",
		".alter table policy caching",
		".create table ingestion mapping",
	}, kinds)
}

func TestFolderChangeEmitsCreateMerge(t *testing.T) {
	t.Parallel()

	current := mustModel(t, `.create table T (a:int)`)
	target := mustModel(t, `.create table T (a:int) with (folder="moved")`)

	cmds := Compute(current, target)
	require.Len(t, cmds, 1)
	assert.Equal(t, `.create-merge table T (a:int) with (folder="moved")`, cmds[0].Script(nil))
}

func TestFunctionChangeIsCreateOrAlter(t *testing.T) {
	t.Parallel()

	current := mustModel(t, `
.create-or-alter function F (n:long) {
T | take n
}
`)
	target := mustModel(t, `
.create-or-alter function F (n:long) {
T | take n | project a
}
`)
	cmds := Compute(current, target)
	require.Len(t, cmds, 1)
	assert.IsType(t, &command.CreateFunction{}, cmds[0])
}

func TestDropFunctionFirst(t *testing.T) {
	t.Parallel()

	current := mustModel(t, `
.create table T (a:int)

.create-or-alter function F (n:long) {
T | take n
}
`)
	target := schema.New()

	cmds := Compute(current, target)
	require.Len(t, cmds, 2)
	assert.IsType(t, &command.DropFunction{}, cmds[0])
	assert.IsType(t, &command.DropTable{}, cmds[1])
}

func TestPluralBatchingInDelta(t *testing.T) {
	t.Parallel()

	current := schema.New()
	target := mustModel(t, `
.create table A (x:int)

.create table B (y:int)
`)
	cmds := Compute(current, target)
	require.Len(t, cmds, 1)
	plural, ok := cmds[0].(*command.CreateTables)
	require.True(t, ok, "got %s", cmds[0].Script(nil))
	assert.Len(t, plural.Tables, 2)
}

func TestEmptyDeltaOnIdenticalModels(t *testing.T) {
	t.Parallel()

	script := `
.create table T (a:int, b:string) with (folder="f")

.create table T ingestion json mapping "M" '[{"column":"a","path":"$.a"}]'

.alter table T policy retention '{"SoftDeletePeriod":"10.00:00:00"}'

.alter database Db policy caching hot = 1d

.create-or-alter function F (n:long) {
T | take n
}
`
	m := mustModel(t, script)
	assert.Empty(t, Compute(m, m))
	// Same content, separately folded.
	assert.Empty(t, Compute(mustModel(t, script), mustModel(t, script)))
}

func TestPolicyWhitespaceDifferencesAreNoOps(t *testing.T) {
	t.Parallel()

	current := mustModel(t, `
.create table T (a:int)

.alter table T policy retention '{"SoftDeletePeriod":"10.00:00:00","Recoverability":"Enabled"}'
`)
	target := mustModel(t, `
.create table T (a:int)

.alter table T policy retention '{ "Recoverability" : "Enabled", "SoftDeletePeriod" : "10.00:00:00" }'
`)
	assert.Empty(t, Compute(current, target))
}

// reachability: folding the delta into current must land exactly on target.
func TestReachability(t *testing.T) {
	t.Parallel()

	scenarios := []struct {
		desc    string
		current string
		target  string
	}{
		{
			"empty to populated",
			``,
			`
.create table T (a:int) with (folder="f")

.create table T ingestion json mapping "M" '[{"column":"a","path":"$.a"}]'

.alter table T policy caching hot = 7d

.create-or-alter function F (n:long) {
T | take n
}
`,
		},
		{
			"populated to empty",
			`
.create table T (a:int)

.create table T ingestion json mapping "M" '[]'

.alter table T policy caching hot = 7d
`,
			``,
		},
		{
			"column add and policy change",
			`
.create table T (a:int)

.alter table T policy caching hot = 7d
`,
			`
.create table T (a:int, b:string)

.alter table T policy caching hot = 14d

.alter table T policy retention '{"SoftDeletePeriod":"10.00:00:00"}'
`,
		},
		{
			"recreate with mappings",
			`
.create table T (a:int)

.create table T ingestion json mapping "M" '[{"column":"a","path":"$.a"}]'
`,
			`
.create table T (a:string)

.create table T ingestion json mapping "M" '[{"column":"a","path":"$.a"}]'
`,
		},
		{
			"folder removal",
			`.create table T (a:int) with (folder="f", docstring="d")`,
			`.create table T (a:int)`,
		},
		{
			"function swap",
			`
.create-or-alter function F (n:long) {
print n
}
`,
			`
.create-or-alter function G () {
print 1
}
`,
		},
	}

	for _, scenario := range scenarios {
		t.Run(scenario.desc, func(t *testing.T) {
			current := mustModel(t, scenario.current)
			target := mustModel(t, scenario.target)

			cmds := Compute(current, target)

			// Round-trip the delta through its script form first, then fold.
			reparsed, err := command.ParseScript(command.Text(cmds, nil))
			require.NoError(t, err)
			applied, err := current.Apply(reparsed)
			require.NoError(t, err)
			if !applied.Equal(target) {
				t.Errorf("delta did not reach the target:\n%s\n-target/+applied:\n%s",
					command.Text(cmds, nil), pretty.Compare(target, applied))
			}

			// And a delta against the reached state is empty.
			assert.Empty(t, Compute(applied, target))
		})
	}
}

// ordering safety: drops precede creates for entities on both sides, and any
// policy or mapping command's entity exists at the point it is emitted.
func TestOrderingSafety(t *testing.T) {
	t.Parallel()

	current := mustModel(t, `
.create table T (a:int)

.create table T ingestion json mapping "M" '[]'

.create-or-alter function F () {
print 1
}
`)
	target := mustModel(t, `
.create table T (a:string)

.create table T ingestion json mapping "M" '[]'

.alter table T policy retention '{"SoftDeletePeriod":"10.00:00:00"}'

.create-or-alter function F () {
print 2
}
`)
	cmds := Compute(current, target)

	model := current
	for i, c := range cmds {
		next, err := model.Apply([]command.Command{c})
		require.NoError(t, err, "command #%d (%s) was emitted before its dependencies", i, c.Script(nil))
		model = next
	}
	assert.True(t, model.Equal(target))
}
