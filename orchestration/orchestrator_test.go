package orchestration

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/berthertogen/delta-kusto/command"
	"github.com/berthertogen/delta-kusto/gateway"
	"github.com/berthertogen/delta-kusto/params"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeDatabase is a Database over a fixed script, recording pushes.
type fakeDatabase struct {
	database string
	script   string
	executed []command.Command
}

func (f *fakeDatabase) DatabaseName() string { return f.database }

func (f *fakeDatabase) ReverseEngineer(_ context.Context) ([]command.Command, error) {
	return command.ParseScript(f.script)
}

func (f *fakeDatabase) Execute(_ context.Context, cmds []command.Command) error {
	f.executed = append(f.executed, cmds...)
	return nil
}

func writeParams(t *testing.T, content string) *params.Main {
	t.Helper()
	main, err := params.Load([]byte(content))
	require.NoError(t, err)
	return main
}

func TestRunScriptToFileJob(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "current.kql"),
		[]byte(".create table T (a:int)"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "target.kql"),
		[]byte(".create table T (a:int, b:string)"), 0o644))

	main := writeParams(t, `
jobs:
  j:
    current:
      scripts:
        - filePath: `+filepath.Join(dir, "current.kql")+`
    target:
      scripts:
        - filePath: `+filepath.Join(dir, "target.kql")+`
    action:
      filePath: `+filepath.Join(dir, "delta.kql")+`
`)

	deps := Dependencies{Files: gateway.LocalFile{}}
	require.NoError(t, Run(context.Background(), main, deps))

	data, err := os.ReadFile(filepath.Join(dir, "delta.kql"))
	require.NoError(t, err)
	assert.Equal(t, ".create-merge table T (a:int, b:string)", string(data))
}

func TestRunFolderOutput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "target.kql"), []byte(`
.create table T (a:int)

.alter table T policy caching hot = 7d
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "current.kql"), []byte(""), 0o644))

	main := writeParams(t, `
jobs:
  j:
    current:
      scripts:
        - filePath: `+filepath.Join(dir, "current.kql")+`
    target:
      scripts:
        - filePath: `+filepath.Join(dir, "target.kql")+`
    action:
      folderPath: `+filepath.Join(dir, "out")+`
`)

	require.NoError(t, Run(context.Background(), main, Dependencies{Files: gateway.LocalFile{}}))

	created, err := os.ReadFile(filepath.Join(dir, "out", "tables", "create", "T.kql"))
	require.NoError(t, err)
	assert.Equal(t, ".create table T (a:int)", string(created))

	policy, err := os.ReadFile(filepath.Join(dir, "out", "tables", "policies", "caching", "create", "T.kql"))
	require.NoError(t, err)
	assert.Equal(t, ".alter table T policy caching hot = 7d", string(policy))
}

func TestRunPushToCurrent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "target.kql"),
		[]byte(".create table T (a:int)"), 0o644))

	fake := &fakeDatabase{database: "mydb", script: ""}
	main := writeParams(t, `
jobs:
  j:
    current:
      adx:
        clusterUri: https://c.westus.kusto.windows.net
        database: mydb
    target:
      scripts:
        - filePath: `+filepath.Join(dir, "target.kql")+`
    action:
      pushToCurrent: true
`)

	deps := Dependencies{
		Files: gateway.LocalFile{},
		NewDatabase: func(clusterURI, database string, _ zerolog.Logger) (gateway.Database, error) {
			assert.Equal(t, "mydb", database)
			return fake, nil
		},
	}
	require.NoError(t, Run(context.Background(), main, deps))
	require.Len(t, fake.executed, 1)
	assert.IsType(t, &command.CreateTable{}, fake.executed[0])
}

func TestRunFailIfDropsBlocksPush(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "target.kql"), []byte(""), 0o644))

	fake := &fakeDatabase{database: "mydb", script: ".create table Doomed (a:int)"}
	main := writeParams(t, `
failIfDrops: true
jobs:
  j:
    current:
      adx:
        clusterUri: https://c.westus.kusto.windows.net
        database: mydb
    target:
      scripts:
        - filePath: `+filepath.Join(dir, "target.kql")+`
    action:
      pushToCurrent: true
`)

	deps := Dependencies{
		Files: gateway.LocalFile{},
		NewDatabase: func(clusterURI, database string, _ zerolog.Logger) (gateway.Database, error) {
			return fake, nil
		},
	}
	err := Run(context.Background(), main, deps)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Doomed")
	assert.Empty(t, fake.executed)
}

func TestRunJobsInPriorityOrder(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.kql"), []byte(""), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "target.kql"),
		[]byte(".create table T (a:int)"), 0o644))

	job := func(out string, priority int) string {
		return `
    priority: ` + strconv.Itoa(priority) + `
    current:
      scripts:
        - filePath: ` + filepath.Join(dir, "empty.kql") + `
    target:
      scripts:
        - filePath: ` + filepath.Join(dir, "target.kql") + `
    action:
      filePath: ` + filepath.Join(dir, out)
	}
	main := writeParams(t, "jobs:\n  second:"+job("second.kql", 2)+"\n  first:"+job("first.kql", 1)+"\n")
	assert.Equal(t, []string{"first", "second"}, main.OrderedJobNames())

	require.NoError(t, Run(context.Background(), main, Dependencies{Files: gateway.LocalFile{}}))

	for _, name := range []string{"first.kql", "second.kql"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, "job output %s missing", name)
	}
}
