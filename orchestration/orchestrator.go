// Package orchestration runs parameter-file jobs end to end: load the two
// schema sources, compute the delta, then write or push it.
package orchestration

import (
	"context"
	"strings"

	"github.com/berthertogen/delta-kusto/command"
	"github.com/berthertogen/delta-kusto/delta"
	"github.com/berthertogen/delta-kusto/errors"
	"github.com/berthertogen/delta-kusto/gateway"
	"github.com/berthertogen/delta-kusto/params"
	"github.com/berthertogen/delta-kusto/schema"
	"github.com/rs/zerolog"
)

// Dependencies are the gateways a run works through; tests substitute both.
// The zero Logger is a no-op; the runner annotates it with the job name
// before handing it further down.
type Dependencies struct {
	Files gateway.File
	// NewDatabase opens a gateway to one database of one cluster. The logger
	// is already scoped to the job asking for the connection.
	NewDatabase func(clusterURI, database string, logger zerolog.Logger) (gateway.Database, error)
	Logger      zerolog.Logger
}

// Run executes every job of the parameter file in ascending priority order,
// stopping at the first failure.
func Run(ctx context.Context, main *params.Main, deps Dependencies) error {
	for _, name := range main.OrderedJobNames() {
		if err := runJob(ctx, name, main, deps); err != nil {
			return err
		}
	}
	return nil
}

func runJob(ctx context.Context, name string, main *params.Main, deps Dependencies) error {
	job := main.Jobs[name]
	logger := deps.Logger.With().Str("job", name).Logger()
	logger.Info().Msg("computing delta")

	currentCmds, currentGw, err := loadSource(ctx, job.Current, deps, logger)
	if err != nil {
		return err
	}
	current, err := schema.FromCommands(currentCmds)
	if err != nil {
		return err
	}

	targetCmds, _, err := loadSource(ctx, job.Target, deps, logger)
	if err != nil {
		return err
	}
	target, err := schema.FromCommands(targetCmds)
	if err != nil {
		return err
	}

	cmds := delta.Compute(current, target)
	logger.Info().Int("commands", len(cmds)).Msg("delta computed")

	switch {
	case job.Action.PushToCurrent:
		if main.FailIfDrops {
			if drops := dropCommands(cmds); len(drops) > 0 {
				return errors.New(errors.Delta, errors.BadArguments,
					"job %q would drop entities and failIfDrops is set: %s", name, strings.Join(drops, ", "))
			}
		}
		if err := currentGw.Execute(ctx, cmds); err != nil {
			return err
		}
		logger.Info().Msg("delta pushed to current")

	case job.Action.FilePath != "":
		scriptingCtx := scriptingContext(job.Current)
		if err := deps.Files.WriteFile(job.Action.FilePath, []byte(command.Text(cmds, scriptingCtx))); err != nil {
			return err
		}
		logger.Info().Str("path", job.Action.FilePath).Msg("delta written")

	default:
		scriptingCtx := scriptingContext(job.Current)
		for path, content := range command.Files(cmds, scriptingCtx) {
			full := job.Action.FolderPath + "/" + path + ".kql"
			if err := deps.Files.WriteFile(full, []byte(content)); err != nil {
				return err
			}
		}
		logger.Info().Str("path", job.Action.FolderPath).Msg("delta written")
	}
	return nil
}

// loadSource returns the command list of a source and, for database sources,
// the open gateway so a push action can reuse it.
func loadSource(ctx context.Context, src *params.Source, deps Dependencies, logger zerolog.Logger) ([]command.Command, gateway.Database, error) {
	if src.ADX != nil {
		db, err := deps.NewDatabase(src.ADX.ClusterURI, src.ADX.Database, logger)
		if err != nil {
			return nil, nil, err
		}
		cmds, err := db.ReverseEngineer(ctx)
		if err != nil {
			return nil, nil, err
		}
		return cmds, db, nil
	}

	var scripts []string
	for _, s := range src.Scripts {
		if s.FilePath != "" {
			data, err := deps.Files.ReadFile(s.FilePath)
			if err != nil {
				return nil, nil, err
			}
			scripts = append(scripts, string(data))
			continue
		}
		contents, err := deps.Files.ReadFolder(s.FolderPath)
		if err != nil {
			return nil, nil, err
		}
		scripts = append(scripts, contents...)
	}
	cmds, err := command.ParseScript(strings.Join(scripts, "\n\n"))
	if err != nil {
		return nil, nil, err
	}
	return cmds, nil, nil
}

// scriptingContext qualifies database-scoped commands with the current
// database's name when the current side is a live database.
func scriptingContext(current *params.Source) *command.ScriptingContext {
	if current.ADX == nil {
		return nil
	}
	return &command.ScriptingContext{CurrentDatabaseName: command.NewEntityName(current.ADX.Database)}
}

func dropCommands(cmds []command.Command) []string {
	var out []string
	for _, c := range cmds {
		switch v := c.(type) {
		case *command.DropTable:
			out = append(out, ".drop table "+v.Table.Name())
		case *command.DropFunction:
			out = append(out, ".drop function "+v.Function.Name())
		}
	}
	return out
}
