package params

import (
	"strconv"
	"strings"

	"github.com/berthertogen/delta-kusto/errors"
)

// Path-expression overrides: `jobs.myJob.priority=5` on the command line
// beats the parameter file. Instead of walking the struct graph by
// reflection, the settable leaves are declared in an explicit descriptor
// table, one entry per configurable field with its setter; an override whose
// path matches no entry is an error naming the path.

// overrideEntry describes one settable leaf. Pattern segments are matched
// literally except "*", which captures the job name.
type overrideEntry struct {
	pattern string
	set     func(m *Main, jobName, value string) error
}

var overrideSchema = []overrideEntry{
	{"sendErrorOptIn", func(m *Main, _, v string) error {
		return setBool(&m.SendErrorOptIn, "sendErrorOptIn", v)
	}},
	{"failIfDrops", func(m *Main, _, v string) error {
		return setBool(&m.FailIfDrops, "failIfDrops", v)
	}},
	{"tokenProvider.clientSecret.tenantId", func(m *Main, _, v string) error {
		m.clientSecret().TenantID = v
		return nil
	}},
	{"tokenProvider.clientSecret.clientId", func(m *Main, _, v string) error {
		m.clientSecret().ClientID = v
		return nil
	}},
	{"tokenProvider.clientSecret.secret", func(m *Main, _, v string) error {
		m.clientSecret().Secret = v
		return nil
	}},
	{"jobs.*.priority", func(m *Main, job, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.New(errors.Config, errors.BadArguments,
				"override jobs.%s.priority needs an integer, got %q", job, v)
		}
		m.job(job).Priority = n
		return nil
	}},
	{"jobs.*.current.adx.clusterUri", func(m *Main, job, v string) error {
		m.job(job).currentADX().ClusterURI = v
		return nil
	}},
	{"jobs.*.current.adx.database", func(m *Main, job, v string) error {
		m.job(job).currentADX().Database = v
		return nil
	}},
	{"jobs.*.target.adx.clusterUri", func(m *Main, job, v string) error {
		m.job(job).targetADX().ClusterURI = v
		return nil
	}},
	{"jobs.*.target.adx.database", func(m *Main, job, v string) error {
		m.job(job).targetADX().Database = v
		return nil
	}},
	{"jobs.*.action.filePath", func(m *Main, job, v string) error {
		m.job(job).action().FilePath = v
		return nil
	}},
	{"jobs.*.action.folderPath", func(m *Main, job, v string) error {
		m.job(job).action().FolderPath = v
		return nil
	}},
	{"jobs.*.action.pushToCurrent", func(m *Main, job, v string) error {
		return setBool(&m.job(job).action().PushToCurrent, "jobs."+job+".action.pushToCurrent", v)
	}},
}

// ApplyOverrides applies `path=value` expressions in order, then re-runs the
// semantic validation.
func (m *Main) ApplyOverrides(overrides []string) error {
	for _, override := range overrides {
		path, value, found := strings.Cut(override, "=")
		if !found {
			return errors.New(errors.Config, errors.BadArguments,
				"override %q is not of the form path=value", override)
		}
		if err := m.applyOverride(path, value); err != nil {
			return err
		}
	}
	if len(overrides) > 0 {
		return m.Validate()
	}
	return nil
}

func (m *Main) applyOverride(path, value string) error {
	segments := strings.Split(path, ".")
	for _, entry := range overrideSchema {
		jobName, ok := matchPattern(entry.pattern, segments)
		if !ok {
			continue
		}
		return entry.set(m, jobName, value)
	}
	return errors.New(errors.Config, errors.BadArguments, "unknown override path %q", path)
}

func matchPattern(pattern string, segments []string) (jobName string, ok bool) {
	want := strings.Split(pattern, ".")
	if len(want) != len(segments) {
		return "", false
	}
	for i, w := range want {
		if w == "*" {
			jobName = segments[i]
			continue
		}
		if w != segments[i] {
			return "", false
		}
	}
	return jobName, true
}

func setBool(dst *bool, path, value string) error {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return errors.New(errors.Config, errors.BadArguments,
			"override %s needs a boolean, got %q", path, value)
	}
	*dst = b
	return nil
}

// The accessor chain materializes intermediate nodes so an override can fill
// in a branch the file left out.

func (m *Main) clientSecret() *ClientSecret {
	if m.TokenProvider == nil {
		m.TokenProvider = &TokenProvider{}
	}
	if m.TokenProvider.ClientSecret == nil {
		m.TokenProvider.ClientSecret = &ClientSecret{}
	}
	return m.TokenProvider.ClientSecret
}

func (m *Main) job(name string) *Job {
	if m.Jobs == nil {
		m.Jobs = map[string]*Job{}
	}
	if m.Jobs[name] == nil {
		m.Jobs[name] = &Job{}
	}
	return m.Jobs[name]
}

func (j *Job) currentADX() *ADX {
	if j.Current == nil {
		j.Current = &Source{}
	}
	if j.Current.ADX == nil {
		j.Current.ADX = &ADX{}
	}
	return j.Current.ADX
}

func (j *Job) targetADX() *ADX {
	if j.Target == nil {
		j.Target = &Source{}
	}
	if j.Target.ADX == nil {
		j.Target.ADX = &ADX{}
	}
	return j.Target.ADX
}

func (j *Job) action() *Action {
	if j.Action == nil {
		j.Action = &Action{}
	}
	return j.Action
}
