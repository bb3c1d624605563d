// Package params loads the delta-kusto parameter file: the jobs to run,
// their schema sources and the action to take with each computed delta.
package params

import (
	"bytes"
	_ "embed"
	"sort"
	"strings"

	"github.com/berthertogen/delta-kusto/errors"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON string

// ClientSecret is a service principal login.
type ClientSecret struct {
	TenantID string `yaml:"tenantId"`
	ClientID string `yaml:"clientId"`
	Secret   string `yaml:"secret"`
}

// AzCli marks login through the Azure CLI's cached credentials.
type AzCli struct{}

// TokenProvider selects how cluster tokens are acquired. With none set, the
// default credential chain is used. Loading does not reject a file that sets
// both members; the CLI then uses the client secret.
type TokenProvider struct {
	ClientSecret *ClientSecret `yaml:"clientSecret,omitempty"`
	AzCli        *AzCli        `yaml:"azCli,omitempty"`
}

// ADX points at one database of one cluster.
type ADX struct {
	ClusterURI string `yaml:"clusterUri"`
	Database   string `yaml:"database"`
}

// ScriptSource is one script file or folder.
type ScriptSource struct {
	FilePath   string `yaml:"filePath,omitempty"`
	FolderPath string `yaml:"folderPath,omitempty"`
}

// Source is where a schema comes from: a live database or script files.
type Source struct {
	ADX     *ADX           `yaml:"adx,omitempty"`
	Scripts []ScriptSource `yaml:"scripts,omitempty"`
}

// Action says what to do with a computed delta.
type Action struct {
	FilePath      string `yaml:"filePath,omitempty"`
	FolderPath    string `yaml:"folderPath,omitempty"`
	PushToCurrent bool   `yaml:"pushToCurrent,omitempty"`
}

// Job computes one delta from current to target.
type Job struct {
	Priority int     `yaml:"priority"`
	Current  *Source `yaml:"current"`
	Target   *Source `yaml:"target"`
	Action   *Action `yaml:"action"`
}

// Main is the root of the parameter file.
type Main struct {
	SendErrorOptIn bool            `yaml:"sendErrorOptIn"`
	FailIfDrops    bool            `yaml:"failIfDrops"`
	TokenProvider  *TokenProvider  `yaml:"tokenProvider,omitempty"`
	Jobs           map[string]*Job `yaml:"jobs"`
}

// Load parses, schema-validates and semantically checks a parameter file.
func Load(data []byte) (*Main, error) {
	if err := validateSchema(data); err != nil {
		return nil, err
	}

	main := &Main{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(main); err != nil {
		return nil, errors.New(errors.Config, errors.BadArguments, "cannot parse parameter file: %s", err)
	}
	if err := main.Validate(); err != nil {
		return nil, err
	}
	return main, nil
}

// validateSchema checks the raw document against the embedded JSON schema,
// so misspelled keys fail with a path instead of being silently dropped.
func validateSchema(data []byte) error {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return errors.New(errors.Config, errors.BadArguments, "cannot parse parameter file: %s", err)
	}

	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(schemaJSON))
	if err != nil {
		return errors.New(errors.Config, errors.ServiceFault, "bad embedded schema: %s", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("params.schema.json", schemaDoc); err != nil {
		return errors.New(errors.Config, errors.ServiceFault, "bad embedded schema: %s", err)
	}
	sch, err := compiler.Compile("params.schema.json")
	if err != nil {
		return errors.New(errors.Config, errors.ServiceFault, "bad embedded schema: %s", err)
	}
	if err := sch.Validate(doc); err != nil {
		return errors.New(errors.Config, errors.BadArguments, "parameter file is invalid: %s", err)
	}
	return nil
}

// Validate enforces the consistency rules the schema cannot express.
func (m *Main) Validate() error {
	if len(m.Jobs) == 0 {
		return errors.New(errors.Config, errors.BadArguments, "parameter file has no jobs")
	}
	for name, job := range m.Jobs {
		if job == nil {
			return errors.New(errors.Config, errors.BadArguments, "job %q is empty", name)
		}
		if err := validateSource(name, "current", job.Current); err != nil {
			return err
		}
		if err := validateSource(name, "target", job.Target); err != nil {
			return err
		}
		if job.Action == nil {
			return errors.New(errors.Config, errors.BadArguments, "job %q has no action", name)
		}
		set := 0
		if job.Action.FilePath != "" {
			set++
		}
		if job.Action.FolderPath != "" {
			set++
		}
		if job.Action.PushToCurrent {
			set++
		}
		if set != 1 {
			return errors.New(errors.Config, errors.BadArguments,
				"job %q must have exactly one of action.filePath, action.folderPath, action.pushToCurrent", name)
		}
		if job.Action.PushToCurrent && (job.Current == nil || job.Current.ADX == nil) {
			return errors.New(errors.Config, errors.BadArguments,
				"job %q pushes to current but current is not a database", name)
		}
	}
	return nil
}

func validateSource(job, role string, s *Source) error {
	if s == nil {
		return errors.New(errors.Config, errors.BadArguments, "job %q has no %s source", job, role)
	}
	if (s.ADX == nil) == (len(s.Scripts) == 0) {
		return errors.New(errors.Config, errors.BadArguments,
			"job %q %s source must have exactly one of adx, scripts", job, role)
	}
	if s.ADX != nil && (s.ADX.ClusterURI == "" || s.ADX.Database == "") {
		return errors.New(errors.Config, errors.BadArguments,
			"job %q %s source needs both clusterUri and database", job, role)
	}
	for i, script := range s.Scripts {
		if (script.FilePath == "") == (script.FolderPath == "") {
			return errors.New(errors.Config, errors.BadArguments,
				"job %q %s source script #%d must have exactly one of filePath, folderPath", job, role, i+1)
		}
	}
	return nil
}

// OrderedJobNames returns job names by ascending priority, name as
// tiebreaker.
func (m *Main) OrderedJobNames() []string {
	names := make([]string, 0, len(m.Jobs))
	for name := range m.Jobs {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		pi, pj := m.Jobs[names[i]].Priority, m.Jobs[names[j]].Priority
		if pi != pj {
			return pi < pj
		}
		return names[i] < names[j]
	})
	return names
}
