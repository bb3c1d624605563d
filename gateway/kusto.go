package gateway

// kusto.go holds the connection to the Kusto cluster and the two management
// operations the delta engine needs: reverse engineering a database schema
// and executing a delta script.

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/berthertogen/delta-kusto/command"
	"github.com/berthertogen/delta-kusto/errors"
	"github.com/cenkalti/backoff/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var validURL = regexp.MustCompile(`https://([a-zA-Z0-9_-]+\.){1,2}.*`)

// Kusto is a Database bound to one database of one cluster, talking to the
// v1 management REST endpoint.
type Kusto struct {
	clusterURI string
	database   string
	endMgmt    *url.URL
	cred       azcore.TokenCredential
	client     *http.Client
	logger     zerolog.Logger
}

// NewKusto returns a gateway for one database. cred may be nil when the
// endpoint needs no authentication (local emulator, test server); the logger
// is the caller's, usually already annotated with the job it serves.
func NewKusto(clusterURI, database string, cred azcore.TokenCredential, client *http.Client, logger zerolog.Logger) (*Kusto, error) {
	if !validURL.MatchString(clusterURI) {
		return nil, errors.New(errors.Cluster, errors.BadArguments,
			"cluster URI is not valid(%s), should be https://<cluster name>.*", clusterURI)
	}
	u, err := url.Parse(clusterURI)
	if err != nil {
		return nil, errors.New(errors.Cluster, errors.BadArguments,
			"could not parse the cluster URI(%s): %s", clusterURI, err)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Kusto{
		clusterURI: clusterURI,
		database:   database,
		endMgmt:    u.JoinPath("/v1/rest/mgmt"),
		cred:       cred,
		client:     client,
		logger:     logger,
	}, nil
}

// DatabaseName implements Database.
func (g *Kusto) DatabaseName() string {
	return g.database
}

type mgmtMsg struct {
	DB  string `json:"db"`
	CSL string `json:"csl"`
}

// dataSet is the v1 REST response: a list of tables of rows.
type dataSet struct {
	Tables []dataTable `json:"Tables"`
}

type dataTable struct {
	TableName string          `json:"TableName"`
	Columns   []dataColumn    `json:"Columns"`
	Rows      [][]interface{} `json:"Rows"`
}

type dataColumn struct {
	ColumnName string `json:"ColumnName"`
	DataType   string `json:"DataType"`
}

// columnIndex returns the index of a named column, or -1.
func (t *dataTable) columnIndex(name string) int {
	for i, col := range t.Columns {
		if col.ColumnName == name {
			return i
		}
	}
	return -1
}

// stringAt returns the row's value in the named column when it is a string.
func (t *dataTable) stringAt(row []interface{}, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	s, _ := row[col].(string)
	return s
}

// mgmt posts one management command and decodes the response. Transient
// failures (network, 429, 5xx) are retried with exponential backoff; other
// failures are permanent.
func (g *Kusto) mgmt(ctx context.Context, csl string) (*dataSet, error) {
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(mgmtMsg{DB: g.database, CSL: csl}); err != nil {
		return nil, errors.Wrap(errors.Cluster, errors.ServiceFault, err, "could not encode the mgmt request")
	}
	body := buf.Bytes()

	var bearer string
	if g.cred != nil {
		token, err := g.cred.GetToken(ctx, policy.TokenRequestOptions{
			Scopes: []string{g.clusterURI + "/.default"},
		})
		if err != nil {
			return nil, errors.New(errors.Cluster, errors.BadArguments,
				"could not acquire a token for %s: %s", g.clusterURI, err)
		}
		bearer = "Bearer " + token.Token
	}

	requestID := "DK.mgmt;" + uuid.NewString()
	g.logger.Debug().
		Str("clientRequestId", requestID).
		Str("database", g.database).
		Str("csl", firstLine(csl)).
		Msg("mgmt call")

	var ds *dataSet
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endMgmt.String(), bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(errors.Wrap(errors.Cluster, errors.ServiceFault, err, "could not build the mgmt request"))
		}
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("x-ms-client-request-id", requestID)
		if bearer != "" {
			req.Header.Set("Authorization", bearer)
		}

		resp, err := g.client.Do(req)
		if err != nil {
			return errors.New(errors.Cluster, errors.HTTPFailed, "mgmt call failed: %s", err)
		}
		defer resp.Body.Close()

		payload, err := io.ReadAll(resp.Body)
		if err != nil {
			return errors.New(errors.Cluster, errors.HTTPFailed, "could not read mgmt response: %s", err)
		}

		if resp.StatusCode != http.StatusOK {
			err := g.responseError(resp.StatusCode, payload)
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return err
			}
			return backoff.Permanent(err)
		}

		decoded := &dataSet{}
		dec := json.NewDecoder(bytes.NewReader(payload))
		dec.UseNumber()
		if err := dec.Decode(decoded); err != nil {
			return backoff.Permanent(errors.New(errors.Cluster, errors.ServiceFault,
				"could not decode mgmt response: %s", err))
		}
		ds = decoded
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4), ctx)
	if err := backoff.Retry(operation, bo); err != nil {
		return nil, err
	}
	return ds, nil
}

// responseError turns a non-200 mgmt response into a domain error, surfacing
// the service's OneApiError payload when it is recognizable.
func (g *Kusto) responseError(status int, payload []byte) error {
	if oneErr := errors.FromOneAPI(payload, errors.Cluster); oneErr != nil {
		return oneErr
	}
	return errors.New(errors.Cluster, errors.HTTPFailed,
		"mgmt call on %s/%s returned status %d: %s", g.clusterURI, g.database, status, firstLine(string(payload)))
}

// ReverseEngineer implements Database: the schema script plus the ingestion
// mappings the script does not carry.
func (g *Kusto) ReverseEngineer(ctx context.Context) ([]command.Command, error) {
	ds, err := g.mgmt(ctx, ".show database schema as csl script")
	if err != nil {
		return nil, err
	}
	if len(ds.Tables) == 0 {
		return nil, errors.New(errors.Cluster, errors.ServiceFault,
			"schema script response from %s/%s had no tables", g.clusterURI, g.database)
	}
	script := &strings.Builder{}
	first := &ds.Tables[0]
	col := first.columnIndex("DatabaseSchemaScript")
	if col < 0 {
		col = 0
	}
	for _, row := range first.Rows {
		script.WriteString(first.stringAt(row, col))
		script.WriteString("\n\n")
	}
	cmds, err := command.ParseScript(script.String())
	if err != nil {
		return nil, err
	}

	mappings, err := g.showMappings(ctx)
	if err != nil {
		return nil, err
	}

	// The schema script may or may not list mappings, depending on service
	// version. Only add the ones it did not.
	seen := map[string]bool{}
	for _, c := range cmds {
		if m, ok := c.(*command.CreateMapping); ok {
			seen[m.SortIndex()] = true
		}
	}
	for _, m := range mappings {
		if !seen[m.SortIndex()] {
			cmds = append(cmds, m)
		}
	}
	return cmds, nil
}

// showMappings runs .show ingestion mappings and synthesizes create-mapping
// commands from the result rows.
func (g *Kusto) showMappings(ctx context.Context) ([]*command.CreateMapping, error) {
	ds, err := g.mgmt(ctx, ".show ingestion mappings")
	if err != nil {
		return nil, err
	}
	if len(ds.Tables) == 0 {
		return nil, nil
	}
	t := &ds.Tables[0]
	nameCol := t.columnIndex("Name")
	kindCol := t.columnIndex("Kind")
	mappingCol := t.columnIndex("Mapping")
	tableCol := t.columnIndex("Table")

	var out []*command.CreateMapping
	for _, row := range t.Rows {
		table := t.stringAt(row, tableCol)
		if table == "" {
			// Database-level mapping; the delta engine tracks table mappings.
			continue
		}
		out = append(out, &command.CreateMapping{
			Table:   command.NewEntityName(table),
			Kind:    command.MappingKind(strings.ToLower(t.stringAt(row, kindCol))),
			Mapping: command.NewQuotedText(t.stringAt(row, nameCol)),
			AsJSON:  command.NewQuotedText(t.stringAt(row, mappingCol)),
		})
	}
	return out, nil
}

// Execute implements Database: the whole delta runs as one script so a
// failing command aborts the rest.
func (g *Kusto) Execute(ctx context.Context, cmds []command.Command) error {
	if len(cmds) == 0 {
		return nil
	}
	scriptingCtx := &command.ScriptingContext{CurrentDatabaseName: command.NewEntityName(g.database)}
	script := ".execute database script with (ThrowOnErrors=true) <|\n" + command.Text(cmds, scriptingCtx)

	ds, err := g.mgmt(ctx, script)
	if err != nil {
		return err
	}
	if len(ds.Tables) == 0 {
		return errors.New(errors.Cluster, errors.ServiceFault,
			"execute script response from %s/%s had no tables", g.clusterURI, g.database)
	}
	t := &ds.Tables[0]
	opCol := t.columnIndex("OperationId")
	textCol := t.columnIndex("CommandText")
	resultCol := t.columnIndex("Result")
	reasonCol := t.columnIndex("Reason")
	for _, row := range t.Rows {
		result := t.stringAt(row, resultCol)
		if result == "Completed" || result == "" {
			continue
		}
		return errors.New(errors.Cluster, errors.ServiceFault,
			"command failed on %s/%s (operation %s): %s: %s",
			g.clusterURI, g.database,
			t.stringAt(row, opCol), t.stringAt(row, textCol),
			fmt.Sprintf("%s - %s", result, t.stringAt(row, reasonCol)))
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
