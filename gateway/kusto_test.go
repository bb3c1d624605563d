package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/berthertogen/delta-kusto/command"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKustoValidatesURI(t *testing.T) {
	t.Parallel()

	_, err := NewKusto("not-a-uri", "db", nil, nil, zerolog.Nop())
	assert.Error(t, err)

	_, err = NewKusto("https://mycluster.westus.kusto.windows.net", "db", nil, nil, zerolog.Nop())
	assert.NoError(t, err)
}

// mgmtServer answers the two management commands the gateway issues.
func mgmtServer(t *testing.T, execute func(csl string) interface{}) (*httptest.Server, *Kusto) {
	t.Helper()
	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/rest/mgmt", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("x-ms-client-request-id"))

		var msg struct {
			DB  string `json:"db"`
			CSL string `json:"csl"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
		assert.Equal(t, "mydb", msg.DB)

		w.Header().Set("Content-Type", "application/json")
		assert.NoError(t, json.NewEncoder(w).Encode(execute(msg.CSL)))
	}))
	t.Cleanup(server.Close)

	gw, err := NewKusto(server.URL, "mydb", nil, server.Client(), zerolog.Nop())
	require.NoError(t, err)
	return server, gw
}

func table(name string, columns []string, rows ...[]interface{}) map[string]interface{} {
	cols := make([]map[string]string, 0, len(columns))
	for _, c := range columns {
		cols = append(cols, map[string]string{"ColumnName": c, "DataType": "String"})
	}
	return map[string]interface{}{"TableName": name, "Columns": cols, "Rows": rows}
}

func TestReverseEngineer(t *testing.T) {
	t.Parallel()

	_, gw := mgmtServer(t, func(csl string) interface{} {
		switch {
		case strings.HasPrefix(csl, ".show database schema"):
			return map[string]interface{}{"Tables": []interface{}{
				table("Table_0", []string{"DatabaseSchemaScript"},
					[]interface{}{".create table T (a:int)"},
					[]interface{}{".alter table T policy caching hot = 7d"},
				),
			}}
		case strings.HasPrefix(csl, ".show ingestion mappings"):
			return map[string]interface{}{"Tables": []interface{}{
				table("Table_0", []string{"Name", "Kind", "Mapping", "Table"},
					[]interface{}{"M", "Json", `[{"column":"a","path":"$.a"}]`, "T"},
				),
			}}
		}
		t.Fatalf("unexpected csl: %s", csl)
		return nil
	})

	cmds, err := gw.ReverseEngineer(context.Background())
	require.NoError(t, err)
	require.Len(t, cmds, 3)
	assert.IsType(t, &command.CreateTable{}, cmds[0])
	assert.IsType(t, &command.AlterCachingPolicy{}, cmds[1])

	mapping := cmds[2].(*command.CreateMapping)
	assert.Equal(t, "T", mapping.Table.Name())
	assert.Equal(t, command.JSONMapping, mapping.Kind)
	assert.Equal(t, "M", mapping.Mapping.Text())
}

func TestExecuteWrapsCommandsInScript(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var gotCSL string
	_, gw := mgmtServer(t, func(csl string) interface{} {
		mu.Lock()
		gotCSL = csl
		mu.Unlock()
		return map[string]interface{}{"Tables": []interface{}{
			table("Table_0", []string{"OperationId", "CommandText", "Result", "Reason"},
				[]interface{}{"op-1", ".drop table T", "Completed", ""},
			),
		}}
	})

	err := gw.Execute(context.Background(), []command.Command{
		&command.DropTable{Table: command.NewEntityName("T")},
	})
	require.NoError(t, err)
	mu.Lock()
	defer mu.Unlock()
	assert.True(t, strings.HasPrefix(gotCSL, ".execute database script with (ThrowOnErrors=true) <|"), "csl: %s", gotCSL)
	assert.Contains(t, gotCSL, ".drop table T")
}

func TestExecuteEmptyDeltaSkipsCall(t *testing.T) {
	t.Parallel()

	_, gw := mgmtServer(t, func(csl string) interface{} {
		t.Fatal("no call expected for an empty delta")
		return nil
	})
	require.NoError(t, gw.Execute(context.Background(), nil))
}

func TestExecuteSurfacesFailedCommand(t *testing.T) {
	t.Parallel()

	_, gw := mgmtServer(t, func(csl string) interface{} {
		return map[string]interface{}{"Tables": []interface{}{
			table("Table_0", []string{"OperationId", "CommandText", "Result", "Reason"},
				[]interface{}{"op-1", ".drop table T", "Completed", ""},
				[]interface{}{"op-2", ".drop table U", "Failed", "table does not exist"},
			),
		}}
	})

	err := gw.Execute(context.Background(), []command.Command{
		&command.DropTable{Table: command.NewEntityName("T")},
		&command.DropTable{Table: command.NewEntityName("U")},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op-2")
	assert.Contains(t, err.Error(), ".drop table U")
	assert.Contains(t, err.Error(), "mydb")
	assert.Contains(t, err.Error(), "table does not exist")
}

func TestMgmtErrorSurfacesServicePayload(t *testing.T) {
	t.Parallel()

	server := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"OneApiErrors":[{"error":{"code":"BadRequest","message":"bad script"}}]}`))
	}))
	defer server.Close()

	gw, err := NewKusto(server.URL, "mydb", nil, server.Client(), zerolog.Nop())
	require.NoError(t, err)

	_, err = gw.ReverseEngineer(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad script")
}
