package serverapp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"graphql-sqlfilter/internal/config"
	"graphql-sqlfilter/internal/observability"
)

const itemColumns = "`item`.`id`, `item`.`name`, `item`.`price`"

func declaredConfig() *config.Config {
	return &config.Config{
		Filters: config.FiltersConfig{
			Argument:     "where",
			DefaultLimit: 10,
			MaxLimit:     50,
			Sets: []config.FilterSetConfig{{
				Model:       "Item",
				Description: "Item filters.",
				Fields: []config.FieldConfig{
					{Name: "name", Ops: []string{"eq", "like"}},
					{Name: "price", Ops: []string{"gt"}},
				},
			}},
		},
		Models: []config.ModelConfig{{
			Name:  "Item",
			Table: "item",
			Columns: []config.ColumnConfig{
				{Name: "id", Type: "int", PrimaryKey: true},
				{Name: "name", Type: "varchar(64)"},
				{Name: "price", Type: "int"},
			},
		}},
	}
}

func TestLoadModels_Declared(t *testing.T) {
	models, err := loadModels(context.Background(), declaredConfig(), testLogger(), nil, "shop")
	require.NoError(t, err)
	_, ok := models.Model("Item")
	assert.True(t, ok)
}

func TestBuildFilterSets(t *testing.T) {
	cfg := declaredConfig()
	models, err := cfg.DeclaredSchema()
	require.NoError(t, err)

	factory, schema, err := buildSchema(cfg, testLogger(), nil, models, nil)
	require.NoError(t, err)
	assert.Equal(t, "where", factory.FilterArg())

	input, ok := schema.TypeMap()["ItemFilter"]
	require.True(t, ok)
	assert.Equal(t, "Item filters.", input.Description())

	cfg.Filters.Sets[0].Model = "Order"
	_, _, err = buildSchema(cfg, testLogger(), nil, models, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "filters.sets[Order]")

	cfg = declaredConfig()
	cfg.Filters.Sets[0].Fields = []config.FieldConfig{{Name: "weight", Ops: []string{"eq"}}}
	_, _, err = buildSchema(cfg, testLogger(), nil, models, nil)
	assert.Error(t, err)
}

func TestGraphQLHandler_FilteredConnection(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)
	t.Cleanup(func() { otel.SetMeterProvider(prev) })
	metrics, err := observability.InitMetrics(nil)
	require.NoError(t, err)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := declaredConfig()
	models, err := cfg.DeclaredSchema()
	require.NoError(t, err)
	_, schema, err := buildSchema(cfg, testLogger(), db, models, metrics)
	require.NoError(t, err)
	handler := buildGraphQLHandler(cfg, testLogger(), &schema, metrics)

	filtered := "SELECT " + itemColumns + " FROM `item` WHERE `item`.`name` LIKE ? AND `item`.`price` > ?"
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM (" + filtered + ") AS __count")).
		WithArgs("%lamp%", 10).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(1)))
	mock.ExpectQuery(regexp.QuoteMeta(filtered + " ORDER BY `item`.`id` ASC LIMIT 10 OFFSET 0")).
		WithArgs("%lamp%", 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "price"}).AddRow(int64(7), "desk lamp", int64(25)))

	body := `{"query":"query Lamps { allItems(where: {name_like: \"%lamp%\", price_gt: 10}) { totalCount edges { node { id name } } } }","operationName":"Lamps"}`
	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var result struct {
		Data   map[string]any `json:"data"`
		Errors []any          `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Empty(t, result.Errors)
	conn := result.Data["allItems"].(map[string]any)
	assert.Equal(t, float64(1), conn["totalCount"])
	edges := conn["edges"].([]any)
	require.Len(t, edges, 1)
	assert.Equal(t, map[string]any{"id": float64(7), "name": "desk lamp"}, edges[0].(map[string]any)["node"])
	require.NoError(t, mock.ExpectationsWereMet())
}
