package serverapp

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphql-sqlfilter/internal/config"
	"graphql-sqlfilter/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.Config{Level: "error", Format: "text", Output: &bytes.Buffer{}})
}

func TestNew_RequiresConfigAndLogger(t *testing.T) {
	_, err := New(nil, testLogger())
	assert.EqualError(t, err, "config is required")

	_, err = New(&config.Config{}, nil)
	assert.EqualError(t, err, "logger is required")

	_, err = New(&config.Config{}, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to resolve effective database configuration")

	app, err := New(&config.Config{Database: config.DatabaseConfig{ConnectionString: "root@tcp(db:3306)/shop"}}, testLogger())
	require.NoError(t, err)
	assert.Equal(t, "shop", app.effectiveDatabase)
	assert.Equal(t, "dsn", app.databaseSource)
	assert.True(t, app.dsnPresent)
}

func TestWaitForStop_SignalWins(t *testing.T) {
	app := &App{logger: testLogger()}
	stop := make(chan os.Signal, 1)
	stop <- syscall.SIGTERM

	reason, err := app.WaitForStop(stop, make(chan error, 1))
	require.NoError(t, err)
	assert.Equal(t, "signal", reason)
}

func TestWaitForStop_ServerErrorWins(t *testing.T) {
	app := &App{logger: testLogger()}
	serverErrors := make(chan error, 1)
	serverErrors <- errors.New("boom")

	reason, err := app.WaitForStop(make(chan os.Signal, 1), serverErrors)
	require.Error(t, err)
	assert.Equal(t, "server_error", reason)
	assert.Contains(t, err.Error(), "boom")
}

func TestWaitForStop_NilChannels(t *testing.T) {
	app := &App{logger: testLogger()}
	_, err := app.WaitForStop(nil, nil)
	assert.Error(t, err)

	serverErrors := make(chan error, 1)
	serverErrors <- nil
	reason, err := app.WaitForStop(nil, serverErrors)
	assert.Equal(t, "server_error", reason)
	assert.EqualError(t, err, "server stopped unexpectedly")
}

func TestShutdown_Idempotent(t *testing.T) {
	app := &App{logger: testLogger(), res: &resources{}}
	var calls int32
	app.res.cleanup.push("test", func(context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, app.Shutdown(ctx))
	require.NoError(t, app.Shutdown(ctx))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestShutdown_ReverseOrderAndJoinedErrors(t *testing.T) {
	app := &App{logger: testLogger(), res: &resources{}}
	var order []string
	app.res.cleanup.push("database", func(context.Context) error {
		order = append(order, "database")
		return errors.New("close failed")
	})
	app.res.cleanup.push("HTTP server", func(context.Context) error {
		order = append(order, "HTTP server")
		return nil
	})

	err := app.Shutdown(context.Background())
	require.Error(t, err)
	assert.Equal(t, "database: close failed", err.Error())
	assert.Equal(t, []string{"HTTP server", "database"}, order)
}

func TestStart_BeforeInit_Fails(t *testing.T) {
	app := &App{logger: testLogger()}
	_, err := app.Start()
	assert.Error(t, err)
}

func TestStartAndShutdown_HappyPath(t *testing.T) {
	models, _ := declaredConfig().DeclaredSchema()
	app := &App{
		cfg:    &config.Config{},
		logger: testLogger(),
		res: &resources{
			models:     models,
			serverAddr: "127.0.0.1:0",
			srv: &http.Server{
				Addr:    "127.0.0.1:0",
				Handler: http.NewServeMux(),
			},
		},
	}
	app.res.cleanup.push("HTTP server", func(ctx context.Context) error {
		return app.res.srv.Shutdown(ctx)
	})

	first, err := app.Start()
	require.NoError(t, err)
	second, err := app.Start()
	require.NoError(t, err)
	assert.Equal(t, first, second)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, app.Shutdown(ctx))
}

func TestInitFailure_DoesNotMarkInitialized(t *testing.T) {
	cfg := &config.Config{
		Database: config.DatabaseConfig{
			Host:     "127.0.0.1",
			Port:     1,
			User:     "root",
			Password: "invalid",
			Database: "test",
			Pool:     config.PoolConfig{MaxOpen: 1, MaxIdle: 1, MaxLifetime: time.Second},
		},
		Server:  config.ServerConfig{Port: 18089},
		Filters: config.FiltersConfig{Argument: "filters", DefaultLimit: 10, MaxLimit: 50},
	}

	app, err := New(cfg, testLogger())
	require.NoError(t, err)
	require.Error(t, app.Init(context.Background()), "unreachable database must fail Init")

	app.stateMu.Lock()
	defer app.stateMu.Unlock()
	assert.Nil(t, app.res)
}
