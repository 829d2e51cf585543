package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestMeterProviderAndMetrics(t *testing.T) {
	mp, err := InitMeterProvider(Config{ServiceName: "graphql-sqlfilter", ServiceVersion: "test", Environment: "test"})
	require.NoError(t, err)
	require.NotNil(t, mp.exporter)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics, err := InitMetrics(logger)
	require.NoError(t, err)
	assert.NotNil(t, metrics.translations)
	assert.NotNil(t, metrics.translationErrors)
	assert.NotNil(t, metrics.batchSize)
	assert.NotNil(t, metrics.requests)

	assert.NoError(t, mp.Shutdown(context.Background(), logger))
}

func TestOTLPSettings(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.pem")
	require.NoError(t, os.WriteFile(garbage, []byte("not-a-cert"), 0o600))

	cases := []struct {
		name    string
		cfg     OTLPConfig
		wantErr string
		check   func(t *testing.T, s exporterSettings)
	}{
		{
			name: "insecure plaintext",
			cfg:  OTLPConfig{Insecure: true, Compression: "GZIP", Timeout: 3 * time.Second, Headers: map[string]string{"x-team": "data"}},
			check: func(t *testing.T, s exporterSettings) {
				assert.Equal(t, otlpProtocolGRPC, s.protocol)
				assert.Nil(t, s.tlsConfig)
				assert.True(t, s.gzip)
				assert.Equal(t, 3*time.Second, s.timeout)
				assert.Equal(t, "data", s.headers["x-team"])
			},
		},
		{
			name: "system roots",
			cfg:  OTLPConfig{Compression: "none"},
			check: func(t *testing.T, s exporterSettings) {
				require.NotNil(t, s.tlsConfig)
				assert.Nil(t, s.tlsConfig.RootCAs)
				assert.False(t, s.gzip)
				assert.Nil(t, s.headers)
			},
		},
		{
			name: "http protocol",
			cfg:  OTLPConfig{Protocol: " HTTP/protobuf ", Insecure: true},
			check: func(t *testing.T, s exporterSettings) {
				assert.Equal(t, otlpProtocolHTTP, s.protocol)
			},
		},
		{name: "unknown protocol", cfg: OTLPConfig{Protocol: "thrift", Insecure: true}, wantErr: "unsupported OTLP protocol"},
		{name: "unknown compression", cfg: OTLPConfig{Insecure: true, Compression: "zstd"}, wantErr: "unsupported OTLP compression"},
		{name: "missing CA", cfg: OTLPConfig{TLSCertFile: filepath.Join(dir, "absent.pem")}, wantErr: "failed to read OTLP TLS CA file"},
		{name: "unparsable CA", cfg: OTLPConfig{TLSCertFile: garbage}, wantErr: "failed to parse OTLP TLS CA file"},
		{name: "client cert without key", cfg: OTLPConfig{TLSClientCertFile: garbage}, wantErr: "client cert and key must both be set"},
		{name: "bad client pair", cfg: OTLPConfig{TLSClientCertFile: garbage, TLSClientKeyFile: garbage}, wantErr: "failed to load OTLP TLS client certificate"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := tc.cfg.settings()
			if tc.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			tc.check(t, s)
		})
	}
}

func TestParseOTLPProtocol(t *testing.T) {
	cases := []struct {
		in      string
		want    otlpProtocol
		wantErr bool
	}{
		{in: "", want: otlpProtocolGRPC},
		{in: "grpc", want: otlpProtocolGRPC},
		{in: "GRPC", want: otlpProtocolGRPC},
		{in: "http", want: otlpProtocolHTTP},
		{in: "http/protobuf", want: otlpProtocolHTTP},
		{in: "http/json", wantErr: true},
	}
	for _, tc := range cases {
		got, err := parseOTLPProtocol(tc.in)
		if tc.wantErr {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestNewExporters(t *testing.T) {
	ctx := context.Background()
	for _, cfg := range []OTLPConfig{
		{Protocol: "grpc", Endpoint: "localhost:4317", Insecure: true, Compression: "gzip", Retry: true},
		{Protocol: "http/protobuf", Endpoint: "localhost:4318", Insecure: true, Compression: "gzip", Retry: true},
		{Protocol: "http/protobuf", Endpoint: "http://collector:4318/custom/v1/traces", Insecure: true, Timeout: time.Second},
	} {
		t.Run(cfg.Protocol+" "+cfg.Endpoint, func(t *testing.T) {
			traces, err := newTraceExporter(ctx, cfg)
			require.NoError(t, err)
			assert.NoError(t, traces.Shutdown(ctx))

			logs, err := newLogExporter(ctx, cfg)
			require.NoError(t, err)
			assert.NoError(t, logs.Shutdown(ctx))
		})
	}

	_, err := newTraceExporter(ctx, OTLPConfig{Protocol: "thrift"})
	assert.ErrorContains(t, err, "unsupported OTLP protocol")
	_, err = newLogExporter(ctx, OTLPConfig{Protocol: "thrift"})
	assert.ErrorContains(t, err, "unsupported OTLP protocol")
}

func TestTraceSamplerForRatio(t *testing.T) {
	parent := func(sampled bool) context.Context {
		cfg := trace.SpanContextConfig{TraceID: trace.TraceID{9}, SpanID: trace.SpanID{9}, Remote: true}
		if sampled {
			cfg.TraceFlags = trace.FlagsSampled
		}
		return trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(cfg))
	}

	cases := []struct {
		name  string
		ratio float64
		ctx   context.Context
		want  sdktrace.SamplingDecision
	}{
		{"zero drops", 0, context.Background(), sdktrace.Drop},
		{"negative drops", -1, context.Background(), sdktrace.Drop},
		{"one samples", 1, context.Background(), sdktrace.RecordAndSample},
		{"sampled parent wins", 0.5, parent(true), sdktrace.RecordAndSample},
		{"unsampled parent wins", 0.5, parent(false), sdktrace.Drop},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := traceSamplerForRatio(tc.ratio).ShouldSample(sdktrace.SamplingParameters{
				ParentContext: tc.ctx,
				TraceID:       trace.TraceID{1},
				Name:          "graphql.execute",
			})
			assert.Equal(t, tc.want, got.Decision)
		})
	}
}
