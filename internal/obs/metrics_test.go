package obs

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                               "/",
		"/metrics":                       "/metrics",
		"/v1/tools/revenue_heatmap":      "/v1/tools/:id",
		"/v1/tools/revenue_heatmap/x":    "/v1/tools/revenue_heatmap/x",
		"/v1/features/ai_modules":        "/v1/features/:id",
		"/v1/audit?action=LOGIN_SUCCESS": "/v1/audit",
		"/v1/tools/":                     "/v1/tools/",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

func TestSetLoggerRestores(t *testing.T) {
	var buf bytes.Buffer
	core := zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), zapcore.AddSync(&buf), zapcore.DebugLevel)
	restore := SetLogger(zap.New(core))

	Logger().Info("hello", zap.String("k", "v"))
	restore()

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if entry["msg"] != "hello" || entry["k"] != "v" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if Logger() == nil {
		t.Fatal("expected a logger after restore")
	}
}

func TestNewLoggerUnknownLevelFallsBack(t *testing.T) {
	l, err := NewLogger("chatty")
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if !l.Core().Enabled(zapcore.InfoLevel) || l.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("expected info level")
	}
}

func TestInitBuildInfoLabelsFacility(t *testing.T) {
	InitBuildInfo("3.0.0", "fac-1")
	InitBuildInfo("3.0.0", "fac-1")

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "build_info" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, l := range m.GetLabel() {
				labels[l.GetName()] = l.GetValue()
			}
			if labels["version"] == "3.0.0" && labels["facility"] == "fac-1" && m.GetGauge().GetValue() == 1 {
				return
			}
		}
	}
	t.Fatal("build_info{version=\"3.0.0\",facility=\"fac-1\"} not exported")
}
