package observability

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type alertRule struct {
	Alert       string            `yaml:"alert"`
	Expr        string            `yaml:"expr"`
	For         string            `yaml:"for"`
	Labels      map[string]string `yaml:"labels"`
	Annotations map[string]string `yaml:"annotations"`
}

type alertFile struct {
	Groups []struct {
		Name  string      `yaml:"name"`
		Rules []alertRule `yaml:"rules"`
	} `yaml:"groups"`
}

var (
	metricRef   = regexp.MustCompile(`kanha_[a-z_]+`)
	selectorRef = regexp.MustCompile(`(kanha_[a-z_]+)\{([^}]*)\}`)
	labelRef    = regexp.MustCompile(`(\w+)\s*=~?`)
)

func loadRules(t *testing.T) []alertRule {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "..", "deploy", "prometheus", "alerts", "kanha.yml"))
	require.NoError(t, err)
	var file alertFile
	require.NoError(t, yaml.Unmarshal(data, &file))
	for _, g := range file.Groups {
		if g.Name == "kanha" {
			return g.Rules
		}
	}
	t.Fatal("kanha alert group missing")
	return nil
}

// exportedLabels returns every metric family the API and workers export with
// the label names seen on its series.
func exportedLabels(t *testing.T) map[string]map[string]bool {
	t.Helper()
	m := NewMetrics()
	m.requestsTotal.WithLabelValues("/api/v1/invoices", "500").Inc()
	m.requestDuration.WithLabelValues("/api/v1/invoices").Observe(0.1)
	m.InvoiceCreated(1)
	m.InvoiceRejected("conflict")
	_ = m.Jobs().Track("stock:low-scan").End(errors.New("boom"))
	m.Jobs().AddStockAlerts("stock:low-scan", 1)

	families, err := m.registry.Gather()
	require.NoError(t, err)
	out := make(map[string]map[string]bool, len(families))
	for _, f := range families {
		labels := map[string]bool{}
		for _, metric := range f.GetMetric() {
			for _, l := range metric.GetLabel() {
				labels[l.GetName()] = true
			}
		}
		out[f.GetName()] = labels
	}
	return out
}

func TestAlertRulesAreDocumented(t *testing.T) {
	expected := map[string]struct {
		severity string
		runbook  string
	}{
		"HighErrorRate":         {severity: "critical", runbook: "docs/runbook-ops.md#high-error-rate"},
		"InvoiceRejectionSpike": {severity: "warning", runbook: "docs/runbook-ops.md#invoice-rejections"},
		"StockJobFailing":       {severity: "warning", runbook: "docs/runbook-ops.md#stock-jobs"},
	}

	rules := loadRules(t)
	require.Len(t, rules, len(expected))
	for _, rule := range rules {
		want, ok := expected[rule.Alert]
		require.True(t, ok, "unexpected rule %q", rule.Alert)
		assert.Equal(t, want.severity, rule.Labels["severity"], rule.Alert)
		assert.Equal(t, want.runbook, rule.Annotations["runbook"], rule.Alert)
		assert.NotEmpty(t, rule.Annotations["summary"], rule.Alert)
		assert.NotEmpty(t, rule.Annotations["description"], rule.Alert)
		assert.NotEmpty(t, rule.For, rule.Alert)
	}
}

func TestAlertRulesReferenceExportedMetrics(t *testing.T) {
	exported := exportedLabels(t)

	for _, rule := range loadRules(t) {
		names := metricRef.FindAllString(rule.Expr, -1)
		require.NotEmpty(t, names, "rule %s uses no kanha metric", rule.Alert)
		for _, name := range names {
			assert.Contains(t, exported, name, "rule %s", rule.Alert)
		}
		for _, sel := range selectorRef.FindAllStringSubmatch(rule.Expr, -1) {
			for _, label := range labelRef.FindAllStringSubmatch(sel[2], -1) {
				assert.True(t, exported[sel[1]][label[1]], "rule %s filters %s on unknown label %s", rule.Alert, sel[1], label[1])
			}
		}
	}
}
