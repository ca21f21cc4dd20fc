package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRegistry_RenderSortedWithLabels(t *testing.T) {
	r := NewRegistry()
	ops := NewCounterVec(Opts{Name: "b_ops_total", Help: "ops"}, []string{"op"})
	g := NewGauge(Opts{Name: "a_gauge", Help: "gauge"})
	r.MustRegister(ops, g)

	ops.WithLabelValues(`we"ird`).Inc()
	ops.WithLabelValues("create").Add(2)
	ops.WithLabelValues("create", "extra").Inc()
	g.Inc()
	g.Inc()
	g.Dec()

	out := r.Render()
	if strings.Index(out, "a_gauge") > strings.Index(out, "b_ops_total") {
		t.Fatalf("collectors not sorted:\n%s", out)
	}
	for _, want := range []string{
		"a_gauge 1\n",
		`b_ops_total{op="create"} 2`,
		`b_ops_total{op="we\"ird"} 1`,
		"# TYPE b_ops_total counter",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
}

func TestRegistry_DuplicatePanics(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(NewGauge(Opts{Name: "dup"}))
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on duplicate registration")
		}
	}()
	r.MustRegister(NewGauge(Opts{Name: "dup"}))
}

func TestObserveStore(t *testing.T) {
	before := StoreOperations.Value("delete", "error")
	ObserveStore("delete", errors.New("x"))
	if got := StoreOperations.Value("delete", "error"); got != before+1 {
		t.Fatalf("expected counter to grow by one, got %v -> %v", before, got)
	}
}

func TestDefaultHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	DefaultHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	if !strings.Contains(body, "calendar_active_sessions") || !strings.Contains(body, "process_uptime_seconds") {
		t.Fatalf("default registry incomplete:\n%s", body)
	}
}
