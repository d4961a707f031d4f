package mvnet

import (
	"context"
	"math"
	"testing"

	"gridcore/internal/core"
	"gridcore/internal/infra/persistence/memory"
	"gridcore/internal/translate"
	"gridcore/internal/upgrade"
	"gridcore/internal/version"
)

func newContext(t *testing.T) *translate.Context {
	t.Helper()
	return newService(t).Translations()
}

func newService(t *testing.T) *core.Service {
	t.Helper()
	svc, err := core.NewService(memory.NewStore())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if _, err := svc.InstallPlugin(New()); err != nil {
		t.Fatalf("install mvnet: %v", err)
	}
	return svc
}

func TestRegisterContributions(t *testing.T) {
	registry := core.NewPluginRegistry()
	if err := New().Register(registry); err != nil {
		t.Fatalf("register: %v", err)
	}
	if got := len(registry.Rules()); got != 4 {
		t.Fatalf("expected 4 rules, got %d", got)
	}
	if got := len(registry.Steps()); got != 2 {
		t.Fatalf("expected 2 steps, got %d", got)
	}
	schemas := registry.Schemas()
	if _, ok := schemas["node"]; !ok {
		t.Fatalf("expected node schema")
	}
	if _, ok := schemas["branch"]; !ok {
		t.Fatalf("expected branch schema")
	}
}

func TestBusToNodeLatestDerivesVoltage(t *testing.T) {
	translations := newContext(t)
	bus := core.Record{Type: "bus", ID: "b7", Fields: map[string]any{
		"id":         "feeder-7",
		"base_kv":    20.0,
		"in_service": true,
	}}

	node, err := translations.Translate(bus, "node")
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if node.Type != "node" || node.ID != "b7" {
		t.Fatalf("unexpected record identity: %+v", node)
	}
	if got, _ := node.Field("name"); got != "feeder-7" {
		t.Fatalf("expected renamed id, got %v", got)
	}
	if got, _ := node.Field("voltage_v"); got != 20000.0 {
		t.Fatalf("expected derived voltage 20000, got %v", got)
	}
	if got, _ := node.Field("kind"); got != "node" {
		t.Fatalf("expected literal kind, got %v", got)
	}
}

func TestBusToNodeV2FilterRejectsOutOfService(t *testing.T) {
	translations := newContext(t)
	bus := core.Record{Type: "bus", Fields: map[string]any{
		"id":         "b1",
		"base_kv":    10.0,
		"in_service": false,
	}}

	if _, err := translations.Translate(bus, "node"); err == nil {
		t.Fatalf("expected v2 rule to reject de-energized bus")
	}

	// The pinned v1 rule carries no filter.
	node, err := translations.TranslateAt(bus, "node", "v1.0.0")
	if err != nil {
		t.Fatalf("translate at v1: %v", err)
	}
	if got, _ := node.Field("voltage_kv"); got != 10.0 {
		t.Fatalf("expected voltage_kv, got %v", got)
	}
	if _, ok := node.Field("voltage_v"); ok {
		t.Fatalf("v1 rule should not derive voltage_v")
	}
}

func TestLineToBranchDerivesImpedanceAndDefaultsStatus(t *testing.T) {
	translations := newContext(t)
	line := core.Record{Type: "line", Fields: map[string]any{
		"from_bus": "b1",
		"to_bus":   "b2",
		"r_ohm":    3.0,
		"x_ohm":    4.0,
	}}

	branch, err := translations.Translate(line, "branch")
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if got, _ := branch.Field("impedance_pu"); got != 5.0 {
		t.Fatalf("expected |z| = 5, got %v", got)
	}
	if got, _ := branch.Field("status"); got != "closed" {
		t.Fatalf("expected default status closed, got %v", got)
	}
	if got, _ := branch.Field("from_node"); got != "b1" {
		t.Fatalf("expected from_node b1, got %v", got)
	}
}

func TestDerivedFieldsFailOnMissingOrMalformedValues(t *testing.T) {
	translations := newContext(t)

	missing := core.Record{Type: "line", Fields: map[string]any{"from_bus": "b1", "to_bus": "b2"}}
	if _, err := translations.Translate(missing, "branch"); err == nil {
		t.Fatalf("expected missing impedance inputs to fail")
	}

	malformed := core.Record{Type: "bus", Fields: map[string]any{"id": "b1", "base_kv": "twenty"}}
	if _, err := translations.Translate(malformed, "node"); err == nil {
		t.Fatalf("expected non-numeric base_kv to fail")
	}
}

func TestNumericFieldCoercions(t *testing.T) {
	for _, tc := range []struct {
		name  string
		value any
		want  float64
	}{
		{"float64", 20.5, 20.5},
		{"float32", float32(2), 2},
		{"int", 20, 20},
		{"int64", int64(21), 21},
	} {
		record := core.Record{Type: "bus", Fields: map[string]any{"base_kv": tc.value}}
		got, err := numericField(record, "base_kv")
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestRelabelBucketsStep(t *testing.T) {
	snapshot := core.Snapshot{
		SchemaVersion: "v1.0.0",
		Components: map[string][]core.Record{
			"bus":  {{Type: "bus", ID: "b1", Fields: map[string]any{"id": "b1"}}},
			"line": {{Type: "line", ID: "l1", Fields: map[string]any{"from_bus": "b1"}}},
			"node": {{Type: "node", ID: "n9", Fields: map[string]any{"id": "n9"}}},
		},
	}

	out, err := relabelBuckets(snapshot)
	if err != nil {
		t.Fatalf("relabel: %v", err)
	}
	relabeled := out.(core.Snapshot)
	if _, ok := relabeled.Components["bus"]; ok {
		t.Fatalf("expected bus bucket removed")
	}
	if got := len(relabeled.Components["node"]); got != 2 {
		t.Fatalf("expected existing node records preserved, got %d", got)
	}
	if got := len(relabeled.Components["branch"]); got != 1 {
		t.Fatalf("expected 1 branch record, got %d", got)
	}
	if relabeled.Components["branch"][0].Type != "branch" {
		t.Fatalf("expected record type rewritten")
	}

	if _, err := relabelBuckets("not a snapshot"); err == nil {
		t.Fatalf("expected payload type error")
	}
}

func TestNormalizeServiceFlagStep(t *testing.T) {
	for _, tc := range []struct {
		name  string
		value any
		want  bool
	}{
		{"missing", nil, true},
		{"bool", false, false},
		{"yes string", "yes", true},
		{"other string", "off", false},
		{"numeric", 1, true},
	} {
		fields := map[string]any{"id": "b1"}
		if tc.value != nil {
			fields["in_service"] = tc.value
		}
		out, err := normalizeServiceFlag(core.Record{Type: "bus", Fields: fields}, nil)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		record := out.(core.Record)
		if got := record.Fields["in_service"]; got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}

	if _, err := normalizeServiceFlag(42, nil); err == nil {
		t.Fatalf("expected payload type error")
	}
}

func TestStepVersionRanges(t *testing.T) {
	steps, err := Steps()
	if err != nil {
		t.Fatalf("steps: %v", err)
	}
	byName := map[string]upgrade.Step{}
	for _, step := range steps {
		byName[step.Name()] = step
	}

	strategy := version.Default()
	relabel := byName["mvnet-relabel-buckets"]
	if dec := upgrade.ShallUpgrade(relabel, "v1.0.0", strategy); !dec.Value() {
		t.Fatalf("expected relabel applicable at v1.0.0")
	}
	if dec := upgrade.ShallUpgrade(relabel, "v2.0.0", strategy); dec.Value() {
		t.Fatalf("expected relabel skipped at v2.0.0")
	}

	normalize := byName["mvnet-normalize-service-flags"]
	if dec := upgrade.ShallUpgrade(normalize, "v2.0.0", strategy); !dec.Value() {
		t.Fatalf("expected normalize applicable at v2.0.0")
	}
}

func TestUpgradeStoreEndToEnd(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	err := svc.Store().RunInTransaction(ctx, func(tx core.ModelTx) error {
		for _, record := range []core.Record{
			{Type: "bus", Fields: map[string]any{"id": "b1", "base_kv": 20.0, "in_service": "yes"}},
			{Type: "line", Fields: map[string]any{"from_bus": "b1", "to_bus": "b2", "r_ohm": 1.0, "x_ohm": 2.0}},
		} {
			if _, err := tx.PutComponent(record); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	report, err := svc.UpgradeStore(ctx)
	if err != nil {
		t.Fatalf("upgrade: %v", err)
	}
	if !report.OK() {
		t.Fatalf("expected clean upgrade, got %+v", report.Results)
	}
	if report.ToVersion != "v2.1.0" {
		t.Fatalf("expected final version v2.1.0, got %s", report.ToVersion)
	}

	err = svc.Store().View(ctx, func(view core.ModelView) error {
		if got := view.SchemaVersion(); got != "v2.1.0" {
			t.Fatalf("expected schema v2.1.0, got %s", got)
		}
		nodes := view.ListComponents("node")
		if len(nodes) != 1 {
			t.Fatalf("expected 1 node, got %d", len(nodes))
		}
		if got, _ := nodes[0].Field("in_service"); got != true {
			t.Fatalf("expected normalized in_service flag, got %v", got)
		}
		if branches := view.ListComponents("branch"); len(branches) != 1 {
			t.Fatalf("expected 1 branch, got %d", len(branches))
		}
		if leftovers := view.ListComponents("bus"); len(leftovers) != 0 {
			t.Fatalf("expected bus bucket relabeled, got %d", len(leftovers))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}
