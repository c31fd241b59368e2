package topic

import (
	"strings"
	"testing"
)

func demoHierarchy() Hierarchy {
	return Hierarchy{
		Enterprise: "Contoso",
		Sites: []Site{
			{
				Name: "Rotterdam",
				Areas: []Area{
					{
						Name: "Packaging",
						Lines: []Line{
							{
								Name: "Line 1",
								Cells: []Cell{
									{Name: "Filling", Equipment: []string{"EQP-1001"}},
									{Name: "Capping", Equipment: []string{"EQP-1003"}},
								},
							},
						},
					},
				},
			},
			{
				Name: "Lisbon",
				Areas: []Area{
					{
						Name: "Assembly",
						Lines: []Line{
							// Same line name as Rotterdam's: declaration order must win.
							{Name: "Line 1", Cells: []Cell{{Name: "Welding", Equipment: []string{"EQP-9001"}}}},
						},
					},
				},
			},
		},
	}
}

func demoConfig() Config {
	return Config{
		Prefix:    "plantsim",
		Telemetry: []string{"equipment", "heartbeat"},
		Events:    []string{"machine-state", "supply-chain"},
		State:     []string{"twin"},
		Inbound:   map[string]string{"supply-chain": "logistics"},
	}
}

func TestResolveEquipmentHierarchy(t *testing.T) {
	r := NewResolver(demoHierarchy(), demoConfig())
	got := r.Resolve("equipment", EntityContext{Equipment: "EQP-1001"})
	want := "contoso/rotterdam/packaging/line-1/filling/telemetry/equipment"
	if got != want {
		t.Errorf("Resolve = %q, want %q", got, want)
	}
}

func TestResolveSegmentsInOrder(t *testing.T) {
	r := NewResolver(demoHierarchy(), demoConfig())
	got := r.Resolve("equipment", EntityContext{Line: "Line 1"})
	segs := strings.Split(got, "/")
	if len(segs) != 6 {
		t.Fatalf("expected 6 segments, got %v", segs)
	}
	// Site, area, line slugs in hierarchy order.
	if segs[1] != "rotterdam" || segs[2] != "packaging" || segs[3] != "line-1" {
		t.Errorf("hierarchy segments out of order: %v", segs)
	}
}

func TestDeclarationOrderWinsOnDuplicateLine(t *testing.T) {
	r := NewResolver(demoHierarchy(), demoConfig())
	// "Line 1" exists in both sites; the first-declared (Rotterdam) must win.
	got := r.Resolve("equipment", EntityContext{Line: "Line 1"})
	if !strings.Contains(got, "/rotterdam/") {
		t.Errorf("expected first-declared site to win, got %q", got)
	}
}

func TestCategoryMoveChangesOnlyCategorySegment(t *testing.T) {
	cfg := demoConfig()
	before := NewResolver(demoHierarchy(), cfg).Resolve("equipment", EntityContext{Equipment: "EQP-1001"})

	cfg.Telemetry = []string{"heartbeat"}
	cfg.Events = append(cfg.Events, "equipment")
	after := NewResolver(demoHierarchy(), cfg).Resolve("equipment", EntityContext{Equipment: "EQP-1001"})

	bs, as := strings.Split(before, "/"), strings.Split(after, "/")
	if len(bs) != len(as) {
		t.Fatalf("segment count changed: %q vs %q", before, after)
	}
	for i := range bs {
		if i == len(bs)-2 {
			if bs[i] != "telemetry" || as[i] != "events" {
				t.Errorf("category segment: %q -> %q", bs[i], as[i])
			}
			continue
		}
		if bs[i] != as[i] {
			t.Errorf("segment %d changed: %q -> %q", i, bs[i], as[i])
		}
	}
}

func TestResolveInbound(t *testing.T) {
	r := NewResolver(demoHierarchy(), demoConfig())
	got := r.Resolve("supply-chain", EntityContext{External: "SHIP 42"})
	want := "contoso/logistics/inbound/ship-42/events/supply-chain"
	if got != want {
		t.Errorf("Resolve = %q, want %q", got, want)
	}
}

func TestResolveNoMatchFallsBack(t *testing.T) {
	r := NewResolver(demoHierarchy(), demoConfig())
	got := r.Resolve("equipment", EntityContext{Equipment: "EQP-0000"})
	if got != "contoso/telemetry/equipment" {
		t.Errorf("fallback = %q", got)
	}
}

func TestResolveSiteOnly(t *testing.T) {
	r := NewResolver(demoHierarchy(), demoConfig())
	got := r.Resolve("heartbeat", EntityContext{Site: "Lisbon"})
	if got != "contoso/lisbon/telemetry/heartbeat" {
		t.Errorf("Resolve = %q", got)
	}
}

func TestResolveFlatMode(t *testing.T) {
	cfg := demoConfig()
	cfg.Flat = true
	r := NewResolver(demoHierarchy(), cfg)
	if got := r.Resolve("equipment", EntityContext{Equipment: "EQP-1001"}); got != "plantsim/equipment" {
		t.Errorf("flat topic = %q", got)
	}
}

func TestUnlistedSlugDefaultsToTelemetry(t *testing.T) {
	r := NewResolver(demoHierarchy(), demoConfig())
	if got := r.Category("mystery"); got != "telemetry" {
		t.Errorf("Category = %q", got)
	}
}

func TestSlug(t *testing.T) {
	if got := Slug(" Line 1 "); got != "line-1" {
		t.Errorf("Slug = %q", got)
	}
	if got := Slug("A/B Test"); got != "ab-test" {
		t.Errorf("Slug = %q", got)
	}
}
