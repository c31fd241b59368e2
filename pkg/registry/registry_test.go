package registry

import (
	"reflect"
	"testing"
)

func TestUpdateMachineStateOverwrites(t *testing.T) {
	r := New()
	r.UpdateMachineState("EQP-1", "running", "", "Line 1", "B-1")
	r.UpdateMachineState("EQP-1", "error", "E-204", "Line 1", "B-1")

	rec, ok := r.MachineState("EQP-1")
	if !ok {
		t.Fatal("record missing")
	}
	if rec.State != "error" || rec.ErrorCode != "E-204" {
		t.Errorf("record = %+v", rec)
	}
}

func TestMaintenanceSet(t *testing.T) {
	r := New()
	r.UpdateMachineState("EQP-1", StateMaintenance, "", "Line 1", "")
	if !r.InMaintenance("EQP-1") {
		t.Error("EQP-1 should be in maintenance")
	}
	r.UpdateMachineState("EQP-1", "running", "", "Line 1", "")
	if r.InMaintenance("EQP-1") {
		t.Error("EQP-1 should have left maintenance")
	}
	if r.InMaintenance("EQP-2") {
		t.Error("unknown equipment cannot be in maintenance")
	}
}

func TestRecordConsumptionIdempotent(t *testing.T) {
	r := New()
	r.RecordConsumption("B-1", "SEG-1", "MAT-100")
	r.RecordConsumption("B-1", "SEG-1", "MAT-100")
	r.RecordConsumption("B-1", "SEG-1", "MAT-100")

	once := New()
	once.RecordConsumption("B-1", "SEG-1", "MAT-100")

	got := r.BatchesForMaterials([]string{"MAT-100"})
	want := once.BatchesForMaterials([]string{"MAT-100"})
	if !reflect.DeepEqual(got, want) {
		t.Errorf("idempotency broken: %v vs %v", got, want)
	}
	if len(r.batchSegments["B-1"]) != 1 || len(r.segmentMaterials["SEG-1"]) != 1 {
		t.Errorf("duplicate edges recorded: %v / %v", r.batchSegments, r.segmentMaterials)
	}
}

func TestBatchesForMaterials(t *testing.T) {
	r := New()
	r.RecordConsumption("B-1", "SEG-1", "MAT-100")
	r.RecordConsumption("B-1", "SEG-2", "MAT-200")
	r.RecordConsumption("B-2", "SEG-3", "MAT-200")
	r.RecordConsumption("B-3", "SEG-4", "MAT-300")

	got := r.BatchesForMaterials([]string{"MAT-200"})
	if !reflect.DeepEqual(got, []string{"B-1", "B-2"}) {
		t.Errorf("BatchesForMaterials = %v", got)
	}

	// A batch with several matching segments appears once.
	r.RecordConsumption("B-1", "SEG-5", "MAT-200")
	got = r.BatchesForMaterials([]string{"MAT-200"})
	if !reflect.DeepEqual(got, []string{"B-1", "B-2"}) {
		t.Errorf("batch repeated: %v", got)
	}
}

func TestBatchesForMaterialsEmptyQuery(t *testing.T) {
	r := New()
	r.RecordConsumption("B-1", "SEG-1", "MAT-100")
	if got := r.BatchesForMaterials(nil); len(got) != 0 {
		t.Errorf("empty query returned %v", got)
	}
	if got := r.BatchesForMaterials([]string{}); len(got) != 0 {
		t.Errorf("empty query returned %v", got)
	}
}

func TestBatchesForMaterialsUnknownMaterial(t *testing.T) {
	r := New()
	r.RecordConsumption("B-1", "SEG-1", "MAT-100")
	if got := r.BatchesForMaterials([]string{"MAT-999"}); len(got) != 0 {
		t.Errorf("unknown material matched %v", got)
	}
}

func TestActiveBatch(t *testing.T) {
	r := New()
	r.SetActiveBatch("Line 1", "B-7")
	if b, ok := r.ActiveBatch("Line 1"); !ok || b != "B-7" {
		t.Errorf("ActiveBatch = %q, %v", b, ok)
	}
	r.SetActiveBatch("Line 1", "")
	if _, ok := r.ActiveBatch("Line 1"); ok {
		t.Error("cleared batch still present")
	}
}

func TestMachineStatesSnapshot(t *testing.T) {
	r := New()
	r.UpdateMachineState("EQP-1", "running", "", "Line 1", "")
	r.UpdateMachineState("EQP-2", "idle", "", "Line 1", "")
	if got := r.MachineStates(); len(got) != 2 {
		t.Errorf("expected 2 records, got %d", len(got))
	}
}
