// Package registry holds cross-stream facts: the last observed machine state
// per equipment and the batch consumption graph. It lives for the process
// lifetime and is never persisted.
package registry

import (
	"sync"
	"time"
)

// MachineRecord is the last observed operating state of one piece of
// equipment. Overwritten on every transition.
type MachineRecord struct {
	Equipment string    `json:"equipmentId"`
	State     string    `json:"state"`
	ErrorCode string    `json:"errorCode,omitempty"`
	Line      string    `json:"line"`
	Batch     string    `json:"batchId,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// StateMaintenance is the machine state that feeds the maintenance set.
const StateMaintenance = "maintenance"

// Registry is safe for concurrent use. Writers hold the lock for the whole
// read-modify-write of an update so readers never observe a half-applied
// transition.
type Registry struct {
	mu sync.RWMutex

	machines    map[string]MachineRecord
	maintenance map[string]struct{}

	// consumption graph, append-only until restart
	batchSegments    map[string][]string
	segmentMaterials map[string][]string
	batchOrder       []string

	// active batch per line, written by the batch lifecycle stream
	lineBatches map[string]string
}

func New() *Registry {
	return &Registry{
		machines:         make(map[string]MachineRecord),
		maintenance:      make(map[string]struct{}),
		batchSegments:    make(map[string][]string),
		segmentMaterials: make(map[string][]string),
		lineBatches:      make(map[string]string),
	}
}

// UpdateMachineState replaces the prior record for eqp and maintains the
// derived maintenance set: entering maintenance adds the id, leaving removes
// it.
func (r *Registry) UpdateMachineState(eqp, state, errorCode, line, batch string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.machines[eqp] = MachineRecord{
		Equipment: eqp,
		State:     state,
		ErrorCode: errorCode,
		Line:      line,
		Batch:     batch,
		UpdatedAt: time.Now().UTC(),
	}
	if state == StateMaintenance {
		r.maintenance[eqp] = struct{}{}
	} else {
		delete(r.maintenance, eqp)
	}
}

// MachineState returns the last observed record for eqp.
func (r *Registry) MachineState(eqp string) (MachineRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.machines[eqp]
	return rec, ok
}

// MachineStates returns a snapshot of every known record.
func (r *Registry) MachineStates() []MachineRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]MachineRecord, 0, len(r.machines))
	for _, rec := range r.machines {
		out = append(out, rec)
	}
	return out
}

// InMaintenance reports whether eqp is currently in the maintenance set.
func (r *Registry) InMaintenance(eqp string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.maintenance[eqp]
	return ok
}

// RecordConsumption appends batch→segment and segment→material edges,
// idempotently: recording the same triple twice leaves the graph unchanged.
func (r *Registry) RecordConsumption(batch, segment, material string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.batchSegments[batch]; !ok {
		r.batchOrder = append(r.batchOrder, batch)
	}
	r.batchSegments[batch] = appendUnique(r.batchSegments[batch], segment)
	r.segmentMaterials[segment] = appendUnique(r.segmentMaterials[segment], material)
}

// BatchesForMaterials returns, once each and in first-recorded order, every
// batch whose segments consumed any of the queried materials.
func (r *Registry) BatchesForMaterials(materials []string) []string {
	if len(materials) == 0 {
		return []string{}
	}
	query := make(map[string]struct{}, len(materials))
	for _, m := range materials {
		query[m] = struct{}{}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []string{}
	for _, batch := range r.batchOrder {
	segments:
		for _, seg := range r.batchSegments[batch] {
			for _, mat := range r.segmentMaterials[seg] {
				if _, hit := query[mat]; hit {
					out = append(out, batch)
					break segments
				}
			}
		}
	}
	return out
}

// SetActiveBatch records the batch currently running on a line.
func (r *Registry) SetActiveBatch(line, batch string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if batch == "" {
		delete(r.lineBatches, line)
		return
	}
	r.lineBatches[line] = batch
}

// ActiveBatch returns the batch currently running on a line, if any.
func (r *Registry) ActiveBatch(line string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.lineBatches[line]
	return b, ok
}

// ActiveBatches returns a snapshot of every line's current batch.
func (r *Registry) ActiveBatches() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.lineBatches))
	for k, v := range r.lineBatches {
		out[k] = v
	}
	return out
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
