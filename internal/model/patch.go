package model

import (
	json "github.com/goccy/go-json"
)

var emptyPatch = []byte("[]")

type PatchOp string

const (
	PatchAdd     PatchOp = "add"
	PatchRemove  PatchOp = "remove"
	PatchReplace PatchOp = "replace"
)

type ValueKind uint8

const (
	// ValueAbsent marks an operation without a value member (remove).
	ValueAbsent ValueKind = iota
	// ValueScalar is a string, date or null.
	ValueScalar
	// ValueRecord is a whole Dossier, Person or Policy.
	ValueRecord
)

// PatchValue is the value carried by a patch operation.
type PatchValue struct {
	kind   ValueKind
	scalar any
	record any
}

func AbsentValue() PatchValue { return PatchValue{} }

// ScalarValue wraps a string, Date or nil.
func ScalarValue(v any) PatchValue { return PatchValue{kind: ValueScalar, scalar: v} }

func DossierValue(d Dossier) PatchValue { return PatchValue{kind: ValueRecord, record: d} }
func PersonValue(p Person) PatchValue   { return PatchValue{kind: ValueRecord, record: p} }
func PolicyValue(p Policy) PatchValue   { return PatchValue{kind: ValueRecord, record: p} }

func (v PatchValue) Kind() ValueKind { return v.kind }

// Interface returns the wrapped scalar or record, or nil when absent.
func (v PatchValue) Interface() any {
	switch v.kind {
	case ValueScalar:
		return v.scalar
	case ValueRecord:
		return v.record
	}
	return nil
}

// PatchOperation is one RFC 6902 operation.
type PatchOperation struct {
	Op    PatchOp
	Path  string
	Value PatchValue
}

type wireOp struct {
	Op    PatchOp `json:"op"`
	Path  string  `json:"path"`
	Value any     `json:"value"`
}

type wireOpNoValue struct {
	Op   PatchOp `json:"op"`
	Path string  `json:"path"`
}

func (o PatchOperation) MarshalJSON() ([]byte, error) {
	if o.Value.kind == ValueAbsent {
		return json.Marshal(wireOpNoValue{Op: o.Op, Path: o.Path})
	}
	return json.Marshal(wireOp{Op: o.Op, Path: o.Path, Value: o.Value.Interface()})
}

// Patch is an ordered list of operations. It always serializes as an array,
// never null.
type Patch []PatchOperation

func (p Patch) MarshalJSON() ([]byte, error) {
	if len(p) == 0 {
		return emptyPatch, nil
	}
	return json.Marshal([]PatchOperation(p))
}
