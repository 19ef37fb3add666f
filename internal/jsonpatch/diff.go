// Package jsonpatch computes RFC 6902 patches between two Situation snapshots
// and replays them.
//
// Paths are rooted at the response's "situation" member, so a patch applies to
// a document of the form {"situation": {"dossier": ...}}.
package jsonpatch

import (
	"strconv"

	"pension-calculation-engine/internal/model"
)

const dossierPath = "/situation/dossier"

// Diff returns the operations that turn prev into curr. Diff(curr, prev) is
// the matching backward patch.
func Diff(prev, curr model.Situation) model.Patch {
	a, b := prev.Dossier, curr.Dossier

	switch {
	case a == nil && b == nil:
		return model.Patch{}
	case a == nil:
		return model.Patch{{Op: model.PatchAdd, Path: dossierPath, Value: model.DossierValue(*b)}}
	case b == nil:
		return model.Patch{{Op: model.PatchRemove, Path: dossierPath}}
	}

	ops := model.Patch{}

	if a.DossierID != b.DossierID {
		ops = append(ops, replaceScalar("/dossier_id", b.DossierID))
	}
	if a.Status != b.Status {
		ops = append(ops, replaceScalar("/status", b.Status))
	}
	if !model.EqualDates(a.RetirementDate, b.RetirementDate) {
		var v any
		if b.RetirementDate != nil {
			v = *b.RetirementDate
		}
		ops = append(ops, replaceScalar("/retirement_date", v))
	}

	ops = diffList(ops, dossierPath+"/persons", a.Persons, b.Persons, model.Person.Equal, model.PersonValue)
	ops = diffList(ops, dossierPath+"/policies", a.Policies, b.Policies, model.Policy.Equal, model.PolicyValue)

	return ops
}

// DiffBoth returns the forward and backward patches between prev and curr.
func DiffBoth(prev, curr model.Situation) (fwd, bwd model.Patch) {
	return Diff(prev, curr), Diff(curr, prev)
}

func replaceScalar(field string, v any) model.PatchOperation {
	return model.PatchOperation{Op: model.PatchReplace, Path: dossierPath + field, Value: model.ScalarValue(v)}
}

// diffList compares two lists by position. Moves are never detected.
func diffList[T any](ops model.Patch, path string, a, b []T, equal func(T, T) bool, wrap func(T) model.PatchValue) model.Patch {
	common := min(len(a), len(b))

	for i := common; i < len(b); i++ {
		ops = append(ops, model.PatchOperation{Op: model.PatchAdd, Path: indexPath(path, i), Value: wrap(b[i])})
	}
	// Highest index first so earlier indices stay valid.
	for i := len(a) - 1; i >= common; i-- {
		ops = append(ops, model.PatchOperation{Op: model.PatchRemove, Path: indexPath(path, i)})
	}
	for i := 0; i < common; i++ {
		if !equal(a[i], b[i]) {
			ops = append(ops, model.PatchOperation{Op: model.PatchReplace, Path: indexPath(path, i), Value: wrap(b[i])})
		}
	}
	return ops
}

func indexPath(path string, i int) string {
	return path + "/" + strconv.Itoa(i)
}
