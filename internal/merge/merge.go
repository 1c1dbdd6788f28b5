// Package merge reconciles a locally held collection against a freshly
// fetched remote one using last-writer-wins on UpdatedAt.
package merge

import "github.com/splax/deskpulse/internal/domain"

// Report summarises what a reconciliation changed. Inserted counts remote
// entities missing locally, Replaced shared IDs where remote was strictly
// newer, KeptLocal shared IDs where local was strictly newer, Unchanged
// shared IDs with equal timestamps and Retained local entities absent from
// the remote side.
type Report struct {
	Inserted  int
	Replaced  int
	KeptLocal int
	Unchanged int
	Retained  int
}

// Changed reports whether the merged collection differs from local.
func (r Report) Changed() bool { return r.Inserted > 0 || r.Replaced > 0 }

// Merge returns the union of local and remote. For an ID present on both
// sides the strictly newer UpdatedAt wins, a tie keeps local, and a missing
// or malformed timestamp orders before every real one. Entities only present locally
// are retained: absence from a fetch is never treated as a deletion.
func Merge[P domain.Payload](local, remote Collection[P]) Collection[P] {
	out, _ := Reconcile(local, remote)
	return out
}

// Reconcile is Merge with a Report of the decisions taken.
func Reconcile[P domain.Payload](local, remote Collection[P]) (Collection[P], Report) {
	var report Report
	if remote.Len() == 0 {
		report.Retained = local.Len()
		return local, report
	}

	next := local.clone(local.Len() + remote.Len())
	for id, theirs := range remote.items {
		ours, ok := local.items[id]
		switch {
		case !ok:
			next.items[id] = theirs
			report.Inserted++
		case theirs.UpdatedAt.After(ours.UpdatedAt):
			next.items[id] = theirs
			report.Replaced++
		case ours.UpdatedAt.After(theirs.UpdatedAt):
			report.KeptLocal++
		default:
			report.Unchanged++
		}
	}
	report.Retained = local.Len() - report.Replaced - report.KeptLocal - report.Unchanged
	if !report.Changed() {
		return local, report
	}
	return next, report
}
