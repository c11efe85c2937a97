// Package sink provides the append-only tabular outputs of a run: primary
// (allowed, deduped candidates), audit (eliminated/filtered candidates with a
// reason) and result (exactly one row per input record).
package sink

// Sink is an append-only tabular output.
type Sink interface {
	Append(row []string) error
	Close() error
}

// PrimaryColumns is the layout of the primary and audit outputs; the audit
// sink appends a trailing Reason column.
var PrimaryColumns = []string{
	"Name", "Address", "Lat", "Long", "Website", "Pincode", "Category",
	"ExternalID", "InputRowIndex", "Rating", "Reviews",
}

// AuditColumns adds the elimination reason.
var AuditColumns = append(append([]string{}, PrimaryColumns...), "Reason")

// ResultColumns builds the result layout: the input's own columns preserved
// in order, then the match columns, then the blended score.
func ResultColumns(inputHeaders []string) []string {
	out := append([]string{}, inputHeaders...)
	out = append(out, PrimaryColumns...)
	return append(out, "MatchScore")
}
