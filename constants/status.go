package constants

// ResultStatus is the canonical status for a stored result record.
type ResultStatus string

// Stable values (store these exact strings).
const (
	StatusProcessing ResultStatus = "processing" // queued or in flight; never stored, only reported
	StatusCompleted  ResultStatus = "completed"  // terminal success
	StatusError      ResultStatus = "error"      // terminal failure
)

// FieldNames are the structured fields extracted from a card, in wire order.
var FieldNames = []string{"nombre", "codigo_estudiante", "carrera", "institucion"}
