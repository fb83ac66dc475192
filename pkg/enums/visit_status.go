package enums

// VisitStatus marks the lifecycle of a recorded visit. Visits are written
// completed; the column exists for forward compatibility with in-progress
// bookings.
type VisitStatus string

const (
	VisitStatusCompleted VisitStatus = "COMPLETED"
)
