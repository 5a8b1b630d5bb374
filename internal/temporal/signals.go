package temporal

// Signal and query names for external interaction with review job workflows.
// Defined here (not in the workflows package) so that the server layer can
// reference them without depending on workflow code.
const (
	// SignalCancel requests cooperative workflow cancellation.
	SignalCancel = "cancel"

	// QueryProgress retrieves the workflow's in-memory progress snapshot.
	QueryProgress = "progress"
)
