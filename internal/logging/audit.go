package logging

// AuditEvent represents a value-moving operation that should be kept in the
// audit trail (approvals, stakes, claims, withdrawals, admin setters).
type AuditEvent struct {
	Operation string // e.g., "approve", "register", "claim_and_restake"
	Actor     string // wallet address that signed
	Target    string // user ID or contract address affected
	Result    string // "success" or "failure"
	Details   string
}

// Audit logs an operation with structured fields at Info level. The "audit"
// attribute distinguishes these records from regular application logs.
func Audit(event AuditEvent) {
	Logger().Info("audit",
		"audit", true,
		"operation", event.Operation,
		"actor", event.Actor,
		"target", event.Target,
		"result", event.Result,
		"details", event.Details,
	)
}
