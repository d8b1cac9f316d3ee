package audithook

// Action constants for audit events.
const (
	// Key actions
	ActionKeyAdded   = "key.added"
	ActionKeyRemoved = "key.removed"

	// Call actions
	ActionCallRecorded = "call.recorded"
	ActionCallDenied   = "call.denied"

	// Checkpoint actions
	ActionAccountsLoaded    = "checkpoint.loaded"
	ActionCheckpointFlushed = "checkpoint.flushed"

	// Router actions
	ActionNodeOnline      = "node.online"
	ActionNodeOffline     = "node.offline"
	ActionAllNodesOffline = "node.all_offline"
	ActionRouterOnline    = "router.online"
)

// Resource constants for audit events.
const (
	ResourceKey        = "key"
	ResourceCall       = "call"
	ResourceCheckpoint = "checkpoint"
	ResourceNode       = "node"
	ResourceRouter     = "router"
)

// Category constants for audit events.
const (
	CategoryAdmin      = "admin"
	CategoryAccess     = "access"
	CategoryAccounting = "accounting"
	CategoryRouting    = "routing"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
