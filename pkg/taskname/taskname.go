package taskname

const (
	// Catalog tasks
	CatalogRefresh = "catalog:refresh"

	// Withdrawal tasks
	WithdrawalInitiate  = "withdrawal:initiate"
	WithdrawalConfirm   = "withdrawal:confirm"
	WithdrawalReconcile = "withdrawal:reconcile"

	// Payroll
	PayrollRun = "payroll:run"

	// Referral
	ReferralRepair = "referral:repair"

	// Ledger
	LedgerAudit = "ledger:audit"
)

// Queues
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)
