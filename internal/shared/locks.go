package shared

// InvoiceSyncLockKey is the redis key guarding invoice reconciliation batches.
const InvoiceSyncLockKey = "crm:invoice-sync:lock"
