package domain

// Account maps an opaque access key to a username and its pending-job quota.
// Accounts are provisioned by the userctl tool; the API and worker only read.
type Account struct {
	Username string
	APIKey   string
	Quota    int // max concurrent pending jobs; <=0 means "use configured default"
}

// PendingLimit returns the effective pending-job ceiling for the account.
func (a Account) PendingLimit(fallback int) int {
	if a.Quota > 0 {
		return a.Quota
	}
	return fallback
}
