package shared

// Tax filing permissions.
const (
	PermFilingsView   = "filings.view"
	PermFilingsManage = "filings.manage"
)

// FilingScopes lists all permissions related to tax filings.
func FilingScopes() []string {
	return []string{
		PermFilingsView,
		PermFilingsManage,
	}
}
