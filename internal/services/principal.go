package services

// Principal carries the acting identity into gated operations: the current
// user id and its group memberships, as supplied by identity management.
// The zero value means "no authentication".
type Principal struct {
	UserID   string
	GroupIDs []string
}

// Anonymous reports whether the principal carries no identity at all.
func (p Principal) Anonymous() bool {
	return p.UserID == "" && len(p.GroupIDs) == 0
}
