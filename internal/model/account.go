package model

// AccountConfig is one enabled row of the account sheet: an advertiser
// account plus the run parameters used for its report extraction.
type AccountConfig struct {
	CustomerID   string
	LookbackDays int
	GadsFilters  string // GAQL WHERE fragment, already combined
}

// FilterRule is one user-authored exclusion rule from the config sheet.
// Expression grammar: `cond (AND cond)*` where cond is `field op literal`.
// Rules are combined with OR by the matcher: a placement matching any single
// enabled rule is excluded.
type FilterRule struct {
	Name       string
	Expression string
	Enabled    bool
}
