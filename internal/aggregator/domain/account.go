package domain

// Balances are an account's balances as reported by the aggregator. Nil means not reported.
type Balances struct {
	Available       *float64 `json:"available"`
	Current         *float64 `json:"current"`
	Limit           *float64 `json:"limit"`
	IsoCurrencyCode string   `json:"iso_currency_code,omitempty"`
}

// Account is one account of an item.
type Account struct {
	AccountID    string   `json:"account_id"`
	Name         string   `json:"name"`
	OfficialName string   `json:"official_name,omitempty"`
	Mask         string   `json:"mask,omitempty"`
	Type         string   `json:"type"`
	Subtype      string   `json:"subtype,omitempty"`
	Balances     Balances `json:"balances"`
}

// OtherAccountType groups accounts the aggregator reports without a type.
const OtherAccountType = "other"

// GroupByType groups accounts by Type, keeping input order within each group.
func GroupByType(accounts []Account) map[string][]Account {
	out := make(map[string][]Account)
	for _, a := range accounts {
		t := a.Type
		if t == "" {
			t = OtherAccountType
		}
		out[t] = append(out[t], a)
	}
	return out
}
