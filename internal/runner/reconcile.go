package runner

import (
	"sort"

	"streak_bot/internal/models"
)

// Plan что сделать с живыми задачами, чтобы совпасть с ростером.
type Plan struct {
	Start   []models.AccountTradeConfig
	Stop    []string
	Refresh []models.AccountTradeConfig
}

func (p Plan) Empty() bool {
	return len(p.Start) == 0 && len(p.Stop) == 0 && len(p.Refresh) == 0
}

// Reconcile считает план по ростеру. live: accountID => задача-надгробие.
// Надгробия не трогаем, пока аккаунт есть в ростере.
func Reconcile(live map[string]bool, roster []models.AccountTradeConfig) Plan {
	var p Plan
	seen := make(map[string]struct{}, len(roster))

	for _, acc := range roster {
		seen[acc.AccountID] = struct{}{}
		exhausted, ok := live[acc.AccountID]
		switch {
		case !ok:
			if acc.Eligible() {
				p.Start = append(p.Start, acc)
			}
		case exhausted:
		case !acc.Eligible():
			p.Stop = append(p.Stop, acc.AccountID)
		default:
			p.Refresh = append(p.Refresh, acc)
		}
	}
	for id := range live {
		if _, ok := seen[id]; !ok {
			p.Stop = append(p.Stop, id)
		}
	}

	sort.Strings(p.Stop)
	sort.Slice(p.Start, func(i, j int) bool { return p.Start[i].AccountID < p.Start[j].AccountID })
	sort.Slice(p.Refresh, func(i, j int) bool { return p.Refresh[i].AccountID < p.Refresh[j].AccountID })
	return p
}
