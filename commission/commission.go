// Package commission computes the bank and platform cut of a successful
// charge and the installment options a terminal offers.
package commission

import (
	"sort"
	"strings"
	"time"

	"github.com/mstgnz/vpos/provider"
	"github.com/shopspring/decimal"
)

const (
	SourceTerminal = "terminal"
	SourceOverride = "override"
)

var hundred = decimal.NewFromInt(100)

// Round rounds half up to two decimals
func Round(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return d.Neg().Round(2).Neg()
	}
	return d.Round(2)
}

// percentOf returns rate percent of amount
func percentOf(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate).Div(hundred)
}

// ActivePeriod returns the most recent schedule that has started at now
func ActivePeriod(periods []provider.CommissionPeriod, now time.Time) *provider.CommissionPeriod {
	var active *provider.CommissionPeriod
	for i := range periods {
		p := &periods[i]
		if p.StartDate.After(now) {
			continue
		}
		if active == nil || p.StartDate.After(active.StartDate) {
			active = p
		}
	}
	return active
}

// RateFor returns the rate for installment in period, falling back to the
// single payment rate. The zero rate is returned when neither exists.
func RateFor(period *provider.CommissionPeriod, installment int) provider.CommissionRate {
	if period == nil {
		return provider.CommissionRate{Installment: installment}
	}
	if installment < 1 {
		installment = 1
	}
	var single *provider.CommissionRate
	for i := range period.Rates {
		r := period.Rates[i]
		if r.Installment == installment {
			return r
		}
		if r.Installment == 1 && single == nil {
			single = &period.Rates[i]
		}
	}
	if single != nil {
		return *single
	}
	return provider.CommissionRate{Installment: installment}
}

// SelectOverride picks the override that applies to a charge on terminalID:
// one bound to the terminal beats the partner's general one.
func SelectOverride(overrides []*provider.CommissionOverride, terminalID string) *provider.CommissionOverride {
	var general *provider.CommissionOverride
	for _, o := range overrides {
		if !o.Active {
			continue
		}
		if o.TerminalID == terminalID && terminalID != "" {
			return o
		}
		if o.TerminalID == "" && general == nil {
			general = o
		}
	}
	return general
}

// OverrideApplies reports whether a partner override takes part in the
// commission of a charge on terminal
func OverrideApplies(tx *provider.Transaction, terminal *provider.Terminal) bool {
	return terminal.PlatformOwned() && tx.PartnerID != ""
}

func axisMatches(ruleValue, actual string) (matched, exact bool) {
	if ruleValue == "" || strings.EqualFold(ruleValue, provider.Wildcard) {
		return true, false
	}
	if strings.EqualFold(ruleValue, actual) {
		return true, true
	}
	return false, false
}

// MatchRule returns the most specific rule for the card. Exact card type
// outweighs exact family which outweighs exact installment count; the
// first declared rule wins a tie. Nil means the override default applies.
func MatchRule(rules []provider.OverrideRule, cardType provider.CardType, family string, installment int) *provider.OverrideRule {
	var (
		best      *provider.OverrideRule
		bestScore = -1
	)
	for i := range rules {
		r := &rules[i]
		score := 0

		ok, exact := axisMatches(r.CardType, string(cardType))
		if !ok {
			continue
		}
		if exact {
			score += 4
		}

		ok, exact = axisMatches(r.CardFamily, family)
		if !ok {
			continue
		}
		if exact {
			score += 2
		}

		if r.Installment != 0 {
			if r.Installment != installment {
				continue
			}
			score++
		}

		if score > bestScore {
			best, bestScore = r, score
		}
	}
	return best
}

// Calculate computes the commission of a successful charge. override may be
// nil and is only used when OverrideApplies.
func Calculate(tx *provider.Transaction, terminal *provider.Terminal, override *provider.CommissionOverride, now time.Time) *provider.Commission {
	amount := tx.Amount
	rate := RateFor(ActivePeriod(terminal.Commissions, now), tx.Installment)

	c := &provider.Commission{
		BankRate:      rate.BankRate,
		BankAmount:    Round(percentOf(amount, rate.BankRate)),
		PlatformRate:  rate.PlatformRate,
		PlatformFixed: decimal.Zero,
		Source:        SourceTerminal,
	}
	c.PlatformAmount = Round(percentOf(amount, rate.PlatformRate))

	if override != nil && OverrideApplies(tx, terminal) {
		var cardType provider.CardType
		var family string
		if tx.BinInfo != nil {
			cardType, family = tx.BinInfo.Type, tx.BinInfo.Family
		}

		pRate, pFixed := override.DefaultRate, override.DefaultFixed
		if rule := MatchRule(override.Rules, cardType, family, tx.Installment); rule != nil {
			pRate, pFixed = rule.Rate, rule.Fixed
		}

		platform := percentOf(amount, pRate).Add(pFixed)
		if override.MinCommission != nil && platform.LessThan(*override.MinCommission) {
			platform = *override.MinCommission
		}
		if override.MaxCommission != nil && platform.GreaterThan(*override.MaxCommission) {
			platform = *override.MaxCommission
		}

		c.PlatformRate = pRate
		c.PlatformFixed = pFixed
		c.PlatformAmount = Round(platform)
		c.Source = SourceOverride
		c.OverrideID = override.ID
	}

	c.Total = c.BankAmount.Add(c.PlatformAmount)
	c.Net = Round(amount).Sub(c.Total)
	return c
}

// Option is one installment choice offered to the cardholder
type Option struct {
	Count          int             `json:"count"`
	Rate           decimal.Decimal `json:"rate"`
	Total          decimal.Decimal `json:"total"`
	PerInstallment decimal.Decimal `json:"perInstallment"`
}

// InstallmentPlan lists the installment options for amount on terminal.
// A single payment is always offered; debit and prepaid cards get nothing
// else.
func InstallmentPlan(terminal *provider.Terminal, amount decimal.Decimal, info *provider.BinInfo) []Option {
	plan := []Option{{
		Count:          1,
		Rate:           decimal.Zero,
		Total:          Round(amount),
		PerInstallment: Round(amount),
	}}

	policy := terminal.Installments
	if !policy.Enabled {
		return plan
	}
	if info != nil && (info.Type == provider.CardDebit || info.Type == provider.CardPrepaid) {
		return plan
	}
	if amount.LessThan(policy.MinAmount) {
		return plan
	}

	from := policy.MinCount
	if from < 2 {
		from = 2
	}
	for n := from; n <= policy.MaxCount; n++ {
		rate := policy.Rates[n]
		total := Round(amount.Add(percentOf(amount, rate)))
		plan = append(plan, Option{
			Count:          n,
			Rate:           rate,
			Total:          total,
			PerInstallment: Round(total.Div(decimal.NewFromInt(int64(n)))),
		})
	}
	sort.Slice(plan, func(i, j int) bool { return plan[i].Count < plan[j].Count })
	return plan
}

// CheckInstallment rejects an installment count the plan does not offer
func CheckInstallment(terminal *provider.Terminal, amount decimal.Decimal, info *provider.BinInfo, installment int) error {
	if installment <= 1 {
		return nil
	}
	for _, o := range InstallmentPlan(terminal, amount, info) {
		if o.Count == installment {
			return nil
		}
	}
	return provider.NewError(provider.KindValidation, "INSTALLMENT_NOT_ALLOWED",
		"installment count is not offered for this card and amount")
}
