// Package routing picks the virtual POS terminal that should carry a charge.
package routing

import (
	"context"
	"fmt"
	"sort"

	"github.com/mstgnz/vpos/infra/logger"
	"github.com/mstgnz/vpos/provider"
)

// Rule names the selection step that picked a terminal
type Rule string

const (
	RuleOnUs     Rule = "on_us"
	RuleFamily   Rule = "family"
	RuleDefault  Rule = "default"
	RulePriority Rule = "priority"
)

// TerminalLister lists an owner's terminals in declaration order. An empty
// partnerID lists the platform's terminals.
type TerminalLister interface {
	ListTerminals(ctx context.Context, partnerID string) ([]*provider.Terminal, error)
}

// Request describes the charge a terminal is needed for
type Request struct {
	PartnerID  string
	Currency   string
	Bin        *provider.BinInfo
	NoFallback bool
}

// Selection is the routing outcome
type Selection struct {
	Terminal *provider.Terminal
	Rule     Rule
	// Fallback is set when a partner charge was routed to a platform terminal
	Fallback bool
}

// Router selects terminals from a TerminalLister
type Router struct {
	terminals TerminalLister
}

// NewRouter creates a router over terminals
func NewRouter(terminals TerminalLister) *Router {
	return &Router{terminals: terminals}
}

// Select runs the selection chain over the owner's terminals, then over the
// platform's when a partner has no usable terminal and fallback is allowed.
func (r *Router) Select(ctx context.Context, req Request) (*Selection, error) {
	owned, err := r.terminals.ListTerminals(ctx, req.PartnerID)
	if err != nil {
		return nil, fmt.Errorf("list terminals: %w", err)
	}
	if t, rule := Pick(owned, req.Currency, req.Bin); t != nil {
		return &Selection{Terminal: t, Rule: rule}, nil
	}

	if req.PartnerID != "" && !req.NoFallback {
		platform, err := r.terminals.ListTerminals(ctx, "")
		if err != nil {
			return nil, fmt.Errorf("list platform terminals: %w", err)
		}
		if t, rule := Pick(platform, req.Currency, req.Bin); t != nil {
			logger.Debug("Partner charge routed to platform terminal", logger.LogContext{
				PartnerID: req.PartnerID,
				Fields:    map[string]any{"terminal_id": t.ID, "rule": string(rule), "currency": req.Currency},
			})
			return &Selection{Terminal: t, Rule: rule, Fallback: true}, nil
		}
	}

	return nil, provider.NewError(provider.KindTerminalUnavailable, "NO_TERMINAL",
		fmt.Sprintf("no suitable terminal for currency %s", req.Currency))
}

// Pick applies the selection chain to one owner's terminals: on-us bank,
// card family, currency default, then highest priority. The first declared
// terminal wins a tie. Inactive terminals and terminals
// that cannot charge currency are never picked.
func Pick(terminals []*provider.Terminal, currency string, info *provider.BinInfo) (*provider.Terminal, Rule) {
	eligible := make([]*provider.Terminal, 0, len(terminals))
	for _, t := range terminals {
		if t.Active && t.SupportsCurrency(currency) {
			eligible = append(eligible, t)
		}
	}
	if len(eligible) == 0 {
		return nil, ""
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].Position < eligible[j].Position
	})

	if info != nil && info.BankCode != "" {
		for _, t := range eligible {
			if t.BankCode == info.BankCode {
				return t, RuleOnUs
			}
		}
	}
	if info != nil && info.Family != "" {
		for _, t := range eligible {
			if t.AcceptsFamily(info.Family) {
				return t, RuleFamily
			}
		}
	}
	for _, t := range eligible {
		if t.IsDefaultFor(currency) {
			return t, RuleDefault
		}
	}

	best := eligible[0]
	for _, t := range eligible[1:] {
		if t.Priority > best.Priority {
			best = t
		}
	}
	return best, RulePriority
}
