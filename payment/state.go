package payment

import "github.com/mstgnz/vpos/provider"

// transitions lists the statuses each status may move to. Refunded and
// cancelled are only reached by a parent through a successful child.
var transitions = map[provider.Status][]provider.Status{
	provider.StatusPending:    {provider.StatusProcessing, provider.StatusFailed},
	provider.StatusProcessing: {provider.StatusSuccess, provider.StatusFailed},
	provider.StatusSuccess:    {provider.StatusRefunded, provider.StatusCancelled},
}

// CanTransition reports whether a transaction may move from one status to
// another. Staying in place is allowed so that bookkeeping updates pass.
func CanTransition(from, to provider.Status) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Refundable reports whether tx can take a refund child
func Refundable(tx *provider.Transaction) bool {
	return tx.Status == provider.StatusSuccess &&
		(tx.Operation == provider.OperationPayment || tx.Operation == provider.OperationPostAuth)
}

// Cancellable reports whether tx can take a cancel child. The same-day rule
// is checked separately since it depends on the business time zone.
func Cancellable(tx *provider.Transaction) bool {
	return tx.Status == provider.StatusSuccess &&
		(tx.Operation == provider.OperationPayment ||
			tx.Operation == provider.OperationPreAuth ||
			tx.Operation == provider.OperationPostAuth)
}

// Capturable reports whether tx is a pre-authorization that can be captured
func Capturable(tx *provider.Transaction) bool {
	return tx.Operation == provider.OperationPreAuth && tx.Status == provider.StatusSuccess
}

// inFlight reports whether a child still holds or has used its parent's
// single refund, cancel or capture slot
func inFlight(child *provider.Transaction) bool {
	switch child.Status {
	case provider.StatusPending, provider.StatusProcessing, provider.StatusSuccess:
		return true
	}
	return false
}
