package domain

type CheckoutStatus string

const (
	CheckoutStatusIdle             CheckoutStatus = "IDLE"
	CheckoutStatusInitializing     CheckoutStatus = "INITIALIZING"
	CheckoutStatusAwaitingDelivery CheckoutStatus = "AWAITING_DELIVERY"
	CheckoutStatusSubmitting       CheckoutStatus = "SUBMITTING"
	CheckoutStatusCompleted        CheckoutStatus = "COMPLETED"
	CheckoutStatusFailed           CheckoutStatus = "FAILED"
	CheckoutStatusAbandoned        CheckoutStatus = "ABANDONED"
)

var checkoutTransitions = map[CheckoutStatus][]CheckoutStatus{
	CheckoutStatusIdle:             {CheckoutStatusInitializing, CheckoutStatusAbandoned},
	CheckoutStatusInitializing:     {CheckoutStatusAwaitingDelivery, CheckoutStatusFailed, CheckoutStatusAbandoned},
	CheckoutStatusAwaitingDelivery: {CheckoutStatusSubmitting, CheckoutStatusAbandoned},
	CheckoutStatusSubmitting:       {CheckoutStatusCompleted, CheckoutStatusAwaitingDelivery, CheckoutStatusAbandoned},
	CheckoutStatusFailed:           {CheckoutStatusInitializing, CheckoutStatusAbandoned},
}

func CanTransitionTo(from, to CheckoutStatus) bool {
	for _, next := range checkoutTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s CheckoutStatus) IsTerminal() bool {
	return s == CheckoutStatusCompleted || s == CheckoutStatusAbandoned
}

// String representation (for logging)
func (s CheckoutStatus) String() string {
	return string(s)
}
