package domain

// QuoteStatus tracks one seller group's delivery quote.
type QuoteStatus string

const (
	QuoteStatusUnrequested QuoteStatus = "UNREQUESTED"
	QuoteStatusLoading     QuoteStatus = "LOADING"
	QuoteStatusLoaded      QuoteStatus = "LOADED"
	QuoteStatusFailed      QuoteStatus = "FAILED"
)

var quoteTransitions = map[QuoteStatus][]QuoteStatus{
	QuoteStatusUnrequested: {QuoteStatusLoading},
	QuoteStatusLoading:     {QuoteStatusLoaded, QuoteStatusFailed, QuoteStatusUnrequested},
	QuoteStatusLoaded:      {QuoteStatusLoading, QuoteStatusUnrequested},
	QuoteStatusFailed:      {QuoteStatusLoading, QuoteStatusUnrequested},
}

func CanQuoteTransitionTo(from, to QuoteStatus) bool {
	for _, next := range quoteTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s QuoteStatus) String() string {
	return string(s)
}
