package agent

import analysis "github.com/autostream/agent/backend/internal/analysis/intent"

// Route maps an intent to the handler that serves it. Unknown labels go to retrieval.
func Route(label analysis.Label) HandlerName {
	switch label {
	case analysis.Greeting:
		return HandlerGreeting
	case analysis.HighIntent:
		return HandlerLead
	case analysis.Inquiry:
		return HandlerRetrieval
	default:
		return HandlerRetrieval
	}
}
