package models

import "time"

// DiscoveryPhase is the state of the per-project discovery Q&A loop.
type DiscoveryPhase string

const (
	DiscoveryNotStarted DiscoveryPhase = "not_started"
	DiscoveryInProgress DiscoveryPhase = "discovering"
	DiscoveryCompleted  DiscoveryPhase = "completed"
)

// PRDStatus tracks generation of the product requirements document.
type PRDStatus string

const (
	PRDNone       PRDStatus = "none"
	PRDGenerating PRDStatus = "generating"
	PRDAvailable  PRDStatus = "available"
	PRDFailed     PRDStatus = "failed"
)

// DiscoveryQuestion is one question/answer pair in the Socratic loop.
type DiscoveryQuestion struct {
	ID         int64
	Text       string
	Answer     string
	AskedAt    time.Time
	AnsweredAt *time.Time
}

// Answered reports whether this question has a recorded answer.
func (q DiscoveryQuestion) Answered() bool {
	return q.AnsweredAt != nil
}

// DiscoveryState is the per-project discovery record.
type DiscoveryState struct {
	ProjectID      int64
	State          DiscoveryPhase
	Questions      []DiscoveryQuestion
	PRDStatus      PRDStatus
	PRDContent     string
}

// PendingQuestion returns the single unanswered question, if any. The
// invariant "at most one unanswered question at a time" means there is
// never more than one candidate.
func (d DiscoveryState) PendingQuestion() *DiscoveryQuestion {
	for i := range d.Questions {
		if !d.Questions[i].Answered() {
			return &d.Questions[i]
		}
	}
	return nil
}
