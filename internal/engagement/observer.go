package engagement

// Event names an engagement outcome reported to an Observer.
type Event string

const (
	EventHydrationFailed  Event = "hydration_failed"
	EventVoteConfirmed    Event = "vote_confirmed"
	EventVoteRolledBack   Event = "vote_rolled_back"
	EventRequestDropped   Event = "request_dropped"
	EventCommentSubmitted Event = "comment_submitted"
	EventCommentFailed    Event = "comment_failed"
)

// Observer receives engagement outcomes, typically for metrics.
type Observer interface {
	RecordEngagementEvent(event Event)
}

type nopObserver struct{}

func (nopObserver) RecordEngagementEvent(Event) {}
