package curriculum

// Evidence is what is known about one learner and one item.
type Evidence struct {
	Submission *Submission
	Scores     []ScoreRecord
}

type completionRule func(Evidence) bool

// ruleFor returns the completion rule of an item kind. Every kind must be
// listed; kinds without learner evidence are passive and never complete.
func ruleFor(kind ItemKind) completionRule {
	switch kind {
	case KindExercise, KindPracticalWork:
		return submittedRule
	case KindGame:
		return playedRule
	case KindDocument, KindSlide, KindActivity:
		return passiveRule
	default:
		return passiveRule
	}
}

func submittedRule(ev Evidence) bool {
	return ev.Submission != nil && ev.Submission.Status != StatusDraft
}

func playedRule(ev Evidence) bool {
	return len(ev.Scores) > 0
}

func passiveRule(Evidence) bool {
	return false
}

// IsComplete decides whether a single item counts as complete for the
// learner. Unpublished items are never complete.
func IsComplete(item Item, ev Evidence) bool {
	if !item.Published {
		return false
	}
	return ruleFor(item.Kind)(ev)
}
