package questions

// Bank is a fixed catalogue of questions grouped by type. It is read-only
// after construction and safe for concurrent use.
type Bank struct {
	byType map[Type][]Question
}

// NewBank returns a bank holding qs. Questions with an unknown type are
// filed as behavioral.
func NewBank(qs []Question) *Bank {
	b := &Bank{byType: make(map[Type][]Question)}
	for _, q := range qs {
		if _, ok := ParseType(string(q.Type)); !ok {
			q.Type = TypeBehavioral
		}
		if q.Difficulty == "" {
			q.Difficulty = "medium"
		}
		if q.ExpectedSeconds <= 0 {
			q.ExpectedSeconds = defaultExpectedSeconds(q.Type)
		}
		b.byType[q.Type] = append(b.byType[q.Type], q)
	}
	return b
}

// DefaultBank returns the built-in catalogue.
func DefaultBank() *Bank {
	return NewBank(builtin)
}

// Pick returns up to n questions, rotating through [Types] so the result
// mixes question types. Questions for which skip returns true are passed
// over. The selection is deterministic.
func (b *Bank) Pick(n int, skip func(Question) bool) []Question {
	out := make([]Question, 0, n)
	next := make(map[Type]int, len(Types))
	for len(out) < n {
		progressed := false
		for _, t := range Types {
			if len(out) == n {
				break
			}
			pool := b.byType[t]
			for next[t] < len(pool) {
				q := pool[next[t]]
				next[t]++
				if skip != nil && skip(q) {
					continue
				}
				out = append(out, q)
				progressed = true
				break
			}
		}
		if !progressed {
			break
		}
	}
	return out
}

var builtin = []Question{
	{
		Text: "Tell me about a time you faced a significant challenge at work. How did you handle it?",
		Type: TypeBehavioral,
		Tips: []string{"Use the STAR structure", "Finish with a measurable result"},
	},
	{
		Text: "Describe a situation where you disagreed with a teammate. What did you do?",
		Type: TypeBehavioral,
		Tips: []string{"Focus on how you resolved it", "Avoid blaming"},
	},
	{
		Text: "Tell me about a mistake you made and what you learned from it.",
		Type: TypeBehavioral,
		Tips: []string{"Own the mistake", "Show what changed afterwards"},
	},
	{
		Text:       "Walk me through the architecture of a system you built recently. What trade-offs did you make?",
		Type:       TypeTechnical,
		Difficulty: "hard",
		Tips:       []string{"Start from the requirements", "Name the alternatives you rejected"},
	},
	{
		Text: "How do you approach debugging a production issue you cannot reproduce locally?",
		Type: TypeTechnical,
		Tips: []string{"Describe your process step by step", "Mention observability"},
	},
	{
		Text: "How do you decide when code is ready to ship?",
		Type: TypeTechnical,
		Tips: []string{"Cover testing and review", "Mention rollback plans"},
	},
	{
		Text: "Imagine a key deadline is a week away and a critical dependency slips. What do you do?",
		Type: TypeSituational,
		Tips: []string{"Prioritise", "Communicate early"},
	},
	{
		Text: "A stakeholder asks for a feature you believe is the wrong solution. How do you respond?",
		Type: TypeSituational,
		Tips: []string{"Seek the underlying need", "Offer alternatives"},
	},
	{
		Text: "Tell me about a time you led a project or initiative without formal authority.",
		Type: TypeLeadership,
		Tips: []string{"Explain how you built buy-in", "Quantify the outcome"},
	},
	{
		Text: "Describe how you have helped a colleague grow.",
		Type: TypeLeadership,
		Tips: []string{"Be specific about what you did", "Describe their progress"},
	},
	{
		Text:       "What kind of team environment helps you do your best work?",
		Type:       TypeCultureFit,
		Difficulty: "easy",
		Tips:       []string{"Be honest", "Connect it to the company's values"},
	},
	{
		Text:       "Why are you interested in this role?",
		Type:       TypeCultureFit,
		Difficulty: "easy",
		Tips:       []string{"Reference the job description", "Link it to your goals"},
	},
}
