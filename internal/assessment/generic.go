package assessment

// genericQuestions is the last-resort question set used when neither the
// generation service nor a topic's bank can fill a test.
func genericQuestions() []Question {
	return []Question{
		{
			ID:           "generic-1",
			Prompt:       "What does an AI system mostly learn from?",
			Options:      []string{"Data and examples", "Its own feelings", "Magic", "Nothing"},
			CorrectIndex: 0,
			Explanation:  "AI systems learn patterns from the data and examples they are trained on.",
		},
		{
			ID:           "generic-2",
			Prompt:       "An AI tool gives you an answer. What is the best next step?",
			Options:      []string{"Share it right away", "Check it with a trusted source", "Assume it is correct", "Ignore all sources"},
			CorrectIndex: 1,
			Explanation:  "AI can be wrong, so important answers should be checked.",
		},
		{
			ID:           "generic-3",
			Prompt:       "Which of these should you avoid typing into a public AI chatbot?",
			Options:      []string{"A homework topic", "Your password", "A question about planets", "A poem idea"},
			CorrectIndex: 1,
			Explanation:  "Never share passwords or private details with AI tools.",
		},
		{
			ID:           "generic-4",
			Prompt:       "Why can AI outputs be unfair to some groups of people?",
			Options:      []string{"The training data can be unbalanced", "Computers dislike people", "AI is always fair", "Screens are too small"},
			CorrectIndex: 0,
			Explanation:  "Models repeat the gaps and stereotypes present in their training data.",
		},
		{
			ID:           "generic-5",
			Prompt:       "Who is responsible for how AI help is used in your schoolwork?",
			Options:      []string{"The AI", "Nobody", "You", "The internet provider"},
			CorrectIndex: 2,
			Explanation:  "People stay responsible for checking and honestly using AI output.",
		},
	}
}
