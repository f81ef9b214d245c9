package records

// ReferenceScores returns the demo rows for the "llm_scores" table.
func ReferenceScores() []Record {
	return []Record{
		{
			"model_name":     "GPT-4",
			"provider":       "OpenAI",
			"context_window": float64(128000),
			"score":          95.5,
		},
		{
			"model_name":     "Claude 3 Opus",
			"provider":       "Anthropic",
			"context_window": float64(200000),
			"score":          96.0,
		},
		{
			"model_name":     "Llama 3 70B",
			"provider":       "Meta",
			"context_window": float64(8192),
			"score":          89.5,
		},
		{
			"model_name":     "Gemini 1.5 Pro",
			"provider":       "Google",
			"context_window": float64(1000000),
			"score":          94.8,
		},
	}
}
