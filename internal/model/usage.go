package model

// TokenUsage tracks token consumption across pipeline phases.
type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Add accumulates another usage into this one.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}

// Total returns the combined token count.
func (u TokenUsage) Total() int64 {
	return u.InputTokens + u.OutputTokens
}
