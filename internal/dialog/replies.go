package dialog

import "fmt"

// Canned assistant replies.
const (
	Farewell   = "Goodbye! 👋 Please refresh the page to start a new conversation."
	Unknown    = "I don't know the answer. Would you like to train me? (Authenticated users only)"
	Continuing = "Okay, let's continue our conversation."
)

// Learned confirms that question was taught.
func Learned(question string) string {
	return fmt.Sprintf("Thank you! I've learned: '%s'", question)
}

// TrainingPrompt heads the training form shown to an authorized operator.
func TrainingPrompt(question string) string {
	return fmt.Sprintf("Training for question: '%s'", question)
}
