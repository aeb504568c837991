package session

type Role string

const (
	RoleUser      Role = "User"
	RoleAssistant Role = "Assistant"
)

const turnSeparator = "\n\n"

// AppendTurn returns transcript with one more turn. The first turn of an
// empty transcript carries no separator.
func AppendTurn(transcript string, role Role, text string) string {
	turn := string(role) + ": " + text
	if transcript == "" {
		return turn
	}
	return transcript + turnSeparator + turn
}

// BuildPrompt renders the model input for a new user message.
func BuildPrompt(prior, message string) string {
	return AppendTurn(prior, RoleUser, message)
}
