package models

// InvocationRequest is one prompt handed to the Claude CLI.
type InvocationRequest struct {
	Prompt       string
	SessionToken string // Continuation token; empty starts a new session

	// Correlation metadata exported to the child's environment.
	Channel   string
	ThreadTS  string
	MessageTS string
}

// HasSession reports whether the request resumes an existing session.
func (r InvocationRequest) HasSession() bool {
	return r.SessionToken != ""
}

// InvocationResult is the text and continuation token extracted from a
// finished CLI run.
type InvocationResult struct {
	Text         string
	SessionToken string
	// Structured is false when no JSON record was found and Text is the raw output.
	Structured bool
	// IsError mirrors the record's is_error flag.
	IsError bool
}
