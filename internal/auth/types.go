package auth

// User is the account record returned by the auth gateway.
type User struct {
	ID        string  `json:"id"`
	Email     string  `json:"email"`
	FullName  *string `json:"full_name"`
	CreatedAt string  `json:"created_at"`
}

// Name returns the display name, falling back to the email address.
func (u User) Name() string {
	if u.FullName != nil && *u.FullName != "" {
		return *u.FullName
	}
	return u.Email
}

// Session is the token response issued on sign-in and sign-up.
type Session struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	User        User   `json:"user"`
}

// SessionInfo is the result of a session check. User is nil when there is no
// active session.
type SessionInfo struct {
	Authenticated bool  `json:"authenticated"`
	User          *User `json:"user"`
}

// Error is a user-facing rejection from the gateway or from input validation.
type Error struct {
	Message string `json:"message"`
}

func (e *Error) Error() string { return e.Message }

// Result carries either a session or a user-facing error. Exactly one is set.
type Result struct {
	Session *Session
	Error   *Error
}

// Registration is the sign-up payload. Empty preference fields are omitted.
type Registration struct {
	Email        string `json:"email" validate:"required,email"`
	Password     string `json:"password" validate:"required,min=8,max=100"`
	FullName     string `json:"full_name,omitempty" validate:"max=255"`
	Persona      string `json:"persona,omitempty"`
	SkillLevel   string `json:"skill_level,omitempty"`
	LearningPace string `json:"learning_pace,omitempty"`
}

type credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}
