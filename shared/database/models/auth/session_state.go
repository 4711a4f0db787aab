package auth

import "time"

// User types carried in a session snapshot
const (
	UserTypeInternal  = "internal"
	UserTypeAccount   = "account"
	UserTypePublisher = "publisher"
)

// Roles carried in a session snapshot
const (
	RoleAdmin     = "admin"
	RoleUser      = "user"
	RolePublisher = "publisher"
)

// SessionUser is the identity snapshot stored in a session
type SessionUser struct {
	UserID      string  `json:"userId"`
	Email       string  `json:"email"`
	Name        string  `json:"name"`
	UserType    string  `json:"userType"`
	Role        string  `json:"role"`
	AccountID   *string `json:"accountId,omitempty"`
	PublisherID *string `json:"publisherId,omitempty"`
	CompanyName string  `json:"companyName,omitempty"`
	Status      string  `json:"status,omitempty"`
}

// IsInternalAdmin reports whether the user may use administrative tooling
func (u SessionUser) IsInternalAdmin() bool {
	return u.UserType == UserTypeInternal && u.Role == RoleAdmin
}

// Impersonation is embedded in a session while an admin acts as another user
type Impersonation struct {
	IsActive          bool        `json:"isActive"`
	OriginalUser      SessionUser `json:"originalUser"`
	ImpersonatedUser  SessionUser `json:"impersonatedUser"`
	StartedAt         time.Time   `json:"startedAt"`
	Reason            string      `json:"reason"`
	LogID             string      `json:"logId"`
	RestrictedActions []string    `json:"restrictedActions"`
}

// SessionState is the JSON document persisted in user_sessions.session_data
type SessionState struct {
	SessionID     string         `json:"sessionId"`
	CreatedAt     time.Time      `json:"createdAt"`
	ExpiresAt     time.Time      `json:"expiresAt"`
	LastActivity  time.Time      `json:"lastActivity"`
	CurrentUser   SessionUser    `json:"currentUser"`
	Impersonation *Impersonation `json:"impersonation,omitempty"`
	IPAddress     string         `json:"ipAddress,omitempty"`
	UserAgent     string         `json:"userAgent,omitempty"`
}

// IsImpersonating reports whether an active impersonation is attached
func (s *SessionState) IsImpersonating() bool {
	return s != nil && s.Impersonation != nil && s.Impersonation.IsActive
}

// OwnerUserID returns the user who logged in, which differs from the current
// user while impersonating
func (s *SessionState) OwnerUserID() string {
	if s.IsImpersonating() {
		return s.Impersonation.OriginalUser.UserID
	}
	return s.CurrentUser.UserID
}
