// Package models defines the domain types shared across Ansuz services.
package models

// Actor is a verified identity-provider account.
type Actor struct {
	ID       string `json:"localId"`
	Email    string `json:"email"`
	Name     string `json:"displayName,omitempty"`
	Disabled bool   `json:"disabled,omitempty"`
}

// MemberRecord is one row of the membership directory, keyed by the
// header row of the sheet.
type MemberRecord map[string]string

// StudentID returns the member's student number column.
func (m MemberRecord) StudentID() string {
	return m["num"]
}

// Permitted reports whether the member holds the admin permission flag.
func (m MemberRecord) Permitted() bool {
	return m["permit"] == "1"
}

// AuditEntry is a fire-and-forget audit log record.
type AuditEntry struct {
	Message   string `json:"message"`
	IP        string `json:"ip"`
	UserAgent string `json:"userAgent"`
}
