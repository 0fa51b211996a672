// Package models defines the database row types shared between the
// repository layer and the rest of the service.
package models

import "time"

// SystemConfig is a key-value configuration entry.
type SystemConfig struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}

// Well-known system_config keys for the SIP server connection.
const (
	ConfigSIPServerDomain = "sip_server_domain"
	ConfigSIPProtocol     = "sip_protocol"
	ConfigSIPServerPort   = "sip_server_port"
)

// Agent represents a console operator account. SIPNumber and SIPPassword
// are the operator's softphone extension credentials on the PBX; they are
// distinct from the console login password.
type Agent struct {
	ID           int64
	Username     string
	PasswordHash string
	DisplayName  string
	Role         string // agent, supervisor, admin
	SIPNumber    string
	SIPPassword  string
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Agent roles.
const (
	RoleAgent      = "agent"
	RoleSupervisor = "supervisor"
	RoleAdmin      = "admin"
)

// Lead represents a CRM lead that agents dial.
type Lead struct {
	ID          int64
	PhoneNumber string
	FirstName   string
	LastName    string
	Company     string
	Status      string // new, contacted, callback, closed, dead
	AssignedTo  *int64 // agent ID, nil when unassigned
	Notes       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CallLog is the disposition record an agent files after a call attempt.
// Duration is in whole seconds from answer to disposition and is nil when
// the call never connected.
type CallLog struct {
	ID          int64
	AgentID     int64
	LeadID      *int64
	PhoneNumber string
	Direction   string // outbound, inbound
	Status      string // SALE, NOT_INTERESTED, CALLBACK, VOICEMAIL, ERROR
	Notes       string
	Duration    *int
	CreatedAt   time.Time
}

// Disposition statuses for call logs.
const (
	DispositionSale          = "SALE"
	DispositionNotInterested = "NOT_INTERESTED"
	DispositionCallback      = "CALLBACK"
	DispositionVoicemail     = "VOICEMAIL"
	DispositionError         = "ERROR"
)

// ValidDisposition reports whether s is a recognized disposition status.
func ValidDisposition(s string) bool {
	switch s {
	case DispositionSale, DispositionNotInterested, DispositionCallback,
		DispositionVoicemail, DispositionError:
		return true
	}
	return false
}

// Callback is a scheduled follow-up call created from a CALLBACK disposition.
type Callback struct {
	ID          int64
	AgentID     int64
	LeadID      *int64
	PhoneNumber string
	DueAt       time.Time
	Completed   bool
	Notes       string
	CreatedAt   time.Time
}
