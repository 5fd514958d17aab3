// Package models holds the gateway's domain types: the rows the row store
// persists and the blob the KV store carries as a session. None of these
// types know how they are stored; that is db's and sessionmgr's job.
package models

import "time"

// Tier is the admission class of a principal. The set is closed and
// totally ordered; no subtype polymorphism is needed across it.
type Tier string

const (
	TierAnonymous Tier = "anonymous"
	TierFree      Tier = "free"
	TierPremium   Tier = "premium"
	TierEnterprise Tier = "enterprise"
)

var tierRank = map[Tier]int{
	TierAnonymous:  0,
	TierFree:       1,
	TierPremium:    2,
	TierEnterprise: 3,
}

// AtLeast reports whether t meets or exceeds min in the tier ordering.
func (t Tier) AtLeast(min Tier) bool {
	return tierRank[t] >= tierRank[min]
}

// User is an account row. A user with DeletedAt set is logically gone;
// any live session referencing it must be destroyed on next use.
type User struct {
	ID            string
	Email         string
	PasswordHash  string
	Tier          Tier
	EmailVerified bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeletedAt     *time.Time
}

func (u *User) IsLive() bool {
	return u != nil && u.DeletedAt == nil
}

// Principal is the carried identity of an authenticated (or anonymous)
// caller, bound into the opaque session blob and read back on resolve.
type Principal struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Tier   Tier   `json:"tier"`
}

// Conversation is a thread of turns owned by exactly one user.
type Conversation struct {
	ID             string
	UserID         string
	Title          string
	TotalTokens    int64
	SummaryContext string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastMessageAt  time.Time
	DeletedAt      *time.Time
	ArchivedAt     *time.Time
}

func (c *Conversation) IsActive() bool {
	return c != nil && c.DeletedAt == nil && c.ArchivedAt == nil
}

// Turn is one (user message, assistant response) pair. A failure turn has
// Success=false, no response, no tokens, and an error reason; it still
// counts against request-count quotas but not token quotas.
type Turn struct {
	ID                   string
	UserID               string
	SessionID            string
	ConversationID       string
	UserMessage          string
	AssistantResponse    string
	MessageLength        int
	ResponseLength       int
	InputTokens          int
	OutputTokens         int
	TokensUsed           int
	ActualCostMillicents int64
	Success              bool
	ErrorMessage         string
	DurationMS           int64
	CreatedAt            time.Time
}

// UserDayTokenBucket tracks a user's token and request usage for one
// calendar day. Uniqueness on (UserID, Date); incremented atomically via
// upsert after each successful turn.
type UserDayTokenBucket struct {
	UserID          string
	Date            string // YYYY-MM-DD
	TotalTokensUsed int64
	RequestCount    int64
}

// GlobalDayCostBucket tracks gateway-wide spend for one calendar day.
// UniqueUsers increments only on a user's first successful turn that day.
type GlobalDayCostBucket struct {
	Date               string
	TotalCostMillicents int64
	TotalRequests      int64
	TotalTokens        int64
	UniqueUsers        int64
}

// ConversationSummary is the list_active projection: enough to render a
// thread list without loading its full turn history.
type ConversationSummary struct {
	Conversation    Conversation
	MessageCount    int
	LastMessagePrev string
}
