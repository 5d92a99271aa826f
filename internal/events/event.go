// Package events turns DAO domain events from Kafka into notifications.
package events

import (
	"encoding/json"
	"time"
)

const (
	ProposalCreated   = "proposal.created"
	ProposalExecuted  = "proposal.executed"
	ProposalEnding    = "proposal.ending"
	VoteCast          = "vote.cast"
	MemberInvited     = "member.invited"
	MemberJoined      = "member.joined"
	MemberLeft        = "member.left"
	CommentAdded      = "comment.added"
	TokensTransferred = "tokens.transferred"
	SystemAnnounced   = "system.announcement"
)

// DomainEvent is the JSON envelope published on the events topic.
type DomainEvent struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	DAOID      string          `json:"daoId,omitempty"`
	ActorID    string          `json:"actorId,omitempty"`
	OccurredAt time.Time       `json:"occurredAt"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// Payload holds the fields any event type may carry in Data.
type Payload struct {
	DAOName        string   `json:"daoName,omitempty"`
	ProposalID     string   `json:"proposalId,omitempty"`
	ProposalTitle  string   `json:"proposalTitle,omitempty"`
	ProposalAuthor string   `json:"proposalAuthorId,omitempty"`
	Choice         string   `json:"choice,omitempty"`
	UserID         string   `json:"userId,omitempty"`
	Role           string   `json:"role,omitempty"`
	CommentID      string   `json:"commentId,omitempty"`
	Excerpt        string   `json:"excerpt,omitempty"`
	Mentions       []string `json:"mentions,omitempty"`
	FromUserID     string   `json:"fromUserId,omitempty"`
	ToUserID       string   `json:"toUserId,omitempty"`
	Amount         string   `json:"amount,omitempty"`
	Token          string   `json:"token,omitempty"`
	Recipients     []string `json:"recipients,omitempty"`
	Title          string   `json:"title,omitempty"`
	Message        string   `json:"message,omitempty"`
	Link           string   `json:"link,omitempty"`
}

func (e DomainEvent) Payload() (Payload, error) {
	var p Payload
	if len(e.Data) == 0 {
		return p, nil
	}
	err := json.Unmarshal(e.Data, &p)
	return p, err
}
