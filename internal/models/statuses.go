package models

type UserStatus string
type Priority string
type Channel string
type NotificationType string

const (
	UserStatusPending   UserStatus = "pending"
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
	UserStatusBanned    UserStatus = "banned"

	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"

	ChannelRealtime Channel = "realtime"
	ChannelEmail    Channel = "email"
	ChannelInApp    Channel = "inApp"
)

const (
	TypeDAOInvite        NotificationType = "DAO_INVITE"
	TypeDAOJoined        NotificationType = "DAO_JOINED"
	TypeDAOLeft          NotificationType = "DAO_LEFT"
	TypeProposalCreated  NotificationType = "PROPOSAL_CREATED"
	TypeProposalVoted    NotificationType = "PROPOSAL_VOTED"
	TypeProposalExecuted NotificationType = "PROPOSAL_EXECUTED"
	TypeProposalEnding   NotificationType = "PROPOSAL_ENDING"
	TypeVoteCast         NotificationType = "VOTE_CAST"
	TypeCommentAdded     NotificationType = "COMMENT_ADDED"
	TypeMention          NotificationType = "MENTION"
	TypeTokensReceived   NotificationType = "TOKENS_RECEIVED"
	TypeTokensSent       NotificationType = "TOKENS_SENT"
	TypeSystem           NotificationType = "SYSTEM"
)

var notificationTypes = map[NotificationType]struct{}{
	TypeDAOInvite: {}, TypeDAOJoined: {}, TypeDAOLeft: {},
	TypeProposalCreated: {}, TypeProposalVoted: {}, TypeProposalExecuted: {}, TypeProposalEnding: {},
	TypeVoteCast: {}, TypeCommentAdded: {}, TypeMention: {},
	TypeTokensReceived: {}, TypeTokensSent: {}, TypeSystem: {},
}

func (t NotificationType) Valid() bool {
	_, ok := notificationTypes[t]
	return ok
}

func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

func (c Channel) Valid() bool {
	switch c {
	case ChannelRealtime, ChannelEmail, ChannelInApp:
		return true
	}
	return false
}

// AllChannels в порядке, в котором создаются задачи доставки.
var AllChannels = []Channel{ChannelRealtime, ChannelEmail, ChannelInApp}
