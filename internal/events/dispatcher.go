package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"daohub_backend/internal/cache"
	"daohub_backend/internal/logger"
	"daohub_backend/internal/models"
	"daohub_backend/internal/services"
)

var (
	ErrUnknownEvent = errors.New("events: unknown event type")
	ErrInvalidEvent = errors.New("events: invalid event")
	// ErrFanOutFailed means no recipient of a fan-out got a notification.
	ErrFanOutFailed = errors.New("events: fan-out failed for every recipient")
)

// Handler processes one decoded event.
type Handler interface {
	Handle(ctx context.Context, ev DomainEvent) error
}

// Dispatcher maps domain events to notification calls. Successfully handled
// event IDs are remembered for dedupeTTL when a cache is configured.
type Dispatcher struct {
	notifications services.NotificationService
	membership    services.MembershipService
	cache         cache.Cache
	dedupeTTL     time.Duration
}

func NewDispatcher(notifications services.NotificationService, membership services.MembershipService, c cache.Cache) *Dispatcher {
	return &Dispatcher{
		notifications: notifications,
		membership:    membership,
		cache:         c,
		dedupeTTL:     24 * time.Hour,
	}
}

var governanceChannels = []models.Channel{models.ChannelRealtime, models.ChannelInApp, models.ChannelEmail}

func (d *Dispatcher) Handle(ctx context.Context, ev DomainEvent) error {
	if ev.Type == "" {
		return fmt.Errorf("%w: missing type", ErrInvalidEvent)
	}
	p, err := ev.Payload()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if d.seen(ctx, ev) {
		logger.CtxDebug(ctx, "duplicate event skipped", "event_id", ev.ID, "type", ev.Type)
		return nil
	}

	ctx = logger.WithCorrelationID(ctx, ev.ID)
	if err := d.dispatch(ctx, ev, p); err != nil {
		return err
	}
	d.markSeen(ctx, ev)
	return nil
}

func (d *Dispatcher) dispatch(ctx context.Context, ev DomainEvent, p Payload) error {
	meta := metadata(ev, p)

	switch ev.Type {
	case ProposalCreated:
		return d.toDAO(ctx, ev, models.TypeProposalCreated, "New proposal", p.ProposalTitle, services.CreateOptions{
			Priority: models.PriorityHigh, Channels: governanceChannels, Metadata: meta,
		})

	case ProposalExecuted:
		return d.toDAO(ctx, ev, models.TypeProposalExecuted, "Proposal executed", p.ProposalTitle, services.CreateOptions{
			Channels: governanceChannels, Metadata: meta,
		})

	case ProposalEnding:
		return d.toDAO(ctx, ev, models.TypeProposalEnding, "Voting ends soon", p.ProposalTitle, services.CreateOptions{
			Priority: models.PriorityHigh, Metadata: meta, TTL: 48 * time.Hour,
		})

	case VoteCast:
		if p.ProposalAuthor == "" || p.ProposalAuthor == ev.ActorID {
			return nil
		}
		msg := p.ProposalTitle
		if p.Choice != "" {
			msg = fmt.Sprintf("%s: %s", p.Choice, p.ProposalTitle)
		}
		return d.toUser(ctx, ev, p.ProposalAuthor, models.TypeVoteCast, "New vote on your proposal", msg, services.CreateOptions{
			Priority: models.PriorityLow, Metadata: meta,
		})

	case MemberInvited:
		if p.UserID == "" {
			return fmt.Errorf("%w: invite without userId", ErrInvalidEvent)
		}
		return d.toUser(ctx, ev, p.UserID, models.TypeDAOInvite, "You are invited to "+daoName(ev, p), "", services.CreateOptions{
			SenderID: actor(ev), Channels: governanceChannels, Metadata: meta,
		})

	case MemberJoined:
		userID := firstNonEmpty(p.UserID, ev.ActorID)
		if ev.DAOID == "" || userID == "" {
			return fmt.Errorf("%w: join without dao or user", ErrInvalidEvent)
		}
		if err := d.membership.Join(ctx, ev.DAOID, userID, p.Role); err != nil {
			return err
		}
		return d.fanOut(ctx, ev, []string{userID}, models.TypeDAOJoined, "New member joined "+daoName(ev, p), "", services.CreateOptions{
			Priority: models.PriorityLow, Metadata: meta,
		})

	case MemberLeft:
		userID := firstNonEmpty(p.UserID, ev.ActorID)
		if ev.DAOID == "" || userID == "" {
			return fmt.Errorf("%w: leave without dao or user", ErrInvalidEvent)
		}
		if err := d.membership.Leave(ctx, ev.DAOID, userID); err != nil {
			return err
		}
		return d.fanOut(ctx, ev, []string{userID}, models.TypeDAOLeft, "A member left "+daoName(ev, p), "", services.CreateOptions{
			Priority: models.PriorityLow, Metadata: meta,
		})

	case CommentAdded:
		return d.comment(ctx, ev, p, meta)

	case TokensTransferred:
		return d.transfer(ctx, ev, p, meta)

	case SystemAnnounced:
		opts := services.CreateOptions{Priority: models.PriorityHigh, Metadata: meta}
		if len(p.Recipients) > 0 {
			res, err := d.notifications.FanOut(ctx, p.Recipients, models.TypeSystem, p.Title, p.Message, opts)
			return fanOutErr(ctx, ev, res, err)
		}
		if ev.DAOID == "" {
			if p.Title == "" {
				return fmt.Errorf("%w: announcement without title", ErrInvalidEvent)
			}
			d.notifications.Announce(ctx, services.Announcement{Title: p.Title, Message: p.Message, Metadata: meta})
			return nil
		}
		return d.toDAO(ctx, ev, models.TypeSystem, p.Title, p.Message, opts)
	}

	return fmt.Errorf("%w: %s", ErrUnknownEvent, ev.Type)
}

func (d *Dispatcher) comment(ctx context.Context, ev DomainEvent, p Payload, meta map[string]interface{}) error {
	mentioned := make(map[string]struct{}, len(p.Mentions))
	var mentions []string
	for _, id := range p.Mentions {
		if id == "" || id == ev.ActorID {
			continue
		}
		if _, dup := mentioned[id]; dup {
			continue
		}
		mentioned[id] = struct{}{}
		mentions = append(mentions, id)
	}

	if len(mentions) > 0 {
		res, err := d.notifications.FanOut(ctx, mentions, models.TypeMention, "You were mentioned", p.Excerpt, services.CreateOptions{
			SenderID: actor(ev), Priority: models.PriorityHigh, Metadata: meta,
		})
		if err := fanOutErr(ctx, ev, res, err); err != nil {
			return err
		}
	}

	// A mentioned author already got the mention.
	author := p.ProposalAuthor
	if _, ok := mentioned[author]; ok || author == "" || author == ev.ActorID {
		return nil
	}
	return d.toUser(ctx, ev, author, models.TypeCommentAdded, "New comment on "+p.ProposalTitle, p.Excerpt, services.CreateOptions{
		SenderID: actor(ev), Metadata: meta,
	})
}

func (d *Dispatcher) transfer(ctx context.Context, ev DomainEvent, p Payload, meta map[string]interface{}) error {
	if p.FromUserID == "" && p.ToUserID == "" {
		return fmt.Errorf("%w: transfer without parties", ErrInvalidEvent)
	}
	amount := p.Amount + " " + p.Token
	if p.ToUserID != "" {
		err := d.toUser(ctx, ev, p.ToUserID, models.TypeTokensReceived, "Tokens received", "You received "+amount, services.CreateOptions{
			Channels: governanceChannels, Metadata: meta,
		})
		if err != nil {
			return err
		}
	}
	if p.FromUserID != "" {
		return d.toUser(ctx, ev, p.FromUserID, models.TypeTokensSent, "Tokens sent", "You sent "+amount, services.CreateOptions{
			Priority: models.PriorityLow, Metadata: meta,
		})
	}
	return nil
}

func (d *Dispatcher) toDAO(ctx context.Context, ev DomainEvent, typ models.NotificationType, title, message string, opts services.CreateOptions) error {
	if ev.ActorID != "" {
		return d.fanOut(ctx, ev, []string{ev.ActorID}, typ, title, message, opts)
	}
	return d.fanOut(ctx, ev, nil, typ, title, message, opts)
}

func (d *Dispatcher) fanOut(ctx context.Context, ev DomainEvent, exclude []string, typ models.NotificationType, title, message string, opts services.CreateOptions) error {
	if ev.DAOID == "" {
		return fmt.Errorf("%w: %s without daoId", ErrInvalidEvent, ev.Type)
	}
	res, err := d.notifications.FanOutToDAO(ctx, ev.DAOID, exclude, typ, title, message, opts)
	return fanOutErr(ctx, ev, res, err)
}

func (d *Dispatcher) toUser(ctx context.Context, ev DomainEvent, userID string, typ models.NotificationType, title, message string, opts services.CreateOptions) error {
	_, err := d.notifications.Create(ctx, userID, typ, title, message, opts)
	if err != nil {
		logger.CtxWarn(ctx, "event notification failed", "event_id", ev.ID, "type", ev.Type, "recipient_id", userID, "error", err)
	}
	return err
}

// fanOutErr logs partial failures. A fan-out where every recipient failed is
// returned so the event is retried and not marked seen.
func fanOutErr(ctx context.Context, ev DomainEvent, res *services.FanOutResult, err error) error {
	if err != nil {
		return err
	}
	if res == nil {
		return nil
	}
	if res.Created == 0 && res.Failed > 0 {
		return fmt.Errorf("%w: %s (%d recipients): %s", ErrFanOutFailed, ev.Type, res.Failed, sampleFailure(res.Failures))
	}
	if res.Failed > 0 {
		logger.CtxWarn(ctx, "event fan-out partially failed",
			"event_id", ev.ID, "type", ev.Type, "created", res.Created, "failed", res.Failed)
	}
	return nil
}

// sampleFailure picks the lexically first recipient failure for the error text.
func sampleFailure(failures map[string]string) string {
	first := ""
	for id := range failures {
		if first == "" || id < first {
			first = id
		}
	}
	if first == "" {
		return "unknown error"
	}
	return first + ": " + failures[first]
}

func seenKey(id string) string {
	return "events:seen:" + id
}

// seen reports whether ev was already handled successfully.
func (d *Dispatcher) seen(ctx context.Context, ev DomainEvent) bool {
	if d.cache == nil || ev.ID == "" {
		return false
	}
	ok, err := d.cache.Exists(ctx, seenKey(ev.ID))
	return err == nil && ok
}

func (d *Dispatcher) markSeen(ctx context.Context, ev DomainEvent) {
	if d.cache == nil || ev.ID == "" {
		return
	}
	if err := d.cache.Set(ctx, seenKey(ev.ID), "1", d.dedupeTTL); err != nil {
		logger.CtxDebug(ctx, "event dedupe marker write failed", "event_id", ev.ID, "error", err)
	}
}

func metadata(ev DomainEvent, p Payload) map[string]interface{} {
	m := map[string]interface{}{"eventId": ev.ID, "eventType": ev.Type}
	set := func(k, v string) {
		if v != "" {
			m[k] = v
		}
	}
	set("daoId", ev.DAOID)
	set("actorId", ev.ActorID)
	set("proposalId", p.ProposalID)
	set("commentId", p.CommentID)
	set("link", p.Link)
	return m
}

func daoName(ev DomainEvent, p Payload) string {
	return firstNonEmpty(p.DAOName, "DAO "+ev.DAOID)
}

func actor(ev DomainEvent) *string {
	if ev.ActorID == "" {
		return nil
	}
	id := ev.ActorID
	return &id
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
