package collector

import (
	"context"

	"github.com/blockedby/tg-digest/internal/logger"
	"github.com/blockedby/tg-digest/internal/telegram"
)

// ParticipantsCounter reads the member count of a channel.
type ParticipantsCounter interface {
	GetParticipantsCount(ctx context.Context, ch *telegram.Channel) (int, bool, error)
}

// MemberProbe reads the current member count of the chat.
type MemberProbe struct {
	client ParticipantsCounter
	caller *Caller
	log    *logger.Logger
}

// NewMemberProbe creates a MemberProbe.
func NewMemberProbe(client ParticipantsCounter, caller *Caller, log *logger.Logger) *MemberProbe {
	if log == nil {
		log = logger.Get()
	}
	return &MemberProbe{client: client, caller: caller, log: log}
}

// FetchMemberCount returns the chat's member count. ok is false when the server
// omits it or the lookup fails.
func (p *MemberProbe) FetchMemberCount(ctx context.Context, chat *telegram.Channel) (count int, ok bool) {
	type result struct {
		count int
		ok    bool
	}

	res, err := Call(ctx, p.caller, func(ctx context.Context) (result, error) {
		n, present, err := p.client.GetParticipantsCount(ctx, chat)
		return result{count: n, ok: present}, err
	})
	if err != nil {
		p.log.Warn().Err(err).Int64("chat_id", chat.ID).Msg("member count unavailable")
		return 0, false
	}
	return res.count, res.ok
}
