package room

// dispatch 명령 타입별 핸들러 호출. 룸 고루틴에서만 실행된다.
func (r *Room) dispatch(m *member, cmd Command) Result {
	switch c := cmd.(type) {
	case *ChatCommand:
		return r.handleChat(m, c)
	case *CounterCommand:
		return r.handleCounter(m)
	case *UpdateNameCommand:
		return r.handleUpdateName(m, c)
	case *UpdateTicketsCommand:
		return r.handleUpdateTickets(c)
	case *StartWinnerSelectionCommand:
		return r.handleStartWinnerSelection(c)
	case *WinnerAnnounceCommand:
		return r.handleWinnerAnnounce(c)
	case *SetCommentsCommand:
		return r.handleSetComments(c)
	case *VoteCommand:
		return r.handleVote(m, c)
	case *GetCommentsCommand:
		return r.handleGetComments(m)
	case *GetUserVotesCommand:
		return r.handleGetUserVotes(m)
	default:
		return Rejected(ReasonUnrecognized)
	}
}

// =============================================================================
// Roster / Chat
// =============================================================================

func (r *Room) handleChat(m *member, c *ChatCommand) Result {
	msg := r.state.AppendChat(m.identity, c.Text, r.opts.Now())
	r.broadcast(ChatBroadcast{Type: MsgChat, Message: msg})

	if r.opts.Archiver != nil {
		r.opts.Archiver.Archive(r.Key(), msg)
	}
	return Applied()
}

func (r *Room) handleCounter(m *member) Result {
	res := r.state.Increment(m.identity)
	if res.Applied {
		r.broadcastRoster()
	}
	return res
}

func (r *Room) handleUpdateName(m *member, c *UpdateNameCommand) Result {
	contact := ""
	if c.Contact != nil {
		contact = *c.Contact
	}

	res := r.state.Rename(m.identity, *c.Name, contact)
	if res.Applied {
		r.broadcastRoster()
	}
	return res
}

// =============================================================================
// Tickets / Winner
// =============================================================================

func (r *Room) handleUpdateTickets(c *UpdateTicketsCommand) Result {
	if !r.opts.Features.Tickets {
		return Rejected(ReasonFeatureDisabled)
	}

	r.state.ReplaceTickets(c.EventID, c.Tickets)
	r.broadcast(TicketsUpdateMessage{
		Type:    MsgTicketsUpdate,
		EventID: c.EventID,
		Tickets: r.state.Tickets(c.EventID),
	})
	return Applied()
}

// handleStartWinnerSelection 실제 추첨은 DB 계층에서 한다. 여기서는 시작 신호만 중계.
func (r *Room) handleStartWinnerSelection(c *StartWinnerSelectionCommand) Result {
	if !r.opts.Features.Tickets {
		return Rejected(ReasonFeatureDisabled)
	}

	r.broadcast(WinnerSelectionStartMessage{
		Type:    MsgWinnerSelectionStart,
		EventID: c.EventID,
		Tickets: r.state.Tickets(c.EventID),
	})
	return Applied()
}

func (r *Room) handleWinnerAnnounce(c *WinnerAnnounceCommand) Result {
	if !r.opts.Features.Tickets {
		return Rejected(ReasonFeatureDisabled)
	}

	r.state.SetWinner(c.EventID, *c.Winner)
	r.broadcast(WinnerSelectedMessage{
		Type:    MsgWinnerSelected,
		EventID: c.EventID,
		Winner:  *c.Winner,
	})
	return Applied()
}

// =============================================================================
// Comments / Votes
// =============================================================================

func (r *Room) handleSetComments(c *SetCommentsCommand) Result {
	if !r.opts.Features.Comments {
		return Rejected(ReasonFeatureDisabled)
	}

	res := r.state.SeedComments(c.Comments)
	if res.Applied {
		r.broadcast(newCommentsMessage(r.state.Comments()))
	}
	return res
}

func (r *Room) handleVote(m *member, c *VoteCommand) Result {
	if !r.opts.Features.Comments {
		return Rejected(ReasonFeatureDisabled)
	}

	res := r.state.Vote(m.identity, c.CommentID, *c.IsUpvote)
	if res.Reason == ReasonUnknownComment {
		return res
	}

	// 중복 추천/미투표 취소는 상태만 그대로 두고 응답은 똑같이 보낸다
	r.broadcast(newCommentsMessage(r.state.Comments()))
	r.direct(m.peer, newUserVotesMessage(r.state.Votes(m.identity)))
	return res
}

func (r *Room) handleGetComments(m *member) Result {
	if !r.opts.Features.Comments {
		return Rejected(ReasonFeatureDisabled)
	}

	r.direct(m.peer, newCommentsMessage(r.state.Comments()))
	return Applied()
}

func (r *Room) handleGetUserVotes(m *member) Result {
	if !r.opts.Features.Comments {
		return Rejected(ReasonFeatureDisabled)
	}

	r.direct(m.peer, newUserVotesMessage(r.state.Votes(m.identity)))
	return Applied()
}
