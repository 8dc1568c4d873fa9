package handler

import (
	"errors"
	"time"

	"github.com/lehau007/NetworkProgramming/internal/match"
	"github.com/lehau007/NetworkProgramming/internal/protocol"
)

// Challenge validates and registers a challenge against another user.
func (d *Deps) Challenge(sess any, req *protocol.Request) protocol.M {
	entry, _, ok := d.caller(sess)
	if !ok {
		return protocol.Error(protocol.ErrInvalidSession, "Invalid or expired session")
	}
	if req.TargetUsername == "" {
		return protocol.Error(protocol.ErrMissingField, "target_username is required")
	}
	if req.TargetUsername == entry.Username {
		return protocol.Error(protocol.ErrInvalidMessage, "Cannot challenge yourself")
	}

	ctx, cancel := d.ctx()
	defer cancel()

	target, err := d.Users.ByUsername(ctx, req.TargetUsername)
	if err != nil {
		return protocol.Error(protocol.ErrDatabase, "Failed to look up user")
	}
	if target == nil {
		return protocol.Error(protocol.ErrUserNotFound, "User not found: "+req.TargetUsername)
	}
	if !d.Sessions.IsUserConnected(target.UserID) {
		return protocol.Error(protocol.ErrUserOffline, "User is not online: "+req.TargetUsername)
	}
	if d.Matches.IsUserInGame(target.UserID) {
		return protocol.Error(protocol.ErrUserBusy, "User is already in a game")
	}
	if d.Matches.IsUserInGame(entry.UserID) {
		return protocol.Error(protocol.ErrAlreadyInGame, "You are already in a game")
	}

	id, err := d.Matches.CreateChallenge(entry.UserID, entry.Username, target.UserID, target.Username, req.PreferredColor)
	if err != nil {
		return protocol.Error(protocol.ErrPendingChallenge, "A challenge is already pending")
	}

	return protocol.M{
		"type":            protocol.TypeChallengeSent,
		"challenge_id":    id,
		"target_username": target.Username,
		"preferred_color": req.PreferredColor,
		"timestamp":       time.Now().Unix(),
	}
}

// AIChallenge starts a game against the built-in adversary. The
// AI_CHALLENGE_SENT acknowledgement is written before MATCH_STARTED.
func (d *Deps) AIChallenge(sess any, req *protocol.Request) protocol.M {
	entry, sock, ok := d.caller(sess)
	if !ok {
		return protocol.Error(protocol.ErrInvalidSession, "Invalid or expired session")
	}
	if d.Matches.IsUserInGame(entry.UserID) {
		return protocol.Error(protocol.ErrAlreadyInGame, "You are already in a game")
	}
	if d.Matches.HasPendingChallenge(entry.UserID) {
		return protocol.Error(protocol.ErrPendingChallenge, "A challenge is already pending")
	}

	depth := req.Depth
	if depth <= 0 {
		depth = d.AIDepth
	}

	sent := protocol.M{
		"type":      protocol.TypeAIChallengeSent,
		"depth":     depth,
		"timestamp": time.Now().Unix(),
	}
	if err := sock.SendText(sent.Encode()); err != nil {
		return nil
	}

	ctx, cancel := d.ctx()
	defer cancel()

	if _, err := d.Matches.AcceptAIChallenge(ctx, entry.UserID, entry.Username, req.PreferredColor, depth); err != nil {
		return protocol.M{
			"type":   protocol.TypeAIChallengeFailed,
			"reason": "Failed to start game",
		}
	}
	return nil
}

// AcceptChallenge starts the game for a pending challenge addressed to
// the caller. MATCH_STARTED reaches both players via broadcast.
func (d *Deps) AcceptChallenge(sess any, req *protocol.Request) protocol.M {
	entry, _, ok := d.caller(sess)
	if !ok {
		return protocol.Error(protocol.ErrInvalidSession, "Invalid or expired session")
	}
	if req.ChallengeID == "" {
		return protocol.Error(protocol.ErrMissingField, "challenge_id is required")
	}

	c, ok := d.Matches.Challenge(req.ChallengeID)
	if !ok {
		return protocol.Error(protocol.ErrChallengeMissing, "Challenge not found")
	}
	if c.TargetID != entry.UserID {
		return protocol.Error(protocol.ErrInvalidChallenge, "Challenge is not addressed to you")
	}

	ctx, cancel := d.ctx()
	defer cancel()

	if _, err := d.Matches.AcceptChallenge(ctx, req.ChallengeID); err != nil {
		switch {
		case errors.Is(err, match.ErrChallengeNotFound):
			return protocol.Error(protocol.ErrChallengeMissing, "Challenge not found")
		case errors.Is(err, match.ErrAlreadyInGame):
			return protocol.Error(protocol.ErrAlreadyInGame, "A player is already in a game")
		default:
			return protocol.Error(protocol.ErrDatabase, "Failed to start game")
		}
	}
	return nil
}

// DeclineChallenge refuses a challenge addressed to the caller.
func (d *Deps) DeclineChallenge(sess any, req *protocol.Request) protocol.M {
	entry, _, ok := d.caller(sess)
	if !ok {
		return protocol.Error(protocol.ErrInvalidSession, "Invalid or expired session")
	}
	if req.ChallengeID == "" {
		return protocol.Error(protocol.ErrMissingField, "challenge_id is required")
	}

	c, ok := d.Matches.Challenge(req.ChallengeID)
	if !ok {
		return protocol.Error(protocol.ErrChallengeMissing, "Challenge not found")
	}
	if c.TargetID != entry.UserID {
		return protocol.Error(protocol.ErrInvalidChallenge, "Challenge is not addressed to you")
	}
	if err := d.Matches.DeclineChallenge(req.ChallengeID); err != nil {
		return protocol.Error(protocol.ErrChallengeMissing, "Challenge not found")
	}

	return protocol.M{
		"type":         protocol.TypeChallengeDeclinedResp,
		"challenge_id": req.ChallengeID,
		"success":      true,
	}
}

// CancelChallenge withdraws a challenge the caller issued.
func (d *Deps) CancelChallenge(sess any, req *protocol.Request) protocol.M {
	entry, _, ok := d.caller(sess)
	if !ok {
		return protocol.Error(protocol.ErrInvalidSession, "Invalid or expired session")
	}
	if req.ChallengeID == "" {
		return protocol.Error(protocol.ErrMissingField, "challenge_id is required")
	}

	c, ok := d.Matches.Challenge(req.ChallengeID)
	if !ok {
		return protocol.Error(protocol.ErrChallengeMissing, "Challenge not found")
	}
	if c.ChallengerID != entry.UserID {
		return protocol.Error(protocol.ErrInvalidChallenge, "Challenge was not issued by you")
	}
	if err := d.Matches.CancelChallenge(req.ChallengeID); err != nil {
		return protocol.Error(protocol.ErrChallengeMissing, "Challenge not found")
	}

	return protocol.M{
		"type":         protocol.TypeChallengeCancelledResp,
		"challenge_id": req.ChallengeID,
		"success":      true,
	}
}
