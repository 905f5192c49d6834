package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/polisai/hookgate/pkg/domain"
	"github.com/polisai/hookgate/pkg/engine"
)

const maxBodyBytes = 64 << 10

type initializeRequest struct {
	Admin *domain.Key `json:"admin,omitempty"`
}

type proposeRequest struct {
	ProposalID *uint64     `json:"proposal_id"`
	HookID     domain.Key  `json:"hook_id"`
	AuditHash  domain.Hash `json:"audit_hash"`
}

type voteRequest struct {
	TokenAccount domain.Key `json:"token_account"`
	VoteFor      *bool      `json:"vote_for"`
}

// proposalView is a proposal plus its derived lifecycle fields.
type proposalView struct {
	*domain.HookProposal
	State        domain.ProposalState `json:"state"`
	VotingEndsAt time.Time            `json:"voting_ends_at"`
}

type finalizeResponse struct {
	Proposal proposalView `json:"proposal"`
	Approved bool         `json:"approved"`
}

type membershipResponse struct {
	HookID      domain.Key `json:"hook_id"`
	Whitelisted bool       `json:"whitelisted"`
}

func (s *Server) view(p *domain.HookProposal) proposalView {
	return proposalView{
		HookProposal: p,
		State:        s.gov.ProposalState(p),
		VotingEndsAt: p.VotingEndsAt(s.gov.Params().VotingWindow),
	}
}

// decodeBody reads a JSON object into dst. An empty body is accepted only
// when optional is set.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, optional bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: decode request body: %v", domain.ErrInvalidArgument, err)
	}
	return nil
}

func proposalID(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: proposal id must be an unsigned integer", domain.ErrInvalidArgument)
	}
	return id, nil
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	var req initializeRequest
	if err := decodeBody(w, r, &req, true); err != nil {
		writeError(w, r, err, "")
		return
	}

	// The caller signs for the admin role; the body may only restate it.
	admin, err := requireCaller(r)
	if err != nil {
		writeError(w, r, err, IdentityHeader+" is required")
		return
	}
	if req.Admin != nil && *req.Admin != admin {
		writeError(w, r, domain.ErrUnauthorized, "admin must be the calling identity")
		return
	}

	wl, err := s.gov.Initialize(r.Context(), admin)
	if err != nil {
		writeError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusCreated, wl)
}

func (s *Server) handleWhitelist(w http.ResponseWriter, r *http.Request) {
	wl, err := s.gov.Whitelist(r.Context())
	if err != nil {
		writeError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, wl)
}

func (s *Server) handlePropose(w http.ResponseWriter, r *http.Request) {
	caller, err := requireCaller(r)
	if err != nil {
		writeError(w, r, err, IdentityHeader+" is required")
		return
	}

	var req proposeRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		writeError(w, r, err, "")
		return
	}
	if req.ProposalID == nil {
		writeError(w, r, domain.ErrInvalidArgument, "proposal_id is required")
		return
	}

	p, err := s.gov.Propose(r.Context(), engine.ProposeRequest{
		ProposalID: *req.ProposalID,
		HookID:     req.HookID,
		AuditHash:  req.AuditHash,
		Proposer:   caller,
	})
	if err != nil {
		writeError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusCreated, s.view(p))
}

func (s *Server) handleProposals(w http.ResponseWriter, r *http.Request) {
	ps, err := s.gov.Proposals(r.Context())
	if err != nil {
		writeError(w, r, err, "")
		return
	}
	views := make([]proposalView, 0, len(ps))
	for _, p := range ps {
		views = append(views, s.view(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"proposals": views})
}

func (s *Server) handleProposal(w http.ResponseWriter, r *http.Request) {
	id, err := proposalID(r)
	if err != nil {
		writeError(w, r, err, "")
		return
	}
	p, err := s.gov.Proposal(r.Context(), id)
	if err != nil {
		writeError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, s.view(p))
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	caller, err := requireCaller(r)
	if err != nil {
		writeError(w, r, err, IdentityHeader+" is required")
		return
	}
	id, err := proposalID(r)
	if err != nil {
		writeError(w, r, err, "")
		return
	}

	var req voteRequest
	if err := decodeBody(w, r, &req, false); err != nil {
		writeError(w, r, err, "")
		return
	}
	if req.VoteFor == nil {
		writeError(w, r, domain.ErrInvalidArgument, "vote_for is required")
		return
	}

	p, err := s.gov.Vote(r.Context(), engine.VoteRequest{
		ProposalID:   id,
		Voter:        caller,
		TokenAccount: req.TokenAccount,
		VoteFor:      *req.VoteFor,
	})
	if err != nil {
		writeError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, s.view(p))
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	id, err := proposalID(r)
	if err != nil {
		writeError(w, r, err, "")
		return
	}
	res, err := s.gov.Finalize(r.Context(), id)
	if err != nil {
		writeError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, finalizeResponse{Proposal: s.view(res.Proposal), Approved: res.Approved})
}

func (s *Server) handleHook(w http.ResponseWriter, r *http.Request) {
	hook, err := domain.ParseKey(r.PathValue("hookId"))
	if err != nil {
		writeError(w, r, err, "")
		return
	}

	if r.URL.Query().Get("require") == "true" {
		if err := s.gov.RequireMembership(r.Context(), hook); err != nil {
			writeError(w, r, err, "")
			return
		}
		writeJSON(w, http.StatusOK, membershipResponse{HookID: hook, Whitelisted: true})
		return
	}

	member, err := s.gov.CheckMembership(r.Context(), hook)
	if err != nil {
		writeError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, membershipResponse{HookID: hook, Whitelisted: member})
}
