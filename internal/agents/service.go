package agents

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("agent not found")
	ErrInactive        = errors.New("agent is inactive")
	ErrInvalidArgument = errors.New("invalid argument")
)

// Registry resolves internal agents to the provider agent that places calls.
type Registry struct {
	repo Repository
}

func NewRegistry(repo Repository) *Registry { return &Registry{repo: repo} }

// ResolveForCall picks the agent that should place a call for userID.
// An explicit agentID must belong to the user and be active; an empty agentID
// falls back to the user's oldest active agent.
func (r *Registry) ResolveForCall(ctx context.Context, userID, agentID string) (Agent, error) {
	if userID == "" {
		return Agent{}, ErrInvalidArgument
	}
	if agentID == "" {
		a, err := r.repo.FirstActiveForUser(ctx, userID)
		if err != nil {
			return Agent{}, fmt.Errorf("no active agent for user: %w", err)
		}
		return a, nil
	}

	a, err := r.repo.Get(ctx, agentID)
	if err != nil {
		return Agent{}, err
	}
	if a.UserID != userID {
		return Agent{}, ErrNotFound
	}
	if !a.Active {
		return Agent{}, ErrInactive
	}
	if a.ProviderAgentID == "" {
		return Agent{}, fmt.Errorf("agent %s has no provider agent id: %w", a.ID, ErrInvalidArgument)
	}
	return a, nil
}

// ByProviderID finds the local agent behind a provider agent id.
func (r *Registry) ByProviderID(ctx context.Context, providerAgentID string) (Agent, error) {
	if providerAgentID == "" {
		return Agent{}, ErrInvalidArgument
	}
	return r.repo.GetByProviderID(ctx, providerAgentID)
}

func (r *Registry) List(ctx context.Context, userID string) ([]Agent, error) {
	if userID == "" {
		return nil, ErrInvalidArgument
	}
	return r.repo.ListByUser(ctx, userID)
}
