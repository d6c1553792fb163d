package setup

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"

	"steward/internal/entity"
	"steward/internal/governance"
	"steward/internal/repository/document"
	"steward/internal/repository/portfolio"
)

// PublishResult is what the publish pipeline committed.
type PublishResult struct {
	Problems []entity.Problem
	Members  []entity.BoardMember
	Triggers []entity.Trigger
	Health   entity.PortfolioHealth
	Version  entity.PortfolioVersion
	Summary  string
}

// Publish is the terminal setup transition. A full re-setup supersedes the
// prior portfolio: everything previously persisted is soft-invalidated and
// the drafts are committed in one unit of work, so a failure partway leaves
// the old portfolio intact.
func (e *Engine) Publish(ctx context.Context, userID entity.UserID, d Data, store portfolio.Store, docs document.Store) (Data, PublishResult, error) {
	if err := require(d, governance.EventPublish); err != nil {
		return d, PublishResult{}, err
	}
	if len(d.Problems) < MinProblems || len(d.Problems) > MaxProblems {
		return d, PublishResult{}, governance.NewValidationError("problems",
			fmt.Sprintf("%d problems outside [%d,%d]", len(d.Problems), MinProblems, MaxProblems))
	}

	latest, err := store.LatestVersion(ctx, userID)
	if err != nil {
		return d, PublishResult{}, err
	}
	now := e.now()
	version := latest + 1

	problems := make([]entity.Problem, len(d.Problems))
	for i, p := range d.Problems {
		problems[i] = entity.Problem{
			ID:                 uuid.NewString(),
			UserID:             userID,
			Name:               p.Name,
			FailureDescription: p.FailureDescription,
			Direction:          p.Direction,
			Rationale:          p.Rationale,
			Evidence:           append([]string(nil), p.Evidence...),
			AllocationPct:      p.AllocationPct,
			DisplayOrder:       i,
			Active:             true,
			CreatedAt:          now,
		}
	}

	members := make([]entity.BoardMember, len(d.Board))
	anchoring := make(map[string]string, len(d.Board))
	for i, m := range d.Board {
		if m.ProblemIndex < 0 || m.ProblemIndex >= len(problems) {
			return d, PublishResult{}, governance.NewValidationError("board",
				fmt.Sprintf("member %s anchored to missing problem %d", m.Role, m.ProblemIndex))
		}
		members[i] = entity.BoardMember{
			ID:           uuid.NewString(),
			UserID:       userID,
			Role:         m.Role,
			Partition:    m.Partition,
			ProblemID:    problems[m.ProblemIndex].ID,
			Demand:       m.Demand,
			Persona:      m.Persona,
			DisplayOrder: i,
			Active:       true,
			CreatedAt:    now,
		}
		anchoring[members[i].ID] = members[i].ProblemID
	}

	triggers := make([]entity.Trigger, len(d.Triggers))
	for i, t := range d.Triggers {
		triggers[i] = entity.Trigger{
			ID:          uuid.NewString(),
			UserID:      userID,
			Type:        t.Type,
			Description: t.Description,
			Condition:   t.Condition,
			Action:      t.Action,
			DueAt:       t.DueAt,
			Active:      true,
			CreatedAt:   now,
		}
	}

	health := entity.PortfolioHealth{
		UserID:               userID,
		Version:              version,
		AppreciatingPct:      d.Health.AppreciatingPct,
		DepreciatingPct:      d.Health.DepreciatingPct,
		StablePct:            d.Health.StablePct,
		RiskStatement:        d.Health.RiskStatement,
		OpportunityStatement: d.Health.OpportunityStatement,
		UpdatedAt:            now,
	}
	snapshot := entity.PortfolioVersion{
		UserID:    userID,
		Version:   version,
		Problems:  problems,
		Health:    health,
		Anchoring: anchoring,
		Triggers:  triggers,
		CreatedAt: now,
	}

	err = store.InTx(ctx, func(tx portfolio.Tx) error {
		if err := tx.InvalidatePortfolio(ctx, userID); err != nil {
			return err
		}
		for _, p := range problems {
			if err := tx.CreateProblem(ctx, p); err != nil {
				return err
			}
		}
		for _, m := range members {
			if err := tx.CreateBoardMember(ctx, m); err != nil {
				return err
			}
		}
		for _, t := range triggers {
			if err := tx.CreateTrigger(ctx, t); err != nil {
				return err
			}
		}
		if err := tx.UpsertHealth(ctx, health); err != nil {
			return err
		}
		if err := tx.CreateVersion(ctx, snapshot); err != nil {
			return err
		}
		return tx.MarkOnboardingComplete(ctx, userID)
	})
	if err != nil {
		return d, PublishResult{}, fmt.Errorf("publish portfolio: %w", err)
	}

	// Mirror the snapshot to the document store. The transaction already
	// committed; a miss here costs only the object copy.
	if raw, err := json.Marshal(snapshot); err == nil {
		path := fmt.Sprintf("portfolio/v%d.json", version)
		if err := docs.Put(ctx, userID.String(), path, raw); err != nil {
			log.Printf("portfolio snapshot mirror failed: %v", err)
		}
	}

	out := d.clone()
	out.CurrentState = governance.StateFinalized
	result := PublishResult{
		Problems: problems,
		Members:  members,
		Triggers: triggers,
		Health:   health,
		Version:  snapshot,
		Summary: fmt.Sprintf("Portfolio set up with %d problems, %d board members, and %d triggers (version %d).",
			len(problems), len(members), len(triggers), version),
	}
	return out, result, nil
}
