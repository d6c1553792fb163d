package quarterly

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"steward/internal/entity"
	"steward/internal/governance"
	"steward/internal/repository/document"
	"steward/internal/repository/portfolio"
)

// ReviewResult is what the finalize pipeline committed.
type ReviewResult struct {
	Report   entity.Report
	Markdown string
	NewBet   entity.Bet
	Summary  string
}

// reportDocument is the session material handed to the report generator.
type reportDocument struct {
	BetEval         BetEvaluation               `json:"bet_eval"`
	Reflections     map[governance.State]string `json:"reflections"`
	Trend           HealthTrend                 `json:"trend"`
	TriggerStatuses []TriggerStatus             `json:"trigger_statuses"`
	NewBet          NewBet                      `json:"new_bet"`
	CoreResponses   []BoardResponse             `json:"core_responses"`
	GrowthResponses []BoardResponse             `json:"growth_responses"`
}

// Finalize is the terminal quarterly transition: generate the report, store
// its markdown, and commit the review's consequences in one unit of work.
// The bet verdict, the new bet, the health refresh and the report row either
// all land or none do.
func (e *Engine) Finalize(ctx context.Context, userID entity.UserID, sessionID string, d Data, store portfolio.Store, docs document.Store) (Data, ReviewResult, error) {
	if err := require(d, governance.EventGenerateReport); err != nil {
		return d, ReviewResult{}, err
	}

	markdown, err := e.collab.GenerateReport(ctx, reportDocument{
		BetEval:         d.BetEval,
		Reflections:     d.Reflections,
		Trend:           d.Trend,
		TriggerStatuses: d.TriggerStatuses,
		NewBet:          d.Bet,
		CoreResponses:   d.CoreResponses,
		GrowthResponses: d.GrowthResponses,
	})
	if err != nil {
		return d, ReviewResult{}, governance.WrapCollaborator("generate report", err)
	}

	now := e.now()
	report := entity.Report{
		ID:        uuid.NewString(),
		UserID:    userID,
		SessionID: sessionID,
		Path:      fmt.Sprintf("reports/%s.md", now.Format("2006-01-02")),
		CreatedAt: now,
	}
	newBet := entity.Bet{
		ID:          uuid.NewString(),
		UserID:      userID,
		Description: d.Bet.Description,
		Status:      entity.BetOpen,
		CreatedAt:   now,
	}
	health := entity.PortfolioHealth{
		UserID:          userID,
		Version:         1,
		AppreciatingPct: d.Trend.CurrAppreciating,
		DepreciatingPct: d.Trend.CurrDepreciating,
		StablePct:       d.Trend.CurrStable,
		UpdatedAt:       now,
	}
	if d.PrevHealth != nil {
		health.Version = d.PrevHealth.Version + 1
		health.RiskStatement = d.PrevHealth.RiskStatement
		health.OpportunityStatement = d.PrevHealth.OpportunityStatement
	}

	// The markdown goes out before the transaction so the report row never
	// points at a missing object. A rollback leaves an orphan object, which
	// is harmless.
	if err := docs.Put(ctx, userID.String(), report.Path, []byte(markdown)); err != nil {
		return d, ReviewResult{}, fmt.Errorf("store report markdown: %w", err)
	}

	err = store.InTx(ctx, func(tx portfolio.Tx) error {
		if d.BetEval.BetID != "" {
			if err := tx.SetBetStatus(ctx, d.BetEval.BetID, d.BetEval.Outcome, now); err != nil {
				return err
			}
		}
		if err := tx.CreateBet(ctx, newBet); err != nil {
			return err
		}
		if err := tx.UpsertHealth(ctx, health); err != nil {
			return err
		}
		return tx.CreateReport(ctx, report)
	})
	if err != nil {
		return d, ReviewResult{}, fmt.Errorf("finalize review: %w", err)
	}

	out := d.clone()
	out.CurrentState = governance.StateFinalized
	result := ReviewResult{
		Report:   report,
		Markdown: markdown,
		NewBet:   newBet,
		Summary: fmt.Sprintf("Quarterly review complete: %d questions answered, new bet %q recorded.",
			len(out.Reflections)+len(out.CoreResponses)+len(out.GrowthResponses), newBet.Description),
	}
	return out, result, nil
}
