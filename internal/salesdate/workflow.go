// Package salesdate renegotiates opportunity close dates and propagates them
// to the order-management system.
package salesdate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-crm/internal/crm"
	"github.com/odyssey-erp/odyssey-crm/internal/shared"
	"github.com/odyssey-erp/odyssey-crm/internal/skyline"
)

// Outcome is the result of a successful renegotiation.
type Outcome struct {
	Opportunity crm.Opportunity
	Update      crm.SalesDateUpdate
}

// Workflow applies sales-date changes.
type Workflow struct {
	store   crm.Store
	gateway skyline.Gateway
	logger  *slog.Logger
	now     func() time.Time
}

// NewWorkflow constructs a Workflow.
func NewWorkflow(store crm.Store, gateway skyline.Gateway, logger *slog.Logger) *Workflow {
	if logger == nil {
		logger = slog.Default()
	}
	return &Workflow{store: store, gateway: gateway, logger: logger, now: time.Now}
}

// UpdateSalesDate moves the expected close date of an opportunity. Linked
// opportunities are updated remotely first; the local change and its audit
// record are only written once the remote system confirms.
func (w *Workflow) UpdateSalesDate(ctx context.Context, rawID string, newDate time.Time, actor string) (Outcome, error) {
	id, err := crm.ParseID("opportunity", rawID)
	if err != nil {
		return Outcome{}, err
	}
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return Outcome{}, fmt.Errorf("%w: updated_by is required", shared.ErrValidation)
	}
	if newDate.IsZero() {
		return Outcome{}, fmt.Errorf("%w: new_date is required", shared.ErrValidation)
	}
	newDate = crm.DateOnly(newDate)

	var out Outcome
	err = w.store.WithTx(ctx, func(ctx context.Context, tx crm.TxRepository) error {
		opp, err := tx.GetOpportunityForUpdate(ctx, id)
		if err != nil {
			return err
		}
		previous := opp.ExpectedCloseDate

		var (
			synced    bool
			reference *string
		)
		if opp.HasExternalOrder() {
			result, err := w.gateway.UpdateSaleDate(ctx, *opp.ExternalOrderID, newDate)
			if err != nil {
				return shared.NewUpstreamError(fmt.Sprintf("order-management system unreachable: %v", err), err)
			}
			if !result.Success {
				var msg string
				if result.Message != nil {
					msg = *result.Message
				}
				return shared.NewUpstreamError(msg, nil)
			}
			synced = true
			reference = result.Reference
		}

		now := w.now().UTC()
		if err := tx.UpdateOpportunityCloseDate(ctx, opp.ID, newDate, now); err != nil {
			return err
		}
		update := crm.SalesDateUpdate{
			ID:              uuid.New(),
			OpportunityID:   opp.ID,
			PreviousDate:    previous,
			NewDate:         newDate,
			UpdatedBy:       actor,
			UpdatedAt:       now,
			SyncedWithInfor: synced,
			SyncReference:   reference,
		}
		if err := tx.InsertSalesDateUpdate(ctx, update); err != nil {
			return err
		}

		opp.ExpectedCloseDate = &newDate
		opp.UpdatedAt = now
		out = Outcome{Opportunity: opp, Update: update}
		return nil
	})
	if err != nil {
		var upstream *shared.UpstreamError
		if errors.As(err, &upstream) {
			return Outcome{}, upstream
		}
		return Outcome{}, fmt.Errorf("update sales date: %w", err)
	}

	w.logger.Info("sales date updated",
		slog.String("opportunity_id", id.String()),
		slog.String("new_date", newDate.Format(time.DateOnly)),
		slog.Bool("synced", out.Update.SyncedWithInfor))
	return out, nil
}

// History lists the renegotiations of an opportunity, oldest first.
func (w *Workflow) History(ctx context.Context, rawID string) ([]crm.SalesDateUpdate, error) {
	id, err := crm.ParseID("opportunity", rawID)
	if err != nil {
		return nil, err
	}
	var updates []crm.SalesDateUpdate
	err = w.store.WithTx(ctx, func(ctx context.Context, tx crm.TxRepository) error {
		if _, err := tx.GetOpportunity(ctx, id); err != nil {
			return err
		}
		updates, err = tx.ListSalesDateUpdates(ctx, id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("sales date history: %w", err)
	}
	if updates == nil {
		updates = []crm.SalesDateUpdate{}
	}
	return updates, nil
}
