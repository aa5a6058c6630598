package crm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-crm/internal/shared"
)

var maxProbability = decimal.NewFromInt(100)

// Service registers clients and opportunities.
type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the intake service.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger, now: time.Now}
}

// CreateClient registers a new client.
func (s *Service) CreateClient(ctx context.Context, req CreateClientRequest) (Client, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := shared.ValidateStruct(req); err != nil {
		return Client{}, err
	}
	now := s.now().UTC()
	client := Client{
		ID:         uuid.New(),
		Name:       req.Name,
		ExternalID: trimmed(req.ExternalID),
		Industry:   trimmed(req.Industry),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.CreateClient(ctx, client)
	})
	if err != nil {
		return Client{}, fmt.Errorf("create client: %w", err)
	}
	s.logger.Info("client created", slog.String("client_id", client.ID.String()))
	return client, nil
}

// DeleteClient removes a client together with its opportunities, invoices
// and sales-date updates.
func (s *Service) DeleteClient(ctx context.Context, rawID string) error {
	id, err := ParseID("client", rawID)
	if err != nil {
		return err
	}
	err = s.store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.DeleteClient(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("delete client: %w", err)
	}
	s.logger.Info("client deleted", slog.String("client_id", id.String()))
	return nil
}

// CreateOpportunity registers an opportunity under an existing client.
func (s *Service) CreateOpportunity(ctx context.Context, req CreateOpportunityRequest) (Opportunity, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := shared.ValidateStruct(req); err != nil {
		return Opportunity{}, err
	}
	clientID, err := uuid.Parse(strings.TrimSpace(req.ClientID))
	if err != nil {
		return Opportunity{}, fmt.Errorf("%w: Invalid client id", shared.ErrValidation)
	}
	if req.Amount.IsNegative() {
		return Opportunity{}, fmt.Errorf("%w: amount must not be negative", shared.ErrValidation)
	}
	if req.Probability.IsNegative() || req.Probability.GreaterThan(maxProbability) {
		return Opportunity{}, fmt.Errorf("%w: probability must be between 0 and 100", shared.ErrValidation)
	}
	stage := req.Stage
	if stage == "" {
		stage = StageProspect
	}

	now := s.now().UTC()
	opp := Opportunity{
		ID:              uuid.New(),
		ClientID:        clientID,
		Name:            req.Name,
		Stage:           stage,
		Probability:     req.Probability.Round(2),
		Amount:          req.Amount.Round(2),
		Owner:           trimmed(req.Owner),
		ExternalOrderID: trimmed(req.ExternalOrderID),
		Notes:           req.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if req.ExpectedCloseDate != nil && *req.ExpectedCloseDate != "" {
		d, err := time.Parse(time.DateOnly, *req.ExpectedCloseDate)
		if err != nil {
			return Opportunity{}, fmt.Errorf("%w: expected_close_date: %v", shared.ErrValidation, err)
		}
		opp.ExpectedCloseDate = &d
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetClient(ctx, clientID); err != nil {
			return err
		}
		return tx.CreateOpportunity(ctx, opp)
	})
	if err != nil {
		return Opportunity{}, fmt.Errorf("create opportunity: %w", err)
	}
	s.logger.Info("opportunity created",
		slog.String("opportunity_id", opp.ID.String()),
		slog.String("client_id", clientID.String()))
	return opp, nil
}

// GetOpportunity loads one opportunity.
func (s *Service) GetOpportunity(ctx context.Context, rawID string) (Opportunity, error) {
	id, err := ParseID("opportunity", rawID)
	if err != nil {
		return Opportunity{}, err
	}
	var opp Opportunity
	err = s.store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		opp, err = tx.GetOpportunity(ctx, id)
		return err
	})
	if err != nil {
		return Opportunity{}, err
	}
	return opp, nil
}

func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}
