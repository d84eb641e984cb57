package rights

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/warp/renewal-engine/beneficiary"
	"github.com/warp/renewal-engine/generic"
)

// =============================================================================
// SERVICE - Beneficiary snapshots from stored rights
// =============================================================================

// Service loads a right, its renewals and the user account from the catalog
// and runs the aggregator over them.
type Service struct {
	Catalog    generic.Catalog
	Calculator *StatsCalculator
	Presenter  *Presenter
	Aggregator *beneficiary.Aggregator
	Retry      RetryConfig
	Logger     zerolog.Logger
}

func NewService(
	catalog generic.Catalog,
	ledger generic.Ledger,
	presenter *Presenter,
	aggregator *beneficiary.Aggregator,
	retry RetryConfig,
	logger zerolog.Logger,
) *Service {
	return &Service{
		Catalog:    catalog,
		Calculator: NewStatsCalculator(ledger, logger),
		Presenter:  presenter,
		Aggregator: aggregator,
		Retry:      retry,
		Logger:     logger.With().Str("component", "rights").Logger(),
	}
}

// Beneficiary computes the snapshot of a user on a right as of moment.
func (s *Service) Beneficiary(ctx context.Context, userID generic.UserID, rightID generic.RightID, moment generic.TimePoint) (beneficiary.Snapshot, error) {
	if _, err := s.Catalog.GetUser(ctx, userID); err != nil {
		return beneficiary.Snapshot{}, err
	}
	right, err := s.Catalog.GetRight(ctx, rightID)
	if err != nil {
		return beneficiary.Snapshot{}, err
	}
	account, err := s.Catalog.GetAccount(ctx, userID, rightID)
	if err != nil {
		return beneficiary.Snapshot{}, err
	}
	return s.snapshot(ctx, right, account, moment)
}

// Beneficiaries computes one snapshot per right the user is enrolled on,
// ordered by right ID.
func (s *Service) Beneficiaries(ctx context.Context, userID generic.UserID, moment generic.TimePoint) ([]beneficiary.Snapshot, error) {
	if _, err := s.Catalog.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	accounts, err := s.Catalog.ListAccounts(ctx, userID)
	if err != nil {
		return nil, err
	}

	snaps := make([]beneficiary.Snapshot, 0, len(accounts))
	for _, account := range accounts {
		right, err := s.Catalog.GetRight(ctx, account.RightID)
		if err != nil {
			return nil, fmt.Errorf("account %s: %w", account.ID, err)
		}
		snap, err := s.snapshot(ctx, right, account, moment)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

func (s *Service) snapshot(ctx context.Context, right generic.Right, account generic.Account, moment generic.TimePoint) (beneficiary.Snapshot, error) {
	renewals, err := s.Catalog.ListRenewals(ctx, right.ID)
	if err != nil {
		return beneficiary.Snapshot{}, err
	}

	periods := make([]beneficiary.RenewalPeriod, len(renewals))
	for i, renewal := range renewals {
		periods[i] = s.Calculator.Period(account, right, renewal)
	}
	periods = WithRetry(periods, s.Retry)

	snap, err := s.Aggregator.Aggregate(ctx,
		beneficiary.Right{Right: right, Presenter: s.Presenter.For(right.Unit)},
		account, account.UserID, periods, moment)
	if err != nil {
		return beneficiary.Snapshot{}, fmt.Errorf("aggregate %s for %s: %w", right.ID, account.UserID, err)
	}

	if snap.Degraded() {
		s.Logger.Warn().
			Str("user", string(account.UserID)).
			Str("right", string(right.ID)).
			Int("failed_renewals", len(snap.Errors)).
			Msg("beneficiary snapshot is partial")
	}
	return snap, nil
}
