package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/shopforge/fulfillment/internal/domain"
	"github.com/shopforge/fulfillment/internal/repositories"
)

var (
	// ErrWalletInvalidInput signals the caller provided invalid data.
	ErrWalletInvalidInput = errors.New("wallet: invalid input")
	// ErrWalletNotFound indicates the wallet could not be located.
	ErrWalletNotFound = errors.New("wallet: not found")
	// ErrWalletInsufficientFunds indicates a debit would overdraw the balance.
	ErrWalletInsufficientFunds = errors.New("wallet: insufficient funds")
)

// WalletServiceDeps bundles dependencies required to construct a WalletService implementation.
type WalletServiceDeps struct {
	Wallets     repositories.WalletRepository
	Clock       func() time.Time
	IDGenerator func() string
}

type walletService struct {
	repo  repositories.WalletRepository
	clock func() time.Time
	newID func() string
}

// NewWalletService wires a WalletService backed by the provided repository.
func NewWalletService(deps WalletServiceDeps) (WalletService, error) {
	if deps.Wallets == nil {
		return nil, errors.New("wallet service: repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	return &walletService{
		repo:  deps.Wallets,
		clock: func() time.Time { return clock().UTC() },
		newID: idGen,
	}, nil
}

func (s *walletService) GetWallet(ctx context.Context, userID string) (Wallet, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Wallet{}, fmt.Errorf("%w: user id is required", ErrWalletInvalidInput)
	}

	wallet, err := s.repo.Get(ctx, userID)
	if err != nil {
		if isRepoNotFound(err) {
			// Wallets materialise on first credit; an absent document reads
			// as a zero balance.
			return Wallet{UserID: userID}, nil
		}
		return Wallet{}, s.mapRepositoryError(err)
	}
	return wallet, nil
}

func (s *walletService) Credit(ctx context.Context, cmd WalletMutationCommand) (Wallet, error) {
	txn, err := s.buildTransaction(cmd, domain.WalletTransactionRefund)
	if err != nil {
		return Wallet{}, err
	}

	wallet, err := s.repo.Credit(ctx, txn.UserID, txn)
	if err != nil {
		return Wallet{}, s.mapRepositoryError(err)
	}
	return wallet, nil
}

func (s *walletService) Debit(ctx context.Context, cmd WalletMutationCommand) (Wallet, error) {
	txn, err := s.buildTransaction(cmd, domain.WalletTransactionDebit)
	if err != nil {
		return Wallet{}, err
	}

	wallet, err := s.repo.Debit(ctx, txn.UserID, txn)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsConflict() {
			return Wallet{}, fmt.Errorf("%w: %v", ErrWalletInsufficientFunds, err)
		}
		return Wallet{}, s.mapRepositoryError(err)
	}
	return wallet, nil
}

func (s *walletService) ListTransactions(ctx context.Context, userID string, pager Pagination) (domain.CursorPage[WalletTransaction], error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.CursorPage[WalletTransaction]{}, fmt.Errorf("%w: user id is required", ErrWalletInvalidInput)
	}

	page, err := s.repo.ListTransactions(ctx, userID, pager)
	if err != nil {
		return domain.CursorPage[WalletTransaction]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *walletService) buildTransaction(cmd WalletMutationCommand, kind domain.WalletTransactionType) (WalletTransaction, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return WalletTransaction{}, fmt.Errorf("%w: user id is required", ErrWalletInvalidInput)
	}
	if cmd.Amount <= 0 {
		return WalletTransaction{}, fmt.Errorf("%w: amount must be positive", ErrWalletInvalidInput)
	}

	return WalletTransaction{
		ID:        walletTransactionIDPrefix + s.newID(),
		UserID:    userID,
		Type:      kind,
		Amount:    cmd.Amount,
		OrderID:   strings.TrimSpace(cmd.OrderID),
		CreatedAt: s.clock(),
	}, nil
}

func (s *walletService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrWalletNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("wallet: repository unavailable: %w", err)
		}
	}

	return err
}
