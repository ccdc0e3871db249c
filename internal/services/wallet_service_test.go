package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/shopforge/fulfillment/internal/domain"
)

func newWalletServiceForTest(t *testing.T, repo *stubWalletRepo, now time.Time) WalletService {
	t.Helper()
	svc, err := NewWalletService(WalletServiceDeps{
		Wallets:     repo,
		Clock:       func() time.Time { return now },
		IDGenerator: func() string { return "01TESTWALLET00000000000000" },
	})
	if err != nil {
		t.Fatalf("NewWalletService: %v", err)
	}
	return svc
}

func TestWalletServiceGetWalletDefaultsToZeroBalance(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	repo := &stubWalletRepo{}
	repo.getFn = func(context.Context, string) (domain.Wallet, error) {
		return domain.Wallet{}, &fakeRepoError{notFound: true}
	}
	svc := newWalletServiceForTest(t, repo, now)

	wallet, err := svc.GetWallet(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("GetWallet: %v", err)
	}
	if wallet.UserID != "user-1" || wallet.Balance != 0 {
		t.Fatalf("wallet = %+v, want zero balance for user-1", wallet)
	}
}

func TestWalletServiceCreditBuildsRefundTransaction(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	repo := &stubWalletRepo{}
	var credited domain.WalletTransaction
	repo.creditFn = func(_ context.Context, userID string, txn domain.WalletTransaction) (domain.Wallet, error) {
		credited = txn
		return domain.Wallet{UserID: userID, Balance: txn.Amount, UpdatedAt: now}, nil
	}
	svc := newWalletServiceForTest(t, repo, now)

	wallet, err := svc.Credit(context.Background(), WalletMutationCommand{
		UserID:  "user-1",
		Amount:  95000,
		OrderID: "ord_1",
	})
	if err != nil {
		t.Fatalf("Credit: %v", err)
	}
	if wallet.Balance != 95000 {
		t.Fatalf("balance = %d", wallet.Balance)
	}
	if credited.Type != domain.WalletTransactionRefund {
		t.Fatalf("txn type = %s, want refund", credited.Type)
	}
	if credited.OrderID != "ord_1" || credited.Amount != 95000 {
		t.Fatalf("txn = %+v", credited)
	}
	if !credited.CreatedAt.Equal(now) {
		t.Fatalf("txn createdAt = %v", credited.CreatedAt)
	}
}

func TestWalletServiceDebitRejectsOverdraw(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	repo := &stubWalletRepo{}
	repo.debitFn = func(context.Context, string, domain.WalletTransaction) (domain.Wallet, error) {
		return domain.Wallet{}, &fakeRepoError{conflict: true}
	}
	svc := newWalletServiceForTest(t, repo, now)

	_, err := svc.Debit(context.Background(), WalletMutationCommand{UserID: "user-1", Amount: 10000})
	if !errors.Is(err, ErrWalletInsufficientFunds) {
		t.Fatalf("err = %v, want ErrWalletInsufficientFunds", err)
	}
}

func TestWalletServiceMutationValidation(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	svc := newWalletServiceForTest(t, &stubWalletRepo{}, now)

	if _, err := svc.Credit(context.Background(), WalletMutationCommand{Amount: 100}); !errors.Is(err, ErrWalletInvalidInput) {
		t.Fatalf("missing user err = %v, want ErrWalletInvalidInput", err)
	}
	if _, err := svc.Credit(context.Background(), WalletMutationCommand{UserID: "user-1"}); !errors.Is(err, ErrWalletInvalidInput) {
		t.Fatalf("zero amount err = %v, want ErrWalletInvalidInput", err)
	}
	if _, err := svc.Debit(context.Background(), WalletMutationCommand{UserID: "user-1", Amount: -5}); !errors.Is(err, ErrWalletInvalidInput) {
		t.Fatalf("negative amount err = %v, want ErrWalletInvalidInput", err)
	}
}

func TestWalletServiceListTransactions(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	repo := &stubWalletRepo{}
	repo.listFn = func(_ context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.WalletTransaction], error) {
		if pager.PageSize != 25 {
			t.Fatalf("page size = %d", pager.PageSize)
		}
		return domain.CursorPage[domain.WalletTransaction]{
			Items: []domain.WalletTransaction{{ID: "txn_1", UserID: userID, Amount: 500}},
		}, nil
	}
	svc := newWalletServiceForTest(t, repo, now)

	page, err := svc.ListTransactions(context.Background(), "user-1", Pagination{PageSize: 25})
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].ID != "txn_1" {
		t.Fatalf("page = %+v", page)
	}
}
