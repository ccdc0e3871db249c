package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/shopforge/fulfillment/internal/domain"
	pfirestore "github.com/shopforge/fulfillment/internal/platform/firestore"
	"github.com/shopforge/fulfillment/internal/platform/pagination"
	"github.com/shopforge/fulfillment/internal/repositories"
)

const (
	walletCollection            = "wallets"
	walletTransactionCollection = "transactions"

	defaultWalletTxnPageSize = 50
	maxWalletTxnPageSize     = 200
)

// WalletRepository persists per-user refund balances. The balance lives on the
// wallet document and every mutation appends a ledger entry to its
// transactions subcollection.
type WalletRepository struct {
	base     *pfirestore.BaseRepository[walletDocument]
	provider *pfirestore.Provider
}

// NewWalletRepository constructs a Firestore-backed wallet repository.
func NewWalletRepository(provider *pfirestore.Provider) (*WalletRepository, error) {
	if provider == nil {
		return nil, errors.New("wallet repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[walletDocument](provider, walletCollection, nil, nil)
	return &WalletRepository{base: base, provider: provider}, nil
}

// Get loads the wallet for the given user.
func (r *WalletRepository) Get(ctx context.Context, userID string) (domain.Wallet, error) {
	if r == nil || r.base == nil {
		return domain.Wallet{}, errors.New("wallet repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.Wallet{}, errors.New("wallet repository: user id is required")
	}

	doc, err := r.base.Get(ctx, uid)
	if err != nil {
		return domain.Wallet{}, err
	}
	return domain.Wallet{
		UserID:    doc.ID,
		Balance:   doc.Data.Balance,
		UpdatedAt: doc.UpdateTime,
	}, nil
}

// Credit atomically increments the balance and appends the ledger entry.
// Inside a unit of work the increment is applied as a server-side transform so
// the credit stays write-only; transaction reads must precede writes and the
// enclosing flow has already performed its reads by the time the credit runs.
func (r *WalletRepository) Credit(ctx context.Context, userID string, txn domain.WalletTransaction) (domain.Wallet, error) {
	if err := r.validateMutation(userID, txn); err != nil {
		return domain.Wallet{}, err
	}
	uid := strings.TrimSpace(userID)

	walletRef, txnRef, err := r.refs(ctx, uid, txn.ID)
	if err != nil {
		return domain.Wallet{}, err
	}
	now := txn.CreatedAt.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	if tx, ok := transactionFrom(ctx); ok {
		if err := tx.Set(walletRef, creditTransform(txn.Amount, now), firestore.MergeAll); err != nil {
			return domain.Wallet{}, pfirestore.WrapError("wallets.credit", err)
		}
		if err := tx.Create(txnRef, fromDomainWalletTxn(txn, now)); err != nil {
			return domain.Wallet{}, pfirestore.WrapError("wallets.credit", err)
		}
		return domain.Wallet{UserID: uid, UpdatedAt: now}, nil
	}

	var balance int64
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		current, err := readWalletBalance(tx, walletRef)
		if err != nil {
			return err
		}
		balance = current + txn.Amount
		if err := tx.Set(walletRef, walletDocument{Balance: balance, UpdatedAt: now}); err != nil {
			return err
		}
		return tx.Create(txnRef, fromDomainWalletTxn(txn, now))
	})
	if err != nil {
		return domain.Wallet{}, pfirestore.WrapError("wallets.credit", err)
	}
	return domain.Wallet{UserID: uid, Balance: balance, UpdatedAt: now}, nil
}

// Debit atomically decrements the balance, failing with a conflict when the
// balance would go negative.
func (r *WalletRepository) Debit(ctx context.Context, userID string, txn domain.WalletTransaction) (domain.Wallet, error) {
	if err := r.validateMutation(userID, txn); err != nil {
		return domain.Wallet{}, err
	}
	uid := strings.TrimSpace(userID)

	walletRef, txnRef, err := r.refs(ctx, uid, txn.ID)
	if err != nil {
		return domain.Wallet{}, err
	}
	now := txn.CreatedAt.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var balance int64
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		current, err := readWalletBalance(tx, walletRef)
		if err != nil {
			return err
		}
		if current < txn.Amount {
			return status.Errorf(codes.FailedPrecondition, "wallet %s balance %d below debit %d", uid, current, txn.Amount)
		}
		balance = current - txn.Amount
		if err := tx.Set(walletRef, walletDocument{Balance: balance, UpdatedAt: now}); err != nil {
			return err
		}
		return tx.Create(txnRef, fromDomainWalletTxn(txn, now))
	})
	if err != nil {
		return domain.Wallet{}, pfirestore.WrapError("wallets.debit", err)
	}
	return domain.Wallet{UserID: uid, Balance: balance, UpdatedAt: now}, nil
}

// ListTransactions returns the ledger for a user, newest first.
func (r *WalletRepository) ListTransactions(ctx context.Context, userID string, pager domain.Pagination) (domain.CursorPage[domain.WalletTransaction], error) {
	if r == nil || r.provider == nil {
		return domain.CursorPage[domain.WalletTransaction]{}, errors.New("wallet repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.CursorPage[domain.WalletTransaction]{}, errors.New("wallet repository: user id is required")
	}

	pageSize := pager.PageSize
	if pageSize <= 0 {
		pageSize = defaultWalletTxnPageSize
	}
	if pageSize > maxWalletTxnPageSize {
		pageSize = maxWalletTxnPageSize
	}

	cursor, err := pagination.DecodeToken(pager.PageToken)
	if err != nil {
		return domain.CursorPage[domain.WalletTransaction]{}, err
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.CursorPage[domain.WalletTransaction]{}, err
	}

	query := client.Collection(walletCollection).Doc(uid).Collection(walletTransactionCollection).
		OrderBy("createdAt", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Desc)
	if len(cursor.StartAfter) > 0 {
		query = query.StartAfter(cursor.StartAfter...)
	}

	snaps, err := query.Limit(pageSize + 1).Documents(ctx).GetAll()
	if err != nil {
		return domain.CursorPage[domain.WalletTransaction]{}, pfirestore.WrapError("wallets.transactions", err)
	}

	page := domain.CursorPage[domain.WalletTransaction]{}
	for i, snap := range snaps {
		var doc walletTxnDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.CursorPage[domain.WalletTransaction]{}, fmt.Errorf("wallet transactions decode %s: %w", snap.Ref.ID, err)
		}
		if i == pageSize {
			prev := snaps[pageSize-1]
			var prevDoc walletTxnDocument
			if err := prev.DataTo(&prevDoc); err != nil {
				return domain.CursorPage[domain.WalletTransaction]{}, fmt.Errorf("wallet transactions decode %s: %w", prev.Ref.ID, err)
			}
			token, err := pagination.EncodeToken(pagination.Cursor{
				StartAfter: []any{prevDoc.CreatedAt, prev.Ref.ID},
			})
			if err != nil {
				return domain.CursorPage[domain.WalletTransaction]{}, err
			}
			page.NextPageToken = token
			break
		}
		page.Items = append(page.Items, domain.WalletTransaction{
			ID:        snap.Ref.ID,
			UserID:    uid,
			Type:      domain.WalletTransactionType(doc.Type),
			Amount:    doc.Amount,
			OrderID:   doc.OrderID,
			CreatedAt: doc.CreatedAt,
		})
	}
	return page, nil
}

func (r *WalletRepository) validateMutation(userID string, txn domain.WalletTransaction) error {
	if r == nil || r.base == nil {
		return errors.New("wallet repository not initialised")
	}
	if strings.TrimSpace(userID) == "" {
		return errors.New("wallet repository: user id is required")
	}
	if strings.TrimSpace(txn.ID) == "" {
		return errors.New("wallet repository: transaction id is required")
	}
	if txn.Amount <= 0 {
		return fmt.Errorf("wallet repository: amount must be positive, got %d", txn.Amount)
	}
	return nil
}

func (r *WalletRepository) refs(ctx context.Context, userID, txnID string) (*firestore.DocumentRef, *firestore.DocumentRef, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, nil, err
	}
	walletRef := client.Collection(walletCollection).Doc(userID)
	txnRef := walletRef.Collection(walletTransactionCollection).Doc(strings.TrimSpace(txnID))
	return walletRef, txnRef, nil
}

func readWalletBalance(tx *firestore.Transaction, ref *firestore.DocumentRef) (int64, error) {
	snap, err := tx.Get(ref)
	if status.Code(err) == codes.NotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var doc walletDocument
	if err := snap.DataTo(&doc); err != nil {
		return 0, fmt.Errorf("wallets decode %s: %w", ref.ID, err)
	}
	return doc.Balance, nil
}

func creditTransform(amount int64, now time.Time) map[string]any {
	return map[string]any{
		"balance":   firestore.Increment(amount),
		"updatedAt": now,
	}
}

type walletDocument struct {
	Balance   int64     `firestore:"balance"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

type walletTxnDocument struct {
	Type      string    `firestore:"type"`
	Amount    int64     `firestore:"amount"`
	OrderID   string    `firestore:"orderId,omitempty"`
	CreatedAt time.Time `firestore:"createdAt"`
}

func fromDomainWalletTxn(txn domain.WalletTransaction, now time.Time) walletTxnDocument {
	createdAt := txn.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}
	return walletTxnDocument{
		Type:      string(txn.Type),
		Amount:    txn.Amount,
		OrderID:   strings.TrimSpace(txn.OrderID),
		CreatedAt: createdAt,
	}
}

var _ repositories.WalletRepository = (*WalletRepository)(nil)
