package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/shopforge/fulfillment/internal/platform/auth"
	"github.com/shopforge/fulfillment/internal/platform/httpx"
	"github.com/shopforge/fulfillment/internal/services"
)

const (
	defaultWalletPageSize = 50
	maxWalletPageSize     = 200
)

// WalletHandlers serves the caller's refund balance and ledger history.
type WalletHandlers struct {
	authn   *auth.Authenticator
	wallets services.WalletService
}

// NewWalletHandlers constructs a new WalletHandlers instance.
func NewWalletHandlers(authn *auth.Authenticator, wallets services.WalletService) *WalletHandlers {
	return &WalletHandlers{
		authn:   authn,
		wallets: wallets,
	}
}

// Routes registers the /wallet endpoints.
func (h *WalletHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.getWallet)
	r.Get("/transactions", h.listTransactions)
}

func (h *WalletHandlers) getWallet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.wallets == nil {
		httpx.WriteError(ctx, w, httpx.NewError("wallet_service_unavailable", "wallet service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	wallet, err := h.wallets.GetWallet(ctx, identity.UID)
	if err != nil {
		h.writeWalletError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, walletResponse{Wallet: buildWalletPayload(wallet)})
}

func (h *WalletHandlers) listTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.wallets == nil {
		httpx.WriteError(ctx, w, httpx.NewError("wallet_service_unavailable", "wallet service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	pageSize, err := parsePageSize(query.Get("page_size"), defaultWalletPageSize, maxWalletPageSize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.wallets.ListTransactions(ctx, identity.UID, services.Pagination{
		PageSize:  pageSize,
		PageToken: strings.TrimSpace(query.Get("page_token")),
	})
	if err != nil {
		h.writeWalletError(ctx, w, err)
		return
	}

	items := make([]walletTransactionPayload, 0, len(page.Items))
	for _, txn := range page.Items {
		items = append(items, buildWalletTransactionPayload(txn))
	}

	writeJSONResponse(w, http.StatusOK, walletTransactionListResponse{
		Items:         items,
		NextPageToken: strings.TrimSpace(page.NextPageToken),
	})
}

func (h *WalletHandlers) writeWalletError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrWalletInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrWalletNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("wallet_not_found", "wallet not found", http.StatusNotFound))
	case errors.Is(err, services.ErrWalletInsufficientFunds):
		httpx.WriteError(ctx, w, httpx.NewError("wallet_insufficient_funds", "wallet balance is insufficient", http.StatusUnprocessableEntity))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("wallet_error", "failed to process wallet request", http.StatusInternalServerError))
	}
}

type walletResponse struct {
	Wallet walletPayload `json:"wallet"`
}

type walletPayload struct {
	UserID    string `json:"user_id"`
	Balance   int64  `json:"balance"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

type walletTransactionListResponse struct {
	Items         []walletTransactionPayload `json:"items"`
	NextPageToken string                     `json:"next_page_token,omitempty"`
}

type walletTransactionPayload struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Amount    int64  `json:"amount"`
	OrderID   string `json:"order_id,omitempty"`
	CreatedAt string `json:"created_at"`
}

func buildWalletPayload(wallet services.Wallet) walletPayload {
	return walletPayload{
		UserID:    strings.TrimSpace(wallet.UserID),
		Balance:   wallet.Balance,
		UpdatedAt: formatTime(wallet.UpdatedAt),
	}
}

func buildWalletTransactionPayload(txn services.WalletTransaction) walletTransactionPayload {
	return walletTransactionPayload{
		ID:        strings.TrimSpace(txn.ID),
		Type:      strings.TrimSpace(string(txn.Type)),
		Amount:    txn.Amount,
		OrderID:   strings.TrimSpace(txn.OrderID),
		CreatedAt: formatTime(txn.CreatedAt),
	}
}
