package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"ledger-core/internal/domain"
	"ledger-core/internal/service"
)

type TransactionHandler struct {
	transactionService *service.TransactionService
}

func NewTransactionHandler(transactionService *service.TransactionService) *TransactionHandler {
	return &TransactionHandler{
		transactionService: transactionService,
	}
}

type MovementRequest struct {
	Amount         string `json:"amount" validate:"required"`
	Description    string `json:"description,omitempty" validate:"max=255"`
	IdempotencyKey string `json:"idempotency_key,omitempty" validate:"omitempty,uuid"`
}

type TransferRequest struct {
	FromAccountNumber string `json:"from_account_number" validate:"required"`
	ToAccountNumber   string `json:"to_account_number" validate:"required"`
	Amount            string `json:"amount" validate:"required"`
	Description       string `json:"description,omitempty" validate:"max=255"`
	IdempotencyKey    string `json:"idempotency_key,omitempty" validate:"omitempty,uuid"`
}

type TransactionResponse struct {
	TransactionID  string     `json:"transaction_id"`
	Type           string     `json:"type"`
	Amount         string     `json:"amount"`
	Currency       string     `json:"currency"`
	Description    string     `json:"description"`
	FromAccountID  *string    `json:"from_account_id,omitempty"`
	ToAccountID    *string    `json:"to_account_id,omitempty"`
	Status         string     `json:"status"`
	IdempotencyKey *string    `json:"idempotency_key,omitempty"`
	ProcessedAt    time.Time  `json:"processed_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// BalanceResponse is returned by deposit and withdrawal: the transaction and
// the account state it produced.
type BalanceResponse struct {
	Transaction TransactionResponse `json:"transaction"`
	Account     AccountResponse     `json:"account"`
}

func toTransactionResponse(tx *domain.Transaction) TransactionResponse {
	response := TransactionResponse{
		TransactionID: tx.TransactionID,
		Type:          string(tx.Type),
		Amount:        tx.Amount.String(),
		Currency:      string(tx.Currency),
		Description:   tx.Description,
		Status:        string(tx.Status),
		ProcessedAt:   tx.ProcessedAt,
		CompletedAt:   tx.CompletedAt,
	}
	if tx.FromAccountID != nil {
		id := tx.FromAccountID.String()
		response.FromAccountID = &id
	}
	if tx.ToAccountID != nil {
		id := tx.ToAccountID.String()
		response.ToAccountID = &id
	}
	if tx.IdempotencyKey != nil {
		keyStr := tx.IdempotencyKey.String()
		response.IdempotencyKey = &keyStr
	}
	return response
}

func (h *TransactionHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	req, err := decodeAndValidate[MovementRequest](r)
	if err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	key, err := idempotencyKey(r, req.IdempotencyKey)
	if err != nil {
		writeError(w, err)
		return
	}

	transaction, account, err := h.transactionService.Deposit(r.Context(), &service.DepositRequest{
		AccountNumber:  mux.Vars(r)["account_number"],
		Amount:         amount,
		Description:    req.Description,
		IdempotencyKey: key,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, BalanceResponse{
		Transaction: toTransactionResponse(transaction),
		Account:     toAccountResponse(account),
	})
}

func (h *TransactionHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	req, err := decodeAndValidate[MovementRequest](r)
	if err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	key, err := idempotencyKey(r, req.IdempotencyKey)
	if err != nil {
		writeError(w, err)
		return
	}

	transaction, account, err := h.transactionService.Withdraw(r.Context(), &service.WithdrawalRequest{
		AccountNumber:  mux.Vars(r)["account_number"],
		Amount:         amount,
		Description:    req.Description,
		IdempotencyKey: key,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, BalanceResponse{
		Transaction: toTransactionResponse(transaction),
		Account:     toAccountResponse(account),
	})
}

func (h *TransactionHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	req, err := decodeAndValidate[TransferRequest](r)
	if err != nil {
		writeError(w, err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	key, err := idempotencyKey(r, req.IdempotencyKey)
	if err != nil {
		writeError(w, err)
		return
	}

	transaction, err := h.transactionService.Transfer(r.Context(), &service.TransferRequest{
		FromAccountNumber: req.FromAccountNumber,
		ToAccountNumber:   req.ToAccountNumber,
		Amount:            amount,
		Description:       req.Description,
		IdempotencyKey:    key,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toTransactionResponse(transaction))
}

func (h *TransactionHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	transaction, err := h.transactionService.GetTransaction(r.Context(), mux.Vars(r)["transaction_id"])
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toTransactionResponse(transaction))
}

func (h *TransactionHandler) ListAccountTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.transactionService.ListAccountTransactions(r.Context(), mux.Vars(r)["account_number"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeTransactions(w, txs)
}

func (h *TransactionHandler) ListByStatus(w http.ResponseWriter, r *http.Request) {
	status := domain.TransactionStatus(mux.Vars(r)["status"])
	txs, err := h.transactionService.ListTransactionsByStatus(r.Context(), status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeTransactions(w, txs)
}

func writeTransactions(w http.ResponseWriter, txs []*domain.Transaction) {
	response := make([]TransactionResponse, 0, len(txs))
	for _, tx := range txs {
		response = append(response, toTransactionResponse(tx))
	}
	writeJSON(w, http.StatusOK, response)
}
