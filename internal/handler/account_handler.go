package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"ledger-core/internal/domain"
	"ledger-core/internal/service"
)

type AccountHandler struct {
	accountService *service.AccountService
}

func NewAccountHandler(accountService *service.AccountService) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
	}
}

type CreateAccountRequest struct {
	CustomerID     string `json:"customer_id" validate:"required,max=64"`
	AccountType    string `json:"account_type" validate:"required,oneof=CHECKING SAVINGS CREDIT"`
	Currency       string `json:"currency" validate:"required,oneof=USD EUR GBP JPY"`
	OverdraftLimit string `json:"overdraft_limit,omitempty"`
	InitialBalance string `json:"initial_balance,omitempty"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=ACTIVE INACTIVE FROZEN CLOSED"`
}

type AccountResponse struct {
	AccountNumber  string    `json:"account_number"`
	CustomerID     string    `json:"customer_id"`
	AccountType    string    `json:"account_type"`
	Currency       string    `json:"currency"`
	Balance        string    `json:"balance"`
	OverdraftLimit string    `json:"overdraft_limit"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

func toAccountResponse(account *domain.Account) AccountResponse {
	return AccountResponse{
		AccountNumber:  account.AccountNumber,
		CustomerID:     account.CustomerID,
		AccountType:    string(account.Type),
		Currency:       string(account.Currency),
		Balance:        account.Balance.String(),
		OverdraftLimit: account.OverdraftLimit.String(),
		Status:         string(account.Status),
		CreatedAt:      account.CreatedAt,
		UpdatedAt:      account.UpdatedAt,
		LastActivityAt: account.LastActivityAt,
	}
}

func (h *AccountHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	req, err := decodeAndValidate[CreateAccountRequest](r)
	if err != nil {
		writeError(w, err)
		return
	}

	overdraftLimit, err := parseOptionalAmount("overdraft_limit", req.OverdraftLimit)
	if err != nil {
		writeError(w, err)
		return
	}
	initialBalance, err := parseOptionalAmount("initial_balance", req.InitialBalance)
	if err != nil {
		writeError(w, err)
		return
	}

	account, err := h.accountService.CreateAccount(r.Context(), &service.CreateAccountRequest{
		CustomerID:     req.CustomerID,
		Type:           domain.AccountType(req.AccountType),
		Currency:       domain.Currency(req.Currency),
		OverdraftLimit: overdraftLimit,
		InitialBalance: initialBalance,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toAccountResponse(account))
}

func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.accountService.GetAccount(r.Context(), mux.Vars(r)["account_number"])
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAccountResponse(account))
}

func (h *AccountHandler) ListCustomerAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accountService.ListCustomerAccounts(r.Context(), mux.Vars(r)["customer_id"])
	if err != nil {
		writeError(w, err)
		return
	}

	response := make([]AccountResponse, 0, len(accounts))
	for _, account := range accounts {
		response = append(response, toAccountResponse(account))
	}
	writeJSON(w, http.StatusOK, response)
}

func (h *AccountHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	req, err := decodeAndValidate[UpdateStatusRequest](r)
	if err != nil {
		writeError(w, err)
		return
	}

	account, err := h.accountService.UpdateAccountStatus(r.Context(), mux.Vars(r)["account_number"],
		domain.AccountStatus(req.Status))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAccountResponse(account))
}
