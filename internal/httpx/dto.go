package httpx

import "github.com/shopspring/decimal"

type CreateOrderRequest struct {
	ID     string          `json:"id"`
	Secret string          `json:"secret"`
	Amount decimal.Decimal `json:"amount"`
}

type OrderResponse struct {
	ID            string `json:"id"`
	Amount        string `json:"amount"`
	State         string `json:"state"`
	SettlementRef string `json:"settlement_reference,omitempty"`
}

type OrderListResponse struct {
	Orders []OrderResponse `json:"orders"`
}

type ClaimRequest struct {
	Secret  string `json:"secret"`
	Address string `json:"address"`
}

type ClaimResponse struct {
	SettlementRef string `json:"settlement_reference"`
}

type TokenAddressResponse struct {
	Address string `json:"address"`
}

type TotalSupplyResponse struct {
	TotalSupply string `json:"total_supply"`
}

type AllowanceResponse struct {
	Owner     string `json:"owner"`
	Spender   string `json:"spender"`
	Allowance string `json:"allowance"`
}

type ProposalResponse struct {
	Name      string `json:"name"`
	VoteCount string `json:"vote_count"`
}

type DelegateRequest struct {
	Address string `json:"address"`
}

type VoteRequest struct {
	Choice string `json:"choice"`
}

type RequestTokensRequest struct {
	Address string          `json:"address"`
	Amount  decimal.Decimal `json:"amount"`
}

type ReferenceResponse struct {
	Reference string `json:"reference"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
