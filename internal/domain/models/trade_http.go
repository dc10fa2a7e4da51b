package models

// Requests for trading HTTP endpoints. Defined in domain for consistency and reuse.

type TradeRequest struct {
	ReserveID string `json:"reserve_id" validate:"required"`
	Epoch     uint64 `json:"epoch" validate:"required,gte=1"`
	Initiator string `json:"initiator" validate:"required"`
	Amount    string `json:"amount" validate:"required,decimal"`
	MinOut    string `json:"min_out" default:"0"`
	Permit    string `json:"permit"` // hex signature, optional
}

type PreviewRequest struct {
	ReserveID string `query:"reserve_id" json:"reserve_id" validate:"required"`
	Epoch     uint64 `query:"epoch" json:"epoch" validate:"required,gte=1"`
	Amount    string `query:"amount" json:"amount" validate:"required,decimal"`
}

type HiyaRequest struct {
	ReserveID string `query:"reserve_id" json:"reserve_id" validate:"required"`
}

type RolloverWindowRequest struct {
	ReserveID string `query:"reserve_id" json:"reserve_id" validate:"required"`
}

type CreateReserveRequest struct {
	ReserveID           string `json:"reserve_id" validate:"required"`
	DecayRateDays       string `json:"decay_rate_days" validate:"required,decimal"`
	SellPressureCap     string `json:"sell_pressure_cap" default:"100"`
	GradualSaleDisabled bool   `json:"gradual_sale_disabled"`
}

type IssueEpochRequest struct {
	ReserveID            string `json:"reserve_id" validate:"required"`
	Epoch                uint64 `json:"epoch" validate:"required,gte=1"`
	DS                   string `json:"ds" validate:"required"`
	CT                   string `json:"ct" validate:"required"`
	RA                   string `json:"ra" validate:"required"`
	MaturesAt            int64  `json:"matures_at" validate:"required,gt=0"`
	RolloverWindowBlocks uint64 `json:"rollover_window_blocks" default:"0"`
}

type UpdateParamsRequest struct {
	ReserveID           string  `json:"reserve_id" validate:"required"`
	DecayRateDays       *string `json:"decay_rate_days"`
	SellPressureCap     *string `json:"sell_pressure_cap"`
	GradualSaleDisabled *bool   `json:"gradual_sale_disabled"`
}

type TradesQueryRequest struct {
	ReserveID string `query:"reserve_id" json:"reserve_id" validate:"required"`
	From      string `query:"from" json:"from"`
	To        string `query:"to" json:"to"`
	Limit     int    `query:"limit" json:"limit" default:"100" validate:"gte=1,lte=5000"`
}
