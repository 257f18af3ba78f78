package models

// Requests for the operator HTTP endpoints. Defined in domain for consistency and reuse.

type StateRequest struct {
	Symbol string `query:"symbol" json:"symbol"`
}

type DecisionsRequest struct {
	Symbol string `query:"symbol" json:"symbol"`
	Limit  int    `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=1000"`
	From   string `query:"from" json:"from" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	To     string `query:"to" json:"to" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

type ProducerStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active inactive disabled"`
}
