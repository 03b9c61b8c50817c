package models

// Requests for the operator HTTP endpoints.

type ListSignalsRequest struct {
	Limit int `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=500"`
}

type ManualRejectRequest struct {
	ID     string `param:"id" json:"-" validate:"required,uuid"`
	Reason string `json:"reason" default:"operator" validate:"max=200"`
}

type ManualConfirmRequest struct {
	ID string `param:"id" json:"-" validate:"required,uuid"`
}

type RunJobRequest struct {
	Name string `param:"name" json:"-" validate:"required,max=64"`
}
