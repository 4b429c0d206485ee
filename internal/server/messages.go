package server

import (
	"github.com/shopspring/decimal"

	"github.com/kkkkikiki/loyalty/internal/model"
	"github.com/kkkkikiki/loyalty/internal/service"
	"github.com/kkkkikiki/loyalty/internal/sweeper"
)

// Directory

type SyncBusinessRequest struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	LogoURL string `json:"logo_url"`
}

type BusinessResponse struct {
	Business *model.Business `json:"business"`
}

type SyncClientRequest struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type ClientResponse struct {
	Client *model.Client `json:"client"`
}

// Stamps

type IssueStampRequest struct {
	BusinessID  string           `json:"business_id"`
	Kind        model.StampKind  `json:"kind"`
	Value       int              `json:"value,omitempty"`
	SaleAmount  *decimal.Decimal `json:"sale_amount,omitempty"`
	Description string           `json:"description"`
	TTLSeconds  int              `json:"ttl_seconds,omitempty"`
}

type RedeemStampRequest struct {
	ClientID string `json:"client_id"`
	Code     string `json:"code"`
}

type RedeemStampResponse = service.StampRedemptionResult

type CancelStampRequest struct {
	BusinessID string `json:"business_id"`
	StampID    string `json:"stamp_id"`
}

type GetStampByCodeRequest struct {
	Code string `json:"code"`
}

type StampResponse struct {
	Stamp *model.Stamp `json:"stamp"`
}

type ListStampsByBusinessRequest struct {
	BusinessID string            `json:"business_id"`
	Status     model.StampStatus `json:"status,omitempty"`
	Kind       model.StampKind   `json:"kind,omitempty"`
	Limit      int               `json:"limit,omitempty"`
	Offset     int               `json:"offset,omitempty"`
}

type StampsResponse struct {
	Stamps []model.Stamp `json:"stamps"`
}

// Cards

type CardRequest struct {
	ClientID   string `json:"client_id"`
	BusinessID string `json:"business_id"`
}

type CardResponse struct {
	Card *model.LoyaltyCard `json:"card"`
}

type ListCardsByClientRequest struct {
	ClientID string `json:"client_id"`
	Limit    int    `json:"limit,omitempty"`
	Offset   int    `json:"offset,omitempty"`
}

type ListCardsByBusinessRequest struct {
	BusinessID string `json:"business_id"`
	Limit      int    `json:"limit,omitempty"`
	Offset     int    `json:"offset,omitempty"`
}

type CardsResponse struct {
	Cards []model.LoyaltyCard `json:"cards"`
}

// Rewards

type CreateRewardRequest struct {
	BusinessID string `json:"business_id"`
	model.RewardInput
}

type UpdateRewardRequest struct {
	BusinessID string `json:"business_id"`
	RewardID   string `json:"reward_id"`
	model.RewardInput
}

type RewardRequest struct {
	BusinessID string `json:"business_id"`
	RewardID   string `json:"reward_id"`
}

type RewardResponse struct {
	Reward *model.Reward `json:"reward"`
}

type ListRewardsByBusinessRequest struct {
	BusinessID      string `json:"business_id"`
	IncludeInactive bool   `json:"include_inactive,omitempty"`
}

type RewardsResponse struct {
	Rewards []model.Reward `json:"rewards"`
}

// Tickets

type RedeemRewardRequest struct {
	BusinessID string `json:"business_id"`
	RewardID   string `json:"reward_id"`
	ClientID   string `json:"client_id"`
}

type DeliverRedemptionRequest struct {
	BusinessID  string  `json:"business_id"`
	TicketID    string  `json:"ticket_id"`
	DeliveredBy string  `json:"delivered_by"`
	Notes       *string `json:"notes,omitempty"`
}

type CancelRedemptionRequest struct {
	BusinessID string  `json:"business_id"`
	TicketID   string  `json:"ticket_id"`
	Notes      *string `json:"notes,omitempty"`
}

type FindTicketByCodeRequest struct {
	BusinessID string `json:"business_id"`
	Code       string `json:"code"`
}

type TicketResponse struct {
	Ticket *model.Ticket `json:"ticket"`
}

type ListTicketsByBusinessRequest struct {
	BusinessID string                 `json:"business_id"`
	Status     model.RedemptionStatus `json:"status,omitempty"`
	Limit      int                    `json:"limit,omitempty"`
	Offset     int                    `json:"offset,omitempty"`
}

type ListTicketsByClientRequest struct {
	ClientID string                 `json:"client_id"`
	Status   model.RedemptionStatus `json:"status,omitempty"`
	Limit    int                    `json:"limit,omitempty"`
	Offset   int                    `json:"offset,omitempty"`
}

type TicketsResponse struct {
	Tickets []model.Ticket `json:"tickets"`
}

type DashboardCountsRequest struct {
	BusinessID string `json:"business_id"`
}

type DashboardCountsResponse struct {
	Counts *model.DashboardCounts `json:"counts"`
}

// Maintenance

type ExpireStaleRequest struct{}

type ExpireStaleResponse = sweeper.Result
