package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/go-chi/chi/v5"

	"github.com/kkkkikiki/loyalty/internal/config"
	"github.com/kkkkikiki/loyalty/internal/model"
	"github.com/kkkkikiki/loyalty/internal/service"
	"github.com/kkkkikiki/loyalty/internal/sweeper"
)

// ServiceName is the fully-qualified RPC service name.
const ServiceName = "loyalty.v1.LoyaltyService"

// Procedure returns the URL path of an RPC method.
func Procedure(method string) string {
	return "/" + ServiceName + "/" + method
}

// Handler exposes the loyalty core over Connect unary RPCs.
type Handler struct {
	svc     *service.LoyaltyService
	sweeper *sweeper.Sweeper
	redeem  *clientLimiter
}

// NewHandler creates a handler. sw serves the ExpireStale RPC.
func NewHandler(svc *service.LoyaltyService, sw *sweeper.Sweeper, cfg config.LoyaltyConfig) *Handler {
	if sw == nil {
		sw = sweeper.New(svc, cfg.SweepInterval)
	}
	return &Handler{
		svc:     svc,
		sweeper: sw,
		redeem:  newClientLimiter(cfg.RedeemInterval, cfg.RedeemBurst),
	}
}

// unary adapts a plain method to a Connect unary handler and maps its
// errors onto Connect codes.
func unary[Req, Res any](procedure string, fn func(context.Context, *Req) (*Res, error), opts ...connect.HandlerOption) http.Handler {
	return connect.NewUnaryHandler(procedure, func(ctx context.Context, req *connect.Request[Req]) (*connect.Response[Res], error) {
		res, err := fn(ctx, req.Msg)
		if err != nil {
			return nil, toConnectError(err)
		}
		return connect.NewResponse(res), nil
	}, opts...)
}

// logFailures logs every failed call with its code.
func logFailures() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			res, err := next(ctx, req)
			if err != nil {
				log.Printf("[RPC] %s failed after %v: %s (%s)",
					req.Spec().Procedure, time.Since(start), connect.CodeOf(err), Reason(err))
			}
			return res, err
		}
	}
}

// Mount registers every procedure on r.
func (h *Handler) Mount(r chi.Router) {
	opts := []connect.HandlerOption{
		connect.WithCodec(JSONCodec{}),
		connect.WithInterceptors(logFailures()),
	}

	handlers := map[string]http.Handler{
		"SyncBusiness": unary(Procedure("SyncBusiness"), h.SyncBusiness, opts...),
		"SyncClient":   unary(Procedure("SyncClient"), h.SyncClient, opts...),

		"IssueStamp":           unary(Procedure("IssueStamp"), h.IssueStamp, opts...),
		"RedeemStamp":          unary(Procedure("RedeemStamp"), h.RedeemStamp, opts...),
		"CancelStamp":          unary(Procedure("CancelStamp"), h.CancelStamp, opts...),
		"GetStampByCode":       unary(Procedure("GetStampByCode"), h.GetStampByCode, opts...),
		"ListStampsByBusiness": unary(Procedure("ListStampsByBusiness"), h.ListStampsByBusiness, opts...),

		"GetOrCreateCard":     unary(Procedure("GetOrCreateCard"), h.GetOrCreateCard, opts...),
		"GetCard":             unary(Procedure("GetCard"), h.GetCard, opts...),
		"ListCardsByClient":   unary(Procedure("ListCardsByClient"), h.ListCardsByClient, opts...),
		"ListCardsByBusiness": unary(Procedure("ListCardsByBusiness"), h.ListCardsByBusiness, opts...),

		"CreateReward":          unary(Procedure("CreateReward"), h.CreateReward, opts...),
		"UpdateReward":          unary(Procedure("UpdateReward"), h.UpdateReward, opts...),
		"DisableReward":         unary(Procedure("DisableReward"), h.DisableReward, opts...),
		"GetReward":             unary(Procedure("GetReward"), h.GetReward, opts...),
		"ListRewardsByBusiness": unary(Procedure("ListRewardsByBusiness"), h.ListRewardsByBusiness, opts...),

		"RedeemReward":          unary(Procedure("RedeemReward"), h.RedeemReward, opts...),
		"DeliverRedemption":     unary(Procedure("DeliverRedemption"), h.DeliverRedemption, opts...),
		"CancelRedemption":      unary(Procedure("CancelRedemption"), h.CancelRedemption, opts...),
		"FindTicketByCode":      unary(Procedure("FindTicketByCode"), h.FindTicketByCode, opts...),
		"ListTicketsByBusiness": unary(Procedure("ListTicketsByBusiness"), h.ListTicketsByBusiness, opts...),
		"ListTicketsByClient":   unary(Procedure("ListTicketsByClient"), h.ListTicketsByClient, opts...),
		"DashboardCounts":       unary(Procedure("DashboardCounts"), h.DashboardCounts, opts...),
		"ExpireStale":           unary(Procedure("ExpireStale"), h.ExpireStale, opts...),
	}
	for method, handler := range handlers {
		r.Handle(Procedure(method), handler)
	}
}

func (h *Handler) SyncBusiness(ctx context.Context, req *SyncBusinessRequest) (*BusinessResponse, error) {
	b, err := h.svc.SyncBusiness(ctx, model.Business{ID: req.ID, Name: req.Name, LogoURL: req.LogoURL})
	if err != nil {
		return nil, err
	}
	return &BusinessResponse{Business: b}, nil
}

func (h *Handler) SyncClient(ctx context.Context, req *SyncClientRequest) (*ClientResponse, error) {
	c, err := h.svc.SyncClient(ctx, model.Client{ID: req.ID, Name: req.Name, Email: req.Email})
	if err != nil {
		return nil, err
	}
	return &ClientResponse{Client: c}, nil
}

func (h *Handler) IssueStamp(ctx context.Context, req *IssueStampRequest) (*StampResponse, error) {
	stamp, err := h.svc.IssueStamp(ctx, service.IssueStampRequest{
		BusinessID:  req.BusinessID,
		Kind:        req.Kind,
		Description: req.Description,
		Value:       req.Value,
		SaleAmount:  req.SaleAmount,
		TTL:         time.Duration(req.TTLSeconds) * time.Second,
	})
	if err != nil {
		return nil, err
	}
	return &StampResponse{Stamp: stamp}, nil
}

func (h *Handler) RedeemStamp(ctx context.Context, req *RedeemStampRequest) (*RedeemStampResponse, error) {
	if !h.redeem.Allow(req.ClientID) {
		return nil, rateLimited()
	}
	return h.svc.RedeemStamp(ctx, req.ClientID, req.Code)
}

func (h *Handler) CancelStamp(ctx context.Context, req *CancelStampRequest) (*StampResponse, error) {
	stamp, err := h.svc.CancelStamp(ctx, req.BusinessID, req.StampID)
	if err != nil {
		return nil, err
	}
	return &StampResponse{Stamp: stamp}, nil
}

func (h *Handler) GetStampByCode(ctx context.Context, req *GetStampByCodeRequest) (*StampResponse, error) {
	stamp, err := h.svc.GetStampByCode(ctx, req.Code)
	if err != nil {
		return nil, err
	}
	return &StampResponse{Stamp: stamp}, nil
}

func (h *Handler) ListStampsByBusiness(ctx context.Context, req *ListStampsByBusinessRequest) (*StampsResponse, error) {
	stamps, err := h.svc.ListStampsByBusiness(ctx, req.BusinessID,
		model.StampFilter{Status: req.Status, Kind: req.Kind},
		model.Page{Limit: req.Limit, Offset: req.Offset})
	if err != nil {
		return nil, err
	}
	return &StampsResponse{Stamps: stamps}, nil
}

func (h *Handler) GetOrCreateCard(ctx context.Context, req *CardRequest) (*CardResponse, error) {
	card, err := h.svc.GetOrCreateCard(ctx, req.ClientID, req.BusinessID)
	if err != nil {
		return nil, err
	}
	return &CardResponse{Card: card}, nil
}

func (h *Handler) GetCard(ctx context.Context, req *CardRequest) (*CardResponse, error) {
	card, err := h.svc.GetCard(ctx, req.ClientID, req.BusinessID)
	if err != nil {
		return nil, err
	}
	return &CardResponse{Card: card}, nil
}

func (h *Handler) ListCardsByClient(ctx context.Context, req *ListCardsByClientRequest) (*CardsResponse, error) {
	cards, err := h.svc.ListCardsByClient(ctx, req.ClientID, model.Page{Limit: req.Limit, Offset: req.Offset})
	if err != nil {
		return nil, err
	}
	return &CardsResponse{Cards: cards}, nil
}

func (h *Handler) ListCardsByBusiness(ctx context.Context, req *ListCardsByBusinessRequest) (*CardsResponse, error) {
	cards, err := h.svc.ListCardsByBusiness(ctx, req.BusinessID, model.Page{Limit: req.Limit, Offset: req.Offset})
	if err != nil {
		return nil, err
	}
	return &CardsResponse{Cards: cards}, nil
}

func (h *Handler) CreateReward(ctx context.Context, req *CreateRewardRequest) (*RewardResponse, error) {
	reward, err := h.svc.CreateReward(ctx, req.BusinessID, req.RewardInput)
	if err != nil {
		return nil, err
	}
	return &RewardResponse{Reward: reward}, nil
}

func (h *Handler) UpdateReward(ctx context.Context, req *UpdateRewardRequest) (*RewardResponse, error) {
	reward, err := h.svc.UpdateReward(ctx, req.BusinessID, req.RewardID, req.RewardInput)
	if err != nil {
		return nil, err
	}
	return &RewardResponse{Reward: reward}, nil
}

func (h *Handler) DisableReward(ctx context.Context, req *RewardRequest) (*RewardResponse, error) {
	reward, err := h.svc.DisableReward(ctx, req.BusinessID, req.RewardID)
	if err != nil {
		return nil, err
	}
	return &RewardResponse{Reward: reward}, nil
}

func (h *Handler) GetReward(ctx context.Context, req *RewardRequest) (*RewardResponse, error) {
	reward, err := h.svc.GetReward(ctx, req.BusinessID, req.RewardID)
	if err != nil {
		return nil, err
	}
	return &RewardResponse{Reward: reward}, nil
}

func (h *Handler) ListRewardsByBusiness(ctx context.Context, req *ListRewardsByBusinessRequest) (*RewardsResponse, error) {
	rewards, err := h.svc.ListRewardsByBusiness(ctx, req.BusinessID, req.IncludeInactive)
	if err != nil {
		return nil, err
	}
	return &RewardsResponse{Rewards: rewards}, nil
}

func (h *Handler) RedeemReward(ctx context.Context, req *RedeemRewardRequest) (*TicketResponse, error) {
	if !h.redeem.Allow(req.ClientID) {
		return nil, rateLimited()
	}
	ticket, err := h.svc.RedeemReward(ctx, req.BusinessID, req.RewardID, req.ClientID)
	if err != nil {
		return nil, err
	}
	return &TicketResponse{Ticket: ticket}, nil
}

func (h *Handler) DeliverRedemption(ctx context.Context, req *DeliverRedemptionRequest) (*TicketResponse, error) {
	ticket, err := h.svc.DeliverRedemption(ctx, req.BusinessID, req.TicketID, req.DeliveredBy, req.Notes)
	if err != nil {
		return nil, err
	}
	return &TicketResponse{Ticket: ticket}, nil
}

func (h *Handler) CancelRedemption(ctx context.Context, req *CancelRedemptionRequest) (*TicketResponse, error) {
	ticket, err := h.svc.CancelRedemption(ctx, req.BusinessID, req.TicketID, req.Notes)
	if err != nil {
		return nil, err
	}
	return &TicketResponse{Ticket: ticket}, nil
}

func (h *Handler) FindTicketByCode(ctx context.Context, req *FindTicketByCodeRequest) (*TicketResponse, error) {
	ticket, err := h.svc.FindTicketByCode(ctx, req.BusinessID, req.Code)
	if err != nil {
		return nil, err
	}
	return &TicketResponse{Ticket: ticket}, nil
}

func (h *Handler) ListTicketsByBusiness(ctx context.Context, req *ListTicketsByBusinessRequest) (*TicketsResponse, error) {
	tickets, err := h.svc.ListTicketsByBusiness(ctx, req.BusinessID,
		model.TicketFilter{Status: req.Status}, model.Page{Limit: req.Limit, Offset: req.Offset})
	if err != nil {
		return nil, err
	}
	return &TicketsResponse{Tickets: tickets}, nil
}

func (h *Handler) ListTicketsByClient(ctx context.Context, req *ListTicketsByClientRequest) (*TicketsResponse, error) {
	tickets, err := h.svc.ListTicketsByClient(ctx, req.ClientID,
		model.TicketFilter{Status: req.Status}, model.Page{Limit: req.Limit, Offset: req.Offset})
	if err != nil {
		return nil, err
	}
	return &TicketsResponse{Tickets: tickets}, nil
}

func (h *Handler) DashboardCounts(ctx context.Context, req *DashboardCountsRequest) (*DashboardCountsResponse, error) {
	counts, err := h.svc.DashboardCounts(ctx, req.BusinessID)
	if err != nil {
		return nil, err
	}
	return &DashboardCountsResponse{Counts: counts}, nil
}

func (h *Handler) ExpireStale(ctx context.Context, _ *ExpireStaleRequest) (*ExpireStaleResponse, error) {
	res, err := h.sweeper.SweepOnce(ctx)
	if err != nil {
		return nil, err
	}
	return &res, nil
}
