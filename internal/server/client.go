package server

import (
	"connectrpc.com/connect"
)

// Client is a typed Connect client for the loyalty procedures used by
// tools and integration tests.
type Client struct {
	SyncBusiness        *connect.Client[SyncBusinessRequest, BusinessResponse]
	SyncClient          *connect.Client[SyncClientRequest, ClientResponse]
	IssueStamp          *connect.Client[IssueStampRequest, StampResponse]
	RedeemStamp         *connect.Client[RedeemStampRequest, RedeemStampResponse]
	GetCard             *connect.Client[CardRequest, CardResponse]
	ListCardsByBusiness *connect.Client[ListCardsByBusinessRequest, CardsResponse]
	CreateReward        *connect.Client[CreateRewardRequest, RewardResponse]
	RedeemReward        *connect.Client[RedeemRewardRequest, TicketResponse]
	DeliverRedemption   *connect.Client[DeliverRedemptionRequest, TicketResponse]
	FindTicketByCode    *connect.Client[FindTicketByCodeRequest, TicketResponse]
	DashboardCounts     *connect.Client[DashboardCountsRequest, DashboardCountsResponse]
	ExpireStale         *connect.Client[ExpireStaleRequest, ExpireStaleResponse]
}

// NewClient creates a client for the service at baseURL.
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	opts = append([]connect.ClientOption{connect.WithCodec(JSONCodec{})}, opts...)
	url := func(method string) string { return baseURL + Procedure(method) }

	return &Client{
		SyncBusiness:        connect.NewClient[SyncBusinessRequest, BusinessResponse](httpClient, url("SyncBusiness"), opts...),
		SyncClient:          connect.NewClient[SyncClientRequest, ClientResponse](httpClient, url("SyncClient"), opts...),
		IssueStamp:          connect.NewClient[IssueStampRequest, StampResponse](httpClient, url("IssueStamp"), opts...),
		RedeemStamp:         connect.NewClient[RedeemStampRequest, RedeemStampResponse](httpClient, url("RedeemStamp"), opts...),
		GetCard:             connect.NewClient[CardRequest, CardResponse](httpClient, url("GetCard"), opts...),
		ListCardsByBusiness: connect.NewClient[ListCardsByBusinessRequest, CardsResponse](httpClient, url("ListCardsByBusiness"), opts...),
		CreateReward:        connect.NewClient[CreateRewardRequest, RewardResponse](httpClient, url("CreateReward"), opts...),
		RedeemReward:        connect.NewClient[RedeemRewardRequest, TicketResponse](httpClient, url("RedeemReward"), opts...),
		DeliverRedemption:   connect.NewClient[DeliverRedemptionRequest, TicketResponse](httpClient, url("DeliverRedemption"), opts...),
		FindTicketByCode:    connect.NewClient[FindTicketByCodeRequest, TicketResponse](httpClient, url("FindTicketByCode"), opts...),
		DashboardCounts:     connect.NewClient[DashboardCountsRequest, DashboardCountsResponse](httpClient, url("DashboardCounts"), opts...),
		ExpireStale:         connect.NewClient[ExpireStaleRequest, ExpireStaleResponse](httpClient, url("ExpireStale"), opts...),
	}
}
