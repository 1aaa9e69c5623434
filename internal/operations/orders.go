package operations

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/Pelmog/zigi-amazon-mcp/internal/dispatcher"
	"github.com/Pelmog/zigi-amazon-mcp/internal/envelope"
	"github.com/Pelmog/zigi-amazon-mcp/internal/pagination"
)

// ListOrdersParams is the listOrders tool's caller-facing input (spec.md §6).
type ListOrdersParams struct {
	MarketplaceIDs []string
	CreatedAfter   string
	CreatedBefore  string
	Statuses       []string
	MaxResults     int
	Filter         FilterParams
}

// ListOrders implements `GET /orders/v0/orders`, paginated via the driver
// (C8), with date-range and status filters (spec.md §4.6).
func (a *Adapter) ListOrders(ctx context.Context, p ListOrdersParams) envelope.Envelope {
	mp, err := a.resolveOne(p.MarketplaceIDs)
	if err != nil {
		return envelope.Failure(err, envelope.Metadata{})
	}
	meta := a.baseMetadata(mp, "")

	if err := validateISODate("createdAfter", p.CreatedAfter); err != nil {
		return envelope.Failure(err, meta)
	}
	if err := validateISODate("createdBefore", p.CreatedBefore); err != nil {
		return envelope.Failure(err, meta)
	}

	const path = "/orders/v0/orders"
	fetch := func(ctx context.Context, token string) (pagination.Page, error) {
		query := map[string]string{"MarketplaceIds": mp.ID}
		if p.CreatedAfter != "" {
			query["CreatedAfter"] = p.CreatedAfter
		}
		if p.CreatedBefore != "" {
			query["CreatedBefore"] = p.CreatedBefore
		}
		for i, s := range p.Statuses {
			if i == 0 {
				query["OrderStatuses"] = s
			}
		}
		if token != "" {
			query["NextToken"] = token
		}
		result, err := a.dispatchJSON(ctx, dispatcher.RequestContext{
			OperationName: "listOrders",
			Method:        methodGet,
			Path:          path,
			URL:           endpointURL(mp, path, query),
			Query:         query,
			Marketplace:   mp,
		})
		if err != nil {
			return pagination.Page{}, err
		}
		orders := payloadArray(result.Body, "payload.Orders")
		next := gjsonString(result.Body, "payload.NextToken")
		return pagination.Page{Records: orders, NextToken: next, RequestID: result.RequestID}, nil
	}

	res, err := a.pager.Run(ctx, p.MaxResults, fetch)
	if err != nil {
		return envelope.Failure(err, meta)
	}
	meta.RequestID = res.RequestID
	meta.PageCount = pageCountFor(len(res.Records), p.MaxResults)

	out, meta, err := a.post.Apply(res.Records, "listOrders", p.Filter.selection(), meta)
	if err != nil {
		return envelope.Failure(err, meta)
	}
	return envelope.Success(out, meta)
}

// GetOrderParams is the getOrder tool's input.
type GetOrderParams struct {
	OrderID string
}

// GetOrder implements `GET /orders/v0/orders/{id}`.
func (a *Adapter) GetOrder(ctx context.Context, p GetOrderParams) envelope.Envelope {
	mp := a.marketplaces.Default()
	meta := a.baseMetadata(mp, "")
	if p.OrderID == "" {
		return envelope.Failure(envelope.New(envelope.InvalidInput, "orderId is required"), meta)
	}

	path := fmt.Sprintf("/orders/v0/orders/%s", p.OrderID)
	result, err := a.dispatchJSON(ctx, dispatcher.RequestContext{
		OperationName: "getOrder",
		Method:        methodGet,
		Path:          "/orders/v0/orders/{id}",
		URL:           endpointURL(mp, path, nil),
		Marketplace:   mp,
	})
	if err != nil {
		return envelope.Failure(err, meta)
	}
	meta.RequestID = result.RequestID
	order := payloadObject(result.Body, "payload")
	return envelope.Success(order, meta)
}

// GetOrderItemsParams is the getOrderItems tool's input.
type GetOrderItemsParams struct {
	OrderID    string
	MaxResults int
	Filter     FilterParams
}

// GetOrderItems implements `GET /orders/v0/orders/{id}/orderItems`,
// paginated via the driver (C8).
func (a *Adapter) GetOrderItems(ctx context.Context, p GetOrderItemsParams) envelope.Envelope {
	mp := a.marketplaces.Default()
	meta := a.baseMetadata(mp, "")
	if p.OrderID == "" {
		return envelope.Failure(envelope.New(envelope.InvalidInput, "orderId is required"), meta)
	}

	path := fmt.Sprintf("/orders/v0/orders/%s/orderItems", p.OrderID)
	fetch := func(ctx context.Context, token string) (pagination.Page, error) {
		query := map[string]string{}
		if token != "" {
			query["NextToken"] = token
		}
		result, err := a.dispatchJSON(ctx, dispatcher.RequestContext{
			OperationName: "getOrderItems",
			Method:        methodGet,
			Path:          "/orders/v0/orders/{id}/orderItems",
			URL:           endpointURL(mp, path, query),
			Query:         query,
			Marketplace:   mp,
		})
		if err != nil {
			return pagination.Page{}, err
		}
		items := payloadArray(result.Body, "payload.OrderItems")
		next := gjsonString(result.Body, "payload.NextToken")
		return pagination.Page{Records: items, NextToken: next, RequestID: result.RequestID}, nil
	}

	res, err := a.pager.Run(ctx, p.MaxResults, fetch)
	if err != nil {
		return envelope.Failure(err, meta)
	}
	meta.RequestID = res.RequestID

	out, meta, err := a.post.Apply(res.Records, "getOrderItems", p.Filter.selection(), meta)
	if err != nil {
		return envelope.Failure(err, meta)
	}
	return envelope.Success(out, meta)
}

func pageCountFor(recordCount, cap int) int {
	if cap <= 0 {
		cap = pagination.DefaultCap
	}
	if recordCount == 0 {
		return 0
	}
	return (recordCount + cap - 1) / cap
}

func gjsonString(body []byte, path string) string {
	return gjson.GetBytes(body, path).String()
}
