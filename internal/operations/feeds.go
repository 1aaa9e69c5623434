package operations

import (
	"context"

	"github.com/google/uuid"
	"github.com/tidwall/sjson"

	"github.com/Pelmog/zigi-amazon-mcp/internal/dispatcher"
	"github.com/Pelmog/zigi-amazon-mcp/internal/envelope"
)

// SubmitFeedParams is the submitFeed tool's input.
type SubmitFeedParams struct {
	FeedType       string
	Content        []byte
	ContentType    string
	MarketplaceIDs []string
}

// SubmitFeed implements the three-step feed submission: create a feed
// document, upload the raw content to the returned pre-signed URL, then
// create the feed referencing the uploaded document (spec.md §4.6). A
// client-generated submission id correlates the three calls in logs/
// metadata the way the dispatcher's per-call x-request-id cannot, since it
// spans more than one HTTP round trip.
func (a *Adapter) SubmitFeed(ctx context.Context, p SubmitFeedParams) envelope.Envelope {
	mp, err := a.resolveOne(p.MarketplaceIDs)
	if err != nil {
		return envelope.Failure(err, envelope.Metadata{})
	}
	submissionID := uuid.NewString()
	meta := a.baseMetadata(mp, submissionID)
	if p.FeedType == "" || len(p.Content) == 0 {
		return envelope.Failure(envelope.New(envelope.InvalidInput, "feedType and content are required"), meta)
	}
	contentType := p.ContentType
	if contentType == "" {
		contentType = "text/tab-separated-values; charset=UTF-8"
	}

	const createDocPath = "/feeds/2021-06-30/documents"
	createDocBody, _ := sjson.SetBytes([]byte(`{}`), "contentType", contentType)
	docResult, err := a.dispatchJSON(ctx, dispatcher.RequestContext{
		OperationName: "submitFeed.createFeedDocument",
		Method:        methodPost,
		Path:          createDocPath,
		URL:           endpointURL(mp, createDocPath, nil),
		Body:          createDocBody,
		Marketplace:   mp,
	})
	if err != nil {
		return envelope.Failure(err, meta)
	}
	feedDocumentID := gjsonString(docResult.Body, "feedDocumentId")
	uploadURL := gjsonString(docResult.Body, "url")
	if feedDocumentID == "" || uploadURL == "" {
		return envelope.Failure(envelope.Wrap(envelope.UpstreamError, "createFeedDocument response missing feedDocumentId/url", nil), meta)
	}

	if _, err := a.dispatchJSON(ctx, dispatcher.RequestContext{
		OperationName: "submitFeed.upload",
		Method:        methodPut,
		Path:          createDocPath,
		URL:           uploadURL,
		Body:          p.Content,
		Headers:       map[string]string{"Content-Type": contentType},
		Marketplace:   mp,
	}); err != nil {
		return envelope.Failure(err, meta)
	}

	const createFeedPath = "/feeds/2021-06-30/feeds"
	feedBody, _ := sjson.SetBytes([]byte(`{}`), "feedType", p.FeedType)
	feedBody, _ = sjson.SetBytes(feedBody, "marketplaceIds", []string{mp.ID})
	feedBody, _ = sjson.SetBytes(feedBody, "inputFeedDocumentId", feedDocumentID)
	feedResult, err := a.dispatchJSON(ctx, dispatcher.RequestContext{
		OperationName: "submitFeed.createFeed",
		Method:        methodPost,
		Path:          createFeedPath,
		URL:           endpointURL(mp, createFeedPath, nil),
		Body:          feedBody,
		Marketplace:   mp,
	})
	if err != nil {
		return envelope.Failure(err, meta)
	}
	meta.RequestID = feedResult.RequestID
	return envelope.Success(map[string]interface{}{
		"feedId":       gjsonString(feedResult.Body, "feedId"),
		"submissionId": submissionID,
	}, meta)
}

// FeedStatusParams is the feedStatus tool's input.
type FeedStatusParams struct {
	FeedID string
}

// FeedStatus implements `GET /feeds/2021-06-30/feeds/{feedId}`.
func (a *Adapter) FeedStatus(ctx context.Context, p FeedStatusParams) envelope.Envelope {
	mp := a.marketplaces.Default()
	meta := a.baseMetadata(mp, "")
	if p.FeedID == "" {
		return envelope.Failure(envelope.New(envelope.InvalidInput, "feedId is required"), meta)
	}

	path := "/feeds/2021-06-30/feeds/" + p.FeedID
	result, err := a.dispatchJSON(ctx, dispatcher.RequestContext{
		OperationName: "feedStatus",
		Method:        methodGet,
		Path:          "/feeds/2021-06-30/feeds",
		URL:           endpointURL(mp, path, nil),
		Marketplace:   mp,
	})
	if err != nil {
		return envelope.Failure(err, meta)
	}
	meta.RequestID = result.RequestID
	return envelope.Success(payloadObject(result.Body, ""), meta)
}
