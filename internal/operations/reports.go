package operations

import (
	"context"

	"github.com/tidwall/sjson"

	"github.com/Pelmog/zigi-amazon-mcp/internal/dispatcher"
	"github.com/Pelmog/zigi-amazon-mcp/internal/envelope"
)

// RequestReportParams is the requestReport tool's input.
type RequestReportParams struct {
	ReportType     string
	MarketplaceIDs []string
	StartDate      string
	EndDate        string
}

// RequestReport implements `POST /reports/2021-06-30/reports`, returning
// the reportId the caller polls with getReport (spec.md §4.6 "analogous
// two-step pattern" to submitFeed).
func (a *Adapter) RequestReport(ctx context.Context, p RequestReportParams) envelope.Envelope {
	mp, err := a.resolveOne(p.MarketplaceIDs)
	if err != nil {
		return envelope.Failure(err, envelope.Metadata{})
	}
	meta := a.baseMetadata(mp, "")
	if p.ReportType == "" {
		return envelope.Failure(envelope.New(envelope.InvalidInput, "reportType is required"), meta)
	}
	if err := validateISODate("startDate", p.StartDate); err != nil {
		return envelope.Failure(err, meta)
	}
	if err := validateISODate("endDate", p.EndDate); err != nil {
		return envelope.Failure(err, meta)
	}

	body, _ := sjson.SetBytes([]byte(`{}`), "reportType", p.ReportType)
	body, _ = sjson.SetBytes(body, "marketplaceIds", []string{mp.ID})
	if p.StartDate != "" {
		body, _ = sjson.SetBytes(body, "dataStartTime", p.StartDate)
	}
	if p.EndDate != "" {
		body, _ = sjson.SetBytes(body, "dataEndTime", p.EndDate)
	}

	const path = "/reports/2021-06-30/reports"
	result, err := a.dispatchJSON(ctx, dispatcher.RequestContext{
		OperationName: "requestReport",
		Method:        methodPost,
		Path:          path,
		URL:           endpointURL(mp, path, nil),
		Body:          body,
		Marketplace:   mp,
	})
	if err != nil {
		return envelope.Failure(err, meta)
	}
	meta.RequestID = result.RequestID
	return envelope.Success(map[string]interface{}{"reportId": gjsonString(result.Body, "reportId")}, meta)
}

// GetReportParams is the getReport tool's input.
type GetReportParams struct {
	ReportID string
}

// GetReport implements the report-retrieval two-step: fetch the report's
// processing status and, once DONE, the reportDocumentId's download
// descriptor (spec.md §4.6). Callers fetch the actual document content from
// the returned URL themselves; this adapter stays within the SP-API surface.
func (a *Adapter) GetReport(ctx context.Context, p GetReportParams) envelope.Envelope {
	mp := a.marketplaces.Default()
	meta := a.baseMetadata(mp, "")
	if p.ReportID == "" {
		return envelope.Failure(envelope.New(envelope.InvalidInput, "reportId is required"), meta)
	}

	statusPath := "/reports/2021-06-30/reports/" + p.ReportID
	statusResult, err := a.dispatchJSON(ctx, dispatcher.RequestContext{
		OperationName: "getReport.status",
		Method:        methodGet,
		Path:          "/reports/2021-06-30/reports",
		URL:           endpointURL(mp, statusPath, nil),
		Marketplace:   mp,
	})
	if err != nil {
		return envelope.Failure(err, meta)
	}
	meta.RequestID = statusResult.RequestID
	status := gjsonString(statusResult.Body, "processingStatus")
	reportDocumentID := gjsonString(statusResult.Body, "reportDocumentId")

	out := map[string]interface{}{"processingStatus": status, "reportId": p.ReportID}
	if status != "DONE" || reportDocumentID == "" {
		return envelope.Success(out, meta)
	}

	docPath := "/reports/2021-06-30/documents/" + reportDocumentID
	docResult, err := a.dispatchJSON(ctx, dispatcher.RequestContext{
		OperationName: "getReport.document",
		Method:        methodGet,
		Path:          "/reports/2021-06-30/documents",
		URL:           endpointURL(mp, docPath, nil),
		Marketplace:   mp,
	})
	if err != nil {
		return envelope.Failure(err, meta)
	}
	meta.RequestID = docResult.RequestID
	out["downloadUrl"] = gjsonString(docResult.Body, "url")
	out["compressionAlgorithm"] = gjsonString(docResult.Body, "compressionAlgorithm")
	return envelope.Success(out, meta)
}
