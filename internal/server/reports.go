package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"opsight/internal/engine"
)

func registerReports(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "submit-report",
		Method:        http.MethodPost,
		Path:          "/reports",
		Summary:       "Submit or replace a daily report",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body SubmitReportRequest `json:"body"`
	}) (*struct {
		Body ReportResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		report, err := e.SubmitReport(ctx, principal, engine.ReportDraft{
			WorkDate:        stringOrEmpty(input.Body.WorkDate),
			Title:           input.Body.Title,
			Content:         stringOrEmpty(input.Body.Content),
			WorkHours:       input.Body.WorkHours,
			MoodScore:       input.Body.MoodScore,
			EfficiencyScore: input.Body.EfficiencyScore,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ReportResponse `json:"body"`
		}{Body: reportResponse(report)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-report",
		Method:      http.MethodGet,
		Path:        "/reports/{id}",
		Summary:     "Get a daily report",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body ReportResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		report, err := e.GetReport(ctx, principal, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ReportResponse `json:"body"`
		}{Body: reportResponse(report)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-reports",
		Method:      http.MethodGet,
		Path:        "/reports",
		Summary:     "List visible daily reports",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		UserID string `query:"user_id"`
		From   string `query:"from"`
		To     string `query:"to"`
		Limit  int    `query:"limit" default:"50"`
		Cursor string `query:"cursor"`
	}) (*struct {
		Body paginatedReports `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		limit := normalizeLimit(input.Limit)
		cursorCreated, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		reports, err := e.ListReports(ctx, principal, engine.ReportListOptions{
			UserID:          input.UserID,
			From:            input.From,
			To:              input.To,
			Limit:           limit + 1,
			CursorCreatedAt: cursorCreated,
			CursorID:        cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedReports{Items: []ReportResponse{}}
		if len(reports) > limit {
			reports = reports[:limit]
			last := reports[len(reports)-1]
			resp.NextCursor = composeCursor(last.CreatedAt, last.ID)
		}
		for _, r := range reports {
			resp.Items = append(resp.Items, reportResponse(r))
		}
		return &struct {
			Body paginatedReports `json:"body"`
		}{Body: resp}, nil
	})
}
