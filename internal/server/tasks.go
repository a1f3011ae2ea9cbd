package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"opsight/internal/engine"
)

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateTaskRequest `json:"body"`
	}) (*struct {
		Body TaskViewResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		draft := engine.TaskDraft{
			Title:            input.Body.Title,
			Description:      stringOrEmpty(input.Body.Description),
			TaskKind:         input.Body.TaskKind,
			AssignmentKind:   input.Body.AssignmentKind,
			AssignedUserID:   stringOrEmpty(input.Body.AssignedUserID),
			TargetGroupID:    stringOrEmpty(input.Body.TargetGroupID),
			TargetIdentity:   stringOrEmpty(input.Body.TargetIdentity),
			Priority:         stringOrEmpty(input.Body.Priority),
			TargetValue:      input.Body.TargetValue,
			ChainTargetCount: input.Body.ChainTargetCount,
			DueDate:          stringOrEmpty(input.Body.DueDate),
			StartTime:        stringOrEmpty(input.Body.StartTime),
			EndTime:          stringOrEmpty(input.Body.EndTime),
			Tags:             input.Body.Tags,
		}
		t, err := e.CreateTask(ctx, principal, draft)
		if err != nil {
			return nil, handleError(err)
		}
		view, err := e.GetTaskView(ctx, principal, t.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskViewResponse `json:"body"`
		}{Body: taskViewResponse(view)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "List visible tasks",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Status       string `query:"status"`
		Priority     string `query:"priority"`
		TaskKind     string `query:"task_kind"`
		UserID       string `query:"user_id"`
		AssignedToMe bool   `query:"assigned_to_me"`
		CreatedByMe  bool   `query:"created_by_me"`
		Limit        int    `query:"limit" default:"50"`
		Cursor       string `query:"cursor"`
	}) (*struct {
		Body paginatedTaskViews `json:"body"`
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
		opts := engine.TaskListOptions{
			Status:          input.Status,
			Priority:        input.Priority,
			TaskKind:        input.TaskKind,
			AssignedUserID:  input.UserID,
			Limit:           limit + 1,
			CursorCreatedAt: cursorCreated,
			CursorID:        cursorID,
		}
		if input.CreatedByMe {
			opts.CreatedBy = principal.UserID
		}
		if input.AssignedToMe && opts.AssignedUserID == "" {
			opts.AssignedUserID = principal.UserID
		}
		tasks, err := e.ListVisibleTasks(ctx, principal, opts)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedTaskViews{Items: []TaskViewResponse{}}
		if len(tasks) > limit {
			tasks = tasks[:limit]
			last := tasks[len(tasks)-1]
			resp.NextCursor = composeCursor(last.CreatedAt, last.ID)
		}
		views, err := e.TaskViews(ctx, principal, tasks)
		if err != nil {
			return nil, handleError(err)
		}
		for _, v := range views {
			resp.Items = append(resp.Items, taskViewResponse(v))
		}
		return &struct {
			Body paginatedTaskViews `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-task",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}",
		Summary:     "Get task with progress",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body TaskViewResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		view, err := e.GetTaskView(ctx, principal, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskViewResponse `json:"body"`
		}{Body: taskViewResponse(view)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/tasks/{id}",
		Summary:     "Update task",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body UpdateTaskRequest `json:"body"`
	}) (*struct {
		Body TaskViewResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		upd := engine.TaskUpdate{
			ID:          input.ID,
			Title:       input.Body.Title,
			Description: input.Body.Description,
			Priority:    input.Body.Priority,
			Status:      input.Body.Status,
			DueDate:     input.Body.DueDate,
			StartTime:   input.Body.StartTime,
			EndTime:     input.Body.EndTime,
			Tags:        input.Body.Tags,
		}
		if _, err := e.UpdateTask(ctx, principal, upd); err != nil {
			return nil, handleError(err)
		}
		view, err := e.GetTaskView(ctx, principal, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskViewResponse `json:"body"`
		}{Body: taskViewResponse(view)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-task",
		Method:      http.MethodDelete,
		Path:        "/tasks/{id}",
		Summary:     "Delete task",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteTask(ctx, principal, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	registerParticipation(api, e)
	registerTaskSubLists(api, e)
}

func registerParticipation(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "record-amount",
		Method:        http.MethodPost,
		Path:          "/tasks/{id}/amount",
		Summary:       "Record an amount contribution",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ID   string             `path:"id"`
		Body RecordValueRequest `json:"body"`
	}) (*struct {
		Body TaskViewResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		view, err := e.RecordAmount(ctx, principal, input.ID, input.Body.Value, input.Body.Note)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskViewResponse `json:"body"`
		}{Body: taskViewResponse(view)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "record-quantity",
		Method:        http.MethodPost,
		Path:          "/tasks/{id}/quantity",
		Summary:       "Record whole units",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ID   string             `path:"id"`
		Body RecordValueRequest `json:"body"`
	}) (*struct {
		Body TaskViewResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		view, err := e.RecordQuantity(ctx, principal, input.ID, input.Body.Value, input.Body.Note)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskViewResponse `json:"body"`
		}{Body: taskViewResponse(view)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "append-chain-entry",
		Method:        http.MethodPost,
		Path:          "/tasks/{id}/chain",
		Summary:       "Append a chain entry",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body ChainEntryRequest `json:"body"`
	}) (*struct {
		Body ChainEntryResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		entry, err := e.AppendChainEntry(ctx, principal, input.ID, input.Body.ExternalID, input.Body.Note, input.Body.Intention)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ChainEntryResponse `json:"body"`
		}{Body: chainEntryResponse(entry)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "complete-checkbox",
		Method:        http.MethodPost,
		Path:          "/tasks/{id}/checkbox",
		Summary:       "Complete a checkbox task",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ID   string                    `path:"id"`
		Body CheckboxCompletionRequest `json:"body"`
	}) (*struct {
		Body TaskViewResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		var dataJSON *string
		if input.Body.CompletionData != nil {
			data, err := json.Marshal(input.Body.CompletionData)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid completion_data", map[string]any{"error": err.Error()})
			}
			asStr := string(data)
			dataJSON = &asStr
		}
		view, err := e.CompleteCheckbox(ctx, principal, input.ID, input.Body.CompletionValue, dataJSON)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body TaskViewResponse `json:"body"`
		}{Body: taskViewResponse(view)}, nil
	})
}

func registerTaskSubLists(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-task-records",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}/records",
		Summary:     "List amount/quantity records",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID     string `path:"id"`
		UserID string `query:"user_id"`
	}) (*struct {
		Body recordList `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		records, err := e.ListTaskRecords(ctx, principal, input.ID, input.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]RecordResponse, 0, len(records))
		for _, r := range records {
			res = append(res, recordResponse(r))
		}
		return &struct {
			Body recordList `json:"body"`
		}{Body: recordList{Items: res, Total: len(res)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-chain-entries",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}/chain",
		Summary:     "List chain entries",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID     string `path:"id"`
		UserID string `query:"user_id"`
	}) (*struct {
		Body chainEntryList `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		entries, err := e.ListChainEntries(ctx, principal, input.ID, input.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]ChainEntryResponse, 0, len(entries))
		for _, v := range entries {
			res = append(res, chainEntryResponse(v))
		}
		return &struct {
			Body chainEntryList `json:"body"`
		}{Body: chainEntryList{Items: res, Total: len(res)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-checkbox-completions",
		Method:      http.MethodGet,
		Path:        "/tasks/{id}/completions",
		Summary:     "List checkbox completions",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID     string `path:"id"`
		UserID string `query:"user_id"`
	}) (*struct {
		Body completionList `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		completions, err := e.ListCheckboxCompletions(ctx, principal, input.ID, input.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]CompletionResponse, 0, len(completions))
		for _, c := range completions {
			res = append(res, completionResponse(c))
		}
		return &struct {
			Body completionList `json:"body"`
		}{Body: completionList{Items: res, Total: len(res)}}, nil
	})
}
