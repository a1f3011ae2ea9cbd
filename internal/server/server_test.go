package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"opsight/internal/config"
	"opsight/internal/db"
	"opsight/internal/domain"
	"opsight/internal/engine"
	"opsight/internal/migrate"
)

const testJWTSecret = "test-secret"

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default())
	e.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v1",
		Auth: AuthConfig{
			JWTSecret:             testJWTSecret,
			AllowLegacyUserHeader: true,
		},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func seedServerUser(t *testing.T, s *testServer, username, role string, groupID *string) domain.User {
	t.Helper()
	u := domain.User{
		ID:        uuid.NewString(),
		Username:  username,
		Role:      role,
		GroupID:   groupID,
		IsActive:  true,
		CreatedAt: "2024-01-01T00:00:00Z",
		UpdatedAt: "2024-01-01T00:00:00Z",
	}
	if err := s.Engine.Repo.InsertUser(context.Background(), u); err != nil {
		t.Fatalf("seed user %s: %v", username, err)
	}
	return u
}

func seedServerGroup(t *testing.T, s *testServer, name string) string {
	t.Helper()
	g := domain.UserGroup{ID: uuid.NewString(), Name: name, CreatedAt: "2024-01-01T00:00:00Z"}
	if err := s.Engine.Repo.InsertGroup(context.Background(), g); err != nil {
		t.Fatalf("seed group %s: %v", name, err)
	}
	return g.ID
}

func mintJWT(t *testing.T, userID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	data, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, data
}

func decodeMap(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return m
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("decode error envelope %s: %v", data, err)
	}
	return envelope.Error.Code
}

func TestHealthWithoutAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	resp, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	resp, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/tasks", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", resp.StatusCode, data)
	}
	if code := errorCode(t, data); code != "unauthorized" {
		t.Fatalf("expected unauthorized code, got %q", code)
	}

	resp, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/tasks", nil, map[string]string{
		"Authorization": "Bearer garbage",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 on bad token, got %d", resp.StatusCode)
	}
	if code := errorCode(t, data); code != "invalid_credentials" {
		t.Fatalf("expected invalid_credentials code, got %q", code)
	}
}

func TestTaskLifecycleOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	admin := seedServerUser(t, srv, "admin", domain.RoleSuperAdmin, nil)
	gid := seedServerGroup(t, srv, "alpha")
	member := seedServerUser(t, srv, "alice", domain.RoleUser, &gid)
	outsider := seedServerUser(t, srv, "bob", domain.RoleUser, nil)

	asAdmin := map[string]string{"X-User-Id": admin.ID}
	asMember := map[string]string{"X-User-Id": member.ID}
	asOutsider := map[string]string{"X-User-Id": outsider.ID}

	resp, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/tasks", map[string]any{
		"title":           "raise 100",
		"task_kind":       "amount",
		"assignment_kind": "group",
		"target_group_id": gid,
		"target_value":    100,
	}, asAdmin)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create task: expected 201, got %d: %s", resp.StatusCode, data)
	}
	task := decodeMap(t, data)
	taskID, _ := task["id"].(string)
	if taskID == "" {
		t.Fatalf("missing task id in %s", data)
	}

	// Group member sees the task, the outsider gets a 403 envelope.
	resp, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/tasks/"+taskID, nil, asMember)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("member get: expected 200, got %d", resp.StatusCode)
	}
	resp, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/tasks/"+taskID, nil, asOutsider)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("outsider get: expected 403, got %d: %s", resp.StatusCode, data)
	}
	if code := errorCode(t, data); code != "forbidden" {
		t.Fatalf("expected forbidden code, got %q", code)
	}

	resp, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/tasks/"+taskID+"/amount", map[string]any{
		"value": 40,
	}, asMember)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("record amount: expected 201, got %d: %s", resp.StatusCode, data)
	}
	view := decodeMap(t, data)
	if view["current_value"].(float64) != 40 {
		t.Fatalf("expected current value 40, got %v", view["current_value"])
	}
	if view["aggregate_progress"].(float64) != 40 {
		t.Fatalf("expected 40%% progress, got %v", view["aggregate_progress"])
	}

	// Chain operations on an amount task are a kind error.
	resp, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/tasks/"+taskID+"/chain", map[string]any{
		"external_id": "msg-1",
	}, asMember)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("wrong-kind op: expected 400, got %d: %s", resp.StatusCode, data)
	}
	if code := errorCode(t, data); code != "invalid_task_kind" {
		t.Fatalf("expected invalid_task_kind code, got %q", code)
	}

	resp, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/tasks/"+uuid.NewString(), nil, asAdmin)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown task: expected 404, got %d: %s", resp.StatusCode, data)
	}
	if code := errorCode(t, data); code != "not_found" {
		t.Fatalf("expected not_found code, got %q", code)
	}
}

func TestCheckboxDuplicateOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	admin := seedServerUser(t, srv, "admin", domain.RoleSuperAdmin, nil)
	user := seedServerUser(t, srv, "alice", domain.RoleUser, nil)
	asAdmin := map[string]string{"X-User-Id": admin.ID}
	asUser := map[string]string{"X-User-Id": user.ID}

	resp, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/tasks", map[string]any{
		"title":           "ack",
		"task_kind":       "checkbox",
		"assignment_kind": "everyone",
	}, asAdmin)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", resp.StatusCode, data)
	}
	taskID := decodeMap(t, data)["id"].(string)

	resp, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/tasks/"+taskID+"/checkbox", map[string]any{}, asUser)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("first completion: expected 201, got %d: %s", resp.StatusCode, data)
	}
	resp, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/tasks/"+taskID+"/checkbox", map[string]any{}, asUser)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("duplicate completion: expected 422, got %d: %s", resp.StatusCode, data)
	}
	if code := errorCode(t, data); code != "validation_failed" {
		t.Fatalf("expected validation_failed code, got %q", code)
	}
}

func TestJWTAndSessionFlow(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	admin := seedServerUser(t, srv, "admin", domain.RoleSuperAdmin, nil)

	bearer := map[string]string{"Authorization": "Bearer " + mintJWT(t, admin.ID)}
	resp, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/me", nil, bearer)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me with jwt: expected 200, got %d: %s", resp.StatusCode, data)
	}
	if got := decodeMap(t, data)["username"]; got != "admin" {
		t.Fatalf("expected username admin, got %v", got)
	}

	resp, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/auth/login", map[string]any{}, bearer)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("login: expected 201, got %d: %s", resp.StatusCode, data)
	}
	token, _ := decodeMap(t, data)["token"].(string)
	if token == "" {
		t.Fatalf("login returned no token: %s", data)
	}

	session := map[string]string{"Authorization": "Bearer " + token}
	resp, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/me", nil, session)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me with session: expected 200, got %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/auth/logout", nil, session)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout: unexpected status %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/me", nil, session)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("revoked session must fail, got %d", resp.StatusCode)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	user := seedServerUser(t, srv, "alice", domain.RoleUser, nil)

	raw, _, err := srv.Engine.CreateAPIKey(context.Background(), user.Principal(), "", "ci")
	if err != nil {
		t.Fatalf("mint key: %v", err)
	}
	resp, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{
		"X-Api-Key": raw,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me with api key: expected 200, got %d: %s", resp.StatusCode, data)
	}
	if got := decodeMap(t, data)["username"]; got != "alice" {
		t.Fatalf("expected username alice, got %v", got)
	}
}

func TestDeactivatedUserRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	user := seedServerUser(t, srv, "alice", domain.RoleUser, nil)

	user.IsActive = false
	user.UpdatedAt = "2024-01-02T00:00:00Z"
	if err := srv.Engine.Repo.UpdateUser(context.Background(), user); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	resp, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{
		"X-User-Id": user.ID,
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for deactivated user, got %d: %s", resp.StatusCode, data)
	}
}

func TestSchemaValidationMapsToBadRequest(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	admin := seedServerUser(t, srv, "admin", domain.RoleSuperAdmin, nil)
	asAdmin := map[string]string{"X-User-Id": admin.ID}

	resp, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/tasks", map[string]any{
		"title":           "bad",
		"task_kind":       "bogus",
		"assignment_kind": "everyone",
	}, asAdmin)
	if resp.StatusCode != http.StatusBadRequest && resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected schema rejection, got %d: %s", resp.StatusCode, data)
	}
}

func TestTaskPagination(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	admin := seedServerUser(t, srv, "admin", domain.RoleSuperAdmin, nil)
	asAdmin := map[string]string{"X-User-Id": admin.ID}

	for i := 0; i < 3; i++ {
		resp, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/tasks", map[string]any{
			"title":           "task",
			"task_kind":       "checkbox",
			"assignment_kind": "everyone",
		}, asAdmin)
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("create %d: expected 201, got %d: %s", i, resp.StatusCode, data)
		}
	}

	resp, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/tasks?limit=2", nil, asAdmin)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("page 1: expected 200, got %d: %s", resp.StatusCode, data)
	}
	var page struct {
		Items      []map[string]any `json:"items"`
		NextCursor string           `json:"next_cursor"`
	}
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(page.Items))
	}
	if page.NextCursor == "" {
		t.Fatalf("expected a next cursor")
	}
	seen := map[string]bool{}
	for _, item := range page.Items {
		seen[item["id"].(string)] = true
	}

	resp, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/tasks?limit=2&cursor="+page.NextCursor, nil, asAdmin)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("page 2: expected 200, got %d: %s", resp.StatusCode, data)
	}
	// next_cursor is omitempty, so zero the reused struct before decoding
	// page 2 or a stale page-1 cursor survives the unmarshal.
	page.Items = nil
	page.NextCursor = ""
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("decode page 2: %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("expected 1 item on page 2, got %d", len(page.Items))
	}
	if page.NextCursor != "" {
		t.Fatalf("expected no cursor on the last page, got %q", page.NextCursor)
	}
	for _, item := range page.Items {
		seen[item["id"].(string)] = true
	}
	if len(seen) != 3 {
		t.Fatalf("pages must cover all 3 tasks without gaps or repeats, got %d distinct ids", len(seen))
	}
}

func TestCreatedByMeFilter(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	mine := seedServerUser(t, srv, "mine", domain.RoleSuperAdmin, nil)
	other := seedServerUser(t, srv, "other", domain.RoleSuperAdmin, nil)
	asMine := map[string]string{"X-User-Id": mine.ID}
	asOther := map[string]string{"X-User-Id": other.ID}

	for _, h := range []map[string]string{asMine, asOther} {
		resp, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/tasks", map[string]any{
			"title":           "task",
			"task_kind":       "checkbox",
			"assignment_kind": "everyone",
		}, h)
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("create: expected 201, got %d: %s", resp.StatusCode, data)
		}
	}

	resp, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/tasks?created_by_me=true", nil, asMine)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list: expected 200, got %d: %s", resp.StatusCode, data)
	}
	var page struct {
		Items []map[string]any `json:"items"`
	}
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("expected only own task, got %d items", len(page.Items))
	}
	if got := page.Items[0]["created_by"]; got != mine.ID {
		t.Fatalf("expected created_by %s, got %v", mine.ID, got)
	}
}

func TestTaskSubListEnvelopes(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	admin := seedServerUser(t, srv, "admin", domain.RoleSuperAdmin, nil)
	asAdmin := map[string]string{"X-User-Id": admin.ID}

	resp, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/tasks", map[string]any{
		"title":           "collect",
		"task_kind":       "amount",
		"assignment_kind": "everyone",
		"target_value":    100,
	}, asAdmin)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", resp.StatusCode, data)
	}
	taskID := decodeMap(t, data)["id"].(string)

	for _, v := range []float64{10, 20} {
		resp, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/tasks/"+taskID+"/amount", map[string]any{"value": v}, asAdmin)
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("record: expected 201, got %d: %s", resp.StatusCode, data)
		}
	}

	resp, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/tasks/"+taskID+"/records", nil, asAdmin)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("records: expected 200, got %d: %s", resp.StatusCode, data)
	}
	var list struct {
		Items []map[string]any `json:"items"`
		Total int              `json:"total"`
	}
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatalf("decode records: %v", err)
	}
	if list.Total != 2 || len(list.Items) != 2 {
		t.Fatalf("expected items/total of 2, got %d/%d", len(list.Items), list.Total)
	}

	resp, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/tasks", map[string]any{
		"title":              "relay",
		"task_kind":          "chain",
		"assignment_kind":    "everyone",
		"chain_target_count": 5,
	}, asAdmin)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create chain: expected 201, got %d: %s", resp.StatusCode, data)
	}
	chainID := decodeMap(t, data)["id"].(string)
	resp, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/tasks/"+chainID+"/chain", map[string]any{"external_id": "msg-1"}, asAdmin)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("append: expected 201, got %d: %s", resp.StatusCode, data)
	}
	resp, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/tasks/"+chainID+"/chain", nil, asAdmin)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("chain list: expected 200, got %d: %s", resp.StatusCode, data)
	}
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatalf("decode chain list: %v", err)
	}
	if list.Total != 1 || len(list.Items) != 1 {
		t.Fatalf("expected items/total of 1, got %d/%d", len(list.Items), list.Total)
	}
}

func TestUsernameLogin(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	user := seedServerUser(t, srv, "alice", domain.RoleUser, nil)

	resp, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/auth/login", map[string]any{"username": "alice"}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("login: expected 201, got %d: %s", resp.StatusCode, data)
	}
	body := decodeMap(t, data)
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatalf("login returned no token: %s", data)
	}
	if jwtStr, _ := body["jwt"].(string); jwtStr == "" {
		t.Fatalf("login returned no jwt: %s", data)
	}
	userObj, _ := body["user"].(map[string]any)
	if userObj == nil || userObj["id"] != user.ID {
		t.Fatalf("login must return the user, got %v", body["user"])
	}

	session := map[string]string{"Authorization": "Bearer " + token}
	resp, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/me", nil, session)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me with session: expected 200, got %d: %s", resp.StatusCode, data)
	}

	resp, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/auth/login", map[string]any{"username": "ghost"}, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unknown username: expected 401, got %d: %s", resp.StatusCode, data)
	}
	if code := errorCode(t, data); code != "invalid_credentials" {
		t.Fatalf("expected invalid_credentials, got %q", code)
	}
}

func TestReportFlowOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	gid := seedServerGroup(t, srv, "alpha")
	author := seedServerUser(t, srv, "alice", domain.RoleUser, &gid)
	peer := seedServerUser(t, srv, "bob", domain.RoleUser, &gid)
	asAuthor := map[string]string{"X-User-Id": author.ID}
	asPeer := map[string]string{"X-User-Id": peer.ID}

	resp, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/reports", map[string]any{
		"work_date": "2024-01-01",
		"title":     "day one",
		"content":   "shipped things",
	}, asAuthor)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("submit: expected 201, got %d: %s", resp.StatusCode, data)
	}
	reportID := decodeMap(t, data)["id"].(string)

	resp, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/reports/"+reportID, nil, asAuthor)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("author get: expected 200, got %d", resp.StatusCode)
	}
	resp, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/reports/"+reportID, nil, asPeer)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("peer get: expected 403, got %d: %s", resp.StatusCode, data)
	}

	// Resubmission upserts in place.
	resp, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/reports", map[string]any{
		"work_date": "2024-01-01",
		"title":     "day one",
		"content":   "final version",
	}, asAuthor)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("resubmit: expected 201, got %d: %s", resp.StatusCode, data)
	}
	if got := decodeMap(t, data)["id"]; got != reportID {
		t.Fatalf("expected stable report id %s, got %v", reportID, got)
	}
}

func TestPaths(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	admin := seedServerUser(t, srv, "admin", domain.RoleSuperAdmin, nil)
	asAdmin := map[string]string{"X-User-Id": admin.ID}

	resp, _ := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/openapi.json", nil, asAdmin)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("openapi.json: expected 200, got %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/stats", nil, asAdmin)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stats: expected 200, got %d", resp.StatusCode)
	}
}
