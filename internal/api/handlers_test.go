package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/codehive/backend/internal/auth"
	"github.com/codehive/backend/internal/chat"
	"github.com/codehive/backend/internal/db"
	"github.com/codehive/backend/internal/exec"
	"github.com/codehive/backend/internal/presence"
	"github.com/codehive/backend/internal/session"
	"github.com/codehive/backend/internal/ws"
)

type fakeRunner struct {
	result *exec.Result
	err    error
}

func (f *fakeRunner) Execute(code, language string) (*exec.Result, error) {
	return f.result, f.err
}

func setupAPI(t *testing.T) *API {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	authService := auth.New("test-secret", 15*time.Minute, 24*time.Hour, database, session.NewMemoryStore())
	hub := ws.NewHub(presence.NewStore(), database, chat.New(database))

	return New(hub, database, authService, nil)
}

func doJSON(t *testing.T, handler http.HandlerFunc, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	handler(recorder, req)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("Invalid JSON response %q: %v", recorder.Body.String(), err)
	}
	return body
}

func registerUser(t *testing.T, api *API, username string) string {
	t.Helper()
	recorder := doJSON(t, api.AuthRouter, http.MethodPost, "/api/auth/register", "",
		map[string]string{"username": username, "password": "secret123"})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("Register failed with %d: %s", recorder.Code, recorder.Body.String())
	}
	body := decodeBody(t, recorder)
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatal("Register response missing token")
	}
	return token
}

func createRoom(t *testing.T, api *API, token, name string) string {
	t.Helper()
	recorder := doJSON(t, api.RoomsRouter, http.MethodPost, "/api/rooms", token,
		map[string]string{"name": name})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("Create room failed with %d: %s", recorder.Code, recorder.Body.String())
	}
	body := decodeBody(t, recorder)
	room, _ := body["room"].(map[string]interface{})
	roomID, _ := room["roomId"].(string)
	if roomID == "" {
		t.Fatal("Create room response missing roomId")
	}
	return roomID
}

func TestHealthHandler(t *testing.T) {
	api := setupAPI(t)

	recorder := doJSON(t, api.HealthHandler, http.MethodGet, "/health", "", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", recorder.Code)
	}
	body := decodeBody(t, recorder)
	if body["status"] != "ok" {
		t.Errorf("Unexpected health body: %v", body)
	}
}

func TestRegisterIssuesTokens(t *testing.T) {
	api := setupAPI(t)

	recorder := doJSON(t, api.AuthRouter, http.MethodPost, "/api/auth/register", "",
		map[string]string{"username": "alice", "password": "secret123"})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", recorder.Code, recorder.Body.String())
	}

	body := decodeBody(t, recorder)
	access, _ := body["token"].(string)
	refresh, _ := body["refreshToken"].(string)
	if access == "" || refresh == "" {
		t.Errorf("Missing tokens in response: %v", body)
	}
	user, _ := body["user"].(map[string]interface{})
	if user["username"] != "alice" {
		t.Errorf("Unexpected user: %v", user)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	api := setupAPI(t)
	registerUser(t, api, "alice")

	recorder := doJSON(t, api.AuthRouter, http.MethodPost, "/api/auth/register", "",
		map[string]string{"username": "alice", "password": "secret123"})
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for duplicate username, got %d", recorder.Code)
	}
}

func TestRegisterWeakPassword(t *testing.T) {
	api := setupAPI(t)

	recorder := doJSON(t, api.AuthRouter, http.MethodPost, "/api/auth/register", "",
		map[string]string{"username": "alice", "password": "abc"})
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for short password, got %d", recorder.Code)
	}
}

func TestLogin(t *testing.T) {
	api := setupAPI(t)
	registerUser(t, api, "alice")

	recorder := doJSON(t, api.AuthRouter, http.MethodPost, "/api/auth/login", "",
		map[string]string{"username": "alice", "password": "secret123"})
	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", recorder.Code)
	}

	recorder = doJSON(t, api.AuthRouter, http.MethodPost, "/api/auth/login", "",
		map[string]string{"username": "alice", "password": "wrong"})
	if recorder.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for bad password, got %d", recorder.Code)
	}
}

func TestRefreshAndLogout(t *testing.T) {
	api := setupAPI(t)

	recorder := doJSON(t, api.AuthRouter, http.MethodPost, "/api/auth/register", "",
		map[string]string{"username": "alice", "password": "secret123"})
	refreshToken := decodeBody(t, recorder)["refreshToken"].(string)

	recorder = doJSON(t, api.AuthRouter, http.MethodPost, "/api/auth/refresh", "",
		map[string]string{"refreshToken": refreshToken})
	if recorder.Code != http.StatusOK {
		t.Fatalf("Refresh failed with %d: %s", recorder.Code, recorder.Body.String())
	}
	if access, _ := decodeBody(t, recorder)["token"].(string); access == "" {
		t.Error("Refresh response missing token")
	}

	recorder = doJSON(t, api.AuthRouter, http.MethodPost, "/api/auth/logout", "",
		map[string]string{"refreshToken": refreshToken})
	if recorder.Code != http.StatusOK {
		t.Fatalf("Logout failed with %d", recorder.Code)
	}

	recorder = doJSON(t, api.AuthRouter, http.MethodPost, "/api/auth/refresh", "",
		map[string]string{"refreshToken": refreshToken})
	if recorder.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 after logout, got %d", recorder.Code)
	}
}

func TestAuthRouterRejectsUnknown(t *testing.T) {
	api := setupAPI(t)

	recorder := doJSON(t, api.AuthRouter, http.MethodPost, "/api/auth/nope", "", nil)
	if recorder.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", recorder.Code)
	}

	recorder = doJSON(t, api.AuthRouter, http.MethodGet, "/api/auth/login", "", nil)
	if recorder.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405 for GET, got %d", recorder.Code)
	}
}

func TestRoomsRequireAuth(t *testing.T) {
	api := setupAPI(t)

	recorder := doJSON(t, api.RoomsRouter, http.MethodPost, "/api/rooms", "",
		map[string]string{"name": "Room"})
	if recorder.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without token, got %d", recorder.Code)
	}

	recorder = doJSON(t, api.RoomsRouter, http.MethodPost, "/api/rooms", "bogus-token",
		map[string]string{"name": "Room"})
	if recorder.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 with bad token, got %d", recorder.Code)
	}
}

func TestCreateRoomSeedsFile(t *testing.T) {
	api := setupAPI(t)
	token := registerUser(t, api, "alice")

	recorder := doJSON(t, api.RoomsRouter, http.MethodPost, "/api/rooms", token,
		map[string]string{"name": "My Room"})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", recorder.Code, recorder.Body.String())
	}

	body := decodeBody(t, recorder)
	room := body["room"].(map[string]interface{})
	roomID := room["roomId"].(string)
	if len(roomID) != 8 {
		t.Errorf("Expected 8-char room id, got %q", roomID)
	}
	files := room["files"].([]interface{})
	if len(files) != 1 {
		t.Fatalf("Expected 1 seed file, got %d", len(files))
	}
	seed := files[0].(map[string]interface{})
	if seed["fileName"] != "main.js" || seed["language"] != "javascript" {
		t.Errorf("Unexpected seed file: %v", seed)
	}
}

func TestGetRoomAddsMember(t *testing.T) {
	api := setupAPI(t)
	owner := registerUser(t, api, "alice")
	visitor := registerUser(t, api, "bob")
	roomID := createRoom(t, api, owner, "Room")

	recorder := doJSON(t, api.RoomsRouter, http.MethodGet, "/api/rooms/"+roomID, visitor, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	body := decodeBody(t, recorder)
	members := body["members"].([]interface{})
	if len(members) != 2 {
		t.Errorf("Expected visitor to become a member, got %v", members)
	}
}

func TestGetRoomNotFound(t *testing.T) {
	api := setupAPI(t)
	token := registerUser(t, api, "alice")

	recorder := doJSON(t, api.RoomsRouter, http.MethodGet, "/api/rooms/missing1", token, nil)
	if recorder.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", recorder.Code)
	}
}

func TestUserRooms(t *testing.T) {
	api := setupAPI(t)
	token := registerUser(t, api, "alice")
	createRoom(t, api, token, "First")
	createRoom(t, api, token, "Second")

	recorder := doJSON(t, api.RoomsRouter, http.MethodGet, "/api/rooms/user/rooms", token, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", recorder.Code)
	}

	var rooms []map[string]interface{}
	if err := json.Unmarshal(recorder.Body.Bytes(), &rooms); err != nil {
		t.Fatalf("Invalid response: %v", err)
	}
	if len(rooms) != 2 {
		t.Errorf("Expected 2 rooms, got %d", len(rooms))
	}
}

func TestCreateAndDeleteFile(t *testing.T) {
	api := setupAPI(t)
	token := registerUser(t, api, "alice")
	roomID := createRoom(t, api, token, "Room")

	recorder := doJSON(t, api.RoomsRouter, http.MethodPost, "/api/rooms/"+roomID+"/files", token,
		map[string]string{"fileName": "util.py", "language": "python"})
	if recorder.Code != http.StatusOK {
		t.Fatalf("Create file failed with %d: %s", recorder.Code, recorder.Body.String())
	}
	files := decodeBody(t, recorder)["files"].([]interface{})
	if len(files) != 2 {
		t.Errorf("Expected 2 files, got %d", len(files))
	}

	// Duplicate name rejected
	recorder = doJSON(t, api.RoomsRouter, http.MethodPost, "/api/rooms/"+roomID+"/files", token,
		map[string]string{"fileName": "util.py"})
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for duplicate file, got %d", recorder.Code)
	}

	recorder = doJSON(t, api.RoomsRouter, http.MethodDelete, "/api/rooms/"+roomID+"/files/util.py", token, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("Delete file failed with %d", recorder.Code)
	}
	files = decodeBody(t, recorder)["files"].([]interface{})
	if len(files) != 1 {
		t.Errorf("Expected 1 file after delete, got %d", len(files))
	}
}

func TestCreateFileRequiresName(t *testing.T) {
	api := setupAPI(t)
	token := registerUser(t, api, "alice")
	roomID := createRoom(t, api, token, "Room")

	recorder := doJSON(t, api.RoomsRouter, http.MethodPost, "/api/rooms/"+roomID+"/files", token,
		map[string]string{"language": "python"})
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing fileName, got %d", recorder.Code)
	}
}

func TestSaveRoom(t *testing.T) {
	api := setupAPI(t)
	token := registerUser(t, api, "alice")
	roomID := createRoom(t, api, token, "Room")

	recorder := doJSON(t, api.RoomsRouter, http.MethodPost, "/api/rooms/"+roomID+"/save", token,
		map[string]interface{}{"files": []db.File{
			{FileName: "a.js", Content: "1", Language: "javascript"},
			{FileName: "b.js", Content: "2", Language: "javascript"},
		}})
	if recorder.Code != http.StatusOK {
		t.Fatalf("Save failed with %d: %s", recorder.Code, recorder.Body.String())
	}

	recorder = doJSON(t, api.RoomsRouter, http.MethodGet, "/api/rooms/"+roomID, token, nil)
	files := decodeBody(t, recorder)["files"].([]interface{})
	if len(files) != 2 {
		t.Errorf("Expected saved file set of 2, got %d", len(files))
	}
}

func TestRunCodeWithoutRunner(t *testing.T) {
	api := setupAPI(t)
	token := registerUser(t, api, "alice")
	roomID := createRoom(t, api, token, "Room")

	recorder := doJSON(t, api.RoomsRouter, http.MethodPost, "/api/rooms/"+roomID+"/run", token,
		map[string]string{"code": "console.log(1)", "language": "javascript"})
	if recorder.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 without configured runner, got %d", recorder.Code)
	}
}

func TestRunCode(t *testing.T) {
	api := setupAPI(t)
	api.runner = &fakeRunner{result: &exec.Result{Output: "1\n", StatusCode: 200}}
	token := registerUser(t, api, "alice")
	roomID := createRoom(t, api, token, "Room")

	recorder := doJSON(t, api.RoomsRouter, http.MethodPost, "/api/rooms/"+roomID+"/run", token,
		map[string]string{"code": "console.log(1)", "language": "javascript"})
	if recorder.Code != http.StatusOK {
		t.Fatalf("Run failed with %d: %s", recorder.Code, recorder.Body.String())
	}
	if decodeBody(t, recorder)["output"] != "1\n" {
		t.Errorf("Unexpected run result: %s", recorder.Body.String())
	}
}

func TestRunCodeUpstreamFailure(t *testing.T) {
	api := setupAPI(t)
	api.runner = &fakeRunner{err: errors.New("quota exceeded")}
	token := registerUser(t, api, "alice")
	roomID := createRoom(t, api, token, "Room")

	recorder := doJSON(t, api.RoomsRouter, http.MethodPost, "/api/rooms/"+roomID+"/run", token,
		map[string]string{"code": "x", "language": "javascript"})
	if recorder.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500 on runner failure, got %d", recorder.Code)
	}
}

func TestStatsHandler(t *testing.T) {
	api := setupAPI(t)
	token := registerUser(t, api, "alice")
	createRoom(t, api, token, "Room")

	recorder := doJSON(t, api.StatsHandler, http.MethodGet, "/api/stats", "", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", recorder.Code)
	}

	body := decodeBody(t, recorder)
	if body["total_rooms"] != float64(1) {
		t.Errorf("Expected total_rooms 1, got %v", body["total_rooms"])
	}
	if body["active_clients"] != float64(0) {
		t.Errorf("Expected 0 active clients, got %v", body["active_clients"])
	}
}
