package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/codehive/backend/internal/auth"
	"github.com/codehive/backend/internal/db"
	"github.com/codehive/backend/internal/exec"
	"github.com/codehive/backend/internal/ws"
)

// CodeRunner executes a snippet remotely.
type CodeRunner interface {
	Execute(code, language string) (*exec.Result, error)
}

type API struct {
	hub      *ws.Hub
	database *db.Database
	auth     *auth.Service
	runner   CodeRunner
}

func New(hub *ws.Hub, database *db.Database, authService *auth.Service, runner CodeRunner) *API {
	return &API{
		hub:      hub,
		database: database,
		auth:     authService,
		runner:   runner,
	}
}

func jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

func errorResponse(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

// authenticate pulls the bearer token off the request and verifies it.
func (a *API) authenticate(r *http.Request) (auth.Identity, error) {
	header := r.Header.Get("Authorization")
	token := strings.TrimPrefix(header, "Bearer ")
	if token == header {
		return auth.Identity{}, auth.ErrInvalidToken
	}
	return a.auth.Verify(token)
}

func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) StatsHandler(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"active_rooms":   a.hub.GetRoomCount(),
		"active_clients": a.hub.GetClientCount(),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	}

	if a.database != nil {
		dbStats, err := a.database.GetStats()
		if err == nil {
			stats["total_rooms"] = dbStats["room_count"]
			stats["total_files"] = dbStats["file_count"]
			stats["total_messages"] = dbStats["message_count"]
		}
	}

	jsonResponse(w, http.StatusOK, stats)
}

// Auth handlers

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (a *API) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := a.auth.Register(req.Username, req.Password)
	if errors.Is(err, auth.ErrUsernameTaken) {
		errorResponse(w, http.StatusBadRequest, "Username already taken")
		return
	}
	if errors.Is(err, auth.ErrInvalidCredentials) {
		errorResponse(w, http.StatusBadRequest, "Username and a password of at least 6 characters are required")
		return
	}
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to register")
		return
	}

	a.issueTokens(w, r, user, http.StatusCreated)
}

func (a *API) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := a.auth.Login(req.Username, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		errorResponse(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to log in")
		return
	}

	a.issueTokens(w, r, user, http.StatusOK)
}

func (a *API) issueTokens(w http.ResponseWriter, r *http.Request, user *db.User, status int) {
	access, err := a.auth.IssueAccessToken(user)
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to issue token")
		return
	}
	refresh, err := a.auth.IssueRefreshToken(r.Context(), user)
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to issue token")
		return
	}

	jsonResponse(w, status, map[string]interface{}{
		"token":        access,
		"refreshToken": refresh,
		"user": map[string]string{
			"id":       user.ID,
			"username": user.Username,
		},
	})
}

func (a *API) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, access, err := a.auth.Refresh(r.Context(), req.RefreshToken)
	if errors.Is(err, auth.ErrInvalidToken) {
		errorResponse(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to refresh")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"token": access,
		"user": map[string]string{
			"id":       user.ID,
			"username": user.Username,
		},
	})
}

func (a *API) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := a.auth.Logout(r.Context(), req.RefreshToken); err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to log out")
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

func (a *API) AuthRouter(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	switch strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/api/auth"), "/") {
	case "/register":
		a.RegisterHandler(w, r)
	case "/login":
		a.LoginHandler(w, r)
	case "/refresh":
		a.RefreshHandler(w, r)
	case "/logout":
		a.LogoutHandler(w, r)
	default:
		errorResponse(w, http.StatusNotFound, "Not found")
	}
}

// Room handlers

type createRoomRequest struct {
	Name string `json:"name"`
}

type roomResponse struct {
	RoomID string    `json:"roomId"`
	Name   string    `json:"name"`
	Files  []db.File `json:"files"`
}

const seedFileContent = "// Welcome to the collaborative editor!\nconsole.log(\"Hello, World!\");"

func (a *API) CreateRoomHandler(w http.ResponseWriter, r *http.Request, identity auth.Identity) {
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	roomID := newRoomID()
	if err := a.database.CreateRoom(roomID, req.Name, identity.UserID); err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to create room")
		return
	}
	if err := a.database.AddRoomMember(roomID, identity.UserID); err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to create room")
		return
	}

	// Every new room starts with one file so the editor has something to show
	if err := a.database.CreateFile(roomID, "main.js", seedFileContent, "javascript"); err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to create room")
		return
	}

	files, err := a.database.GetRoomFiles(roomID)
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to create room")
		return
	}

	jsonResponse(w, http.StatusCreated, map[string]interface{}{
		"message": "Room created successfully",
		"room": roomResponse{
			RoomID: roomID,
			Name:   req.Name,
			Files:  files,
		},
	})
}

// newRoomID makes a short shareable id.
func newRoomID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func (a *API) GetRoomHandler(w http.ResponseWriter, r *http.Request, roomID string, identity auth.Identity) {
	room, err := a.database.GetRoom(roomID)
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to get room")
		return
	}
	if room == nil {
		errorResponse(w, http.StatusNotFound, "Room not found")
		return
	}

	// Opening a room makes the caller a member
	if err := a.database.AddRoomMember(roomID, identity.UserID); err != nil {
		log.Printf("Failed to add member %s to room %s: %v", identity.UserID, roomID, err)
	}

	files, err := a.database.GetRoomFiles(roomID)
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to get room")
		return
	}

	members, err := a.database.GetRoomMembers(roomID)
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to get room")
		return
	}

	memberList := make([]map[string]string, len(members))
	for i, m := range members {
		memberList[i] = map[string]string{"id": m.ID, "username": m.Username}
	}

	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"roomId":  room.RoomID,
		"name":    room.Name,
		"files":   files,
		"members": memberList,
	})
}

func (a *API) UserRoomsHandler(w http.ResponseWriter, r *http.Request, identity auth.Identity) {
	rooms, err := a.database.GetUserRooms(identity.UserID)
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to list rooms")
		return
	}

	response := make([]map[string]interface{}, len(rooms))
	for i, room := range rooms {
		response[i] = map[string]interface{}{
			"roomId":    room.RoomID,
			"name":      room.Name,
			"createdAt": room.CreatedAt,
		}
	}
	jsonResponse(w, http.StatusOK, response)
}

type createFileRequest struct {
	FileName string `json:"fileName"`
	Language string `json:"language"`
}

func (a *API) CreateFileHandler(w http.ResponseWriter, r *http.Request, roomID string) {
	var req createFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.FileName == "" {
		errorResponse(w, http.StatusBadRequest, "fileName is required")
		return
	}
	if req.Language == "" {
		req.Language = "javascript"
	}

	room, err := a.database.GetRoom(roomID)
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to get room")
		return
	}
	if room == nil {
		errorResponse(w, http.StatusNotFound, "Room not found")
		return
	}

	files, err := a.database.GetRoomFiles(roomID)
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to create file")
		return
	}
	for _, f := range files {
		if f.FileName == req.FileName {
			errorResponse(w, http.StatusBadRequest, "File already exists")
			return
		}
	}

	if err := a.database.CreateFile(roomID, req.FileName, "", req.Language); err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to create file")
		return
	}

	files, err = a.database.GetRoomFiles(roomID)
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to create file")
		return
	}
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"message": "File created successfully",
		"files":   files,
	})
}

func (a *API) DeleteFileHandler(w http.ResponseWriter, r *http.Request, roomID, fileName string) {
	room, err := a.database.GetRoom(roomID)
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to get room")
		return
	}
	if room == nil {
		errorResponse(w, http.StatusNotFound, "Room not found")
		return
	}

	if err := a.database.DeleteFile(roomID, fileName); err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to delete file")
		return
	}

	files, err := a.database.GetRoomFiles(roomID)
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to delete file")
		return
	}
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"message": "File deleted successfully",
		"files":   files,
	})
}

type saveRoomRequest struct {
	Files []db.File `json:"files"`
}

func (a *API) SaveRoomHandler(w http.ResponseWriter, r *http.Request, roomID string) {
	var req saveRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	room, err := a.database.GetRoom(roomID)
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to get room")
		return
	}
	if room == nil {
		errorResponse(w, http.StatusNotFound, "Room not found")
		return
	}

	if err := a.database.ReplaceFiles(roomID, req.Files); err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to save room")
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"message": "Room saved successfully"})
}

type runRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"`
}

func (a *API) RunCodeHandler(w http.ResponseWriter, r *http.Request) {
	if a.runner == nil {
		errorResponse(w, http.StatusServiceUnavailable, "Code execution is not configured")
		return
	}

	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := a.runner.Execute(req.Code, req.Language)
	if err != nil {
		log.Printf("Code execution failed: %v", err)
		errorResponse(w, http.StatusInternalServerError, "Code execution failed")
		return
	}
	jsonResponse(w, http.StatusOK, result)
}

func (a *API) RoomsRouter(w http.ResponseWriter, r *http.Request) {
	identity, err := a.authenticate(r)
	if err != nil {
		errorResponse(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/rooms")
	path = strings.TrimSuffix(path, "/")

	// /api/rooms
	if path == "" {
		if r.Method != http.MethodPost {
			errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		a.CreateRoomHandler(w, r, identity)
		return
	}

	// /api/rooms/user/rooms
	if path == "/user/rooms" {
		if r.Method != http.MethodGet {
			errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		a.UserRoomsHandler(w, r, identity)
		return
	}

	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	roomID := parts[0]
	if roomID == "" {
		errorResponse(w, http.StatusBadRequest, "Room ID is required")
		return
	}

	switch {
	// /api/rooms/{id}
	case len(parts) == 1:
		if r.Method != http.MethodGet {
			errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		a.GetRoomHandler(w, r, roomID, identity)

	// /api/rooms/{id}/files
	case len(parts) == 2 && parts[1] == "files":
		if r.Method != http.MethodPost {
			errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		a.CreateFileHandler(w, r, roomID)

	// /api/rooms/{id}/files/{name}
	case len(parts) == 3 && parts[1] == "files":
		if r.Method != http.MethodDelete {
			errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		a.DeleteFileHandler(w, r, roomID, parts[2])

	// /api/rooms/{id}/save
	case len(parts) == 2 && parts[1] == "save":
		if r.Method != http.MethodPost {
			errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		a.SaveRoomHandler(w, r, roomID)

	// /api/rooms/{id}/run
	case len(parts) == 2 && parts[1] == "run":
		if r.Method != http.MethodPost {
			errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		a.RunCodeHandler(w, r)

	default:
		errorResponse(w, http.StatusNotFound, "Not found")
	}
}
