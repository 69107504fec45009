package db

import (
	"database/sql"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

type Database struct {
	db *sql.DB
}

type User struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

type Room struct {
	RoomID    string
	Name      string
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type File struct {
	FileName string `json:"fileName"`
	Content  string `json:"content"`
	Language string `json:"language"`
}

type ChatMessage struct {
	Author    string    `json:"author"`
	AuthorID  string    `json:"authorId"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

func New(dbPath string) (*Database, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, err
	}

	// Cascading deletes need foreign keys switched on
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, err
	}

	if err := createTables(db); err != nil {
		return nil, err
	}

	log.Printf("Database initialized at %s", dbPath)
	return &Database{db: db}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS rooms (
		room_id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		created_by TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS files (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		room_id TEXT NOT NULL,
		file_name TEXT NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		language TEXT NOT NULL DEFAULT 'javascript',
		UNIQUE(room_id, file_name),
		FOREIGN KEY (room_id) REFERENCES rooms(room_id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_files_room_id ON files(room_id);

	CREATE TABLE IF NOT EXISTS room_members (
		room_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		joined_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (room_id, user_id),
		FOREIGN KEY (room_id) REFERENCES rooms(room_id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS chat_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		room_id TEXT NOT NULL,
		author TEXT NOT NULL,
		author_id TEXT NOT NULL,
		text TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		FOREIGN KEY (room_id) REFERENCES rooms(room_id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_chat_messages_room_id ON chat_messages(room_id, id);
	`

	_, err := db.Exec(schema)
	return err
}

func (d *Database) Close() error {
	return d.db.Close()
}

// User operations

func (d *Database) CreateUser(id, username, passwordHash string) error {
	_, err := d.db.Exec(
		"INSERT INTO users (id, username, password_hash) VALUES (?, ?, ?)",
		id, username, passwordHash,
	)
	return err
}

func (d *Database) GetUserByUsername(username string) (*User, error) {
	row := d.db.QueryRow(
		"SELECT id, username, password_hash, created_at FROM users WHERE username = ?",
		username,
	)

	var user User
	err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (d *Database) GetUser(id string) (*User, error) {
	row := d.db.QueryRow(
		"SELECT id, username, password_hash, created_at FROM users WHERE id = ?",
		id,
	)

	var user User
	err := row.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Room operations

func (d *Database) CreateRoom(roomID, name, createdBy string) error {
	_, err := d.db.Exec(
		"INSERT INTO rooms (room_id, name, created_by) VALUES (?, ?, ?)",
		roomID, name, createdBy,
	)
	return err
}

func (d *Database) GetRoom(roomID string) (*Room, error) {
	row := d.db.QueryRow(
		"SELECT room_id, name, created_by, created_at, updated_at FROM rooms WHERE room_id = ?",
		roomID,
	)

	var room Room
	err := row.Scan(&room.RoomID, &room.Name, &room.CreatedBy, &room.CreatedAt, &room.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (d *Database) ListRooms(limit, offset int) ([]Room, error) {
	rows, err := d.db.Query(
		"SELECT room_id, name, created_by, created_at, updated_at FROM rooms ORDER BY updated_at DESC LIMIT ? OFFSET ?",
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		var room Room
		if err := rows.Scan(&room.RoomID, &room.Name, &room.CreatedBy, &room.CreatedAt, &room.UpdatedAt); err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

func (d *Database) TouchRoom(roomID string) error {
	_, err := d.db.Exec(
		"UPDATE rooms SET updated_at = CURRENT_TIMESTAMP WHERE room_id = ?",
		roomID,
	)
	return err
}

func (d *Database) DeleteRoom(roomID string) error {
	_, err := d.db.Exec("DELETE FROM rooms WHERE room_id = ?", roomID)
	return err
}

// DeleteRoomsIdleSince removes rooms not touched since the cutoff. Files,
// members and chat rows go with them via cascade. The cutoff is compared
// in the same text format CURRENT_TIMESTAMP writes.
func (d *Database) DeleteRoomsIdleSince(cutoff time.Time) (int64, error) {
	result, err := d.db.Exec("DELETE FROM rooms WHERE updated_at < ?",
		cutoff.UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Membership operations

func (d *Database) AddRoomMember(roomID, userID string) error {
	_, err := d.db.Exec(
		"INSERT OR IGNORE INTO room_members (room_id, user_id) VALUES (?, ?)",
		roomID, userID,
	)
	return err
}

func (d *Database) GetRoomMembers(roomID string) ([]User, error) {
	rows, err := d.db.Query(`
		SELECT u.id, u.username, u.password_hash, u.created_at
		FROM room_members m JOIN users u ON u.id = m.user_id
		WHERE m.room_id = ?
		ORDER BY m.joined_at ASC
	`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (d *Database) GetUserRooms(userID string) ([]Room, error) {
	rows, err := d.db.Query(`
		SELECT r.room_id, r.name, r.created_by, r.created_at, r.updated_at
		FROM room_members m JOIN rooms r ON r.room_id = m.room_id
		WHERE m.user_id = ?
		ORDER BY r.created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		var room Room
		if err := rows.Scan(&room.RoomID, &room.Name, &room.CreatedBy, &room.CreatedAt, &room.UpdatedAt); err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

// File operations

func (d *Database) CreateFile(roomID, fileName, content, language string) error {
	_, err := d.db.Exec(
		"INSERT INTO files (room_id, file_name, content, language) VALUES (?, ?, ?, ?)",
		roomID, fileName, content, language,
	)
	if err != nil {
		return err
	}
	return d.TouchRoom(roomID)
}

func (d *Database) GetRoomFiles(roomID string) ([]File, error) {
	rows, err := d.db.Query(
		"SELECT file_name, content, language FROM files WHERE room_id = ? ORDER BY id ASC",
		roomID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []File
	for rows.Next() {
		var f File
		if err := rows.Scan(&f.FileName, &f.Content, &f.Language); err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

func (d *Database) DeleteFile(roomID, fileName string) error {
	_, err := d.db.Exec(
		"DELETE FROM files WHERE room_id = ? AND file_name = ?",
		roomID, fileName,
	)
	if err != nil {
		return err
	}
	return d.TouchRoom(roomID)
}

// UpdateFileContent writes new content for a single file in one statement,
// so concurrent edits to different files in the same room never clobber
// each other. Returns false when the file row no longer exists.
func (d *Database) UpdateFileContent(roomID, fileName, content, language string) (bool, error) {
	var result sql.Result
	var err error
	if language != "" {
		result, err = d.db.Exec(
			"UPDATE files SET content = ?, language = ? WHERE room_id = ? AND file_name = ?",
			content, language, roomID, fileName,
		)
	} else {
		result, err = d.db.Exec(
			"UPDATE files SET content = ? WHERE room_id = ? AND file_name = ?",
			content, roomID, fileName,
		)
	}
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		return false, nil
	}
	return true, d.TouchRoom(roomID)
}

// ReplaceFiles swaps the room's whole file set in one transaction.
func (d *Database) ReplaceFiles(roomID string, files []File) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM files WHERE room_id = ?", roomID); err != nil {
		return err
	}
	for _, f := range files {
		if _, err := tx.Exec(
			"INSERT INTO files (room_id, file_name, content, language) VALUES (?, ?, ?, ?)",
			roomID, f.FileName, f.Content, f.Language,
		); err != nil {
			return err
		}
	}
	if _, err := tx.Exec("UPDATE rooms SET updated_at = CURRENT_TIMESTAMP WHERE room_id = ?", roomID); err != nil {
		return err
	}
	return tx.Commit()
}

// Chat operations

func (d *Database) AppendChatMessage(roomID, author, authorID, text string, timestamp time.Time) error {
	_, err := d.db.Exec(
		"INSERT INTO chat_messages (room_id, author, author_id, text, timestamp) VALUES (?, ?, ?, ?, ?)",
		roomID, author, authorID, text, timestamp,
	)
	return err
}

func (d *Database) GetChatMessages(roomID string) ([]ChatMessage, error) {
	rows, err := d.db.Query(
		"SELECT author, author_id, text, timestamp FROM chat_messages WHERE room_id = ? ORDER BY id ASC",
		roomID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []ChatMessage
	for rows.Next() {
		var m ChatMessage
		if err := rows.Scan(&m.Author, &m.AuthorID, &m.Text, &m.Timestamp); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// Stats

func (d *Database) GetStats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var roomCount int
	if err := d.db.QueryRow("SELECT COUNT(*) FROM rooms").Scan(&roomCount); err != nil {
		return nil, err
	}
	stats["room_count"] = roomCount

	var fileCount int
	if err := d.db.QueryRow("SELECT COUNT(*) FROM files").Scan(&fileCount); err != nil {
		return nil, err
	}
	stats["file_count"] = fileCount

	var messageCount int
	if err := d.db.QueryRow("SELECT COUNT(*) FROM chat_messages").Scan(&messageCount); err != nil {
		return nil, err
	}
	stats["message_count"] = messageCount

	return stats, nil
}
