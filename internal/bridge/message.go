// Package bridge carries messages between the web UI and the host process.
package bridge

import (
	"encoding/json"
	"fmt"
	"time"

	"ispledger/internal/backup"
)

// Actions sent by the UI to the host.
const (
	ActionBackupLocal = "backup_local"
	ActionCheckUpdate = "check_update"
	ActionRunCmd      = "run_cmd"
	ActionKillCmd     = "kill_cmd"
	ActionSaveDB      = "save_db"
	ActionDriveUpload = "drive_upload"
	ActionDriveList   = "drive_list"
	ActionGoogleAuth  = "google_auth"

	// ActionRequestState asks the UI for its state so the host can back it up.
	ActionRequestState = "request_state_for_backup"
)

// Types of messages sent by the host to the UI.
const (
	TypeHostReady         = "host_ready"
	TypeGoogleAuthStarted = "google_auth_started"
	TypeGoogleAuthResult  = "google_auth_result"
	TypeBackupSuccess     = "backup_success"
	TypeBackupFailed      = "backup_failed"
	TypeUpdateAvailable   = "update_available"
	TypeDriveListResult   = "drive_list_result"
)

// Message is the envelope for both directions. UI messages set Action,
// host messages set Type.
type Message struct {
	Action    string          `json:"action,omitempty"`
	Type      string          `json:"type,omitempty"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

type (
	RunCmd struct {
		Cmd string `json:"cmd"`
		ID  string `json:"id"`
	}

	KillCmd struct {
		ID string `json:"id"`
	}

	// SaveDB is the UI's report of a local save.
	SaveDB struct {
		Status    string `json:"status"`
		Message   string `json:"message"`
		Timestamp string `json:"timestamp"`
	}

	BackupResult struct {
		File    string `json:"file,omitempty"`
		Target  string `json:"target,omitempty"`
		Message string `json:"message,omitempty"`
	}

	UpdateInfo struct {
		Current string `json:"current"`
		Latest  string `json:"latest"`
	}

	DriveList struct {
		Files []backup.Object `json:"files"`
	}

	GoogleAuth struct {
		Success bool   `json:"success"`
		URL     string `json:"url,omitempty"`
		Error   string `json:"error,omitempty"`
	}
)

// NewAction builds a UI to host message.
func NewAction(action string, payload any) (Message, error) {
	m := Message{Action: action, Timestamp: time.Now().UTC()}
	return m, m.setPayload(payload)
}

// NewEvent builds a host to UI message.
func NewEvent(typ string, payload any) (Message, error) {
	m := Message{Type: typ, Timestamp: time.Now().UTC()}
	return m, m.setPayload(payload)
}

func (m *Message) setPayload(v any) error {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", m.Name(), err)
	}
	m.Payload = raw
	return nil
}

// Name is the action or type, whichever is set.
func (m Message) Name() string {
	if m.Action != "" {
		return m.Action
	}
	return m.Type
}

// Decode unmarshals the payload into v.
func (m Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", m.Name())
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("%s: decode payload: %w", m.Name(), err)
	}
	return nil
}

// Document returns a payload that carries a JSON document, either inline
// or as a JSON string holding the document.
func (m Message) Document() []byte {
	if len(m.Payload) == 0 || string(m.Payload) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(m.Payload, &s); err == nil {
		return []byte(s)
	}
	return m.Payload
}

func (m Message) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func MessageFromJSON(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, err
	}
	if m.Name() == "" {
		return Message{}, fmt.Errorf("message has neither action nor type")
	}
	return m, nil
}
