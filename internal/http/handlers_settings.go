package http

import (
	"errors"
	"net/http"

	"ispledger/internal/backup"
	"ispledger/internal/core"
	"ispledger/internal/log"
	"ispledger/internal/store"
)

// publicSettings hides the credential hashes.
func publicSettings(st core.Settings) core.Settings {
	st.PasswordHash = ""
	st.SecurityAnswerHash = ""
	return st
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	OK(publicSettings(s.store.Snapshot().Settings)).Write(w)
}

func (s *Server) handlePatchSettings(w http.ResponseWriter, r *http.Request) {
	var patch store.SettingsPatch
	if err := s.decode(w, r, &patch); err != nil {
		FromError(err).Write(w)
		return
	}
	settings, err := s.store.UpdateSettings(r.Context(), patch)
	if err != nil {
		s.fail(w, r, "Settings update failed", err)
		return
	}
	OK(publicSettings(settings)).Write(w)
}

var errBackupsDisabled = errors.New("backups are not configured")

func (s *Server) backupsAvailable(w http.ResponseWriter) bool {
	if s.backups == nil {
		errorResponse(http.StatusServiceUnavailable, log.ErrorTypeConfiguration, errBackupsDisabled.Error()).Write(w)
		return false
	}
	return true
}

func (s *Server) handleListBackups(w http.ResponseWriter, r *http.Request) {
	if !s.backupsAvailable(w) {
		return
	}
	objects, err := s.backups.List(r.Context())
	if err != nil {
		s.fail(w, r, "Backup list failed", err)
		return
	}
	if objects == nil {
		objects = []backup.Object{}
	}
	OK(objects).Write(w)
}

type pushResult struct {
	Target string         `json:"target"`
	Object *backup.Object `json:"object,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// handlePushBackup uploads the current state. A failed mirror upload is
// reported in the body but does not fail the request.
func (s *Server) handlePushBackup(w http.ResponseWriter, r *http.Request) {
	if !s.backupsAvailable(w) {
		return
	}
	results, err := s.backups.Push(r.Context())
	out := make([]pushResult, 0, len(results))
	for _, res := range results {
		pr := pushResult{Target: res.Target.String()}
		if res.Err != nil {
			pr.Error = res.Err.Error()
		} else {
			obj := res.Object
			pr.Object = &obj
		}
		out = append(out, pr)
	}
	if err != nil {
		s.logger.Failure(r.Context(), "Backup push failed", err)
		JSON(http.StatusBadGateway, out).Write(w)
		return
	}
	Created(out).Write(w)
}

type restoreRequest struct {
	Name string `json:"name" validate:"max=255"`
}

// handleRestoreBackup replaces the state with a stored backup. An empty
// name restores the latest one.
func (s *Server) handleRestoreBackup(w http.ResponseWriter, r *http.Request) {
	if !s.backupsAvailable(w) {
		return
	}
	var req restoreRequest
	if r.ContentLength != 0 {
		if err := s.decode(w, r, &req); err != nil {
			FromError(err).Write(w)
			return
		}
	}
	st, err := s.backups.Pull(r.Context(), req.Name)
	if err != nil {
		s.fail(w, r, "Backup restore failed", err)
		return
	}
	s.resetEditor()
	s.logger.InfoContext(r.Context(), "State restored from backup",
		log.FieldOperation, log.OpRestore,
		log.FieldFile, req.Name,
		log.FieldCount, len(st.Clients))
	OK(map[string]int{"clients": len(st.Clients), "records": len(st.Records)}).Write(w)
}

func (s *Server) handleDeleteBackup(w http.ResponseWriter, r *http.Request) {
	if !s.backupsAvailable(w) {
		return
	}
	if err := s.backups.Delete(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, r, "Backup delete failed", err)
		return
	}
	NoContent().Write(w)
}

func (s *Server) handleBackupLog(w http.ResponseWriter, r *http.Request) {
	if s.backupLog == nil {
		OK([]any{}).Write(w)
		return
	}
	limit, err := intParam(r, "limit", 20)
	if err != nil {
		FromError(err).Write(w)
		return
	}
	entries, err := s.backupLog.RecentBackups(r.Context(), limit)
	if err != nil {
		s.fail(w, r, "Backup log read failed", err)
		return
	}
	OK(entries).Write(w)
}
