package http

import (
	"context"
	"net/http"
	"strings"

	"ispledger/internal/auth"
	"ispledger/internal/log"
)

type operatorKey struct{}

// Operator returns the operator name of an authenticated request.
func Operator(ctx context.Context) string {
	op, _ := ctx.Value(operatorKey{}).(string)
	return op
}

// authed rejects requests without a valid bearer token.
func (s *Server) authed(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			Unauthorized("missing bearer token").Write(w)
			return
		}
		claims, err := s.tokens.Parse(token)
		if err != nil {
			s.logger.WarnContext(r.Context(), "Rejected token",
				log.FieldComponent, log.ComponentAuth,
				log.FieldPath, r.URL.Path,
				log.FieldError, err)
			FromError(err).Write(w)
			return
		}
		ctx := context.WithValue(r.Context(), operatorKey{}, claims.Operator)
		next(w, r.WithContext(ctx))
	})
}

type loginRequest struct {
	Password string `json:"password" validate:"required"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := s.decode(w, r, &req); err != nil {
		FromError(err).Write(w)
		return
	}
	settings := s.store.Snapshot().Settings
	if err := auth.Verify(settings.PasswordHash, req.Password); err != nil {
		s.logger.WarnContext(r.Context(), "Failed login", log.FieldComponent, log.ComponentAuth)
		FromError(err).Write(w)
		return
	}
	if auth.NeedsUpgrade(settings.PasswordHash) {
		if hash, err := auth.Hash(req.Password); err == nil {
			if err := s.store.SetCredentials(r.Context(), hash, "", ""); err != nil {
				s.logger.Failure(r.Context(), "Access key upgrade failed", err)
			}
		}
	}
	session, err := s.tokens.Issue(settings.UserName)
	if err != nil {
		s.logger.Failure(r.Context(), "Token issue failed", err)
		InternalError().Write(w)
		return
	}
	OK(session).Write(w)
}

type passwordRequest struct {
	Current          string `json:"current" validate:"required"`
	Next             string `json:"next" validate:"required,min=4,max=128"`
	SecurityQuestion string `json:"securityQuestion" validate:"max=200"`
	SecurityAnswer   string `json:"securityAnswer" validate:"max=200"`
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := s.decode(w, r, &req); err != nil {
		FromError(err).Write(w)
		return
	}
	if err := auth.Verify(s.store.Snapshot().Settings.PasswordHash, req.Current); err != nil {
		FromError(err).Write(w)
		return
	}
	s.setCredentials(w, r, req.Next, req.SecurityQuestion, req.SecurityAnswer)
}

func (s *Server) handleRecoveryQuestion(w http.ResponseWriter, r *http.Request) {
	OK(map[string]string{"question": s.store.Snapshot().Settings.SecurityQuestion}).Write(w)
}

type recoverRequest struct {
	Answer string `json:"answer" validate:"required"`
	Next   string `json:"next" validate:"required,min=4,max=128"`
}

// handleRecover resets the access key after a correct security answer.
func (s *Server) handleRecover(w http.ResponseWriter, r *http.Request) {
	var req recoverRequest
	if err := s.decode(w, r, &req); err != nil {
		FromError(err).Write(w)
		return
	}
	if err := auth.VerifyAnswer(s.store.Snapshot().Settings.SecurityAnswerHash, req.Answer); err != nil {
		s.logger.WarnContext(r.Context(), "Failed recovery attempt", log.FieldComponent, log.ComponentAuth)
		FromError(err).Write(w)
		return
	}
	s.setCredentials(w, r, req.Next, "", "")
}

func (s *Server) setCredentials(w http.ResponseWriter, r *http.Request, password, question, answer string) {
	passwordHash, err := auth.Hash(password)
	if err != nil {
		FromError(err).Write(w)
		return
	}
	var answerHash string
	if answer != "" {
		if answerHash, err = auth.HashAnswer(answer); err != nil {
			FromError(err).Write(w)
			return
		}
	}
	if err := s.store.SetCredentials(r.Context(), passwordHash, question, answerHash); err != nil {
		s.fail(w, r, "Credential update failed", err)
		return
	}
	NoContent().Write(w)
}

// fail writes the response for err, logging it when it is not a
// client error.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	resp := FromError(err)
	if resp.status >= http.StatusInternalServerError {
		s.logger.Failure(r.Context(), msg, err)
	}
	resp.Write(w)
}
