package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/accountsmith/api/schemas"
	"github.com/xkilldash9x/accountsmith/internal/coordinator"
)

func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, map[string]string{"error": message})
}

// botError maps coordinator lookup failures onto HTTP statuses.
func (s *Server) botError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, coordinator.ErrJobNotFound), errors.Is(err, coordinator.ErrBotNotFound):
		s.respondError(w, http.StatusNotFound, "Bot not found")
	case errors.Is(err, coordinator.ErrNoSession):
		s.respondError(w, http.StatusNotFound, "Bot has no active session")
	default:
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateAccounts(w http.ResponseWriter, r *http.Request) {
	var req schemas.CreateAccountsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if req.Count == 0 {
		req.Count = 5
	}

	jobID, err := s.coord.Submit(req.Count)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, schemas.CreateAccountsResponse{
		JobID:   jobID,
		Message: "Account creation started",
	})
}

func (s *Server) handleAccountProgress(w http.ResponseWriter, r *http.Request) {
	jobID := r.URL.Query().Get("job_id")
	progress, err := s.coord.Poll(jobID)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "Job not found")
		return
	}
	s.respondJSON(w, http.StatusOK, progress)
}

func (s *Server) handleCaptchaSolved(w http.ResponseWriter, r *http.Request) {
	var req schemas.CaptchaSolvedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.BotID == nil {
		s.respondError(w, http.StatusBadRequest, "No bot_id provided")
		return
	}

	if !s.coord.ResolveCaptcha(*req.BotID) {
		s.respondJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"error":   fmt.Sprintf("Bot #%d is not waiting for a solve", *req.BotID),
		})
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("CAPTCHA submitted for Bot #%d", *req.BotID),
	})
}

func (s *Server) handleCaptchaClick(w http.ResponseWriter, r *http.Request) {
	var req schemas.CaptchaClickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.BotID == nil {
		s.respondError(w, http.StatusBadRequest, "No bot_id provided")
		return
	}

	if err := s.coord.ForwardClick(r.Context(), *req.BotID, req.X, req.Y); err != nil {
		s.botError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"clicked": true,
		"message": "CAPTCHA clicked",
	})
}

func (s *Server) handleCaptchaPressContinue(w http.ResponseWriter, r *http.Request) {
	var req schemas.CaptchaSolvedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.BotID == nil {
		s.respondError(w, http.StatusBadRequest, "No bot_id provided")
		return
	}

	pressed, err := s.coord.PressContinue(r.Context(), *req.BotID)
	if err != nil {
		s.botError(w, err)
		return
	}
	if !pressed {
		s.respondJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"error":   "Continue button not found",
		})
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("Continue button pressed for Bot #%d", *req.BotID),
	})
}

func (s *Server) screenshot(w http.ResponseWriter, r *http.Request, cropToChallenge bool) {
	botID, err := strconv.Atoi(chi.URLParam(r, "botID"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid bot id")
		return
	}

	shot, err := s.coord.Screenshot(r.Context(), botID, cropToChallenge)
	if err != nil {
		s.botError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, shot)
}

func (s *Server) handleBotScreenshot(w http.ResponseWriter, r *http.Request) {
	s.screenshot(w, r, false)
}

func (s *Server) handleCaptchaScreenshot(w http.ResponseWriter, r *http.Request) {
	s.screenshot(w, r, true)
}

func (s *Server) handleBotStatus(w http.ResponseWriter, r *http.Request) {
	statuses := s.coord.BotStatuses()
	// JSON objects key on strings.
	out := make(map[string]string, len(statuses))
	for id, status := range statuses {
		out[strconv.Itoa(id)] = status
	}
	s.respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.accounts.List()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, schemas.AccountsResponse{
		Accounts: accounts,
		Total:    len(accounts),
	})
}

func (s *Server) handleDownloadAccounts(w http.ResponseWriter, r *http.Request) {
	content, err := s.accounts.Raw()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, schemas.DownloadResponse{Content: content})
}

func (s *Server) handleClearAccounts(w http.ResponseWriter, r *http.Request) {
	if err := s.accounts.Clear(); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"message": "All accounts cleared"})
}
