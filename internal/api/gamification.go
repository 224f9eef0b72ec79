package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/odin-market/progression/internal/progression"
	"github.com/sirupsen/logrus"
)

const maxBodyBytes = 64 << 10

// profileView is the GET /{userId} payload: the profile plus its position
// on the level curve.
type profileView struct {
	*progression.Profile
	LevelInfo progression.LevelInfo `json:"levelInfo"`
}

type addXPRequest struct {
	Action   string              `json:"action"`
	Data     progression.Payload `json:"data"`
	UserType string              `json:"userType"`
}

type challengeProgressRequest struct {
	Progress *float64 `json:"progress"`
	UserType string   `json:"userType"`
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	key, ok := s.profileKey(w, r, "")
	if !ok {
		return
	}
	p, info, err := s.engine.GetProfile(r.Context(), key)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, profileView{Profile: p, LevelInfo: info})
}

func (s *Server) handleAddXP(w http.ResponseWriter, r *http.Request) {
	var req addXPRequest
	if !decodeBody(w, r, &req) {
		return
	}
	key, ok := s.profileKey(w, r, req.UserType)
	if !ok {
		return
	}
	if strings.TrimSpace(req.Action) == "" {
		writeError(w, http.StatusBadRequest, "action is required")
		return
	}

	res, err := s.engine.ProcessEvent(r.Context(), progression.Event{
		ProfileID: key.ID,
		Class:     key.Class,
		Action:    req.Action,
		Payload:   req.Data,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, res)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := intParam(q.Get("page"), 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, "page must be an integer")
		return
	}
	limit, err := intParam(q.Get("limit"), 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}

	result, err := s.ranks.Rank(r.Context(), progression.ParseMetric(q.Get("category")), page, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, result)
}

func (s *Server) handleChallenges(w http.ResponseWriter, r *http.Request) {
	s.serveChallenges(w, r, "")
}

func (s *Server) handleDailyChallenges(w http.ResponseWriter, r *http.Request) {
	s.serveChallenges(w, r, progression.ChallengeDaily)
}

func (s *Server) serveChallenges(w http.ResponseWriter, r *http.Request, only progression.ChallengeType) {
	key, ok := s.profileKey(w, r, "")
	if !ok {
		return
	}
	all, err := s.engine.GetChallenges(r.Context(), key, s.now())
	if err != nil {
		s.fail(w, r, err)
		return
	}

	out := make([]progression.Challenge, 0, len(all))
	for _, ch := range all {
		if only == "" || ch.Type == only {
			out = append(out, ch)
		}
	}
	writeData(w, out)
}

func (s *Server) handleUpdateChallenge(w http.ResponseWriter, r *http.Request) {
	var req challengeProgressRequest
	if !decodeBody(w, r, &req) {
		return
	}
	key, ok := s.profileKey(w, r, req.UserType)
	if !ok {
		return
	}
	if req.Progress == nil {
		writeError(w, http.StatusBadRequest, "progress is required")
		return
	}

	upd, err := s.engine.UpdateChallenge(r.Context(), key, chi.URLParam(r, "challengeId"), *req.Progress)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, upd)
}

func (s *Server) handleAchievements(w http.ResponseWriter, r *http.Request) {
	key, ok := s.profileKey(w, r, "")
	if !ok {
		return
	}
	list, err := s.engine.GetAchievements(r.Context(), key)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeData(w, list)
}

// profileKey reads the user id from the path and the class from the body
// value, falling back to the userType query parameter.
func (s *Server) profileKey(w http.ResponseWriter, r *http.Request, userType string) (progression.ProfileKey, bool) {
	if userType == "" {
		userType = r.URL.Query().Get("userType")
	}
	class, err := progression.ParseUserClass(userType)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return progression.ProfileKey{}, false
	}
	key := progression.ProfileKey{ID: chi.URLParam(r, "userId"), Class: class}
	if err := key.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return progression.ProfileKey{}, false
	}
	return key, true
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
		}).WithError(err).Error("request failed")
	}
	writeError(w, status, messageFor(status, err))
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func intParam(raw string, def int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
