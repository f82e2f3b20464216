package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/rpattn/pawlog/internal/auth"
	"github.com/rpattn/pawlog/internal/domain"
	"github.com/rpattn/pawlog/internal/middleware"
	"github.com/rpattn/pawlog/internal/quota"
	"github.com/rpattn/pawlog/internal/records"
	"github.com/rpattn/pawlog/internal/timeline"
)

func invalidID(name string) error {
	return fmt.Errorf("%w: %s must be a UUID", domain.ErrInvalid, name)
}

func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", domain.ErrInvalid, err)
	}
	return nil
}

// --- auth ---

type credentialsPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) signUp(w http.ResponseWriter, r *http.Request) {
	var payload auth.SignUpRequest
	if err := decode(r, &payload); err != nil {
		h.fail(w, r, err)
		return
	}
	token, err := h.auth.SignUp(r.Context(), payload)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, token)
}

func (h *Handler) signIn(w http.ResponseWriter, r *http.Request) {
	var payload credentialsPayload
	if err := decode(r, &payload); err != nil {
		h.fail(w, r, err)
		return
	}
	token, err := h.auth.SignIn(r.Context(), payload.Email, payload.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, token)
}

func (h *Handler) signOut(w http.ResponseWriter, r *http.Request) {
	token := middleware.BearerToken(r)
	if token == "" {
		h.fail(w, r, auth.ErrUnauthenticated)
		return
	}
	if err := h.auth.SignOut(r.Context(), token); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type resetRequestPayload struct {
	Email string `json:"email"`
}

func (h *Handler) requestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var payload resetRequestPayload
	if err := decode(r, &payload); err != nil {
		h.fail(w, r, err)
		return
	}
	token, err := h.auth.RequestPasswordReset(r.Context(), payload.Email)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if token != "" && h.exposeResetTokens {
		h.logger.Debug("password reset token issued", zap.String("email", payload.Email), zap.String("token", token))
	}
	// same answer whether or not the account exists
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "if the account exists, a reset link has been sent"})
}

type resetConfirmPayload struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (h *Handler) confirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	var payload resetConfirmPayload
	if err := decode(r, &payload); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.auth.ResetPassword(r.Context(), payload.Token, payload.Password); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- profile and quota ---

func (h *Handler) getProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := h.profiles.Get(r.Context(), principal(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

type profilePayload struct {
	DisplayName *string `json:"display_name"`
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	var payload profilePayload
	if err := decode(r, &payload); err != nil {
		h.fail(w, r, err)
		return
	}
	profile, err := h.profiles.Get(r.Context(), principal(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if payload.DisplayName != nil {
		profile = profile.WithDisplayName(*payload.DisplayName)
	}
	updated, err := h.profiles.Update(r.Context(), profile)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

type tierPayload struct {
	Tier string `json:"tier"`
}

// changeTier records a plan change confirmed by the billing provider.
func (h *Handler) changeTier(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var payload tierPayload
	if err := decode(r, &payload); err != nil {
		h.fail(w, r, err)
		return
	}
	tier, err := domain.ParseTier(payload.Tier)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	profile, err := h.profiles.Get(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	updated, err := h.profiles.Update(r.Context(), profile.WithTier(tier))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger.Info("subscription tier changed",
		zap.Stringer("user", updated.ID),
		zap.String("from", string(profile.Tier)),
		zap.String("to", string(updated.Tier)))
	writeJSON(w, http.StatusOK, updated)
}

type quotaResponse struct {
	quota.Usage
	Bypassed  bool                `json:"bypassed"`
	Stats     quota.StatsSnapshot `json:"stats"`
	// Decisions is the caller's own history, present when tracking is on.
	Decisions quota.StatsSnapshot `json:"decisions,omitempty"`
}

func (h *Handler) getQuota(w http.ResponseWriter, r *http.Request) {
	usage, err := h.quota.Usage(r.Context(), principal(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	stats, err := h.quota.Stats(r.Context())
	if err != nil {
		h.logger.Warn("load quota stats", zap.Error(err))
		stats = quota.StatsSnapshot{}
	}
	decisions, err := h.quota.PrincipalStats(r.Context(), principal(r))
	if err != nil {
		h.logger.Warn("load principal quota stats", zap.Error(err))
		decisions = nil
	}
	writeJSON(w, http.StatusOK, quotaResponse{
		Usage:     usage,
		Bypassed:  h.quota.Bypassed(),
		Stats:     stats,
		Decisions: decisions,
	})
}

// --- pets ---

func (h *Handler) listPets(w http.ResponseWriter, r *http.Request) {
	list, err := h.pets.List(r.Context(), principal(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	summaries, err := h.pets.Summaries(r.Context(), list)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (h *Handler) createPet(w http.ResponseWriter, r *http.Request) {
	var input domain.PetInput
	if err := decode(r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	pet, err := h.pets.Create(r.Context(), principal(r), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, pet)
}

func (h *Handler) getPet(w http.ResponseWriter, r *http.Request) {
	petID, err := pathID(r, "petID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	pet, err := h.pets.Get(r.Context(), principal(r), petID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pet)
}

func (h *Handler) updatePet(w http.ResponseWriter, r *http.Request) {
	petID, err := pathID(r, "petID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var input domain.PetInput
	if err := decode(r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	pet, err := h.pets.Update(r.Context(), principal(r), petID, input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pet)
}

func (h *Handler) deletePet(w http.ResponseWriter, r *http.Request) {
	petID, err := pathID(r, "petID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.pets.Delete(r.Context(), principal(r), petID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- records ---

func (h *Handler) listRecords(w http.ResponseWriter, r *http.Request) {
	petID, err := pathID(r, "petID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	list, err := h.records.List(r.Context(), principal(r), petID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) createRecord(w http.ResponseWriter, r *http.Request) {
	petID, err := pathID(r, "petID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var input domain.HealthRecordInput
	if err := decode(r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	record, err := h.records.Create(r.Context(), principal(r), petID, input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (h *Handler) getRecord(w http.ResponseWriter, r *http.Request) {
	petID, err := pathID(r, "petID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	recordID, err := pathID(r, "recordID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	record, err := h.records.Get(r.Context(), principal(r), petID, recordID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *Handler) updateRecord(w http.ResponseWriter, r *http.Request) {
	petID, err := pathID(r, "petID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	recordID, err := pathID(r, "recordID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var input domain.HealthRecordInput
	if err := decode(r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	record, err := h.records.Update(r.Context(), principal(r), petID, recordID, input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *Handler) deleteRecord(w http.ResponseWriter, r *http.Request) {
	petID, err := pathID(r, "petID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	recordID, err := pathID(r, "recordID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.records.Delete(r.Context(), principal(r), petID, recordID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) importRecords(w http.ResponseWriter, r *http.Request) {
	petID, err := pathID(r, "petID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		h.fail(w, r, fmt.Errorf("%w: failed to parse upload: %v", domain.ErrInvalid, err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		h.fail(w, r, fmt.Errorf("%w: file is required", domain.ErrInvalid))
		return
	}
	defer file.Close()

	summary, err := h.records.Import(r.Context(), principal(r), records.ImportRequest{
		PetID:    petID,
		FileName: header.Filename,
		Data:     file,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (h *Handler) exportRecords(w http.ResponseWriter, r *http.Request) {
	petID, err := pathID(r, "petID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	active, err := filterParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	// buffer so a failure can still be reported as JSON
	var buf bytes.Buffer
	name, err := h.records.Export(r.Context(), principal(r), petID, active, &buf)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// --- timeline ---

// filterParam reads ?filter=vaccine,symptom (or repeated filter params).
// No filter, or an empty one, means the wildcard.
func filterParam(r *http.Request) (timeline.Set, error) {
	var names []string
	for _, value := range r.URL.Query()["filter"] {
		for _, name := range strings.Split(value, ",") {
			if name = strings.TrimSpace(name); name != "" {
				names = append(names, name)
			}
		}
	}
	if len(names) == 0 {
		return timeline.Wildcard, nil
	}
	return timeline.ParseSet(names)
}

func (h *Handler) getTimeline(w http.ResponseWriter, r *http.Request) {
	petID, err := pathID(r, "petID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	active, err := filterParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	view, err := h.records.Timeline(r.Context(), principal(r), petID, active)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type togglePayload struct {
	Active   *timeline.Set `json:"active"`
	Category string        `json:"category"`
}

func (h *Handler) toggleFilter(w http.ResponseWriter, r *http.Request) {
	petID, err := pathID(r, "petID")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var payload togglePayload
	if err := decode(r, &payload); err != nil {
		h.fail(w, r, err)
		return
	}
	active := timeline.Wildcard
	if payload.Active != nil {
		active = *payload.Active
	}
	category, err := timeline.ParseCategory(payload.Category)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	view, err := h.records.Toggle(r.Context(), principal(r), petID, active, category)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
