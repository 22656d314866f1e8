package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"careguardian/internal/app"
	"careguardian/internal/apperr"
	"careguardian/internal/contacts"
	"careguardian/internal/vitals"
)

// Handler exposes the orchestration facade to the presentation layer.
type Handler struct {
	app    *app.App
	logger *zap.Logger
}

func NewHandler(a *app.App, logger *zap.Logger) *Handler {
	return &Handler{app: a, logger: logger}
}

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Post("/login", h.Login)
	r.Post("/register", h.Register)
	r.Post("/logout", h.Logout)
	r.Delete("/account", h.DeleteAccount)

	r.Get("/state", h.State)
	r.Put("/page", h.SetPage)
	r.Get("/tip", h.Tip)

	r.Post("/vitals", h.SubmitVitals)
	r.Post("/mood", h.AnalyzeMood)

	r.Post("/contacts", h.AddContact)
	r.Delete("/contacts/{id}", h.RemoveContact)
	r.Post("/contacts/{id}/verify", h.VerifyContact)

	r.Post("/chat", h.Chat)

	r.Get("/report", h.Report)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("Invalid request."))
		return
	}
	session, err := h.app.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, session)
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("Invalid request."))
		return
	}
	if err := h.app.Register(r.Context(), req.Name, req.Email, req.Password); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{"message": "Registration successful! Please log in."})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.app.Logout()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.app.DeleteAccount(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.app.Snapshot())
}

type pageRequest struct {
	Page string `json:"page"`
}

func (h *Handler) SetPage(w http.ResponseWriter, r *http.Request) {
	var req pageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("Invalid request."))
		return
	}
	page, err := app.ParsePage(req.Page)
	if err != nil {
		writeError(w, err)
		return
	}
	h.app.SetPage(page)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Tip(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"tip": h.app.TipOfDay(r.Context())})
}

type vitalsRequest struct {
	HeartRate       int      `json:"heartRate"`
	BloodPressure   int      `json:"bloodPressure"`
	BloodOxygen     *float64 `json:"bloodOxygen,omitempty"`
	Glucose         *float64 `json:"glucose,omitempty"`
	BodyTemperature *float64 `json:"bodyTemperature,omitempty"`
}

func (h *Handler) SubmitVitals(w http.ResponseWriter, r *http.Request) {
	var req vitalsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("Invalid request."))
		return
	}
	sample, err := h.app.SubmitVitals(r.Context(), vitals.Sample{
		HeartRate:       req.HeartRate,
		SystolicBP:      req.BloodPressure,
		BloodOxygen:     req.BloodOxygen,
		Glucose:         req.Glucose,
		BodyTemperature: req.BodyTemperature,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, sample)
}

type moodRequest struct {
	Text string `json:"text"`
}

func (h *Handler) AnalyzeMood(w http.ResponseWriter, r *http.Request) {
	var req moodRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("Invalid request."))
		return
	}
	result, err := h.app.AnalyzeMood(r.Context(), req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, result)
}

type contactRequest struct {
	Name        string `json:"name"`
	Relation    string `json:"relation"`
	CountryCode string `json:"countryCode"`
	Phone       string `json:"phone"`
}

func (h *Handler) AddContact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("Invalid request."))
		return
	}
	contact, err := h.app.AddContact(r.Context(), contacts.Contact{
		Name:        req.Name,
		Relation:    req.Relation,
		CountryCode: req.CountryCode,
		Phone:       req.Phone,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, contact)
}

func (h *Handler) RemoveContact(w http.ResponseWriter, r *http.Request) {
	if err := h.app.RemoveContact(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) VerifyContact(w http.ResponseWriter, r *http.Request) {
	if err := h.app.VerifyContact(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]bool{"success": true})
}

type chatRequest struct {
	Text string `json:"text"`
}

func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation("Invalid request."))
		return
	}
	reply, err := h.app.SendChat(r.Context(), req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{"reply": reply})
}

func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	data, err := h.app.GenerateReport(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="careguardian_report_%s.pdf"`, uuid.NewString()))
	// Mid-stream write failures cannot be reported to the client anymore.
	_, _ = w.Write(data)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// writeError maps the error taxonomy onto status codes and emits the
// user-visible message only; raw collaborator payloads stay in the logs.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, apperr.ErrNoSession):
		status = http.StatusUnauthorized
	case errors.Is(err, apperr.ErrBusy):
		status = http.StatusConflict
	case apperr.IsValidation(err):
		status = http.StatusBadRequest
	case apperr.IsTransport(err), apperr.IsFormat(err):
		status = http.StatusBadGateway
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"message": apperr.UserMessage(err)})
}
