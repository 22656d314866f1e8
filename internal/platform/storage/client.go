package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"careguardian/internal/apperr"
	"careguardian/internal/app"
	"careguardian/internal/contacts"
	"careguardian/internal/vitals"
)

// Client talks to the remote storage/account service. It implements the
// consumer-side interfaces declared by the app facade and the contact
// registry.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// wireID tolerates servers that send numeric ids.
type wireID string

func (w *wireID) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" {
		s = ""
	}
	*w = wireID(s)
	return nil
}

// wireBool tolerates servers that send 0/1 for booleans.
type wireBool bool

func (w *wireBool) UnmarshalJSON(data []byte) error {
	switch strings.Trim(string(data), `"`) {
	case "1", "true":
		*w = true
	default:
		*w = false
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.Transport("The service is unreachable. Please try again.", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		msg := serverMessage(raw)
		cause := fmt.Errorf("storage api %s %s returned status %s: %s", method, path, resp.Status, string(raw))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && msg != "" {
			return apperr.Validation(msg)
		}
		return apperr.Transport("The service is unavailable. Please try again.", cause)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.Format("The service returned an invalid response.", err)
	}
	return nil
}

// serverMessage pulls the human-readable message the storage service puts
// in error bodies, if any.
func serverMessage(raw []byte) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	return body.Message
}

// --- accounts ---

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
	User  struct {
		ID   wireID `json:"id"`
		Name string `json:"name"`
	} `json:"user"`
}

func (c *Client) Login(ctx context.Context, email, password string) (*app.Session, error) {
	var out loginResponse
	if err := c.do(ctx, http.MethodPost, "/api/login", loginRequest{Email: email, Password: password}, &out); err != nil {
		return nil, err
	}
	if out.Token == "" || out.User.ID == "" {
		return nil, apperr.Format("The service returned an invalid response.",
			fmt.Errorf("login response missing token or user id"))
	}
	return &app.Session{
		Token: out.Token,
		User:  app.User{ID: string(out.User.ID), Name: out.User.Name},
	}, nil
}

func (c *Client) Register(ctx context.Context, name, email, password string) error {
	return c.do(ctx, http.MethodPost, "/api/register", registerRequest{Name: name, Email: email, Password: password}, nil)
}

func (c *Client) DeleteUser(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodDelete, "/api/users/"+userID, nil, nil)
}

// --- vitals ---

type wireSample struct {
	ID              wireID   `json:"id"`
	UserID          wireID   `json:"userId"`
	HeartRate       int      `json:"heartRate"`
	BloodPressure   int      `json:"bloodPressure"`
	BloodOxygen     *float64 `json:"bloodOxygen"`
	Glucose         *float64 `json:"glucose"`
	BodyTemperature *float64 `json:"bodyTemperature"`
}

func (w wireSample) sample() vitals.Sample {
	return vitals.Sample{
		ID:              string(w.ID),
		OwnerID:         string(w.UserID),
		HeartRate:       w.HeartRate,
		SystolicBP:      w.BloodPressure,
		BloodOxygen:     w.BloodOxygen,
		Glucose:         w.Glucose,
		BodyTemperature: w.BodyTemperature,
	}
}

func (c *Client) ListVitals(ctx context.Context, userID string) ([]vitals.Sample, error) {
	var out []wireSample
	if err := c.do(ctx, http.MethodGet, "/api/health/"+userID, nil, &out); err != nil {
		return nil, err
	}
	samples := make([]vitals.Sample, 0, len(out))
	for _, w := range out {
		samples = append(samples, w.sample())
	}
	return samples, nil
}

type saveSampleRequest struct {
	UserID          string   `json:"userId"`
	HeartRate       int      `json:"heartRate"`
	BloodPressure   int      `json:"bloodPressure"`
	BloodOxygen     *float64 `json:"bloodOxygen,omitempty"`
	Glucose         *float64 `json:"glucose,omitempty"`
	BodyTemperature *float64 `json:"bodyTemperature,omitempty"`
}

func (c *Client) SaveVitals(ctx context.Context, s vitals.Sample) (vitals.Sample, error) {
	req := saveSampleRequest{
		UserID:          s.OwnerID,
		HeartRate:       s.HeartRate,
		BloodPressure:   s.SystolicBP,
		BloodOxygen:     s.BloodOxygen,
		Glucose:         s.Glucose,
		BodyTemperature: s.BodyTemperature,
	}
	var out wireSample
	if err := c.do(ctx, http.MethodPost, "/api/health", req, &out); err != nil {
		return vitals.Sample{}, err
	}
	stored := out.sample()
	if stored.OwnerID == "" {
		stored.OwnerID = s.OwnerID
	}
	return stored, nil
}

// --- contacts ---

type wireContact struct {
	ID          wireID   `json:"id"`
	UserID      wireID   `json:"userId"`
	Name        string   `json:"name"`
	Relation    string   `json:"relation"`
	CountryCode string   `json:"countryCode"`
	Phone       string   `json:"phone"`
	Verified    wireBool `json:"verified"`
}

func (w wireContact) contact() contacts.Contact {
	return contacts.Contact{
		ID:          string(w.ID),
		OwnerID:     string(w.UserID),
		Name:        w.Name,
		Relation:    w.Relation,
		CountryCode: w.CountryCode,
		Phone:       w.Phone,
		Verified:    bool(w.Verified),
	}
}

func (c *Client) ListContacts(ctx context.Context, userID string) ([]contacts.Contact, error) {
	var out []wireContact
	if err := c.do(ctx, http.MethodGet, "/api/contacts/"+userID, nil, &out); err != nil {
		return nil, err
	}
	list := make([]contacts.Contact, 0, len(out))
	for _, w := range out {
		list = append(list, w.contact())
	}
	return list, nil
}

type addContactRequest struct {
	UserID      string `json:"userId"`
	Name        string `json:"name"`
	Relation    string `json:"relation"`
	CountryCode string `json:"countryCode"`
	Phone       string `json:"phone"`
}

func (c *Client) AddContact(ctx context.Context, in contacts.Contact) (contacts.Contact, error) {
	req := addContactRequest{
		UserID:      in.OwnerID,
		Name:        in.Name,
		Relation:    in.Relation,
		CountryCode: in.CountryCode,
		Phone:       in.Phone,
	}
	var out wireContact
	if err := c.do(ctx, http.MethodPost, "/api/contacts", req, &out); err != nil {
		return contacts.Contact{}, err
	}
	if out.ID == "" {
		return contacts.Contact{}, apperr.Format("The service returned an invalid response.",
			fmt.Errorf("contact response missing id"))
	}
	stored := out.contact()
	if stored.OwnerID == "" {
		stored.OwnerID = in.OwnerID
	}
	return stored, nil
}

func (c *Client) DeleteContact(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/contacts/"+id, nil, nil)
}

type verifyRequest struct {
	ContactID string `json:"contactId"`
}

type verifyResponse struct {
	Success wireBool `json:"success"`
	Message string   `json:"message"`
}

func (c *Client) VerifyContact(ctx context.Context, id string) (bool, string, error) {
	var out verifyResponse
	if err := c.do(ctx, http.MethodPost, "/api/contacts/verify", verifyRequest{ContactID: id}, &out); err != nil {
		return false, "", err
	}
	return bool(out.Success), out.Message, nil
}
