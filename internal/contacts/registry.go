package contacts

import (
	"context"
	"regexp"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"careguardian/internal/apperr"
)

// Contact is one emergency contact. ID and Verified are assigned by the
// storage service, never by the client.
type Contact struct {
	ID          string `json:"id"`
	OwnerID     string `json:"userId"`
	Name        string `json:"name"`
	Relation    string `json:"relation"`
	CountryCode string `json:"countryCode"`
	Phone       string `json:"phone"`
	Verified    bool   `json:"verified"`
}

// Store is the slice of the storage collaborator the registry needs.
type Store interface {
	AddContact(ctx context.Context, c Contact) (Contact, error)
	DeleteContact(ctx context.Context, id string) error
	// VerifyContact returns the server's verdict plus an optional
	// human-readable reason on rejection.
	VerifyContact(ctx context.Context, id string) (bool, string, error)
}

var phonePattern = regexp.MustCompile(`^[0-9-() ]{7,15}$`)

type addInput struct {
	Name        string `validate:"required"`
	Relation    string `validate:"required"`
	CountryCode string `validate:"required,oneof=+1 +44 +91 +61 +86 +81 +49 +33 +7 +55"`
	Phone       string `validate:"required,phone"`
}

// Registry holds a user's emergency contacts and runs the per-contact
// verification lifecycle: Unverified -> Verifying -> {Verified |
// Unverified}. At most one contact may be Verifying at a time.
type Registry struct {
	store    Store
	validate *validator.Validate
	logger   *zap.Logger

	mu          sync.Mutex
	contacts    []Contact
	verifyingID string
}

func NewRegistry(store Store, logger *zap.Logger) *Registry {
	v := validator.New()
	// The panic is unreachable: the rule name is a constant.
	if err := v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return &Registry{
		store:    store,
		validate: v,
		logger:   logger,
	}
}

// Add validates the contact locally, creates it remotely and adopts the
// server-assigned id and verified flag from the response.
func (r *Registry) Add(ctx context.Context, c Contact) (Contact, error) {
	in := addInput{
		Name:        c.Name,
		Relation:    c.Relation,
		CountryCode: c.CountryCode,
		Phone:       c.Phone,
	}
	if err := r.validate.Struct(in); err != nil {
		return Contact{}, validationMessage(err)
	}

	stored, err := r.store.AddContact(ctx, c)
	if err != nil {
		return Contact{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.contacts = append(r.contacts, stored)
	return stored, nil
}

func validationMessage(err error) error {
	errs, ok := err.(validator.ValidationErrors)
	if !ok || len(errs) == 0 {
		return apperr.Validation("Please fill in all contact fields.")
	}
	switch errs[0].Field() {
	case "Phone":
		return apperr.Validation("Invalid phone number.")
	case "CountryCode":
		return apperr.Validation("Please choose a country code.")
	case "Relation":
		return apperr.Validation("Relation is required.")
	default:
		return apperr.Validation("Name is required.")
	}
}

// Verify submits one contact for verification. A second verify while one
// is in flight is rejected; verify on an already-verified contact is an
// idempotent no-op. On success the verified flag is flipped in place, on
// failure the contact returns to Unverified and the server-supplied
// reason (or a generic message) is surfaced.
func (r *Registry) Verify(ctx context.Context, id string) error {
	r.mu.Lock()
	if r.verifyingID != "" {
		r.mu.Unlock()
		return apperr.ErrBusy
	}
	c, ok := r.find(id)
	if !ok {
		r.mu.Unlock()
		return apperr.Validation("Contact not found.")
	}
	if c.Verified {
		r.mu.Unlock()
		return nil
	}
	r.verifyingID = id
	r.mu.Unlock()

	success, reason, err := r.store.VerifyContact(ctx, id)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.verifyingID != id {
		// The contact was removed (or the registry reset) mid-verification;
		// the outcome no longer has an owner.
		r.logger.Info("discarding verification result for removed contact",
			zap.String("contact_id", id))
		return nil
	}
	r.verifyingID = ""

	if err != nil {
		return err
	}
	if !success {
		if reason == "" {
			reason = "Verification failed."
		}
		return apperr.Validation(reason)
	}

	for i := range r.contacts {
		if r.contacts[i].ID == id {
			r.contacts[i].Verified = true
			break
		}
	}
	return nil
}

// Remove deletes a contact in any state, including mid-verification, in
// which case the in-flight guard is cleared so a subsequent verify is
// accepted immediately.
func (r *Registry) Remove(ctx context.Context, id string) error {
	if err := r.store.DeleteContact(ctx, id); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.contacts[:0]
	for _, c := range r.contacts {
		if c.ID != id {
			kept = append(kept, c)
		}
	}
	r.contacts = kept
	if r.verifyingID == id {
		r.verifyingID = ""
	}
	return nil
}

// ReplaceAll swaps in the authoritative contact list from storage.
func (r *Registry) ReplaceAll(contacts []Contact) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contacts = append([]Contact(nil), contacts...)
}

// List returns a copy of the contacts in insertion order.
func (r *Registry) List() []Contact {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Contact, len(r.contacts))
	copy(out, r.contacts)
	return out
}

// VerifyingID returns the id of the contact currently being verified, or
// an empty string.
func (r *Registry) VerifyingID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.verifyingID
}

// Reset clears all contacts and the in-flight guard. Called on logout.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contacts = nil
	r.verifyingID = ""
}

// find expects r.mu to be held.
func (r *Registry) find(id string) (Contact, bool) {
	for _, c := range r.contacts {
		if c.ID == id {
			return c, true
		}
	}
	return Contact{}, false
}
