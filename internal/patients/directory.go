package patients

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/mundos-engagement/internal/apperr"
	"github.com/wolfman30/mundos-engagement/internal/docstore"
	"github.com/wolfman30/mundos-engagement/internal/locks"
	"github.com/wolfman30/mundos-engagement/pkg/logging"
)

var patientsTracer = otel.Tracer("engagement.internal.patients")

var (
	// ErrInvalidEmail is returned when an email address cannot be parsed.
	ErrInvalidEmail = errors.New("a valid email address is required")

	// ErrMissingContact is returned when both email and phone are missing.
	ErrMissingContact = errors.New("either email or phone is required")
)

// Directory identifies patients by contact details and creates them on demand.
type Directory struct {
	store  docstore.Store
	locker locks.Locker
	logger *logging.Logger
	now    func() time.Time
}

// NewDirectory builds a directory. A nil locker leaves find-or-create
// unserialized.
func NewDirectory(store docstore.Store, locker locks.Locker, logger *logging.Logger) *Directory {
	if store == nil {
		panic("patients: document store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Directory{store: store, locker: locker, logger: logger, now: time.Now}
}

// ValidateEmail reports whether email is a bare, parseable address.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return apperr.InvalidArgument(ErrInvalidEmail.Error())
	}
	return nil
}

// Create inserts a new patient record without checking for duplicates.
func (d *Directory) Create(ctx context.Context, p Patient) (Patient, error) {
	now := d.now().UTC()
	p.ID = ""
	p.Email = NormalizeEmail(p.Email)
	p.Phone = strings.TrimSpace(p.Phone)
	if p.PatientType == "" {
		p.PatientType = TypeNew
	}
	if len(p.PreferredChannel) == 0 {
		p.PreferredChannel = []Channel{ChannelEmail}
	}
	p.CreatedAt = now
	p.UpdatedAt = now

	doc, err := docstore.Encode(p)
	if err != nil {
		return Patient{}, err
	}
	id, err := d.store.Insert(ctx, Collection, doc)
	if err != nil {
		return Patient{}, fmt.Errorf("patients: create: %w", err)
	}
	p.ID = id
	return p, nil
}

// Get returns the patient with id.
func (d *Directory) Get(ctx context.Context, id string) (Patient, error) {
	doc, err := d.store.Get(ctx, Collection, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return Patient{}, apperr.NotFound("Patient not found")
	}
	if err != nil {
		return Patient{}, fmt.Errorf("patients: get: %w", err)
	}
	var p Patient
	if err := docstore.Decode(doc, &p); err != nil {
		return Patient{}, err
	}
	return p, nil
}

// Delete removes the patient record. Removing an unknown id is not an error.
func (d *Directory) Delete(ctx context.Context, id string) error {
	if _, err := d.store.Delete(ctx, Collection, id); err != nil {
		return fmt.Errorf("patients: delete: %w", err)
	}
	return nil
}

// FindOrCreateByEmail returns the patient with email, creating one from
// defaults when none exists. The lookup and insert run under a per-email
// lock so concurrent callers converge on one record.
func (d *Directory) FindOrCreateByEmail(ctx context.Context, email string, defaults Patient) (Patient, bool, error) {
	ctx, span := patientsTracer.Start(ctx, "patients.find_or_create")
	defer span.End()

	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return Patient{}, false, err
	}

	if d.locker != nil {
		release, err := d.locker.Acquire(ctx, "patient:email:"+email)
		if errors.Is(err, locks.ErrNotAcquired) {
			return Patient{}, false, apperr.Conflict("Another request for this patient is in progress; retry shortly.")
		}
		if err != nil {
			span.RecordError(err)
			return Patient{}, false, fmt.Errorf("patients: lock: %w", err)
		}
		defer release()
	}

	existing, err := d.findOne(ctx, "email", email)
	if err != nil {
		span.RecordError(err)
		return Patient{}, false, err
	}
	if existing != nil {
		span.SetAttributes(attribute.String("engagement.patient_id", existing.ID), attribute.Bool("engagement.created", false))
		return *existing, false, nil
	}

	defaults.Email = email
	created, err := d.Create(ctx, defaults)
	if err != nil {
		span.RecordError(err)
		return Patient{}, false, err
	}
	span.SetAttributes(attribute.String("engagement.patient_id", created.ID), attribute.Bool("engagement.created", true))
	d.logger.Info("patient created", "patient_id", created.ID, "patient_type", created.PatientType)
	return created, true, nil
}

// FindByEmailOrPhone returns the first patient matching email, then phone.
func (d *Directory) FindByEmailOrPhone(ctx context.Context, email, phone string) (Patient, error) {
	email = NormalizeEmail(email)
	phone = strings.TrimSpace(phone)
	if email == "" && phone == "" {
		return Patient{}, apperr.InvalidArgument(ErrMissingContact.Error())
	}

	if email != "" {
		p, err := d.findOne(ctx, "email", email)
		if err != nil {
			return Patient{}, err
		}
		if p != nil {
			return *p, nil
		}
	}
	if phone != "" {
		p, err := d.findOne(ctx, "phone", phone)
		if err != nil {
			return Patient{}, err
		}
		if p != nil {
			return *p, nil
		}
	}
	return Patient{}, apperr.NotFound("Patient not found")
}

// SetNextFollowUp overwrites the patient's follow-up date.
func (d *Directory) SetNextFollowUp(ctx context.Context, id string, date time.Time) error {
	err := d.store.Update(ctx, Collection, id, docstore.Document{
		"next_follow_up_date": date.UTC(),
		"updated_at":          d.now().UTC(),
	})
	if errors.Is(err, docstore.ErrNotFound) {
		return apperr.NotFound("Patient not found")
	}
	if err != nil {
		return fmt.Errorf("patients: set follow-up: %w", err)
	}
	return nil
}

// DisplayNames resolves patient ids to display names, using UnknownName
// for ids whose record is missing.
func (d *Directory) DisplayNames(ctx context.Context, ids []string) (map[string]string, error) {
	names := make(map[string]string, len(ids))
	for _, id := range ids {
		if _, done := names[id]; done {
			continue
		}
		p, err := d.Get(ctx, id)
		switch {
		case apperr.Is(err, apperr.KindNotFound):
			names[id] = UnknownName
		case err != nil:
			return nil, err
		default:
			names[id] = p.DisplayName()
		}
	}
	return names, nil
}

// findOne returns the oldest patient whose field equals value, or nil.
func (d *Directory) findOne(ctx context.Context, field, value string) (*Patient, error) {
	docs, err := d.store.Find(ctx, Collection,
		docstore.Where(docstore.Eq(field, value)).OrderBy(docstore.Asc("created_at")).Take(1))
	if err != nil {
		return nil, fmt.Errorf("patients: find by %s: %w", field, err)
	}
	if len(docs) == 0 {
		return nil, nil
	}
	var p Patient
	if err := docstore.Decode(docs[0], &p); err != nil {
		return nil, err
	}
	return &p, nil
}
