package contractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/calvinalkan/recdb/pkg/recdb"
)

// Service is the local [Conn] backed by an open data file.
//
// Update, Delete, Book and Unbook each lock the row, perform the change and
// unlock it, so callers never handle cookies.
type Service struct {
	db  *recdb.DB
	log *slog.Logger
}

// NewService wraps db. The file must have the six contractor fields in
// order.
func NewService(db *recdb.DB, log *slog.Logger) (*Service, error) {
	schema, err := db.Schema()
	if err != nil {
		return nil, err
	}

	names := schema.FieldNames()
	if len(names) != len(fieldNames) {
		return nil, fmt.Errorf("%w: %d fields, want %d", ErrSchema, len(names), len(fieldNames))
	}

	for i, name := range fieldNames {
		if names[i] != name {
			return nil, fmt.Errorf("%w: field %d is %q, want %q", ErrSchema, i, names[i], name)
		}
	}

	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return &Service{db: db, log: log}, nil
}

func (s *Service) Create(_ context.Context, c Contractor) (int64, error) {
	s.log.Info("creating record", "name", c.Name, "location", c.Location)

	id, err := s.db.Create(recdb.Values(c.Strings()...))
	if err != nil {
		return Unsaved, err
	}

	return id, nil
}

func (s *Service) Get(_ context.Context, id int64) (Contractor, error) {
	s.log.Debug("reading record", "id", id)

	fields, err := s.db.Read(id)
	if err != nil {
		return Contractor{}, err
	}

	return fromFields(id, fields), nil
}

func (s *Service) Update(_ context.Context, id int64, f Fields) error {
	s.log.Info("updating record", "id", id)

	return s.withLock(id, func(cookie recdb.Cookie) error {
		return s.db.Update(id, f.Values(), cookie)
	})
}

func (s *Service) Delete(_ context.Context, id int64) error {
	s.log.Info("deleting record", "id", id)

	return s.withLock(id, func(cookie recdb.Cookie) error {
		return s.db.Delete(id, cookie)
	})
}

// Find runs the prefix search and re-reads each hit. Rows deleted between
// the search and the read are skipped.
func (s *Service) Find(_ context.Context, criteria Fields, exact bool) ([]Contractor, error) {
	s.log.Debug("searching records", "criteria", criteria, "exact", exact)

	crit := criteria.Values()

	ids, err := s.db.Find(crit)
	if err != nil {
		return nil, err
	}

	out := make([]Contractor, 0, len(ids))

	for _, id := range ids {
		fields, err := s.db.Read(id)
		if errors.Is(err, recdb.ErrRecordNotFound) {
			s.log.Debug("record vanished during search", "id", id)

			continue
		}

		if err != nil {
			return nil, err
		}

		if exact && !equalsCriteria(fields, crit) {
			continue
		}

		out = append(out, fromFields(id, fields))
	}

	return out, nil
}

// Book sets the owner of id. Booking a contractor already booked by the
// same owner succeeds; any other owner fails with [ErrAlreadyBooked].
func (s *Service) Book(_ context.Context, id int64, owner string) error {
	if !ValidOwner(owner) {
		return fmt.Errorf("%w: %q", ErrInvalidOwner, owner)
	}

	s.log.Info("booking record", "id", id, "owner", owner)

	return s.withLock(id, func(cookie recdb.Cookie) error {
		fields, err := s.db.Read(id)
		if err != nil {
			return err
		}

		if current := fields[ownerIndex]; current != "" && current != owner {
			return fmt.Errorf("%w: record %d", ErrAlreadyBooked, id)
		}

		return s.db.Update(id, ownerValues(owner), cookie)
	})
}

func (s *Service) Unbook(_ context.Context, id int64) error {
	s.log.Info("releasing booking", "id", id)

	return s.withLock(id, func(cookie recdb.Cookie) error {
		return s.db.Update(id, ownerValues(""), cookie)
	})
}

func (s *Service) Schema(context.Context) (recdb.Schema, error) {
	return s.db.Schema()
}

// withLock runs fn holding id's row lock. Unlock is attempted even when fn
// fails.
func (s *Service) withLock(id int64, fn func(cookie recdb.Cookie) error) error {
	cookie, err := s.db.Lock(id)
	if err != nil {
		return err
	}

	opErr := fn(cookie)
	unlockErr := s.db.Unlock(id, cookie)

	return errors.Join(opErr, unlockErr)
}

func ownerValues(owner string) []recdb.Value {
	vals := make([]recdb.Value, ownerIndex+1)
	vals[ownerIndex] = recdb.Some(owner)

	return vals
}

// equalsCriteria reports whether every present criterion equals its field.
func equalsCriteria(fields []string, criteria []recdb.Value) bool {
	for i, c := range criteria {
		if want, ok := c.Get(); ok && fields[i] != want {
			return false
		}
	}

	return true
}

var _ Conn = (*Service)(nil)
