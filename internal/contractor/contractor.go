// Package contractor maps the home-improvement contractor records of a
// recdb data file to Go values and implements the booking workflow on top
// of the record store.
package contractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/calvinalkan/recdb/pkg/recdb"
)

// Error variables for contractor operations.
var (
	ErrInvalidOwner  = errors.New("contractor: owner must be an 8-digit customer id")
	ErrAlreadyBooked = errors.New("contractor: already booked by another customer")
	ErrSchema        = errors.New("contractor: data file is not a contractor file")
)

// Unsaved is the ID of a contractor that has not been stored.
const Unsaved int64 = -1

// Field names in file order.
const (
	FieldName        = "name"
	FieldLocation    = "location"
	FieldSpecialties = "specialties"
	FieldSize        = "size"
	FieldRate        = "rate"
	FieldOwner       = "owner"
)

const ownerIndex = 5

// fieldNames lists the contractor fields in file order.
var fieldNames = []string{FieldName, FieldLocation, FieldSpecialties, FieldSize, FieldRate, FieldOwner}

// Schema returns the layout of a new contractor data file.
func Schema() recdb.Schema {
	return recdb.NewSchema(0x00000203,
		recdb.Field{Name: FieldName, Length: 32},
		recdb.Field{Name: FieldLocation, Length: 64},
		recdb.Field{Name: FieldSpecialties, Length: 64},
		recdb.Field{Name: FieldSize, Length: 6},
		recdb.Field{Name: FieldRate, Length: 8},
		recdb.Field{Name: FieldOwner, Length: 8},
	)
}

// Contractor is one stored record.
type Contractor struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Location    string `json:"location"`
	Specialties string `json:"specialties"`
	Size        string `json:"size"`
	Rate        string `json:"rate"`
	Owner       string `json:"owner"`
}

// New returns an unsaved contractor.
func New(name, location, specialties, size, rate string) Contractor {
	return Contractor{
		ID:          Unsaved,
		Name:        name,
		Location:    location,
		Specialties: specialties,
		Size:        size,
		Rate:        rate,
	}
}

func fromFields(id int64, fields []string) Contractor {
	return Contractor{
		ID:          id,
		Name:        fields[0],
		Location:    fields[1],
		Specialties: fields[2],
		Size:        fields[3],
		Rate:        fields[4],
		Owner:       fields[5],
	}
}

// Strings returns the field values in file order.
func (c Contractor) Strings() []string {
	return []string{c.Name, c.Location, c.Specialties, c.Size, c.Rate, c.Owner}
}

// Booked reports whether an owner is set.
func (c Contractor) Booked() bool {
	return c.Owner != ""
}

// Fields holds one optional value per contractor field. A nil field leaves
// the stored value unchanged in an update and matches anything in a search.
type Fields struct {
	Name        *string `json:"name,omitempty"`
	Location    *string `json:"location,omitempty"`
	Specialties *string `json:"specialties,omitempty"`
	Size        *string `json:"size,omitempty"`
	Rate        *string `json:"rate,omitempty"`
	Owner       *string `json:"owner,omitempty"`
}

// Set assigns the named field. It fails for unknown names.
func (f *Fields) Set(name, value string) error {
	v := &value

	switch name {
	case FieldName:
		f.Name = v
	case FieldLocation:
		f.Location = v
	case FieldSpecialties:
		f.Specialties = v
	case FieldSize:
		f.Size = v
	case FieldRate:
		f.Rate = v
	case FieldOwner:
		f.Owner = v
	default:
		return fmt.Errorf("%w: unknown field %q", recdb.ErrInvalidInput, name)
	}

	return nil
}

// Values converts f to recdb values, nil fields becoming [recdb.Absent].
func (f Fields) Values() []recdb.Value {
	ptrs := []*string{f.Name, f.Location, f.Specialties, f.Size, f.Rate, f.Owner}
	out := make([]recdb.Value, len(ptrs))

	for i, p := range ptrs {
		if p != nil {
			out[i] = recdb.Some(*p)
		}
	}

	return out
}

// Apply returns c with every set field of f copied over.
func (f Fields) Apply(c Contractor) Contractor {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}

	set(&c.Name, f.Name)
	set(&c.Location, f.Location)
	set(&c.Specialties, f.Specialties)
	set(&c.Size, f.Size)
	set(&c.Rate, f.Rate)
	set(&c.Owner, f.Owner)

	return c
}

// IsEmpty reports whether no field is set.
func (f Fields) IsEmpty() bool {
	for _, v := range f.Values() {
		if !v.IsAbsent() {
			return false
		}
	}

	return true
}

// LogValue logs only the set fields.
func (f Fields) LogValue() slog.Value {
	var attrs []slog.Attr

	for i, v := range f.Values() {
		if s, ok := v.Get(); ok {
			attrs = append(attrs, slog.String(fieldNames[i], s))
		}
	}

	return slog.GroupValue(attrs...)
}

// FieldNames returns the contractor field names in file order.
func FieldNames() []string {
	return append([]string(nil), fieldNames...)
}

var ownerPattern = regexp.MustCompile(`^[0-9]{8}$`)

// ValidOwner reports whether owner is an 8-digit customer id.
func ValidOwner(owner string) bool {
	return ownerPattern.MatchString(owner)
}

// Conn is the operation surface shared by the local [Service] and the HTTP
// client.
type Conn interface {
	Create(ctx context.Context, c Contractor) (int64, error)
	Get(ctx context.Context, id int64) (Contractor, error)
	Update(ctx context.Context, id int64, f Fields) error
	Delete(ctx context.Context, id int64) error

	// Find returns contractors whose fields start with every set criterion,
	// or equal it when exact is true.
	Find(ctx context.Context, criteria Fields, exact bool) ([]Contractor, error)

	// Book sets the owner of an unbooked contractor.
	Book(ctx context.Context, id int64, owner string) error

	// Unbook clears the owner.
	Unbook(ctx context.Context, id int64) error

	Schema(ctx context.Context) (recdb.Schema, error)
}
