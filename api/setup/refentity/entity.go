package refentity

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode"

	"SmartAd/api/setup/similarity"
)

var (
	ErrEntityNotFound = errors.New("reference entity not found")
	ErrMissingFields  = errors.New("missing required fields")
)

const (
	StatusActive   = "active"
	StatusInactive = "inactive"

	maxCodeLength = 20
)

type Entity struct {
	ID        int64     `json:"id"`
	Kind      Kind      `json:"kind"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// Key is the value the kind's unique constraint applies to, normalized.
func (e Entity) Key() string {
	if e.Kind.KeyedByCode() {
		return similarity.Normalize(e.Code)
	}
	return similarity.Normalize(e.Name)
}

// Fields carries the human-entered values used to find or create an entity.
type Fields struct {
	Code string
	Name string
}

// Key returns the normalized lookup key for kind.
func (f Fields) Key(kind Kind) string {
	if kind.KeyedByCode() {
		return similarity.Normalize(f.Code)
	}
	return similarity.Normalize(f.Name)
}

// Missing lists the kind's required create fields that are blank.
func (f Fields) Missing(kind Kind) []string {
	var missing []string
	for _, field := range kind.RequiredFields() {
		var v string
		switch field {
		case "code":
			v = f.Code
		case "name":
			v = f.Name
		}
		if strings.TrimSpace(v) == "" {
			missing = append(missing, field)
		}
	}
	return missing
}

// Entity builds the row to insert, filling derived columns.
func (f Fields) Entity(kind Kind, createdBy string) Entity {
	e := Entity{Kind: kind, Status: StatusActive, CreatedBy: createdBy}
	name := strings.Join(strings.Fields(f.Name), " ")
	switch {
	case kind.KeyedByCode():
		e.Code = similarity.Normalize(f.Code)
		e.Name = name
		if e.Name == "" {
			e.Name = e.Code
		}
	default:
		e.Name = name
		e.Code = CodeFromName(name)
	}
	return e
}

// CodeFromName derives a short code such as FULL_PAGE from a display name.
func CodeFromName(name string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToUpper(strings.TrimSpace(name)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastUnderscore = false
		case !lastUnderscore && b.Len() > 0:
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	code := strings.TrimRight(b.String(), "_")
	if r := []rune(code); len(r) > maxCodeLength {
		code = strings.TrimRight(string(r[:maxCodeLength]), "_")
	}
	return code
}

// Repository is the storage contract for reference tables. Implementations
// must run against the transaction carried in ctx when there is one.
type Repository interface {
	List(ctx context.Context, kind Kind) ([]Entity, error)
	FindByKey(ctx context.Context, kind Kind, key string) (*Entity, error)
	FindByID(ctx context.Context, kind Kind, id int64) (*Entity, error)
	// Insert returns inserted=false when the unique key already exists.
	Insert(ctx context.Context, e Entity) (id int64, inserted bool, err error)
	// LockKey serializes creators of the same key until the transaction ends.
	LockKey(ctx context.Context, kind Kind, key string) error
}
