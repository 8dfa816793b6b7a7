package refentity

import (
	"errors"
	"fmt"
	"strings"

	"SmartAd/api/constants"
)

var ErrUnknownKind = errors.New("unknown reference entity kind")

// Kind is the closed set of reference tables the rate import can touch.
type Kind int

const (
	Publication Kind = iota + 1
	AdCategory
	AdSize
	PagePosition
	ColorType
	Currency
)

type kindInfo struct {
	name      string
	label     string
	table     string
	keyColumn string
	required  []string
	fuzzy     bool
}

var kinds = map[Kind]kindInfo{
	Publication:  {name: "publication", label: "publication", table: "publications", keyColumn: "code", required: []string{"code", "name"}, fuzzy: true},
	AdCategory:   {name: "ad_category", label: "ad category", table: "ad_categories", keyColumn: "name", required: []string{"name"}, fuzzy: true},
	AdSize:       {name: "ad_size", label: "ad size", table: "ad_sizes", keyColumn: "name", required: []string{"name"}, fuzzy: true},
	PagePosition: {name: "page_position", label: "page position", table: "page_positions", keyColumn: "name", required: []string{"name"}, fuzzy: true},
	ColorType:    {name: "color_type", label: "color type", table: "color_types", keyColumn: "name", required: []string{"name"}, fuzzy: true},
	Currency:     {name: "currency", label: "currency", table: "currencies", keyColumn: "code", required: []string{"code"}, fuzzy: false},
}

// All lists every kind in declaration order.
func All() []Kind {
	return []Kind{Publication, AdCategory, AdSize, PagePosition, ColorType, Currency}
}

// Dependencies lists the five human-entered kinds that are fuzzy matched.
func Dependencies() []Kind {
	return []Kind{Publication, AdCategory, AdSize, PagePosition, ColorType}
}

func (k Kind) info() kindInfo {
	info, ok := kinds[k]
	if !ok {
		panic(fmt.Sprintf("refentity: invalid kind %d", int(k)))
	}
	return info
}

func (k Kind) Valid() bool {
	_, ok := kinds[k]
	return ok
}

func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return k.info().name
}

func (k Kind) Label() string     { return k.info().label }
func (k Kind) Table() string     { return k.info().table }
func (k Kind) KeyColumn() string { return k.info().keyColumn }
func (k Kind) Fuzzy() bool       { return k.info().fuzzy }

// RequiredFields are the columns that must be non-blank on create.
func (k Kind) RequiredFields() []string {
	return append([]string(nil), k.info().required...)
}

// KeyedByCode reports whether uniqueness is on code rather than name.
func (k Kind) KeyedByCode() bool { return k.KeyColumn() == "code" }

func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, k := range All() {
		info := k.info()
		if s == info.name || s == info.table {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownKind, constants.FormatError(constants.ErrUnknownEntityKind, s))
}

func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
