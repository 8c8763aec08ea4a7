package domain

import "github.com/diagnosis/guest-feedback/pkg/apperr"

type Category string

const (
	CategoryRoom Category = "room"
	CategoryFnB  Category = "f&b"
	CategoryCFC  Category = "cfc"
)

var validCategories = map[Category]bool{
	CategoryRoom: true,
	CategoryFnB:  true,
	CategoryCFC:  true,
}

func (c Category) Valid() bool {
	return validCategories[c]
}

// RequiresRoomGuest reports whether reviews in c identify the guest by room.
func (c Category) RequiresRoomGuest() bool {
	return c == CategoryRoom
}

func ParseCategory(raw string) (Category, error) {
	c := Category(raw)
	if !c.Valid() {
		return "", apperr.ValidationField("category", "invalid category")
	}
	return c, nil
}

// ParseOptionalCategory returns "" for an empty value.
func ParseOptionalCategory(raw string) (Category, error) {
	if raw == "" {
		return "", nil
	}
	return ParseCategory(raw)
}
