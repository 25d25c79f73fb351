package tracker

import (
	"fmt"
	"strconv"
)

// Type tags carried next to ids and statuses on the wire. The tracker stores
// ids with their original type, so "42" and 42 are different documents.
const (
	TagStr  = "str"
	TagInt  = "int"
	TagNone = "None"
)

type idKind uint8

const (
	kindInvalid idKind = iota
	kindStr
	kindInt
	kindNone
)

// ID identifies a task or an item. It is either a string or an integer; the
// zero value is invalid and rejected by every operation.
type ID struct {
	kind idKind
	str  string
	num  int64
}

// StrID returns a string id.
func StrID(s string) ID { return ID{kind: kindStr, str: s} }

// IntID returns an integer id.
func IntID(n int64) ID { return ID{kind: kindInt, num: n} }

// ParseID rebuilds an id from its URL form and type tag.
func ParseID(value, tag string) (ID, error) {
	switch tag {
	case TagStr:
		return StrID(value), nil
	case TagInt:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return ID{}, &ValidationError{Field: "id", Value: value, Reason: "not an integer", Err: ErrInvalidID}
		}
		return IntID(n), nil
	default:
		return ID{}, &ValidationError{Field: "id_type", Value: tag, Reason: "must be str or int", Err: ErrInvalidID}
	}
}

// Valid reports whether the id was built by StrID, IntID or ParseID.
func (id ID) Valid() bool { return id.kind == kindStr || id.kind == kindInt }

// IsInt reports whether the id is an integer id.
func (id ID) IsInt() bool { return id.kind == kindInt }

// Tag returns "str" or "int".
func (id ID) Tag() string {
	switch id.kind {
	case kindStr:
		return TagStr
	case kindInt:
		return TagInt
	}
	return ""
}

// String returns the id as it appears in URL paths.
func (id ID) String() string {
	if id.kind == kindInt {
		return strconv.FormatInt(id.num, 10)
	}
	return id.str
}

// Int returns the integer value and whether the id is an integer id.
func (id ID) Int() (int64, bool) { return id.num, id.kind == kindInt }

func (id ID) validate(field string) error {
	if !id.Valid() {
		return &ValidationError{Field: field, Reason: "must be built with StrID or IntID", Err: ErrInvalidID}
	}
	return nil
}

// ItemStatus is the optional status stored with an inserted item. It marks
// items the archivist could not fetch normally (deleted, hidden) without
// stuffing error responses into the payload.
type ItemStatus struct {
	kind idKind
	str  string
	num  int64
}

// NoStatus returns the absent status ("None" on the wire).
func NoStatus() ItemStatus { return ItemStatus{kind: kindNone} }

// StrStatus returns a string status.
func StrStatus(s string) ItemStatus { return ItemStatus{kind: kindStr, str: s} }

// IntStatus returns an integer status.
func IntStatus(n int64) ItemStatus { return ItemStatus{kind: kindInt, num: n} }

// Tag returns "None", "str" or "int". The zero value is treated as None.
func (s ItemStatus) Tag() string {
	switch s.kind {
	case kindStr:
		return TagStr
	case kindInt:
		return TagInt
	}
	return TagNone
}

// FormValue returns the status as sent in the item_status form field.
// An absent status is sent as the empty string.
func (s ItemStatus) FormValue() string {
	switch s.kind {
	case kindStr:
		return s.str
	case kindInt:
		return strconv.FormatInt(s.num, 10)
	}
	return ""
}

// ParseItemStatus rebuilds a status from its form value and type tag.
func ParseItemStatus(value, tag string) (ItemStatus, error) {
	switch tag {
	case TagNone:
		return NoStatus(), nil
	case TagStr:
		return StrStatus(value), nil
	case TagInt:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return ItemStatus{}, &ValidationError{Field: "item_status", Value: value, Reason: "not an integer", Err: ErrInvalidStatus}
		}
		return IntStatus(n), nil
	default:
		return ItemStatus{}, &ValidationError{Field: "item_status_type", Value: tag, Reason: "must be None, str or int", Err: ErrInvalidStatus}
	}
}

func (s ItemStatus) String() string {
	if s.Tag() == TagNone {
		return TagNone
	}
	return fmt.Sprintf("%s(%s)", s.Tag(), s.FormValue())
}
