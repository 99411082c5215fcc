package intake

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

const (
	MsgRequired         = "required"
	MsgFullNameTooShort = "full name must have at least 3 characters"
	MsgEmailInvalid     = "invalid email address"
	MsgBirthDateInvalid = "invalid birth date"
	MsgBirthDateFuture  = "birth date cannot be in the future"
	MsgNationalID       = "national id must have 11 digits"
	MsgPhoneTooShort    = "phone must have at least 10 digits"
	MsgGuardianPhone    = "guardian phone must have 10 or 11 digits"
	MsgPostalCode       = "postal code must have 8 digits"
	MsgPostalNotFound   = "postal code not found"
	MsgLookupFailed     = "could not look up postal code"
)

var ErrValidationFailed = errors.New("intake validation failed")

// ValidationError maps field paths (e.g. "guardian.phone") to the first
// failing rule's message.
type ValidationError struct {
	Fields map[string]string `json:"fields"`
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return fmt.Sprintf("%s: %s", ErrValidationFailed, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// Facts is what a rule sees: the normalized record plus values derived from it.
type Facts struct {
	Record  Record
	Birth   time.Time
	BirthOK bool
	Today   time.Time
	Age     int
}

// Minor reports whether the guardian block applies.
func (f Facts) Minor() bool {
	return f.BirthOK && !f.Birth.After(f.Today) && f.Age < 18
}

type Rule struct {
	Field   string
	When    func(Facts) bool // nil means always
	Check   func(Facts) bool
	Message string
}

var validate = validator.New()

func always(Facts) bool { return true }

func minor(f Facts) bool   { return f.Minor() }
func insured(f Facts) bool { return f.Record.HasInsurance }

func present(get func(Record) string) func(Facts) bool {
	return func(f Facts) bool { return strings.TrimSpace(get(f.Record)) != "" }
}

func digitCount(get func(Record) string, lo, hi int) func(Facts) bool {
	return func(f Facts) bool {
		s := get(f.Record)
		if Digits(s) != s {
			return false
		}
		n := len(s)
		return n >= lo && (hi == 0 || n <= hi)
	}
}

var (
	fullName      = func(r Record) string { return r.FullName }
	email         = func(r Record) string { return r.Email }
	birthDate     = func(r Record) string { return r.BirthDate }
	nationalID    = func(r Record) string { return r.NationalID }
	phone         = func(r Record) string { return r.Phone }
	guardianName  = func(r Record) string { return r.Guardian.Name }
	guardianID    = func(r Record) string { return r.Guardian.NationalID }
	guardianRel   = func(r Record) string { return r.Guardian.Relationship }
	guardianPhone = func(r Record) string { return r.Guardian.Phone }
	planName      = func(r Record) string { return r.Insurance.PlanName }
	memberNumber  = func(r Record) string { return r.Insurance.MemberNumber }
	postalCode    = func(r Record) string { return r.Address.PostalCode }
	street        = func(r Record) string { return r.Address.Street }
	number        = func(r Record) string { return r.Address.Number }
	neighborhood  = func(r Record) string { return r.Address.Neighborhood }
	city          = func(r Record) string { return r.Address.City }
	state         = func(r Record) string { return r.Address.State }
)

// Rules is evaluated in order; the first failure for a field wins.
var Rules = []Rule{
	{Field: "full_name", Check: func(f Facts) bool {
		return utf8.RuneCountInString(strings.TrimSpace(fullName(f.Record))) >= 3
	}, Message: MsgFullNameTooShort},

	{Field: "email", Check: present(email), Message: MsgRequired},
	{Field: "email", Check: func(f Facts) bool {
		return validate.Var(f.Record.Email, "email") == nil
	}, Message: MsgEmailInvalid},

	{Field: "birth_date", Check: present(birthDate), Message: MsgRequired},
	{Field: "birth_date", Check: func(f Facts) bool { return f.BirthOK }, Message: MsgBirthDateInvalid},
	{Field: "birth_date", Check: func(f Facts) bool { return !f.Birth.After(f.Today) }, Message: MsgBirthDateFuture},

	{Field: "national_id", Check: present(nationalID), Message: MsgRequired},
	{Field: "national_id", Check: digitCount(nationalID, 11, 11), Message: MsgNationalID},

	{Field: "phone", Check: present(phone), Message: MsgRequired},
	{Field: "phone", Check: digitCount(phone, 10, 0), Message: MsgPhoneTooShort},

	{Field: "address.postal_code", Check: present(postalCode), Message: MsgRequired},
	{Field: "address.postal_code", Check: digitCount(postalCode, 8, 8), Message: MsgPostalCode},
	{Field: "address.street", Check: present(street), Message: MsgRequired},
	{Field: "address.number", Check: present(number), Message: MsgRequired},
	{Field: "address.neighborhood", Check: present(neighborhood), Message: MsgRequired},
	{Field: "address.city", Check: present(city), Message: MsgRequired},
	{Field: "address.state", Check: present(state), Message: MsgRequired},

	{Field: "guardian.name", When: minor, Check: present(guardianName), Message: MsgRequired},
	{Field: "guardian.national_id", When: minor, Check: present(guardianID), Message: MsgRequired},
	{Field: "guardian.national_id", When: minor, Check: digitCount(guardianID, 11, 11), Message: MsgNationalID},
	{Field: "guardian.relationship", When: minor, Check: present(guardianRel), Message: MsgRequired},
	{Field: "guardian.phone", When: minor, Check: present(guardianPhone), Message: MsgRequired},
	{Field: "guardian.phone", When: minor, Check: digitCount(guardianPhone, 10, 11), Message: MsgGuardianPhone},

	{Field: "insurance.plan_name", When: insured, Check: present(planName), Message: MsgRequired},
	{Field: "insurance.member_number", When: insured, Check: present(memberNumber), Message: MsgRequired},
}

func facts(r Record, now time.Time) Facts {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	f := Facts{Record: r, Today: today}
	if birth, err := time.ParseInLocation(DateLayout, strings.TrimSpace(r.BirthDate), now.Location()); err == nil {
		f.Birth = birth
		f.BirthOK = true
		f.Age = Age(birth, today)
	}
	return f
}

// Evaluate runs rules against an already normalized record and returns the
// failures keyed by field.
func Evaluate(rules []Rule, r Record, now time.Time) map[string]string {
	f := facts(r, now)
	failures := map[string]string{}
	for _, rule := range rules {
		if _, failed := failures[rule.Field]; failed {
			continue
		}
		when := rule.When
		if when == nil {
			when = always
		}
		if !when(f) {
			continue
		}
		if !rule.Check(f) {
			failures[rule.Field] = rule.Message
		}
	}
	return failures
}

// Validate normalizes r and checks it. The normalized record comes back
// only when every rule passes.
func Validate(r Record, now time.Time) (Record, error) {
	normalized := Normalize(r)
	if failures := Evaluate(Rules, normalized, now); len(failures) > 0 {
		return Record{}, &ValidationError{Fields: failures}
	}
	return normalized, nil
}
