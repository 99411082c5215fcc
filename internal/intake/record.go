package intake

import (
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

// Record is one patient registration form submission.
type Record struct {
	FullName     string    `json:"full_name"`
	Email        string    `json:"email"`
	BirthDate    string    `json:"birth_date"` // YYYY-MM-DD
	NationalID   string    `json:"national_id"`
	Phone        string    `json:"phone"`
	HasInsurance bool      `json:"has_insurance"`
	Guardian     Guardian  `json:"guardian"`
	Insurance    Insurance `json:"insurance"`
	Address      Address   `json:"address"`
}

type Guardian struct {
	Name         string `json:"name"`
	NationalID   string `json:"national_id"`
	Relationship string `json:"relationship"`
	Phone        string `json:"phone"`
}

type Insurance struct {
	PlanName     string `json:"plan_name"`
	MemberNumber string `json:"member_number"`
}

type Address struct {
	PostalCode   string `json:"postal_code"`
	Street       string `json:"street"`
	Number       string `json:"number"`
	Complement   string `json:"complement"`
	Neighborhood string `json:"neighborhood"`
	City         string `json:"city"`
	State        string `json:"state"`
}

// Digits keeps only the ASCII digits 0-9.
func Digits(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}

// Normalize returns a copy with ids, phones and the postal code reduced to
// digits. The argument is not modified.
func Normalize(r Record) Record {
	r.NationalID = Digits(r.NationalID)
	r.Phone = Digits(r.Phone)
	r.Guardian.NationalID = Digits(r.Guardian.NationalID)
	r.Guardian.Phone = Digits(r.Guardian.Phone)
	r.Address.PostalCode = Digits(r.Address.PostalCode)
	return r
}

// Age is the number of full years between birth and now, by calendar date.
func Age(birth, now time.Time) int {
	age := now.Year() - birth.Year()
	if now.Month() < birth.Month() || (now.Month() == birth.Month() && now.Day() < birth.Day()) {
		age--
	}
	return age
}
