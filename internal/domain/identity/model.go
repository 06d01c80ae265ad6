package identity

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Doctor maps to the doctors table.
type Doctor struct {
	ID             uuid.UUID `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	Email          string    `db:"email" json:"email"`
	Specialization *string   `db:"specialization" json:"specialization,omitempty"`
	Phone          *string   `db:"phone" json:"phone,omitempty"`
	Address        *string   `db:"address" json:"address,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Patient maps to the patients table. Age is derived from BirthDate when the
// record is read and is not stored.
type Patient struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	DoctorID  *uuid.UUID `db:"doctor_id" json:"doctor_id,omitempty"`
	FirstName string     `db:"first_name" json:"first_name"`
	LastName  string     `db:"last_name" json:"last_name"`
	Gender    *string    `db:"gender" json:"gender,omitempty"`
	BirthDate *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	Phone     *string    `db:"phone" json:"phone,omitempty"`
	Email     *string    `db:"email" json:"email,omitempty"`
	Address   *string    `db:"address" json:"address,omitempty"`
	City      *string    `db:"city" json:"city,omitempty"`
	Username  *string    `db:"username" json:"username,omitempty"`
	LastVisit *time.Time `db:"last_visit" json:"last_visit,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`

	Age *int `db:"-" json:"age,omitempty"`
}

var validGenders = map[string]bool{
	"Male":   true,
	"Female": true,
	"Other":  true,
}

func (p *Patient) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// AgeAt returns completed years at now. ok is false without a birth date or
// when the birth date is in the future.
func (p *Patient) AgeAt(now time.Time) (age int, ok bool) {
	if p.BirthDate == nil {
		return 0, false
	}
	b := p.BirthDate.UTC()
	now = now.UTC()
	if now.Before(b) {
		return 0, false
	}
	age = now.Year() - b.Year()
	if now.Month() < b.Month() || (now.Month() == b.Month() && now.Day() < b.Day()) {
		age--
	}
	return age, true
}

// AssignedTo reports whether the patient is under doctorID's care.
func (p *Patient) AssignedTo(doctorID uuid.UUID) bool {
	return p.DoctorID != nil && *p.DoctorID == doctorID
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
