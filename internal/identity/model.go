package identity

import "time"

// AuthType records how an account authenticates. It is fixed at creation.
type AuthType string

const (
	AuthTypeEmailPassword AuthType = "EMAIL_PASSWORD"
	AuthTypeSMSOTP        AuthType = "SMS_OTP"
)

// Gender values accepted on profiles.
type Gender string

const (
	GenderMale           Gender = "MALE"
	GenderFemale         Gender = "FEMALE"
	GenderOther          Gender = "OTHER"
	GenderPreferNotToSay Gender = "PREFER_NOT_TO_SAY"
)

// UserType is the membership role of an account.
type UserType string

const (
	UserTypeSuperAdmin         UserType = "SUPER_ADMIN"
	UserTypeCustomer           UserType = "CUSTOMER"
	UserTypeHealthCareProvider UserType = "HEALTH_CARE_PROVIDER"
	UserTypeBonchiMitra        UserType = "BONCHI_MITRA"
	UserTypeAmbulanceService   UserType = "AMBULANCE_SERVICE"
)

// User represents a registered member.
type User struct {
	ID           int64
	Email        *string
	Phone        *string
	PasswordHash []byte
	FirstName    string
	MiddleName   *string
	Name         string
	Address      *string
	District     *string
	State        *string
	GSTNumber    *string
	Gender       *Gender
	Age          *int
	AuthType     AuthType
	UserType     UserType
	IsVerified   bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DisplayName joins first and middle name the way member cards show it.
func DisplayName(firstName string, middleName *string) string {
	if middleName != nil && *middleName != "" {
		return firstName + " " + *middleName
	}
	return firstName
}
