package domain

import "strings"

// Registration is the input of POST /auth/register. It is implemented only by
// StudentRegistration and OrganizerRegistration, each carrying exactly the
// fields its role sends.
type Registration interface {
	Role() Role
	Body() (any, error)
}

// StudentRegistration registers a student account.
type StudentRegistration struct {
	Name        string
	Email       string
	Password    string
	RollNo      string
	YearSection string
}

// OrganizerRegistration registers an organizer account.
type OrganizerRegistration struct {
	Name     string
	Email    string
	Password string
}

type studentBody struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	Role        Role   `json:"role"`
	RollNo      string `json:"rollNo"`
	YearSection string `json:"yearSection"`
}

type organizerBody struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     Role   `json:"role"`
}

func (StudentRegistration) Role() Role { return RoleStudent }

// Body validates the registration and returns the request payload.
func (r StudentRegistration) Body() (any, error) {
	if err := validateAccount(r.Name, r.Email, r.Password); err != nil {
		return nil, err
	}
	if strings.TrimSpace(r.RollNo) == "" || strings.TrimSpace(r.YearSection) == "" {
		return nil, Invalid("roll number and year/section are required for students")
	}
	return studentBody{
		Name:        strings.TrimSpace(r.Name),
		Email:       strings.TrimSpace(r.Email),
		Password:    r.Password,
		Role:        RoleStudent,
		RollNo:      strings.TrimSpace(r.RollNo),
		YearSection: strings.TrimSpace(r.YearSection),
	}, nil
}

func (OrganizerRegistration) Role() Role { return RoleOrganizer }

// Body validates the registration and returns the request payload.
func (r OrganizerRegistration) Body() (any, error) {
	if err := validateAccount(r.Name, r.Email, r.Password); err != nil {
		return nil, err
	}
	return organizerBody{
		Name:     strings.TrimSpace(r.Name),
		Email:    strings.TrimSpace(r.Email),
		Password: r.Password,
		Role:     RoleOrganizer,
	}, nil
}

func validateAccount(name, email, password string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return Invalid("name is required")
	case strings.TrimSpace(email) == "":
		return Invalid("email is required")
	case password == "":
		return Invalid("password is required")
	}
	return nil
}
