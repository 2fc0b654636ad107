package model

// Role is the portal role attached to an identity.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
)

// User is the identity confirmed by the identity provider.
type User struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// CanTakeExam reports whether the user holds the exam-taking capability.
func (u User) CanTakeExam() bool {
	return u.Role == RoleStudent
}
