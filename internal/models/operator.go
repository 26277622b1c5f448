package models

// Role represents an operator role.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleOperator Role = "operator"
)

// Operator is a person allowed to use the HTTP API and the chat.
type Operator struct {
	Name         string `json:"name"`
	PasswordHash string `json:"-"`
	Role         Role   `json:"role"`
}

// OperatorPublic is Operator without sensitive fields for API responses.
type OperatorPublic struct {
	Name string `json:"name"`
	Role Role   `json:"role"`
}

// ToPublic converts Operator to OperatorPublic.
func (o *Operator) ToPublic() OperatorPublic {
	return OperatorPublic{Name: o.Name, Role: o.Role}
}
