package auth

import (
	"errors"
	"fmt"

	"github.com/creatorpay/tracker/config"
	"github.com/creatorpay/tracker/internal/models"
	"github.com/creatorpay/tracker/pkg/utils"
)

// ErrInvalidCredentials is returned for an unknown operator or a wrong password.
var ErrInvalidCredentials = errors.New("invalid operator or password")

// Directory holds the configured operators.
type Directory struct {
	operators map[string]models.Operator
}

// NewDirectory builds a directory from config entries.
func NewDirectory(entries []config.OperatorConfig) (*Directory, error) {
	d := &Directory{operators: make(map[string]models.Operator, len(entries))}
	for _, e := range entries {
		role := models.Role(e.Role)
		if role != models.RoleAdmin && role != models.RoleOperator {
			return nil, fmt.Errorf("operator %s: invalid role %q", e.Name, e.Role)
		}
		if _, dup := d.operators[e.Name]; dup {
			return nil, fmt.Errorf("operator %s: defined twice", e.Name)
		}
		d.operators[e.Name] = models.Operator{Name: e.Name, PasswordHash: e.PasswordHash, Role: role}
	}
	return d, nil
}

// Authenticate checks password against the operator's bcrypt hash.
func (d *Directory) Authenticate(name, password string) (*models.Operator, error) {
	op, ok := d.operators[name]
	if !ok || !utils.CheckPassword(password, op.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return &op, nil
}

// Get returns the operator by name.
func (d *Directory) Get(name string) (*models.Operator, bool) {
	op, ok := d.operators[name]
	if !ok {
		return nil, false
	}
	return &op, true
}

// Len returns the number of operators.
func (d *Directory) Len() int { return len(d.operators) }
