package domain

import "strings"

// Persona is the interviewer archetype selected by the candidate.
type Persona string

// The closed set of supported personas.
const (
	PersonaHR                 Persona = "HR"
	PersonaJuniorDeveloper    Persona = "Junior Developer"
	PersonaSeniorDeveloper    Persona = "Senior Developer"
	PersonaCorporateExecutive Persona = "Corporate Executive"
)

// Personas lists every persona in menu order.
var Personas = []Persona{
	PersonaHR,
	PersonaJuniorDeveloper,
	PersonaSeniorDeveloper,
	PersonaCorporateExecutive,
}

var personaAliases = map[string]Persona{
	"hr interviewer":      PersonaHR,
	"hr":                  PersonaHR,
	"junior developer":    PersonaJuniorDeveloper,
	"senior developer":    PersonaSeniorDeveloper,
	"corporate executive": PersonaCorporateExecutive,
}

// NormalizePersona resolves free text to a persona using the case-insensitive
// alias table. The second return value is false when nothing matches.
func NormalizePersona(input string) (Persona, bool) {
	p, ok := personaAliases[strings.ToLower(strings.TrimSpace(input))]
	return p, ok
}

// Valid reports whether p belongs to the persona set.
func (p Persona) Valid() bool {
	for _, known := range Personas {
		if p == known {
			return true
		}
	}
	return false
}

// Role is the position being interviewed for. It is an open set: new roles
// are added to the registry without changing the type.
type Role string

// RoleJuniorDataAnalyst is the only role offered today.
const RoleJuniorDataAnalyst Role = "Junior Data Analyst"

var roleRegistry = []Role{RoleJuniorDataAnalyst}

// Roles returns the registered roles. The first entry is the default.
func Roles() []Role {
	out := make([]Role, len(roleRegistry))
	copy(out, roleRegistry)
	return out
}

// DefaultRole is the role auto-assigned on first contact.
func DefaultRole() Role {
	return roleRegistry[0]
}

// NormalizeRole resolves free text to a registered role, case-insensitively.
func NormalizeRole(input string) (Role, bool) {
	want := strings.ToLower(strings.TrimSpace(input))
	for _, r := range roleRegistry {
		if strings.ToLower(string(r)) == want {
			return r, true
		}
	}
	return "", false
}
