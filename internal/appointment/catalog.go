package appointment

import (
	"errors"
	"fmt"
)

var ErrUnknownProcedure = errors.New("unknown procedure")

// MaxDurationMinutes bounds any appointment, catalog default or override.
const MaxDurationMinutes = 24 * 60

type Procedure struct {
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
}

var catalog = []Procedure{
	{Name: "Consulta de Avaliação", DurationMinutes: 30},
	{Name: "Limpeza", DurationMinutes: 45},
	{Name: "Restauração", DurationMinutes: 60},
	{Name: "Extração", DurationMinutes: 60},
	{Name: "Tratamento de Canal", DurationMinutes: 90},
	{Name: "Clareamento", DurationMinutes: 60},
	{Name: "Implante", DurationMinutes: 120},
	{Name: "Manutenção Ortodôntica", DurationMinutes: 30},
}

// Procedures returns a copy of the catalog in display order.
func Procedures() []Procedure {
	out := make([]Procedure, len(catalog))
	copy(out, catalog)
	return out
}

// DefaultDuration returns the canonical duration in minutes for name.
func DefaultDuration(name string) (int, error) {
	for _, p := range catalog {
		if p.Name == name {
			return p.DurationMinutes, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownProcedure, name)
}
