package loans

import (
	"github.com/angelmondragon/circulation-backend/pkg/config"
)

// PolicyFromConfig resolves the lending policy from configuration.
func PolicyFromConfig(cfg config.LoansConfig) (Policy, error) {
	unitFine, err := cfg.UnitFineAmount()
	if err != nil {
		return Policy{}, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return Policy{}, err
	}
	return Policy{
		PeriodDays:    cfg.PeriodDays,
		UnitFine:      unitFine,
		SourceService: cfg.SourceService,
		Location:      loc,
		Calendar:      DefaultCalendar,
	}, nil
}
