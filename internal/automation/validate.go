package automation

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"whatsapp-automation/internal/models"

	"github.com/go-playground/validator/v10"
)

var ErrInvalidSettings = errors.New("invalid automation settings")

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validator returns the shared validator with the automation tags
// registered: weekday and hhmm.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterValidation("weekday", func(fl validator.FieldLevel) bool {
			_, ok := parseWeekday(fl.Field().String())
			return ok
		})
		validate.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
			_, err := ParseClock(fl.Field().String())
			return err == nil
		})
	})
	return validate
}

// ValidateSettings checks settings before they are stored: seven distinct
// weekdays with well-formed times, and complete rules.
func ValidateSettings(s *models.AutomationSettings) error {
	if err := Validator().Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed on %s", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidSettings, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}

	seen := make(map[time.Weekday]bool, 7)
	for _, d := range s.WorkingHours {
		wd, _ := parseWeekday(d.Day)
		if seen[wd] {
			return fmt.Errorf("%w: %s listed twice", ErrInvalidSettings, d.Day)
		}
		seen[wd] = true
	}

	ids := make(map[string]bool, len(s.AutomationRules))
	for _, r := range s.AutomationRules {
		if ids[r.ID] {
			return fmt.Errorf("%w: duplicate rule id %q", ErrInvalidSettings, r.ID)
		}
		ids[r.ID] = true
		if Classify(r) == models.RuleThreshold && r.Threshold == nil {
			return fmt.Errorf("%w: threshold rule %q has no threshold", ErrInvalidSettings, r.ID)
		}
	}
	return nil
}

func parseWeekday(s string) (time.Weekday, bool) {
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if strings.EqualFold(s, wd.String()) {
			return wd, true
		}
	}
	return 0, false
}
