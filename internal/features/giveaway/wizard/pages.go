package wizard

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	apperrors "community-bot/internal/common/errors"
	"community-bot/internal/features/giveaway/models"
)

// Data keys collected by the default page list.
const (
	KeyPrize   = "prize"
	KeyWinners = "winnerCount"
	KeyYear    = "year"
	KeyMonth   = "month"
	KeyDay     = "day"
	KeyTime    = "time"
)

const yearsOffered = 5

var (
	ErrInvalidPrize   = apperrors.Sentinel(apperrors.ErrCodeValidation, "invalid prize")
	ErrInvalidWinners = apperrors.Sentinel(apperrors.ErrCodeValidation, "invalid winner count")
	ErrInvalidYear    = apperrors.Sentinel(apperrors.ErrCodeValidation, "invalid year")
	ErrInvalidMonth   = apperrors.Sentinel(apperrors.ErrCodeValidation, "invalid month")
	ErrInvalidDay     = apperrors.Sentinel(apperrors.ErrCodeValidation, "invalid day")
	ErrInvalidTime    = apperrors.Sentinel(apperrors.ErrCodeValidation, "invalid time")
	ErrInvalidOption  = apperrors.Sentinel(apperrors.ErrCodeValidation, "option not offered")
	ErrInvalidDate    = apperrors.Sentinel(apperrors.ErrCodeValidation, "invalid calendar date")
	ErrDatePast       = apperrors.Sentinel(apperrors.ErrCodeValidation, "date is in the past")
	ErrMissingData    = apperrors.Sentinel(apperrors.ErrCodeValidation, "missing wizard data")
)

type PageKind int

const (
	KindModal PageKind = iota
	KindSelect
	KindSave
)

// Data holds the raw, normalized field values of a session.
type Data map[string]string

func (d Data) Clone() Data {
	out := make(Data, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Validator checks a submitted value against the data collected so far and
// returns its normalized form.
type Validator func(value string, data Data, now time.Time) (string, error)

type Page interface {
	Kind() PageKind
	// Key is the data key filled by the page, empty for the save page.
	Key() string
}

// ModalPage collects free text through a single-field modal.
type ModalPage struct {
	Field       string
	Label       string
	Prompt      string
	ModalID     string
	Placeholder string
	MaxLength   int
	Validate    Validator
}

func (ModalPage) Kind() PageKind { return KindModal }
func (p ModalPage) Key() string { return p.Field }
func (p ModalPage) InputID() string { return p.ModalID + "_input" }

// SelectPage offers a single choice. Options are recomputed from the data
// on every render.
type SelectPage struct {
	Field    string
	Label    string
	Prompt   string
	Options  func(data Data, now time.Time) []string
	Validate Validator
}

func (SelectPage) Kind() PageKind { return KindSelect }
func (p SelectPage) Key() string { return p.Field }

type SavePage struct{}

func (SavePage) Kind() PageKind { return KindSave }
func (SavePage) Key() string { return "" }

// DefaultPages is the giveaway creation flow.
func DefaultPages() []Page {
	return []Page{
		ModalPage{
			Field:     KeyPrize,
			Label:     "giveawayWizardPrize",
			Prompt:    "giveawayEnterPrize",
			ModalID:   ModalPrefix + "prize",
			MaxLength: 256,
			Validate:  validatePrize,
		},
		ModalPage{
			Field:       KeyWinners,
			Label:       "giveawayWizardWinners",
			Prompt:      "giveawayEnterWinners",
			ModalID:     ModalPrefix + "winners",
			Placeholder: "1",
			MaxLength:   3,
			Validate:    validateWinners,
		},
		SelectPage{
			Field:    KeyYear,
			Label:    "giveawayWizardYear",
			Prompt:   "giveawayChooseYear",
			Options:  yearOptions,
			Validate: validateYear,
		},
		SelectPage{
			Field:    KeyMonth,
			Label:    "giveawayWizardMonth",
			Prompt:   "giveawayChooseMonth",
			Options:  monthOptions,
			Validate: validateMonth,
		},
		ModalPage{
			Field:       KeyDay,
			Label:       "giveawayWizardDay",
			Prompt:      "giveawayChooseDay",
			ModalID:     ModalPrefix + "day",
			Placeholder: "DD",
			MaxLength:   2,
			Validate:    validateDay,
		},
		ModalPage{
			Field:       KeyTime,
			Label:       "giveawayWizardTime",
			Prompt:      "giveawayChooseTime",
			ModalID:     ModalPrefix + "time",
			Placeholder: "HH:MM",
			MaxLength:   5,
			Validate:    validateTime,
		},
		SavePage{},
	}
}

func yearOptions(_ Data, now time.Time) []string {
	out := make([]string, yearsOffered)
	for i := range out {
		out[i] = strconv.Itoa(now.Year() + i)
	}
	return out
}

func monthOptions(data Data, now time.Time) []string {
	first := 1
	if data[KeyYear] == strconv.Itoa(now.Year()) {
		first = int(now.Month())
	}
	out := make([]string, 0, 12)
	for m := first; m <= 12; m++ {
		out = append(out, fmt.Sprintf("%02d", m))
	}
	return out
}

func validatePrize(value string, _ Data, _ time.Time) (string, error) {
	v := strings.TrimSpace(value)
	if v == "" || len(v) > 256 {
		return "", ErrInvalidPrize
	}
	return v, nil
}

func validateWinners(value string, _ Data, _ time.Time) (string, error) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n < models.MinWinnerCount || n > models.MaxWinnerCount {
		return "", ErrInvalidWinners
	}
	return strconv.Itoa(n), nil
}

var yearPattern = regexp.MustCompile(`^\d{4}$`)

func validateYear(value string, _ Data, _ time.Time) (string, error) {
	v := strings.TrimSpace(value)
	if !yearPattern.MatchString(v) {
		return "", ErrInvalidYear
	}
	return v, nil
}

func validateMonth(value string, _ Data, _ time.Time) (string, error) {
	n, ok := twoDigits(value)
	if !ok || n < 1 || n > 12 {
		return "", ErrInvalidMonth
	}
	return fmt.Sprintf("%02d", n), nil
}

func validateDay(value string, data Data, now time.Time) (string, error) {
	n, ok := twoDigits(value)
	if !ok || n < 1 || n > 31 {
		return "", ErrInvalidDay
	}

	year, errY := strconv.Atoi(data[KeyYear])
	month, errM := strconv.Atoi(data[KeyMonth])
	if errY == nil && errM == nil {
		if n > daysIn(year, time.Month(month)) {
			return "", ErrInvalidDay
		}
		if year == now.Year() && time.Month(month) == now.Month() && n < now.Day() {
			return "", ErrInvalidDay
		}
	}
	return fmt.Sprintf("%02d", n), nil
}

var timePattern = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

func validateTime(value string, data Data, now time.Time) (string, error) {
	m := timePattern.FindStringSubmatch(strings.TrimSpace(value))
	if m == nil {
		return "", ErrInvalidTime
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])
	if hour > 23 || minute > 59 {
		return "", ErrInvalidTime
	}
	v := fmt.Sprintf("%02d:%02d", hour, minute)

	if data[KeyYear] != "" && data[KeyMonth] != "" && data[KeyDay] != "" {
		end, err := BuildDate(data[KeyYear], data[KeyMonth], data[KeyDay], v, now.Location())
		if err != nil {
			return "", err
		}
		if !end.After(now) {
			return "", ErrDatePast
		}
	}
	return v, nil
}

// BuildDate assembles an instant in loc. Dates that do not exist on the
// calendar are rejected instead of being normalized.
func BuildDate(year, month, day, hhmm string, loc *time.Location) (time.Time, error) {
	y, err := strconv.Atoi(year)
	if err != nil || !yearPattern.MatchString(year) {
		return time.Time{}, ErrInvalidYear
	}
	mo, ok := twoDigits(month)
	if !ok || mo < 1 || mo > 12 {
		return time.Time{}, ErrInvalidMonth
	}
	d, ok := twoDigits(day)
	if !ok || d < 1 || d > 31 {
		return time.Time{}, ErrInvalidDay
	}
	tm := timePattern.FindStringSubmatch(hhmm)
	if tm == nil {
		return time.Time{}, ErrInvalidTime
	}
	hour, _ := strconv.Atoi(tm[1])
	minute, _ := strconv.Atoi(tm[2])
	if hour > 23 || minute > 59 {
		return time.Time{}, ErrInvalidTime
	}

	t := time.Date(y, time.Month(mo), d, hour, minute, 0, 0, loc)
	if t.Year() != y || t.Month() != time.Month(mo) || t.Day() != d {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func twoDigits(value string) (int, bool) {
	v := strings.TrimSpace(value)
	if len(v) == 0 || len(v) > 2 {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// DataFromGiveaway pre-populates an edit session.
func DataFromGiveaway(g *models.Giveaway, loc *time.Location) Data {
	end := g.EndTime.In(loc)
	return Data{
		KeyPrize:   g.Prize,
		KeyWinners: strconv.Itoa(g.Winners()),
		KeyYear:    strconv.Itoa(end.Year()),
		KeyMonth:   fmt.Sprintf("%02d", int(end.Month())),
		KeyDay:     fmt.Sprintf("%02d", end.Day()),
		KeyTime:    fmt.Sprintf("%02d:%02d", end.Hour(), end.Minute()),
	}
}

// MessageKey maps a wizard error to its translation key.
func MessageKey(err error) string {
	switch {
	case errors.Is(err, ErrNotOwner):
		return "giveawayWizardNotOwner"
	case errors.Is(err, ErrNotFound):
		return "giveawayWizardExpired"
	case errors.Is(err, ErrInvalidPrize):
		return "giveawayWizardInvalidPrize"
	case errors.Is(err, ErrInvalidWinners):
		return "giveawayWizardInvalidWinners"
	case errors.Is(err, ErrInvalidYear):
		return "giveawayWizardInvalidYear"
	case errors.Is(err, ErrInvalidMonth):
		return "giveawayWizardInvalidMonth"
	case errors.Is(err, ErrInvalidDay):
		return "giveawayWizardInvalidDay"
	case errors.Is(err, ErrInvalidTime):
		return "giveawayWizardInvalidTime"
	case errors.Is(err, ErrInvalidOption):
		return "giveawayWizardInvalidOption"
	case errors.Is(err, ErrInvalidDate):
		return "giveawayWizardInvalidDate"
	case errors.Is(err, ErrDatePast):
		return "giveawayWizardHandleDatePast"
	case errors.Is(err, ErrMissingData), errors.Is(err, ErrNotSavePage):
		return "giveawayWizardMissingData"
	}
	return "errorHappen"
}
