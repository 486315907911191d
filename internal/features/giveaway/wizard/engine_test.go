package wizard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "community-bot/internal/common/errors"
	"community-bot/internal/features/giveaway/models"
)

var fixedNow = time.Date(2025, time.June, 15, 10, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngine(NewStore(), time.UTC, WithClock(func() time.Time { return fixedNow }))
}

func startWizard(t *testing.T, e *Engine) {
	t.Helper()
	e.Register("msg", e.New("owner", "fr", false))
}

func fillAll(t *testing.T, e *Engine) View {
	t.Helper()
	steps := [][2]string{
		{KeyPrize, "Headset"},
		{KeyWinners, "2"},
		{KeyYear, "2025"},
		{KeyMonth, "07"},
		{KeyDay, "3"},
		{KeyTime, "9:05"},
	}
	var v View
	var err error
	for _, s := range steps {
		v, err = e.Submit("msg", "owner", s[0], s[1])
		require.NoError(t, err, s[0])
	}
	return v
}

func TestNavigationClamps(t *testing.T) {
	e := newTestEngine(t)
	startWizard(t, e)

	v, err := e.Back("msg", "owner")
	require.NoError(t, err)
	assert.Equal(t, 0, v.PageIndex)
	assert.True(t, v.BackDisabled)

	// next is blocked while the prize is empty
	v, err = e.Next("msg", "owner")
	require.NoError(t, err)
	assert.Equal(t, 0, v.PageIndex)
	assert.True(t, v.NextDisabled)

	v = fillAll(t, e)
	assert.Equal(t, v.PageCount-1, v.PageIndex)
	assert.Equal(t, KindSave, v.Input.Kind)
	assert.True(t, v.NextDisabled)

	v, err = e.Next("msg", "owner")
	require.NoError(t, err)
	assert.Equal(t, v.PageCount-1, v.PageIndex)

	v, err = e.Submit("msg", "owner", KeyTime, "11:30")
	require.NoError(t, err)
	assert.Equal(t, v.PageCount-1, v.PageIndex)

	v, err = e.Back("msg", "owner")
	require.NoError(t, err)
	assert.Equal(t, v.PageCount-2, v.PageIndex)
	assert.False(t, v.BackDisabled)
	assert.False(t, v.NextDisabled)
}

func TestSubmitAdvancesFromEditedPage(t *testing.T) {
	e := newTestEngine(t)
	startWizard(t, e)
	fillAll(t, e)

	v, err := e.Submit("msg", "owner", KeyPrize, "  Keyboard ")
	require.NoError(t, err)
	assert.Equal(t, 1, v.PageIndex)
	assert.Equal(t, "Keyboard", v.Fields[0].Value)
}

func TestRenderShowsPlaceholders(t *testing.T) {
	e := newTestEngine(t)
	w := e.New("owner", "fr", true)
	e.Register("msg", w)

	v := e.Render(w)
	assert.Equal(t, "giveawaySetup", v.Title)
	assert.True(t, v.SubOnly)
	require.Len(t, v.Fields, 6)
	for _, f := range v.Fields {
		assert.False(t, f.Set)
	}
	assert.Equal(t, KindModal, v.Input.Kind)
	assert.Equal(t, "modal_prize", v.Input.CustomID)
}

func TestMonthOptionsFollowYear(t *testing.T) {
	e := newTestEngine(t)
	startWizard(t, e)
	_, err := e.Submit("msg", "owner", KeyPrize, "Headset")
	require.NoError(t, err)
	_, err = e.Submit("msg", "owner", KeyWinners, "1")
	require.NoError(t, err)

	v, err := e.Submit("msg", "owner", KeyYear, "2025")
	require.NoError(t, err)
	assert.Equal(t, KindSelect, v.Input.Kind)
	assert.Equal(t, "select_month", v.Input.CustomID)
	assert.Equal(t, []string{"06", "07", "08", "09", "10", "11", "12"}, v.Input.Options)

	_, err = e.Submit("msg", "owner", KeyMonth, "03")
	assert.ErrorIs(t, err, ErrInvalidOption)

	_, err = e.Submit("msg", "owner", KeyYear, "2026")
	require.NoError(t, err)
	_, err = e.Submit("msg", "owner", KeyMonth, "03")
	require.NoError(t, err)

	_, err = e.Back("msg", "owner")
	require.NoError(t, err)
	v, err = e.Back("msg", "owner")
	require.NoError(t, err)
	assert.Equal(t, "select_year", v.Input.CustomID)

	// March is no longer offered once the year goes back to the current one
	v, err = e.Submit("msg", "owner", KeyYear, "2025")
	require.NoError(t, err)
	assert.Len(t, v.Input.Options, 7)
	assert.Empty(t, v.Input.Selected)
	assert.True(t, v.NextDisabled)
}

func TestYearOptions(t *testing.T) {
	assert.Equal(t, []string{"2025", "2026", "2027", "2028", "2029"}, yearOptions(nil, fixedNow))
	assert.Len(t, monthOptions(Data{KeyYear: "2027"}, fixedNow), 12)
}

func TestFieldValidators(t *testing.T) {
	cases := []struct {
		name  string
		fn    Validator
		value string
		data  Data
		want  string
		err   error
	}{
		{"prize", validatePrize, " Headset ", nil, "Headset", nil},
		{"prize empty", validatePrize, "   ", nil, "", ErrInvalidPrize},
		{"winners", validateWinners, "100", nil, "100", nil},
		{"winners zero", validateWinners, "0", nil, "", ErrInvalidWinners},
		{"winners too many", validateWinners, "101", nil, "", ErrInvalidWinners},
		{"winners text", validateWinners, "two", nil, "", ErrInvalidWinners},
		{"year", validateYear, "2026", nil, "2026", nil},
		{"year short", validateYear, "26", nil, "", ErrInvalidYear},
		{"month padded", validateMonth, "7", nil, "07", nil},
		{"month 13", validateMonth, "13", nil, "", ErrInvalidMonth},
		{"day", validateDay, "31", Data{KeyYear: "2025", KeyMonth: "07"}, "31", nil},
		{"day beyond month", validateDay, "31", Data{KeyYear: "2025", KeyMonth: "09"}, "", ErrInvalidDay},
		{"leap day", validateDay, "29", Data{KeyYear: "2028", KeyMonth: "02"}, "29", nil},
		{"feb 30", validateDay, "30", Data{KeyYear: "2024", KeyMonth: "02"}, "", ErrInvalidDay},
		{"day before today", validateDay, "14", Data{KeyYear: "2025", KeyMonth: "06"}, "", ErrInvalidDay},
		{"today", validateDay, "15", Data{KeyYear: "2025", KeyMonth: "06"}, "15", nil},
		{"day zero", validateDay, "0", nil, "", ErrInvalidDay},
		{"time", validateTime, "9:05", nil, "09:05", nil},
		{"time hour", validateTime, "24:00", nil, "", ErrInvalidTime},
		{"time minute", validateTime, "10:60", nil, "", ErrInvalidTime},
		{"time format", validateTime, "1000", nil, "", ErrInvalidTime},
		{"time past", validateTime, "09:59", Data{KeyYear: "2025", KeyMonth: "06", KeyDay: "15"}, "", ErrDatePast},
		{"time future", validateTime, "10:01", Data{KeyYear: "2025", KeyMonth: "06", KeyDay: "15"}, "10:01", nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.fn(tc.value, tc.data, fixedNow)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				appErr, ok := apperrors.AsAppError(err)
				require.True(t, ok)
				assert.True(t, appErr.IsValidation())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestBuildDateRejectsRollover(t *testing.T) {
	_, err := BuildDate("2024", "02", "30", "12:00", time.UTC)
	assert.ErrorIs(t, err, ErrInvalidDate)

	_, err = BuildDate("2025", "04", "31", "12:00", time.UTC)
	assert.ErrorIs(t, err, ErrInvalidDate)

	got, err := BuildDate("2024", "02", "29", "23:59", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 29, 23, 59, 0, 0, time.UTC), got)
}

func TestBuildDateUsesLocation(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		t.Skip("tzdata not available")
	}
	got, err := BuildDate("2025", "07", "01", "12:00", paris)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC), got.UTC())
}

func TestOwnership(t *testing.T) {
	e := newTestEngine(t)
	startWizard(t, e)

	_, err := e.Submit("msg", "intruder", KeyPrize, "Headset")
	assert.ErrorIs(t, err, ErrNotOwner)
	_, err = e.Next("msg", "intruder")
	assert.ErrorIs(t, err, ErrNotOwner)
	assert.ErrorIs(t, e.Cancel("msg", "intruder"), ErrNotOwner)
	_, err = e.Finalize("msg", "intruder")
	assert.ErrorIs(t, err, ErrNotOwner)

	_, err = e.Back("unknown", "owner")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, e.Cancel("msg", "owner"))
	assert.Zero(t, e.Store().Len())
}

func TestFinalize(t *testing.T) {
	e := newTestEngine(t)
	startWizard(t, e)

	_, err := e.Finalize("msg", "owner")
	assert.ErrorIs(t, err, ErrNotSavePage)

	fillAll(t, e)
	d, err := e.Finalize("msg", "owner")
	require.NoError(t, err)
	assert.Equal(t, "Headset", d.Prize)
	assert.Equal(t, 2, d.WinnerCount)
	assert.Equal(t, time.Date(2025, 7, 3, 9, 5, 0, 0, time.UTC), d.EndTime)
	assert.Equal(t, ModeCreate, d.Mode)

	// the session survives until the caller is done with it
	assert.Equal(t, 1, e.Store().Len())
	e.Done("msg")
	assert.Zero(t, e.Store().Len())
}

func TestFinalizeKeepsSessionWhenDatePassed(t *testing.T) {
	now := fixedNow
	e := NewEngine(NewStore(), time.UTC, WithClock(func() time.Time { return now }))
	e.Register("msg", e.New("owner", "fr", false))
	fillAll(t, e)

	now = time.Date(2025, 7, 4, 0, 0, 0, 0, time.UTC)
	_, err := e.Finalize("msg", "owner")
	assert.ErrorIs(t, err, ErrDatePast)
	assert.Equal(t, 1, e.Store().Len())
}

func TestEditWizardPrepopulated(t *testing.T) {
	e := newTestEngine(t)
	g := &models.Giveaway{
		ID:          7,
		Prize:       "Mouse",
		WinnerCount: 3,
		SubOnly:     true,
		EndTime:     time.Date(2026, 3, 9, 18, 30, 0, 0, time.UTC),
	}
	w := e.NewEdit("owner", "en", g)
	e.Register("msg", w)

	v := e.Render(w)
	assert.Equal(t, ModeEdit, v.Mode)
	assert.False(t, v.NextDisabled)
	values := map[string]string{}
	for _, f := range v.Fields {
		values[f.Label] = f.Value
	}
	assert.Equal(t, "Mouse", values["giveawayWizardPrize"])
	assert.Equal(t, "3", values["giveawayWizardWinners"])
	assert.Equal(t, "2026", values["giveawayWizardYear"])
	assert.Equal(t, "03", values["giveawayWizardMonth"])
	assert.Equal(t, "09", values["giveawayWizardDay"])
	assert.Equal(t, "18:30", values["giveawayWizardTime"])

	for i := 0; i < v.PageCount; i++ {
		_, err := e.Next("msg", "owner")
		require.NoError(t, err)
	}
	d, err := e.Finalize("msg", "owner")
	require.NoError(t, err)
	assert.Equal(t, int64(7), d.GiveawayID)
	assert.True(t, d.SubOnly)
	assert.Equal(t, g.EndTime, d.EndTime)
}

func TestOpenModalMatchesCurrentPage(t *testing.T) {
	e := newTestEngine(t)
	startWizard(t, e)

	p, err := e.OpenModal("msg", "owner", "modal_prize")
	require.NoError(t, err)
	assert.Equal(t, "modal_prize_input", p.InputID)
	assert.Equal(t, "giveawayEnterPrize", p.Prompt)

	_, err = e.OpenModal("msg", "owner", "modal_day")
	assert.ErrorIs(t, err, ErrNotModalPage)
}

func TestSubmitModalResolvesField(t *testing.T) {
	e := newTestEngine(t)
	startWizard(t, e)

	v, err := e.SubmitModal("msg", "owner", "modal_prize", "  Headset ")
	require.NoError(t, err)
	assert.Equal(t, 1, v.PageIndex)
	assert.Equal(t, "Headset", v.Fields[0].Value)

	_, err = e.SubmitModal("msg", "owner", "modal_unknown", "x")
	assert.ErrorIs(t, err, ErrUnknownField)

	_, err = e.SubmitModal("msg", "intruder", "modal_prize", "x")
	assert.ErrorIs(t, err, ErrNotOwner)
}

func TestLookupFallsBackToOwner(t *testing.T) {
	e := newTestEngine(t)
	startWizard(t, e)

	id, err := e.Lookup("", "owner")
	require.NoError(t, err)
	assert.Equal(t, "msg", id)

	_, err = e.Lookup("", "someone")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIsControl(t *testing.T) {
	for _, id := range []string{NavBack, NavNext, NavCancel, NavSave, SelectPrefix + KeyYear, ModalPrefix + "prize"} {
		assert.True(t, IsControl(id), id)
	}
	for _, id := range []string{"", "poll_vote", "giveaway_join_1"} {
		assert.False(t, IsControl(id), id)
	}

	e := newTestEngine(t)
	startWizard(t, e)
	assert.True(t, e.Active("msg"))
	assert.False(t, e.Active("other"))
}

func TestSweepRemovesIdleSessions(t *testing.T) {
	now := fixedNow
	e := NewEngine(NewStore(), time.UTC, WithClock(func() time.Time { return now }))
	e.Register("old", e.New("a", "fr", false))
	now = now.Add(20 * time.Minute)
	e.Register("fresh", e.New("b", "fr", false))

	assert.Equal(t, 1, e.Sweep(15*time.Minute))
	_, ok := e.Store().Get("fresh")
	assert.True(t, ok)
}

func TestMessageKey(t *testing.T) {
	assert.Equal(t, "giveawayWizardInvalidDay", MessageKey(ErrInvalidDay))
	assert.Equal(t, "giveawayWizardNotOwner", MessageKey(ErrNotOwner))
	assert.Equal(t, "errorHappen", MessageKey(assert.AnError))
}
