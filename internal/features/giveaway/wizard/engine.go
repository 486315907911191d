package wizard

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	apperrors "community-bot/internal/common/errors"
	"community-bot/internal/features/giveaway/models"
)

// Navigation control ids.
const (
	NavBack   = "back"
	NavNext   = "next"
	NavCancel = "cancel"
	NavSave   = "save"

	SelectPrefix = "select_"
	ModalPrefix  = "modal_"
)

// IsControl reports whether customID is one of the controls a wizard
// message carries.
func IsControl(customID string) bool {
	switch customID {
	case NavBack, NavNext, NavCancel, NavSave:
		return true
	}
	return strings.HasPrefix(customID, SelectPrefix) || strings.HasPrefix(customID, ModalPrefix)
}

var (
	ErrNotFound     = apperrors.Sentinel(apperrors.ErrCodeNotFound, "wizard not found")
	ErrNotOwner     = apperrors.Sentinel(apperrors.ErrCodeNotOwner, "wizard belongs to another user")
	ErrNotSavePage  = apperrors.Sentinel(apperrors.ErrCodeValidation, "wizard is not on its save page")
	ErrNotModalPage = apperrors.Sentinel(apperrors.ErrCodeValidation, "current page takes no text input")
	ErrUnknownField = apperrors.Sentinel(apperrors.ErrCodeValidation, "unknown wizard field")
)

type Field struct {
	Label string
	Value string
	Set   bool
}

// Input describes the affordance of the current page.
type Input struct {
	Kind     PageKind
	CustomID string
	Prompt   string
	Options  []string
	Selected string
}

// View is everything needed to draw a session. Labels are translation keys.
type View struct {
	Title        string
	Locale       string
	SubOnly      bool
	Mode         Mode
	Fields       []Field
	Input        Input
	PageIndex    int
	PageCount    int
	BackDisabled bool
	NextDisabled bool
}

type ModalPrompt struct {
	ModalID     string
	InputID     string
	Prompt      string
	Placeholder string
	MaxLength   int
	Value       string
	Locale      string
}

// Draft is the validated outcome of a finished session.
type Draft struct {
	Prize       string
	WinnerCount int
	EndTime     time.Time
	SubOnly     bool
	Mode        Mode
	GiveawayID  int64
	OwnerID     string
	Locale      string
}

type Engine struct {
	store *Store
	loc   *time.Location
	now   func() time.Time
	pages func() []Page
}

type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithPages(pages func() []Page) Option {
	return func(e *Engine) { e.pages = pages }
}

func NewEngine(store *Store, loc *time.Location, opts ...Option) *Engine {
	if loc == nil {
		loc = time.Local
	}
	e := &Engine{store: store, loc: loc, now: time.Now, pages: DefaultPages}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Store() *Store { return e.store }

func (e *Engine) clock() time.Time {
	return e.now().In(e.loc)
}

// New returns an unregistered create session.
func (e *Engine) New(ownerID, locale string, subOnly bool) *Wizard {
	return &Wizard{
		OwnerID:   ownerID,
		Pages:     e.pages(),
		Data:      Data{},
		SubOnly:   subOnly,
		Mode:      ModeCreate,
		Locale:    locale,
		UpdatedAt: e.clock(),
	}
}

// NewEdit returns an unregistered session pre-populated from g.
func (e *Engine) NewEdit(ownerID, locale string, g *models.Giveaway) *Wizard {
	w := e.New(ownerID, locale, g.SubOnly)
	w.Mode = ModeEdit
	w.GiveawayID = g.ID
	w.Data = DataFromGiveaway(g, e.loc)
	return w
}

// Register binds w to the message it was rendered into.
func (e *Engine) Register(messageID string, w *Wizard) {
	w.mu.Lock()
	w.MessageID = messageID
	w.mu.Unlock()
	e.store.Set(w)
}

// Active reports whether a session is bound to messageID.
func (e *Engine) Active(messageID string) bool {
	_, ok := e.store.Get(messageID)
	return ok
}

// Lookup returns the message id of the session bound to messageID, or of
// the latest session of userID when the message is unknown. Modal submits
// rely on the fallback.
func (e *Engine) Lookup(messageID, userID string) (string, error) {
	if _, ok := e.store.Get(messageID); ok {
		return messageID, nil
	}
	var (
		found    string
		latestAt time.Time
	)
	e.store.Range(func(w *Wizard) bool {
		w.mu.Lock()
		owner, at, id := w.OwnerID, w.UpdatedAt, w.MessageID
		w.mu.Unlock()
		if owner == userID && (found == "" || at.After(latestAt)) {
			found, latestAt = id, at
		}
		return true
	})
	if found == "" {
		return "", ErrNotFound
	}
	return found, nil
}

// acquire returns the locked session after the ownership check.
func (e *Engine) acquire(messageID, userID string) (*Wizard, error) {
	w, ok := e.store.Get(messageID)
	if !ok {
		return nil, ErrNotFound
	}
	w.mu.Lock()
	if w.OwnerID != userID {
		w.mu.Unlock()
		return nil, ErrNotOwner
	}
	return w, nil
}

func (e *Engine) Back(messageID, userID string) (View, error) {
	w, err := e.acquire(messageID, userID)
	if err != nil {
		return View{}, err
	}
	defer w.mu.Unlock()

	w.PageIndex = max(0, w.PageIndex-1)
	w.UpdatedAt = e.clock()
	return e.render(w), nil
}

func (e *Engine) Next(messageID, userID string) (View, error) {
	w, err := e.acquire(messageID, userID)
	if err != nil {
		return View{}, err
	}
	defer w.mu.Unlock()

	if key := w.current().Key(); key == "" || w.Data[key] != "" {
		w.PageIndex = min(w.lastIndex(), w.PageIndex+1)
	}
	w.UpdatedAt = e.clock()
	return e.render(w), nil
}

// Submit validates value for key, stores it and advances past the page.
// On error the session is unchanged.
func (e *Engine) Submit(messageID, userID, key, value string) (View, error) {
	w, err := e.acquire(messageID, userID)
	if err != nil {
		return View{}, err
	}
	defer w.mu.Unlock()

	idx := w.indexOf(key)
	if idx < 0 || key == "" {
		return View{}, fmt.Errorf("%w: %s", ErrUnknownField, key)
	}

	now := e.clock()
	var normalized string
	switch p := w.Pages[idx].(type) {
	case ModalPage:
		normalized, err = p.Validate(value, w.Data, now)
	case SelectPage:
		if !slices.Contains(p.Options(w.Data, now), value) {
			return View{}, ErrInvalidOption
		}
		normalized, err = p.Validate(value, w.Data, now)
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownField, key)
	}
	if err != nil {
		return View{}, err
	}

	w.Data[key] = normalized
	if key == KeyYear {
		e.dropStaleOptions(w, now)
	}
	w.PageIndex = min(w.lastIndex(), idx+1)
	w.UpdatedAt = now
	return e.render(w), nil
}

// SubmitModal is Submit for the field entered through modalID.
func (e *Engine) SubmitModal(messageID, userID, modalID, value string) (View, error) {
	w, err := e.acquire(messageID, userID)
	if err != nil {
		return View{}, err
	}
	var key string
	for _, page := range w.Pages {
		if mp, ok := page.(ModalPage); ok && mp.ModalID == modalID {
			key = mp.Field
			break
		}
	}
	w.mu.Unlock()

	if key == "" {
		return View{}, fmt.Errorf("%w: %s", ErrUnknownField, modalID)
	}
	return e.Submit(messageID, userID, key, value)
}

// dropStaleOptions clears select values no longer offered after a change
// they depend on.
func (e *Engine) dropStaleOptions(w *Wizard, now time.Time) {
	for _, page := range w.Pages {
		sp, ok := page.(SelectPage)
		if !ok || w.Data[sp.Field] == "" {
			continue
		}
		if !slices.Contains(sp.Options(w.Data, now), w.Data[sp.Field]) {
			delete(w.Data, sp.Field)
		}
	}
}

// OpenModal describes the modal of the current page.
func (e *Engine) OpenModal(messageID, userID, modalID string) (ModalPrompt, error) {
	w, err := e.acquire(messageID, userID)
	if err != nil {
		return ModalPrompt{}, err
	}
	defer w.mu.Unlock()

	p, ok := w.current().(ModalPage)
	if !ok || p.ModalID != modalID {
		return ModalPrompt{}, ErrNotModalPage
	}
	w.UpdatedAt = e.clock()
	return ModalPrompt{
		ModalID:     p.ModalID,
		InputID:     p.InputID(),
		Prompt:      p.Prompt,
		Placeholder: p.Placeholder,
		MaxLength:   p.MaxLength,
		Value:       w.Data[p.Field],
		Locale:      w.Locale,
	}, nil
}

func (e *Engine) Cancel(messageID, userID string) error {
	w, err := e.acquire(messageID, userID)
	if err != nil {
		return err
	}
	w.mu.Unlock()
	e.store.Delete(messageID)
	return nil
}

// Finalize validates every field and builds the draft. The session stays
// registered; call Done once the draft has been persisted.
func (e *Engine) Finalize(messageID, userID string) (Draft, error) {
	w, err := e.acquire(messageID, userID)
	if err != nil {
		return Draft{}, err
	}
	defer w.mu.Unlock()

	if w.current().Kind() != KindSave {
		return Draft{}, ErrNotSavePage
	}

	now := e.clock()
	for _, page := range w.Pages {
		key := page.Key()
		if key == "" {
			continue
		}
		if w.Data[key] == "" {
			return Draft{}, fmt.Errorf("%w: %s", ErrMissingData, key)
		}
	}

	end, err := BuildDate(w.Data[KeyYear], w.Data[KeyMonth], w.Data[KeyDay], w.Data[KeyTime], e.loc)
	if err != nil {
		return Draft{}, err
	}
	if !end.After(now) {
		return Draft{}, ErrDatePast
	}
	prize, err := validatePrize(w.Data[KeyPrize], w.Data, now)
	if err != nil {
		return Draft{}, err
	}
	winners, err := strconv.Atoi(w.Data[KeyWinners])
	if err != nil || winners < models.MinWinnerCount || winners > models.MaxWinnerCount {
		return Draft{}, ErrInvalidWinners
	}

	w.UpdatedAt = now
	return Draft{
		Prize:       prize,
		WinnerCount: winners,
		EndTime:     end,
		SubOnly:     w.SubOnly,
		Mode:        w.Mode,
		GiveawayID:  w.GiveawayID,
		OwnerID:     w.OwnerID,
		Locale:      w.Locale,
	}, nil
}

// Done forgets the session of messageID.
func (e *Engine) Done(messageID string) {
	e.store.Delete(messageID)
}

// Render draws w.
func (e *Engine) Render(w *Wizard) View {
	w.mu.Lock()
	defer w.mu.Unlock()
	return e.render(w)
}

func (e *Engine) render(w *Wizard) View {
	now := e.clock()
	v := View{
		Title:     "giveawaySetup",
		Locale:    w.Locale,
		SubOnly:   w.SubOnly,
		Mode:      w.Mode,
		PageIndex: w.PageIndex,
		PageCount: len(w.Pages),
	}

	for _, page := range w.Pages {
		var label string
		switch p := page.(type) {
		case ModalPage:
			label = p.Label
		case SelectPage:
			label = p.Label
		default:
			continue
		}
		value := w.Data[page.Key()]
		v.Fields = append(v.Fields, Field{Label: label, Value: value, Set: value != ""})
	}

	switch p := w.current().(type) {
	case ModalPage:
		v.Input = Input{Kind: KindModal, CustomID: p.ModalID, Prompt: p.Prompt}
	case SelectPage:
		v.Input = Input{
			Kind:     KindSelect,
			CustomID: SelectPrefix + p.Field,
			Prompt:   p.Prompt,
			Options:  p.Options(w.Data, now),
			Selected: w.Data[p.Field],
		}
	default:
		v.Input = Input{Kind: KindSave, CustomID: NavSave, Prompt: NavSave}
	}

	key := w.current().Key()
	v.BackDisabled = w.PageIndex == 0
	v.NextDisabled = w.PageIndex == w.lastIndex() || (key != "" && w.Data[key] == "")
	return v
}

// Sweep drops sessions idle for longer than maxAge.
func (e *Engine) Sweep(maxAge time.Duration) int {
	return e.store.Sweep(e.now().Add(-maxAge))
}
