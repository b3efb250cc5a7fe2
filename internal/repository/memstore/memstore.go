// Package memstore はrepository.Storeのインメモリ実装を提供する。
// サービス層のテストで使用する。PostgreSQLの一意制約・排他制約・CASCADE削除を同等に再現し、
// トランザクションは全体ロックとスナップショットによるロールバックで直列化する。
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/fitclass/internal/model"
	"github.com/hitoshi/fitclass/internal/repository"
)

type state struct {
	users     map[string]*model.User
	schedules map[string]*model.Schedule
	bookings  map[string]*model.Booking
	sessions  map[string]*model.RefreshSession
}

func newState() *state {
	return &state{
		users:     make(map[string]*model.User),
		schedules: make(map[string]*model.Schedule),
		bookings:  make(map[string]*model.Booking),
		sessions:  make(map[string]*model.RefreshSession),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.users {
		c.users[k] = copyUser(v)
	}
	for k, v := range s.schedules {
		cp := *v
		c.schedules[k] = &cp
	}
	for k, v := range s.bookings {
		cp := *v
		cp.Schedule = nil
		c.bookings[k] = &cp
	}
	for k, v := range s.sessions {
		cp := *v
		c.sessions[k] = &cp
	}
	return c
}

type shared struct {
	txMu sync.Mutex
	mu   sync.Mutex
	data *state
	now  func() time.Time
}

// Store はrepository.Storeのインメモリ実装。
type Store struct {
	sh   *shared
	inTx bool
}

// New は空のStoreを生成する。
func New() *Store {
	return &Store{sh: &shared{data: newState(), now: time.Now}}
}

// SetClock はセッション期限判定に使う現在時刻関数を差し替える。
func (s *Store) SetClock(now func() time.Time) {
	s.sh.mu.Lock()
	defer s.sh.mu.Unlock()
	s.sh.now = now
}

func (s *Store) Users() repository.UserRepository         { return &userRepo{sh: s.sh} }
func (s *Store) Schedules() repository.ScheduleRepository { return &scheduleRepo{sh: s.sh} }
func (s *Store) Bookings() repository.BookingRepository   { return &bookingRepo{sh: s.sh} }
func (s *Store) Sessions() repository.SessionRepository   { return &sessionRepo{sh: s.sh} }

// WithinTx はトランザクションを直列に実行し、fnがエラーを返した場合は開始時点の状態に戻す。
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Store) error) error {
	if s.inTx {
		return fn(ctx, s)
	}

	s.sh.txMu.Lock()
	defer s.sh.txMu.Unlock()

	s.sh.mu.Lock()
	snapshot := s.sh.data.clone()
	s.sh.mu.Unlock()

	if err := fn(ctx, &Store{sh: s.sh, inTx: true}); err != nil {
		s.sh.mu.Lock()
		s.sh.data = snapshot
		s.sh.mu.Unlock()
		return err
	}
	return nil
}

// --- users ---

type userRepo struct{ sh *shared }

func copyUser(u *model.User) *model.User {
	cp := *u
	if u.Profile != nil {
		p := *u.Profile
		if u.Profile.Age != nil {
			a := *u.Profile.Age
			p.Age = &a
		}
		cp.Profile = &p
	}
	return &cp
}

func (r *userRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	r.sh.mu.Lock()
	defer r.sh.mu.Unlock()
	if u, ok := r.sh.data.users[id]; ok {
		return copyUser(u), nil
	}
	return nil, nil
}

func (r *userRepo) LockByID(ctx context.Context, id string) (*model.User, error) {
	return r.FindByID(ctx, id)
}

func (r *userRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	r.sh.mu.Lock()
	defer r.sh.mu.Unlock()
	for _, u := range r.sh.data.users {
		if strings.EqualFold(u.Email, email) {
			return copyUser(u), nil
		}
	}
	return nil, nil
}

func (r *userRepo) Create(ctx context.Context, user *model.User) error {
	r.sh.mu.Lock()
	defer r.sh.mu.Unlock()
	for _, u := range r.sh.data.users {
		if u.ID == user.ID || strings.EqualFold(u.Email, user.Email) {
			return fmt.Errorf("failed to insert user: %w", repository.ErrDuplicate)
		}
	}
	r.sh.data.users[user.ID] = copyUser(user)
	return nil
}

func (r *userRepo) List(ctx context.Context, filter model.UserFilter, opts model.UserListOptions) ([]*model.User, int, error) {
	opts = opts.Normalize()

	r.sh.mu.Lock()
	var matched []*model.User
	for _, u := range r.sh.data.users {
		if matchUser(u, filter) {
			matched = append(matched, copyUser(u))
		}
	}
	r.sh.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		var less, equal bool
		switch opts.SortBy {
		case model.UserSortEmail:
			less, equal = a.Email < b.Email, a.Email == b.Email
		case model.UserSortRole:
			less, equal = a.Role < b.Role, a.Role == b.Role
		case model.UserSortStatus:
			less, equal = a.Status < b.Status, a.Status == b.Status
		default:
			less, equal = a.CreatedAt.Before(b.CreatedAt), a.CreatedAt.Equal(b.CreatedAt)
		}
		if equal {
			return a.ID < b.ID
		}
		if opts.SortOrder == model.SortAsc {
			return less
		}
		return !less
	})

	total := len(matched)
	from := min(opts.Offset(), total)
	to := min(from+opts.Limit, total)
	return matched[from:to], total, nil
}

func matchUser(u *model.User, f model.UserFilter) bool {
	if term := strings.ToLower(strings.TrimSpace(f.SearchTerm)); term != "" {
		name := ""
		if u.Profile != nil {
			name = strings.ToLower(u.Profile.Name)
		}
		if !strings.Contains(strings.ToLower(u.Email), term) && !strings.Contains(name, term) {
			return false
		}
	}
	if f.Role != "" && u.Role != f.Role {
		return false
	}
	if f.Status != "" && u.Status != f.Status {
		return false
	}
	if f.Email != "" && !strings.EqualFold(u.Email, f.Email) {
		return false
	}
	return true
}

func (r *userRepo) CountByRoles(ctx context.Context, roles []model.Role) (int, error) {
	r.sh.mu.Lock()
	defer r.sh.mu.Unlock()
	count := 0
	for _, u := range r.sh.data.users {
		for _, role := range roles {
			if u.Role == role {
				count++
				break
			}
		}
	}
	return count, nil
}

func (r *userRepo) UpdateStatus(ctx context.Context, id string, status model.UserStatus) error {
	r.sh.mu.Lock()
	defer r.sh.mu.Unlock()
	u, ok := r.sh.data.users[id]
	if !ok {
		return fmt.Errorf("%w: %s", repository.ErrNotFound, id)
	}
	u.Status = status
	u.UpdatedAt = r.sh.now()
	return nil
}

func (r *userRepo) UpdatePassword(ctx context.Context, id, passwordHash string, needPasswordChange bool) error {
	r.sh.mu.Lock()
	defer r.sh.mu.Unlock()
	u, ok := r.sh.data.users[id]
	if !ok {
		return fmt.Errorf("%w: %s", repository.ErrNotFound, id)
	}
	u.PasswordHash = passwordHash
	u.NeedPasswordChange = needPasswordChange
	u.UpdatedAt = r.sh.now()
	return nil
}

func (r *userRepo) UpsertProfile(ctx context.Context, profile *model.Profile) error {
	r.sh.mu.Lock()
	defer r.sh.mu.Unlock()
	u, ok := r.sh.data.users[profile.UserID]
	if !ok {
		return fmt.Errorf("failed to upsert profile: %w", repository.ErrForeignKey)
	}
	cp := copyUser(&model.User{Profile: profile}).Profile
	if u.Profile != nil {
		cp.ID = u.Profile.ID
		cp.CreatedAt = u.Profile.CreatedAt
	}
	u.Profile = cp
	return nil
}

// --- schedules ---

type scheduleRepo struct{ sh *shared }

func (r *scheduleRepo) FindByID(ctx context.Context, id string) (*model.Schedule, error) {
	r.sh.mu.Lock()
	defer r.sh.mu.Unlock()
	if s, ok := r.sh.data.schedules[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, nil
}

func (r *scheduleRepo) LockByID(ctx context.Context, id string) (*model.Schedule, error) {
	return r.FindByID(ctx, id)
}

func (r *scheduleRepo) CountByTrainerStartingBetween(ctx context.Context, trainerID string, from, to time.Time) (int, error) {
	r.sh.mu.Lock()
	defer r.sh.mu.Unlock()
	count := 0
	for _, s := range r.sh.data.schedules {
		if s.TrainerID == trainerID && !s.StartDateTime.Before(from) && s.StartDateTime.Before(to) {
			count++
		}
	}
	return count, nil
}

func (r *scheduleRepo) FindOverlapping(ctx context.Context, trainerID string, start, end time.Time) (*model.Schedule, error) {
	r.sh.mu.Lock()
	defer r.sh.mu.Unlock()
	var found *model.Schedule
	for _, s := range r.sh.data.schedules {
		if s.TrainerID == trainerID && s.Overlaps(start, end) {
			if found == nil || s.StartDateTime.Before(found.StartDateTime) {
				found = s
			}
		}
	}
	if found == nil {
		return nil, nil
	}
	cp := *found
	return &cp, nil
}

func (r *scheduleRepo) Create(ctx context.Context, schedule *model.Schedule) error {
	r.sh.mu.Lock()
	defer r.sh.mu.Unlock()
	if !schedule.StartDateTime.Before(schedule.EndDateTime) {
		return fmt.Errorf("failed to insert schedule: start must be before end")
	}
	if _, ok := r.sh.data.users[schedule.TrainerID]; !ok {
		return fmt.Errorf("failed to insert schedule: %w", repository.ErrForeignKey)
	}
	for _, s := range r.sh.data.schedules {
		if s.ID == schedule.ID {
			return fmt.Errorf("failed to insert schedule: %w", repository.ErrDuplicate)
		}
		if s.TrainerID == schedule.TrainerID && s.Overlaps(schedule.StartDateTime, schedule.EndDateTime) {
			return fmt.Errorf("failed to insert schedule: %w", repository.ErrOverlap)
		}
	}
	cp := *schedule
	r.sh.data.schedules[schedule.ID] = &cp
	return nil
}

func (r *scheduleRepo) sorted(match func(*model.Schedule) bool) []*model.Schedule {
	var out []*model.Schedule
	for _, s := range r.sh.data.schedules {
		if match(s) {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartDateTime.Equal(out[j].StartDateTime) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartDateTime.Before(out[j].StartDateTime)
	})
	return out
}

func (r *scheduleRepo) List(ctx context.Context, filter model.ScheduleFilter, page model.PageRequest) ([]*model.Schedule, int, error) {
	page = page.Normalize(model.DefaultSchedulePageLimit)
	var from, to time.Time
	if !filter.Date.IsZero() {
		from, to = model.DayBounds(filter.Date)
	}

	r.sh.mu.Lock()
	all := r.sorted(func(s *model.Schedule) bool {
		if !filter.Date.IsZero() && (s.StartDateTime.Before(from) || !s.StartDateTime.Before(to)) {
			return false
		}
		return filter.TrainerID == "" || s.TrainerID == filter.TrainerID
	})
	r.sh.mu.Unlock()

	total := len(all)
	start := min(page.Offset(), total)
	end := min(start+page.Limit, total)
	return all[start:end], total, nil
}

func (r *scheduleRepo) ListByTrainer(ctx context.Context, trainerID string) ([]*model.Schedule, error) {
	r.sh.mu.Lock()
	defer r.sh.mu.Unlock()
	return r.sorted(func(s *model.Schedule) bool { return s.TrainerID == trainerID }), nil
}

func (r *scheduleRepo) Delete(ctx context.Context, id string) error {
	r.sh.mu.Lock()
	defer r.sh.mu.Unlock()
	if _, ok := r.sh.data.schedules[id]; !ok {
		return fmt.Errorf("%w: %s", repository.ErrNotFound, id)
	}
	delete(r.sh.data.schedules, id)
	for bid, b := range r.sh.data.bookings {
		if b.ScheduleID == id {
			delete(r.sh.data.bookings, bid)
		}
	}
	return nil
}

// --- bookings ---

type bookingRepo struct{ sh *shared }

// withSchedule はロック取得済みの状態で予約に枠情報を付与したコピーを返す。
func (r *bookingRepo) withSchedule(b *model.Booking) *model.Booking {
	cp := *b
	if s, ok := r.sh.data.schedules[b.ScheduleID]; ok {
		sc := *s
		cp.Schedule = &sc
	}
	return &cp
}

func (r *bookingRepo) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	r.sh.mu.Lock()
	defer r.sh.mu.Unlock()
	if b, ok := r.sh.data.bookings[id]; ok {
		return r.withSchedule(b), nil
	}
	return nil, nil
}

func (r *bookingRepo) CountBySchedule(ctx context.Context, scheduleID string) (int, error) {
	r.sh.mu.Lock()
	defer r.sh.mu.Unlock()
	count := 0
	for _, b := range r.sh.data.bookings {
		if b.ScheduleID == scheduleID {
			count++
		}
	}
	return count, nil
}

func (r *bookingRepo) FindOverlappingForUser(ctx context.Context, userID string, start, end time.Time) (*model.Booking, error) {
	r.sh.mu.Lock()
	defer r.sh.mu.Unlock()
	for _, b := range r.sh.data.bookings {
		if b.UserID != userID {
			continue
		}
		s, ok := r.sh.data.schedules[b.ScheduleID]
		if ok && s.Overlaps(start, end) {
			return r.withSchedule(b), nil
		}
	}
	return nil, nil
}

func (r *bookingRepo) Create(ctx context.Context, booking *model.Booking) error {
	r.sh.mu.Lock()
	defer r.sh.mu.Unlock()
	if _, ok := r.sh.data.schedules[booking.ScheduleID]; !ok {
		return fmt.Errorf("failed to insert booking: %w", repository.ErrForeignKey)
	}
	if _, ok := r.sh.data.users[booking.UserID]; !ok {
		return fmt.Errorf("failed to insert booking: %w", repository.ErrForeignKey)
	}
	for _, b := range r.sh.data.bookings {
		if b.ID == booking.ID || (b.UserID == booking.UserID && b.ScheduleID == booking.ScheduleID) {
			return fmt.Errorf("failed to insert booking: %w", repository.ErrDuplicate)
		}
	}
	cp := *booking
	cp.Schedule = nil
	r.sh.data.bookings[booking.ID] = &cp
	return nil
}

func (r *bookingRepo) Delete(ctx context.Context, id string) error {
	r.sh.mu.Lock()
	defer r.sh.mu.Unlock()
	if _, ok := r.sh.data.bookings[id]; !ok {
		return fmt.Errorf("%w: %s", repository.ErrNotFound, id)
	}
	delete(r.sh.data.bookings, id)
	return nil
}

func (r *bookingRepo) ListUpcomingByUser(ctx context.Context, userID string, now time.Time) ([]*model.Booking, error) {
	r.sh.mu.Lock()
	defer r.sh.mu.Unlock()
	var out []*model.Booking
	for _, b := range r.sh.data.bookings {
		if b.UserID != userID {
			continue
		}
		s, ok := r.sh.data.schedules[b.ScheduleID]
		if ok && s.StartDateTime.After(now) {
			out = append(out, r.withSchedule(b))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Schedule.StartDateTime, out[j].Schedule.StartDateTime
		if a.Equal(b) {
			return out[i].ID < out[j].ID
		}
		return a.Before(b)
	})
	return out, nil
}

// --- sessions ---

type sessionRepo struct{ sh *shared }

func (r *sessionRepo) Create(ctx context.Context, session *model.RefreshSession) error {
	r.sh.mu.Lock()
	defer r.sh.mu.Unlock()
	if _, ok := r.sh.data.sessions[session.ID]; ok {
		return fmt.Errorf("failed to create session: %w", repository.ErrDuplicate)
	}
	cp := *session
	r.sh.data.sessions[session.ID] = &cp
	return nil
}

func (r *sessionRepo) FindByID(ctx context.Context, id string) (*model.RefreshSession, error) {
	r.sh.mu.Lock()
	defer r.sh.mu.Unlock()
	s, ok := r.sh.data.sessions[id]
	if !ok || !s.ExpiresAt.After(r.sh.now()) {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *sessionRepo) DeleteByID(ctx context.Context, id string) error {
	r.sh.mu.Lock()
	defer r.sh.mu.Unlock()
	delete(r.sh.data.sessions, id)
	return nil
}

func (r *sessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	r.sh.mu.Lock()
	defer r.sh.mu.Unlock()
	for id, s := range r.sh.data.sessions {
		if s.UserID == userID {
			delete(r.sh.data.sessions, id)
		}
	}
	return nil
}

// compile-time interface check
var _ repository.Store = (*Store)(nil)
