package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/hitoshi/fitclass/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db DBTX
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db DBTX) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

const userSelectColumns = `
	u.id, u.email, u.password_hash, u.role, u.status, u.need_password_change, u.created_at, u.updated_at,
	p.id, p.name, p.age, p.phone, p.gender, p.created_at, p.updated_at`

const userFromClause = `FROM users u LEFT JOIN profiles p ON p.user_id = u.id`

// userSortColumns は許可されたソートキーとカラムの対応。
var userSortColumns = map[model.UserSortField]string{
	model.UserSortCreatedAt: "u.created_at",
	model.UserSortEmail:     "u.email",
	model.UserSortRole:      "u.role",
	model.UserSortStatus:    "u.status",
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*model.User, error) {
	user := &model.User{}
	var (
		profileID        sql.NullString
		name             sql.NullString
		age              sql.NullInt64
		phone            sql.NullString
		gender           sql.NullString
		profileCreatedAt sql.NullTime
		profileUpdatedAt sql.NullTime
	)
	err := row.Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.Role, &user.Status, &user.NeedPasswordChange,
		&user.CreatedAt, &user.UpdatedAt,
		&profileID, &name, &age, &phone, &gender, &profileCreatedAt, &profileUpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if profileID.Valid {
		p := &model.Profile{
			ID:        profileID.String,
			UserID:    user.ID,
			Name:      name.String,
			Phone:     phone.String,
			Gender:    model.Gender(gender.String),
			CreatedAt: profileCreatedAt.Time,
			UpdatedAt: profileUpdatedAt.Time,
		}
		if age.Valid {
			a := int(age.Int64)
			p.Age = &a
		}
		user.Profile = p
	}
	return user, nil
}

func (r *PostgresUserRepo) findOne(ctx context.Context, where, suffix string, arg any) (*model.User, error) {
	query := `SELECT ` + userSelectColumns + ` ` + userFromClause + ` WHERE ` + where + suffix
	user, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	return r.findOne(ctx, `u.id = $1`, "", id)
}

// LockByID は指定IDのユーザー行をロックして取得する。
func (r *PostgresUserRepo) LockByID(ctx context.Context, id string) (*model.User, error) {
	return r.findOne(ctx, `u.id = $1`, ` FOR UPDATE OF u`, id)
}

// FindByEmail はメールアドレスでユーザーを検索する。比較は大文字小文字を区別しない。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx, `lower(u.email) = lower($1)`, "", email)
}

// Create はユーザーを作成する。Profileが設定されていれば同じ接続で作成する。
// 両方の書き込みを原子的にするには、WithinTx内のStoreから呼び出すこと。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, role, status, need_password_change, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		user.ID, user.Email, user.PasswordHash, user.Role, user.Status, user.NeedPasswordChange,
		user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return translateError(err, "failed to insert user")
	}

	if user.Profile != nil {
		if err := r.UpsertProfile(ctx, user.Profile); err != nil {
			return err
		}
	}
	return nil
}

// UpsertProfile はプロフィールを作成または更新する。user_idで一意。
func (r *PostgresUserRepo) UpsertProfile(ctx context.Context, p *model.Profile) error {
	var age any
	if p.Age != nil {
		age = *p.Age
	}
	var gender any
	if p.Gender != "" {
		gender = string(p.Gender)
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO profiles (id, user_id, name, age, phone, gender, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (user_id) DO UPDATE SET
		   name = EXCLUDED.name,
		   age = EXCLUDED.age,
		   phone = EXCLUDED.phone,
		   gender = EXCLUDED.gender,
		   updated_at = EXCLUDED.updated_at`,
		p.ID, p.UserID, p.Name, age, p.Phone, gender, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return translateError(err, "failed to upsert profile")
	}
	return nil
}

// buildUserWhere はフィルタの各フィールドを個別の述語に変換する。
func buildUserWhere(filter model.UserFilter) (string, []any) {
	var conds []string
	var args []any

	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if term := strings.TrimSpace(filter.SearchTerm); term != "" {
		args = append(args, "%"+escapeLike(term)+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf(`(u.email ILIKE $%d OR p.name ILIKE $%d)`, n, n))
	}
	if filter.Role != "" {
		add(`u.role = $%d`, filter.Role)
	}
	if filter.Status != "" {
		add(`u.status = $%d`, filter.Status)
	}
	if filter.Email != "" {
		add(`lower(u.email) = lower($%d)`, filter.Email)
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// escapeLike はLIKEパターンのメタ文字をエスケープする。
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// List は条件に一致するユーザーの1ページ分と総件数を返す。
func (r *PostgresUserRepo) List(ctx context.Context, filter model.UserFilter, opts model.UserListOptions) ([]*model.User, int, error) {
	opts = opts.Normalize()
	where, args := buildUserWhere(filter)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) `+userFromClause+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	order := "DESC"
	if opts.SortOrder == model.SortAsc {
		order = "ASC"
	}
	query := fmt.Sprintf(`SELECT %s %s%s ORDER BY %s %s, u.id LIMIT $%d OFFSET $%d`,
		userSelectColumns, userFromClause, where,
		userSortColumns[opts.SortBy], order,
		len(args)+1, len(args)+2,
	)
	args = append(args, opts.Limit, opts.Offset())

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, total, nil
}

// CountByRoles は指定ロールのいずれかに該当するユーザー数を返す。
func (r *PostgresUserRepo) CountByRoles(ctx context.Context, roles []model.Role) (int, error) {
	names := make([]string, len(roles))
	for i, role := range roles {
		names[i] = string(role)
	}
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM users WHERE role = ANY($1)`,
		pq.Array(names),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count users by role: %w", err)
	}
	return count, nil
}

// UpdateStatus はユーザーのステータスを更新する。
func (r *PostgresUserRepo) UpdateStatus(ctx context.Context, id string, status model.UserStatus) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET status = $2, updated_at = now() WHERE id = $1`,
		id, status,
	)
	if err != nil {
		return fmt.Errorf("failed to update user status: %w", err)
	}
	return requireAffected(result, id)
}

// UpdatePassword はパスワードハッシュとパスワード変更要求フラグを更新する。
func (r *PostgresUserRepo) UpdatePassword(ctx context.Context, id, passwordHash string, needPasswordChange bool) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = $2, need_password_change = $3, updated_at = now() WHERE id = $1`,
		id, passwordHash, needPasswordChange,
	)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return requireAffected(result, id)
}

// requireAffected は更新・削除件数が0の場合にErrNotFoundを返す。
func requireAffected(result sql.Result, id string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
