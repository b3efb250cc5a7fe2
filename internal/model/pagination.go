package model

// SortOrder は並び順を表す。
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// UserSortField はユーザー一覧で指定可能なソートキー。
type UserSortField string

const (
	UserSortCreatedAt UserSortField = "createdAt"
	UserSortEmail     UserSortField = "email"
	UserSortRole      UserSortField = "role"
	UserSortStatus    UserSortField = "status"
)

// Valid は許可されたソートキーかどうかを返す。
func (f UserSortField) Valid() bool {
	switch f {
	case UserSortCreatedAt, UserSortEmail, UserSortRole, UserSortStatus:
		return true
	}
	return false
}

const (
	DefaultPage              = 1
	DefaultUserPageLimit     = 10
	DefaultSchedulePageLimit = 50
	MaxPageLimit             = 100
)

// PageRequest はページネーション指定。
type PageRequest struct {
	Page  int
	Limit int
}

// Normalize は未指定・範囲外の値を既定値で補正したコピーを返す。
func (p PageRequest) Normalize(defaultLimit int) PageRequest {
	if p.Page < 1 {
		p.Page = DefaultPage
	}
	if p.Limit < 1 {
		p.Limit = defaultLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return p
}

// Offset はSQLのOFFSETに相当する読み飛ばし件数を返す。
func (p PageRequest) Offset() int {
	return (p.Page - 1) * p.Limit
}

// PageMeta は一覧レスポンスに付与するページ情報。
type PageMeta struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

// UserFilter はユーザー一覧の絞り込み条件。
// 各フィールドは個別の述語に対応し、ゼロ値は条件に含めない。
type UserFilter struct {
	// SearchTerm はメールアドレスとプロフィール名に対する大文字小文字を区別しない部分一致。
	SearchTerm string
	Role       Role
	Status     UserStatus
	Email      string
}

// UserListOptions はユーザー一覧のページングと並び順。
type UserListOptions struct {
	PageRequest
	SortBy    UserSortField
	SortOrder SortOrder
}

// Normalize は既定値（createdAt desc, 1ページ10件）を補完する。
func (o UserListOptions) Normalize() UserListOptions {
	o.PageRequest = o.PageRequest.Normalize(DefaultUserPageLimit)
	if !o.SortBy.Valid() {
		o.SortBy = UserSortCreatedAt
	}
	if o.SortOrder != SortAsc && o.SortOrder != SortDesc {
		o.SortOrder = SortDesc
	}
	return o
}
