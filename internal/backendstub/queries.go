package backendstub

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

// ErrNotFound は対象の行が存在しないことを表す。
var ErrNotFound = errors.New("対象が見つかりません")

// ErrEmailTaken はメールアドレスが既に登録されていることを表す。
var ErrEmailTaken = errors.New("このメールアドレスは既に登録されています")

// 園児プロフィールの承認状態。
const (
	ChildPending  = "PENDING"
	ChildApproved = "APPROVED"
)

// User はusersテーブルの1行。
type User struct {
	ID           int64
	FullName     string
	Email        string
	PasswordHash string
	Role         string
	CreatedAt    string
}

// Child はchildrenテーブルの1行。
type Child struct {
	ID          int64  `json:"id"`
	ParentID    int64  `json:"parentId"`
	FullName    string `json:"fullName"`
	DateOfBirth string `json:"dateOfBirth"`
	Status      string `json:"status"`
	CreatedAt   string `json:"createdAt"`
}

// Appointment はappointmentsテーブルの1行。
type Appointment struct {
	ID          int64  `json:"id"`
	ParentID    int64  `json:"parentId"`
	ScheduledAt string `json:"scheduledAt"`
	Note        string `json:"note"`
	CreatedAt   string `json:"createdAt"`
}

// Queries はスタブが使うSQLをまとめたもの。
type Queries struct {
	db *sql.DB
}

// NewQueries はdbに対するクエリ実行オブジェクトを生成する。
func NewQueries(db *sql.DB) *Queries {
	return &Queries{db: db}
}

// CreateUserParams はCreateUserの引数。
type CreateUserParams struct {
	FullName     string
	Email        string
	PasswordHash string
	Role         string
}

// CreateUser はユーザーを作成し、採番されたIDを返す。
func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		"INSERT INTO users (full_name, email, password_hash, role) VALUES (?, ?, ?, ?)",
		arg.FullName, arg.Email, arg.PasswordHash, arg.Role,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrEmailTaken
		}
		return 0, err
	}
	return res.LastInsertId()
}

const selectUser = "SELECT id, full_name, email, password_hash, role, created_at FROM users"

// GetUserByEmail はメールアドレスでユーザーを取得する。
func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, selectUser+" WHERE email = ?", email))
}

// GetUserByID はIDでユーザーを取得する。
func (q *Queries) GetUserByID(ctx context.Context, id int64) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, selectUser+" WHERE id = ?", id))
}

func scanUser(row *sql.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.FullName, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

// CreateChildParams はCreateChildの引数。
type CreateChildParams struct {
	ParentID    int64
	FullName    string
	DateOfBirth string
}

// CreateChild は承認待ちの園児プロフィールを作成する。
func (q *Queries) CreateChild(ctx context.Context, arg CreateChildParams) (Child, error) {
	res, err := q.db.ExecContext(ctx,
		"INSERT INTO children (parent_id, full_name, date_of_birth, status) VALUES (?, ?, ?, ?)",
		arg.ParentID, arg.FullName, arg.DateOfBirth, ChildPending,
	)
	if err != nil {
		return Child{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Child{}, err
	}
	return q.GetChild(ctx, id)
}

const selectChild = "SELECT id, parent_id, full_name, date_of_birth, status, created_at FROM children"

// GetChild はIDで園児プロフィールを取得する。
func (q *Queries) GetChild(ctx context.Context, id int64) (Child, error) {
	var c Child
	err := q.db.QueryRowContext(ctx, selectChild+" WHERE id = ?", id).
		Scan(&c.ID, &c.ParentID, &c.FullName, &c.DateOfBirth, &c.Status, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Child{}, ErrNotFound
	}
	return c, err
}

// ListChildrenByParent は保護者が登録した園児プロフィールを新しい順に返す。
func (q *Queries) ListChildrenByParent(ctx context.Context, parentID int64) ([]Child, error) {
	return q.listChildren(ctx, selectChild+" WHERE parent_id = ? ORDER BY id DESC", parentID)
}

// ListChildren は全ての園児プロフィールを新しい順に返す。
func (q *Queries) ListChildren(ctx context.Context) ([]Child, error) {
	return q.listChildren(ctx, selectChild+" ORDER BY id DESC")
}

func (q *Queries) listChildren(ctx context.Context, query string, args ...any) ([]Child, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	children := make([]Child, 0)
	for rows.Next() {
		var c Child
		if err := rows.Scan(&c.ID, &c.ParentID, &c.FullName, &c.DateOfBirth, &c.Status, &c.CreatedAt); err != nil {
			return nil, err
		}
		children = append(children, c)
	}
	return children, rows.Err()
}

// ApproveChild は園児プロフィールを承認済みにする。既に承認済みでもエラーにしない。
func (q *Queries) ApproveChild(ctx context.Context, id int64) (Child, error) {
	res, err := q.db.ExecContext(ctx, "UPDATE children SET status = ? WHERE id = ?", ChildApproved, id)
	if err != nil {
		return Child{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Child{}, err
	}
	if n == 0 {
		return Child{}, ErrNotFound
	}
	return q.GetChild(ctx, id)
}

// CreateAppointmentParams はCreateAppointmentの引数。
type CreateAppointmentParams struct {
	ParentID    int64
	ScheduledAt string
	Note        string
}

// CreateAppointment は見学予約を作成する。
func (q *Queries) CreateAppointment(ctx context.Context, arg CreateAppointmentParams) (Appointment, error) {
	res, err := q.db.ExecContext(ctx,
		"INSERT INTO appointments (parent_id, scheduled_at, note) VALUES (?, ?, ?)",
		arg.ParentID, arg.ScheduledAt, arg.Note,
	)
	if err != nil {
		return Appointment{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Appointment{}, err
	}

	var a Appointment
	err = q.db.QueryRowContext(ctx, selectAppointment+" WHERE id = ?", id).
		Scan(&a.ID, &a.ParentID, &a.ScheduledAt, &a.Note, &a.CreatedAt)
	return a, err
}

const selectAppointment = "SELECT id, parent_id, scheduled_at, note, created_at FROM appointments"

// ListAppointmentsByParent は保護者の見学予約を日時順に返す。
func (q *Queries) ListAppointmentsByParent(ctx context.Context, parentID int64) ([]Appointment, error) {
	return q.listAppointments(ctx, selectAppointment+" WHERE parent_id = ? ORDER BY scheduled_at", parentID)
}

// ListAppointments は全ての見学予約を日時順に返す。
func (q *Queries) ListAppointments(ctx context.Context) ([]Appointment, error) {
	return q.listAppointments(ctx, selectAppointment+" ORDER BY scheduled_at")
}

func (q *Queries) listAppointments(ctx context.Context, query string, args ...any) ([]Appointment, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	appointments := make([]Appointment, 0)
	for rows.Next() {
		var a Appointment
		if err := rows.Scan(&a.ID, &a.ParentID, &a.ScheduledAt, &a.Note, &a.CreatedAt); err != nil {
			return nil, err
		}
		appointments = append(appointments, a)
	}
	return appointments, rows.Err()
}

// isUniqueViolation はSQLiteの一意制約違反かどうかを判定する。
func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
