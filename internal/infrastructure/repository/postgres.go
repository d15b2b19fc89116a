package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hilthontt/chorus/internal/domain"
	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed schema.sql
var schema string

func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetConnMaxIdleTime(5 * time.Minute)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxIdleConns(10)
	db.SetMaxOpenConns(20)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

// Migrate creates the schema. Every statement is idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// PostgresStore serves membership, channel and message lookups from
// Postgres.
type PostgresStore struct {
	db *sql.DB
}

var (
	_ domain.MembershipRepository = (*PostgresStore)(nil)
	_ domain.ChannelDirectory     = (*PostgresStore)(nil)
	_ domain.MessageRepository    = (*PostgresStore)(nil)
	_ Seeder                      = (*PostgresStore)(nil)
)

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) AddSpace(ctx context.Context, spaceID, name string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO spaces (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
	`, spaceID, name)
	if err != nil {
		return fmt.Errorf("upsert space: %w", err)
	}
	return nil
}

func (s *PostgresStore) AddChannel(ctx context.Context, spaceID, channelID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO channels (id, space_id) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET space_id = EXCLUDED.space_id
	`, channelID, spaceID)
	if err != nil {
		return fmt.Errorf("upsert channel: %w", err)
	}
	return nil
}

func (s *PostgresStore) AddRole(ctx context.Context, role domain.Role) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO roles (id, space_id, name, permissions, position) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, permissions = EXCLUDED.permissions, position = EXCLUDED.position
	`, role.ID, role.SpaceID, role.Name, int64(role.Permissions), role.Position)
	if err != nil {
		return fmt.Errorf("upsert role: %w", err)
	}
	return nil
}

func (s *PostgresStore) AddMember(ctx context.Context, spaceID, userID string, roleIDs ...string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin add member: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO members (space_id, user_id) VALUES ($1, $2)
		ON CONFLICT (space_id, user_id) DO NOTHING
	`, spaceID, userID); err != nil {
		return fmt.Errorf("insert member: %w", err)
	}
	for _, roleID := range roleIDs {
		if err := assignRole(ctx, tx, spaceID, userID, roleID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) FindMember(ctx context.Context, spaceID, userID string) (*domain.Member, error) {
	m := domain.Member{SpaceID: spaceID, UserID: userID}
	err := s.db.QueryRowContext(ctx,
		`SELECT joined_at FROM members WHERE space_id = $1 AND user_id = $2`,
		spaceID, userID,
	).Scan(&m.JoinedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrMemberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find member: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT role_id FROM member_roles WHERE space_id = $1 AND user_id = $2 ORDER BY role_id`,
		spaceID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list member roles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan member role: %w", err)
		}
		m.RoleIDs = append(m.RoleIDs, id)
	}
	return &m, rows.Err()
}

// RolesForMember includes the space's default role, whose ID equals the
// space ID.
func (s *PostgresStore) RolesForMember(ctx context.Context, spaceID, userID string) ([]domain.Role, error) {
	if _, err := s.FindMember(ctx, spaceID, userID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.space_id, r.name, r.permissions, r.position
		FROM roles r
		WHERE r.space_id = $1
			AND (r.id = $1 OR r.id IN (
				SELECT role_id FROM member_roles WHERE space_id = $1 AND user_id = $2
			))
		ORDER BY r.position, r.id
	`, spaceID, userID)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer rows.Close()

	var roles []domain.Role
	for rows.Next() {
		var (
			r     domain.Role
			perms int64
		)
		if err := rows.Scan(&r.ID, &r.SpaceID, &r.Name, &perms, &r.Position); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		r.Permissions = domain.Permission(perms)
		roles = append(roles, r)
	}
	return roles, rows.Err()
}

func (s *PostgresStore) FindRole(ctx context.Context, spaceID, roleID string) (*domain.Role, error) {
	var (
		r     domain.Role
		perms int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, space_id, name, permissions, position FROM roles WHERE space_id = $1 AND id = $2`,
		spaceID, roleID,
	).Scan(&r.ID, &r.SpaceID, &r.Name, &perms, &r.Position)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrRoleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find role: %w", err)
	}
	r.Permissions = domain.Permission(perms)
	return &r, nil
}

func (s *PostgresStore) SpacesForUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT space_id FROM members WHERE user_id = $1 ORDER BY space_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list spaces: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan space: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStore) AssignRole(ctx context.Context, spaceID, userID, roleID string) error {
	if _, err := s.FindMember(ctx, spaceID, userID); err != nil {
		return err
	}
	return assignRole(ctx, s.db, spaceID, userID, roleID)
}

type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func assignRole(ctx context.Context, q execQuerier, spaceID, userID, roleID string) error {
	var exists bool
	if err := q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM roles WHERE id = $1 AND space_id = $2)`,
		roleID, spaceID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("check role: %w", err)
	}
	if !exists {
		return domain.ErrRoleNotFound
	}

	if _, err := q.ExecContext(ctx, `
		INSERT INTO member_roles (space_id, user_id, role_id) VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`, spaceID, userID, roleID); err != nil {
		return fmt.Errorf("assign role: %w", err)
	}
	return nil
}

func (s *PostgresStore) RemoveMember(ctx context.Context, spaceID, userID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM members WHERE space_id = $1 AND user_id = $2`, spaceID, userID)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrMemberNotFound
	}
	return nil
}

func (s *PostgresStore) SpaceOfChannel(ctx context.Context, channelID string) (string, error) {
	var spaceID string
	err := s.db.QueryRowContext(ctx, `SELECT space_id FROM channels WHERE id = $1`, channelID).Scan(&spaceID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.ErrChannelNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup channel: %w", err)
	}
	return spaceID, nil
}

func (s *PostgresStore) Create(ctx context.Context, message *domain.Message) error {
	if message == nil || message.ID == "" || message.ChannelID == "" {
		return domain.ErrInvalidInput
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}

	mentions, err := json.Marshal(nonNil(message.Mentions))
	if err != nil {
		return fmt.Errorf("encode mentions: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages (id, space_id, channel_id, author_id, content, mentions, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, message.ID, message.SpaceID, message.ChannelID, message.AuthorID, message.Content, string(mentions), message.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetByID(ctx context.Context, channelID, messageID string) (*domain.Message, error) {
	var (
		m        domain.Message
		mentions []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, space_id, channel_id, author_id, content, mentions, created_at
		FROM messages WHERE channel_id = $1 AND id = $2
	`, channelID, messageID).Scan(&m.ID, &m.SpaceID, &m.ChannelID, &m.AuthorID, &m.Content, &mentions, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	if err := json.Unmarshal(mentions, &m.Mentions); err != nil {
		return nil, fmt.Errorf("decode mentions: %w", err)
	}
	if len(m.Mentions) == 0 {
		m.Mentions = nil
	}
	return &m, nil
}

func (s *PostgresStore) Delete(ctx context.Context, message *domain.Message) error {
	if message == nil || message.ID == "" || message.ChannelID == "" {
		return domain.ErrInvalidInput
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM messages WHERE channel_id = $1 AND id = $2`,
		message.ChannelID, message.ID,
	); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
