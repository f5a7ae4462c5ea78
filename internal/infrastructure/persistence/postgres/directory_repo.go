package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/studygroup-stats/internal/domain/group"
)

// ══════════════════════════════════════════════════════════════════════════════
// DIRECTORY REPOSITORY
// Read-only access to groups, members, sessions and profiles owned by the
// study platform. Implements group.MembershipSource, group.SessionSource and
// group.ProfileSource.
// ══════════════════════════════════════════════════════════════════════════════

// DirectoryRepository reads the study platform tables.
type DirectoryRepository struct {
	conn *Connection
}

// NewDirectoryRepository creates a new DirectoryRepository.
func NewDirectoryRepository(conn *Connection) *DirectoryRepository {
	return &DirectoryRepository{conn: conn}
}

// GetGroup returns the group or group.ErrGroupNotFound.
func (r *DirectoryRepository) GetGroup(ctx context.Context, groupID string) (*group.Group, error) {
	var g group.Group
	err := r.conn.QueryRow(ctx,
		`SELECT id, name, created_at FROM groups WHERE id = $1`, groupID,
	).Scan(&g.ID, &g.Name, &g.CreatedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, group.ErrGroupNotFound
		}
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return &g, nil
}

// ListActiveMembers returns active members ordered by join time, then user id.
func (r *DirectoryRepository) ListActiveMembers(ctx context.Context, groupID string) ([]group.Member, error) {
	if _, err := r.GetGroup(ctx, groupID); err != nil {
		return nil, err
	}

	query := `
		SELECT group_id, user_id, role, status, joined_at
		FROM group_members
		WHERE group_id = $1 AND status = 'active'
		ORDER BY joined_at, user_id
	`
	rows, err := r.conn.Query(ctx, query, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	members := make([]group.Member, 0)
	for rows.Next() {
		var (
			m      group.Member
			status string
		)
		if err := rows.Scan(&m.GroupID, &m.UserID, &m.Role, &status, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		m.Status = group.MemberStatus(status)
		members = append(members, m)
	}
	return members, rows.Err()
}

// IsActiveMember reports whether userID is an active member of the group.
func (r *DirectoryRepository) IsActiveMember(ctx context.Context, groupID, userID string) (bool, error) {
	var exists bool
	err := r.conn.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM group_members WHERE group_id = $1 AND user_id = $2 AND status = 'active')`,
		groupID, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return exists, nil
}

// ListSessions returns sessions of userIDs started in [from, to).
func (r *DirectoryRepository) ListSessions(ctx context.Context, userIDs []string, from, to time.Time) ([]group.Session, error) {
	sessions := make([]group.Session, 0)
	if len(userIDs) == 0 {
		return sessions, nil
	}

	query := `
		SELECT id, user_id, subject, duration_minutes, productivity_score, started_at
		FROM study_sessions
		WHERE user_id = ANY($1) AND started_at >= $2 AND started_at < $3
		ORDER BY started_at, id
	`
	rows, err := r.conn.Query(ctx, query, userIDs, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s group.Session
		if err := rows.Scan(&s.ID, &s.UserID, &s.Subject, &s.DurationMinutes, &s.ProductivityScore, &s.StartedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// GetProfiles returns the profiles that exist among userIDs.
func (r *DirectoryRepository) GetProfiles(ctx context.Context, userIDs []string) (map[string]group.Profile, error) {
	profiles := make(map[string]group.Profile, len(userIDs))
	if len(userIDs) == 0 {
		return profiles, nil
	}

	query := `
		SELECT user_id, display_name, avatar_url, current_streak, goals_completed
		FROM member_profiles
		WHERE user_id = ANY($1)
	`
	rows, err := r.conn.Query(ctx, query, userIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to get profiles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p group.Profile
		if err := rows.Scan(&p.UserID, &p.DisplayName, &p.AvatarURL, &p.CurrentStreak, &p.GoalsCompleted); err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles[p.UserID] = p
	}
	return profiles, rows.Err()
}
