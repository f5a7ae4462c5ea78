package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/studygroup-stats/internal/domain/privacy"
)

// ══════════════════════════════════════════════════════════════════════════════
// SHARE POLICY REPOSITORY
// Visibility, display preferences and partners are JSONB columns of one row per
// (user, group). Updates lock the row with SELECT ... FOR UPDATE.
// ══════════════════════════════════════════════════════════════════════════════

// SharePolicyRepository implements privacy.PolicyRepository for PostgreSQL.
type SharePolicyRepository struct {
	conn *Connection
	now  func() time.Time
}

// NewSharePolicyRepository creates a new SharePolicyRepository.
func NewSharePolicyRepository(conn *Connection, now func() time.Time) *SharePolicyRepository {
	if now == nil {
		now = time.Now
	}
	return &SharePolicyRepository{conn: conn, now: now}
}

const policyColumns = `user_id, group_id, visibility, display_prefs, partners, created_at, updated_at`

// Get returns the policy or privacy.ErrPolicyNotFound.
func (r *SharePolicyRepository) Get(ctx context.Context, userID, groupID string) (*privacy.SharePolicy, error) {
	row := r.conn.QueryRow(ctx,
		`SELECT `+policyColumns+` FROM share_policies WHERE user_id = $1 AND group_id = $2`,
		userID, groupID)
	p, err := scanPolicy(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, privacy.ErrPolicyNotFound
		}
		return nil, fmt.Errorf("failed to get share policy: %w", err)
	}
	return p, nil
}

// GetOrCreate returns the policy, inserting defaults first if needed.
func (r *SharePolicyRepository) GetOrCreate(ctx context.Context, userID, groupID string) (*privacy.SharePolicy, error) {
	if err := r.insertDefault(ctx, r.conn, userID, groupID); err != nil {
		return nil, err
	}
	return r.Get(ctx, userID, groupID)
}

// Update locks the row, applies fn and writes the result in one transaction.
// If fn fails, the transaction is rolled back and fn's error is returned.
func (r *SharePolicyRepository) Update(ctx context.Context, userID, groupID string, fn privacy.MutateFunc) (*privacy.SharePolicy, error) {
	var result *privacy.SharePolicy

	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if err := r.insertDefault(ctx, tx, userID, groupID); err != nil {
			return err
		}

		row := tx.QueryRow(ctx,
			`SELECT `+policyColumns+` FROM share_policies WHERE user_id = $1 AND group_id = $2 FOR UPDATE`,
			userID, groupID)
		policy, err := scanPolicy(row)
		if err != nil {
			return fmt.Errorf("failed to lock share policy: %w", err)
		}

		if err := fn(policy); err != nil {
			return err
		}

		vis, prefs, partners, err := marshalPolicy(policy)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			UPDATE share_policies
			SET visibility = $3, display_prefs = $4, partners = $5, updated_at = $6
			WHERE user_id = $1 AND group_id = $2
		`, userID, groupID, vis, prefs, partners, policy.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to update share policy: %w", err)
		}

		result = policy
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListByGroup returns existing policies of the given users in the group.
func (r *SharePolicyRepository) ListByGroup(ctx context.Context, groupID string, userIDs []string) (map[string]*privacy.SharePolicy, error) {
	out := make(map[string]*privacy.SharePolicy, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	rows, err := r.conn.Query(ctx,
		`SELECT `+policyColumns+` FROM share_policies WHERE group_id = $1 AND user_id = ANY($2)`,
		groupID, userIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list share policies: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan share policy: %w", err)
		}
		out[p.UserID] = p
	}
	return out, rows.Err()
}

// ListIncoming returns policies in the group holding a pending entry for partnerID.
func (r *SharePolicyRepository) ListIncoming(ctx context.Context, groupID, partnerID string) ([]*privacy.SharePolicy, error) {
	filter, err := incomingFilter(partnerID)
	if err != nil {
		return nil, err
	}

	rows, err := r.conn.Query(ctx,
		`SELECT `+policyColumns+` FROM share_policies
		 WHERE group_id = $1 AND partners @> $2::jsonb
		 ORDER BY user_id`,
		groupID, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list incoming requests: %w", err)
	}
	defer rows.Close()

	out := make([]*privacy.SharePolicy, 0)
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan share policy: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func (r *SharePolicyRepository) insertDefault(ctx context.Context, q Querier, userID, groupID string) error {
	policy := privacy.NewDefaultPolicy(userID, groupID, r.now())
	vis, prefs, partners, err := marshalPolicy(policy)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, `
		INSERT INTO share_policies (user_id, group_id, visibility, display_prefs, partners, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (user_id, group_id) DO NOTHING
	`, userID, groupID, vis, prefs, partners, policy.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create share policy: %w", err)
	}
	return nil
}

// incomingFilter is the JSONB document matched with @> against the partners
// column: a one-element array holding a pending entry for partnerID.
func incomingFilter(partnerID string) ([]byte, error) {
	return json.Marshal([]map[string]string{{
		"partnerUserId": partnerID,
		"status":        string(privacy.PartnerStatusPending),
	}})
}

func marshalPolicy(p *privacy.SharePolicy) (vis, prefs, partners []byte, err error) {
	if vis, err = json.Marshal(p.Visibility); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal visibility: %w", err)
	}
	if prefs, err = json.Marshal(p.DisplayPreferences); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal display preferences: %w", err)
	}
	list := p.Partners
	if list == nil {
		list = []privacy.Partner{}
	}
	if partners, err = json.Marshal(list); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal partners: %w", err)
	}
	return vis, prefs, partners, nil
}

func scanPolicy(row pgx.Row) (*privacy.SharePolicy, error) {
	var (
		p                    privacy.SharePolicy
		vis, prefs, partners []byte
	)
	if err := row.Scan(&p.UserID, &p.GroupID, &vis, &prefs, &partners, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(vis, &p.Visibility); err != nil {
		return nil, fmt.Errorf("failed to unmarshal visibility: %w", err)
	}
	p.DisplayPreferences = privacy.DefaultDisplayPreferences()
	if err := json.Unmarshal(prefs, &p.DisplayPreferences); err != nil {
		return nil, fmt.Errorf("failed to unmarshal display preferences: %w", err)
	}
	if err := json.Unmarshal(partners, &p.Partners); err != nil {
		return nil, fmt.Errorf("failed to unmarshal partners: %w", err)
	}
	if p.Partners == nil {
		p.Partners = []privacy.Partner{}
	}
	return &p, nil
}
