package repo

import (
	"context"
	"database/sql"

	"ideaforge/internal/domain"
)

// ListFilters narrows list queries. Zero values match everything.
type ListFilters struct {
	Owner       domain.Principal
	ChallengeID int64
	Status      string
	AfterID     int64
	Limit       int
}

func (f ListFilters) page(clauses []string, args []any) (string, []any) {
	if f.AfterID > 0 {
		clauses = append(clauses, "id>?")
		args = append(args, f.AfterID)
	}
	q := where(clauses) + " ORDER BY id ASC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}
	return q, args
}

// --- evaluations ---

func (r Repo) UpsertEvaluation(ctx context.Context, tx *sql.Tx, ev domain.Evaluation) error {
	_, err := r.conn(tx).ExecContext(ctx, `INSERT INTO evaluations(idea_id,score,feedback,evaluator,updated_at) VALUES (?,?,?,?,?)
ON CONFLICT(idea_id) DO UPDATE SET score=excluded.score, feedback=excluded.feedback, evaluator=excluded.evaluator, updated_at=excluded.updated_at`,
		ev.IdeaID, ev.Score, ev.Feedback, string(ev.Evaluator), ev.UpdatedAt)
	return err
}

func (r Repo) GetEvaluation(ctx context.Context, tx *sql.Tx, ideaID int64) (domain.Evaluation, error) {
	var ev domain.Evaluation
	var evaluator string
	err := r.conn(tx).QueryRowContext(ctx, `SELECT idea_id,score,feedback,evaluator,updated_at FROM evaluations WHERE idea_id=?`, ideaID).
		Scan(&ev.IdeaID, &ev.Score, &ev.Feedback, &evaluator, &ev.UpdatedAt)
	if err == sql.ErrNoRows {
		return ev, ErrNotFound
	}
	ev.Evaluator = domain.Principal(evaluator)
	return ev, err
}

func (r Repo) ListEvaluations(ctx context.Context, f ListFilters) ([]domain.Evaluation, error) {
	var clauses []string
	var args []any
	if f.AfterID > 0 {
		clauses = append(clauses, "idea_id>?")
		args = append(args, f.AfterID)
	}
	query := `SELECT idea_id,score,feedback,evaluator,updated_at FROM evaluations` + where(clauses) + ` ORDER BY idea_id ASC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Evaluation
	for rows.Next() {
		var ev domain.Evaluation
		var evaluator string
		if err := rows.Scan(&ev.IdeaID, &ev.Score, &ev.Feedback, &evaluator, &ev.UpdatedAt); err != nil {
			return nil, err
		}
		ev.Evaluator = domain.Principal(evaluator)
		res = append(res, ev)
	}
	return res, rows.Err()
}

// --- challenges ---

func (r Repo) InsertChallenge(ctx context.Context, tx *sql.Tx, c domain.Challenge) error {
	_, err := r.conn(tx).ExecContext(ctx, `INSERT INTO challenges(id,creator,title,description,reward,status,created_at,closed_at) VALUES (?,?,?,?,?,?,?,?)`,
		c.ID, string(c.Creator), c.Title, c.Description, c.Reward, string(c.Status), c.CreatedAt, nullableStringPtr(c.ClosedAt))
	return err
}

func scanChallenge(scan func(dest ...any) error) (domain.Challenge, error) {
	var c domain.Challenge
	var creator, status string
	var closedAt sql.NullString
	if err := scan(&c.ID, &creator, &c.Title, &c.Description, &c.Reward, &status, &c.CreatedAt, &closedAt); err != nil {
		return c, err
	}
	c.Creator = domain.Principal(creator)
	c.Status = domain.ChallengeStatus(status)
	c.ClosedAt = optionalString(closedAt)
	return c, nil
}

const challengeColumns = `id,creator,title,description,reward,status,created_at,closed_at`

func (r Repo) GetChallenge(ctx context.Context, tx *sql.Tx, id int64) (domain.Challenge, error) {
	c, err := scanChallenge(r.conn(tx).QueryRowContext(ctx, `SELECT `+challengeColumns+` FROM challenges WHERE id=?`, id).Scan)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

// UpdateChallengeStatus touches only status and closed_at.
func (r Repo) UpdateChallengeStatus(ctx context.Context, tx *sql.Tx, id int64, status domain.ChallengeStatus, closedAt *string) error {
	res, err := r.conn(tx).ExecContext(ctx, `UPDATE challenges SET status=?, closed_at=? WHERE id=?`, string(status), nullableStringPtr(closedAt), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListChallenges(ctx context.Context, f ListFilters) ([]domain.Challenge, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	tail, args := f.page(clauses, args)
	rows, err := r.DB.QueryContext(ctx, `SELECT `+challengeColumns+` FROM challenges`+tail, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Challenge
	for rows.Next() {
		c, err := scanChallenge(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// --- tokens ---

func (r Repo) InsertToken(ctx context.Context, tx *sql.Tx, t domain.Token) error {
	_, err := r.conn(tx).ExecContext(ctx, `INSERT INTO tokens(id,owner,uri,minted_at,updated_at) VALUES (?,?,?,?,?)`,
		t.ID, string(t.Owner), t.URI, t.MintedAt, t.UpdatedAt)
	return err
}

func (r Repo) GetToken(ctx context.Context, tx *sql.Tx, id int64) (domain.Token, error) {
	var t domain.Token
	var owner string
	err := r.conn(tx).QueryRowContext(ctx, `SELECT id,owner,uri,minted_at,updated_at FROM tokens WHERE id=?`, id).
		Scan(&t.ID, &owner, &t.URI, &t.MintedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	t.Owner = domain.Principal(owner)
	return t, err
}

// UpdateTokenOwner never touches the URI column.
func (r Repo) UpdateTokenOwner(ctx context.Context, tx *sql.Tx, id int64, owner domain.Principal, now string) error {
	res, err := r.conn(tx).ExecContext(ctx, `UPDATE tokens SET owner=?, updated_at=? WHERE id=?`, string(owner), now, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListTokens(ctx context.Context, f ListFilters) ([]domain.Token, error) {
	var clauses []string
	var args []any
	if f.Owner != "" {
		clauses = append(clauses, "owner=?")
		args = append(args, string(f.Owner))
	}
	tail, args := f.page(clauses, args)
	rows, err := r.DB.QueryContext(ctx, `SELECT id,owner,uri,minted_at,updated_at FROM tokens`+tail, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Token
	for rows.Next() {
		var t domain.Token
		var owner string
		if err := rows.Scan(&t.ID, &owner, &t.URI, &t.MintedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		t.Owner = domain.Principal(owner)
		res = append(res, t)
	}
	return res, rows.Err()
}

// --- submissions ---

func (r Repo) InsertSubmission(ctx context.Context, tx *sql.Tx, s domain.Submission) error {
	_, err := r.conn(tx).ExecContext(ctx, `INSERT INTO submissions(id,challenge_id,submitter,content,status,created_at,evaluated_at) VALUES (?,?,?,?,?,?,?)`,
		s.ID, s.ChallengeID, string(s.Submitter), s.Content, string(s.Status), s.CreatedAt, nullableStringPtr(s.EvaluatedAt))
	return err
}

const submissionColumns = `id,challenge_id,submitter,content,status,created_at,evaluated_at`

func scanSubmission(scan func(dest ...any) error) (domain.Submission, error) {
	var s domain.Submission
	var submitter, status string
	var evaluatedAt sql.NullString
	if err := scan(&s.ID, &s.ChallengeID, &submitter, &s.Content, &status, &s.CreatedAt, &evaluatedAt); err != nil {
		return s, err
	}
	s.Submitter = domain.Principal(submitter)
	s.Status = domain.SubmissionStatus(status)
	s.EvaluatedAt = optionalString(evaluatedAt)
	return s, nil
}

func (r Repo) GetSubmission(ctx context.Context, tx *sql.Tx, id int64) (domain.Submission, error) {
	s, err := scanSubmission(r.conn(tx).QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id=?`, id).Scan)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	return s, err
}

func (r Repo) UpdateSubmissionStatus(ctx context.Context, tx *sql.Tx, id int64, status domain.SubmissionStatus, evaluatedAt *string) error {
	res, err := r.conn(tx).ExecContext(ctx, `UPDATE submissions SET status=?, evaluated_at=? WHERE id=?`, string(status), nullableStringPtr(evaluatedAt), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListSubmissions(ctx context.Context, f ListFilters) ([]domain.Submission, error) {
	var clauses []string
	var args []any
	if f.ChallengeID > 0 {
		clauses = append(clauses, "challenge_id=?")
		args = append(args, f.ChallengeID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	tail, args := f.page(clauses, args)
	rows, err := r.DB.QueryContext(ctx, `SELECT `+submissionColumns+` FROM submissions`+tail, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Submission
	for rows.Next() {
		s, err := scanSubmission(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}
