package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/canvashq/canvas/internal/model"
)

// ErrDuplicateVote is returned when the (proposal, account) uniqueness
// constraint rejects a second vote. The voting engine maps it to its
// caller-facing error.
var ErrDuplicateVote = errors.New("duplicate vote")

type ProposalStore struct {
	db *sql.DB
}

func NewProposalStore(db *sql.DB) *ProposalStore {
	return &ProposalStore{db: db}
}

const proposalCols = `id, title, description, status, creator_id, voting_start_at, voting_end_at, min_points_to_vote, support_weight, oppose_weight, created_at, updated_at`

func scanProposal(scanner interface{ Scan(...any) error }) (*model.Proposal, error) {
	var p model.Proposal
	var minPoints string

	err := scanner.Scan(&p.ID, &p.Title, &p.Description, &p.Status, &p.CreatorID,
		&p.VotingStartAt, &p.VotingEndAt, &minPoints, &p.SupportWeight, &p.OpposeWeight,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if p.MinPointsToVote, err = decimal.NewFromString(minPoints); err != nil {
		return nil, fmt.Errorf("parse min points to vote: %w", err)
	}
	return &p, nil
}

func (s *ProposalStore) Create(title, description string, creatorID int64, votingStart, votingEnd time.Time, minPointsToVote decimal.Decimal) (*model.Proposal, error) {
	result, err := s.db.Exec(
		`INSERT INTO proposals (title, description, creator_id, voting_start_at, voting_end_at, min_points_to_vote) VALUES (?, ?, ?, ?, ?, ?)`,
		title, description, creatorID, votingStart.UTC(), votingEnd.UTC(), minPointsToVote.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert proposal: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *ProposalStore) GetByID(id int64) (*model.Proposal, error) {
	row := s.db.QueryRow(`SELECT `+proposalCols+` FROM proposals WHERE id = ?`, id)
	p, err := scanProposal(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get proposal: %w", err)
	}
	return p, nil
}

func (s *ProposalStore) GetByIDTx(tx *sql.Tx, id int64) (*model.Proposal, error) {
	row := tx.QueryRow(`SELECT `+proposalCols+` FROM proposals WHERE id = ?`, id)
	p, err := scanProposal(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get proposal: %w", err)
	}
	return p, nil
}

func (s *ProposalStore) List(status *model.ProposalStatus) ([]model.Proposal, error) {
	query := `SELECT ` + proposalCols + ` FROM proposals`
	var args []any
	if status != nil {
		query += ` WHERE status = ?`
		args = append(args, string(*status))
	}
	query += ` ORDER BY id DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list proposals: %w", err)
	}
	defer rows.Close()

	var proposals []model.Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan proposal: %w", err)
		}
		proposals = append(proposals, *p)
	}
	return proposals, rows.Err()
}

// SetStatus moves a proposal through its lifecycle. Legal transitions are
// enforced by the governance engine.
func (s *ProposalStore) SetStatus(id int64, status model.ProposalStatus) error {
	res, err := s.db.Exec(
		`UPDATE proposals SET status = ?, updated_at = datetime('now') WHERE id = ?`,
		string(status), id,
	)
	if err != nil {
		return fmt.Errorf("set proposal status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("set proposal status: no proposal with id %d", id)
	}
	return nil
}

// --- Vote methods ---

const voteCols = `id, proposal_id, account_id, position, vote_strength, points_cost, justification, created_at`

func scanVote(scanner interface{ Scan(...any) error }) (*model.ProposalVote, error) {
	var v model.ProposalVote
	var cost string

	err := scanner.Scan(&v.ID, &v.ProposalID, &v.AccountID, &v.Position, &v.Strength, &cost, &v.Justification, &v.CreatedAt)
	if err != nil {
		return nil, err
	}

	if v.PointsCost, err = decimal.NewFromString(cost); err != nil {
		return nil, fmt.Errorf("parse points cost: %w", err)
	}
	return &v, nil
}

// InsertVoteTx records a vote. The UNIQUE(proposal_id, account_id) index
// guarantees at most one vote per account, so there is no check-then-act
// race; a constraint hit surfaces as ErrDuplicateVote.
func (s *ProposalStore) InsertVoteTx(tx *sql.Tx, v model.ProposalVote) (*model.ProposalVote, error) {
	result, err := tx.Exec(
		`INSERT INTO proposal_votes (proposal_id, account_id, position, vote_strength, points_cost, justification) VALUES (?, ?, ?, ?, ?, ?)`,
		v.ProposalID, v.AccountID, string(v.Position), v.Strength, v.PointsCost.String(), v.Justification,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateVote
		}
		return nil, fmt.Errorf("insert vote: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	row := tx.QueryRow(`SELECT `+voteCols+` FROM proposal_votes WHERE id = ?`, id)
	vote, err := scanVote(row)
	if err != nil {
		return nil, fmt.Errorf("read back vote: %w", err)
	}
	return vote, nil
}

// AddTallyTx adds a vote's weight to the proposal's aggregate, in the same
// transaction as the vote insert and the ledger debit.
func (s *ProposalStore) AddTallyTx(tx *sql.Tx, proposalID int64, position model.VotePosition, weight int64) error {
	column := "support_weight"
	if position == model.VoteAgainst {
		column = "oppose_weight"
	}
	_, err := tx.Exec(
		`UPDATE proposals SET `+column+` = `+column+` + ?, updated_at = datetime('now') WHERE id = ?`,
		weight, proposalID,
	)
	if err != nil {
		return fmt.Errorf("add tally: %w", err)
	}
	return nil
}

func (s *ProposalStore) GetVote(proposalID, accountID int64) (*model.ProposalVote, error) {
	row := s.db.QueryRow(
		`SELECT `+voteCols+` FROM proposal_votes WHERE proposal_id = ? AND account_id = ?`,
		proposalID, accountID,
	)
	v, err := scanVote(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get vote: %w", err)
	}
	return v, nil
}

// Tally returns the aggregate weighted result for a proposal.
func (s *ProposalStore) Tally(proposalID int64) (*model.ProposalTally, error) {
	p, err := s.GetByID(proposalID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, nil
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM proposal_votes WHERE proposal_id = ?`, proposalID).Scan(&count); err != nil {
		return nil, fmt.Errorf("count votes: %w", err)
	}

	return &model.ProposalTally{
		ProposalID:    proposalID,
		SupportWeight: p.SupportWeight,
		OpposeWeight:  p.OpposeWeight,
		VoteCount:     count,
	}, nil
}

func (s *ProposalStore) ListVotes(proposalID int64) ([]model.ProposalVote, error) {
	rows, err := s.db.Query(
		`SELECT `+voteCols+` FROM proposal_votes WHERE proposal_id = ? ORDER BY id ASC`,
		proposalID,
	)
	if err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	defer rows.Close()

	var votes []model.ProposalVote
	for rows.Next() {
		v, err := scanVote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		votes = append(votes, *v)
	}
	return votes, rows.Err()
}
