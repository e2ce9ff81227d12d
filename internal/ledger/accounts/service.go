package accounts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/meridian-erp/meridian/internal/ledger/shared"
)

// Service implements the account registry: chart-of-accounts maintenance and
// balance computation.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// WithNow overrides the clock, for tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]Account, error) {
	return s.repo.List(ctx, filter)
}

func (s *Service) Get(ctx context.Context, id int64) (Account, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) GetByCode(ctx context.Context, code string) (Account, error) {
	return s.repo.GetByCode(ctx, code)
}

// Create inserts a new account after checking code uniqueness and parent/type
// consistency. A child account must carry the same type as its parent.
func (s *Service) Create(ctx context.Context, in CreateInput) (Account, error) {
	if err := in.Validate(); err != nil {
		return Account{}, err
	}
	var created Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetByCode(ctx, in.Code); err == nil {
			return fmt.Errorf("account code %q already in use: %w", in.Code, shared.ErrValidation)
		} else if !errors.Is(err, shared.ErrNotFound) {
			return err
		}
		if in.ParentID != nil {
			parent, err := tx.GetForUpdate(ctx, *in.ParentID)
			if err != nil {
				if errors.Is(err, shared.ErrNotFound) {
					return fmt.Errorf("parent account %d not found: %w", *in.ParentID, shared.ErrValidation)
				}
				return err
			}
			if parent.Type != in.Type {
				return fmt.Errorf("parent account %s is %s, child must match: %w", parent.Code, parent.Type, shared.ErrValidation)
			}
		}
		acc, err := tx.Insert(ctx, in)
		if err != nil {
			return err
		}
		created = acc
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	return created, nil
}

// Update applies mutable fields. Reparenting is rejected when it would create a
// cycle or cross account types.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (Account, error) {
	var updated Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		acc, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if in.Name != nil {
			if *in.Name == "" {
				return fmt.Errorf("account name required: %w", shared.ErrValidation)
			}
			acc.Name = *in.Name
		}
		if in.Subtype != nil {
			if !SubtypeAllowed(acc.Type, *in.Subtype) {
				return fmt.Errorf("subtype %q not allowed for type %s: %w", *in.Subtype, acc.Type, shared.ErrValidation)
			}
			acc.Subtype = *in.Subtype
		}
		if in.Reparent {
			if err := s.checkReparent(ctx, tx, acc, in.ParentID); err != nil {
				return err
			}
			acc.ParentID = in.ParentID
		}
		if in.IsActive != nil {
			acc.IsActive = *in.IsActive
		}
		if err := tx.Update(ctx, acc); err != nil {
			return err
		}
		updated = acc
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	return updated, nil
}

func (s *Service) checkReparent(ctx context.Context, tx TxRepository, acc Account, parentID *int64) error {
	if parentID == nil {
		return nil
	}
	if *parentID == acc.ID {
		return fmt.Errorf("account %s cannot be its own parent: %w", acc.Code, shared.ErrValidation)
	}
	parent, err := tx.GetForUpdate(ctx, *parentID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return fmt.Errorf("parent account %d not found: %w", *parentID, shared.ErrValidation)
		}
		return err
	}
	if parent.Type != acc.Type {
		return fmt.Errorf("parent account %s is %s, child must match: %w", parent.Code, parent.Type, shared.ErrValidation)
	}
	ancestors, err := tx.AncestorIDs(ctx, *parentID)
	if err != nil {
		return err
	}
	for _, aid := range ancestors {
		if aid == acc.ID {
			return fmt.Errorf("reparenting %s under %s creates a cycle: %w", acc.Code, parent.Code, shared.ErrValidation)
		}
	}
	return nil
}

// Delete removes an account. System accounts, accounts with children, and
// accounts with postings are protected.
func (s *Service) Delete(ctx context.Context, id int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		acc, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if acc.IsSystem {
			return fmt.Errorf("account %s is a system account: %w", acc.Code, shared.ErrConflict)
		}
		children, err := tx.HasChildren(ctx, id)
		if err != nil {
			return err
		}
		if children {
			return fmt.Errorf("account %s has child accounts: %w", acc.Code, shared.ErrConflict)
		}
		postings, err := tx.HasPostings(ctx, id)
		if err != nil {
			return err
		}
		if postings {
			return fmt.Errorf("account %s has journal postings: %w", acc.Code, shared.ErrConflict)
		}
		return tx.Delete(ctx, id)
	})
}

// CalculateBalance computes the account balance as of a date, rolling up
// descendant accounts. Asset and expense accounts accrue on the debit side,
// liability, equity and revenue accounts on the credit side. Every balance in
// the system derives from this one convention.
func (s *Service) CalculateBalance(ctx context.Context, id int64, asOf *time.Time) (float64, error) {
	acc, err := s.repo.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	at := s.now()
	if asOf != nil {
		at = *asOf
	}
	opening, debit, credit, err := s.repo.SubtreeBalance(ctx, id, at)
	if err != nil {
		return 0, err
	}
	if acc.Type.DebitNormal() {
		return shared.Round2(opening + debit - credit), nil
	}
	return shared.Round2(opening + credit - debit), nil
}

// UpdateCurrentBalance recomputes and persists the cached current balance.
// Idempotent; repeated calls only rewrite the same value.
func (s *Service) UpdateCurrentBalance(ctx context.Context, id int64) (float64, error) {
	return s.repo.RecomputeCurrentBalance(ctx, id)
}

// DetectCycle reports whether assigning proposedParentID as the parent of
// accountID would close a loop in the tree. It walks the parent chain only,
// so cost is bounded by tree depth.
func (s *Service) DetectCycle(ctx context.Context, accountID, proposedParentID int64) (bool, error) {
	if accountID == proposedParentID {
		return true, nil
	}
	ancestors, err := s.repo.AncestorIDs(ctx, proposedParentID)
	if err != nil {
		return false, err
	}
	for _, id := range ancestors {
		if id == accountID {
			return true, nil
		}
	}
	return false, nil
}

// Tree returns the chart of accounts as nested nodes ordered by code.
func (s *Service) Tree(ctx context.Context) ([]TreeNode, error) {
	all, err := s.repo.List(ctx, ListFilter{})
	if err != nil {
		return nil, err
	}
	byParent := make(map[int64][]Account)
	var roots []Account
	for _, acc := range all {
		if acc.ParentID == nil {
			roots = append(roots, acc)
			continue
		}
		byParent[*acc.ParentID] = append(byParent[*acc.ParentID], acc)
	}
	var build func(acc Account) TreeNode
	build = func(acc Account) TreeNode {
		node := TreeNode{Account: acc}
		children := byParent[acc.ID]
		sort.Slice(children, func(i, j int) bool { return children[i].Code < children[j].Code })
		for _, child := range children {
			node.Children = append(node.Children, build(child))
		}
		return node
	}
	nodes := make([]TreeNode, 0, len(roots))
	for _, root := range roots {
		nodes = append(nodes, build(root))
	}
	return nodes, nil
}
