package history

import (
	"context"
	"fmt"
	"slices"

	"budgetsync/internal/budget"
	"budgetsync/internal/model"
)

const (
	defaultRecentChanges  = 10
	defaultRecentActivity = 20
)

// GetRecentChanges returns up to limit changes for entityType, newest first.
// limit <= 0 uses 10. Returns an empty slice on storage failure.
func (s *Service) GetRecentChanges(ctx context.Context, entityType string, limit int) []model.Change {
	if limit <= 0 {
		limit = defaultRecentChanges
	}
	return s.listChanges(ctx, "recent changes", budget.ChangeQuery{EntityTypes: []string{entityType}, Limit: limit})
}

// GetEntityHistory returns every change for entityType, optionally narrowed
// to one entityID, newest first.
func (s *Service) GetEntityHistory(ctx context.Context, entityType, entityID string) []model.Change {
	return s.listChanges(ctx, "entity history", budget.ChangeQuery{EntityTypes: []string{entityType}, EntityID: entityID})
}

// GetRecentActivity returns up to limit changes across the tracked entity
// types, newest first. limit <= 0 uses 20.
func (s *Service) GetRecentActivity(ctx context.Context, limit int) []model.Change {
	if limit <= 0 {
		limit = defaultRecentActivity
	}
	return s.listChanges(ctx, "recent activity", budget.ChangeQuery{EntityTypes: trackedEntities, Limit: limit})
}

func (s *Service) listChanges(ctx context.Context, what string, q budget.ChangeQuery) []model.Change {
	changes, err := s.store.ListChanges(ctx, q)
	if err != nil {
		s.logger.Error("failed to get "+what, "error", err)
		return []model.Change{}
	}
	return changes
}

// GetCommit returns the commit with the given hash, or nil when it does not
// exist or cannot be read.
func (s *Service) GetCommit(ctx context.Context, hash string) *model.Commit {
	c, err := s.store.GetCommit(ctx, hash)
	if err != nil {
		s.logger.Error("failed to get commit", "hash", short(hash), "error", err)
		return nil
	}
	return c
}

// GetRecentCommits returns up to limit commits, newest first.
func (s *Service) GetRecentCommits(ctx context.Context, limit int) []model.Commit {
	commits, err := s.store.ListCommitsSince(ctx, -1)
	if err != nil {
		s.logger.Error("failed to get recent commits", "error", err)
		return []model.Commit{}
	}
	slices.Reverse(commits)
	if limit > 0 && len(commits) > limit {
		commits = commits[:limit]
	}
	return commits
}

// GetBranches returns every branch, oldest first.
func (s *Service) GetBranches(ctx context.Context) []model.Branch {
	branches, err := s.store.ListBranches(ctx)
	if err != nil {
		s.logger.Error("failed to get branches", "error", err)
		return []model.Branch{}
	}
	return branches
}

// GetTags returns every tag, newest first.
func (s *Service) GetTags(ctx context.Context) []model.Tag {
	tags, err := s.store.ListTags(ctx)
	if err != nil {
		s.logger.Error("failed to get tags", "error", err)
		return []model.Tag{}
	}
	return tags
}

// BranchOptions describes a new branch.
type BranchOptions struct {
	FromCommitHash string
	Name           string
	Description    string
	Author         string
}

// CreateBranch creates an inactive branch pointing at an existing commit.
// Fails with a ConflictError if the name is taken and a NotFoundError if the
// commit does not exist.
func (s *Service) CreateBranch(ctx context.Context, opts BranchOptions) (*model.Branch, error) {
	if opts.Name == "" {
		return nil, budget.NewInvalidInput("branchName", "branch name is required")
	}
	if opts.Author == "" {
		opts.Author = DefaultAuthor
	}

	branch := &model.Branch{
		Name:             opts.Name,
		Description:      opts.Description,
		SourceCommitHash: opts.FromCommitHash,
		HeadCommitHash:   opts.FromCommitHash,
		Author:           opts.Author,
		Created:          budget.Millis(s.clock.Now()),
	}

	err := s.store.Update(ctx, func(tx budget.Store) error {
		existing, err := tx.GetBranch(ctx, opts.Name)
		if err != nil {
			return err
		}
		if existing != nil {
			return &budget.ConflictError{Entity: "Branch", Name: opts.Name}
		}
		commit, err := tx.GetCommit(ctx, opts.FromCommitHash)
		if err != nil {
			return err
		}
		if commit == nil {
			return &budget.NotFoundError{Entity: "Source commit", Name: opts.FromCommitHash}
		}
		return tx.InsertBranch(ctx, branch)
	})
	if err != nil {
		s.logger.Error("failed to create branch", "branch", opts.Name, "error", err)
		return nil, fmt.Errorf("creating branch: %w", err)
	}

	s.logger.Info("history branch created", "branch", opts.Name, "fromCommit", short(opts.FromCommitHash), "author", opts.Author)
	return branch, nil
}

// SwitchBranch makes name the only active branch. Fails with a NotFoundError,
// leaving the previous active branch in place, if name does not exist.
func (s *Service) SwitchBranch(ctx context.Context, name string) error {
	err := s.store.Update(ctx, func(tx budget.Store) error {
		if err := tx.DeactivateBranches(ctx); err != nil {
			return err
		}
		ok, err := tx.ActivateBranch(ctx, name)
		if err != nil {
			return err
		}
		if !ok {
			return &budget.NotFoundError{Entity: "Branch", Name: name}
		}
		return nil
	})
	if err != nil {
		s.logger.Error("failed to switch branch", "branch", name, "error", err)
		return fmt.Errorf("switching branch: %w", err)
	}

	s.logger.Info("switched history branch", "branch", name)
	return nil
}

// TagOptions describes a new tag.
type TagOptions struct {
	CommitHash  string
	Name        string
	Description string
	TagType     model.TagType // defaults to milestone
	Author      string
}

// CreateTag pins name to an existing commit. Fails with a ConflictError if
// the name is taken and a NotFoundError if the commit does not exist.
func (s *Service) CreateTag(ctx context.Context, opts TagOptions) (*model.Tag, error) {
	if opts.Name == "" {
		return nil, budget.NewInvalidInput("tagName", "tag name is required")
	}
	if opts.TagType == "" {
		opts.TagType = model.TagMilestone
	}
	if !opts.TagType.Valid() {
		return nil, budget.NewInvalidInput("tagType", fmt.Sprintf("unknown tag type %q", opts.TagType))
	}
	if opts.Author == "" {
		opts.Author = DefaultAuthor
	}

	tag := &model.Tag{
		Name:        opts.Name,
		Description: opts.Description,
		CommitHash:  opts.CommitHash,
		TagType:     opts.TagType,
		Author:      opts.Author,
		Created:     budget.Millis(s.clock.Now()),
	}

	err := s.store.Update(ctx, func(tx budget.Store) error {
		existing, err := tx.GetTag(ctx, opts.Name)
		if err != nil {
			return err
		}
		if existing != nil {
			return &budget.ConflictError{Entity: "Tag", Name: opts.Name}
		}
		commit, err := tx.GetCommit(ctx, opts.CommitHash)
		if err != nil {
			return err
		}
		if commit == nil {
			return &budget.NotFoundError{Entity: "Commit", Name: opts.CommitHash}
		}
		return tx.InsertTag(ctx, tag)
	})
	if err != nil {
		s.logger.Error("failed to create tag", "tag", opts.Name, "error", err)
		return nil, fmt.Errorf("creating tag: %w", err)
	}

	s.logger.Info("history tag created", "tag", opts.Name, "commitHash", short(opts.CommitHash), "tagType", string(opts.TagType), "author", opts.Author)
	return tag, nil
}
