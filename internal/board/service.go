// Package board maintains the ordered, compacting comment ledger.
package board

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"guestboard/internal/kv"
)

const (
	indexKey       = "index"
	commentKeyFmt  = "comment:%d"
	claimKeyFmt    = "claim:%s"
	revClaimKeyFmt = "reverseClaim:%d"
)

// Comment is a single visible board entry. The display position is the
// comment's semantic identity: AuthorLabel embeds it and compaction keeps
// IDs contiguous so position and ID stay in step.
type Comment struct {
	ID          int       `json:"id"`
	Text        string    `json:"text"`
	AuthorLabel string    `json:"authorLabel"`
	CreatedAt   time.Time `json:"createdAt"`
}

// SubmitResult is a stored comment plus its 1-based display position in the
// updated sequence.
type SubmitResult struct {
	Comment
	Position int `json:"position"`
}

// ListResult is a page of the comment index.
type ListResult struct {
	Total int       `json:"total"`
	Page  int       `json:"page"`
	Limit int       `json:"limit"`
	Items []Comment `json:"items"`
}

// Options configures ledger behavior.
type Options struct {
	AuthorPrefix string
	MaxLength    int
	MaxRunLength int
	MaxPageLimit int
	AdminSecret  string
	// ReleaseClaimOnDelete controls whether deleting a comment frees its
	// author's identity to post again.
	ReleaseClaimOnDelete bool
}

// Service is the comment ledger. It performs no locking: the underlying
// store has no cross-key atomicity, so concurrent submissions for one
// identity or concurrent deletions can interleave. Callers needing strict
// correctness must serialize externally (per identity for Submit, globally
// for Delete).
type Service struct {
	store kv.Store
	opts  Options
	now   func() time.Time
}

// New creates a comment ledger on top of the given store
func New(store kv.Store, opts Options) *Service {
	if opts.AuthorPrefix == "" {
		opts.AuthorPrefix = "Guest "
	}
	if opts.MaxLength <= 0 {
		opts.MaxLength = 300
	}
	if opts.MaxRunLength <= 0 {
		opts.MaxRunLength = 20
	}
	if opts.MaxPageLimit <= 0 {
		opts.MaxPageLimit = 50
	}
	return &Service{store: store, opts: opts, now: time.Now}
}

// List returns one page of comments in insertion order. Indexed IDs whose
// record is missing are skipped rather than surfaced; a concurrent delete
// can leave such gaps and the read path heals over them.
func (s *Service) List(ctx context.Context, page, limit int) (ListResult, error) {
	ids, err := s.loadIndex(ctx)
	if err != nil {
		return ListResult{}, err
	}

	if limit < 1 {
		limit = 1
	}
	if limit > s.opts.MaxPageLimit {
		limit = s.opts.MaxPageLimit
	}
	total := len(ids)
	totalPages := (total + limit - 1) / limit
	if totalPages < 1 {
		totalPages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}

	start := (page - 1) * limit
	end := start + limit
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	items := make([]Comment, 0, end-start)
	for _, id := range ids[start:end] {
		comment, err := s.loadComment(ctx, id)
		if err != nil {
			if errors.Is(err, kv.ErrNotFound) || errors.Is(err, errBadRecord) {
				continue
			}
			return ListResult{}, err
		}
		items = append(items, comment)
	}

	return ListResult{Total: total, Page: page, Limit: limit, Items: items}, nil
}

// Submit sanitizes and stores a new comment. Non-privileged callers must be
// authenticated and may hold at most one live comment, tracked by identity
// hash. Write order is record, index, claims: a crash mid-way leaves an
// orphaned record (invisible) rather than a visible entry with no record.
func (s *Service) Submit(ctx context.Context, identityHash, rawText string, authenticated, privileged bool) (SubmitResult, error) {
	if !authenticated && !privileged {
		return SubmitResult{}, ErrUnauthenticated
	}

	text := sanitize(rawText, s.opts.MaxLength, s.opts.MaxRunLength)
	if text == "" {
		return SubmitResult{}, ErrEmptyContent
	}

	if !privileged {
		_, err := s.store.Get(ctx, claimKey(identityHash))
		if err == nil {
			return SubmitResult{}, ErrDuplicateSubmission
		}
		if !errors.Is(err, kv.ErrNotFound) {
			return SubmitResult{}, err
		}
	}

	ids, err := s.loadIndex(ctx)
	if err != nil {
		return SubmitResult{}, err
	}

	// Allocate past the highest live ID; compaction on delete is what
	// closes gaps, never allocation.
	nextID := 1
	for _, id := range ids {
		if id >= nextID {
			nextID = id + 1
		}
	}

	position := len(ids) + 1
	comment := Comment{
		ID:          nextID,
		Text:        text,
		AuthorLabel: s.opts.AuthorPrefix + strconv.Itoa(position),
		CreatedAt:   s.now().UTC(),
	}

	if err := s.storeComment(ctx, comment); err != nil {
		return SubmitResult{}, err
	}
	if err := s.storeIndex(ctx, append(ids, nextID)); err != nil {
		return SubmitResult{}, err
	}
	if !privileged {
		if err := s.store.Put(ctx, claimKey(identityHash), strconv.Itoa(nextID), 0); err != nil {
			return SubmitResult{}, err
		}
		if err := s.store.Put(ctx, revClaimKey(nextID), identityHash, 0); err != nil {
			return SubmitResult{}, err
		}
	}

	return SubmitResult{Comment: comment, Position: position}, nil
}

// Delete removes a comment by ID and compacts the index so the remaining
// IDs run contiguously from 1. Records whose ID changes are rewritten with
// a recomputed author label, and their claims follow them to the new ID.
// Returns the number of comments left.
func (s *Service) Delete(ctx context.Context, adminToken string, id int) (int, error) {
	if subtle.ConstantTimeCompare([]byte(adminToken), []byte(s.opts.AdminSecret)) != 1 {
		return 0, ErrForbidden
	}

	ids, err := s.loadIndex(ctx)
	if err != nil {
		return 0, err
	}

	remaining := make([]int, 0, len(ids))
	found := false
	for _, existing := range ids {
		if existing == id {
			found = true
			continue
		}
		remaining = append(remaining, existing)
	}
	if !found {
		return 0, ErrNotFound
	}

	if err := s.store.Delete(ctx, commentKey(id)); err != nil {
		return 0, err
	}
	if err := s.releaseClaim(ctx, id); err != nil {
		return 0, err
	}

	compacted, err := s.compact(ctx, remaining)
	if err != nil {
		return 0, err
	}
	if err := s.storeIndex(ctx, compacted); err != nil {
		return 0, err
	}
	return len(compacted), nil
}

// releaseClaim deletes the claims tied to a comment ID so its author can
// post again. When ReleaseClaimOnDelete is off, the forward claim stays and
// only the dangling reverse claim is removed.
func (s *Service) releaseClaim(ctx context.Context, id int) error {
	hash, err := s.store.Get(ctx, revClaimKey(id))
	if errors.Is(err, kv.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, revClaimKey(id)); err != nil {
		return err
	}
	if !s.opts.ReleaseClaimOnDelete {
		return nil
	}
	return s.store.Delete(ctx, claimKey(hash))
}

// compact renumbers the remaining comments to 1..n in index order. Each
// shifted record is written under its new key before the old key is
// deleted, so a failure mid-walk leaves states List can tolerate. The walk
// goes in ascending order, which guarantees a new key is always vacated
// before it is reused.
func (s *Service) compact(ctx context.Context, ids []int) ([]int, error) {
	compacted := make([]int, 0, len(ids))
	for _, oldID := range ids {
		newID := len(compacted) + 1
		if oldID == newID {
			compacted = append(compacted, newID)
			continue
		}

		comment, err := s.loadComment(ctx, oldID)
		if err != nil {
			if errors.Is(err, kv.ErrNotFound) || errors.Is(err, errBadRecord) {
				// Drop index entries whose record is already gone
				continue
			}
			return nil, err
		}

		comment.ID = newID
		comment.AuthorLabel = s.opts.AuthorPrefix + strconv.Itoa(newID)
		if err := s.storeComment(ctx, comment); err != nil {
			return nil, err
		}
		if err := s.store.Delete(ctx, commentKey(oldID)); err != nil {
			return nil, err
		}
		if err := s.moveClaims(ctx, oldID, newID); err != nil {
			return nil, err
		}
		compacted = append(compacted, newID)
	}
	return compacted, nil
}

func (s *Service) moveClaims(ctx context.Context, oldID, newID int) error {
	hash, err := s.store.Get(ctx, revClaimKey(oldID))
	if errors.Is(err, kv.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.store.Put(ctx, claimKey(hash), strconv.Itoa(newID), 0); err != nil {
		return err
	}
	if err := s.store.Put(ctx, revClaimKey(newID), hash, 0); err != nil {
		return err
	}
	return s.store.Delete(ctx, revClaimKey(oldID))
}

var errBadRecord = errors.New("unreadable comment record")

func (s *Service) loadIndex(ctx context.Context) ([]int, error) {
	raw, err := s.store.Get(ctx, indexKey)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []int
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}
	return ids, nil
}

func (s *Service) storeIndex(ctx context.Context, ids []int) error {
	raw, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	return s.store.Put(ctx, indexKey, string(raw), 0)
}

func (s *Service) loadComment(ctx context.Context, id int) (Comment, error) {
	raw, err := s.store.Get(ctx, commentKey(id))
	if err != nil {
		return Comment{}, err
	}
	var comment Comment
	if err := json.Unmarshal([]byte(raw), &comment); err != nil {
		return Comment{}, errBadRecord
	}
	return comment, nil
}

func (s *Service) storeComment(ctx context.Context, comment Comment) error {
	raw, err := json.Marshal(comment)
	if err != nil {
		return fmt.Errorf("encode comment %d: %w", comment.ID, err)
	}
	return s.store.Put(ctx, commentKey(comment.ID), string(raw), 0)
}

func commentKey(id int) string    { return fmt.Sprintf(commentKeyFmt, id) }
func claimKey(hash string) string { return fmt.Sprintf(claimKeyFmt, hash) }
func revClaimKey(id int) string   { return fmt.Sprintf(revClaimKeyFmt, id) }
