package board

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"guestboard/internal/kv"
)

const testAdminSecret = "admin-secret"

func setupTestService(t *testing.T, opts Options) (*Service, *kv.RedisStore) {
	t.Helper()
	s := miniredis.RunT(t)
	store, err := kv.NewRedisStore("redis://"+s.Addr(), "gb:")
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if opts.AdminSecret == "" {
		opts.AdminSecret = testAdminSecret
	}
	return New(store, opts), store
}

func submitN(t *testing.T, svc *Service, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		identity := fmt.Sprintf("identity-%d", i)
		if _, err := svc.Submit(ctx, identity, fmt.Sprintf("comment %d", i+1), true, false); err != nil {
			t.Fatalf("Submit %d failed: %v", i+1, err)
		}
	}
}

func TestSubmitAssignsSequentialIDs(t *testing.T) {
	svc, _ := setupTestService(t, Options{ReleaseClaimOnDelete: true})
	ctx := context.Background()

	submitN(t, svc, 3)

	result, err := svc.List(ctx, 1, 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if result.Total != 3 {
		t.Fatalf("expected total 3, got %d", result.Total)
	}
	for i, item := range result.Items {
		if item.ID != i+1 {
			t.Errorf("expected id %d at position %d, got %d", i+1, i, item.ID)
		}
		if item.AuthorLabel != fmt.Sprintf("Guest %d", i+1) {
			t.Errorf("unexpected author label %q", item.AuthorLabel)
		}
	}
}

func TestSubmitReportsDisplayPosition(t *testing.T) {
	svc, _ := setupTestService(t, Options{})
	ctx := context.Background()

	submitN(t, svc, 2)
	created, err := svc.Submit(ctx, "identity-x", "third", true, false)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if created.Position != 3 || created.ID != 3 {
		t.Errorf("expected position 3 and id 3, got position %d id %d", created.Position, created.ID)
	}
}

func TestSubmitRequiresAuthentication(t *testing.T) {
	svc, _ := setupTestService(t, Options{})

	_, err := svc.Submit(context.Background(), "identity-a", "hello", false, false)
	if !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestSubmitRejectsEmptyContent(t *testing.T) {
	svc, _ := setupTestService(t, Options{})

	_, err := svc.Submit(context.Background(), "identity-a", "  \n\t ", true, false)
	if !errors.Is(err, ErrEmptyContent) {
		t.Errorf("expected ErrEmptyContent, got %v", err)
	}
}

func TestSubmitRejectsDuplicateIdentity(t *testing.T) {
	svc, _ := setupTestService(t, Options{})
	ctx := context.Background()

	if _, err := svc.Submit(ctx, "identity-a", "first", true, false); err != nil {
		t.Fatalf("first Submit failed: %v", err)
	}
	_, err := svc.Submit(ctx, "identity-a", "second", true, false)
	if !errors.Is(err, ErrDuplicateSubmission) {
		t.Fatalf("expected ErrDuplicateSubmission, got %v", err)
	}

	result, err := svc.List(ctx, 1, 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if result.Total != 1 {
		t.Errorf("expected index untouched at total 1, got %d", result.Total)
	}
}

func TestPrivilegedSubmitBypassesClaims(t *testing.T) {
	svc, _ := setupTestService(t, Options{})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := svc.Submit(ctx, "identity-a", fmt.Sprintf("note %d", i), false, true); err != nil {
			t.Fatalf("privileged Submit %d failed: %v", i, err)
		}
	}

	result, err := svc.List(ctx, 1, 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if result.Total != 2 {
		t.Errorf("expected 2 comments, got %d", result.Total)
	}
}

func TestSubmitTruncatesLongText(t *testing.T) {
	svc, _ := setupTestService(t, Options{})

	created, err := svc.Submit(context.Background(), "identity-a", strings.Repeat("xy", 400), true, false)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if got := len([]rune(created.Text)); got != 300 {
		t.Errorf("expected text truncated to 300 runes, got %d", got)
	}
}

func TestDeleteRequiresAdminSecret(t *testing.T) {
	svc, _ := setupTestService(t, Options{})
	submitN(t, svc, 1)

	_, err := svc.Delete(context.Background(), "wrong-secret", 1)
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
}

func TestDeleteUnknownID(t *testing.T) {
	svc, _ := setupTestService(t, Options{})
	submitN(t, svc, 1)

	_, err := svc.Delete(context.Background(), testAdminSecret, 42)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteCompactsAndRelabels(t *testing.T) {
	svc, _ := setupTestService(t, Options{ReleaseClaimOnDelete: true})
	ctx := context.Background()
	submitN(t, svc, 3)

	remaining, err := svc.Delete(ctx, testAdminSecret, 2)
	if err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if remaining != 2 {
		t.Errorf("expected 2 remaining, got %d", remaining)
	}

	result, err := svc.List(ctx, 1, 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(result.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(result.Items))
	}
	if result.Items[0].ID != 1 || result.Items[1].ID != 2 {
		t.Errorf("expected contiguous ids 1,2, got %d,%d", result.Items[0].ID, result.Items[1].ID)
	}
	if result.Items[1].Text != "comment 3" {
		t.Errorf("expected third comment shifted into slot 2, got %q", result.Items[1].Text)
	}
	if result.Items[1].AuthorLabel != "Guest 2" {
		t.Errorf("expected relabeled author, got %q", result.Items[1].AuthorLabel)
	}
}

func TestDeleteReleasesIdentity(t *testing.T) {
	svc, _ := setupTestService(t, Options{ReleaseClaimOnDelete: true})
	ctx := context.Background()

	if _, err := svc.Submit(ctx, "identity-a", "first", true, false); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if _, err := svc.Delete(ctx, testAdminSecret, 1); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := svc.Submit(ctx, "identity-a", "again", true, false); err != nil {
		t.Errorf("expected identity released after delete, got %v", err)
	}
}

func TestDeleteKeepsClaimWhenConfigured(t *testing.T) {
	svc, _ := setupTestService(t, Options{ReleaseClaimOnDelete: false})
	ctx := context.Background()

	if _, err := svc.Submit(ctx, "identity-a", "first", true, false); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if _, err := svc.Delete(ctx, testAdminSecret, 1); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	_, err := svc.Submit(ctx, "identity-a", "again", true, false)
	if !errors.Is(err, ErrDuplicateSubmission) {
		t.Errorf("expected claim retained, got %v", err)
	}
}

func TestCompactionMovesClaims(t *testing.T) {
	svc, _ := setupTestService(t, Options{ReleaseClaimOnDelete: true})
	ctx := context.Background()
	submitN(t, svc, 2)

	// Shift identity-1's comment from id 2 to id 1
	if _, err := svc.Delete(ctx, testAdminSecret, 1); err != nil {
		t.Fatalf("first Delete failed: %v", err)
	}
	// Deleting the renumbered comment must release identity-1, not identity-0
	if _, err := svc.Delete(ctx, testAdminSecret, 1); err != nil {
		t.Fatalf("second Delete failed: %v", err)
	}
	if _, err := svc.Submit(ctx, "identity-1", "back again", true, false); err != nil {
		t.Errorf("expected identity-1 released, got %v", err)
	}
}

func TestAllocationContinuesAfterCompaction(t *testing.T) {
	svc, _ := setupTestService(t, Options{ReleaseClaimOnDelete: true})
	ctx := context.Background()
	submitN(t, svc, 3)

	if _, err := svc.Delete(ctx, testAdminSecret, 3); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	created, err := svc.Submit(ctx, "identity-x", "fourth", true, false)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	// Compaction left 1,2 so the next allocation is 3
	if created.ID != 3 {
		t.Errorf("expected id 3 after compaction, got %d", created.ID)
	}
}

func TestListPaginationClamps(t *testing.T) {
	svc, _ := setupTestService(t, Options{})
	ctx := context.Background()
	submitN(t, svc, 45)

	page1, err := svc.List(ctx, 1, 20)
	if err != nil {
		t.Fatalf("List page 1 failed: %v", err)
	}
	if len(page1.Items) != 20 {
		t.Fatalf("expected 20 items on page 1, got %d", len(page1.Items))
	}
	if page1.Items[0].ID != 1 || page1.Items[19].ID != 20 {
		t.Errorf("unexpected page 1 ids %d..%d", page1.Items[0].ID, page1.Items[19].ID)
	}

	page3, err := svc.List(ctx, 3, 20)
	if err != nil {
		t.Fatalf("List page 3 failed: %v", err)
	}
	if len(page3.Items) != 5 {
		t.Fatalf("expected 5 items on page 3, got %d", len(page3.Items))
	}
	if page3.Items[0].ID != 41 || page3.Items[4].ID != 45 {
		t.Errorf("unexpected page 3 ids %d..%d", page3.Items[0].ID, page3.Items[4].ID)
	}

	clamped, err := svc.List(ctx, 99, 20)
	if err != nil {
		t.Fatalf("List page 99 failed: %v", err)
	}
	if clamped.Page != 3 {
		t.Errorf("expected page clamped to 3, got %d", clamped.Page)
	}
	if len(clamped.Items) != 5 {
		t.Errorf("expected last page items, got %d", len(clamped.Items))
	}
}

func TestListClampsLimit(t *testing.T) {
	svc, _ := setupTestService(t, Options{})
	ctx := context.Background()
	submitN(t, svc, 5)

	result, err := svc.List(ctx, 1, 500)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if result.Limit != 50 {
		t.Errorf("expected limit clamped to 50, got %d", result.Limit)
	}

	result, err = svc.List(ctx, 1, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if result.Limit != 1 {
		t.Errorf("expected limit clamped to 1, got %d", result.Limit)
	}
}

func TestListEmptyBoard(t *testing.T) {
	svc, _ := setupTestService(t, Options{})

	result, err := svc.List(context.Background(), 1, 20)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if result.Total != 0 || len(result.Items) != 0 {
		t.Errorf("expected empty result, got total %d with %d items", result.Total, len(result.Items))
	}
}

func TestListSkipsMissingRecords(t *testing.T) {
	svc, store := setupTestService(t, Options{})
	ctx := context.Background()
	submitN(t, svc, 3)

	// Simulate partial corruption: indexed id with no record
	if err := store.Delete(ctx, "comment:2"); err != nil {
		t.Fatalf("Delete key failed: %v", err)
	}

	result, err := svc.List(ctx, 1, 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if result.Total != 3 {
		t.Errorf("expected index total 3, got %d", result.Total)
	}
	if len(result.Items) != 2 {
		t.Errorf("expected missing record skipped, got %d items", len(result.Items))
	}
}
