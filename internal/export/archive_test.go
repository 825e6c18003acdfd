package export

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"smartloan/internal/blob"
	"smartloan/internal/catalog"
	"smartloan/internal/core"
	"smartloan/pkg/domain"
)

var _ core.AuditExporter = (*Archiver)(nil)

func TestArchiverWritesAndReadsBack(t *testing.T) {
	ctx := context.Background()
	for _, store := range []blob.Store{blob.NewMemory(), blob.NewMockS3ForTests()} {
		t.Run(string(store.Driver()), func(t *testing.T) {
			a, err := NewArchiver(store)
			if err != nil {
				t.Fatalf("new archiver: %v", err)
			}
			entries := sampleEntries()
			loc, err := a.ExportAudit(ctx, "desk-1", entries)
			if err != nil {
				t.Fatalf("export: %v", err)
			}
			if loc == "" {
				t.Fatalf("expected location")
			}
			archives, err := a.Archives(ctx, "desk-1")
			if err != nil || len(archives) != 1 {
				t.Fatalf("archives: %v %+v", err, archives)
			}
			if archives[0].Key != a.Key("desk-1", entries) {
				t.Fatalf("unexpected key %s", archives[0].Key)
			}
			got, err := a.Open(ctx, archives[0].Key)
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			if diff := cmp.Diff(entries, got); diff != "" {
				t.Fatalf("archive mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestArchiverRepeatedExportIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemory()
	a, _ := NewArchiver(store, WithPrefix("/exports/"))
	first, err := a.ExportAudit(ctx, "desk", sampleEntries())
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	second, err := a.ExportAudit(ctx, "desk", sampleEntries())
	if err != nil {
		t.Fatalf("repeat export: %v", err)
	}
	if first != second {
		t.Fatalf("expected same location, got %s and %s", first, second)
	}
	if !strings.HasPrefix(a.Key("desk", nil), "exports/desk/") {
		t.Fatalf("prefix not applied: %s", a.Key("desk", nil))
	}
	list, _ := store.List(ctx, "")
	if len(list) != 1 {
		t.Fatalf("expected one archive, got %d", len(list))
	}
}

func TestArchiverKeysOrderByIDRange(t *testing.T) {
	a, _ := NewArchiver(blob.NewMemory())
	entries := sampleEntries()
	short := a.Key("s", entries[:1])
	long := a.Key("s", entries)
	if short >= long {
		t.Fatalf("expected %s < %s", short, long)
	}
	if got := a.Key("a/b", nil); !strings.HasPrefix(got, "audit/a%2Fb/") {
		t.Fatalf("session id must be escaped: %s", got)
	}
}

func TestArchiverErrors(t *testing.T) {
	if _, err := NewArchiver(nil); err == nil {
		t.Fatalf("expected nil store error")
	}
	a, _ := NewArchiver(blob.NewMemory())
	if _, err := a.ExportAudit(context.Background(), "", nil); err == nil {
		t.Fatalf("expected session id error")
	}
	if _, err := a.Open(context.Background(), "audit/none.json"); !errors.Is(err, blob.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestArchiverLinkRemoveAndPurge(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMockS3ForTests()
	a, _ := NewArchiver(store)
	entries := sampleEntries()
	if _, err := a.ExportAudit(ctx, "desk", entries[:1]); err != nil {
		t.Fatalf("export: %v", err)
	}
	if _, err := a.ExportAudit(ctx, "desk", entries); err != nil {
		t.Fatalf("export: %v", err)
	}
	if _, err := a.ExportAudit(ctx, "other", entries); err != nil {
		t.Fatalf("export: %v", err)
	}

	key := a.Key("desk", entries)
	u, err := a.Link(ctx, key, time.Minute)
	if err != nil || !strings.Contains(u, "X-Amz-Expires=60") {
		t.Fatalf("link: %v %s", err, u)
	}
	if _, err := a.Link(ctx, "audit/desk/missing.json", 0); !errors.Is(err, blob.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing archive, got %v", err)
	}
	if _, err := a.Link(ctx, "elsewhere/x.json", 0); err == nil {
		t.Fatalf("expected key outside prefix to be refused")
	}

	if ok, err := a.Remove(ctx, key); err != nil || !ok {
		t.Fatalf("remove: %v %v", ok, err)
	}
	if ok, err := a.Remove(ctx, key); err != nil || ok {
		t.Fatalf("second remove should report missing: %v %v", ok, err)
	}
	if _, err := a.Remove(ctx, "elsewhere/x.json"); err == nil {
		t.Fatalf("expected key outside prefix to be refused")
	}

	n, err := a.Purge(ctx, "desk")
	if err != nil || n != 1 {
		t.Fatalf("purge: %v removed=%d", err, n)
	}
	if left, _ := a.Archives(ctx, "desk"); len(left) != 0 {
		t.Fatalf("expected no desk archives, got %+v", left)
	}
	if left, _ := a.Archives(ctx, "other"); len(left) != 1 {
		t.Fatalf("purge must not touch other sessions, got %+v", left)
	}
}

func TestArchiverLinkUnsupported(t *testing.T) {
	ctx := context.Background()
	a, _ := NewArchiver(blob.NewMemory())
	if _, err := a.ExportAudit(ctx, "desk", sampleEntries()); err != nil {
		t.Fatalf("export: %v", err)
	}
	if _, err := a.Link(ctx, a.Key("desk", sampleEntries()), 0); !errors.Is(err, blob.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}

func TestServiceExportsThroughArchiver(t *testing.T) {
	ctx := context.Background()
	a, _ := NewArchiver(blob.NewMemory())
	now := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	svc, err := core.NewService(catalog.MustDefault(),
		core.WithExporter(a),
		core.WithClock(core.ClockFunc(func() time.Time { return now })),
	)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	if _, err := svc.Apply(ctx, "desk", "firm_shorts", domain.Bool(true), "kai"); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, err := svc.Apply(ctx, "desk", "hold_for_recall", domain.Bool(true), "kai"); err != nil {
		t.Fatalf("apply: %v", err)
	}
	loc, err := svc.ExportAudit(ctx, "desk")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if loc != "mem://audit/desk/audit-00000000000000000001-00000000000000000002.json" {
		t.Fatalf("unexpected location %s", loc)
	}
	want, err := svc.Audit(ctx, "desk")
	if err != nil {
		t.Fatalf("audit: %v", err)
	}
	got, err := a.Open(ctx, strings.TrimPrefix(loc, "mem://"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("export mismatch (-want +got):\n%s", diff)
	}
	if hold, ok := got[1].Effect("reduction_recall_loans"); !ok || hold.Cause != domain.CascadedFrom("hold_for_recall") {
		t.Fatalf("expected cascaded recall effect, got %+v", got[1].Effects)
	}
}
