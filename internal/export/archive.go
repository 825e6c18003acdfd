package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"smartloan/internal/blob"
	"smartloan/pkg/domain"
)

// DefaultPrefix is the key prefix archives are written under.
const DefaultPrefix = "audit"

// Archiver writes audit exports to a blob store. It satisfies
// core.AuditExporter.
//
// Keys are derived from the session and the id range of the export. Audit
// entries never change once written, so an existing key already holds the
// same history and a repeated export returns its location.
type Archiver struct {
	store  blob.Store
	prefix string
}

// ArchiverOption customises an Archiver.
type ArchiverOption func(*Archiver)

// WithPrefix overrides DefaultPrefix.
func WithPrefix(prefix string) ArchiverOption {
	return func(a *Archiver) {
		if p := strings.Trim(prefix, "/"); p != "" {
			a.prefix = p
		}
	}
}

// NewArchiver returns an Archiver writing to store.
func NewArchiver(store blob.Store, opts ...ArchiverOption) (*Archiver, error) {
	if store == nil {
		return nil, fmt.Errorf("archive blob store required")
	}
	a := &Archiver{store: store, prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Key returns the blob key an export of entries for sessionID is written to.
func (a *Archiver) Key(sessionID string, entries []domain.AuditEntry) string {
	var first, last uint64
	if len(entries) > 0 {
		first, last = entries[0].ID, entries[len(entries)-1].ID
	}
	return fmt.Sprintf("%s/audit-%020d-%020d.json", a.sessionPrefix(sessionID), first, last)
}

func (a *Archiver) sessionPrefix(sessionID string) string {
	return a.prefix + "/" + url.PathEscape(sessionID)
}

// ExportAudit archives entries and returns the blob URL.
func (a *Archiver) ExportAudit(ctx context.Context, sessionID string, entries []domain.AuditEntry) (string, error) {
	if sessionID == "" {
		return "", fmt.Errorf("session id required")
	}
	var buf bytes.Buffer
	if err := Write(&buf, entries); err != nil {
		return "", err
	}
	key := a.Key(sessionID, entries)
	info, err := a.store.Put(ctx, key, &buf, blob.PutOptions{
		ContentType: ContentType,
		Metadata: map[string]string{
			"session": sessionID,
			"entries": strconv.Itoa(len(entries)),
		},
	})
	if errors.Is(err, blob.ErrExists) {
		info, err = a.store.Head(ctx, key)
	}
	if err != nil {
		return "", fmt.Errorf("archive audit %s: %w", sessionID, err)
	}
	return info.URL, nil
}

// Archives lists the exports stored for sessionID, oldest id range first.
func (a *Archiver) Archives(ctx context.Context, sessionID string) ([]blob.Info, error) {
	infos, err := a.store.List(ctx, a.sessionPrefix(sessionID)+"/")
	if err != nil {
		return nil, fmt.Errorf("list archives %s: %w", sessionID, err)
	}
	return infos, nil
}

// Open reads an archived export back.
func (a *Archiver) Open(ctx context.Context, key string) ([]domain.AuditEntry, error) {
	if err := a.owns(key); err != nil {
		return nil, err
	}
	_, rc, err := a.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", key, err)
	}
	defer func() { _ = rc.Close() }()
	return Read(rc)
}

// Link returns a time-limited download URL for an archive. Stores that cannot
// sign URLs yield blob.ErrUnsupported.
func (a *Archiver) Link(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if err := a.owns(key); err != nil {
		return "", err
	}
	if _, err := a.store.Head(ctx, key); err != nil {
		return "", fmt.Errorf("link archive %s: %w", key, err)
	}
	u, err := a.store.PresignURL(ctx, key, blob.SignedURLOptions{Expiry: expiry})
	if err != nil {
		return "", fmt.Errorf("link archive %s: %w", key, err)
	}
	return u, nil
}

// Remove deletes one archive and reports whether it existed.
func (a *Archiver) Remove(ctx context.Context, key string) (bool, error) {
	if err := a.owns(key); err != nil {
		return false, err
	}
	ok, err := a.store.Delete(ctx, key)
	if err != nil {
		return false, fmt.Errorf("remove archive %s: %w", key, err)
	}
	return ok, nil
}

// Purge deletes every archive of sessionID and returns how many were removed.
func (a *Archiver) Purge(ctx context.Context, sessionID string) (int, error) {
	infos, err := a.Archives(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, info := range infos {
		ok, err := a.store.Delete(ctx, info.Key)
		if err != nil {
			return n, fmt.Errorf("purge archives %s: %w", sessionID, err)
		}
		if ok {
			n++
		}
	}
	return n, nil
}

func (a *Archiver) owns(key string) error {
	if !strings.HasPrefix(key, a.prefix+"/") {
		return fmt.Errorf("archive key %q outside %s/", key, a.prefix)
	}
	return nil
}
