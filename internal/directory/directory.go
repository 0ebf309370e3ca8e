package directory

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
)

const (
	snapshotKey = "_all"
	defaultTTL  = 24 * time.Hour
	memberRange = "main!A1:K100"
)

// Rows abstracts the sheet read so the service can be tested without a
// live spreadsheet.
type Rows interface {
	RowsByHeader(ctx context.Context, rng string) ([]models.MemberRecord, error)
}

// Directory serves membership lookups from a cached snapshot of the
// member sheet. The whole sheet is one cache entry; a lookup miss
// flushes it and refetches once before giving up.
type Directory struct {
	rows     Rows
	snapshot *ttlcache.Cache[string, []models.MemberRecord]
	logger   *slog.Logger
}

// Option configures a Directory.
type Option func(*Directory)

// WithSnapshotTTL overrides the snapshot lifetime.
func WithSnapshotTTL(ttl time.Duration) Option {
	return func(d *Directory) {
		d.snapshot = ttlcache.New(
			ttlcache.WithTTL[string, []models.MemberRecord](ttl),
			ttlcache.WithDisableTouchOnHit[string, []models.MemberRecord](),
		)
	}
}

// New creates a Directory over the given sheet reader.
func New(rows Rows, logger *slog.Logger, opts ...Option) *Directory {
	d := &Directory{
		rows: rows,
		snapshot: ttlcache.New(
			ttlcache.WithTTL[string, []models.MemberRecord](defaultTTL),
			ttlcache.WithDisableTouchOnHit[string, []models.MemberRecord](),
		),
		logger: logger.With(slog.String("component", "directory")),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Members returns all member records, serving the cached snapshot when
// it is still live.
func (d *Directory) Members(ctx context.Context) ([]models.MemberRecord, error) {
	if item := d.snapshot.Get(snapshotKey); item != nil {
		return item.Value(), nil
	}
	members, err := d.rows.RowsByHeader(ctx, memberRange)
	if err != nil {
		return nil, err
	}
	d.snapshot.Set(snapshotKey, members, ttlcache.DefaultTTL)
	d.logger.Debug("member snapshot refreshed", slog.Int("count", len(members)))
	return members, nil
}

// Flush drops the cached snapshot so the next read hits the sheet.
func (d *Directory) Flush() {
	d.snapshot.Delete(snapshotKey)
}

// NormalizeStudentID canonicalizes a student number: leading account
// prefix "s" stripped, rest uppercased.
func NormalizeStudentID(id string) string {
	id = strings.TrimSpace(id)
	if len(id) > 1 && (id[0] == 's' || id[0] == 'S') {
		id = id[1:]
	}
	return strings.ToUpper(id)
}

// StudentIDFromEmail extracts the student number from an account email
// local part.
func StudentIDFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return NormalizeStudentID(local)
}

func findMember(members []models.MemberRecord, studentID string) (models.MemberRecord, bool) {
	for _, m := range members {
		if NormalizeStudentID(m.StudentID()) == studentID {
			return m, true
		}
	}
	return nil, false
}

// Member looks up one record by student number. A miss against a cached
// snapshot flushes it and retries once, so members added since the last
// refresh are still found.
func (d *Directory) Member(ctx context.Context, studentID string) (models.MemberRecord, error) {
	studentID = NormalizeStudentID(studentID)
	members, err := d.Members(ctx)
	if err != nil {
		return nil, err
	}
	if m, ok := findMember(members, studentID); ok {
		return m, nil
	}
	d.Flush()
	members, err = d.Members(ctx)
	if err != nil {
		return nil, err
	}
	if m, ok := findMember(members, studentID); ok {
		return m, nil
	}
	return nil, apperr.NotFound("member not found")
}

// Count returns the number of directory rows.
func (d *Directory) Count(ctx context.Context) (int, error) {
	members, err := d.Members(ctx)
	if err != nil {
		return 0, err
	}
	return len(members), nil
}

// HasPermission reports whether the member with the given student
// number carries the admin permit flag. An unknown member simply has no
// permission.
func (d *Directory) HasPermission(ctx context.Context, studentID string) (bool, error) {
	m, err := d.Member(ctx, studentID)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return false, nil
		}
		return false, err
	}
	return m.Permitted(), nil
}

// HasPermissionByEmail checks the permit flag for the member whose
// student number is the email local part.
func (d *Directory) HasPermissionByEmail(ctx context.Context, email string) (bool, error) {
	return d.HasPermission(ctx, StudentIDFromEmail(email))
}
