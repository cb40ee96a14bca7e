package reader

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/jonwraymond/pipecache/cachekey"
	"github.com/jonwraymond/pipecache/observe"
	"github.com/jonwraymond/pipecache/pipeline"
	"github.com/jonwraymond/pipecache/validity"
)

// ErrInvalidDescriptor is returned by NewDatabaseReader for an unusable
// table description.
var ErrInvalidDescriptor = errors.New("reader: invalid database descriptor")

// DatabaseConfig describes the table a DatabaseReader serves from. The
// step's src is the value of KeyColumn.
type DatabaseConfig struct {
	// Table is the table name.
	Table string `yaml:"table"`

	// KeyColumn identifies the row.
	KeyColumn string `yaml:"key_column"`

	// BlobColumn holds the payload.
	BlobColumn string `yaml:"blob_column"`

	// LastModifiedColumn holds the row's modification time. Without it the
	// output is never cached.
	LastModifiedColumn string `yaml:"last_modified_column"`

	// ContentType is sent for every row.
	// Default: application/octet-stream
	ContentType string `yaml:"content_type"`

	// Where is an extra condition ANDed to the key lookup.
	Where string `yaml:"where"`

	// OrderBy picks a row when the key is not unique.
	OrderBy string `yaml:"order_by"`

	// Placeholder is the bind parameter style: "?" or "$".
	// Default: "?"
	Placeholder string `yaml:"placeholder"`

	// Expires is the client cache hint in milliseconds.
	// Default: -1
	Expires int64 `yaml:"expires"`
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// descriptor is the validated, immutable form of a DatabaseConfig with its
// queries built once.
type descriptor struct {
	cfg          DatabaseConfig
	selectBlob   string
	selectStamp  string
	expires      time.Duration
	keyComponent cachekey.Key
}

func newDescriptor(cfg DatabaseConfig) (*descriptor, error) {
	if cfg.ContentType == "" {
		cfg.ContentType = "application/octet-stream"
	}
	if cfg.Placeholder == "" {
		cfg.Placeholder = "?"
	}

	for name, v := range map[string]string{
		"table":       cfg.Table,
		"key-column":  cfg.KeyColumn,
		"blob-column": cfg.BlobColumn,
	} {
		if !identifier.MatchString(v) {
			return nil, fmt.Errorf("%w: %s %q", ErrInvalidDescriptor, name, v)
		}
	}
	if cfg.LastModifiedColumn != "" && !identifier.MatchString(cfg.LastModifiedColumn) {
		return nil, fmt.Errorf("%w: last-modified-column %q", ErrInvalidDescriptor, cfg.LastModifiedColumn)
	}

	var bind string
	switch cfg.Placeholder {
	case "?":
		bind = "?"
	case "$":
		bind = "$1"
	default:
		return nil, fmt.Errorf("%w: placeholder %q", ErrInvalidDescriptor, cfg.Placeholder)
	}

	where := cfg.KeyColumn + " = " + bind
	if cfg.Where != "" {
		where += " AND (" + cfg.Where + ")"
	}
	order := ""
	if cfg.OrderBy != "" {
		order = " ORDER BY " + cfg.OrderBy
	}

	d := &descriptor{
		cfg:        cfg,
		selectBlob: "SELECT " + cfg.BlobColumn + " FROM " + cfg.Table + " WHERE " + where + order,
	}
	if cfg.LastModifiedColumn != "" {
		d.selectStamp = "SELECT " + cfg.LastModifiedColumn + " FROM " + cfg.Table + " WHERE " + where + order
	}
	if cfg.Expires > 0 {
		d.expires = time.Duration(cfg.Expires) * time.Millisecond
	}
	d.keyComponent = cachekey.New("database").
		Params("query", map[string]string{
			"table":       cfg.Table,
			"key-column":  cfg.KeyColumn,
			"blob-column": cfg.BlobColumn,
			"where":       cfg.Where,
			"order-by":    cfg.OrderBy,
		}).
		Build()
	return d, nil
}

// DatabaseReader serves one blob column of a table row.
//
// Its validity is the row's last-modified column, fetched only when the
// evaluator finds a stored entry to compare against, or eagerly when the
// request is conditional so Last-Modified is known up front.
type DatabaseReader struct {
	db     *sql.DB
	desc   *descriptor
	logger observe.Logger
}

// NewDatabaseReader validates cfg and prepares its queries.
func NewDatabaseReader(cfg DatabaseConfig, db *sql.DB, logger observe.Logger) (*DatabaseReader, error) {
	desc, err := newDescriptor(cfg)
	if err != nil {
		return nil, err
	}
	return &DatabaseReader{db: db, desc: desc, logger: observe.OrNop(logger)}, nil
}

// Name implements pipeline.Component.
func (r *DatabaseReader) Name() string { return "database" }

// Queries returns the blob and last-modified queries.
func (r *DatabaseReader) Queries() (blob, lastModified string) {
	return r.desc.selectBlob, r.desc.selectStamp
}

// Setup implements pipeline.Component.
func (r *DatabaseReader) Setup(ctx context.Context, env pipeline.Environment, src string, _ pipeline.Parameters) (*pipeline.Stage, error) {
	if src == "" {
		return nil, fmt.Errorf("%w: empty key", pipeline.ErrResourceNotFound)
	}

	st := &pipeline.Stage{
		Name:     r.Name(),
		Expires:  r.desc.expires,
		MimeType: r.desc.cfg.ContentType,
		Contract: pipeline.Uncacheable(),
		Run: func(ctx context.Context, _ io.Reader, out io.Writer) error {
			blob, err := r.blob(ctx, src)
			if err != nil {
				return err
			}
			_, err = out.Write(blob)
			return err
		},
	}
	if r.desc.selectStamp == "" {
		return st, nil
	}

	key := cachekey.Compose(r.desc.keyComponent, cachekey.New("row").String("src", src).Build())
	if _, conditional := env.DateHeader("If-Modified-Since"); conditional {
		mod, err := r.lastModified(ctx, src)
		if err != nil {
			return nil, err
		}
		st.LastModified = mod
		st.Contract = pipeline.Cacheable(key, tokenFor(mod))
		return st, nil
	}

	st.Contract = pipeline.Cacheable(key, validity.Defer(func(ctx context.Context) (validity.Token, error) {
		mod, err := r.lastModified(ctx, src)
		if err != nil {
			return nil, err
		}
		return tokenFor(mod), nil
	}))
	return st, nil
}

func (r *DatabaseReader) blob(ctx context.Context, src string) ([]byte, error) {
	var blob []byte
	err := r.db.QueryRowContext(ctx, r.desc.selectBlob, src).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s %s=%s", pipeline.ErrResourceNotFound, r.desc.cfg.Table, r.desc.cfg.KeyColumn, src)
	}
	if err != nil {
		return nil, fmt.Errorf("reader: query %s: %w", r.desc.cfg.Table, err)
	}
	return blob, nil
}

func (r *DatabaseReader) lastModified(ctx context.Context, src string) (time.Time, error) {
	var raw any
	err := r.db.QueryRowContext(ctx, r.desc.selectStamp, src).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, fmt.Errorf("%w: %s %s=%s", pipeline.ErrResourceNotFound, r.desc.cfg.Table, r.desc.cfg.KeyColumn, src)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("reader: query %s: %w", r.desc.cfg.Table, err)
	}
	mod, err := asTime(raw)
	if err != nil {
		r.logger.Warn(ctx, "unreadable last-modified column",
			observe.F("table", r.desc.cfg.Table), observe.F("column", r.desc.cfg.LastModifiedColumn), observe.Err(err))
		return time.Time{}, nil
	}
	return mod, nil
}

// asTime converts a scanned last-modified value. Integers are Unix
// milliseconds; text is RFC 3339 or "2006-01-02 15:04:05" in UTC.
func asTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return t, nil
	case int64:
		return time.UnixMilli(t), nil
	case []byte:
		return parseStamp(string(t))
	case string:
		return parseStamp(t)
	default:
		return time.Time{}, fmt.Errorf("unsupported type %T", v)
	}
}

func parseStamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.ParseInLocation(time.DateTime, s, time.UTC)
}
