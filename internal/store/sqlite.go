package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"happysd/internal/domain"
	"happysd/internal/imaging"
)

// SQLite persists jobs and accounts in a single database file shared by the
// API and worker processes. Reads go straight to the database; every mutation
// first takes the cross-process write lock.
type SQLite struct {
	db        *sql.DB
	lock      *WriteLock
	images    *imaging.Store
	inlineMax int
	logger    zerolog.Logger
}

// Options configures Open.
type Options struct {
	DBPath    string
	LockPath  string
	ImageDir  string
	InlineMax int // inline payloads above this many bytes are offloaded to files
	Logger    zerolog.Logger
}

// Open connects to the database file, applies the schema and returns the
// store. The connection is capped at one so statements from a single process
// never interleave at the driver level.
func Open(opts Options) (*SQLite, error) {
	db, err := sql.Open("sqlite3", opts.DBPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", domain.ErrStorage, opts.DBPath, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: set journal mode: %v", domain.ErrStorage, err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: set busy timeout: %v", domain.ErrStorage, err)
	}

	images, err := imaging.NewStore(opts.ImageDir)
	if err != nil {
		db.Close()
		return nil, err
	}

	lockPath := opts.LockPath
	if lockPath == "" {
		lockPath = opts.DBPath + ".lock"
	}

	s := &SQLite{
		db:        db,
		lock:      NewWriteLock(lockPath),
		images:    images,
		inlineMax: opts.InlineMax,
		logger:    opts.Logger,
	}
	if err := s.initSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT UNIQUE,
		apikey TEXT,
		quota INT DEFAULT 50
	);
	CREATE TABLE IF NOT EXISTS history (
		uuid TEXT PRIMARY KEY,
		created_at TIMESTAMP,
		updated_at TIMESTAMP,
		apikey TEXT,
		priority INT,
		type TEXT,
		status TEXT,
		prompt TEXT,
		lang TEXT,
		neg_prompt TEXT,
		seed INT,
		ref_img TEXT,
		mask_img TEXT,
		img TEXT,
		width INT,
		height INT,
		guidance_scale FLOAT,
		steps INT,
		scheduler TEXT,
		strength FLOAT,
		base_model TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_history_status_created_at ON history(status, created_at);
	CREATE INDEX IF NOT EXISTS idx_history_apikey ON history(apikey);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("%w: init schema: %v", domain.ErrStorage, err)
	}
	return nil
}

const jobColumns = `uuid, created_at, updated_at, apikey, priority, type, status,
	prompt, lang, neg_prompt, seed, ref_img, mask_img, img,
	width, height, guidance_scale, steps, scheduler, strength, base_model`

// offload replaces a large inline payload with a content-addressed file path.
// Small payloads and already-offloaded paths pass through untouched.
func (s *SQLite) offload(field string) string {
	if field == "" || !imaging.IsDataURI(field) || !s.images.Enabled() {
		return field
	}
	if s.inlineMax > 0 && len(field) <= s.inlineMax {
		return field
	}
	path, err := s.images.Save(field)
	if err != nil {
		s.logger.Warn().Err(err).Msg("store: image offload failed, keeping inline")
		return field
	}
	return path
}

// Insert persists a new pending job and returns its id.
func (s *SQLite) Insert(ctx context.Context, job *domain.Job) (string, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	job.Status = domain.JobStatusPending
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now

	refImg := s.offload(job.ReferenceImage)
	maskImg := s.offload(job.MaskImage)

	release, err := s.lock.Acquire()
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	defer release()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO history (`+jobColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.CreatedAt, job.UpdatedAt, job.OwnerKey, job.Priority,
		string(job.Type), string(job.Status),
		job.Prompt, job.Language, job.NegPrompt, job.Params.Seed,
		refImg, maskImg, job.ResultImage,
		job.Params.Width, job.Params.Height, job.Params.GuidanceScale,
		job.Params.Steps, job.Params.Scheduler, job.Params.Strength,
		job.BaseModel,
	)
	if err != nil {
		return "", fmt.Errorf("%w: insert job %s: %v", domain.ErrStorage, job.ID, err)
	}
	return job.ID, nil
}

// Get returns jobs matching the filter, newest first, image columns resolved
// to their renderable form.
func (s *SQLite) Get(ctx context.Context, f domain.Filter) ([]domain.Job, error) {
	var (
		where []string
		args  []any
	)
	if f.ID != "" {
		where = append(where, "uuid = ?")
		args = append(args, f.ID)
	}
	if f.OwnerKey != "" {
		where = append(where, "apikey = ?")
		args = append(args, f.OwnerKey)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if len(f.Types) > 0 {
		marks := make([]string, len(f.Types))
		for i, t := range f.Types {
			marks[i] = "?"
			args = append(args, string(t))
		}
		where = append(where, "type IN ("+strings.Join(marks, ", ")+")")
	}

	query := "SELECT " + jobColumns + " FROM history"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	return s.queryJobs(ctx, query, args, true)
}

// NextPending returns the oldest pending job system-wide, for dispatch.
func (s *SQLite) NextPending(ctx context.Context) (*domain.Job, error) {
	jobs, err := s.queryJobs(ctx,
		"SELECT "+jobColumns+" FROM history WHERE status = ? ORDER BY created_at ASC LIMIT 1",
		[]any{string(domain.JobStatusPending)}, true)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, domain.ErrNotFound
	}
	return &jobs[0], nil
}

// Update merges the non-nil patch fields into the job and refreshes
// updated_at. Unknown ids yield ErrNotFound.
func (s *SQLite) Update(ctx context.Context, id string, p domain.Patch) error {
	var (
		sets []string
		args []any
	)
	add := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}
	if p.Status != nil {
		add("status", string(*p.Status))
	}
	if p.Prompt != nil {
		add("prompt", *p.Prompt)
	}
	if p.NegPrompt != nil {
		add("neg_prompt", *p.NegPrompt)
	}
	if p.ResultImage != nil {
		add("img", s.offload(*p.ResultImage))
	}
	if p.BaseModel != nil {
		add("base_model", *p.BaseModel)
	}
	if p.Seed != nil {
		add("seed", *p.Seed)
	}
	if p.Width != nil {
		add("width", *p.Width)
	}
	if p.Height != nil {
		add("height", *p.Height)
	}
	if p.Steps != nil {
		add("steps", *p.Steps)
	}
	add("updated_at", time.Now().UTC())
	args = append(args, id)

	release, err := s.lock.Acquire()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	defer release()

	res, err := s.db.ExecContext(ctx,
		"UPDATE history SET "+strings.Join(sets, ", ")+" WHERE uuid = ?", args...)
	if err != nil {
		return fmt.Errorf("%w: update job %s: %v", domain.ErrStorage, id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: update job %s: %v", domain.ErrStorage, id, err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// CountPending counts pending jobs owned by the key.
func (s *SQLite) CountPending(ctx context.Context, ownerKey string) (int, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM history WHERE apikey = ? AND status = ?",
		ownerKey, string(domain.JobStatusPending))
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count pending: %v", domain.ErrStorage, err)
	}
	return n, nil
}

// Delete removes the job when the optional filters match. A false return
// with nil error means no row matched.
func (s *SQLite) Delete(ctx context.Context, id, ownerKey string, requiredStatus domain.JobStatus) (bool, error) {
	if id == "" && ownerKey == "" {
		return false, errors.New("store: either id or owner key must be provided")
	}

	var (
		where []string
		args  []any
	)
	if id != "" {
		where = append(where, "uuid = ?")
		args = append(args, id)
	}
	if ownerKey != "" {
		where = append(where, "apikey = ?")
		args = append(args, ownerKey)
	}
	if requiredStatus != "" {
		where = append(where, "status = ?")
		args = append(args, string(requiredStatus))
	}

	release, err := s.lock.Acquire()
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	defer release()

	res, err := s.db.ExecContext(ctx,
		"DELETE FROM history WHERE "+strings.Join(where, " AND "), args...)
	if err != nil {
		return false, fmt.Errorf("%w: delete job: %v", domain.ErrStorage, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: delete job: %v", domain.ErrStorage, err)
	}
	return affected > 0, nil
}

// RandomSample returns roughly 30% of completed jobs for public display,
// owner keys stripped.
func (s *SQLite) RandomSample(ctx context.Context, limit int) ([]domain.Job, error) {
	query := "SELECT " + jobColumns + ` FROM history
		WHERE status = ? AND (ABS(RANDOM()) % 100) < 30`
	args := []any{string(domain.JobStatusDone)}
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	jobs, err := s.queryJobs(ctx, query, args, true)
	if err != nil {
		return nil, err
	}
	for i := range jobs {
		jobs[i].OwnerKey = ""
	}
	return jobs, nil
}

func (s *SQLite) queryJobs(ctx context.Context, query string, args []any, resolveImages bool) ([]domain.Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query jobs: %v", domain.ErrStorage, err)
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan job: %v", domain.ErrStorage, err)
		}
		if resolveImages {
			job.ReferenceImage = imaging.Resolve(job.ReferenceImage)
			job.MaskImage = imaging.Resolve(job.MaskImage)
			job.ResultImage = imaging.Resolve(job.ResultImage)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: query jobs: %v", domain.ErrStorage, err)
	}
	return jobs, nil
}

func scanJob(rows *sql.Rows) (domain.Job, error) {
	var (
		job       domain.Job
		jobType   string
		status    string
		prompt    sql.NullString
		lang      sql.NullString
		negPrompt sql.NullString
		seed      sql.NullInt64
		refImg    sql.NullString
		maskImg   sql.NullString
		img       sql.NullString
		width     sql.NullInt64
		height    sql.NullInt64
		guidance  sql.NullFloat64
		steps     sql.NullInt64
		scheduler sql.NullString
		strength  sql.NullFloat64
		baseModel sql.NullString
	)
	err := rows.Scan(
		&job.ID, &job.CreatedAt, &job.UpdatedAt, &job.OwnerKey, &job.Priority,
		&jobType, &status,
		&prompt, &lang, &negPrompt, &seed, &refImg, &maskImg, &img,
		&width, &height, &guidance, &steps, &scheduler, &strength, &baseModel,
	)
	if err != nil {
		return domain.Job{}, err
	}
	job.Type = domain.JobType(jobType)
	job.Status = domain.JobStatus(status)
	job.Prompt = prompt.String
	job.Language = lang.String
	job.NegPrompt = negPrompt.String
	job.ReferenceImage = refImg.String
	job.MaskImage = maskImg.String
	job.ResultImage = img.String
	job.BaseModel = baseModel.String
	job.Params = domain.Params{
		Seed:          seed.Int64,
		Width:         int(width.Int64),
		Height:        int(height.Int64),
		GuidanceScale: guidance.Float64,
		Steps:         int(steps.Int64),
		Scheduler:     scheduler.String,
		Strength:      strength.Float64,
	}
	return job, nil
}

// Validate resolves an access key to its account, or ErrNotFound for an
// unknown key.
func (s *SQLite) Validate(ctx context.Context, apikey string) (*domain.Account, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT username, apikey, quota FROM users WHERE apikey = ?", apikey)
	var account domain.Account
	if err := row.Scan(&account.Username, &account.APIKey, &account.Quota); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: validate key: %v", domain.ErrStorage, err)
	}
	return &account, nil
}

var (
	_ domain.JobStore      = (*SQLite)(nil)
	_ domain.UserDirectory = (*SQLite)(nil)
)
