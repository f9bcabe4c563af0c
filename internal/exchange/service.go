// Package exchange implements the HUMAN protocol orchestration core: signed
// job intake, manifest-driven project bootstrap, hash-verified task-data
// import, threshold auto-curation on completion, and signed result
// publication back to the job flow.
package exchange

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/raphaelgruber/annobridge/internal/manifest"
	"github.com/raphaelgruber/annobridge/internal/messages"
	"github.com/raphaelgruber/annobridge/internal/metrics"
)

// Artifact file names kept per project under the repository directory.
const (
	manifestArtifact   = "job-manifest.json"
	jobRequestArtifact = "job-request.json"
)

// ErrNoArtifact is returned when a project has no persisted manifest or job
// request, i.e. it is not a project this exchange manages.
var ErrNoArtifact = errors.New("no exchange artifact for project")

// Config carries the exchange identity and peer endpoints. JobFlowURL, the
// S3 settings behind the blob store, and InviteBaseURL may each be empty;
// the operations depending on them degrade to no-ops.
type Config struct {
	ExchangeID    int
	ExchangeKey   string
	JobFlowURL    string
	InviteBaseURL string
	RepositoryDir string
}

// Service wires the exchange operations to the annotation platform
// collaborators. All methods are safe for concurrent use across projects;
// artifact access for a single project is serialized by a per-project lock.
type Service struct {
	cfg       Config
	projects  ProjectRegistry
	documents DocumentStore
	schema    SchemaRegistry
	workload  WorkloadManager
	invites   InviteService
	blob      BlobStore
	client    *http.Client
	stats     *metrics.Collector
	log       *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService creates the exchange service. A nil client falls back to
// http.DefaultClient, a nil logger to slog.Default().
func NewService(cfg Config, projects ProjectRegistry, documents DocumentStore, schema SchemaRegistry, workload WorkloadManager, invites InviteService, blob BlobStore, stats *metrics.Collector, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	if stats == nil {
		stats = metrics.NewCollector()
	}
	return &Service{
		cfg:       cfg,
		projects:  projects,
		documents: documents,
		schema:    schema,
		workload:  workload,
		invites:   invites,
		blob:      blob,
		client:    http.DefaultClient,
		stats:     stats,
		log:       log,
		locks:     make(map[string]*sync.Mutex),
	}
}

// SetHTTPClient replaces the outbound HTTP client. Intended for tests.
func (s *Service) SetHTTPClient(c *http.Client) {
	if c != nil {
		s.client = c
	}
}

// Metrics exposes the service's runtime statistics collector.
func (s *Service) Metrics() *metrics.Collector {
	return s.stats
}

// projectLock returns the mutex guarding the artifact files of one project.
func (s *Service) projectLock(slug string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[slug]
	if !ok {
		l = &sync.Mutex{}
		s.locks[slug] = l
	}
	return l
}

// artifactDir is the per-project storage area for the manifest and job
// request copies.
func (s *Service) artifactDir(slug string) string {
	return filepath.Join(s.cfg.RepositoryDir, "hmt", slug)
}

// writeManifestArtifact stores the fetched manifest byte-for-byte so fields
// unknown to the typed model survive a round trip. Overwrites on re-import.
func (s *Service) writeManifestArtifact(slug string, raw []byte) error {
	l := s.projectLock(slug)
	l.Lock()
	defer l.Unlock()

	dir := s.artifactDir(slug)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, manifestArtifact), raw, 0o644); err != nil {
		return fmt.Errorf("write manifest artifact: %w", err)
	}
	return nil
}

// writeJobRequestArtifact stores the submission envelope as pretty JSON.
func (s *Service) writeJobRequestArtifact(slug string, req messages.JobRequest) error {
	l := s.projectLock(slug)
	l.Lock()
	defer l.Unlock()

	dir := s.artifactDir(slug)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	data, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal job request: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, jobRequestArtifact), data, 0o644); err != nil {
		return fmt.Errorf("write job request artifact: %w", err)
	}
	return nil
}

// readManifestArtifact loads and parses the persisted manifest. Returns
// ErrNoArtifact when the project has none.
func (s *Service) readManifestArtifact(slug string) (*manifest.JobManifest, error) {
	l := s.projectLock(slug)
	l.Lock()
	defer l.Unlock()

	mf, err := manifest.LoadFile(filepath.Join(s.artifactDir(slug), manifestArtifact))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoArtifact
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest artifact: %w", err)
	}
	return mf, nil
}

// readJobRequestArtifact loads the persisted submission envelope. Returns
// ErrNoArtifact when the project has none.
func (s *Service) readJobRequestArtifact(slug string) (*messages.JobRequest, error) {
	l := s.projectLock(slug)
	l.Lock()
	defer l.Unlock()

	data, err := os.ReadFile(filepath.Join(s.artifactDir(slug), jobRequestArtifact))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoArtifact
	}
	if err != nil {
		return nil, fmt.Errorf("read job request artifact: %w", err)
	}
	var req messages.JobRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("parse job request artifact: %w", err)
	}
	return &req, nil
}
