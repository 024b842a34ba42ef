// Package maintenance keeps node embeddings up to date and makes sure the vector index exists.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/dcia/internal/embedding"
	"github.com/hyperjump/dcia/internal/metrics"
	"github.com/hyperjump/dcia/internal/models"
	"github.com/hyperjump/dcia/internal/store"
	"github.com/hyperjump/dcia/pkg/utils"
)

// ErrNodeVanished marks a candidate deleted between the scan and the write.
var ErrNodeVanished = errors.New("node no longer exists")

// Outcome is what happened to one candidate node.
type Outcome string

const (
	OutcomeEmbedded Outcome = "embedded"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeFailed   Outcome = "failed"
)

// NodeOutcome records the result for a single node.
type NodeOutcome struct {
	NodeID  string  `json:"node_id"`
	Outcome Outcome `json:"outcome"`
	Error   string  `json:"error,omitempty"`
}

// Summary is the record of one maintenance run.
type Summary struct {
	JobID        string        `json:"job_id"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   time.Time     `json:"finished_at"`
	Candidates   int           `json:"candidates"`
	Embedded     int           `json:"embedded"`
	Skipped      int           `json:"skipped"`
	Failed       int           `json:"failed"`
	IndexCreated bool          `json:"index_created"`
	Nodes        []NodeOutcome `json:"nodes"`
	// Err is set when the candidate scan or the index check failed.
	Err string `json:"error,omitempty"`
}

// Ticket acknowledges a run started in the background.
type Ticket struct {
	JobID          string `json:"job_id"`
	CandidateCount int    `json:"candidate_count"`
}

// Job embeds every eligible node lacking an embedding. Runs are best-effort: a node that
// fails is recorded and the batch continues.
type Job struct {
	store       store.Store
	embedder    embedding.Embedder
	concurrency int
	logger      *zap.Logger
	recorder    metrics.Recorder

	wg   sync.WaitGroup
	mu   sync.Mutex
	last *Summary
}

// Option configures a Job.
type Option func(*Job)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(j *Job) { j.logger = utils.OrNop(l) }
}

// WithConcurrency bounds how many nodes are embedded at once. Values below 1 mean 1.
func WithConcurrency(n int) Option {
	return func(j *Job) { j.concurrency = n }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(j *Job) { j.recorder = metrics.OrNop(r) }
}

// New creates a Job over st using emb.
func New(st store.Store, emb embedding.Embedder, opts ...Option) *Job {
	j := &Job{
		store:       st,
		embedder:    emb,
		concurrency: 1,
		logger:      zap.NewNop(),
		recorder:    metrics.Nop(),
	}
	for _, opt := range opts {
		opt(j)
	}
	if j.concurrency < 1 {
		j.concurrency = 1
	}
	return j
}

// Candidates returns the nodes a run would process.
func (j *Job) Candidates(ctx context.Context) ([]models.Candidate, error) {
	c, err := j.store.Candidates(ctx)
	if err != nil {
		return nil, err
	}
	j.logger.Info("found nodes without embeddings", zap.Int("count", len(c)))
	return c, nil
}

// Run processes every candidate, then ensures the vector index exists. It never returns an
// error; failures are recorded in the summary.
func (j *Job) Run(ctx context.Context) *Summary {
	s := &Summary{JobID: uuid.NewString(), StartedAt: time.Now()}
	candidates, err := j.Candidates(ctx)
	if err != nil {
		j.logger.Error("querying nodes without embeddings", zap.Error(err))
		s.Err = err.Error()
		s.FinishedAt = time.Now()
		j.finish(s)
		return s
	}
	return j.process(ctx, s, candidates)
}

// Trigger counts candidates synchronously and processes them in the background on a context
// detached from ctx's cancellation. The error is only for the candidate scan.
func (j *Job) Trigger(ctx context.Context) (Ticket, error) {
	candidates, err := j.Candidates(ctx)
	if err != nil {
		return Ticket{}, err
	}
	s := &Summary{JobID: uuid.NewString(), StartedAt: time.Now()}
	bg := context.WithoutCancel(ctx)
	j.wg.Add(1)
	go func() {
		defer j.wg.Done()
		j.process(bg, s, candidates)
	}()
	return Ticket{JobID: s.JobID, CandidateCount: len(candidates)}, nil
}

// Wait blocks until every triggered run has finished.
func (j *Job) Wait() {
	j.wg.Wait()
}

// Last returns the summary of the most recently finished run.
func (j *Job) Last() (Summary, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.last == nil {
		return Summary{}, false
	}
	out := *j.last
	out.Nodes = append([]NodeOutcome(nil), j.last.Nodes...)
	return out, true
}

// embeddedMarker is implemented by stores whose vector index covers a marker label
// rather than every node with an embedding.
type embeddedMarker interface {
	MarkEmbedded(ctx context.Context) (int, error)
}

// EnsureVectorIndex creates the vector index if it does not exist yet. Stores that
// index a marker label first get the label added to already embedded nodes.
func (j *Job) EnsureVectorIndex(ctx context.Context) (bool, error) {
	if m, ok := j.store.(embeddedMarker); ok {
		marked, err := m.MarkEmbedded(ctx)
		if err != nil {
			return false, err
		}
		if marked > 0 {
			j.logger.Info("marked embedded nodes as searchable", zap.Int("nodes", marked))
		}
	}
	exists, err := j.store.VectorIndexExists(ctx)
	if err != nil {
		return false, err
	}
	if exists {
		j.logger.Info("vector index already exists")
		return false, nil
	}
	if err := j.store.CreateVectorIndex(ctx); err != nil {
		return false, err
	}
	j.logger.Info("created vector index")
	return true, nil
}

func (j *Job) process(ctx context.Context, s *Summary, candidates []models.Candidate) *Summary {
	done := metrics.TimeOp(j.recorder, metrics.OpRefresh)
	s.Candidates = len(candidates)
	s.Nodes = make([]NodeOutcome, len(candidates))

	var g errgroup.Group
	g.SetLimit(j.concurrency)
	for i, c := range candidates {
		g.Go(func() error {
			s.Nodes[i] = j.embedNode(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	for _, n := range s.Nodes {
		switch n.Outcome {
		case OutcomeEmbedded:
			s.Embedded++
		case OutcomeSkipped:
			s.Skipped++
		case OutcomeFailed:
			s.Failed++
		}
	}

	created, err := j.EnsureVectorIndex(ctx)
	if err != nil {
		j.logger.Error("ensuring vector index", zap.Error(err))
		s.Err = fmt.Sprintf("ensuring vector index: %v", err)
	}
	s.IndexCreated = created
	s.FinishedAt = time.Now()

	j.recorder.AddEmbeddingOutcomes(s.Embedded, s.Skipped, s.Failed)
	done(s.Err == "")
	j.logger.Info("embedding refresh finished",
		zap.String("job_id", s.JobID),
		zap.Int("candidates", s.Candidates),
		zap.Int("embedded", s.Embedded),
		zap.Int("skipped", s.Skipped),
		zap.Int("failed", s.Failed),
		zap.Duration("took", s.FinishedAt.Sub(s.StartedAt)))
	j.finish(s)
	return s
}

func (j *Job) embedNode(ctx context.Context, c models.Candidate) NodeOutcome {
	out := NodeOutcome{NodeID: c.NodeID}
	if strings.TrimSpace(c.Text) == "" {
		out.Outcome = OutcomeSkipped
		return out
	}
	fail := func(err error) NodeOutcome {
		j.logger.Warn("embedding node failed", zap.String("node_id", c.NodeID), zap.Error(err))
		out.Outcome = OutcomeFailed
		out.Error = err.Error()
		return out
	}

	vec, err := j.embedder.Embed(ctx, c.Text)
	if err != nil {
		return fail(err)
	}
	ok, err := j.store.SetEmbedding(ctx, c.NodeID, vec)
	if err != nil {
		return fail(err)
	}
	if !ok {
		return fail(ErrNodeVanished)
	}
	j.logger.Debug("updated embedding", zap.String("node_id", c.NodeID))
	out.Outcome = OutcomeEmbedded
	return out
}

func (j *Job) finish(s *Summary) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.last = s
}
