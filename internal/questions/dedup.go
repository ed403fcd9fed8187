package questions

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/intervox/pkg/provider/embeddings"
)

// DefaultMinDistance is the cosine distance below which two questions are
// considered the same question.
const DefaultMinDistance = 0.15

// Asked is a question a user has received, with its embedding.
type Asked struct {
	Text      string
	Embedding []float32
}

// Match is the closest previously asked question.
type Match struct {
	Text string

	// Distance is the cosine distance in [0, 2].
	Distance float64
}

// History remembers the questions each user has been asked.
type History interface {
	// NearestAsked returns the question closest to embedding among those
	// asked to userID. ok is false when the user has no history.
	NearestAsked(ctx context.Context, userID string, embedding []float32) (m Match, ok bool, err error)

	// RecordAsked stores questions as asked to userID.
	RecordAsked(ctx context.Context, userID string, asked []Asked) error
}

// DedupOption configures a [Deduplicator].
type DedupOption func(*Deduplicator)

// WithMinDistance sets the rejection threshold. Default: [DefaultMinDistance].
func WithMinDistance(d float64) DedupOption {
	return func(dd *Deduplicator) { dd.minDistance = d }
}

// WithOverflow sets how many extra candidates to request per wanted
// question. Default: 1, i.e. twice the wanted count.
func WithOverflow(factor int) DedupOption {
	return func(dd *Deduplicator) { dd.overflow = factor }
}

// WithEmbedConcurrency bounds the number of concurrent embedding calls.
// Default: 4.
func WithEmbedConcurrency(n int) DedupOption {
	return func(dd *Deduplicator) { dd.concurrency = n }
}

// Deduplicator wraps a [Generator] and replaces candidates that repeat a
// question the user was asked before, or another candidate of the same
// batch, with the next candidate from an overflow list. Embedding or
// history failures degrade to the inner generator's plain output.
type Deduplicator struct {
	inner       Generator
	embedder    embeddings.Provider
	history     History
	minDistance float64
	overflow    int
	concurrency int
}

var _ Generator = (*Deduplicator)(nil)

// NewDeduplicator wraps inner.
func NewDeduplicator(inner Generator, embedder embeddings.Provider, history History, opts ...DedupOption) *Deduplicator {
	d := &Deduplicator{
		inner:       inner,
		embedder:    embedder,
		history:     history,
		minDistance: DefaultMinDistance,
		overflow:    1,
		concurrency: 4,
	}
	for _, o := range opts {
		o(d)
	}
	if d.concurrency < 1 {
		d.concurrency = 1
	}
	if d.overflow < 0 {
		d.overflow = 0
	}
	return d
}

// Generate implements [Generator].
func (d *Deduplicator) Generate(ctx context.Context, req Request) ([]Question, error) {
	want := req.Count
	if want <= 0 {
		return []Question{}, nil
	}

	wide := req
	wide.Count = want * (1 + d.overflow)
	candidates, err := d.inner.Generate(ctx, wide)
	if err != nil {
		return nil, err
	}

	vecs, err := d.embed(ctx, candidates)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("questions: dedup: %w", ctxErr)
		}
		slog.Warn("question dedup skipped, embedding failed", "user_id", req.UserID, "err", err)
		return head(candidates, want), nil
	}

	var (
		picked   []int
		rejected []int
	)
	for i := range candidates {
		if len(picked) == want {
			break
		}
		if d.repeatsHistory(ctx, req.UserID, vecs[i]) || d.repeatsBatch(vecs, picked, i) {
			rejected = append(rejected, i)
			continue
		}
		picked = append(picked, i)
	}
	// Too few distinct candidates: fill with the closest-to-acceptable ones
	// in their original order rather than shorten the interview.
	for _, i := range rejected {
		if len(picked) == want {
			break
		}
		picked = append(picked, i)
	}

	out := make([]Question, len(picked))
	asked := make([]Asked, len(picked))
	for n, i := range picked {
		out[n] = candidates[i]
		asked[n] = Asked{Text: candidates[i].Text, Embedding: vecs[i]}
	}
	if req.UserID != "" {
		if err := d.history.RecordAsked(ctx, req.UserID, asked); err != nil {
			slog.Warn("failed to record asked questions", "user_id", req.UserID, "err", err)
		}
	}
	return out, nil
}

func (d *Deduplicator) embed(ctx context.Context, qs []Question) ([][]float32, error) {
	vecs := make([][]float32, len(qs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for i, q := range qs {
		g.Go(func() error {
			v, err := d.embedder.Embed(gctx, q.Text)
			if err != nil {
				return fmt.Errorf("embed question %d: %w", i, err)
			}
			vecs[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vecs, nil
}

func (d *Deduplicator) repeatsHistory(ctx context.Context, userID string, vec []float32) bool {
	if userID == "" {
		return false
	}
	m, ok, err := d.history.NearestAsked(ctx, userID, vec)
	if err != nil {
		slog.Warn("question history lookup failed", "user_id", userID, "err", err)
		return false
	}
	return ok && m.Distance < d.minDistance
}

func (d *Deduplicator) repeatsBatch(vecs [][]float32, picked []int, i int) bool {
	for _, p := range picked {
		if 1-embeddings.CosineSimilarity(vecs[p], vecs[i]) < d.minDistance {
			return true
		}
	}
	return false
}

func head(qs []Question, n int) []Question {
	if len(qs) > n {
		return qs[:n]
	}
	return qs
}
