package classify

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/vecmatch/internal/domain"
	"github.com/kailas-cloud/vecmatch/internal/domain/search/filter"
	"github.com/kailas-cloud/vecmatch/internal/domain/search/query"
	"github.com/kailas-cloud/vecmatch/internal/domain/search/result"
)

// Modality names used in results and metrics.
const (
	ModalityText  = "text"
	ModalityImage = "image"
)

// Default engine settings.
const (
	DefaultNeighbors       = 2
	DefaultTextWeight      = 1.0
	DefaultImageWeight     = 1.2
	DefaultSingleThreshold = 0.66
	DefaultDualThreshold   = 1.3
	DefaultCaptionMaxChars = 200
	DefaultLabelField      = "name"
)

// Config tunes the classifier. Zero values take the defaults above.
type Config struct {
	// GroupCollection holds one record per group with a vector field per model kind.
	// TextCollection and ImageCollection override it for one modality.
	// A modality with no collection is disabled.
	GroupCollection string
	TextCollection  string
	ImageCollection string
	LabelField      string
	DefaultGroup    string

	Neighbors       int
	TextWeight      float64
	ImageWeight     float64
	SingleThreshold float64
	DualThreshold   float64
	CaptionMaxChars int
}

func (c *Config) textCollection() string {
	if c.TextCollection != "" {
		return c.TextCollection
	}
	return c.GroupCollection
}

func (c *Config) imageCollection() string {
	if c.ImageCollection != "" {
		return c.ImageCollection
	}
	return c.GroupCollection
}

func (c *Config) applyDefaults() {
	if c.LabelField == "" {
		c.LabelField = DefaultLabelField
	}
	if c.Neighbors <= 0 {
		c.Neighbors = DefaultNeighbors
	}
	if c.TextWeight <= 0 {
		c.TextWeight = DefaultTextWeight
	}
	if c.ImageWeight <= 0 {
		c.ImageWeight = DefaultImageWeight
	}
	if c.SingleThreshold <= 0 {
		c.SingleThreshold = DefaultSingleThreshold
	}
	if c.DualThreshold <= 0 {
		c.DualThreshold = DefaultDualThreshold
	}
	if c.CaptionMaxChars <= 0 {
		c.CaptionMaxChars = DefaultCaptionMaxChars
	}
}

// Input is the content to classify. Empty Caption or Image means the modality is absent.
type Input struct {
	Caption      string
	Image        string // base64 or data-URI
	DefaultGroup string // overrides Config.DefaultGroup when set
}

// GroupScore is the evidence accumulated for one group.
type GroupScore struct {
	Label               string
	Accumulated         float64
	SourcesContributing int
}

// Result is the classification decision.
// When UsedDefault is set, Confidence is the best score seen, which did not pass the threshold.
type Result struct {
	Label       string
	Confidence  float64
	UsedDefault bool
	Modalities  []string
}

// Engine classifies content into groups by combining per-modality nearest-group evidence.
type Engine struct {
	cfg       Config
	embed     Embedder
	retriever Retriever
	colls     CollectionReader
	builder   *query.Builder
	decisions *prometheus.CounterVec
	logger    *zap.Logger
}

// New creates a classification engine.
// decisions is a counter vec with labels "modalities" and "outcome"; nil disables it.
func New(
	cfg Config,
	embed Embedder,
	r Retriever,
	colls CollectionReader,
	decisions *prometheus.CounterVec,
	logger *zap.Logger,
) *Engine {
	cfg.applyDefaults()
	return &Engine{
		cfg:       cfg,
		embed:     embed,
		retriever: r,
		colls:     colls,
		builder:   query.NewBuilder(query.DefaultAlpha),
		decisions: decisions,
		logger:    logger,
	}
}

// evidence is what one modality found: its hits in index order.
type evidence struct {
	modality string
	weight   float64
	hits     []result.Hit
}

// Classify picks the group best supported by the caption and/or image.
// Failures inside a modality remove its evidence and never fail the call.
func (e *Engine) Classify(ctx context.Context, in Input) Result {
	def := in.DefaultGroup
	if def == "" {
		def = e.cfg.DefaultGroup
	}

	caption := strings.TrimSpace(in.Caption)
	image := strings.TrimSpace(in.Image)

	var textEv, imageEv *evidence
	var g errgroup.Group
	if caption != "" && e.cfg.textCollection() != "" {
		g.Go(func() error {
			textEv = e.textEvidence(ctx, truncateRunes(caption, e.cfg.CaptionMaxChars))
			return nil
		})
	}
	if image != "" && e.cfg.imageCollection() != "" {
		g.Go(func() error {
			imageEv = e.imageEvidence(ctx, image)
			return nil
		})
	}
	_ = g.Wait()

	// Text before image keeps tie-breaking reproducible.
	var found []evidence
	for _, ev := range []*evidence{textEv, imageEv} {
		if ev != nil && len(ev.hits) > 0 {
			found = append(found, *ev)
		}
	}

	res := e.decide(found, def)
	e.record(res)
	return res
}

func (e *Engine) decide(found []evidence, def string) Result {
	modalities := make([]string, 0, len(found))
	for _, ev := range found {
		modalities = append(modalities, ev.modality)
	}

	scores := e.accumulate(found)
	if len(scores) == 0 {
		return Result{Label: def, UsedDefault: true, Modalities: modalities}
	}

	best := scores[0]
	for _, s := range scores[1:] {
		if s.Accumulated > best.Accumulated {
			best = s
		}
	}

	threshold := e.cfg.SingleThreshold
	if len(found) > 1 {
		threshold = e.cfg.DualThreshold
	}

	if best.Accumulated >= threshold {
		return Result{Label: best.Label, Confidence: best.Accumulated, Modalities: modalities}
	}
	return Result{Label: def, Confidence: best.Accumulated, UsedDefault: true, Modalities: modalities}
}

// accumulate sums weighted similarities per group label in first-seen order.
func (e *Engine) accumulate(found []evidence) []GroupScore {
	var scores []GroupScore
	index := make(map[string]int)
	contributed := make(map[string]map[string]struct{})

	for _, ev := range found {
		for _, h := range ev.hits {
			sim, ok := h.Similarity()
			if !ok {
				continue
			}
			label := h.Field(e.cfg.LabelField)
			if label == "" {
				label = h.ID
			}

			i, seen := index[label]
			if !seen {
				i = len(scores)
				index[label] = i
				scores = append(scores, GroupScore{Label: label})
				contributed[label] = make(map[string]struct{}, 2)
			}
			scores[i].Accumulated += sim * ev.weight
			if _, ok := contributed[label][ev.modality]; !ok {
				contributed[label][ev.modality] = struct{}{}
				scores[i].SourcesContributing++
			}
		}
	}
	return scores
}

func (e *Engine) textEvidence(ctx context.Context, caption string) *evidence {
	name := e.cfg.textCollection()
	col, err := e.colls.Get(name)
	if err != nil {
		e.logger.Warn("Text group collection unavailable", zap.Error(err))
		return nil
	}
	vs, ok := col.TextVector()
	if !ok {
		e.logger.Warn("Text group collection has no vector field", zap.String("collection", name))
		return nil
	}
	out := e.embed.EmbedText(ctx, caption, vs.Kind)
	return e.search(ctx, ModalityText, e.cfg.TextWeight, name, out)
}

func (e *Engine) imageEvidence(ctx context.Context, image string) *evidence {
	name := e.cfg.imageCollection()
	col, err := e.colls.Get(name)
	if err != nil {
		e.logger.Warn("Image group collection unavailable", zap.Error(err))
		return nil
	}
	if _, ok := col.Vector(domain.ModelImage); !ok {
		e.logger.Warn("Image group collection has no image vector field", zap.String("collection", name))
		return nil
	}
	out := e.embed.EmbedImage(ctx, image, domain.ModelImage)
	return e.search(ctx, ModalityImage, e.cfg.ImageWeight, name, out)
}

func (e *Engine) search(
	ctx context.Context, modality string, weight float64, collection string,
	out domain.Outcome[domain.Embedding],
) *evidence {
	emb, ok := out.Value()
	if !ok {
		e.logger.Info("No evidence from modality",
			zap.String("modality", modality),
			zap.String("reason", out.Reason()),
		)
		return nil
	}

	hits, err := e.nearestGroups(ctx, collection, emb)
	if err != nil {
		e.logger.Warn("Group retrieval failed",
			zap.String("modality", modality),
			zap.String("collection", collection),
			zap.Error(err),
		)
		return nil
	}
	return &evidence{modality: modality, weight: weight, hits: hits}
}

func (e *Engine) nearestGroups(ctx context.Context, collection string, emb domain.Embedding) ([]result.Hit, error) {
	col, err := e.colls.Get(collection)
	if err != nil {
		return nil, fmt.Errorf("get collection: %w", err)
	}
	d, err := e.builder.Build(col, "", filter.Expression{}, e.cfg.Neighbors, &emb, nil)
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	if d.Vector == nil {
		return nil, fmt.Errorf("collection %s has no vector field: %w", collection, domain.ErrInvalidQuery)
	}
	hits, err := e.retriever.Search(ctx, d)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", collection, err)
	}
	return hits, nil
}

func (e *Engine) record(res Result) {
	if e.decisions == nil {
		return
	}
	modalities := "none"
	if len(res.Modalities) > 0 {
		modalities = strings.Join(res.Modalities, "+")
	}
	outcome := "matched"
	if res.UsedDefault {
		outcome = "default"
	}
	e.decisions.WithLabelValues(modalities, outcome).Inc()
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
