package gateway

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/searchgate/searchgate/internal/degrade"
	"github.com/searchgate/searchgate/internal/domain"
	"github.com/searchgate/searchgate/internal/metrics"
	"github.com/searchgate/searchgate/internal/provider"
)

// StreamSearch returns a lazy hit stream for the query. Providers with
// native streaming serve it directly; everything else is emulated through
// repeated paginated searches, transparently to the caller. A short page
// from the provider ends the emulated stream.
func (g *Gateway) StreamSearch(ctx context.Context, index string, q domain.Query) (provider.Stream, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	q, err := g.resolveVector(ctx, q)
	if err != nil {
		return nil, err
	}

	candidates := g.candidates(Classify(q))
	var lastErr error
	for _, id := range candidates {
		stream, err := g.openStream(ctx, id, index, q)
		if err == nil {
			return stream, nil
		}
		lastErr = err
		if isCallerError(err) {
			return nil, err
		}
		if _, unsup := domain.UnsupportedFeature(err); unsup || domain.IsFailover(err) {
			g.logger.Warn("stream open failed, trying next provider",
				zap.String("provider", id),
				zap.Error(err),
			)
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("no provider could serve the stream: %w", lastErr)
}

func (g *Gateway) openStream(ctx context.Context, providerID, index string, q domain.Query) (provider.Stream, error) {
	caps, err := g.caps.Capabilities(providerID)
	if err != nil {
		return nil, err
	}
	plan, err := g.engine.Plan(q, providerID)
	if err != nil {
		return nil, err
	}

	emulateHighlights := false
	for _, f := range plan.Emulations {
		if f == domain.FeatureHighlighting {
			emulateHighlights = true
		}
	}

	if caps.Streaming {
		adapter := g.adapters[providerID]
		inner, err := adapter.StreamSearch(ctx, index, plan.Query)
		if err != nil {
			return nil, err
		}
		metrics.ProviderAttemptsTotal.WithLabelValues(providerID, metrics.OutcomeSuccess).Inc()
		if emulateHighlights && q.Highlight != nil {
			metrics.DegradationsTotal.WithLabelValues(providerID, string(domain.FeatureHighlighting)).Inc()
			return &highlightStream{inner: inner, text: q.Text, spec: *q.Highlight}, nil
		}
		return inner, nil
	}

	metrics.DegradationsTotal.WithLabelValues(providerID, string(domain.FeatureStreaming)).Inc()
	s := &pageStream{
		gw:         g,
		providerID: providerID,
		index:      index,
		query:      plan.Query,
		pageSize:   g.cfg.streamPageSize(),
	}
	if emulateHighlights && q.Highlight != nil {
		return &highlightStream{inner: s, text: q.Text, spec: *q.Highlight}, nil
	}
	return s, nil
}

// pageStream emulates streaming by walking offset pagination until the
// provider returns a short page.
type pageStream struct {
	gw         *Gateway
	providerID string
	index      string
	query      domain.Query
	pageSize   int
	offset     int
	buf        []domain.Hit
	done       bool
}

func (s *pageStream) Next(ctx context.Context) (domain.Hit, error) {
	for len(s.buf) == 0 {
		if s.done {
			return domain.Hit{}, io.EOF
		}
		hits, err := s.fetchPage(ctx)
		if err != nil {
			return domain.Hit{}, err
		}
		if len(hits) < s.pageSize {
			s.done = true
		}
		if len(hits) == 0 {
			return domain.Hit{}, io.EOF
		}
		s.buf = hits
	}
	hit := s.buf[0]
	s.buf = s.buf[1:]
	return hit, nil
}

func (s *pageStream) fetchPage(ctx context.Context) ([]domain.Hit, error) {
	q := s.query.Clone()
	offset := s.offset
	q.Offset = &offset
	q.Page = 0
	q.PerPage = s.pageSize

	actx, cancel := context.WithTimeout(ctx, s.gw.cfg.attemptTimeout())
	defer cancel()

	res, err := s.gw.adapters[s.providerID].Search(actx, s.index, q)
	if err != nil {
		metrics.ProviderAttemptsTotal.WithLabelValues(s.providerID, metrics.OutcomeFailure).Inc()
		return nil, fmt.Errorf("stream page at offset %d: %w", s.offset, err)
	}
	metrics.ProviderAttemptsTotal.WithLabelValues(s.providerID, metrics.OutcomeSuccess).Inc()
	s.offset += len(res.Hits)
	return res.Hits, nil
}

// highlightStream decorates a stream with client-side highlight emulation.
type highlightStream struct {
	inner provider.Stream
	text  string
	spec  domain.HighlightSpec
}

func (s *highlightStream) Next(ctx context.Context) (domain.Hit, error) {
	hit, err := s.inner.Next(ctx)
	if err != nil {
		return domain.Hit{}, err
	}
	hits := []domain.Hit{hit}
	degrade.EmulateHighlights(hits, s.text, s.spec)
	return hits[0], nil
}
