package qdrant

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	pb "github.com/qdrant/go-client/qdrant"
	"github.com/rs/zerolog"

	"github.com/hopsearch/hopsearch/internal/domain/repository"
)

// Embedder turns a query string into the dense vector the collection was
// indexed with. Embedding happens here, inside the retrieval capability; the
// agent loop only ever sees query strings and passages.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config holds connection settings for the Qdrant index.
type Config struct {
	URL        string // e.g. "http://localhost:6334" or "https://xyz.cloud.qdrant.io:6333"
	APIKey     string
	Collection string
}

// Retriever implements repository.Retriever backed by a Qdrant collection of
// corpus passages with "text" and "title" payload fields.
type Retriever struct {
	client     *pb.Client
	collection string
	embedder   Embedder
	logger     zerolog.Logger
}

// parseURL extracts host, port, and TLS flag from a Qdrant URL. The REST
// port (6333) is remapped to the gRPC port (6334) since this client speaks
// gRPC only.
func parseURL(rawURL string) (host string, port int, useTLS bool, err error) {
	u, parseErr := url.Parse(rawURL)
	if parseErr != nil || u.Host == "" {
		return "", 0, false, fmt.Errorf("invalid qdrant URL: %q", rawURL)
	}

	useTLS = u.Scheme == "https"
	host = u.Hostname()

	if portStr := u.Port(); portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return "", 0, false, fmt.Errorf("invalid port in qdrant URL: %q", portStr)
		}
		if p == 6333 {
			port = 6334
		} else {
			port = p
		}
	} else {
		port = 6334
	}

	return host, port, useTLS, nil
}

// NewRetriever connects to Qdrant and wraps the given collection.
func NewRetriever(cfg Config, embedder Embedder, logger zerolog.Logger) (*Retriever, error) {
	host, port, useTLS, err := parseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	client, err := pb.NewClient(&pb.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to qdrant at %s:%d: %w", host, port, err)
	}

	return &Retriever{
		client:     client,
		collection: cfg.Collection,
		embedder:   embedder,
		logger:     logger.With().Str("component", "qdrant").Logger(),
	}, nil
}

// Search embeds the query and returns up to topK passages ordered by
// descending relevance score. Failures wrap repository.ErrRetrievalFailed so
// the orchestrator can apply its skip policy; an empty result is not an
// error.
func (r *Retriever) Search(ctx context.Context, query string, topK int) ([]repository.Passage, error) {
	vector, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query %q: %w", repository.ErrRetrievalFailed, query, err)
	}

	limit := uint64(topK)
	scored, err := r.client.Query(ctx, &pb.QueryPoints{
		CollectionName: r.collection,
		Query:          pb.NewQueryDense(vector),
		Limit:          &limit,
		WithPayload:    pb.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: qdrant query %q: %w", repository.ErrRetrievalFailed, query, err)
	}

	passages := passagesFromPoints(scored)
	r.logger.Debug().Str("query", query).Int("results", len(passages)).Msg("search complete")
	return passages, nil
}

// passagesFromPoints converts scored Qdrant points into passages, reading the
// "text" and "title" payload fields the upload pipeline writes.
func passagesFromPoints(points []*pb.ScoredPoint) []repository.Passage {
	passages := make([]repository.Passage, 0, len(points))
	for _, point := range points {
		id := point.GetId().GetUuid()
		if id == "" {
			id = strconv.FormatUint(point.GetId().GetNum(), 10)
		}

		payload := point.GetPayload()
		text := payload["text"].GetStringValue()
		title := payload["title"].GetStringValue()

		passages = append(passages, repository.Passage{
			ID:     id,
			Text:   text,
			Source: title,
			Score:  point.GetScore(),
		})
	}
	return passages
}

// Close closes the underlying gRPC connection.
func (r *Retriever) Close() error {
	return r.client.Close()
}
