package empenhos

import (
	"context"
	"log/slog"
)

// AvisoEspelhoIndisponivel is attached to listing responses when the mirror
// could not be read and every parcel degraded to uncoloured.
const AvisoEspelhoIndisponivel = "espelho de empenhos indisponível; classificação por empenho suspensa"

type bucketRow struct {
	Chave  Chave  `json:"chave"`
	Bucket Bucket `json:"bucket"`
}

// Service aggregates the mirror into buckets, caching snapshots per mirror
// generation.
type Service struct {
	repo   Repository
	cache  *Cache
	logger *slog.Logger
}

// NewService builds the Service. cache may be nil.
func NewService(repo Repository, cache *Cache, logger *slog.Logger) *Service {
	return &Service{repo: repo, cache: cache, logger: logger}
}

// Buckets returns availability and paid totals per (cod_sof, ano). Mirror
// failures never propagate: the caller receives an empty map plus a warning
// and classifies every parcel as uncoloured.
func (s *Service) Buckets(ctx context.Context) (map[Chave]Bucket, string) {
	key, err := s.cache.BuildKey(ctx, "empenhos", "buckets")
	if err != nil {
		s.logger.Warn("empenhos: cache key", slog.Any("error", err))
		key = ""
	}

	var snapshot []bucketRow
	load := func(ctx context.Context) (any, error) {
		buckets, err := s.repo.LoadBuckets(ctx)
		if err != nil {
			return nil, err
		}
		rows := make([]bucketRow, 0, len(buckets))
		for chave, bucket := range buckets {
			rows = append(rows, bucketRow{Chave: chave, Bucket: bucket})
		}
		return rows, nil
	}

	if key == "" {
		raw, err := load(ctx)
		if err != nil {
			return s.degrade(err)
		}
		snapshot = raw.([]bucketRow)
	} else if err := s.cache.FetchJSON(ctx, key, &snapshot, load); err != nil {
		return s.degrade(err)
	}

	buckets := make(map[Chave]Bucket, len(snapshot))
	for _, row := range snapshot {
		buckets[row.Chave] = row.Bucket
	}
	return buckets, ""
}

func (s *Service) degrade(err error) (map[Chave]Bucket, string) {
	s.logger.Warn("empenhos: espelho indisponível", slog.Any("error", err))
	return map[Chave]Bucket{}, AvisoEspelhoIndisponivel
}

// Entradas lists the raw mirror lines of one SOF process, vigency detail view.
func (s *Service) Entradas(ctx context.Context, seiCeleb string) ([]Entrada, error) {
	codSof := CodSof(seiCeleb)
	if codSof == "" {
		return nil, nil
	}
	return s.repo.LoadEntradas(ctx, codSof)
}

// Invalidate bumps the snapshot version after a mirror refresh.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}
