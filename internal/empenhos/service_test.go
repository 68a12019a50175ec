package empenhos

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type stubRepo struct {
	buckets     map[Chave]Bucket
	entradas    []Entrada
	entradasCod string
	err         error
	calls       int
}

func (r *stubRepo) LoadBuckets(ctx context.Context) (map[Chave]Bucket, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return r.buckets, nil
}

func (r *stubRepo) LoadEntradas(ctx context.Context, codSof string) ([]Entrada, error) {
	r.entradasCod = codSof
	if r.err != nil {
		return nil, r.err
	}
	return r.entradas, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestCodSof(t *testing.T) {
	require.Equal(t, "60251234562024", CodSof("6025.1234/56-2024"))
	require.Equal(t, "", CodSof(""))
	require.Equal(t, "123", CodSof("1-2/3"))
}

func TestDisponivelNaoDeduzLiquidacao(t *testing.T) {
	e := Entrada{ValTotEph: 1000, ValTotCancEph: 100, ValTotPagoEph: 300}
	require.InDelta(t, 600.0, e.Disponivel(), 0.001)
}

func TestBucketsDegradaQuandoEspelhoIndisponivel(t *testing.T) {
	repo := &stubRepo{err: ErrEspelhoIndisponivel}
	svc := NewService(repo, nil, testLogger())

	buckets, aviso := svc.Buckets(context.Background())
	require.Empty(t, buckets)
	require.Equal(t, AvisoEspelhoIndisponivel, aviso)
}

func TestBucketsSemCache(t *testing.T) {
	chave := Chave{CodSof: "60251234562024", Ano: 2024}
	repo := &stubRepo{buckets: map[Chave]Bucket{chave: {Disponivel: 6000, Pago23: 2300, Pago24: 700, Linhas: 2}}}
	svc := NewService(repo, nil, testLogger())

	buckets, aviso := svc.Buckets(context.Background())
	require.Empty(t, aviso)
	require.Len(t, buckets, 1)
	require.InDelta(t, 6000.0, buckets[chave].Disponivel, 0.001)
}

func TestBucketsUsaCacheAteInvalidar(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	chave := Chave{CodSof: "123", Ano: 2024}
	repo := &stubRepo{buckets: map[Chave]Bucket{chave: {Disponivel: 100}}}
	svc := NewService(repo, NewCache(client, time.Minute), testLogger())

	ctx := context.Background()
	buckets, aviso := svc.Buckets(ctx)
	require.Empty(t, aviso)
	require.InDelta(t, 100.0, buckets[chave].Disponivel, 0.001)
	require.Equal(t, 1, repo.calls)

	// A second read within the same mirror generation hits the snapshot.
	repo.buckets[chave] = Bucket{Disponivel: 999}
	buckets, _ = svc.Buckets(ctx)
	require.InDelta(t, 100.0, buckets[chave].Disponivel, 0.001)
	require.Equal(t, 1, repo.calls)

	require.NoError(t, svc.Invalidate(ctx))
	buckets, _ = svc.Buckets(ctx)
	require.InDelta(t, 999.0, buckets[chave].Disponivel, 0.001)
	require.Equal(t, 2, repo.calls)
}

func TestEntradasDerivaCodSofDoSei(t *testing.T) {
	repo := &stubRepo{entradas: []Entrada{{CodEph: "100", AnoEph: 2024}}}
	svc := NewService(repo, nil, testLogger())

	entradas, err := svc.Entradas(context.Background(), "6025.2024/0001234-5")
	require.NoError(t, err)
	require.Len(t, entradas, 1)
	require.Equal(t, "6025202400012345", repo.entradasCod)
}

func TestEntradasSemSeiNaoConsultaEspelho(t *testing.T) {
	repo := &stubRepo{entradas: []Entrada{{CodEph: "100"}}}
	svc := NewService(repo, nil, testLogger())

	entradas, err := svc.Entradas(context.Background(), "")
	require.NoError(t, err)
	require.Nil(t, entradas)
	require.Empty(t, repo.entradasCod)
}
