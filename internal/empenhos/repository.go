package empenhos

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrEspelhoIndisponivel signals that the mirror table is absent or
// unreadable. Callers degrade to uncoloured classification instead of failing.
var ErrEspelhoIndisponivel = errors.New("espelho de empenhos indisponível")

// Repository reads the empenho mirror.
type Repository interface {
	LoadBuckets(ctx context.Context) (map[Chave]Bucket, error)
	LoadEntradas(ctx context.Context, codSof string) ([]Entrada, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the pgx-backed mirror reader.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

// undefined_table: the mirror has not been loaded yet in this environment.
func espelhoAusente(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P01"
}

func (r *repository) LoadBuckets(ctx context.Context) (map[Chave]Bucket, error) {
	rows, err := r.pool.Query(ctx, `
SELECT cod_nro_pcss_sof, ano_eph, cod_item_desp_sof,
       SUM(val_tot_eph - val_tot_canc_eph - val_tot_pago_eph) AS disponivel,
       SUM(val_tot_pago_eph) AS pago,
       COUNT(*) AS linhas
FROM empenhos_sof
GROUP BY cod_nro_pcss_sof, ano_eph, cod_item_desp_sof`)
	if err != nil {
		if espelhoAusente(err) {
			return nil, ErrEspelhoIndisponivel
		}
		return nil, err
	}
	defer rows.Close()

	buckets := make(map[Chave]Bucket)
	for rows.Next() {
		var (
			codSof, elemento string
			ano, linhas      int
			disponivel, pago float64
		)
		if err := rows.Scan(&codSof, &ano, &elemento, &disponivel, &pago, &linhas); err != nil {
			return nil, err
		}
		chave := Chave{CodSof: codSof, Ano: ano}
		bucket := buckets[chave]
		bucket.Disponivel += disponivel
		bucket.Linhas += linhas
		switch elemento {
		case Elemento23:
			bucket.Pago23 += pago
		case Elemento24:
			bucket.Pago24 += pago
		}
		buckets[chave] = bucket
	}
	return buckets, rows.Err()
}

func (r *repository) LoadEntradas(ctx context.Context, codSof string) ([]Entrada, error) {
	rows, err := r.pool.Query(ctx, `
SELECT cod_eph, cod_nro_pcss_sof, ano_eph, val_tot_eph, val_tot_canc_eph, val_tot_pago_eph, cod_item_desp_sof
FROM empenhos_sof
WHERE cod_nro_pcss_sof = $1
ORDER BY ano_eph, cod_eph`, codSof)
	if err != nil {
		if espelhoAusente(err) {
			return nil, ErrEspelhoIndisponivel
		}
		return nil, err
	}
	defer rows.Close()

	var entradas []Entrada
	for rows.Next() {
		var e Entrada
		if err := rows.Scan(&e.CodEph, &e.CodNroPcssSof, &e.AnoEph, &e.ValTotEph, &e.ValTotCancEph, &e.ValTotPagoEph, &e.CodItemDespSof); err != nil {
			return nil, err
		}
		entradas = append(entradas, e)
	}
	return entradas, rows.Err()
}
