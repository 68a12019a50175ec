package cronograma

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smdhc/parcerias/internal/platform/db"
)

// Repository persists cronogram rows. Saves replace every row of the termo
// inside a single transaction.
type Repository interface {
	ListForTermo(ctx context.Context, termo string) ([]Mes, error)
	ReplaceForTermo(ctx context.Context, termo string, rows []Mes) (int, int, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the pgx-backed store.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) ListForTermo(ctx context.Context, termo string) ([]Mes, error) {
	const query = `SELECT id, termo_id, nome_mes, valor_mes_23, valor_mes_24, valor_mes, parcela_numero, info_alteracao
FROM cronograma_meses
WHERE termo_id = $1
ORDER BY nome_mes, id`
	rows, err := r.pool.Query(ctx, query, termo)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var meses []Mes
	for rows.Next() {
		var m Mes
		if err := rows.Scan(&m.ID, &m.TermoID, &m.NomeMes, &m.ValorMes23, &m.ValorMes24, &m.ValorMes, &m.ParcelaNumero, &m.InfoAlteracao); err != nil {
			return nil, err
		}
		meses = append(meses, m)
	}
	return meses, rows.Err()
}

func (r *repository) ReplaceForTermo(ctx context.Context, termo string, meses []Mes) (int, int, error) {
	var excluidas, inseridas int
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM cronograma_meses WHERE termo_id = $1`, termo)
		if err != nil {
			return err
		}
		excluidas = int(tag.RowsAffected())

		const insert = `INSERT INTO cronograma_meses (termo_id, nome_mes, valor_mes_23, valor_mes_24, valor_mes, parcela_numero, info_alteracao)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
		for _, m := range meses {
			if _, err := tx.Exec(ctx, insert, termo, m.NomeMes, m.ValorMes23, m.ValorMes24, m.ValorMes, m.ParcelaNumero, m.InfoAlteracao); err != nil {
				return err
			}
			inseridas++
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return excluidas, inseridas, nil
}
