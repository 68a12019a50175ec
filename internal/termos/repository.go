package termos

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smdhc/parcerias/internal/shared"
)

// Repository reads the termo master.
type Repository interface {
	Get(ctx context.Context, numeroTermo string) (Termo, error)
	ListComContagem(ctx context.Context) ([]TermoContagem, error)
}

// TermoContagem pairs a termo with its materialized Programada parcel count.
type TermoContagem struct {
	Termo
	ParcelasProgramadas int
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the pgx-backed reader.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const termoColumns = `numero_termo, COALESCE(osc, ''), COALESCE(cnpj, ''), COALESCE(projeto, ''), inicio, final, COALESCE(total_previsto, 0), COALESCE(sei_celeb, ''), COALESCE(sei_pc, ''), COALESCE(tipo_termo, '')`

func scanTermo(row pgx.Row, t *Termo) error {
	return row.Scan(&t.NumeroTermo, &t.OSC, &t.CNPJ, &t.Projeto, &t.Inicio, &t.Final, &t.TotalPrevisto, &t.SeiCeleb, &t.SeiPC, &t.TipoTermo)
}

func (r *repository) Get(ctx context.Context, numeroTermo string) (Termo, error) {
	var t Termo
	err := scanTermo(r.pool.QueryRow(ctx, `SELECT `+termoColumns+` FROM termos WHERE numero_termo = $1`, numeroTermo), &t)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Termo{}, shared.ErrNotFound
		}
		return Termo{}, err
	}
	return t, nil
}

func (r *repository) ListComContagem(ctx context.Context) ([]TermoContagem, error) {
	rows, err := r.pool.Query(ctx, `
SELECT t.numero_termo, COALESCE(t.osc, ''), COALESCE(t.cnpj, ''), COALESCE(t.projeto, ''), t.inicio, t.final,
       COALESCE(t.total_previsto, 0), COALESCE(t.sei_celeb, ''), COALESCE(t.sei_pc, ''), COALESCE(t.tipo_termo, ''),
       COUNT(p.id) FILTER (WHERE p.parcela_tipo = 'Programada') AS programadas
FROM termos t
LEFT JOIN parcelas p ON p.termo_id = t.numero_termo
WHERE t.inicio IS NOT NULL AND t.final IS NOT NULL
GROUP BY t.numero_termo, t.osc, t.cnpj, t.projeto, t.inicio, t.final, t.total_previsto, t.sei_celeb, t.sei_pc, t.tipo_termo
ORDER BY t.numero_termo`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TermoContagem
	for rows.Next() {
		var tc TermoContagem
		if err := rows.Scan(&tc.NumeroTermo, &tc.OSC, &tc.CNPJ, &tc.Projeto, &tc.Inicio, &tc.Final, &tc.TotalPrevisto, &tc.SeiCeleb, &tc.SeiPC, &tc.TipoTermo, &tc.ParcelasProgramadas); err != nil {
			return nil, err
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}
