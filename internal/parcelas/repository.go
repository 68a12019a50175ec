package parcelas

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smdhc/parcerias/internal/platform/db"
	"github.com/smdhc/parcerias/internal/reconcile"
	"github.com/smdhc/parcerias/internal/shared"
)

// Repository is the parcel store. Mutations run in one transaction each; the
// listing mirrors the reconciliation rules in SQL so color filters keep
// pagination counts honest.
type Repository interface {
	List(ctx context.Context, f Filtros, hoje time.Time, pag shared.Pagination) ([]Row, int, string, error)
	ListCascata(ctx context.Context, refs []CascataRef, hoje time.Time) ([]Row, error)
	Get(ctx context.Context, id int64) (Parcela, error)
	ListByTermo(ctx context.Context, termo string) ([]Parcela, error)
	Update(ctx context.Context, id int64, campos map[string]any) error
	BulkUpdateByTermo(ctx context.Context, termo string, campos map[string]any) (int64, error)
	BulkUpsertByTermo(ctx context.Context, termo string, updates, inserts []Parcela, deleteIDs []int64) (int, int, int, error)
	InsertLote(ctx context.Context, rows []Parcela, upsert bool) (int, int, error)
	Delete(ctx context.Context, id int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the pgx-backed store.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

// normSQL strips accents and lowercases a status column the same way
// shared.Normalize does in Go. The two must stay in agreement.
func normSQL(col string) string {
	return fmt.Sprintf("lower(translate(%s, 'ÁÀÂÃÉÊÍÓÔÕÚÇáàâãéêíóôõúç', 'AAAAEEIOOOUCaaaaeeiooouc'))", col)
}

const empenhoBucketCTE = `
	SELECT cod_nro_pcss_sof AS cod_sof, ano_eph AS ano,
	       SUM(val_tot_eph - val_tot_canc_eph - val_tot_pago_eph) AS disponivel
	FROM empenhos_sof
	GROUP BY cod_nro_pcss_sof, ano_eph`

// empenhoBucketVazio replaces the mirror aggregate when the mirror table is
// absent: no bucket ever covers anything, listings survive.
const empenhoBucketVazio = `
	SELECT ''::text AS cod_sof, 0 AS ano, 0::numeric AS disponivel WHERE FALSE`

func listCTE(comEspelho bool) string {
	bucket := empenhoBucketCTE
	if !comEspelho {
		bucket = empenhoBucketVazio
	}
	return fmt.Sprintf(`
WITH soma_termo AS (
	SELECT termo_id, SUM(valor_previsto) AS soma_programada
	FROM parcelas
	WHERE parcela_tipo = 'Programada'
	GROUP BY termo_id
),
empenho_bucket AS (%s),
base AS (
	SELECT p.id, p.termo_id, p.vigencia_inicial, p.vigencia_final,
	       COALESCE(p.parcela_tipo, '') AS parcela_tipo,
	       COALESCE(p.parcela_numero, '') AS parcela_numero,
	       p.valor_elemento_23, p.valor_elemento_24, p.valor_previsto,
	       p.valor_subtraido, p.valor_encaminhado, p.valor_pago,
	       COALESCE(p.parcela_status, '') AS parcela_status,
	       p.parcela_status_secundario, p.data_pagamento,
	       COALESCE(p.observacoes, '') AS observacoes,
	       COALESCE(p.criado_por, '') AS criado_por, p.criado_em,
	       COALESCE(p.atualizado_por, '') AS atualizado_por, p.atualizado_em,
	       t.numero_termo IS NOT NULL AS tem_termo,
	       COALESCE(t.tipo_termo, '') AS tipo_termo,
	       COALESCE(t.total_previsto, 0) AS total_previsto,
	       COALESCE(st.soma_programada, 0) AS soma_programada,
	       translate(COALESCE(t.sei_celeb, ''), './-', '') AS cod_sof,
	       COALESCE(t.osc, '') AS osc, COALESCE(t.cnpj, '') AS cnpj,
	       COALESCE(t.projeto, '') AS projeto,
	       COALESCE(t.sei_celeb, '') AS sei_celeb, COALESCE(t.sei_pc, '') AS sei_pc,
	       EXTRACT(YEAR FROM t.final)::int AS ano_termino,
	       (
	          (t.numero_termo IS NOT NULL
	           AND ABS(COALESCE(st.soma_programada, 0) - COALESCE(t.total_previsto, 0)) > 0.01)
	          OR (%s IN ('nao pago', 'encaminhado para pagamento')
	              AND ABS(p.valor_elemento_23 + p.valor_elemento_24 - p.valor_previsto) > 0.01)
	       ) AS tem_inconsistencia,
	       (eb.cod_sof IS NOT NULL AND eb.cod_sof <> ''
	        AND COALESCE(eb.disponivel, 0) >= p.valor_previsto) AS empenho_cobre,
	       %s AS status_norm,
	       %s AS status_sec_norm
	FROM parcelas p
	LEFT JOIN termos t ON t.numero_termo = p.termo_id
	LEFT JOIN soma_termo st ON st.termo_id = p.termo_id
	LEFT JOIN empenho_bucket eb
	       ON eb.cod_sof = translate(COALESCE(t.sei_celeb, ''), './-', '')
	      AND eb.ano = EXTRACT(YEAR FROM p.vigencia_inicial)::int
)`, bucket,
		normSQL("COALESCE(p.parcela_status, '')"),
		normSQL("COALESCE(p.parcela_status, '')"),
		normSQL("COALESCE(p.parcela_status_secundario, '')"))
}

func (f Filtros) conditions(hoje time.Time) ([]string, []any) {
	var conditions []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if status := f.StatusEfetivo(); status != "" {
		conditions = append(conditions, "status_norm = "+arg(shared.Normalize(status)))
	}
	if f.Termo != "" {
		conditions = append(conditions, "termo_id ILIKE "+arg("%"+f.Termo+"%"))
	}
	if f.ParcelaTipo != "" {
		conditions = append(conditions, "parcela_tipo = "+arg(f.ParcelaTipo))
	}
	if f.ParcelaNumero != "" {
		conditions = append(conditions, "parcela_numero = "+arg(f.ParcelaNumero))
	}
	if f.StatusSecundario != "" {
		conditions = append(conditions, "status_sec_norm = "+arg(shared.Normalize(f.StatusSecundario)))
	} else if len(f.OcultarSubStatus) > 0 {
		norm := make([]string, 0, len(f.OcultarSubStatus))
		for _, s := range f.OcultarSubStatus {
			norm = append(norm, shared.Normalize(s))
		}
		conditions = append(conditions, "NOT (status_sec_norm = ANY("+arg(norm)+"))")
	}
	if f.VigenciaDia != nil {
		conditions = append(conditions, "vigencia_inicial = "+arg(*f.VigenciaDia))
	}
	if f.VigenciaMes > 0 {
		conditions = append(conditions, "EXTRACT(MONTH FROM vigencia_inicial)::int = "+arg(f.VigenciaMes))
	}
	if f.VigenciaAno > 0 {
		conditions = append(conditions, "EXTRACT(YEAR FROM vigencia_inicial)::int = "+arg(f.VigenciaAno))
	}
	if f.PagamentoDe != nil {
		conditions = append(conditions, "data_pagamento >= "+arg(*f.PagamentoDe))
	}
	if f.PagamentoAte != nil {
		conditions = append(conditions, "data_pagamento <= "+arg(*f.PagamentoAte))
	}
	if f.Observacoes != "" {
		conditions = append(conditions, "observacoes ILIKE "+arg("%"+f.Observacoes+"%"))
	}
	if f.TipoTermo != "" {
		conditions = append(conditions, "tipo_termo = "+arg(f.TipoTermo))
	}
	if f.AnoTermino > 0 {
		conditions = append(conditions, "ano_termino = "+arg(f.AnoTermino))
	}
	if f.Cor != nil {
		verdeBase := "NOT tem_inconsistencia AND status_norm = 'nao pago'"
		switch *f.Cor {
		case reconcile.CorAmarela:
			conditions = append(conditions, "tem_inconsistencia")
		case reconcile.CorVerdeEscuro:
			conditions = append(conditions, verdeBase+" AND empenho_cobre")
		case reconcile.CorVerdeClaro:
			conditions = append(conditions,
				verdeBase+" AND NOT empenho_cobre AND vigencia_inicial < "+arg(hoje.AddDate(0, 0, -reconcile.PrazoRegularizacaoDias)))
		case reconcile.CorNenhuma:
			conditions = append(conditions,
				"NOT tem_inconsistencia AND NOT ("+verdeBase+" AND (empenho_cobre OR vigencia_inicial < "+arg(hoje.AddDate(0, 0, -reconcile.PrazoRegularizacaoDias))+"))")
		}
	}
	return conditions, args
}

const listColumns = `id, termo_id, vigencia_inicial, vigencia_final, parcela_tipo, parcela_numero,
	valor_elemento_23, valor_elemento_24, valor_previsto, valor_subtraido, valor_encaminhado, valor_pago,
	parcela_status, parcela_status_secundario, data_pagamento, observacoes,
	criado_por, criado_em, atualizado_por, atualizado_em,
	tem_termo, total_previsto, soma_programada, cod_sof, osc, cnpj, projeto, sei_celeb, sei_pc`

func (r *repository) List(ctx context.Context, f Filtros, hoje time.Time, pag shared.Pagination) ([]Row, int, string, error) {
	rows, total, err := r.list(ctx, f, hoje, pag, true)
	if err == nil {
		return rows, total, "", nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "42P01" {
		return nil, 0, "", err
	}
	// Mirror table missing: serve the listing without empenho coverage.
	rows, total, err = r.list(ctx, f, hoje, pag, false)
	if err != nil {
		return nil, 0, "", err
	}
	return rows, total, "espelho de empenhos indisponível; classificação por empenho suspensa", nil
}

func (r *repository) list(ctx context.Context, f Filtros, hoje time.Time, pag shared.Pagination, comEspelho bool) ([]Row, int, error) {
	conditions, args := f.conditions(hoje)
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	cte := listCTE(comEspelho)

	countQuery := fmt.Sprintf("%s SELECT COUNT(*) FROM base %s", cte, where)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, hoje.Year())
	anoArg := len(args)
	query := fmt.Sprintf(`%s
SELECT %s FROM base
%s
ORDER BY (EXTRACT(YEAR FROM vigencia_inicial)::int = $%d) DESC,
         tem_inconsistencia DESC,
         vigencia_inicial ASC,
         termo_id ASC,
         id ASC`, cte, listColumns, where, anoArg)
	if pag.PerPage > 0 {
		// The CSV export reuses this query without pagination.
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", anoArg+1, anoArg+2)
		args = append(args, pag.PerPage, pag.Offset())
	}

	prows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer prows.Close()

	out, err := collectRows(prows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func collectRows(prows pgx.Rows) ([]Row, error) {
	var out []Row
	for prows.Next() {
		var row Row
		if err := prows.Scan(
			&row.ID, &row.TermoID, &row.VigenciaInicial, &row.VigenciaFinal, &row.ParcelaTipo, &row.ParcelaNumero,
			&row.ValorElemento23, &row.ValorElemento24, &row.ValorPrevisto, &row.ValorSubtraido, &row.ValorEncaminhado, &row.ValorPago,
			&row.ParcelaStatus, &row.ParcelaStatusSecundario, &row.DataPagamento, &row.Observacoes,
			&row.CriadoPor, &row.CriadoEm, &row.AtualizadoPor, &row.AtualizadoEm,
			&row.TemTermo, &row.TotalPrevisto, &row.SomaProgramada, &row.CodSof,
			&row.TermoResumo.OSC, &row.TermoResumo.CNPJ, &row.TermoResumo.Projeto,
			&row.TermoResumo.SeiCeleb, &row.TermoResumo.SeiPC,
		); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, prows.Err()
}

// CascataRef identifies one (termo, ano fiscal) payment bucket.
type CascataRef struct {
	Termo string
	Ano   int
}

// ListCascata returns every Encaminhado parcel of the given buckets so the
// cascade can be computed over whole buckets even when the listing page only
// shows part of one.
func (r *repository) ListCascata(ctx context.Context, refs []CascataRef, hoje time.Time) ([]Row, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	out, err := r.listCascata(ctx, refs, true)
	if err == nil {
		return out, nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "42P01" {
		return nil, err
	}
	return r.listCascata(ctx, refs, false)
}

func (r *repository) listCascata(ctx context.Context, refs []CascataRef, comEspelho bool) ([]Row, error) {
	termoIDs := make([]string, 0, len(refs))
	anos := make([]int, 0, len(refs))
	for _, ref := range refs {
		termoIDs = append(termoIDs, ref.Termo)
		anos = append(anos, ref.Ano)
	}

	query := listCTE(comEspelho) + `
SELECT ` + listColumns + ` FROM base
WHERE status_norm = 'encaminhado para pagamento'
  AND (termo_id, EXTRACT(YEAR FROM vigencia_inicial)::int)
      IN (SELECT unnest($1::text[]), unnest($2::int[]))
ORDER BY vigencia_inicial ASC, termo_id ASC, id ASC`

	prows, err := r.pool.Query(ctx, query, termoIDs, anos)
	if err != nil {
		return nil, err
	}
	defer prows.Close()
	return collectRows(prows)
}

const parcelaColumns = `id, termo_id, vigencia_inicial, vigencia_final,
	COALESCE(parcela_tipo, ''), COALESCE(parcela_numero, ''),
	valor_elemento_23, valor_elemento_24, valor_previsto, valor_subtraido, valor_encaminhado, valor_pago,
	COALESCE(parcela_status, ''), parcela_status_secundario, data_pagamento, COALESCE(observacoes, ''),
	COALESCE(criado_por, ''), criado_em, COALESCE(atualizado_por, ''), atualizado_em`

func scanParcela(row pgx.Row, p *Parcela) error {
	return row.Scan(
		&p.ID, &p.TermoID, &p.VigenciaInicial, &p.VigenciaFinal, &p.ParcelaTipo, &p.ParcelaNumero,
		&p.ValorElemento23, &p.ValorElemento24, &p.ValorPrevisto, &p.ValorSubtraido, &p.ValorEncaminhado, &p.ValorPago,
		&p.ParcelaStatus, &p.ParcelaStatusSecundario, &p.DataPagamento, &p.Observacoes,
		&p.CriadoPor, &p.CriadoEm, &p.AtualizadoPor, &p.AtualizadoEm,
	)
}

func (r *repository) Get(ctx context.Context, id int64) (Parcela, error) {
	var p Parcela
	err := scanParcela(r.pool.QueryRow(ctx, `SELECT `+parcelaColumns+` FROM parcelas WHERE id = $1`, id), &p)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Parcela{}, shared.ErrNotFound
		}
		return Parcela{}, err
	}
	return p, nil
}

func (r *repository) ListByTermo(ctx context.Context, termo string) ([]Parcela, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+parcelaColumns+` FROM parcelas WHERE termo_id = $1 ORDER BY vigencia_inicial, id`, termo)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Parcela
	for rows.Next() {
		var p Parcela
		if err := scanParcela(rows, &p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// setClause renders "col = $n" pairs in a stable order.
func setClause(campos map[string]any, args *[]any) string {
	keys := make([]string, 0, len(campos))
	for k := range campos {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		*args = append(*args, campos[k])
		parts = append(parts, fmt.Sprintf("%s = $%d", k, len(*args)))
	}
	return strings.Join(parts, ", ")
}

func (r *repository) Update(ctx context.Context, id int64, campos map[string]any) error {
	if len(campos) == 0 {
		return nil
	}
	var args []any
	set := setClause(campos, &args)
	args = append(args, id)

	tag, err := r.pool.Exec(ctx, fmt.Sprintf("UPDATE parcelas SET %s WHERE id = $%d", set, len(args)), args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) BulkUpdateByTermo(ctx context.Context, termo string, campos map[string]any) (int64, error) {
	if len(campos) == 0 {
		return 0, nil
	}
	var args []any
	set := setClause(campos, &args)
	args = append(args, termo)

	tag, err := r.pool.Exec(ctx, fmt.Sprintf("UPDATE parcelas SET %s WHERE termo_id = $%d", set, len(args)), args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const insertParcelaSQL = `
INSERT INTO parcelas (termo_id, vigencia_inicial, vigencia_final, parcela_tipo, parcela_numero,
	valor_elemento_23, valor_elemento_24, valor_previsto, valor_subtraido, valor_encaminhado, valor_pago,
	parcela_status, parcela_status_secundario, data_pagamento, observacoes,
	criado_por, criado_em, atualizado_por, atualizado_em)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

func insertArgs(p Parcela) []any {
	return []any{
		p.TermoID, p.VigenciaInicial, p.VigenciaFinal, p.ParcelaTipo, p.ParcelaNumero,
		p.ValorElemento23, p.ValorElemento24, p.ValorPrevisto, p.ValorSubtraido, p.ValorEncaminhado, p.ValorPago,
		p.ParcelaStatus, p.ParcelaStatusSecundario, p.DataPagamento, p.Observacoes,
		p.CriadoPor, p.CriadoEm, p.AtualizadoPor, p.AtualizadoEm,
	}
}

const updateParcelaSQL = `
UPDATE parcelas SET vigencia_inicial = $2, vigencia_final = $3, parcela_tipo = $4, parcela_numero = $5,
	valor_elemento_23 = $6, valor_elemento_24 = $7, valor_previsto = $8, valor_subtraido = $9,
	valor_encaminhado = $10, valor_pago = $11, parcela_status = $12, parcela_status_secundario = $13,
	data_pagamento = $14, observacoes = $15, atualizado_por = $16, atualizado_em = $17
WHERE id = $1 AND termo_id = $18`

func updateArgs(p Parcela, termo string) []any {
	return []any{
		p.ID, p.VigenciaInicial, p.VigenciaFinal, p.ParcelaTipo, p.ParcelaNumero,
		p.ValorElemento23, p.ValorElemento24, p.ValorPrevisto, p.ValorSubtraido,
		p.ValorEncaminhado, p.ValorPago, p.ParcelaStatus, p.ParcelaStatusSecundario,
		p.DataPagamento, p.Observacoes, p.AtualizadoPor, p.AtualizadoEm, termo,
	}
}

func (r *repository) BulkUpsertByTermo(ctx context.Context, termo string, updates, inserts []Parcela, deleteIDs []int64) (int, int, int, error) {
	var inserted, updated, deleted int
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if len(deleteIDs) > 0 {
			tag, err := tx.Exec(ctx, `DELETE FROM parcelas WHERE id = ANY($1) AND termo_id = $2`, deleteIDs, termo)
			if err != nil {
				return err
			}
			deleted = int(tag.RowsAffected())
		}
		for _, p := range updates {
			tag, err := tx.Exec(ctx, updateParcelaSQL, updateArgs(p, termo)...)
			if err != nil {
				return err
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("parcela %d: %w", p.ID, shared.ErrNotFound)
			}
			updated++
		}
		for _, p := range inserts {
			if _, err := tx.Exec(ctx, insertParcelaSQL, insertArgs(p)...); err != nil {
				return err
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, 0, 0, err
	}
	return inserted, updated, deleted, nil
}

func (r *repository) InsertLote(ctx context.Context, rows []Parcela, upsert bool) (int, int, error) {
	var inserted, updated int
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, p := range rows {
			if upsert {
				// No natural key exists on parcelas, so the collision check
				// is an UPDATE by (termo, vigência) falling back to INSERT.
				tag, err := tx.Exec(ctx, `
UPDATE parcelas SET vigencia_final = $3, parcela_tipo = $4, parcela_numero = $5,
	valor_elemento_23 = $6, valor_elemento_24 = $7, valor_previsto = $8,
	atualizado_por = $9, atualizado_em = $10
WHERE termo_id = $1 AND vigencia_inicial = $2`,
					p.TermoID, p.VigenciaInicial, p.VigenciaFinal, p.ParcelaTipo, p.ParcelaNumero,
					p.ValorElemento23, p.ValorElemento24, p.ValorPrevisto, p.AtualizadoPor, p.AtualizadoEm)
				if err != nil {
					return err
				}
				if tag.RowsAffected() > 0 {
					updated += int(tag.RowsAffected())
					continue
				}
			}
			if _, err := tx.Exec(ctx, insertParcelaSQL, insertArgs(p)...); err != nil {
				return err
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	return inserted, updated, nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM parcelas WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
