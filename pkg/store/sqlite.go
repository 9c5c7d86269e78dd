package store

import (
	"context"
	"fmt"
)

// liteSchema mirrors the production columns the queries read, for local runs
// against a sqlite file.
const liteSchema = `
CREATE TABLE IF NOT EXISTS trx_ejecucion_segmento (
	id_ejecucion_segmento INTEGER PRIMARY KEY,
	id_promocion INTEGER NOT NULL,
	nombre_segmento TEXT,
	id_calendario_multiplicador INTEGER,
	id_equivalencia_Puntaje INTEGER,
	id_configuracion INTEGER,
	id_premio INTEGER,
	fecha_inicio DATETIME,
	fecha_fin DATETIME
);
CREATE TABLE IF NOT EXISTS cfg_cronograma_multiplicador (
	id_calendario INTEGER,
	valor_multiplicador REAL,
	fecha_hora_inicio DATETIME,
	fecha_hora_fin DATETIME
);
CREATE TABLE IF NOT EXISTS cfg_Equivalencia_Puntaje_Detalle (
	id_equivalencia_puntaje INTEGER,
	condicion_minima REAL,
	condicion_maxima REAL,
	valor_puntaje REAL
);
CREATE TABLE IF NOT EXISTS cfg_configuracion_detalle (
	id_configuracion_detalle INTEGER PRIMARY KEY,
	id_configuracion INTEGER,
	codigo_compuesto TEXT,
	nombre TEXT,
	valor_entero INTEGER
);
CREATE TABLE IF NOT EXISTS cfg_premio_detalle (
	id_premio INTEGER,
	condicion_minima REAL,
	condicion_maxima REAL,
	valor_premio REAL,
	cantidad_ganadores REAL
);
CREATE TABLE IF NOT EXISTS cfg_etapa (
	id_ejecucion_segmento INTEGER,
	nombre_etapa TEXT,
	fecha_inicio DATETIME,
	fecha_fin DATETIME
);
CREATE TABLE IF NOT EXISTS "s_torneo_mesas.configuracion" (
	id INTEGER PRIMARY KEY,
	id_torneo INTEGER,
	nombre_promocion TEXT,
	fecha_inicio_torneo DATETIME,
	fecha_fin_torneo DATETIME
);`

// Bootstrap creates the tables on a sqlite store. Other dialects are
// managed elsewhere and return an error.
func (s *SQLStore) Bootstrap(ctx context.Context) error {
	if s.dialect != SQLite {
		return fmt.Errorf("bootstrap: not supported for %s", s.dialect.Name)
	}
	if _, err := s.db.ExecContext(ctx, liteSchema); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	return nil
}
