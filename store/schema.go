package store

// Schema creates the tables. Timestamps are milliseconds since epoch;
// list- and map-valued columns hold JSON.
const Schema = `
CREATE TABLE IF NOT EXISTS projects (
    id                TEXT PRIMARY KEY,
    name              TEXT NOT NULL,
    description       TEXT NOT NULL DEFAULT '',
    status            TEXT NOT NULL DEFAULT 'pending',
    error             TEXT NOT NULL DEFAULT '',

    original_filename TEXT NOT NULL DEFAULT '',
    file_path         TEXT NOT NULL DEFAULT '',
    file_size_bytes   INTEGER NOT NULL DEFAULT 0,
    thumbnail_path    TEXT NOT NULL DEFAULT '',

    metadata_complete INTEGER NOT NULL DEFAULT 0,
    missing_fields    TEXT NOT NULL DEFAULT '[]',

    source_crs        TEXT NOT NULL DEFAULT '',
    target_crs        TEXT NOT NULL DEFAULT 'EPSG:4326',
    rotation_degrees  REAL NOT NULL DEFAULT 0,
    units             TEXT NOT NULL DEFAULT '',

    min_x             REAL,
    min_y             REAL,
    max_x             REAL,
    max_y             REAL,

    layer_count       INTEGER NOT NULL DEFAULT 0,
    entity_count      INTEGER NOT NULL DEFAULT 0,
    detected_layers   TEXT NOT NULL DEFAULT '[]',

    created_at        INTEGER NOT NULL,
    updated_at        INTEGER NOT NULL,
    processed_at      INTEGER
);

CREATE TABLE IF NOT EXISTS assets (
    id              TEXT PRIMARY KEY,
    project_id      TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    asset_type      TEXT NOT NULL DEFAULT 'unknown',
    label           TEXT NOT NULL DEFAULT '',
    layer_name      TEXT NOT NULL DEFAULT '',
    coordinates     TEXT NOT NULL DEFAULT '[]',
    depth_start     REAL,
    depth_end       REAL,
    depth_unit      TEXT NOT NULL DEFAULT 'meters',
    diameter        REAL,
    diameter_unit   TEXT NOT NULL DEFAULT 'meters',
    material        TEXT NOT NULL DEFAULT '',
    color           TEXT NOT NULL DEFAULT '',
    handle          TEXT NOT NULL DEFAULT '',
    properties      TEXT NOT NULL DEFAULT '{}',
    created_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_assets_project ON assets (project_id);

CREATE TABLE IF NOT EXISTS exports (
    id              TEXT PRIMARY KEY,
    project_id      TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    format          TEXT NOT NULL,
    status          TEXT NOT NULL DEFAULT 'pending',
    error           TEXT NOT NULL DEFAULT '',
    file_path       TEXT NOT NULL DEFAULT '',
    file_size_bytes INTEGER NOT NULL DEFAULT 0,
    options         TEXT NOT NULL DEFAULT '{}',
    download_count  INTEGER NOT NULL DEFAULT 0,
    created_at      INTEGER NOT NULL,
    completed_at    INTEGER,
    expires_at      INTEGER
);
CREATE INDEX IF NOT EXISTS idx_exports_project ON exports (project_id);
`
