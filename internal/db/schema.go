package db

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS vehicles (
    id               TEXT PRIMARY KEY,
    plate_number     TEXT NOT NULL DEFAULT '',
    make             TEXT NOT NULL DEFAULT '',
    model            TEXT NOT NULL DEFAULT '',
    year             INTEGER NOT NULL DEFAULT 0,
    status           TEXT NOT NULL DEFAULT 'available',
    capacity_kg      REAL NOT NULL DEFAULT 0,
    acquisition_cost REAL NOT NULL DEFAULT 0,
    odometer_km      REAL NOT NULL DEFAULT 0,
    version          INTEGER NOT NULL DEFAULT 1,
    created_at       TEXT NOT NULL,
    updated_at       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS drivers (
    id                 TEXT PRIMARY KEY,
    name               TEXT NOT NULL DEFAULT '',
    license_number     TEXT NOT NULL DEFAULT '',
    license_expires_at TEXT NOT NULL,
    status             TEXT NOT NULL DEFAULT 'available',
    phone              TEXT NOT NULL DEFAULT '',
    email              TEXT NOT NULL DEFAULT '',
    version            INTEGER NOT NULL DEFAULT 1,
    created_at         TEXT NOT NULL,
    updated_at         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS trips (
    id              TEXT PRIMARY KEY,
    status          TEXT NOT NULL DEFAULT 'draft',
    vehicle_id      TEXT NOT NULL REFERENCES vehicles(id),
    driver_id       TEXT NOT NULL REFERENCES drivers(id),
    origin          TEXT NOT NULL DEFAULT '',
    destination     TEXT NOT NULL DEFAULT '',
    cargo_weight_kg REAL NOT NULL DEFAULT 0,
    distance_km     REAL NOT NULL DEFAULT 0,
    revenue         REAL NOT NULL DEFAULT 0,
    scheduled_at    TEXT,
    dispatched_at   TEXT,
    completed_at    TEXT,
    start_odometer  REAL,
    end_odometer    REAL,
    notes           TEXT NOT NULL DEFAULT '',
    version         INTEGER NOT NULL DEFAULT 1,
    created_at      TEXT NOT NULL,
    updated_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trips_vehicle_status ON trips(vehicle_id, status);
CREATE INDEX IF NOT EXISTS idx_trips_status_scheduled ON trips(status, scheduled_at);

CREATE TABLE IF NOT EXISTS fuel_logs (
    id             TEXT PRIMARY KEY,
    vehicle_id     TEXT NOT NULL REFERENCES vehicles(id),
    trip_id        TEXT REFERENCES trips(id) ON DELETE SET NULL,
    liters         REAL NOT NULL,
    cost_per_liter REAL NOT NULL DEFAULT 0,
    odometer_km    REAL,
    fueled_at      TEXT NOT NULL,
    station        TEXT NOT NULL DEFAULT '',
    created_at     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fuel_logs_vehicle ON fuel_logs(vehicle_id, fueled_at);

CREATE TABLE IF NOT EXISTS maintenance_logs (
    id           TEXT PRIMARY KEY,
    vehicle_id   TEXT NOT NULL REFERENCES vehicles(id),
    type         TEXT NOT NULL DEFAULT 'other',
    description  TEXT NOT NULL DEFAULT '',
    cost         REAL NOT NULL DEFAULT 0,
    performed_at TEXT NOT NULL,
    due_at       TEXT,
    vendor       TEXT NOT NULL DEFAULT '',
    created_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_maintenance_vehicle ON maintenance_logs(vehicle_id, performed_at);

CREATE TABLE IF NOT EXISTS users (
    id            TEXT PRIMARY KEY,
    username      TEXT NOT NULL UNIQUE,
    email         TEXT NOT NULL DEFAULT '',
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL,
    first_name    TEXT NOT NULL DEFAULT '',
    last_name     TEXT NOT NULL DEFAULT '',
    is_active     INTEGER NOT NULL DEFAULT 1,
    last_login    TEXT,
    created_at    TEXT NOT NULL,
    updated_at    TEXT NOT NULL
);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS vehicles (
    id               TEXT PRIMARY KEY,
    plate_number     TEXT NOT NULL DEFAULT '',
    make             TEXT NOT NULL DEFAULT '',
    model            TEXT NOT NULL DEFAULT '',
    year             INTEGER NOT NULL DEFAULT 0,
    status           TEXT NOT NULL DEFAULT 'available',
    capacity_kg      DOUBLE PRECISION NOT NULL DEFAULT 0,
    acquisition_cost DOUBLE PRECISION NOT NULL DEFAULT 0,
    odometer_km      DOUBLE PRECISION NOT NULL DEFAULT 0,
    version          BIGINT NOT NULL DEFAULT 1,
    created_at       TIMESTAMPTZ NOT NULL,
    updated_at       TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS drivers (
    id                 TEXT PRIMARY KEY,
    name               TEXT NOT NULL DEFAULT '',
    license_number     TEXT NOT NULL DEFAULT '',
    license_expires_at TIMESTAMPTZ NOT NULL,
    status             TEXT NOT NULL DEFAULT 'available',
    phone              TEXT NOT NULL DEFAULT '',
    email              TEXT NOT NULL DEFAULT '',
    version            BIGINT NOT NULL DEFAULT 1,
    created_at         TIMESTAMPTZ NOT NULL,
    updated_at         TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS trips (
    id              TEXT PRIMARY KEY,
    status          TEXT NOT NULL DEFAULT 'draft',
    vehicle_id      TEXT NOT NULL REFERENCES vehicles(id),
    driver_id       TEXT NOT NULL REFERENCES drivers(id),
    origin          TEXT NOT NULL DEFAULT '',
    destination     TEXT NOT NULL DEFAULT '',
    cargo_weight_kg DOUBLE PRECISION NOT NULL DEFAULT 0,
    distance_km     DOUBLE PRECISION NOT NULL DEFAULT 0,
    revenue         DOUBLE PRECISION NOT NULL DEFAULT 0,
    scheduled_at    TIMESTAMPTZ,
    dispatched_at   TIMESTAMPTZ,
    completed_at    TIMESTAMPTZ,
    start_odometer  DOUBLE PRECISION,
    end_odometer    DOUBLE PRECISION,
    notes           TEXT NOT NULL DEFAULT '',
    version         BIGINT NOT NULL DEFAULT 1,
    created_at      TIMESTAMPTZ NOT NULL,
    updated_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trips_vehicle_status ON trips(vehicle_id, status);
CREATE INDEX IF NOT EXISTS idx_trips_status_scheduled ON trips(status, scheduled_at);

CREATE TABLE IF NOT EXISTS fuel_logs (
    id             TEXT PRIMARY KEY,
    vehicle_id     TEXT NOT NULL REFERENCES vehicles(id),
    trip_id        TEXT REFERENCES trips(id) ON DELETE SET NULL,
    liters         DOUBLE PRECISION NOT NULL,
    cost_per_liter DOUBLE PRECISION NOT NULL DEFAULT 0,
    odometer_km    DOUBLE PRECISION,
    fueled_at      TIMESTAMPTZ NOT NULL,
    station        TEXT NOT NULL DEFAULT '',
    created_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fuel_logs_vehicle ON fuel_logs(vehicle_id, fueled_at);

CREATE TABLE IF NOT EXISTS maintenance_logs (
    id           TEXT PRIMARY KEY,
    vehicle_id   TEXT NOT NULL REFERENCES vehicles(id),
    type         TEXT NOT NULL DEFAULT 'other',
    description  TEXT NOT NULL DEFAULT '',
    cost         DOUBLE PRECISION NOT NULL DEFAULT 0,
    performed_at TIMESTAMPTZ NOT NULL,
    due_at       TIMESTAMPTZ,
    vendor       TEXT NOT NULL DEFAULT '',
    created_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_maintenance_vehicle ON maintenance_logs(vehicle_id, performed_at);

CREATE TABLE IF NOT EXISTS users (
    id            TEXT PRIMARY KEY,
    username      TEXT NOT NULL UNIQUE,
    email         TEXT NOT NULL DEFAULT '',
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL,
    first_name    TEXT NOT NULL DEFAULT '',
    last_name     TEXT NOT NULL DEFAULT '',
    is_active     BOOLEAN NOT NULL DEFAULT TRUE,
    last_login    TIMESTAMPTZ,
    created_at    TIMESTAMPTZ NOT NULL,
    updated_at    TIMESTAMPTZ NOT NULL
);
`
