package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CATALOG (categories, achievements)
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: create the hierarchical achievement catalog
-- Version: 001

CREATE TABLE IF NOT EXISTS categories (
    id            BIGSERIAL PRIMARY KEY,
    name          VARCHAR(100) NOT NULL,
    description   TEXT NOT NULL DEFAULT '',
    parent_id     BIGINT NOT NULL DEFAULT 0,
    level         SMALLINT NOT NULL DEFAULT 0,
    display_order INTEGER NOT NULL DEFAULT 0,
    icon          VARCHAR(64) NOT NULL DEFAULT '',
    is_expanded   BOOLEAN NOT NULL DEFAULT TRUE,
    is_active     BOOLEAN NOT NULL DEFAULT TRUE,
    created_at    TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_level CHECK (level BETWEEN 0 AND 9),
    CONSTRAINT unique_sibling_name UNIQUE (parent_id, name)
);

CREATE INDEX IF NOT EXISTS idx_categories_parent_id ON categories(parent_id);
CREATE INDEX IF NOT EXISTS idx_categories_is_active ON categories(is_active) WHERE is_active;

CREATE TABLE IF NOT EXISTS achievements (
    id            BIGSERIAL PRIMARY KEY,
    name          VARCHAR(150) NOT NULL,
    description   TEXT NOT NULL DEFAULT '',
    category_id   BIGINT NOT NULL REFERENCES categories(id),
    type          VARCHAR(20) NOT NULL,
    criteria      JSONB NOT NULL DEFAULT '{}'::jsonb,
    points        INTEGER NOT NULL DEFAULT 0,
    badge         VARCHAR(255) NOT NULL DEFAULT '',
    role_reward   VARCHAR(64) NOT NULL DEFAULT '',
    is_hidden     BOOLEAN NOT NULL DEFAULT FALSE,
    is_active     BOOLEAN NOT NULL DEFAULT TRUE,
    created_at    TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_type CHECK (type IN ('COUNTER', 'MILESTONE', 'TIME_BASED', 'CONDITIONAL')),
    CONSTRAINT valid_points CHECK (points >= 0)
);

CREATE INDEX IF NOT EXISTS idx_achievements_category_id ON achievements(category_id);
CREATE INDEX IF NOT EXISTS idx_achievements_type ON achievements(type);
CREATE INDEX IF NOT EXISTS idx_achievements_active ON achievements(is_active) WHERE is_active;

-- Default root categories, seeded on first install.
INSERT INTO categories (name, description, parent_id, level, display_order)
VALUES
    ('General',  'General achievements',  0, 0, 0),
    ('Social',   'Social achievements',   0, 0, 1),
    ('Activity', 'Activity achievements', 0, 0, 2)
ON CONFLICT (parent_id, name) DO NOTHING;
`

const migration001Down = `
DROP TABLE IF EXISTS achievements;
DROP TABLE IF EXISTS categories;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: PROGRESS & AWARDS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Migration: per-user achievement progress and the award protocol
-- Version: 002

CREATE TABLE IF NOT EXISTS achievement_progress (
    id             BIGSERIAL PRIMARY KEY,
    user_id        VARCHAR(20) NOT NULL,
    achievement_id BIGINT NOT NULL REFERENCES achievements(id),
    current_value  DOUBLE PRECISION NOT NULL DEFAULT 0,
    target_value   DOUBLE PRECISION NOT NULL DEFAULT 0,
    progress_data  JSONB NOT NULL DEFAULT '{}'::jsonb,
    last_updated   TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT unique_user_achievement_progress UNIQUE (user_id, achievement_id)
);

CREATE INDEX IF NOT EXISTS idx_progress_user_id ON achievement_progress(user_id);
CREATE INDEX IF NOT EXISTS idx_progress_achievement_id ON achievement_progress(achievement_id);

CREATE TABLE IF NOT EXISTS user_achievements (
    id             BIGSERIAL PRIMARY KEY,
    user_id        VARCHAR(20) NOT NULL,
    achievement_id BIGINT NOT NULL REFERENCES achievements(id),
    earned_at      TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    notified       BOOLEAN NOT NULL DEFAULT FALSE,

    -- The unique constraint is the entire at-most-once award protocol: a
    -- concurrent second award attempt fails here and is absorbed by the
    -- caller as AlreadyAwarded rather than surfaced as an error.
    CONSTRAINT unique_user_achievement UNIQUE (user_id, achievement_id)
);

CREATE INDEX IF NOT EXISTS idx_user_achievements_user_id ON user_achievements(user_id);
CREATE INDEX IF NOT EXISTS idx_user_achievements_unnotified ON user_achievements(user_id) WHERE NOT notified;
`

const migration002Down = `
DROP TABLE IF EXISTS user_achievements;
DROP TABLE IF EXISTS achievement_progress;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: EVENT INGESTION LOG
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
-- Migration: append-only event ingestion log and its archive
-- Version: 003

CREATE TABLE IF NOT EXISTS event_records (
    id             BIGSERIAL PRIMARY KEY,
    user_id        VARCHAR(20) NOT NULL,
    guild_id       VARCHAR(20) NOT NULL,
    event_type     VARCHAR(100) NOT NULL,
    event_data     JSONB NOT NULL DEFAULT '{}'::jsonb,
    event_ts       TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    channel_id     VARCHAR(20) NOT NULL DEFAULT '',
    processed      BOOLEAN NOT NULL DEFAULT FALSE,
    correlation_id VARCHAR(64) NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_events_unprocessed ON event_records(id) WHERE NOT processed;
CREATE INDEX IF NOT EXISTS idx_events_user_guild ON event_records(user_id, guild_id, event_ts DESC);
CREATE INDEX IF NOT EXISTS idx_events_event_type ON event_records(event_type);
CREATE INDEX IF NOT EXISTS idx_events_correlation_id ON event_records(correlation_id) WHERE correlation_id != '';
CREATE INDEX IF NOT EXISTS idx_events_event_ts ON event_records(event_ts);

CREATE TABLE IF NOT EXISTS archived_event_records (
    LIKE event_records INCLUDING DEFAULTS,
    archived_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_archived_events_archived_at ON archived_event_records(archived_at);
`

const migration003Down = `
DROP TABLE IF EXISTS archived_event_records;
DROP TABLE IF EXISTS event_records;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 004: NOTIFICATIONS
// ══════════════════════════════════════════════════════════════════════════════

const migration004Up = `
-- Migration: notification preferences, guild settings, and delivery records
-- Version: 004

CREATE TABLE IF NOT EXISTS notification_preferences (
    user_id              VARCHAR(20) NOT NULL,
    guild_id             VARCHAR(20) NOT NULL,
    dm_enabled           BOOLEAN NOT NULL DEFAULT TRUE,
    announcement_enabled BOOLEAN NOT NULL DEFAULT TRUE,
    enabled            BOOLEAN NOT NULL DEFAULT TRUE,
    opt_out_categories TEXT[] NOT NULL DEFAULT '{}',
    quiet_hours_start  SMALLINT NOT NULL DEFAULT -1,
    quiet_hours_end    SMALLINT NOT NULL DEFAULT -1,
    updated_at         TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (user_id, guild_id)
);

CREATE TABLE IF NOT EXISTS global_notification_settings (
    guild_id                VARCHAR(20) PRIMARY KEY,
    announcement_channel_id VARCHAR(20) NOT NULL DEFAULT '',
    announce_awards         BOOLEAN NOT NULL DEFAULT FALSE,
    default_channel         VARCHAR(20) NOT NULL DEFAULT 'dm',
    daily_digest_enabled    BOOLEAN NOT NULL DEFAULT FALSE,
    daily_digest_hour       SMALLINT NOT NULL DEFAULT 9,
    updated_at              TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS notifications (
    id             VARCHAR(64) PRIMARY KEY,
    type           VARCHAR(40) NOT NULL,
    recipient_id   VARCHAR(20) NOT NULL,
    guild_id       VARCHAR(20) NOT NULL DEFAULT '',
    priority       SMALLINT NOT NULL DEFAULT 1,
    status         VARCHAR(20) NOT NULL DEFAULT 'pending',
    title          VARCHAR(200) NOT NULL DEFAULT '',
    message        TEXT NOT NULL,
    data           JSONB NOT NULL DEFAULT '{}'::jsonb,
    scheduled_at   TIMESTAMP WITH TIME ZONE,
    sent_at        TIMESTAMP WITH TIME ZONE,
    delivered_at   TIMESTAMP WITH TIME ZONE,
    expires_at     TIMESTAMP WITH TIME ZONE,
    retry_count    INTEGER NOT NULL DEFAULT 0,
    max_retries    INTEGER NOT NULL DEFAULT 3,
    last_error     TEXT NOT NULL DEFAULT '',
    metadata       JSONB NOT NULL DEFAULT '{}'::jsonb,
    created_at     TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at     TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications(recipient_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_notifications_status ON notifications(status);
CREATE INDEX IF NOT EXISTS idx_notifications_pending ON notifications(scheduled_at) WHERE status = 'pending';
CREATE INDEX IF NOT EXISTS idx_notifications_expired ON notifications(expires_at) WHERE expires_at IS NOT NULL;

CREATE TABLE IF NOT EXISTS notification_delivery_attempts (
    id             VARCHAR(64) PRIMARY KEY,
    notification_id VARCHAR(64) NOT NULL REFERENCES notifications(id) ON DELETE CASCADE,
    recipient_id   VARCHAR(20) NOT NULL,
    channel        VARCHAR(20) NOT NULL,
    success        BOOLEAN NOT NULL,
    error_code     VARCHAR(50) NOT NULL DEFAULT '',
    attempted_at   TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_delivery_attempts_recipient ON notification_delivery_attempts(recipient_id, attempted_at DESC);
CREATE INDEX IF NOT EXISTS idx_delivery_attempts_notification ON notification_delivery_attempts(notification_id);
`

const migration004Down = `
DROP TABLE IF EXISTS notification_delivery_attempts;
DROP TABLE IF EXISTS notifications;
DROP TABLE IF EXISTS global_notification_settings;
DROP TABLE IF EXISTS notification_preferences;
`
