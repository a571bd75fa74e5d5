package store

// Schema contains SQL schema definitions for the store. Timestamps are unix milliseconds.
const Schema = `
-- Tenants table
CREATE TABLE IF NOT EXISTS tenants (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    imap_host TEXT,
    imap_username TEXT,
    smtp_host TEXT,
    smtp_username TEXT,
    sender_address TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Auto-reply log (append-only)
CREATE TABLE IF NOT EXISTS autoreply_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    tenant TEXT NOT NULL,
    sender_email TEXT NOT NULL,
    reply_type TEXT NOT NULL CHECK (reply_type IN ('standard', 'vacation')),
    sent_at INTEGER NOT NULL,
    original_message_id TEXT,
    original_uid INTEGER
);

-- Spam log
CREATE TABLE IF NOT EXISTS spam_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    tenant TEXT NOT NULL,
    message_id TEXT NOT NULL,
    uid INTEGER,
    sender TEXT,
    subject TEXT,
    score REAL NOT NULL,
    moved_to TEXT,
    created_at INTEGER NOT NULL,
    UNIQUE(tenant, message_id)
);

-- Tracked outbound messages
CREATE TABLE IF NOT EXISTS tracked_messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    tenant TEXT NOT NULL,
    message_id TEXT NOT NULL,
    subject TEXT,
    sent_at INTEGER NOT NULL,
    UNIQUE(tenant, message_id)
);

CREATE TABLE IF NOT EXISTS tracked_recipients (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    tracked_message_id INTEGER NOT NULL,
    address TEXT NOT NULL,
    token TEXT NOT NULL UNIQUE,
    FOREIGN KEY (tracked_message_id) REFERENCES tracked_messages(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS tracked_links (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    tracked_message_id INTEGER NOT NULL,
    url TEXT NOT NULL,
    UNIQUE(tracked_message_id, url),
    FOREIGN KEY (tracked_message_id) REFERENCES tracked_messages(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS tracking_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    recipient_id INTEGER NOT NULL,
    kind TEXT NOT NULL CHECK (kind IN ('open', 'click')),
    url TEXT,
    user_agent TEXT,
    occurred_at INTEGER NOT NULL,
    FOREIGN KEY (recipient_id) REFERENCES tracked_recipients(id) ON DELETE CASCADE
);

-- Create indexes for faster queries
CREATE INDEX IF NOT EXISTS idx_autoreply_log_sender ON autoreply_log(tenant, sender_email, sent_at);
CREATE INDEX IF NOT EXISTS idx_tracked_recipients_message ON tracked_recipients(tracked_message_id);
CREATE INDEX IF NOT EXISTS idx_tracking_events_recipient ON tracking_events(recipient_id);
`
