package store

// schema is recreated on every run; the ledger only lives for one export.
const schema = `
DROP TABLE IF EXISTS extracted_resources;

CREATE TABLE extracted_resources (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    model_type TEXT NOT NULL,
    model_url TEXT NOT NULL,
    "order" INTEGER,
    data TEXT
);

CREATE INDEX idx_extracted_resources_model_type ON extracted_resources(model_type);
CREATE UNIQUE INDEX idx_extracted_resources_key ON extracted_resources(model_type, model_url);
`
