package db

// SchemaSQL contains the database schema initialization SQL.
const SchemaSQL = `
    -- ==========================================================================
    -- PERSON TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS person SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS person_id ON person TYPE string;
    DEFINE FIELD IF NOT EXISTS handle ON person TYPE string;
    DEFINE FIELD IF NOT EXISTS full_name ON person TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS bio ON person TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS avatar_url ON person TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS updated_at ON person TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS person_person_id ON person FIELDS person_id UNIQUE;
    DEFINE INDEX IF NOT EXISTS person_handle ON person FIELDS handle;

    -- ==========================================================================
    -- TOPIC / AFFILIATION TABLES
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS topic SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS name ON topic TYPE string;
    DEFINE INDEX IF NOT EXISTS topic_name ON topic FIELDS name UNIQUE;

    DEFINE TABLE IF NOT EXISTS affiliation SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS name ON affiliation TYPE string;
    DEFINE FIELD IF NOT EXISTS kind ON affiliation TYPE string;
    DEFINE INDEX IF NOT EXISTS affiliation_name_kind ON affiliation FIELDS name, kind UNIQUE;

    -- ==========================================================================
    -- INTEREST EDGES (person -> topic, max-weight merge)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS interested_in TYPE RELATION IN person OUT topic SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS weight ON interested_in TYPE float DEFAULT 0.5;
    DEFINE FIELD IF NOT EXISTS source ON interested_in TYPE string;
    DEFINE FIELD IF NOT EXISTS evidence ON interested_in TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS updated_at ON interested_in TYPE datetime DEFAULT time::now();
    DEFINE INDEX IF NOT EXISTS unique_interest ON interested_in FIELDS in, out UNIQUE;

    -- ==========================================================================
    -- AFFILIATION EDGES (person -> affiliation, last-write-wins)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS affiliated_with TYPE RELATION IN person OUT affiliation SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS kind ON affiliated_with TYPE string;
    DEFINE FIELD IF NOT EXISTS source ON affiliated_with TYPE string;
    DEFINE FIELD IF NOT EXISTS updated_at ON affiliated_with TYPE datetime DEFAULT time::now();
    DEFINE INDEX IF NOT EXISTS unique_affiliation ON affiliated_with FIELDS in, out UNIQUE;

    -- ==========================================================================
    -- ENRICHMENT (append-only facts attached to topics post-hoc)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS enrichment SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS kind ON enrichment TYPE string;
    DEFINE FIELD IF NOT EXISTS title ON enrichment TYPE string;
    DEFINE FIELD IF NOT EXISTS summary ON enrichment TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS url ON enrichment TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS source ON enrichment TYPE string;
    DEFINE FIELD IF NOT EXISTS created_at ON enrichment TYPE datetime DEFAULT time::now();

    DEFINE TABLE IF NOT EXISTS has_enrichment TYPE RELATION IN topic OUT enrichment SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS created_at ON has_enrichment TYPE datetime DEFAULT time::now();
    DEFINE INDEX IF NOT EXISTS unique_has_enrichment ON has_enrichment FIELDS in, out UNIQUE;

    -- ==========================================================================
    -- INGEST JOB (append-only audit trail, record id = job_id)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS ingest_job SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS job_id ON ingest_job TYPE string;
    DEFINE FIELD IF NOT EXISTS subject_key ON ingest_job TYPE string;
    DEFINE FIELD IF NOT EXISTS owner_id ON ingest_job TYPE string;
    DEFINE FIELD IF NOT EXISTS status ON ingest_job TYPE string DEFAULT 'queued';
    DEFINE FIELD IF NOT EXISTS progress ON ingest_job TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS result ON ingest_job TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS error ON ingest_job TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS created_at ON ingest_job TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated_at ON ingest_job TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS ingest_job_job_id ON ingest_job FIELDS job_id UNIQUE;
    DEFINE INDEX IF NOT EXISTS ingest_job_status ON ingest_job FIELDS status;
    DEFINE INDEX IF NOT EXISTS ingest_job_subject ON ingest_job FIELDS subject_key;

    -- ==========================================================================
    -- TASK RECORD (outstanding provider tasks, record id = provider_task_id)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS task_record SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS provider_task_id ON task_record TYPE string;
    DEFINE FIELD IF NOT EXISTS kind ON task_record TYPE string;
    DEFINE FIELD IF NOT EXISTS topic ON task_record TYPE string;
    DEFINE FIELD IF NOT EXISTS subject_key ON task_record TYPE string;
    DEFINE FIELD IF NOT EXISTS owner_id ON task_record TYPE string;
    DEFINE FIELD IF NOT EXISTS status ON task_record TYPE string DEFAULT 'pending';
    DEFINE FIELD IF NOT EXISTS attempts ON task_record TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS last_error ON task_record TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS result_payload ON task_record TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS created_at ON task_record TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS completed_at ON task_record TYPE option<datetime>;

    DEFINE INDEX IF NOT EXISTS task_record_provider_id ON task_record FIELDS provider_task_id UNIQUE;
    DEFINE INDEX IF NOT EXISTS task_record_status ON task_record FIELDS status;
`
