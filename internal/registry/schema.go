package registry

// SchemaSQL contains the database schema initialization SQL. All record IDs
// are deterministic composites of the project slug and the record's natural
// key so that writes are idempotent and lookups never need a scan.
const SchemaSQL = `
    -- ==========================================================================
    -- PROJECT TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS project SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS slug ON project TYPE string;
    DEFINE FIELD IF NOT EXISTS name ON project TYPE string;
    DEFINE FIELD IF NOT EXISTS description ON project TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS state ON project TYPE string;
    DEFINE FIELD IF NOT EXISTS created ON project TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS project_slug ON project FIELDS slug UNIQUE;

    -- ==========================================================================
    -- USER AND PERMISSION TABLES
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS app_user SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS username ON app_user TYPE string;
    DEFINE FIELD IF NOT EXISTS ui_name ON app_user TYPE string;

    DEFINE INDEX IF NOT EXISTS app_user_username ON app_user FIELDS username UNIQUE;

    DEFINE TABLE IF NOT EXISTS permission SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS project ON permission TYPE string;
    DEFINE FIELD IF NOT EXISTS username ON permission TYPE string;
    DEFINE FIELD IF NOT EXISTS level ON permission TYPE string;

    DEFINE INDEX IF NOT EXISTS permission_key ON permission FIELDS project, username, level UNIQUE;
    DEFINE INDEX IF NOT EXISTS permission_project_level ON permission FIELDS project, level;

    -- ==========================================================================
    -- DOCUMENT TABLES
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS source_document SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS project ON source_document TYPE string;
    DEFINE FIELD IF NOT EXISTS name ON source_document TYPE string;
    DEFINE FIELD IF NOT EXISTS format ON source_document TYPE string;
    DEFINE FIELD IF NOT EXISTS state ON source_document TYPE string;
    DEFINE FIELD IF NOT EXISTS content ON source_document TYPE string;
    DEFINE FIELD IF NOT EXISTS created ON source_document TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS source_document_key ON source_document FIELDS project, name UNIQUE;

    DEFINE TABLE IF NOT EXISTS annotation_document SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS project ON annotation_document TYPE string;
    DEFINE FIELD IF NOT EXISTS document ON annotation_document TYPE string;
    DEFINE FIELD IF NOT EXISTS username ON annotation_document TYPE string;
    DEFINE FIELD IF NOT EXISTS state ON annotation_document TYPE string;
    DEFINE FIELD IF NOT EXISTS spans ON annotation_document TYPE array<object> FLEXIBLE;

    DEFINE INDEX IF NOT EXISTS annotation_document_key ON annotation_document FIELDS project, document, username UNIQUE;

    DEFINE TABLE IF NOT EXISTS curation SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS project ON curation TYPE string;
    DEFINE FIELD IF NOT EXISTS document ON curation TYPE string;
    DEFINE FIELD IF NOT EXISTS spans ON curation TYPE array<object> FLEXIBLE;

    DEFINE INDEX IF NOT EXISTS curation_key ON curation FIELDS project, document UNIQUE;

    -- ==========================================================================
    -- TASK SCHEMA TABLES
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS layer SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS project ON layer TYPE string;
    DEFINE FIELD IF NOT EXISTS name ON layer TYPE string;
    DEFINE FIELD IF NOT EXISTS ui_name ON layer TYPE string;
    DEFINE FIELD IF NOT EXISTS type ON layer TYPE string;
    DEFINE FIELD IF NOT EXISTS anchoring ON layer TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS overlap ON layer TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS cross_sentence ON layer TYPE bool DEFAULT false;

    DEFINE INDEX IF NOT EXISTS layer_key ON layer FIELDS project, name UNIQUE;

    DEFINE TABLE IF NOT EXISTS feature SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS project ON feature TYPE string;
    DEFINE FIELD IF NOT EXISTS layer ON feature TYPE string;
    DEFINE FIELD IF NOT EXISTS name ON feature TYPE string;
    DEFINE FIELD IF NOT EXISTS ui_name ON feature TYPE string;
    DEFINE FIELD IF NOT EXISTS type ON feature TYPE string;
    DEFINE FIELD IF NOT EXISTS tagset ON feature TYPE option<string>;

    DEFINE INDEX IF NOT EXISTS feature_key ON feature FIELDS project, layer, name UNIQUE;

    DEFINE TABLE IF NOT EXISTS tagset SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS project ON tagset TYPE string;
    DEFINE FIELD IF NOT EXISTS name ON tagset TYPE string;
    DEFINE FIELD IF NOT EXISTS create_tag ON tagset TYPE bool DEFAULT false;

    DEFINE INDEX IF NOT EXISTS tagset_key ON tagset FIELDS project, name UNIQUE;

    DEFINE TABLE IF NOT EXISTS tag SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS project ON tag TYPE string;
    DEFINE FIELD IF NOT EXISTS tagset ON tag TYPE string;
    DEFINE FIELD IF NOT EXISTS name ON tag TYPE string;
    DEFINE FIELD IF NOT EXISTS description ON tag TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS rank ON tag TYPE int DEFAULT 0;

    DEFINE INDEX IF NOT EXISTS tag_key ON tag FIELDS project, tagset, name UNIQUE;

    -- ==========================================================================
    -- WORKLOAD AND INVITE TABLES
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS workload SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS project ON workload TYPE string;
    DEFINE FIELD IF NOT EXISTS type ON workload TYPE string;
    DEFINE FIELD IF NOT EXISTS default_annotations ON workload TYPE int;
    DEFINE FIELD IF NOT EXISTS abandonment_timeout_secs ON workload TYPE int;
    DEFINE FIELD IF NOT EXISTS abandonment_ignored ON workload TYPE bool DEFAULT false;

    DEFINE INDEX IF NOT EXISTS workload_project ON workload FIELDS project UNIQUE;

    DEFINE TABLE IF NOT EXISTS invite SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS invite_id ON invite TYPE string;
    DEFINE FIELD IF NOT EXISTS project ON invite TYPE string;
    DEFINE FIELD IF NOT EXISTS expiration ON invite TYPE datetime;
    DEFINE FIELD IF NOT EXISTS guest_accessible ON invite TYPE bool DEFAULT false;
    DEFINE FIELD IF NOT EXISTS invitation_text ON invite TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS user_id_placeholder ON invite TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS max_annotator_count ON invite TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS disable_on_annotation_complete ON invite TYPE bool DEFAULT false;
    DEFINE FIELD IF NOT EXISTS ask_for_email ON invite TYPE bool DEFAULT false;

    DEFINE INDEX IF NOT EXISTS invite_project ON invite FIELDS project UNIQUE;
    DEFINE INDEX IF NOT EXISTS invite_id_idx ON invite FIELDS invite_id UNIQUE;
`
