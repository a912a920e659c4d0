package sqlite

// Schema DDL for all tables. Statements are idempotent so Attach can run
// them against an existing database.
const (
	createTestCases = `CREATE TABLE IF NOT EXISTS test_cases (
    test_case_id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    importance TEXT NOT NULL,
    importance_auto INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL
);`

	createDatasets = `CREATE TABLE IF NOT EXISTS datasets (
    dataset_id INTEGER PRIMARY KEY AUTOINCREMENT,
    test_case_id INTEGER NOT NULL,
    name TEXT NOT NULL,
    FOREIGN KEY (test_case_id) REFERENCES test_cases(test_case_id) ON DELETE CASCADE
);`

	createRequirementVersions = `CREATE TABLE IF NOT EXISTS requirement_versions (
    requirement_version_id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    criticality TEXT NOT NULL,
    created_at TEXT NOT NULL
);`

	createSteps = `CREATE TABLE IF NOT EXISTS steps (
    step_id INTEGER PRIMARY KEY AUTOINCREMENT,
    test_case_id INTEGER NOT NULL,
    position INTEGER NOT NULL,
    kind TEXT NOT NULL,
    action TEXT,
    expected_result TEXT,
    keyword TEXT,
    keyword_text TEXT,
    called_test_case_id INTEGER,
    delegate_parameters INTEGER NOT NULL DEFAULT 0,
    dataset_id INTEGER,
    FOREIGN KEY (test_case_id) REFERENCES test_cases(test_case_id) ON DELETE CASCADE,
    FOREIGN KEY (called_test_case_id) REFERENCES test_cases(test_case_id),
    FOREIGN KEY (dataset_id) REFERENCES datasets(dataset_id)
);`

	createVerifications = `CREATE TABLE IF NOT EXISTS verifications (
    test_case_id INTEGER NOT NULL,
    requirement_version_id INTEGER NOT NULL,
    PRIMARY KEY (test_case_id, requirement_version_id),
    FOREIGN KEY (test_case_id) REFERENCES test_cases(test_case_id) ON DELETE CASCADE,
    FOREIGN KEY (requirement_version_id) REFERENCES requirement_versions(requirement_version_id) ON DELETE CASCADE
);`
)

// Index DDL. The two call indexes serve the downstream and upstream layer
// queries.
const (
	idxStepsOwner          = `CREATE INDEX IF NOT EXISTS idx_steps_owner ON steps(test_case_id, position);`
	idxStepsCallee         = `CREATE INDEX IF NOT EXISTS idx_steps_callee ON steps(called_test_case_id) WHERE kind = 'call';`
	idxVerificationsRV     = `CREATE INDEX IF NOT EXISTS idx_verifications_rv ON verifications(requirement_version_id);`
	idxDatasetsTestCase    = `CREATE INDEX IF NOT EXISTS idx_datasets_test_case ON datasets(test_case_id);`
	idxTestCasesImportance = `CREATE INDEX IF NOT EXISTS idx_test_cases_importance ON test_cases(importance);`
)

// schemaDDL lists all CREATE TABLE statements in dependency order.
var schemaDDL = []string{
	createTestCases,
	createDatasets,
	createRequirementVersions,
	createSteps,
	createVerifications,
}

// indexDDL lists all CREATE INDEX statements.
var indexDDL = []string{
	idxStepsOwner,
	idxStepsCallee,
	idxVerificationsRV,
	idxDatasetsTestCase,
	idxTestCasesImportance,
}
