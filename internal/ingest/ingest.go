// Package ingest implements the result ingestion engine: it validates a
// submitted batch of test results against the experiment's configured tests
// and persists the whole batch atomically under a fresh submission token.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/pqtoolkit/pqtoolkit-go/internal/datastore"
	"github.com/pqtoolkit/pqtoolkit-go/internal/datastore/entities"
	"github.com/pqtoolkit/pqtoolkit-go/internal/errors"
	"github.com/pqtoolkit/pqtoolkit-go/internal/logging"
	"github.com/pqtoolkit/pqtoolkit-go/internal/testdef"
)

// Sentinel errors for batch ingestion failures.
var (
	// ErrNoTestsForExperiment indicates the experiment has no configured
	// tests to submit results against.
	ErrNoTestsForExperiment = errors.NewStd("no tests found for experiment")

	// ErrNoResultsData indicates the submitted document carries no results.
	ErrNoResultsData = errors.NewStd("no results data provided")

	// ErrNoMatchingTest indicates a result references a test number that is
	// not part of the experiment's configuration.
	ErrNoMatchingTest = errors.NewStd("no matching test found")
)

// Engine validates and persists result submissions.
type Engine struct {
	ds  datastore.Interface
	log *slog.Logger
}

// NewEngine creates an ingestion engine on top of the given datastore.
func NewEngine(ds datastore.Interface) *Engine {
	return &Engine{
		ds:  ds,
		log: logging.ForService("ingest"),
	}
}

// submissionDocument is the envelope of a batch upload.
type submissionDocument struct {
	Results []json.RawMessage `json:"results"`
}

// testRef is what a result needs from its configured test: the row to attach
// to and the type that dictates the schema.
type testRef struct {
	id       uint
	testType testdef.TestType
}

// Ingest validates every item of the submitted batch against the experiment's
// configured tests and persists them all under a freshly generated submission
// token. Validation is strictly before persistence: the first invalid item
// rejects the whole batch and nothing is stored. On success it returns the
// token together with the stored results reshaped for the client.
func (e *Engine) Ingest(ctx context.Context, experimentName string, doc []byte) (string, []testdef.Result, error) {
	experiment, err := e.ds.GetExperiment(ctx, experimentName)
	if err != nil {
		return "", nil, err
	}
	if len(experiment.Tests) == 0 {
		return "", nil, errors.New(fmt.Errorf("%w: %s", ErrNoTestsForExperiment, experimentName)).
			Component("ingest").
			Category(errors.CategoryNotFound).
			Context("experiment", experimentName).
			Build()
	}

	var submission submissionDocument
	if err := json.Unmarshal(doc, &submission); err != nil {
		return "", nil, errors.Newf("%w: %v", ErrNoResultsData, err).
			Component("ingest").
			Category(errors.CategoryInvalidBatch).
			Context("experiment", experimentName).
			Build()
	}
	if len(submission.Results) == 0 {
		return "", nil, errors.New(fmt.Errorf("%w for experiment %s", ErrNoResultsData, experimentName)).
			Component("ingest").
			Category(errors.CategoryInvalidBatch).
			Context("experiment", experimentName).
			Build()
	}

	testsByNumber := make(map[int]testRef, len(experiment.Tests))
	for i := range experiment.Tests {
		test := &experiment.Tests[i]
		testType, err := testdef.ParseTestType(test.Type)
		if err != nil {
			return "", nil, errors.Newf("decoding stored test type: %v", err).
				Component("ingest").
				Category(errors.CategoryDatabase).
				Context("experiment", experimentName).
				Build()
		}
		testsByNumber[test.Number] = testRef{id: test.ID, testType: testType}
	}

	// Validate the full batch up front. Only a completely valid batch
	// reaches the datastore.
	rows := make([]entities.ExperimentTestResult, 0, len(submission.Results))
	for _, raw := range submission.Results {
		number, err := declaredTestNumber(raw)
		if err != nil {
			return "", nil, err
		}
		ref, ok := testsByNumber[number]
		if !ok {
			return "", nil, errors.New(fmt.Errorf("%w: test %d is not configured in experiment %s",
				ErrNoMatchingTest, number, experimentName)).
				Component("ingest").
				Category(errors.CategoryInvalidBatch).
				Context("experiment", experimentName).
				Context("test_number", number).
				Build()
		}

		result, err := testdef.ValidateResult(raw, ref.testType)
		if err != nil {
			return "", nil, err
		}

		// Store the validated, canonical encoding rather than the raw
		// input, so stray fields like a client-supplied experimentUse
		// never reach the database.
		payload, err := json.Marshal(result)
		if err != nil {
			return "", nil, errors.Newf("encoding result for test %d: %v", number, err).
				Component("ingest").
				Category(errors.CategoryGeneric).
				Context("test_number", number).
				Build()
		}
		rows = append(rows, entities.ExperimentTestResult{
			TestID:  ref.id,
			Payload: string(payload),
		})
	}

	token := uuid.NewString()
	if err := e.ds.SaveSubmission(ctx, experiment.ID, token, rows); err != nil {
		return "", nil, err
	}

	e.log.Info("submission ingested",
		"experiment", experimentName,
		"token", token,
		"results", len(rows))

	reshaped, err := e.ListResults(ctx, experimentName, token)
	if err != nil {
		return "", nil, err
	}
	return token, reshaped, nil
}

// ListResults returns the persisted results of an experiment reshaped into
// their typed schemas with the submission token reattached as experimentUse.
// A non-empty token narrows the listing to one submission.
func (e *Engine) ListResults(ctx context.Context, experimentName, token string) ([]testdef.Result, error) {
	stored, err := e.ds.ListResults(ctx, experimentName, token)
	if err != nil {
		return nil, err
	}

	results := make([]testdef.Result, 0, len(stored))
	for i := range stored {
		testType, err := testdef.ParseTestType(stored[i].Type)
		if err != nil {
			return nil, errors.Newf("decoding stored test type: %v", err).
				Component("ingest").
				Category(errors.CategoryDatabase).
				Context("experiment", experimentName).
				Build()
		}
		result, err := testdef.ReshapeResult([]byte(stored[i].Payload), testType, stored[i].Token)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

// declaredTestNumber extracts the testNumber a result item claims to belong
// to. The field is mandatory on every variant.
func declaredTestNumber(raw []byte) (int, error) {
	var probe struct {
		TestNumber *int `json:"testNumber"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil || probe.TestNumber == nil {
		return 0, errors.New(fmt.Errorf("%w: result item is missing testNumber", ErrNoMatchingTest)).
			Component("ingest").
			Category(errors.CategoryInvalidBatch).
			Build()
	}
	return *probe.TestNumber, nil
}
