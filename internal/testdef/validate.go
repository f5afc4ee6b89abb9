package testdef

import (
	"encoding/json"
	"fmt"

	"github.com/pqtoolkit/pqtoolkit-go/internal/errors"
)

// ErrIncorrectInputData indicates a submitted result does not match the
// schema of its test's declared type.
var ErrIncorrectInputData = errors.NewStd("incorrect input data")

// scores use the 0-100 MUSHRA scale
const (
	minScore = 0
	maxScore = 100
)

func incorrectInput(testNumber int, format string, args ...any) error {
	detail := fmt.Sprintf(format, args...)
	return errors.New(fmt.Errorf("%w in test result %d: %s", ErrIncorrectInputData, testNumber, detail)).
		Component("testdef").
		Category(errors.CategoryInvalidBatch).
		Context("test_number", testNumber).
		Context("detail", detail).
		Build()
}

// peekTestNumber extracts the declared test number for error context without
// fully decoding the item.
func peekTestNumber(raw []byte) int {
	var probe struct {
		TestNumber int `json:"testNumber"`
	}
	// Best effort only, a zero is fine when the field itself is malformed.
	_ = json.Unmarshal(raw, &probe)
	return probe.TestNumber
}

// ValidateResult checks a raw submitted item against the schema of the given
// test type and returns the decoded result. Malformed values are rejected,
// never coerced: a numeric string where a number is required is an error.
// Any ExperimentUse value on input is discarded; the token is assigned by
// the ingestion engine.
func ValidateResult(raw []byte, testType TestType) (Result, error) {
	number := peekTestNumber(raw)

	var result Result
	switch testType {
	case TypeAB:
		result = &ABResult{}
	case TypeABX:
		result = &ABXResult{}
	case TypeMUSHRA:
		result = &MUSHRAResult{}
	case TypeAPE:
		result = &APEResult{}
	default:
		return nil, errors.New(ErrUnknownTestType).
			Component("testdef").
			Category(errors.CategoryValidation).
			Context("type", string(testType)).
			Build()
	}

	if err := json.Unmarshal(raw, result); err != nil {
		return nil, incorrectInput(number, "malformed %s result: %v", testType, err)
	}
	result.setExperimentUse("")

	if err := validateShape(result); err != nil {
		return nil, err
	}
	return result, nil
}

// validateShape checks required fields and value ranges per variant.
func validateShape(result Result) error {
	number := result.ResultTestNumber()

	switch r := result.(type) {
	case *ABResult:
		return validateSelections(number, r.Selections, true)

	case *ABXResult:
		if r.XSampleID == "" {
			return incorrectInput(number, "xSampleId is required")
		}
		if r.XSelected == "" {
			return incorrectInput(number, "xSelected is required")
		}
		return validateSelections(number, r.Selections, false)

	case *MUSHRAResult:
		if len(r.SamplesScores) == 0 {
			return incorrectInput(number, "samplesScores must not be empty")
		}
		if r.ReferenceScore != nil {
			if err := validateScore(number, "referenceScore", *r.ReferenceScore); err != nil {
				return err
			}
		}
		for _, s := range r.AnchorsScores {
			if err := validateSampleScore(number, "anchorsScores", s); err != nil {
				return err
			}
		}
		for _, s := range r.SamplesScores {
			if err := validateSampleScore(number, "samplesScores", s); err != nil {
				return err
			}
		}
		return nil

	case *APEResult:
		if len(r.AxisResults) == 0 {
			return incorrectInput(number, "axisResults must not be empty")
		}
		for _, axis := range r.AxisResults {
			if axis.AxisID == "" {
				return incorrectInput(number, "axisId is required")
			}
			if len(axis.SampleRatings) == 0 {
				return incorrectInput(number, "axis %s has no sampleRatings", axis.AxisID)
			}
			for _, rating := range axis.SampleRatings {
				if rating.SampleID == "" {
					return incorrectInput(number, "axis %s has a rating without sampleId", axis.AxisID)
				}
				if rating.Rating < minScore || rating.Rating > maxScore {
					return incorrectInput(number, "axis %s rating %d for sample %s out of range [%d, %d]",
						axis.AxisID, rating.Rating, rating.SampleID, minScore, maxScore)
				}
			}
		}
		return nil
	}

	return incorrectInput(number, "unsupported result variant")
}

// validateSelections checks the selections list; required controls whether
// an empty list is acceptable (ABX choices live in xSelected instead).
func validateSelections(testNumber int, selections []Selection, required bool) error {
	if required && len(selections) == 0 {
		return incorrectInput(testNumber, "selections must not be empty")
	}
	for _, sel := range selections {
		if sel.SampleID == "" {
			return incorrectInput(testNumber, "selection is missing sampleId")
		}
	}
	return nil
}

func validateSampleScore(testNumber int, field string, score SampleScore) error {
	if score.SampleID == "" {
		return incorrectInput(testNumber, "%s entry is missing sampleId", field)
	}
	return validateScore(testNumber, field, score.Score)
}

func validateScore(testNumber int, field string, score int) error {
	if score < minScore || score > maxScore {
		return incorrectInput(testNumber, "%s value %d out of range [%d, %d]", field, score, minScore, maxScore)
	}
	return nil
}

// ReshapeResult decodes a stored result payload back into its typed schema
// and reattaches the submission token as experimentUse. It is the inverse
// of validation for the read path.
func ReshapeResult(payload []byte, testType TestType, token string) (Result, error) {
	result, err := ValidateResult(payload, testType)
	if err != nil {
		return nil, err
	}
	result.setExperimentUse(token)
	return result, nil
}
