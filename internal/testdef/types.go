// Package testdef defines the closed set of perceptual test types together
// with their configuration and result schemas. Result validation dispatches
// on the type tag, so adding a new test type is a localized change.
package testdef

import (
	"encoding/json"

	"github.com/pqtoolkit/pqtoolkit-go/internal/errors"
)

// TestType identifies one of the supported perceptual test kinds.
type TestType string

const (
	TypeAB     TestType = "AB"
	TypeABX    TestType = "ABX"
	TypeMUSHRA TestType = "MUSHRA"
	TypeAPE    TestType = "APE"
)

// ErrUnknownTestType indicates a type tag outside the closed enumeration.
var ErrUnknownTestType = errors.NewStd("unknown test type")

// ParseTestType validates a type tag against the closed enumeration.
func ParseTestType(tag string) (TestType, error) {
	switch TestType(tag) {
	case TypeAB, TypeABX, TypeMUSHRA, TypeAPE:
		return TestType(tag), nil
	default:
		return "", errors.New(ErrUnknownTestType).
			Component("testdef").
			Category(errors.CategoryValidation).
			Context("type", tag).
			Build()
	}
}

// TestDefinition is one typed trial within an experiment configuration.
// The setup payload shape depends on the type and is carried verbatim.
type TestDefinition struct {
	TestNumber int
	Type       TestType
	Setup      map[string]json.RawMessage
}

// ExperimentDefinition is the configuration document an admin uploads and
// the merged structure returned for a configured experiment.
type ExperimentDefinition struct {
	Name        string
	Description string
	EndText     string
	UID         uint
	Tests       []TestDefinition
}

// testEnvelope is the wire form of a TestDefinition: testNumber and type
// live next to the type-specific setup fields in one flat object.
type testEnvelope map[string]json.RawMessage

// UnmarshalJSON splits the flat wire object into the envelope fields and
// the remaining setup payload.
func (t *TestDefinition) UnmarshalJSON(data []byte) error {
	var envelope testEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return err
	}

	rawNumber, ok := envelope["testNumber"]
	if !ok {
		return errors.Newf("test is missing testNumber").
			Component("testdef").
			Category(errors.CategoryValidation).
			Build()
	}
	if err := json.Unmarshal(rawNumber, &t.TestNumber); err != nil {
		return errors.Newf("testNumber must be an integer: %v", err).
			Component("testdef").
			Category(errors.CategoryValidation).
			Build()
	}

	rawType, ok := envelope["type"]
	if !ok {
		return errors.Newf("test %d is missing type", t.TestNumber).
			Component("testdef").
			Category(errors.CategoryValidation).
			Context("test_number", t.TestNumber).
			Build()
	}
	var tag string
	if err := json.Unmarshal(rawType, &tag); err != nil {
		return errors.Newf("test %d type must be a string: %v", t.TestNumber, err).
			Component("testdef").
			Category(errors.CategoryValidation).
			Context("test_number", t.TestNumber).
			Build()
	}
	parsed, err := ParseTestType(tag)
	if err != nil {
		return err
	}
	t.Type = parsed

	delete(envelope, "testNumber")
	delete(envelope, "type")
	t.Setup = envelope
	return nil
}

// MarshalJSON merges the envelope fields back into the flat wire object.
func (t TestDefinition) MarshalJSON() ([]byte, error) {
	merged := make(map[string]json.RawMessage, len(t.Setup)+2)
	for k, v := range t.Setup {
		merged[k] = v
	}

	number, err := json.Marshal(t.TestNumber)
	if err != nil {
		return nil, err
	}
	merged["testNumber"] = number

	tag, err := json.Marshal(t.Type)
	if err != nil {
		return nil, err
	}
	merged["type"] = tag

	return json.Marshal(merged)
}

// wire form of ExperimentDefinition, matching the upload document
type experimentEnvelope struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	EndText     string           `json:"endText,omitempty"`
	UID         uint             `json:"uid,omitempty"`
	Tests       []TestDefinition `json:"tests"`
}

// UnmarshalJSON decodes the upload document.
func (d *ExperimentDefinition) UnmarshalJSON(data []byte) error {
	var envelope experimentEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return err
	}
	d.Name = envelope.Name
	d.Description = envelope.Description
	d.EndText = envelope.EndText
	d.UID = envelope.UID
	d.Tests = envelope.Tests
	return nil
}

// MarshalJSON encodes the definition in the upload document shape.
func (d ExperimentDefinition) MarshalJSON() ([]byte, error) {
	tests := d.Tests
	if tests == nil {
		tests = []TestDefinition{}
	}
	return json.Marshal(experimentEnvelope{
		Name:        d.Name,
		Description: d.Description,
		EndText:     d.EndText,
		UID:         d.UID,
		Tests:       tests,
	})
}

// ParseExperimentDefinition decodes and validates a configuration document.
// Test numbers must be unique within the experiment; every type tag must
// belong to the closed enumeration.
func ParseExperimentDefinition(data []byte) (*ExperimentDefinition, error) {
	var def ExperimentDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		if errors.IsCategory(err, errors.CategoryValidation) {
			return nil, err
		}
		return nil, errors.Newf("invalid experiment configuration: %v", err).
			Component("testdef").
			Category(errors.CategoryValidation).
			Build()
	}

	if def.Name == "" {
		return nil, errors.Newf("experiment configuration is missing name").
			Component("testdef").
			Category(errors.CategoryValidation).
			Build()
	}

	seen := make(map[int]bool, len(def.Tests))
	for i := range def.Tests {
		number := def.Tests[i].TestNumber
		if seen[number] {
			return nil, errors.Newf("duplicate test number %d", number).
				Component("testdef").
				Category(errors.CategoryValidation).
				Context("test_number", number).
				Build()
		}
		seen[number] = true
	}

	return &def, nil
}
