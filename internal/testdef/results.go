package testdef

// Result schemas for the four test types. Field names follow the documents
// participants submit: testNumber plus type-specific fields. ExperimentUse
// carries the submission token when results are read back and is never
// accepted on input.

// Selection records one chosen sample for one question.
type Selection struct {
	QuestionID string `json:"questionId"`
	SampleID   string `json:"sampleId"`
}

// SampleScore is a numeric quality score for one sample on the 0-100 scale.
type SampleScore struct {
	SampleID string `json:"sampleId"`
	Score    int    `json:"score"`
}

// SampleRating is a continuous placement of one sample on an APE axis.
type SampleRating struct {
	SampleID string `json:"sampleId"`
	Rating   int    `json:"rating"`
}

// AxisResult groups the sample ratings of one APE axis.
type AxisResult struct {
	AxisID        string         `json:"axisId"`
	SampleRatings []SampleRating `json:"sampleRatings"`
}

// Result is implemented by every per-type result schema.
type Result interface {
	ResultTestNumber() int
	ResultType() TestType
	setExperimentUse(token string)
}

// ABResult is a choice among two labeled alternatives.
type ABResult struct {
	TestNumber    int         `json:"testNumber"`
	Selections    []Selection `json:"selections"`
	ExperimentUse string      `json:"experimentUse,omitempty"`
}

func (r *ABResult) ResultTestNumber() int        { return r.TestNumber }
func (r *ABResult) ResultType() TestType         { return TypeAB }
func (r *ABResult) setExperimentUse(token string) { r.ExperimentUse = token }

// ABXResult is an AB choice against a hidden reference.
type ABXResult struct {
	TestNumber    int         `json:"testNumber"`
	XSampleID     string      `json:"xSampleId"`
	XSelected     string      `json:"xSelected"`
	Selections    []Selection `json:"selections,omitempty"`
	ExperimentUse string      `json:"experimentUse,omitempty"`
}

func (r *ABXResult) ResultTestNumber() int        { return r.TestNumber }
func (r *ABXResult) ResultType() TestType         { return TypeABX }
func (r *ABXResult) setExperimentUse(token string) { r.ExperimentUse = token }

// Correct reports whether the participant identified the hidden reference.
func (r *ABXResult) Correct() bool {
	return r.XSelected == r.XSampleID
}

// MUSHRAResult scores every sample of one trial on the 0-100 MUSHRA scale.
type MUSHRAResult struct {
	TestNumber     int           `json:"testNumber"`
	ReferenceScore *int          `json:"referenceScore,omitempty"`
	AnchorsScores  []SampleScore `json:"anchorsScores,omitempty"`
	SamplesScores  []SampleScore `json:"samplesScores"`
	ExperimentUse  string        `json:"experimentUse,omitempty"`
}

func (r *MUSHRAResult) ResultTestNumber() int        { return r.TestNumber }
func (r *MUSHRAResult) ResultType() TestType         { return TypeMUSHRA }
func (r *MUSHRAResult) setExperimentUse(token string) { r.ExperimentUse = token }

// APEResult places compared samples on one or more continuous axes.
type APEResult struct {
	TestNumber    int          `json:"testNumber"`
	AxisResults   []AxisResult `json:"axisResults"`
	ExperimentUse string       `json:"experimentUse,omitempty"`
}

func (r *APEResult) ResultTestNumber() int        { return r.TestNumber }
func (r *APEResult) ResultType() TestType         { return TypeAPE }
func (r *APEResult) setExperimentUse(token string) { r.ExperimentUse = token }
