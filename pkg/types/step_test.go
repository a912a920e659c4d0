package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64Ptr(v int64) *int64 { return &v }

func TestCallStepSetMode(t *testing.T) {
	tests := []struct {
		name         string
		initial      CallStep
		mode         ParameterMode
		datasetID    *int64
		wantErr      error
		wantMode     ParameterMode
		wantDelegate bool
	}{
		{
			name:     "nothing clears dataset",
			initial:  CallStep{CalledTestCaseID: 2, DatasetID: int64Ptr(7)},
			mode:     ParameterModeNothing,
			wantMode: ParameterModeNothing,
		},
		{
			name:         "delegate sets flag",
			initial:      CallStep{CalledTestCaseID: 2},
			mode:         ParameterModeDelegate,
			wantMode:     ParameterModeDelegate,
			wantDelegate: true,
		},
		{
			name:      "called dataset stores id and clears delegate",
			initial:   CallStep{CalledTestCaseID: 2, DelegateParameterValues: true},
			mode:      ParameterModeCalledDataset,
			datasetID: int64Ptr(9),
			wantMode:  ParameterModeCalledDataset,
		},
		{
			name:     "called dataset without id rejected",
			initial:  CallStep{CalledTestCaseID: 2},
			mode:     ParameterModeCalledDataset,
			wantErr:  ErrInvalidModeArgument,
			wantMode: ParameterModeNothing,
		},
		{
			name:         "delegate with dataset rejected",
			initial:      CallStep{CalledTestCaseID: 2, DelegateParameterValues: true},
			mode:         ParameterModeDelegate,
			datasetID:    int64Ptr(9),
			wantErr:      ErrInvalidModeArgument,
			wantMode:     ParameterModeDelegate,
			wantDelegate: true,
		},
		{
			name:     "unknown mode rejected",
			initial:  CallStep{CalledTestCaseID: 2},
			mode:     "SOMETIMES",
			wantErr:  ErrInvalidModeArgument,
			wantMode: ParameterModeNothing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.initial
			err := c.SetMode(tt.mode, tt.datasetID)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantMode, c.Mode())
			assert.Equal(t, tt.wantDelegate, c.DelegateParameterValues)
		})
	}
}

func TestCallStepSetModeCopiesDatasetID(t *testing.T) {
	id := int64(4)
	c := CallStep{CalledTestCaseID: 2}
	require.NoError(t, c.SetMode(ParameterModeCalledDataset, &id))
	id = 5
	assert.Equal(t, int64(4), *c.DatasetID)
}

func TestParseParameterMode(t *testing.T) {
	m, err := ParseParameterMode("called-dataset")
	require.NoError(t, err)
	assert.Equal(t, ParameterModeCalledDataset, m)

	m, err = ParseParameterMode("delegate")
	require.NoError(t, err)
	assert.Equal(t, ParameterModeDelegate, m)

	_, err = ParseParameterMode("bogus")
	assert.ErrorIs(t, err, ErrInvalidModeArgument)
}

func TestStepValidate(t *testing.T) {
	tests := []struct {
		name    string
		step    Step
		wantErr bool
	}{
		{name: "action", step: Step{Kind: StepKindAction, Action: &ActionStep{Action: "click"}}},
		{name: "call", step: Step{Kind: StepKindCall, Call: &CallStep{CalledTestCaseID: 3}}},
		{name: "keyword", step: Step{Kind: StepKindKeyword, Keyword: &KeywordStep{Keyword: "GIVEN"}}},
		{name: "call without payload", step: Step{Kind: StepKindCall}, wantErr: true},
		{name: "call without callee", step: Step{Kind: StepKindCall, Call: &CallStep{}}, wantErr: true},
		{name: "two payloads", step: Step{Kind: StepKindAction, Action: &ActionStep{}, Call: &CallStep{CalledTestCaseID: 1}}, wantErr: true},
		{name: "unknown kind", step: Step{Kind: "script"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.step.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidData)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCalledTestCaseIDs(t *testing.T) {
	steps := []*Step{
		{Kind: StepKindCall, Call: &CallStep{CalledTestCaseID: 3}},
		{Kind: StepKindAction, Action: &ActionStep{Action: "a"}},
		{Kind: StepKindCall, Call: &CallStep{CalledTestCaseID: 2}},
		{Kind: StepKindCall, Call: &CallStep{CalledTestCaseID: 3}},
	}
	assert.Equal(t, []int64{3, 2}, CalledTestCaseIDs(steps))

	tc := &TestCase{Steps: steps}
	assert.Equal(t, []int64{3, 2, 3}, tc.CalledTestCaseIDs())
	assert.Len(t, tc.CallSteps(), 3)
}
