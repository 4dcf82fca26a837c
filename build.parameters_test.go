package tlcal

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const paramTable = `waterDistrict, reach, parameterColumn, symbol, value, minimum, maximum, vary
D1, -1, K, p1, 1.0, 0.5, 2.0, true

D1 , 2 , K , p2 , 1.5 , 1 , 3 , TRUE
17, -1, loss, p3, 0.02, 0.01, 0.05, false
17, 3, loss, p3, 0.02, 0.01, 0.05, false
`

func TestReadParameters(t *testing.T) {
	ps, err := ReadParameters(strings.NewReader(paramTable))
	require.NoError(t, err)

	want := []ParameterRecord{
		{Symbol: "p1", Column: "K", District: "D1", Reach: AllReaches, Value: 1, Minimum: .5, Maximum: 2, Vary: true},
		{Symbol: "p2", Column: "K", District: "D1", Reach: 2, Value: 1.5, Minimum: 1, Maximum: 3, Vary: true},
		{Symbol: "p3", Column: "loss", District: "17", Reach: AllReaches, Value: .02, Minimum: .01, Maximum: .05},
		{Symbol: "p3", Column: "loss", District: "17", Reach: 3, Value: .02, Minimum: .01, Maximum: .05},
	}
	if diff := cmp.Diff(want, ps.Records); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 3, ps.Len())
	assert.Equal(t, []string{"p1", "p2", "p3"}, ps.Symbols())
	assert.Equal(t, []string{"p1", "p2"}, ps.Varying())
	assert.Equal(t, SampleVector{"p1": 1, "p2": 1.5, "p3": .02}, ps.Initial())
	assert.True(t, ps.Records[0].AllReachesRule())
	assert.False(t, ps.Records[1].AllReachesRule())
}

func TestReadParametersAliases(t *testing.T) {
	ps, err := ReadParameters(strings.NewReader("WD,Reach,parameter,Symbol,Value,min,max,Vary\n2,1,K,a,1,0,2,1\n"))
	require.NoError(t, err)
	r, ok := ps.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, "2", r.District)
	assert.Equal(t, 1, r.Reach)
	assert.True(t, r.Vary)
}

func TestReadParametersErrors(t *testing.T) {
	const hdr = "waterDistrict,reach,parameterColumn,symbol,value,minimum,maximum,vary\n"
	for name, tc := range map[string]struct {
		body string
		is   error
	}{
		"empty":       {hdr, ErrNoParameters},
		"conflict":    {hdr + "D1,-1,K,p1,1,0,2,true\nD1,2,K,p1,1.5,0,2,true\n", ErrDuplicateSymbol},
		"below_min":   {hdr + "D1,-1,K,p1,0.1,0.5,2,true\n", ErrParameterBounds},
		"inverted":    {hdr + "D1,-1,K,p1,1,2,0.5,true\n", ErrParameterBounds},
		"reach":       {hdr + "D1,1.5,K,p1,1,0,2,true\n", nil},
		"value":       {hdr + "D1,1,K,p1,x,0,2,true\n", nil},
		"vary":        {hdr + "D1,1,K,p1,1,0,2,maybe\n", nil},
		"no_symbol":   {hdr + "D1,1,K,,1,0,2,true\n", nil},
		"missing_col": {"waterDistrict,reach,parameterColumn,symbol,value,minimum,maximum\nD1,1,K,p1,1,0,2\n", nil},
		"no_header":   {"", nil},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ReadParameters(strings.NewReader(tc.body))
			require.Error(t, err)
			if tc.is != nil {
				assert.True(t, errors.Is(err, tc.is), err.Error())
			}
		})
	}
}

func TestFixedOutOfBoundsAllowed(t *testing.T) {
	// bounds only constrain parameters the sampler varies
	ps, err := ReadParameters(strings.NewReader("waterDistrict,reach,parameterColumn,symbol,value,minimum,maximum,vary\nD1,-1,K,p1,9,0,2,false\n"))
	require.NoError(t, err)
	assert.Empty(t, ps.Varying())
}

func TestLoadParameters(t *testing.T) {
	fp := filepath.Join(t.TempDir(), "StateTL_calibration_inputdata.csv")
	require.NoError(t, os.WriteFile(fp, []byte(paramTable), 0644))
	ps, err := LoadParameters(fp)
	require.NoError(t, err)
	assert.Equal(t, 3, ps.Len())

	_, err = LoadParameters(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestParameterSpace(t *testing.T) {
	ps, err := ReadParameters(strings.NewReader(paramTable))
	require.NoError(t, err)
	sp := ps.Space("p2")
	require.Len(t, sp, 3)
	assert.Equal(t, 2, sp.NVary())
	assert.False(t, sp[0].Log)
	assert.True(t, sp[1].Log)
	assert.Equal(t, "p3", sp[2].Symbol)
	assert.Equal(t, .02, sp[2].Value)
}
