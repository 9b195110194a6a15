package plot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pileworks/bom-service/internal/extract"
)

func TestPoints(t *testing.T) {
	res := &extract.Result{
		SheetName:   "Piling Information",
		Pole:        []any{"P-1", float64(17), "P-3"},
		X:           []string{"100.5", "101", "bad"},
		Y:           []string{"200", "201", "202"},
		Z:           []string{"300", "n/a", "302"},
		StartOffset: 4,
	}

	data := Points(res)

	assert.Equal(t, "Piling Information", data.SheetName)
	require.Len(t, data.Points, 2)
	assert.Equal(t, 1, data.Skipped)

	assert.Equal(t, 100.5, data.Points[0].X)
	assert.Equal(t, float64(200), data.Points[0].Y)
	require.NotNil(t, data.Points[0].Z)
	assert.Equal(t, float64(300), *data.Points[0].Z)
	assert.Equal(t, "P-1", data.Points[0].Label)
	assert.Equal(t, 0, data.Points[0].Row)

	// Numeric pole renders without a trailing decimal; non-numeric z drops.
	assert.Equal(t, "17", data.Points[1].Label)
	assert.Nil(t, data.Points[1].Z)
	assert.Equal(t, 1, data.Points[1].Row)
}

func TestPointsWithFrames(t *testing.T) {
	res := &extract.Result{
		Pole:  []any{"P-1"},
		X:     []string{"1"},
		Y:     []string{"2"},
		Z:     []string{"3"},
		Frame: []string{"F-10"},
	}

	data := Points(res)
	require.Len(t, data.Points, 1)
	assert.Equal(t, "F-10", data.Points[0].Frame)
}

func TestPointsEmptyResult(t *testing.T) {
	data := Points(&extract.Result{})
	assert.Empty(t, data.Points)
	assert.Zero(t, data.Skipped)
}
