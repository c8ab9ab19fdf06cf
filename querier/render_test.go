package querier

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/timestreamquery/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scalarCol(name string, t types.ScalarType) types.ColumnInfo {
	return types.ColumnInfo{Name: aws.String(name), Type: &types.Type{ScalarType: t}}
}

func scalar(v string) types.Datum {
	return types.Datum{ScalarValue: aws.String(v)}
}

func TestRenderHeader(t *testing.T) {
	cols := []types.ColumnInfo{
		scalarCol("hostname", types.ScalarTypeVarchar),
		scalarCol("cpu", types.ScalarTypeDouble),
	}
	assert.Equal(t, "hostname, cpu", RenderHeader(cols))
}

func TestRenderRowScalarsAndNull(t *testing.T) {
	cols := []types.ColumnInfo{
		scalarCol("hostname", types.ScalarTypeVarchar),
		scalarCol("cpu", types.ScalarTypeDouble),
		scalarCol("az", types.ScalarTypeVarchar),
	}
	data := []types.Datum{scalar("host-1"), scalar("12.5"), {NullValue: aws.Bool(true)}}

	got, err := RenderRow(data, cols)
	require.NoError(t, err)
	assert.Equal(t, "host-1, 12.5, NULL", got)
}

func TestRenderRowNested(t *testing.T) {
	doubleCol := &types.ColumnInfo{Type: &types.Type{ScalarType: types.ScalarTypeDouble}}
	cols := []types.ColumnInfo{
		scalarCol("hostname", types.ScalarTypeVarchar),
		{
			Name: aws.String("series"),
			Type: &types.Type{TimeSeriesMeasureValueColumnInfo: doubleCol},
		},
		{
			Name: aws.String("tags"),
			Type: &types.Type{ArrayColumnInfo: &types.ColumnInfo{
				Type: &types.Type{ScalarType: types.ScalarTypeVarchar},
			}},
		},
		{
			Name: aws.String("pair"),
			Type: &types.Type{RowColumnInfo: []types.ColumnInfo{
				scalarCol("a", types.ScalarTypeBigint),
				{Name: aws.String("b"), Type: &types.Type{ArrayColumnInfo: doubleCol}},
			}},
		},
	}
	data := []types.Datum{
		scalar("host-1"),
		{TimeSeriesValue: []types.TimeSeriesDataPoint{
			{Time: aws.String("2026-10-18 10:00:00"), Value: &types.Datum{ScalarValue: aws.String("1.5")}},
			{Time: aws.String("2026-10-18 10:00:15"), Value: &types.Datum{ScalarValue: aws.String("2.5")}},
		}},
		{ArrayValue: []types.Datum{scalar("x"), scalar("y")}},
		{RowValue: &types.Row{Data: []types.Datum{
			scalar("7"),
			{ArrayValue: []types.Datum{scalar("0.1")}},
		}}},
	}

	got, err := RenderRow(data, cols)
	require.NoError(t, err)
	assert.Equal(t,
		"host-1, [2026-10-18 10:00:00:1.5, 2026-10-18 10:00:15:2.5], [x, y], [7, [0.1]]",
		got)
}

func TestRenderRowUnsupportedType(t *testing.T) {
	cols := []types.ColumnInfo{{Name: aws.String("mystery"), Type: &types.Type{}}}

	_, err := RenderRow([]types.Datum{scalar("?")}, cols)
	require.ErrorIs(t, err, ErrUnsupportedColumnType)
	assert.Contains(t, err.Error(), "mystery")
}

func TestRenderRowArityMismatch(t *testing.T) {
	_, err := RenderRow([]types.Datum{scalar("a"), scalar("b")},
		[]types.ColumnInfo{scalarCol("a", types.ScalarTypeVarchar)})
	assert.Error(t, err)
}
