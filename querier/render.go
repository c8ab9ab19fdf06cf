package querier

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/timestreamquery/types"
)

// ErrUnsupportedColumnType is returned for a column whose type carries none
// of the scalar, array, row or time series descriptions.
var ErrUnsupportedColumnType = errors.New("unsupported column type")

const nullValue = "NULL"

// RenderHeader joins the column names of a result page.
func RenderHeader(columns []types.ColumnInfo) string {
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = aws.ToString(c.Name)
	}
	return strings.Join(names, ", ")
}

// RenderRow renders one row as comma separated values. Non scalar values are
// wrapped in brackets and rendered recursively; time series points are
// written as time:value.
func RenderRow(data []types.Datum, columns []types.ColumnInfo) (string, error) {
	if len(data) != len(columns) {
		return "", fmt.Errorf("row has %d values for %d columns", len(data), len(columns))
	}

	values := make([]string, len(data))
	for j := range data {
		v, err := renderDatum(data[j], columns[j].Type)
		if err != nil {
			return "", fmt.Errorf("column %q: %w", aws.ToString(columns[j].Name), err)
		}
		values[j] = v
	}
	return strings.Join(values, ", "), nil
}

func renderDatum(d types.Datum, t *types.Type) (string, error) {
	if aws.ToBool(d.NullValue) {
		return nullValue, nil
	}
	if t == nil {
		return "", ErrUnsupportedColumnType
	}

	switch {
	case t.ScalarType != "":
		if d.ScalarValue == nil {
			return nullValue, nil
		}
		return *d.ScalarValue, nil

	case t.TimeSeriesMeasureValueColumnInfo != nil:
		v, err := renderTimeSeries(d.TimeSeriesValue, t.TimeSeriesMeasureValueColumnInfo)
		if err != nil {
			return "", err
		}
		return "[" + v + "]", nil

	case t.ArrayColumnInfo != nil:
		v, err := renderArray(d.ArrayValue, t.ArrayColumnInfo)
		if err != nil {
			return "", err
		}
		return "[" + v + "]", nil

	case t.RowColumnInfo != nil:
		if d.RowValue == nil {
			return nullValue, nil
		}
		v, err := RenderRow(d.RowValue.Data, t.RowColumnInfo)
		if err != nil {
			return "", err
		}
		return "[" + v + "]", nil
	}

	return "", ErrUnsupportedColumnType
}

func renderTimeSeries(points []types.TimeSeriesDataPoint, column *types.ColumnInfo) (string, error) {
	values := make([]string, len(points))
	for k, p := range points {
		v := nullValue
		if p.Value != nil {
			var err error
			if v, err = renderDatum(*p.Value, column.Type); err != nil {
				return "", err
			}
		}
		values[k] = aws.ToString(p.Time) + ":" + v
	}
	return strings.Join(values, ", "), nil
}

func renderArray(items []types.Datum, column *types.ColumnInfo) (string, error) {
	values := make([]string, len(items))
	for k := range items {
		v, err := renderDatum(items[k], column.Type)
		if err != nil {
			return "", err
		}
		values[k] = v
	}
	return strings.Join(values, ", "), nil
}
