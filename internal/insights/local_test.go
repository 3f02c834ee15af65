package insights

import (
	"testing"

	"github.com/stretchr/testify/require"

	"vehicle-insights/internal/models"
)

func TestLocal_Empty(t *testing.T) {
	t.Parallel()

	_, err := Local(nil)
	require.ErrorIs(t, err, ErrNoData)
}

func TestLocal_Report(t *testing.T) {
	t.Parallel()

	records := makeRecords(4)
	for i, v := range []struct{ speed, fuel float64 }{
		{70, 50}, {50, 48}, {66, 49}, {30, 45},
	} {
		records[i].Speed = v.speed
		records[i].FuelLevel = v.fuel
	}
	p0300 := models.Diagnostics{HasError: true, ErrorCode: "P0300", ErrorDescription: "Random/Multiple Cylinder Misfire Detected"}
	records[1].Diagnostics = p0300
	records[3].Diagnostics = p0300

	report, err := Local(records)
	require.NoError(t, err)

	require.Equal(t, 54.0, report.Speed.Avg)
	require.Equal(t, 70.0, report.Speed.Max)
	require.Equal(t, 30.0, report.Speed.Min)
	require.Equal(t, 50.0, report.Speed.OverLimitPct)
	require.Contains(t, report.Speed.Summary, "50.0% of time spent over speed limit")

	require.Equal(t, 2.0, report.Fuel.ConsumptionRate)
	require.Len(t, report.Fuel.EfficiencyTrend, 4)

	require.Equal(t, 2, report.Diagnostics.TotalErrors)
	require.Equal(t, []string{"P0300"}, report.Diagnostics.ErrorCodes)
	require.Equal(t, map[string]int{"P0300": 2}, report.Diagnostics.ErrorTypes)
	require.Equal(t, 50.0, report.Diagnostics.ErrorFrequency)
}

func TestLocal_SingleRecordHasNoConsumption(t *testing.T) {
	t.Parallel()

	report, err := Local(makeRecords(1))
	require.NoError(t, err)
	require.Zero(t, report.Fuel.ConsumptionRate)
	require.Zero(t, report.Diagnostics.TotalErrors)
}
