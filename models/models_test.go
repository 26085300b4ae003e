package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCoordinateRounding(t *testing.T) {
	c := NewCoordinate(1.00000004, 2.0000006, -3.0000004)
	require.Equal(t, 1.0, c.X)
	require.Equal(t, 2.000001, c.Y)
	require.Equal(t, -3.0, c.Z)
}

func TestCoordinateArithmetic(t *testing.T) {
	a := NewCoordinate(10, 20, -5)
	b := NewCoordinate(-28.5, 4, -18)

	require.Equal(t, NewCoordinate(-18.5, 24, -23), a.Add(b))
	require.Equal(t, NewCoordinate(38.5, 16, 13), a.Sub(b))
}

func TestCoordinateEqualAfterRounding(t *testing.T) {
	a := NewCoordinate(0.1, 0.2, 0.3)
	b := Coordinate{X: 0.1000000001, Y: 0.2, Z: 0.3}
	require.True(t, a.Equal(b))
	require.False(t, a.Equal(NewCoordinate(0.1, 0.2, 0.300001)))
}

func TestParseState(t *testing.T) {
	require.Equal(t, StateIdle, ParseState("Idle"))
	require.Equal(t, StateHold, ParseState("Hold:0"))
	require.Equal(t, StateDoor, ParseState("Door:1"))
	require.Equal(t, StateUnknown, ParseState("Sleep"))
	require.Equal(t, StateUnknown, ParseState(""))
}

func TestSnapshotHealthy(t *testing.T) {
	require.True(t, (&MachineSnapshot{State: StateIdle}).Healthy())
	require.True(t, (&MachineSnapshot{State: StateRun}).Healthy())
	require.False(t, (&MachineSnapshot{State: StateAlarm}).Healthy())
	require.False(t, (&MachineSnapshot{State: StateUnknown}).Healthy())
}

func TestWorkingVolumeValidate(t *testing.T) {
	valid := WorkingVolume{XMin: 0, XMax: 300, YMin: 0, YMax: 200, ZMin: -80, ZMax: 0}
	require.NoError(t, valid.Validate())

	inverted := valid
	inverted.ZMin, inverted.ZMax = 0, -80
	require.Error(t, inverted.Validate())

	flat := valid
	flat.XMax = flat.XMin
	require.Error(t, flat.Validate())
}

func TestWorkingVolumeContains(t *testing.T) {
	v := WorkingVolume{XMin: 0, XMax: 300, YMin: 0, YMax: 200, ZMin: -80, ZMax: 0}

	require.True(t, v.Contains(NewCoordinate(150, 100, -40)))
	require.True(t, v.Contains(NewCoordinate(0, 0, 0)))
	require.True(t, v.Contains(NewCoordinate(300, 200, -80)))
	require.False(t, v.Contains(NewCoordinate(-1, 100, -40)))
	require.False(t, v.Contains(NewCoordinate(150, 201, -40)))
	require.False(t, v.Contains(NewCoordinate(150, 100, 1)))
}

func TestInstrumentOffsetCoordinate(t *testing.T) {
	off := InstrumentOffset{Name: "pipette", X: -28.5, Y: 4, Z: -18}
	require.Equal(t, NewCoordinate(-28.5, 4, -18), off.Coordinate())
}
