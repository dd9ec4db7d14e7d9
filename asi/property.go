package asi

// Property identifies a queryable device property exposed through the
// Device interface.
type Property string

// Controller properties.
const (
	// PropertyBuild is the controller build or model name.
	PropertyBuild Property = "build"
	// PropertyCards is the Tiger card table.
	PropertyCards Property = "cards"
)

// Axis properties.
const (
	// PropertyMotorControl reports whether the axis motor drive is enabled.
	PropertyMotorControl Property = "motor_control"
	// PropertyUnitMultiplier is the device-unit per physical-unit factor.
	PropertyUnitMultiplier Property = "unit_multiplier"
)
