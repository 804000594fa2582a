package bundle

// Role names a file a simulation run depends on.
type Role string

const (
	RoleSetup              Role = "setup"
	RoleModel              Role = "model"
	RoleTasks              Role = "tasks"
	RoleActuators          Role = "actuators"
	RoleControlConstraints Role = "control_constraints"
	RoleDesiredKinematics  Role = "desired_kinematics"
	RoleCoordinates        Role = "coordinates"
	RoleExternalLoads      Role = "external_loads"
	RoleForcePlates        Role = "force_plates"
	RoleExtloadKinematics  Role = "extload_kinematics"
)

// Field binds a role to the setup element holding its path.
type Field struct {
	Role Role
	Tag  string
}

// Profile lists the setup fields an analysis mode refers to.
type Profile struct {
	Name   string
	Fields []Field
}

// ProfileCMC covers computed muscle control setups.
var ProfileCMC = Profile{
	Name: "cmc",
	Fields: []Field{
		{RoleModel, "model_file"},
		{RoleTasks, "task_set_file"},
		{RoleActuators, "force_set_files"},
		{RoleControlConstraints, "constraints_file"},
		{RoleDesiredKinematics, "desired_kinematics_file"},
		{RoleExternalLoads, "external_loads_file"},
	},
}

// ProfileRRA covers residual reduction setups; they share CMC's inputs.
var ProfileRRA = Profile{Name: "rra", Fields: ProfileCMC.Fields}

// ProfileSO covers static optimization (analyze) setups.
var ProfileSO = Profile{
	Name: "so",
	Fields: []Field{
		{RoleModel, "model_file"},
		{RoleActuators, "force_set_files"},
		{RoleCoordinates, "coordinates_file"},
		{RoleExternalLoads, "external_loads_file"},
	},
}

// externalLoadsFields are read from the external loads document itself.
var externalLoadsFields = []Field{
	{RoleForcePlates, "datafile"},
	{RoleExtloadKinematics, "external_loads_model_kinematics_file"},
}

// ProfileByName returns the profile for "cmc", "rra" or "so".
func ProfileByName(name string) (Profile, bool) {
	switch name {
	case "cmc", "":
		return ProfileCMC, true
	case "rra":
		return ProfileRRA, true
	case "so":
		return ProfileSO, true
	}
	return Profile{}, false
}

// SetupTag returns the setup element for role in p.
func (p Profile) SetupTag(role Role) (string, bool) {
	for _, f := range p.Fields {
		if f.Role == role {
			return f.Tag, true
		}
	}
	return "", false
}
